package cache

import (
	"container/list"
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"
	"go.uber.org/zap"

	"github.com/mapforge/spatialkit/internal/analysis"
)

type entryState int

const (
	statePending entryState = iota
	stateReady
	stateFailed
)

// entry is one fingerprint's slot. A pending entry represents an
// in-flight computation; at most one pending entry exists per
// fingerprint. An entry transitions pending -> ready or pending ->
// failed exactly once and never back, except through invalidation or
// expiry.
type entry struct {
	fingerprint string
	datasetID   string

	state      entryState
	result     *analysis.Result
	compressed []byte // zstd(json(result)) for large payloads
	err        error

	created time.Time
	ttl     time.Duration
	done    chan struct{} // closed when the flight completes
	elem    *list.Element
}

func (e *entry) expired(now time.Time) bool {
	return e.state != statePending && now.Sub(e.created) > e.ttl
}

// Cache is the fingerprint-keyed result store: LRU bounded, TTL
// expired lazily, with a per-fingerprint single-flight guarantee. The
// flight lock is the pending entry itself, not a global computation
// lock, so unrelated requests never serialize on each other.
type Cache struct {
	mu         sync.Mutex
	capacity   int
	failureTTL time.Duration
	threshold  int
	entries    map[string]*entry
	lru        *list.List // front = most recently used, ready/failed only

	encoder *zstd.Encoder
	decoder *zstd.Decoder

	metrics *Metrics
	logger  *zap.Logger
}

// Options tune cache behavior beyond capacity.
type Options struct {
	FailureTTL        time.Duration // retention for failed entries
	CompressThreshold int           // payload bytes before zstd kicks in, 0 disables
	Metrics           *Metrics
}

// New creates a result cache with the given entry capacity.
func New(capacity int, logger *zap.Logger, opts Options) (*Cache, error) {
	if capacity <= 0 {
		capacity = 256
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.FailureTTL <= 0 {
		opts.FailureTTL = 30 * time.Second
	}

	c := &Cache{
		capacity:   capacity,
		failureTTL: opts.FailureTTL,
		threshold:  opts.CompressThreshold,
		entries:    make(map[string]*entry),
		lru:        list.New(),
		metrics:    opts.Metrics,
		logger:     logger,
	}

	if opts.CompressThreshold > 0 {
		enc, err := zstd.NewWriter(nil,
			zstd.WithEncoderLevel(zstd.SpeedDefault),
			zstd.WithEncoderConcurrency(1))
		if err != nil {
			return nil, fmt.Errorf("create zstd encoder: %w", err)
		}
		dec, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
		if err != nil {
			return nil, fmt.Errorf("create zstd decoder: %w", err)
		}
		c.encoder = enc
		c.decoder = dec
	}

	return c, nil
}

// ComputeFunc produces the result for a cache miss.
type ComputeFunc func(ctx context.Context) (*analysis.Result, error)

// GetOrCompute returns the cached result for fingerprint or runs
// compute to fill it. Concurrent callers with the same fingerprint
// trigger compute exactly once: late arrivals suspend until the flight
// completes and receive the same result, or the same failure re-raised.
// The boolean reports whether the result was served from cache.
func (c *Cache) GetOrCompute(ctx context.Context, fingerprint, datasetID string,
	ttl time.Duration, compute ComputeFunc) (*analysis.Result, bool, error) {

	c.mu.Lock()
	e, ok := c.entries[fingerprint]
	if ok && e.expired(time.Now()) {
		// Lazy expiry: an expired entry is a miss on next access.
		c.removeLocked(e)
		ok = false
	}

	if !ok {
		e = &entry{
			fingerprint: fingerprint,
			datasetID:   datasetID,
			state:       statePending,
			ttl:         ttl,
			done:        make(chan struct{}),
		}
		c.entries[fingerprint] = e
		if c.metrics != nil {
			c.metrics.Misses.Inc()
			c.metrics.Entries.Set(float64(len(c.entries)))
		}
		c.mu.Unlock()
		return c.runFlight(ctx, e, compute)
	}

	if e.state == statePending {
		if c.metrics != nil {
			c.metrics.Waits.Inc()
		}
		c.mu.Unlock()
		select {
		case <-ctx.Done():
			return nil, false, ctx.Err()
		case <-e.done:
		}
		// The flight completed; entry fields are immutable now.
		c.mu.Lock()
		c.touchLocked(e)
		c.mu.Unlock()
		res, err := c.materialize(e)
		return res, true, err
	}

	// Ready or failed and within TTL.
	c.touchLocked(e)
	if c.metrics != nil {
		c.metrics.Hits.Inc()
	}
	c.mu.Unlock()
	res, err := c.materialize(e)
	return res, true, err
}

// runFlight executes compute on the caller's goroutine and completes
// the pending entry. Cancellation transitions the entry to failed with
// the context error; it is never left dangling in pending state.
func (c *Cache) runFlight(ctx context.Context, e *entry, compute ComputeFunc) (*analysis.Result, bool, error) {
	result, err := compute(ctx)

	c.mu.Lock()
	e.created = time.Now()
	if err != nil {
		e.state = stateFailed
		e.err = err
		e.ttl = c.failureTTL
	} else {
		e.state = stateReady
		c.storeLocked(e, result)
	}
	e.elem = c.lru.PushFront(e)
	c.evictLocked()
	if c.metrics != nil {
		c.metrics.Entries.Set(float64(len(c.entries)))
	}
	close(e.done)
	c.mu.Unlock()

	return result, false, err
}

// storeLocked keeps small results as-is and compresses large payloads.
func (c *Cache) storeLocked(e *entry, result *analysis.Result) {
	if c.encoder == nil || c.threshold <= 0 {
		e.result = result
		return
	}
	raw, err := json.Marshal(result)
	if err != nil || len(raw) < c.threshold {
		e.result = result
		return
	}
	e.compressed = c.encoder.EncodeAll(raw, nil)
	c.logger.Debug("compressed cache entry",
		zap.String("fingerprint", e.fingerprint),
		zap.Int("raw_bytes", len(raw)),
		zap.Int("compressed_bytes", len(e.compressed)))
}

// materialize returns the entry's outcome, decompressing if needed.
func (c *Cache) materialize(e *entry) (*analysis.Result, error) {
	if e.err != nil {
		return nil, e.err
	}
	if e.compressed == nil {
		return e.result, nil
	}
	raw, err := c.decoder.DecodeAll(e.compressed, nil)
	if err != nil {
		return nil, fmt.Errorf("decompress cache entry: %w", err)
	}
	var result analysis.Result
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("decode cache entry: %w", err)
	}
	return &result, nil
}

func (c *Cache) touchLocked(e *entry) {
	if e.elem != nil {
		c.lru.MoveToFront(e.elem)
	}
}

// evictLocked drops least-recently-used completed entries while over
// capacity. Pending entries are not on the LRU list and are never
// evicted mid-flight.
func (c *Cache) evictLocked() {
	for c.lru.Len() > c.capacity {
		back := c.lru.Back()
		if back == nil {
			return
		}
		victim := back.Value.(*entry)
		c.removeLocked(victim)
		if c.metrics != nil {
			c.metrics.Evictions.Inc()
		}
		c.logger.Debug("evicted cache entry", zap.String("fingerprint", victim.fingerprint))
	}
}

func (c *Cache) removeLocked(e *entry) {
	if e.elem != nil {
		c.lru.Remove(e.elem)
		e.elem = nil
	}
	delete(c.entries, e.fingerprint)
}

// Invalidate drops the entry for a fingerprint. In-flight entries are
// left to complete; their waiters still receive the computed outcome.
func (c *Cache) Invalidate(fingerprint string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[fingerprint]; ok && e.state != statePending {
		c.removeLocked(e)
	}
}

// InvalidateDataset drops every completed entry computed from the
// given dataset id, forcing recomputation after a dataset update.
func (c *Cache) InvalidateDataset(datasetID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	var removed int
	for _, e := range c.entries {
		if e.datasetID == datasetID && e.state != statePending {
			c.removeLocked(e)
			removed++
		}
	}
	return removed
}

// Stats is a point-in-time cache summary.
type Stats struct {
	Entries  int
	Pending  int
	Capacity int
}

// Stats returns current occupancy.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	var pending int
	for _, e := range c.entries {
		if e.state == statePending {
			pending++
		}
	}
	return Stats{Entries: len(c.entries), Pending: pending, Capacity: c.capacity}
}
