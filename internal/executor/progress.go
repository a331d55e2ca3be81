package executor

import (
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/mapforge/spatialkit/internal/analysis"
)

// Tracker is the scoped progress/error reporter for one top-level
// analysis call. It forwards throttled updates to an optional callback
// and is finalized exactly once on every exit path, so callers never
// observe a tracker left open.
type Tracker struct {
	mu       sync.Mutex
	limiter  *rate.Limiter
	callback analysis.Progress
	logger   *zap.Logger

	fraction float64
	status   string
	started  time.Time
	finished bool
	err      error
}

// NewTracker creates a tracker. interval bounds the callback rate;
// terminal updates always go through. callback may be nil.
func NewTracker(logger *zap.Logger, interval time.Duration, callback analysis.Progress) *Tracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	return &Tracker{
		limiter:  rate.NewLimiter(rate.Every(interval), 1),
		callback: callback,
		logger:   logger,
		started:  time.Now(),
	}
}

// Update records progress. Updates after Finish are dropped; fractions
// are clamped to [0,1]; intermediate updates are rate-limited.
func (t *Tracker) Update(fraction float64, status string) {
	if fraction < 0 {
		fraction = 0
	}
	if fraction > 1 {
		fraction = 1
	}

	t.mu.Lock()
	if t.finished {
		t.mu.Unlock()
		return
	}
	t.fraction = fraction
	t.status = status
	deliver := fraction >= 1 || t.limiter.Allow()
	cb := t.callback
	t.mu.Unlock()

	if deliver && cb != nil {
		cb(fraction, status)
	}
}

// Finish closes the tracker, recording the terminal error if any. It
// is idempotent; only the first call wins.
func (t *Tracker) Finish(err error) {
	t.mu.Lock()
	if t.finished {
		t.mu.Unlock()
		return
	}
	t.finished = true
	t.err = err
	if err == nil {
		t.fraction = 1
	}
	elapsed := time.Since(t.started)
	cb := t.callback
	fraction := t.fraction
	t.mu.Unlock()

	if err != nil {
		t.logger.Debug("analysis finished with error",
			zap.Duration("elapsed", elapsed), zap.Error(err))
	} else {
		t.logger.Debug("analysis finished", zap.Duration("elapsed", elapsed))
		if cb != nil {
			cb(fraction, "done")
		}
	}
}

// Snapshot returns the current fraction, status and whether the
// tracker has been finalized.
func (t *Tracker) Snapshot() (float64, string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.fraction, t.status, t.finished
}

// Err returns the terminal error recorded by Finish.
func (t *Tracker) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}
