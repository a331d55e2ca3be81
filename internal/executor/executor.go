package executor

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/mapforge/spatialkit/internal/analysis"
	"github.com/mapforge/spatialkit/internal/dataset"
)

// Executor runs analysis methods, fanning chunked methods out over a
// bounded worker pool and merging partials deterministically in
// partition order.
type Executor struct {
	workers int
	logger  *zap.Logger
}

// New creates an executor with the given pool size.
func New(workers int, logger *zap.Logger) *Executor {
	if workers <= 0 {
		workers = 4
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{workers: workers, logger: logger}
}

// Run executes a method. When the descriptor supports partitioned
// execution and partitionSize is positive and smaller than the
// dataset, features are split into ordered partitions computed
// concurrently; otherwise the whole-dataset compute function runs on
// the calling goroutine. Returns the payload and the partition count.
func (e *Executor) Run(ctx context.Context, desc *analysis.Descriptor, d *dataset.Dataset,
	params analysis.Params, partitionSize int, progress analysis.Progress) (map[string]any, int, error) {

	if progress == nil {
		progress = analysis.NopProgress
	}

	if !desc.Chunkable() || partitionSize <= 0 || d.Len() <= partitionSize {
		payload, err := desc.Compute(ctx, d, params, progress)
		return payload, 1, err
	}

	parts := d.Partitions(partitionSize)
	e.logger.Debug("running chunked analysis",
		zap.String("category", desc.Category),
		zap.String("method", desc.Name),
		zap.Int("partitions", len(parts)),
		zap.Int("workers", e.workers))

	partials, err := e.fanOut(ctx, desc, d, params, parts, progress)
	if err != nil {
		return nil, len(parts), err
	}

	merged, err := e.merge(desc, d, params, partials)
	if err != nil {
		return nil, len(parts), err
	}
	return merged, len(parts), nil
}

// fanOut computes every partition across the pool. Partitions may
// finish out of order; results land in index order. On failure the
// remaining work is cancelled and the first error by partition index
// wins, so no partial result is ever returned as if complete.
func (e *Executor) fanOut(ctx context.Context, desc *analysis.Descriptor, d *dataset.Dataset,
	params analysis.Params, parts []dataset.Partition, progress analysis.Progress) ([]map[string]any, error) {

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	sem := make(chan struct{}, e.workers)
	results := make([]map[string]any, len(parts))
	errs := make([]error, len(parts))
	var done int64
	var wg sync.WaitGroup

	for i, part := range parts {
		wg.Add(1)
		go func(idx int, p dataset.Partition) {
			defer wg.Done()
			sem <- struct{}{}        // Acquire
			defer func() { <-sem }() // Release

			if err := runCtx.Err(); err != nil {
				errs[idx] = err
				return
			}

			payload, err := desc.ComputePartition(runCtx, d, p, params)
			if err != nil {
				errs[idx] = err
				cancel()
				return
			}
			results[idx] = payload

			completed := atomic.AddInt64(&done, 1)
			progress(float64(completed)/float64(len(parts)),
				fmt.Sprintf("partition %d/%d", completed, len(parts)))
		}(i, part)
	}

	wg.Wait()

	if err := firstError(ctx, errs); err != nil {
		return nil, err
	}
	return results, nil
}

// firstError picks the failure to report: the lowest-index partition
// error that is not a cancellation echo. When every error is a
// cancellation, the caller's own context error (if any) wins.
func firstError(ctx context.Context, errs []error) error {
	firstCancel := -1
	for i, err := range errs {
		if err == nil {
			continue
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			if firstCancel < 0 {
				firstCancel = i
			}
			continue
		}
		return &analysis.PartitionFailure{Partition: i, Err: err}
	}
	if firstCancel >= 0 {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return &analysis.PartitionFailure{Partition: firstCancel, Err: errs[firstCancel]}
	}
	return nil
}

// merge combines ordered partials per the descriptor's policy. The
// iteration order is fixed (partition order, then sorted keys) so
// repeated runs on identical input are byte-identical.
func (e *Executor) merge(desc *analysis.Descriptor, d *dataset.Dataset, params analysis.Params,
	partials []map[string]any) (map[string]any, error) {

	switch desc.Merge {
	case analysis.MergeConcatenate:
		return mergeConcatenate(partials)
	case analysis.MergeWeightedAverage:
		return mergeWeightedAverage(partials)
	case analysis.MergeReduce:
		return desc.Reduce(d, params, partials)
	default:
		return nil, fmt.Errorf("unsupported merge policy %q", desc.Merge)
	}
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// mergeConcatenate appends slice values in partition order and sums
// scalar numeric values.
func mergeConcatenate(partials []map[string]any) (map[string]any, error) {
	merged := make(map[string]any)
	for _, partial := range partials {
		for _, key := range sortedKeys(partial) {
			switch v := partial[key].(type) {
			case []float64:
				prev, _ := merged[key].([]float64)
				merged[key] = append(prev, v...)
			case []any:
				prev, _ := merged[key].([]any)
				merged[key] = append(prev, v...)
			case float64:
				prev, _ := merged[key].(float64)
				merged[key] = prev + v
			case int:
				prev, _ := merged[key].(int)
				merged[key] = prev + v
			default:
				return nil, fmt.Errorf("concatenate merge: key %q has unmergeable type %T", key, v)
			}
		}
	}
	return merged, nil
}

// mergeWeightedAverage averages numeric values weighted by each
// partial's "count" entry.
func mergeWeightedAverage(partials []map[string]any) (map[string]any, error) {
	sums := make(map[string]float64)
	var totalWeight float64

	for i, partial := range partials {
		weight, ok := analysis.Params(partial).Float("count")
		if !ok {
			return nil, fmt.Errorf("weighted-average merge: partition %d has no count", i)
		}
		totalWeight += weight
		for _, key := range sortedKeys(partial) {
			if key == "count" {
				continue
			}
			v, ok := analysis.Params(partial).Float(key)
			if !ok {
				return nil, fmt.Errorf("weighted-average merge: key %q is not numeric", key)
			}
			sums[key] += v * weight
		}
	}

	merged := make(map[string]any, len(sums)+1)
	merged["count"] = totalWeight
	if totalWeight == 0 {
		return merged, nil
	}
	for key, sum := range sums {
		merged[key] = sum / totalWeight
	}
	return merged, nil
}
