// Package engine wires the method registry, validator, executor, cache
// and pipeline orchestrator into the single facade callers talk to.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/mapforge/spatialkit/internal/analysis"
	"github.com/mapforge/spatialkit/internal/cache"
	"github.com/mapforge/spatialkit/internal/config"
	"github.com/mapforge/spatialkit/internal/dataset"
	"github.com/mapforge/spatialkit/internal/executor"
	"github.com/mapforge/spatialkit/internal/pipeline"
)

// Engine executes analysis requests: resolve, validate, fingerprint,
// then serve from cache or compute. It owns no datasets and no
// transport; both are the caller's concern.
type Engine struct {
	cfg       *config.Config
	logger    *zap.Logger
	registry  *analysis.Registry
	validator *analysis.Validator
	store     dataset.Store
	cache     *cache.Cache
	exec      *executor.Executor
	pipelines *pipeline.Orchestrator
	metrics   *Metrics

	jobMu sync.Mutex
	jobs  map[string]*Job
}

// Options tune engine construction.
type Options struct {
	// Registry receives the engine's and cache's Prometheus
	// instruments; nil leaves them unregistered.
	Registry *prometheus.Registry
}

// New creates an engine over the given dataset store.
func New(cfg *config.Config, store dataset.Store, logger *zap.Logger, opts Options) (*Engine, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if store == nil {
		return nil, fmt.Errorf("engine needs a dataset store")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	resultCache, err := cache.New(cfg.Cache.Capacity, logger.Named("cache"), cache.Options{
		FailureTTL:        cfg.Cache.FailureTTL,
		CompressThreshold: cfg.Cache.CompressThreshold,
		Metrics:           cache.NewMetrics(opts.Registry),
	})
	if err != nil {
		return nil, err
	}

	return &Engine{
		cfg:       cfg,
		logger:    logger,
		registry:  analysis.NewRegistry(),
		validator: analysis.NewValidator(logger.Named("validator")),
		store:     store,
		cache:     resultCache,
		exec:      executor.New(cfg.Engine.Workers, logger.Named("executor")),
		pipelines: pipeline.New(logger.Named("pipeline")),
		metrics:   NewMetrics(opts.Registry),
		jobs:      make(map[string]*Job),
	}, nil
}

// Registry exposes the method catalog for plugin registration at
// startup.
func (e *Engine) Registry() *analysis.Registry { return e.registry }

// Methods lists the registered catalog.
func (e *Engine) Methods() []analysis.MethodInfo { return e.registry.List() }

// Analyze runs one request synchronously. progress may be nil.
func (e *Engine) Analyze(ctx context.Context, req analysis.Request,
	progress analysis.Progress) (*analysis.Result, error) {

	desc, err := e.registry.Resolve(req.Category, req.Method)
	if err != nil {
		return nil, err
	}
	d, err := e.store.Dataset(ctx, req.DatasetID)
	if err != nil {
		return nil, err
	}
	return e.analyzeDataset(ctx, req, desc, d, progress)
}

// analyzeDataset is the core flow shared by Analyze and pipeline
// stages: validate, fingerprint, then hit the cache or compute.
func (e *Engine) analyzeDataset(ctx context.Context, req analysis.Request,
	desc *analysis.Descriptor, d *dataset.Dataset, progress analysis.Progress) (*analysis.Result, error) {

	if err := e.validator.Validate(req, desc, d); err != nil {
		return nil, err
	}
	params := desc.Schema.ApplyDefaults(req.Params)

	fingerprint, err := req.Fingerprint(d.Fingerprint())
	if err != nil {
		return nil, err
	}

	ttl := req.TTL
	if ttl <= 0 {
		ttl = e.cfg.Cache.DefaultTTL
	}
	partitionSize := e.partitionSize(req, d)

	e.metrics.Started.WithLabelValues(req.Category, req.Method).Inc()
	started := time.Now()
	tracker := executor.NewTracker(e.logger, e.cfg.Engine.ProgressInterval, progress)

	result, hit, err := e.cache.GetOrCompute(ctx, fingerprint, d.ID(), ttl,
		func(ctx context.Context) (*analysis.Result, error) {
			payload, partitions, err := e.exec.Run(ctx, desc, d, params, partitionSize, tracker.Update)
			if err != nil {
				return nil, err
			}
			return &analysis.Result{
				Category:     req.Category,
				Method:       req.Method,
				Fingerprint:  fingerprint,
				Payload:      payload,
				FeatureCount: d.Len(),
				Partitions:   partitions,
				Elapsed:      time.Since(started),
				ComputedAt:   time.Now(),
				Valid:        true,
			}, nil
		})
	tracker.Finish(err)

	if err != nil {
		err = analysis.Annotate(err, req.Category, req.Method, fingerprint)
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			// A cancelled flight says nothing about the request; do not
			// let its failure entry poison retries.
			e.cache.Invalidate(fingerprint)
			err = &analysis.CancelledError{
				Category: req.Category, Method: req.Method, Fingerprint: fingerprint,
			}
		}
		e.metrics.Failed.WithLabelValues(req.Category, req.Method, errorCode(err)).Inc()
		e.logger.Warn("analysis failed",
			zap.String("category", req.Category),
			zap.String("method", req.Method),
			zap.String("fingerprint", fingerprint),
			zap.Bool("cache_hit", hit),
			zap.Error(err))
		return nil, err
	}

	e.metrics.Completed.WithLabelValues(req.Category, req.Method).Inc()
	e.metrics.Latency.WithLabelValues(req.Category, req.Method).Observe(time.Since(started).Seconds())
	e.logger.Info("analysis completed",
		zap.String("category", req.Category),
		zap.String("method", req.Method),
		zap.String("fingerprint", fingerprint),
		zap.Bool("cache_hit", hit),
		zap.Int("partitions", result.Partitions),
		zap.Duration("elapsed", time.Since(started)))
	return result, nil
}

// partitionSize resolves the effective chunk size: an explicit request
// override wins, the configured default applies only once the dataset
// crosses the chunk threshold, and a negative override disables
// chunking outright.
func (e *Engine) partitionSize(req analysis.Request, d *dataset.Dataset) int {
	if req.PartitionSize > 0 {
		return req.PartitionSize
	}
	if req.PartitionSize < 0 {
		return 0
	}
	if d.Len() < e.cfg.Engine.ChunkThreshold {
		return 0
	}
	return e.cfg.Engine.PartitionSize
}

// Submit runs a request asynchronously when its method is declared
// long-running, returning a pollable job; short methods complete
// synchronously and return an already-finished job. progress may be
// nil.
func (e *Engine) Submit(ctx context.Context, req analysis.Request,
	progress analysis.Progress) (*Job, error) {

	desc, err := e.registry.Resolve(req.Category, req.Method)
	if err != nil {
		return nil, err
	}
	d, err := e.store.Dataset(ctx, req.DatasetID)
	if err != nil {
		return nil, err
	}

	if !desc.LongRunning {
		job := newJob(req.Category, req.Method, func() {})
		e.track(job)
		result, err := e.analyzeDataset(ctx, req, desc, d, progress)
		job.complete(result, err)
		return job, nil
	}

	// Long-running jobs outlive the submitting request; only Cancel
	// stops them.
	jobCtx, cancel := context.WithCancel(context.Background())
	job := newJob(req.Category, req.Method, cancel)
	e.track(job)

	go func() {
		defer cancel()
		result, err := e.analyzeDataset(jobCtx, req, desc, d, func(fraction float64, status string) {
			job.setProgress(fraction, status)
			if progress != nil {
				progress(fraction, status)
			}
		})
		job.complete(result, err)
	}()

	e.logger.Info("analysis submitted",
		zap.String("job_id", job.ID()),
		zap.String("category", req.Category),
		zap.String("method", req.Method))
	return job, nil
}

// Job looks up a tracked job by id.
func (e *Engine) Job(id string) (*Job, bool) {
	e.jobMu.Lock()
	defer e.jobMu.Unlock()
	e.sweepJobsLocked(time.Now())
	j, ok := e.jobs[id]
	return j, ok
}

func (e *Engine) track(j *Job) {
	e.jobMu.Lock()
	e.sweepJobsLocked(time.Now())
	e.jobs[j.ID()] = j
	e.metrics.JobsOpen.Set(float64(len(e.jobs)))
	e.jobMu.Unlock()
}

func (e *Engine) sweepJobsLocked(now time.Time) {
	for id, j := range e.jobs {
		if j.retired(now, e.cfg.Engine.JobRetention) {
			delete(e.jobs, id)
		}
	}
	e.metrics.JobsOpen.Set(float64(len(e.jobs)))
}

// InvalidateResult drops one cached result.
func (e *Engine) InvalidateResult(fingerprint string) {
	e.cache.Invalidate(fingerprint)
}

// InvalidateDataset drops every cached result computed from the given
// dataset id. Call it after a dataset's content changes.
func (e *Engine) InvalidateDataset(datasetID string) int {
	removed := e.cache.InvalidateDataset(datasetID)
	if removed > 0 {
		e.logger.Info("dataset cache invalidated",
			zap.String("dataset_id", datasetID),
			zap.Int("removed", removed))
	}
	return removed
}

// CacheStats returns current cache occupancy.
func (e *Engine) CacheStats() cache.Stats { return e.cache.Stats() }

// AnalysisStage wraps a request as a pipeline stage. The stage runs
// against the payload's dataset, ignoring the request's dataset id, so
// earlier stages can feed it transformed data; the result lands in the
// payload for downstream stages.
func (e *Engine) AnalysisStage(name string, req analysis.Request) pipeline.Stage {
	return pipeline.Stage{
		Name: name,
		Run: func(ctx context.Context, in pipeline.Payload) (pipeline.Payload, error) {
			if in.Dataset == nil {
				return in, fmt.Errorf("analysis stage %q has no dataset", name)
			}
			desc, err := e.registry.Resolve(req.Category, req.Method)
			if err != nil {
				return in, err
			}
			result, err := e.analyzeDataset(ctx, req, desc, in.Dataset, nil)
			if err != nil {
				return in, err
			}
			in.Result = result
			return in, nil
		},
	}
}

// RunPipeline resolves the dataset and executes the stages in order.
func (e *Engine) RunPipeline(ctx context.Context, datasetID string,
	stages []pipeline.Stage) (pipeline.Payload, pipeline.Trace, error) {

	d, err := e.store.Dataset(ctx, datasetID)
	if err != nil {
		return pipeline.Payload{}, nil, err
	}
	return e.pipelines.Execute(ctx, pipeline.Payload{Dataset: d}, stages)
}

// errorCode extracts the machine-readable code for metrics labels.
func errorCode(err error) string {
	var c interface{ Code() string }
	if errors.As(err, &c) {
		return c.Code()
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return analysis.CodeCancelled
	}
	return analysis.CodeComputation
}
