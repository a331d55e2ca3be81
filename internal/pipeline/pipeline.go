package pipeline

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/mapforge/spatialkit/internal/analysis"
	"github.com/mapforge/spatialkit/internal/dataset"
)

// Payload is the value threaded between stages: a dataset, a result,
// or both. Stages are pure functions over payloads; a stage that
// transforms features returns a new dataset, never a mutated one.
type Payload struct {
	Dataset *dataset.Dataset
	Result  *analysis.Result
}

// StageFunc applies one transformation.
type StageFunc func(ctx context.Context, in Payload) (Payload, error)

// Stage is one named step in an ordered pipeline definition.
type Stage struct {
	Name string
	Run  StageFunc
}

// StageResult records one stage's outcome in the trace.
type StageResult struct {
	Stage   string        `json:"stage"`
	Elapsed time.Duration `json:"elapsed"`
	Err     string        `json:"error,omitempty"`
}

// Trace is the ordered record of executed stages. A short-circuited
// pipeline's trace ends at the failing stage; later stages never
// appear because they never ran.
type Trace []StageResult

// Orchestrator runs pipelines. It holds no per-run state: the same
// stage list can execute concurrently on different datasets.
type Orchestrator struct {
	logger *zap.Logger
}

// New creates an orchestrator.
func New(logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{logger: logger}
}

// Execute runs stages strictly in order, each receiving the previous
// stage's output. A stage failure halts the pipeline immediately and
// returns the partial trace plus the failure.
func (o *Orchestrator) Execute(ctx context.Context, in Payload, stages []Stage) (Payload, Trace, error) {
	trace := make(Trace, 0, len(stages))
	current := in

	for i, stage := range stages {
		if stage.Run == nil {
			return current, trace, fmt.Errorf("stage %q (position %d) has no function", stage.Name, i)
		}
		if err := ctx.Err(); err != nil {
			return current, trace, err
		}

		start := time.Now()
		next, err := stage.Run(ctx, current)
		elapsed := time.Since(start)

		if err != nil {
			trace = append(trace, StageResult{Stage: stage.Name, Elapsed: elapsed, Err: err.Error()})
			o.logger.Warn("pipeline stage failed",
				zap.String("stage", stage.Name),
				zap.Int("position", i),
				zap.Error(err))
			return current, trace, fmt.Errorf("stage %q: %w", stage.Name, err)
		}

		trace = append(trace, StageResult{Stage: stage.Name, Elapsed: elapsed})
		o.logger.Debug("pipeline stage completed",
			zap.String("stage", stage.Name),
			zap.Duration("elapsed", elapsed))
		current = next
	}

	return current, trace, nil
}
