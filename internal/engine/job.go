package engine

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mapforge/spatialkit/internal/analysis"
)

// ErrJobRunning is returned by Outcome while the job has not finished.
var ErrJobRunning = errors.New("job still running")

// Job is the handle for an asynchronously submitted analysis. Callers
// poll Progress, block on Wait, or select on Done; Cancel stops the
// underlying computation cooperatively.
type Job struct {
	id       string
	category string
	method   string
	created  time.Time

	cancel context.CancelFunc
	done   chan struct{}

	mu       sync.Mutex
	fraction float64
	status   string
	result   *analysis.Result
	err      error
	finished time.Time
}

func newJob(category, method string, cancel context.CancelFunc) *Job {
	return &Job{
		id:       uuid.New().String(),
		category: category,
		method:   method,
		created:  time.Now(),
		cancel:   cancel,
		done:     make(chan struct{}),
	}
}

// ID returns the job's unique identifier.
func (j *Job) ID() string { return j.id }

// Method returns the job's category and method name.
func (j *Job) Method() (string, string) { return j.category, j.method }

// Done returns a channel closed when the job finishes.
func (j *Job) Done() <-chan struct{} { return j.done }

// Progress returns the latest fraction and status, plus whether the
// job has finished.
func (j *Job) Progress() (float64, string, bool) {
	j.mu.Lock()
	defer j.mu.Unlock()
	select {
	case <-j.done:
		return j.fraction, j.status, true
	default:
		return j.fraction, j.status, false
	}
}

// Outcome returns the result without blocking, or ErrJobRunning while
// the job is still in flight.
func (j *Job) Outcome() (*analysis.Result, error) {
	select {
	case <-j.done:
	default:
		return nil, ErrJobRunning
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.result, j.err
}

// Wait blocks until the job finishes or ctx expires. Cancelling ctx
// abandons the wait but does not cancel the job itself.
func (j *Job) Wait(ctx context.Context) (*analysis.Result, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-j.done:
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.result, j.err
}

// Cancel requests cooperative cancellation of the running analysis.
// Finished jobs are unaffected.
func (j *Job) Cancel() { j.cancel() }

func (j *Job) setProgress(fraction float64, status string) {
	j.mu.Lock()
	j.fraction = fraction
	j.status = status
	j.mu.Unlock()
}

func (j *Job) complete(result *analysis.Result, err error) {
	j.mu.Lock()
	j.result = result
	j.err = err
	j.finished = time.Now()
	if err == nil {
		j.fraction = 1
		j.status = "done"
	}
	j.mu.Unlock()
	close(j.done)
}

// retired reports whether a finished job has outlived the retention
// window and can be dropped from the job table.
func (j *Job) retired(now time.Time, retention time.Duration) bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	select {
	case <-j.done:
		return now.Sub(j.finished) > retention
	default:
		return false
	}
}
