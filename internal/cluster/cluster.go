// Package cluster executes benchmark jobs and hands back future results.
package cluster

import (
	"context"
	"errors"

	"fts-benchmark/internal/domain"
)

var ErrClosed = errors.New("cluster is closed")

// Handle is the future result of one submitted job.
type Handle interface {
	JobID() string
	Window() int
	// Wait blocks until the result is available or ctx is done.
	Wait(ctx context.Context) (domain.JobResult, error)
}

// Cluster runs jobs. Submit never waits for the job to complete.
type Cluster interface {
	Submit(ctx context.Context, job domain.Job) (Handle, error)
	Close() error
}

// Factory opens a cluster for one benchmark run.
type Factory func(ctx context.Context) (Cluster, error)

// Evaluator computes the result of a job.
type Evaluator interface {
	Evaluate(ctx context.Context, job domain.Job) domain.JobResult
}

type future struct {
	id     string
	window int
	done   chan struct{}
	result domain.JobResult
}

func newFuture(id string, window int) *future {
	return &future{id: id, window: window, done: make(chan struct{})}
}

func (f *future) resolve(result domain.JobResult) {
	f.result = result
	close(f.done)
}

func (f *future) JobID() string { return f.id }

func (f *future) Window() int { return f.window }

func (f *future) Wait(ctx context.Context) (domain.JobResult, error) {
	select {
	case <-f.done:
		return f.result, nil
	case <-ctx.Done():
		return domain.JobResult{}, ctx.Err()
	}
}

// Resolved returns a handle that is already complete.
func Resolved(result domain.JobResult) Handle {
	f := newFuture(result.JobID, result.Window)
	f.resolve(result)
	return f
}
