package cluster

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"fts-benchmark/internal/domain"
)

// Local runs jobs on a bounded set of goroutines in this process.
type Local struct {
	evaluator Evaluator
	sem       *semaphore.Weighted
	logger    *zap.SugaredLogger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	closed atomic.Bool
}

// NewLocal runs at most workers jobs concurrently.
func NewLocal(evaluator Evaluator, workers int, logger *zap.SugaredLogger) *Local {
	if workers < 1 {
		workers = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Local{
		evaluator: evaluator,
		sem:       semaphore.NewWeighted(int64(workers)),
		logger:    logger,
		ctx:       ctx,
		cancel:    cancel,
	}
}

func (l *Local) Submit(_ context.Context, job domain.Job) (Handle, error) {
	if l.closed.Load() {
		return nil, ErrClosed
	}
	f := newFuture(job.ID, job.Window)
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		if err := l.sem.Acquire(l.ctx, 1); err != nil {
			f.resolve(domain.Fail(job, err, ""))
			return
		}
		defer l.sem.Release(1)
		f.resolve(l.run(job))
	}()
	return f, nil
}

// run evaluates job, turning a panic into a failure carrying the stack.
func (l *Local) run(job domain.Job) (result domain.JobResult) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			l.logger.Errorw("Evaluation panicked", "job", job.ID, "panic", r)
			result = domain.Fail(job, fmt.Errorf("panic: %v", r), string(debug.Stack()))
			result.Duration = time.Since(start)
		}
	}()
	return l.evaluator.Evaluate(l.ctx, job)
}

// Close cancels queued and running jobs and waits for their goroutines.
func (l *Local) Close() error {
	if !l.closed.CompareAndSwap(false, true) {
		return nil
	}
	l.cancel()
	l.wg.Wait()
	return nil
}
