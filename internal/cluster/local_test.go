package cluster

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"fts-benchmark/internal/domain"
)

type evaluatorFunc func(ctx context.Context, job domain.Job) domain.JobResult

func (f evaluatorFunc) Evaluate(ctx context.Context, job domain.Job) domain.JobResult {
	return f(ctx, job)
}

func succeed(_ context.Context, job domain.Job) domain.JobResult {
	return domain.Succeed(job, domain.Snapshot{Spec: job.Spec}, map[string]float64{"rmse": float64(job.Window)})
}

func TestLocalRunsJobs(t *testing.T) {
	defer goleak.VerifyNone(t)

	c := NewLocal(evaluatorFunc(succeed), 2, zap.NewNop().Sugar())
	var handles []Handle
	for i := range 5 {
		h, err := c.Submit(context.Background(), domain.Job{ID: string(rune('a' + i)), Window: i})
		require.NoError(t, err)
		handles = append(handles, h)
	}

	for i, h := range handles {
		res, err := h.Wait(context.Background())
		require.NoError(t, err)
		require.True(t, res.Succeeded())
		assert.Equal(t, h.JobID(), res.JobID)
		assert.Equal(t, float64(i), res.Success.Metrics["rmse"])
	}
	require.NoError(t, c.Close())
}

func TestLocalBoundsConcurrency(t *testing.T) {
	defer goleak.VerifyNone(t)

	var running, peak atomic.Int32
	eval := evaluatorFunc(func(ctx context.Context, job domain.Job) domain.JobResult {
		n := running.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		running.Add(-1)
		return succeed(ctx, job)
	})

	c := NewLocal(eval, 3, zap.NewNop().Sugar())
	var handles []Handle
	for range 20 {
		h, err := c.Submit(context.Background(), domain.Job{ID: "job"})
		require.NoError(t, err)
		handles = append(handles, h)
	}
	for _, h := range handles {
		_, err := h.Wait(context.Background())
		require.NoError(t, err)
	}
	require.NoError(t, c.Close())
	assert.LessOrEqual(t, peak.Load(), int32(3))
}

func TestLocalRecoversPanics(t *testing.T) {
	defer goleak.VerifyNone(t)

	c := NewLocal(evaluatorFunc(func(context.Context, domain.Job) domain.JobResult {
		panic("singular matrix")
	}), 1, zap.NewNop().Sugar())
	defer c.Close()

	h, err := c.Submit(context.Background(), domain.Job{ID: "job-1", Window: 4})
	require.NoError(t, err)
	res, err := h.Wait(context.Background())
	require.NoError(t, err)

	require.NotNil(t, res.Failure)
	assert.Equal(t, 4, res.Window)
	assert.Contains(t, res.Failure.Exception, "singular matrix")
	assert.Contains(t, res.Failure.Output, "goroutine")
}

func TestLocalCloseCancelsPendingJobs(t *testing.T) {
	defer goleak.VerifyNone(t)

	release := make(chan struct{})
	c := NewLocal(evaluatorFunc(func(ctx context.Context, job domain.Job) domain.JobResult {
		select {
		case <-release:
		case <-ctx.Done():
			return domain.Fail(job, ctx.Err(), "")
		}
		return succeed(ctx, job)
	}), 1, zap.NewNop().Sugar())

	running, err := c.Submit(context.Background(), domain.Job{ID: "running"})
	require.NoError(t, err)
	queued, err := c.Submit(context.Background(), domain.Job{ID: "queued"})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = queued.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	require.NoError(t, c.Close())
	close(release)

	for _, h := range []Handle{running, queued} {
		res, err := h.Wait(context.Background())
		require.NoError(t, err)
		require.NotNil(t, res.Failure, h.JobID())
		assert.Equal(t, context.Canceled.Error(), res.Failure.Exception)
	}

	_, err = c.Submit(context.Background(), domain.Job{ID: "late"})
	assert.True(t, errors.Is(err, ErrClosed))
}

func TestResolved(t *testing.T) {
	res := domain.Fail(domain.Job{ID: "job-9", Window: 2}, errors.New("partitioner failed"), "")
	h := Resolved(res)
	assert.Equal(t, "job-9", h.JobID())

	got, err := h.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, res, got)
}
