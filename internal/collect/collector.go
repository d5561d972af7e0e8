// Package collect drains job handles into a result table keyed by
// configuration identity.
package collect

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"fts-benchmark/internal/cluster"
	"fts-benchmark/internal/domain"
	"fts-benchmark/internal/metrics"
)

// FailureReport describes a job that produced no result.
type FailureReport struct {
	JobID     string `json:"job_id"`
	Window    int    `json:"window"`
	Exception string `json:"exception"`
	Output    string `json:"output,omitempty"`
}

// Collector waits on handles one at a time and accumulates their outcomes.
type Collector struct {
	logger   *zap.SugaredLogger
	timeout  time.Duration
	mode     domain.Mode
	observer func(domain.JobResult)
}

type Option func(*Collector)

// WithMode labels collection metrics.
func WithMode(mode domain.Mode) Option {
	return func(c *Collector) { c.mode = mode }
}

// WithObserver is called with every result, failures included, in handle order.
func WithObserver(f func(domain.JobResult)) Option {
	return func(c *Collector) { c.observer = f }
}

// New returns a collector bounding each wait by timeout. A zero timeout
// leaves the deadline to the cluster.
func New(logger *zap.SugaredLogger, timeout time.Duration, opts ...Option) *Collector {
	c := &Collector{logger: logger, timeout: timeout, mode: domain.ModePoint}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Collect drains handles in order. Failures are logged and reported, never
// returned as errors; zero successes give an empty table.
func (c *Collector) Collect(ctx context.Context, handles []cluster.Handle) (*ResultTable, []FailureReport) {
	table := NewResultTable()
	var failures []FailureReport

	for _, h := range handles {
		start := time.Now()
		res := c.wait(ctx, h)
		metrics.JobWait.WithLabelValues(string(c.mode)).Observe(time.Since(start).Seconds())

		if c.observer != nil {
			c.observer(res)
		}

		if !res.Succeeded() {
			metrics.JobsCompleted.WithLabelValues(string(c.mode), metrics.StatusFailure).Inc()
			failure := res.Failure
			if failure == nil {
				failure = &domain.Failure{Exception: domain.ErrEmptyResult.Error()}
			}
			c.logger.Errorw("Job failed",
				"job", res.JobID,
				"window", res.Window,
				"exception", failure.Exception,
				"output", failure.Output)
			failures = append(failures, FailureReport{
				JobID:     res.JobID,
				Window:    res.Window,
				Exception: failure.Exception,
				Output:    failure.Output,
			})
			continue
		}

		metrics.JobsCompleted.WithLabelValues(string(c.mode), metrics.StatusSuccess).Inc()
		table.Add(*res.Success, res.Window)
	}
	return table, failures
}

// wait turns deadline and transport errors into failed results.
func (c *Collector) wait(ctx context.Context, h cluster.Handle) domain.JobResult {
	waitCtx := ctx
	if c.timeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	res, err := h.Wait(waitCtx)
	if err == nil {
		return res
	}
	if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
		err = fmt.Errorf("%w after %s", domain.ErrJobTimeout, c.timeout)
	}
	return domain.JobResult{
		JobID:   h.JobID(),
		Window:  h.Window(),
		Failure: &domain.Failure{Exception: err.Error()},
	}
}
