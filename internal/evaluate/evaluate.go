// Package evaluate runs one benchmark job: it trains the configured model on
// the window's train slice and scores it on the test slice.
package evaluate

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"fts-benchmark/internal/domain"
	"fts-benchmark/pkg/fts"
)

// Evaluator is the evaluation unit of one benchmark mode.
type Evaluator interface {
	Mode() domain.Mode
	Evaluate(ctx context.Context, job domain.Job) domain.JobResult
}

// Metrics returns the metric names reported in mode, in report order.
func Metrics(mode domain.Mode) []string {
	switch mode {
	case domain.ModeInterval:
		return []string{"sharpness", "resolution", "coverage", "Q05", "Q25", "Q75", "Q95", "time"}
	case domain.ModeAhead:
		return []string{"CRPS_Interval", "CRPS_Distribution", "TIME_Interval", "TIME_Distribution"}
	default:
		return []string{"rmse", "smape", "u", "time"}
	}
}

// Set holds one evaluator per mode.
type Set map[domain.Mode]Evaluator

// NewSet builds the evaluators of every mode over the same model registry.
func NewSet(registry fts.Registry, logger *zap.SugaredLogger) Set {
	base := unit{registry: registry, logger: logger}
	return Set{
		domain.ModePoint:    &PointEvaluator{unit: base},
		domain.ModeInterval: &IntervalEvaluator{unit: base},
		domain.ModeAhead:    &AheadEvaluator{unit: base},
	}
}

// Evaluate dispatches job to the evaluator of its mode.
func (s Set) Evaluate(ctx context.Context, job domain.Job) domain.JobResult {
	e, ok := s[job.Mode]
	if !ok {
		return domain.Fail(job, fmt.Errorf("no evaluator for mode %q", job.Mode), "")
	}
	return e.Evaluate(ctx, job)
}

// unit holds what all evaluators share.
type unit struct {
	registry fts.Registry
	logger   *zap.SugaredLogger
}

// trained is a fitted model plus the data views it was fitted on.
type trained struct {
	model    fts.Model
	tr       fts.Transformation
	train    []float64
	test     []float64
	fitTime  time.Duration
	snapshot domain.Snapshot
}

// fit builds and trains the job's model. When transform is set the model
// sees the transformed series.
func (u unit) fit(ctx context.Context, job domain.Job, transform bool) (*trained, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	model, err := u.registry.New(job.Spec.Type, job.Spec.Order, job.Spec.Params, job.Spec.Alpha)
	if err != nil {
		return nil, err
	}
	tr, err := fts.NewTransformation(job.Transformation)
	if err != nil {
		return nil, err
	}

	t := &trained{model: model, tr: fts.Identity{}, train: job.Train, test: job.Test}
	if transform {
		t.tr = tr
		t.train = tr.Apply(job.Train)
	}
	if len(t.test) < model.Order()+t.tr.Offset()+1 {
		return nil, fmt.Errorf("test slice of %d values too short for %s", len(t.test), model.Name())
	}

	var partition *fts.Partition
	if len(job.Partition.Sets) > 0 {
		partition = &job.Partition
	}

	start := time.Now()
	if err := model.Fit(t.train, partition); err != nil {
		return nil, fmt.Errorf("fit %s: %w", model.Name(), err)
	}
	t.fitTime = time.Since(start)
	t.snapshot = domain.Snapshot{
		Spec:        job.Spec,
		Partitioner: job.Partition.Scheme,
		Partitions:  job.Partition.Partitions,
		Size:        model.Size(),
	}

	u.logger.Debugw("Model fitted",
		"job", job.ID,
		"model", model.Name(),
		"window", job.Window,
		"size", model.Size(),
		"elapsed", t.fitTime)
	return t, nil
}

// transformedTest is the test slice in model space.
func (t *trained) transformedTest() []float64 {
	return t.tr.Apply(t.test)
}

// actual returns the observations aligned with one-step forecasts of the
// transformed test slice.
func (t *trained) actual() []float64 {
	return t.test[t.model.Order()+t.tr.Offset():]
}

func (t *trained) inverse(fc []float64) []float64 {
	return t.tr.Inverse(fc, t.test, t.model.Order())
}

func (t *trained) inverseIntervals(ivs []fts.Interval) []fts.Interval {
	lower := make([]float64, len(ivs))
	upper := make([]float64, len(ivs))
	for i, iv := range ivs {
		lower[i], upper[i] = iv.Lower, iv.Upper
	}
	lower, upper = t.inverse(lower), t.inverse(upper)
	out := make([]fts.Interval, len(ivs))
	for i := range ivs {
		out[i] = fts.Interval{Lower: lower[i], Upper: upper[i]}
	}
	return out
}

func finish(job domain.Job, started time.Time, t *trained, metrics map[string]float64, err error) domain.JobResult {
	var res domain.JobResult
	if err != nil {
		res = domain.Fail(job, err, "")
	} else {
		res = domain.Succeed(job, t.snapshot, metrics)
	}
	res.Duration = time.Since(started)
	return res
}
