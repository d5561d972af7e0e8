package evaluate

import (
	"context"
	"fmt"
	"time"

	"fts-benchmark/internal/domain"
	"fts-benchmark/pkg/fts"
)

// IntervalEvaluator scores one-step interval forecasts.
type IntervalEvaluator struct {
	unit
}

func (e *IntervalEvaluator) Mode() domain.Mode { return domain.ModeInterval }

func (e *IntervalEvaluator) Evaluate(ctx context.Context, job domain.Job) domain.JobResult {
	started := time.Now()
	metrics, t, err := e.run(ctx, job)
	return finish(job, started, t, metrics, err)
}

func (e *IntervalEvaluator) run(ctx context.Context, job domain.Job) (map[string]float64, *trained, error) {
	t, err := e.fit(ctx, job, true)
	if err != nil {
		return nil, nil, err
	}
	model, ok := t.model.(fts.IntervalForecaster)
	if !ok {
		return nil, nil, fmt.Errorf("%s does not forecast intervals", t.model.Name())
	}
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	start := time.Now()
	ivs, err := model.ForecastInterval(t.transformedTest())
	if err != nil {
		return nil, nil, err
	}
	intervals := t.inverseIntervals(ivs)
	actual := t.actual()
	elapsed := time.Since(start)

	return map[string]float64{
		"sharpness":  fts.Sharpness(intervals),
		"resolution": fts.Resolution(intervals),
		"coverage":   fts.Coverage(actual, intervals),
		"Q05":        fts.Pinball(0.05, actual, intervals),
		"Q25":        fts.Pinball(0.25, actual, intervals),
		"Q75":        fts.Pinball(0.75, actual, intervals),
		"Q95":        fts.Pinball(0.95, actual, intervals),
		"time":       (t.fitTime + elapsed).Seconds(),
	}, t, nil
}
