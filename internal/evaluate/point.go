package evaluate

import (
	"context"
	"time"

	"fts-benchmark/internal/domain"
	"fts-benchmark/pkg/fts"
)

// PointEvaluator scores one-step point forecasts with rmse, smape, u and time.
type PointEvaluator struct {
	unit
}

func (e *PointEvaluator) Mode() domain.Mode { return domain.ModePoint }

func (e *PointEvaluator) Evaluate(ctx context.Context, job domain.Job) domain.JobResult {
	started := time.Now()
	metrics, t, err := e.run(ctx, job)
	return finish(job, started, t, metrics, err)
}

func (e *PointEvaluator) run(ctx context.Context, job domain.Job) (map[string]float64, *trained, error) {
	t, err := e.fit(ctx, job, true)
	if err != nil {
		return nil, nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	start := time.Now()
	fc, err := t.model.Forecast(t.transformedTest())
	if err != nil {
		return nil, nil, err
	}
	forecasts := t.inverse(fc)
	actual := t.actual()
	elapsed := time.Since(start)

	return map[string]float64{
		"rmse":  fts.RMSE(actual, forecasts),
		"smape": fts.SMAPE(actual, forecasts),
		"u":     fts.UStatistic(actual, forecasts),
		"time":  (t.fitTime + elapsed).Seconds(),
	}, t, nil
}
