package evaluate

import (
	"context"
	"fmt"
	"time"

	"gonum.org/v1/gonum/floats"

	"fts-benchmark/internal/domain"
	"fts-benchmark/pkg/fts"
)

const defaultSteps = 1

// AheadEvaluator scores multi-step interval and distribution forecasts with
// CRPS. Scores are computed in the transformed space, where the partition
// universe and the bins live.
type AheadEvaluator struct {
	unit
}

func (e *AheadEvaluator) Mode() domain.Mode { return domain.ModeAhead }

func (e *AheadEvaluator) Evaluate(ctx context.Context, job domain.Job) domain.JobResult {
	started := time.Now()
	metrics, t, err := e.run(ctx, job)
	return finish(job, started, t, metrics, err)
}

func (e *AheadEvaluator) run(ctx context.Context, job domain.Job) (map[string]float64, *trained, error) {
	t, err := e.fit(ctx, job, true)
	if err != nil {
		return nil, nil, err
	}
	ifc, ok := t.model.(fts.IntervalForecaster)
	if !ok {
		return nil, nil, fmt.Errorf("%s does not forecast intervals", t.model.Name())
	}
	dfc, ok := t.model.(fts.DistributionForecaster)
	if !ok {
		return nil, nil, fmt.Errorf("%s does not forecast distributions", t.model.Name())
	}

	steps := job.Args.Steps
	if steps <= 0 {
		steps = defaultSteps
	}
	order := t.model.Order()
	test := t.transformedTest()
	if len(test) < order+steps {
		return nil, nil, fmt.Errorf("test slice of %d values too short for %d steps", len(test), steps)
	}
	bins := e.bins(job, t.train, test)

	var crpsInterval, crpsDistribution []float64
	var intervalTime, distributionTime time.Duration
	for k := 0; k+order+steps <= len(test); k++ {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		sample := test[k : k+order]
		actual := test[k+order : k+order+steps]

		start := time.Now()
		ivs, err := ifc.ForecastAheadInterval(sample, steps)
		if err != nil {
			return nil, nil, err
		}
		dists := make([]fts.Distribution, len(ivs))
		for i, iv := range ivs {
			dists[i] = fts.IntervalDistribution(iv, bins)
		}
		crpsInterval = append(crpsInterval, fts.CRPS(dists, actual))
		intervalTime += time.Since(start)

		start = time.Now()
		dists, err = dfc.ForecastAheadDistribution(sample, steps, bins)
		if err != nil {
			return nil, nil, err
		}
		crpsDistribution = append(crpsDistribution, fts.CRPS(dists, actual))
		distributionTime += time.Since(start)
	}

	return map[string]float64{
		"CRPS_Interval":     average(crpsInterval),
		"CRPS_Distribution": average(crpsDistribution),
		"TIME_Interval":     (t.fitTime + intervalTime).Seconds(),
		"TIME_Distribution": (t.fitTime + distributionTime).Seconds(),
	}, t, nil
}

// bins covers the partition universe, or the widened data range when the
// job carries no partition.
func (e *AheadEvaluator) bins(job domain.Job, train, test []float64) []float64 {
	lo, hi := job.Partition.Universe()
	if len(job.Partition.Sets) == 0 {
		all := append(append([]float64{}, train...), test...)
		lo, hi = floats.Min(all), floats.Max(all)
		margin := (hi - lo) * 0.1
		lo, hi = lo-margin, hi+margin
	}
	return fts.Bins(lo, hi, job.Args.Resolution)
}

func average(x []float64) float64 {
	return floats.Sum(x) / float64(len(x))
}
