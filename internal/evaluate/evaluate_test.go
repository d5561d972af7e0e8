package evaluate

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"fts-benchmark/internal/domain"
	"fts-benchmark/pkg/fts"
)

func newSet() Set {
	return NewSet(fts.Models(), zap.NewNop().Sugar())
}

func newJob(t *testing.T, mode domain.Mode, spec domain.ModelSpec, tr fts.TransformSpec) domain.Job {
	t.Helper()
	data := make([]float64, 200)
	for i := range data {
		data[i] = 50 + 5*math.Sin(float64(i)/4) + float64(i)*0.05
	}
	train, test := data[:160], data[160:]

	transformation, err := fts.NewTransformation(tr)
	require.NoError(t, err)
	partition, err := fts.GridPartitioner{}.Build(train, 12, transformation)
	require.NoError(t, err)

	return domain.Job{
		ID:             "job-1",
		Mode:           mode,
		Spec:           spec,
		Partition:      partition,
		Train:          train,
		Test:           test,
		Window:         3,
		Transformation: tr,
		Args:           domain.JobArgs{Steps: 3, Resolution: 0.5},
	}
}

func TestPointEvaluator(t *testing.T) {
	specs := []domain.ModelSpec{
		domain.NewModelSpec("CFTS", 1),
		domain.NewModelSpec("HOFTS", 2),
		domain.NewSpec("ARIMA").Params([]int{1, 0, 1}).BenchmarkOnly(true).Build(),
		domain.NewSpec("QAR").Params([]int{2}).BenchmarkOnly(true).Build(),
	}
	for _, spec := range specs {
		job := newJob(t, domain.ModePoint, spec, fts.TransformSpec{})
		res := newSet().Evaluate(context.Background(), job)

		require.True(t, res.Succeeded(), "%s: %v", spec, res.Failure)
		assert.Equal(t, 3, res.Window)
		assert.Equal(t, job.Key(), res.Success.Key)
		assert.Equal(t, "Grid", res.Success.Snapshot.Partitioner)
		assert.Equal(t, 12, res.Success.Snapshot.Partitions)
		assert.Positive(t, res.Success.Snapshot.Size)
		assert.ElementsMatch(t, []string{"rmse", "smape", "u", "time"}, keys(res.Success.Metrics))
		assert.Less(t, res.Success.Metrics["rmse"], 5.0, spec.String())
	}
}

func TestPointEvaluatorWithDifferencing(t *testing.T) {
	job := newJob(t, domain.ModePoint, domain.NewModelSpec("HOFTS", 2), fts.TransformSpec{Type: "diff", Lag: 1})
	res := newSet().Evaluate(context.Background(), job)

	require.True(t, res.Succeeded(), "%v", res.Failure)
	assert.Less(t, res.Success.Metrics["rmse"], 5.0)
}

func TestIntervalEvaluator(t *testing.T) {
	spec := domain.NewSpec("ARIMA").Params([]int{1, 0, 0}).Alpha(0.05).BenchmarkOnly(true).Build()
	job := newJob(t, domain.ModeInterval, spec, fts.TransformSpec{})
	res := newSet().Evaluate(context.Background(), job)

	require.True(t, res.Succeeded(), "%v", res.Failure)
	assert.ElementsMatch(t,
		[]string{"sharpness", "resolution", "coverage", "Q05", "Q25", "Q75", "Q95", "time"},
		keys(res.Success.Metrics))
	assert.Positive(t, res.Success.Metrics["sharpness"])
	assert.GreaterOrEqual(t, res.Success.Metrics["coverage"], 0.0)
	assert.LessOrEqual(t, res.Success.Metrics["coverage"], 1.0)
}

func TestAheadEvaluator(t *testing.T) {
	spec := domain.NewSpec("ARIMA").Params([]int{2, 0, 1}).Alpha(0.25).BenchmarkOnly(true).Build()
	job := newJob(t, domain.ModeAhead, spec, fts.TransformSpec{})
	res := newSet().Evaluate(context.Background(), job)

	require.True(t, res.Succeeded(), "%v", res.Failure)
	assert.ElementsMatch(t,
		[]string{"CRPS_Interval", "CRPS_Distribution", "TIME_Interval", "TIME_Distribution"},
		keys(res.Success.Metrics))
	assert.False(t, math.IsNaN(res.Success.Metrics["CRPS_Distribution"]))
	assert.GreaterOrEqual(t, res.Success.Metrics["CRPS_Interval"], 0.0)
}

func TestEvaluatorFailures(t *testing.T) {
	set := newSet()

	job := newJob(t, domain.ModePoint, domain.NewModelSpec("PWFTS", 1), fts.TransformSpec{})
	res := set.Evaluate(context.Background(), job)
	require.NotNil(t, res.Failure)
	assert.False(t, res.Succeeded())
	assert.Contains(t, res.Failure.Exception, "unknown model type")

	job = newJob(t, "seasonal", domain.NewModelSpec("CFTS", 1), fts.TransformSpec{})
	res = set.Evaluate(context.Background(), job)
	require.NotNil(t, res.Failure)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	job = newJob(t, domain.ModePoint, domain.NewModelSpec("CFTS", 1), fts.TransformSpec{})
	res = set.Evaluate(ctx, job)
	require.NotNil(t, res.Failure)
	assert.Equal(t, context.Canceled.Error(), res.Failure.Exception)
}

func keys(m map[string]float64) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
