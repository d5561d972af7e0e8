// Package pool enumerates the model configurations evaluated on every window.
package pool

import (
	"fts-benchmark/internal/domain"
	"fts-benchmark/pkg/fts"
)

// Family is the metadata of a model family the pool needs.
type Family interface {
	Name() string
	IsHighOrder() bool
	MinimumOrder() int
	BenchmarkOnly() bool
}

// Build returns the model pool: family specs first, then benchmark specs, in
// input order. High-order families get one spec per order from their
// minimum up to maxOrder; orders below the minimum are skipped. Benchmarks
// pair positionally with benchmarkParams and get one spec per alpha.
func Build(families []Family, maxOrder int, benchmarks []Family, benchmarkParams [][]int, alphas []float64) ([]domain.ModelSpec, error) {
	if len(benchmarks) != len(benchmarkParams) {
		return nil, domain.NewConfigError("benchmark_params",
			"%d benchmark models but %d parameter sets", len(benchmarks), len(benchmarkParams))
	}
	if maxOrder < 1 {
		return nil, domain.NewConfigError("max_order", "must be at least 1, got %d", maxOrder)
	}
	for _, a := range alphas {
		if a <= 0 || a >= 1 {
			return nil, domain.NewConfigError("alphas", "%v outside (0,1)", a)
		}
	}

	var specs []domain.ModelSpec
	for _, f := range families {
		if !f.IsHighOrder() {
			specs = append(specs, domain.NewSpec(f.Name()).BenchmarkOnly(f.BenchmarkOnly()).Build())
			continue
		}
		for order := max(1, f.MinimumOrder()); order <= maxOrder; order++ {
			specs = append(specs, domain.NewSpec(f.Name()).Order(order).BenchmarkOnly(f.BenchmarkOnly()).Build())
		}
	}

	for i, b := range benchmarks {
		builder := domain.NewSpec(b.Name()).Params(benchmarkParams[i]).BenchmarkOnly(true)
		if len(alphas) == 0 {
			specs = append(specs, builder.Build())
			continue
		}
		for _, a := range alphas {
			specs = append(specs, builder.Alpha(a).Build())
		}
	}
	return specs, nil
}

// Resolve looks up family names in the registry.
func Resolve(registry fts.Registry, field string, names []string) ([]Family, error) {
	out := make([]Family, 0, len(names))
	for _, name := range names {
		d, err := registry.Lookup(name)
		if err != nil {
			return nil, &domain.ConfigError{Field: field, Err: err}
		}
		out = append(out, d)
	}
	return out, nil
}

// Defaults are the per-mode choices used when a run names no models.
type Defaults struct {
	Models          []string
	Benchmarks      []string
	BenchmarkParams [][]int
	Alphas          []float64
}

// DefaultsFor returns the defaults of mode.
func DefaultsFor(mode domain.Mode) Defaults {
	models := []string{"CFTS", "HOFTS"}
	switch mode {
	case domain.ModeInterval:
		return Defaults{
			Models:          models,
			Benchmarks:      []string{"ARIMA", "ARIMA", "ARIMA", "ARIMA", "QAR", "QAR"},
			BenchmarkParams: [][]int{{1, 0, 0}, {1, 0, 1}, {2, 0, 1}, {2, 0, 2}, {1}, {2}},
			Alphas:          []float64{0.05, 0.25},
		}
	case domain.ModeAhead:
		return Defaults{
			Models:          models,
			Benchmarks:      []string{"ARIMA", "ARIMA", "ARIMA", "ARIMA", "ARIMA"},
			BenchmarkParams: [][]int{{1, 0, 0}, {1, 0, 1}, {2, 0, 0}, {2, 0, 1}, {2, 0, 2}},
			Alphas:          []float64{0.05, 0.25},
		}
	default:
		return Defaults{
			Models:          models,
			Benchmarks:      []string{"ARIMA", "ARIMA", "ARIMA", "ARIMA", "QAR", "QAR"},
			BenchmarkParams: [][]int{{1, 0, 0}, {1, 0, 1}, {2, 0, 1}, {2, 0, 2}, {1}, {2}},
		}
	}
}
