package fts

import (
	"errors"
	"fmt"
	"sort"
)

var (
	ErrNotFitted    = errors.New("model is not fitted")
	ErrShortSample  = errors.New("sample shorter than model order")
	ErrNoPartition  = errors.New("model requires a partition")
	ErrUnknownModel = errors.New("unknown model type")
)

// Model is a trained one-step forecaster.
type Model interface {
	Name() string
	Order() int
	// Fit trains on data. Partition-free models ignore p.
	Fit(data []float64, p *Partition) error
	// Forecast returns len(data)-Order() values; out[k] predicts data[k+Order()].
	Forecast(data []float64) ([]float64, error)
	// Size is the number of rules or coefficients learned.
	Size() int
}

// Interval is a forecast range.
type Interval struct {
	Lower float64 `json:"lower"`
	Upper float64 `json:"upper"`
}

func (i Interval) Width() float64 { return i.Upper - i.Lower }

func (i Interval) Midpoint() float64 { return (i.Lower + i.Upper) / 2 }

// IntervalForecaster is implemented by models that forecast ranges.
type IntervalForecaster interface {
	Model
	// ForecastInterval follows the indexing of Forecast.
	ForecastInterval(data []float64) ([]Interval, error)
	// ForecastAheadInterval returns steps ranges following the end of data.
	ForecastAheadInterval(data []float64, steps int) ([]Interval, error)
}

// DistributionForecaster is implemented by models that forecast densities.
type DistributionForecaster interface {
	Model
	ForecastAheadDistribution(data []float64, steps int, bins []float64) ([]Distribution, error)
}

// Constructor builds an untrained model. Params and alpha are only read by
// benchmark models.
type Constructor func(order int, params []int, alpha float64) (Model, error)

// Descriptor holds the metadata of a model family.
type Descriptor struct {
	Type      string
	HighOrder bool
	MinOrder  int
	Baseline  bool
	New       Constructor
}

func (d Descriptor) Name() string        { return d.Type }
func (d Descriptor) IsHighOrder() bool   { return d.HighOrder }
func (d Descriptor) MinimumOrder() int   { return d.MinOrder }
func (d Descriptor) BenchmarkOnly() bool { return d.Baseline }

// Registry maps model type names to descriptors.
type Registry map[string]Descriptor

// Models returns the built-in model families.
func Models() Registry {
	return Registry{
		"CFTS":  {Type: "CFTS", MinOrder: 1, New: newCFTS},
		"HOFTS": {Type: "HOFTS", HighOrder: true, MinOrder: 2, New: newHOFTS},
		"ARIMA": {Type: "ARIMA", MinOrder: 1, Baseline: true, New: newARIMA},
		"QAR":   {Type: "QAR", MinOrder: 1, Baseline: true, New: newQAR},
	}
}

// Lookup returns the descriptor registered under name.
func (r Registry) Lookup(name string) (Descriptor, error) {
	d, ok := r[name]
	if !ok {
		return Descriptor{}, fmt.Errorf("%w: %s", ErrUnknownModel, name)
	}
	return d, nil
}

// New builds an untrained model of the named type.
func (r Registry) New(name string, order int, params []int, alpha float64) (Model, error) {
	d, err := r.Lookup(name)
	if err != nil {
		return nil, err
	}
	return d.New(order, params, alpha)
}

// Types lists the registered names in sorted order.
func (r Registry) Types() []string {
	out := make([]string, 0, len(r))
	for name := range r {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
