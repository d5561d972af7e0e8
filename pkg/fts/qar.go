package fts

import (
	"fmt"
	"math"
	"slices"

	"gonum.org/v1/gonum/mat"
)

// qar is a linear quantile autoregression. The median drives point forecasts
// and the alpha and 1-alpha quantiles bound intervals.
type qar struct {
	p     int
	alpha float64

	median, lower, upper []float64
}

func newQAR(order int, params []int, alpha float64) (Model, error) {
	p := order
	if len(params) > 0 {
		p = params[0]
	}
	if p < 1 {
		return nil, fmt.Errorf("QAR: invalid order %d", p)
	}
	if alpha <= 0 {
		alpha = defaultAlpha
	}
	if alpha >= 0.5 {
		return nil, fmt.Errorf("QAR: alpha %.2f must be below 0.5", alpha)
	}
	return &qar{p: p, alpha: alpha}, nil
}

func (m *qar) Name() string { return fmt.Sprintf("QAR(%d)", m.p) }

func (m *qar) Order() int { return m.p }

func (m *qar) Size() int { return 3 * (m.p + 1) }

func (m *qar) Fit(data []float64, _ *Partition) error {
	start, err := ols(data, m.p)
	if err != nil {
		return fmt.Errorf("%s: %w", m.Name(), err)
	}
	x, y := lagDesign(data, m.p)
	fit := func(tau float64) []float64 {
		coef, err := minimize(func(b []float64) float64 {
			return quantileLoss(tau, x, y, b)
		}, start)
		if err != nil {
			return slices.Clone(start)
		}
		return coef
	}
	m.median = fit(0.5)
	m.lower = fit(m.alpha)
	m.upper = fit(1 - m.alpha)
	return nil
}

func quantileLoss(tau float64, x *mat.Dense, y *mat.VecDense, b []float64) float64 {
	rows, _ := x.Dims()
	coef := mat.NewVecDense(len(b), b)
	var sum float64
	for r := 0; r < rows; r++ {
		sum += pinballLoss(tau, y.AtVec(r), mat.Dot(x.RowView(r), coef))
	}
	if math.IsNaN(sum) {
		return math.Inf(1)
	}
	return sum
}

func (m *qar) predict(coef, sample []float64) float64 {
	v := coef[0]
	for i := 1; i <= m.p; i++ {
		v += coef[i] * sample[len(sample)-i]
	}
	return v
}

func (m *qar) ready(data []float64) error {
	if m.median == nil {
		return fmt.Errorf("%s: %w", m.Name(), ErrNotFitted)
	}
	if len(data) < m.p {
		return fmt.Errorf("%s: %w", m.Name(), ErrShortSample)
	}
	return nil
}

func (m *qar) Forecast(data []float64) ([]float64, error) {
	if err := m.ready(data); err != nil {
		return nil, err
	}
	out := make([]float64, len(data)-m.p)
	for k := range out {
		out[k] = m.predict(m.median, data[k:k+m.p])
	}
	return out, nil
}

func (m *qar) interval(sample []float64) Interval {
	lo, hi := m.predict(m.lower, sample), m.predict(m.upper, sample)
	if lo > hi {
		lo, hi = hi, lo
	}
	return Interval{Lower: lo, Upper: hi}
}

func (m *qar) ForecastInterval(data []float64) ([]Interval, error) {
	if err := m.ready(data); err != nil {
		return nil, err
	}
	out := make([]Interval, len(data)-m.p)
	for k := range out {
		out[k] = m.interval(data[k : k+m.p])
	}
	return out, nil
}

func (m *qar) ForecastAheadInterval(data []float64, steps int) ([]Interval, error) {
	if err := m.ready(data); err != nil {
		return nil, err
	}
	sample := slices.Clone(data[len(data)-m.p:])
	out := make([]Interval, steps)
	for h := range steps {
		out[h] = m.interval(sample)
		sample = append(sample[1:], m.predict(m.median, sample))
	}
	return out, nil
}

func (m *qar) ForecastAheadDistribution(data []float64, steps int, bins []float64) ([]Distribution, error) {
	intervals, err := m.ForecastAheadInterval(data, steps)
	if err != nil {
		return nil, err
	}
	out := make([]Distribution, steps)
	for h, iv := range intervals {
		out[h] = IntervalDistribution(iv, bins)
	}
	return out, nil
}
