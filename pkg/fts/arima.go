package fts

import (
	"fmt"
	"math"
	"slices"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

const defaultAlpha = 0.05

// arima is an ARIMA(p,d,q) benchmark fitted by conditional sum of squares.
type arima struct {
	p, d, q int
	alpha   float64

	intercept float64
	phi       []float64
	theta     []float64
	sigma     float64
	fitted    bool
}

func newARIMA(_ int, params []int, alpha float64) (Model, error) {
	if len(params) != 3 {
		return nil, fmt.Errorf("ARIMA: expected (p,d,q), got %v", params)
	}
	p, d, q := params[0], params[1], params[2]
	if p < 0 || d < 0 || q < 0 || p+q == 0 {
		return nil, fmt.Errorf("ARIMA: invalid order (%d,%d,%d)", p, d, q)
	}
	if alpha <= 0 {
		alpha = defaultAlpha
	}
	return &arima{p: p, d: d, q: q, alpha: alpha}, nil
}

func (m *arima) Name() string {
	return fmt.Sprintf("ARIMA(%d,%d,%d)", m.p, m.d, m.q)
}

func (m *arima) Order() int { return max(m.p+m.d, 1) }

func (m *arima) Size() int { return m.p + m.q + 1 }

func (m *arima) Fit(data []float64, _ *Partition) error {
	z := difference(data, m.d)
	start := max(m.p, m.q)
	if len(z)-start < m.p+m.q+2 {
		return fmt.Errorf("%s: %w", m.Name(), ErrShortSample)
	}

	coef := make([]float64, 1+m.p)
	if m.p > 0 {
		var err error
		if coef, err = ols(z, m.p); err != nil {
			return fmt.Errorf("%s: %w", m.Name(), err)
		}
	} else {
		coef[0] = stat.Mean(z, nil)
	}

	initial := append(coef, make([]float64, m.q)...)
	best := initial
	if m.q > 0 {
		x, err := minimize(func(x []float64) float64 {
			return m.css(z, x)
		}, initial)
		if err == nil && !math.IsInf(m.css(z, x), 0) {
			best = x
		}
	}

	m.intercept = best[0]
	m.phi = slices.Clone(best[1 : 1+m.p])
	m.theta = slices.Clone(best[1+m.p:])
	m.sigma = math.Sqrt(m.css(z, best) / float64(len(z)-start))
	m.fitted = true
	return nil
}

// css is the conditional sum of squared residuals of coefficients x on z.
func (m *arima) css(z, x []float64) float64 {
	c, phi, theta := x[0], x[1:1+m.p], x[1+m.p:]
	// keep the MA part invertible
	for _, t := range theta {
		if math.Abs(t) >= 1 {
			return math.Inf(1)
		}
	}
	_, residuals := m.filter(z, c, phi, theta)
	var sum float64
	for _, e := range residuals[max(m.p, m.q):] {
		sum += e * e
	}
	return sum
}

// filter returns the one-step predictions and residuals of z. Predictions
// before the first p observations are undefined and left at zero.
func (m *arima) filter(z []float64, c float64, phi, theta []float64) ([]float64, []float64) {
	pred := make([]float64, len(z))
	res := make([]float64, len(z))
	for t := m.p; t < len(z); t++ {
		pred[t] = m.step(z, res, t, c, phi, theta)
		res[t] = z[t] - pred[t]
	}
	return pred, res
}

func (m *arima) step(z, res []float64, t int, c float64, phi, theta []float64) float64 {
	v := c
	for i, f := range phi {
		v += f * z[t-1-i]
	}
	for j, th := range theta {
		if t-1-j >= 0 {
			v += th * res[t-1-j]
		}
	}
	return v
}

func (m *arima) Forecast(data []float64) ([]float64, error) {
	if !m.fitted {
		return nil, fmt.Errorf("%s: %w", m.Name(), ErrNotFitted)
	}
	order := m.Order()
	if len(data) < order {
		return nil, fmt.Errorf("%s: %w", m.Name(), ErrShortSample)
	}
	z := difference(data, m.d)
	pred, _ := m.filter(z, m.intercept, m.phi, m.theta)

	out := make([]float64, len(data)-order)
	for k := range out {
		idx := k + order
		out[k] = integrate(pred[idx-m.d], data[:idx], m.d)
	}
	return out, nil
}

func (m *arima) ForecastInterval(data []float64) ([]Interval, error) {
	points, err := m.Forecast(data)
	if err != nil {
		return nil, err
	}
	out := make([]Interval, len(points))
	for i, p := range points {
		out[i] = m.band(p, 1)
	}
	return out, nil
}

// forecastAhead extends data by steps recursive point forecasts.
func (m *arima) forecastAhead(data []float64, steps int) ([]float64, error) {
	if !m.fitted {
		return nil, fmt.Errorf("%s: %w", m.Name(), ErrNotFitted)
	}
	if len(data) < m.Order() {
		return nil, fmt.Errorf("%s: %w", m.Name(), ErrShortSample)
	}
	x := slices.Clone(data)
	z := slices.Clone(difference(x, m.d))
	_, res := m.filter(z, m.intercept, m.phi, m.theta)

	out := make([]float64, steps)
	for h := range steps {
		t := len(z)
		z = append(z, 0)
		res = append(res, 0)
		zhat := m.step(z, res, t, m.intercept, m.phi, m.theta)
		z[t] = zhat
		out[h] = integrate(zhat, x, m.d)
		x = append(x, out[h])
	}
	return out, nil
}

func (m *arima) ForecastAheadInterval(data []float64, steps int) ([]Interval, error) {
	points, err := m.forecastAhead(data, steps)
	if err != nil {
		return nil, err
	}
	out := make([]Interval, steps)
	for h, p := range points {
		out[h] = m.band(p, h+1)
	}
	return out, nil
}

func (m *arima) ForecastAheadDistribution(data []float64, steps int, bins []float64) ([]Distribution, error) {
	points, err := m.forecastAhead(data, steps)
	if err != nil {
		return nil, err
	}
	out := make([]Distribution, steps)
	for h, p := range points {
		out[h] = NormalDistribution(p, m.sigma*math.Sqrt(float64(h+1)), bins)
	}
	return out, nil
}

// band is the two sided (1-alpha) normal range h steps ahead.
func (m *arima) band(point float64, h int) Interval {
	z := distuv.UnitNormal.Quantile(1 - m.alpha/2)
	w := z * m.sigma * math.Sqrt(float64(h))
	return Interval{Lower: point - w, Upper: point + w}
}

// difference applies d first differences.
func difference(data []float64, d int) []float64 {
	z := data
	for range d {
		z = Differential{Lag: 1}.Apply(z)
	}
	return z
}

// integrate maps a d-times differenced prediction back onto the level that
// follows history, using the binomial expansion of (1-B)^d.
func integrate(zhat float64, history []float64, d int) float64 {
	v := zhat
	n := len(history)
	for j := 1; j <= d; j++ {
		sign := 1.0
		if j%2 == 0 {
			sign = -1
		}
		v += sign * binomial(d, j) * history[n-j]
	}
	return v
}

func binomial(n, k int) float64 {
	r := 1.0
	for i := 1; i <= k; i++ {
		r = r * float64(n-k+i) / float64(i)
	}
	return r
}
