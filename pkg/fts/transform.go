package fts

import "fmt"

// TransformSpec names a transformation so it can travel with a job.
type TransformSpec struct {
	Type string `json:"type"`
	Lag  int    `json:"lag,omitempty"`
}

// Transformation maps a series to the space models are trained in.
type Transformation interface {
	Apply(data []float64) []float64
	// Inverse maps forecasts of Apply(original)[start:] back onto the scale of
	// original. Forecast i lands on original[start+i+Offset()].
	Inverse(forecasts, original []float64, start int) []float64
	// Offset is the number of leading observations Apply consumes.
	Offset() int
}

// NewTransformation resolves a spec. An empty or "none" type yields Identity.
func NewTransformation(spec TransformSpec) (Transformation, error) {
	switch spec.Type {
	case "", "none":
		return Identity{}, nil
	case "diff":
		lag := spec.Lag
		if lag <= 0 {
			lag = 1
		}
		return Differential{Lag: lag}, nil
	default:
		return nil, fmt.Errorf("unknown transformation %q", spec.Type)
	}
}

type Identity struct{}

func (Identity) Apply(data []float64) []float64 { return data }

func (Identity) Inverse(forecasts, _ []float64, _ int) []float64 { return forecasts }

func (Identity) Offset() int { return 0 }

// Differential replaces each value by its difference to the value Lag steps
// earlier.
type Differential struct {
	Lag int
}

func (d Differential) Apply(data []float64) []float64 {
	if len(data) <= d.Lag {
		return nil
	}
	out := make([]float64, len(data)-d.Lag)
	for i := range out {
		out[i] = data[i+d.Lag] - data[i]
	}
	return out
}

func (d Differential) Inverse(forecasts, original []float64, start int) []float64 {
	out := make([]float64, len(forecasts))
	for i, f := range forecasts {
		out[i] = original[start+i] + f
	}
	return out
}

func (d Differential) Offset() int { return d.Lag }
