package fts

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat/distuv"
)

// Distribution is a discrete probability mass over ordered bin centers.
type Distribution struct {
	Bins  []float64 `json:"bins"`
	Probs []float64 `json:"probs"`
}

// NewDistribution normalizes weights over bins. All-zero weights yield a
// uniform distribution.
func NewDistribution(bins, weights []float64) Distribution {
	probs := make([]float64, len(bins))
	copy(probs, weights)
	total := floats.Sum(probs)
	if total <= 0 || !isFinite(total) {
		for i := range probs {
			probs[i] = 1
		}
		total = float64(len(probs))
	}
	floats.Scale(1/total, probs)
	return Distribution{Bins: bins, Probs: probs}
}

// NormalDistribution discretizes N(mean, sd) over bins.
func NormalDistribution(mean, sd float64, bins []float64) Distribution {
	if sd <= 0 {
		sd = math.SmallestNonzeroFloat64
	}
	n := distuv.Normal{Mu: mean, Sigma: sd}
	half := binWidth(bins) / 2
	weights := make([]float64, len(bins))
	for i, b := range bins {
		weights[i] = n.CDF(b+half) - n.CDF(b-half)
	}
	return NewDistribution(bins, weights)
}

// IntervalDistribution spreads the mass uniformly over the bins inside iv.
// A range narrower than one bin collapses on the nearest bin.
func IntervalDistribution(iv Interval, bins []float64) Distribution {
	weights := make([]float64, len(bins))
	hit := false
	for i, b := range bins {
		if b >= iv.Lower && b <= iv.Upper {
			weights[i] = 1
			hit = true
		}
	}
	if !hit && len(bins) > 0 {
		mid := iv.Midpoint()
		nearest := 0
		for i, b := range bins {
			if math.Abs(b-mid) < math.Abs(bins[nearest]-mid) {
				nearest = i
			}
		}
		weights[nearest] = 1
	}
	return NewDistribution(bins, weights)
}

// MaxBins bounds the length of a bin grid.
const MaxBins = 10000

// Bins returns evenly spaced centers covering [lo, hi] with the given step.
// A non-positive resolution defaults to 100 bins. A step that would need
// more than MaxBins centers is widened to fit.
func Bins(lo, hi, resolution float64) []float64 {
	if hi < lo {
		lo, hi = hi, lo
	}
	if !isFinite(hi - lo) {
		return []float64{lo}
	}
	if resolution <= 0 {
		resolution = (hi - lo) / 100
	}
	if resolution <= 0 {
		return []float64{lo}
	}
	if (hi-lo)/resolution > MaxBins-1 {
		resolution = (hi - lo) / (MaxBins - 1)
	}
	n := min(int(math.Floor((hi-lo)/resolution))+1, MaxBins)
	out := make([]float64, n)
	for i := range out {
		out[i] = lo + float64(i)*resolution
	}
	return out
}

// CDF returns the cumulative probabilities.
func (d Distribution) CDF() []float64 {
	out := make([]float64, len(d.Probs))
	floats.CumSum(out, d.Probs)
	return out
}

// Mean is the expected value.
func (d Distribution) Mean() float64 {
	return floats.Dot(d.Bins, d.Probs)
}

// CRPS is the mean continuous ranked probability score of dists against the
// observations, integrated over the bin grid.
func CRPS(dists []Distribution, actual []float64) float64 {
	n := min(len(dists), len(actual))
	if n == 0 {
		return math.NaN()
	}
	var total float64
	for k := 0; k < n; k++ {
		d := dists[k]
		width := binWidth(d.Bins)
		var score float64
		for i, f := range d.CDF() {
			var h float64
			if d.Bins[i] >= actual[k] {
				h = 1
			}
			score += (f - h) * (f - h) * width
		}
		total += score
	}
	return total / float64(n)
}

func binWidth(bins []float64) float64 {
	if len(bins) < 2 {
		return 1
	}
	return bins[1] - bins[0]
}
