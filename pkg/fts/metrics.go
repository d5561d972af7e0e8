package fts

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// RMSE is the root mean squared error of aligned slices.
func RMSE(actual, forecast []float64) float64 {
	n := min(len(actual), len(forecast))
	if n == 0 {
		return math.NaN()
	}
	sq := make([]float64, n)
	for i := range sq {
		d := actual[i] - forecast[i]
		sq[i] = d * d
	}
	return math.Sqrt(stat.Mean(sq, nil))
}

// SMAPE is the symmetric mean absolute percentage error, in [0, 1].
func SMAPE(actual, forecast []float64) float64 {
	n := min(len(actual), len(forecast))
	if n == 0 {
		return math.NaN()
	}
	terms := make([]float64, 0, n)
	for i := 0; i < n; i++ {
		den := math.Abs(actual[i]) + math.Abs(forecast[i])
		if den == 0 {
			terms = append(terms, 0)
			continue
		}
		terms = append(terms, math.Abs(forecast[i]-actual[i])/den)
	}
	return stat.Mean(terms, nil)
}

// UStatistic is Theil's U: the forecast error relative to the naive
// forecast that repeats the previous observation. Values below 1 beat it.
func UStatistic(actual, forecast []float64) float64 {
	n := min(len(actual), len(forecast))
	var num, den float64
	for k := 1; k < n; k++ {
		if actual[k-1] == 0 {
			continue
		}
		e := (forecast[k] - actual[k]) / actual[k-1]
		naive := (actual[k] - actual[k-1]) / actual[k-1]
		num += e * e
		den += naive * naive
	}
	if den == 0 {
		return math.NaN()
	}
	return math.Sqrt(num / den)
}

// Sharpness is the mean interval width.
func Sharpness(intervals []Interval) float64 {
	if len(intervals) == 0 {
		return math.NaN()
	}
	return stat.Mean(widths(intervals), nil)
}

// Resolution is the mean absolute deviation of widths from their mean.
func Resolution(intervals []Interval) float64 {
	if len(intervals) == 0 {
		return math.NaN()
	}
	w := widths(intervals)
	mean := stat.Mean(w, nil)
	for i := range w {
		w[i] = math.Abs(w[i] - mean)
	}
	return stat.Mean(w, nil)
}

// Coverage is the share of observations falling inside their interval.
func Coverage(actual []float64, intervals []Interval) float64 {
	n := min(len(actual), len(intervals))
	if n == 0 {
		return math.NaN()
	}
	var hits float64
	for i := 0; i < n; i++ {
		if actual[i] >= intervals[i].Lower && actual[i] <= intervals[i].Upper {
			hits++
		}
	}
	return hits / float64(n)
}

// Pinball is the mean quantile loss at tau, scoring the lower bound for
// tau <= 0.5 and the upper bound otherwise.
func Pinball(tau float64, actual []float64, intervals []Interval) float64 {
	n := min(len(actual), len(intervals))
	if n == 0 {
		return math.NaN()
	}
	var total float64
	for i := 0; i < n; i++ {
		q := intervals[i].Upper
		if tau <= 0.5 {
			q = intervals[i].Lower
		}
		total += pinballLoss(tau, actual[i], q)
	}
	return total / float64(n)
}

func pinballLoss(tau, actual, q float64) float64 {
	if actual >= q {
		return (actual - q) * tau
	}
	return (q - actual) * (1 - tau)
}

func widths(intervals []Interval) []float64 {
	out := make([]float64, len(intervals))
	for i, iv := range intervals {
		out[i] = iv.Width()
	}
	return out
}
