// Package fts holds the reference fuzzy time series units used by the
// benchmark: partitioners, transformations, models and accuracy measures.
package fts

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

var ErrDegenerateData = errors.New("data has no spread to partition")

// FuzzySet is a triangular membership function.
type FuzzySet struct {
	Name   string  `json:"name"`
	Lower  float64 `json:"lower"`
	Center float64 `json:"center"`
	Upper  float64 `json:"upper"`
}

// Membership returns the degree of x in the set.
func (s FuzzySet) Membership(x float64) float64 {
	switch {
	case x == s.Center:
		return 1
	case x <= s.Lower || x >= s.Upper:
		return 0
	case x < s.Center:
		return (x - s.Lower) / (s.Center - s.Lower)
	default:
		return (s.Upper - x) / (s.Upper - s.Center)
	}
}

// Partition is the discretization of a universe of discourse into ordered
// fuzzy sets.
type Partition struct {
	Scheme     string     `json:"scheme"`
	Partitions int        `json:"partitions"`
	Sets       []FuzzySet `json:"sets"`
}

// Universe returns the support covered by the sets.
func (p *Partition) Universe() (float64, float64) {
	if len(p.Sets) == 0 {
		return 0, 0
	}
	return p.Sets[0].Lower, p.Sets[len(p.Sets)-1].Upper
}

// Fuzzify returns the index of the set with the highest membership of x.
// Values outside the universe map to the nearest border set.
func (p *Partition) Fuzzify(x float64) int {
	best, degree := -1, 0.0
	for i, s := range p.Sets {
		if m := s.Membership(x); m > degree {
			best, degree = i, m
		}
	}
	if best >= 0 {
		return best
	}
	if x < p.Sets[0].Center {
		return 0
	}
	return len(p.Sets) - 1
}

// Memberships returns the indexes of all sets where x has a positive degree,
// falling back to the single best set.
func (p *Partition) Memberships(x float64) []int {
	var out []int
	for i, s := range p.Sets {
		if s.Membership(x) > 0 {
			out = append(out, i)
		}
	}
	if len(out) == 0 {
		out = append(out, p.Fuzzify(x))
	}
	return out
}

// Partitioner builds a Partition from a train slice.
type Partitioner interface {
	Name() string
	Build(data []float64, partitions int, tr Transformation) (Partition, error)
}

// Partitioners returns the partitioners known by name.
func Partitioners() map[string]Partitioner {
	return map[string]Partitioner{
		GridPartitioner{}.Name():     GridPartitioner{},
		QuantilePartitioner{}.Name(): QuantilePartitioner{},
	}
}

// GridPartitioner spreads evenly spaced sets over the data range widened by 10%.
type GridPartitioner struct{}

func (GridPartitioner) Name() string { return "Grid" }

func (g GridPartitioner) Build(data []float64, partitions int, tr Transformation) (Partition, error) {
	data, err := prepare(data, partitions, tr)
	if err != nil {
		return Partition{}, err
	}
	lo, hi := widen(floats.Min(data), floats.Max(data))
	centers := make([]float64, partitions)
	floats.Span(centers, lo, hi)
	return fromCenters(g.Name(), centers), nil
}

// QuantilePartitioner places set centers on empirical quantiles, giving each
// set a similar share of the observations.
type QuantilePartitioner struct{}

func (QuantilePartitioner) Name() string { return "Quantile" }

func (q QuantilePartitioner) Build(data []float64, partitions int, tr Transformation) (Partition, error) {
	data, err := prepare(data, partitions, tr)
	if err != nil {
		return Partition{}, err
	}
	sorted := slices.Clone(data)
	sort.Float64s(sorted)

	centers := make([]float64, 0, partitions)
	for i := 0; i < partitions; i++ {
		c := stat.Quantile(float64(i)/float64(partitions-1), stat.LinInterp, sorted, nil)
		if len(centers) > 0 && c <= centers[len(centers)-1] {
			continue
		}
		centers = append(centers, c)
	}
	if len(centers) < 2 {
		return Partition{}, fmt.Errorf("quantile partitioner: %w", ErrDegenerateData)
	}
	p := fromCenters(q.Name(), centers)
	p.Partitions = partitions
	return p, nil
}

func prepare(data []float64, partitions int, tr Transformation) ([]float64, error) {
	if partitions < 2 {
		return nil, fmt.Errorf("at least 2 partitions required, got %d", partitions)
	}
	if tr != nil {
		data = tr.Apply(data)
	}
	if len(data) < 2 || floats.Min(data) == floats.Max(data) {
		return nil, ErrDegenerateData
	}
	return data, nil
}

func widen(lo, hi float64) (float64, float64) {
	if lo < 0 {
		lo *= 1.1
	} else {
		lo *= 0.9
	}
	if hi > 0 {
		hi *= 1.1
	} else {
		hi *= 0.9
	}
	if lo == hi {
		lo, hi = lo-1, hi+1
	}
	return lo, hi
}

func fromCenters(scheme string, centers []float64) Partition {
	sets := make([]FuzzySet, len(centers))
	for i, c := range centers {
		var lower, upper float64
		switch i {
		case 0:
			gap := centers[1] - c
			lower, upper = c-gap, centers[1]
		case len(centers) - 1:
			gap := c - centers[i-1]
			lower, upper = centers[i-1], c+gap
		default:
			lower, upper = centers[i-1], centers[i+1]
		}
		sets[i] = FuzzySet{Name: "A" + fmt.Sprint(i), Lower: lower, Center: c, Upper: upper}
	}
	return Partition{Scheme: scheme, Partitions: len(centers), Sets: sets}
}

func isFinite(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0)
}
