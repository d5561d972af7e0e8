package fts

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// ruleModel is a Chen style fuzzy time series: each lag pattern of fuzzy sets
// (the LHS) maps to the set of fuzzy sets that followed it (the RHS).
type ruleModel struct {
	name  string
	order int
	// multi enumerates every set with positive membership per lag instead
	// of the single best one.
	multi     bool
	partition *Partition
	rules     map[string][]int
}

func newCFTS(order int, _ []int, _ float64) (Model, error) {
	return &ruleModel{name: "CFTS", order: 1}, nil
}

func newHOFTS(order int, _ []int, _ float64) (Model, error) {
	if order < 2 {
		return nil, fmt.Errorf("HOFTS: order %d below minimum 2", order)
	}
	return &ruleModel{name: "HOFTS", order: order, multi: true}, nil
}

func (m *ruleModel) Name() string { return m.name }
func (m *ruleModel) Order() int   { return m.order }
func (m *ruleModel) Size() int    { return len(m.rules) }

func (m *ruleModel) Fit(data []float64, p *Partition) error {
	if p == nil || len(p.Sets) == 0 {
		return ErrNoPartition
	}
	if len(data) <= m.order {
		return fmt.Errorf("%s: %w", m.name, ErrShortSample)
	}
	m.partition = p
	m.rules = make(map[string][]int)
	for k := m.order; k < len(data); k++ {
		rhs := m.sets(data[k])
		for _, path := range m.paths(data[k-m.order : k]) {
			key := pathKey(path)
			for _, s := range rhs {
				if !slices.Contains(m.rules[key], s) {
					m.rules[key] = append(m.rules[key], s)
				}
			}
		}
	}
	return nil
}

func (m *ruleModel) Forecast(data []float64) ([]float64, error) {
	if err := m.ready(data); err != nil {
		return nil, err
	}
	out := make([]float64, len(data)-m.order)
	for k := range out {
		out[k] = m.point(data[k : k+m.order])
	}
	return out, nil
}

func (m *ruleModel) ForecastInterval(data []float64) ([]Interval, error) {
	if err := m.ready(data); err != nil {
		return nil, err
	}
	out := make([]Interval, len(data)-m.order)
	for k := range out {
		out[k] = m.interval(data[k : k+m.order])
	}
	return out, nil
}

func (m *ruleModel) ForecastAheadInterval(data []float64, steps int) ([]Interval, error) {
	out := make([]Interval, 0, steps)
	err := m.ahead(data, steps, func(sample []float64) {
		out = append(out, m.interval(sample))
	})
	return out, err
}

func (m *ruleModel) ForecastAheadDistribution(data []float64, steps int, bins []float64) ([]Distribution, error) {
	out := make([]Distribution, 0, steps)
	err := m.ahead(data, steps, func(sample []float64) {
		weights := make([]float64, len(bins))
		for _, s := range m.consequents(sample) {
			set := m.partition.Sets[s]
			for i, b := range bins {
				weights[i] += set.Membership(b)
			}
		}
		out = append(out, NewDistribution(bins, weights))
	})
	return out, err
}

// ahead feeds point forecasts back as observations, calling emit with the
// sample of every step before it is extended.
func (m *ruleModel) ahead(data []float64, steps int, emit func(sample []float64)) error {
	if err := m.ready(data); err != nil {
		return err
	}
	sample := slices.Clone(data[len(data)-m.order:])
	for range steps {
		emit(sample)
		sample = append(sample[1:], m.point(sample))
	}
	return nil
}

func (m *ruleModel) ready(data []float64) error {
	if m.rules == nil {
		return fmt.Errorf("%s: %w", m.name, ErrNotFitted)
	}
	if len(data) < m.order {
		return fmt.Errorf("%s: %w", m.name, ErrShortSample)
	}
	return nil
}

// point is the mean, over all matching LHS paths, of the midpoint of the
// rule consequents. An unseen pattern repeats the center of its last set.
func (m *ruleModel) point(sample []float64) float64 {
	paths := m.paths(sample)
	var sum float64
	for _, path := range paths {
		rhs, ok := m.rules[pathKey(path)]
		if !ok || len(rhs) == 0 {
			sum += m.partition.Sets[path[len(path)-1]].Center
			continue
		}
		var mp float64
		for _, s := range rhs {
			mp += m.partition.Sets[s].Center
		}
		sum += mp / float64(len(rhs))
	}
	return sum / float64(len(paths))
}

func (m *ruleModel) interval(sample []float64) Interval {
	sets := m.consequents(sample)
	iv := Interval{Lower: m.partition.Sets[sets[0]].Lower, Upper: m.partition.Sets[sets[0]].Upper}
	for _, s := range sets[1:] {
		iv.Lower = min(iv.Lower, m.partition.Sets[s].Lower)
		iv.Upper = max(iv.Upper, m.partition.Sets[s].Upper)
	}
	return iv
}

// consequents returns the union of RHS sets of all matching paths.
func (m *ruleModel) consequents(sample []float64) []int {
	var sets []int
	for _, path := range m.paths(sample) {
		rhs, ok := m.rules[pathKey(path)]
		if !ok || len(rhs) == 0 {
			rhs = path[len(path)-1:]
		}
		for _, s := range rhs {
			if !slices.Contains(sets, s) {
				sets = append(sets, s)
			}
		}
	}
	return sets
}

func (m *ruleModel) sets(x float64) []int {
	if m.multi {
		return m.partition.Memberships(x)
	}
	return []int{m.partition.Fuzzify(x)}
}

// paths returns the cartesian product of the sets of every lag in sample.
func (m *ruleModel) paths(sample []float64) [][]int {
	paths := [][]int{{}}
	for _, x := range sample {
		var next [][]int
		for _, prefix := range paths {
			for _, s := range m.sets(x) {
				next = append(next, append(slices.Clone(prefix), s))
			}
		}
		paths = next
	}
	return paths
}

func pathKey(path []int) string {
	parts := make([]string, len(path))
	for i, s := range path {
		parts[i] = strconv.Itoa(s)
	}
	return strings.Join(parts, ",")
}
