package domain

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// ModelSpec is a fully parameterized forecasting configuration. Build it with
// NewModelSpec or NewSpec(...).Params(...).Build(); values are never mutated
// afterwards.
type ModelSpec struct {
	Type          string  `gorethink:"type" json:"type"`
	Label         string  `gorethink:"label,omitempty" json:"label,omitempty"`
	Order         int     `gorethink:"order" json:"order"`
	Params        []int   `gorethink:"params,omitempty" json:"params,omitempty"`
	Alpha         float64 `gorethink:"alpha,omitempty" json:"alpha,omitempty"`
	BenchmarkOnly bool    `gorethink:"benchmark_only" json:"benchmark_only"`
}

// NewModelSpec describes a partition-dependent model of the given order.
func NewModelSpec(modelType string, order int) ModelSpec {
	return NewSpec(modelType).Order(order).Build()
}

// SpecBuilder assembles a ModelSpec field by field.
type SpecBuilder struct {
	spec ModelSpec
}

// NewSpec starts a ModelSpec of the given type with order 1.
func NewSpec(modelType string) *SpecBuilder {
	return &SpecBuilder{spec: ModelSpec{Type: modelType, Order: 1}}
}

func (b *SpecBuilder) Order(order int) *SpecBuilder {
	b.spec.Order = order
	return b
}

func (b *SpecBuilder) Label(label string) *SpecBuilder {
	b.spec.Label = label
	return b
}

// Params sets benchmark parameters, deriving the label and the lag order
// from them, e.g. (2,1,0) gives label "(2,1,0)" and order 3.
func (b *SpecBuilder) Params(params []int) *SpecBuilder {
	b.spec.Params = slices.Clone(params)
	b.spec.Label = ParamsLabel(params)
	b.spec.Order = benchmarkOrder(params)
	return b
}

func (b *SpecBuilder) Alpha(alpha float64) *SpecBuilder {
	b.spec.Alpha = alpha
	return b
}

func (b *SpecBuilder) BenchmarkOnly(v bool) *SpecBuilder {
	b.spec.BenchmarkOnly = v
	return b
}

// Build returns the assembled value. The builder may be reused.
func (b *SpecBuilder) Build() ModelSpec {
	spec := b.spec
	spec.Params = slices.Clone(b.spec.Params)
	return spec
}

// ParamsLabel renders benchmark parameters as a parenthesised list.
func ParamsLabel(params []int) string {
	if len(params) == 0 {
		return ""
	}
	parts := make([]string, len(params))
	for i, p := range params {
		parts[i] = strconv.Itoa(p)
	}
	return "(" + strings.Join(parts, ",") + ")"
}

// benchmarkOrder is the number of lags a baseline needs before it can forecast:
// p+d for ARIMA style (p,d,q) params, the single value otherwise.
func benchmarkOrder(params []int) int {
	order := 1
	switch {
	case len(params) >= 2:
		order = params[0] + params[1]
	case len(params) == 1:
		order = params[0]
	}
	if order < 1 {
		order = 1
	}
	return order
}

// ShortName identifies the configuration inside one partitioning scope.
func (m ModelSpec) ShortName() string {
	if len(m.Params) > 0 {
		name := m.Type + m.Label
		if m.Alpha > 0 {
			name += " α=" + strconv.FormatFloat(m.Alpha, 'f', -1, 64)
		}
		return name
	}
	return fmt.Sprintf("%s%s n=%d", m.Type, m.Label, m.Order)
}

// Equal reports whether all fields match.
func (m ModelSpec) Equal(o ModelSpec) bool {
	return m.Type == o.Type &&
		m.Label == o.Label &&
		m.Order == o.Order &&
		slices.Equal(m.Params, o.Params) &&
		m.Alpha == o.Alpha &&
		m.BenchmarkOnly == o.BenchmarkOnly
}

func (m ModelSpec) String() string {
	return m.ShortName()
}

// ResultKey groups per-window results of one configuration into a report row.
type ResultKey struct {
	ShortName   string `gorethink:"short_name" json:"short_name"`
	Partitions  int    `gorethink:"partitions" json:"partitions"`
	Partitioner string `gorethink:"partitioner" json:"partitioner"`
}

// KeyFor builds the aggregation key of spec under a partitioning scope.
func KeyFor(spec ModelSpec, partitions int, partitioner string) ResultKey {
	return ResultKey{ShortName: spec.ShortName(), Partitions: partitions, Partitioner: partitioner}
}

func (k ResultKey) String() string {
	return fmt.Sprintf("%s %s q=%d", k.ShortName, k.Partitioner, k.Partitions)
}

// Compare orders keys by partitioner, partition count and short name.
func (k ResultKey) Compare(o ResultKey) int {
	if c := strings.Compare(k.Partitioner, o.Partitioner); c != 0 {
		return c
	}
	if k.Partitions != o.Partitions {
		if k.Partitions < o.Partitions {
			return -1
		}
		return 1
	}
	return strings.Compare(k.ShortName, o.ShortName)
}
