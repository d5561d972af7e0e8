package collect

import (
	"slices"

	"fts-benchmark/internal/domain"
)

// Sample is one metric value tagged with the window it was measured on.
type Sample struct {
	Window int     `json:"window"`
	Value  float64 `json:"value"`
}

// Entry accumulates the per-window metrics of one configuration.
type Entry struct {
	Key      domain.ResultKey
	Snapshot domain.Snapshot
	Metrics  map[string][]Sample
}

// MetricNames returns the metric names in sorted order.
func (e *Entry) MetricNames() []string {
	names := make([]string, 0, len(e.Metrics))
	for name := range e.Metrics {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// ResultTable maps each configuration key to its accumulated samples.
type ResultTable struct {
	entries map[domain.ResultKey]*Entry
}

func NewResultTable() *ResultTable {
	return &ResultTable{entries: make(map[domain.ResultKey]*Entry)}
}

// Add files outcome under its key. The snapshot of the first outcome of a key
// is kept.
func (t *ResultTable) Add(outcome domain.Outcome, window int) {
	e, ok := t.entries[outcome.Key]
	if !ok {
		e = &Entry{
			Key:      outcome.Key,
			Snapshot: outcome.Snapshot,
			Metrics:  make(map[string][]Sample),
		}
		t.entries[outcome.Key] = e
	}
	for name, v := range outcome.Metrics {
		e.Metrics[name] = append(e.Metrics[name], Sample{Window: window, Value: v})
	}
}

func (t *ResultTable) Len() int { return len(t.entries) }

func (t *ResultTable) Entry(key domain.ResultKey) (*Entry, bool) {
	e, ok := t.entries[key]
	return e, ok
}

// Keys returns every key in deterministic order.
func (t *ResultTable) Keys() []domain.ResultKey {
	keys := make([]domain.ResultKey, 0, len(t.entries))
	for k := range t.entries {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, domain.ResultKey.Compare)
	return keys
}
