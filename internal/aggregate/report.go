// Package aggregate turns collected per-window metrics into report tables.
package aggregate

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"slices"
	"strconv"

	"gonum.org/v1/gonum/stat"

	"fts-benchmark/internal/collect"
	"fts-benchmark/internal/domain"
)

var descriptorColumns = []string{"Model", "Type", "Order", "Params", "Alpha", "Scheme", "Partitions", "Size"}

// Report is a rectangular table, either one summary row per configuration
// or one raw row per configuration and metric.
type Report struct {
	Synthetic bool       `json:"synthetic"`
	Windows   int        `json:"windows"`
	Header    []string   `json:"header"`
	Rows      [][]string `json:"rows"`
}

// Finalize builds the report of table. Synthetic reports carry the mean and
// population standard deviation of every metric; raw reports carry one
// column per window with empty cells for windows without a result. Metrics
// are reported in the given order, or sorted when none is given.
func Finalize(table *collect.ResultTable, windowCount int, synthetic bool, metrics ...string) *Report {
	keys := table.Keys()
	if len(metrics) == 0 {
		metrics = metricNames(table, keys)
	}

	r := &Report{Synthetic: synthetic, Windows: windowCount}
	r.Header = slices.Clone(descriptorColumns)
	if synthetic {
		for _, m := range metrics {
			r.Header = append(r.Header, m+"AVG", m+"STD")
		}
	} else {
		r.Header = append(r.Header, "Measure")
		for w := 0; w < windowCount; w++ {
			r.Header = append(r.Header, strconv.Itoa(w))
		}
	}

	for _, key := range keys {
		e, _ := table.Entry(key)
		if synthetic {
			row := describe(e)
			for _, m := range metrics {
				mean, std := Summarize(e.Metrics[m])
				row = append(row, formatFloat(mean), formatFloat(std))
			}
			r.Rows = append(r.Rows, row)
			continue
		}
		for _, m := range metrics {
			samples, ok := e.Metrics[m]
			if !ok {
				continue
			}
			row := append(describe(e), m)
			cells := make([]string, windowCount)
			for _, s := range samples {
				if s.Window >= 0 && s.Window < windowCount {
					cells[s.Window] = formatFloat(s.Value)
				}
			}
			r.Rows = append(r.Rows, append(row, cells...))
		}
	}
	return r
}

// Summarize returns the mean and population standard deviation of samples.
func Summarize(samples []collect.Sample) (float64, float64) {
	values := make([]float64, len(samples))
	for i, s := range samples {
		values[i] = s.Value
	}
	if len(values) == 0 {
		return 0, 0
	}
	return stat.PopMeanStdDev(values, nil)
}

func describe(e *collect.Entry) []string {
	spec := e.Snapshot.Spec
	alpha := ""
	if spec.Alpha > 0 {
		alpha = formatFloat(spec.Alpha)
	}
	return []string{
		e.Key.ShortName,
		spec.Type,
		strconv.Itoa(spec.Order),
		domain.ParamsLabel(spec.Params),
		alpha,
		e.Key.Partitioner,
		strconv.Itoa(e.Key.Partitions),
		strconv.Itoa(e.Snapshot.Size),
	}
}

func metricNames(table *collect.ResultTable, keys []domain.ResultKey) []string {
	var names []string
	for _, key := range keys {
		e, _ := table.Entry(key)
		for _, m := range e.MetricNames() {
			if !slices.Contains(names, m) {
				names = append(names, m)
			}
		}
	}
	slices.Sort(names)
	return names
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// Len is the number of data rows.
func (r *Report) Len() int { return len(r.Rows) }

// WriteCSV writes the header and rows separated by semicolons.
func (r *Report) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	cw.Comma = ';'
	if err := cw.Write(r.Header); err != nil {
		return err
	}
	if err := cw.WriteAll(r.Rows); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}

// SaveCSV writes the report to path, replacing any existing file.
func (r *Report) SaveCSV(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create report file: %w", err)
	}
	if err := r.WriteCSV(f); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
