// Package window splits a series into successive train/test frames.
package window

import (
	"math"

	"fts-benchmark/internal/domain"
)

// Window is one frame of the sliding window. Train and Test are views into
// the generator's data and must not be modified.
type Window struct {
	Index int
	Start int
	Train []float64
	Test  []float64
}

// Generator yields windows in increasing start order. It is single-use.
type Generator struct {
	data     []float64
	size     int
	trainLen int
	step     int
	next     int
	index    int
}

// New validates the ratios and returns a generator over data. A size larger
// than the data is valid and produces no windows.
func New(data []float64, size int, trainRatio, incRatio float64) (*Generator, error) {
	trainLen, step, err := frame(size, trainRatio, incRatio)
	if err != nil {
		return nil, err
	}
	return &Generator{
		data:     data,
		size:     size,
		trainLen: trainLen,
		step:     step,
	}, nil
}

func frame(size int, trainRatio, incRatio float64) (trainLen, step int, err error) {
	if size < 2 {
		return 0, 0, domain.NewConfigError("window_size", "must be at least 2, got %d", size)
	}
	if !(trainRatio > 0 && trainRatio < 1) {
		return 0, 0, domain.NewConfigError("train_ratio", "must lie in (0,1), got %v", trainRatio)
	}
	if !(incRatio > 0) {
		return 0, 0, domain.NewConfigError("inc_ratio", "must be positive, got %v", incRatio)
	}
	trainLen = int(math.Round(float64(size) * trainRatio))
	if trainLen <= 0 || trainLen >= size {
		return 0, 0, domain.NewConfigError("train_ratio", "%v of %d leaves an empty train or test part", trainRatio, size)
	}
	step = int(math.Round(float64(size) * incRatio))
	if step <= 0 {
		return 0, 0, domain.NewConfigError("inc_ratio", "%v of %d rounds to a zero step", incRatio, size)
	}
	return trainLen, step, nil
}

// Next returns the following window, or false once the frame would run past
// the end of the data.
func (g *Generator) Next() (Window, bool) {
	start := g.next
	if start+g.size > len(g.data) {
		return Window{}, false
	}
	w := Window{
		Index: g.index,
		Start: start,
		Train: g.data[start : start+g.trainLen : start+g.trainLen],
		Test:  g.data[start+g.trainLen : start+g.size : start+g.size],
	}
	g.next += g.step
	g.index++
	return w, true
}

// Count is the number of windows New would yield for a series of length n.
func Count(n, size int, trainRatio, incRatio float64) (int, error) {
	_, step, err := frame(size, trainRatio, incRatio)
	if err != nil {
		return 0, err
	}
	if size > n {
		return 0, nil
	}
	return (n-size)/step + 1, nil
}
