package window

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fts-benchmark/internal/domain"
)

func series(n int) []float64 {
	data := make([]float64, n)
	for i := range data {
		data[i] = float64(i)
	}
	return data
}

func drain(g *Generator) []Window {
	var out []Window
	for {
		w, ok := g.Next()
		if !ok {
			return out
		}
		out = append(out, w)
	}
}

func TestGeneratorCountMatchesFormula(t *testing.T) {
	cases := []struct {
		n, size int
		inc     float64
	}{
		{100, 10, 0.1},
		{100, 10, 0.5},
		{100, 20, 0.25},
		{57, 10, 0.3},
		{10, 10, 0.2},
		{1000, 200, 0.1},
	}
	for _, tc := range cases {
		g, err := New(series(tc.n), tc.size, 0.8, tc.inc)
		require.NoError(t, err)

		windows := drain(g)
		step := int(tc.inc*float64(tc.size) + 0.5)
		assert.Len(t, windows, (tc.n-tc.size)/step+1, "n=%d size=%d inc=%v", tc.n, tc.size, tc.inc)

		count, err := Count(tc.n, tc.size, 0.8, tc.inc)
		require.NoError(t, err)
		assert.Equal(t, len(windows), count)

		for i, w := range windows {
			assert.Equal(t, i, w.Index)
			assert.Equal(t, i*step, w.Start)
			assert.Len(t, w.Train, 8*tc.size/10)
			assert.Equal(t, tc.size, len(w.Train)+len(w.Test))
			assert.Equal(t, float64(w.Start), w.Train[0])
			assert.Equal(t, float64(w.Start+len(w.Train)), w.Test[0])
		}
	}
}

func TestGeneratorWindowLargerThanData(t *testing.T) {
	g, err := New(series(5), 10, 0.8, 0.1)
	require.NoError(t, err)

	_, ok := g.Next()
	assert.False(t, ok)

	count, err := Count(5, 10, 0.8, 0.1)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestGeneratorIsSingleUse(t *testing.T) {
	g, err := New(series(30), 10, 0.5, 1)
	require.NoError(t, err)

	assert.Len(t, drain(g), 3)
	assert.Empty(t, drain(g))
}

func TestGeneratorRejectsInvalidRatios(t *testing.T) {
	for _, ratio := range []float64{0, 1, -0.2, 1.5} {
		_, err := New(series(100), 10, ratio, 0.1)
		require.Error(t, err)
		assert.True(t, domain.IsConfigError(err), "train ratio %v", ratio)
	}

	_, err := New(series(100), 10, 0.8, 0)
	assert.True(t, domain.IsConfigError(err))

	_, err = New(series(100), 10, 0.8, 0.01)
	assert.True(t, domain.IsConfigError(err), "step rounding to zero")

	_, err = New(series(100), 10, 0.99, 0.1)
	assert.True(t, domain.IsConfigError(err), "empty test part")
}

func TestGeneratorTrainSliceCannotGrowIntoTest(t *testing.T) {
	g, err := New(series(20), 10, 0.5, 0.5)
	require.NoError(t, err)

	w, ok := g.Next()
	require.True(t, ok)
	assert.Equal(t, len(w.Train), cap(w.Train))
}
