package fts

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"
)

// minimize runs Nelder-Mead from initial and returns the best point found.
func minimize(f func([]float64) float64, initial []float64) ([]float64, error) {
	problem := optimize.Problem{Func: f}

	settings := &optimize.Settings{
		MajorIterations: 1000,
		FuncEvaluations: 2000,
		Converger: &optimize.FunctionConverge{
			Absolute:   1e-8,
			Relative:   1e-8,
			Iterations: 100,
		},
	}

	result, err := optimize.Minimize(problem, initial, settings, &optimize.NelderMead{})
	if err != nil {
		return nil, err
	}
	return result.X, nil
}

// lagDesign builds the regression of z[t] on an intercept and z[t-1..t-p].
func lagDesign(z []float64, p int) (*mat.Dense, *mat.VecDense) {
	rows := len(z) - p
	x := mat.NewDense(rows, p+1, nil)
	y := mat.NewVecDense(rows, nil)
	for r := 0; r < rows; r++ {
		t := r + p
		x.Set(r, 0, 1)
		for i := 1; i <= p; i++ {
			x.Set(r, i, z[t-i])
		}
		y.SetVec(r, z[t])
	}
	return x, y
}

// ols fits intercept and AR(p) coefficients by least squares.
func ols(z []float64, p int) ([]float64, error) {
	if len(z)-p < p+1 {
		return nil, fmt.Errorf("%w: %d observations for %d coefficients", ErrShortSample, len(z)-p, p+1)
	}
	x, y := lagDesign(z, p)
	var beta mat.VecDense
	if err := beta.SolveVec(x, y); err != nil {
		return nil, fmt.Errorf("least squares: %w", err)
	}
	return mat.Col(nil, 0, &beta), nil
}
