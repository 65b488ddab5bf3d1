// Package geomath holds the small linear-algebra kernels shared by the
// kinematics, homography and calibration packages.
//
// Everything here is a pure function over value inputs. Slices passed in are
// copied before they are modified, so callers may share them across
// goroutines.
package geomath

import (
	"errors"
	"fmt"
	"math"
)

const (
	// PivotEpsilon is the smallest pivot magnitude SolveLinear accepts.
	PivotEpsilon = 1e-10
	// DeterminantEpsilon is the smallest |det| Invert3 accepts.
	DeterminantEpsilon = 1e-10
)

var (
	// ErrSingularPivot is returned when elimination meets a pivot below PivotEpsilon.
	ErrSingularPivot = errors.New("singular system")
	// ErrSingularMatrix is returned when a 3x3 determinant is below DeterminantEpsilon.
	ErrSingularMatrix = errors.New("singular matrix")
	// ErrDimension is returned for mismatched matrix/vector shapes.
	ErrDimension = errors.New("dimension mismatch")
)

// SolveLinear solves a·x = b for square a using Gaussian elimination with
// partial pivoting. a and b are not modified.
func SolveLinear(a [][]float64, b []float64) ([]float64, error) {
	n := len(b)
	if len(a) != n || n == 0 {
		return nil, fmt.Errorf("%w: %d rows for %d unknowns", ErrDimension, len(a), n)
	}

	// Augmented copy [a | b]
	aug := make([][]float64, n)
	for i := range a {
		if len(a[i]) != n {
			return nil, fmt.Errorf("%w: row %d has %d columns, want %d", ErrDimension, i, len(a[i]), n)
		}
		row := make([]float64, n+1)
		copy(row, a[i])
		row[n] = b[i]
		aug[i] = row
	}

	for col := 0; col < n; col++ {
		pivot := col
		maxAbs := math.Abs(aug[col][col])
		for r := col + 1; r < n; r++ {
			if v := math.Abs(aug[r][col]); v > maxAbs {
				maxAbs = v
				pivot = r
			}
		}
		if maxAbs < PivotEpsilon || math.IsNaN(maxAbs) {
			return nil, fmt.Errorf("%w: |pivot| %.3g in column %d", ErrSingularPivot, maxAbs, col)
		}
		if pivot != col {
			aug[col], aug[pivot] = aug[pivot], aug[col]
		}
		for r := col + 1; r < n; r++ {
			factor := aug[r][col] / aug[col][col]
			if factor == 0 {
				continue
			}
			for c := col; c <= n; c++ {
				aug[r][c] -= factor * aug[col][c]
			}
		}
	}

	x := make([]float64, n)
	for i := n - 1; i >= 0; i-- {
		sum := aug[i][n]
		for j := i + 1; j < n; j++ {
			sum -= aug[i][j] * x[j]
		}
		x[i] = sum / aug[i][i]
	}
	return x, nil
}
