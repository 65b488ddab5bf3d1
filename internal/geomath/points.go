package geomath

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Vec2 is a point or offset in a plane. Units depend on the caller
// (pixels for camera space, millimetres for robot space).
type Vec2 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// DistanceTo returns the Euclidean distance between v and o.
func (v Vec2) DistanceTo(o Vec2) float64 {
	return math.Hypot(v.X-o.X, v.Y-o.Y)
}

// IsFinite reports whether both coordinates are finite.
func (v Vec2) IsFinite() bool {
	return !math.IsNaN(v.X) && !math.IsNaN(v.Y) && !math.IsInf(v.X, 0) && !math.IsInf(v.Y, 0)
}

// Distance returns the L2 distance between two equal-length coordinate vectors.
func Distance(a, b []float64) float64 {
	return floats.Distance(a, b, 2)
}

// Mean returns the arithmetic mean of xs, or 0 for an empty slice.
func Mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	return stat.Mean(xs, nil)
}

// Centroid returns the mean position of pts.
func Centroid(pts []Vec2) Vec2 {
	xs := make([]float64, len(pts))
	ys := make([]float64, len(pts))
	for i, p := range pts {
		xs[i] = p.X
		ys[i] = p.Y
	}
	return Vec2{X: Mean(xs), Y: Mean(ys)}
}

// MeanSquaredError returns the mean of squared distances between
// corresponding entries of got and want.
func MeanSquaredError(got, want []Vec2) (float64, error) {
	if len(got) != len(want) || len(got) == 0 {
		return 0, fmt.Errorf("%w: %d predictions for %d references", ErrDimension, len(got), len(want))
	}
	sq := make([]float64, len(got))
	for i := range got {
		d := got[i].DistanceTo(want[i])
		sq[i] = d * d
	}
	return Mean(sq), nil
}
