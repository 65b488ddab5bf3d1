// Package homography maps camera pixels onto the robot's millimetre plane.
//
// A Matrix is solved from exactly four pixel/robot correspondences with the
// direct linear transform. CentroidMap is the simpler axis-aligned fallback
// used when a projective fit is not wanted.
package homography

import (
	"errors"
	"fmt"
	"math"

	"github.com/banshee-data/dualarm/internal/geomath"
)

// Point is a pixel or robot-plane coordinate.
type Point = geomath.Vec2

// NumCorrespondences is the number of point pairs a solve consumes.
const NumCorrespondences = 4

// MinDeterminant is the smallest |det(H)| IsValid accepts.
const MinDeterminant = 1e-6

var (
	// ErrInvalidCalibrationInput means the correspondences cannot define a
	// mapping: wrong count, non-finite or coincident points.
	ErrInvalidCalibrationInput = errors.New("invalid calibration input")
	// ErrSingularSystem means the DLT system had a pivot below the threshold.
	ErrSingularSystem = errors.New("singular homography system")
	// ErrSingular means the matrix cannot be inverted.
	ErrSingular = errors.New("homography matrix is singular")
	// ErrPointAtInfinity means a point maps onto the line at infinity.
	ErrPointAtInfinity = errors.New("point maps to infinity")
)

// Matrix is a row-major 3×3 homography normalised so that h[8] == 1.
type Matrix [9]float64

// Mat3 returns the matrix in geomath form.
func (h Matrix) Mat3() geomath.Mat3 {
	return geomath.Mat3{
		{h[0], h[1], h[2]},
		{h[3], h[4], h[5]},
		{h[6], h[7], h[8]},
	}
}

func fromMat3(m geomath.Mat3) Matrix {
	return Matrix{
		m[0][0], m[0][1], m[0][2],
		m[1][0], m[1][1], m[1][2],
		m[2][0], m[2][1], m[2][2],
	}
}

// Det returns the determinant.
func (h Matrix) Det() float64 { return geomath.Det3(h.Mat3()) }

// IsValid rejects matrices with non-finite entries or |det| < MinDeterminant.
func (h Matrix) IsValid() bool {
	for _, v := range h {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return math.Abs(h.Det()) >= MinDeterminant
}

// Apply maps a pixel to the robot plane.
func (h Matrix) Apply(p Point) (Point, error) {
	return project(h, p)
}

// ApplyInverse maps a robot-plane point back to pixels.
func (h Matrix) ApplyInverse(p Point) (Point, error) {
	inv, err := h.Inverse()
	if err != nil {
		return Point{}, err
	}
	return project(inv, p)
}

// Inverse returns H⁻¹ rescaled so its last entry is 1 when possible.
func (h Matrix) Inverse() (Matrix, error) {
	m, err := geomath.Invert3(h.Mat3())
	if err != nil {
		return Matrix{}, fmt.Errorf("%w: %v", ErrSingular, err)
	}
	inv := fromMat3(m)
	if s := inv[8]; math.Abs(s) > geomath.PivotEpsilon {
		for i := range inv {
			inv[i] /= s
		}
	}
	return inv, nil
}

func project(h Matrix, p Point) (Point, error) {
	w := h[6]*p.X + h[7]*p.Y + h[8]
	if math.Abs(w) < 1e-12 {
		return Point{}, fmt.Errorf("%w: (%.3f, %.3f)", ErrPointAtInfinity, p.X, p.Y)
	}
	return Point{
		X: (h[0]*p.X + h[1]*p.Y + h[2]) / w,
		Y: (h[3]*p.X + h[4]*p.Y + h[5]) / w,
	}, nil
}

// similarity is an isotropic scale about a centroid that moves a point set
// to mean distance √2 from the origin before the DLT solve.
type similarity struct {
	scale  float64
	cx, cy float64
}

func normalizer(pts []Point) (similarity, error) {
	c := geomath.Centroid(pts)
	dists := make([]float64, len(pts))
	for i, p := range pts {
		dists[i] = p.DistanceTo(c)
	}
	mean := geomath.Mean(dists)
	if mean < geomath.PivotEpsilon {
		return similarity{}, fmt.Errorf("%w: points coincide", ErrInvalidCalibrationInput)
	}
	return similarity{scale: math.Sqrt2 / mean, cx: c.X, cy: c.Y}, nil
}

func (s similarity) apply(p Point) Point {
	return Point{X: (p.X - s.cx) * s.scale, Y: (p.Y - s.cy) * s.scale}
}

func (s similarity) mat() geomath.Mat3 {
	return geomath.Mat3{
		{s.scale, 0, -s.scale * s.cx},
		{0, s.scale, -s.scale * s.cy},
		{0, 0, 1},
	}
}

func (s similarity) inverseMat() geomath.Mat3 {
	return geomath.Mat3{
		{1 / s.scale, 0, s.cx},
		{0, 1 / s.scale, s.cy},
		{0, 0, 1},
	}
}

func validateCorrespondences(pixel, robot []Point) error {
	if len(pixel) != NumCorrespondences || len(robot) != NumCorrespondences {
		return fmt.Errorf("%w: need %d pixel and %d robot points, got %d and %d",
			ErrInvalidCalibrationInput, NumCorrespondences, NumCorrespondences, len(pixel), len(robot))
	}
	for i := range pixel {
		if !pixel[i].IsFinite() || !robot[i].IsFinite() {
			return fmt.Errorf("%w: point %d is not finite", ErrInvalidCalibrationInput, i)
		}
	}
	return nil
}

// dltSystem builds the 8×8 system left after fixing h[8] = 1 in the 8×9
// DLT matrix. Each correspondence (x, y) -> (u, v) contributes two rows.
func dltSystem(pixel, robot []Point) ([][]float64, []float64) {
	a := make([][]float64, 0, 2*len(pixel))
	b := make([]float64, 0, 2*len(pixel))
	for i := range pixel {
		x, y := pixel[i].X, pixel[i].Y
		u, v := robot[i].X, robot[i].Y
		a = append(a,
			[]float64{x, y, 1, 0, 0, 0, -u * x, -u * y},
			[]float64{0, 0, 0, x, y, 1, -v * x, -v * y},
		)
		b = append(b, u, v)
	}
	return a, b
}

// Compute solves the pixel -> robot homography from four correspondences.
func Compute(pixel, robot []Point) (Matrix, error) {
	if err := validateCorrespondences(pixel, robot); err != nil {
		return Matrix{}, err
	}
	pn, err := normalizer(pixel)
	if err != nil {
		return Matrix{}, fmt.Errorf("pixel: %w", err)
	}
	rn, err := normalizer(robot)
	if err != nil {
		return Matrix{}, fmt.Errorf("robot: %w", err)
	}

	np := make([]Point, len(pixel))
	nr := make([]Point, len(robot))
	for i := range pixel {
		np[i] = pn.apply(pixel[i])
		nr[i] = rn.apply(robot[i])
	}

	a, b := dltSystem(np, nr)
	sol, err := geomath.SolveLinear(a, b)
	if err != nil {
		return Matrix{}, fmt.Errorf("%w: %v", ErrSingularSystem, err)
	}

	var hn Matrix
	copy(hn[:8], sol)
	hn[8] = 1

	h := fromMat3(geomath.Mul3(rn.inverseMat(), geomath.Mul3(hn.Mat3(), pn.mat())))
	s := h[8]
	if math.Abs(s) < geomath.PivotEpsilon {
		return Matrix{}, fmt.Errorf("%w: cannot normalise h[8]", ErrSingularSystem)
	}
	for i := range h {
		h[i] /= s
	}
	return h, nil
}

// ReprojectionError is the mean squared distance between H(pixel[i]) and
// robot[i]. It is a quality metric only.
func ReprojectionError(h Matrix, pixel, robot []Point) (float64, error) {
	if len(pixel) != len(robot) || len(pixel) == 0 {
		return 0, fmt.Errorf("%w: %d pixel vs %d robot points", ErrInvalidCalibrationInput, len(pixel), len(robot))
	}
	got := make([]Point, len(pixel))
	for i, p := range pixel {
		q, err := h.Apply(p)
		if err != nil {
			return 0, err
		}
		got[i] = q
	}
	return geomath.MeanSquaredError(got, robot)
}
