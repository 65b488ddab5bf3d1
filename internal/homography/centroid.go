package homography

import (
	"fmt"
	"math"

	"github.com/banshee-data/dualarm/internal/geomath"
)

// MinScaleOffsetMm excludes robot coordinates this close to the share point
// from the scale estimate.
const MinScaleOffsetMm = 10.0

// CentroidMap is an axis-aligned robot -> pixel projection around the share
// point. Robot +Y points up; pixel +Y points down.
type CentroidMap struct {
	Center Point   `json:"center"`
	ScaleX float64 `json:"scale_x"` // pixels per mm
	ScaleY float64 `json:"scale_y"` // pixels per mm
}

// ComputeCentroidMap derives the fallback map from four correspondences.
// The pixel centroid is taken as the share point; each axis scale is the
// mean of pixelOffset/robotOffset over points more than MinScaleOffsetMm
// from the share point on that axis.
func ComputeCentroidMap(pixel, robot []Point) (CentroidMap, error) {
	if err := validateCorrespondences(pixel, robot); err != nil {
		return CentroidMap{}, err
	}
	c := geomath.Centroid(pixel)

	var sx, sy []float64
	for i := range pixel {
		if math.Abs(robot[i].X) > MinScaleOffsetMm {
			sx = append(sx, (pixel[i].X-c.X)/robot[i].X)
		}
		if math.Abs(robot[i].Y) > MinScaleOffsetMm {
			sy = append(sy, (c.Y-pixel[i].Y)/robot[i].Y)
		}
	}
	if len(sx) == 0 || len(sy) == 0 {
		return CentroidMap{}, fmt.Errorf("%w: no robot point more than %.0fmm from the share point on each axis",
			ErrInvalidCalibrationInput, MinScaleOffsetMm)
	}
	m := CentroidMap{Center: c, ScaleX: geomath.Mean(sx), ScaleY: geomath.Mean(sy)}
	if m.ScaleX == 0 || m.ScaleY == 0 {
		return CentroidMap{}, fmt.Errorf("%w: zero scale (x=%g, y=%g)", ErrInvalidCalibrationInput, m.ScaleX, m.ScaleY)
	}
	return m, nil
}

// Apply projects a robot-plane point to pixels.
func (m CentroidMap) Apply(robot Point) Point {
	return Point{X: m.Center.X + robot.X*m.ScaleX, Y: m.Center.Y - robot.Y*m.ScaleY}
}

// Invert maps a pixel back to the robot plane.
func (m CentroidMap) Invert(pixel Point) Point {
	return Point{X: (pixel.X - m.Center.X) / m.ScaleX, Y: (m.Center.Y - pixel.Y) / m.ScaleY}
}
