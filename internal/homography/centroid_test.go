package homography

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeCentroidMap(t *testing.T) {
	t.Parallel()

	// pixel = (320 + 2x, 240 - 2.5y)
	robot := []Point{{X: -50, Y: 40}, {X: 50, Y: 40}, {X: 50, Y: -40}, {X: -50, Y: -40}}
	pixel := make([]Point, len(robot))
	for i, r := range robot {
		pixel[i] = Point{X: 320 + 2*r.X, Y: 240 - 2.5*r.Y}
	}

	m, err := ComputeCentroidMap(pixel, robot)
	require.NoError(t, err)
	assert.InDelta(t, 320.0, m.Center.X, 1e-9)
	assert.InDelta(t, 240.0, m.Center.Y, 1e-9)
	assert.InDelta(t, 2.0, m.ScaleX, 1e-9)
	assert.InDelta(t, 2.5, m.ScaleY, 1e-9)

	// Robot +Y is pixel -Y.
	up := m.Apply(Point{X: 0, Y: 10})
	assert.InDelta(t, 215.0, up.Y, 1e-9)

	for i, r := range robot {
		got := m.Apply(r)
		assert.InDelta(t, pixel[i].X, got.X, 1e-9)
		assert.InDelta(t, pixel[i].Y, got.Y, 1e-9)
		back := m.Invert(got)
		assert.InDelta(t, r.X, back.X, 1e-9)
		assert.InDelta(t, r.Y, back.Y, 1e-9)
	}
}

func TestComputeCentroidMap_SkipsNearOrigin(t *testing.T) {
	t.Parallel()

	// The first point sits 5mm off the X axis; its X offset is ignored.
	robot := []Point{{X: 5, Y: 60}, {X: 60, Y: 0}, {X: -60, Y: -60}, {X: 0, Y: 0}}
	pixel := []Point{{X: 999, Y: 100}, {X: 400, Y: 200}, {X: 160, Y: 340}, {X: 280, Y: 220}}

	m, err := ComputeCentroidMap(pixel, robot)
	require.NoError(t, err)
	c := m.Center
	assert.InDelta(t, ((400-c.X)/60+(160-c.X)/-60)/2, m.ScaleX, 1e-9)
	assert.InDelta(t, ((c.Y-100)/60+(c.Y-340)/-60)/2, m.ScaleY, 1e-9)
}

func TestComputeCentroidMap_NoUsableOffsets(t *testing.T) {
	t.Parallel()

	robot := []Point{{X: 1, Y: 50}, {X: -2, Y: -50}, {X: 3, Y: 40}, {X: 0, Y: -40}}
	pixel := []Point{{X: 0, Y: 0}, {X: 10, Y: 0}, {X: 0, Y: 10}, {X: 10, Y: 10}}
	_, err := ComputeCentroidMap(pixel, robot)
	assert.ErrorIs(t, err, ErrInvalidCalibrationInput)

	_, err = ComputeCentroidMap(pixel[:3], robot[:3])
	assert.ErrorIs(t, err, ErrInvalidCalibrationInput)
}
