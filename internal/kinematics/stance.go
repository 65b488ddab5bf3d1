package kinematics

import "math"

// StanceThresholdDeg splits the two reach regimes. Yaw magnitudes strictly
// below it are Open; exactly 60° and above are Closed.
const StanceThresholdDeg = 60.0

// ElbowConfig selects one of the two two-link solutions.
type ElbowConfig int

const (
	ElbowUp ElbowConfig = iota
	ElbowDown
)

func (c ElbowConfig) String() string {
	if c == ElbowDown {
		return "elbow_down"
	}
	return "elbow_up"
}

// Stance is the reach regime selected by base yaw. Each implementation
// carries its own internal-angle formula and its inverse.
type Stance interface {
	// Name is "open" or "closed".
	Name() string
	// InternalAngle returns the elbow's interior angle for the given
	// shoulder and elbow solver angles.
	InternalAngle(shoulderDeg, elbowDeg float64) float64
	// ElbowAngle inverts InternalAngle for a given shoulder angle.
	ElbowAngle(shoulderDeg, internalDeg float64, cfg ElbowConfig) float64

	isStance()
}

// OpenStance keeps the arm extended: the elbow is compensated by the
// shoulder's drop.
type OpenStance struct{}

func (OpenStance) Name() string { return "open" }

func (OpenStance) InternalAngle(shoulderDeg, elbowDeg float64) float64 {
	return 180 - math.Abs(elbowDeg-shoulderDeg)
}

func (OpenStance) ElbowAngle(shoulderDeg, internalDeg float64, cfg ElbowConfig) float64 {
	bend := 180 - internalDeg
	if cfg == ElbowDown {
		return shoulderDeg - bend
	}
	return shoulderDeg + bend
}

func (OpenStance) isStance() {}

// ClosedStance folds the arm: the elbow angle is the interior angle.
type ClosedStance struct{}

func (ClosedStance) Name() string { return "closed" }

func (ClosedStance) InternalAngle(_, elbowDeg float64) float64 {
	return elbowDeg
}

func (ClosedStance) ElbowAngle(_, internalDeg float64, _ ElbowConfig) float64 {
	return internalDeg
}

func (ClosedStance) isStance() {}

// ClassifyStance picks the regime for a base yaw in degrees.
func ClassifyStance(yawDeg float64) Stance {
	if math.Abs(yawDeg) < StanceThresholdDeg {
		return OpenStance{}
	}
	return ClosedStance{}
}
