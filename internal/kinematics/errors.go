package kinematics

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrUnreachable means the target lies outside the arm's annulus.
	ErrUnreachable = errors.New("target unreachable")
	// ErrOutOfEnvelope means a solved angle was clamped beyond tolerance.
	ErrOutOfEnvelope = errors.New("joint angle outside envelope")
	// ErrInvalidJointSpec means a joint configuration violates an invariant.
	ErrInvalidJointSpec = errors.New("invalid joint spec")
	// ErrPulseOutOfRange means a pulse lies outside its joint's window.
	ErrPulseOutOfRange = errors.New("pulse outside joint window")
)

// UnreachableError carries the geometry that made a target unreachable.
type UnreachableError struct {
	Arm      Arm
	Distance float64
	MinReach float64
	MaxReach float64
}

func (e *UnreachableError) Error() string {
	return fmt.Sprintf("%s arm: shoulder-to-wrist distance %.1fmm outside [%.1f, %.1f]mm: %v",
		e.Arm, e.Distance, e.MinReach, e.MaxReach, ErrUnreachable)
}

func (e *UnreachableError) Unwrap() error { return ErrUnreachable }

// OutOfEnvelopeError lists the clamps that exceeded the tolerance. It is
// informational: the solution it accompanies is still usable.
type OutOfEnvelopeError struct {
	ToleranceDeg float64
	Clamps       []ClampedWarning
}

func (e *OutOfEnvelopeError) Error() string {
	parts := make([]string, 0, len(e.Clamps))
	for _, c := range e.Clamps {
		parts = append(parts, c.String())
	}
	return fmt.Sprintf("%v (tolerance %.2f°): %s", ErrOutOfEnvelope, e.ToleranceDeg, strings.Join(parts, "; "))
}

func (e *OutOfEnvelopeError) Unwrap() error { return ErrOutOfEnvelope }
