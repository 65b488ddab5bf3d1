package calibration

import (
	"errors"
	"fmt"

	"github.com/banshee-data/dualarm/internal/kinematics"
)

var (
	// ErrInconsistentPoseSource means a stored calibration pose could not be
	// turned into a world position. The whole recompute is aborted.
	ErrInconsistentPoseSource = errors.New("inconsistent pose source")
	// ErrLowConfidence means forward kinematics had to clamp the internal angle.
	ErrLowConfidence = errors.New("forward kinematics confidence low")
	// ErrUnknownArm means a pose names an arm with no model.
	ErrUnknownArm = errors.New("unknown arm")
	// ErrNoBase means a vertex's owner has no share-point pose to place its base.
	ErrNoBase = errors.New("owner arm has no share-point pose")
	// ErrConflictingOwner means one vertex ID was recorded by both arms.
	ErrConflictingOwner = errors.New("vertex recorded by more than one arm")
	// ErrRejectedHomography means a solved camera matrix failed validation.
	ErrRejectedHomography = errors.New("homography rejected")
)

// PoseSourceError names the calibration pose that failed.
type PoseSourceError struct {
	ID  string
	Arm kinematics.Arm
	Err error
}

func (e *PoseSourceError) Error() string {
	return fmt.Sprintf("%v: %s (%s arm): %v", ErrInconsistentPoseSource, e.ID, e.Arm, e.Err)
}

// Unwrap exposes both the taxonomy sentinel and the underlying cause.
func (e *PoseSourceError) Unwrap() []error {
	return []error{ErrInconsistentPoseSource, e.Err}
}
