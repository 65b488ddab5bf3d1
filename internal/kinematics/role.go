package kinematics

import (
	"encoding/json"
	"fmt"
)

// NumJoints is the number of joints in one arm.
const NumJoints = 6

// JointRole is a joint's position in the kinematic chain. Roles index
// ArmPose and the joint arrays of ArmModel.
type JointRole int

const (
	RoleBaseYaw JointRole = iota
	RoleShoulder
	RoleElbow
	RoleWristPitch
	RoleRoll
	RoleGripper
)

var roleNames = [NumJoints]string{"base_yaw", "shoulder", "elbow", "wrist_pitch", "roll", "gripper"}

// Roles lists every role in chain order.
var Roles = [NumJoints]JointRole{RoleBaseYaw, RoleShoulder, RoleElbow, RoleWristPitch, RoleRoll, RoleGripper}

func (r JointRole) String() string {
	if r >= 0 && int(r) < NumJoints {
		return roleNames[r]
	}
	return fmt.Sprintf("JointRole(%d)", int(r))
}

// MarshalJSON writes the role name.
func (r JointRole) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.String())
}

type conversionFormula int

const (
	// physical = zero + theta
	formulaZeroPlus conversionFormula = iota
	// physical = zero - theta
	formulaZeroMinus
)

// formula selects the logical->physical variant. The wrist folds its
// negation into the formula; the elbow does not (see solverSign).
func (r JointRole) formula() conversionFormula {
	if r == RoleWristPitch {
		return formulaZeroMinus
	}
	return formulaZeroPlus
}

// solverSign is the overall sign from a solver angle to a physical delta.
func (r JointRole) solverSign() float64 {
	switch r {
	case RoleElbow, RoleWristPitch:
		return -1
	}
	return 1
}

// solverToLogical applies the elbow pre-negation: IK produces the elbow
// angle in the solver frame and the joint formula expects its negation.
func solverToLogical(role JointRole, theta float64) float64 {
	if role == RoleElbow {
		return -theta
	}
	return theta
}

func logicalToSolver(role JointRole, theta float64) float64 {
	if role == RoleElbow {
		return -theta
	}
	return theta
}
