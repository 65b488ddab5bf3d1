package kinematics

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
)

// Arm identifies one side of the rig.
type Arm int

const (
	Left Arm = iota
	Right
)

// Arms lists both arms in a stable order.
var Arms = []Arm{Left, Right}

func (a Arm) String() string {
	switch a {
	case Left:
		return "left"
	case Right:
		return "right"
	}
	return fmt.Sprintf("Arm(%d)", int(a))
}

// ParseArm accepts "left"/"right" and the "left_arm"/"right_arm" keys used
// in configuration files.
func ParseArm(s string) (Arm, error) {
	switch strings.TrimSuffix(strings.ToLower(strings.TrimSpace(s)), "_arm") {
	case "left":
		return Left, nil
	case "right":
		return Right, nil
	}
	return 0, fmt.Errorf("unknown arm %q", s)
}

func (a Arm) MarshalJSON() ([]byte, error) { return json.Marshal(a.String()) }

func (a *Arm) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	parsed, err := ParseArm(s)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// ArmPose holds one solver-frame angle per joint role, in degrees.
type ArmPose [NumJoints]float64

// Point3 is a position in millimetres.
type Point3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z,omitempty"`
}

// Add returns p+o.
func (p Point3) Add(o Point3) Point3 {
	return Point3{X: p.X + o.X, Y: p.Y + o.Y, Z: p.Z + o.Z}
}

// Sub returns p-o.
func (p Point3) Sub(o Point3) Point3 {
	return Point3{X: p.X - o.X, Y: p.Y - o.Y, Z: p.Z - o.Z}
}

// LinkLengths are the arm's segment lengths in millimetres, taken from the
// joints' length fields in chain order.
type LinkLengths struct {
	D1 float64 `json:"d1"` // base height to shoulder pivot
	A2 float64 `json:"a2"` // upper arm
	A3 float64 `json:"a3"` // forearm
	A4 float64 `json:"a4"` // wrist to roll
	A5 float64 `json:"a5"` // roll
	A6 float64 `json:"a6"` // gripper
}

// DefaultClampToleranceDeg is used when ArmOptions leaves the tolerance unset.
const DefaultClampToleranceDeg = 2.0

// ArmOptions are the configuration-driven constants of an arm model.
type ArmOptions struct {
	// ClampToleranceDeg is the largest clamp IK reports as harmless.
	ClampToleranceDeg float64
	// YawZeroHeadingDeg is the world heading (from +X, counter-clockwise) of
	// the yaw θ=0 direction.
	YawZeroHeadingDeg float64
}

// ArmModel is one arm's immutable kinematic description.
type ArmModel struct {
	arm    Arm
	joints [NumJoints]*Joint
	links  LinkLengths
	opts   ArmOptions
}

// NewArmModel builds an arm from six joint specs in role order.
func NewArmModel(arm Arm, specs [NumJoints]JointSpec, opts ArmOptions) (*ArmModel, error) {
	m := &ArmModel{arm: arm, opts: opts}
	for _, role := range Roles {
		j, err := NewJoint(role, specs[role])
		if err != nil {
			return nil, fmt.Errorf("%s arm: %w", arm, err)
		}
		m.joints[role] = j
	}
	m.links = LinkLengths{
		D1: specs[RoleBaseYaw].LinkLengthMm,
		A2: specs[RoleShoulder].LinkLengthMm,
		A3: specs[RoleElbow].LinkLengthMm,
		A4: specs[RoleWristPitch].LinkLengthMm,
		A5: specs[RoleRoll].LinkLengthMm,
		A6: specs[RoleGripper].LinkLengthMm,
	}
	if m.links.A2 <= 0 || m.links.A3 <= 0 {
		return nil, fmt.Errorf("%s arm: %w: shoulder and elbow lengths must be positive (a2=%g, a3=%g)",
			arm, ErrInvalidJointSpec, m.links.A2, m.links.A3)
	}
	if m.opts.ClampToleranceDeg <= 0 {
		m.opts.ClampToleranceDeg = DefaultClampToleranceDeg
	}
	return m, nil
}

func (m *ArmModel) Arm() Arm                    { return m.arm }
func (m *ArmModel) Links() LinkLengths          { return m.links }
func (m *ArmModel) Options() ArmOptions         { return m.opts }
func (m *ArmModel) Joint(role JointRole) *Joint { return m.joints[role] }

// ReachAnnulus returns the min and max shoulder-to-wrist distance.
func (m *ArmModel) ReachAnnulus() (lo, hi float64) {
	return math.Abs(m.links.A2 - m.links.A3), m.links.A2 + m.links.A3
}

// ConventionMismatches lists joints whose role formula disagrees with their
// configured polarity.
func (m *ArmModel) ConventionMismatches() []JointRole {
	var out []JointRole
	for _, role := range Roles {
		if m.joints[role].ConventionMismatch() {
			out = append(out, role)
		}
	}
	return out
}

// SolverToPhysicalDeg converts a solver-frame angle to a clamped physical
// angle, applying the elbow pre-negation.
func (m *ArmModel) SolverToPhysicalDeg(role JointRole, theta float64) (float64, *ClampedWarning) {
	return m.joints[role].LogicalToPhysicalDeg(solverToLogical(role, theta))
}

// PhysicalToSolverDeg is the inverse of SolverToPhysicalDeg.
func (m *ArmModel) PhysicalToSolverDeg(role JointRole, physical float64) float64 {
	return logicalToSolver(role, m.joints[role].PhysicalToLogicalDeg(physical))
}

// PoseFromPulses reads a set of raw pulses back into solver-frame angles.
func (m *ArmModel) PoseFromPulses(pulses [NumJoints]int) (ArmPose, error) {
	var pose ArmPose
	for _, role := range Roles {
		j := m.joints[role]
		if !j.InPulseWindow(pulses[role]) {
			s := j.Spec()
			return ArmPose{}, fmt.Errorf("%s arm %s: %w: %d not in [%d, %d]",
				m.arm, role, ErrPulseOutOfRange, pulses[role], s.PulseMin, s.PulseMax)
		}
		pose[role] = m.PhysicalToSolverDeg(role, j.PulseToPhysicalDeg(pulses[role]))
	}
	return pose, nil
}

// Confidence flags FK results computed from a clamped internal angle.
type Confidence int

const (
	ConfidenceHigh Confidence = iota
	ConfidenceLow
)

func (c Confidence) String() string {
	if c == ConfidenceLow {
		return "low"
	}
	return "high"
}

func (c Confidence) MarshalJSON() ([]byte, error) { return json.Marshal(c.String()) }

// FKResult is the outcome of ForwardKinematics.
type FKResult struct {
	Stance           Stance
	InternalAngleDeg float64
	Reach3D          float64 // shoulder-to-wrist distance
	Drop             float64 // vertical drop of the wrist below the shoulder pivot
	Reach            float64 // horizontal reach from the base axis
	Position         Point3  // wrist position in the world frame
	ToolZ            float64 // tool tip height with the wrist held perpendicular
	Confidence       Confidence
}

// ForwardKinematics applies the Dual Reach Protocol to a solver-frame pose,
// with the arm's base at base.
func (m *ArmModel) ForwardKinematics(pose ArmPose, base Point3) FKResult {
	yaw := pose[RoleBaseYaw]
	shoulder := pose[RoleShoulder]
	elbow := pose[RoleElbow]

	stance := ClassifyStance(yaw)
	internal := stance.InternalAngle(shoulder, elbow)

	confidence := ConfidenceHigh
	if math.IsNaN(internal) || internal < 0 || internal > 180 {
		confidence = ConfidenceLow
		if math.IsNaN(internal) {
			internal = 0
		}
		internal = math.Max(0, math.Min(180, internal))
	}

	a2, a3 := m.links.A2, m.links.A3
	r3d := math.Sqrt(math.Max(0, a2*a2+a3*a3-2*a2*a3*math.Cos(deg2rad(internal))))

	sRad := deg2rad(shoulder)
	drop := r3d * math.Sin(sRad)
	rxy := r3d * math.Cos(sRad)

	// Mirroring is carried by zero offsets; the only direction sign here is
	// the yaw joint's configured polarity.
	sign := m.joints[RoleBaseYaw].Polarity()
	heading := deg2rad(yaw + m.opts.YawZeroHeadingDeg)

	pos := Point3{
		X: base.X + sign*rxy*math.Cos(heading),
		Y: base.Y + sign*rxy*math.Sin(heading),
		Z: base.Z + m.links.D1 - drop,
	}
	return FKResult{
		Stance:           stance,
		InternalAngleDeg: internal,
		Reach3D:          r3d,
		Drop:             drop,
		Reach:            rxy,
		Position:         pos,
		ToolZ:            pos.Z - m.links.A4 - m.links.A6,
		Confidence:       confidence,
	}
}

func deg2rad(d float64) float64 { return d * math.Pi / 180 }
func rad2deg(r float64) float64 { return r * 180 / math.Pi }
