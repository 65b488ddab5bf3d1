package kinematics

import (
	"math"
	"time"
)

// LocalTarget is an IK target in the arm-local cylindrical frame. YawDeg is
// the base rotation the caller derived with atan2; Roll and Gripper are
// passed through as solver angles.
type LocalTarget struct {
	Reach      float64 `json:"reach"`
	Height     float64 `json:"height"`
	YawDeg     float64 `json:"yaw_deg"`
	RollDeg    float64 `json:"roll_deg,omitempty"`
	GripperDeg float64 `json:"gripper_deg,omitempty"`
}

// JointCommand is one joint's share of an IK solution.
type JointCommand struct {
	Role        JointRole `json:"role"`
	Channel     int       `json:"channel"`
	SolverDeg   float64   `json:"solver_deg"`
	PhysicalDeg float64   `json:"physical_deg"`
	Pulse       int       `json:"pulse"`
}

// IKSolution is a solved target. Pose is the unclamped solver-frame pose;
// Joints carry the clamped physical angles and pulses actually commanded.
type IKSolution struct {
	Arm    Arm
	Target LocalTarget
	Stance Stance
	Elbow  ElbowConfig
	Pose   ArmPose
	Joints [NumJoints]JointCommand
	Clamps []ClampedWarning

	toleranceDeg float64
}

// Pulses returns the commanded pulse per joint in role order.
func (s *IKSolution) Pulses() [NumJoints]int {
	var out [NumJoints]int
	for i, j := range s.Joints {
		out[i] = j.Pulse
	}
	return out
}

// EnvelopeErr returns an *OutOfEnvelopeError when any clamp exceeded the
// arm's tolerance. The solution is still usable either way.
func (s *IKSolution) EnvelopeErr() error {
	var over []ClampedWarning
	for _, c := range s.Clamps {
		if c.Excess() > s.toleranceDeg {
			over = append(over, c)
		}
	}
	if len(over) == 0 {
		return nil
	}
	return &OutOfEnvelopeError{ToleranceDeg: s.toleranceDeg, Clamps: over}
}

// MotionCommand is what the hardware transport receives: one pulse width
// per channel plus the time the move should take.
type MotionCommand struct {
	Arm      Arm            `json:"arm"`
	Channels [NumJoints]int `json:"channels"`
	Pulses   [NumJoints]int `json:"pulses"`
	Duration time.Duration  `json:"duration"`
}

// Command packages the solution for the transport.
func (s *IKSolution) Command(d time.Duration) MotionCommand {
	cmd := MotionCommand{Arm: s.Arm, Duration: d}
	for i, j := range s.Joints {
		cmd.Channels[i] = j.Channel
		cmd.Pulses[i] = j.Pulse
	}
	return cmd
}

// InverseKinematics solves a local (reach, height) target. The solver is the
// exact inverse of ForwardKinematics: the wrist point is placed a4+a6 above
// the target, the shoulder angle is the pitch of the shoulder-to-wrist chord
// and the elbow is recovered from the stance's internal-angle formula.
func (m *ArmModel) InverseKinematics(target LocalTarget) (*IKSolution, error) {
	l := m.links
	wristZ := target.Height + l.A4 + l.A6
	drop := l.D1 - wristZ

	dist := math.Hypot(target.Reach, drop)
	lo, hi := m.ReachAnnulus()
	const eps = 1e-9
	if dist > hi+eps || dist < lo-eps {
		return nil, &UnreachableError{Arm: m.arm, Distance: dist, MinReach: lo, MaxReach: hi}
	}

	shoulder := rad2deg(math.Atan2(drop, target.Reach))
	cosInt := (l.A2*l.A2 + l.A3*l.A3 - dist*dist) / (2 * l.A2 * l.A3)
	internal := rad2deg(math.Acos(math.Max(-1, math.Min(1, cosInt))))

	stance := ClassifyStance(target.YawDeg)
	cfg, elbow := m.pickElbow(stance, shoulder, internal)

	var pose ArmPose
	pose[RoleBaseYaw] = target.YawDeg
	pose[RoleShoulder] = shoulder
	pose[RoleElbow] = elbow
	pose[RoleWristPitch] = -90 - shoulder + elbow
	pose[RoleRoll] = target.RollDeg
	pose[RoleGripper] = target.GripperDeg

	sol := &IKSolution{
		Arm:          m.arm,
		Target:       target,
		Stance:       stance,
		Elbow:        cfg,
		Pose:         pose,
		toleranceDeg: m.opts.ClampToleranceDeg,
	}
	for _, role := range Roles {
		j := m.joints[role]
		physical, warn := m.SolverToPhysicalDeg(role, pose[role])
		if warn != nil {
			sol.Clamps = append(sol.Clamps, *warn)
		}
		pulse := j.PhysicalDegToPulse(physical)
		s := j.Spec()
		pulse = max(s.PulseMin, min(s.PulseMax, pulse))
		sol.Joints[role] = JointCommand{
			Role:        role,
			Channel:     s.Channel,
			SolverDeg:   pose[role],
			PhysicalDeg: physical,
			Pulse:       pulse,
		}
	}
	return sol, nil
}

// pickElbow prefers a configuration whose shoulder and elbow angles both lie
// inside their MathRanges, and ElbowUp when both or neither qualify.
func (m *ArmModel) pickElbow(stance Stance, shoulder, internal float64) (ElbowConfig, float64) {
	qualifies := func(elbow float64) bool {
		return m.joints[RoleShoulder].MathRange().Contains(shoulder) &&
			m.joints[RoleElbow].MathRange().Contains(elbow)
	}
	up := stance.ElbowAngle(shoulder, internal, ElbowUp)
	if qualifies(up) {
		return ElbowUp, up
	}
	down := stance.ElbowAngle(shoulder, internal, ElbowDown)
	if qualifies(down) {
		return ElbowDown, down
	}
	return ElbowUp, up
}

// SolveWorld removes yaw from a world-frame target around base and solves
// the resulting local target.
func (m *ArmModel) SolveWorld(target, base Point3) (*IKSolution, error) {
	sign := m.joints[RoleBaseYaw].Polarity()
	dx := sign * (target.X - base.X)
	dy := sign * (target.Y - base.Y)
	yaw := NormalizeDeg(rad2deg(math.Atan2(dy, dx)) - m.opts.YawZeroHeadingDeg)
	return m.InverseKinematics(LocalTarget{
		Reach:  math.Hypot(dx, dy),
		Height: target.Z - base.Z,
		YawDeg: yaw,
	})
}

// NormalizeDeg wraps an angle into (-180, 180].
func NormalizeDeg(d float64) float64 {
	d = math.Mod(d, 360)
	if d <= -180 {
		d += 360
	} else if d > 180 {
		d -= 360
	}
	return d
}
