// Package kinematics converts between actuator pulses, physical servo angles
// and logical joint angles, and solves forward/inverse kinematics for one
// arm of the dual-arm rig.
//
// Angle frames used throughout the package:
//
//   - pulse: servo command width in microseconds.
//   - physical: servo horn angle in [0, actuation range] degrees.
//   - logical: degrees away from the joint's zero offset, in the sense
//     given by the joint role's conversion formula.
//   - solver: the frame forward/inverse kinematics work in. It equals the
//     logical frame except for the elbow, whose solver angle is the negated
//     logical angle.
//
// Per-arm mirroring lives entirely in each joint's zero offset. Nothing in
// this package branches on arm identity.
package kinematics

import (
	"fmt"
	"math"
	"strings"
)

// JointKind is the mechanical axis a joint actuates.
type JointKind int

const (
	KindPitch JointKind = iota
	KindYaw
	KindRoll
	KindGripper
)

// ParseJointKind accepts the configuration-file spellings
// ("vertical", "horizontal", "roll", "gripper") as well as the axis names.
func ParseJointKind(s string) (JointKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "vertical", "pitch":
		return KindPitch, nil
	case "horizontal", "yaw":
		return KindYaw, nil
	case "roll":
		return KindRoll, nil
	case "gripper":
		return KindGripper, nil
	}
	return 0, fmt.Errorf("%w: unknown joint type %q", ErrInvalidJointSpec, s)
}

// String returns the configuration-file spelling.
func (k JointKind) String() string {
	switch k {
	case KindPitch:
		return "vertical"
	case KindYaw:
		return "horizontal"
	case KindRoll:
		return "roll"
	case KindGripper:
		return "gripper"
	}
	return fmt.Sprintf("JointKind(%d)", int(k))
}

// MinPosRef names the direction the joint moves toward at its minimum pulse.
type MinPosRef int

const (
	RefBottom MinPosRef = iota
	RefTop
	RefLeft
	RefRight
	RefCcw
	RefCw
	RefOpen
	RefClose
)

var minPosRefNames = map[MinPosRef]string{
	RefBottom: "bottom",
	RefTop:    "top",
	RefLeft:   "left",
	RefRight:  "right",
	RefCcw:    "ccw",
	RefCw:     "cw",
	RefOpen:   "open",
	RefClose:  "close",
}

// ParseMinPosRef parses the lowercase configuration spelling.
func ParseMinPosRef(s string) (MinPosRef, error) {
	want := strings.ToLower(strings.TrimSpace(s))
	for ref, name := range minPosRefNames {
		if name == want {
			return ref, nil
		}
	}
	return 0, fmt.Errorf("%w: unknown min_pos %q", ErrInvalidJointSpec, s)
}

func (r MinPosRef) String() string {
	if name, ok := minPosRefNames[r]; ok {
		return name
	}
	return fmt.Sprintf("MinPosRef(%d)", int(r))
}

// Polarity returns the ±1 sign that turns a physical delta into the joint's
// mathematical sense. Roll and gripper joints are always +1.
func Polarity(kind JointKind, ref MinPosRef) float64 {
	switch kind {
	case KindPitch:
		if ref == RefTop {
			return -1
		}
	case KindYaw:
		if ref == RefLeft {
			return -1
		}
	}
	return 1
}

func refMatchesKind(kind JointKind, ref MinPosRef) bool {
	switch kind {
	case KindPitch:
		return ref == RefBottom || ref == RefTop
	case KindYaw:
		return ref == RefLeft || ref == RefRight
	case KindRoll:
		return ref == RefCcw || ref == RefCw
	case KindGripper:
		return ref == RefOpen || ref == RefClose
	}
	return false
}

// JointSpec is the static configuration of one servo joint.
type JointSpec struct {
	Channel           int
	Kind              JointKind
	ActuationRangeDeg float64
	PulseMin          int
	PulseMax          int
	ZeroPulse         int
	ZeroOffsetDeg     float64
	MinPosRef         MinPosRef
	PhysicalMinDeg    float64
	PhysicalMaxDeg    float64
	LinkLengthMm      float64
	DeviceName        string
}

// Validate checks the invariants of a joint spec.
func (s JointSpec) Validate() error {
	if s.PulseMin >= s.PulseMax {
		return fmt.Errorf("%w: channel %d pulse_min %d must be below pulse_max %d",
			ErrInvalidJointSpec, s.Channel, s.PulseMin, s.PulseMax)
	}
	if s.ActuationRangeDeg <= 0 {
		return fmt.Errorf("%w: channel %d actuation_range must be positive, got %g",
			ErrInvalidJointSpec, s.Channel, s.ActuationRangeDeg)
	}
	if s.PhysicalMinDeg > s.PhysicalMaxDeg {
		return fmt.Errorf("%w: channel %d min %g exceeds max %g",
			ErrInvalidJointSpec, s.Channel, s.PhysicalMinDeg, s.PhysicalMaxDeg)
	}
	if s.ZeroPulse != 0 && (s.ZeroPulse < s.PulseMin || s.ZeroPulse > s.PulseMax) {
		return fmt.Errorf("%w: channel %d zero_pulse %d outside [%d, %d]",
			ErrInvalidJointSpec, s.Channel, s.ZeroPulse, s.PulseMin, s.PulseMax)
	}
	if !refMatchesKind(s.Kind, s.MinPosRef) {
		return fmt.Errorf("%w: channel %d min_pos %q does not apply to %s joints",
			ErrInvalidJointSpec, s.Channel, s.MinPosRef, s.Kind)
	}
	if s.LinkLengthMm < 0 {
		return fmt.Errorf("%w: channel %d length must be non-negative, got %g",
			ErrInvalidJointSpec, s.Channel, s.LinkLengthMm)
	}
	return nil
}

// MathRange is the reachable logical interval of a joint.
type MathRange struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// Contains reports whether theta lies in the range, allowing for float noise.
func (r MathRange) Contains(theta float64) bool {
	const eps = 1e-9
	return theta >= r.Min-eps && theta <= r.Max+eps
}

// ClampedWarning records a value that was pulled back into a joint's window.
type ClampedWarning struct {
	Channel  int       `json:"channel"`
	Role     JointRole `json:"role"`
	Original float64   `json:"original"`
	Clamped  float64   `json:"clamped"`
}

// Excess is how far the original value lay outside the window.
func (w ClampedWarning) Excess() float64 {
	return math.Abs(w.Original - w.Clamped)
}

func (w ClampedWarning) String() string {
	return fmt.Sprintf("%s (channel %d) clamped %.2f° -> %.2f°", w.Role, w.Channel, w.Original, w.Clamped)
}

// Joint is a JointSpec bound to its role in the arm, with polarity and
// MathRange derived once at construction.
type Joint struct {
	spec      JointSpec
	role      JointRole
	polarity  float64
	mathRange MathRange
}

// NewJoint validates spec and derives the joint's static conversion data.
func NewJoint(role JointRole, spec JointSpec) (*Joint, error) {
	if err := spec.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", role, err)
	}
	j := &Joint{
		spec:     spec,
		role:     role,
		polarity: Polarity(spec.Kind, spec.MinPosRef),
	}
	lo, hi := j.PhysicalWindow()
	a := (lo - spec.ZeroOffsetDeg) * j.polarity
	b := (hi - spec.ZeroOffsetDeg) * j.polarity
	j.mathRange = MathRange{Min: math.Min(a, b), Max: math.Max(a, b)}
	return j, nil
}

func (j *Joint) Spec() JointSpec      { return j.spec }
func (j *Joint) Role() JointRole      { return j.role }
func (j *Joint) Polarity() float64    { return j.polarity }
func (j *Joint) MathRange() MathRange { return j.mathRange }

// PhysicalWindow is the clamp window for physical angles: the configured
// min/max when present, otherwise the full actuation range.
func (j *Joint) PhysicalWindow() (lo, hi float64) {
	if j.spec.PhysicalMinDeg == 0 && j.spec.PhysicalMaxDeg == 0 {
		return 0, j.spec.ActuationRangeDeg
	}
	return j.spec.PhysicalMinDeg, j.spec.PhysicalMaxDeg
}

// PulseToPhysicalDeg maps a pulse width linearly onto the actuation range.
// The result is not clamped.
func (j *Joint) PulseToPhysicalDeg(pulse int) float64 {
	span := float64(j.spec.PulseMax - j.spec.PulseMin)
	return float64(pulse-j.spec.PulseMin) / span * j.spec.ActuationRangeDeg
}

// PhysicalDegToPulse is the inverse of PulseToPhysicalDeg, rounded to the
// nearest microsecond. The result is not clamped.
func (j *Joint) PhysicalDegToPulse(deg float64) int {
	span := float64(j.spec.PulseMax - j.spec.PulseMin)
	return int(math.Round(deg/j.spec.ActuationRangeDeg*span)) + j.spec.PulseMin
}

// InPulseWindow reports whether pulse lies inside [PulseMin, PulseMax].
func (j *Joint) InPulseWindow(pulse int) bool {
	return pulse >= j.spec.PulseMin && pulse <= j.spec.PulseMax
}

// LogicalToPhysicalDeg applies the role's conversion formula and clamps the
// result into the physical window. A non-nil warning is returned when the
// value had to be clamped.
func (j *Joint) LogicalToPhysicalDeg(theta float64) (float64, *ClampedWarning) {
	var physical float64
	switch j.role.formula() {
	case formulaZeroMinus:
		physical = j.spec.ZeroOffsetDeg - theta
	default:
		physical = j.spec.ZeroOffsetDeg + theta
	}

	lo, hi := j.PhysicalWindow()
	clamped := math.Max(lo, math.Min(hi, physical))
	if clamped != physical {
		return clamped, &ClampedWarning{
			Channel:  j.spec.Channel,
			Role:     j.role,
			Original: physical,
			Clamped:  clamped,
		}
	}
	return physical, nil
}

// PhysicalToLogicalDeg is the exact inverse of the role's conversion formula.
func (j *Joint) PhysicalToLogicalDeg(physical float64) float64 {
	if j.role.formula() == formulaZeroMinus {
		return j.spec.ZeroOffsetDeg - physical
	}
	return physical - j.spec.ZeroOffsetDeg
}

// LogicalToPulse runs logical -> physical (clamped) -> pulse, keeping the
// pulse inside the joint's pulse window.
func (j *Joint) LogicalToPulse(theta float64) (int, *ClampedWarning) {
	physical, warn := j.LogicalToPhysicalDeg(theta)
	pulse := j.PhysicalDegToPulse(physical)
	if pulse < j.spec.PulseMin {
		pulse = j.spec.PulseMin
	}
	if pulse > j.spec.PulseMax {
		pulse = j.spec.PulseMax
	}
	return pulse, warn
}

// ConventionMismatch reports whether the sign implied by the role's formula
// (including the elbow pre-negation) disagrees with the configured polarity.
// Such joints still convert with their role formula; the mismatch is only
// surfaced as a load-time diagnostic. Yaw is exempt: forward kinematics
// applies its polarity directly as the world X/Y sign.
func (j *Joint) ConventionMismatch() bool {
	if j.role == RoleBaseYaw {
		return false
	}
	return j.role.solverSign() != j.polarity
}
