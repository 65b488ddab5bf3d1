package config

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"

	"github.com/banshee-data/dualarm/internal/calibration"
	"github.com/banshee-data/dualarm/internal/fsutil"
	"github.com/banshee-data/dualarm/internal/homography"
	"github.com/banshee-data/dualarm/internal/kinematics"
	"github.com/banshee-data/dualarm/internal/monitoring"
)

// JointEntry is one joint as written in the arm configuration file.
type JointEntry struct {
	Channel        int     `json:"channel"`
	Type           string  `json:"type"`
	MinPos         string  `json:"min_pos"`
	ActuationRange float64 `json:"actuation_range"`
	PulseMin       int     `json:"pulse_min"`
	PulseMax       int     `json:"pulse_max"`
	ZeroPulse      int     `json:"zero_pulse"`
	ZeroOffset     float64 `json:"zero_offset"`
	Min            float64 `json:"min"`
	Max            float64 `json:"max"`
	Length         float64 `json:"length"`
	DeviceName     string  `json:"device_name,omitempty"`
}

// Spec converts the entry into a validated kinematics.JointSpec.
func (e JointEntry) Spec() (kinematics.JointSpec, error) {
	kind, err := kinematics.ParseJointKind(e.Type)
	if err != nil {
		return kinematics.JointSpec{}, err
	}
	ref, err := kinematics.ParseMinPosRef(e.MinPos)
	if err != nil {
		return kinematics.JointSpec{}, err
	}
	spec := kinematics.JointSpec{
		Channel:           e.Channel,
		Kind:              kind,
		ActuationRangeDeg: e.ActuationRange,
		PulseMin:          e.PulseMin,
		PulseMax:          e.PulseMax,
		ZeroPulse:         e.ZeroPulse,
		ZeroOffsetDeg:     e.ZeroOffset,
		MinPosRef:         ref,
		PhysicalMinDeg:    e.Min,
		PhysicalMaxDeg:    e.Max,
		LinkLengthMm:      e.Length,
		DeviceName:        e.DeviceName,
	}
	return spec, spec.Validate()
}

// ArmEntry lists an arm's six joints in chain order.
type ArmEntry struct {
	Joints []JointEntry `json:"joints"`
}

// PoseEntry is a stored calibration pose. Angles are derived from Pulses
// and rewritten by Refresh.
type PoseEntry struct {
	Owner  string                         `json:"owner,omitempty"`
	Pulses [kinematics.NumJoints]int      `json:"pulses"`
	Angles *[kinematics.NumJoints]float64 `json:"angles,omitempty"`
}

// ArmConfig is the arm configuration file.
type ArmConfig struct {
	Arms        map[string]ArmEntry    `json:"arms"`
	SharePoints map[string][]PoseEntry `json:"share_points,omitempty"`
	Vertices    map[string]PoseEntry   `json:"vertices,omitempty"`
	Geometry    *calibration.Block     `json:"geometry,omitempty"`
}

// LoadArmConfig reads and validates an arm configuration file.
func LoadArmConfig(fsys fsutil.FileSystem, path string) (*ArmConfig, error) {
	data, err := readConfigFile(fsys, path)
	if err != nil {
		return nil, err
	}
	cfg := &ArmConfig{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse arm config JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid arm configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks arm keys, joint counts and specs, channel uniqueness and
// pose owners.
func (c *ArmConfig) Validate() error {
	if len(c.Arms) == 0 {
		return fmt.Errorf("no arms configured")
	}
	keys := make([]string, 0, len(c.Arms))
	for key := range c.Arms {
		arm, err := kinematics.ParseArm(key)
		if err != nil {
			return err
		}
		if key != calibration.ArmKey(arm) {
			return fmt.Errorf("arm key %q must be spelled %q", key, calibration.ArmKey(arm))
		}
		keys = append(keys, key)
	}
	sort.Strings(keys)

	channels := make(map[int]string)
	for _, key := range keys {
		entry := c.Arms[key]
		if len(entry.Joints) != kinematics.NumJoints {
			return fmt.Errorf("%s: expected %d joints, got %d", key, kinematics.NumJoints, len(entry.Joints))
		}
		for i, j := range entry.Joints {
			if _, err := j.Spec(); err != nil {
				return fmt.Errorf("%s %s: %w", key, kinematics.Roles[i], err)
			}
			if prev, dup := channels[j.Channel]; dup {
				return fmt.Errorf("%s %s: channel %d already used by %s", key, kinematics.Roles[i], j.Channel, prev)
			}
			channels[j.Channel] = key + " " + kinematics.Roles[i].String()
		}
	}
	for key := range c.SharePoints {
		if err := c.checkArm(key); err != nil {
			return fmt.Errorf("share_points: %w", err)
		}
	}
	for id, v := range c.Vertices {
		if err := c.checkArm(v.Owner); err != nil {
			return fmt.Errorf("vertex %s: %w", id, err)
		}
	}
	return nil
}

func (c *ArmConfig) checkArm(key string) error {
	arm, err := kinematics.ParseArm(key)
	if err != nil {
		return err
	}
	if _, ok := c.Arms[calibration.ArmKey(arm)]; !ok {
		return fmt.Errorf("%w: %s", calibration.ErrUnknownArm, key)
	}
	return nil
}

func (c *ArmConfig) entry(arm kinematics.Arm) (ArmEntry, bool) {
	e, ok := c.Arms[calibration.ArmKey(arm)]
	return e, ok
}

// JointSpecs returns an arm's joint specs in role order.
func (c *ArmConfig) JointSpecs(arm kinematics.Arm) ([kinematics.NumJoints]kinematics.JointSpec, error) {
	var specs [kinematics.NumJoints]kinematics.JointSpec
	e, ok := c.entry(arm)
	if !ok {
		return specs, fmt.Errorf("%w: %s", calibration.ErrUnknownArm, arm)
	}
	for i, j := range e.Joints {
		s, err := j.Spec()
		if err != nil {
			return specs, fmt.Errorf("%s %s: %w", arm, kinematics.Roles[i], err)
		}
		specs[i] = s
	}
	return specs, nil
}

// Models builds an ArmModel for every configured arm and logs any joint
// whose min_pos disagrees with its role formula.
func (c *ArmConfig) Models(opts kinematics.ArmOptions) (map[kinematics.Arm]*kinematics.ArmModel, error) {
	models := make(map[kinematics.Arm]*kinematics.ArmModel, len(c.Arms))
	for _, arm := range kinematics.Arms {
		if _, ok := c.entry(arm); !ok {
			continue
		}
		specs, err := c.JointSpecs(arm)
		if err != nil {
			return nil, err
		}
		m, err := kinematics.NewArmModel(arm, specs, opts)
		if err != nil {
			return nil, err
		}
		for _, role := range m.ConventionMismatches() {
			monitoring.Logf("config: %s arm %s min_pos %s conflicts with its conversion formula",
				arm, role, specs[role].MinPosRef)
		}
		models[arm] = m
	}
	return models, nil
}

// Poses returns the stored calibration poses in engine form.
func (c *ArmConfig) Poses() (calibration.CalibrationPoses, error) {
	poses := calibration.CalibrationPoses{
		SharePoints: make(map[kinematics.Arm][]calibration.PoseSource),
	}
	if c.Geometry != nil {
		poses.CoordinateSystem = c.Geometry.CoordinateSystem
		poses.Origin = kinematics.Point3{X: c.Geometry.Origin.X, Y: c.Geometry.Origin.Y}
	}

	for key, entries := range c.SharePoints {
		arm, err := kinematics.ParseArm(key)
		if err != nil {
			return poses, err
		}
		for i, e := range entries {
			poses.SharePoints[arm] = append(poses.SharePoints[arm], calibration.PoseSource{
				ID:     calibration.SharePointSourceID(arm, i),
				Owner:  arm,
				Pulses: e.Pulses,
			})
		}
	}

	ids := make([]string, 0, len(c.Vertices))
	for id := range c.Vertices {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		v := c.Vertices[id]
		owner, err := kinematics.ParseArm(v.Owner)
		if err != nil {
			return poses, fmt.Errorf("vertex %s: %w", id, err)
		}
		poses.Vertices = append(poses.Vertices, calibration.PoseSource{ID: id, Owner: owner, Pulses: v.Pulses})
	}
	return poses, nil
}

func roundAngles(p kinematics.ArmPose) *[kinematics.NumJoints]float64 {
	var out [kinematics.NumJoints]float64
	for i, v := range p {
		out[i] = math.Round(v*1000) / 1000
	}
	return &out
}

// Refresh rewrites the derived parts of the file, the per-pose angles and
// the geometry block, from a computed geometry.
func (c *ArmConfig) Refresh(g *calibration.Geometry) {
	for key, entries := range c.SharePoints {
		arm, err := kinematics.ParseArm(key)
		if err != nil {
			continue
		}
		for i := range entries {
			if pose, ok := g.Poses[calibration.SharePointSourceID(arm, i)]; ok {
				entries[i].Angles = roundAngles(pose)
			}
		}
	}
	for id, v := range c.Vertices {
		if pose, ok := g.Poses[id]; ok {
			v.Angles = roundAngles(pose)
			c.Vertices[id] = v
		}
	}
	c.Geometry = g.Block()
}

// Save writes the configuration as indented JSON.
func (c *ArmConfig) Save(fsys fsutil.FileSystem, path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode arm config: %w", err)
	}
	if err := fsys.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("failed to write arm config: %w", err)
	}
	return nil
}

// CameraPoints is the camera calibration input file: four pixel positions
// and the robot-plane positions they correspond to.
type CameraPoints struct {
	Pixel []homography.Point `json:"pixel"`
	Robot []homography.Point `json:"robot"`
}

// LoadCameraPoints reads a camera correspondence file.
func LoadCameraPoints(fsys fsutil.FileSystem, path string) (*CameraPoints, error) {
	data, err := readConfigFile(fsys, path)
	if err != nil {
		return nil, err
	}
	cp := &CameraPoints{}
	if err := json.Unmarshal(data, cp); err != nil {
		return nil, fmt.Errorf("failed to parse camera points JSON: %w", err)
	}
	if len(cp.Pixel) != homography.NumCorrespondences || len(cp.Robot) != homography.NumCorrespondences {
		return nil, fmt.Errorf("%w: camera file needs %d pixel and robot points, got %d and %d",
			homography.ErrInvalidCalibrationInput, homography.NumCorrespondences, len(cp.Pixel), len(cp.Robot))
	}
	return cp, nil
}
