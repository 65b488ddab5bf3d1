package config

import (
	"encoding/json"
	"fmt"
	"math"
	"path/filepath"
	"time"

	"github.com/banshee-data/dualarm/internal/calibration"
	"github.com/banshee-data/dualarm/internal/fsutil"
	"github.com/banshee-data/dualarm/internal/homography"
	"github.com/banshee-data/dualarm/internal/kinematics"
)

// DefaultConfigPath is the path to the canonical tuning defaults file.
// This is the single source of truth for all default tuning values.
const DefaultConfigPath = "config/tuning.defaults.json"

// MaxConfigBytes caps the size of any configuration file.
const MaxConfigBytes = 1 * 1024 * 1024 // 1MB

// TuningConfig holds the engine constants that are configuration rather
// than geometry. Every field is optional; Get* accessors fall back to the
// built-in defaults.
type TuningConfig struct {
	// Kinematics
	ClampToleranceDeg *float64 `json:"clamp_tolerance_deg,omitempty"`
	YawZeroHeadingDeg *float64 `json:"yaw_zero_heading_deg,omitempty"`
	MotionDuration    *string  `json:"motion_duration,omitempty"` // duration string like "750ms"

	// Calibration diagnostics
	DeclaredForwardHeadingDeg *float64 `json:"declared_forward_heading_deg,omitempty"`
	ExpectedBaseDistanceMm    *float64 `json:"expected_base_distance_mm,omitempty"`
	BaseDistanceWarnRatio     *float64 `json:"base_distance_warn_ratio,omitempty"`
	SharePointSpreadWarnMm    *float64 `json:"share_point_spread_warn_mm,omitempty"`

	// Camera
	HomographyRMSEGoodMm *float64 `json:"homography_rmse_good_mm,omitempty"`
}

// EmptyTuningConfig returns a TuningConfig with all fields set to nil.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// LoadTuningConfig loads a TuningConfig from a JSON file.
// Fields omitted from the JSON file retain their default values, so
// partial configs are safe.
func LoadTuningConfig(fsys fsutil.FileSystem, path string) (*TuningConfig, error) {
	data, err := readConfigFile(fsys, path)
	if err != nil {
		return nil, err
	}

	cfg := EmptyTuningConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// readConfigFile enforces the .json extension and size ceiling shared by
// every configuration file.
func readConfigFile(fsys fsutil.FileSystem, path string) ([]byte, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}
	data, err := fsutil.ReadLimited(fsys, cleanPath, MaxConfigBytes)
	if err != nil {
		return nil, fmt.Errorf("config file: %w", err)
	}
	return data, nil
}

// MustLoadDefaultConfig loads the canonical tuning defaults from DefaultConfigPath.
// It searches for the file in the current directory and common parent directories.
// Panics if the file cannot be loaded, intended for test setup.
func MustLoadDefaultConfig() *TuningConfig {
	candidates := []string{
		DefaultConfigPath,
		"../../" + DefaultConfigPath,    // from internal/config/
		"../../../" + DefaultConfigPath, // from internal/calibration/report/
	}
	for _, path := range candidates {
		if cfg, err := LoadTuningConfig(fsutil.OSFileSystem{}, path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the configuration values are valid.
func (c *TuningConfig) Validate() error {
	if c.ClampToleranceDeg != nil && (*c.ClampToleranceDeg <= 0 || *c.ClampToleranceDeg > 45) {
		return fmt.Errorf("clamp_tolerance_deg must be in (0, 45], got %f", *c.ClampToleranceDeg)
	}

	for name, v := range map[string]*float64{
		"yaw_zero_heading_deg":         c.YawZeroHeadingDeg,
		"declared_forward_heading_deg": c.DeclaredForwardHeadingDeg,
	} {
		if v != nil && (math.IsNaN(*v) || *v <= -360 || *v >= 360) {
			return fmt.Errorf("%s must be in (-360, 360), got %f", name, *v)
		}
	}

	if c.ExpectedBaseDistanceMm != nil && *c.ExpectedBaseDistanceMm < 0 {
		return fmt.Errorf("expected_base_distance_mm must be non-negative, got %f", *c.ExpectedBaseDistanceMm)
	}

	if c.BaseDistanceWarnRatio != nil && (*c.BaseDistanceWarnRatio <= 0 || *c.BaseDistanceWarnRatio >= 1) {
		return fmt.Errorf("base_distance_warn_ratio must be between 0 and 1, got %f", *c.BaseDistanceWarnRatio)
	}

	if c.SharePointSpreadWarnMm != nil && *c.SharePointSpreadWarnMm <= 0 {
		return fmt.Errorf("share_point_spread_warn_mm must be positive, got %f", *c.SharePointSpreadWarnMm)
	}

	if c.HomographyRMSEGoodMm != nil && *c.HomographyRMSEGoodMm <= 0 {
		return fmt.Errorf("homography_rmse_good_mm must be positive, got %f", *c.HomographyRMSEGoodMm)
	}

	if c.MotionDuration != nil && *c.MotionDuration != "" {
		d, err := time.ParseDuration(*c.MotionDuration)
		if err != nil {
			return fmt.Errorf("invalid motion_duration '%s': %w", *c.MotionDuration, err)
		}
		if d <= 0 {
			return fmt.Errorf("motion_duration must be positive, got %s", d)
		}
	}

	return nil
}

// GetClampToleranceDeg returns the clamp_tolerance_deg value or the default.
func (c *TuningConfig) GetClampToleranceDeg() float64 {
	if c.ClampToleranceDeg == nil {
		return kinematics.DefaultClampToleranceDeg
	}
	return *c.ClampToleranceDeg
}

// GetYawZeroHeadingDeg returns the yaw_zero_heading_deg value or the default.
func (c *TuningConfig) GetYawZeroHeadingDeg() float64 {
	if c.YawZeroHeadingDeg == nil {
		return 0 // +X
	}
	return *c.YawZeroHeadingDeg
}

// GetMotionDuration parses and returns the MotionDuration as a time.Duration.
func (c *TuningConfig) GetMotionDuration() time.Duration {
	if c.MotionDuration == nil || *c.MotionDuration == "" {
		return 750 * time.Millisecond // default
	}
	d, err := time.ParseDuration(*c.MotionDuration)
	if err != nil {
		return 750 * time.Millisecond // default on parse error
	}
	return d
}

// GetDeclaredForwardHeadingDeg returns the declared_forward_heading_deg value or the default.
func (c *TuningConfig) GetDeclaredForwardHeadingDeg() float64 {
	if c.DeclaredForwardHeadingDeg == nil {
		return 0
	}
	return *c.DeclaredForwardHeadingDeg
}

// GetExpectedBaseDistanceMm returns the expected_base_distance_mm value or
// zero, which disables the base distance check.
func (c *TuningConfig) GetExpectedBaseDistanceMm() float64 {
	if c.ExpectedBaseDistanceMm == nil {
		return 0
	}
	return *c.ExpectedBaseDistanceMm
}

// GetBaseDistanceWarnRatio returns the base_distance_warn_ratio value or the default.
func (c *TuningConfig) GetBaseDistanceWarnRatio() float64 {
	if c.BaseDistanceWarnRatio == nil {
		return 0.05
	}
	return *c.BaseDistanceWarnRatio
}

// GetSharePointSpreadWarnMm returns the share_point_spread_warn_mm value or the default.
func (c *TuningConfig) GetSharePointSpreadWarnMm() float64 {
	if c.SharePointSpreadWarnMm == nil {
		return calibration.DefaultSpreadWarnMm
	}
	return *c.SharePointSpreadWarnMm
}

// GetHomographyRMSEGoodMm returns the homography_rmse_good_mm value or the default.
func (c *TuningConfig) GetHomographyRMSEGoodMm() float64 {
	if c.HomographyRMSEGoodMm == nil {
		return homography.DefaultGoodRMSEMm
	}
	return *c.HomographyRMSEGoodMm
}

// ArmOptions returns the kinematics options shared by both arms.
func (c *TuningConfig) ArmOptions() kinematics.ArmOptions {
	return kinematics.ArmOptions{
		ClampToleranceDeg: c.GetClampToleranceDeg(),
		YawZeroHeadingDeg: c.GetYawZeroHeadingDeg(),
	}
}

// Expectations returns the declared facts calibration diagnostics check.
func (c *TuningConfig) Expectations() calibration.Expectations {
	return calibration.Expectations{
		YawZeroHeadingDeg:         c.GetYawZeroHeadingDeg(),
		DeclaredForwardHeadingDeg: c.GetDeclaredForwardHeadingDeg(),
		ExpectedBaseDistanceMm:    c.GetExpectedBaseDistanceMm(),
		BaseDistanceWarnRatio:     c.GetBaseDistanceWarnRatio(),
		SpreadWarnMm:              c.GetSharePointSpreadWarnMm(),
	}
}

// Thresholds returns the homography grading thresholds.
func (c *TuningConfig) Thresholds() homography.Thresholds {
	return homography.ThresholdsFor(c.GetHomographyRMSEGoodMm())
}
