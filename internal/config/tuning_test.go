package config

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/banshee-data/dualarm/internal/calibration"
	"github.com/banshee-data/dualarm/internal/fsutil"
	"github.com/banshee-data/dualarm/internal/homography"
	"github.com/banshee-data/dualarm/internal/kinematics"
)

func TestEmptyTuningConfig_Defaults(t *testing.T) {
	cfg := EmptyTuningConfig()

	if got := cfg.GetClampToleranceDeg(); got != kinematics.DefaultClampToleranceDeg {
		t.Errorf("GetClampToleranceDeg() = %f, want %f", got, kinematics.DefaultClampToleranceDeg)
	}
	if got := cfg.GetYawZeroHeadingDeg(); got != 0 {
		t.Errorf("GetYawZeroHeadingDeg() = %f, want 0", got)
	}
	if got := cfg.GetMotionDuration(); got != 750*time.Millisecond {
		t.Errorf("GetMotionDuration() = %v, want 750ms", got)
	}
	if got := cfg.GetExpectedBaseDistanceMm(); got != 0 {
		t.Errorf("GetExpectedBaseDistanceMm() = %f, want 0", got)
	}
	if got := cfg.GetBaseDistanceWarnRatio(); got != 0.05 {
		t.Errorf("GetBaseDistanceWarnRatio() = %f, want 0.05", got)
	}
	if got := cfg.GetSharePointSpreadWarnMm(); got != calibration.DefaultSpreadWarnMm {
		t.Errorf("GetSharePointSpreadWarnMm() = %f, want %f", got, calibration.DefaultSpreadWarnMm)
	}
	if got := cfg.GetHomographyRMSEGoodMm(); got != homography.DefaultGoodRMSEMm {
		t.Errorf("GetHomographyRMSEGoodMm() = %f, want %f", got, homography.DefaultGoodRMSEMm)
	}
}

func TestLoadTuningConfig(t *testing.T) {
	fsys := fsutil.NewMemoryFileSystem()
	testJSON := `{
  "clamp_tolerance_deg": 3.5,
  "yaw_zero_heading_deg": 90,
  "motion_duration": "1.2s",
  "expected_base_distance_mm": 400,
  "homography_rmse_good_mm": 2
}`
	if err := fsys.WriteFile("tuning.json", []byte(testJSON), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadTuningConfig(fsys, "tuning.json")
	if err != nil {
		t.Fatalf("LoadTuningConfig failed: %v", err)
	}

	if cfg.GetClampToleranceDeg() != 3.5 {
		t.Errorf("GetClampToleranceDeg() = %f, want 3.5", cfg.GetClampToleranceDeg())
	}
	if cfg.GetMotionDuration() != 1200*time.Millisecond {
		t.Errorf("GetMotionDuration() = %v, want 1.2s", cfg.GetMotionDuration())
	}

	opts := cfg.ArmOptions()
	if opts.ClampToleranceDeg != 3.5 || opts.YawZeroHeadingDeg != 90 {
		t.Errorf("ArmOptions() = %+v", opts)
	}

	exp := cfg.Expectations()
	if exp.YawZeroHeadingDeg != 90 || exp.DeclaredForwardHeadingDeg != 0 || exp.ExpectedBaseDistanceMm != 400 {
		t.Errorf("Expectations() = %+v", exp)
	}

	th := cfg.Thresholds()
	if th.GoodMm != 2 || th.FairMm != 4 {
		t.Errorf("Thresholds() = %+v, want good 2 fair 4", th)
	}
}

func TestLoadTuningConfig_PartialKeepsDefaults(t *testing.T) {
	fsys := fsutil.NewMemoryFileSystem()
	if err := fsys.WriteFile("partial.json", []byte(`{"share_point_spread_warn_mm": 8}`), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadTuningConfig(fsys, "partial.json")
	if err != nil {
		t.Fatalf("LoadTuningConfig failed: %v", err)
	}
	if cfg.GetSharePointSpreadWarnMm() != 8 {
		t.Errorf("GetSharePointSpreadWarnMm() = %f, want 8", cfg.GetSharePointSpreadWarnMm())
	}
	if cfg.GetClampToleranceDeg() != kinematics.DefaultClampToleranceDeg {
		t.Errorf("GetClampToleranceDeg() = %f, want default", cfg.GetClampToleranceDeg())
	}
}

func TestLoadTuningConfig_Errors(t *testing.T) {
	fsys := fsutil.NewMemoryFileSystem()
	files := map[string]string{
		"bad.json":       `{not json`,
		"tolerance.json": `{"clamp_tolerance_deg": 0}`,
		"heading.json":   `{"yaw_zero_heading_deg": 400}`,
		"ratio.json":     `{"base_distance_warn_ratio": 1.5}`,
		"distance.json":  `{"expected_base_distance_mm": -1}`,
		"spread.json":    `{"share_point_spread_warn_mm": 0}`,
		"rmse.json":      `{"homography_rmse_good_mm": -2}`,
		"duration.json":  `{"motion_duration": "soon"}`,
		"negative.json":  `{"motion_duration": "-1s"}`,
		"tuning.yaml":    `{}`,
	}
	for name, body := range files {
		if err := fsys.WriteFile(name, []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	tests := []struct {
		path    string
		wantMsg string
	}{
		{"bad.json", "failed to parse"},
		{"tolerance.json", "clamp_tolerance_deg"},
		{"heading.json", "yaw_zero_heading_deg"},
		{"ratio.json", "base_distance_warn_ratio"},
		{"distance.json", "expected_base_distance_mm"},
		{"spread.json", "share_point_spread_warn_mm"},
		{"rmse.json", "homography_rmse_good_mm"},
		{"duration.json", "invalid motion_duration"},
		{"negative.json", "motion_duration must be positive"},
		{"tuning.yaml", ".json extension"},
		{"missing.json", "failed to stat"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			_, err := LoadTuningConfig(fsys, tt.path)
			if err == nil {
				t.Fatalf("expected error for %s", tt.path)
			}
			if !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("error %q does not mention %q", err, tt.wantMsg)
			}
		})
	}
}

func TestLoadTuningConfig_TooLarge(t *testing.T) {
	fsys := fsutil.NewMemoryFileSystem()
	big := make([]byte, MaxConfigBytes+1)
	if err := fsys.WriteFile("big.json", big, 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := LoadTuningConfig(fsys, "big.json")
	if !errors.Is(err, fsutil.ErrTooLarge) {
		t.Fatalf("expected ErrTooLarge, got %v", err)
	}
}

func TestMustLoadDefaultConfig(t *testing.T) {
	cfg := MustLoadDefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults file does not validate: %v", err)
	}
	if cfg.ClampToleranceDeg == nil || *cfg.ClampToleranceDeg != 2.0 {
		t.Errorf("clamp_tolerance_deg = %v, want 2.0", cfg.ClampToleranceDeg)
	}
	if cfg.MotionDuration == nil || *cfg.MotionDuration != "750ms" {
		t.Errorf("motion_duration = %v, want 750ms", cfg.MotionDuration)
	}
	if cfg.GetExpectedBaseDistanceMm() != 360 {
		t.Errorf("expected_base_distance_mm = %f, want 360", cfg.GetExpectedBaseDistanceMm())
	}
}
