package config

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/dualarm/internal/calibration"
	"github.com/banshee-data/dualarm/internal/fsutil"
	"github.com/banshee-data/dualarm/internal/homography"
	"github.com/banshee-data/dualarm/internal/kinematics"
)

const (
	exampleArmsPath   = "../../config/arms.example.json"
	exampleCameraPath = "../../config/camera.example.json"
)

func loadExample(t *testing.T) *ArmConfig {
	t.Helper()
	cfg, err := LoadArmConfig(fsutil.OSFileSystem{}, exampleArmsPath)
	require.NoError(t, err)
	return cfg
}

func TestLoadArmConfig_Example(t *testing.T) {
	cfg := loadExample(t)

	assert.Len(t, cfg.Arms, 2)
	assert.Len(t, cfg.Vertices, 5)
	assert.Len(t, cfg.SharePoints["left_arm"], 2)
	assert.Len(t, cfg.SharePoints["right_arm"], 1)
	require.NotNil(t, cfg.Geometry)
	assert.Equal(t, calibration.DefaultCoordinateSystem, cfg.Geometry.CoordinateSystem)

	specs, err := cfg.JointSpecs(kinematics.Left)
	require.NoError(t, err)
	assert.Equal(t, kinematics.KindYaw, specs[kinematics.RoleBaseYaw].Kind)
	assert.Equal(t, kinematics.RefRight, specs[kinematics.RoleBaseYaw].MinPosRef)
	assert.Equal(t, 80.0, specs[kinematics.RoleBaseYaw].LinkLengthMm)
	assert.Equal(t, "DS3225", specs[kinematics.RoleShoulder].DeviceName)

	right, err := cfg.JointSpecs(kinematics.Right)
	require.NoError(t, err)
	assert.Equal(t, kinematics.RefLeft, right[kinematics.RoleBaseYaw].MinPosRef)
	assert.Equal(t, 6, right[kinematics.RoleBaseYaw].Channel)
}

func TestArmConfig_Models(t *testing.T) {
	cfg := loadExample(t)
	models, err := cfg.Models(EmptyTuningConfig().ArmOptions())
	require.NoError(t, err)
	require.Len(t, models, 2)

	left := models[kinematics.Left]
	assert.Equal(t, kinematics.LinkLengths{D1: 80, A2: 120, A3: 110, A4: 60, A6: 40}, left.Links())
	assert.Empty(t, left.ConventionMismatches())
	assert.Equal(t, kinematics.DefaultClampToleranceDeg, left.Options().ClampToleranceDeg)
}

// The geometry block stored in the example file must be exactly what the
// engine derives from the stored poses.
func TestArmConfig_GeometryMatchesStoredBlock(t *testing.T) {
	cfg := loadExample(t)
	models, err := cfg.Models(kinematics.ArmOptions{})
	require.NoError(t, err)
	poses, err := cfg.Poses()
	require.NoError(t, err)

	g, err := calibration.ComputeGeometry(models, poses)
	require.NoError(t, err)

	if diff := cmp.Diff(cfg.Geometry, g.Block(), cmpopts.EquateApprox(0, 1e-6)); diff != "" {
		t.Errorf("geometry block mismatch (-stored +computed):\n%s", diff)
	}
}

func TestArmConfig_Poses(t *testing.T) {
	cfg := loadExample(t)
	poses, err := cfg.Poses()
	require.NoError(t, err)

	assert.Equal(t, calibration.DefaultCoordinateSystem, poses.CoordinateSystem)
	require.Len(t, poses.SharePoints[kinematics.Left], 2)
	assert.Equal(t, "share_point_left_arm_1", poses.SharePoints[kinematics.Left][1].ID)
	assert.Equal(t, [6]int{1504, 1194, 1248, 1608, 1500, 1500}, poses.SharePoints[kinematics.Left][1].Pulses)

	ids := make([]string, len(poses.Vertices))
	for i, v := range poses.Vertices {
		ids[i] = v.ID
	}
	assert.Equal(t, []string{"V1", "V2", "V3", "V4", "V5"}, ids)
	assert.Equal(t, kinematics.Right, poses.Vertices[2].Owner)
}

func TestArmConfig_RefreshAndSave(t *testing.T) {
	cfg := loadExample(t)
	models, err := cfg.Models(kinematics.ArmOptions{})
	require.NoError(t, err)

	// Drop the derived sections and regenerate them.
	v1 := cfg.Vertices["V1"]
	v1.Angles = nil
	cfg.Vertices["V1"] = v1
	cfg.Geometry = &calibration.Block{CoordinateSystem: "bench_xy_mm"}

	poses, err := cfg.Poses()
	require.NoError(t, err)
	g, err := calibration.ComputeGeometry(models, poses)
	require.NoError(t, err)
	cfg.Refresh(g)

	assert.Equal(t, "bench_xy_mm", cfg.Geometry.CoordinateSystem)
	assert.Len(t, cfg.Geometry.Vertices, 5)
	require.NotNil(t, cfg.Vertices["V1"].Angles)
	assert.Equal(t, 0.0, cfg.SharePoints["left_arm"][0].Angles[kinematics.RoleBaseYaw])

	fsys := fsutil.NewMemoryFileSystem()
	require.NoError(t, cfg.Save(fsys, "arms.json"))

	reloaded, err := LoadArmConfig(fsys, "arms.json")
	require.NoError(t, err)
	if diff := cmp.Diff(cfg, reloaded, cmpopts.EquateApprox(0, 1e-9)); diff != "" {
		t.Errorf("save/load mismatch (-saved +loaded):\n%s", diff)
	}
}

func TestArmConfig_ValidateErrors(t *testing.T) {
	base := func() map[string]any {
		var raw map[string]any
		data, err := fsutil.ReadLimited(fsutil.OSFileSystem{}, exampleArmsPath, MaxConfigBytes)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(data, &raw))
		return raw
	}
	joints := func(raw map[string]any, arm string) []any {
		return raw["arms"].(map[string]any)[arm].(map[string]any)["joints"].([]any)
	}

	tests := []struct {
		name    string
		mutate  func(raw map[string]any)
		wantMsg string
	}{
		{
			name:    "no arms",
			mutate:  func(raw map[string]any) { raw["arms"] = map[string]any{} },
			wantMsg: "no arms configured",
		},
		{
			name: "unknown arm key",
			mutate: func(raw map[string]any) {
				arms := raw["arms"].(map[string]any)
				arms["middle_arm"] = arms["left_arm"]
			},
			wantMsg: "unknown arm",
		},
		{
			name: "five joints",
			mutate: func(raw map[string]any) {
				arm := raw["arms"].(map[string]any)["left_arm"].(map[string]any)
				arm["joints"] = joints(raw, "left_arm")[:5]
			},
			wantMsg: "expected 6 joints",
		},
		{
			name: "bad min_pos",
			mutate: func(raw map[string]any) {
				joints(raw, "left_arm")[1].(map[string]any)["min_pos"] = "left"
			},
			wantMsg: "does not apply",
		},
		{
			name: "duplicate channel",
			mutate: func(raw map[string]any) {
				joints(raw, "right_arm")[0].(map[string]any)["channel"] = 0
			},
			wantMsg: "channel 0 already used",
		},
		{
			name: "vertex owner without arm",
			mutate: func(raw map[string]any) {
				delete(raw["arms"].(map[string]any), "right_arm")
			},
			wantMsg: "unknown arm",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := base()
			tt.mutate(raw)
			data, err := json.Marshal(raw)
			require.NoError(t, err)

			fsys := fsutil.NewMemoryFileSystem()
			require.NoError(t, fsys.WriteFile("arms.json", data, 0o644))

			_, err = LoadArmConfig(fsys, "arms.json")
			require.Error(t, err)
			assert.True(t, strings.Contains(err.Error(), tt.wantMsg), "error %q does not mention %q", err, tt.wantMsg)
		})
	}
}

func TestLoadCameraPoints(t *testing.T) {
	cp, err := LoadCameraPoints(fsutil.OSFileSystem{}, exampleCameraPath)
	require.NoError(t, err)
	require.Len(t, cp.Pixel, homography.NumCorrespondences)

	h, err := homography.Compute(cp.Pixel, cp.Robot)
	require.NoError(t, err)
	assert.True(t, h.IsValid())

	q := homography.Assess(h, cp.Pixel, cp.Robot, EmptyTuningConfig().Thresholds())
	assert.Equal(t, homography.GradeExcellent, q.Grade)
}

func TestLoadCameraPoints_WrongCount(t *testing.T) {
	fsys := fsutil.NewMemoryFileSystem()
	body := `{"pixel": [{"x": 1, "y": 2}], "robot": [{"x": 1, "y": 2}]}`
	require.NoError(t, fsys.WriteFile("camera.json", []byte(body), 0o644))

	_, err := LoadCameraPoints(fsys, "camera.json")
	assert.True(t, errors.Is(err, homography.ErrInvalidCalibrationInput))
}
