package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/dualarm/internal/calibration"
	"github.com/banshee-data/dualarm/internal/config"
	"github.com/banshee-data/dualarm/internal/fsutil"
	"github.com/banshee-data/dualarm/internal/kinematics"
	"github.com/banshee-data/dualarm/internal/security"
)

// TestFlagDefaults verifies the flags exist with their documented defaults.
func TestFlagDefaults(t *testing.T) {
	if armsPath == nil || tuningPath == nil || showVersion == nil {
		t.Fatal("flags not defined")
	}
	if *armsPath != "config/arms.example.json" {
		t.Errorf("expected -config default config/arms.example.json, got %q", *armsPath)
	}
	if *tuningPath != config.DefaultConfigPath {
		t.Errorf("expected -tuning default %q, got %q", config.DefaultConfigPath, *tuningPath)
	}
	if *dbPath != "" || *cameraPath != "" || *ikArm != "" {
		t.Error("optional inputs should default to empty")
	}
	if *writeBack {
		t.Error("expected -write to default to false")
	}
	if *history != 0 {
		t.Errorf("expected -history default 0, got %d", *history)
	}
}

func TestOptionsFromFlags(t *testing.T) {
	o := optionsFromFlags()
	assert.Equal(t, *armsPath, o.ArmsPath)
	assert.Equal(t, kinematics.Point3{}, o.IKTarget)
}

// newTestFS loads the checked-in example files into a memory filesystem.
func newTestFS(t *testing.T) *fsutil.MemoryFileSystem {
	t.Helper()
	fsys := fsutil.NewMemoryFileSystem()
	for _, name := range []string{"arms.example.json", "camera.example.json", "tuning.defaults.json"} {
		data, err := os.ReadFile(filepath.Join("..", "..", "config", name))
		require.NoError(t, err)
		require.NoError(t, fsys.WriteFile("config/"+name, data, 0o644))
	}
	return fsys
}

func baseOptions() options {
	return options{
		ArmsPath:   "config/arms.example.json",
		TuningPath: config.DefaultConfigPath,
	}
}

type decoded struct {
	Snapshot struct {
		ID          string                  `json:"id"`
		Block       *calibration.Block      `json:"geometry"`
		Camera      map[string]interface{}  `json:"camera"`
		Diagnostics calibration.Diagnostics `json:"diagnostics"`
	} `json:"snapshot"`
	IK map[string]interface{} `json:"ik"`
}

func runJSON(t *testing.T, o options, fsys fsutil.FileSystem) decoded {
	t.Helper()
	var out bytes.Buffer
	require.NoError(t, run(o, fsys, &out))
	var d decoded
	require.NoError(t, json.Unmarshal(out.Bytes(), &d), out.String())
	return d
}

func TestRun_PrintsSnapshot(t *testing.T) {
	d := runJSON(t, baseOptions(), newTestFS(t))

	assert.NotEmpty(t, d.Snapshot.ID)
	require.NotNil(t, d.Snapshot.Block)
	assert.Len(t, d.Snapshot.Block.Bases, 2)
	assert.Len(t, d.Snapshot.Block.Vertices, 5)
	assert.Nil(t, d.Snapshot.Camera)
	assert.Nil(t, d.IK)
}

func TestRun_MissingTuningFallsBack(t *testing.T) {
	o := baseOptions()
	o.TuningPath = "config/missing.json"
	d := runJSON(t, o, newTestFS(t))
	require.NotNil(t, d.Snapshot.Block)
}

func TestRun_MissingConfig(t *testing.T) {
	o := baseOptions()
	o.ArmsPath = "config/nope.json"
	err := run(o, newTestFS(t), &bytes.Buffer{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to stat")
}

func TestRun_Camera(t *testing.T) {
	o := baseOptions()
	o.CameraPath = "config/camera.example.json"
	d := runJSON(t, o, newTestFS(t))

	require.NotNil(t, d.Snapshot.Camera)
	assert.Contains(t, d.Snapshot.Camera, "homography")
	require.NotNil(t, d.Snapshot.Block)
}

func TestRun_IK(t *testing.T) {
	fsys := newTestFS(t)
	first := runJSON(t, baseOptions(), fsys)
	base, ok := first.Snapshot.Block.BasePoint(kinematics.Left)
	require.True(t, ok)

	o := baseOptions()
	o.IKArm = "left"
	o.IKTarget = kinematics.Point3{X: base.X + 150, Y: base.Y}
	d := runJSON(t, o, fsys)

	require.NotNil(t, d.IK)
	assert.Equal(t, "left", d.IK["arm"])
	assert.Equal(t, "open", d.IK["stance"])
	cmd, ok := d.IK["command"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, float64(750_000_000), cmd["duration"])
	assert.Len(t, cmd["pulses"], kinematics.NumJoints)
}

func TestRun_IKErrors(t *testing.T) {
	tests := []struct {
		name   string
		arm    string
		target kinematics.Point3
		want   string
	}{
		{name: "unknown arm", arm: "middle", want: "unknown arm"},
		{name: "unreachable", arm: "right", target: kinematics.Point3{X: 5000}, want: "target unreachable"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := baseOptions()
			o.IKArm = tt.arm
			o.IKTarget = tt.target
			err := run(o, newTestFS(t), &bytes.Buffer{})
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestRun_WriteBackAndReports(t *testing.T) {
	fsys := newTestFS(t)
	o := baseOptions()
	o.WriteBack = true
	o.PNGPath = "out/plan.png"
	o.HTMLPath = "out/plan.html"
	d := runJSON(t, o, fsys)

	cfg, err := config.LoadArmConfig(fsys, o.ArmsPath)
	require.NoError(t, err)
	require.NotNil(t, cfg.Geometry)
	assert.Equal(t, d.Snapshot.Block.Bases, cfg.Geometry.Bases)

	png, err := fsys.ReadFile("out/plan.png")
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(png, []byte("\x89PNG")))
	html, err := fsys.ReadFile("out/plan.html")
	require.NoError(t, err)
	assert.Contains(t, string(html), "<html")
}

func TestRun_History(t *testing.T) {
	fsys := newTestFS(t)
	db := filepath.Join(t.TempDir(), "calibration.db")

	o := baseOptions()
	o.DBPath = db
	o.Note = "bench check"
	first := runJSON(t, o, fsys)

	var out bytes.Buffer
	require.NoError(t, run(options{DBPath: db, History: 5}, fsys, &out))
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], first.Snapshot.ID)
	assert.Contains(t, lines[0], "geometry=true camera=false")
	assert.Contains(t, lines[0], "bench check")
}

func TestRun_HistoryNeedsDB(t *testing.T) {
	err := run(options{History: 3}, newTestFS(t), &bytes.Buffer{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "-history needs -db")
}

func TestRun_RejectsOutputOutsideWorkspace(t *testing.T) {
	o := baseOptions()
	o.PNGPath = "/proc/self/plan.png"
	err := run(o, newTestFS(t), &bytes.Buffer{})
	require.ErrorIs(t, err, security.ErrPathEscapes)
}
