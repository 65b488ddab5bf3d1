// Command armcal recomputes the dual-arm calibration geometry from the arm
// configuration file, optionally solves the camera homography and an IK
// target, and prints the resulting snapshot as JSON.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/banshee-data/dualarm/internal/calibration"
	"github.com/banshee-data/dualarm/internal/calibration/report"
	"github.com/banshee-data/dualarm/internal/calibration/storage/sqlite"
	"github.com/banshee-data/dualarm/internal/config"
	"github.com/banshee-data/dualarm/internal/fsutil"
	"github.com/banshee-data/dualarm/internal/kinematics"
	"github.com/banshee-data/dualarm/internal/security"
	"github.com/banshee-data/dualarm/internal/version"
)

var (
	armsPath    = flag.String("config", "config/arms.example.json", "Arm configuration file")
	tuningPath  = flag.String("tuning", config.DefaultConfigPath, "Tuning defaults file")
	cameraPath  = flag.String("camera", "", "Camera correspondence file (4 pixel/robot pairs)")
	dbPath      = flag.String("db", "", "SQLite database for snapshot history (disabled when empty)")
	note        = flag.String("note", "", "Note stored with the snapshot")
	history     = flag.Int("history", 0, "List the newest N stored snapshots and exit")
	pngPath     = flag.String("png", "", "Write a top-down plan PNG")
	htmlPath    = flag.String("html", "", "Write an interactive plan HTML page")
	writeBack   = flag.Bool("write", false, "Rewrite the geometry block and pose angles in the arm configuration file")
	ikArm       = flag.String("ik-arm", "", "Solve IK for this arm (left or right)")
	ikX         = flag.Float64("ik-x", 0, "IK target X in mm (world frame)")
	ikY         = flag.Float64("ik-y", 0, "IK target Y in mm (world frame)")
	ikZ         = flag.Float64("ik-z", 0, "IK target tool height in mm (world frame)")
	showVersion = flag.Bool("version", false, "Print version and exit")
)

type options struct {
	ArmsPath   string
	TuningPath string
	CameraPath string
	DBPath     string
	Note       string
	History    int
	PNGPath    string
	HTMLPath   string
	WriteBack  bool
	IKArm      string
	IKTarget   kinematics.Point3
}

func optionsFromFlags() options {
	return options{
		ArmsPath:   *armsPath,
		TuningPath: *tuningPath,
		CameraPath: *cameraPath,
		DBPath:     *dbPath,
		Note:       *note,
		History:    *history,
		PNGPath:    *pngPath,
		HTMLPath:   *htmlPath,
		WriteBack:  *writeBack,
		IKArm:      *ikArm,
		IKTarget:   kinematics.Point3{X: *ikX, Y: *ikY, Z: *ikZ},
	}
}

// ikResult is the printed form of an IK solution.
type ikResult struct {
	Arm      kinematics.Arm                                `json:"arm"`
	Target   kinematics.Point3                             `json:"target"`
	Stance   string                                        `json:"stance"`
	Elbow    string                                        `json:"elbow"`
	Joints   [kinematics.NumJoints]kinematics.JointCommand `json:"joints"`
	Command  kinematics.MotionCommand                      `json:"command"`
	Warnings []string                                      `json:"warnings,omitempty"`
}

type output struct {
	Snapshot *calibration.Snapshot `json:"snapshot"`
	IK       *ikResult             `json:"ik,omitempty"`
}

func loadTuning(fsys fsutil.FileSystem, path string) (*config.TuningConfig, error) {
	if path == "" || !fsys.Exists(path) {
		log.Printf("tuning file %q not found, using built-in defaults", path)
		return config.EmptyTuningConfig(), nil
	}
	return config.LoadTuningConfig(fsys, path)
}

func checkOutputs(paths ...string) error {
	for _, p := range paths {
		if p == "" {
			continue
		}
		if err := security.ValidateOutputPath(p); err != nil {
			return err
		}
	}
	return nil
}

func run(o options, fsys fsutil.FileSystem, out io.Writer) error {
	if err := checkOutputs(o.PNGPath, o.HTMLPath, o.DBPath); err != nil {
		return err
	}
	if o.History > 0 {
		return listHistory(o.DBPath, o.History, out)
	}

	tuning, err := loadTuning(fsys, o.TuningPath)
	if err != nil {
		return err
	}
	arms, err := config.LoadArmConfig(fsys, o.ArmsPath)
	if err != nil {
		return err
	}
	models, err := arms.Models(tuning.ArmOptions())
	if err != nil {
		return err
	}
	poses, err := arms.Poses()
	if err != nil {
		return err
	}

	store := calibration.NewStore(models, calibration.StoreOptions{
		Expectations: tuning.Expectations(),
		Thresholds:   tuning.Thresholds(),
	})
	defer store.Close()

	snap, err := store.Recalibrate(poses)
	if err != nil {
		return fmt.Errorf("recalibrate: %w", err)
	}
	if o.CameraPath != "" {
		cp, err := config.LoadCameraPoints(fsys, o.CameraPath)
		if err != nil {
			return err
		}
		if snap, err = store.RecalibrateCamera(cp.Pixel, cp.Robot); err != nil {
			return fmt.Errorf("camera calibration: %w", err)
		}
	}

	res := output{Snapshot: snap}
	if o.IKArm != "" {
		ik, err := solveIK(models, snap.Geometry, o.IKArm, o.IKTarget, tuning)
		if err != nil {
			return err
		}
		res.IK = ik
	}

	if o.WriteBack {
		arms.Refresh(snap.Geometry)
		if err := arms.Save(fsys, o.ArmsPath); err != nil {
			return err
		}
		log.Printf("rewrote geometry block in %s", o.ArmsPath)
	}

	if o.PNGPath != "" || o.HTMLPath != "" {
		plan := report.NewPlan("Dual-arm calibration "+snap.CreatedAt.Format("2006-01-02 15:04:05"), snap.Block, models)
		if err := report.SaveFiles(fsys, plan, o.PNGPath, o.HTMLPath); err != nil {
			return err
		}
	}

	if o.DBPath != "" {
		db, err := sqlite.Open(o.DBPath)
		if err != nil {
			return err
		}
		defer db.Close()
		if err := sqlite.NewSnapshotStore(db).Save(snap, o.Note); err != nil {
			return fmt.Errorf("save snapshot: %w", err)
		}
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(res)
}

func solveIK(models map[kinematics.Arm]*kinematics.ArmModel, g *calibration.Geometry, armName string,
	target kinematics.Point3, tuning *config.TuningConfig) (*ikResult, error) {
	arm, err := kinematics.ParseArm(armName)
	if err != nil {
		return nil, err
	}
	m, ok := models[arm]
	if !ok {
		return nil, fmt.Errorf("%w: %s", calibration.ErrUnknownArm, arm)
	}
	base, ok := g.Bases[arm]
	if !ok {
		return nil, fmt.Errorf("%s arm: %w", arm, calibration.ErrNoBase)
	}

	sol, err := m.SolveWorld(target, base.Position)
	if err != nil {
		return nil, err
	}
	res := &ikResult{
		Arm:     arm,
		Target:  target,
		Stance:  sol.Stance.Name(),
		Elbow:   sol.Elbow.String(),
		Joints:  sol.Joints,
		Command: sol.Command(tuning.GetMotionDuration()),
	}
	for _, c := range sol.Clamps {
		res.Warnings = append(res.Warnings, c.String())
	}
	if err := sol.EnvelopeErr(); err != nil {
		log.Printf("ik: %v", err)
	}
	return res, nil
}

func listHistory(path string, n int, out io.Writer) error {
	if path == "" {
		return fmt.Errorf("-history needs -db")
	}
	db, err := sqlite.Open(path)
	if err != nil {
		return err
	}
	defer db.Close()

	rows, err := sqlite.NewSnapshotStore(db).List(n)
	if err != nil {
		return err
	}
	for _, r := range rows {
		fmt.Fprintf(out, "%s  %s  geometry=%t camera=%t issues=%d  %s\n",
			r.CreatedAt.UTC().Format(time.RFC3339), r.ID, r.HasGeometry, r.HasCamera, r.IssueCount, r.Note)
	}
	return nil
}

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}

	if err := run(optionsFromFlags(), fsutil.OSFileSystem{}, os.Stdout); err != nil {
		log.Fatalf("armcal: %v", err)
	}
}
