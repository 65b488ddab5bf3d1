package calibration

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/dualarm/internal/homography"
	"github.com/banshee-data/dualarm/internal/kinematics"
	"github.com/banshee-data/dualarm/internal/testutil"
)

func fixtureGeometry(t *testing.T) *Geometry {
	t.Helper()
	g, err := ComputeGeometry(testutil.MustArmModels(t), fixturePoses())
	require.NoError(t, err)
	return g
}

func TestDiagnose_Clean(t *testing.T) {
	d := Diagnose(fixtureGeometry(t), testutil.MustArmModels(t), Expectations{ExpectedBaseDistanceMm: 360})

	assert.Empty(t, d.Issues)
	assert.Equal(t, 0.0, d.AxisOffsetDeg)
	testutil.AssertNear(t, "base distance", d.BaseDistanceMm, 360.45492193072175, 1e-6)
	testutil.AssertNear(t, "ratio", d.BaseDistanceRatio, 360.45492193072175/360, 1e-9)
}

func TestDiagnose_AxisHeading(t *testing.T) {
	tests := []struct {
		name      string
		yawZero   float64
		declared  float64
		wantIssue bool
		wantOff   float64
	}{
		{"aligned", 0, 0, false, 0},
		{"quarter turn", 90, 0, true, 90},
		{"wraps", 350, -10, false, 0},
		{"within tolerance", 0.3, 0, false, 0.3},
		{"opposite", 0, 180, true, 180},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := Diagnose(nil, nil, Expectations{YawZeroHeadingDeg: tt.yawZero, DeclaredForwardHeadingDeg: tt.declared})
			assert.Equal(t, tt.wantIssue, d.Has(IssueAxisHeading))
			testutil.AssertNear(t, "offset", d.AxisOffsetDeg, tt.wantOff, 1e-9)
		})
	}
}

func TestDiagnose_BaseDistance(t *testing.T) {
	g := fixtureGeometry(t)
	models := testutil.MustArmModels(t)

	d := Diagnose(g, models, Expectations{ExpectedBaseDistanceMm: 400})
	require.True(t, d.Has(IssueBaseDistance))
	assert.Equal(t, SeverityWarning, d.Issues[0].Severity)
	assert.Contains(t, d.Issues[0].Message, "360.5mm")

	// A wider ratio accepts the same measurement.
	d = Diagnose(g, models, Expectations{ExpectedBaseDistanceMm: 400, BaseDistanceWarnRatio: 0.2})
	assert.False(t, d.Has(IssueBaseDistance))

	// No expectation, no check; the measurement is still reported.
	d = Diagnose(g, models, Expectations{})
	assert.False(t, d.Has(IssueBaseDistance))
	assert.Zero(t, d.BaseDistanceRatio)
	assert.NotZero(t, d.BaseDistanceMm)
}

func TestDiagnose_SharePointSpread(t *testing.T) {
	g := fixtureGeometry(t)
	models := testutil.MustArmModels(t)

	d := Diagnose(g, models, Expectations{SpreadWarnMm: 0.5})
	require.True(t, d.Has(IssueSharePointSpread))
	assert.Equal(t, SeverityInfo, d.Issues[0].Severity)
	assert.Contains(t, d.Issues[0].Message, "left arm")

	d = Diagnose(g, models, Expectations{})
	assert.False(t, d.Has(IssueSharePointSpread))
}

func TestDiagnose_MissingSharePoint(t *testing.T) {
	poses := CalibrationPoses{
		SharePoints: map[kinematics.Arm][]PoseSource{
			kinematics.Left: fixturePoses().SharePoints[kinematics.Left],
		},
	}
	models := testutil.MustArmModels(t)
	g, err := ComputeGeometry(models, poses)
	require.NoError(t, err)

	d := Diagnose(g, models, Expectations{ExpectedBaseDistanceMm: 360})
	require.Len(t, d.Issues, 1)
	assert.Equal(t, IssueMissingSharePoint, d.Issues[0].Code)
	assert.Contains(t, d.Issues[0].Message, "right arm")
	assert.Zero(t, d.BaseDistanceMm)
}

func TestDiagnose_ConventionMismatch(t *testing.T) {
	specs := testutil.ArmSpecs(kinematics.Left)
	specs[kinematics.RoleShoulder].MinPosRef = kinematics.RefTop
	left, err := kinematics.NewArmModel(kinematics.Left, specs, kinematics.ArmOptions{})
	require.NoError(t, err)
	models := map[kinematics.Arm]*kinematics.ArmModel{
		kinematics.Left:  left,
		kinematics.Right: testutil.MustArmModel(t, kinematics.Right),
	}

	d := Diagnose(nil, models, Expectations{})
	require.Len(t, d.Issues, 1)
	assert.Equal(t, IssueConventionMismatch, d.Issues[0].Code)
	assert.Contains(t, d.Issues[0].Message, "shoulder (channel 1)")
}

func TestDiagnostics_AddCameraQuality(t *testing.T) {
	tests := []struct {
		grade    homography.Grade
		wantSev  Severity
		wantNone bool
	}{
		{grade: homography.GradeExcellent, wantNone: true},
		{grade: homography.GradeGood, wantNone: true},
		{grade: homography.GradeFair, wantSev: SeverityInfo},
		{grade: homography.GradePoor, wantSev: SeverityWarning},
	}
	for _, tt := range tests {
		t.Run(string(tt.grade), func(t *testing.T) {
			var d Diagnostics
			d.AddCameraQuality(homography.Quality{Grade: tt.grade, RMSE: 4.2})
			if tt.wantNone {
				assert.Empty(t, d.Issues)
				return
			}
			require.Len(t, d.Issues, 1)
			assert.Equal(t, IssueHomographyQuality, d.Issues[0].Code)
			assert.Equal(t, tt.wantSev, d.Issues[0].Severity)
		})
	}
}
