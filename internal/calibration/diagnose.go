package calibration

import (
	"fmt"
	"math"

	"github.com/banshee-data/dualarm/internal/homography"
	"github.com/banshee-data/dualarm/internal/kinematics"
)

// Issue codes reported by Diagnose.
const (
	IssueConventionMismatch = "convention_mismatch"
	IssueAxisHeading        = "axis_heading_mismatch"
	IssueBaseDistance       = "base_distance_discrepancy"
	IssueSharePointSpread   = "share_point_spread"
	IssueHomographyQuality  = "homography_quality"
	IssueMissingSharePoint  = "missing_share_point"
)

const (
	axisHeadingToleranceDeg  = 0.5
	defaultBaseDistanceRatio = 0.05
)

// DefaultSpreadWarnMm is the share-point spread above which Diagnose warns.
const DefaultSpreadWarnMm = 5.0

// Severity ranks an issue.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
)

// Issue is one finding. Findings are reported; nothing is corrected.
type Issue struct {
	Code     string   `json:"code"`
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`
}

// Expectations are the declared facts the measured geometry is checked
// against. Zero values disable the matching check.
type Expectations struct {
	// YawZeroHeadingDeg is the world heading IK treats as θ_yaw = 0.
	YawZeroHeadingDeg float64
	// DeclaredForwardHeadingDeg is the forward axis the coordinate system
	// documentation declares.
	DeclaredForwardHeadingDeg float64
	ExpectedBaseDistanceMm    float64
	BaseDistanceWarnRatio     float64
	SpreadWarnMm              float64
}

// Diagnostics collects the findings for one snapshot.
type Diagnostics struct {
	Issues            []Issue `json:"issues"`
	AxisOffsetDeg     float64 `json:"axis_offset_deg"`
	BaseDistanceMm    float64 `json:"base_distance_mm,omitempty"`
	BaseDistanceRatio float64 `json:"base_distance_ratio,omitempty"`
}

func (d *Diagnostics) add(code string, sev Severity, format string, args ...interface{}) {
	d.Issues = append(d.Issues, Issue{Code: code, Severity: sev, Message: fmt.Sprintf(format, args...)})
}

// Has reports whether an issue with code was raised.
func (d Diagnostics) Has(code string) bool {
	for _, is := range d.Issues {
		if is.Code == code {
			return true
		}
	}
	return false
}

// Diagnose checks the models and (when non-nil) the geometry against exp.
func Diagnose(g *Geometry, models map[kinematics.Arm]*kinematics.ArmModel, exp Expectations) Diagnostics {
	d := Diagnostics{Issues: make([]Issue, 0)}

	for _, arm := range kinematics.Arms {
		m, ok := models[arm]
		if !ok {
			continue
		}
		for _, role := range m.ConventionMismatches() {
			j := m.Joint(role)
			d.add(IssueConventionMismatch, SeverityWarning,
				"%s arm %s (channel %d): min_pos %s gives polarity %+.0f, role formula expects the opposite",
				arm, role, j.Spec().Channel, j.Spec().MinPosRef, j.Polarity())
		}
	}

	d.AxisOffsetDeg = kinematics.NormalizeDeg(exp.YawZeroHeadingDeg - exp.DeclaredForwardHeadingDeg)
	if math.Abs(d.AxisOffsetDeg) > axisHeadingToleranceDeg {
		d.add(IssueAxisHeading, SeverityWarning,
			"IK yaw zero points at %.1f° but the coordinate system declares forward as %.1f° (offset %.1f°)",
			exp.YawZeroHeadingDeg, exp.DeclaredForwardHeadingDeg, d.AxisOffsetDeg)
	}

	if g == nil {
		return d
	}

	for _, arm := range kinematics.Arms {
		if _, ok := models[arm]; ok {
			if _, placed := g.Bases[arm]; !placed {
				d.add(IssueMissingSharePoint, SeverityWarning, "%s arm has no share-point pose; its base is unknown", arm)
			}
		}
	}

	spreadWarn := exp.SpreadWarnMm
	if spreadWarn <= 0 {
		spreadWarn = DefaultSpreadWarnMm
	}
	for _, arm := range kinematics.Arms {
		if base, ok := g.Bases[arm]; ok && base.Sources > 1 && base.SpreadMm > spreadWarn {
			d.add(IssueSharePointSpread, SeverityInfo,
				"%s arm share-point recordings disagree by up to %.1fmm over %d sources", arm, base.SpreadMm, base.Sources)
		}
	}

	if dist, ok := g.BaseDistance(); ok {
		d.BaseDistanceMm = dist
		if exp.ExpectedBaseDistanceMm > 0 {
			d.BaseDistanceRatio = dist / exp.ExpectedBaseDistanceMm
			warn := exp.BaseDistanceWarnRatio
			if warn <= 0 {
				warn = defaultBaseDistanceRatio
			}
			if math.Abs(d.BaseDistanceRatio-1) > warn {
				d.add(IssueBaseDistance, SeverityWarning,
					"measured base-to-base distance %.1fmm vs expected %.1fmm (ratio %.3f)",
					dist, exp.ExpectedBaseDistanceMm, d.BaseDistanceRatio)
			}
		}
	}
	return d
}

// AddCameraQuality records a fair or poor homography fit.
func (d *Diagnostics) AddCameraQuality(q homography.Quality) {
	switch q.Grade {
	case homography.GradeFair:
		d.add(IssueHomographyQuality, SeverityInfo, "camera calibration RMSE %.2fmm (%s)", q.RMSE, q.Grade)
	case homography.GradePoor:
		d.add(IssueHomographyQuality, SeverityWarning, "camera calibration RMSE %.2fmm (%s)", q.RMSE, q.Grade)
	}
}
