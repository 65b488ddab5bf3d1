package homography

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// Grade is the assessed quality of a camera calibration.
type Grade string

const (
	GradeExcellent Grade = "excellent"
	GradeGood      Grade = "good"
	GradeFair      Grade = "fair"
	GradePoor      Grade = "poor"
	// GradeUnknown is used when the reprojection error could not be computed.
	GradeUnknown Grade = "unknown"
)

// DefaultGoodRMSEMm is the RMSE (mm) below which a fit is graded good.
const DefaultGoodRMSEMm = 3.0

// Thresholds are RMSE cut-offs in millimetres.
type Thresholds struct {
	ExcellentMm float64
	GoodMm      float64
	FairMm      float64
}

// ThresholdsFor derives excellent/fair cut-offs from the good threshold.
func ThresholdsFor(goodMm float64) Thresholds {
	if goodMm <= 0 {
		goodMm = DefaultGoodRMSEMm
	}
	return Thresholds{ExcellentMm: goodMm / 3, GoodMm: goodMm, FairMm: 2 * goodMm}
}

// Grade classifies an RMSE.
func (t Thresholds) Grade(rmse float64) Grade {
	switch {
	case math.IsNaN(rmse) || rmse < 0:
		return GradeUnknown
	case rmse < t.ExcellentMm:
		return GradeExcellent
	case rmse < t.GoodMm:
		return GradeGood
	case rmse < t.FairMm:
		return GradeFair
	default:
		return GradePoor
	}
}

// Quality summarises a solved homography against its correspondences.
// Condition is the 2-norm condition number of the normalised DLT system.
type Quality struct {
	Valid     bool     `json:"valid"`
	MSE       float64  `json:"mse_mm2"`
	RMSE      float64  `json:"rmse_mm"`
	Grade     Grade    `json:"grade"`
	Condition float64  `json:"condition"`
	Issues    []string `json:"issues,omitempty"`
}

// Assess computes reprojection statistics and a grade for h.
func Assess(h Matrix, pixel, robot []Point, t Thresholds) Quality {
	q := Quality{Valid: h.IsValid(), Grade: GradeUnknown, Issues: make([]string, 0)}
	if !q.Valid {
		q.Issues = append(q.Issues, fmt.Sprintf("matrix rejected: |det| = %.3g", math.Abs(h.Det())))
		q.Grade = GradePoor
		return q
	}

	mse, err := ReprojectionError(h, pixel, robot)
	if err != nil {
		q.Issues = append(q.Issues, err.Error())
		return q
	}
	q.MSE = mse
	q.RMSE = math.Sqrt(mse)
	q.Grade = t.Grade(q.RMSE)
	switch q.Grade {
	case GradeFair:
		q.Issues = append(q.Issues, "calibration quality is fair - consider recalibration")
	case GradePoor:
		q.Issues = append(q.Issues, "calibration quality is poor - recalibration required")
	}

	if cond, err := conditionNumber(pixel, robot); err == nil {
		q.Condition = cond
	}
	return q
}

func conditionNumber(pixel, robot []Point) (float64, error) {
	if err := validateCorrespondences(pixel, robot); err != nil {
		return 0, err
	}
	pn, err := normalizer(pixel)
	if err != nil {
		return 0, err
	}
	rn, err := normalizer(robot)
	if err != nil {
		return 0, err
	}
	np := make([]Point, len(pixel))
	nr := make([]Point, len(robot))
	for i := range pixel {
		np[i] = pn.apply(pixel[i])
		nr[i] = rn.apply(robot[i])
	}
	rows, _ := dltSystem(np, nr)
	data := make([]float64, 0, 64)
	for _, r := range rows {
		data = append(data, r...)
	}
	return mat.Cond(mat.NewDense(len(rows), len(rows[0]), data), 2), nil
}
