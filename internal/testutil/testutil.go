// Package testutil provides shared test utilities and fixtures.
//
// The arm fixtures describe a mirrored pair of six-joint servo arms whose
// numbers match config/arms.example.json, so tests across packages agree on
// the same rig.
package testutil

import (
	"math"
	"testing"

	"github.com/banshee-data/dualarm/internal/kinematics"
)

// AssertNoError fails the test if err is not nil.
func AssertNoError(t testing.TB, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// AssertError fails the test if err is nil.
func AssertError(t testing.TB, err error) {
	t.Helper()
	if err == nil {
		t.Fatal("expected error, got nil")
	}
}

// AssertNear fails the test if got is further than tol from want.
func AssertNear(t testing.TB, name string, got, want, tol float64) {
	t.Helper()
	if math.IsNaN(got) || math.Abs(got-want) > tol {
		t.Errorf("%s = %.6f, want %.6f (±%g)", name, got, want, tol)
	}
}

func servo270(channel int, kind kinematics.JointKind, ref kinematics.MinPosRef, zero, lo, hi, length float64) kinematics.JointSpec {
	return kinematics.JointSpec{
		Channel:           channel,
		Kind:              kind,
		ActuationRangeDeg: 270,
		PulseMin:          500,
		PulseMax:          2500,
		ZeroPulse:         500 + int(math.Round(zero/270*2000)),
		ZeroOffsetDeg:     zero,
		MinPosRef:         ref,
		PhysicalMinDeg:    lo,
		PhysicalMaxDeg:    hi,
		LinkLengthMm:      length,
		DeviceName:        "DS3225",
	}
}

func gripper180(channel int, zero float64) kinematics.JointSpec {
	return kinematics.JointSpec{
		Channel:           channel,
		Kind:              kinematics.KindGripper,
		ActuationRangeDeg: 180,
		PulseMin:          500,
		PulseMax:          2500,
		ZeroPulse:         500 + int(math.Round(zero/180*2000)),
		ZeroOffsetDeg:     zero,
		MinPosRef:         kinematics.RefOpen,
		PhysicalMinDeg:    0,
		PhysicalMaxDeg:    180,
		LinkLengthMm:      40,
		DeviceName:        "MG996R",
	}
}

// ArmSpecs returns the fixture joint specs for one arm. The arms face each
// other across the table, so the right yaw runs from the opposite side; the
// other joints differ only in zero offsets, limits and channels.
func ArmSpecs(arm kinematics.Arm) [kinematics.NumJoints]kinematics.JointSpec {
	if arm == kinematics.Right {
		return [kinematics.NumJoints]kinematics.JointSpec{
			servo270(6, kinematics.KindYaw, kinematics.RefLeft, 135, 45, 225, 80),
			servo270(7, kinematics.KindPitch, kinematics.RefBottom, 170, 70, 240, 120),
			servo270(8, kinematics.KindPitch, kinematics.RefTop, 100, 10, 250, 110),
			servo270(9, kinematics.KindPitch, kinematics.RefTop, 135, 0, 270, 60),
			servo270(10, kinematics.KindRoll, kinematics.RefCcw, 135, 0, 270, 0),
			gripper180(11, 90),
		}
	}
	return [kinematics.NumJoints]kinematics.JointSpec{
		servo270(0, kinematics.KindYaw, kinematics.RefRight, 135, 45, 225, 80),
		servo270(1, kinematics.KindPitch, kinematics.RefBottom, 100, 30, 200, 120),
		servo270(2, kinematics.KindPitch, kinematics.RefTop, 170, 20, 260, 110),
		servo270(3, kinematics.KindPitch, kinematics.RefTop, 135, 0, 270, 60),
		servo270(4, kinematics.KindRoll, kinematics.RefCcw, 135, 0, 270, 0),
		gripper180(5, 90),
	}
}

// MustArmModel builds the fixture model for one arm.
func MustArmModel(t testing.TB, arm kinematics.Arm) *kinematics.ArmModel {
	t.Helper()
	m, err := kinematics.NewArmModel(arm, ArmSpecs(arm), kinematics.ArmOptions{})
	if err != nil {
		t.Fatalf("build %s arm: %v", arm, err)
	}
	return m
}

// MustArmModels builds both fixture arms keyed by identity.
func MustArmModels(t testing.TB) map[kinematics.Arm]*kinematics.ArmModel {
	t.Helper()
	return map[kinematics.Arm]*kinematics.ArmModel{
		kinematics.Left:  MustArmModel(t, kinematics.Left),
		kinematics.Right: MustArmModel(t, kinematics.Right),
	}
}
