// Package calibration turns stored calibration poses into the shared world
// geometry of the rig: where each arm's base sits, where the calibrated
// vertices lie and how far apart everything is.
//
// World coordinates are millimetres with the share point as origin. Every
// position is the gripper tip, so Z is the tool height; distances are
// measured in the table plane.
package calibration

import (
	"fmt"
	"math"
	"sort"

	"github.com/banshee-data/dualarm/internal/geomath"
	"github.com/banshee-data/dualarm/internal/kinematics"
)

// DefaultCoordinateSystem describes the frame the geometry block is
// expressed in when the configuration does not name one.
const DefaultCoordinateSystem = "share_point_origin_xy_mm"

// PoseSource is one stored calibration pose.
type PoseSource struct {
	ID     string
	Owner  kinematics.Arm
	Pulses [kinematics.NumJoints]int
}

// CalibrationPoses is everything ComputeGeometry consumes besides the arm
// models. SharePoints holds every recording of each arm touching the share
// point; Vertices may repeat an ID to average several recordings.
type CalibrationPoses struct {
	CoordinateSystem string
	Origin           kinematics.Point3
	SharePoints      map[kinematics.Arm][]PoseSource
	Vertices         []PoseSource
}

// Base is an arm's base position derived from its share-point poses.
type Base struct {
	Position kinematics.Point3
	Sources  int
	// SpreadMm is the largest planar distance between the origin and a
	// single share-point recording placed from the averaged base.
	SpreadMm float64
}

// Vertex is a calibrated workspace point.
type Vertex struct {
	ID       string
	Owner    kinematics.Arm
	Position kinematics.Point3
	Sources  int
}

// DistanceMatrix holds the pairwise planar distances in millimetres, keyed
// "<a>_to_<b>".
type DistanceMatrix struct {
	VertexToVertex     map[string]float64 `json:"vertex_to_vertex"`
	BaseToVertex       map[string]float64 `json:"base_to_vertex"`
	SharePointToVertex map[string]float64 `json:"share_point_to_vertex"`
	BaseToBase         map[string]float64 `json:"base_to_base"`
}

// Geometry is one complete, consistent calibration result.
type Geometry struct {
	CoordinateSystem string
	Origin           kinematics.Point3
	Bases            map[kinematics.Arm]Base
	SharePoints      map[kinematics.Arm]kinematics.Point3
	Vertices         map[string]Vertex
	Distances        DistanceMatrix
	// Poses holds the solver-frame pose read from each source's pulses,
	// keyed by source ID.
	Poses map[string]kinematics.ArmPose
}

// VertexIDs returns the vertex IDs in sorted order.
func (g *Geometry) VertexIDs() []string {
	ids := make([]string, 0, len(g.Vertices))
	for id := range g.Vertices {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// ArmKey is the configuration spelling of an arm ("left_arm").
func ArmKey(a kinematics.Arm) string {
	return a.String() + "_arm"
}

// SharePointKey names the share point in distance keys.
const SharePointKey = "share_point"

// SharePointSourceID names the i-th share-point recording of an arm.
func SharePointSourceID(arm kinematics.Arm, i int) string {
	return fmt.Sprintf("%s_%s_%d", SharePointKey, ArmKey(arm), i)
}

type evaluated struct {
	src    PoseSource
	pose   kinematics.ArmPose
	offset kinematics.Point3
}

// toolOffset runs forward kinematics for src with the base at the origin
// and returns the gripper tip relative to the base.
func toolOffset(models map[kinematics.Arm]*kinematics.ArmModel, src PoseSource) (evaluated, error) {
	m, ok := models[src.Owner]
	if !ok {
		return evaluated{}, &PoseSourceError{ID: src.ID, Arm: src.Owner, Err: ErrUnknownArm}
	}
	pose, err := m.PoseFromPulses(src.Pulses)
	if err != nil {
		return evaluated{}, &PoseSourceError{ID: src.ID, Arm: src.Owner, Err: err}
	}
	fk := m.ForwardKinematics(pose, kinematics.Point3{})
	if fk.Confidence == kinematics.ConfidenceLow {
		return evaluated{}, &PoseSourceError{
			ID:  src.ID,
			Arm: src.Owner,
			Err: fmt.Errorf("%w: internal angle clamped to %.1f°", ErrLowConfidence, fk.InternalAngleDeg),
		}
	}
	return evaluated{
		src:    src,
		pose:   pose,
		offset: kinematics.Point3{X: fk.Position.X, Y: fk.Position.Y, Z: fk.ToolZ},
	}, nil
}

func meanPoint(pts []kinematics.Point3) kinematics.Point3 {
	xs := make([]float64, len(pts))
	ys := make([]float64, len(pts))
	zs := make([]float64, len(pts))
	for i, p := range pts {
		xs[i], ys[i], zs[i] = p.X, p.Y, p.Z
	}
	return kinematics.Point3{X: geomath.Mean(xs), Y: geomath.Mean(ys), Z: geomath.Mean(zs)}
}

func planarDistance(a, b kinematics.Point3) float64 {
	return geomath.Distance([]float64{a.X, a.Y}, []float64{b.X, b.Y})
}

// ComputeGeometry places both arms' bases from their share-point poses,
// places every vertex from its owner's base and rebuilds the distance
// matrix. It either returns a complete geometry or the first failing pose
// as a *PoseSourceError.
func ComputeGeometry(models map[kinematics.Arm]*kinematics.ArmModel, poses CalibrationPoses) (*Geometry, error) {
	g := &Geometry{
		CoordinateSystem: poses.CoordinateSystem,
		Origin:           poses.Origin,
		Bases:            make(map[kinematics.Arm]Base),
		SharePoints:      make(map[kinematics.Arm]kinematics.Point3),
		Vertices:         make(map[string]Vertex),
		Poses:            make(map[string]kinematics.ArmPose),
	}
	if g.CoordinateSystem == "" {
		g.CoordinateSystem = DefaultCoordinateSystem
	}

	for _, arm := range kinematics.Arms {
		sources := poses.SharePoints[arm]
		if len(sources) == 0 {
			continue
		}
		evals := make([]evaluated, 0, len(sources))
		bases := make([]kinematics.Point3, 0, len(sources))
		for i, src := range sources {
			src.Owner = arm
			if src.ID == "" {
				src.ID = SharePointSourceID(arm, i)
			}
			ev, err := toolOffset(models, src)
			if err != nil {
				return nil, err
			}
			evals = append(evals, ev)
			bases = append(bases, poses.Origin.Sub(ev.offset))
			g.Poses[src.ID] = ev.pose
		}

		base := Base{Position: meanPoint(bases), Sources: len(evals)}
		placed := make([]kinematics.Point3, len(evals))
		for i, ev := range evals {
			placed[i] = base.Position.Add(ev.offset)
			base.SpreadMm = math.Max(base.SpreadMm, planarDistance(placed[i], poses.Origin))
		}
		g.Bases[arm] = base
		g.SharePoints[arm] = meanPoint(placed)
	}

	byID := make(map[string][]PoseSource)
	var order []string
	for _, src := range poses.Vertices {
		prev, seen := byID[src.ID]
		if !seen {
			order = append(order, src.ID)
		} else if prev[0].Owner != src.Owner {
			return nil, &PoseSourceError{
				ID:  src.ID,
				Arm: src.Owner,
				Err: fmt.Errorf("%w: also recorded by %s arm", ErrConflictingOwner, prev[0].Owner),
			}
		}
		byID[src.ID] = append(prev, src)
	}

	for _, id := range order {
		sources := byID[id]
		owner := sources[0].Owner
		positions := make([]kinematics.Point3, 0, len(sources))
		for _, src := range sources {
			ev, err := toolOffset(models, src)
			if err != nil {
				return nil, err
			}
			base, ok := g.Bases[owner]
			if !ok {
				return nil, &PoseSourceError{ID: id, Arm: owner, Err: ErrNoBase}
			}
			positions = append(positions, base.Position.Add(ev.offset))
			g.Poses[id] = ev.pose
		}
		g.Vertices[id] = Vertex{ID: id, Owner: owner, Position: meanPoint(positions), Sources: len(sources)}
	}

	g.Distances = g.distanceMatrix()
	return g, nil
}

func (g *Geometry) distanceMatrix() DistanceMatrix {
	d := DistanceMatrix{
		VertexToVertex:     make(map[string]float64),
		BaseToVertex:       make(map[string]float64),
		SharePointToVertex: make(map[string]float64),
		BaseToBase:         make(map[string]float64),
	}
	ids := g.VertexIDs()
	for i, a := range ids {
		va := g.Vertices[a].Position
		for _, b := range ids[i+1:] {
			d.VertexToVertex[a+"_to_"+b] = planarDistance(va, g.Vertices[b].Position)
		}
		for _, arm := range kinematics.Arms {
			if base, ok := g.Bases[arm]; ok {
				d.BaseToVertex[ArmKey(arm)+"_to_"+a] = planarDistance(base.Position, va)
			}
		}
		d.SharePointToVertex[SharePointKey+"_to_"+a] = planarDistance(g.Origin, va)
	}

	for i, a := range kinematics.Arms {
		ba, ok := g.Bases[a]
		if !ok {
			continue
		}
		for _, b := range kinematics.Arms[i+1:] {
			if bb, ok := g.Bases[b]; ok {
				d.BaseToBase[ArmKey(a)+"_to_"+ArmKey(b)] = planarDistance(ba.Position, bb.Position)
			}
		}
	}
	return d
}

// BaseDistance returns the planar distance between the two bases, or false
// when either arm has no base.
func (g *Geometry) BaseDistance() (float64, bool) {
	l, okL := g.Bases[kinematics.Left]
	r, okR := g.Bases[kinematics.Right]
	if !okL || !okR {
		return 0, false
	}
	return planarDistance(l.Position, r.Position), true
}
