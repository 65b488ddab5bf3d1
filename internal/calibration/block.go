package calibration

import (
	"github.com/banshee-data/dualarm/internal/geomath"
	"github.com/banshee-data/dualarm/internal/kinematics"
)

// Block is the "geometry" section of the arm configuration file. It is
// derived data: Geometry.Block regenerates it from the stored poses.
type Block struct {
	CoordinateSystem string                 `json:"coordinate_system"`
	Origin           geomath.Vec2           `json:"origin"`
	Bases            map[string]BlockBase   `json:"bases"`
	Vertices         map[string]BlockVertex `json:"vertices"`
	Distances        DistanceMatrix         `json:"distances"`
}

// BlockBase is one arm's base in the geometry block.
type BlockBase struct {
	X       float64 `json:"x"`
	Y       float64 `json:"y"`
	Sources int     `json:"sources,omitempty"`
}

// BlockVertex is one vertex in the geometry block.
type BlockVertex struct {
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Owner string  `json:"owner"`
}

// Block renders the geometry in configuration-file form.
func (g *Geometry) Block() *Block {
	b := &Block{
		CoordinateSystem: g.CoordinateSystem,
		Origin:           geomath.Vec2{X: g.Origin.X, Y: g.Origin.Y},
		Bases:            make(map[string]BlockBase, len(g.Bases)),
		Vertices:         make(map[string]BlockVertex, len(g.Vertices)),
		Distances:        g.Distances,
	}
	for arm, base := range g.Bases {
		b.Bases[ArmKey(arm)] = BlockBase{X: base.Position.X, Y: base.Position.Y, Sources: base.Sources}
	}
	for id, v := range g.Vertices {
		b.Vertices[id] = BlockVertex{X: v.Position.X, Y: v.Position.Y, Owner: ArmKey(v.Owner)}
	}
	return b
}

// BasePoint returns the named arm's base, if present.
func (b *Block) BasePoint(arm kinematics.Arm) (geomath.Vec2, bool) {
	base, ok := b.Bases[ArmKey(arm)]
	return geomath.Vec2{X: base.X, Y: base.Y}, ok
}
