// Package report renders a calibrated geometry as a top-down plan: bases,
// vertices, the share point and each arm's reach circle. It writes a static
// PNG for bench notes and an interactive HTML scatter for the browser.
package report

import (
	"fmt"
	"image/color"
	"io"
	"math"
	"sort"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"github.com/banshee-data/dualarm/internal/calibration"
	"github.com/banshee-data/dualarm/internal/fsutil"
	"github.com/banshee-data/dualarm/internal/kinematics"
)

// circleSegments is the number of chords used to draw a reach circle.
const circleSegments = 72

var armColors = map[string]color.RGBA{
	"left_arm":  {R: 31, G: 119, B: 180, A: 255},
	"right_arm": {R: 214, G: 39, B: 40, A: 255},
}

var shareColor = color.RGBA{R: 44, G: 160, B: 44, A: 255}

// Plan is a renderable top-down view of one geometry block.
type Plan struct {
	Title string
	Block *calibration.Block
	// ReachMm is each arm's maximum planar reach, keyed like Block.Bases.
	ReachMm map[string]float64
}

// NewPlan pairs a geometry block with the reach of each modelled arm.
func NewPlan(title string, b *calibration.Block, models map[kinematics.Arm]*kinematics.ArmModel) Plan {
	p := Plan{Title: title, Block: b, ReachMm: make(map[string]float64)}
	for arm, m := range models {
		_, hi := m.ReachAnnulus()
		p.ReachMm[calibration.ArmKey(arm)] = hi
	}
	return p
}

func (p Plan) armKeys() []string {
	keys := make([]string, 0, len(p.Block.Bases))
	for k := range p.Block.Bases {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (p Plan) vertexIDs() []string {
	ids := make([]string, 0, len(p.Block.Vertices))
	for id := range p.Block.Vertices {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func circle(cx, cy, r float64) plotter.XYs {
	pts := make(plotter.XYs, circleSegments+1)
	for i := range pts {
		a := 2 * math.Pi * float64(i) / circleSegments
		pts[i] = plotter.XY{X: cx + r*math.Cos(a), Y: cy + r*math.Sin(a)}
	}
	return pts
}

// Extent returns the half-width of a square centred on the origin that
// holds every base, vertex and reach circle.
func (p Plan) Extent() float64 {
	ext := 10.0
	for k, b := range p.Block.Bases {
		ext = math.Max(ext, math.Max(math.Abs(b.X), math.Abs(b.Y))+p.ReachMm[k])
	}
	for _, v := range p.Block.Vertices {
		ext = math.Max(ext, math.Max(math.Abs(v.X), math.Abs(v.Y)))
	}
	return math.Ceil(ext/50) * 50
}

func (p Plan) plot() (*plot.Plot, error) {
	if p.Block == nil {
		return nil, fmt.Errorf("plan has no geometry")
	}
	pl := plot.New()
	pl.Title.Text = p.Title
	pl.X.Label.Text = "X (mm)"
	pl.Y.Label.Text = "Y (mm)"
	ext := p.Extent()
	pl.X.Min, pl.X.Max = -ext, ext
	pl.Y.Min, pl.Y.Max = -ext, ext
	pl.Add(plotter.NewGrid())

	for _, k := range p.armKeys() {
		b := p.Block.Bases[k]
		c := armColors[k]

		if r := p.ReachMm[k]; r > 0 {
			line, err := plotter.NewLine(circle(b.X, b.Y, r))
			if err != nil {
				return nil, fmt.Errorf("%s reach: %w", k, err)
			}
			line.Color = c
			line.Width = vg.Points(0.75)
			line.Dashes = []vg.Length{vg.Points(4), vg.Points(3)}
			pl.Add(line)
		}

		base, err := plotter.NewScatter(plotter.XYs{{X: b.X, Y: b.Y}})
		if err != nil {
			return nil, fmt.Errorf("%s base: %w", k, err)
		}
		base.GlyphStyle.Shape = draw.BoxGlyph{}
		base.GlyphStyle.Color = c
		base.GlyphStyle.Radius = vg.Points(5)
		pl.Add(base)
		pl.Legend.Add(k+" base", base)

		var pts plotter.XYs
		var labels []string
		for _, id := range p.vertexIDs() {
			if v := p.Block.Vertices[id]; v.Owner == k {
				pts = append(pts, plotter.XY{X: v.X, Y: v.Y})
				labels = append(labels, id)
			}
		}
		if len(pts) == 0 {
			continue
		}
		verts, err := plotter.NewScatter(pts)
		if err != nil {
			return nil, fmt.Errorf("%s vertices: %w", k, err)
		}
		verts.GlyphStyle.Shape = draw.CircleGlyph{}
		verts.GlyphStyle.Color = c
		verts.GlyphStyle.Radius = vg.Points(3)
		pl.Add(verts)
		pl.Legend.Add(k+" vertices", verts)

		lbl, err := plotter.NewLabels(plotter.XYLabels{XYs: pts, Labels: labels})
		if err != nil {
			return nil, fmt.Errorf("%s labels: %w", k, err)
		}
		for i := range lbl.TextStyle {
			lbl.TextStyle[i].Color = c
		}
		lbl.Offset = vg.Point{X: vg.Points(4), Y: vg.Points(4)}
		pl.Add(lbl)
	}

	origin, err := plotter.NewScatter(plotter.XYs{{X: p.Block.Origin.X, Y: p.Block.Origin.Y}})
	if err != nil {
		return nil, fmt.Errorf("share point: %w", err)
	}
	origin.GlyphStyle.Shape = draw.CrossGlyph{}
	origin.GlyphStyle.Color = shareColor
	origin.GlyphStyle.Radius = vg.Points(5)
	pl.Add(origin)
	pl.Legend.Add(calibration.SharePointKey, origin)

	pl.Legend.Top = true
	pl.Legend.Left = false
	pl.Legend.XOffs = -10
	pl.Legend.YOffs = -10
	return pl, nil
}

// WritePNG renders the plan as a square PNG of the given side length.
func (p Plan) WritePNG(w io.Writer, side vg.Length) error {
	pl, err := p.plot()
	if err != nil {
		return err
	}
	wt, err := pl.WriterTo(side, side, "png")
	if err != nil {
		return fmt.Errorf("png canvas: %w", err)
	}
	if _, err := wt.WriteTo(w); err != nil {
		return fmt.Errorf("write png: %w", err)
	}
	return nil
}

// WriteHTML renders the plan as an interactive go-echarts scatter page.
func (p Plan) WriteHTML(w io.Writer) error {
	if p.Block == nil {
		return fmt.Errorf("plan has no geometry")
	}
	ext := p.Extent()
	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: p.Title, Width: "900px", Height: "900px"}),
		charts.WithTitleOpts(opts.Title{
			Title:    p.Title,
			Subtitle: fmt.Sprintf("%s bases=%d vertices=%d", p.Block.CoordinateSystem, len(p.Block.Bases), len(p.Block.Vertices)),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Formatter: "{b}: ({c})"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), Right: "10"}),
		charts.WithXAxisOpts(opts.XAxis{Min: -ext, Max: ext, Name: "X (mm)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Min: -ext, Max: ext, Name: "Y (mm)", NameLocation: "middle", NameGap: 35}),
	)

	for _, k := range p.armKeys() {
		b := p.Block.Bases[k]
		scatter.AddSeries(k+" base", []opts.ScatterData{{Name: k, Value: []interface{}{b.X, b.Y}, Symbol: "rect"}},
			charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 14}))

		var verts []opts.ScatterData
		for _, id := range p.vertexIDs() {
			if v := p.Block.Vertices[id]; v.Owner == k {
				verts = append(verts, opts.ScatterData{Name: id, Value: []interface{}{v.X, v.Y}})
			}
		}
		if len(verts) > 0 {
			scatter.AddSeries(k+" vertices", verts, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 9}))
		}

		if r := p.ReachMm[k]; r > 0 {
			ring := make([]opts.ScatterData, 0, circleSegments)
			for _, pt := range circle(b.X, b.Y, r)[:circleSegments] {
				ring = append(ring, opts.ScatterData{Name: k + " reach", Value: []interface{}{pt.X, pt.Y}})
			}
			scatter.AddSeries(k+" reach", ring, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 2}))
		}
	}
	scatter.AddSeries(calibration.SharePointKey,
		[]opts.ScatterData{{Name: calibration.SharePointKey, Value: []interface{}{p.Block.Origin.X, p.Block.Origin.Y}, Symbol: "diamond"}},
		charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 14}))

	if err := scatter.Render(w); err != nil {
		return fmt.Errorf("render html: %w", err)
	}
	return nil
}

// DefaultPNGSide is the side length used by SaveFiles.
const DefaultPNGSide = 8 * vg.Inch

// SaveFiles writes the PNG and/or HTML renderings. An empty path skips that
// format.
func SaveFiles(fsys fsutil.FileSystem, p Plan, pngPath, htmlPath string) error {
	write := func(path string, render func(io.Writer) error) error {
		f, err := fsys.Create(path)
		if err != nil {
			return fmt.Errorf("create %s: %w", path, err)
		}
		if err := render(f); err != nil {
			f.Close()
			return err
		}
		return f.Close()
	}
	if pngPath != "" {
		if err := write(pngPath, func(w io.Writer) error { return p.WritePNG(w, DefaultPNGSide) }); err != nil {
			return err
		}
	}
	if htmlPath != "" {
		if err := write(htmlPath, p.WriteHTML); err != nil {
			return err
		}
	}
	return nil
}
