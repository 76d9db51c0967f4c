// Package draw renders sewing patterns as SVG: one path per panel, panels
// laid out side by side by their bounding boxes, with optional stitch
// connectors. Output is deterministic for a fixed pattern.
package draw

import (
	"fmt"
	"io"
	"math"
	"sort"

	svg "github.com/ajstarks/svgo"
	"github.com/ungerik/go3d/float64/vec2"

	"github.com/yukistavailable/NeuralTailor/internal/pattern"
)

// Options controls the rendered layout.
type Options struct {
	// Scale is the number of SVG units per pattern centimeter. Zero means 2.
	Scale float64

	// Margin is the space around and between panels, in pattern cm.
	// Zero means 5.
	Margin float64

	// WithStitches draws dashed connector lines between stitched edge
	// midpoints.
	WithStitches bool

	// Panel canonical order. Empty means the pattern's own deterministic
	// 3D placement order.
	PanelOrder []string
}

func (o *Options) defaults() {
	if o.Scale <= 0 {
		o.Scale = 2
	}
	if o.Margin <= 0 {
		o.Margin = 5
	}
}

const (
	panelStyle  = "fill:rgb(216,214,236);stroke:rgb(51,51,51);stroke-width:1.5"
	stitchStyle = "stroke:rgb(127,127,255);stroke-width:1;stroke-dasharray:4,3;fill:none"
	labelStyle  = "font-family:sans-serif;font-size:14px;fill:rgb(51,51,51);text-anchor:middle"
)

// placement is one panel positioned on the canvas. The transform maps panel
// local cm coordinates to SVG units, flipping y so the panel reads upright.
type placement struct {
	name    string
	offset  vec2.T // canvas position of the panel bbox low corner, SVG units
	low     vec2.T
	high    vec2.T
	midTags map[int]vec2.T // canvas midpoint per stitched edge
}

// Render writes the pattern as a complete SVG document.
func Render(w io.Writer, s *pattern.Spec, opts Options) error {
	opts.defaults()

	order := opts.PanelOrder
	if len(order) == 0 {
		order = s.PanelOrder()
	}
	for _, name := range order {
		if _, ok := s.Pattern.Panels[name]; !ok {
			return fmt.Errorf("draw: pattern has no panel %q", name)
		}
	}

	placements, width, height := layout(s, order, opts)

	canvas := svg.New(w)
	canvas.Start(int(math.Ceil(width)), int(math.Ceil(height)))
	for _, pl := range placements {
		panel := s.Pattern.Panels[pl.name]
		canvas.Path(panelPath(panel, pl, opts), panelStyle)

		cx := pl.offset[0] + (pl.high[0]-pl.low[0])*opts.Scale/2
		cy := pl.offset[1] + (pl.high[1]-pl.low[1])*opts.Scale + 18
		canvas.Text(int(cx), int(cy), pl.name, labelStyle)
	}

	if opts.WithStitches {
		drawStitches(canvas, s, placements)
	}
	canvas.End()
	return nil
}

// layout assigns each panel a canvas slot on a single row and returns the
// total canvas size in SVG units.
func layout(s *pattern.Spec, order []string, opts Options) ([]placement, float64, float64) {
	margin := opts.Margin * opts.Scale
	placements := make([]placement, 0, len(order))

	x := margin
	maxH := 0.0
	for _, name := range order {
		panel := s.Pattern.Panels[name]
		low, high := panel.BBox()
		w := (high[0] - low[0]) * opts.Scale
		h := (high[1] - low[1]) * opts.Scale
		placements = append(placements, placement{
			name:    name,
			offset:  vec2.T{x, margin},
			low:     low,
			high:    high,
			midTags: map[int]vec2.T{},
		})
		x += w + margin
		if h > maxH {
			maxH = h
		}
	}
	// label strip below the tallest panel
	return placements, x, maxH + 2*margin + 24
}

// toCanvas maps a panel-local point into canvas coordinates: pattern y grows
// upward, SVG y grows downward.
func toCanvas(p vec2.T, pl placement, opts Options) vec2.T {
	return vec2.T{
		pl.offset[0] + (p[0]-pl.low[0])*opts.Scale,
		pl.offset[1] + (pl.high[1]-p[1])*opts.Scale,
	}
}

// panelPath builds the SVG path for the panel outline, following the edge
// loop with lines and quadratic Beziers.
func panelPath(panel *pattern.Panel, pl placement, opts Options) string {
	if len(panel.Edges) == 0 {
		return ""
	}
	first := vec2.T(panel.Vertices[panel.Edges[0].Endpoints[0]])
	start := toCanvas(first, pl, opts)
	path := fmt.Sprintf("M %s", coord(start))

	for i, edge := range panel.Edges {
		a := vec2.T(panel.Vertices[edge.Endpoints[0]])
		b := vec2.T(panel.Vertices[edge.Endpoints[1]])
		end := toCanvas(b, pl, opts)
		if edge.Curvature != nil {
			control := toCanvas(pattern.ControlToAbs(a, b, *edge.Curvature), pl, opts)
			path += fmt.Sprintf(" Q %s %s", coord(control), coord(end))
			pl.midTags[i] = bezierMid(toCanvas(a, pl, opts), control, end)
		} else {
			path += fmt.Sprintf(" L %s", coord(end))
			mid := vec2.Add(&a, &b)
			pl.midTags[i] = toCanvas(mid.Scaled(0.5), pl, opts)
		}
	}
	return path + " z"
}

func coord(p vec2.T) string {
	return fmt.Sprintf("%.2f %.2f", p[0], p[1])
}

// bezierMid evaluates the quadratic Bezier at t=0.5.
func bezierMid(a, c, b vec2.T) vec2.T {
	return vec2.T{
		0.25*a[0] + 0.5*c[0] + 0.25*b[0],
		0.25*a[1] + 0.5*c[1] + 0.25*b[1],
	}
}

// drawStitches connects the midpoints of stitched edges with dashed lines.
func drawStitches(canvas *svg.SVG, s *pattern.Spec, placements []placement) {
	byName := make(map[string]placement, len(placements))
	for _, pl := range placements {
		byName[pl.name] = pl
	}

	// stable stitch order for deterministic output
	idx := make([]int, len(s.Pattern.Stitches))
	for i := range idx {
		idx[i] = i
	}
	sort.Ints(idx)

	for _, i := range idx {
		stitch := s.Pattern.Stitches[i]
		var pts [2]vec2.T
		ok := true
		for side := 0; side < 2; side++ {
			pl, found := byName[stitch[side].Panel]
			if !found {
				ok = false
				break
			}
			mid, found := pl.midTags[stitch[side].Edge]
			if !found {
				ok = false
				break
			}
			pts[side] = mid
		}
		if !ok {
			continue
		}
		canvas.Line(int(pts[0][0]), int(pts[0][1]), int(pts[1][0]), int(pts[1][1]), stitchStyle)
	}
}
