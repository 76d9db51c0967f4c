package pattern

import (
	"errors"
	"fmt"
	"math"

	"github.com/ungerik/go3d/float64/vec2"
	"github.com/ungerik/go3d/float64/vec3"

	"github.com/yukistavailable/NeuralTailor/internal/log"
)

// EdgeRow is the numeric form of one panel edge: the additive edge vector
// followed by the relative Bezier control, zeros for straight edges.
type EdgeRow [4]float64

// padRowAtol is the per-element tolerance under which a (de-standardized)
// row counts as padding.
const padRowAtol = 1.5

// Encoding is the tensor exchange representation of a pattern: the form the
// network consumes as ground truth and produces as prediction.
type Encoding struct {
	// PanelOrder lists the encoded panels in their canonical order.
	PanelOrder []string `json:"panel_order"`

	// Panels holds the per-panel edge sequences, zero-padded to a common
	// length.
	Panels [][]EdgeRow `json:"panels"`

	Rotations    [][3]float64 `json:"rotations"`
	Translations [][3]float64 `json:"translations"`

	// Stitches pairs pattern-level edge ids:
	// id = panelIndex*paddedLen + edgeIndex.
	Stitches [][2]int `json:"stitches"`

	// StitchTags holds a per-panel, per-edge 3D tag: the stitch identifier
	// for stitched edges, zeros for free and padding edges.
	StitchTags [][][3]float64 `json:"stitch_tags,omitempty"`

	// FreeMask is true for edges that take part in no stitch. Padding rows
	// count as free.
	FreeMask [][]bool `json:"free_mask,omitempty"`
}

// PaddedLen returns the common per-panel edge count of the encoding.
func (e *Encoding) PaddedLen() int {
	if len(e.Panels) == 0 {
		return 0
	}
	return len(e.Panels[0])
}

// EncodeOptions controls tensor encoding.
type EncodeOptions struct {
	// PadPanelsTo forces the padded edge count; 0 pads to the maximum edge
	// count among panels.
	PadPanelsTo int

	// WithStitchTags adds per-edge 3D stitch tags and the free-edge mask.
	WithStitchTags bool
}

// PanelNumeric converts one panel into its edge-sequence form:
// vertices shifted so a deterministic on-Ox vertex sits at the origin, the
// edge loop rotated to start there, each edge as an additive vector row.
// Returns the rows, the compensated placement and the old-to-new edge id map.
func (s *Spec) PanelNumeric(name string, padTo int) ([]EdgeRow, [3]float64, [3]float64, []int, error) {
	panel, ok := s.Pattern.Panels[name]
	if !ok {
		return nil, [3]float64{}, [3]float64{}, nil, fmt.Errorf("%w: no panel %q", ErrInvalidDef, name)
	}
	if len(panel.Vertices) == 0 || len(panel.Edges) == 0 {
		return nil, [3]float64{}, [3]float64{}, nil, fmt.Errorf("panel %q: %w", name, ErrEmptyPanel)
	}

	// bounding-box low-left corner to origin
	low, _ := panel.BBox()
	verts := make([]vec2.T, len(panel.Vertices))
	for i, v := range panel.Vertices {
		verts[i] = vec2.T{v[0] - low[0], v[1] - low[1]}
	}

	// among vertices sitting on Ox, choose the one closest to x=0
	originID := -1
	for i, v := range verts {
		if math.Abs(v[1]) > 1e-6 {
			continue
		}
		if originID < 0 || v[0] < verts[originID][0] {
			originID = i
		}
	}
	if originID < 0 {
		return nil, [3]float64{}, [3]float64{}, nil, fmt.Errorf("%w: panel %q has no vertex on the bounding-box bottom", ErrInvalidDef, name)
	}
	originShift := verts[originID]
	for i := range verts {
		verts[i] = vec2.Sub(&verts[i], &originShift)
	}
	// total shift applied to the panel's local frame
	shift := vec2.T{-(low[0] + originShift[0]), -(low[1] + originShift[1])}

	// rotate the edge loop to start at the origin vertex
	first := -1
	for i, edge := range panel.Edges {
		if edge.Endpoints[0] == originID {
			first = i
			break
		}
	}
	if first < 0 {
		return nil, [3]float64{}, [3]float64{}, nil, fmt.Errorf("%w: panel %q has no edge starting at the chosen origin", ErrInvalidDef, name)
	}

	n := len(panel.Edges)
	rows := make([]EdgeRow, 0, n)
	edgeIDMap := make([]int, n)
	for i := 0; i < n; i++ {
		edge := panel.Edges[(first+i)%n]
		start := verts[edge.Endpoints[0]]
		end := verts[edge.Endpoints[1]]
		row := EdgeRow{end[0] - start[0], end[1] - start[1], 0, 0}
		if edge.Curvature != nil {
			row[2], row[3] = edge.Curvature[0], edge.Curvature[1]
		}
		rows = append(rows, row)
	}
	for old := 0; old < n; old++ {
		edgeIDMap[old] = ((old-first)%n + n) % n
	}

	if padTo > 0 {
		if n > padTo {
			return nil, [3]float64{}, [3]float64{}, nil,
				fmt.Errorf("panel %q: %d edges into %d: %w", name, n, padTo, ErrPanelTooLong)
		}
		for len(rows) < padTo {
			rows = append(rows, EdgeRow{})
		}
	}

	// compensate the global translation for the local origin change
	rot := EulerToMatrix(panel.Rotation)
	shifted := rot.MulVec3(vec3.T{shift[0], shift[1], 0})
	translation := [3]float64{
		panel.Translation[0] - shifted[0],
		panel.Translation[1] - shifted[1],
		panel.Translation[2] - shifted[2],
	}

	return rows, panel.Rotation, translation, edgeIDMap, nil
}

// Encode converts the whole pattern into its tensor representation: panels
// in canonical order, placement, stitch index pairs and optionally per-edge
// stitch tags with the free-edge mask.
func (s *Spec) Encode(opts EncodeOptions) (*Encoding, error) {
	order := s.PanelOrder()

	maxLen := opts.PadPanelsTo
	if maxLen == 0 {
		for _, name := range order {
			if n := len(s.Pattern.Panels[name].Edges); n > maxLen {
				maxLen = n
			}
		}
	}

	enc := &Encoding{PanelOrder: order}
	edgeIDMaps := make(map[string][]int, len(order))
	panelIndex := make(map[string]int, len(order))
	for i, name := range order {
		rows, rot, transl, idMap, err := s.PanelNumeric(name, maxLen)
		if err != nil {
			return nil, err
		}
		enc.Panels = append(enc.Panels, rows)
		enc.Rotations = append(enc.Rotations, rot)
		enc.Translations = append(enc.Translations, transl)
		edgeIDMaps[name] = idMap
		panelIndex[name] = i
	}

	if opts.WithStitchTags {
		enc.StitchTags = make([][][3]float64, len(order))
		enc.FreeMask = make([][]bool, len(order))
		for i := range order {
			enc.StitchTags[i] = make([][3]float64, maxLen)
			enc.FreeMask[i] = make([]bool, maxLen)
			for j := range enc.FreeMask[i] {
				enc.FreeMask[i][j] = true
			}
		}
	}

	var tags [][3]float64
	if opts.WithStitchTags {
		tags = s.StitchTags()
	}

	for si, stitch := range s.Pattern.Stitches {
		var pair [2]int
		for side := 0; side < 2; side++ {
			ref := stitch[side]
			pi, ok := panelIndex[ref.Panel]
			if !ok {
				return nil, fmt.Errorf("%w: stitch %d references missing panel %q", ErrInvalidDef, si, ref.Panel)
			}
			idMap := edgeIDMaps[ref.Panel]
			if ref.Edge < 0 || ref.Edge >= len(idMap) {
				return nil, fmt.Errorf("%w: stitch %d references missing edge %d of panel %q", ErrInvalidDef, si, ref.Edge, ref.Panel)
			}
			edgeID := idMap[ref.Edge]
			pair[side] = pi*maxLen + edgeID
			if opts.WithStitchTags {
				enc.StitchTags[pi][edgeID] = tags[si]
				enc.FreeMask[pi][edgeID] = false
			}
		}
		enc.Stitches = append(enc.Stitches, pair)
	}

	return enc, nil
}

// StitchTags assigns every stitch an approximate 3D identifier: the mean of
// the participating edges' world-space midpoints when the garment is placed
// around the body. Tag values are independent of the panels' local origin
// and edge order choices.
func (s *Spec) StitchTags() [][3]float64 {
	tags := make([][3]float64, len(s.Pattern.Stitches))
	for i, stitch := range s.Pattern.Stitches {
		var mean vec3.T
		for _, side := range stitch {
			panel := s.Pattern.Panels[side.Panel]
			edge := panel.Edges[side.Edge]
			start := vec2.T(panel.Vertices[edge.Endpoints[0]])
			end := vec2.T(panel.Vertices[edge.Endpoints[1]])
			sum := vec2.Add(&start, &end)
			mid := sum.Scaled(0.5)
			world := PointIn3D(mid, EulerToMatrix(panel.Rotation), panel.Translation)
			mean = vec3.Add(&mean, &world)
		}
		mean = mean.Scaled(0.5)
		tags[i] = [3]float64(mean)
	}
	return tags
}

// PanelFromNumeric rebuilds a panel from its edge-sequence form. Padding
// rows are stripped when padded is set; the final edge closes the loop to
// the origin when its endpoint lands there, otherwise an extra vertex is
// created.
func PanelFromNumeric(name string, rows []EdgeRow, padded bool) (*Panel, error) {
	if padded {
		kept := make([]EdgeRow, 0, len(rows))
		for _, row := range rows {
			if !isPadRow(row) {
				kept = append(kept, row)
			}
		}
		rows = kept
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("panel %q: %w", name, ErrEmptyPanel)
	}

	panel := &Panel{Vertices: [][2]float64{{0, 0}}}
	for i := 0; i < len(rows)-1; i++ {
		prev := panel.Vertices[i]
		panel.Vertices = append(panel.Vertices, [2]float64{prev[0] + rows[i][0], prev[1] + rows[i][1]})
		panel.Edges = append(panel.Edges, edgeFromRow(i, i+1, rows[i]))
	}

	// the closing edge is a special case
	last := rows[len(rows)-1]
	lastStart := len(panel.Vertices) - 1
	fin := [2]float64{
		panel.Vertices[lastStart][0] + last[0],
		panel.Vertices[lastStart][1] + last[1],
	}
	if math.Abs(fin[0]) < closeAtol && math.Abs(fin[1]) < closeAtol {
		panel.Edges = append(panel.Edges, edgeFromRow(lastStart, 0, last))
	} else {
		logger := log.WithComponent("pattern")
		logger.Warn().Str("event", "pattern.open_loop").
			Str(log.FieldPanel, name).
			Msg("edge sequence does not return to origin, creating extra vertex")
		panel.Vertices = append(panel.Vertices, fin)
		panel.Edges = append(panel.Edges, edgeFromRow(lastStart, lastStart+1, last))
	}
	return panel, nil
}

const closeAtol = 1e-6

func isPadRow(row EdgeRow) bool {
	for _, v := range row {
		if math.Abs(v) > padRowAtol {
			return false
		}
	}
	return true
}

func edgeFromRow(start, end int, row EdgeRow) Edge {
	edge := Edge{Endpoints: [2]int{start, end}}
	if math.Abs(row[2]) > 1e-9 || math.Abs(row[3]) > 1e-9 {
		edge.Curvature = &[2]float64{row[2], row[3]}
	}
	return edge
}

// DecodeNumeric rebuilds a full pattern spec from tensor form. Rotations
// accept the 3-Euler-degree or the 6-element two-column matrix form. Panels
// whose rows are all padding are skipped and reported.
func DecodeNumeric(panels [][]EdgeRow, rotations [][]float64, translations [][3]float64, stitches [][2]int, padded bool) (*Spec, []string, error) {
	spec := New()
	var skipped []string

	edgesPerPanel := 0
	if len(panels) > 0 {
		edgesPerPanel = len(panels[0])
	}

	order := make([]string, 0, len(panels))
	for i, rows := range panels {
		name := fmt.Sprintf("panel_%d", i)
		order = append(order, name)

		panel, err := PanelFromNumeric(name, rows, padded)
		if err != nil {
			if errors.Is(err, ErrEmptyPanel) {
				skipped = append(skipped, name)
				continue
			}
			return nil, nil, err
		}
		if rotations != nil {
			rot, err := RotationFromNumeric(rotations[i])
			if err != nil {
				return nil, nil, fmt.Errorf("panel %s: %w", name, err)
			}
			panel.Rotation = rot
		}
		if translations != nil {
			panel.Translation = translations[i]
		}
		spec.Pattern.Panels[name] = panel
	}

	for _, pair := range stitches {
		if edgesPerPanel == 0 {
			break
		}
		var stitch Stitch
		valid := true
		for side := 0; side < 2; side++ {
			panelIdx := pair[side] / edgesPerPanel
			edgeIdx := pair[side] % edgesPerPanel
			if panelIdx < 0 || panelIdx >= len(order) {
				valid = false
				break
			}
			stitch[side] = StitchSide{Panel: order[panelIdx], Edge: edgeIdx}
		}
		if valid {
			spec.Pattern.Stitches = append(spec.Pattern.Stitches, stitch)
		}
	}

	return spec, skipped, nil
}
