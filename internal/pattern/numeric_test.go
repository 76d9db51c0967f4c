package pattern

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPanelNumericSimpleSquare(t *testing.T) {
	s := New()
	s.Pattern.Panels["p"] = squarePanel(10, [3]float64{3, 4, 5})

	rows, rot, transl, idMap, err := s.PanelNumeric("p", 0)
	require.NoError(t, err)
	require.Equal(t, []EdgeRow{
		{10, 0, 0, 0}, {0, 10, 0, 0}, {-10, 0, 0, 0}, {0, -10, 0, 0},
	}, rows)
	require.Equal(t, [3]float64{0, 0, 0}, rot)
	require.Equal(t, [3]float64{3, 4, 5}, transl)
	require.Equal(t, []int{0, 1, 2, 3}, idMap)
}

func TestPanelNumericCompensatesLocalShift(t *testing.T) {
	// same square, local frame offset by (5, 5); the world position of the
	// origin vertex must be preserved through the translation compensation
	s := New()
	s.Pattern.Panels["p"] = &Panel{
		Vertices: [][2]float64{{5, 5}, {15, 5}, {15, 15}, {5, 15}},
		Edges: []Edge{
			{Endpoints: [2]int{0, 1}}, {Endpoints: [2]int{1, 2}},
			{Endpoints: [2]int{2, 3}}, {Endpoints: [2]int{3, 0}},
		},
	}

	rows, _, transl, _, err := s.PanelNumeric("p", 0)
	require.NoError(t, err)
	require.Equal(t, EdgeRow{10, 0, 0, 0}, rows[0])
	require.InDelta(t, 5, transl[0], 1e-9)
	require.InDelta(t, 5, transl[1], 1e-9)
	require.InDelta(t, 0, transl[2], 1e-9)
}

func TestPanelNumericRotatesLoopStart(t *testing.T) {
	// edges listed starting from vertex 1; the encoding rotates the loop so
	// it starts at the on-Ox vertex closest to x=0, which is vertex 0
	s := New()
	s.Pattern.Panels["p"] = &Panel{
		Vertices: [][2]float64{{0, 0}, {10, 0}, {10, 10}, {0, 10}},
		Edges: []Edge{
			{Endpoints: [2]int{1, 2}},
			{Endpoints: [2]int{2, 3}},
			{Endpoints: [2]int{3, 0}},
			{Endpoints: [2]int{0, 1}},
		},
	}

	rows, _, _, idMap, err := s.PanelNumeric("p", 0)
	require.NoError(t, err)
	require.Equal(t, EdgeRow{10, 0, 0, 0}, rows[0])
	require.Equal(t, []int{1, 2, 3, 0}, idMap)
}

func TestPanelNumericPadding(t *testing.T) {
	s := New()
	s.Pattern.Panels["p"] = squarePanel(10, [3]float64{})

	rows, _, _, _, err := s.PanelNumeric("p", 6)
	require.NoError(t, err)
	require.Len(t, rows, 6)
	require.Equal(t, EdgeRow{}, rows[4])
	require.Equal(t, EdgeRow{}, rows[5])

	_, _, _, _, err = s.PanelNumeric("p", 3)
	require.ErrorIs(t, err, ErrPanelTooLong)
}

func TestPanelNumericEmptyPanel(t *testing.T) {
	s := New()
	s.Pattern.Panels["p"] = &Panel{}
	_, _, _, _, err := s.PanelNumeric("p", 0)
	require.ErrorIs(t, err, ErrEmptyPanel)
}

func TestEncodeStitchPairs(t *testing.T) {
	s := twoPanelSpec()
	enc, err := s.Encode(EncodeOptions{})
	require.NoError(t, err)

	require.Equal(t, []string{"back", "front"}, enc.PanelOrder)
	require.Equal(t, 4, enc.PaddedLen())
	// front:1 -- back:3 and front:3 -- back:1, with front at panel index 1
	require.Equal(t, [][2]int{{5, 3}, {7, 1}}, enc.Stitches)
}

func TestEncodeStitchTagsAndFreeMask(t *testing.T) {
	s := twoPanelSpec()
	enc, err := s.Encode(EncodeOptions{WithStitchTags: true})
	require.NoError(t, err)

	// back is panel 0: edges 1 and 3 stitched, 0 and 2 free
	require.Equal(t, []bool{true, false, true, false}, enc.FreeMask[0])
	require.Equal(t, []bool{true, false, true, false}, enc.FreeMask[1])

	require.NotEqual(t, [3]float64{}, enc.StitchTags[0][3])
	require.Equal(t, [3]float64{}, enc.StitchTags[0][0])
	// both sides of a stitch carry the same tag
	require.Equal(t, enc.StitchTags[1][1], enc.StitchTags[0][3])
}

func TestStitchTagsWorldMidpoints(t *testing.T) {
	s := twoPanelSpec()
	tags := s.StitchTags()
	require.Len(t, tags, 2)

	// stitch 0: front edge 1 midpoint lands at (20,10,10), the back edge 3
	// midpoint at (0,10,-10) after the 180 y rotation; the tag is their mean
	require.InDelta(t, 10, tags[0][0], 1e-9)
	require.InDelta(t, 10, tags[0][1], 1e-9)
	require.InDelta(t, 0, tags[0][2], 1e-9)
}

func TestPanelFromNumericClosedLoop(t *testing.T) {
	rows := []EdgeRow{
		{10, 0, 0, 0}, {0, 10, 0.5, 0.2}, {-10, 0, 0, 0}, {0, -10, 0, 0},
	}
	p, err := PanelFromNumeric("p", rows, false)
	require.NoError(t, err)
	require.Len(t, p.Vertices, 4)
	require.Len(t, p.Edges, 4)
	require.Equal(t, [2]int{3, 0}, p.Edges[3].Endpoints)
	require.NotNil(t, p.Edges[1].Curvature)
	require.InDelta(t, 0.5, p.Edges[1].Curvature[0], 1e-9)
}

func TestPanelFromNumericStripsPadding(t *testing.T) {
	rows := []EdgeRow{
		{10, 0, 0, 0}, {0, 10, 0, 0}, {-10, 0, 0, 0}, {0, -10, 0, 0},
		{0.3, -0.2, 0.1, 0}, // de-standardization noise, still a pad row
		{0, 0, 0, 0},
	}
	p, err := PanelFromNumeric("p", rows, true)
	require.NoError(t, err)
	require.Len(t, p.Edges, 4)

	_, err = PanelFromNumeric("p", []EdgeRow{{0, 0, 0, 0}}, true)
	require.ErrorIs(t, err, ErrEmptyPanel)
}

func TestPanelFromNumericOpenLoop(t *testing.T) {
	rows := []EdgeRow{
		{10, 0, 0, 0}, {0, 10, 0, 0}, {-10, 3, 0, 0},
	}
	p, err := PanelFromNumeric("p", rows, false)
	require.NoError(t, err)
	// the sequence does not return to the origin, so a vertex is added
	require.Len(t, p.Vertices, 4)
	require.Equal(t, [2]int{2, 3}, p.Edges[2].Endpoints)
	require.Equal(t, [2]float64{0, 13}, p.Vertices[3])
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	s := twoPanelSpec()
	enc, err := s.Encode(EncodeOptions{})
	require.NoError(t, err)

	rotations := make([][]float64, len(enc.Rotations))
	for i, r := range enc.Rotations {
		rotations[i] = []float64{r[0], r[1], r[2]}
	}
	dec, skipped, err := DecodeNumeric(enc.Panels, rotations, enc.Translations, enc.Stitches, true)
	require.NoError(t, err)
	require.Empty(t, skipped)
	require.Len(t, dec.Pattern.Panels, 2)
	require.Empty(t, dec.Validate())

	// the decoded pattern encodes to the same tensors
	again, err := dec.Encode(EncodeOptions{})
	require.NoError(t, err)
	require.Equal(t, enc.Panels, again.Panels)
	require.Equal(t, enc.Stitches, again.Stitches)
	require.Equal(t, enc.Translations, again.Translations)
}

func TestDecodeNumericSkipsEmptyPanels(t *testing.T) {
	panels := [][]EdgeRow{
		{{10, 0, 0, 0}, {0, 10, 0, 0}, {-10, 0, 0, 0}, {0, -10, 0, 0}},
		{{0, 0, 0, 0}, {0, 0, 0, 0}, {0, 0, 0, 0}, {0, 0, 0, 0}},
	}
	dec, skipped, err := DecodeNumeric(panels, nil, nil, nil, true)
	require.NoError(t, err)
	require.Equal(t, []string{"panel_1"}, skipped)
	require.Len(t, dec.Pattern.Panels, 1)
	require.Contains(t, dec.Pattern.Panels, "panel_0")
}
