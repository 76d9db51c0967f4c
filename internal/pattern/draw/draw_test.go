package draw

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/yukistavailable/NeuralTailor/internal/pattern"
)

func testSpec() *pattern.Spec {
	s := pattern.New()
	s.Pattern.Panels["front"] = &pattern.Panel{
		Translation: [3]float64{0, 0, 10},
		Vertices:    [][2]float64{{0, 0}, {20, 0}, {20, 20}, {0, 20}},
		Edges: []pattern.Edge{
			{Endpoints: [2]int{0, 1}},
			{Endpoints: [2]int{1, 2}, Curvature: &[2]float64{0.5, 0.2}},
			{Endpoints: [2]int{2, 3}},
			{Endpoints: [2]int{3, 0}},
		},
	}
	s.Pattern.Panels["back"] = &pattern.Panel{
		Translation: [3]float64{0, 0, -10},
		Rotation:    [3]float64{0, 180, 0},
		Vertices:    [][2]float64{{0, 0}, {20, 0}, {20, 20}, {0, 20}},
		Edges: []pattern.Edge{
			{Endpoints: [2]int{0, 1}},
			{Endpoints: [2]int{1, 2}},
			{Endpoints: [2]int{2, 3}},
			{Endpoints: [2]int{3, 0}},
		},
	}
	s.Pattern.Stitches = []pattern.Stitch{
		{{Panel: "front", Edge: 1}, {Panel: "back", Edge: 3}},
	}
	return s
}

func TestRenderProducesPanelsAndLabels(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Render(&buf, testSpec(), Options{}))
	out := buf.String()

	require.Contains(t, out, "<svg")
	require.Contains(t, out, "</svg>")
	require.Equal(t, 2, strings.Count(out, "<path"))
	require.Contains(t, out, ">front</text>")
	require.Contains(t, out, ">back</text>")
	// the curved edge renders as a quadratic Bezier
	require.Contains(t, out, " Q ")
}

func TestRenderStitchConnectors(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Render(&buf, testSpec(), Options{WithStitches: true}))
	require.Contains(t, buf.String(), "stroke-dasharray")

	buf.Reset()
	require.NoError(t, Render(&buf, testSpec(), Options{}))
	require.NotContains(t, buf.String(), "stroke-dasharray")
}

func TestRenderDeterministic(t *testing.T) {
	var a, b bytes.Buffer
	require.NoError(t, Render(&a, testSpec(), Options{WithStitches: true}))
	for i := 0; i < 10; i++ {
		b.Reset()
		require.NoError(t, Render(&b, testSpec(), Options{WithStitches: true}))
		require.Equal(t, a.String(), b.String())
	}
}

func TestRenderExplicitOrder(t *testing.T) {
	var buf bytes.Buffer
	spec := testSpec()
	require.NoError(t, Render(&buf, spec, Options{PanelOrder: []string{"front", "back"}}))
	out := buf.String()
	require.Less(t, strings.Index(out, ">front</text>"), strings.Index(out, ">back</text>"))

	err := Render(&buf, spec, Options{PanelOrder: []string{"sleeve"}})
	require.Error(t, err)
}
