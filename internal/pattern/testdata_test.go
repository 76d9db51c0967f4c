package pattern

// Shared fixtures: a small two-panel "skirt" with one curved edge and two
// stitches, built the way the dataset generator lays patterns out.

func curv(x, y float64) *[2]float64 {
	return &[2]float64{x, y}
}

// squarePanel returns a unit-square panel scaled by size, placed at transl.
func squarePanel(size float64, transl [3]float64) *Panel {
	return &Panel{
		Translation: transl,
		Vertices: [][2]float64{
			{0, 0}, {size, 0}, {size, size}, {0, size},
		},
		Edges: []Edge{
			{Endpoints: [2]int{0, 1}},
			{Endpoints: [2]int{1, 2}},
			{Endpoints: [2]int{2, 3}},
			{Endpoints: [2]int{3, 0}},
		},
	}
}

func twoPanelSpec() *Spec {
	front := squarePanel(20, [3]float64{0, 0, 10})
	back := squarePanel(20, [3]float64{0, 0, -10})
	back.Rotation = [3]float64{0, 180, 0}
	front.Edges[1].Curvature = curv(0.5, 0.2)

	s := New()
	s.Pattern.Panels["front"] = front
	s.Pattern.Panels["back"] = back
	s.Pattern.Stitches = []Stitch{
		{{Panel: "front", Edge: 1}, {Panel: "back", Edge: 3}},
		{{Panel: "front", Edge: 3}, {Panel: "back", Edge: 1}},
	}
	return s
}
