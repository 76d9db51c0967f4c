package pattern

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

// parameterizedSpec is a single square panel with a length parameter on its
// bottom edge.
func parameterizedSpec() *Spec {
	s := New()
	s.Pattern.Panels["p"] = squarePanel(10, [3]float64{})
	s.Parameters["bottom_length"] = &Parameter{
		Value: Value{Vals: []float64{1}},
		Range: Ranges{Pairs: [][2]float64{{0.5, 1.5}}},
		Type:  ParamLength,
		Influence: []PanelInfluence{{
			Panel:    "p",
			EdgeList: []*EdgeInfluence{{ID: EdgeIDs{IDs: []int{0}}}},
		}},
	}
	s.ParameterOrder = []string{"bottom_length"}
	return s
}

func TestApplyLengthParameter(t *testing.T) {
	s := parameterizedSpec()
	require.NoError(t, s.ApplyParamValues([]float64{1.5}))

	p := s.Pattern.Panels["p"]
	require.InDelta(t, 15, p.EdgeLength(0), 1e-9)
	// both endpoints moved symmetrically around the edge midpoint
	require.InDelta(t, -2.5, p.Vertices[0][0], 1e-9)
	require.InDelta(t, 12.5, p.Vertices[1][0], 1e-9)
	// untouched vertices stay put
	require.Equal(t, [2]float64{10, 10}, p.Vertices[2])
}

func TestApplyRestoresTemplateFirst(t *testing.T) {
	s := parameterizedSpec()
	require.NoError(t, s.ApplyParamValues([]float64{1.5}))
	require.NoError(t, s.ApplyParamValues([]float64{1}))

	p := s.Pattern.Panels["p"]
	for i, want := range [][2]float64{{0, 0}, {10, 0}, {10, 10}, {0, 10}} {
		require.InDelta(t, want[0], p.Vertices[i][0], 1e-9)
		require.InDelta(t, want[1], p.Vertices[i][1], 1e-9)
	}
}

func TestApplyAdditiveLengthEndPivot(t *testing.T) {
	s := parameterizedSpec()
	param := s.Parameters["bottom_length"]
	param.Type = ParamAdditiveLength
	param.Value = Value{Vals: []float64{0}}
	param.Influence[0].EdgeList[0].Direction = "end"

	require.NoError(t, s.ApplyParamValues([]float64{5}))
	p := s.Pattern.Panels["p"]
	// the start vertex is the pivot, only the end vertex moves
	require.Equal(t, [2]float64{0, 0}, p.Vertices[0])
	require.InDelta(t, 15, p.Vertices[1][0], 1e-9)
	require.InDelta(t, 15, p.EdgeLength(0), 1e-9)

	require.NoError(t, s.ApplyParamValues([]float64{0}))
	require.InDelta(t, 10, p.EdgeLength(0), 1e-9)
}

func TestApplyCurveParameter(t *testing.T) {
	s := parameterizedSpec()
	s.Pattern.Panels["p"].Edges[0].Curvature = curv(0.5, 0.2)
	param := s.Parameters["bottom_length"]
	param.Type = ParamCurve

	require.NoError(t, s.ApplyParamValues([]float64{2}))
	c := s.Pattern.Panels["p"].Edges[0].Curvature
	// a scalar curve parameter scales only the perpendicular coordinate
	require.InDelta(t, 0.5, c[0], 1e-9)
	require.InDelta(t, 0.4, c[1], 1e-9)

	require.NoError(t, s.ApplyParamValues([]float64{1}))
	require.InDelta(t, 0.2, c[1], 1e-9)
}

func TestApplyMetaEdgeParameter(t *testing.T) {
	s := parameterizedSpec()
	s.Parameters["bottom_length"].Influence[0].EdgeList[0].ID = EdgeIDs{IDs: []int{0, 1}, Meta: true}

	require.NoError(t, s.ApplyParamValues([]float64{2}))
	p := s.Pattern.Panels["p"]
	// the chain 0 -> 1 -> 2 doubles its end-to-end span
	d := math.Hypot(p.Vertices[2][0]-p.Vertices[0][0], p.Vertices[2][1]-p.Vertices[0][1])
	require.InDelta(t, 2*math.Sqrt(200), d, 1e-9)
}

func TestParamValuesFlattened(t *testing.T) {
	s := parameterizedSpec()
	s.Parameters["curve"] = &Parameter{
		Value: Value{Vals: []float64{1, 1}, List: true},
		Range: Ranges{Pairs: [][2]float64{{0.5, 1.5}, {0.5, 1.5}}, List: true},
		Type:  ParamCurve,
	}
	s.ParameterOrder = append(s.ParameterOrder, "curve")

	require.Equal(t, []float64{1, 1, 1}, s.ParamValues())

	require.NoError(t, s.ApplyParamValues([]float64{1.2, 0.9, 1.1}))
	require.Equal(t, []float64{1.2, 0.9, 1.1}, s.ParamValues())

	err := s.ApplyParamValues([]float64{1.2})
	require.ErrorIs(t, err, ErrInvalidDef)
}

func TestLengthEqualityConstraint(t *testing.T) {
	s := New()
	s.Pattern.Panels["p"] = &Panel{
		Vertices: [][2]float64{{0, 0}, {10, 0}, {12, 8}, {-2, 8}},
		Edges: []Edge{
			{Endpoints: [2]int{0, 1}}, // length 10
			{Endpoints: [2]int{1, 2}},
			{Endpoints: [2]int{2, 3}}, // length 14
			{Endpoints: [2]int{3, 0}},
		},
	}
	s.Constraints = map[string]*Constraint{
		"hem": {
			Type: ConstraintLengthEquality,
			Influence: []PanelInfluence{{
				Panel: "p",
				EdgeList: []*EdgeInfluence{
					{ID: EdgeIDs{IDs: []int{0}}},
					{ID: EdgeIDs{IDs: []int{2}}},
				},
			}},
		},
	}
	s.ConstraintOrder = []string{"hem"}

	require.NoError(t, s.ApplyParamValues(nil))
	p := s.Pattern.Panels["p"]
	require.InDelta(t, 12, p.EdgeLength(0), 1e-9)
	require.InDelta(t, 12, p.EdgeLength(2), 1e-9)

	// re-applying restores the pre-constraint lengths before equalizing again
	require.NoError(t, s.ApplyParamValues(nil))
	require.InDelta(t, 12, p.EdgeLength(0), 1e-9)
	require.InDelta(t, 12, p.EdgeLength(2), 1e-9)
}

func TestRandomizeDeterministic(t *testing.T) {
	a := parameterizedSpec()
	b := parameterizedSpec()

	require.NoError(t, a.Randomize(rand.New(rand.NewSource(42))))
	require.NoError(t, b.Randomize(rand.New(rand.NewSource(42))))

	require.Equal(t, a.ParamValues(), b.ParamValues())
	require.Equal(t, a.Pattern.Panels["p"].Vertices, b.Pattern.Panels["p"].Vertices)

	v := a.ParamValues()[0]
	require.GreaterOrEqual(t, v, 0.5)
	require.LessOrEqual(t, v, 1.5)
	require.GreaterOrEqual(t, math.Abs(v), 1e-2)
	require.False(t, a.SelfIntersecting())
}
