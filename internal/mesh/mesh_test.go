package mesh

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/ungerik/go3d/float64/vec3"
)

func unitTriangle() *Mesh {
	return &Mesh{
		Points: []vec3.T{{0, 0, 0}, {1, 0, 0}, {0, 1, 0}},
		Faces:  [][3]int{{0, 1, 2}},
	}
}

func TestBoundsAndArea(t *testing.T) {
	m := unitTriangle()
	low, high := m.Bounds()
	require.Equal(t, vec3.T{0, 0, 0}, low)
	require.Equal(t, vec3.T{1, 1, 0}, high)
	require.InDelta(t, 0.5, m.FaceArea(0), 1e-12)

	c := m.FaceCentroid(0)
	require.InDelta(t, 1.0/3, c[0], 1e-12)
	require.InDelta(t, 1.0/3, c[1], 1e-12)
}

func TestSamplePointsOnSurface(t *testing.T) {
	m := unitTriangle()
	pts := SamplePoints(m, 500, rand.New(rand.NewSource(7)))
	require.Len(t, pts, 500)
	for _, p := range pts {
		require.InDelta(t, 0, p[2], 1e-12)
		require.GreaterOrEqual(t, p[0], 0.0)
		require.GreaterOrEqual(t, p[1], 0.0)
		require.LessOrEqual(t, p[0]+p[1], 1.0+1e-12)
	}
}

func TestSamplePointsAreaWeighted(t *testing.T) {
	// one tiny and one large triangle; samples should land on the large one
	// in proportion to its area
	m := &Mesh{
		Points: []vec3.T{
			{0, 0, 0}, {0.1, 0, 0}, {0, 0.1, 0},
			{10, 0, 0}, {20, 0, 0}, {10, 10, 0},
		},
		Faces: [][3]int{{0, 1, 2}, {3, 4, 5}},
	}
	pts := SamplePoints(m, 1000, rand.New(rand.NewSource(1)))
	onLarge := 0
	for _, p := range pts {
		if p[0] >= 10 {
			onLarge++
		}
	}
	require.Greater(t, onLarge, 990)
}

func TestSamplePointsDeterministic(t *testing.T) {
	m := unitTriangle()
	a := SamplePoints(m, 50, rand.New(rand.NewSource(3)))
	b := SamplePoints(m, 50, rand.New(rand.NewSource(3)))
	require.Equal(t, a, b)
}

func TestFirstHit(t *testing.T) {
	m := unitTriangle()

	t1, ok := m.FirstHit(vec3.T{0.25, 0.25, -2}, vec3.T{0, 0, 1}, 0)
	require.True(t, ok)
	require.InDelta(t, 2, t1, 1e-12)

	// pointing away
	_, ok = m.FirstHit(vec3.T{0.25, 0.25, -2}, vec3.T{0, 0, -1}, 0)
	require.False(t, ok)

	// passing outside the triangle
	_, ok = m.FirstHit(vec3.T{2, 2, -2}, vec3.T{0, 0, 1}, 0)
	require.False(t, ok)

	// minT excludes the hit
	_, ok = m.FirstHit(vec3.T{0.25, 0.25, -2}, vec3.T{0, 0, 1}, 3)
	require.False(t, ok)
}

func TestAnyHitWindow(t *testing.T) {
	m := unitTriangle()
	origin := vec3.T{0.25, 0.25, -2}
	dir := vec3.T{0, 0, 1}

	require.True(t, m.AnyHit(origin, dir, 0, math.Inf(1)))
	require.True(t, m.AnyHit(origin, dir, 1, 3))
	require.False(t, m.AnyHit(origin, dir, 0, 1.5))
	require.False(t, m.AnyHit(origin, dir, 2.5, math.Inf(1)))
}
