// Package mesh implements the triangle-mesh operations of the data pipeline:
// OBJ exchange, surface point sampling and the ray casting behind scan
// imitation.
package mesh

import (
	"math"
	"math/rand"
	"sort"

	"github.com/ungerik/go3d/float64/vec3"
)

// Mesh is a triangle mesh. Faces index into Points.
type Mesh struct {
	Points []vec3.T
	Faces  [][3]int
}

// Bounds returns the axis-aligned bounding box of the mesh points.
func (m *Mesh) Bounds() (low, high vec3.T) {
	if len(m.Points) == 0 {
		return vec3.T{}, vec3.T{}
	}
	low, high = m.Points[0], m.Points[0]
	for _, p := range m.Points[1:] {
		for i := 0; i < 3; i++ {
			low[i] = math.Min(low[i], p[i])
			high[i] = math.Max(high[i], p[i])
		}
	}
	return low, high
}

// FaceCentroid returns the centroid of face f.
func (m *Mesh) FaceCentroid(f int) vec3.T {
	face := m.Faces[f]
	a, b, c := m.Points[face[0]], m.Points[face[1]], m.Points[face[2]]
	return vec3.T{
		(a[0] + b[0] + c[0]) / 3,
		(a[1] + b[1] + c[1]) / 3,
		(a[2] + b[2] + c[2]) / 3,
	}
}

// FaceArea returns the area of face f.
func (m *Mesh) FaceArea(f int) float64 {
	face := m.Faces[f]
	a, b, c := m.Points[face[0]], m.Points[face[1]], m.Points[face[2]]
	ab := vec3.Sub(&b, &a)
	ac := vec3.Sub(&c, &a)
	cross := vec3.Cross(&ab, &ac)
	return cross.Length() / 2
}

// SamplePoints draws n points uniformly from the mesh surface: triangles are
// chosen by their area through a cumulative distribution, the position inside
// a triangle by uniform barycentric coordinates.
func SamplePoints(m *Mesh, n int, rng *rand.Rand) []vec3.T {
	if n <= 0 || len(m.Faces) == 0 {
		return nil
	}

	cum := make([]float64, len(m.Faces))
	total := 0.0
	for i := range m.Faces {
		total += m.FaceArea(i)
		cum[i] = total
	}
	if total <= 0 {
		return nil
	}

	out := make([]vec3.T, 0, n)
	for i := 0; i < n; i++ {
		f := sort.SearchFloat64s(cum, rng.Float64()*total)
		if f >= len(m.Faces) {
			f = len(m.Faces) - 1
		}
		face := m.Faces[f]
		a, b, c := m.Points[face[0]], m.Points[face[1]], m.Points[face[2]]

		r1 := math.Sqrt(rng.Float64())
		r2 := rng.Float64()
		u := 1 - r1
		v := r1 * (1 - r2)
		w := r1 * r2
		out = append(out, vec3.T{
			u*a[0] + v*b[0] + w*c[0],
			u*a[1] + v*b[1] + w*c[1],
			u*a[2] + v*b[2] + w*c[2],
		})
	}
	return out
}

// rayTriangle is the Moller-Trumbore intersection test. Returns the ray
// parameter and whether the ray hits the triangle at t > 0.
func rayTriangle(origin, dir, a, b, c vec3.T) (float64, bool) {
	const eps = 1e-12
	e1 := vec3.Sub(&b, &a)
	e2 := vec3.Sub(&c, &a)
	p := vec3.Cross(&dir, &e2)
	det := vec3.Dot(&e1, &p)
	if math.Abs(det) < eps {
		return 0, false
	}
	inv := 1 / det
	s := vec3.Sub(&origin, &a)
	u := vec3.Dot(&s, &p) * inv
	if u < 0 || u > 1 {
		return 0, false
	}
	q := vec3.Cross(&s, &e1)
	v := vec3.Dot(&dir, &q) * inv
	if v < 0 || u+v > 1 {
		return 0, false
	}
	t := vec3.Dot(&e2, &q) * inv
	if t <= eps {
		return 0, false
	}
	return t, true
}

// FirstHit returns the smallest ray parameter t > minT at which the ray hits
// the mesh, and whether any face was hit.
func (m *Mesh) FirstHit(origin, dir vec3.T, minT float64) (float64, bool) {
	best := math.Inf(1)
	found := false
	for _, face := range m.Faces {
		t, ok := rayTriangle(origin, dir, m.Points[face[0]], m.Points[face[1]], m.Points[face[2]])
		if ok && t > minT && t < best {
			best = t
			found = true
		}
	}
	return best, found
}

// AnyHit reports whether the ray hits the mesh at some t in (minT, maxT).
func (m *Mesh) AnyHit(origin, dir vec3.T, minT, maxT float64) bool {
	for _, face := range m.Faces {
		t, ok := rayTriangle(origin, dir, m.Points[face[0]], m.Points[face[1]], m.Points[face[2]])
		if ok && t > minT && t < maxT {
			return true
		}
	}
	return false
}
