package pattern

import (
	"fmt"
	"math"

	"github.com/ungerik/go3d/float64/vec2"
	"github.com/ungerik/go3d/float64/vec3"
)

// Mat3 is a row-major 3x3 rotation matrix.
type Mat3 [3][3]float64

// MulVec3 applies the matrix to a vector.
func (m Mat3) MulVec3(v vec3.T) vec3.T {
	return vec3.T{
		m[0][0]*v[0] + m[0][1]*v[1] + m[0][2]*v[2],
		m[1][0]*v[0] + m[1][1]*v[1] + m[1][2]*v[2],
		m[2][0]*v[0] + m[2][1]*v[1] + m[2][2]*v[2],
	}
}

// EulerToMatrix builds the rotation matrix for Euler angles in degrees
// applied in Maya xyz order: rotate about world X first, then Y, then Z,
// so R = Rz * Ry * Rx.
func EulerToMatrix(deg [3]float64) Mat3 {
	a := deg[0] * math.Pi / 180 // x
	b := deg[1] * math.Pi / 180 // y
	c := deg[2] * math.Pi / 180 // z
	sa, ca := math.Sin(a), math.Cos(a)
	sb, cb := math.Sin(b), math.Cos(b)
	sc, cc := math.Sin(c), math.Cos(c)

	return Mat3{
		{cc * cb, cc*sb*sa - sc*ca, cc*sb*ca + sc*sa},
		{sc * cb, sc*sb*sa + cc*ca, sc*sb*ca - cc*sa},
		{-sb, cb * sa, cb * ca},
	}
}

// MatrixToEuler recovers Maya xyz Euler angles in degrees from a rotation
// matrix. Inverse of EulerToMatrix up to gimbal ambiguity.
func MatrixToEuler(m Mat3) [3]float64 {
	b := math.Asin(-clamp(m[2][0], -1, 1))
	var a, c float64
	if math.Abs(math.Cos(b)) > 1e-9 {
		a = math.Atan2(m[2][1], m[2][2])
		c = math.Atan2(m[1][0], m[0][0])
	} else {
		// Gimbal lock: fold everything into the x angle.
		a = math.Atan2(-m[1][2], m[1][1])
		c = 0
	}
	const toDeg = 180 / math.Pi
	return [3]float64{a * toDeg, b * toDeg, c * toDeg}
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

// RotationFromNumeric accepts a panel rotation either as 3 Euler degrees or
// as the 6-element two-column rotation matrix form emitted by the network;
// the third column is completed by Gram-Schmidt orthogonalization and a
// cross product.
func RotationFromNumeric(vals []float64) ([3]float64, error) {
	switch len(vals) {
	case 3:
		return [3]float64{vals[0], vals[1], vals[2]}, nil
	case 6:
		c1 := vec3.T{vals[0], vals[1], vals[2]}
		c2 := vec3.T{vals[3], vals[4], vals[5]}
		if c1.Length() < 1e-9 {
			return [3]float64{}, fmt.Errorf("%w: degenerate rotation columns", ErrInvalidDef)
		}
		c1.Normalize()
		proj := c1.Scaled(vec3.Dot(&c1, &c2))
		c2 = vec3.Sub(&c2, &proj)
		if c2.Length() < 1e-9 {
			return [3]float64{}, fmt.Errorf("%w: collinear rotation columns", ErrInvalidDef)
		}
		c2.Normalize()
		c3 := vec3.Cross(&c1, &c2)
		m := Mat3{
			{c1[0], c2[0], c3[0]},
			{c1[1], c2[1], c3[1]},
			{c1[2], c2[2], c3[2]},
		}
		return MatrixToEuler(m), nil
	default:
		return [3]float64{}, fmt.Errorf("%w: rotation needs 3 or 6 values, got %d", ErrInvalidDef, len(vals))
	}
}

// PointIn3D places a 2D point of the panel plane into world space through
// the panel rotation (Euler degrees, Maya xyz order) and translation.
func PointIn3D(local vec2.T, rotation Mat3, translation [3]float64) vec3.T {
	p := rotation.MulVec3(vec3.T{local[0], local[1], 0})
	t := vec3.T(translation)
	return vec3.Add(&p, &t)
}

// UniversalTranslation returns the world 3D location of the top-mid point of
// the panel's 2D bounding box: the point used for deterministic panel
// ordering. The result is independent of the panel's local coordinate choice.
func (p *Panel) UniversalTranslation() vec3.T {
	low, high := p.BBox()
	midX := (low[0] + high[0]) / 2
	midY := (low[1] + high[1]) / 2
	rot := EulerToMatrix(p.Rotation)

	candidates := []vec3.T{
		PointIn3D(vec2.T{midX, high[1]}, rot, p.Translation),
		PointIn3D(vec2.T{midX, low[1]}, rot, p.Translation),
		PointIn3D(vec2.T{high[0], midY}, rot, p.Translation),
		PointIn3D(vec2.T{low[0], midY}, rot, p.Translation),
	}
	top := candidates[0]
	for _, c := range candidates[1:] {
		if c[1] > top[1] {
			top = c
		}
	}
	return top
}

// BBox returns the axis-aligned bounding box of the panel vertices in local
// 2D coordinates.
func (p *Panel) BBox() (low, high vec2.T) {
	if len(p.Vertices) == 0 {
		return vec2.T{}, vec2.T{}
	}
	low = vec2.T(p.Vertices[0])
	high = vec2.T(p.Vertices[0])
	for _, v := range p.Vertices[1:] {
		low[0] = math.Min(low[0], v[0])
		low[1] = math.Min(low[1], v[1])
		high[0] = math.Max(high[0], v[0])
		high[1] = math.Max(high[1], v[1])
	}
	return low, high
}

// EdgeLength returns the straight-line length of edge i.
func (p *Panel) EdgeLength(i int) float64 {
	e := p.Edges[i]
	start := vec2.T(p.Vertices[e.Endpoints[0]])
	end := vec2.T(p.Vertices[e.Endpoints[1]])
	d := vec2.Sub(&end, &start)
	return d.Length()
}

// ControlToAbs converts a relative Bezier control point to absolute panel
// coordinates for the edge from start to end.
func ControlToAbs(start, end vec2.T, control [2]float64) vec2.T {
	edge := vec2.Sub(&end, &start)
	perp := vec2.T{-edge[1], edge[0]}
	along := edge.Scaled(control[0])
	across := perp.Scaled(control[1])
	p := vec2.Add(&start, &along)
	return vec2.Add(&p, &across)
}

// controlToRelative converts an absolute Bezier control point to relative
// coordinates of the edge frame.
func controlToRelative(start, end, control vec2.T) [2]float64 {
	edgeVec := vec2.Sub(&end, &start)
	edgeLen := edgeVec.Length()
	controlVec := vec2.Sub(&control, &start)

	projectedLen := vec2.Dot(&edgeVec, &controlVec) / edgeLen
	relX := projectedLen / edgeLen

	projected := edgeVec.Scaled(relX)
	vertComp := vec2.Sub(&controlVec, &projected)
	relY := vertComp.Length() / edgeLen

	// distinguish left and right curvature
	if cross2(control, edgeVec) < 0 {
		relY = -relY
	}
	return [2]float64{relX, relY}
}

func cross2(a, b vec2.T) float64 {
	return a[0]*b[1] - a[1]*b[0]
}
