package pattern

import (
	"fmt"
	"sort"

	"github.com/ungerik/go3d/float64/vec2"
)

type segment [2]vec2.T

// SelfIntersects reports whether any two edge segments of the panel intersect
// in their interiors. Curved edges are approximated by the two control-point
// segments, which may produce false positives for extreme curvatures.
func (p *Panel) SelfIntersects() bool {
	segments := make([]segment, 0, len(p.Edges))
	for _, edge := range p.Edges {
		s, e := edge.Endpoints[0], edge.Endpoints[1]
		if s < 0 || s >= len(p.Vertices) || e < 0 || e >= len(p.Vertices) {
			// reported by the endpoint check; nothing to intersect
			continue
		}
		start := vec2.T(p.Vertices[s])
		end := vec2.T(p.Vertices[e])
		if edge.Curvature != nil {
			control := ControlToAbs(start, end, *edge.Curvature)
			segments = append(segments, segment{start, control}, segment{control, end})
		} else {
			segments = append(segments, segment{start, end})
		}
	}

	for i := 0; i < len(segments); i++ {
		for j := i + 1; j < len(segments); j++ {
			if segmentsIntersect(segments[i], segments[j]) {
				return true
			}
		}
	}
	return false
}

// SelfIntersecting reports whether any panel of the pattern self-intersects.
func (s *Spec) SelfIntersecting() bool {
	for _, panel := range s.Pattern.Panels {
		if panel.SelfIntersects() {
			return true
		}
	}
	return false
}

// segmentsIntersect checks for intersection in points interior to both
// segments; shared endpoints do not count.
func segmentsIntersect(s1, s2 segment) bool {
	ccw := func(start, end, point vec2.T) float64 {
		return (end[0]-start[0])*(point[1]-start[1]) - (point[0]-start[0])*(end[1]-start[1])
	}
	// == 0 covers edges sharing a vertex
	if ccw(s1[0], s1[1], s2[0])*ccw(s1[0], s1[1], s2[1]) >= 0 ||
		ccw(s2[0], s2[1], s1[0])*ccw(s2[0], s2[1], s1[1]) >= 0 {
		return false
	}
	return true
}

// Issue is a single validation finding. A spec with issues is still loadable;
// issues mark datapoints that need attention.
type Issue struct {
	Panel   string `json:"panel,omitempty"`
	Stitch  int    `json:"stitch,omitempty"`
	Problem string `json:"problem"`
}

func (i Issue) String() string {
	switch {
	case i.Panel != "":
		return fmt.Sprintf("panel %s: %s", i.Panel, i.Problem)
	default:
		return i.Problem
	}
}

// Validate runs structural checks over the spec and returns all findings.
func (s *Spec) Validate() []Issue {
	var issues []Issue

	names := make([]string, 0, len(s.Pattern.Panels))
	for name := range s.Pattern.Panels {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		panel := s.Pattern.Panels[name]
		issues = append(issues, panel.validate(name)...)
	}

	issues = append(issues, s.validateStitches()...)
	return issues
}

func (p *Panel) validate(name string) []Issue {
	var issues []Issue
	if len(p.Edges) < 3 {
		issues = append(issues, Issue{Panel: name, Problem: "fewer than 3 edges"})
		return issues
	}

	for i, edge := range p.Edges {
		for _, v := range edge.Endpoints {
			if v < 0 || v >= len(p.Vertices) {
				issues = append(issues, Issue{Panel: name,
					Problem: fmt.Sprintf("edge %d references missing vertex %d", i, v)})
			}
		}
		if edge.Curvature != nil && p.edgeLengthSafe(i) < 1e-9 {
			issues = append(issues, Issue{Panel: name,
				Problem: fmt.Sprintf("edge %d has curvature on zero length", i)})
		}
	}

	if iss := p.validateLoop(name); iss != nil {
		issues = append(issues, *iss)
	}
	if p.SelfIntersects() {
		issues = append(issues, Issue{Panel: name, Problem: "self-intersecting"})
	}
	return issues
}

func (p *Panel) edgeLengthSafe(i int) float64 {
	e := p.Edges[i]
	for _, v := range e.Endpoints {
		if v < 0 || v >= len(p.Vertices) {
			return 0
		}
	}
	return p.EdgeLength(i)
}

// validateLoop checks that the edges form a single closed loop visiting every
// vertex exactly once.
func (p *Panel) validateLoop(name string) *Issue {
	next := make(map[int]int, len(p.Edges))
	starts := make(map[int]int)
	ends := make(map[int]int)
	for _, edge := range p.Edges {
		s, e := edge.Endpoints[0], edge.Endpoints[1]
		if s < 0 || s >= len(p.Vertices) || e < 0 || e >= len(p.Vertices) {
			return nil // reported by the endpoint check already
		}
		starts[s]++
		ends[e]++
		next[s] = e
	}
	for v := 0; v < len(p.Vertices); v++ {
		if starts[v] != 1 || ends[v] != 1 {
			return &Issue{Panel: name, Problem: "edges do not form a closed loop"}
		}
	}
	// follow the loop from vertex 0; it must close after visiting all vertices
	visited := 0
	for v := 0; ; {
		nv, ok := next[v]
		if !ok {
			return &Issue{Panel: name, Problem: "edges do not form a closed loop"}
		}
		visited++
		v = nv
		if v == 0 {
			break
		}
		if visited > len(p.Vertices) {
			return &Issue{Panel: name, Problem: "edges form more than one loop"}
		}
	}
	if visited != len(p.Vertices) {
		return &Issue{Panel: name, Problem: "edges form more than one loop"}
	}
	return nil
}

// validateStitches checks stitch references: panel exists, edge index in
// range, no edge stitched twice.
func (s *Spec) validateStitches() []Issue {
	var issues []Issue
	seen := map[StitchSide]int{}
	for i, stitch := range s.Pattern.Stitches {
		for _, side := range stitch {
			panel, ok := s.Pattern.Panels[side.Panel]
			if !ok {
				issues = append(issues, Issue{Stitch: i,
					Problem: fmt.Sprintf("stitch %d references missing panel %q", i, side.Panel)})
				continue
			}
			if side.Edge < 0 || side.Edge >= len(panel.Edges) {
				issues = append(issues, Issue{Stitch: i,
					Problem: fmt.Sprintf("stitch %d references missing edge %d of panel %q", i, side.Edge, side.Panel)})
				continue
			}
			if prev, dup := seen[side]; dup {
				issues = append(issues, Issue{Stitch: i,
					Problem: fmt.Sprintf("stitch %d re-stitches edge %d of panel %q (already in stitch %d)", i, side.Edge, side.Panel, prev)})
			}
			seen[side] = i
		}
	}
	return issues
}
