package pattern

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/ungerik/go3d/float64/vec2"

	"github.com/yukistavailable/NeuralTailor/internal/log"
)

// parameterDefault is the neutral value per parameter type.
func parameterDefault(paramType string) (float64, error) {
	switch paramType {
	case ParamLength, ParamCurve:
		return 1, nil
	case ParamAdditiveLength:
		return 0, nil
	default:
		return 0, fmt.Errorf("%w: unknown parameter type %q", ErrInvalidDef, paramType)
	}
}

// ParamValues returns current parameter values flattened in parameter order.
func (s *Spec) ParamValues() []float64 {
	var out []float64
	for _, name := range s.ParameterOrder {
		out = append(out, s.Parameters[name].Value.Vals...)
	}
	return out
}

// ApplyParamValues restores the template, sets the supplied flattened values
// in parameter order and re-applies all parameters and constraints.
func (s *Spec) ApplyParamValues(values []float64) error {
	if err := s.restoreTemplate(false); err != nil {
		return err
	}

	consumed := 0
	for _, name := range s.ParameterOrder {
		param, ok := s.Parameters[name]
		if !ok {
			return fmt.Errorf("%w: parameter order names missing parameter %q", ErrInvalidDef, name)
		}
		n := len(param.Value.Vals)
		if n == 0 {
			n = 1
		}
		if consumed+n > len(values) {
			return fmt.Errorf("%w: %d parameter values supplied, need more", ErrInvalidDef, len(values))
		}
		vals := make([]float64, n)
		copy(vals, values[consumed:consumed+n])
		param.Value.Vals = vals
		consumed += n
	}
	if consumed != len(values) {
		return fmt.Errorf("%w: %d parameter values supplied, %d consumed", ErrInvalidDef, len(values), consumed)
	}

	return s.applyParameters()
}

// applyParameters recalculates vertex positions and edge curves from the
// current parameter values. Assumes the pattern is in template state.
func (s *Spec) applyParameters() error {
	for _, name := range s.ParameterOrder {
		param := s.Parameters[name]
		if _, err := parameterDefault(param.Type); err != nil {
			return err
		}
		for _, influence := range param.Influence {
			for _, edge := range influence.EdgeList {
				if err := s.applyToEdge(param, influence.Panel, edge, false); err != nil {
					return fmt.Errorf("parameter %s: %w", name, err)
				}
			}
		}
	}
	return s.applyConstraints()
}

// restoreTemplate walks the parameter application backwards, returning the
// pattern to its template state. With paramsToDefault the parameter values
// are reset to their type defaults as well.
func (s *Spec) restoreTemplate(paramsToDefault bool) error {
	if err := s.invertConstraints(); err != nil {
		return err
	}

	for i := len(s.ParameterOrder) - 1; i >= 0; i-- {
		name := s.ParameterOrder[i]
		param := s.Parameters[name]
		def, err := parameterDefault(param.Type)
		if err != nil {
			return err
		}
		for j := len(param.Influence) - 1; j >= 0; j-- {
			influence := param.Influence[j]
			for k := len(influence.EdgeList) - 1; k >= 0; k-- {
				if err := s.applyToEdge(param, influence.Panel, influence.EdgeList[k], true); err != nil {
					return fmt.Errorf("restore parameter %s: %w", name, err)
				}
			}
		}
		if paramsToDefault {
			for vi := range param.Value.Vals {
				param.Value.Vals[vi] = def
			}
		}
	}
	return nil
}

// applyToEdge applies one parameter (or its inverse) to one influenced edge.
func (s *Spec) applyToEdge(param *Parameter, panelName string, edge *EdgeInfluence, invert bool) error {
	switch param.Type {
	case ParamLength:
		v := param.Value.Scalar()
		if invert {
			var err error
			if v, err = invertValue(v, true); err != nil {
				return err
			}
		}
		return s.extendEdge(panelName, edge, v, true)
	case ParamAdditiveLength:
		v := param.Value.Scalar()
		if invert {
			v = -v
		}
		return s.extendEdge(panelName, edge, v, false)
	case ParamCurve:
		vals := param.Value.Vals
		scaled := make([]float64, len(vals))
		copy(scaled, vals)
		if invert {
			for i, v := range vals {
				inv, err := invertValue(v, true)
				if err != nil {
					return err
				}
				scaled[i] = inv
			}
		}
		return s.curveEdge(panelName, edge, scaled, param.Value.List)
	default:
		return fmt.Errorf("%w: unknown parameter type %q", ErrInvalidDef, param.Type)
	}
}

// extendEdge shrinks or elongates an edge or meta-edge. With multiplicative
// the value scales the edge projection; otherwise it is added to it. Applies
// equally to straight and curvy edges thanks to relative curvature
// coordinates.
func (s *Spec) extendEdge(panelName string, influence *EdgeInfluence, value float64, multiplicative bool) error {
	vertIDs, coords, targetLine, _, err := s.metaEdge(panelName, influence)
	if err != nil {
		return err
	}

	var fixed vec2.T
	switch influence.Direction {
	case "end":
		fixed = coords[0] // start is fixed
	case "start":
		fixed = coords[len(coords)-1] // end is fixed
	case "both", "":
		sum := vec2.Add(&coords[0], &coords[len(coords)-1])
		fixed = sum.Scaled(0.5)
	default:
		return fmt.Errorf("%w: unknown edge extension direction %q", ErrInvalidDef, influence.Direction)
	}

	// project each vertex onto the target line through the fixed point
	projections := make([]vec2.T, len(coords))
	for i, c := range coords {
		rel := vec2.Sub(&c, &fixed)
		projections[i] = targetLine.Scaled(vec2.Dot(&rel, &targetLine))
	}

	newVerts := make([]vec2.T, len(coords))
	if multiplicative {
		// match the scaled projection, applied at the initial vertex position
		for i, c := range coords {
			shift := projections[i].Scaled(1 - value)
			newVerts[i] = vec2.Sub(&c, &shift)
		}
	} else {
		// match the added projection; the normalized projection keeps the
		// extension direction correct relative to the fixed point
		for i, c := range coords {
			p := projections[i]
			if norm := p.Length(); norm > 1e-9 {
				p = p.Scaled(1 / norm)
			}
			// zero projections zero out the effect
			shift := p.Scaled(value)
			newVerts[i] = vec2.Add(&c, &shift)
		}
	}

	panel := s.Pattern.Panels[panelName]
	for i, id := range vertIDs {
		panel.Vertices[id] = [2]float64(newVerts[i])
	}
	return nil
}

// curveEdge scales the Bezier control of a curved edge. A scalar only scales
// the perpendicular coordinate; a 2-value list scales both.
func (s *Spec) curveEdge(panelName string, influence *EdgeInfluence, values []float64, isList bool) error {
	panel, ok := s.Pattern.Panels[panelName]
	if !ok {
		return fmt.Errorf("%w: influence references missing panel %q", ErrInvalidDef, panelName)
	}
	if len(influence.ID.IDs) != 1 || influence.ID.Meta {
		return fmt.Errorf("%w: curve parameter cannot target a meta-edge", ErrInvalidDef)
	}
	edgeID := influence.ID.IDs[0]
	if edgeID < 0 || edgeID >= len(panel.Edges) {
		return fmt.Errorf("%w: influence references missing edge %d of panel %q", ErrInvalidDef, edgeID, panelName)
	}
	edge := &panel.Edges[edgeID]
	if edge.Curvature == nil {
		return fmt.Errorf("%w: curvature scaling on non-curvy edge %d of panel %q", ErrInvalidDef, edgeID, panelName)
	}

	if isList {
		if len(values) != 2 {
			return fmt.Errorf("%w: curve parameter list must have 2 values", ErrInvalidDef)
		}
		edge.Curvature[0] *= values[0]
		edge.Curvature[1] *= values[1]
	} else {
		edge.Curvature[1] *= values[0]
	}
	return nil
}

// invertValue computes the multiplicative (1/v) or additive (-v) inverse.
func invertValue(v float64, multiplicative bool) (float64, error) {
	if !multiplicative {
		return -v, nil
	}
	if math.Abs(v) < 1e-9 {
		return 0, fmt.Errorf("%w: zero value while restoring multiplicative parameter", ErrInvalidDef)
	}
	return 1 / v, nil
}

// applyConstraints enforces the spec constraints after parameter application.
// Assumes no zero-length edges exist.
func (s *Spec) applyConstraints() error {
	for _, name := range s.ConstraintOrder {
		constraint, ok := s.Constraints[name]
		if !ok {
			return fmt.Errorf("%w: constraint order names missing constraint %q", ErrInvalidDef, name)
		}
		if constraint.Type != ConstraintLengthEquality {
			return fmt.Errorf("%w: unknown constraint type %q", ErrInvalidDef, constraint.Type)
		}

		// measure all affected (meta) edges
		var total float64
		var count int
		for _, influence := range constraint.Influence {
			for _, edge := range influence.EdgeList {
				_, _, _, length, err := s.metaEdge(influence.Panel, edge)
				if err != nil {
					return fmt.Errorf("constraint %s: %w", name, err)
				}
				l := length
				edge.Length = &l
				total += length
				count++
			}
		}
		if count == 0 {
			continue
		}
		target := total / float64(count)

		// scale every edge to the target length and remember the factor for inversion
		for _, influence := range constraint.Influence {
			for _, edge := range influence.EdgeList {
				scaling := target / *edge.Length
				if math.Abs(scaling-1) < 1e-9 {
					continue
				}
				v := scaling
				edge.Value = &v
				if err := s.extendEdge(influence.Panel, edge, scaling, true); err != nil {
					return fmt.Errorf("constraint %s: %w", name, err)
				}
			}
		}
	}
	return nil
}

// invertConstraints restores the pattern to the state before constraints were
// applied.
func (s *Spec) invertConstraints() error {
	for i := len(s.ConstraintOrder) - 1; i >= 0; i-- {
		name := s.ConstraintOrder[i]
		constraint, ok := s.Constraints[name]
		if !ok {
			return fmt.Errorf("%w: constraint order names missing constraint %q", ErrInvalidDef, name)
		}
		if constraint.Type != ConstraintLengthEquality {
			return fmt.Errorf("%w: unknown constraint type %q", ErrInvalidDef, constraint.Type)
		}
		for _, influence := range constraint.Influence {
			for _, edge := range influence.EdgeList {
				if edge.Value == nil {
					continue
				}
				inv, err := invertValue(*edge.Value, true)
				if err != nil {
					return err
				}
				if err := s.extendEdge(influence.Panel, edge, inv, true); err != nil {
					return fmt.Errorf("invert constraint %s: %w", name, err)
				}
				one := 1.0
				edge.Value = &one
			}
		}
	}
	return nil
}

// metaEdge resolves an edge or meta-edge influence into its vertex chain,
// coordinates, normalized extension line and current projected length.
func (s *Spec) metaEdge(panelName string, influence *EdgeInfluence) ([]int, []vec2.T, vec2.T, float64, error) {
	panel, ok := s.Pattern.Panels[panelName]
	if !ok {
		return nil, nil, vec2.T{}, 0, fmt.Errorf("%w: influence references missing panel %q", ErrInvalidDef, panelName)
	}

	var vertIDs []int
	if influence.ID.Meta {
		ids := influence.ID.IDs
		if len(ids) == 0 {
			return nil, nil, vec2.T{}, 0, fmt.Errorf("%w: empty meta-edge", ErrInvalidDef)
		}
		for _, id := range ids {
			if id < 0 || id >= len(panel.Edges) {
				return nil, nil, vec2.T{}, 0, fmt.Errorf("%w: influence references missing edge %d of panel %q", ErrInvalidDef, id, panelName)
			}
		}
		vertIDs = []int{panel.Edges[ids[0]].Endpoints[0]} // chain start
		for _, id := range ids {
			vertIDs = append(vertIDs, panel.Edges[id].Endpoints[1])
		}
	} else {
		id := influence.ID.IDs[0]
		if id < 0 || id >= len(panel.Edges) {
			return nil, nil, vec2.T{}, 0, fmt.Errorf("%w: influence references missing edge %d of panel %q", ErrInvalidDef, id, panelName)
		}
		vertIDs = []int{panel.Edges[id].Endpoints[0], panel.Edges[id].Endpoints[1]}
	}

	coords := make([]vec2.T, len(vertIDs))
	for i, id := range vertIDs {
		if id < 0 || id >= len(panel.Vertices) {
			return nil, nil, vec2.T{}, 0, fmt.Errorf("%w: edge references missing vertex %d of panel %q", ErrInvalidDef, id, panelName)
		}
		coords[i] = vec2.T(panel.Vertices[id])
	}

	var targetLine vec2.T
	if influence.Along != nil {
		targetLine = vec2.T(*influence.Along)
	} else {
		targetLine = vec2.Sub(&coords[len(coords)-1], &coords[0])
	}
	norm := targetLine.Length()
	if norm < 1e-9 {
		return nil, nil, vec2.T{}, 0, fmt.Errorf("%w: zero extension line for edge of panel %q", ErrInvalidDef, panelName)
	}
	targetLine = targetLine.Scaled(1 / norm)

	span := vec2.Sub(&coords[len(coords)-1], &coords[0])
	length := vec2.Dot(&targetLine, &span)

	return vertIDs, coords, targetLine, length, nil
}

// Randomize draws uniform parameter values within their ranges and applies
// them, retrying while the result self-intersects. Values with magnitude
// under 0.01 are pushed away from zero to keep parameters invertible.
func (s *Spec) Randomize(rng *rand.Rand) error {
	if err := s.restoreTemplate(false); err != nil {
		return err
	}
	backup, err := s.Clone()
	if err != nil {
		return err
	}

	logger := log.WithComponent("pattern")
	const maxTrials = 100
	for trial := 0; trial < maxTrials; trial++ {
		s.randomizeParameters(rng)
		if err := s.applyParameters(); err != nil {
			return err
		}
		if !s.SelfIntersecting() {
			return nil
		}
		logger.Debug().Str("event", "pattern.randomize_retry").Int("trial", trial).
			Msg("randomized pattern is self-intersecting, re-trying")
		restored, err := backup.Clone()
		if err != nil {
			return err
		}
		*s = *restored
	}
	return fmt.Errorf("randomize: still self-intersecting after %d trials", maxTrials)
}

func (s *Spec) randomizeParameters(rng *rand.Rand) {
	for _, name := range s.ParameterOrder {
		param := s.Parameters[name]
		n := len(param.Value.Vals)
		if n == 0 {
			n = 1
			param.Value.Vals = make([]float64, 1)
		}
		for i := 0; i < n; i++ {
			pr := param.Range.Pairs[0]
			if param.Range.List && i < len(param.Range.Pairs) {
				pr = param.Range.Pairs[i]
			}
			param.Value.Vals[i] = newRandomValue(rng, pr)
		}
	}
}

// newRandomValue draws from [lo, hi], avoiding non-reversible near-zero values.
func newRandomValue(rng *rand.Rand, bounds [2]float64) float64 {
	v := bounds[0] + rng.Float64()*(bounds[1]-bounds[0])
	if math.Abs(v) < 1e-2 {
		if v < 0 {
			return -1e-2
		}
		return 1e-2
	}
	return v
}
