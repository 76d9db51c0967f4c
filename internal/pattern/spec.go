// Package pattern implements the sewing-pattern specification format: a JSON
// model of 2D panels with optionally curved edges, 3D panel placement and
// stitches connecting panel edges, plus the numeric encoding the garment
// reconstruction network exchanges with the rest of the toolkit.
//
// All lengths are centimeters after normalization; panel rotations are Euler
// angles in degrees, applied in Maya xyz order.
package pattern

import (
	"encoding/json"
	"fmt"
)

// Spec is a full pattern specification, including parametrization.
type Spec struct {
	Pattern         Pattern
	Parameters      map[string]*Parameter
	ParameterOrder  []string
	Constraints     map[string]*Constraint
	ConstraintOrder []string
	Properties      Properties

	// extra preserves unknown spec-level fields across a load/save cycle.
	extra map[string]json.RawMessage
}

// Pattern holds the panels and the stitches connecting them.
type Pattern struct {
	Panels   map[string]*Panel `json:"panels"`
	Stitches []Stitch          `json:"stitches"`
}

// Panel is a single 2D fabric piece with its 3D placement.
type Panel struct {
	Translation [3]float64   `json:"translation"`
	Rotation    [3]float64   `json:"rotation"`
	Vertices    [][2]float64 `json:"vertices"`
	Edges       []Edge       `json:"edges"`
}

// Edge connects two panel vertices, optionally curved. Curvature holds the
// quadratic Bezier control point in relative coordinates of the edge frame:
// X along the edge as a fraction of its length, Y perpendicular.
type Edge struct {
	Endpoints [2]int      `json:"endpoints"`
	Curvature *[2]float64 `json:"curvature,omitempty"`
}

// Stitch sews two panel edges together.
type Stitch [2]StitchSide

// StitchSide references one edge of one panel.
type StitchSide struct {
	Panel string `json:"panel"`
	Edge  int    `json:"edge"`
}

// Properties are pattern-wide conventions, normalized on load.
type Properties struct {
	CurvatureCoords           string  `json:"curvature_coords"`
	NormalizePanelTranslation bool    `json:"normalize_panel_translation"`
	UnitsInMeter              float64 `json:"units_in_meter"`
	OriginalUnitsInMeter      float64 `json:"original_units_in_meter,omitempty"`
}

// Parameter is a named design parameter applied to edges of the template.
type Parameter struct {
	Value     Value            `json:"value"`
	Range     Ranges           `json:"range"`
	Type      string           `json:"type"` // "length", "additive_length", "curve"
	Influence []PanelInfluence `json:"influence"`
}

// Constraint enforces a relation between edges after parameters are applied.
type Constraint struct {
	Type      string           `json:"type"` // "length_equality"
	Influence []PanelInfluence `json:"influence"`
}

// PanelInfluence lists the edges of one panel affected by a parameter or
// constraint.
type PanelInfluence struct {
	Panel    string           `json:"panel"`
	EdgeList []*EdgeInfluence `json:"edge_list"`
}

// EdgeInfluence describes one affected edge or meta-edge (a chain of edges
// treated as one). Direction selects the extension pivot; Along overrides the
// extension line. Value and Length are runtime bookkeeping for constraints
// and are serialized so that an applied constraint can be inverted later.
type EdgeInfluence struct {
	ID        EdgeIDs     `json:"id"`
	Direction string      `json:"direction,omitempty"`
	Along     *[2]float64 `json:"along,omitempty"`
	Value     *float64    `json:"value,omitempty"`
	Length    *float64    `json:"length,omitempty"`
}

// EdgeIDs is a single edge index or an ordered chain of indices (meta-edge).
type EdgeIDs struct {
	IDs  []int
	Meta bool // true when the wire form was a list
}

// UnmarshalJSON accepts either an integer or a list of integers.
func (e *EdgeIDs) UnmarshalJSON(data []byte) error {
	var single int
	if err := json.Unmarshal(data, &single); err == nil {
		e.IDs = []int{single}
		e.Meta = false
		return nil
	}
	var list []int
	if err := json.Unmarshal(data, &list); err != nil {
		return fmt.Errorf("%w: edge id must be int or int list", ErrInvalidDef)
	}
	e.IDs = list
	e.Meta = true
	return nil
}

// MarshalJSON re-emits the original wire form.
func (e EdgeIDs) MarshalJSON() ([]byte, error) {
	if !e.Meta && len(e.IDs) == 1 {
		return json.Marshal(e.IDs[0])
	}
	return json.Marshal(e.IDs)
}

// Value is a scalar or a list of parameter values.
type Value struct {
	Vals []float64
	List bool // true when the wire form was a list
}

// Scalar returns the single value of a non-list parameter.
func (v Value) Scalar() float64 {
	if len(v.Vals) == 0 {
		return 0
	}
	return v.Vals[0]
}

// UnmarshalJSON accepts a number, a list of numbers or null.
func (v *Value) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		v.Vals = nil
		return nil
	}
	var scalar float64
	if err := json.Unmarshal(data, &scalar); err == nil {
		v.Vals = []float64{scalar}
		v.List = false
		return nil
	}
	var list []float64
	if err := json.Unmarshal(data, &list); err != nil {
		return fmt.Errorf("%w: parameter value must be number or number list", ErrInvalidDef)
	}
	v.Vals = list
	v.List = true
	return nil
}

// MarshalJSON re-emits the original wire form.
func (v Value) MarshalJSON() ([]byte, error) {
	if v.Vals == nil {
		return []byte("null"), nil
	}
	if !v.List && len(v.Vals) == 1 {
		return json.Marshal(v.Vals[0])
	}
	return json.Marshal(v.Vals)
}

// Ranges is one [min, max] pair for scalar parameters or a pair per value for
// list parameters.
type Ranges struct {
	Pairs [][2]float64
	List  bool
}

// UnmarshalJSON accepts [min, max] or [[min, max], ...].
func (r *Ranges) UnmarshalJSON(data []byte) error {
	var single [2]float64
	if err := json.Unmarshal(data, &single); err == nil {
		r.Pairs = [][2]float64{single}
		r.List = false
		return nil
	}
	var pairs [][2]float64
	if err := json.Unmarshal(data, &pairs); err != nil {
		return fmt.Errorf("%w: parameter range must be a pair or list of pairs", ErrInvalidDef)
	}
	r.Pairs = pairs
	r.List = true
	return nil
}

// MarshalJSON re-emits the original wire form.
func (r Ranges) MarshalJSON() ([]byte, error) {
	if !r.List && len(r.Pairs) == 1 {
		return json.Marshal(r.Pairs[0])
	}
	return json.Marshal(r.Pairs)
}

// specWire is the fixed part of the spec-level JSON object.
var specKnownKeys = []string{
	"pattern", "parameters", "parameter_order", "constraints", "constraint_order", "properties",
}

// UnmarshalJSON decodes the spec, keeping unknown top-level fields aside so
// they survive serialization.
func (s *Spec) UnmarshalJSON(data []byte) error {
	raw := map[string]json.RawMessage{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidDef, err)
	}

	pat, ok := raw["pattern"]
	if !ok {
		return fmt.Errorf("%w: missing pattern section", ErrInvalidDef)
	}
	if err := json.Unmarshal(pat, &s.Pattern); err != nil {
		return fmt.Errorf("%w: pattern: %v", ErrInvalidDef, err)
	}
	props, ok := raw["properties"]
	if !ok {
		return fmt.Errorf("%w: missing properties section", ErrInvalidDef)
	}
	if err := json.Unmarshal(props, &s.Properties); err != nil {
		return fmt.Errorf("%w: properties: %v", ErrInvalidDef, err)
	}

	if v, ok := raw["parameters"]; ok {
		if err := json.Unmarshal(v, &s.Parameters); err != nil {
			return fmt.Errorf("%w: parameters: %v", ErrInvalidDef, err)
		}
	}
	if v, ok := raw["parameter_order"]; ok {
		if err := json.Unmarshal(v, &s.ParameterOrder); err != nil {
			return fmt.Errorf("%w: parameter_order: %v", ErrInvalidDef, err)
		}
	}
	if v, ok := raw["constraints"]; ok {
		if err := json.Unmarshal(v, &s.Constraints); err != nil {
			return fmt.Errorf("%w: constraints: %v", ErrInvalidDef, err)
		}
	}
	if v, ok := raw["constraint_order"]; ok {
		if err := json.Unmarshal(v, &s.ConstraintOrder); err != nil {
			return fmt.Errorf("%w: constraint_order: %v", ErrInvalidDef, err)
		}
	}

	for _, key := range specKnownKeys {
		delete(raw, key)
	}
	if len(raw) > 0 {
		s.extra = raw
	}
	return nil
}

// MarshalJSON encodes the spec including preserved unknown fields.
func (s Spec) MarshalJSON() ([]byte, error) {
	out := map[string]any{
		"pattern":    s.Pattern,
		"properties": s.Properties,
	}
	if s.Parameters != nil {
		out["parameters"] = s.Parameters
	}
	if s.ParameterOrder != nil {
		out["parameter_order"] = s.ParameterOrder
	}
	if s.Constraints != nil {
		out["constraints"] = s.Constraints
	}
	if s.ConstraintOrder != nil {
		out["constraint_order"] = s.ConstraintOrder
	}
	for k, v := range s.extra {
		out[k] = v
	}
	return json.Marshal(out)
}

// New returns an empty pattern spec with default properties.
func New() *Spec {
	return &Spec{
		Pattern: Pattern{
			Panels:   map[string]*Panel{},
			Stitches: []Stitch{},
		},
		Parameters:     map[string]*Parameter{},
		ParameterOrder: []string{},
		Properties: Properties{
			CurvatureCoords:           CurvatureRelative,
			NormalizePanelTranslation: false,
			UnitsInMeter:              100,
		},
	}
}

// Curvature coordinate modes.
const (
	CurvatureRelative = "relative"
	CurvatureAbsolute = "absolute"
)

// Parameter types.
const (
	ParamLength         = "length"
	ParamAdditiveLength = "additive_length"
	ParamCurve          = "curve"
)

// Constraint types.
const (
	ConstraintLengthEquality = "length_equality"
)
