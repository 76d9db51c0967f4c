package pattern

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ungerik/go3d/float64/vec2"

	"github.com/yukistavailable/NeuralTailor/internal/fsutil"
	"github.com/yukistavailable/NeuralTailor/internal/log"
)

// standardFilenames are spec file names whose directory carries the pattern
// name instead.
var standardFilenames = map[string]struct{}{
	"specification": {},
	"template":      {},
	"prediction":    {},
}

// NameFromPath derives the pattern name from its spec file location.
func NameFromPath(specFile string) string {
	name := strings.TrimSuffix(filepath.Base(specFile), filepath.Ext(specFile))
	if _, standard := standardFilenames[name]; standard {
		return filepath.Base(filepath.Dir(filepath.Clean(specFile)))
	}
	return name
}

// Load reads and normalizes a pattern specification from a JSON file.
func Load(path string) (*Spec, error) {
	f, err := os.Open(path) // #nosec G304 -- callers confine dataset paths
	if err != nil {
		return nil, fmt.Errorf("open spec: %w", err)
	}
	defer func() { _ = f.Close() }()

	spec, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return spec, nil
}

// Decode reads a pattern specification and normalizes it: curvature to
// relative coordinates, units to centimeters, optional one-shot panel
// translation snap.
func Decode(r io.Reader) (*Spec, error) {
	var spec Spec
	if err := json.NewDecoder(r).Decode(&spec); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDef, err)
	}
	if spec.Pattern.Panels == nil {
		spec.Pattern.Panels = map[string]*Panel{}
	}
	spec.normalize()
	return &spec, nil
}

// normalize rewrites the loaded template into the canonical in-memory form.
// Idempotent: a normalized spec passes through unchanged.
func (s *Spec) normalize() {
	logger := log.WithComponent("pattern")

	if s.Properties.CurvatureCoords == CurvatureAbsolute {
		for _, panel := range s.Pattern.Panels {
			for i := range panel.Edges {
				edge := &panel.Edges[i]
				if edge.Curvature == nil {
					continue
				}
				start := vec2.T(panel.Vertices[edge.Endpoints[0]])
				end := vec2.T(panel.Vertices[edge.Endpoints[1]])
				rel := controlToRelative(start, end, vec2.T(*edge.Curvature))
				edge.Curvature = &rel
			}
		}
		s.Properties.CurvatureCoords = CurvatureRelative
	}

	if s.Properties.UnitsInMeter != 0 && s.Properties.UnitsInMeter != 100 {
		scale := 100 / s.Properties.UnitsInMeter
		for _, panel := range s.Pattern.Panels {
			for i := range panel.Vertices {
				panel.Vertices[i][0] *= scale
				panel.Vertices[i][1] *= scale
			}
			for i := range panel.Translation {
				panel.Translation[i] *= scale
			}
		}
		s.Properties.OriginalUnitsInMeter = s.Properties.UnitsInMeter
		s.Properties.UnitsInMeter = 100
		s.normalizeParamScaling(scale)
		logger.Debug().Str("event", "pattern.rescaled").
			Float64("original_units_in_meter", s.Properties.OriginalUnitsInMeter).
			Msg("pattern units converted to cm")
	}

	// After curvature conversion: relative curvature is invariant to the
	// vertex shift below.
	if s.Properties.NormalizePanelTranslation {
		// One-shot property, cleared to prevent rotation issues on re-reads.
		s.Properties.NormalizePanelTranslation = false
		for _, panel := range s.Pattern.Panels {
			offset := panel.snapToCentroid()
			panel.Translation[0] += offset[0]
			panel.Translation[1] += offset[1]
		}
	}
}

// normalizeParamScaling rescales additive-length parameters along with the
// geometry. Length and curve parameters are unit-free.
func (s *Spec) normalizeParamScaling(scale float64) {
	for _, param := range s.Parameters {
		if param.Type != ParamAdditiveLength {
			continue
		}
		for i := range param.Value.Vals {
			param.Value.Vals[i] *= scale
		}
		for i := range param.Range.Pairs {
			param.Range.Pairs[i][0] *= scale
			param.Range.Pairs[i][1] *= scale
		}
	}
}

// snapToCentroid shifts panel vertices so the local origin sits at the vertex
// centroid, returning the applied offset.
func (p *Panel) snapToCentroid() vec2.T {
	var offset vec2.T
	if len(p.Vertices) == 0 {
		return offset
	}
	for _, v := range p.Vertices {
		offset[0] += v[0]
		offset[1] += v[1]
	}
	offset[0] /= float64(len(p.Vertices))
	offset[1] /= float64(len(p.Vertices))
	for i := range p.Vertices {
		p.Vertices[i][0] -= offset[0]
		p.Vertices[i][1] -= offset[1]
	}
	return offset
}

// SaveOptions controls the on-disk layout of a serialized pattern.
type SaveOptions struct {
	// ToSubfolder writes <dir>/<name>/<tag>specification.json instead of the
	// flat <dir>/<name><tag>_specification.json.
	ToSubfolder bool
	Tag         string
}

// Save serializes the spec atomically under dir and returns the directory the
// spec file was written to.
func (s *Spec) Save(dir, name string, opts SaveOptions) (string, error) {
	var specFile, outDir string
	if opts.ToSubfolder {
		outDir = filepath.Join(dir, name)
		if err := os.MkdirAll(outDir, 0o750); err != nil {
			return "", fmt.Errorf("create pattern dir: %w", err)
		}
		specFile = filepath.Join(outDir, opts.Tag+"specification.json")
	} else {
		outDir = dir
		specFile = filepath.Join(dir, name+opts.Tag+"_specification.json")
	}

	if err := fsutil.WriteJSONAtomic(specFile, s); err != nil {
		return "", fmt.Errorf("serialize pattern %s: %w", name, err)
	}
	return outDir, nil
}

// Clone returns a deep copy of the spec through the JSON codec.
func (s *Spec) Clone() (*Spec, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	var out Spec
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
