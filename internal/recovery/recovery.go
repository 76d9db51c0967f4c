// Package recovery turns predicted pattern tensors back into sewing pattern
// specs: panel decoding plus stitch recovery from the predicted edge tags.
package recovery

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/yukistavailable/NeuralTailor/internal/dataset"
	"github.com/yukistavailable/NeuralTailor/internal/log"
	"github.com/yukistavailable/NeuralTailor/internal/pattern"
	"github.com/yukistavailable/NeuralTailor/internal/stitchrec"
)

// Dump is a predicted pattern tensor as the inference side writes it: padded
// per-panel edge rows, placements and per-edge stitch tags.
type Dump struct {
	Name         string              `json:"name"`
	Panels       [][]pattern.EdgeRow `json:"panels"`
	Rotations    [][]float64         `json:"rotations"`
	Translations [][3]float64        `json:"translations"`
	StitchTags   [][][3]float64      `json:"stitch_tags,omitempty"`
	FreeMask     [][]bool            `json:"free_mask,omitempty"`
}

// LoadDump reads a prediction tensor dump from disk.
func LoadDump(path string) (*Dump, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- callers confine drop-folder paths
	if err != nil {
		return nil, fmt.Errorf("recovery: read dump: %w", err)
	}
	var d Dump
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("recovery: decode dump: %w", err)
	}
	if len(d.Panels) != len(d.Rotations) || len(d.Panels) != len(d.Translations) {
		return nil, fmt.Errorf("recovery: dump has %d panels, %d rotations, %d translations",
			len(d.Panels), len(d.Rotations), len(d.Translations))
	}
	return &d, nil
}

// Options controls pattern recovery from a dump.
type Options struct {
	// Stats de-standardizes the panel rows before decoding when set.
	Stats *dataset.Standardization

	// TagThreshold is the tag-norm cutoff for free edges when the dump
	// carries no mask. Zero means the recovery default.
	TagThreshold float64

	// NRefs and Seed parameterize the clustering.
	NRefs int
	Seed  int64
}

// Result is one recovered pattern.
type Result struct {
	Spec          *pattern.Spec
	Stitches      [][2]int
	Ambiguous     [][]int
	SkippedPanels []string
}

// Recover decodes the dump into a pattern spec with recovered stitches.
func Recover(d *Dump, opts Options) (*Result, error) {
	logger := log.WithComponent("recovery")

	panels := d.Panels
	if opts.Stats != nil {
		panels = destandardize(d.Panels, *opts.Stats)
	}

	tags, mask := flattenTags(d)
	var stitches [][2]int
	var ambiguous [][]int
	if len(tags) > 0 {
		res, err := stitchrec.RecoverStitches(tags, stitchrec.Options{
			FreeMask:  mask,
			Threshold: opts.TagThreshold,
			NRefs:     opts.NRefs,
			Seed:      opts.Seed,
		})
		if err != nil {
			return nil, err
		}
		stitches = res.Stitches
		ambiguous = res.Ambiguous
	}

	spec, skipped, err := pattern.DecodeNumeric(panels, d.Rotations, d.Translations, stitches, true)
	if err != nil {
		return nil, err
	}
	if len(skipped) > 0 {
		logger.Warn().Str(log.FieldDatapoint, d.Name).Strs("panels", skipped).
			Msg("empty predicted panels skipped")
	}

	return &Result{
		Spec:          spec,
		Stitches:      stitches,
		Ambiguous:     ambiguous,
		SkippedPanels: skipped,
	}, nil
}

// destandardize maps the rows back to data space without mutating the dump.
func destandardize(panels [][]pattern.EdgeRow, stats dataset.Standardization) [][]pattern.EdgeRow {
	out := make([][]pattern.EdgeRow, len(panels))
	for p, rows := range panels {
		outRows := make([]pattern.EdgeRow, len(rows))
		for r, row := range rows {
			buf := []float64{row[0], row[1], row[2], row[3]}
			stats.Invert([][]float64{buf})
			outRows[r] = pattern.EdgeRow{buf[0], buf[1], buf[2], buf[3]}
		}
		out[p] = outRows
	}
	return out
}

// flattenTags lays the per-panel tags out by pattern-level edge id. The mask
// is nil when the dump carries none, letting the norm threshold decide.
func flattenTags(d *Dump) ([][3]float64, []bool) {
	if len(d.StitchTags) == 0 {
		return nil, nil
	}

	perPanel := 0
	if len(d.Panels) > 0 {
		perPanel = len(d.Panels[0])
	}
	tags := make([][3]float64, len(d.Panels)*perPanel)
	for p, panelTags := range d.StitchTags {
		for e, tag := range panelTags {
			if id := p*perPanel + e; id < len(tags) {
				tags[id] = tag
			}
		}
	}

	if len(d.FreeMask) == 0 {
		return tags, nil
	}
	mask := make([]bool, len(tags))
	for i := range mask {
		mask[i] = true // padding rows past the dump's mask stay free
	}
	for p, panelMask := range d.FreeMask {
		for e, free := range panelMask {
			if id := p*perPanel + e; id < len(mask) {
				mask[id] = free
			}
		}
	}
	return tags, mask
}
