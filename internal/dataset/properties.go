// Package dataset implements the garment dataset layout: a root folder with
// dataset_properties.json and one subfolder per datapoint carrying the
// pattern specification, simulated geometry and renders.
package dataset

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/yukistavailable/NeuralTailor/internal/fsutil"
)

// PropertiesFilename is the dataset metadata file at the dataset root.
const PropertiesFilename = "dataset_properties.json"

// Stage names used for failure bookkeeping.
const (
	StageSim    = "sim"
	StageScan   = "scan"
	StageRender = "render"
)

// StageStats records per-stage outcomes across the dataset.
type StageStats struct {
	// Fails lists datapoint names that failed the stage.
	Fails []string `json:"fails,omitempty"`

	// FacesRemoved holds scan-imitation face removal counts per datapoint.
	FacesRemoved map[string]int `json:"faces_removed,omitempty"`

	// ElapsedSec holds per-datapoint processing time.
	ElapsedSec map[string]float64 `json:"elapsed_sec,omitempty"`
}

// Stage is one production stage section of the dataset properties.
type Stage struct {
	Config map[string]json.RawMessage `json:"config,omitempty"`
	Stats  StageStats                 `json:"stats"`
}

// Properties is the dataset metadata. Unknown top-level keys survive a
// load/save cycle.
type Properties struct {
	Name       string   `json:"name,omitempty"`
	Templates  []string `json:"templates,omitempty"`
	Body       string   `json:"body,omitempty"`
	Size       int      `json:"size"`
	RandomSeed int64    `json:"random_seed"`
	ToFinish   bool     `json:"to_finish,omitempty"`

	Sim    Stage `json:"sim"`
	Render Stage `json:"render"`

	extra map[string]json.RawMessage
}

var propertiesKnownKeys = []string{
	"name", "templates", "body", "size", "random_seed", "to_finish", "sim", "render",
}

// propertiesWire mirrors Properties for plain JSON decoding.
type propertiesWire struct {
	Name       string   `json:"name,omitempty"`
	Templates  []string `json:"templates,omitempty"`
	Body       string   `json:"body,omitempty"`
	Size       int      `json:"size"`
	RandomSeed int64    `json:"random_seed"`
	ToFinish   bool     `json:"to_finish,omitempty"`
	Sim        Stage    `json:"sim"`
	Render     Stage    `json:"render"`
}

// UnmarshalJSON decodes the known fields and keeps the rest aside.
func (p *Properties) UnmarshalJSON(data []byte) error {
	var wire propertiesWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	raw := map[string]json.RawMessage{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	for _, key := range propertiesKnownKeys {
		delete(raw, key)
	}

	*p = Properties{
		Name:       wire.Name,
		Templates:  wire.Templates,
		Body:       wire.Body,
		Size:       wire.Size,
		RandomSeed: wire.RandomSeed,
		ToFinish:   wire.ToFinish,
		Sim:        wire.Sim,
		Render:     wire.Render,
	}
	if len(raw) > 0 {
		p.extra = raw
	}
	return nil
}

// MarshalJSON encodes the properties including preserved unknown fields.
func (p Properties) MarshalJSON() ([]byte, error) {
	out := map[string]any{
		"size":        p.Size,
		"random_seed": p.RandomSeed,
		"sim":         p.Sim,
		"render":      p.Render,
	}
	if p.Name != "" {
		out["name"] = p.Name
	}
	if p.Templates != nil {
		out["templates"] = p.Templates
	}
	if p.Body != "" {
		out["body"] = p.Body
	}
	if p.ToFinish {
		out["to_finish"] = p.ToFinish
	}
	for k, v := range p.extra {
		out[k] = v
	}
	return json.Marshal(out)
}

// stage returns the stage section for a stage name; the scan stage shares the
// sim section the way the generator records it.
func (p *Properties) stage(name string) (*Stage, error) {
	switch name {
	case StageSim, StageScan:
		return &p.Sim, nil
	case StageRender:
		return &p.Render, nil
	default:
		return nil, fmt.Errorf("dataset: unknown stage %q", name)
	}
}

// AddFail records a datapoint failure for the stage, keeping the list sorted
// and free of duplicates.
func (p *Properties) AddFail(stage, datapoint string) error {
	st, err := p.stage(stage)
	if err != nil {
		return err
	}
	for _, f := range st.Stats.Fails {
		if f == datapoint {
			return nil
		}
	}
	st.Stats.Fails = append(st.Stats.Fails, datapoint)
	sort.Strings(st.Stats.Fails)
	return nil
}

// ClearFail removes a datapoint from the stage failure list, for retries that
// eventually succeeded.
func (p *Properties) ClearFail(stage, datapoint string) error {
	st, err := p.stage(stage)
	if err != nil {
		return err
	}
	kept := st.Stats.Fails[:0]
	for _, f := range st.Stats.Fails {
		if f != datapoint {
			kept = append(kept, f)
		}
	}
	st.Stats.Fails = kept
	return nil
}

// RecordScan stores scan-imitation face removal stats for a datapoint.
func (p *Properties) RecordScan(datapoint string, facesRemoved int, elapsedSec float64) {
	if p.Sim.Stats.FacesRemoved == nil {
		p.Sim.Stats.FacesRemoved = map[string]int{}
	}
	if p.Sim.Stats.ElapsedSec == nil {
		p.Sim.Stats.ElapsedSec = map[string]float64{}
	}
	p.Sim.Stats.FacesRemoved[datapoint] = facesRemoved
	p.Sim.Stats.ElapsedSec[datapoint] = elapsedSec
}

// LoadProperties reads dataset properties from path.
func LoadProperties(path string) (*Properties, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var p Properties
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &p, nil
}

// Save writes the properties to path atomically.
func (p *Properties) Save(path string) error {
	return fsutil.WriteJSONAtomic(path, p)
}
