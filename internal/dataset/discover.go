package dataset

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/yukistavailable/NeuralTailor/internal/pattern"
)

// Datapoint is one garment sample inside a dataset: its folder and the files
// found there.
type Datapoint struct {
	Name string
	Dir  string

	SpecPath string
	SimOBJ   string
	ScanOBJ  string
	Renders  []string
}

// GeometryPath returns the preferred geometry for point sampling: the scan
// imitation mesh when present, the raw simulation mesh otherwise.
func (d *Datapoint) GeometryPath() string {
	if d.ScanOBJ != "" {
		return d.ScanOBJ
	}
	return d.SimOBJ
}

// DiscoverOptions filters datapoint enumeration.
type DiscoverOptions struct {
	// Exclude lists doublestar glob patterns matched against datapoint
	// names; matching datapoints are dropped.
	Exclude []string
}

// Discover enumerates the datapoints under a dataset root: every
// subdirectory holding a specification.json, in name order.
func Discover(root string, opts DiscoverOptions) ([]Datapoint, error) {
	for _, pat := range opts.Exclude {
		if !doublestar.ValidatePattern(pat) {
			return nil, fmt.Errorf("dataset: invalid exclude pattern %q", pat)
		}
	}

	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, err
	}

	var out []Datapoint
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		name := entry.Name()
		if excluded(name, opts.Exclude) {
			continue
		}
		dir := filepath.Join(root, name)
		specPath := filepath.Join(dir, "specification.json")
		if _, err := os.Stat(specPath); err != nil {
			continue
		}

		dp := Datapoint{Name: name, Dir: dir, SpecPath: specPath}
		files, err := os.ReadDir(dir)
		if err != nil {
			return nil, err
		}
		for _, f := range files {
			if f.IsDir() {
				continue
			}
			fn := f.Name()
			path := filepath.Join(dir, fn)
			switch {
			case strings.HasSuffix(fn, "_scan_imitation.obj"):
				dp.ScanOBJ = path
			case strings.HasSuffix(fn, "_sim.obj"):
				dp.SimOBJ = path
			case strings.Contains(fn, "camera") && strings.HasSuffix(fn, ".png"):
				dp.Renders = append(dp.Renders, path)
			}
		}
		sort.Strings(dp.Renders)
		out = append(out, dp)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func excluded(name string, patterns []string) bool {
	for _, pat := range patterns {
		if ok, _ := doublestar.Match(pat, name); ok {
			return true
		}
	}
	return false
}

// Validate checks the datapoint files and its pattern spec. Findings are
// human-readable problem strings; an empty result means a clean datapoint.
func (d *Datapoint) Validate() []string {
	var problems []string

	spec, err := pattern.Load(d.SpecPath)
	if err != nil {
		problems = append(problems, fmt.Sprintf("unreadable specification: %v", err))
	} else {
		for _, issue := range spec.Validate() {
			problems = append(problems, issue.String())
		}
	}

	if d.SimOBJ == "" {
		problems = append(problems, "missing simulated geometry (*_sim.obj)")
	}
	if len(d.Renders) == 0 {
		problems = append(problems, "missing renders (*camera*.png)")
	}
	return problems
}
