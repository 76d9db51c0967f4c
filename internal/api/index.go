package api

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/text/unicode/norm"

	"github.com/yukistavailable/NeuralTailor/internal/dataset"
	"github.com/yukistavailable/NeuralTailor/internal/log"
	"github.com/yukistavailable/NeuralTailor/internal/metrics"
)

// DatasetSummary is the indexed view of one dataset folder.
type DatasetSummary struct {
	Name       string    `json:"name"`
	Path       string    `json:"-"`
	Datapoints int       `json:"datapoints"`
	Size       int       `json:"size"`
	Templates  []string  `json:"templates,omitempty"`
	ScannedAt  time.Time `json:"scanned_at"`
}

// Index is the in-memory view of the datasets root, rebuilt by Rescan.
type Index struct {
	root string

	mu       sync.RWMutex
	datasets map[string]*DatasetSummary
	points   map[string]map[string]dataset.Datapoint

	scanned atomic.Bool
}

// NewIndex builds an empty index over the datasets root. The root is made
// absolute so indexed paths can be confined against it.
func NewIndex(root string) *Index {
	if abs, err := filepath.Abs(root); err == nil {
		root = abs
	}
	return &Index{
		root:     root,
		datasets: map[string]*DatasetSummary{},
		points:   map[string]map[string]dataset.Datapoint{},
	}
}

// Root returns the indexed datasets root.
func (ix *Index) Root() string { return ix.root }

// ScanDone reports whether at least one rescan completed.
func (ix *Index) ScanDone() bool { return ix.scanned.Load() }

// Rescan walks the datasets root and rebuilds the index. Dataset folders
// without a properties file are indexed with defaults and a warning.
func (ix *Index) Rescan(ctx context.Context) error {
	logger := log.WithComponent("api")

	entries, err := os.ReadDir(ix.root)
	if err != nil {
		metrics.DatasetRescansTotal.WithLabelValues(metrics.OutcomeFail).Inc()
		return err
	}

	datasets := map[string]*DatasetSummary{}
	points := map[string]map[string]dataset.Datapoint{}
	now := time.Now()
	for _, entry := range entries {
		if ctx.Err() != nil {
			metrics.DatasetRescansTotal.WithLabelValues(metrics.OutcomeFail).Inc()
			return ctx.Err()
		}
		if !entry.IsDir() {
			continue
		}
		name := entry.Name()
		dir := filepath.Join(ix.root, name)

		summary := &DatasetSummary{Name: name, Path: dir, ScannedAt: now}
		props, err := dataset.LoadProperties(filepath.Join(dir, dataset.PropertiesFilename))
		if err != nil {
			logger.Warn().Err(err).Str(log.FieldDataset, name).
				Msg("dataset has no readable properties file, using defaults")
		} else {
			summary.Size = props.Size
			summary.Templates = props.Templates
		}

		found, err := dataset.Discover(dir, dataset.DiscoverOptions{})
		if err != nil {
			logger.Warn().Err(err).Str(log.FieldDataset, name).Msg("dataset scan failed")
			continue
		}
		byName := make(map[string]dataset.Datapoint, len(found))
		for _, dp := range found {
			byName[dp.Name] = dp
		}
		summary.Datapoints = len(found)
		datasets[name] = summary
		points[name] = byName
	}

	ix.mu.Lock()
	ix.datasets = datasets
	ix.points = points
	ix.mu.Unlock()
	ix.scanned.Store(true)

	metrics.DatasetRescansTotal.WithLabelValues(metrics.OutcomeOK).Inc()
	total := 0
	for _, s := range datasets {
		total += s.Datapoints
	}
	metrics.DatasetsIndexed.Set(float64(len(datasets)))
	metrics.DatapointsIndexed.Set(float64(total))
	logger.Info().Str("event", "api.rescan_done").
		Int("datasets", len(datasets)).Int("datapoints", total).Msg("dataset index rebuilt")
	return nil
}

// Datasets lists the indexed datasets sorted by name.
func (ix *Index) Datasets() []*DatasetSummary {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	out := make([]*DatasetSummary, 0, len(ix.datasets))
	for _, s := range ix.datasets {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Dataset looks up one dataset by request name. Names are NFC-normalized so
// both unicode forms of the same name resolve.
func (ix *Index) Dataset(name string) (*DatasetSummary, bool) {
	key := norm.NFC.String(name)
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	s, ok := ix.datasets[key]
	return s, ok
}

// Datapoint looks up one datapoint of a dataset.
func (ix *Index) Datapoint(ds, dp string) (dataset.Datapoint, bool) {
	dsKey := norm.NFC.String(ds)
	dpKey := norm.NFC.String(dp)
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	byName, ok := ix.points[dsKey]
	if !ok {
		return dataset.Datapoint{}, false
	}
	point, ok := byName[dpKey]
	return point, ok
}

// DatapointNames lists a dataset's datapoint names sorted.
func (ix *Index) DatapointNames(ds string) []string {
	dsKey := norm.NFC.String(ds)
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	byName := ix.points[dsKey]
	names := make([]string, 0, len(byName))
	for name := range byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
