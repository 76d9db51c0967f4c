package quality

import (
	"encoding/json"
	"os"

	"github.com/yukistavailable/NeuralTailor/internal/fsutil"
)

// Report aggregates metric values by name. Values accumulate as running
// means so per-pattern metrics average over a batch.
type Report struct {
	sums   map[string]float64
	counts map[string]int
}

// NewReport returns an empty report.
func NewReport() *Report {
	return &Report{
		sums:   map[string]float64{},
		counts: map[string]int{},
	}
}

// Add records one observation of a metric.
func (r *Report) Add(name string, value float64) {
	r.sums[name] += value
	r.counts[name]++
}

// Value returns the current mean of a metric and whether it was observed.
func (r *Report) Value(name string) (float64, bool) {
	c, ok := r.counts[name]
	if !ok {
		return 0, false
	}
	return r.sums[name] / float64(c), true
}

// Metrics returns all metric means. JSON encoding of the map has stable,
// sorted keys.
func (r *Report) Metrics() map[string]float64 {
	out := make(map[string]float64, len(r.sums))
	for name, sum := range r.sums {
		out[name] = sum / float64(r.counts[name])
	}
	return out
}

// MarshalJSON encodes the metric means.
func (r *Report) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.Metrics())
}

// Save writes the report to path atomically.
func (r *Report) Save(path string) error {
	return fsutil.WriteJSONAtomic(path, r)
}

// LoadReportMetrics reads back the metric means of a saved report.
func LoadReportMetrics(path string) (map[string]float64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var out map[string]float64
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}
