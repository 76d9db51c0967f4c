package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/yukistavailable/NeuralTailor/internal/config"
	"github.com/yukistavailable/NeuralTailor/internal/dataset"
	"github.com/yukistavailable/NeuralTailor/internal/experiment"
	"github.com/yukistavailable/NeuralTailor/internal/health"
)

const specJSON = `{
	"pattern": {
		"panels": {
			"front": {
				"translation": [0, 0, 10],
				"rotation": [0, 0, 0],
				"vertices": [[0, 0], [20, 0], [20, 20], [0, 20]],
				"edges": [
					{"endpoints": [0, 1]},
					{"endpoints": [1, 2]},
					{"endpoints": [2, 3]},
					{"endpoints": [3, 0]}
				]
			}
		},
		"stitches": []
	},
	"properties": {
		"curvature_coords": "relative",
		"normalize_panel_translation": false,
		"units_in_meter": 100
	}
}`

const triangleOBJ = `v 0 0 0
v 10 0 0
v 0 10 0
f 1 2 3
`

func writeDataset(t *testing.T, root, name string, datapoints ...string) {
	t.Helper()
	dir := filepath.Join(root, name)
	require.NoError(t, os.MkdirAll(dir, 0o750))
	props := map[string]any{"name": name, "size": len(datapoints), "random_seed": 1}
	data, err := json.Marshal(props)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "dataset_properties.json"), data, 0o600))
	for _, dp := range datapoints {
		dpDir := filepath.Join(dir, dp)
		require.NoError(t, os.MkdirAll(dpDir, 0o750))
		require.NoError(t, os.WriteFile(filepath.Join(dpDir, "specification.json"), []byte(specJSON), 0o600))
		require.NoError(t, os.WriteFile(filepath.Join(dpDir, dp+"_sim.obj"), []byte(triangleOBJ), 0o600))
	}
}

// newTestServer indexes a root with one two-datapoint dataset and wires a
// fresh registry.
func newTestServer(t *testing.T, cfg config.AppConfig) (*Server, *experiment.Registry) {
	t.Helper()
	root := t.TempDir()
	writeDataset(t, root, "tee_50", "tee_0000", "tee_0001")

	index := NewIndex(root)
	require.NoError(t, index.Rescan(context.Background()))

	registry, err := experiment.Open(config.RegistryConfig{Path: filepath.Join(t.TempDir(), "runs.sqlite")})
	require.NoError(t, err)
	t.Cleanup(func() { _ = registry.Close() })

	healthMgr := health.NewManager("test")
	healthMgr.RegisterChecker(&health.ScanChecker{Done: index.ScanDone})

	cfg.DatasetsRoot = root
	sampler := &dataset.Sampler{PointCount: 16, Seed: 1}
	return NewServer(cfg, healthMgr, registry, index, sampler), registry
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestHealthEndpoints(t *testing.T) {
	s, _ := newTestServer(t, config.AppConfig{})
	h := s.Router()

	rec := get(t, h, "/healthz")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	rec = get(t, h, "/readyz")
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestReadyzBeforeScan(t *testing.T) {
	index := NewIndex(t.TempDir())
	healthMgr := health.NewManager("test")
	healthMgr.RegisterChecker(&health.ScanChecker{Done: index.ScanDone})
	s := NewServer(config.AppConfig{}, healthMgr, nil, index, nil)

	rec := get(t, s.Router(), "/readyz")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestStatusEndpoint(t *testing.T) {
	s, _ := newTestServer(t, config.AppConfig{})

	rec := get(t, s.Router(), "/api/status")
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, true, body["scan_done"])
	require.EqualValues(t, 1, body["datasets"])
	require.EqualValues(t, 2, body["datapoints"])
}

func TestDatasetEndpoints(t *testing.T) {
	s, _ := newTestServer(t, config.AppConfig{})
	h := s.Router()

	rec := get(t, h, "/api/datasets")
	require.Equal(t, http.StatusOK, rec.Code)
	var list []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list, 1)
	require.Equal(t, "tee_50", list[0]["name"])

	rec = get(t, h, "/api/datasets/tee_50")
	require.Equal(t, http.StatusOK, rec.Code)
	var detail struct {
		Datapoints []string `json:"datapoints"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &detail))
	require.Equal(t, []string{"tee_0000", "tee_0001"}, detail.Datapoints)

	rec = get(t, h, "/api/datasets/unknown")
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDatapointEndpoints(t *testing.T) {
	s, _ := newTestServer(t, config.AppConfig{})
	h := s.Router()

	rec := get(t, h, "/api/datasets/tee_50/datapoints/tee_0000")
	require.Equal(t, http.StatusOK, rec.Code)
	var detail map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &detail))
	require.Equal(t, true, detail["has_sim"])
	require.Equal(t, false, detail["has_scan"])

	rec = get(t, h, "/api/datasets/tee_50/datapoints/missing")
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPatternSVG(t *testing.T) {
	s, _ := newTestServer(t, config.AppConfig{})

	rec := get(t, s.Router(), "/api/datasets/tee_50/datapoints/tee_0000/pattern.svg")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "image/svg+xml", rec.Header().Get("Content-Type"))
	require.Contains(t, rec.Body.String(), "<svg")
}

func TestDatapointPoints(t *testing.T) {
	s, _ := newTestServer(t, config.AppConfig{})
	h := s.Router()

	rec := get(t, h, "/api/datasets/tee_50/datapoints/tee_0000/points?count=8&seed=3")
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Count  int          `json:"count"`
		Points [][3]float64 `json:"points"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, 8, body.Count)
	require.Len(t, body.Points, 8)

	// sampling is deterministic for a fixed seed
	again := get(t, h, "/api/datasets/tee_50/datapoints/tee_0000/points?count=8&seed=3")
	require.Equal(t, rec.Body.String(), again.Body.String())

	rec = get(t, h, "/api/datasets/tee_50/datapoints/tee_0000/points?count=nope")
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = get(t, h, "/api/datasets/tee_50/datapoints/missing/points")
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRunEndpoints(t *testing.T) {
	s, registry := newTestServer(t, config.AppConfig{})
	h := s.Router()
	ctx := context.Background()

	run, err := registry.NewRun(ctx, "proj", "baseline", experiment.RunConfig{SampleCount: 2000})
	require.NoError(t, err)
	require.NoError(t, registry.LogMetric(ctx, run.ID, "loss", 0, 1.25))

	rec := get(t, h, "/api/runs")
	require.Equal(t, http.StatusOK, rec.Code)
	var runs []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &runs))
	require.Len(t, runs, 1)

	rec = get(t, h, "/api/runs/"+run.ID)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = get(t, h, "/api/runs/"+run.ID+"/metrics?key=loss")
	require.Equal(t, http.StatusOK, rec.Code)
	var points []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &points))
	require.Len(t, points, 1)

	rec = get(t, h, "/api/runs/no-such-run")
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRunEndpointsWithoutRegistry(t *testing.T) {
	index := NewIndex(t.TempDir())
	s := NewServer(config.AppConfig{}, health.NewManager("test"), nil, index, nil)

	rec := get(t, s.Router(), "/api/runs")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestRescan(t *testing.T) {
	s, _ := newTestServer(t, config.AppConfig{})
	h := s.Router()

	// a new dataset appears between scans
	writeDataset(t, s.index.Root(), "dress_10", "dress_0000")

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/datasets/tee_50/rescan", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, s.index.Datasets(), 2)
}

func TestRescanConflict(t *testing.T) {
	s, _ := newTestServer(t, config.AppConfig{})
	s.rescanning.Store(true)

	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/datasets/tee_50/rescan", nil))
	require.Equal(t, http.StatusConflict, rec.Code)
}

func TestRateLimit(t *testing.T) {
	s, _ := newTestServer(t, config.AppConfig{
		API: config.APIConfig{RateLimit: 2, RateWindow: time.Minute},
	})
	h := s.Router()

	require.Equal(t, http.StatusOK, get(t, h, "/api/status").Code)
	require.Equal(t, http.StatusOK, get(t, h, "/api/status").Code)
	require.Equal(t, http.StatusTooManyRequests, get(t, h, "/api/status").Code)
}
