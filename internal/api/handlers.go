package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/yukistavailable/NeuralTailor/internal/experiment"
	"github.com/yukistavailable/NeuralTailor/internal/fsutil"
	"github.com/yukistavailable/NeuralTailor/internal/log"
	"github.com/yukistavailable/NeuralTailor/internal/pattern"
	"github.com/yukistavailable/NeuralTailor/internal/pattern/draw"
	"github.com/yukistavailable/NeuralTailor/internal/version"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	verbose := r.URL.Query().Get("verbose") != ""
	resp := s.health.Health(r.Context(), verbose)
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	resp := s.health.Ready(r.Context())
	status := http.StatusOK
	if !resp.Ready {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	datapoints := 0
	datasets := s.index.Datasets()
	for _, ds := range datasets {
		datapoints += ds.Datapoints
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"version":      version.Version,
		"uptime_sec":   int(time.Since(s.startTime).Seconds()),
		"scan_done":    s.index.ScanDone(),
		"rescanning":   s.rescanning.Load(),
		"datasets":     len(datasets),
		"datapoints":   datapoints,
		"has_registry": s.registry != nil,
	})
}

func (s *Server) handleDatasets(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.index.Datasets())
}

func (s *Server) handleDataset(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	summary, ok := s.index.Dataset(name)
	if !ok {
		writeError(w, http.StatusNotFound, "dataset not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"dataset":    summary,
		"datapoints": s.index.DatapointNames(name),
	})
}

// handleRescan rebuilds the dataset index; concurrent triggers answer 409.
func (s *Server) handleRescan(w http.ResponseWriter, r *http.Request) {
	if !s.rescanning.CompareAndSwap(false, true) {
		writeError(w, http.StatusConflict, "rescan already running")
		return
	}
	defer s.rescanning.Store(false)

	if err := s.index.Rescan(r.Context()); err != nil {
		logger := log.WithComponentFromContext(r.Context(), "api")
		logger.Error().Err(err).Msg("rescan failed")
		writeError(w, http.StatusInternalServerError, "rescan failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"datasets": len(s.index.Datasets()),
	})
}

func (s *Server) handleDatapoint(w http.ResponseWriter, r *http.Request) {
	point, ok := s.index.Datapoint(chi.URLParam(r, "name"), chi.URLParam(r, "dp"))
	if !ok {
		writeError(w, http.StatusNotFound, "datapoint not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"name":     point.Name,
		"issues":   point.Validate(),
		"has_scan": point.ScanOBJ != "",
		"has_sim":  point.SimOBJ != "",
		"renders":  len(point.Renders),
	})
}

func (s *Server) handlePatternSVG(w http.ResponseWriter, r *http.Request) {
	point, ok := s.index.Datapoint(chi.URLParam(r, "name"), chi.URLParam(r, "dp"))
	if !ok {
		writeError(w, http.StatusNotFound, "datapoint not found")
		return
	}
	specPath, err := fsutil.ConfineAbsPath(s.index.Root(), point.SpecPath)
	if err != nil {
		writeError(w, http.StatusNotFound, "datapoint not found")
		return
	}
	spec, err := pattern.Load(specPath)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "pattern spec unreadable")
		return
	}

	w.Header().Set("Content-Type", "image/svg+xml")
	if err := draw.Render(w, spec, draw.Options{WithStitches: true}); err != nil {
		logger := log.WithComponentFromContext(r.Context(), "api")
		logger.Error().Err(err).
			Str(log.FieldDatapoint, point.Name).Msg("svg render failed")
	}
}

// handleDatapointPoints samples (or serves cached) surface points of the
// datapoint's preferred geometry.
func (s *Server) handleDatapointPoints(w http.ResponseWriter, r *http.Request) {
	if s.sampler == nil {
		writeError(w, http.StatusServiceUnavailable, "point sampling not configured")
		return
	}
	point, ok := s.index.Datapoint(chi.URLParam(r, "name"), chi.URLParam(r, "dp"))
	if !ok {
		writeError(w, http.StatusNotFound, "datapoint not found")
		return
	}

	smp := *s.sampler
	if v := r.URL.Query().Get("count"); v != "" {
		count, err := strconv.Atoi(v)
		if err != nil || count <= 0 {
			writeError(w, http.StatusBadRequest, "count must be a positive integer")
			return
		}
		smp.PointCount = count
	}
	if v := r.URL.Query().Get("seed"); v != "" {
		seed, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "seed must be an integer")
			return
		}
		smp.Seed = seed
	}

	pts, err := smp.Points(&point)
	if err != nil {
		logger := log.WithComponentFromContext(r.Context(), "api")
		logger.Error().Err(err).
			Str(log.FieldDatapoint, point.Name).Msg("point sampling failed")
		writeError(w, http.StatusUnprocessableEntity, "point sampling failed")
		return
	}
	out := make([][3]float64, len(pts))
	for i, p := range pts {
		out[i] = [3]float64(p)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"name":   point.Name,
		"count":  len(out),
		"seed":   smp.Seed,
		"points": out,
	})
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	if s.registry == nil {
		writeError(w, http.StatusServiceUnavailable, "run registry not configured")
		return
	}
	runs, err := s.registry.List(r.Context(), r.URL.Query().Get("project"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "registry query failed")
		return
	}
	if runs == nil {
		runs = []*experiment.Run{}
	}
	writeJSON(w, http.StatusOK, runs)
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	if s.registry == nil {
		writeError(w, http.StatusServiceUnavailable, "run registry not configured")
		return
	}
	run, err := s.registry.Get(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, experiment.ErrRunNotFound) {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "registry query failed")
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (s *Server) handleRunMetrics(w http.ResponseWriter, r *http.Request) {
	if s.registry == nil {
		writeError(w, http.StatusServiceUnavailable, "run registry not configured")
		return
	}
	points, err := s.registry.Metrics(r.Context(), chi.URLParam(r, "id"), r.URL.Query().Get("key"))
	if errors.Is(err, experiment.ErrRunNotFound) {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "registry query failed")
		return
	}
	if points == nil {
		points = []experiment.MetricPoint{}
	}
	writeJSON(w, http.StatusOK, points)
}
