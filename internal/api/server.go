// Package api serves the daemon's HTTP surface: health probes, the dataset
// index, experiment runs and prometheus metrics.
package api

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/yukistavailable/NeuralTailor/internal/config"
	"github.com/yukistavailable/NeuralTailor/internal/dataset"
	"github.com/yukistavailable/NeuralTailor/internal/experiment"
	"github.com/yukistavailable/NeuralTailor/internal/health"
	"github.com/yukistavailable/NeuralTailor/internal/log"
)

// Server is the daemon HTTP API.
type Server struct {
	cfg       config.AppConfig
	health    *health.Manager
	registry  *experiment.Registry
	index     *Index
	sampler   *dataset.Sampler
	startTime time.Time

	rescanning atomic.Bool
}

// NewServer wires the HTTP API. The registry may be nil when the run
// registry is not configured; run endpoints then answer 503. The sampler
// may be nil; the points endpoint then answers 503.
func NewServer(cfg config.AppConfig, healthMgr *health.Manager, registry *experiment.Registry, index *Index, sampler *dataset.Sampler) *Server {
	return &Server{
		cfg:       cfg,
		health:    healthMgr,
		registry:  registry,
		index:     index,
		sampler:   sampler,
		startTime: time.Now(),
	}
}

// Router builds the chi router with the full middleware stack.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(Recoverer)
	r.Use(RequestID)
	r.Use(Metrics)
	r.Use(Tracing("neuraltailor-api"))
	r.Use(AccessLog)
	if s.cfg.API.RateLimit > 0 {
		window := s.cfg.API.RateWindow
		if window <= 0 {
			window = time.Minute
		}
		r.Use(httprate.Limit(
			s.cfg.API.RateLimit,
			window,
			httprate.WithKeyFuncs(httprate.KeyByIP),
			httprate.WithLimitHandler(func(w http.ResponseWriter, _ *http.Request) {
				writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			}),
		))
	}

	r.Get("/healthz", s.handleHealthz)
	r.Get("/readyz", s.handleReadyz)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/status", s.handleStatus)
		r.Get("/datasets", s.handleDatasets)
		r.Get("/datasets/{name}", s.handleDataset)
		r.Post("/datasets/{name}/rescan", s.handleRescan)
		r.Get("/datasets/{name}/datapoints/{dp}", s.handleDatapoint)
		r.Get("/datasets/{name}/datapoints/{dp}/pattern.svg", s.handlePatternSVG)
		r.Get("/datasets/{name}/datapoints/{dp}/points", s.handleDatapointPoints)
		r.Get("/runs", s.handleRuns)
		r.Get("/runs/{id}", s.handleRun)
		r.Get("/runs/{id}/metrics", s.handleRunMetrics)
	})

	return r
}

// Serve runs the HTTP server until ctx ends, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	logger := log.WithComponent("api")
	logger.Info().Str("event", "api.listening").
		Str("addr", s.cfg.Listen).Msg("http api listening")

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		err := <-errCh
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case err := <-errCh:
		return err
	}
}
