// neuraltailor is the garment dataset daemon: it indexes the datasets root,
// watches it for changes, recovers dropped prediction dumps and serves the
// HTTP API.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/yukistavailable/NeuralTailor/internal/api"
	"github.com/yukistavailable/NeuralTailor/internal/config"
	"github.com/yukistavailable/NeuralTailor/internal/dataset"
	"github.com/yukistavailable/NeuralTailor/internal/experiment"
	"github.com/yukistavailable/NeuralTailor/internal/health"
	ntlog "github.com/yukistavailable/NeuralTailor/internal/log"
	"github.com/yukistavailable/NeuralTailor/internal/telemetry"
	"github.com/yukistavailable/NeuralTailor/internal/version"
)

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	configPath := flag.String("config", "", "path to config file (YAML)")
	flag.Parse()

	if *showVersion {
		fmt.Printf("%s (commit: %s, built: %s)\n", version.Version, version.Commit, version.Date)
		os.Exit(0)
	}

	cfg, err := config.NewLoader(*configPath, version.Version).Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	ntlog.Configure(ntlog.Config{Level: cfg.LogLevel, Service: "neuraltailor"})
	logger := ntlog.WithComponent("daemon")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tracer, err := telemetry.NewProvider(ctx, cfg.Telemetry)
	if err != nil {
		logger.Fatal().Err(err).Str("event", "daemon.telemetry_failed").Msg("telemetry setup failed")
	}
	defer func() {
		if err := tracer.Shutdown(context.Background()); err != nil {
			logger.Warn().Err(err).Msg("tracer shutdown failed")
		}
	}()

	registry, err := experiment.Open(config.RegistryConfig{Path: cfg.RegistryPath()})
	if err != nil {
		logger.Fatal().Err(err).Str("event", "daemon.registry_failed").Msg("run registry unavailable")
	}
	defer func() { _ = registry.Close() }()

	sampler := &dataset.Sampler{
		PointCount: cfg.Sample.PointCount,
		Seed:       cfg.Sample.Seed,
	}
	if cfg.Cache.Backend == "badger" {
		cache, err := dataset.OpenSampleCache(cfg.CachePath())
		if err != nil {
			logger.Fatal().Err(err).Str("event", "daemon.cache_failed").Msg("sample cache unavailable")
		}
		defer func() { _ = cache.Close() }()
		sampler.Cache = cache
	}

	index := api.NewIndex(cfg.DatasetsRoot)
	if err := index.Rescan(ctx); err != nil {
		logger.Error().Err(err).Str("event", "daemon.initial_scan_failed").
			Msg("initial dataset scan failed, continuing degraded")
	}

	healthMgr := health.NewManager(version.Version)
	healthMgr.RegisterChecker(&health.DirChecker{CheckName: "datasets_root", Path: cfg.DatasetsRoot})
	healthMgr.RegisterChecker(&health.ScanChecker{Done: index.ScanDone})

	server := api.NewServer(cfg, healthMgr, registry, index, sampler)
	watcher := &api.Watcher{Index: index, DropDir: cfg.DropDir}
	if cfg.DropDir != "" {
		if err := os.MkdirAll(cfg.DropDir, 0o750); err != nil {
			logger.Fatal().Err(err).Str("event", "daemon.drop_dir_failed").Msg("drop dir not usable")
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return server.Serve(gctx) })
	g.Go(func() error {
		err := watcher.Run(gctx)
		if gctx.Err() != nil {
			return nil
		}
		return err
	})

	logger.Info().Str("event", "daemon.started").Str("listen", cfg.Listen).
		Str("datasets_root", cfg.DatasetsRoot).Msg("daemon running")
	if err := g.Wait(); err != nil {
		logger.Fatal().Err(err).Str("event", "daemon.failed").Msg("daemon exited with error")
	}
	logger.Info().Str("event", "daemon.stopped").Msg("daemon shut down")
}
