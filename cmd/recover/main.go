// recover turns predicted pattern tensor dumps back into sewing pattern
// specs with recovered stitches.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/yukistavailable/NeuralTailor/internal/config"
	"github.com/yukistavailable/NeuralTailor/internal/dataset"
	"github.com/yukistavailable/NeuralTailor/internal/experiment"
	"github.com/yukistavailable/NeuralTailor/internal/fsutil"
	ntlog "github.com/yukistavailable/NeuralTailor/internal/log"
	"github.com/yukistavailable/NeuralTailor/internal/recovery"
	"github.com/yukistavailable/NeuralTailor/internal/version"
)

const dumpSuffix = "_prediction.json"

func main() {
	os.Exit(run())
}

func run() int {
	var (
		showVersion  = flag.Bool("version", false, "print version and exit")
		configPath   = flag.String("config", "", "path to config file (YAML)")
		in           = flag.String("in", "", "prediction dump file or directory of *_prediction.json dumps")
		out          = flag.String("out", "./recovered", "output directory for recovered patterns")
		runID        = flag.String("run", "", "registry run id providing the standardization stats")
		statsPath    = flag.String("stats", "", "standardization stats JSON ({\"shift\": [...], \"scale\": [...]})")
		tagThreshold = flag.Float64("tag-threshold", 0, "tag-norm cutoff for free edges (0 keeps the default)")
		seed         = flag.Int64("seed", 0, "clustering seed")
	)
	flag.Parse()

	if *showVersion {
		fmt.Println(version.Version)
		return 0
	}
	if *in == "" {
		fmt.Fprintln(os.Stderr, "Error: --in is required")
		return 2
	}
	if *runID != "" && *statsPath != "" {
		fmt.Fprintln(os.Stderr, "Error: --run and --stats are mutually exclusive")
		return 2
	}

	cfg, err := config.NewLoader(*configPath, version.Version).Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		return 1
	}
	ntlog.Configure(ntlog.Config{Level: cfg.LogLevel, Service: "recover"})
	logger := ntlog.WithComponent("recover")
	ctx := context.Background()

	stats, err := loadStats(ctx, cfg, *runID, *statsPath)
	if err != nil {
		logger.Error().Err(err).Msg("standardization stats unavailable")
		return 1
	}

	dumps, err := collectDumps(*in)
	if err != nil {
		logger.Error().Err(err).Msg("dump discovery failed")
		return 1
	}
	if len(dumps) == 0 {
		logger.Error().Str(ntlog.FieldPath, *in).Msg("no prediction dumps found")
		return 1
	}

	opts := recovery.Options{
		Stats:        stats,
		TagThreshold: *tagThreshold,
		Seed:         *seed,
	}

	failed := 0
	var preds []dataset.Prediction
	for _, path := range dumps {
		dump, err := recovery.LoadDump(path)
		if err != nil {
			logger.Error().Err(err).Str(ntlog.FieldPath, path).Msg("dump unreadable")
			failed++
			continue
		}
		if dump.Name == "" {
			dump.Name = strings.TrimSuffix(filepath.Base(path), dumpSuffix)
		}
		res, err := recovery.Recover(dump, opts)
		if err != nil {
			logger.Error().Err(err).Str(ntlog.FieldDatapoint, dump.Name).Msg("recovery failed")
			failed++
			continue
		}
		preds = append(preds, dataset.Prediction{
			Name:          dump.Name,
			Spec:          res.Spec,
			SkippedPanels: res.SkippedPanels,
		})
		logger.Info().Str(ntlog.FieldDatapoint, dump.Name).
			Int("stitches", len(res.Stitches)).Int("ambiguous", len(res.Ambiguous)).
			Msg("pattern recovered")
	}

	if err := dataset.SavePredictions(*out, "", preds); err != nil {
		logger.Error().Err(err).Msg("recovered patterns not saved")
		return 1
	}

	fmt.Printf("recovered %d of %d dumps into %s\n", len(preds), len(dumps), *out)
	if failed > 0 {
		return 1
	}
	return 0
}

// loadStats resolves standardization stats from a registry run or a file.
func loadStats(ctx context.Context, cfg config.AppConfig, runID, statsPath string) (*dataset.Standardization, error) {
	switch {
	case runID != "":
		registry, err := experiment.Open(config.RegistryConfig{Path: cfg.RegistryPath()})
		if err != nil {
			return nil, err
		}
		defer func() { _ = registry.Close() }()
		run, err := registry.Get(ctx, runID)
		if err != nil {
			return nil, err
		}
		return run.Config.Standardization, nil
	case statsPath != "":
		data, err := os.ReadFile(statsPath) // #nosec G304 -- operator-provided path
		if err != nil {
			return nil, err
		}
		var stats dataset.Standardization
		if err := json.Unmarshal(data, &stats); err != nil {
			return nil, fmt.Errorf("decode stats %s: %w", statsPath, err)
		}
		return &stats, nil
	default:
		return nil, nil
	}
}

// collectDumps expands a file or directory into dump paths.
func collectDumps(in string) ([]string, error) {
	info, err := os.Stat(in)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return []string{in}, nil
	}
	entries, err := os.ReadDir(in)
	if err != nil {
		return nil, err
	}
	var dumps []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), dumpSuffix) {
			continue
		}
		path, err := fsutil.ConfineRelPath(in, entry.Name())
		if err != nil {
			return nil, err
		}
		dumps = append(dumps, path)
	}
	return dumps, nil
}
