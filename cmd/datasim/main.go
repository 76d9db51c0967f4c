// datasim runs a simulation batch: it instantiates randomized patterns from
// the templates named in a dataset properties file, simulates each one and
// optionally applies scan imitation.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/yukistavailable/NeuralTailor/internal/config"
	"github.com/yukistavailable/NeuralTailor/internal/dataset"
	ntlog "github.com/yukistavailable/NeuralTailor/internal/log"
	"github.com/yukistavailable/NeuralTailor/internal/sim"
	"github.com/yukistavailable/NeuralTailor/internal/version"
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		showVersion = flag.Bool("version", false, "print version and exit")
		configPath  = flag.String("config", "", "path to config file (YAML)")
		root        = flag.String("root", "", "dataset root directory (with dataset_properties.json)")
		templates   = flag.String("templates", "", "directory holding the template spec files (defaults to the dataset root)")
		body        = flag.String("body", "", "obstacle OBJ occluding the scan imitation")
		parallel    = flag.Int("parallel", 0, "worker count override (0 keeps the configured value)")
		force       = flag.Bool("force", false, "redo datapoints even when their outputs exist")
		dryRun      = flag.Bool("dry-run", false, "list the planned work without simulating")
	)
	flag.Parse()

	if *showVersion {
		fmt.Println(version.Version)
		return 0
	}
	if *root == "" {
		fmt.Fprintln(os.Stderr, "Error: --root is required")
		return 2
	}

	cfg, err := config.NewLoader(*configPath, version.Version).Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		return 1
	}
	ntlog.Configure(ntlog.Config{Level: cfg.LogLevel, Service: "datasim"})
	logger := ntlog.WithComponent("datasim")

	props, err := dataset.LoadProperties(filepath.Join(*root, dataset.PropertiesFilename))
	if err != nil {
		logger.Error().Err(err).Msg("dataset properties unreadable")
		return 1
	}

	if *parallel > 0 {
		cfg.Sim.Parallelism = *parallel
	}
	if *force {
		cfg.Sim.Force = true
	}

	if *dryRun {
		fmt.Printf("dataset %s: %d datapoints from %d templates (seed %d)\n",
			props.Name, props.Size, len(props.Templates), props.RandomSeed)
		for _, tmpl := range props.Templates {
			fmt.Printf("  template %s\n", tmpl)
		}
		return 0
	}

	if len(cfg.Sim.Command) == 0 {
		logger.Error().Msg("sim.command is not configured")
		return 1
	}
	simulator := &sim.CommandSimulator{
		Command:       cfg.Sim.Command[0],
		Args:          cfg.Sim.Command[1:],
		OutputTimeout: cfg.Sim.OutputTimeout,
	}

	queue, err := sim.NewQueue(cfg.Queue)
	if err != nil {
		logger.Error().Err(err).Msg("queue setup failed")
		return 1
	}
	defer func() { _ = queue.Close() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	templatesDir := *templates
	if templatesDir == "" {
		templatesDir = *root
	}
	var obstacles []string
	if *body != "" {
		obstacles = append(obstacles, *body)
	}

	engine := &sim.Engine{Sim: simulator, Queue: queue, Cfg: cfg.Sim}
	stats, err := engine.Run(ctx, sim.Job{
		Root:         *root,
		TemplatesDir: templatesDir,
		Props:        props,
		Obstacles:    obstacles,
	})
	if err != nil {
		logger.Error().Err(err).Msg("simulation batch failed")
		return 1
	}

	fmt.Printf("completed %d, skipped %d, failed %d\n", stats.Completed, stats.Skipped, stats.Failed)
	if stats.Failed > 0 {
		return 1
	}
	return 0
}
