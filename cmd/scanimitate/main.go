// scanimitate removes the faces of a garment mesh that a surrounding 3D
// scanner could not see, optionally occluded by a body mesh.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	ntlog "github.com/yukistavailable/NeuralTailor/internal/log"
	"github.com/yukistavailable/NeuralTailor/internal/mesh"
	"github.com/yukistavailable/NeuralTailor/internal/version"
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		showVersion = flag.Bool("version", false, "print version and exit")
		in          = flag.String("in", "", "garment OBJ to scan")
		out         = flag.String("out", "", "output OBJ (defaults to <in>_scan_imitation.obj)")
		body        = flag.String("body", "", "obstacle OBJ occluding the garment, may repeat comma-separated")
		numRays     = flag.Int("rays", 20, "visibility rays per face")
		seed        = flag.Int64("seed", 0, "ray direction seed")
		parallel    = flag.Int("parallel", 0, "worker count (0 means GOMAXPROCS)")
		logLevel    = flag.String("log-level", "info", "log level")
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

	ntlog.Configure(ntlog.Config{Level: *logLevel, Service: "scanimitate"})
	logger := ntlog.WithComponent("scanimitate")

	target, err := mesh.LoadOBJ(*in)
	if err != nil {
		logger.Error().Err(err).Str(ntlog.FieldPath, *in).Msg("garment mesh unreadable")
		return 1
	}

	var obstacles []*mesh.Mesh
	if *body != "" {
		for _, path := range strings.Split(*body, ",") {
			m, err := mesh.LoadOBJ(strings.TrimSpace(path))
			if err != nil {
				logger.Error().Err(err).Str(ntlog.FieldPath, path).Msg("obstacle mesh unreadable")
				return 1
			}
			obstacles = append(obstacles, m)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	visible, stats, err := mesh.ScanImitation(ctx, target, obstacles, mesh.ScanOptions{
		NumRays:     *numRays,
		Seed:        *seed,
		Parallelism: *parallel,
	})
	if err != nil {
		logger.Error().Err(err).Msg("scan imitation failed")
		return 1
	}

	dest := *out
	if dest == "" {
		dest = strings.TrimSuffix(*in, ".obj") + "_scan_imitation.obj"
	}
	if err := mesh.SaveOBJ(dest, visible); err != nil {
		logger.Error().Err(err).Str(ntlog.FieldPath, dest).Msg("scan output not saved")
		return 1
	}

	fmt.Printf("removed %d of %d faces in %.2fs, wrote %s\n",
		stats.FacesRemoved, stats.FacesTotal, stats.ElapsedSec, dest)
	return 0
}
