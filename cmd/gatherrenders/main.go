// gatherrenders collects the per-datapoint render images of a dataset into
// a single renders/ folder for quick visual inspection.
package main

import (
	"flag"
	"fmt"
	"os"

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
		root        = flag.String("root", "", "dataset root directory")
		logLevel    = flag.String("log-level", "info", "log level")
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

	ntlog.Configure(ntlog.Config{Level: *logLevel, Service: "gatherrenders"})

	copied, err := sim.GatherRenders(*root)
	if err != nil {
		logger := ntlog.WithComponent("gatherrenders")
		logger.Error().Err(err).Msg("render gathering failed")
		return 1
	}
	fmt.Printf("copied %d renders into %s/%s\n", copied, *root, sim.RendersDirname)
	return 0
}
