// fetchdata downloads a dataset bundle from an allow-listed host, with
// resume support and optional SHA-256 verification.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path"
	"syscall"

	"github.com/yukistavailable/NeuralTailor/internal/config"
	"github.com/yukistavailable/NeuralTailor/internal/download"
	ntlog "github.com/yukistavailable/NeuralTailor/internal/log"
	"github.com/yukistavailable/NeuralTailor/internal/version"
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		showVersion = flag.Bool("version", false, "print version and exit")
		configPath  = flag.String("config", "", "path to config file (YAML)")
		rawURL      = flag.String("url", "", "bundle URL")
		dest        = flag.String("dest", "", "destination path (defaults to the URL's filename)")
		sha256sum   = flag.String("sha256", "", "expected hex SHA-256 of the bundle")
	)
	flag.Parse()

	if *showVersion {
		fmt.Println(version.Version)
		return 0
	}
	if *rawURL == "" {
		fmt.Fprintln(os.Stderr, "Error: --url is required")
		return 2
	}

	cfg, err := config.NewLoader(*configPath, version.Version).Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		return 1
	}
	ntlog.Configure(ntlog.Config{Level: cfg.LogLevel, Service: "fetchdata"})
	logger := ntlog.WithComponent("fetchdata")

	client, err := download.NewClient(cfg.Download)
	if err != nil {
		logger.Error().Err(err).Msg("download client setup failed")
		return 1
	}

	target := *dest
	if target == "" {
		target = path.Base(*rawURL)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err = client.Fetch(ctx, download.Request{
		URL:    *rawURL,
		Dest:   target,
		SHA256: *sha256sum,
	})
	if err != nil {
		logger.Error().Err(err).Str("url", *rawURL).Msg("download failed")
		return 1
	}

	fmt.Printf("downloaded %s\n", target)
	return 0
}
