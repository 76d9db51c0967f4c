// validate checks toolkit inputs: a YAML configuration file, a single
// sewing pattern spec or a whole dataset tree.
//
// Usage:
//
//	validate -f config.yaml
//	validate -spec specification.json
//	validate -dataset ./datasets/tee_2300
//
// Exit codes:
//   - 0: Input is valid
//   - 1: Input is invalid (parse or validation error)
//   - 2: Usage error (missing required flag)
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/yukistavailable/NeuralTailor/internal/config"
	"github.com/yukistavailable/NeuralTailor/internal/dataset"
	"github.com/yukistavailable/NeuralTailor/internal/pattern"
	"github.com/yukistavailable/NeuralTailor/internal/version"
)

func main() {
	var file, specFile, datasetRoot string
	var showVersion bool

	flag.StringVar(&file, "file", "", "path to YAML configuration file")
	flag.StringVar(&file, "f", "", "path to YAML configuration file (shorthand)")
	flag.StringVar(&specFile, "spec", "", "path to a pattern specification file")
	flag.StringVar(&datasetRoot, "dataset", "", "path to a dataset root directory")
	flag.BoolVar(&showVersion, "version", false, "print version and exit")
	flag.Parse()

	if showVersion {
		fmt.Println(version.Version)
		os.Exit(0)
	}

	targets := 0
	for _, t := range []string{file, specFile, datasetRoot} {
		if t != "" {
			targets++
		}
	}
	if targets != 1 {
		fmt.Fprintln(os.Stderr, "Error: exactly one of --file, --spec or --dataset is required")
		fmt.Fprintln(os.Stderr, "")
		fmt.Fprintln(os.Stderr, "Usage:")
		fmt.Fprintln(os.Stderr, "  validate -f config.yaml")
		fmt.Fprintln(os.Stderr, "  validate -spec specification.json")
		fmt.Fprintln(os.Stderr, "  validate -dataset ./datasets/tee_2300")
		os.Exit(2)
	}

	switch {
	case file != "":
		os.Exit(validateConfig(file))
	case specFile != "":
		os.Exit(validateSpec(specFile))
	default:
		os.Exit(validateDataset(datasetRoot))
	}
}

func validateConfig(file string) int {
	if _, err := config.NewLoader(file, version.Version).Load(); err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error in %s:\n", file)
		fmt.Fprintf(os.Stderr, "  %v\n", err)
		return 1
	}
	fmt.Printf("✓ %s is valid\n", file)
	return 0
}

func validateSpec(file string) int {
	spec, err := pattern.Load(file)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Pattern error in %s:\n", file)
		fmt.Fprintf(os.Stderr, "  %v\n", err)
		return 1
	}
	issues := spec.Validate()
	if len(issues) > 0 {
		fmt.Fprintf(os.Stderr, "Validation errors in %s:\n", file)
		for _, issue := range issues {
			fmt.Fprintf(os.Stderr, "  %s\n", issue)
		}
		return 1
	}
	fmt.Printf("✓ %s is valid\n", file)
	return 0
}

func validateDataset(root string) int {
	points, err := dataset.Discover(root, dataset.DiscoverOptions{})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Dataset error in %s:\n", root)
		fmt.Fprintf(os.Stderr, "  %v\n", err)
		return 1
	}

	bad := 0
	for i := range points {
		problems := points[i].Validate()
		if len(problems) == 0 {
			continue
		}
		bad++
		fmt.Fprintf(os.Stderr, "%s:\n", points[i].Name)
		for _, p := range problems {
			fmt.Fprintf(os.Stderr, "  %s\n", p)
		}
	}
	if bad > 0 {
		fmt.Fprintf(os.Stderr, "%d of %d datapoints have problems\n", bad, len(points))
		return 1
	}
	fmt.Printf("✓ %s: %d datapoints are valid\n", root, len(points))
	return 0
}
