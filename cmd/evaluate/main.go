// evaluate scores recovered pattern predictions against their ground truth
// dataset and writes a metrics report.
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/yukistavailable/NeuralTailor/internal/config"
	"github.com/yukistavailable/NeuralTailor/internal/dataset"
	ntlog "github.com/yukistavailable/NeuralTailor/internal/log"
	"github.com/yukistavailable/NeuralTailor/internal/pattern"
	"github.com/yukistavailable/NeuralTailor/internal/quality"
	"github.com/yukistavailable/NeuralTailor/internal/version"
)

const predictedSpecFilename = "_predicted_specification.json"

func main() {
	os.Exit(run())
}

func run() int {
	var (
		showVersion = flag.Bool("version", false, "print version and exit")
		configPath  = flag.String("config", "", "path to config file (YAML)")
		predDir     = flag.String("pred", "", "directory of recovered patterns (one subfolder per datapoint)")
		truthRoot   = flag.String("truth", "", "ground truth dataset root")
		reportPath  = flag.String("report", "", "report output path (defaults to <pred>/eval_report.json)")
	)
	flag.Parse()

	if *showVersion {
		fmt.Println(version.Version)
		return 0
	}
	if *predDir == "" || *truthRoot == "" {
		fmt.Fprintln(os.Stderr, "Error: --pred and --truth are required")
		return 2
	}

	cfg, err := config.NewLoader(*configPath, version.Version).Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		return 1
	}
	ntlog.Configure(ntlog.Config{Level: cfg.LogLevel, Service: "evaluate"})
	logger := ntlog.WithComponent("evaluate")

	points, err := dataset.Discover(*truthRoot, dataset.DiscoverOptions{})
	if err != nil {
		logger.Error().Err(err).Msg("ground truth dataset unreadable")
		return 1
	}
	truth := make(map[string]dataset.Datapoint, len(points))
	for _, dp := range points {
		truth[dp.Name] = dp
	}

	entries, err := os.ReadDir(*predDir)
	if err != nil {
		logger.Error().Err(err).Msg("predictions directory unreadable")
		return 1
	}

	report := quality.NewReport()
	evaluated, failed := 0, 0
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		name := entry.Name()
		gt, ok := truth[name]
		if !ok {
			logger.Warn().Str(ntlog.FieldDatapoint, name).Msg("no ground truth datapoint, skipping")
			continue
		}
		predPath := filepath.Join(*predDir, name, predictedSpecFilename)
		if err := evaluateOne(report, predPath, gt.SpecPath); err != nil {
			logger.Error().Err(err).Str(ntlog.FieldDatapoint, name).Msg("evaluation failed")
			failed++
			continue
		}
		evaluated++
	}
	if evaluated == 0 {
		logger.Error().Msg("no predictions evaluated")
		return 1
	}

	out := *reportPath
	if out == "" {
		out = filepath.Join(*predDir, "eval_report.json")
	}
	if err := report.Save(out); err != nil {
		logger.Error().Err(err).Msg("report not saved")
		return 1
	}

	fmt.Printf("evaluated %d patterns (%d failed)\n", evaluated, failed)
	for name, value := range report.Metrics() {
		fmt.Printf("  %-24s %.4f\n", name, value)
	}
	if failed > 0 {
		return 1
	}
	return 0
}

// evaluateOne encodes prediction and ground truth in a shared tensor shape
// and adds every pattern metric to the report.
func evaluateOne(report *quality.Report, predPath, gtPath string) error {
	pred, err := pattern.Load(predPath)
	if err != nil {
		return err
	}
	gt, err := pattern.Load(gtPath)
	if err != nil {
		return err
	}

	// the stitch id space depends on the padded edge count, so both patterns
	// encode against the larger of the two
	padTo := maxEdgeCount(pred)
	if n := maxEdgeCount(gt); n > padTo {
		padTo = n
	}
	predEnc, err := pred.Encode(pattern.EncodeOptions{PadPanelsTo: padTo})
	if err != nil {
		return err
	}
	gtEnc, err := gt.Encode(pattern.EncodeOptions{PadPanelsTo: padTo})
	if err != nil {
		return err
	}

	report.Add("panel_loop_residual", quality.PanelLoopResidual(predEnc.Panels, nil))
	report.Add("shape_error", quality.ShapeError(predEnc.Panels, gtEnc.Panels))
	report.Add("rotation_error", quality.PlacementError(predEnc.Rotations, gtEnc.Rotations))
	report.Add("translation_error", quality.PlacementError(predEnc.Translations, gtEnc.Translations))
	report.Add("panel_count_accuracy", quality.PanelCountAccuracy(predEnc.Panels, gtEnc.Panels, nil))
	report.Add("edge_count_accuracy", quality.EdgeCountAccuracy(predEnc.Panels, gtEnc.Panels, nil))

	precision, recall := quality.StitchPrecisionRecall(predEnc.Stitches, gtEnc.Stitches)
	report.Add("stitch_precision", precision)
	report.Add("stitch_recall", recall)
	return nil
}

func maxEdgeCount(s *pattern.Spec) int {
	n := 0
	for _, panel := range s.Pattern.Panels {
		if len(panel.Edges) > n {
			n = len(panel.Edges)
		}
	}
	return n
}
