package dataset

import (
	"fmt"
	"io"
	"path/filepath"

	"github.com/yukistavailable/NeuralTailor/internal/fsutil"
	"github.com/yukistavailable/NeuralTailor/internal/log"
	"github.com/yukistavailable/NeuralTailor/internal/pattern"
	"github.com/yukistavailable/NeuralTailor/internal/pattern/draw"
)

// Prediction is one recovered pattern ready to be written out.
type Prediction struct {
	Name string
	Spec *pattern.Spec

	// SkippedPanels lists empty decoded panels, recorded for inspection.
	SkippedPanels []string
}

// SavePredictions writes predicted patterns under
// <runDir>/<section>/<name>/: the specification plus an SVG preview, each
// written atomically.
func SavePredictions(runDir, section string, preds []Prediction) error {
	base := filepath.Join(runDir, section)
	logger := log.WithComponent("dataset")

	for _, pred := range preds {
		outDir, err := pred.Spec.Save(base, pred.Name, pattern.SaveOptions{
			ToSubfolder: true,
			Tag:         "_predicted_",
		})
		if err != nil {
			return fmt.Errorf("prediction %s: %w", pred.Name, err)
		}

		svgPath := filepath.Join(outDir, "pattern.svg")
		err = fsutil.WriteFileAtomic(svgPath, func(w io.Writer) error {
			return draw.Render(w, pred.Spec, draw.Options{WithStitches: true})
		})
		if err != nil {
			return fmt.Errorf("prediction %s: %w", pred.Name, err)
		}
		logger.Debug().Str("event", "dataset.prediction_saved").
			Str(log.FieldDatapoint, pred.Name).Str(log.FieldSection, section).
			Msg("prediction written")
	}
	return nil
}
