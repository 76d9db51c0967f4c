package sim

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/yukistavailable/NeuralTailor/internal/dataset"
	"github.com/yukistavailable/NeuralTailor/internal/fsutil"
	"github.com/yukistavailable/NeuralTailor/internal/log"
)

// RendersDirname is the per-dataset folder collecting all render images.
const RendersDirname = "renders"

// GatherRenders copies every datapoint's render images into a flat
// <root>/renders folder, prefixing each file with the datapoint name.
// Existing files with matching size are left alone. Returns the number of
// files copied.
func GatherRenders(root string) (int, error) {
	logger := log.WithComponent("sim")

	points, err := dataset.Discover(root, dataset.DiscoverOptions{})
	if err != nil {
		return 0, err
	}

	outDir := filepath.Join(root, RendersDirname)
	if err := os.MkdirAll(outDir, 0o750); err != nil {
		return 0, err
	}

	copied := 0
	for _, dp := range points {
		for _, render := range dp.Renders {
			dst := filepath.Join(outDir, dp.Name+"_"+filepath.Base(render))
			same, err := sameSize(render, dst)
			if err != nil {
				return copied, err
			}
			if same {
				continue
			}
			data, err := os.ReadFile(render)
			if err != nil {
				return copied, fmt.Errorf("read render %s: %w", render, err)
			}
			if err := fsutil.WriteBytesAtomic(dst, data); err != nil {
				return copied, err
			}
			copied++
		}
	}

	logger.Info().Str("event", "sim.renders_gathered").
		Int("copied", copied).Str(log.FieldPath, outDir).Msg("render images gathered")
	return copied, nil
}

// sameSize reports whether dst exists with the same size as src.
func sameSize(src, dst string) (bool, error) {
	srcInfo, err := os.Stat(src)
	if err != nil {
		return false, err
	}
	dstInfo, err := os.Stat(dst)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return dstInfo.Size() == srcInfo.Size(), nil
}
