package dataset

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/yukistavailable/NeuralTailor/internal/pattern"
)

func TestSavePredictions(t *testing.T) {
	spec, err := pattern.Decode(strings.NewReader(validSpecJSON))
	require.NoError(t, err)

	runDir := t.TempDir()
	preds := []Prediction{
		{Name: "tee_A", Spec: spec},
		{Name: "tee_B", Spec: spec, SkippedPanels: []string{"panel_3"}},
	}
	require.NoError(t, SavePredictions(runDir, SectionTest, preds))

	for _, name := range []string{"tee_A", "tee_B"} {
		dir := filepath.Join(runDir, "test", name)
		require.FileExists(t, filepath.Join(dir, "_predicted_specification.json"))
		require.FileExists(t, filepath.Join(dir, "pattern.svg"))

		_, err := pattern.Load(filepath.Join(dir, "_predicted_specification.json"))
		require.NoError(t, err)
	}
}
