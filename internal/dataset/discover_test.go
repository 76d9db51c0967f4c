package dataset

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDiscoverFindsDatapoints(t *testing.T) {
	root := writeDataset(t, "tee_B", "tee_A", "skirt_C")
	// a folder without a spec file is not a datapoint
	require.NoError(t, os.MkdirAll(filepath.Join(root, "renders"), 0o750))

	dps, err := Discover(root, DiscoverOptions{})
	require.NoError(t, err)
	require.Len(t, dps, 3)
	require.Equal(t, "skirt_C", dps[0].Name)
	require.Equal(t, "tee_A", dps[1].Name)
	require.Equal(t, "tee_B", dps[2].Name)

	dp := dps[1]
	require.FileExists(t, dp.SpecPath)
	require.Contains(t, dp.SimOBJ, "tee_A_sim.obj")
	require.Contains(t, dp.ScanOBJ, "tee_A_scan_imitation.obj")
	require.Len(t, dp.Renders, 2)
	require.Equal(t, dp.ScanOBJ, dp.GeometryPath())
}

func TestDiscoverExcludeGlobs(t *testing.T) {
	root := writeDataset(t, "tee_A", "tee_B", "skirt_C")

	dps, err := Discover(root, DiscoverOptions{Exclude: []string{"tee_*"}})
	require.NoError(t, err)
	require.Len(t, dps, 1)
	require.Equal(t, "skirt_C", dps[0].Name)

	_, err = Discover(root, DiscoverOptions{Exclude: []string{"[bad"}})
	require.Error(t, err)
}

func TestDatapointValidate(t *testing.T) {
	root := writeDataset(t, "tee_A")
	dps, err := Discover(root, DiscoverOptions{})
	require.NoError(t, err)
	require.Empty(t, dps[0].Validate())
}

func TestDatapointValidateFindsProblems(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "broken")
	require.NoError(t, os.MkdirAll(dir, 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "specification.json"), []byte("{not json"), 0o600))

	dps, err := Discover(root, DiscoverOptions{})
	require.NoError(t, err)
	require.Len(t, dps, 1)

	problems := dps[0].Validate()
	require.Len(t, problems, 3)
	require.Contains(t, problems[0], "unreadable specification")
	require.Contains(t, problems[1], "missing simulated geometry")
	require.Contains(t, problems[2], "missing renders")
}
