package dataset

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

const validSpecJSON = `{
	"pattern": {
		"panels": {
			"front": {
				"translation": [0, 0, 10],
				"rotation": [0, 0, 0],
				"vertices": [[0, 0], [20, 0], [20, 20], [0, 20]],
				"edges": [
					{"endpoints": [0, 1]},
					{"endpoints": [1, 2]},
					{"endpoints": [2, 3]},
					{"endpoints": [3, 0]}
				]
			}
		},
		"stitches": []
	},
	"properties": {
		"curvature_coords": "relative",
		"normalize_panel_translation": false,
		"units_in_meter": 100
	}
}`

const cubeOBJ = `v -1 -1 -1
v 1 -1 -1
v 1 1 -1
v -1 1 -1
v -1 -1 1
v 1 -1 1
v 1 1 1
v -1 1 1
f 1 2 3 4
f 5 6 7 8
f 1 2 6 5
f 4 3 7 8
f 1 4 8 5
f 2 3 7 6
`

// writeDatapoint creates a complete datapoint folder under root.
func writeDatapoint(t *testing.T, root, name string) {
	t.Helper()
	dir := filepath.Join(root, name)
	require.NoError(t, os.MkdirAll(dir, 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "specification.json"), []byte(validSpecJSON), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, name+"_sim.obj"), []byte(cubeOBJ), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, name+"_scan_imitation.obj"), []byte(cubeOBJ), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "camera_front.png"), []byte{0x89, 'P', 'N', 'G'}, 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "camera_back.png"), []byte{0x89, 'P', 'N', 'G'}, 0o600))
}

func writeDataset(t *testing.T, names ...string) string {
	t.Helper()
	root := t.TempDir()
	for _, name := range names {
		writeDatapoint(t, root, name)
	}
	props := &Properties{Name: "test_set", Size: len(names), RandomSeed: 1}
	require.NoError(t, props.Save(filepath.Join(root, PropertiesFilename)))
	return root
}
