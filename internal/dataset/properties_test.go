package dataset

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPropertiesRoundTripUnknownKeys(t *testing.T) {
	raw := `{
		"name": "tee_2300",
		"templates": ["tee_template.json"],
		"body": "f_smpl.obj",
		"size": 2300,
		"random_seed": 10,
		"to_finish": true,
		"sim": {"config": {"max_sim_steps": 1500}, "stats": {"fails": ["tee_7"]}},
		"render": {"stats": {}},
		"data_folder": "tee_2300_folder"
	}`

	var p Properties
	require.NoError(t, json.Unmarshal([]byte(raw), &p))
	require.Equal(t, "tee_2300", p.Name)
	require.Equal(t, 2300, p.Size)
	require.Equal(t, []string{"tee_7"}, p.Sim.Stats.Fails)
	require.JSONEq(t, `1500`, string(p.Sim.Config["max_sim_steps"]))

	out, err := json.Marshal(&p)
	require.NoError(t, err)
	require.Contains(t, string(out), `"data_folder":"tee_2300_folder"`)
}

func TestPropertiesFailBookkeeping(t *testing.T) {
	var p Properties
	require.NoError(t, p.AddFail(StageSim, "tee_9"))
	require.NoError(t, p.AddFail(StageSim, "tee_2"))
	require.NoError(t, p.AddFail(StageSim, "tee_9")) // duplicate
	require.Equal(t, []string{"tee_2", "tee_9"}, p.Sim.Stats.Fails)

	require.NoError(t, p.AddFail(StageRender, "tee_2"))
	require.Equal(t, []string{"tee_2"}, p.Render.Stats.Fails)

	require.NoError(t, p.ClearFail(StageSim, "tee_9"))
	require.Equal(t, []string{"tee_2"}, p.Sim.Stats.Fails)

	require.Error(t, p.AddFail("weird", "tee_1"))
}

func TestPropertiesScanStats(t *testing.T) {
	var p Properties
	p.RecordScan("tee_4", 120, 1.25)
	require.Equal(t, 120, p.Sim.Stats.FacesRemoved["tee_4"])
	require.InDelta(t, 1.25, p.Sim.Stats.ElapsedSec["tee_4"], 1e-12)

	// the scan stage records into the sim section
	require.NoError(t, p.AddFail(StageScan, "tee_4"))
	require.Equal(t, []string{"tee_4"}, p.Sim.Stats.Fails)
}

func TestPropertiesSaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), PropertiesFilename)
	p := &Properties{Name: "set", Size: 5, RandomSeed: 99}
	require.NoError(t, p.AddFail(StageSim, "dp_1"))
	require.NoError(t, p.Save(path))

	again, err := LoadProperties(path)
	require.NoError(t, err)
	require.Equal(t, "set", again.Name)
	require.Equal(t, int64(99), again.RandomSeed)
	require.Equal(t, []string{"dp_1"}, again.Sim.Stats.Fails)
}
