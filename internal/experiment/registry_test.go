package experiment

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/yukistavailable/NeuralTailor/internal/config"
	"github.com/yukistavailable/NeuralTailor/internal/dataset"
)

func openTestRegistry(t *testing.T) *Registry {
	t.Helper()
	r, err := Open(config.RegistryConfig{Path: filepath.Join(t.TempDir(), "runs.sqlite")})
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })
	return r
}

func TestRegistryNewRunAndGet(t *testing.T) {
	r := openTestRegistry(t)
	ctx := context.Background()

	cfg := RunConfig{
		Dataset:       "tee_2300",
		MaxPanelLen:   14,
		MaxPatternLen: 23,
		SampleCount:   2000,
		Standardization: &dataset.Standardization{
			Shift: []float64{0, 0, 0, 0},
			Scale: []float64{1, 1, 1, 1},
		},
	}
	run, err := r.NewRun(ctx, "stitch_model", "baseline", cfg)
	require.NoError(t, err)
	require.NotEmpty(t, run.ID)
	require.Equal(t, StatusRunning, run.Status)
	require.DirExists(t, r.ArtifactsDir(run.ID))

	got, err := r.Get(ctx, run.ID)
	require.NoError(t, err)
	require.Equal(t, "stitch_model", got.Project)
	require.Equal(t, "baseline", got.Name)
	require.Equal(t, cfg, got.Config)
	require.Nil(t, got.Summary)
}

func TestRegistryGetUnknown(t *testing.T) {
	r := openTestRegistry(t)

	_, err := r.Get(context.Background(), "no-such-run")
	require.ErrorIs(t, err, ErrRunNotFound)
}

func TestRegistryLogMetricAndFetch(t *testing.T) {
	r := openTestRegistry(t)
	ctx := context.Background()

	run, err := r.NewRun(ctx, "p", "n", RunConfig{})
	require.NoError(t, err)

	require.NoError(t, r.LogMetric(ctx, run.ID, "loss", 0, 1.5))
	require.NoError(t, r.LogMetric(ctx, run.ID, "loss", 1, 0.9))
	require.NoError(t, r.LogMetric(ctx, run.ID, "recall", 0, 0.4))

	points, err := r.Metrics(ctx, run.ID, "loss")
	require.NoError(t, err)
	require.Len(t, points, 2)
	require.Equal(t, 0, points[0].Step)
	require.InDelta(t, 1.5, points[0].Value, 1e-12)
	require.Equal(t, 1, points[1].Step)
	require.InDelta(t, 0.9, points[1].Value, 1e-12)

	all, err := r.Metrics(ctx, run.ID, "")
	require.NoError(t, err)
	require.Len(t, all, 3)

	require.ErrorIs(t, r.LogMetric(ctx, "no-such-run", "loss", 0, 1), ErrRunNotFound)
	_, err = r.Metrics(ctx, "no-such-run", "")
	require.ErrorIs(t, err, ErrRunNotFound)
}

func TestRegistryFinish(t *testing.T) {
	r := openTestRegistry(t)
	ctx := context.Background()

	run, err := r.NewRun(ctx, "p", "n", RunConfig{})
	require.NoError(t, err)

	summary := map[string]float64{"stitch_recall": 0.93, "panel_accuracy": 0.99}
	require.NoError(t, r.Finish(ctx, run.ID, StatusFinished, summary))

	got, err := r.Get(ctx, run.ID)
	require.NoError(t, err)
	require.Equal(t, StatusFinished, got.Status)
	require.Equal(t, summary, got.Summary)

	require.Error(t, r.Finish(ctx, run.ID, "paused", nil))
	require.ErrorIs(t, r.Finish(ctx, "no-such-run", StatusFailed, nil), ErrRunNotFound)
}

func TestRegistryList(t *testing.T) {
	r := openTestRegistry(t)
	ctx := context.Background()

	a, err := r.NewRun(ctx, "alpha", "first", RunConfig{})
	require.NoError(t, err)
	_, err = r.NewRun(ctx, "beta", "other", RunConfig{})
	require.NoError(t, err)
	b, err := r.NewRun(ctx, "alpha", "second", RunConfig{})
	require.NoError(t, err)

	runs, err := r.List(ctx, "alpha")
	require.NoError(t, err)
	require.Len(t, runs, 2)
	ids := []string{runs[0].ID, runs[1].ID}
	require.Contains(t, ids, a.ID)
	require.Contains(t, ids, b.ID)

	all, err := r.List(ctx, "")
	require.NoError(t, err)
	require.Len(t, all, 3)
}

func TestRegistryBestByMetric(t *testing.T) {
	r := openTestRegistry(t)
	ctx := context.Background()

	low, err := r.NewRun(ctx, "p", "low", RunConfig{})
	require.NoError(t, err)
	high, err := r.NewRun(ctx, "p", "high", RunConfig{})
	require.NoError(t, err)

	// only the value at the highest step counts
	require.NoError(t, r.LogMetric(ctx, low.ID, "loss", 0, 9.0))
	require.NoError(t, r.LogMetric(ctx, low.ID, "loss", 5, 0.2))
	require.NoError(t, r.LogMetric(ctx, high.ID, "loss", 0, 0.1))
	require.NoError(t, r.LogMetric(ctx, high.ID, "loss", 5, 0.8))

	best, value, err := r.BestByMetric(ctx, "p", "loss", "min")
	require.NoError(t, err)
	require.Equal(t, low.ID, best.ID)
	require.InDelta(t, 0.2, value, 1e-12)

	best, value, err = r.BestByMetric(ctx, "p", "loss", "max")
	require.NoError(t, err)
	require.Equal(t, high.ID, best.ID)
	require.InDelta(t, 0.8, value, 1e-12)

	_, _, err = r.BestByMetric(ctx, "p", "loss", "median")
	require.Error(t, err)
	_, _, err = r.BestByMetric(ctx, "p", "no-such-metric", "min")
	require.ErrorIs(t, err, ErrRunNotFound)
}
