package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"
)

func findMetric(t *testing.T, name string) *dto.MetricFamily {
	t.Helper()
	families, err := prometheus.DefaultGatherer.Gather()
	require.NoError(t, err)
	for _, fam := range families {
		if fam.GetName() == name {
			return fam
		}
	}
	return nil
}

func counterValue(fam *dto.MetricFamily, labels map[string]string) float64 {
	for _, m := range fam.GetMetric() {
		match := true
		for _, lp := range m.GetLabel() {
			if want, ok := labels[lp.GetName()]; ok && want != lp.GetValue() {
				match = false
				break
			}
		}
		if match {
			return m.GetCounter().GetValue()
		}
	}
	return 0
}

func TestIncStage(t *testing.T) {
	IncStage("sim", OutcomeOK)
	IncStage("sim", OutcomeOK)
	IncStage("sim", OutcomeFail)
	IncStage("", OutcomeFail)

	fam := findMetric(t, "neuraltailor_sim_stage_total")
	require.NotNil(t, fam)
	require.GreaterOrEqual(t, counterValue(fam, map[string]string{"stage": "sim", "outcome": "ok"}), 2.0)
	require.GreaterOrEqual(t, counterValue(fam, map[string]string{"stage": "unknown", "outcome": "fail"}), 1.0)
}

func TestObserveStage(t *testing.T) {
	ObserveStage("scan", 0.5)
	ObserveStage("scan", 1.5)

	fam := findMetric(t, "neuraltailor_sim_stage_duration_seconds")
	require.NotNil(t, fam)
	for _, m := range fam.GetMetric() {
		for _, lp := range m.GetLabel() {
			if lp.GetValue() == "scan" {
				require.GreaterOrEqual(t, m.GetHistogram().GetSampleCount(), uint64(2))
				return
			}
		}
	}
	t.Fatal("scan histogram not found")
}

func TestIncStageRetry(t *testing.T) {
	IncStageRetry("render")
	fam := findMetric(t, "neuraltailor_sim_stage_retries_total")
	require.NotNil(t, fam)
	require.GreaterOrEqual(t, counterValue(fam, map[string]string{"stage": "render"}), 1.0)
}
