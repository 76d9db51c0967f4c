package stitchrec

import (
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/stat"
)

// degenerateSpread is the per-channel spread under which the data counts as
// a single tight cluster.
const degenerateSpread = 1e-6

// GapStatistic selects the number of clusters in data by the Tibshirani gap
// statistic: the within-cluster dispersion of the data is compared against
// uniform reference draws from the data bounding box. The chosen k is the
// smallest with gap(k) >= gap(k+1) - se(k+1), the last candidate when none
// qualifies.
func GapStatistic(data [][]float64, ks []int, nrefs int, rng *rand.Rand) (int, []float64, error) {
	if len(data) == 0 || len(ks) == 0 {
		return 0, nil, fmt.Errorf("stitchrec: gap statistic needs data and candidate ks")
	}
	if nrefs <= 0 {
		nrefs = 10
	}

	low, high := bounds(data)
	if degenerate(low, high) {
		return 1, nil, nil
	}

	gaps := make([]float64, len(ks))
	ses := make([]float64, len(ks))
	refLogs := make([]float64, nrefs)
	for ki, k := range ks {
		labels, centers, err := kMeans(data, k, rng)
		if err != nil {
			return 0, nil, err
		}
		disp := withinDispersion(data, labels, centers)

		for r := 0; r < nrefs; r++ {
			ref := uniformRef(len(data), low, high, rng)
			refLabels, refCenters, err := kMeans(ref, k, rng)
			if err != nil {
				return 0, nil, err
			}
			refLogs[r] = safeLog(withinDispersion(ref, refLabels, refCenters))
		}

		mean, sd := stat.MeanStdDev(refLogs, nil)
		if math.IsNaN(sd) {
			sd = 0
		}
		gaps[ki] = mean - safeLog(disp)
		ses[ki] = sd * math.Sqrt(1+1/float64(nrefs))
	}

	for i := 0; i+1 < len(ks); i++ {
		if gaps[i] >= gaps[i+1]-ses[i+1] {
			return ks[i], gaps, nil
		}
	}
	return ks[len(ks)-1], gaps, nil
}

func bounds(data [][]float64) (low, high []float64) {
	dims := len(data[0])
	low = append([]float64(nil), data[0]...)
	high = append([]float64(nil), data[0]...)
	for _, p := range data[1:] {
		for j := 0; j < dims; j++ {
			low[j] = math.Min(low[j], p[j])
			high[j] = math.Max(high[j], p[j])
		}
	}
	return low, high
}

func degenerate(low, high []float64) bool {
	for j := range low {
		if high[j]-low[j] > degenerateSpread {
			return false
		}
	}
	return true
}

func uniformRef(n int, low, high []float64, rng *rand.Rand) [][]float64 {
	out := make([][]float64, n)
	for i := range out {
		p := make([]float64, len(low))
		for j := range p {
			p[j] = low[j] + rng.Float64()*(high[j]-low[j])
		}
		out[i] = p
	}
	return out
}

// safeLog guards against the zero dispersion of fully separated clusters.
func safeLog(v float64) float64 {
	return math.Log(math.Max(v, 1e-12))
}
