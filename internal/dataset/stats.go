package dataset

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"
)

// Standardization holds per-channel shift and scale for feature
// normalization. Applied as (x - shift) / scale.
type Standardization struct {
	Shift []float64 `json:"shift"`
	Scale []float64 `json:"scale"`
}

// ComputeStats derives per-channel mean and standard deviation from a batch
// of feature rows. Channels with zero spread get scale 1 so standardization
// stays invertible.
func ComputeStats(rows [][]float64) (Standardization, error) {
	if len(rows) == 0 {
		return Standardization{}, fmt.Errorf("dataset: no rows to compute stats from")
	}
	channels := len(rows[0])
	col := make([]float64, len(rows))

	s := Standardization{
		Shift: make([]float64, channels),
		Scale: make([]float64, channels),
	}
	for c := 0; c < channels; c++ {
		for r, row := range rows {
			if len(row) != channels {
				return Standardization{}, fmt.Errorf("dataset: row %d has %d channels, want %d", r, len(row), channels)
			}
			col[r] = row[c]
		}
		mean, std := stat.MeanStdDev(col, nil)
		if math.IsNaN(std) || std < 1e-9 {
			std = 1
		}
		s.Shift[c] = mean
		s.Scale[c] = std
	}
	return s, nil
}

// Apply standardizes rows in place.
func (s Standardization) Apply(rows [][]float64) {
	for _, row := range rows {
		for c := range row {
			row[c] = (row[c] - s.Shift[c]) / s.Scale[c]
		}
	}
}

// Invert undoes the standardization in place.
func (s Standardization) Invert(rows [][]float64) {
	for _, row := range rows {
		for c := range row {
			row[c] = row[c]*s.Scale[c] + s.Shift[c]
		}
	}
}

// PadVector returns the standardized image of the all-zero padding row:
// the value padding takes after standardization is applied.
func (s Standardization) PadVector() []float64 {
	out := make([]float64, len(s.Shift))
	for c := range out {
		out[c] = -s.Shift[c] / s.Scale[c]
	}
	return out
}
