// Package quality implements the numeric evaluation metrics for predicted
// sewing patterns: loop closure residuals, stitch precision/recall, shape
// and placement errors and count accuracies.
package quality

import (
	"math"

	"github.com/yukistavailable/NeuralTailor/internal/dataset"
	"github.com/yukistavailable/NeuralTailor/internal/pattern"
)

// padAtol is the per-channel tolerance for matching a row against the
// standardized padding vector.
const padAtol = 1e-2

// IsPadRow reports whether a standardized row matches the padding vector
// within tolerance.
func IsPadRow(row pattern.EdgeRow, pad []float64) bool {
	for c := 0; c < len(row) && c < len(pad); c++ {
		if math.Abs(row[c]-pad[c]) > padAtol {
			return false
		}
	}
	return true
}

// padVector4 extends the standardization pad vector to the 4 edge channels.
// Without stats, padding is plain zeros.
func padVector4(stats *dataset.Standardization) []float64 {
	pad := []float64{0, 0, 0, 0}
	if stats != nil {
		for c, v := range stats.PadVector() {
			if c < 4 {
				pad[c] = v
			}
		}
	}
	return pad
}

// PanelLoopResidual measures how far each panel's edge sequence is from
// closing into a loop: the squared norm of the sum of non-pad edge vectors,
// averaged over all panels. Rows are standardized; the stats locate the
// padding and undo the scaling before summation.
func PanelLoopResidual(panels [][]pattern.EdgeRow, stats *dataset.Standardization) float64 {
	if len(panels) == 0 {
		return 0
	}
	pad := padVector4(stats)

	var total float64
	for _, rows := range panels {
		var sx, sy float64
		for _, row := range rows {
			if IsPadRow(row, pad) {
				continue
			}
			dx, dy := row[0], row[1]
			if stats != nil && len(stats.Scale) >= 2 {
				dx = dx*stats.Scale[0] + stats.Shift[0]
				dy = dy*stats.Scale[1] + stats.Shift[1]
			}
			sx += dx
			sy += dy
		}
		total += sx*sx + sy*sy
	}
	return total / float64(len(panels))
}

// StitchPrecisionRecall compares detected stitch pairs against ground truth,
// order-invariant on both the pair list and the pair sides. A pattern with
// no detected stitches scores zero on both.
func StitchPrecisionRecall(detected, actual [][2]int) (precision, recall float64) {
	if len(detected) == 0 || len(actual) == 0 {
		return 0, 0
	}
	truth := make(map[[2]int]bool, 2*len(actual))
	for _, p := range actual {
		truth[p] = true
		truth[[2]int{p[1], p[0]}] = true
	}
	correct := 0
	for _, p := range detected {
		if truth[p] {
			correct++
		}
	}
	return float64(correct) / float64(len(detected)), float64(correct) / float64(len(actual))
}

// ShapeError is the mean per-edge L2 distance between predicted and ground
// truth panel tensors. Panels are compared position-wise; padding rows count
// like any other row, as the network is trained to reproduce them.
func ShapeError(pred, gt [][]pattern.EdgeRow) float64 {
	var total float64
	var count int
	for p := 0; p < len(pred) && p < len(gt); p++ {
		for e := 0; e < len(pred[p]) && e < len(gt[p]); e++ {
			var d float64
			for c := 0; c < 4; c++ {
				diff := pred[p][e][c] - gt[p][e][c]
				d += diff * diff
			}
			total += math.Sqrt(d)
			count++
		}
	}
	if count == 0 {
		return 0
	}
	return total / float64(count)
}

// PlacementError is the mean L2 distance between predicted and ground truth
// placement vectors (rotations or translations).
func PlacementError(pred, gt [][3]float64) float64 {
	var total float64
	var count int
	for i := 0; i < len(pred) && i < len(gt); i++ {
		var d float64
		for c := 0; c < 3; c++ {
			diff := pred[i][c] - gt[i][c]
			d += diff * diff
		}
		total += math.Sqrt(d)
		count++
	}
	if count == 0 {
		return 0
	}
	return total / float64(count)
}

// nonPadRows counts the rows of a panel that are not padding.
func nonPadRows(rows []pattern.EdgeRow, pad []float64) int {
	n := 0
	for _, row := range rows {
		if !IsPadRow(row, pad) {
			n++
		}
	}
	return n
}

// PanelCountAccuracy is 1 when prediction and ground truth contain the same
// number of non-empty panels, 0 otherwise.
func PanelCountAccuracy(pred, gt [][]pattern.EdgeRow, stats *dataset.Standardization) float64 {
	pad := padVector4(stats)
	count := func(panels [][]pattern.EdgeRow) int {
		n := 0
		for _, rows := range panels {
			if nonPadRows(rows, pad) > 0 {
				n++
			}
		}
		return n
	}
	if count(pred) == count(gt) {
		return 1
	}
	return 0
}

// EdgeCountAccuracy is the fraction of panel positions whose non-pad edge
// counts agree between prediction and ground truth.
func EdgeCountAccuracy(pred, gt [][]pattern.EdgeRow, stats *dataset.Standardization) float64 {
	pad := padVector4(stats)
	n := len(gt)
	if len(pred) < n {
		n = len(pred)
	}
	if n == 0 {
		return 0
	}
	match := 0
	for p := 0; p < n; p++ {
		if nonPadRows(pred[p], pad) == nonPadRows(gt[p], pad) {
			match++
		}
	}
	return float64(match) / float64(n)
}
