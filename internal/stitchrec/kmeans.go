// Package stitchrec recovers garment stitches from predicted per-edge 3D
// stitch tags: edges sewn together carry near-identical tags, so stitches
// come out of clustering the tag space.
package stitchrec

import (
	"fmt"
	"math/rand"
)

const maxKMeansIters = 100

// kMeans runs Lloyd's algorithm with a seeded random init: centers start at
// k distinct data points. Returns per-point labels and the cluster centers.
func kMeans(data [][]float64, k int, rng *rand.Rand) ([]int, [][]float64, error) {
	n := len(data)
	if k <= 0 || k > n {
		return nil, nil, fmt.Errorf("stitchrec: cannot split %d points into %d clusters", n, k)
	}

	// farthest-point init: a seeded random first center, then repeatedly the
	// point farthest from all chosen centers. Separated clusters each get a
	// center before any cluster gets two.
	centers := make([][]float64, 0, k)
	centers = append(centers, append([]float64(nil), data[rng.Intn(n)]...))
	minDist := make([]float64, n)
	for i, p := range data {
		minDist[i] = sqDist(p, centers[0])
	}
	for len(centers) < k {
		far := 0
		for i := 1; i < n; i++ {
			if minDist[i] > minDist[far] {
				far = i
			}
		}
		centers = append(centers, append([]float64(nil), data[far]...))
		for i, p := range data {
			if d := sqDist(p, centers[len(centers)-1]); d < minDist[i] {
				minDist[i] = d
			}
		}
	}

	labels := make([]int, n)
	for iter := 0; iter < maxKMeansIters; iter++ {
		changed := false
		for i, p := range data {
			best := 0
			bestDist := sqDist(p, centers[0])
			for c := 1; c < k; c++ {
				if d := sqDist(p, centers[c]); d < bestDist {
					best, bestDist = c, d
				}
			}
			if labels[i] != best {
				labels[i] = best
				changed = true
			}
		}
		if !changed && iter > 0 {
			break
		}

		counts := make([]int, k)
		sums := make([][]float64, k)
		for c := range sums {
			sums[c] = make([]float64, len(data[0]))
		}
		for i, p := range data {
			c := labels[i]
			counts[c]++
			for j, v := range p {
				sums[c][j] += v
			}
		}
		for c := 0; c < k; c++ {
			if counts[c] == 0 {
				continue // keep the previous center for an empty cluster
			}
			for j := range sums[c] {
				centers[c][j] = sums[c][j] / float64(counts[c])
			}
		}
	}
	return labels, centers, nil
}

// withinDispersion is the total within-cluster sum of squared distances.
func withinDispersion(data [][]float64, labels []int, centers [][]float64) float64 {
	var w float64
	for i, p := range data {
		w += sqDist(p, centers[labels[i]])
	}
	return w
}

func sqDist(a, b []float64) float64 {
	var d float64
	for i := range a {
		diff := a[i] - b[i]
		d += diff * diff
	}
	return d
}
