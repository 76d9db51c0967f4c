package stitchrec

import (
	"math"
	"math/rand"
	"sort"

	"github.com/yukistavailable/NeuralTailor/internal/log"
)

// DefaultTagThreshold separates stitched from free edges by tag norm when no
// free-edge mask is available.
const DefaultTagThreshold = 0.5

// Options controls stitch recovery.
type Options struct {
	// FreeMask marks edges that take part in no stitch. When nil, edges
	// with tag norm below Threshold count as free.
	FreeMask []bool

	// Threshold is the tag-norm cutoff used without a mask.
	// Zero means DefaultTagThreshold.
	Threshold float64

	// NRefs is the reference draw count of the gap statistic. Zero means 10.
	NRefs int

	// Seed makes clustering deterministic.
	Seed int64
}

// Result is the recovered stitch set.
type Result struct {
	// Stitches pairs pattern-level edge ids.
	Stitches [][2]int

	// Ambiguous lists clusters that did not contain exactly two edges;
	// their pairs in Stitches were split greedily by tag distance.
	Ambiguous [][]int
}

// RecoverStitches clusters the non-free edge tags and reads each two-edge
// cluster as one stitch. Tags are indexed by pattern-level edge id.
func RecoverStitches(tags [][3]float64, opts Options) (Result, error) {
	threshold := opts.Threshold
	if threshold == 0 {
		threshold = DefaultTagThreshold
	}

	var active []int
	for i, tag := range tags {
		if opts.FreeMask != nil {
			if !opts.FreeMask[i] {
				active = append(active, i)
			}
			continue
		}
		if norm3(tag) >= threshold {
			active = append(active, i)
		}
	}
	if len(active) < 2 {
		return Result{}, nil
	}

	data := make([][]float64, len(active))
	for i, id := range active {
		data[i] = []float64{tags[id][0], tags[id][1], tags[id][2]}
	}

	ks := make([]int, 0, len(active)/2)
	for k := 1; k <= len(active)/2; k++ {
		ks = append(ks, k)
	}

	rng := rand.New(rand.NewSource(opts.Seed))
	k, _, err := GapStatistic(data, ks, opts.NRefs, rng)
	if err != nil {
		return Result{}, err
	}
	labels, _, err := kMeans(data, k, rng)
	if err != nil {
		return Result{}, err
	}

	clusters := make([][]int, k)
	for i, label := range labels {
		clusters[label] = append(clusters[label], active[i])
	}

	var res Result
	for _, cluster := range clusters {
		switch {
		case len(cluster) < 2:
			if len(cluster) == 1 {
				res.Ambiguous = append(res.Ambiguous, cluster)
			}
		case len(cluster) == 2:
			res.Stitches = append(res.Stitches, [2]int{cluster[0], cluster[1]})
		default:
			res.Ambiguous = append(res.Ambiguous, cluster)
			res.Stitches = append(res.Stitches, pairGreedy(cluster, tags)...)
		}
	}

	sort.Slice(res.Stitches, func(i, j int) bool {
		if res.Stitches[i][0] != res.Stitches[j][0] {
			return res.Stitches[i][0] < res.Stitches[j][0]
		}
		return res.Stitches[i][1] < res.Stitches[j][1]
	})

	if len(res.Ambiguous) > 0 {
		logger := log.WithComponent("stitchrec")
		logger.Debug().Str("event", "stitchrec.ambiguous_clusters").
			Int("clusters", len(res.Ambiguous)).Msg("tag clusters without exactly two edges")
	}
	return res, nil
}

// pairGreedy splits an oversized cluster into pairs, repeatedly taking the
// closest remaining tag pair. A leftover odd edge is dropped.
func pairGreedy(cluster []int, tags [][3]float64) [][2]int {
	remaining := append([]int(nil), cluster...)
	var pairs [][2]int
	for len(remaining) >= 2 {
		bi, bj := 0, 1
		best := math.Inf(1)
		for i := 0; i < len(remaining); i++ {
			for j := i + 1; j < len(remaining); j++ {
				if d := sqDist3(tags[remaining[i]], tags[remaining[j]]); d < best {
					best, bi, bj = d, i, j
				}
			}
		}
		pairs = append(pairs, [2]int{remaining[bi], remaining[bj]})
		// remove bj first so bi stays valid
		remaining = append(remaining[:bj], remaining[bj+1:]...)
		remaining = append(remaining[:bi], remaining[bi+1:]...)
	}
	return pairs
}

func norm3(v [3]float64) float64 {
	return math.Sqrt(v[0]*v[0] + v[1]*v[1] + v[2]*v[2])
}

func sqDist3(a, b [3]float64) float64 {
	var d float64
	for i := 0; i < 3; i++ {
		diff := a[i] - b[i]
		d += diff * diff
	}
	return d
}
