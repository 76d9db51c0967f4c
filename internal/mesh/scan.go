package mesh

import (
	"context"
	"math"
	"math/rand"
	"runtime"
	"time"

	"github.com/ungerik/go3d/float64/vec3"
	"golang.org/x/sync/errgroup"

	"github.com/yukistavailable/NeuralTailor/internal/log"
)

// ScanOptions controls scan imitation.
type ScanOptions struct {
	// NumRays is the number of visibility rays cast per face. Zero means 20.
	NumRays int

	// Seed makes the per-face ray directions reproducible.
	Seed int64

	// Parallelism bounds the number of concurrent face workers.
	// Zero means GOMAXPROCS.
	Parallelism int
}

// ScanStats reports the outcome of a scan imitation pass.
type ScanStats struct {
	FacesRemoved int           `json:"faces_removed"`
	FacesTotal   int           `json:"faces_total"`
	Elapsed      time.Duration `json:"-"`
	ElapsedSec   float64       `json:"elapsed_sec"`
}

// relative tolerance on the blocker distance before the camera surface
const hitTol = 1e-5

// ScanImitation imitates a multi-camera 3D scan of the target garment: faces
// not visible from a surrounding camera surface are removed, as a real scan
// would miss them behind the body or garment folds. Obstacles (the body mesh)
// occlude but are not scanned themselves. Returns the visible sub-mesh.
func ScanImitation(ctx context.Context, target *Mesh, obstacles []*Mesh, opts ScanOptions) (*Mesh, ScanStats, error) {
	start := time.Now()
	if opts.NumRays <= 0 {
		opts.NumRays = 20
	}
	workers := opts.Parallelism
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	camera := cameraSurface(target, obstacles)

	visible := make([]bool, len(target.Faces))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for f := range target.Faces {
		f := f
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			rng := rand.New(rand.NewSource(opts.Seed + int64(f)))
			visible[f] = faceVisible(target, obstacles, camera, f, opts.NumRays, rng)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, ScanStats{}, err
	}

	out := &Mesh{Points: target.Points}
	for f, face := range target.Faces {
		if visible[f] {
			out.Faces = append(out.Faces, face)
		}
	}

	stats := ScanStats{
		FacesRemoved: len(target.Faces) - len(out.Faces),
		FacesTotal:   len(target.Faces),
		Elapsed:      time.Since(start),
	}
	stats.ElapsedSec = stats.Elapsed.Seconds()
	logger := log.WithComponent("mesh")
	logger.Debug().Str("event", "mesh.scan_imitation").
		Int("faces_removed", stats.FacesRemoved).Int("faces_total", stats.FacesTotal).
		Dur("elapsed", stats.Elapsed).Msg("scan imitation finished")
	return out, stats, nil
}

// cameraSurface builds the open box the scanner cameras sit on: the combined
// bounding box scaled 1.2 on the ground plane and 1.5 vertically, with the
// top and bottom faces removed so rays escaping up or down count as misses.
func cameraSurface(target *Mesh, obstacles []*Mesh) *Mesh {
	low, high := target.Bounds()
	for _, o := range obstacles {
		ol, oh := o.Bounds()
		for i := 0; i < 3; i++ {
			low[i] = math.Min(low[i], ol[i])
			high[i] = math.Max(high[i], oh[i])
		}
	}

	center := vec3.T{(low[0] + high[0]) / 2, (low[1] + high[1]) / 2, (low[2] + high[2]) / 2}
	half := vec3.T{
		(high[0] - low[0]) / 2 * 1.2,
		(high[1] - low[1]) / 2 * 1.5,
		(high[2] - low[2]) / 2 * 1.2,
	}
	// flat scenes still need walls on every side
	for i := 0; i < 3; i++ {
		half[i] = math.Max(half[i], 1)
	}

	// 8 corners, lower ring then upper ring
	var corners [8]vec3.T
	for i := 0; i < 8; i++ {
		sx, sy, sz := -1.0, -1.0, -1.0
		if i&1 != 0 {
			sx = 1
		}
		if i&2 != 0 {
			sz = 1
		}
		if i&4 != 0 {
			sy = 1
		}
		corners[i] = vec3.T{center[0] + sx*half[0], center[1] + sy*half[1], center[2] + sz*half[2]}
	}

	m := &Mesh{Points: corners[:]}
	quad := func(a, b, c, d int) {
		m.Faces = append(m.Faces, [3]int{a, b, c}, [3]int{a, c, d})
	}
	quad(0, 1, 5, 4) // -z wall
	quad(3, 2, 6, 7) // +z wall
	quad(0, 2, 6, 4) // -x wall
	quad(1, 3, 7, 5) // +x wall
	return m
}

// faceVisible casts rays from the face centroid in uniform sphere directions.
// The face is visible when some ray reaches the camera surface with nothing
// in front of it.
func faceVisible(target *Mesh, obstacles []*Mesh, camera *Mesh, f, numRays int, rng *rand.Rand) bool {
	origin := target.FaceCentroid(f)
	for r := 0; r < numRays; r++ {
		dir := sphereDirection(rng)

		tCam, ok := camera.FirstHit(origin, dir, 0)
		if !ok {
			continue // escaped through the open top or bottom
		}
		limit := tCam * (1 - hitTol)
		minT := tCam * hitTol

		if target.AnyHit(origin, dir, minT, limit) {
			continue
		}
		blocked := false
		for _, o := range obstacles {
			if o.AnyHit(origin, dir, 0, limit) {
				blocked = true
				break
			}
		}
		if !blocked {
			return true
		}
	}
	return false
}

// sphereDirection draws a uniform unit direction with the Marsaglia
// normal-vector method.
func sphereDirection(rng *rand.Rand) vec3.T {
	for {
		x1 := 2*rng.Float64() - 1
		x2 := 2*rng.Float64() - 1
		s := x1*x1 + x2*x2
		if s >= 1 {
			continue
		}
		root := math.Sqrt(1 - s)
		return vec3.T{2 * x1 * root, 2 * x2 * root, 1 - 2*s}
	}
}
