package dataset

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/fnv"
	"math"
	"math/rand"
	"runtime"
	"sync"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/ungerik/go3d/float64/vec3"
	"golang.org/x/sync/errgroup"

	"github.com/yukistavailable/NeuralTailor/internal/log"
	"github.com/yukistavailable/NeuralTailor/internal/mesh"
)

// SampleCache stores sampled point clouds in a badger database so repeated
// training runs skip re-sampling. The cache is transparent: a cached result
// is byte-identical to a fresh one.
type SampleCache struct {
	db *badger.DB
}

// OpenSampleCache opens (or creates) the cache at dir.
func OpenSampleCache(dir string) (*SampleCache, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("sample cache: %w", err)
	}
	return &SampleCache{db: db}, nil
}

// Close releases the underlying database.
func (c *SampleCache) Close() error {
	return c.db.Close()
}

func sampleKey(name string, count int, seed int64) []byte {
	return []byte(fmt.Sprintf("%s/samples/%d/%d", name, count, seed))
}

// Get returns the cached point cloud, if present.
func (c *SampleCache) Get(name string, count int, seed int64) ([]vec3.T, bool, error) {
	var buf []byte
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(sampleKey(name, count, seed))
		if err != nil {
			return err
		}
		buf, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	pts, err := decodePoints(buf)
	if err != nil {
		return nil, false, err
	}
	return pts, true, nil
}

// Put stores a point cloud.
func (c *SampleCache) Put(name string, count int, seed int64, pts []vec3.T) error {
	return c.db.Update(func(txn *badger.Txn) error {
		return txn.Set(sampleKey(name, count, seed), encodePoints(pts))
	})
}

// encodePoints packs points as little-endian float32 triples: the precision
// the network consumes anyway.
func encodePoints(pts []vec3.T) []byte {
	buf := make([]byte, 12*len(pts))
	for i, p := range pts {
		for j := 0; j < 3; j++ {
			binary.LittleEndian.PutUint32(buf[i*12+j*4:], math.Float32bits(float32(p[j])))
		}
	}
	return buf
}

func decodePoints(buf []byte) ([]vec3.T, error) {
	if len(buf)%12 != 0 {
		return nil, fmt.Errorf("sample cache: corrupt point buffer of %d bytes", len(buf))
	}
	pts := make([]vec3.T, len(buf)/12)
	for i := range pts {
		for j := 0; j < 3; j++ {
			bits := binary.LittleEndian.Uint32(buf[i*12+j*4:])
			pts[i][j] = float64(math.Float32frombits(bits))
		}
	}
	return pts, nil
}

// Sampler produces per-datapoint surface point clouds, caching results when
// a cache is attached.
type Sampler struct {
	// Cache may be nil; sampling then always reads the geometry.
	Cache *SampleCache

	// PointCount is the number of surface samples per datapoint.
	PointCount int

	// Seed drives the deterministic per-datapoint sampling.
	Seed int64

	// Parallelism bounds concurrent datapoint sampling in SampleAll.
	// Zero means GOMAXPROCS.
	Parallelism int
}

// rngFor derives an independent deterministic stream per datapoint, so the
// result does not depend on sampling order or cache state.
func (s *Sampler) rngFor(name string) *rand.Rand {
	h := fnv.New64a()
	h.Write([]byte(name))
	return rand.New(rand.NewSource(s.Seed ^ int64(h.Sum64())))
}

// Points returns the sampled point cloud for one datapoint. Cached results
// are float32-quantized, so fresh samples are quantized the same way before
// returning.
func (s *Sampler) Points(dp *Datapoint) ([]vec3.T, error) {
	if s.Cache != nil {
		pts, ok, err := s.Cache.Get(dp.Name, s.PointCount, s.Seed)
		if err != nil {
			return nil, err
		}
		if ok {
			return pts, nil
		}
	}

	geo := dp.GeometryPath()
	if geo == "" {
		return nil, fmt.Errorf("datapoint %s: no geometry to sample", dp.Name)
	}
	m, err := mesh.LoadOBJ(geo)
	if err != nil {
		return nil, err
	}
	pts := mesh.SamplePoints(m, s.PointCount, s.rngFor(dp.Name))
	if len(pts) == 0 {
		return nil, fmt.Errorf("datapoint %s: geometry has no sampleable surface", dp.Name)
	}

	quantized, err := decodePoints(encodePoints(pts))
	if err != nil {
		return nil, err
	}
	if s.Cache != nil {
		if err := s.Cache.Put(dp.Name, s.PointCount, s.Seed, quantized); err != nil {
			logger := log.WithComponent("dataset")
			logger.Warn().Err(err).
				Str(log.FieldDatapoint, dp.Name).Msg("failed to cache samples")
		}
	}
	return quantized, nil
}

// SampleAll samples every datapoint with bounded parallelism.
func (s *Sampler) SampleAll(ctx context.Context, dps []Datapoint) (map[string][]vec3.T, error) {
	workers := s.Parallelism
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	var mu sync.Mutex
	out := make(map[string][]vec3.T, len(dps))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := range dps {
		dp := &dps[i]
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			pts, err := s.Points(dp)
			if err != nil {
				return err
			}
			mu.Lock()
			out[dp.Name] = pts
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
