package sim

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/yukistavailable/NeuralTailor/internal/config"
	"github.com/yukistavailable/NeuralTailor/internal/dataset"
	"github.com/yukistavailable/NeuralTailor/internal/log"
	"github.com/yukistavailable/NeuralTailor/internal/mesh"
	"github.com/yukistavailable/NeuralTailor/internal/metrics"
	"github.com/yukistavailable/NeuralTailor/internal/pattern"
)

// Job is one dataset production batch.
type Job struct {
	// Root is the dataset root directory; one subfolder per datapoint.
	Root string

	// TemplatesDir resolves the template file names of the properties.
	TemplatesDir string

	// Props drives the batch (templates, size, seed) and receives failure
	// lists and scan stats. Saved atomically after every datapoint.
	Props *dataset.Properties

	// Obstacles are meshes occluding the scan imitation (the body).
	Obstacles []string
}

// Stats summarizes an engine run.
type Stats struct {
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
}

// Engine produces datapoints: instantiate, simulate, scan-imitate.
type Engine struct {
	Sim   Simulator
	Queue Queue
	Cfg   config.SimConfig

	mu sync.Mutex // guards Props mutation and saving
}

// task is one datapoint's work description.
type task struct {
	name     string
	template string
	seed     int64
}

// Run processes the whole batch with bounded workers. Per-datapoint failures
// are recorded in the properties and do not abort the batch.
func (e *Engine) Run(ctx context.Context, job Job) (Stats, error) {
	logger := log.WithComponent("sim")

	if len(job.Props.Templates) == 0 {
		return Stats{}, fmt.Errorf("sim: no templates in dataset properties")
	}
	tasks, err := e.buildTasks(job)
	if err != nil {
		return Stats{}, err
	}

	templates, err := loadTemplates(job)
	if err != nil {
		return Stats{}, err
	}

	byName := make(map[string]task, len(tasks))
	for _, t := range tasks {
		byName[t.name] = t
		if err := e.Queue.Push(ctx, t.name); err != nil {
			return Stats{}, err
		}
	}
	metrics.QueueDepth.WithLabelValues("sim").Set(float64(len(tasks)))

	workers := e.Cfg.Parallelism
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	var stats Stats
	var statsMu sync.Mutex
	var done atomic.Int64
	total := int64(len(tasks))

	g, gctx := errgroup.WithContext(ctx)
	// derived from gctx so a worker error unblocks peers stuck in Pop
	popCtx, stopPopping := context.WithCancel(gctx)
	defer stopPopping()
	for w := 0; w < workers; w++ {
		g.Go(func() error {
			for {
				name, err := e.Queue.Pop(popCtx)
				if err != nil {
					if popCtx.Err() != nil && gctx.Err() == nil {
						return nil // batch drained
					}
					return err
				}
				t := byName[name]
				outcome := e.process(gctx, job, t, templates[t.template])
				if ackErr := e.Queue.Ack(gctx, name); ackErr != nil {
					logger.Warn().Err(ackErr).Str(log.FieldDatapoint, name).Msg("queue ack failed")
				}

				statsMu.Lock()
				switch outcome {
				case metrics.OutcomeOK:
					stats.Completed++
				case metrics.OutcomeSkipped:
					stats.Skipped++
				default:
					stats.Failed++
				}
				statsMu.Unlock()

				metrics.QueueDepth.WithLabelValues("sim").Dec()
				if done.Add(1) == total {
					stopPopping()
					return nil
				}
				if gctx.Err() != nil {
					return gctx.Err()
				}
			}
		})
	}
	if err := g.Wait(); err != nil {
		return stats, err
	}

	logger.Info().Str("event", "sim.batch_done").
		Int("completed", stats.Completed).Int("failed", stats.Failed).
		Int("skipped", stats.Skipped).Msg("simulation batch finished")
	return stats, nil
}

// buildTasks derives the datapoint work list: Size datapoints spread evenly
// over the templates, deterministically named and seeded.
func (e *Engine) buildTasks(job Job) ([]task, error) {
	if job.Props.Size <= 0 {
		return nil, fmt.Errorf("sim: dataset size must be positive")
	}
	perTemplate := job.Props.Size / len(job.Props.Templates)
	if perTemplate == 0 {
		perTemplate = 1
	}

	var tasks []task
	seq := int64(0)
	for _, tmpl := range job.Props.Templates {
		base := pattern.NameFromPath(tmpl)
		for i := 0; i < perTemplate && len(tasks) < job.Props.Size; i++ {
			tasks = append(tasks, task{
				name:     fmt.Sprintf("%s_%04d", base, i),
				template: tmpl,
				seed:     job.Props.RandomSeed + seq,
			})
			seq++
		}
	}
	return tasks, nil
}

func loadTemplates(job Job) (map[string]*pattern.Spec, error) {
	out := make(map[string]*pattern.Spec, len(job.Props.Templates))
	for _, tmpl := range job.Props.Templates {
		spec, err := pattern.Load(filepath.Join(job.TemplatesDir, tmpl))
		if err != nil {
			return nil, fmt.Errorf("template %s: %w", tmpl, err)
		}
		out[tmpl] = spec
	}
	return out, nil
}

// process runs all stages for one datapoint and returns the overall outcome.
func (e *Engine) process(ctx context.Context, job Job, t task, template *pattern.Spec) string {
	logger := log.WithComponent("sim")
	dir := filepath.Join(job.Root, t.name)

	type stage struct {
		name string
		run  func(context.Context) (skipped bool, err error)
	}
	stages := []stage{
		{dataset.StageSim, func(ctx context.Context) (bool, error) {
			specSkipped, err := e.instantiate(dir, t, template)
			if err != nil {
				return false, err
			}
			simSkipped, err := e.simulate(ctx, dir, t.name)
			if err != nil {
				return false, err
			}
			return specSkipped && simSkipped, nil
		}},
	}
	if e.Cfg.ScanImitation.Enabled {
		stages = append(stages, stage{dataset.StageScan, func(ctx context.Context) (bool, error) {
			return e.scanImitate(ctx, job, dir, t)
		}})
	}

	allSkipped := true
	for _, st := range stages {
		start := time.Now()
		skipped, err := e.runWithRetries(ctx, st.name, st.run)
		metrics.ObserveStage(st.name, time.Since(start).Seconds())
		if err != nil {
			metrics.IncStage(st.name, metrics.OutcomeFail)
			logger.Error().Err(err).Str("event", "sim.stage_failed").
				Str(log.FieldStage, st.name).Str(log.FieldDatapoint, t.name).Msg("stage failed")
			e.recordFail(job, st.name, t.name)
			return metrics.OutcomeFail
		}
		if skipped {
			metrics.IncStage(st.name, metrics.OutcomeSkipped)
			continue
		}
		allSkipped = false
		metrics.IncStage(st.name, metrics.OutcomeOK)
		e.clearFail(job, st.name, t.name)
	}
	if allSkipped {
		return metrics.OutcomeSkipped
	}
	return metrics.OutcomeOK
}

// runWithRetries retries a stage with exponential backoff.
func (e *Engine) runWithRetries(ctx context.Context, stage string, run func(context.Context) (bool, error)) (bool, error) {
	backoff := e.Cfg.RetryBackoff
	if backoff <= 0 {
		backoff = time.Second
	}

	var lastErr error
	for attempt := 0; attempt <= e.Cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			metrics.IncStageRetry(stage)
			select {
			case <-ctx.Done():
				return false, ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}

		stageCtx := ctx
		var cancel context.CancelFunc
		if e.Cfg.DatapointTimeout > 0 {
			stageCtx, cancel = context.WithTimeout(ctx, e.Cfg.DatapointTimeout)
		}
		skipped, err := run(stageCtx)
		if cancel != nil {
			cancel()
		}
		if err == nil {
			return skipped, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
	}
	return false, lastErr
}

// instantiate draws a randomized pattern from the template and writes the
// datapoint spec. Skips when the spec already exists and Force is unset.
func (e *Engine) instantiate(dir string, t task, template *pattern.Spec) (bool, error) {
	specPath := filepath.Join(dir, "specification.json")
	if !e.Cfg.Force {
		if _, err := os.Stat(specPath); err == nil {
			return true, nil
		}
	}

	spec, err := template.Clone()
	if err != nil {
		return false, err
	}
	if len(spec.ParameterOrder) > 0 {
		if err := spec.Randomize(rand.New(rand.NewSource(t.seed))); err != nil {
			return false, err
		}
	}
	if _, err := spec.Save(filepath.Dir(dir), t.name, pattern.SaveOptions{ToSubfolder: true}); err != nil {
		return false, err
	}
	return false, nil
}

// simulate runs the external simulator unless its output is already present.
func (e *Engine) simulate(ctx context.Context, dir, name string) (bool, error) {
	output := filepath.Join(dir, name+"_sim.obj")
	if !e.Cfg.Force {
		if info, err := os.Stat(output); err == nil && info.Size() > 0 {
			return true, nil
		}
	}
	return false, e.Sim.Run(ctx, dir, name)
}

// scanImitate produces the scan-imitation mesh from the simulated geometry.
func (e *Engine) scanImitate(ctx context.Context, job Job, dir string, t task) (bool, error) {
	output := filepath.Join(dir, t.name+"_scan_imitation.obj")
	if !e.Cfg.Force {
		if info, err := os.Stat(output); err == nil && info.Size() > 0 {
			return true, nil
		}
	}

	target, err := mesh.LoadOBJ(filepath.Join(dir, t.name+"_sim.obj"))
	if err != nil {
		return false, err
	}
	var obstacles []*mesh.Mesh
	for _, path := range job.Obstacles {
		o, err := mesh.LoadOBJ(path)
		if err != nil {
			return false, err
		}
		obstacles = append(obstacles, o)
	}

	visible, scanStats, err := mesh.ScanImitation(ctx, target, obstacles, mesh.ScanOptions{
		NumRays: e.Cfg.ScanImitation.NumRays,
		Seed:    t.seed,
	})
	if err != nil {
		return false, err
	}
	if err := mesh.SaveOBJ(output, visible); err != nil {
		return false, err
	}

	e.mu.Lock()
	job.Props.RecordScan(t.name, scanStats.FacesRemoved, scanStats.ElapsedSec)
	e.mu.Unlock()
	e.saveProps(job)
	return false, nil
}

func (e *Engine) recordFail(job Job, stage, name string) {
	e.mu.Lock()
	_ = job.Props.AddFail(stage, name)
	e.mu.Unlock()
	e.saveProps(job)
}

func (e *Engine) clearFail(job Job, stage, name string) {
	e.mu.Lock()
	_ = job.Props.ClearFail(stage, name)
	e.mu.Unlock()
	e.saveProps(job)
}

// saveProps persists the dataset properties; failures are logged, not fatal.
func (e *Engine) saveProps(job Job) {
	e.mu.Lock()
	defer e.mu.Unlock()
	path := filepath.Join(job.Root, dataset.PropertiesFilename)
	if err := job.Props.Save(path); err != nil {
		logger := log.WithComponent("sim")
		logger.Warn().Err(err).Str(log.FieldPath, path).
			Msg("failed to save dataset properties")
	}
}
