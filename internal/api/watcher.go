package api

import (
	"context"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/yukistavailable/NeuralTailor/internal/dataset"
	"github.com/yukistavailable/NeuralTailor/internal/fsutil"
	"github.com/yukistavailable/NeuralTailor/internal/log"
	"github.com/yukistavailable/NeuralTailor/internal/metrics"
	"github.com/yukistavailable/NeuralTailor/internal/recovery"
)

const (
	defaultDebounce = 2 * time.Second

	// predictionSuffix marks tensor dumps in the drop folder.
	predictionSuffix = "_prediction.json"
)

// Watcher reacts to filesystem changes: datapoint creation or removal under
// the datasets root triggers a debounced index rescan, and prediction dumps
// landing in the drop folder are recovered into the output folder.
type Watcher struct {
	// Index is rescanned on dataset changes.
	Index *Index

	// DropDir receives prediction tensor dumps; empty disables recovery.
	DropDir string

	// OutDir receives recovered patterns. Empty means <DropDir>/recovered.
	OutDir string

	// Debounce delays the rescan after a burst of events. Zero means 2s.
	Debounce time.Duration

	// RecoverOpts parameterizes dump recovery.
	RecoverOpts recovery.Options
}

// Run watches until ctx ends.
func (w *Watcher) Run(ctx context.Context) error {
	logger := log.WithComponent("watcher")

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer func() { _ = watcher.Close() }()

	if err := watcher.Add(w.Index.Root()); err != nil {
		return err
	}
	// fsnotify is not recursive; dataset dirs are watched individually so
	// datapoint creation and removal is seen too
	w.watchDatasets(watcher)
	if w.DropDir != "" {
		if err := watcher.Add(w.DropDir); err != nil {
			return err
		}
	}

	debounce := w.Debounce
	if debounce <= 0 {
		debounce = defaultDebounce
	}
	// the timer starts armed so changes racing the watch setup are picked
	// up by an initial reconciling rescan; dataset events re-arm it
	timer := time.NewTimer(debounce)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			if err := w.Index.Rescan(ctx); err != nil && ctx.Err() == nil {
				logger.Warn().Err(err).Msg("debounced rescan failed")
			}
			w.watchDatasets(watcher)
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if w.DropDir != "" && filepath.Dir(event.Name) == filepath.Clean(w.DropDir) {
				if event.Op&(fsnotify.Create|fsnotify.Write) != 0 {
					w.maybeRecover(ctx, event.Name)
				}
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Remove|fsnotify.Rename) != 0 {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(debounce)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn().Err(err).Msg("fsnotify watcher error")
		}
	}
}

// watchDatasets (re)adds every known dataset dir; adding twice is a no-op.
func (w *Watcher) watchDatasets(watcher *fsnotify.Watcher) {
	logger := log.WithComponent("watcher")
	for _, ds := range w.Index.Datasets() {
		if err := watcher.Add(ds.Path); err != nil {
			logger.Warn().Err(err).
				Str(log.FieldDataset, ds.Name).Msg("dataset dir not watchable")
		}
	}
}

// maybeRecover runs pattern recovery for a dropped prediction dump.
func (w *Watcher) maybeRecover(_ context.Context, path string) {
	if !strings.HasSuffix(filepath.Base(path), predictionSuffix) {
		return
	}
	logger := log.WithComponent("watcher")

	// symlinks dropped into the folder must not read outside it
	confined, err := fsutil.ConfineRelPath(w.DropDir, filepath.Base(path))
	if err != nil {
		logger.Warn().Err(err).Str(log.FieldPath, path).Msg("dropped file escapes the drop folder")
		return
	}

	dump, err := recovery.LoadDump(confined)
	if err != nil {
		// writes are not atomic on the sender side; a later Write event
		// retries the parse
		logger.Debug().Err(err).Str(log.FieldPath, path).Msg("dump not readable yet")
		return
	}
	if dump.Name == "" {
		dump.Name = strings.TrimSuffix(filepath.Base(path), predictionSuffix)
	}

	res, err := recovery.Recover(dump, w.RecoverOpts)
	if err != nil {
		metrics.RecoveriesTotal.WithLabelValues(metrics.OutcomeFail).Inc()
		logger.Error().Err(err).Str(log.FieldDatapoint, dump.Name).Msg("recovery failed")
		return
	}

	outDir := w.OutDir
	if outDir == "" {
		outDir = filepath.Join(w.DropDir, "recovered")
	}
	err = dataset.SavePredictions(outDir, "", []dataset.Prediction{{
		Name:          dump.Name,
		Spec:          res.Spec,
		SkippedPanels: res.SkippedPanels,
	}})
	if err != nil {
		metrics.RecoveriesTotal.WithLabelValues(metrics.OutcomeFail).Inc()
		logger.Error().Err(err).Str(log.FieldDatapoint, dump.Name).Msg("recovered pattern not saved")
		return
	}

	metrics.RecoveriesTotal.WithLabelValues(metrics.OutcomeOK).Inc()
	logger.Info().Str("event", "watcher.recovered").Str(log.FieldDatapoint, dump.Name).
		Int("stitches", len(res.Stitches)).Int("ambiguous", len(res.Ambiguous)).
		Msg("prediction recovered")
}
