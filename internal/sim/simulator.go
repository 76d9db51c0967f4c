// Package sim drives batch dataset production: template instantiation,
// external garment simulation, scan imitation and render gathering per
// datapoint, with bounded parallelism and retries.
package sim

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/yukistavailable/NeuralTailor/internal/log"
)

// Simulator runs the external garment simulation for one datapoint.
type Simulator interface {
	// Run simulates the datapoint in dir and returns once the simulated
	// geometry exists or the simulation failed.
	Run(ctx context.Context, dir, name string) error
}

// CommandSimulator spawns a configured external command per datapoint and
// waits for the expected output file to appear.
type CommandSimulator struct {
	// Command is the executable to spawn. Args receive the datapoint
	// directory and name appended.
	Command string
	Args    []string

	// OutputTimeout bounds the wait for the output file after the command
	// exits. Zero means 30s.
	OutputTimeout time.Duration
}

// Run spawns the simulator command and waits for <dir>/<name>_sim.obj.
func (s *CommandSimulator) Run(ctx context.Context, dir, name string) error {
	logger := log.WithComponent("sim")

	args := append(append([]string(nil), s.Args...), dir, name)
	cmd := exec.CommandContext(ctx, s.Command, args...) // #nosec G204 -- operator-configured command
	cmd.Stdout = nil
	cmd.Stderr = nil
	start := time.Now()
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("simulator command: %w", err)
	}

	timeout := s.OutputTimeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	output := filepath.Join(dir, name+"_sim.obj")
	if err := WaitForFile(ctx, logger, output, timeout); err != nil {
		return fmt.Errorf("simulator output: %w", err)
	}
	logger.Debug().Str("event", "sim.command_done").Str(log.FieldDatapoint, name).
		Dur("elapsed", time.Since(start)).Msg("simulation finished")
	return nil
}

// WaitForFile waits for a file to appear and reach a non-zero size using
// fsnotify instead of sleep polling.
func WaitForFile(ctx context.Context, logger zerolog.Logger, path string, timeout time.Duration) error {
	// fast path
	if info, err := os.Stat(path); err == nil && info.Size() > 0 {
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("fsnotify.NewWatcher: %w", err)
	}
	defer func() {
		_ = watcher.Close()
	}()

	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watch directory %s: %w", dir, err)
	}

	targetName := filepath.Base(path)
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	// re-check after adding the watch: the file may have appeared in between
	if info, err := os.Stat(path); err == nil && info.Size() > 0 {
		return nil
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			return fmt.Errorf("timeout waiting for file %s", targetName)
		case event, ok := <-watcher.Events:
			if !ok {
				return fmt.Errorf("watcher channel closed")
			}
			if filepath.Base(event.Name) != targetName {
				continue
			}
			if event.Op&fsnotify.Create == fsnotify.Create || event.Op&fsnotify.Write == fsnotify.Write {
				// Create may fire before data is flushed
				if info, err := os.Stat(path); err == nil && info.Size() > 0 {
					return nil
				}
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return fmt.Errorf("watcher error channel closed")
			}
			logger.Warn().Err(err).Msg("fsnotify watcher error")
		}
	}
}
