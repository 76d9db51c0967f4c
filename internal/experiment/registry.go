// Package experiment keeps a local registry of training and evaluation runs
// in SQLite: run metadata, logged metric series and per-run artifact folders.
package experiment

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // pure Go driver, no CGO

	"github.com/yukistavailable/NeuralTailor/internal/config"
	"github.com/yukistavailable/NeuralTailor/internal/dataset"
	"github.com/yukistavailable/NeuralTailor/internal/log"
)

// Run statuses.
const (
	StatusRunning  = "running"
	StatusFinished = "finished"
	StatusFailed   = "failed"
)

// ErrRunNotFound is returned when a run id is unknown.
var ErrRunNotFound = errors.New("experiment: run not found")

// RunConfig captures everything needed to reproduce a run: the dataset view
// and the encoding shape the model was trained against.
type RunConfig struct {
	Dataset         string                   `json:"dataset,omitempty"`
	Standardization *dataset.Standardization `json:"standardization,omitempty"`
	MaxPanelLen     int                      `json:"max_panel_len,omitempty"`
	MaxPatternLen   int                      `json:"max_pattern_len,omitempty"`
	SampleCount     int                      `json:"sample_count,omitempty"`
	Extra           map[string]any           `json:"extra,omitempty"`
}

// Run is one registered experiment run.
type Run struct {
	ID        string             `json:"id"`
	Project   string             `json:"project"`
	Name      string             `json:"name"`
	Status    string             `json:"status"`
	CreatedAt time.Time          `json:"created_at"`
	Config    RunConfig          `json:"config"`
	Summary   map[string]float64 `json:"summary,omitempty"`
}

// MetricPoint is one logged value of a metric series.
type MetricPoint struct {
	Key        string    `json:"key"`
	Step       int       `json:"step"`
	Value      float64   `json:"value"`
	RecordedAt time.Time `json:"recorded_at"`
}

// Registry stores runs in a SQLite database next to an artifacts tree.
type Registry struct {
	db        *sql.DB
	artifacts string
}

// Open opens (and if needed creates) the run registry. WAL mode and a busy
// timeout are applied to every pooled connection through the DSN.
func Open(cfg config.RegistryConfig) (*Registry, error) {
	if cfg.Path == "" {
		return nil, errors.New("experiment: registry path not configured")
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o750); err != nil {
		return nil, fmt.Errorf("experiment: create registry dir: %w", err)
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(ON)", cfg.Path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("experiment: open registry: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("experiment: ping registry: %w", err)
	}

	r := &Registry{
		db:        db,
		artifacts: filepath.Join(filepath.Dir(cfg.Path), "artifacts"),
	}
	if err := r.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("experiment: migrate registry: %w", err)
	}
	return r, nil
}

// Close releases the database.
func (r *Registry) Close() error {
	return r.db.Close()
}

func (r *Registry) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		project TEXT NOT NULL,
		name TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'running' CHECK(status IN ('running', 'finished', 'failed')),
		created_at_ms INTEGER NOT NULL,
		config_json TEXT NOT NULL DEFAULT '{}',
		summary_json TEXT
	);

	CREATE TABLE IF NOT EXISTS run_metrics (
		run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
		key TEXT NOT NULL,
		step INTEGER NOT NULL,
		value REAL NOT NULL,
		recorded_at_ms INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_runs_project ON runs(project, created_at_ms);
	CREATE INDEX IF NOT EXISTS idx_run_metrics_run_key ON run_metrics(run_id, key, step);
	`
	_, err := r.db.Exec(schema)
	return err
}

// NewRun registers a fresh run and creates its artifacts folder.
func (r *Registry) NewRun(ctx context.Context, project, name string, cfg RunConfig) (*Run, error) {
	run := &Run{
		ID:        uuid.NewString(),
		Project:   project,
		Name:      name,
		Status:    StatusRunning,
		CreatedAt: time.Now().UTC().Truncate(time.Millisecond),
		Config:    cfg,
	}

	cfgJSON, err := json.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("experiment: encode run config: %w", err)
	}
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO runs (id, project, name, status, created_at_ms, config_json) VALUES (?, ?, ?, ?, ?, ?)`,
		run.ID, run.Project, run.Name, run.Status, run.CreatedAt.UnixMilli(), string(cfgJSON))
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(r.ArtifactsDir(run.ID), 0o750); err != nil {
		return nil, fmt.Errorf("experiment: create artifacts dir: %w", err)
	}

	logger := log.WithComponent("experiment")
	logger.Info().Str("event", "experiment.run_created").
		Str(log.FieldRunID, run.ID).Str("project", project).Str("name", name).Msg("run registered")
	return run, nil
}

// ArtifactsDir returns the run's artifact folder path.
func (r *Registry) ArtifactsDir(runID string) string {
	return filepath.Join(r.artifacts, runID)
}

// LogMetric appends a metric value to the run's series.
func (r *Registry) LogMetric(ctx context.Context, runID, key string, step int, value float64) error {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO run_metrics (run_id, key, step, value, recorded_at_ms)
		 SELECT id, ?, ?, ?, ? FROM runs WHERE id = ?`,
		key, step, value, time.Now().UnixMilli(), runID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrRunNotFound
	}
	return nil
}

// Finish marks a run as finished or failed and stores its summary metrics.
func (r *Registry) Finish(ctx context.Context, runID, status string, summary map[string]float64) error {
	if status != StatusFinished && status != StatusFailed {
		return fmt.Errorf("experiment: invalid final status %q", status)
	}
	var summaryJSON sql.NullString
	if summary != nil {
		data, err := json.Marshal(summary)
		if err != nil {
			return fmt.Errorf("experiment: encode summary: %w", err)
		}
		summaryJSON = sql.NullString{String: string(data), Valid: true}
	}

	res, err := r.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, summary_json = ? WHERE id = ?`,
		status, summaryJSON, runID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrRunNotFound
	}
	return nil
}

// Get loads one run by id.
func (r *Registry) Get(ctx context.Context, runID string) (*Run, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, project, name, status, created_at_ms, config_json, summary_json FROM runs WHERE id = ?`,
		runID)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRunNotFound
	}
	return run, err
}

// List returns the runs of a project, newest first. An empty project lists
// everything.
func (r *Registry) List(ctx context.Context, project string) ([]*Run, error) {
	query := `SELECT id, project, name, status, created_at_ms, config_json, summary_json FROM runs`
	args := []any{}
	if project != "" {
		query += ` WHERE project = ?`
		args = append(args, project)
	}
	query += ` ORDER BY created_at_ms DESC, id`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// Metrics returns a run's logged series, optionally filtered to one key.
func (r *Registry) Metrics(ctx context.Context, runID, key string) ([]MetricPoint, error) {
	if _, err := r.Get(ctx, runID); err != nil {
		return nil, err
	}

	query := `SELECT key, step, value, recorded_at_ms FROM run_metrics WHERE run_id = ?`
	args := []any{runID}
	if key != "" {
		query += ` AND key = ?`
		args = append(args, key)
	}
	query += ` ORDER BY key, step`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var points []MetricPoint
	for rows.Next() {
		var p MetricPoint
		var recordedMs int64
		if err := rows.Scan(&p.Key, &p.Step, &p.Value, &recordedMs); err != nil {
			return nil, err
		}
		p.RecordedAt = time.UnixMilli(recordedMs).UTC()
		points = append(points, p)
	}
	return points, rows.Err()
}

// BestByMetric finds the project run with the best final value of a metric.
// Mode is "min" or "max"; the final value is the one at the highest step.
func (r *Registry) BestByMetric(ctx context.Context, project, key, mode string) (*Run, float64, error) {
	var order string
	switch mode {
	case "min":
		order = "ASC"
	case "max":
		order = "DESC"
	default:
		return nil, 0, fmt.Errorf("experiment: invalid mode %q", mode)
	}

	query := fmt.Sprintf(`
	SELECT r.id, m.value FROM runs r
	JOIN run_metrics m ON m.run_id = r.id
	WHERE r.project = ? AND m.key = ?
	  AND m.step = (SELECT MAX(step) FROM run_metrics WHERE run_id = r.id AND key = ?)
	ORDER BY m.value %s, r.created_at_ms DESC
	LIMIT 1`, order)

	var runID string
	var value float64
	err := r.db.QueryRowContext(ctx, query, project, key, key).Scan(&runID, &value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, 0, ErrRunNotFound
	}
	if err != nil {
		return nil, 0, err
	}

	run, err := r.Get(ctx, runID)
	if err != nil {
		return nil, 0, err
	}
	return run, value, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*Run, error) {
	var run Run
	var createdMs int64
	var cfgJSON string
	var summaryJSON sql.NullString
	if err := row.Scan(&run.ID, &run.Project, &run.Name, &run.Status, &createdMs, &cfgJSON, &summaryJSON); err != nil {
		return nil, err
	}
	run.CreatedAt = time.UnixMilli(createdMs).UTC()
	if err := json.Unmarshal([]byte(cfgJSON), &run.Config); err != nil {
		return nil, fmt.Errorf("experiment: decode run config: %w", err)
	}
	if summaryJSON.Valid {
		if err := json.Unmarshal([]byte(summaryJSON.String), &run.Summary); err != nil {
			return nil, fmt.Errorf("experiment: decode run summary: %w", err)
		}
	}
	return &run, nil
}
