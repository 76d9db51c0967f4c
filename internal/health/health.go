// Package health implements liveness and readiness checks for the daemon:
// the process is alive, the dataset root is reachable, stores are open and
// the initial dataset scan has completed.
package health

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Status grades a component check.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// CheckResult is the outcome of one component check.
type CheckResult struct {
	Status  Status `json:"status"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Checker is one named component check.
type Checker interface {
	Name() string
	Check(ctx context.Context) CheckResult
}

// HealthResponse is the liveness payload.
type HealthResponse struct {
	Status    Status                 `json:"status"`
	Version   string                 `json:"version,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	Checks    map[string]CheckResult `json:"checks,omitempty"`
}

// ReadinessResponse is the readiness payload.
type ReadinessResponse struct {
	Ready     bool                   `json:"ready"`
	Status    Status                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Checks    map[string]CheckResult `json:"checks,omitempty"`
}

// Manager aggregates component checks.
type Manager struct {
	version string

	mu       sync.RWMutex
	checkers []Checker
}

// NewManager builds an empty health manager.
func NewManager(version string) *Manager {
	return &Manager{version: version}
}

// RegisterChecker adds a component check.
func (m *Manager) RegisterChecker(checker Checker) {
	m.mu.Lock()
	m.checkers = append(m.checkers, checker)
	m.mu.Unlock()
}

func (m *Manager) runChecks(ctx context.Context) (map[string]CheckResult, Status) {
	m.mu.RLock()
	checkers := append([]Checker(nil), m.checkers...)
	m.mu.RUnlock()

	if len(checkers) == 0 {
		return nil, StatusHealthy
	}

	results := make(map[string]CheckResult, len(checkers))
	overall := StatusHealthy
	for _, checker := range checkers {
		result := checker.Check(ctx)
		results[checker.Name()] = result
		switch result.Status {
		case StatusUnhealthy:
			overall = StatusUnhealthy
		case StatusDegraded:
			if overall == StatusHealthy {
				overall = StatusDegraded
			}
		}
	}
	return results, overall
}

// Health is the liveness probe: alive as long as the process responds.
// Verbose includes per-component results.
func (m *Manager) Health(ctx context.Context, verbose bool) HealthResponse {
	resp := HealthResponse{
		Status:    StatusHealthy,
		Version:   m.version,
		Timestamp: time.Now(),
	}
	if verbose {
		checks, overall := m.runChecks(ctx)
		resp.Checks = checks
		resp.Status = overall
	}
	return resp
}

// Ready is the readiness probe: ready only when no component is unhealthy.
func (m *Manager) Ready(ctx context.Context) ReadinessResponse {
	checks, overall := m.runChecks(ctx)
	return ReadinessResponse{
		Ready:     overall != StatusUnhealthy,
		Status:    overall,
		Timestamp: time.Now(),
		Checks:    checks,
	}
}

// DirChecker verifies a directory exists and is writable.
type DirChecker struct {
	CheckName string
	Path      string
}

func (c *DirChecker) Name() string { return c.CheckName }

func (c *DirChecker) Check(_ context.Context) CheckResult {
	info, err := os.Stat(c.Path)
	if err != nil {
		return CheckResult{Status: StatusUnhealthy, Error: err.Error()}
	}
	if !info.IsDir() {
		return CheckResult{Status: StatusUnhealthy, Error: fmt.Sprintf("not a directory: %s", c.Path)}
	}
	probe := filepath.Join(c.Path, ".write_test")
	if err := os.WriteFile(probe, []byte("ok"), 0o600); err != nil {
		return CheckResult{Status: StatusUnhealthy, Error: fmt.Sprintf("not writable: %v", err)}
	}
	_ = os.Remove(probe)
	return CheckResult{Status: StatusHealthy}
}

// FuncChecker adapts a plain function into a Checker.
type FuncChecker struct {
	CheckName string
	Fn        func(ctx context.Context) CheckResult
}

func (c *FuncChecker) Name() string { return c.CheckName }

func (c *FuncChecker) Check(ctx context.Context) CheckResult {
	return c.Fn(ctx)
}

// ScanChecker reports unready until the initial dataset scan completed.
type ScanChecker struct {
	Done func() bool
}

func (c *ScanChecker) Name() string { return "dataset_scan" }

func (c *ScanChecker) Check(_ context.Context) CheckResult {
	if c.Done() {
		return CheckResult{Status: StatusHealthy}
	}
	return CheckResult{Status: StatusUnhealthy, Message: "initial dataset scan pending"}
}
