// Package config loads toolkit configuration with the precedence
// ENV > YAML file > defaults.
package config

import "time"

// AppConfig is the root configuration for the daemon and the CLIs.
type AppConfig struct {
	// DataDir holds everything the toolkit owns: the experiment registry
	// database, the sample cache and run artifact directories.
	DataDir string `yaml:"data_dir"`

	// DatasetsRoot is the folder containing garment datasets, one directory
	// per dataset with a dataset_properties.json inside.
	DatasetsRoot string `yaml:"datasets_root"`

	// Listen is the HTTP listen address of the daemon.
	Listen string `yaml:"listen"`

	// LogLevel overrides the zerolog level ("debug", "info", ...).
	LogLevel string `yaml:"log_level"`

	// DropDir is watched for incoming prediction tensor dumps. Empty
	// disables the drop-folder watcher.
	DropDir string `yaml:"drop_dir"`

	Sample    SampleConfig    `yaml:"sample"`
	Sim       SimConfig       `yaml:"sim"`
	Cache     CacheConfig     `yaml:"cache"`
	Queue     QueueConfig     `yaml:"queue"`
	Registry  RegistryConfig  `yaml:"registry"`
	API       APIConfig       `yaml:"api"`
	Download  DownloadConfig  `yaml:"download"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// SampleConfig controls point-cloud sampling of garment meshes.
type SampleConfig struct {
	PointCount int   `yaml:"point_count"`
	Seed       int64 `yaml:"seed"`
}

// SimConfig controls the batch simulation engine.
type SimConfig struct {
	// Command is the external simulator invocation. The datapoint spec path
	// is appended as the final argument.
	Command []string `yaml:"command"`

	// OutputTimeout bounds the wait for the simulator's output file.
	OutputTimeout time.Duration `yaml:"output_timeout"`

	// DatapointTimeout bounds the full per-datapoint pipeline.
	DatapointTimeout time.Duration `yaml:"datapoint_timeout"`

	// Parallelism bounds concurrent datapoints. 0 means GOMAXPROCS.
	Parallelism int `yaml:"parallelism"`

	MaxRetries   int           `yaml:"max_retries"`
	RetryBackoff time.Duration `yaml:"retry_backoff"`

	// Force re-runs stages even when outputs are up to date.
	Force bool `yaml:"force"`

	ScanImitation ScanConfig `yaml:"scan_imitation"`
}

// ScanConfig controls the scan-imitation stage.
type ScanConfig struct {
	Enabled bool `yaml:"enabled"`
	NumRays int  `yaml:"num_rays"`
}

// CacheConfig selects the point-cloud sample cache backend.
type CacheConfig struct {
	// Backend is "badger" or "none".
	Backend string `yaml:"backend"`
	Path    string `yaml:"path"`
}

// QueueConfig selects the simulation work queue backend.
type QueueConfig struct {
	// Backend is "memory" or "redis".
	Backend string `yaml:"backend"`

	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`

	// VisibilityTimeout is how long a popped entry may stay in the
	// processing list before it is considered stale and requeued.
	VisibilityTimeout time.Duration `yaml:"visibility_timeout"`
}

// RegistryConfig locates the experiment registry database.
type RegistryConfig struct {
	Path string `yaml:"path"`
}

// APIConfig tunes the HTTP surface.
type APIConfig struct {
	RateLimit  int           `yaml:"rate_limit"`
	RateWindow time.Duration `yaml:"rate_window"`
}

// DownloadConfig controls the dataset bundle fetcher.
type DownloadConfig struct {
	AllowedHosts []string      `yaml:"allowed_hosts"`
	RatePerSec   float64       `yaml:"rate_per_sec"`
	Burst        int           `yaml:"burst"`
	MaxRetries   int           `yaml:"max_retries"`
	RetryBackoff time.Duration `yaml:"retry_backoff"`
}

// TelemetryConfig controls OTLP trace export.
type TelemetryConfig struct {
	Enabled     bool    `yaml:"enabled"`
	Exporter    string  `yaml:"exporter"` // "grpc" or "http"
	Endpoint    string  `yaml:"endpoint"`
	SampleRate  float64 `yaml:"sample_rate"`
	Environment string  `yaml:"environment"`
}
