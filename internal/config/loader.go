package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Loader handles configuration loading with precedence ENV > File > Defaults.
type Loader struct {
	configPath string
	version    string
}

// NewLoader creates a new configuration loader. configPath may be empty, in
// which case only defaults and environment variables apply.
func NewLoader(configPath, version string) *Loader {
	return &Loader{configPath: configPath, version: version}
}

// Load loads configuration in strict validated order:
// set defaults -> parse file (strict) -> apply env -> validate.
func (l *Loader) Load() (AppConfig, error) {
	cfg := Defaults()

	if l.configPath != "" {
		if err := l.mergeFile(&cfg); err != nil {
			return AppConfig{}, fmt.Errorf("config file %s: %w", l.configPath, err)
		}
	}

	l.mergeEnv(&cfg)

	if err := Validate(cfg); err != nil {
		return AppConfig{}, err
	}
	return cfg, nil
}

// Defaults returns the built-in configuration.
func Defaults() AppConfig {
	return AppConfig{
		DataDir:      "./data",
		DatasetsRoot: "./datasets",
		Listen:       ":8080",
		LogLevel:     "info",
		Sample: SampleConfig{
			PointCount: 2000,
			Seed:       1,
		},
		Sim: SimConfig{
			OutputTimeout:    5 * time.Minute,
			DatapointTimeout: 15 * time.Minute,
			MaxRetries:       2,
			RetryBackoff:     2 * time.Second,
			ScanImitation:    ScanConfig{Enabled: true, NumRays: 20},
		},
		Cache: CacheConfig{Backend: "badger"},
		Queue: QueueConfig{
			Backend:           "memory",
			RedisAddr:         "localhost:6379",
			VisibilityTimeout: 10 * time.Minute,
		},
		API: APIConfig{
			RateLimit:  60,
			RateWindow: time.Minute,
		},
		Download: DownloadConfig{
			AllowedHosts: []string{"zenodo.org"},
			RatePerSec:   4,
			Burst:        8,
			MaxRetries:   4,
			RetryBackoff: time.Second,
		},
		Telemetry: TelemetryConfig{
			Exporter:    "grpc",
			SampleRate:  0.1,
			Environment: "development",
		},
	}
}

// mergeFile overlays the YAML config file onto cfg. Unknown keys are rejected.
func (l *Loader) mergeFile(cfg *AppConfig) error {
	data, err := os.ReadFile(l.configPath) // #nosec G304 -- operator-provided path
	if err != nil {
		return err
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("strict yaml decode: %w", err)
	}
	return nil
}

// mergeEnv overlays NT_* environment variables onto cfg.
func (l *Loader) mergeEnv(cfg *AppConfig) {
	cfg.DataDir = ParseString("NT_DATA_DIR", cfg.DataDir)
	cfg.DatasetsRoot = ParseString("NT_DATASETS_ROOT", cfg.DatasetsRoot)
	cfg.Listen = ParseString("NT_LISTEN", cfg.Listen)
	cfg.LogLevel = ParseString("NT_LOG_LEVEL", cfg.LogLevel)
	cfg.DropDir = ParseString("NT_DROP_DIR", cfg.DropDir)

	cfg.Sample.PointCount = ParseInt("NT_SAMPLE_POINTS", cfg.Sample.PointCount)
	cfg.Sample.Seed = ParseInt64("NT_SAMPLE_SEED", cfg.Sample.Seed)

	cfg.Sim.Command = ParseStringSlice("NT_SIM_COMMAND", cfg.Sim.Command)
	cfg.Sim.OutputTimeout = ParseDuration("NT_SIM_OUTPUT_TIMEOUT", cfg.Sim.OutputTimeout)
	cfg.Sim.DatapointTimeout = ParseDuration("NT_SIM_DATAPOINT_TIMEOUT", cfg.Sim.DatapointTimeout)
	cfg.Sim.Parallelism = ParseInt("NT_SIM_PARALLELISM", cfg.Sim.Parallelism)
	cfg.Sim.MaxRetries = ParseInt("NT_SIM_MAX_RETRIES", cfg.Sim.MaxRetries)
	cfg.Sim.RetryBackoff = ParseDuration("NT_SIM_RETRY_BACKOFF", cfg.Sim.RetryBackoff)
	cfg.Sim.Force = ParseBool("NT_SIM_FORCE", cfg.Sim.Force)
	cfg.Sim.ScanImitation.Enabled = ParseBool("NT_SCAN_ENABLED", cfg.Sim.ScanImitation.Enabled)
	cfg.Sim.ScanImitation.NumRays = ParseInt("NT_SCAN_NUM_RAYS", cfg.Sim.ScanImitation.NumRays)

	cfg.Cache.Backend = ParseString("NT_CACHE_BACKEND", cfg.Cache.Backend)
	cfg.Cache.Path = ParseString("NT_CACHE_PATH", cfg.Cache.Path)

	cfg.Queue.Backend = ParseString("NT_QUEUE_BACKEND", cfg.Queue.Backend)
	cfg.Queue.RedisAddr = ParseString("NT_QUEUE_REDIS_ADDR", cfg.Queue.RedisAddr)
	cfg.Queue.RedisPassword = ParseString("NT_QUEUE_REDIS_PASSWORD", cfg.Queue.RedisPassword)
	cfg.Queue.RedisDB = ParseInt("NT_QUEUE_REDIS_DB", cfg.Queue.RedisDB)
	cfg.Queue.VisibilityTimeout = ParseDuration("NT_QUEUE_VISIBILITY_TIMEOUT", cfg.Queue.VisibilityTimeout)

	cfg.Registry.Path = ParseString("NT_REGISTRY_PATH", cfg.Registry.Path)

	cfg.API.RateLimit = ParseInt("NT_API_RATE_LIMIT", cfg.API.RateLimit)
	cfg.API.RateWindow = ParseDuration("NT_API_RATE_WINDOW", cfg.API.RateWindow)

	cfg.Download.AllowedHosts = ParseStringSlice("NT_DOWNLOAD_ALLOWED_HOSTS", cfg.Download.AllowedHosts)
	cfg.Download.RatePerSec = ParseFloat("NT_DOWNLOAD_RATE", cfg.Download.RatePerSec)
	cfg.Download.Burst = ParseInt("NT_DOWNLOAD_BURST", cfg.Download.Burst)

	cfg.Telemetry.Enabled = ParseBool("NT_OTEL_ENABLED", cfg.Telemetry.Enabled)
	cfg.Telemetry.Exporter = ParseString("NT_OTEL_EXPORTER", cfg.Telemetry.Exporter)
	cfg.Telemetry.Endpoint = ParseString("NT_OTEL_ENDPOINT", cfg.Telemetry.Endpoint)
	cfg.Telemetry.SampleRate = ParseFloat("NT_OTEL_SAMPLE_RATE", cfg.Telemetry.SampleRate)
	cfg.Telemetry.Environment = ParseString("NT_OTEL_ENVIRONMENT", cfg.Telemetry.Environment)
}

// RegistryPath resolves the experiment registry database location.
func (c AppConfig) RegistryPath() string {
	if c.Registry.Path != "" {
		return c.Registry.Path
	}
	return filepath.Join(c.DataDir, "experiments.db")
}

// CachePath resolves the sample cache location.
func (c AppConfig) CachePath() string {
	if c.Cache.Path != "" {
		return c.Cache.Path
	}
	return filepath.Join(c.DataDir, "sample-cache")
}
