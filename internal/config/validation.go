package config

import (
	"errors"
	"fmt"
)

// ErrInvalidConfig wraps all validation failures so callers can branch on it.
var ErrInvalidConfig = errors.New("invalid configuration")

// Validate checks semantic constraints after loading. It is separated from
// Load so callers can validate hand-built configurations too.
func Validate(cfg AppConfig) error {
	var problems []string

	if cfg.DataDir == "" {
		problems = append(problems, "data_dir must not be empty")
	}
	if cfg.DatasetsRoot == "" {
		problems = append(problems, "datasets_root must not be empty")
	}
	if cfg.Sample.PointCount <= 0 {
		problems = append(problems, "sample.point_count must be positive")
	}
	if cfg.Sim.Parallelism < 0 {
		problems = append(problems, "sim.parallelism must not be negative")
	}
	if cfg.Sim.MaxRetries < 0 {
		problems = append(problems, "sim.max_retries must not be negative")
	}
	if cfg.Sim.ScanImitation.NumRays <= 0 {
		problems = append(problems, "sim.scan_imitation.num_rays must be positive")
	}
	switch cfg.Cache.Backend {
	case "badger", "none":
	default:
		problems = append(problems, fmt.Sprintf("cache.backend %q unknown (badger, none)", cfg.Cache.Backend))
	}
	switch cfg.Queue.Backend {
	case "memory", "redis":
	default:
		problems = append(problems, fmt.Sprintf("queue.backend %q unknown (memory, redis)", cfg.Queue.Backend))
	}
	if cfg.Queue.Backend == "redis" && cfg.Queue.RedisAddr == "" {
		problems = append(problems, "queue.redis_addr required for redis backend")
	}
	if cfg.API.RateLimit <= 0 {
		problems = append(problems, "api.rate_limit must be positive")
	}
	if cfg.API.RateWindow <= 0 {
		problems = append(problems, "api.rate_window must be positive")
	}
	if cfg.Telemetry.Enabled {
		switch cfg.Telemetry.Exporter {
		case "grpc", "http":
		default:
			problems = append(problems, fmt.Sprintf("telemetry.exporter %q unknown (grpc, http)", cfg.Telemetry.Exporter))
		}
		if cfg.Telemetry.Endpoint == "" {
			problems = append(problems, "telemetry.endpoint required when telemetry is enabled")
		}
	}
	if cfg.Telemetry.SampleRate < 0 || cfg.Telemetry.SampleRate > 1 {
		problems = append(problems, "telemetry.sample_rate must be within [0, 1]")
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %d problem(s): %v", ErrInvalidConfig, len(problems), problems)
	}
	return nil
}
