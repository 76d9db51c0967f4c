package log

import (
	"io"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Config controls the one-time logger setup. Empty fields fall back to the
// LOG_LEVEL and LOG_SERVICE environment variables, then to info on stdout.
type Config struct {
	Level   string
	Output  io.Writer
	Service string
}

var (
	setup sync.Once
	base  zerolog.Logger
)

// Configure builds the process-wide base logger. Only the first call takes
// effect; later calls and the lazy default are no-ops.
func Configure(cfg Config) {
	setup.Do(func() {
		zerolog.TimeFieldFormat = time.RFC3339
		zerolog.SetGlobalLevel(resolveLevel(cfg.Level))

		out := cfg.Output
		if out == nil {
			out = os.Stdout
		}
		base = zerolog.New(out).With().
			Timestamp().
			Str("service", resolveService(cfg.Service)).
			Logger()
	})
}

func resolveLevel(level string) zerolog.Level {
	for _, candidate := range []string{level, os.Getenv("LOG_LEVEL")} {
		if candidate == "" {
			continue
		}
		if parsed, err := zerolog.ParseLevel(candidate); err == nil {
			return parsed
		}
	}
	return zerolog.InfoLevel
}

func resolveService(service string) string {
	if service != "" {
		return service
	}
	if env := os.Getenv("LOG_SERVICE"); env != "" {
		return env
	}
	return "neuraltailor"
}

func logger() zerolog.Logger {
	Configure(Config{})
	return base
}

// Base returns the configured base logger.
func Base() zerolog.Logger {
	return logger()
}

// WithComponent returns a child logger tagged with the component name.
func WithComponent(component string) zerolog.Logger {
	return logger().With().Str(FieldComponent, component).Logger()
}

// Derive builds a child logger with arbitrary extra fields.
func Derive(build func(*zerolog.Context)) zerolog.Logger {
	ctx := logger().With()
	if build != nil {
		build(&ctx)
	}
	return ctx.Logger()
}
