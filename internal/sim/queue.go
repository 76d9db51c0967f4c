package sim

import (
	"context"
	"fmt"

	"github.com/yukistavailable/NeuralTailor/internal/config"
)

// Queue hands datapoint names to workers. Pop blocks until an item is
// available or the context ends; popped items stay tracked until Ack so a
// crashed worker's items can be requeued.
type Queue interface {
	Push(ctx context.Context, item string) error
	Pop(ctx context.Context) (string, error)
	Ack(ctx context.Context, item string) error
	Len(ctx context.Context) (int, error)
	Close() error
}

// NewQueue builds the configured queue backend.
func NewQueue(cfg config.QueueConfig) (Queue, error) {
	switch cfg.Backend {
	case "", "memory":
		return NewMemoryQueue(), nil
	case "redis":
		return NewRedisQueue(cfg)
	default:
		return nil, fmt.Errorf("sim: unknown queue backend %q", cfg.Backend)
	}
}
