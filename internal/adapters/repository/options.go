package repository

import (
	"time"

	"github.com/ninahq/nina/internal/domain/model"
)

// Option applies a configuration option to the MemoryStore.
type Option func(*MemoryStore)

// WithMetricsUpdateInterval sets the interval for background roster gauge updates.
func WithMetricsUpdateInterval(interval time.Duration) Option {
	return func(s *MemoryStore) {
		if interval > 0 {
			s.metricsUpdateInterval = interval
		}
	}
}

// WithSeed preloads individuals in the given order.
func WithSeed(individuals ...model.Individual) Option {
	return func(s *MemoryStore) {
		for _, ind := range individuals {
			s.putIndividual(ind)
		}
	}
}
