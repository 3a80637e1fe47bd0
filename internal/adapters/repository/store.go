// Package repository persists the roster, interaction history and
// development actions behind a driver-neutral Store.
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/ninahq/nina/internal/domain/model"
	"github.com/ninahq/nina/pkg/metrics"
)

// Driver names.
const (
	DriverMemory    = "memory"
	DriverSQLite    = "sqlite"
	DriverFirestore = "firestore"
)

// Counts summarises stored records.
type Counts struct {
	Individuals  int `json:"individuals"`
	Tracked      int `json:"tracked"`
	Interactions int `json:"interactions"`
	Actions      int `json:"actions"`
}

// Store provides read/write access to the roster and its history.
//
// List methods return records in insertion order; callers rely on this as
// the roster order for stable sorting.
type Store interface {
	ListIndividuals(ctx context.Context) ([]model.Individual, error)
	// GetIndividual returns ErrNotFound for unknown ids.
	GetIndividual(ctx context.Context, id string) (model.Individual, error)
	// FindIndividualByEmail matches case-insensitively and returns ErrNotFound on a miss.
	FindIndividualByEmail(ctx context.Context, email string) (model.Individual, error)
	// UpsertIndividual inserts or replaces by ID, keeping the original position.
	UpsertIndividual(ctx context.Context, ind model.Individual) error

	ListInteractions(ctx context.Context, individualID string) ([]model.Interaction, error)
	UpsertInteraction(ctx context.Context, it model.Interaction) error

	ListActions(ctx context.Context, individualID string) ([]model.DevelopmentAction, error)
	UpsertAction(ctx context.Context, a model.DevelopmentAction) error

	Count(ctx context.Context) (Counts, error)
	Close() error
}

// Ledger records one-shot operations.
type Ledger interface {
	// ConsumeBootstrap marks the bootstrap operation as used by email.
	// Every call after the first returns ErrBootstrapRetired.
	ConsumeBootstrap(ctx context.Context, email string) error
}

// observe records latency and failures of one datastore operation.
// Misses and retired bootstraps are not counted as errors.
func observe(driver, op string, start time.Time, err error) {
	metrics.RecordRepositoryQueryLatency(driver, op, float64(time.Since(start).Microseconds())/1000)
	if err != nil && !errors.Is(err, ErrNotFound) && !errors.Is(err, ErrBootstrapRetired) {
		metrics.RecordRepositoryError(driver, op)
		metrics.RecordErrorByComponent("repository", op)
	}
}
