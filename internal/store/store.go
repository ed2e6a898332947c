package store

import (
	"context"
	"errors"
	"time"

	"github.com/driftstack/driftgate/internal/stats"
)

// ErrNotFound is returned when no snapshot matches a lookup.
var ErrNotFound = errors.New("snapshot not found")

// EnvironmentServing tags snapshots computed over serving traffic.
const EnvironmentServing = "SERVING"

// Snapshot is one ingested statistics record for a dataset slice.
type Snapshot struct {
	ID          string                  `json:"id"`
	Dataset     string                  `json:"dataset"`
	Span        int64                   `json:"span"`
	Version     int64                   `json:"version"`
	Environment string                  `json:"environment,omitempty"`
	Stats       stats.DatasetStatistics `json:"stats"`
	CreatedAt   time.Time               `json:"created_at"`
}

// Store persists statistics snapshots and resolves the control snapshots
// validations compare against.
type Store interface {
	// Put writes a snapshot, replacing any earlier record for the same
	// dataset and span.
	Put(ctx context.Context, snap Snapshot) error

	// Latest returns the snapshot with the highest span for dataset.
	Latest(ctx context.Context, dataset string) (Snapshot, error)

	// BySpan returns the snapshot for an exact dataset span.
	BySpan(ctx context.Context, dataset string, span int64) (Snapshot, error)

	// PreviousSpan returns the snapshot with the greatest span strictly
	// below beforeSpan.
	PreviousSpan(ctx context.Context, dataset string, beforeSpan int64) (Snapshot, error)

	// PreviousVersion returns the latest snapshot of the greatest version
	// strictly below beforeVersion.
	PreviousVersion(ctx context.Context, dataset string, beforeVersion int64) (Snapshot, error)

	// Serving returns the latest snapshot tagged with the serving
	// environment.
	Serving(ctx context.Context, dataset string) (Snapshot, error)

	// List returns up to limit snapshots for dataset, newest span first.
	List(ctx context.Context, dataset string, limit int) ([]Snapshot, error)

	Close() error
}
