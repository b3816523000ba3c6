package freezestore

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/frostline/repofreeze/internal/model"
)

// Common errors returned by the freeze store.
var (
	// ErrOverlap is returned when a new freeze window intersects an existing
	// active freeze for the same (installation, repository).
	ErrOverlap = errors.New("an active freeze already covers this time period")

	// ErrNotFound is returned when no freeze record matches the query.
	ErrNotFound = errors.New("freeze record not found")
)

// ListFilter narrows List queries. Zero values mean "no filter".
type ListFilter struct {
	InstallationID int64
	Repository     string
	ActiveOnly     bool
}

// Store defines the persistence interface for freeze records.
type Store interface {
	// Create validates the record's window against existing active freezes on
	// the same (installation, repository) and inserts it atomically. Returns
	// ErrOverlap without writing when the windows intersect.
	Create(ctx context.Context, rec *model.FreezeRecord) error

	// Get returns a single freeze record by id, or ErrNotFound.
	Get(ctx context.Context, id uuid.UUID) (*model.FreezeRecord, error)

	// List returns freeze records matching the filter, newest first.
	List(ctx context.Context, filter ListFilter) ([]*model.FreezeRecord, error)

	// UpdateStatus transitions a record's status. When status is ended, the
	// ended_at timestamp and ended_by actor are recorded as well.
	UpdateStatus(ctx context.Context, id uuid.UUID, status model.Status, endedBy *string) (*model.FreezeRecord, error)

	// Delete removes a record by id. Used only by retention tooling.
	Delete(ctx context.Context, id uuid.UUID) error

	// GetActive returns the current active freeze for the pair, or ErrNotFound.
	GetActive(ctx context.Context, installationID int64, repository string) (*model.FreezeRecord, error)

	// ListActive returns every active freeze whose window covers now, across
	// all installations, ordered by start time.
	ListActive(ctx context.Context, now time.Time) ([]*model.FreezeRecord, error)

	// ListScheduledDue returns scheduled freezes whose start time has arrived,
	// ordered by start time.
	ListScheduledDue(ctx context.Context, now time.Time) ([]*model.FreezeRecord, error)
}
