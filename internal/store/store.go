package store

import (
	"context"
	"errors"
	"time"

	"github.com/communitycar/errorsink/pkg/models"
	"github.com/google/uuid"
)

var ErrNotFound = errors.New("resource not found")
var ErrDuplicateKey = errors.New("duplicate key violation")

// Store is the data access interface. All database operations go through here.
// Reads always reflect current persisted state; the store does no caching.
type Store interface {
	Ping(ctx context.Context) error

	// FindUnresolvedBySignature returns the open record for a signature
	// hash, or ErrNotFound. Resolved records are never matched.
	FindUnresolvedBySignature(ctx context.Context, signatureHash string) (*models.ErrorRecord, error)

	// GetByExternalID returns a record with its occurrences loaded.
	GetByExternalID(ctx context.Context, externalID string) (*models.ErrorRecord, error)

	ListErrors(ctx context.Context, filter ErrorFilter) ([]*models.ErrorRecord, int, error)

	// RecordOccurrence persists one error report atomically: the record is
	// inserted, or — when an open record with the same signature already
	// exists — its occurrence count and last occurrence are bumped instead.
	// The occurrence row is written against the surviving record in the
	// same transaction, so the denormalized counters can never drift from
	// the occurrence rows. Returns the record as persisted.
	RecordOccurrence(ctx context.Context, rec *models.ErrorRecord, occ *models.Occurrence) (*models.ErrorRecord, error)

	// ResolveError marks a record resolved. The four resolution fields are
	// set together; there is no transition back to open.
	ResolveError(ctx context.Context, externalID, resolvedBy string, resolution *string) error

	// DeleteError removes a record; its occurrences go with it (FK cascade).
	DeleteError(ctx context.Context, externalID string) error

	// ListCreatedBetween returns records created in [start, end), optionally
	// restricted to one category. Used by the stats engine.
	ListCreatedBetween(ctx context.Context, start, end time.Time, category string) ([]*models.ErrorRecord, error)

	// ListCritical returns up to limit Critical-severity records, most
	// recent last occurrence first. Used by the boundary projection.
	ListCritical(ctx context.Context, limit int) ([]*models.ErrorRecord, error)

	// ListExpiredResolved returns ids of resolved records created before
	// the cutoff. Unresolved records are never returned regardless of age.
	ListExpiredResolved(ctx context.Context, cutoff time.Time) ([]uuid.UUID, error)

	// DeleteByID removes a single record by primary key. The retention
	// sweep deletes one record per call so an individual failure does not
	// abort the rest of the batch.
	DeleteByID(ctx context.Context, id uuid.UUID) error

	GetAPIKeyByPrefix(ctx context.Context, prefix string) ([]*models.APIKey, error)
	UpdateAPIKeyLastUsed(ctx context.Context, id uuid.UUID) error
	CreateAPIKey(ctx context.Context, key *models.APIKey) error
	ListAPIKeys(ctx context.Context) ([]*models.APIKey, error)
	RevokeAPIKey(ctx context.Context, id uuid.UUID) error
}

// ErrorFilter narrows and pages ListErrors. Zero values mean "no filter";
// Resolved is a tri-state (nil = both).
type ErrorFilter struct {
	Category string
	Severity string
	Resolved *bool
	Page     int
	PageSize int
}
