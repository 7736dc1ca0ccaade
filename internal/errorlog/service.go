package errorlog

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/communitycar/errorsink/internal/cache"
	"github.com/communitycar/errorsink/internal/store"
	"github.com/communitycar/errorsink/pkg/models"
	"github.com/google/uuid"
)

// systemActor is the audit actor for writes not attributable to a user.
const systemActor = "System"

// boundaryWindow caps the boundary projection to the most recent Critical
// records before any filtering, matching the dashboard's failure-zone view.
const boundaryWindow = 50

// Report is one incoming application error. Kind replaces the exception
// object: callers tag the failure, optionally with the raw request context
// that produced it.
type Report struct {
	Message        string
	Kind           Kind
	StackTrace     *string
	InnerDetail    *string
	Source         string
	UserID         *string
	SessionID      *string
	IPAddress      *string
	UserAgent      *string
	RequestPath    *string
	AdditionalData *string
}

// Service is the error aggregation core. All writes go through the store's
// transactional RecordOccurrence; the service itself holds no mutable state.
type Service struct {
	store store.Store
	cache cache.Cache
}

// NewService creates a new error aggregation service.
func NewService(st store.Store, ca cache.Cache) *Service {
	return &Service{store: st, cache: ca}
}

// RecordError deduplicates and persists one error report, returning the
// external id of the record it folded into (or newly created). On any
// persistence failure it logs and returns "": error logging must never
// throw back into the request path it is instrumenting, since that would
// mask the error it was trying to record.
func (s *Service) RecordError(ctx context.Context, rep Report) string {
	now := time.Now().UTC()
	actor := systemActor
	if rep.UserID != nil && *rep.UserID != "" {
		actor = *rep.UserID
	}

	source := rep.Source
	if source == "" {
		source = models.DefaultSource
	}

	var requestPath string
	if rep.RequestPath != nil {
		requestPath = *rep.RequestPath
	}

	// Classification applies only if this report creates a new record;
	// on a dedup match the store keeps the existing severity and category.
	rec := &models.ErrorRecord{
		ID:              uuid.New(),
		ExternalID:      uuid.NewString(),
		Message:         rep.Message,
		StackTrace:      rep.StackTrace,
		InnerDetail:     rep.InnerDetail,
		Source:          source,
		SignatureHash:   SignatureHash(rep.Message, rep.StackTrace),
		Severity:        ClassifySeverity(rep.Kind),
		Category:        ClassifyCategory(rep.Kind, requestPath),
		UserID:          rep.UserID,
		RequestPath:     rep.RequestPath,
		AdditionalData:  rep.AdditionalData,
		OccurrenceCount: 1,
		LastOccurrence:  now,
		CreatedAt:       now,
		CreatedBy:       actor,
		UpdatedAt:       now,
		UpdatedBy:       actor,
	}

	occ := &models.Occurrence{
		ID:                uuid.New(),
		UserID:            rep.UserID,
		SessionID:         rep.SessionID,
		IPAddress:         rep.IPAddress,
		UserAgent:         rep.UserAgent,
		RequestPath:       rep.RequestPath,
		AdditionalContext: rep.AdditionalData,
		OccurredAt:        now,
	}

	persisted, err := s.store.RecordOccurrence(ctx, rec, occ)
	if err != nil {
		recordFailures.Inc()
		slog.Error("failed to record error", "error", err, "message", rep.Message)
		return ""
	}

	recordedTotal.WithLabelValues(persisted.Severity, persisted.Category).Inc()
	return persisted.ExternalID
}

// GetErrors returns a page of error records, newest occurrence first.
func (s *Service) GetErrors(ctx context.Context, filter store.ErrorFilter) ([]*models.ErrorRecord, int, error) {
	records, total, err := s.store.ListErrors(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("list errors: %w", err)
	}
	return records, total, nil
}

// GetError returns one record with its occurrences, or store.ErrNotFound.
func (s *Service) GetError(ctx context.Context, externalID string) (*models.ErrorRecord, error) {
	return s.store.GetByExternalID(ctx, externalID)
}

// ResolveError marks a record resolved. Once resolved it leaves the dedup
// match set for good; a recurring identical signature starts a new record.
func (s *Service) ResolveError(ctx context.Context, externalID, resolvedBy string, resolution *string) error {
	if err := s.store.ResolveError(ctx, externalID, resolvedBy, resolution); err != nil {
		return err
	}
	slog.Info("error resolved", "error_id", externalID, "resolved_by", resolvedBy)
	return nil
}

// DeleteError removes a record and, by cascade, all its occurrences.
func (s *Service) DeleteError(ctx context.Context, externalID string) error {
	if err := s.store.DeleteError(ctx, externalID); err != nil {
		return err
	}
	slog.Info("error deleted", "error_id", externalID)
	return nil
}

// BoundaryErrors projects the most recent Critical records as recoverable
// failure zones. The 50-record window is taken first, then filtered, so a
// name or recovery filter can return fewer than its matches overall.
func (s *Service) BoundaryErrors(ctx context.Context, boundaryName string, isRecovered *bool) ([]models.BoundaryError, error) {
	records, err := s.store.ListCritical(ctx, boundaryWindow)
	if err != nil {
		return nil, fmt.Errorf("list critical errors: %w", err)
	}

	boundaries := make([]models.BoundaryError, 0, len(records))
	for _, rec := range records {
		b := models.BoundaryError{
			ID:             rec.ExternalID,
			BoundaryName:   rec.Category,
			Message:        rec.Message,
			OccurredAt:     rec.CreatedAt,
			IsRecovered:    rec.IsResolved,
			RecoveryAction: rec.Resolution,
			RecoveredAt:    rec.ResolvedAt,
			FailureCount:   rec.OccurrenceCount,
		}

		if boundaryName != "" &&
			!strings.Contains(strings.ToLower(b.BoundaryName), strings.ToLower(boundaryName)) {
			continue
		}
		if isRecovered != nil && b.IsRecovered != *isRecovered {
			continue
		}
		boundaries = append(boundaries, b)
	}
	return boundaries, nil
}

// RecoverBoundary resolves the underlying record with the System actor.
func (s *Service) RecoverBoundary(ctx context.Context, boundaryID, recoveryAction string) error {
	action := recoveryAction
	return s.ResolveError(ctx, boundaryID, systemActor, &action)
}
