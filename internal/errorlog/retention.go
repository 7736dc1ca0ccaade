package errorlog

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// DefaultRetentionDays is the cleanup window when the caller does not
// supply one.
const DefaultRetentionDays = 90

// CleanupOldErrors deletes resolved records created before the retention
// cutoff, cascading their occurrences. Unresolved records are never
// auto-deleted, whatever their age. Each record is deleted independently:
// a failure is logged and skipped, and the returned count reflects only
// successful deletes, so a mid-sweep failure never leaves the rest of the
// batch undone.
func (s *Service) CleanupOldErrors(ctx context.Context, retentionDays int) (int, error) {
	if retentionDays < 0 {
		retentionDays = DefaultRetentionDays
	}
	cutoff := time.Now().UTC().AddDate(0, 0, -retentionDays)

	ids, err := s.store.ListExpiredResolved(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("list expired errors: %w", err)
	}

	deleted := 0
	for _, id := range ids {
		if err := s.store.DeleteByID(ctx, id); err != nil {
			slog.Warn("retention sweep failed to delete record", "error", err, "id", id)
			continue
		}
		deleted++
		retentionDeleted.Inc()
	}

	slog.Info("retention sweep finished",
		"cutoff", cutoff, "candidates", len(ids), "deleted", deleted)
	return deleted, nil
}
