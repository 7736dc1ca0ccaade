package errorlog

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/communitycar/errorsink/internal/cache"
	"github.com/communitycar/errorsink/pkg/models"
)

// dayStatsTTL bounds the cache of completed days. Their numbers cannot
// change except through deletes, so a day is a safe cache entry.
const dayStatsTTL = 24 * time.Hour

// Stats aggregates all records created during one UTC calendar day,
// optionally restricted to a category. Sums are over occurrence counts.
// Completed days are served from cache when possible; today is always
// computed fresh.
func (s *Service) Stats(ctx context.Context, date time.Time, category string) (*models.ErrorStats, error) {
	day := date.UTC().Truncate(24 * time.Hour)
	today := time.Now().UTC().Truncate(24 * time.Hour)
	cacheable := day.Before(today)

	key := cache.DayStatsKey(day, category)
	if cacheable {
		if raw, ok, err := s.cache.Get(ctx, key); err == nil && ok {
			var cached models.ErrorStats
			if err := json.Unmarshal(raw, &cached); err == nil {
				return &cached, nil
			}
		}
	}

	records, err := s.store.ListCreatedBetween(ctx, day, day.AddDate(0, 0, 1), category)
	if err != nil {
		return nil, fmt.Errorf("load records for stats: %w", err)
	}

	stats := aggregate(day, records)

	if cacheable {
		if raw, err := json.Marshal(stats); err == nil {
			if err := s.cache.Set(ctx, key, raw, dayStatsTTL); err != nil {
				slog.Warn("failed to cache day stats", "error", err, "day", day)
			}
		}
	}
	return stats, nil
}

// StatsRange returns one aggregate per calendar day in [start, end]
// inclusive. Deliberately O(days) store round trips — one Stats call per
// day — with no batch optimization.
func (s *Service) StatsRange(ctx context.Context, start, end time.Time, category string) ([]*models.ErrorStats, error) {
	first := start.UTC().Truncate(24 * time.Hour)
	last := end.UTC().Truncate(24 * time.Hour)

	var out []*models.ErrorStats
	for day := first; !day.After(last); day = day.AddDate(0, 0, 1) {
		stats, err := s.Stats(ctx, day, category)
		if err != nil {
			return nil, fmt.Errorf("stats for %s: %w", day.Format("2006-01-02"), err)
		}
		out = append(out, stats)
	}
	return out, nil
}

func aggregate(day time.Time, records []*models.ErrorRecord) *models.ErrorStats {
	stats := &models.ErrorStats{
		Date:             day,
		ErrorsByCategory: make(map[string]int),
		ErrorsBySeverity: make(map[string]int),
	}

	byMessage := make(map[string]int)
	for _, rec := range records {
		n := rec.OccurrenceCount

		stats.TotalErrors += n
		switch rec.Severity {
		case models.SeverityCritical:
			stats.CriticalErrors += n
		case models.SeverityWarning:
			stats.WarningErrors += n
		case models.SeverityInfo:
			stats.InfoErrors += n
		}
		if rec.IsResolved {
			stats.ResolvedErrors += n
		} else {
			stats.UnresolvedErrors += n
		}

		stats.ErrorsByCategory[rec.Category] += n
		stats.ErrorsBySeverity[rec.Severity] += n
		byMessage[rec.Message] += n
	}

	// Highest summed count wins; ties go to the lexicographically smallest
	// message so the result is deterministic across runs.
	for msg, n := range byMessage {
		if n > stats.MostCommonErrorCount ||
			(n == stats.MostCommonErrorCount && msg < stats.MostCommonError) {
			stats.MostCommonError = msg
			stats.MostCommonErrorCount = n
		}
	}
	return stats
}
