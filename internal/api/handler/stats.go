package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/communitycar/errorsink/internal/api/response"
	"github.com/communitycar/errorsink/pkg/models"
)

// StatsService is the part of the core the stats handlers depend on.
type StatsService interface {
	Stats(ctx context.Context, date time.Time, category string) (*models.ErrorStats, error)
	StatsRange(ctx context.Context, start, end time.Time, category string) ([]*models.ErrorStats, error)
}

const dateLayout = "2006-01-02"

// NewStatsHandler returns the handler for GET /api/v1/stats.
// date defaults to today (UTC).
func NewStatsHandler(svc StatsService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()

		date := time.Now().UTC()
		if v := q.Get("date"); v != "" {
			parsed, err := time.Parse(dateLayout, v)
			if err != nil {
				response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "date must be YYYY-MM-DD", nil)
				return
			}
			date = parsed
		}

		stats, err := svc.Stats(r.Context(), date, q.Get("category"))
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to compute stats", nil)
			return
		}
		response.JSON(w, stats)
	}
}

// NewStatsRangeHandler returns the handler for GET /api/v1/stats/range.
// start and end are required and inclusive.
func NewStatsRangeHandler(svc StatsService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()

		start, err := time.Parse(dateLayout, q.Get("start"))
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "start must be YYYY-MM-DD", nil)
			return
		}
		end, err := time.Parse(dateLayout, q.Get("end"))
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "end must be YYYY-MM-DD", nil)
			return
		}
		if end.Before(start) {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "end must not be before start", nil)
			return
		}

		stats, err := svc.StatsRange(r.Context(), start, end, q.Get("category"))
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to compute stats range", nil)
			return
		}
		if stats == nil {
			stats = []*models.ErrorStats{}
		}
		response.JSON(w, stats)
	}
}
