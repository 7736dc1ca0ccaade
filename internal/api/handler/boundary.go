package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/communitycar/errorsink/internal/api/response"
	"github.com/communitycar/errorsink/internal/store"
	"github.com/communitycar/errorsink/pkg/models"
)

// BoundaryService is the part of the core the boundary handlers depend on.
type BoundaryService interface {
	BoundaryErrors(ctx context.Context, boundaryName string, isRecovered *bool) ([]models.BoundaryError, error)
	RecoverBoundary(ctx context.Context, boundaryID, recoveryAction string) error
}

// NewBoundaryErrorsHandler returns the handler for GET /api/v1/boundaries.
func NewBoundaryErrorsHandler(svc BoundaryService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()

		var recovered *bool
		if v := q.Get("recovered"); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "recovered must be a boolean", nil)
				return
			}
			recovered = &b
		}

		boundaries, err := svc.BoundaryErrors(r.Context(), q.Get("boundary_name"), recovered)
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to list boundary errors", nil)
			return
		}
		response.JSON(w, boundaries)
	}
}

// NewRecoverBoundaryHandler returns the handler for
// POST /api/v1/boundaries/{boundaryID}/recover.
func NewRecoverBoundaryHandler(svc BoundaryService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		boundaryID := chi.URLParam(r, "boundaryID")

		var req struct {
			RecoveryAction string `json:"recovery_action"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}
		if req.RecoveryAction == "" {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "recovery_action is required", nil)
			return
		}

		err := svc.RecoverBoundary(r.Context(), boundaryID, req.RecoveryAction)
		if errors.Is(err, store.ErrNotFound) {
			response.Error(w, http.StatusNotFound, "NOT_FOUND", "Boundary not found", nil)
			return
		}
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to recover boundary", nil)
			return
		}
		response.JSON(w, map[string]any{"success": true})
	}
}
