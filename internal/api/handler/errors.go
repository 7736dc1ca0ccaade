// Package handler contains the HTTP handlers for the ErrorSink API.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	mw "github.com/communitycar/errorsink/internal/api/middleware"
	"github.com/communitycar/errorsink/internal/api/response"
	"github.com/communitycar/errorsink/internal/errorlog"
	"github.com/communitycar/errorsink/internal/store"
	"github.com/communitycar/errorsink/pkg/models"
)

// ErrorService is the part of the error aggregation core the record/list/
// get/resolve/delete handlers depend on.
type ErrorService interface {
	RecordError(ctx context.Context, rep errorlog.Report) string
	GetErrors(ctx context.Context, filter store.ErrorFilter) ([]*models.ErrorRecord, int, error)
	GetError(ctx context.Context, externalID string) (*models.ErrorRecord, error)
	ResolveError(ctx context.Context, externalID, resolvedBy string, resolution *string) error
	DeleteError(ctx context.Context, externalID string) error
}

// recordRequest is the POST /api/v1/errors body. Kind accepts either one of
// the documented kind tags or a free-form error type name.
type recordRequest struct {
	Message        string  `json:"message"`
	Kind           string  `json:"kind,omitempty"`
	StackTrace     *string `json:"stack_trace,omitempty"`
	InnerDetail    *string `json:"inner_detail,omitempty"`
	Source         string  `json:"source,omitempty"`
	UserID         *string `json:"user_id,omitempty"`
	SessionID      *string `json:"session_id,omitempty"`
	RequestPath    *string `json:"request_path,omitempty"`
	AdditionalData *string `json:"additional_data,omitempty"`
}

// NewRecordHandler returns the handler for POST /api/v1/errors.
// A persistence failure is reported as success=false with HTTP 200:
// the caller is usually itself inside a failure path, and error logging
// must never add a second failure on top of the one being reported.
func NewRecordHandler(svc ErrorService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req recordRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}
		if req.Message == "" {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "message is required", nil)
			return
		}

		rep := errorlog.Report{
			Message:        req.Message,
			Kind:           errorlog.ParseKind(req.Kind),
			StackTrace:     req.StackTrace,
			InnerDetail:    req.InnerDetail,
			Source:         req.Source,
			UserID:         req.UserID,
			SessionID:      req.SessionID,
			RequestPath:    req.RequestPath,
			AdditionalData: req.AdditionalData,
		}

		// Request context for the occurrence row comes from the
		// transport, not the body.
		if ua := r.UserAgent(); ua != "" {
			rep.UserAgent = &ua
		}
		if addr := r.RemoteAddr; addr != "" {
			rep.IPAddress = &addr
		}

		errorID := svc.RecordError(r.Context(), rep)
		if errorID == "" {
			response.JSON(w, map[string]any{"success": false})
			return
		}
		response.Created(w, map[string]any{"success": true, "error_id": errorID})
	}
}

// NewListErrorsHandler returns the handler for GET /api/v1/errors.
func NewListErrorsHandler(svc ErrorService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()

		filter := store.ErrorFilter{
			Category: q.Get("category"),
			Severity: q.Get("severity"),
			Page:     queryInt(q.Get("page"), 1),
			PageSize: queryInt(q.Get("page_size"), 50),
		}
		if v := q.Get("resolved"); v != "" {
			resolved, err := strconv.ParseBool(v)
			if err != nil {
				response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "resolved must be a boolean", nil)
				return
			}
			filter.Resolved = &resolved
		}

		records, total, err := svc.GetErrors(r.Context(), filter)
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to list errors", nil)
			return
		}
		if records == nil {
			records = []*models.ErrorRecord{}
		}

		response.Collection(w, records, response.PaginationMeta{
			Page:    filter.Page,
			Limit:   filter.PageSize,
			Total:   total,
			HasNext: filter.Page*filter.PageSize < total,
		})
	}
}

// NewGetErrorHandler returns the handler for GET /api/v1/errors/{errorID}.
func NewGetErrorHandler(svc ErrorService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		errorID := chi.URLParam(r, "errorID")

		rec, err := svc.GetError(r.Context(), errorID)
		if errors.Is(err, store.ErrNotFound) {
			response.Error(w, http.StatusNotFound, "NOT_FOUND", "Error record not found", nil)
			return
		}
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to get error", nil)
			return
		}
		response.JSON(w, rec)
	}
}

// NewResolveHandler returns the handler for POST /api/v1/errors/{errorID}/resolve.
func NewResolveHandler(svc ErrorService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		errorID := chi.URLParam(r, "errorID")

		var req struct {
			Resolution *string `json:"resolution,omitempty"`
		}
		if r.Body != nil && r.ContentLength != 0 {
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
				return
			}
		}

		resolvedBy, ok := mw.GetActor(r)
		if !ok || resolvedBy == "" {
			resolvedBy = "Unknown"
		}

		err := svc.ResolveError(r.Context(), errorID, resolvedBy, req.Resolution)
		if errors.Is(err, store.ErrNotFound) {
			response.Error(w, http.StatusNotFound, "NOT_FOUND", "Error record not found", nil)
			return
		}
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to resolve error", nil)
			return
		}
		response.JSON(w, map[string]any{"success": true})
	}
}

// NewDeleteHandler returns the handler for DELETE /api/v1/errors/{errorID}.
func NewDeleteHandler(svc ErrorService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		errorID := chi.URLParam(r, "errorID")

		err := svc.DeleteError(r.Context(), errorID)
		if errors.Is(err, store.ErrNotFound) {
			response.Error(w, http.StatusNotFound, "NOT_FOUND", "Error record not found", nil)
			return
		}
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to delete error", nil)
			return
		}
		response.JSON(w, map[string]any{"success": true})
	}
}

func queryInt(v string, defaultVal int) int {
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil || i <= 0 {
		return defaultVal
	}
	return i
}
