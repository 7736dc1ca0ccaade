// Package models contains shared data models used across the ErrorSink codebase.
package models

import (
	"time"

	"github.com/google/uuid"
)

// Severity levels assigned to an ErrorRecord at creation time.
const (
	SeverityInfo     = "Info"
	SeverityWarning  = "Warning"
	SeverityError    = "Error"
	SeverityCritical = "Critical"
)

// DefaultSource is used when the caller does not name an error source.
const DefaultSource = "Application"

// ErrorRecord represents one distinct error signature. Repeated reports of
// the same (message, stack trace) pair fold into a single record while it is
// unresolved; OccurrenceCount and LastOccurrence are maintained in the same
// transaction as the occurrence insert and always match the owned
// Occurrence rows.
type ErrorRecord struct {
	ID         uuid.UUID `db:"id"          json:"-"`
	ExternalID string    `db:"external_id" json:"error_id"`

	Message     string  `db:"message"      json:"message"`
	StackTrace  *string `db:"stack_trace"  json:"stack_trace,omitempty"`
	InnerDetail *string `db:"inner_detail" json:"inner_detail,omitempty"`
	Source      string  `db:"source"       json:"source"`

	// SignatureHash is the sha256 of the dedup identity (message + stack
	// trace). Storage key only; never exposed to callers.
	SignatureHash string `db:"signature_hash" json:"-"`

	Severity string `db:"severity" json:"severity"`
	Category string `db:"category" json:"category"`

	UserID         *string `db:"user_id"         json:"user_id,omitempty"`
	RequestPath    *string `db:"request_path"    json:"request_path,omitempty"`
	AdditionalData *string `db:"additional_data" json:"additional_data,omitempty"`

	IsResolved bool       `db:"is_resolved" json:"is_resolved"`
	ResolvedAt *time.Time `db:"resolved_at" json:"resolved_at,omitempty"`
	ResolvedBy *string    `db:"resolved_by" json:"resolved_by,omitempty"`
	Resolution *string    `db:"resolution"  json:"resolution,omitempty"`

	OccurrenceCount int       `db:"occurrence_count" json:"occurrence_count"`
	LastOccurrence  time.Time `db:"last_occurrence"  json:"last_occurrence"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	CreatedBy string    `db:"created_by" json:"created_by"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
	UpdatedBy string    `db:"updated_by" json:"updated_by"`

	// Occurrences is populated only when a single record is fetched by
	// external id.
	Occurrences []Occurrence `db:"-" json:"occurrences,omitempty"`
}
