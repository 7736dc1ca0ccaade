package models

import (
	"time"

	"github.com/google/uuid"
)

// Occurrence is one recorded instance of an error signature. Occurrences are
// exclusively owned by their ErrorRecord and are deleted with it (FK cascade).
type Occurrence struct {
	ID            uuid.UUID `db:"id"              json:"id"`
	ErrorRecordID uuid.UUID `db:"error_record_id" json:"-"`

	UserID            *string `db:"user_id"            json:"user_id,omitempty"`
	SessionID         *string `db:"session_id"         json:"session_id,omitempty"`
	IPAddress         *string `db:"ip_address"         json:"ip_address,omitempty"`
	UserAgent         *string `db:"user_agent"         json:"user_agent,omitempty"`
	RequestPath       *string `db:"request_path"       json:"request_path,omitempty"`
	AdditionalContext *string `db:"additional_context" json:"additional_context,omitempty"`

	// OccurredAt is immutable once written.
	OccurredAt time.Time `db:"occurred_at" json:"occurred_at"`
}
