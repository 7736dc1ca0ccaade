package models

import "time"

// BoundaryError is a read-only projection over Critical-severity records,
// modeling a recoverable failure zone. It is derived, not persisted;
// recovering a boundary resolves the underlying ErrorRecord.
type BoundaryError struct {
	ID             string     `json:"id"` // the record's external id
	BoundaryName   string     `json:"boundary_name"`
	Message        string     `json:"message"`
	OccurredAt     time.Time  `json:"occurred_at"`
	IsRecovered    bool       `json:"is_recovered"`
	RecoveryAction *string    `json:"recovery_action,omitempty"`
	RecoveredAt    *time.Time `json:"recovered_at,omitempty"`
	FailureCount   int        `json:"failure_count"`
}
