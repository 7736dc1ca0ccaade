package models

import "time"

// ErrorStats aggregates one UTC calendar day of error records, bucketed by
// the day the record was created. All sums are over OccurrenceCount, so a
// record reported fifty times contributes fifty to its buckets.
type ErrorStats struct {
	Date             time.Time `json:"date"`
	TotalErrors      int       `json:"total_errors"`
	CriticalErrors   int       `json:"critical_errors"`
	WarningErrors    int       `json:"warning_errors"`
	InfoErrors       int       `json:"info_errors"`
	ResolvedErrors   int       `json:"resolved_errors"`
	UnresolvedErrors int       `json:"unresolved_errors"`

	// MostCommonError is the message with the highest summed occurrence
	// count for the day. Ties resolve to the lexicographically smallest
	// message.
	MostCommonError      string `json:"most_common_error,omitempty"`
	MostCommonErrorCount int    `json:"most_common_error_count"`

	ErrorsByCategory map[string]int `json:"errors_by_category"`
	ErrorsBySeverity map[string]int `json:"errors_by_severity"`
}
