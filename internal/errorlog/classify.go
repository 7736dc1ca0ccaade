package errorlog

import (
	"strings"

	"github.com/communitycar/errorsink/pkg/models"
)

// Category labels produced by ClassifyCategory.
const (
	CategoryAPI        = "API"
	CategoryDashboard  = "Dashboard"
	CategoryCommunity  = "Community"
	CategoryDatabase   = "Database"
	CategoryNetwork    = "Network"
	CategorySecurity   = "Security"
	CategoryValidation = "Validation"
	CategoryGeneral    = "General"
)

// ClassifySeverity maps an error kind to a severity level. Total: unknown
// kinds default to Error. Evaluated only when a new record is created.
func ClassifySeverity(kind Kind) string {
	switch kind {
	case KindNone:
		return models.SeverityInfo
	case KindArgument, KindNotImplemented, KindTimeout:
		return models.SeverityWarning
	case KindOutOfMemory, KindStackOverflow:
		return models.SeverityCritical
	default:
		return models.SeverityError
	}
}

// ClassifyCategory derives a category label from the request path, falling
// back to the error kind. A path match always wins over the kind. Total:
// anything unmatched is General.
func ClassifyCategory(kind Kind, requestPath string) string {
	if requestPath != "" {
		lower := strings.ToLower(requestPath)
		switch {
		case strings.Contains(lower, "/api/"):
			return CategoryAPI
		case strings.Contains(lower, "/dashboard/"):
			return CategoryDashboard
		case strings.Contains(lower, "/community/"):
			return CategoryCommunity
		}
	}

	switch kind {
	case KindDatabase:
		return CategoryDatabase
	case KindNetwork:
		return CategoryNetwork
	case KindSecurity, KindUnauthorized:
		return CategorySecurity
	case KindValidation:
		return CategoryValidation
	}
	return CategoryGeneral
}
