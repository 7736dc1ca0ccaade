// Package errorlog is the error aggregation core: deduplication of incoming
// reports into error records, severity/category classification, day-bucketed
// statistics and retention cleanup.
package errorlog

import "strings"

// Kind is a closed enumeration of error kinds supplied by callers in place
// of a live exception object. Classification reads only the kind tag and the
// request path.
type Kind string

const (
	KindNone             Kind = ""
	KindNilArgument      Kind = "NilArgument"
	KindArgument         Kind = "Argument"
	KindInvalidOperation Kind = "InvalidOperation"
	KindNotImplemented   Kind = "NotImplemented"
	KindUnauthorized     Kind = "Unauthorized"
	KindTimeout          Kind = "Timeout"
	KindOutOfMemory      Kind = "OutOfMemory"
	KindStackOverflow    Kind = "StackOverflow"
	KindDatabase         Kind = "Database"
	KindNetwork          Kind = "Network"
	KindSecurity         Kind = "Security"
	KindValidation       Kind = "Validation"
	KindUnknown          Kind = "Unknown"
)

// substringKinds maps lowercase fragments of caller-supplied error type
// names to kinds. First match wins; order matters: the specific exception
// fragments come first, then the database/network/security/validation
// fragments, and the generic "argument"/"timeout" last, so a hybrid name
// like "SqlTimeoutException" lands on Database rather than Timeout.
var substringKinds = []struct {
	fragment string
	kind     Kind
}{
	{"nullreference", KindNilArgument},
	{"nilargument", KindNilArgument},
	{"argumentnull", KindNilArgument},
	{"invalidoperation", KindInvalidOperation},
	{"notimplemented", KindNotImplemented},
	{"unauthorized", KindUnauthorized},
	{"outofmemory", KindOutOfMemory},
	{"stackoverflow", KindStackOverflow},
	{"sql", KindDatabase},
	{"database", KindDatabase},
	{"network", KindNetwork},
	{"http", KindNetwork},
	{"security", KindSecurity},
	{"validation", KindValidation},
	{"argument", KindArgument},
	{"timeout", KindTimeout},
}

// ParseKind maps a caller-supplied error kind or type name to a Kind.
// Exact tag matches win; otherwise case-insensitive substring rules apply,
// so free-form names like "SqlTimeoutException" still classify usefully.
// An empty string means no error was supplied; anything unrecognized is
// KindUnknown. ParseKind is total: it never fails.
func ParseKind(s string) Kind {
	if s == "" {
		return KindNone
	}

	switch Kind(s) {
	case KindNilArgument, KindArgument, KindInvalidOperation, KindNotImplemented,
		KindUnauthorized, KindTimeout, KindOutOfMemory, KindStackOverflow,
		KindDatabase, KindNetwork, KindSecurity, KindValidation, KindUnknown:
		return Kind(s)
	}

	lower := strings.ToLower(s)
	for _, sk := range substringKinds {
		if strings.Contains(lower, sk.fragment) {
			return sk.kind
		}
	}
	return KindUnknown
}
