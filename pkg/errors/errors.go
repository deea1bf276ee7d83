package errors

import (
	stderrors "errors"
	"fmt"
	"sort"
	"strings"
)

// Subsystem identifies the stage that produced an error.
type Subsystem string

const (
	SubsystemConfigManager Subsystem = "config-manager"
	SubsystemMerge         Subsystem = "merge"
	SubsystemScheduler     Subsystem = "scheduler"
	SubsystemGatherer      Subsystem = "gatherer"
	SubsystemUploader      Subsystem = "uploader"
	SubsystemResults       Subsystem = "results"
)

// Kind classifies an error within its subsystem.
type Kind string

const (
	// config-manager
	KindNoSourcesFound   Kind = "NO_SOURCES_FOUND"
	KindPermission       Kind = "PERMISSION"
	KindInvalidArguments Kind = "INVALID_ARGUMENTS"
	KindParseFailed      Kind = "PARSE_FAILED"

	// merge
	KindEmptyConfiguration  Kind = "EMPTY_CONFIGURATION"
	KindInvalidBackend      Kind = "INVALID_BACKEND"
	KindUnknownBackendType  Kind = "UNKNOWN_BACKEND_TYPE"
	KindBackendConflict     Kind = "BACKEND_CONFLICT"
	KindCredentialsConflict Kind = "CREDENTIALS_CONFLICT"
	KindMissingCredentials  Kind = "MISSING_CREDENTIALS"
	KindInvalidCredentials  Kind = "INVALID_CREDENTIALS"

	// scheduler
	KindInvalidConfig Kind = "INVALID_CONFIG"
	KindAlreadyRun    Kind = "ALREADY_RUN"

	// gatherer
	KindCollectionFailed Kind = "COLLECTION_FAILED"
	KindTimeout          Kind = "TIMEOUT"
	KindCancelled        Kind = "CANCELLED"

	// uploader
	KindUploadFailed Kind = "UPLOAD_FAILED"
	KindUnauthorized Kind = "UNAUTHORIZED"

	// results
	KindInvalidResults Kind = "INVALID_RESULTS"
)

// Severity tells the caller whether processing can continue.
type Severity string

const (
	// SeverityFatal aborts the stage and is returned to the caller.
	SeverityFatal Severity = "fatal"
	// SeverityRecoverable is recorded as data and processing continues.
	SeverityRecoverable Severity = "recoverable"
)

// Error is the tagged error produced by every stage of the collector.
// Context carries structured details such as offending paths or backend ids.
type Error struct {
	Subsystem Subsystem
	Kind      Kind
	Severity  Severity
	Message   string
	Cause     error
	Context   map[string]any
}

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Message)
	if len(e.Context) > 0 {
		keys := make([]string, 0, len(e.Context))
		for k := range e.Context {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, " %s=%v", k, e.Context[k])
		}
	}
	if e.Cause != nil {
		fmt.Fprintf(&b, ": %v", e.Cause)
	}
	return b.String()
}

// Unwrap returns the underlying cause for errors.Is and errors.As support.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target is an *Error of the same kind. An empty subsystem
// on the target matches any subsystem.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Kind != e.Kind {
		return false
	}
	return t.Subsystem == "" || t.Subsystem == e.Subsystem
}

// IsFatal reports whether the error aborts its stage.
func (e *Error) IsFatal() bool {
	return e.Severity == SeverityFatal
}

// WithContext adds a context value and returns the receiver.
func (e *Error) WithContext(key string, value any) *Error {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// Fatal creates a fatal error.
func Fatal(subsystem Subsystem, kind Kind, format string, args ...any) *Error {
	return &Error{
		Subsystem: subsystem,
		Kind:      kind,
		Severity:  SeverityFatal,
		Message:   fmt.Sprintf(format, args...),
	}
}

// Recoverable creates an error that is recorded rather than returned.
func Recoverable(subsystem Subsystem, kind Kind, format string, args ...any) *Error {
	return &Error{
		Subsystem: subsystem,
		Kind:      kind,
		Severity:  SeverityRecoverable,
		Message:   fmt.Sprintf(format, args...),
	}
}

// Wrap creates an error of the given severity around cause.
func Wrap(subsystem Subsystem, kind Kind, severity Severity, cause error, format string, args ...any) *Error {
	return &Error{
		Subsystem: subsystem,
		Kind:      kind,
		Severity:  severity,
		Message:   fmt.Sprintf(format, args...),
		Cause:     cause,
	}
}

// Sentinel returns a matcher usable with errors.Is for the given kind.
func Sentinel(kind Kind) error {
	return &Error{Kind: kind}
}

// KindOf returns the kind of the first *Error in err's chain, or "" if there is none.
func KindOf(err error) Kind {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsFatal reports whether err carries a fatal *Error.
func IsFatal(err error) bool {
	var e *Error
	if stderrors.As(err, &e) {
		return e.IsFatal()
	}
	return false
}
