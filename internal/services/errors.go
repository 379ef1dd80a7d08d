package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrCapacity           = errors.New("queue at capacity")
	ErrUnknownTransaction = errors.New("unknown transaction")
	ErrHandler            = errors.New("handler failure")
	ErrMissingHandler     = errors.New("handler not registered")
	ErrCallback           = errors.New("callback failure")
	ErrValidation         = errors.New("validation error")
	ErrConfiguration      = errors.New("configuration error")
	ErrTimeout            = errors.New("timeout")
	ErrTransient          = errors.New("transient failure")
)

var markers = []struct {
	marker error
	kind   ErrorKind
}{
	{ErrCapacity, KindCapacity},
	{ErrUnknownTransaction, KindUnknownTransaction},
	{ErrMissingHandler, KindMissingHandler},
	{ErrCallback, KindCallback},
	{ErrValidation, KindValidation},
	{ErrConfiguration, KindConfiguration},
	{ErrTimeout, KindTimeout},
	{ErrTransient, KindTransient},
	{ErrHandler, KindHandler},
}

// ErrorKind classifies an error for logging and failure records.
type ErrorKind string

const (
	KindCapacity           ErrorKind = "capacity"
	KindUnknownTransaction ErrorKind = "unknown_transaction"
	KindHandler            ErrorKind = "handler"
	KindMissingHandler     ErrorKind = "missing_handler"
	KindCallback           ErrorKind = "callback"
	KindValidation         ErrorKind = "validation"
	KindConfiguration      ErrorKind = "configuration"
	KindTimeout            ErrorKind = "timeout"
	KindTransient          ErrorKind = "transient"
	KindUnknown            ErrorKind = "unknown"
)

// ErrorDetails is the structured view of a wrapped error.
type ErrorDetails struct {
	Kind      ErrorKind
	Stage     string
	Operation string
	Message   string
	Cause     error
}

type detailedError struct {
	marker    error
	stage     string
	operation string
	message   string
	cause     error
}

func (e *detailedError) Error() string {
	detail := buildDetail(e.stage, e.operation, e.message)
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %s", e.marker, detail, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.marker, detail)
}

func (e *detailedError) Unwrap() []error {
	if e.cause != nil {
		return []error{e.marker, e.cause}
	}
	return []error{e.marker}
}

// Wrap builds an error that includes stage context while tagging it with the
// provided marker for later classification. The marker should be one of the
// exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	if marker == nil {
		marker = ErrTransient
	}
	return &detailedError{
		marker:    marker,
		stage:     strings.TrimSpace(stage),
		operation: strings.TrimSpace(operation),
		message:   strings.TrimSpace(message),
		cause:     err,
	}
}

// Details extracts structured information from err.
func Details(err error) ErrorDetails {
	if err == nil {
		return ErrorDetails{Kind: KindUnknown}
	}
	details := ErrorDetails{Kind: Kind(err)}
	var detailed *detailedError
	if errors.As(err, &detailed) {
		details.Stage = detailed.stage
		details.Operation = detailed.operation
		details.Message = detailed.message
		details.Cause = detailed.cause
	}
	return details
}

// Kind reports the first matching marker kind for err.
func Kind(err error) ErrorKind {
	if err == nil {
		return KindUnknown
	}
	for _, m := range markers {
		if errors.Is(err, m.marker) {
			return m.kind
		}
	}
	return KindUnknown
}

// IsRetryable reports whether err was marked transient.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTransient)
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage != "" {
		parts = append(parts, stage)
	}
	if operation != "" {
		parts = append(parts, operation)
	}
	if message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
