package feed

import (
	"errors"
	"fmt"
)

// ErrorType classifies feed poll failures for severity-aware logging.
type ErrorType string

const (
	ErrTypeRateLimited   ErrorType = "rate_limited"
	ErrTypeForbidden     ErrorType = "forbidden"
	ErrTypeNotFound      ErrorType = "not_found"
	ErrTypeGone          ErrorType = "gone"
	ErrTypeUpstream      ErrorType = "upstream_failure"
	ErrTypeNetwork       ErrorType = "network"
	ErrTypeParse         ErrorType = "parse_error"
	ErrTypeMissingStatus ErrorType = "missing_status"
	ErrTypeUnexpected    ErrorType = "unexpected"
)

// errMissingStatus is the cause of a missing-status PollError.
var errMissingStatus = errors.New("response has no status")

// LogLevel determines whether a PollError is logged at WARN or ERROR.
type LogLevel int

const (
	LevelWarn LogLevel = iota
	LevelError
)

// PollError represents a classified feed polling failure.
type PollError struct {
	Type       ErrorType
	Level      LogLevel
	StatusCode int
	URL        string
	Cause      error
}

func (e *PollError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("feed poll %s: HTTP %d for %s", e.Type, e.StatusCode, e.URL)
	}

	return fmt.Sprintf("feed poll %s: %s for %s", e.Type, e.Cause, e.URL)
}

func (e *PollError) Unwrap() error { return e.Cause }

// Transient reports whether the failure is likely to clear on a later cycle.
func (e *PollError) Transient() bool {
	switch e.Type {
	case ErrTypeRateLimited, ErrTypeUpstream, ErrTypeNetwork:
		return true
	default:
		return false
	}
}

// Malformed reports whether the feed answered with something unusable.
func (e *PollError) Malformed() bool {
	return e.Type == ErrTypeMissingStatus || e.Type == ErrTypeParse
}

// HTTP status code boundaries for classification.
const (
	statusForbidden       = 403
	statusNotFound        = 404
	statusGone            = 410
	statusTooManyRequests = 429
	statusServerErrorLow  = 500
	statusServerErrorHigh = 599
)

// ClassifyHTTPStatus creates a PollError from an HTTP status code.
func ClassifyHTTPStatus(statusCode int, url string) *PollError {
	cause := fmt.Errorf("HTTP %d", statusCode)

	switch {
	case statusCode == statusTooManyRequests:
		return &PollError{Type: ErrTypeRateLimited, Level: LevelWarn, StatusCode: statusCode, URL: url, Cause: cause}
	case statusCode == statusForbidden:
		return &PollError{Type: ErrTypeForbidden, Level: LevelWarn, StatusCode: statusCode, URL: url, Cause: cause}
	case statusCode == statusNotFound:
		return &PollError{Type: ErrTypeNotFound, Level: LevelWarn, StatusCode: statusCode, URL: url, Cause: cause}
	case statusCode == statusGone:
		return &PollError{Type: ErrTypeGone, Level: LevelWarn, StatusCode: statusCode, URL: url, Cause: cause}
	case statusCode >= statusServerErrorLow && statusCode <= statusServerErrorHigh:
		return &PollError{Type: ErrTypeUpstream, Level: LevelWarn, StatusCode: statusCode, URL: url, Cause: cause}
	default:
		return &PollError{Type: ErrTypeUnexpected, Level: LevelError, StatusCode: statusCode, URL: url, Cause: cause}
	}
}

// ClassifyNetworkError creates a PollError for network-level failures (DNS, timeout, etc.).
func ClassifyNetworkError(cause error, url string) *PollError {
	return &PollError{Type: ErrTypeNetwork, Level: LevelWarn, URL: url, Cause: cause}
}

// ClassifyParseError creates a PollError for feed parsing failures.
func ClassifyParseError(cause error, url string) *PollError {
	return &PollError{Type: ErrTypeParse, Level: LevelWarn, URL: url, Cause: cause}
}

// ClassifyMissingStatus creates a PollError for a response that carried no
// status at all. It is never treated as "not modified".
func ClassifyMissingStatus(url string) *PollError {
	return &PollError{
		Type:  ErrTypeMissingStatus,
		Level: LevelError,
		URL:   url,
		Cause: errMissingStatus,
	}
}
