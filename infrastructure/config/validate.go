package config

import (
	"fmt"
	"net/url"
	"time"
)

// ValidationError names the offending config field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateRequired fails when value is empty.
func ValidateRequired(field, value string) error {
	if value == "" {
		return &ValidationError{Field: field, Message: "is required"}
	}
	return nil
}

// ValidatePort fails outside 1..65535.
func ValidatePort(field string, port int) error {
	if port < 1 || port > 65535 {
		return &ValidationError{Field: field, Message: "must be between 1 and 65535"}
	}
	return nil
}

// ValidateLogLevel accepts the levels understood by infrastructure/logger.
func ValidateLogLevel(level string) error {
	switch level {
	case "debug", "info", "warn", "warning", "error", "fatal":
		return nil
	default:
		return &ValidationError{Field: "logging.level", Message: "must be one of: debug, info, warn, error, fatal"}
	}
}

// ValidateHTTPURL requires an absolute http or https URL.
func ValidateHTTPURL(field, raw string) error {
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return &ValidationError{Field: field, Message: fmt.Sprintf("%q is not an absolute http(s) URL", raw)}
	}
	return nil
}

// ValidateTimezone requires a name time.LoadLocation understands.
func ValidateTimezone(field, name string) error {
	if _, err := time.LoadLocation(name); err != nil {
		return &ValidationError{Field: field, Message: fmt.Sprintf("unknown timezone %q", name)}
	}
	return nil
}
