package feed_test

import (
	"errors"
	"testing"

	"github.com/skehlet/dailymail/internal/feed"
)

func TestClassifyHTTPStatus(t *testing.T) {
	t.Parallel()

	tests := []struct {
		status    int
		wantType  feed.ErrorType
		wantLevel feed.LogLevel
		transient bool
	}{
		{429, feed.ErrTypeRateLimited, feed.LevelWarn, true},
		{403, feed.ErrTypeForbidden, feed.LevelWarn, false},
		{404, feed.ErrTypeNotFound, feed.LevelWarn, false},
		{410, feed.ErrTypeGone, feed.LevelWarn, false},
		{502, feed.ErrTypeUpstream, feed.LevelWarn, true},
		{418, feed.ErrTypeUnexpected, feed.LevelError, false},
	}

	for _, tt := range tests {
		got := feed.ClassifyHTTPStatus(tt.status, "https://example.com/rss")
		assertEqual(t, tt.wantType, got.Type)
		assertEqual(t, tt.wantLevel, got.Level)
		assertEqual(t, tt.transient, got.Transient())
		assertEqual(t, tt.status, got.StatusCode)
	}
}

func TestPollError_Unwrap(t *testing.T) {
	t.Parallel()

	cause := errors.New("i/o timeout")
	err := feed.ClassifyNetworkError(cause, "https://example.com/rss")

	if !errors.Is(err, cause) {
		t.Error("expected PollError to unwrap to its cause")
	}
	if !err.Transient() {
		t.Error("expected network error to be transient")
	}
}

func TestClassifyMissingStatus(t *testing.T) {
	t.Parallel()

	err := feed.ClassifyMissingStatus("https://example.com/rss")
	assertEqual(t, feed.ErrTypeMissingStatus, err.Type)
	assertEqual(t, true, err.Malformed())
	assertEqual(t, false, err.Transient())
	assertEqual(t, "feed poll missing_status: response has no status for https://example.com/rss", err.Error())
}
