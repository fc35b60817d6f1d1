package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noSleep(waits *[]time.Duration) func(context.Context, time.Duration) error {
	return func(_ context.Context, d time.Duration) error {
		*waits = append(*waits, d)
		return nil
	}
}

func TestPolicy_SucceedsAfterTransientFailures(t *testing.T) {
	t.Parallel()

	var waits []time.Duration
	p := Policy{MaxAttempts: 3, MinBackoff: time.Second, MaxBackoff: 2 * time.Second, sleep: noSleep(&waits)}

	calls := 0
	err := p.Do(context.Background(), func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("429 too many requests")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	require.Len(t, waits, 2)
	for _, w := range waits {
		assert.GreaterOrEqual(t, w, time.Second)
		assert.LessOrEqual(t, w, 2*time.Second)
	}
}

func TestPolicy_StopsOnNonRetryable(t *testing.T) {
	t.Parallel()

	var waits []time.Duration
	p := Policy{MaxAttempts: 5, sleep: noSleep(&waits)}
	boom := errors.New("invalid request")

	calls := 0
	err := p.Do(context.Background(), func(context.Context) error {
		calls++
		return boom
	})

	require.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls)
	assert.Empty(t, waits)
}

func TestPolicy_Exhausted(t *testing.T) {
	t.Parallel()

	var waits []time.Duration
	p := Policy{MaxAttempts: 2, sleep: noSleep(&waits)}
	transient := MarkRetryable(errors.New("upstream 503"))

	err := p.Do(context.Background(), func(context.Context) error { return transient })

	require.ErrorIs(t, err, ErrMaxAttemptsExceeded)
	require.ErrorIs(t, err, transient)
	assert.Len(t, waits, 1)
}

func TestPolicy_CancelledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := DefaultPolicy().Do(ctx, func(context.Context) error { return nil })
	require.ErrorIs(t, err, ErrContextCancelled)
}

func TestBackoff_FixedWhenRangeEmpty(t *testing.T) {
	t.Parallel()

	p := Policy{MinBackoff: 3 * time.Second, MaxBackoff: 3 * time.Second}
	assert.Equal(t, 3*time.Second, p.Backoff())
}

func TestDefaultIsRetryable(t *testing.T) {
	t.Parallel()

	assert.False(t, DefaultIsRetryable(nil))
	assert.True(t, DefaultIsRetryable(context.DeadlineExceeded))
	assert.True(t, DefaultIsRetryable(errors.New("dial tcp: i/o timeout")))
	assert.True(t, DefaultIsRetryable(MarkRetryable(errors.New("x"))))
	assert.False(t, DefaultIsRetryable(errors.New("bad request")))
}
