package circuitbreaker_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skehlet/dailymail/infrastructure/circuitbreaker"
)

var errBoom = errors.New("boom")

func fail() error { return errBoom }
func ok() error { return nil }

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func newBreaker(threshold int, transitions *[]string) (*circuitbreaker.Breaker, *clock) {
	c := &clock{t: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
	b := circuitbreaker.New(circuitbreaker.Config{
		FailureThreshold: threshold,
		Cooldown:         time.Minute,
		OnStateChange: func(from, to circuitbreaker.State) {
			if transitions != nil {
				*transitions = append(*transitions, from.String()+"->"+to.String())
			}
		},
	})
	b.SetClock(c.now)
	return b, c
}

func TestBreaker_OpensAfterThreshold(t *testing.T) {
	t.Parallel()

	var transitions []string
	b, _ := newBreaker(3, &transitions)

	for range 3 {
		require.ErrorIs(t, b.Execute(fail), errBoom)
	}
	assert.Equal(t, circuitbreaker.StateOpen, b.State())

	called := false
	err := b.Execute(func() error {
		called = true
		return nil
	})
	require.ErrorIs(t, err, circuitbreaker.ErrOpen)
	assert.False(t, called)
	assert.Equal(t, []string{"closed->open"}, transitions)
}

func TestBreaker_SuccessResetsCount(t *testing.T) {
	t.Parallel()

	b, _ := newBreaker(2, nil)

	_ = b.Execute(fail)
	require.NoError(t, b.Execute(ok))
	_ = b.Execute(fail)

	assert.Equal(t, circuitbreaker.StateClosed, b.State())
}

func TestBreaker_HalfOpenTrial(t *testing.T) {
	t.Parallel()

	var transitions []string
	b, c := newBreaker(1, &transitions)

	_ = b.Execute(fail)
	c.t = c.t.Add(2 * time.Minute)

	require.NoError(t, b.Execute(ok))
	assert.Equal(t, circuitbreaker.StateClosed, b.State())
	assert.Equal(t, []string{"closed->open", "open->half-open", "half-open->closed"}, transitions)
}

func TestBreaker_HalfOpenFailureReopens(t *testing.T) {
	t.Parallel()

	b, c := newBreaker(1, nil)

	_ = b.Execute(fail)
	c.t = c.t.Add(2 * time.Minute)
	_ = b.Execute(fail)

	assert.Equal(t, circuitbreaker.StateOpen, b.State())
	require.ErrorIs(t, b.Execute(ok), circuitbreaker.ErrOpen)
}

func TestBreaker_IgnoredErrorsDoNotCount(t *testing.T) {
	t.Parallel()

	b, _ := newBreaker(1, nil)
	isCancel := func(err error) bool { return errors.Is(err, context.Canceled) }

	err := b.Execute(func() error { return context.Canceled }, isCancel)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, circuitbreaker.StateClosed, b.State())
}

func TestBreaker_DisabledPassesThrough(t *testing.T) {
	t.Parallel()

	b := circuitbreaker.New(circuitbreaker.Config{})
	for range 10 {
		require.ErrorIs(t, b.Execute(fail), errBoom)
	}
	assert.Equal(t, circuitbreaker.StateClosed, b.State())
}
