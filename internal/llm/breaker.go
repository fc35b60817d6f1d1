package llm

import (
	"context"
	"errors"

	"github.com/skehlet/dailymail/infrastructure/circuitbreaker"
	"github.com/skehlet/dailymail/infrastructure/logger"
)

// BreakerCompleter stops calling the model after repeated failures so a
// drain during an outage fails its remaining messages quickly instead of
// retrying each one. Those messages are redelivered on a later run.
type BreakerCompleter struct {
	next    Completer
	breaker *circuitbreaker.Breaker
}

// NewBreakerCompleter wraps next. A zero FailureThreshold disables the
// breaker.
func NewBreakerCompleter(next Completer, cfg circuitbreaker.Config, log logger.Logger) *BreakerCompleter {
	cfg.OnStateChange = func(from, to circuitbreaker.State) {
		log.Warn("llm circuit breaker state changed",
			logger.String("from", from.String()),
			logger.String("to", to.String()),
		)
	}
	return &BreakerCompleter{next: next, breaker: circuitbreaker.New(cfg)}
}

// Complete implements Completer. Malformed replies and cancellations do not
// count against the model.
func (b *BreakerCompleter) Complete(ctx context.Context, system, prompt string) (string, error) {
	var text string
	err := b.breaker.Execute(func() error {
		var callErr error
		text, callErr = b.next.Complete(ctx, system, prompt)
		return callErr
	}, notModelFailure)
	return text, err
}

func notModelFailure(err error) bool {
	return errors.Is(err, ErrEmptyCompletion) || errors.Is(err, context.Canceled)
}
