package queue

import (
	"context"
	"fmt"

	"github.com/skehlet/dailymail/infrastructure/logger"
)

// Handler processes one message. A returned error leaves the message on the
// queue for redelivery.
type Handler func(ctx context.Context, msg Message) error

// BatchResult lists message ids by outcome.
type BatchResult struct {
	Succeeded []string
	Failed    []string
}

// ProcessBatch runs handler for each message in order and deletes the ones
// that succeeded. A failure, panic or timeout of one message does not affect
// the others. The error is non-nil only when deleting the successes failed.
func (q *Queue) ProcessBatch(ctx context.Context, msgs []Message, handler Handler) (BatchResult, error) {
	var (
		result BatchResult
		done   = make([]Message, 0, len(msgs))
	)

	for i := range msgs {
		if err := q.handleOne(ctx, msgs[i], handler); err != nil {
			q.log.Error("message processing failed",
				logger.String("message_id", msgs[i].ID),
				logger.Int64("receives", msgs[i].Receives),
				logger.Error(err),
			)
			result.Failed = append(result.Failed, msgs[i].ID)
			continue
		}

		result.Succeeded = append(result.Succeeded, msgs[i].ID)
		done = append(done, msgs[i])
	}

	q.metrics.BatchResult(q.cfg.Stream, len(result.Succeeded), len(result.Failed))

	if err := q.DeleteBatch(ctx, done); err != nil {
		return result, fmt.Errorf("delete processed messages: %w", err)
	}

	return result, nil
}

func (q *Queue) handleOne(ctx context.Context, msg Message, handler Handler) (err error) {
	if q.cfg.MessageTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, q.cfg.MessageTimeout)
		defer cancel()
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()

	return handler(ctx, msg)
}

// DrainAndProcess drains the queue and processes the messages in batches of
// MaxBatchSize, returning the combined result.
func (q *Queue) DrainAndProcess(ctx context.Context, handler Handler) (BatchResult, error) {
	var total BatchResult

	for {
		msgs, err := q.Receive(ctx, MaxBatchSize)
		if err != nil {
			return total, err
		}
		if len(msgs) == 0 {
			return total, nil
		}

		result, err := q.ProcessBatch(ctx, msgs, handler)
		total.Succeeded = append(total.Succeeded, result.Succeeded...)
		total.Failed = append(total.Failed, result.Failed...)
		if err != nil {
			return total, err
		}
	}
}
