package queue

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/skehlet/dailymail/infrastructure/logger"
)

// pendingPageSize is how many pending entries one XPENDING call inspects.
const pendingPageSize = 100

// reclaimExpired claims up to count pending messages whose visibility timeout
// elapsed, walking the whole pending list so entries claimed earlier in the
// same drain do not hide older expired ones behind them. Messages already
// delivered MaxReceives times are dead-lettered instead.
func (q *Queue) reclaimExpired(ctx context.Context, count int) ([]Message, error) {
	var (
		claimIDs []string
		receives = make(map[string]int64)
		start    = "-"
	)

	for len(claimIDs) < count {
		pending, err := q.client.XPendingExt(ctx, &redis.XPendingExtArgs{
			Stream: q.cfg.Stream,
			Group:  q.cfg.Group,
			Start:  start,
			End:    "+",
			Count:  pendingPageSize,
		}).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				break
			}
			return nil, fmt.Errorf("list pending on %s: %w", q.cfg.Stream, err)
		}

		for _, entry := range pending {
			if len(claimIDs) == count {
				break
			}
			if entry.Idle < q.cfg.VisibilityTimeout {
				continue
			}

			if entry.RetryCount >= q.cfg.MaxReceives {
				if dlqErr := q.deadLetter(ctx, entry.ID, entry.RetryCount); dlqErr != nil {
					q.log.Error("failed to dead-letter message",
						logger.String("message_id", entry.ID),
						logger.Error(dlqErr),
					)
				}
				continue
			}

			claimIDs = append(claimIDs, entry.ID)
			receives[entry.ID] = entry.RetryCount + 1
		}

		if len(pending) < pendingPageSize {
			break
		}
		next, ok := nextStreamID(pending[len(pending)-1].ID)
		if !ok {
			break
		}
		start = next
	}

	if len(claimIDs) == 0 {
		return nil, nil
	}

	claimed, err := q.client.XClaim(ctx, &redis.XClaimArgs{
		Stream:   q.cfg.Stream,
		Group:    q.cfg.Group,
		Consumer: q.cfg.Consumer,
		MinIdle:  q.cfg.VisibilityTimeout,
		Messages: claimIDs,
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("claim pending on %s: %w", q.cfg.Stream, err)
	}

	if len(claimed) > 0 {
		q.log.Info("reclaimed messages past visibility timeout", logger.Int("count", len(claimed)))
	}

	return q.parseMessages(claimed, receives), nil
}

// nextStreamID returns the smallest stream id greater than id.
func nextStreamID(id string) (string, bool) {
	ms, seq, found := strings.Cut(id, "-")
	if !found {
		return "", false
	}
	n, err := strconv.ParseUint(seq, 10, 64)
	if err != nil {
		return "", false
	}
	if n == math.MaxUint64 {
		m, msErr := strconv.ParseUint(ms, 10, 64)
		if msErr != nil {
			return "", false
		}
		return strconv.FormatUint(m+1, 10) + "-0", true
	}
	return ms + "-" + strconv.FormatUint(n+1, 10), true
}

// deadLetter copies a message to the dead-letter stream and removes it from
// the source stream.
func (q *Queue) deadLetter(ctx context.Context, id string, receives int64) error {
	entries, err := q.client.XRangeN(ctx, q.cfg.Stream, id, id, 1).Result()
	if err != nil {
		return fmt.Errorf("read message: %w", err)
	}

	if len(entries) > 0 {
		body, _ := entries[0].Values[BodyField].(string)
		if _, sendErr := q.sendRaw(ctx, q.DeadLetterStream(), []byte(body)); sendErr != nil {
			return sendErr
		}
	}

	if ackErr := q.ackAndDelete(ctx, q.cfg.Stream, []string{id}); ackErr != nil {
		return fmt.Errorf("remove dead-lettered message: %w", ackErr)
	}

	q.metrics.DeadLetter(q.cfg.Stream)
	q.log.Warn("message moved to dead-letter stream",
		logger.String("message_id", id),
		logger.Int64("receives", receives),
		logger.String("dlq", q.DeadLetterStream()),
	)

	return nil
}

// Redrive moves every dead-lettered message back onto the source stream and
// returns how many were moved.
func (q *Queue) Redrive(ctx context.Context) (int, error) {
	dlq := q.DeadLetterStream()
	moved := 0

	for {
		entries, err := q.client.XRangeN(ctx, dlq, "-", "+", MaxBatchSize).Result()
		if err != nil {
			return moved, fmt.Errorf("read dead-letter stream %s: %w", dlq, err)
		}
		if len(entries) == 0 {
			return moved, nil
		}

		ids := make([]string, 0, len(entries))
		var sendErr error
		for _, entry := range entries {
			body, _ := entry.Values[BodyField].(string)
			if _, sendErr = q.sendRaw(ctx, q.cfg.Stream, []byte(body)); sendErr != nil {
				break
			}
			ids = append(ids, entry.ID)
		}

		if len(ids) > 0 {
			if err = q.client.XDel(ctx, dlq, ids...).Err(); err != nil {
				return moved, fmt.Errorf("remove redriven messages: %w", err)
			}
			moved += len(ids)
		}

		if sendErr != nil {
			return moved, sendErr
		}
	}
}
