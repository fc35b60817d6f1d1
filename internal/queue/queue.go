// Package queue provides the at-least-once message discipline shared by every
// dailymail stage, backed by Redis Streams and consumer groups.
//
// A received message stays pending until it is deleted. Pending messages
// idle for longer than the visibility timeout are handed out again, and
// messages received more than MaxReceives times move to a dead-letter stream.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/skehlet/dailymail/infrastructure/logger"
	"github.com/skehlet/dailymail/internal/metrics"
)

const (
	// BodyField is the field name for the JSON message body.
	BodyField = "body"

	// EnqueuedAtField is the field name for enqueue timestamp.
	EnqueuedAtField = "enqueued_at"

	// MaxBatchSize is the largest number of messages acknowledged per call.
	MaxBatchSize = 10

	// DeadLetterSuffix is appended to a stream name to form its dead-letter stream.
	DeadLetterSuffix = ":dlq"

	defaultVisibilityTimeout = 5 * time.Minute
	defaultMaxReceives       = 5
	defaultMaxStreamLen      = 10000

	// noBlock makes XREADGROUP return immediately when the stream is empty.
	noBlock = -1
)

// ErrEmptyStream is returned by New when no stream name is configured.
var ErrEmptyStream = errors.New("queue stream name is required")

// Config holds configuration for a Queue.
type Config struct {
	Stream   string
	Group    string
	Consumer string
	// VisibilityTimeout is how long a received message stays with its
	// consumer before another Receive may reclaim it.
	VisibilityTimeout time.Duration
	// MaxReceives is the delivery count after which a message is dead-lettered.
	MaxReceives int64
	// MessageTimeout bounds one handler call in ProcessBatch. Zero disables it.
	MessageTimeout time.Duration
	// MaxStreamLen approximately caps the stream length (0 = default).
	MaxStreamLen int64
}

// Message is a message received from a Queue.
type Message struct {
	ID         string
	Body       json.RawMessage
	EnqueuedAt time.Time
	// Receives is how many times the message has been delivered, this one included.
	Receives int64
}

// Decode unmarshals the message body into v.
func (m *Message) Decode(v any) error {
	if len(m.Body) == 0 {
		return fmt.Errorf("message %s has no body", m.ID)
	}
	if err := json.Unmarshal(m.Body, v); err != nil {
		return fmt.Errorf("decode message %s: %w", m.ID, err)
	}
	return nil
}

// Queue is one Redis stream read through one consumer group.
type Queue struct {
	client  *redis.Client
	cfg     Config
	log     logger.Logger
	metrics *metrics.Metrics

	groupReady bool
}

// New creates a Queue. m may be nil.
func New(client *redis.Client, cfg Config, log logger.Logger, m *metrics.Metrics) (*Queue, error) {
	if cfg.Stream == "" {
		return nil, ErrEmptyStream
	}
	if cfg.Group == "" {
		cfg.Group = "dailymail"
	}
	if cfg.Consumer == "" {
		cfg.Consumer = "dailymail"
	}
	if cfg.VisibilityTimeout <= 0 {
		cfg.VisibilityTimeout = defaultVisibilityTimeout
	}
	if cfg.MaxReceives <= 0 {
		cfg.MaxReceives = defaultMaxReceives
	}
	if cfg.MaxStreamLen <= 0 {
		cfg.MaxStreamLen = defaultMaxStreamLen
	}

	return &Queue{
		client:  client,
		cfg:     cfg,
		log:     log.With(logger.String("stream", cfg.Stream)),
		metrics: m,
	}, nil
}

// Stream returns the stream name.
func (q *Queue) Stream() string {
	return q.cfg.Stream
}

// DeadLetterStream returns the name of the dead-letter stream.
func (q *Queue) DeadLetterStream() string {
	return q.cfg.Stream + DeadLetterSuffix
}

// ensureGroup creates the consumer group, starting from the beginning of the
// stream so messages sent before the first consumer are delivered too.
func (q *Queue) ensureGroup(ctx context.Context) error {
	if q.groupReady {
		return nil
	}

	err := q.client.XGroupCreateMkStream(ctx, q.cfg.Stream, q.cfg.Group, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("create consumer group on %s: %w", q.cfg.Stream, err)
	}

	q.groupReady = true
	return nil
}

// Send JSON-encodes body and appends it to the stream.
func (q *Queue) Send(ctx context.Context, body any) (string, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("serialize message: %w", err)
	}

	return q.sendRaw(ctx, q.cfg.Stream, data)
}

func (q *Queue) sendRaw(ctx context.Context, stream string, data []byte) (string, error) {
	id, err := q.client.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		MaxLen: q.cfg.MaxStreamLen,
		Approx: true,
		Values: map[string]any{
			BodyField:       string(data),
			EnqueuedAtField: time.Now().UTC().Format(time.RFC3339),
		},
	}).Result()
	if err != nil {
		return "", fmt.Errorf("send to stream %s: %w", stream, err)
	}

	return id, nil
}

// Receive returns up to maxMessages messages. Messages whose visibility
// timeout expired are returned before new ones.
func (q *Queue) Receive(ctx context.Context, maxMessages int) ([]Message, error) {
	if maxMessages <= 0 {
		maxMessages = MaxBatchSize
	}

	if err := q.ensureGroup(ctx); err != nil {
		return nil, err
	}

	messages, err := q.reclaimExpired(ctx, maxMessages)
	if err != nil {
		return nil, err
	}

	remaining := maxMessages - len(messages)
	if remaining <= 0 {
		return messages, nil
	}

	fresh, err := q.readNew(ctx, remaining)
	if err != nil {
		return messages, err
	}

	return append(messages, fresh...), nil
}

// Drain receives until the queue reports no more visible messages.
func (q *Queue) Drain(ctx context.Context) ([]Message, error) {
	var all []Message

	for {
		batch, err := q.Receive(ctx, MaxBatchSize)
		if err != nil {
			return all, err
		}
		if len(batch) == 0 {
			return all, nil
		}
		all = append(all, batch...)
	}
}

// Delete acknowledges and removes one message.
func (q *Queue) Delete(ctx context.Context, msg Message) error {
	return q.DeleteBatch(ctx, []Message{msg})
}

// DeleteBatch acknowledges and removes messages, one pipelined call per
// MaxBatchSize chunk. It stops at the first failing chunk.
func (q *Queue) DeleteBatch(ctx context.Context, msgs []Message) error {
	for start := 0; start < len(msgs); start += MaxBatchSize {
		end := min(start+MaxBatchSize, len(msgs))

		ids := make([]string, 0, end-start)
		for i := start; i < end; i++ {
			ids = append(ids, msgs[i].ID)
		}

		if err := q.ackAndDelete(ctx, q.cfg.Stream, ids); err != nil {
			return fmt.Errorf("delete batch %d-%d: %w", start, end, err)
		}
	}

	return nil
}

func (q *Queue) ackAndDelete(ctx context.Context, stream string, ids []string) error {
	_, err := q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.XAck(ctx, stream, q.cfg.Group, ids...)
		pipe.XDel(ctx, stream, ids...)
		return nil
	})
	return err
}

// Peek returns every message in the stream without receiving it.
func (q *Queue) Peek(ctx context.Context) ([]Message, error) {
	entries, err := q.client.XRange(ctx, q.cfg.Stream, "-", "+").Result()
	if err != nil {
		return nil, fmt.Errorf("read stream %s: %w", q.cfg.Stream, err)
	}

	return q.parseMessages(entries, nil), nil
}

// Len returns the number of messages in the stream, pending ones included.
func (q *Queue) Len(ctx context.Context) (int64, error) {
	return q.client.XLen(ctx, q.cfg.Stream).Result()
}

// readNew reads messages never delivered to the group.
func (q *Queue) readNew(ctx context.Context, count int) ([]Message, error) {
	streams, err := q.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    q.cfg.Group,
		Consumer: q.cfg.Consumer,
		Streams:  []string{q.cfg.Stream, ">"},
		Count:    int64(count),
		Block:    noBlock,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("read from stream %s: %w", q.cfg.Stream, err)
	}

	var messages []Message
	for _, stream := range streams {
		messages = append(messages, q.parseMessages(stream.Messages, nil)...)
	}

	return messages, nil
}

// parseMessages converts stream entries. receives maps ids to delivery
// counts; ids missing from it were delivered once.
func (q *Queue) parseMessages(entries []redis.XMessage, receives map[string]int64) []Message {
	messages := make([]Message, 0, len(entries))

	for _, entry := range entries {
		msg := Message{ID: entry.ID, Receives: 1}

		if body, ok := entry.Values[BodyField].(string); ok {
			msg.Body = json.RawMessage(body)
		} else {
			q.log.Warn("stream message has no body", logger.String("message_id", entry.ID))
		}

		if enqueued, ok := entry.Values[EnqueuedAtField].(string); ok {
			if t, parseErr := time.Parse(time.RFC3339, enqueued); parseErr == nil {
				msg.EnqueuedAt = t
			}
		}

		if n, ok := receives[entry.ID]; ok {
			msg.Receives = n
		}

		messages = append(messages, msg)
	}

	return messages
}
