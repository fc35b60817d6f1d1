package digest

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/skehlet/dailymail/internal/queue"
)

// FixtureMessage is one entry of a queue fixture file. Body holds the
// message JSON as a string.
type FixtureMessage struct {
	MessageID string `json:"MessageId"`
	Body      string `json:"Body"`
}

// ReadFixture reads a JSON array of FixtureMessage into queue messages.
func ReadFixture(r io.Reader) ([]queue.Message, error) {
	var fixture []FixtureMessage
	if err := json.NewDecoder(r).Decode(&fixture); err != nil {
		return nil, fmt.Errorf("decode fixture: %w", err)
	}

	msgs := make([]queue.Message, len(fixture))
	for i, f := range fixture {
		msgs[i] = queue.Message{ID: f.MessageID, Body: json.RawMessage(f.Body)}
	}
	return msgs, nil
}

// WriteFixture writes msgs in the format ReadFixture accepts.
func WriteFixture(w io.Writer, msgs []queue.Message) error {
	fixture := make([]FixtureMessage, len(msgs))
	for i, m := range msgs {
		fixture[i] = FixtureMessage{MessageID: m.ID, Body: string(m.Body)}
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(fixture); err != nil {
		return fmt.Errorf("encode fixture: %w", err)
	}
	return nil
}
