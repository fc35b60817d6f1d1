package digest_test

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skehlet/dailymail/infrastructure/logger"
	"github.com/skehlet/dailymail/internal/digest"
	"github.com/skehlet/dailymail/internal/domain"
	"github.com/skehlet/dailymail/internal/mail"
	"github.com/skehlet/dailymail/internal/queue"
)

type fakeSource struct {
	msgs      []queue.Message
	deleted   []string
	deleteErr error
}

func (f *fakeSource) Drain(context.Context) ([]queue.Message, error) {
	return f.msgs, nil
}

func (f *fakeSource) DeleteBatch(_ context.Context, msgs []queue.Message) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	for _, m := range msgs {
		f.deleted = append(f.deleted, m.ID)
	}
	return nil
}

type fakeMailer struct {
	sent []mail.Message
	err  error
}

func (f *fakeMailer) Send(_ context.Context, msg mail.Message) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.sent = append(f.sent, msg)
	return "<id@example.com>", nil
}

type fakeOpener struct {
	text string
	err  error
}

func (f fakeOpener) Opening(context.Context, []domain.DigestGroup) (string, error) {
	return f.text, f.err
}

func recordMessage(t *testing.T, id string, rec domain.Record) queue.Message {
	t.Helper()
	body, err := json.Marshal(rec)
	require.NoError(t, err)
	return queue.Message{ID: id, Body: body}
}

func newDispatcher(t *testing.T, src digest.Source, mailer mail.Mailer, opener digest.Opener) *digest.Dispatcher {
	t.Helper()

	renderer, err := digest.NewRenderer("Daily Digest", time.UTC)
	require.NoError(t, err)

	return digest.NewDispatcher(
		src,
		digest.NewAggregator(time.UTC, nil, logger.NewNop()),
		opener,
		renderer,
		mailer,
		digest.DispatcherConfig{From: "digest@example.com", To: []string{"me@example.com"}},
		logger.NewNop(),
		nil,
	)
}

func TestDispatcher_Run_SendsThenDeletes(t *testing.T) {
	t.Parallel()

	src := &fakeSource{msgs: []queue.Message{
		recordMessage(t, "1-0", domain.Record{FeedTitle: "A", Title: "one"}),
		recordMessage(t, "2-0", domain.Record{FeedTitle: "B", Title: "two"}),
	}}
	mailer := &fakeMailer{}

	require.NoError(t, newDispatcher(t, src, mailer, nil).Run(context.Background()))

	require.Len(t, mailer.sent, 1)
	assert.Equal(t, []string{"me@example.com"}, mailer.sent[0].To)
	assert.True(t, strings.HasPrefix(mailer.sent[0].Subject, "Daily Digest - "))
	assert.Contains(t, mailer.sent[0].HTML, "Here is your daily digest of 2 articles across 2 feeds.")
	assert.Equal(t, []string{"1-0", "2-0"}, src.deleted)
}

func TestDispatcher_Run_SendFailureDeletesNothing(t *testing.T) {
	t.Parallel()

	sendErr := errors.New("smtp: 421 service not available")
	src := &fakeSource{msgs: []queue.Message{
		recordMessage(t, "1-0", domain.Record{FeedTitle: "A"}),
		recordMessage(t, "2-0", domain.Record{FeedTitle: "A"}),
		recordMessage(t, "3-0", domain.Record{FeedTitle: "B"}),
	}}

	err := newDispatcher(t, src, &fakeMailer{err: sendErr}, nil).Run(context.Background())

	require.Equal(t, sendErr, err)
	assert.Empty(t, src.deleted)
}

func TestDispatcher_LastState(t *testing.T) {
	t.Parallel()

	msgs := func() []queue.Message {
		return []queue.Message{recordMessage(t, "1-0", domain.Record{FeedTitle: "A"})}
	}

	tests := []struct {
		name   string
		src    *fakeSource
		mailer *fakeMailer
		want   digest.RunState
	}{
		{"sent and purged", &fakeSource{msgs: msgs()}, &fakeMailer{}, digest.StatePurged},
		{"send failed", &fakeSource{msgs: msgs()}, &fakeMailer{err: errors.New("smtp down")}, digest.StateRendered},
		{"purge failed", &fakeSource{msgs: msgs(), deleteErr: errors.New("redis down")}, &fakeMailer{}, digest.StateDispatched},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			d := newDispatcher(t, tt.src, tt.mailer, nil)
			_ = d.Run(context.Background())
			assert.Equal(t, tt.want, d.LastState())
		})
	}
}

func TestDispatcher_Run_EmptyQueueSendsNothing(t *testing.T) {
	t.Parallel()

	mailer := &fakeMailer{}
	require.NoError(t, newDispatcher(t, &fakeSource{}, mailer, nil).Run(context.Background()))
	assert.Empty(t, mailer.sent)
}

func TestDispatcher_Run_UndecodableMessagesStayQueued(t *testing.T) {
	t.Parallel()

	src := &fakeSource{msgs: []queue.Message{
		{ID: "1-0", Body: json.RawMessage(`{not json`)},
		recordMessage(t, "2-0", domain.Record{FeedTitle: "A"}),
	}}
	mailer := &fakeMailer{}

	require.NoError(t, newDispatcher(t, src, mailer, nil).Run(context.Background()))

	assert.Len(t, mailer.sent, 1)
	assert.Equal(t, []string{"2-0"}, src.deleted)
}

func TestDispatcher_Run_DeleteFailureIsReported(t *testing.T) {
	t.Parallel()

	src := &fakeSource{
		msgs:      []queue.Message{recordMessage(t, "1-0", domain.Record{})},
		deleteErr: errors.New("redis down"),
	}
	mailer := &fakeMailer{}

	err := newDispatcher(t, src, mailer, nil).Run(context.Background())
	require.Error(t, err)
	assert.Len(t, mailer.sent, 1)
}

func TestDispatcher_OpeningFallsBack(t *testing.T) {
	t.Parallel()

	records := []domain.Record{{FeedTitle: "A"}}

	d := newDispatcher(t, &fakeSource{}, &fakeMailer{}, fakeOpener{err: errors.New("timeout")})
	dg, _, err := d.Preview(context.Background(), records)
	require.NoError(t, err)
	assert.Equal(t, "Here is your daily digest of 1 articles across 1 feeds.", dg.Opening)

	d = newDispatcher(t, &fakeSource{}, &fakeMailer{}, fakeOpener{text: " Today in brief. "})
	dg, rendered, err := d.Preview(context.Background(), records)
	require.NoError(t, err)
	assert.Equal(t, "Today in brief.", dg.Opening)
	assert.Contains(t, rendered.HTML, "Today in brief.")
}
