package emailreader_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skehlet/dailymail/infrastructure/logger"
	"github.com/skehlet/dailymail/internal/domain"
	"github.com/skehlet/dailymail/internal/emailreader"
	"github.com/skehlet/dailymail/internal/mail"
)

type fakeStager struct {
	staged []domain.Record
}

func (f *fakeStager) Stage(_ context.Context, rec domain.Record) (string, error) {
	f.staged = append(f.staged, rec)
	return "incoming/email-1.json", nil
}

type fakeNotifier struct {
	sent []any
}

func (f *fakeNotifier) Send(_ context.Context, body any) (string, error) {
	f.sent = append(f.sent, body)
	return "1-0", nil
}

type fakeMailer struct {
	sent []mail.Message
}

func (f *fakeMailer) Send(_ context.Context, msg mail.Message) (string, error) {
	f.sent = append(f.sent, msg)
	return "<id@example.com>", nil
}

func newReader(mailer mail.Mailer) (*emailreader.Reader, *fakeStager, *fakeNotifier) {
	st := &fakeStager{}
	nt := &fakeNotifier{}
	rd := emailreader.NewReader(st, nt, mailer, emailreader.Config{
		AllowedSenders: []string{"Me <me@example.com>"},
		From:           "digest@example.com",
	}, logger.NewNop())
	return rd, st, nt
}

func raw(lines ...string) *strings.Reader {
	return strings.NewReader(strings.Join(lines, "\r\n"))
}

func TestReader_Read_PlainText(t *testing.T) {
	t.Parallel()

	rd, st, nt := newReader(nil)
	res, err := rd.Read(context.Background(), raw(
		"Return-Path: <me+alerts@example.com>",
		"From: Someone Else <news@publisher.example>",
		"Subject: Fwd: Weekly roundup",
		"Date: Mon, 22 Apr 2024 21:09:53 +0000",
		"Content-Type: text/plain; charset=utf-8",
		"",
		"Body of the newsletter.",
	))
	require.NoError(t, err)

	assert.Equal(t, "incoming/email-1.json", res.StagingKey)
	require.Len(t, st.staged, 1)
	rec := st.staged[0]
	assert.Equal(t, domain.RecordTypeEmail, rec.Type)
	assert.Equal(t, emailreader.EmailFeedTitle, rec.FeedTitle)
	assert.Equal(t, "Weekly roundup", rec.Title)
	assert.Equal(t, "Body of the newsletter.", rec.Content)
	assert.Equal(t, "Mon, 22 Apr 2024 21:09:53 +0000", rec.Published)
	assert.Equal(t, []any{domain.StagedNotice{StagingKey: "incoming/email-1.json"}}, nt.sent)
}

func TestReader_Read_MultipartPrefersPlain(t *testing.T) {
	t.Parallel()

	rd, st, _ := newReader(nil)
	_, err := rd.Read(context.Background(), raw(
		"From: me@example.com",
		"Subject: =?utf-8?q?Caf=C3=A9_news?=",
		"MIME-Version: 1.0",
		`Content-Type: multipart/alternative; boundary="b1"`,
		"",
		"--b1",
		"Content-Type: text/html; charset=utf-8",
		"",
		"<p>html version</p>",
		"--b1",
		"Content-Type: text/plain; charset=utf-8",
		"Content-Transfer-Encoding: quoted-printable",
		"",
		"plain =3D version",
		"--b1--",
	))
	require.NoError(t, err)

	require.Len(t, st.staged, 1)
	assert.Equal(t, "Café news", st.staged[0].Title)
	assert.Equal(t, "plain = version", st.staged[0].Content)
}

func TestReader_Read_HTMLOnlyIsStripped(t *testing.T) {
	t.Parallel()

	rd, st, _ := newReader(nil)
	_, err := rd.Read(context.Background(), raw(
		"From: me@example.com",
		"Subject: html",
		"Content-Type: text/html",
		"Content-Transfer-Encoding: base64",
		"",
		"PGh0bWw+PGJvZHk+PHA+SGVsbG8g",
		"d29ybGQ8L3A+PC9ib2R5PjwvaHRtbD4=",
	))
	require.NoError(t, err)

	require.Len(t, st.staged, 1)
	assert.Equal(t, "Hello world", st.staged[0].Content)
}

func TestReader_Read_DecodesLatin1(t *testing.T) {
	t.Parallel()

	rd, st, _ := newReader(nil)
	_, err := rd.Read(context.Background(), raw(
		"From: me@example.com",
		"Subject: =?iso-8859-1?q?Caf=E9_news?=",
		"Content-Type: text/plain; charset=iso-8859-1",
		"",
		"Le caf\xe9 est ouvert.",
	))
	require.NoError(t, err)

	require.Len(t, st.staged, 1)
	assert.Equal(t, "Café news", st.staged[0].Title)
	assert.Equal(t, "Le café est ouvert.", st.staged[0].Content)
}

func TestReader_Read_RejectsUnknownSender(t *testing.T) {
	t.Parallel()

	rd, st, nt := newReader(nil)
	_, err := rd.Read(context.Background(), raw(
		"From: spammer@example.net",
		"Subject: hi",
		"",
		"buy now",
	))

	require.ErrorIs(t, err, emailreader.ErrSenderNotAllowed)
	assert.Empty(t, st.staged)
	assert.Empty(t, nt.sent)
}

func TestReader_Read_NoSender(t *testing.T) {
	t.Parallel()

	rd, _, _ := newReader(nil)
	_, err := rd.Read(context.Background(), raw("Subject: nobody", "", "x"))
	assert.True(t, errors.Is(err, emailreader.ErrNoSender))
}

func TestReader_Read_ForwardingConfirmationIsReturned(t *testing.T) {
	t.Parallel()

	m := &fakeMailer{}
	rd, st, _ := newReader(m)
	res, err := rd.Read(context.Background(), raw(
		"From: me@example.com",
		"Subject: (#123) Gmail Forwarding Confirmation - Receive Mail from me@gmail.com",
		"",
		"Click the link to confirm.",
	))
	require.NoError(t, err)

	assert.True(t, res.Confirmation)
	assert.Empty(t, st.staged)
	require.Len(t, m.sent, 1)
	assert.Equal(t, []string{"me@gmail.com"}, m.sent[0].To)
	assert.Equal(t, "digest@example.com", m.sent[0].From)
	assert.Equal(t, "Click the link to confirm.", m.sent[0].Text)
}

func TestBuildRecord_ForwardedGoogleAlertKeepsTopic(t *testing.T) {
	t.Parallel()

	rec := emailreader.BuildRecord("Fwd: FW: Google Alert - golang", "body", "")
	assert.Equal(t, emailreader.EmailFeedTitle, rec.FeedTitle)
	assert.Equal(t, "Google Alert - golang", rec.Title)
}

func TestCleanAddress(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in, want string
	}{
		{"me@example.com", "me@example.com"},
		{"Me <Me+News@Example.com>", "me@example.com"},
		{"<me+a+b@example.com>", "me@example.com"},
		{"  ", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, emailreader.CleanAddress(tt.in), tt.in)
	}
}
