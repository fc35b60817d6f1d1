// Package emailreader turns forwarded emails into records for the summarizer.
package emailreader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/mail"
	"regexp"
	"slices"
	"strings"

	"github.com/skehlet/dailymail/infrastructure/logger"
	"github.com/skehlet/dailymail/internal/domain"
	dmmail "github.com/skehlet/dailymail/internal/mail"
)

// EmailFeedTitle groups ordinary forwarded mail in the digest.
const EmailFeedTitle = "Email"

var (
	// ErrSenderNotAllowed is returned for mail from a sender outside the
	// allow-list.
	ErrSenderNotAllowed = errors.New("sender not allowed")
	// ErrNoSender is returned when neither Return-Path nor From parse.
	ErrNoSender = errors.New("message has no sender")
)

var (
	plusTag             = regexp.MustCompile(`\+[^@]*@`)
	forwardPrefix       = regexp.MustCompile(`(?i)^((fwd?|fw):\s*)+`)
	forwardConfirmation = regexp.MustCompile(`Receive Mail from (\S+)`)
)

// RecordStager writes a record to the staging area.
type RecordStager interface {
	Stage(ctx context.Context, rec domain.Record) (string, error)
}

// Notifier tells the summarizer a record was staged.
type Notifier interface {
	Send(ctx context.Context, body any) (string, error)
}

// Config configures a Reader.
type Config struct {
	AllowedSenders []string
	// From is the address used when bouncing a forwarding confirmation.
	From string
}

// Reader parses forwarded mail and stages it.
type Reader struct {
	stager  RecordStager
	notify  Notifier
	mailer  dmmail.Mailer
	allowed []string
	from    string
	log     logger.Logger
}

// NewReader creates a Reader. mailer may be nil, in which case forwarding
// confirmations are only logged.
func NewReader(stager RecordStager, notify Notifier, mailer dmmail.Mailer, cfg Config, log logger.Logger) *Reader {
	allowed := make([]string, 0, len(cfg.AllowedSenders))
	for _, s := range cfg.AllowedSenders {
		if s = CleanAddress(s); s != "" {
			allowed = append(allowed, s)
		}
	}
	return &Reader{stager: stager, notify: notify, mailer: mailer, allowed: allowed, from: cfg.From, log: log}
}

// Result describes what Read did with a message.
type Result struct {
	StagingKey string
	// Confirmation is set when the message was a forwarding confirmation
	// that was sent back instead of staged.
	Confirmation bool
}

// Read parses one RFC 5322 message from r. Mail from an allowed sender is
// staged and announced to the summarizer.
func (rd *Reader) Read(ctx context.Context, r io.Reader) (Result, error) {
	msg, err := mail.ReadMessage(r)
	if err != nil {
		return Result{}, fmt.Errorf("parse message: %w", err)
	}

	sender, err := senderAddress(msg.Header)
	if err != nil {
		return Result{}, err
	}
	if !slices.Contains(rd.allowed, sender) {
		rd.log.Warn("dropping mail from unknown sender", logger.String("sender", sender))
		return Result{}, fmt.Errorf("%s: %w", sender, ErrSenderNotAllowed)
	}

	subject := decodeHeader(msg.Header.Get("Subject"))
	body, err := primaryText(headerOf(msg.Header), msg.Body)
	if err != nil {
		return Result{}, err
	}

	if originator := confirmationOriginator(subject); originator != "" {
		return Result{Confirmation: true}, rd.bounceConfirmation(ctx, originator, subject, body)
	}

	rec := BuildRecord(subject, body, msg.Header.Get("Date"))

	key, err := rd.stager.Stage(ctx, rec)
	if err != nil {
		return Result{}, fmt.Errorf("stage email: %w", err)
	}
	if _, err = rd.notify.Send(ctx, domain.StagedNotice{StagingKey: key}); err != nil {
		return Result{}, fmt.Errorf("notify summarizer for %s: %w", key, err)
	}

	rd.log.Info("email staged",
		logger.String("sender", sender),
		logger.String("subject", subject),
		logger.String("staging_key", key),
	)

	return Result{StagingKey: key}, nil
}

// BuildRecord makes the email record. Forwarding prefixes are dropped from
// the subject so a forwarded "Google Alert - X" keeps its topic.
func BuildRecord(subject, body, date string) domain.Record {
	title := strings.TrimSpace(forwardPrefix.ReplaceAllString(subject, ""))

	return domain.Record{
		Type:      domain.RecordTypeEmail,
		FeedTitle: EmailFeedTitle,
		Title:     title,
		Content:   body,
		Published: strings.TrimSpace(date),
	}
}

func (rd *Reader) bounceConfirmation(ctx context.Context, originator, subject, body string) error {
	if rd.mailer == nil || rd.from == "" {
		rd.log.Warn("forwarding confirmation received but no mailer configured",
			logger.String("originator", originator),
		)
		return nil
	}

	_, err := rd.mailer.Send(ctx, dmmail.Message{
		From:    rd.from,
		To:      []string{originator},
		Subject: "Fwd: " + subject,
		Text:    body,
	})
	if err != nil {
		return fmt.Errorf("return forwarding confirmation: %w", err)
	}

	rd.log.Info("forwarding confirmation returned", logger.String("originator", originator))
	return nil
}

// CleanAddress strips the display name and any +tag from addr and lowercases
// it.
func CleanAddress(addr string) string {
	addr = strings.TrimSpace(addr)
	if parsed, err := mail.ParseAddress(addr); err == nil {
		addr = parsed.Address
	}
	addr = strings.Trim(addr, "<>")
	return strings.ToLower(plusTag.ReplaceAllString(addr, "@"))
}

// senderAddress prefers Return-Path, since forwarded mail keeps the
// original author in From.
func senderAddress(h mail.Header) (string, error) {
	for _, key := range []string{"Return-Path", "From"} {
		if v := strings.TrimSpace(h.Get(key)); v != "" {
			if addr := CleanAddress(v); strings.Contains(addr, "@") {
				return addr, nil
			}
		}
	}
	return "", ErrNoSender
}

func confirmationOriginator(subject string) string {
	if !strings.Contains(subject, "Gmail Forwarding Confirmation") {
		return ""
	}
	if m := forwardConfirmation.FindStringSubmatch(subject); m != nil {
		return m[1]
	}
	return ""
}

func decodeHeader(v string) string {
	dec := mime.WordDecoder{CharsetReader: charsetReader}
	decoded, err := dec.DecodeHeader(v)
	if err != nil {
		return v
	}
	return decoded
}
