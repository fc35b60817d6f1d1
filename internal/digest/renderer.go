package digest

import (
	"bytes"
	"embed"
	"fmt"
	htmltemplate "html/template"
	"strings"
	texttemplate "text/template"
	"time"

	"github.com/skehlet/dailymail/internal/domain"
)

//go:embed "templates"
var templateFS embed.FS

// Rendered is a digest ready to mail.
type Rendered struct {
	Subject string
	Text    string
	HTML    string
}

// Renderer turns a Digest into subject, plain text and HTML bodies.
type Renderer struct {
	subjectPrefix string
	loc           *time.Location
	html          *htmltemplate.Template
	text          *texttemplate.Template
}

type view struct {
	SubjectPrefix string
	Date          string
	Opening       string
	Count         int
	Groups        []domain.DigestGroup
}

// NewRenderer parses the embedded templates.
func NewRenderer(subjectPrefix string, loc *time.Location) (*Renderer, error) {
	if loc == nil {
		loc = time.UTC
	}

	funcs := map[string]any{"paragraphs": paragraphs}

	html, err := htmltemplate.New("digest").Funcs(funcs).ParseFS(templateFS, "templates/digest.html")
	if err != nil {
		return nil, fmt.Errorf("parse html template: %w", err)
	}
	text, err := texttemplate.New("digest").Funcs(funcs).ParseFS(templateFS, "templates/digest.txt")
	if err != nil {
		return nil, fmt.Errorf("parse text template: %w", err)
	}

	return &Renderer{subjectPrefix: subjectPrefix, loc: loc, html: html, text: text}, nil
}

// Render executes the templates. Groups are rendered in their given order.
func (r *Renderer) Render(d *domain.Digest) (*Rendered, error) {
	generated := d.GeneratedAt
	if generated.IsZero() {
		generated = time.Now()
	}

	data := view{
		SubjectPrefix: r.subjectPrefix,
		Date:          generated.In(r.loc).Format("Monday, January 2, 2006"),
		Opening:       d.Opening,
		Count:         d.RecordCount(),
		Groups:        d.Groups,
	}

	subject := new(bytes.Buffer)
	if err := r.text.ExecuteTemplate(subject, "subject", data); err != nil {
		return nil, fmt.Errorf("render subject: %w", err)
	}

	plainBody := new(bytes.Buffer)
	if err := r.text.ExecuteTemplate(plainBody, "plainBody", data); err != nil {
		return nil, fmt.Errorf("render text body: %w", err)
	}

	htmlBody := new(bytes.Buffer)
	if err := r.html.ExecuteTemplate(htmlBody, "htmlBody", data); err != nil {
		return nil, fmt.Errorf("render html body: %w", err)
	}

	return &Rendered{
		Subject: strings.TrimSpace(subject.String()),
		Text:    plainBody.String(),
		HTML:    htmlBody.String(),
	}, nil
}

// paragraphs splits model output on blank lines.
func paragraphs(s string) []string {
	var out []string
	for _, p := range strings.Split(strings.ReplaceAll(s, "\r\n", "\n"), "\n\n") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
