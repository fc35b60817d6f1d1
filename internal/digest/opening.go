package digest

import (
	"context"
	"fmt"
	"strings"

	"github.com/skehlet/dailymail/internal/domain"
	"github.com/skehlet/dailymail/internal/llm"
)

const openingInstructions = `Write a single opening paragraph of 2-3 sentences for today's briefing.
Weave specific details from the most important stories below into one narrative instead of listing categories.
Return the paragraph text only, with no greeting, title or markdown.

Stories:
`

// Opener writes the paragraph shown at the top of the digest.
type Opener interface {
	Opening(ctx context.Context, groups []domain.DigestGroup) (string, error)
}

// LLMOpener asks the model for the opening paragraph.
type LLMOpener struct {
	completer    llm.Completer
	maxTextChars int
}

// NewLLMOpener creates an LLMOpener.
func NewLLMOpener(completer llm.Completer, maxTextChars int) *LLMOpener {
	return &LLMOpener{completer: completer, maxTextChars: maxTextChars}
}

// Opening implements Opener. At most two summaries per group are sent.
func (o *LLMOpener) Opening(ctx context.Context, groups []domain.DigestGroup) (string, error) {
	var stories strings.Builder
	for _, g := range groups {
		fmt.Fprintf(&stories, "Category: %s (%d articles)\n", g.FeedTitle, len(g.Records))
		for i, r := range g.Records {
			if i == 2 {
				break
			}
			if r.Summary != DefaultSummary {
				fmt.Fprintf(&stories, "- %s\n", r.Summary)
			}
		}
		stories.WriteString("\n")
	}

	text, err := o.completer.Complete(ctx, editorSystemPrompt, openingInstructions+llm.Truncate(stories.String(), o.maxTextChars))
	if err != nil {
		return "", fmt.Errorf("opening paragraph: %w", err)
	}
	return text, nil
}

// FallbackOpening is used when no Opener is configured or it fails.
func FallbackOpening(groups []domain.DigestGroup) string {
	n := 0
	for _, g := range groups {
		n += len(g.Records)
	}
	return fmt.Sprintf("Here is your daily digest of %d articles across %d feeds.", n, len(groups))
}
