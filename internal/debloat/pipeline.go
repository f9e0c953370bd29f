package debloat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"unicode/utf8"
)

// Minimum text lengths in runes after cleaning. Captions have a lower
// bar because they are often short by nature.
const (
	minCaptionLen = 20
	minTextLen    = 30
)

// ErrRejected marks a message the pipeline decided to drop. Rejections
// are expected outcomes, not failures; callers check with errors.Is.
var ErrRejected = errors.New("message rejected")

// Translator converts cleaned text into the target language.
type Translator interface {
	Translate(ctx context.Context, text string, isCaption bool) (string, error)
}

// Reviewer forwards ambiguous messages to the review channel for a
// human decision.
type Reviewer interface {
	ForwardToReview(ctx context.Context, chatID int64, messageID int) error
	SendToReview(ctx context.Context, text string) error
}

// PatternSource supplies the per-channel allow-patterns.
type PatternSource interface {
	GetPatterns(ctx context.Context, channelID int64) ([]string, error)
}

// Inbound is one message event entering the pipeline.
type Inbound struct {
	ChatID       int64
	MessageID    int
	ChatUsername string
	Text         string // raw text or caption with inline markup
	IsCaption    bool
	Link         string // link to the original message
}

// Pipeline sequences the cleaning stages and the translation step for
// one message.
type Pipeline struct {
	patterns   PatternSource
	translator Translator
	review     Reviewer
	log        *slog.Logger
}

// NewPipeline creates a Pipeline with the given collaborators.
func NewPipeline(patterns PatternSource, translator Translator, review Reviewer, log *slog.Logger) *Pipeline {
	return &Pipeline{
		patterns:   patterns,
		translator: translator,
		review:     review,
		log:        log,
	}
}

// Process cleans and translates one message. It returns ErrRejected
// (wrapped with the reason) when the message should be dropped; any
// other error means both translation backends failed and the message
// cannot be published.
//
// A rejected message triggers at most one review-forward, regardless
// of how many patterns failed to match.
func (p *Pipeline) Process(ctx context.Context, msg Inbound) (string, error) {
	limit := minTextLen
	if msg.IsCaption {
		limit = minCaptionLen
	}

	if IsBlacklisted(msg.Text) {
		return "", fmt.Errorf("blacklist hit: %w", ErrRejected)
	}

	text := StripTags(msg.Text)

	patterns, err := p.patterns.GetPatterns(ctx, msg.ChatID)
	if err != nil {
		return "", fmt.Errorf("load patterns: %w", err)
	}
	text, matched := MatchPatterns(text, patterns)
	if !matched {
		p.log.Info("no pattern matched, forwarding for review", "chat_id", msg.ChatID, "message_id", msg.MessageID)
		if err := p.review.ForwardToReview(ctx, msg.ChatID, msg.MessageID); err != nil {
			p.log.Error("forward to review", "error", err)
		}
		if err := p.review.SendToReview(ctx, text); err != nil {
			p.log.Error("send to review", "error", err)
		}
		return "", fmt.Errorf("no pattern matched: %w", ErrRejected)
	}

	text = StripSelfMention(text, msg.ChatUsername)
	text = StripHashtags(text)

	if HasInviteLink(text) {
		p.log.Info("likely contains ad", "link", msg.Link)
		warning := fmt.Sprintf("likely contains ad, please check! -- %s", msg.Link)
		if err := p.review.SendToReview(ctx, warning); err != nil {
			p.log.Error("send ad warning to review", "error", err)
		}
		return "", fmt.Errorf("invite link found: %w", ErrRejected)
	}

	if utf8.RuneCountInString(text) < limit {
		return "", fmt.Errorf("text shorter than %d: %w", limit, ErrRejected)
	}

	text = SpaceSymbols(text)
	text, symbols := ExtractSymbols(text)
	text = ExpandAbbreviations(text)

	translated, err := p.translator.Translate(ctx, text, msg.IsCaption)
	if err != nil {
		return "", fmt.Errorf("translate: %w", err)
	}

	translated = RestoreSymbols(translated, symbols)
	return StripModifiers(translated), nil
}
