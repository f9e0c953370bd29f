// Package translate wraps the translation backends behind a single
// service that degrades from the paid primary to the free fallback and
// keeps output within the platform's caption limits.
package translate

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"unicode/utf8"
)

// CaptionLimit is the platform's media caption length. FooterReserve
// is the space held back for the attribution footer.
const (
	CaptionLimit  = 1024
	FooterReserve = 200
)

// HTTPClient is the interface for performing HTTP requests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Backend translates text into the configured target language.
type Backend interface {
	Name() string
	Translate(ctx context.Context, text string) (string, error)
}

// Service selects between a primary and a fallback backend. Primary
// failures (quota exhaustion, network errors, server errors) degrade
// to the fallback; only both backends failing is an error.
type Service struct {
	primary  Backend
	fallback Backend
	log      *slog.Logger
}

// NewService creates a Service over the given backends.
func NewService(primary, fallback Backend, log *slog.Logger) *Service {
	return &Service{primary: primary, fallback: fallback, log: log}
}

// Translate translates text. When isCaption is set, the input is
// truncated to the caption budget before translation (no point paying
// for text that will be cut) and the output is re-truncated if the
// translation grew past the budget. Long output is re-chunked into
// paragraph-sized pieces either way.
func (s *Service) Translate(ctx context.Context, text string, isCaption bool) (string, error) {
	budget := CaptionLimit - FooterReserve
	if isCaption && utf8.RuneCountInString(text) > budget {
		s.log.Info("pre-truncating caption before translation", "len", utf8.RuneCountInString(text), "budget", budget)
		text = TruncateText(text, budget)
	}

	translated, err := s.primary.Translate(ctx, text)
	if err != nil {
		s.log.Warn("primary translator failed, falling back", "backend", s.primary.Name(), "error", err)
		translated, err = s.fallback.Translate(ctx, text)
		if err != nil {
			return "", fmt.Errorf("both translation backends failed: %w", err)
		}
	}

	translated = ChunkParagraphs(translated)

	if isCaption && utf8.RuneCountInString(translated) > budget {
		s.log.Warn("post-translation truncation needed", "len", utf8.RuneCountInString(translated))
		translated = TruncateText(translated, budget)
	}

	return translated, nil
}
