package translate

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

const defaultGoogleURL = "https://translate.googleapis.com"

// Google is the free, best-effort fallback backend used when the
// primary reports quota exhaustion or any other failure.
type Google struct {
	client     HTTPClient
	baseURL    string
	targetLang string
}

// NewGoogle creates a Google backend targeting the given language code.
func NewGoogle(client HTTPClient, targetLang string) *Google {
	return &Google{
		client:     client,
		baseURL:    defaultGoogleURL,
		targetLang: targetLang,
	}
}

func (g *Google) Name() string { return "google" }

// Translate calls the unauthenticated gtx endpoint with source
// language auto-detection.
func (g *Google) Translate(ctx context.Context, text string) (string, error) {
	q := url.Values{}
	q.Set("client", "gtx")
	q.Set("sl", "auto")
	q.Set("tl", g.targetLang)
	q.Set("dt", "t")
	q.Set("q", text)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		g.baseURL+"/translate_a/single?"+q.Encode(), nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("http get: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	// The gtx endpoint returns nested arrays; the first element holds
	// the translated segments as [translated, original, ...] tuples.
	var body []json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if len(body) == 0 {
		return "", fmt.Errorf("empty response")
	}

	var segments [][]json.RawMessage
	if err := json.Unmarshal(body[0], &segments); err != nil {
		return "", fmt.Errorf("decode segments: %w", err)
	}

	var b strings.Builder
	for _, seg := range segments {
		if len(seg) == 0 {
			continue
		}
		var part string
		if err := json.Unmarshal(seg[0], &part); err != nil {
			continue
		}
		b.WriteString(part)
	}
	if b.Len() == 0 {
		return "", fmt.Errorf("no translated segments")
	}
	return b.String(), nil
}
