// Package route picks the destination channel for a cleaned post. A
// fast LLM classification maps content to a regional destination; every
// failure mode falls back to the source's configured destination.
package route

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"mirror_bot/internal/model"
)

const (
	defaultOpenRouterURL = "https://openrouter.ai/api/v1"
	classifierModel      = "anthropic/claude-3.5-sonnet"

	// classifyPrefixLen bounds the text sent to the classifier; the
	// lead of a post is enough to place it regionally.
	classifyPrefixLen = 1500

	// minConfidence is the classification confidence below which the
	// source's configured destination wins.
	minConfidence = 0.6
)

// HTTPClient is the interface for performing HTTP requests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// DestinationCache supplies the destination lookup tables and source
// records the router consults.
type DestinationCache interface {
	GetSource(ctx context.Context, channelID int64) (model.SourceDisplay, error)
	GetDestinationMap() map[string]int64
	GetDestinationRegions() []string
}

// Router classifies post text into one of the configured regional
// destinations.
type Router struct {
	client  HTTPClient
	cache   DestinationCache
	apiKey  string
	baseURL string
	log     *slog.Logger
}

// NewRouter creates a Router over the given cache and API credentials.
func NewRouter(client HTTPClient, cache DestinationCache, apiKey string, log *slog.Logger) *Router {
	return &Router{
		client:  client,
		cache:   cache,
		apiKey:  apiKey,
		baseURL: defaultOpenRouterURL,
		log:     log,
	}
}

// Destination resolves where to publish a post from the given source.
// The source's configured destination is the fallback for every
// classification failure; a source with no destination returns 0,
// meaning the post must not be published.
func (r *Router) Destination(ctx context.Context, text string, sourceID int64) (int64, error) {
	src, err := r.cache.GetSource(ctx, sourceID)
	if err != nil {
		return 0, fmt.Errorf("get source %d: %w", sourceID, err)
	}
	if src.Destination == 0 {
		r.log.Warn("no destination configured for source", "source_id", sourceID)
		return 0, nil
	}
	return r.Route(ctx, text, src.Destination), nil
}

// Route returns the regional destination for the text, or defaultDest
// when the text is empty, no destinations are configured, the
// classifier fails, or its confidence is below the threshold.
func (r *Router) Route(ctx context.Context, text string, defaultDest int64) int64 {
	if text == "" {
		return defaultDest
	}

	destMap := r.cache.GetDestinationMap()
	regions := r.cache.GetDestinationRegions()
	if len(destMap) == 0 {
		return defaultDest
	}

	region, confidence, err := r.classify(ctx, text, regions)
	if err != nil {
		r.log.Error("routing error", "error", err)
		return defaultDest
	}

	channelID, known := destMap[region]
	if confidence < minConfidence || !known {
		r.log.Info("low confidence, using source default destination", "region", region, "confidence", confidence)
		return defaultDest
	}

	r.log.Info("routed by classifier", "region", region, "confidence", confidence)
	return channelID
}

func (r *Router) classify(ctx context.Context, text string, regions []string) (string, float64, error) {
	if runes := []rune(text); len(runes) > classifyPrefixLen {
		text = string(runes[:classifyPrefixLen])
	}

	prompt := fmt.Sprintf(`Classify this news into ONE region: %s

Regions:
- kaukasus: Armenia, Azerbaijan, Georgia
- südamerika: South America
- afrika: Africa
- ukraine: Ukraine
- asien: Asia, China, India, Japan, Korea, Southeast Asia
- naher osten: Middle East, Syria, Iran, Turkey, Saudi Arabia, Israel

Text: %s

Reply ONLY with JSON: {"region": "name", "confidence": 0.9}`, strings.Join(regions, ", "), text)

	reqBody, err := json.Marshal(map[string]any{
		"model": classifierModel,
		"messages": []map[string]string{
			{"role": "user", "content": prompt},
		},
		"temperature": 0.1,
		"max_tokens":  50,
	})
	if err != nil {
		return "", 0, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		r.baseURL+"/chat/completions", bytes.NewReader(reqBody))
	if err != nil {
		return "", 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+r.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return "", 0, fmt.Errorf("http post: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return "", 0, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var body struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", 0, fmt.Errorf("decode response: %w", err)
	}
	if len(body.Choices) == 0 {
		return "", 0, fmt.Errorf("empty response")
	}

	region, confidence, err := parseVerdict(body.Choices[0].Message.Content)
	if err != nil {
		return "", 0, fmt.Errorf("parse verdict: %w", err)
	}
	return region, confidence, nil
}

// parseVerdict extracts the region/confidence pair from the model's
// reply, tolerating markdown code fences around the JSON.
func parseVerdict(content string) (string, float64, error) {
	content = strings.TrimSpace(content)
	if strings.Contains(content, "```") {
		parts := strings.Split(content, "```")
		if len(parts) < 2 {
			return "", 0, fmt.Errorf("unbalanced code fence")
		}
		content = strings.TrimSpace(strings.Replace(parts[1], "json", "", 1))
	}

	var verdict struct {
		Region     string  `json:"region"`
		Confidence float64 `json:"confidence"`
	}
	if err := json.Unmarshal([]byte(content), &verdict); err != nil {
		return "", 0, err
	}
	return strings.ToLower(verdict.Region), verdict.Confidence, nil
}
