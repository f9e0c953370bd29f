package translate

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

const defaultDeepLURL = "https://api-free.deepl.com"

// DeepL is the primary, quota-limited translation backend. Requests
// are tag-aware so anchor tags and placeholders survive translation.
type DeepL struct {
	client     HTTPClient
	apiKey     string
	baseURL    string
	targetLang string
}

// NewDeepL creates a DeepL backend targeting the given language code.
func NewDeepL(client HTTPClient, apiKey, targetLang string) *DeepL {
	return &DeepL{
		client:     client,
		apiKey:     apiKey,
		baseURL:    defaultDeepLURL,
		targetLang: targetLang,
	}
}

func (d *DeepL) Name() string { return "deepl" }

// Translate sends the text to the DeepL v2 API with HTML tag handling
// and full sentence splitting.
func (d *DeepL) Translate(ctx context.Context, text string) (string, error) {
	form := url.Values{}
	form.Set("text", text)
	form.Set("target_lang", strings.ToUpper(d.targetLang))
	form.Set("tag_handling", "html")
	form.Set("split_sentences", "1")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.baseURL+"/v2/translate",
		strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "DeepL-Auth-Key "+d.apiKey)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := d.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("http post: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	// 456 is DeepL's quota-exceeded status.
	if resp.StatusCode == 456 {
		return "", fmt.Errorf("quota exceeded")
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var body struct {
		Translations []struct {
			Text string `json:"text"`
		} `json:"translations"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if len(body.Translations) == 0 {
		return "", fmt.Errorf("empty response")
	}
	return body.Translations[0].Text, nil
}
