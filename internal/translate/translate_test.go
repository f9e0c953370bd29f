package translate

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"testing"
	"unicode/utf8"
)

type fakeBackend struct {
	name   string
	result string
	err    error
	calls  []string
}

func (f *fakeBackend) Name() string { return f.name }

func (f *fakeBackend) Translate(_ context.Context, text string) (string, error) {
	f.calls = append(f.calls, text)
	if f.err != nil {
		return "", f.err
	}
	if f.result != "" {
		return f.result, nil
	}
	return text, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestServicePrimaryUsed(t *testing.T) {
	primary := &fakeBackend{name: "primary", result: "übersetzt"}
	fallback := &fakeBackend{name: "fallback"}
	svc := NewService(primary, fallback, discardLogger())

	got, err := svc.Translate(context.Background(), "original", false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "übersetzt" {
		t.Errorf("got %q, want primary result", got)
	}
	if len(fallback.calls) != 0 {
		t.Errorf("fallback should not be called when primary succeeds")
	}
}

func TestServiceFallbackOnPrimaryFailure(t *testing.T) {
	primary := &fakeBackend{name: "primary", err: errors.New("quota exceeded")}
	fallback := &fakeBackend{name: "fallback", result: "ersatz"}
	svc := NewService(primary, fallback, discardLogger())

	got, err := svc.Translate(context.Background(), "original", false)
	if err != nil {
		t.Fatalf("primary failure must degrade, not propagate: %v", err)
	}
	if got != "ersatz" {
		t.Errorf("got %q, want fallback result", got)
	}
	if len(primary.calls) != 1 || len(fallback.calls) != 1 {
		t.Errorf("want one call each, got primary=%d fallback=%d",
			len(primary.calls), len(fallback.calls))
	}
}

func TestServiceBothBackendsFail(t *testing.T) {
	primary := &fakeBackend{name: "primary", err: errors.New("down")}
	fallback := &fakeBackend{name: "fallback", err: errors.New("also down")}
	svc := NewService(primary, fallback, discardLogger())

	if _, err := svc.Translate(context.Background(), "original", false); err == nil {
		t.Fatal("expected error when both backends fail")
	}
}

func TestServiceCaptionPreTruncation(t *testing.T) {
	primary := &fakeBackend{name: "primary"}
	svc := NewService(primary, &fakeBackend{name: "fallback"}, discardLogger())

	long := strings.Repeat("wordy sentence goes on. ", 100)
	if _, err := svc.Translate(context.Background(), long, true); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	budget := CaptionLimit - FooterReserve
	if len(primary.calls) != 1 {
		t.Fatalf("want one primary call, got %d", len(primary.calls))
	}
	if n := utf8.RuneCountInString(primary.calls[0]); n > budget {
		t.Errorf("caption sent to backend is %d runes, over the %d budget", n, budget)
	}
}

func TestServiceCaptionPostTruncation(t *testing.T) {
	// Backend output that grew past the budget must be cut again.
	primary := &fakeBackend{name: "primary", result: strings.Repeat("gewachsen. ", 120)}
	svc := NewService(primary, &fakeBackend{name: "fallback"}, discardLogger())

	got, err := svc.Translate(context.Background(), "kurz", true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	budget := CaptionLimit - FooterReserve
	if n := utf8.RuneCountInString(got); n > budget {
		t.Errorf("caption result is %d runes, over the %d budget", n, budget)
	}
}

type mockHTTPClient struct {
	status int
	body   string
	err    error
	reqs   []*http.Request
}

func (m *mockHTTPClient) Do(req *http.Request) (*http.Response, error) {
	m.reqs = append(m.reqs, req)
	if m.err != nil {
		return nil, m.err
	}
	return &http.Response{
		StatusCode: m.status,
		Body:       io.NopCloser(strings.NewReader(m.body)),
	}, nil
}

func TestDeepLTranslate(t *testing.T) {
	client := &mockHTTPClient{
		status: http.StatusOK,
		body:   `{"translations":[{"text":"Hallo Welt"}]}`,
	}
	d := NewDeepL(client, "key", "de")

	got, err := d.Translate(context.Background(), "hello world")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "Hallo Welt" {
		t.Errorf("got %q, want %q", got, "Hallo Welt")
	}

	req := client.reqs[0]
	if auth := req.Header.Get("Authorization"); auth != "DeepL-Auth-Key key" {
		t.Errorf("wrong auth header: %q", auth)
	}
	if err := req.ParseForm(); err != nil {
		t.Fatalf("parse form: %v", err)
	}
	if got := req.PostForm.Get("target_lang"); got != "DE" {
		t.Errorf("target_lang = %q, want DE", got)
	}
	if got := req.PostForm.Get("tag_handling"); got != "html" {
		t.Errorf("tag_handling = %q, want html", got)
	}
}

func TestDeepLQuotaExceeded(t *testing.T) {
	client := &mockHTTPClient{status: 456, body: ""}
	d := NewDeepL(client, "key", "de")

	if _, err := d.Translate(context.Background(), "hello"); err == nil {
		t.Fatal("expected error on quota status")
	}
}

func TestGoogleTranslate(t *testing.T) {
	client := &mockHTTPClient{
		status: http.StatusOK,
		body:   `[[["Hallo ","hello ",null],["Welt","world",null]],null,"en"]`,
	}
	g := NewGoogle(client, "de")

	got, err := g.Translate(context.Background(), "hello world")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "Hallo Welt" {
		t.Errorf("got %q, want %q", got, "Hallo Welt")
	}

	q := client.reqs[0].URL.Query()
	if q.Get("client") != "gtx" || q.Get("tl") != "de" || q.Get("sl") != "auto" {
		t.Errorf("unexpected query: %v", q)
	}
}

func TestGoogleMalformedResponse(t *testing.T) {
	client := &mockHTTPClient{status: http.StatusOK, body: `{"not":"an array"}`}
	g := NewGoogle(client, "de")

	if _, err := g.Translate(context.Background(), "hello"); err == nil {
		t.Fatal("expected error on malformed response")
	}
}
