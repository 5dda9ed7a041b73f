package ai

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/yueliao11/Donate-On-Flow/internal/domain"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) {
	return f(r)
}

func failingClient() *http.Client {
	return &http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
		return nil, errors.New("boom")
	})}
}

func TestOpenAIEnhanceDescription(t *testing.T) {
	var got openAIChatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" || r.Header.Get("Authorization") != "Bearer key" {
			t.Errorf("unexpected request %s auth=%q", r.URL.Path, r.Header.Get("Authorization"))
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		io.WriteString(w, `{"choices":[{"message":{"content":"  \"A brighter future for every child.\" "}}]}`)
	}))
	defer srv.Close()

	e, err := NewOpenAIEnhancer(OpenAIOptions{APIKey: "key", BaseURL: srv.URL + "/"})
	if err != nil {
		t.Fatalf("NewOpenAIEnhancer: %v", err)
	}
	res, err := e.EnhanceDescription(context.Background(), "help kids", "")
	if err != nil {
		t.Fatalf("EnhanceDescription: %v", err)
	}
	if res.Text != "A brighter future for every child." || res.Provider != openAIProviderName {
		t.Fatalf("res = %+v", res)
	}
	if got.Model != "deepseek-chat" || len(got.Messages) != 2 || got.Messages[1].Content != "help kids" {
		t.Fatalf("request = %+v", got)
	}
	if !strings.Contains(got.Messages[0].Content, "charity project descriptions") {
		t.Fatalf("system prompt = %q", got.Messages[0].Content)
	}
}

func TestOpenAITranslate(t *testing.T) {
	var system string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req openAIChatRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		system = req.Messages[0].Content
		io.WriteString(w, `{"choices":[{"message":{"content":"こんにちは"}}]}`)
	}))
	defer srv.Close()

	e, _ := NewOpenAIEnhancer(OpenAIOptions{APIKey: "key", BaseURL: srv.URL})
	res, err := e.Translate(context.Background(), "hello", "Japanese")
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}
	if res.Text != "こんにちは" || res.Language != "ja" {
		t.Fatalf("res = %+v", res)
	}
	if !strings.Contains(system, "to Japanese") {
		t.Fatalf("system prompt = %q", system)
	}

	if _, err := e.Translate(context.Background(), "hello", "klingon-ish!"); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("bad language err = %v", err)
	}
	if _, err := e.Translate(context.Background(), "  ", "ja"); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("empty text err = %v", err)
	}
}

func TestOpenAIEnhancerFallbackMetadata(t *testing.T) {
	var capturedReason string
	e, err := NewOpenAIEnhancer(OpenAIOptions{
		APIKey:     "dummy",
		HTTPClient: failingClient(),
		OnFallback: func(reason string, err error) {
			capturedReason = reason
		},
	})
	if err != nil {
		t.Fatalf("NewOpenAIEnhancer returned error: %v", err)
	}
	res, err := e.EnhanceDescription(context.Background(), " original text ", "id")
	if err != nil {
		t.Fatalf("EnhanceDescription returned error: %v", err)
	}
	if res.Provider != staticProviderName || res.Text != "original text" {
		t.Fatalf("res = %+v", res)
	}
	if res.Metadata["fallback_reason"] != "http_request" || capturedReason != "http_request" {
		t.Fatalf("fallback_reason = %q captured %q", res.Metadata["fallback_reason"], capturedReason)
	}
	if res.Metadata["locale"] != "id" {
		t.Fatalf("locale = %q", res.Metadata["locale"])
	}
}

func TestOpenAIStatusFallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota", http.StatusTooManyRequests)
	}))
	defer srv.Close()
	e, _ := NewOpenAIEnhancer(OpenAIOptions{APIKey: "key", BaseURL: srv.URL})
	res, err := e.Translate(context.Background(), "hello", "zh-Hans")
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}
	if res.Metadata["fallback_reason"] != "http_429" || res.Language != "zh-Hans" {
		t.Fatalf("res = %+v", res)
	}
}

func TestGeminiFallsBackToChainedProvider(t *testing.T) {
	openai, _ := NewOpenAIEnhancer(OpenAIOptions{APIKey: "key", HTTPClient: &http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
		return &http.Response{
			StatusCode: http.StatusOK,
			Header:     http.Header{"Content-Type": {"application/json"}},
			Body:       io.NopCloser(strings.NewReader(`{"choices":[{"message":{"content":"from openai"}}]}`)),
		}, nil
	})}})
	g, err := NewGeminiEnhancer(GeminiOptions{APIKey: "dummy", HTTPClient: failingClient(), Fallback: openai})
	if err != nil {
		t.Fatalf("NewGeminiEnhancer: %v", err)
	}
	res, err := g.EnhanceDescription(context.Background(), "text", "en")
	if err != nil {
		t.Fatalf("EnhanceDescription: %v", err)
	}
	if res.Provider != openAIProviderName || res.Text != "from openai" || res.Metadata["fallback_reason"] != "http_request" {
		t.Fatalf("res = %+v", res)
	}
}

func TestGeminiGenerate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/models/gemini-1.5-flash:generateContent" || r.Header.Get("x-goog-api-key") != "g" {
			t.Errorf("unexpected request %s", r.URL.Path)
		}
		io.WriteString(w, "{\"candidates\":[{\"content\":{\"parts\":[{\"text\":\"```\\nBetter text\\n```\"}]}}]}")
	}))
	defer srv.Close()
	g, _ := NewGeminiEnhancer(GeminiOptions{APIKey: "g", BaseURL: srv.URL})
	res, err := g.EnhanceDescription(context.Background(), "text", "")
	if err != nil {
		t.Fatalf("EnhanceDescription: %v", err)
	}
	if res.Text != "Better text" || res.Provider != geminiProviderName {
		t.Fatalf("res = %+v", res)
	}
}

func TestNormalizeOpenAIModel(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name   string
		input  string
		model  string
		reason string
	}{
		{name: "exact_default", input: "deepseek-chat", model: "deepseek-chat", reason: ""},
		{name: "exact_openai", input: "gpt-4o-mini", model: "gpt-4o-mini", reason: ""},
		{name: "alias_r1", input: "DeepSeek R1", model: "deepseek-reasoner", reason: "alias"},
		{name: "alias_short", input: "gpt-3.5", model: "gpt-3.5-turbo", reason: "alias"},
		{name: "unsupported", input: "llama-3", model: "deepseek-chat", reason: "defaulted"},
		{name: "empty", input: "", model: "deepseek-chat", reason: ""},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			gotModel, gotReason := normalizeOpenAIModel(tc.input)
			if gotModel != tc.model || gotReason != tc.reason {
				t.Fatalf("normalizeOpenAIModel(%q) = %q, %q", tc.input, gotModel, gotReason)
			}
		})
	}
}

func TestNormalizeLanguage(t *testing.T) {
	cases := map[string]string{"en": "en", "zh-CN": "zh-CN", "Japanese": "ja", "spanish": "es"}
	for in, want := range cases {
		tag, err := NormalizeLanguage(in)
		if err != nil || tag.String() != want {
			t.Fatalf("NormalizeLanguage(%q) = %s, %v", in, tag, err)
		}
	}
	if _, err := NormalizeLanguage(""); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("empty err = %v", err)
	}
}

func TestNewSelectsChain(t *testing.T) {
	if _, ok := New(Config{Provider: "static", OpenAIAPIKey: "k"}).(*StaticEnhancer); !ok {
		t.Fatal("static provider should not call out")
	}
	if _, ok := New(Config{}).(*StaticEnhancer); !ok {
		t.Fatal("no keys should yield the static enhancer")
	}
	if _, ok := New(Config{OpenAIAPIKey: "k", GeminiAPIKey: "g"}).(*OpenAIEnhancer); !ok {
		t.Fatal("openai should be primary by default")
	}
	if _, ok := New(Config{Provider: "gemini", OpenAIAPIKey: "k", GeminiAPIKey: "g"}).(*GeminiEnhancer); !ok {
		t.Fatal("gemini should be primary when selected")
	}
}
