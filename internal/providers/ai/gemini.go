package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

type GeminiOptions struct {
	APIKey     string
	Model      string
	BaseURL    string
	HTTPClient *http.Client
	Fallback   Enhancer
	OnFallback func(reason string, err error)
}

type GeminiEnhancer struct {
	apiKey   string
	model    string
	baseURL  string
	client   *http.Client
	fallback fallbackChain
}

const geminiDefaultTimeout = 30 * time.Second

type geminiRequest struct {
	SystemInstruction *geminiContent          `json:"systemInstruction,omitempty"`
	Contents          []geminiContent         `json:"contents"`
	GenerationConfig  *geminiGenerationConfig `json:"generationConfig,omitempty"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text,omitempty"`
}

type geminiGenerationConfig struct {
	Temperature    float64 `json:"temperature,omitempty"`
	CandidateCount int     `json:"candidateCount,omitempty"`
}

type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
}

func NewGeminiEnhancer(opts GeminiOptions) (*GeminiEnhancer, error) {
	if opts.APIKey == "" {
		return nil, errors.New("gemini api key is required")
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://generativelanguage.googleapis.com/v1beta"
	}
	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = "gemini-1.5-flash"
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: geminiDefaultTimeout}
	}
	return &GeminiEnhancer{
		apiKey:   opts.APIKey,
		model:    model,
		baseURL:  baseURL,
		client:   client,
		fallback: fallbackChain{next: opts.Fallback, onFallback: opts.OnFallback},
	}, nil
}

func (g *GeminiEnhancer) EnhanceDescription(ctx context.Context, text, locale string) (*Response, error) {
	text, err := validateInput(text)
	if err != nil {
		return nil, err
	}
	out, reason, err := g.generate(ctx, enhanceSystemPrompt, enhanceUserPrompt(text, locale), 0.7)
	if err != nil {
		return g.fallback.enhance(ctx, text, locale, reason, err)
	}
	return &Response{
		Text:     out,
		Metadata: ensureMetadata(map[string]string{"model": g.model}, locale),
		Provider: geminiProviderName,
	}, nil
}

func (g *GeminiEnhancer) Translate(ctx context.Context, text, targetLang string) (*Response, error) {
	text, err := validateInput(text)
	if err != nil {
		return nil, err
	}
	tag, err := NormalizeLanguage(targetLang)
	if err != nil {
		return nil, err
	}
	out, reason, err := g.generate(ctx, translateSystemPrompt(tag), text, 0.3)
	if err != nil {
		return g.fallback.translate(ctx, text, targetLang, reason, err)
	}
	return &Response{
		Text:     out,
		Language: tag.String(),
		Metadata: ensureMetadata(map[string]string{"model": g.model}, tag.String()),
		Provider: geminiProviderName,
	}, nil
}

func (g *GeminiEnhancer) generate(ctx context.Context, system, user string, temperature float64) (string, string, error) {
	payload := geminiRequest{
		SystemInstruction: &geminiContent{Parts: []geminiPart{{Text: system}}},
		Contents: []geminiContent{{
			Role:  "user",
			Parts: []geminiPart{{Text: user}},
		}},
		GenerationConfig: &geminiGenerationConfig{
			Temperature:    temperature,
			CandidateCount: 1,
		},
	}
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(payload); err != nil {
		return "", "encode_request", err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.endpoint(), &buf)
	if err != nil {
		return "", "build_request", err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", g.apiKey)
	resp, err := g.client.Do(httpReq)
	if err != nil {
		return "", "http_request", err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode >= 300 {
		return "", fmt.Sprintf("http_%d", resp.StatusCode), fmt.Errorf("gemini status %d", resp.StatusCode)
	}
	var out geminiResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", "decode_response", err
	}
	text := cleanCompletion(g.extractText(out))
	if text == "" {
		return "", "empty_response", errors.New("empty response")
	}
	return text, "", nil
}

func (g *GeminiEnhancer) endpoint() string {
	return fmt.Sprintf("%s/models/%s:generateContent", g.baseURL, url.PathEscape(g.model))
}

func (g *GeminiEnhancer) extractText(resp geminiResponse) string {
	for _, c := range resp.Candidates {
		var sb strings.Builder
		for _, p := range c.Content.Parts {
			sb.WriteString(p.Text)
		}
		if s := strings.TrimSpace(sb.String()); s != "" {
			return s
		}
	}
	return ""
}

var _ Enhancer = (*GeminiEnhancer)(nil)
