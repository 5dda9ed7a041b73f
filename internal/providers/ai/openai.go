package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// OpenAIOptions configures any OpenAI-compatible chat completion endpoint.
// DeepSeek is the default.
type OpenAIOptions struct {
	APIKey       string
	Model        string
	BaseURL      string
	Organization string
	HTTPClient   *http.Client
	Fallback     Enhancer
	OnFallback   func(reason string, err error)
	OnWarning    func(reason, detail string)
}

type OpenAIEnhancer struct {
	apiKey       string
	model        string
	baseURL      string
	organization string
	client       *http.Client
	fallback     fallbackChain
}

const openAIDefaultTimeout = 30 * time.Second

const (
	defaultOpenAIModel   = "deepseek-chat"
	defaultOpenAIBaseURL = "https://api.deepseek.com"
)

var openAIModelCanonical = map[string]string{
	"deepseek-chat":     "deepseek-chat",
	"deepseek-reasoner": "deepseek-reasoner",
	"gpt-4o-mini":       "gpt-4o-mini",
	"gpt-3.5-turbo":     "gpt-3.5-turbo",
}

var openAIModelAliases = map[string]string{
	"deepseek":     "deepseek-chat",
	"deepseek-v3":  "deepseek-chat",
	"deepseek-r1":  "deepseek-reasoner",
	"gpt-3.5":      "gpt-3.5-turbo",
	"gpt35-turbo":  "gpt-3.5-turbo",
	"gpt-35-turbo": "gpt-3.5-turbo",
	"gpt4o-mini":   "gpt-4o-mini",
	"gpt4omini":    "gpt-4o-mini",
}

type openAIChatRequest struct {
	Model       string          `json:"model"`
	Messages    []openAIMessage `json:"messages"`
	Temperature float64         `json:"temperature,omitempty"`
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIChatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func NewOpenAIEnhancer(opts OpenAIOptions) (*OpenAIEnhancer, error) {
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, errors.New("openai api key is required")
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultOpenAIBaseURL
	}
	modelInput := strings.TrimSpace(opts.Model)
	normalizedModel, normalizationReason := normalizeOpenAIModel(modelInput)
	if normalizationReason != "" && opts.OnWarning != nil {
		detail := fmt.Sprintf("requested=%s resolved=%s", coalesce(modelInput, defaultOpenAIModel), normalizedModel)
		opts.OnWarning("model_"+normalizationReason, detail)
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: openAIDefaultTimeout}
	}
	return &OpenAIEnhancer{
		apiKey:       strings.TrimSpace(opts.APIKey),
		model:        normalizedModel,
		baseURL:      baseURL,
		organization: strings.TrimSpace(opts.Organization),
		client:       client,
		fallback:     fallbackChain{next: opts.Fallback, onFallback: opts.OnFallback},
	}, nil
}

func (o *OpenAIEnhancer) EnhanceDescription(ctx context.Context, text, locale string) (*Response, error) {
	text, err := validateInput(text)
	if err != nil {
		return nil, err
	}
	out, reason, err := o.complete(ctx, enhanceSystemPrompt, enhanceUserPrompt(text, locale), 0.7)
	if err != nil {
		return o.fallback.enhance(ctx, text, locale, reason, err)
	}
	return &Response{
		Text:     out,
		Metadata: ensureMetadata(map[string]string{"model": o.model}, locale),
		Provider: openAIProviderName,
	}, nil
}

func (o *OpenAIEnhancer) Translate(ctx context.Context, text, targetLang string) (*Response, error) {
	text, err := validateInput(text)
	if err != nil {
		return nil, err
	}
	tag, err := NormalizeLanguage(targetLang)
	if err != nil {
		return nil, err
	}
	out, reason, err := o.complete(ctx, translateSystemPrompt(tag), text, 0.3)
	if err != nil {
		return o.fallback.translate(ctx, text, targetLang, reason, err)
	}
	return &Response{
		Text:     out,
		Language: tag.String(),
		Metadata: ensureMetadata(map[string]string{"model": o.model}, tag.String()),
		Provider: openAIProviderName,
	}, nil
}

// complete returns the first choice, or a fallback reason and error.
func (o *OpenAIEnhancer) complete(ctx context.Context, system, user string, temperature float64) (string, string, error) {
	payload := openAIChatRequest{
		Model:       o.model,
		Temperature: temperature,
		Messages: []openAIMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
	}
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(payload); err != nil {
		return "", "encode_request", err
	}
	endpoint := fmt.Sprintf("%s/chat/completions", o.baseURL)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &buf)
	if err != nil {
		return "", "build_request", err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+o.apiKey)
	if o.organization != "" {
		httpReq.Header.Set("OpenAI-Organization", o.organization)
	}
	resp, err := o.client.Do(httpReq)
	if err != nil {
		return "", "http_request", err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode >= 300 {
		return "", fmt.Sprintf("http_%d", resp.StatusCode), fmt.Errorf("openai status %d", resp.StatusCode)
	}
	var out openAIChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", "decode_response", err
	}
	if len(out.Choices) == 0 {
		return "", "empty_choices", errors.New("no choices")
	}
	text := cleanCompletion(out.Choices[0].Message.Content)
	if text == "" {
		return "", "empty_response", errors.New("empty response")
	}
	return text, "", nil
}

var _ Enhancer = (*OpenAIEnhancer)(nil)

func normalizeOpenAIModel(name string) (string, string) {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return defaultOpenAIModel, ""
	}
	normalized := strings.ToLower(trimmed)
	normalized = strings.ReplaceAll(normalized, "_", "-")
	normalized = strings.ReplaceAll(normalized, " ", "-")
	if canonical, ok := openAIModelCanonical[normalized]; ok {
		return canonical, ""
	}
	if alias, ok := openAIModelAliases[normalized]; ok {
		return alias, "alias"
	}
	return defaultOpenAIModel, "defaulted"
}
