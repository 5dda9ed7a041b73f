// Package ai rewrites project descriptions and translates them with an
// OpenAI-compatible or Gemini chat model, falling back to returning the input.
package ai

import (
	"context"
	"strings"
)

const (
	staticProviderName = "static"
	geminiProviderName = "gemini"
	openAIProviderName = "openai"
)

// Response is the generated text with the provider that produced it.
type Response struct {
	Text     string            `json:"text"`
	Language string            `json:"language,omitempty"`
	Metadata map[string]string `json:"metadata"`
	Provider string            `json:"provider"`
}

type Enhancer interface {
	EnhanceDescription(ctx context.Context, text, locale string) (*Response, error)
	Translate(ctx context.Context, text, targetLang string) (*Response, error)
}

// StaticEnhancer returns the input unchanged.
type StaticEnhancer struct{}

func NewStaticEnhancer() *StaticEnhancer {
	return &StaticEnhancer{}
}

func (s *StaticEnhancer) EnhanceDescription(_ context.Context, text, locale string) (*Response, error) {
	return &Response{
		Text:     strings.TrimSpace(text),
		Metadata: ensureMetadata(nil, locale),
		Provider: staticProviderName,
	}, nil
}

func (s *StaticEnhancer) Translate(_ context.Context, text, targetLang string) (*Response, error) {
	lang, err := NormalizeLanguage(targetLang)
	if err != nil {
		return nil, err
	}
	return &Response{
		Text:     strings.TrimSpace(text),
		Language: lang.String(),
		Metadata: ensureMetadata(nil, lang.String()),
		Provider: staticProviderName,
	}, nil
}

var _ Enhancer = (*StaticEnhancer)(nil)

// fallbackChain forwards to the configured fallback, or the static enhancer,
// and records why.
type fallbackChain struct {
	next       Enhancer
	onFallback func(reason string, err error)
}

func (f fallbackChain) target() Enhancer {
	if f.next != nil {
		return f.next
	}
	return NewStaticEnhancer()
}

func (f fallbackChain) enhance(ctx context.Context, text, locale, reason string, cause error) (*Response, error) {
	f.emit(reason, cause)
	res, err := f.target().EnhanceDescription(ctx, text, locale)
	return tagFallback(res, reason), err
}

func (f fallbackChain) translate(ctx context.Context, text, targetLang, reason string, cause error) (*Response, error) {
	f.emit(reason, cause)
	res, err := f.target().Translate(ctx, text, targetLang)
	return tagFallback(res, reason), err
}

func (f fallbackChain) emit(reason string, err error) {
	if f.onFallback != nil {
		f.onFallback(reason, err)
	}
}

func tagFallback(res *Response, reason string) *Response {
	if res == nil {
		return nil
	}
	if res.Provider == "" {
		res.Provider = staticProviderName
	}
	if res.Metadata == nil {
		res.Metadata = map[string]string{}
	}
	if reason != "" && res.Metadata["fallback_reason"] == "" {
		res.Metadata["fallback_reason"] = reason
	}
	return res
}
