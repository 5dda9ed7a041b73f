package ai

import (
	"fmt"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/language/display"

	"github.com/yueliao11/Donate-On-Flow/internal/domain"
)

const (
	defaultLocale = "en"
	maxInputRunes = 8000
)

const enhanceSystemPrompt = "You are an expert in writing engaging charity project descriptions. " +
	"Enhance the following description to be more professional and appealing while maintaining its core message. " +
	"Reply with the description only."

// NormalizeLanguage parses a BCP 47 tag or an English language name.
func NormalizeLanguage(raw string) (language.Tag, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return language.Und, fmt.Errorf("%w: target language is required", domain.ErrInvalidInput)
	}
	if tag, err := language.Parse(raw); err == nil {
		return tag, nil
	}
	names := display.Languages(language.English)
	for _, tag := range supportedLanguages {
		if strings.EqualFold(names.Name(tag), raw) {
			return tag, nil
		}
	}
	return language.Und, fmt.Errorf("%w: unknown language %q", domain.ErrInvalidInput, raw)
}

var supportedLanguages = []language.Tag{
	language.English,
	language.SimplifiedChinese,
	language.TraditionalChinese,
	language.Japanese,
	language.Korean,
	language.Spanish,
	language.French,
	language.German,
	language.Russian,
	language.Indonesian,
	language.Vietnamese,
}

func translateSystemPrompt(tag language.Tag) string {
	return fmt.Sprintf("You are a professional translator. Translate the following text to %s while maintaining its tone and meaning. Reply with the translation only.",
		display.Tags(language.English).Name(tag))
}

func enhanceUserPrompt(text, locale string) string {
	if locale == "" || strings.EqualFold(locale, defaultLocale) {
		return text
	}
	return fmt.Sprintf("Write the result in locale %q.\n\n%s", locale, text)
}

func validateInput(text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", fmt.Errorf("%w: text is required", domain.ErrInvalidInput)
	}
	if len([]rune(text)) > maxInputRunes {
		return "", fmt.Errorf("%w: text longer than %d characters", domain.ErrInvalidInput, maxInputRunes)
	}
	return text, nil
}

func ensureMetadata(meta map[string]string, locale string) map[string]string {
	if meta == nil {
		meta = map[string]string{}
	}
	if locale != "" {
		meta["locale"] = locale
	} else if _, ok := meta["locale"]; !ok {
		meta["locale"] = defaultLocale
	}
	return meta
}

func coalesce(values ...string) string {
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v != "" {
			return v
		}
	}
	return ""
}

// cleanCompletion strips a surrounding code fence and quotes some models add.
func cleanCompletion(text string) string {
	trimmed := strings.TrimSpace(text)
	if strings.HasPrefix(trimmed, "```") {
		trimmed = strings.TrimPrefix(trimmed, "```")
		if nl := strings.IndexByte(trimmed, '\n'); nl >= 0 && !strings.Contains(trimmed[:nl], " ") {
			trimmed = trimmed[nl+1:]
		}
		if idx := strings.LastIndex(trimmed, "```"); idx >= 0 {
			trimmed = trimmed[:idx]
		}
		trimmed = strings.TrimSpace(trimmed)
	}
	if len(trimmed) >= 2 && trimmed[0] == '"' && trimmed[len(trimmed)-1] == '"' {
		trimmed = strings.TrimSpace(trimmed[1 : len(trimmed)-1])
	}
	return trimmed
}
