package ai

// Config selects the primary provider. The other configured provider becomes
// its fallback, and the static enhancer is always last.
type Config struct {
	Provider      string
	OpenAIAPIKey  string
	OpenAIModel   string
	OpenAIBaseURL string
	GeminiAPIKey  string
	GeminiModel   string
	GeminiBaseURL string
	OnFallback    func(provider, reason string, err error)
	OnWarning     func(reason, detail string)
}

func (c Config) hook(provider string) func(string, error) {
	if c.OnFallback == nil {
		return nil
	}
	return func(reason string, err error) { c.OnFallback(provider, reason, err) }
}

// New builds the enhancer chain described by cfg. Missing keys drop a
// provider from the chain.
func New(cfg Config) Enhancer {
	var static Enhancer = NewStaticEnhancer()

	gemini := func(next Enhancer) Enhancer {
		g, err := NewGeminiEnhancer(GeminiOptions{
			APIKey:     cfg.GeminiAPIKey,
			Model:      cfg.GeminiModel,
			BaseURL:    cfg.GeminiBaseURL,
			Fallback:   next,
			OnFallback: cfg.hook(geminiProviderName),
		})
		if err != nil {
			return next
		}
		return g
	}
	openai := func(next Enhancer) Enhancer {
		o, err := NewOpenAIEnhancer(OpenAIOptions{
			APIKey:     cfg.OpenAIAPIKey,
			Model:      cfg.OpenAIModel,
			BaseURL:    cfg.OpenAIBaseURL,
			Fallback:   next,
			OnFallback: cfg.hook(openAIProviderName),
			OnWarning:  cfg.OnWarning,
		})
		if err != nil {
			return next
		}
		return o
	}

	switch cfg.Provider {
	case staticProviderName:
		return static
	case geminiProviderName:
		return gemini(openai(static))
	default:
		return openai(gemini(static))
	}
}
