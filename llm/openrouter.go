package llm

// NewOpenRouter returns a Provider for OpenRouter's OpenAI-compatible
// aggregation endpoint.
func NewOpenRouter(cfg Config) Provider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://openrouter.ai/api"
	}
	return &openAICompatProvider{base: newOpenAICompatClient(cfg)}
}
