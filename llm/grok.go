package llm

// NewGrok returns a Provider for xAI's Grok models. Grok's reasoning
// models reject response_format/json_object, so the provider strips it
// rather than forwarding a request the API will 400 on — the code
// summarizer falls back to its strict-prompt retry path in that case,
// same as for any other empty/malformed response.
func NewGrok(cfg Config) Provider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.x.ai"
	}
	return &openAICompatProvider{base: newOpenAICompatClient(cfg), stripJSON: true}
}
