package llm

// NewOpenAI returns a Provider for api.openai.com. Supported embedding
// models (dimension, approximate): text-embedding-3-small (1536),
// text-embedding-3-large (3072, truncatable via the dimensions param),
// text-embedding-ada-002 (1536, legacy).
func NewOpenAI(cfg Config) Provider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com"
	}
	if cfg.Model == "" {
		cfg.Model = "text-embedding-3-small"
	}
	return &openAICompatProvider{base: newOpenAICompatClient(cfg)}
}
