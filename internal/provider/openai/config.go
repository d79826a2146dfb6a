package openai

// Config contains OpenAI provider configuration.
// All fields map to OpenAI SDK options:
//   - APIKey: Maps to option.WithAPIKey()
//   - BaseURL: Maps to option.WithBaseURL()
//   - Timeout: Maps to option.WithRequestTimeout() (in seconds)
//
// SDK-level retries default to zero because retry with backoff is owned by
// the request pipeline; double retrying would multiply worst-case latency.
type Config struct {
	APIKey     string `env:"OPENAI_API_KEY"`
	BaseURL    string `env:"OPENAI_BASE_URL"    envDefault:"https://api.openai.com/v1"`
	Timeout    int    `env:"OPENAI_TIMEOUT"     envDefault:"60"`
	MaxRetries int    `env:"OPENAI_MAX_RETRIES" envDefault:"0"`

	Model           string `env:"OPENAI_MODEL"           envDefault:"gpt-4-turbo"`
	MaxTokens       int    `env:"OPENAI_MAX_TOKENS"      envDefault:"4096"`
	CacheTTLSeconds int    `env:"OPENAI_CACHE_TTL"       envDefault:"300"`
	EmbeddingModel  string `env:"OPENAI_EMBEDDING_MODEL" envDefault:"text-embedding-ada-002"`
	ImageModel      string `env:"OPENAI_IMAGE_MODEL"     envDefault:"dall-e-3"`
}
