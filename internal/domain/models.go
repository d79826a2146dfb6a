package domain

import "time"

// Message roles understood by every provider.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message represents a chat message.
type Message struct {
	Role    string `json:"role"` // user, assistant, system
	Content string `json:"content"`
}

// FinishReason explains why a provider stopped generating.
type FinishReason string

const (
	FinishStop          FinishReason = "stop"
	FinishLength        FinishReason = "length"
	FinishContentFilter FinishReason = "content_filter"
	FinishFunctionCall  FinishReason = "function_call"
)

// GenerateOptions is the normalized option bag forwarded to adapters.
// Numeric fields are clamped by Normalize before dispatch; adapters never
// receive unchecked values.
type GenerateOptions struct {
	Model            string   `json:"model,omitempty"`
	MaxTokens        int      `json:"max_tokens,omitempty"`
	Temperature      float64  `json:"temperature,omitempty"`
	TopP             float64  `json:"top_p,omitempty"`
	FrequencyPenalty float64  `json:"frequency_penalty,omitempty"`
	PresencePenalty  float64  `json:"presence_penalty,omitempty"`
	StopSequences    []string `json:"stop_sequences,omitempty"`
	Stream           bool     `json:"stream,omitempty"`
}

// GenerateResult represents a unified generation response.
type GenerateResult struct {
	Text         string       `json:"text"`
	FinishReason FinishReason `json:"finish_reason"`
	Usage        *Usage       `json:"usage,omitempty"`
	Model        string       `json:"model"`
	Provider     string       `json:"provider"`
	CreatedAt    time.Time    `json:"created_at"`
}

// Usage tracks token consumption.
type Usage struct {
	PromptTokens     int     `json:"prompt_tokens"`
	CompletionTokens int     `json:"completion_tokens"`
	TotalTokens      int     `json:"total_tokens"`
	Cost             float64 `json:"cost,omitempty"`
}

// EmbeddingResult represents a vector embedding response.
type EmbeddingResult struct {
	Embedding []float64 `json:"embedding"`
	Model     string    `json:"model"`
	Provider  string    `json:"provider"`
	Usage     *Usage    `json:"usage,omitempty"`
}

// ImageResult represents an image generation response.
type ImageResult struct {
	URL       string    `json:"url,omitempty"`
	B64JSON   string    `json:"b64_json,omitempty"`
	Model     string    `json:"model"`
	Provider  string    `json:"provider"`
	CreatedAt time.Time `json:"created_at"`
}

// ImageOptions holds image generation parameters.
type ImageOptions struct {
	Model string `json:"model,omitempty"`
	Size  string `json:"size,omitempty"`
	N     int    `json:"n,omitempty"`
}

// StreamChunk represents a single streaming response chunk emitted by a
// provider. A chunk with Done set carries the final FinishReason; a chunk
// with Error set terminates the stream.
type StreamChunk struct {
	Delta        string       `json:"delta"`
	Done         bool         `json:"done"`
	FinishReason FinishReason `json:"finish_reason,omitempty"`
	Error        error        `json:"-"`
}
