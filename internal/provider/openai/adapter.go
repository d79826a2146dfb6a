// Package openai provides an adapter for the OpenAI API using the official
// SDK. It implements the domain.Provider interface together with the
// optional embedding, image and streaming capabilities, and converts SDK
// failures into the domain error taxonomy at the boundary.
package openai

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/davidbz/hearth/internal/domain"
	"github.com/davidbz/hearth/internal/observability"
)

const providerName = "openai"

// Provider implements the domain.Provider interface for OpenAI.
type Provider struct {
	client openai.Client
	config Config
}

// NewProvider creates a new OpenAI provider.
func NewProvider(config Config) (*Provider, error) {
	if config.APIKey == "" {
		return nil, errors.New("OpenAI API key is required")
	}

	return &Provider{
		client: openai.NewClient(clientOptions(config)...),
		config: config,
	}, nil
}

// clientOptions maps adapter config onto SDK request options. MaxRetries is
// forwarded unconditionally: the resilience layer owns retries, and leaving
// the SDK's built-in default of two attempts active would multiply every
// retried request.
func clientOptions(config Config) []option.RequestOption {
	opts := []option.RequestOption{
		option.WithAPIKey(config.APIKey),
		option.WithMaxRetries(config.MaxRetries),
	}

	if config.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(config.BaseURL))
	}

	if config.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(time.Duration(config.Timeout)*time.Second))
	}

	return opts
}

// Name returns the provider identifier.
func (p *Provider) Name() string {
	return providerName
}

// Supports reports every optional capability: embeddings, images, streaming.
func (p *Provider) Supports(capability domain.Capability) bool {
	switch capability {
	case domain.CapabilityEmbedding, domain.CapabilityImage, domain.CapabilityStreaming:
		return true
	default:
		return false
	}
}

// Defaults returns the configured normalization defaults.
func (p *Provider) Defaults() domain.ProviderDefaults {
	return domain.ProviderDefaults{
		Model:     p.config.Model,
		MaxTokens: p.config.MaxTokens,
		CacheTTL:  time.Duration(p.config.CacheTTLSeconds) * time.Second,
	}
}

// GenerateText sends a single-prompt completion request.
func (p *Provider) GenerateText(ctx context.Context, prompt string, opts *domain.GenerateOptions) (*domain.GenerateResult, error) {
	return p.GenerateChat(ctx, []domain.Message{{Role: domain.RoleUser, Content: prompt}}, opts)
}

// GenerateChat sends a multi-message completion request.
func (p *Provider) GenerateChat(ctx context.Context, messages []domain.Message, opts *domain.GenerateOptions) (*domain.GenerateResult, error) {
	logger := observability.FromContext(ctx)
	logger.Debug("calling OpenAI API")

	resp, err := p.client.Chat.Completions.New(ctx, p.toSDKParams(messages, opts))
	if err != nil {
		logger.Error("OpenAI API call failed", observability.Error(err))
		return nil, classify(err)
	}

	logger.Debug("OpenAI API call succeeded",
		observability.Int("prompt_tokens", int(resp.Usage.PromptTokens)),
		observability.Int("completion_tokens", int(resp.Usage.CompletionTokens)),
	)

	return p.toDomainResult(resp), nil
}

// StreamText streams a single-prompt completion.
func (p *Provider) StreamText(ctx context.Context, prompt string, opts *domain.GenerateOptions) (<-chan domain.StreamChunk, error) {
	return p.StreamChat(ctx, []domain.Message{{Role: domain.RoleUser, Content: prompt}}, opts)
}

// StreamChat streams a multi-message completion. The returned channel is
// closed after the final chunk or on stream failure.
func (p *Provider) StreamChat(ctx context.Context, messages []domain.Message, opts *domain.GenerateOptions) (<-chan domain.StreamChunk, error) {
	logger := observability.FromContext(ctx)
	logger.Debug("calling OpenAI streaming API")

	stream := p.client.Chat.Completions.NewStreaming(ctx, p.toSDKParams(messages, opts))
	chunks := make(chan domain.StreamChunk)

	go func() {
		defer close(chunks)
		defer logger.Debug("OpenAI stream completed")

		for stream.Next() {
			chunk := stream.Current()
			if len(chunk.Choices) == 0 {
				continue
			}

			delta := chunk.Choices[0].Delta.Content
			finish := string(chunk.Choices[0].FinishReason)

			out := domain.StreamChunk{Delta: delta}
			if finish != "" {
				out.Done = true
				out.FinishReason = toFinishReason(finish)
			}

			select {
			case chunks <- out:
			case <-ctx.Done():
				return
			}

			if out.Done {
				return
			}
		}

		if err := stream.Err(); err != nil && !errors.Is(err, io.EOF) {
			select {
			case chunks <- domain.StreamChunk{Error: classify(err)}:
			case <-ctx.Done():
			}
		}
	}()

	return chunks, nil
}

// GenerateEmbedding creates a vector embedding from text.
func (p *Provider) GenerateEmbedding(ctx context.Context, text string) (*domain.EmbeddingResult, error) {
	if text == "" {
		return nil, domain.NewValidationError("text cannot be empty").WithProvider(providerName)
	}

	//nolint:exhaustruct // OpenAI SDK struct has many optional fields
	resp, err := p.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{
			OfArrayOfStrings: []string{text},
		},
		Model: openai.EmbeddingModel(p.config.EmbeddingModel),
	})
	if err != nil {
		return nil, classify(err)
	}

	if len(resp.Data) == 0 {
		return nil, domain.NewError(domain.ErrorCodeUnknown, "no embeddings returned").WithProvider(providerName)
	}

	return &domain.EmbeddingResult{
		Embedding: resp.Data[0].Embedding,
		Model:     p.config.EmbeddingModel,
		Provider:  providerName,
		Usage: &domain.Usage{
			PromptTokens: int(resp.Usage.PromptTokens),
			TotalTokens:  int(resp.Usage.TotalTokens),
		},
	}, nil
}

// GenerateImage creates an image from a text prompt.
func (p *Provider) GenerateImage(ctx context.Context, prompt string, opts *domain.ImageOptions) (*domain.ImageResult, error) {
	if prompt == "" {
		return nil, domain.NewValidationError("prompt cannot be empty").WithProvider(providerName)
	}

	model := p.config.ImageModel
	size := "1024x1024"
	if opts != nil {
		if opts.Model != "" {
			model = opts.Model
		}
		if opts.Size != "" {
			size = opts.Size
		}
	}

	//nolint:exhaustruct // OpenAI SDK struct has many optional fields
	resp, err := p.client.Images.Generate(ctx, openai.ImageGenerateParams{
		Prompt: prompt,
		Model:  openai.ImageModel(model),
		Size:   openai.ImageGenerateParamsSize(size),
	})
	if err != nil {
		return nil, classify(err)
	}

	if len(resp.Data) == 0 {
		return nil, domain.NewError(domain.ErrorCodeUnknown, "no images returned").WithProvider(providerName)
	}

	return &domain.ImageResult{
		URL:       resp.Data[0].URL,
		B64JSON:   resp.Data[0].B64JSON,
		Model:     model,
		Provider:  providerName,
		CreatedAt: time.Now(),
	}, nil
}

// toSDKParams converts normalized messages and options to SDK parameters.
func (p *Provider) toSDKParams(messages []domain.Message, opts *domain.GenerateOptions) openai.ChatCompletionNewParams {
	sdkMessages := make([]openai.ChatCompletionMessageParamUnion, len(messages))
	for i, msg := range messages {
		switch msg.Role {
		case domain.RoleAssistant:
			sdkMessages[i] = openai.AssistantMessage(msg.Content)
		case domain.RoleSystem:
			sdkMessages[i] = openai.SystemMessage(msg.Content)
		default:
			sdkMessages[i] = openai.UserMessage(msg.Content)
		}
	}

	model := p.config.Model
	//nolint:exhaustruct // OpenAI SDK struct has many optional fields
	params := openai.ChatCompletionNewParams{
		Messages: sdkMessages,
	}

	if opts != nil {
		if opts.Model != "" {
			model = opts.Model
		}
		if opts.MaxTokens > 0 {
			params.MaxTokens = openai.Int(int64(opts.MaxTokens))
		}
		if opts.Temperature > 0 {
			params.Temperature = openai.Float(opts.Temperature)
		}
		if opts.TopP > 0 {
			params.TopP = openai.Float(opts.TopP)
		}
		if opts.FrequencyPenalty != 0 {
			params.FrequencyPenalty = openai.Float(opts.FrequencyPenalty)
		}
		if opts.PresencePenalty != 0 {
			params.PresencePenalty = openai.Float(opts.PresencePenalty)
		}
	}
	params.Model = openai.ChatModel(model)

	return params
}

// toDomainResult converts an SDK response to the unified result shape.
func (p *Provider) toDomainResult(resp *openai.ChatCompletion) *domain.GenerateResult {
	content := ""
	finish := domain.FinishStop
	if len(resp.Choices) > 0 {
		content = resp.Choices[0].Message.Content
		finish = toFinishReason(string(resp.Choices[0].FinishReason))
	}

	return &domain.GenerateResult{
		Text:         content,
		FinishReason: finish,
		Model:        string(resp.Model),
		Provider:     providerName,
		Usage: &domain.Usage{
			PromptTokens:     int(resp.Usage.PromptTokens),
			CompletionTokens: int(resp.Usage.CompletionTokens),
			TotalTokens:      int(resp.Usage.TotalTokens),
		},
		CreatedAt: time.Now(),
	}
}

// toFinishReason maps the provider's finish reason strings to the unified
// set. Tool and function call variants collapse into function_call.
func toFinishReason(reason string) domain.FinishReason {
	switch reason {
	case "length":
		return domain.FinishLength
	case "content_filter":
		return domain.FinishContentFilter
	case "function_call", "tool_calls":
		return domain.FinishFunctionCall
	default:
		return domain.FinishStop
	}
}
