// Package echo provides a testing provider that echoes back input messages.
// It implements the domain.Provider interface without making external API
// calls, providing deterministic responses for testing and development.
package echo

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/davidbz/hearth/internal/domain"
	"github.com/davidbz/hearth/internal/observability"
)

const (
	providerName = "echo"
	modelName    = "echo4"
	chunkDelay   = 10 * time.Millisecond

	defaultMaxTokens = 4096
	defaultCacheTTL  = 5 * time.Minute
)

// Provider implements the domain.Provider interface for echo testing.
// It also implements domain.Streamer; embeddings and images are unsupported.
type Provider struct {
	name string
}

// NewProvider creates a new echo provider.
// No configuration is required as this provider operates entirely in-memory.
func NewProvider() *Provider {
	return &Provider{name: providerName}
}

// Name returns the provider identifier.
func (p *Provider) Name() string {
	return p.name
}

// Supports reports streaming as the only optional capability.
func (p *Provider) Supports(capability domain.Capability) bool {
	return capability == domain.CapabilityStreaming
}

// Defaults returns the echo normalization defaults.
func (p *Provider) Defaults() domain.ProviderDefaults {
	return domain.ProviderDefaults{
		Model:     modelName,
		MaxTokens: defaultMaxTokens,
		CacheTTL:  defaultCacheTTL,
	}
}

// GenerateText echoes the prompt back as a single user message.
func (p *Provider) GenerateText(ctx context.Context, prompt string, opts *domain.GenerateOptions) (*domain.GenerateResult, error) {
	return p.GenerateChat(ctx, []domain.Message{{Role: domain.RoleUser, Content: prompt}}, opts)
}

// GenerateChat echoes the conversation back verbatim.
func (p *Provider) GenerateChat(ctx context.Context, messages []domain.Message, opts *domain.GenerateOptions) (*domain.GenerateResult, error) {
	if err := p.checkModel(opts); err != nil {
		return nil, err
	}

	logger := observability.FromContext(ctx)
	logger.Debug("echoing request")

	echoContent := buildEchoContent(messages)
	promptTokens := domain.EstimateTokens(echoContent)

	logger.Debug("echo completed",
		observability.Int("prompt_tokens", promptTokens),
	)

	return &domain.GenerateResult{
		Text:         echoContent,
		FinishReason: domain.FinishStop,
		Model:        modelName,
		Provider:     p.name,
		Usage: &domain.Usage{
			PromptTokens:     promptTokens,
			CompletionTokens: promptTokens, // echo returns same size
			TotalTokens:      promptTokens * 2,
		},
		CreatedAt: time.Now(),
	}, nil
}

// StreamText streams the echoed prompt word by word.
func (p *Provider) StreamText(ctx context.Context, prompt string, opts *domain.GenerateOptions) (<-chan domain.StreamChunk, error) {
	return p.StreamChat(ctx, []domain.Message{{Role: domain.RoleUser, Content: prompt}}, opts)
}

// StreamChat streams the echoed conversation word by word.
func (p *Provider) StreamChat(ctx context.Context, messages []domain.Message, opts *domain.GenerateOptions) (<-chan domain.StreamChunk, error) {
	if err := p.checkModel(opts); err != nil {
		return nil, err
	}

	logger := observability.FromContext(ctx)
	logger.Debug("streaming echo request")

	echoContent := buildEchoContent(messages)
	chunks := make(chan domain.StreamChunk)

	go func() {
		defer close(chunks)

		words := strings.Fields(echoContent)
		if len(words) == 0 {
			select {
			case chunks <- domain.StreamChunk{Done: true, FinishReason: domain.FinishStop}:
			case <-ctx.Done():
			}
			return
		}

		for i, word := range words {
			delta := word
			if i < len(words)-1 {
				delta += " "
			}

			select {
			case <-ctx.Done():
				// The consumer has usually gone away by now; never block
				// on delivering the cancellation error.
				select {
				case chunks <- domain.StreamChunk{Error: ctx.Err()}:
				default:
				}
				return
			case chunks <- domain.StreamChunk{Delta: delta}:
				time.Sleep(chunkDelay)
			}
		}

		select {
		case chunks <- domain.StreamChunk{Done: true, FinishReason: domain.FinishStop}:
		case <-ctx.Done():
		}
	}()

	return chunks, nil
}

// checkModel rejects requests addressed to a model the echo provider does
// not serve. Options are normalized upstream, so a nil opts means defaults.
func (p *Provider) checkModel(opts *domain.GenerateOptions) error {
	if opts == nil || opts.Model == "" || opts.Model == modelName {
		return nil
	}
	return domain.NewError(domain.ErrorCodeModelNotFound,
		fmt.Sprintf("model %s is not supported by echo provider", opts.Model)).WithProvider(providerName)
}

// buildEchoContent constructs the echo response from request messages.
func buildEchoContent(messages []domain.Message) string {
	if len(messages) == 0 {
		return ""
	}

	var builder strings.Builder
	for _, msg := range messages {
		builder.WriteString(fmt.Sprintf("[%s]: %s\n", msg.Role, msg.Content))
	}
	return builder.String()
}
