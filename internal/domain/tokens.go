package domain

import "context"

const (
	// Rough characters-per-token ratio observed across GPT-class tokenizers.
	charsPerToken = 4

	tokensToPerK = 1000.0
)

// EstimateTokens approximates the token count of a text using the length/4
// heuristic. It is intentionally cheap: cache keys, context budgeting and
// model comparison all call it on hot paths.
func EstimateTokens(text string) int {
	if text == "" {
		return 0
	}
	n := (len(text) + charsPerToken - 1) / charsPerToken
	if n < 1 {
		n = 1
	}
	return n
}

// EstimateMessageTokens sums the estimated tokens of a message list.
// Each message carries a small per-message framing overhead.
func EstimateMessageTokens(messages []Message) int {
	const framingOverhead = 4
	total := 0
	for _, msg := range messages {
		total += EstimateTokens(msg.Content) + framingOverhead
	}
	return total
}

// CostEstimator computes estimated cost from token usage and model pricing.
type CostEstimator struct {
	pricing PricingRegistry
}

// NewCostEstimator creates a cost estimator backed by a pricing registry.
func NewCostEstimator(pricing PricingRegistry) *CostEstimator {
	return &CostEstimator{pricing: pricing}
}

// Estimate returns the total cost for a given model and usage. Unknown
// models cost zero rather than failing the request.
func (c *CostEstimator) Estimate(ctx context.Context, model string, usage Usage) float64 {
	if model == "" || c.pricing == nil {
		return 0
	}

	pricing, err := c.pricing.GetPricing(ctx, model)
	if err != nil {
		return 0
	}

	inputCost := float64(usage.PromptTokens) / tokensToPerK * pricing.InputCostPer1K
	outputCost := float64(usage.CompletionTokens) / tokensToPerK * pricing.OutputCostPer1K
	return inputCost + outputCost
}

// EstimateText estimates the cost of generating completionTokens from a
// prompt, both measured with the length/4 heuristic. Used for model
// comparison before any request is issued.
func (c *CostEstimator) EstimateText(ctx context.Context, model, prompt string, completionTokens int) float64 {
	return c.Estimate(ctx, model, Usage{
		PromptTokens:     EstimateTokens(prompt),
		CompletionTokens: completionTokens,
	})
}
