package domain

// Clamp bounds for sampling parameters, matching the ranges providers accept.
const (
	minTemperature = 0.0
	maxTemperature = 2.0
	minTopP        = 0.0
	maxTopP        = 1.0
	minPenalty     = -2.0
	maxPenalty     = 2.0
)

// Normalize fills defaults and clamps numeric option fields so every adapter
// receives the same validated shape. The input is never mutated.
func Normalize(opts *GenerateOptions, defaults ProviderDefaults) *GenerateOptions {
	out := GenerateOptions{}
	if opts != nil {
		out = *opts
	}

	if out.Model == "" {
		out.Model = defaults.Model
	}

	if out.MaxTokens <= 0 || (defaults.MaxTokens > 0 && out.MaxTokens > defaults.MaxTokens) {
		out.MaxTokens = defaults.MaxTokens
	}

	out.Temperature = clamp(out.Temperature, minTemperature, maxTemperature)
	out.TopP = clamp(out.TopP, minTopP, maxTopP)
	out.FrequencyPenalty = clamp(out.FrequencyPenalty, minPenalty, maxPenalty)
	out.PresencePenalty = clamp(out.PresencePenalty, minPenalty, maxPenalty)

	return &out
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
