package contextwindow

import (
	"context"
	"sort"

	"github.com/davidbz/hearth/internal/domain"
	"github.com/davidbz/hearth/internal/observability"
)

const (
	// defaultWindowSize is the verbatim tail kept by the summarize strategy
	// when the config leaves it unset.
	defaultWindowSize = 10

	// summaryBudgetDivisor sizes the condensed history at roughly a fifth
	// of the overall token budget.
	summaryBudgetDivisor = 5
)

// message annotates a conversation message with the positional facts the
// scoring and rule machinery needs. age counts messages between this one and
// the most recent; recency is (i+1)/n so the newest message scores 1.0.
type message struct {
	domain.Message
	index   int
	age     int
	recency float64
	tokens  int
	score   float64
}

// Optimizer compresses conversations into a token budget. The zero summarizer
// is valid; the summarize strategy then degrades to truncation.
type Optimizer struct {
	summarizer Summarizer
}

// NewOptimizer creates an optimizer. summarizer may be nil.
func NewOptimizer(summarizer Summarizer) *Optimizer {
	return &Optimizer{summarizer: summarizer}
}

// Optimize reduces messages to fit maxTokens using the configured strategy.
// Conversations already within budget are returned untouched with a
// compression ratio of 1.0.
func (o *Optimizer) Optimize(ctx context.Context, messages []domain.Message, maxTokens int, cfg Config) (*Result, error) {
	if maxTokens <= 0 {
		return nil, domain.NewValidationError("maxTokens must be positive")
	}

	logger := observability.FromContext(ctx)
	total := domain.EstimateMessageTokens(messages)
	if total <= maxTokens {
		return &Result{
			Messages:         messages,
			TokensUsed:       total,
			CompressionRatio: 1.0,
		}, nil
	}

	annotated := o.annotate(messages, cfg.ImportanceKeywords)

	var kept []domain.Message
	var summary string
	var err error

	switch cfg.Strategy {
	case StrategyTruncate:
		kept = truncate(annotated, maxTokens)
	case StrategySelective:
		kept = selective(annotated, maxTokens, cfg.PriorityRules)
	case StrategySummarize:
		kept, summary, err = o.summarize(ctx, annotated, maxTokens, cfg)
		if err != nil {
			return nil, err
		}
	default:
		kept = tailWindow(annotated, maxTokens)
	}

	used := domain.EstimateMessageTokens(kept)
	logger.Debug("context optimized",
		observability.String("strategy", string(cfg.Strategy)),
		observability.Int("original_tokens", total),
		observability.Int("optimized_tokens", used),
	)

	return &Result{
		Messages:         kept,
		Summary:          summary,
		TokensUsed:       used,
		CompressionRatio: float64(used) / float64(total),
	}, nil
}

// annotate computes position, recency, token and importance facts once so
// every strategy can reuse them.
func (o *Optimizer) annotate(messages []domain.Message, keywords []string) []message {
	n := len(messages)
	annotated := make([]message, n)
	for i, msg := range messages {
		m := message{
			Message: msg,
			index:   i,
			age:     n - 1 - i,
			recency: float64(i+1) / float64(n),
			tokens:  domain.EstimateMessageTokens([]domain.Message{msg}),
		}
		m.score = o.importance(m, keywords)
		annotated[i] = m
	}
	return annotated
}

// tailWindow keeps the most recent messages only. Messages are admitted
// newest-first while the budget is not yet exhausted, so the boundary
// message may complete the fill.
func tailWindow(messages []message, maxTokens int) []domain.Message {
	used := 0
	start := len(messages)
	for i := len(messages) - 1; i >= 0; i-- {
		if used >= maxTokens {
			break
		}
		used += messages[i].tokens
		start = i
	}
	return toMessages(messages[start:])
}

// truncate retains every system message, then fills the remaining budget
// with the most recent non-system messages. Retained messages keep their
// original relative order, systems first.
func truncate(messages []message, maxTokens int) []domain.Message {
	var systems, others []message
	for _, m := range messages {
		if m.Role == domain.RoleSystem {
			systems = append(systems, m)
		} else {
			others = append(others, m)
		}
	}

	used := 0
	for _, m := range systems {
		used += m.tokens
	}

	keep := make(map[int]bool, len(others))
	for i := len(others) - 1; i >= 0; i-- {
		if used >= maxTokens {
			break
		}
		used += others[i].tokens
		keep[others[i].index] = true
	}

	out := make([]domain.Message, 0, len(systems)+len(keep))
	for _, m := range systems {
		out = append(out, m.Message)
	}
	for _, m := range others {
		if keep[m.index] {
			out = append(out, m.Message)
		}
	}
	return out
}

// selective scores every message, applies the priority rules and greedily
// packs the highest-importance survivors into the budget. Summarize verdicts
// are treated as exclusions here since nothing condenses them. The output
// is restored to chronological order.
func selective(messages []message, maxTokens int, rules []RoleRule) []domain.Message {
	candidates := make([]message, 0, len(messages))
	for _, m := range messages {
		if verdict(m, rules) == ActionKeep {
			candidates = append(candidates, m)
		}
	}

	// Highest importance first; the stable sort preserves original order
	// between equal scores.
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].score > candidates[j].score
	})

	used := 0
	var selected []message
	for _, m := range candidates {
		if used+m.tokens > maxTokens {
			continue
		}
		used += m.tokens
		selected = append(selected, m)
	}

	sort.Slice(selected, func(i, j int) bool {
		return selected[i].index < selected[j].index
	})
	return toMessages(selected)
}

// summarize keeps the most recent windowSize messages verbatim and condenses
// everything older into a single system message through the summarizer. When
// the recent window alone exceeds the budget the window is compressed
// selectively instead; when no summarizer is available or it fails, the
// strategy degrades to truncation.
func (o *Optimizer) summarize(ctx context.Context, messages []message, maxTokens int, cfg Config) ([]domain.Message, string, error) {
	windowSize := cfg.WindowSize
	if windowSize <= 0 {
		windowSize = defaultWindowSize
	}

	split := len(messages) - windowSize
	if split < 0 {
		split = 0
	}
	older, recent := messages[:split], messages[split:]

	if domain.EstimateMessageTokens(toMessages(recent)) > maxTokens {
		return selective(recent, maxTokens, cfg.PriorityRules), "", nil
	}

	if len(older) == 0 {
		return toMessages(recent), "", nil
	}

	if o.summarizer == nil {
		return truncate(messages, maxTokens), "", nil
	}

	summaryBudget := maxTokens / summaryBudgetDivisor
	summary, err := o.summarizer.Summarize(ctx, toMessages(older), summaryBudget)
	if err != nil {
		observability.FromContext(ctx).Warn("summarization failed, falling back to truncation",
			observability.Error(err),
		)
		return truncate(messages, maxTokens), "", nil
	}

	out := make([]domain.Message, 0, len(recent)+1)
	out = append(out, domain.Message{Role: domain.RoleSystem, Content: summary})
	for _, m := range recent {
		out = append(out, m.Message)
	}
	return out, summary, nil
}

func toMessages(annotated []message) []domain.Message {
	out := make([]domain.Message, len(annotated))
	for i, m := range annotated {
		out[i] = m.Message
	}
	return out
}
