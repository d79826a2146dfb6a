package contextwindow_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/davidbz/hearth/internal/contextwindow"
	"github.com/davidbz/hearth/internal/domain"
)

// fakeSummarizer records its input and returns a canned summary.
type fakeSummarizer struct {
	called    bool
	gotCount  int
	gotBudget int
	summary   string
	err       error
}

func (f *fakeSummarizer) Summarize(_ context.Context, messages []domain.Message, maxTokens int) (string, error) {
	f.called = true
	f.gotCount = len(messages)
	f.gotBudget = maxTokens
	return f.summary, f.err
}

// msg builds a message whose content is chars characters long, which the
// length/4 heuristic maps to chars/4 tokens plus framing.
func msg(role string, chars int) domain.Message {
	return domain.Message{Role: role, Content: strings.Repeat("x", chars)}
}

func TestOptimize_WithinBudgetIsIdentity(t *testing.T) {
	o := contextwindow.NewOptimizer(nil)
	messages := []domain.Message{
		{Role: domain.RoleSystem, Content: "You are helpful."},
		{Role: domain.RoleUser, Content: "Hi there."},
	}

	result, err := o.Optimize(context.Background(), messages, 1000, contextwindow.Config{
		Strategy: contextwindow.StrategyTruncate,
	})
	require.NoError(t, err)
	require.Equal(t, messages, result.Messages)
	require.Equal(t, 1.0, result.CompressionRatio)
	require.Empty(t, result.Summary)
}

func TestOptimize_RejectsNonPositiveBudget(t *testing.T) {
	o := contextwindow.NewOptimizer(nil)

	_, err := o.Optimize(context.Background(), []domain.Message{msg("user", 40)}, 0, contextwindow.Config{})
	require.Error(t, err)
	require.Equal(t, domain.ErrorCodeValidationError, domain.CodeOf(err))
}

func TestOptimize_TruncateKeepsSystemAndRecent(t *testing.T) {
	o := contextwindow.NewOptimizer(nil)

	system := msg(domain.RoleSystem, 200)     // ~50 tokens
	oldest := msg(domain.RoleUser, 400)       // ~100 tokens
	reply := msg(domain.RoleAssistant, 400)   // ~100 tokens
	newest := msg(domain.RoleUser, 400)       // ~100 tokens

	result, err := o.Optimize(context.Background(),
		[]domain.Message{system, oldest, reply, newest}, 200,
		contextwindow.Config{Strategy: contextwindow.StrategyTruncate})
	require.NoError(t, err)

	// The system message survives unconditionally; the oldest exchange is
	// dropped and the retained messages keep chronological order.
	require.Len(t, result.Messages, 3)
	require.Equal(t, domain.RoleSystem, result.Messages[0].Role)
	require.Equal(t, reply, result.Messages[1])
	require.Equal(t, newest, result.Messages[2])
	require.Less(t, result.CompressionRatio, 1.0)
}

func TestOptimize_DefaultStrategyKeepsNewestOnly(t *testing.T) {
	o := contextwindow.NewOptimizer(nil)

	messages := make([]domain.Message, 6)
	for i := range messages {
		messages[i] = msg(domain.RoleUser, 40) // ~14 tokens each with framing
	}
	messages[5].Content = strings.Repeat("z", 40)

	result, err := o.Optimize(context.Background(), messages, 30, contextwindow.Config{})
	require.NoError(t, err)

	require.Len(t, result.Messages, 3)
	require.Equal(t, messages[3:], result.Messages)
}

func TestOptimize_SelectiveFavorsImportantMessages(t *testing.T) {
	o := contextwindow.NewOptimizer(nil)

	messages := []domain.Message{
		msg(domain.RoleUser, 100),
		{Role: domain.RoleUser, Content: "the deadline is Friday " + strings.Repeat("x", 77)},
		msg(domain.RoleAssistant, 100),
		msg(domain.RoleUser, 100),
	}

	result, err := o.Optimize(context.Background(), messages, 60, contextwindow.Config{
		Strategy:           contextwindow.StrategySelective,
		ImportanceKeywords: []string{"deadline"},
	})
	require.NoError(t, err)

	// The keyword-bearing message and the newest user message score highest
	// and both fit; output order is chronological.
	require.Len(t, result.Messages, 2)
	require.Contains(t, result.Messages[0].Content, "deadline")
	require.Equal(t, messages[3], result.Messages[1])
}

func TestOptimize_SelectiveTiePreservesOriginalOrder(t *testing.T) {
	o := contextwindow.NewOptimizer(nil)

	// Both messages saturate the importance clamp, so their scores tie and
	// only stable ordering decides who takes the single slot in the budget.
	system := msg(domain.RoleSystem, 500)
	user := msg(domain.RoleUser, 500)

	result, err := o.Optimize(context.Background(), []domain.Message{system, user}, 150, contextwindow.Config{
		Strategy: contextwindow.StrategySelective,
	})
	require.NoError(t, err)

	require.Len(t, result.Messages, 1)
	require.Equal(t, system, result.Messages[0])
}

func TestOptimize_SelectiveHonorsRemoveRules(t *testing.T) {
	o := contextwindow.NewOptimizer(nil)

	secret := domain.Message{Role: domain.RoleUser, Content: "my password is hunter2 " + strings.Repeat("x", 77)}
	messages := []domain.Message{
		msg(domain.RoleUser, 100),
		msg(domain.RoleAssistant, 100),
		secret,
	}

	result, err := o.Optimize(context.Background(), messages, 60, contextwindow.Config{
		Strategy: contextwindow.StrategySelective,
		PriorityRules: []contextwindow.RoleRule{
			{
				Role:   domain.RoleUser,
				Weight: 1.0,
				Rules: []contextwindow.Rule{
					{
						Condition: contextwindow.ConditionKeyword,
						Operator:  contextwindow.OperatorContains,
						Value:     "password",
						Action:    contextwindow.ActionRemove,
					},
				},
			},
		},
	})
	require.NoError(t, err)

	for _, m := range result.Messages {
		require.NotContains(t, m.Content, "password")
	}
}

func TestOptimize_FallbackDropsStaleMessages(t *testing.T) {
	o := contextwindow.NewOptimizer(nil)

	messages := make([]domain.Message, 10)
	for i := range messages {
		messages[i] = msg(domain.RoleUser, 100)
	}

	// A low class weight pushes weight-times-recency below the keep threshold
	// for all but the most recent messages.
	result, err := o.Optimize(context.Background(), messages, 1000, contextwindow.Config{})
	require.NoError(t, err)
	require.Equal(t, 1.0, result.CompressionRatio, "within budget must be untouched")

	result, err = o.Optimize(context.Background(), messages, 120, contextwindow.Config{
		Strategy: contextwindow.StrategySelective,
		PriorityRules: []contextwindow.RoleRule{
			{Role: domain.RoleUser, Weight: 0.5},
		},
	})
	require.NoError(t, err)

	// weight 0.5 x recency (i+1)/10 >= 0.4 only for the last three messages.
	require.Len(t, result.Messages, 3)
}

func TestOptimize_SummarizeCondensesOlderHistory(t *testing.T) {
	summarizer := &fakeSummarizer{summary: "Earlier the user asked about billing."}
	o := contextwindow.NewOptimizer(summarizer)

	messages := make([]domain.Message, 6)
	for i := range messages {
		messages[i] = msg(domain.RoleUser, 40)
	}

	result, err := o.Optimize(context.Background(), messages, 50, contextwindow.Config{
		Strategy:   contextwindow.StrategySummarize,
		WindowSize: 2,
	})
	require.NoError(t, err)

	require.True(t, summarizer.called)
	require.Equal(t, 4, summarizer.gotCount, "everything outside the window is summarized")
	require.Equal(t, 10, summarizer.gotBudget, "summary budget is a fifth of the total")

	require.Len(t, result.Messages, 3)
	require.Equal(t, domain.RoleSystem, result.Messages[0].Role)
	require.Equal(t, summarizer.summary, result.Messages[0].Content)
	require.Equal(t, messages[4:], result.Messages[1:])
	require.Equal(t, summarizer.summary, result.Summary)
}

func TestOptimize_SummarizeFailureFallsBackToTruncate(t *testing.T) {
	summarizer := &fakeSummarizer{err: errors.New("provider unavailable")}
	o := contextwindow.NewOptimizer(summarizer)

	messages := make([]domain.Message, 6)
	for i := range messages {
		messages[i] = msg(domain.RoleUser, 40)
	}

	result, err := o.Optimize(context.Background(), messages, 50, contextwindow.Config{
		Strategy:   contextwindow.StrategySummarize,
		WindowSize: 2,
	})
	require.NoError(t, err)

	require.Empty(t, result.Summary)
	for _, m := range result.Messages {
		require.NotEqual(t, domain.RoleSystem, m.Role, "no synthetic summary on fallback")
	}
}

func TestOptimize_SummarizeWindowOverflowCompressesWindow(t *testing.T) {
	summarizer := &fakeSummarizer{summary: "unused"}
	o := contextwindow.NewOptimizer(summarizer)

	messages := make([]domain.Message, 6)
	for i := range messages {
		messages[i] = msg(domain.RoleUser, 40)
	}

	// The four-message window alone exceeds the budget, so the window is
	// compressed selectively and no summarization happens.
	result, err := o.Optimize(context.Background(), messages, 30, contextwindow.Config{
		Strategy:   contextwindow.StrategySummarize,
		WindowSize: 4,
	})
	require.NoError(t, err)

	require.False(t, summarizer.called)
	require.Empty(t, result.Summary)
	require.LessOrEqual(t, result.TokensUsed, 30)
}
