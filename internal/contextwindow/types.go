// Package contextwindow decides which conversation messages to keep,
// summarize or drop when a provider's token budget is exceeded.
package contextwindow

import (
	"context"

	"github.com/davidbz/hearth/internal/domain"
)

// Strategy selects the compression algorithm.
type Strategy string

const (
	StrategyNone      Strategy = "none"
	StrategyTruncate  Strategy = "truncate"
	StrategySelective Strategy = "selective"
	StrategySummarize Strategy = "summarize"
)

// Condition is the message attribute a rule inspects.
type Condition string

const (
	ConditionRole       Condition = "role"
	ConditionAge        Condition = "age" // messages before the most recent one
	ConditionLength     Condition = "length"
	ConditionKeyword    Condition = "keyword"
	ConditionImportance Condition = "importanceScore"
)

// Operator compares a message attribute against a rule value.
type Operator string

const (
	OperatorEquals      Operator = "equals"
	OperatorContains    Operator = "contains"
	OperatorGreaterThan Operator = "greaterThan"
	OperatorLessThan    Operator = "lessThan"
	OperatorInRange     Operator = "inRange"
)

// Action is a rule's verdict for a matching message.
type Action string

const (
	ActionKeep      Action = "keep"
	ActionSummarize Action = "summarize"
	ActionRemove    Action = "remove"
)

// Rule is one condition in a role class's ordered rule list.
// Value holds a string for role/keyword conditions, a number for
// age/length/importance comparisons, and a two-element number slice
// for inRange.
type Rule struct {
	Condition Condition `json:"condition"`
	Operator  Operator  `json:"operator"`
	Value     any       `json:"value"`
	Action    Action    `json:"action"`
}

// RoleRule binds an ordered rule list and a fallback weight to a role class.
// Rules are evaluated in order; the first match wins. A message matching no
// rule falls back to the weight-times-recency heuristic.
type RoleRule struct {
	Role   string  `json:"roleClass"`
	Weight float64 `json:"weight"`
	Rules  []Rule  `json:"rules,omitempty"`
}

// Config drives one optimization pass.
type Config struct {
	WindowSize         int        `json:"windowSize,omitempty"`
	Strategy           Strategy   `json:"compressionStrategy,omitempty"`
	PriorityRules      []RoleRule `json:"priorityRules,omitempty"`
	ImportanceKeywords []string   `json:"importanceKeywords,omitempty"`
}

// Result is the outcome of an optimization pass. CompressionRatio is
// optimized tokens over original tokens; the identity case reports 1.0.
type Result struct {
	Messages         []domain.Message `json:"optimizedMessages"`
	Summary          string           `json:"summary,omitempty"`
	TokensUsed       int              `json:"tokensUsed"`
	CompressionRatio float64          `json:"compressionRatio"`
}

// Summarizer condenses older messages into a short system prompt. The
// orchestrator implements this by recursively calling a provider.
type Summarizer interface {
	Summarize(ctx context.Context, messages []domain.Message, maxTokens int) (string, error)
}
