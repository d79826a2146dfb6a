package contextwindow

import (
	"strings"

	"github.com/davidbz/hearth/internal/domain"
)

// Importance scoring constants. The score starts from a neutral base and
// accumulates bounded bonuses so the final value stays within [0, 1].
const (
	scoreBase           = 0.5
	scoreRecencyWeight  = 0.3
	scoreLengthCap      = 0.2
	scoreLengthDivisor  = 2500.0
	scoreSystemBonus    = 0.25
	scoreUserBonus      = 0.10
	scoreAssistantBonus = 0.05
	scoreKeywordBonus   = 0.2
)

// importance scores message i of n. Recency is linear in position, length
// contributes up to scoreLengthCap, roles carry fixed bonuses and a keyword
// hit adds a flat bonus once regardless of how many keywords match.
func (o *Optimizer) importance(msg message, keywords []string) float64 {
	score := scoreBase
	score += scoreRecencyWeight * msg.recency

	lengthBonus := float64(len(msg.Content)) / scoreLengthDivisor
	if lengthBonus > scoreLengthCap {
		lengthBonus = scoreLengthCap
	}
	score += lengthBonus

	switch msg.Role {
	case domain.RoleSystem:
		score += scoreSystemBonus
	case domain.RoleUser:
		score += scoreUserBonus
	case domain.RoleAssistant:
		score += scoreAssistantBonus
	}

	if containsAnyKeyword(msg.Content, keywords) {
		score += scoreKeywordBonus
	}

	return clamp01(score)
}

func containsAnyKeyword(content string, keywords []string) bool {
	if len(keywords) == 0 {
		return false
	}
	lowered := strings.ToLower(content)
	for _, kw := range keywords {
		if kw == "" {
			continue
		}
		if strings.Contains(lowered, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
