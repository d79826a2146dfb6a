package contextwindow

import "strings"

// fallbackKeepThreshold decides retention for messages no rule matched:
// keep when weight-times-recency reaches the threshold.
const fallbackKeepThreshold = 0.4

// verdict applies the priority rules to one message. Role classes are
// scanned in order and the first class matching the message's role is
// authoritative; within it the first matching rule wins. Messages outside
// every class, or matching no rule, fall back to the weight-times-recency
// heuristic with a neutral weight of 1.0 when no class applies.
func verdict(msg message, rules []RoleRule) Action {
	weight := 1.0
	for _, class := range rules {
		if !roleMatches(class.Role, msg.Role) {
			continue
		}
		weight = class.Weight
		for _, rule := range class.Rules {
			if ruleMatches(rule, msg) {
				return rule.Action
			}
		}
		break
	}

	if weight*msg.recency >= fallbackKeepThreshold {
		return ActionKeep
	}
	return ActionRemove
}

// roleMatches treats "*" and "" as wildcards matching every role.
func roleMatches(class, role string) bool {
	return class == "*" || class == "" || class == role
}

func ruleMatches(rule Rule, msg message) bool {
	switch rule.Condition {
	case ConditionRole:
		want, ok := rule.Value.(string)
		if !ok {
			return false
		}
		switch rule.Operator {
		case OperatorEquals:
			return msg.Role == want
		case OperatorContains:
			return strings.Contains(msg.Role, want)
		}
		return false

	case ConditionKeyword:
		want, ok := rule.Value.(string)
		if !ok || want == "" {
			return false
		}
		return strings.Contains(strings.ToLower(msg.Content), strings.ToLower(want))

	case ConditionAge:
		return compareNumeric(rule, float64(msg.age))

	case ConditionLength:
		return compareNumeric(rule, float64(len(msg.Content)))

	case ConditionImportance:
		return compareNumeric(rule, msg.score)
	}
	return false
}

func compareNumeric(rule Rule, actual float64) bool {
	switch rule.Operator {
	case OperatorEquals:
		want, ok := asFloat(rule.Value)
		return ok && actual == want
	case OperatorGreaterThan:
		want, ok := asFloat(rule.Value)
		return ok && actual > want
	case OperatorLessThan:
		want, ok := asFloat(rule.Value)
		return ok && actual < want
	case OperatorInRange:
		low, high, ok := asRange(rule.Value)
		return ok && actual >= low && actual <= high
	}
	return false
}

// asFloat accepts the numeric types a rule value can arrive as, both from
// Go callers and from JSON decoding (which produces float64).
func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

func asRange(v any) (low, high float64, ok bool) {
	switch bounds := v.(type) {
	case []float64:
		if len(bounds) == 2 {
			return bounds[0], bounds[1], true
		}
	case []any:
		if len(bounds) == 2 {
			l, lok := asFloat(bounds[0])
			h, hok := asFloat(bounds[1])
			if lok && hok {
				return l, h, true
			}
		}
	}
	return 0, 0, false
}
