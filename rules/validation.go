package rules

import (
	"fmt"
	"regexp"
)

var validFieldPath = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*(\.[a-zA-Z_][a-zA-Z0-9_]*)*$`)

// ValidateRule checks a rule definition before it is persisted. Returns
// the first problem found, nil when the rule is well formed.
func ValidateRule(rule *Rule) error {
	if len(rule.Name) < 3 || len(rule.Name) > 100 {
		return fmt.Errorf("rule name must be 3-100 characters, got %d", len(rule.Name))
	}

	if !validRuleType(rule.Type) {
		return fmt.Errorf("unknown rule type %q", rule.Type)
	}

	if rule.Priority < 0 || rule.Priority > 100 {
		return fmt.Errorf("priority must be 0-100, got %d", rule.Priority)
	}

	if len(rule.TriggerEvents) == 0 {
		return fmt.Errorf("rule must declare at least one trigger event")
	}
	seen := make(map[EventType]bool, len(rule.TriggerEvents))
	for _, event := range rule.TriggerEvents {
		if event == "" {
			return fmt.Errorf("trigger event cannot be empty")
		}
		if seen[event] {
			return fmt.Errorf("duplicate trigger event %q", event)
		}
		seen[event] = true
	}

	for i, cond := range rule.Conditions {
		if err := validateCondition(cond); err != nil {
			return fmt.Errorf("condition %d: %w", i, err)
		}
	}

	for i, action := range rule.Actions {
		if action.Type == "" {
			return fmt.Errorf("action %d: action type cannot be empty", i)
		}
	}

	return nil
}

func validateCondition(cond Condition) error {
	if cond.Field == "" {
		return fmt.Errorf("field cannot be empty")
	}
	if !validFieldPath.MatchString(cond.Field) {
		return fmt.Errorf("field %q is not a valid dotted path", cond.Field)
	}
	if !KnownOperator(cond.Operator) {
		return fmt.Errorf("unknown operator %q", cond.Operator)
	}
	if cond.Connector != "" && cond.Connector != LogicalAnd && cond.Connector != LogicalOr {
		return fmt.Errorf("connector must be AND or OR, got %q", cond.Connector)
	}
	switch cond.Operator {
	case OpBetween:
		if cond.Value.IsMissing() || cond.Value2.IsMissing() {
			return fmt.Errorf("operator BETWEEN requires both bound values")
		}
		if _, ok := cond.Value.AsNumber(); !ok {
			return fmt.Errorf("operator BETWEEN requires a numeric lower bound, got %s", cond.Value.Kind())
		}
		if _, ok := cond.Value2.AsNumber(); !ok {
			return fmt.Errorf("operator BETWEEN requires a numeric upper bound, got %s", cond.Value2.Kind())
		}
	case OpIn:
		if _, ok := cond.Value.AsList(); !ok {
			return fmt.Errorf("operator IN requires a list value, got %s", cond.Value.Kind())
		}
	default:
		if cond.Value.IsMissing() {
			return fmt.Errorf("operator %s requires a comparison value", cond.Operator)
		}
	}
	return nil
}

func validRuleType(t RuleType) bool {
	for _, known := range RuleTypes {
		if t == known {
			return true
		}
	}
	return false
}
