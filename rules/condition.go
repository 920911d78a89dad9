package rules

import (
	"fmt"
	"sort"
	"strings"
)

// EvaluateCondition applies one operator to a resolved field value. It is
// total: malformed operator/value combinations evaluate to false and return
// a diagnostic instead of an error.
//
// A Missing resolved value makes every operator false except NOT_EQUALS,
// which is true: a missing field is "not equal" to any concrete value.
// Match-style rules fail closed on absent data while exclusion rules still
// work.
func EvaluateCondition(resolved Value, op Operator, value, value2 Value) (bool, string) {
	if resolved.IsMissing() {
		return op == OpNotEquals, ""
	}

	switch op {
	case OpEquals:
		return resolved.Equal(value), ""
	case OpNotEquals:
		return !resolved.Equal(value), ""

	case OpGreaterThan, OpLessThan, OpGreaterOrEqual, OpLessOrEqual:
		rn, rok := resolved.AsNumber()
		vn, vok := value.AsNumber()
		if !rok || !vok {
			return false, fmt.Sprintf("operator %s requires numeric operands, got %s and %s",
				op, resolved.Kind(), value.Kind())
		}
		switch op {
		case OpGreaterThan:
			return rn > vn, ""
		case OpLessThan:
			return rn < vn, ""
		case OpGreaterOrEqual:
			return rn >= vn, ""
		default:
			return rn <= vn, ""
		}

	case OpContains:
		if list, ok := resolved.AsList(); ok {
			for _, item := range list {
				if item.Equal(value) {
					return true, ""
				}
			}
			return false, ""
		}
		return strings.Contains(resolved.AsString(), value.AsString()), ""

	case OpIn:
		list, ok := value.AsList()
		if !ok {
			return false, fmt.Sprintf("operator IN requires a list value, got %s", value.Kind())
		}
		for _, item := range list {
			if resolved.Equal(item) {
				return true, ""
			}
		}
		return false, ""

	case OpBetween:
		rn, rok := resolved.AsNumber()
		lo, lok := value.AsNumber()
		hi, hok := value2.AsNumber()
		if !rok || !lok || !hok {
			return false, fmt.Sprintf("operator BETWEEN requires numeric bounds, got %s and %s",
				value.Kind(), value2.Kind())
		}
		return lo <= rn && rn <= hi, ""
	}

	return false, fmt.Sprintf("unknown operator %q", op)
}

// orderConditions returns conditions sorted by their explicit Order index.
// The sort is stable so list position breaks ties.
func orderConditions(conditions []Condition) []Condition {
	sorted := append([]Condition(nil), conditions...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Order < sorted[j].Order
	})
	return sorted
}

// EvaluateGroup folds a rule's ordered conditions into one boolean. An
// empty group is unconditionally true.
//
// Combination is strictly left-associative with no precedence between AND
// and OR: the accumulator starts as condition 0's result, and each
// subsequent result is folded in using the connector attached to the
// condition *before* it (the authoring model where a condition row says
// "AND/OR the next row"). [A(AND), B(OR), C] reads (A AND B) OR C. Existing
// rule definitions were authored against this model, so it must not be
// "fixed" to standard precedence.
func EvaluateGroup(conditions []Condition, entity Entity) bool {
	matched, _ := EvaluateGroupTrace(conditions, entity)
	return matched
}

// EvaluateGroupTrace is EvaluateGroup plus the per-condition detail the
// tester shows operators. Every condition is evaluated even when the
// accumulator already determines the outcome, so the trace is complete.
func EvaluateGroupTrace(conditions []Condition, entity Entity) (bool, []ConditionTrace) {
	if len(conditions) == 0 {
		return true, nil
	}

	sorted := orderConditions(conditions)
	traces := make([]ConditionTrace, 0, len(sorted))

	var acc bool
	for i, cond := range sorted {
		resolved := Resolve(entity, cond.Field)
		result, diag := EvaluateCondition(resolved, cond.Operator, cond.Value, cond.Value2)
		traces = append(traces, ConditionTrace{
			Field:      cond.Field,
			Operator:   cond.Operator,
			Resolved:   resolved,
			Expected:   cond.Value,
			Result:     result,
			Connector:  cond.Connector,
			Diagnostic: diag,
		})

		if i == 0 {
			acc = result
			continue
		}
		if sorted[i-1].Connector == LogicalOr {
			acc = acc || result
		} else {
			acc = acc && result
		}
	}

	return acc, traces
}
