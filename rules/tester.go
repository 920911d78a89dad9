package rules

import "sort"

// TestRule previews a rule against a sample entity without side effects:
// same condition-group evaluation as a live Fire, but matched actions are
// resolved and returned instead of dispatched. Operators use this to
// validate a rule before activating it, so it works for any status and is
// safe to call repeatedly.
func TestRule(rule *Rule, sample Entity) TestResult {
	matched, conditions := EvaluateGroupTrace(rule.Conditions, sample)
	result := TestResult{
		Matched:    matched,
		Conditions: conditions,
	}
	if !matched {
		return result
	}

	actions := append([]Action(nil), rule.Actions...)
	sort.SliceStable(actions, func(i, j int) bool {
		return actions[i].Order < actions[j].Order
	})

	result.WouldFire = make([]ResolvedAction, 0, len(actions))
	for _, action := range actions {
		result.WouldFire = append(result.WouldFire, ResolvedAction{
			Type:       action.Type,
			Parameters: action.Parameters,
			Order:      action.Order,
		})
	}
	return result
}
