package main

import (
	"github.com/warevault/rules/rules"
)

// FireRequest is the body for POST /api/v1/fire.
type FireRequest struct {
	Event      string         `json:"event"`
	EntityType string         `json:"entityType"`
	Entity     map[string]any `json:"entity"`
}

// TestRequest is the body for POST /api/v1/rules/{ruleId}/test.
type TestRequest struct {
	Entity map[string]any `json:"entity"`
}

// ConditionRequest is one condition row in a rule create/update body.
type ConditionRequest struct {
	Field     string `json:"field"`
	Operator  string `json:"operator"`
	Value     any    `json:"value"`
	Value2    any    `json:"value2,omitempty"`
	Connector string `json:"connector,omitempty"`
	Order     *int   `json:"order,omitempty"`
}

// ActionRequest is one action row in a rule create/update body.
type ActionRequest struct {
	Type   string         `json:"type"`
	Params map[string]any `json:"params,omitempty"`
	Order  *int           `json:"order,omitempty"`
}

// RuleRequest is the body for creating or updating a rule.
type RuleRequest struct {
	Name        string             `json:"name"`
	Description string             `json:"description,omitempty"`
	Type        string             `json:"type"`
	Priority    int                `json:"priority"`
	Events      []string           `json:"events"`
	Conditions  []ConditionRequest `json:"conditions,omitempty"`
	Actions     []ActionRequest    `json:"actions,omitempty"`
}

func (req RuleRequest) toRule() *rules.Rule {
	rule := &rules.Rule{
		Name:        req.Name,
		Description: req.Description,
		Type:        rules.RuleType(req.Type),
		Priority:    req.Priority,
	}

	for _, event := range req.Events {
		rule.TriggerEvents = append(rule.TriggerEvents, rules.EventType(event))
	}

	for i, c := range req.Conditions {
		connector := rules.LogicalOperator(c.Connector)
		if connector == "" {
			connector = rules.LogicalAnd
		}
		order := i
		if c.Order != nil {
			order = *c.Order
		}
		rule.Conditions = append(rule.Conditions, rules.Condition{
			Field:     c.Field,
			Operator:  rules.Operator(c.Operator),
			Value:     rules.FromAny(c.Value),
			Value2:    rules.FromAny(c.Value2),
			Connector: connector,
			Order:     order,
		})
	}

	for i, a := range req.Actions {
		order := i
		if a.Order != nil {
			order = *a.Order
		}
		rule.Actions = append(rule.Actions, rules.Action{
			Type:       a.Type,
			Parameters: rules.ParamMap(a.Params),
			Order:      order,
		})
	}

	return rule
}
