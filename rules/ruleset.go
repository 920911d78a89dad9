package rules

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Ruleset is a declarative rule file. Deployments without an operator UI
// check one of these in next to the service config and load it at startup.
type Ruleset struct {
	APIVersion string          `yaml:"apiVersion"`
	Metadata   RulesetMetadata `yaml:"metadata"`
	Rules      []RuleSpec      `yaml:"rules"`
}

// RulesetMetadata names the ruleset.
type RulesetMetadata struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
}

// RuleSpec is the YAML shape of one rule.
type RuleSpec struct {
	Name        string          `yaml:"name"`
	Description string          `yaml:"description"`
	Type        string          `yaml:"type"`
	Priority    int             `yaml:"priority"`
	Events      []string        `yaml:"events"`
	Active      bool            `yaml:"active"`
	Conditions  []ConditionSpec `yaml:"conditions"`
	Actions     []ActionSpec    `yaml:"actions"`
}

// ConditionSpec is the YAML shape of one condition row.
type ConditionSpec struct {
	Field     string `yaml:"field"`
	Operator  string `yaml:"operator"`
	Value     any    `yaml:"value"`
	Value2    any    `yaml:"value2"`
	Connector string `yaml:"connector"`
}

// ActionSpec is the YAML shape of one action row.
type ActionSpec struct {
	Type   string         `yaml:"type"`
	Params map[string]any `yaml:"params"`
}

// LoadRuleset reads and parses a YAML ruleset file.
func LoadRuleset(path string) (*Ruleset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read ruleset: %w", err)
	}

	var rs Ruleset
	if err := yaml.Unmarshal(data, &rs); err != nil {
		return nil, fmt.Errorf("parse ruleset: %w", err)
	}
	return &rs, nil
}

// Apply validates each rule in the set and adds it to the store, activating
// those marked active. The first invalid rule aborts with its position so
// a bad file fails loudly at startup instead of silently dropping rules.
func (rs *Ruleset) Apply(ctx context.Context, store RuleStore) error {
	for i, spec := range rs.Rules {
		rule := spec.toRule()
		if err := ValidateRule(rule); err != nil {
			return fmt.Errorf("ruleset rule %d (%s): %w", i, spec.Name, err)
		}
		if err := store.Add(ctx, rule); err != nil {
			return fmt.Errorf("ruleset rule %d (%s): %w", i, spec.Name, err)
		}
		if spec.Active {
			if err := store.SetStatus(ctx, rule.ID, StatusActive); err != nil {
				return fmt.Errorf("ruleset rule %d (%s): activate: %w", i, spec.Name, err)
			}
		}
	}
	return nil
}

func (spec RuleSpec) toRule() *Rule {
	rule := &Rule{
		Name:        spec.Name,
		Description: spec.Description,
		Type:        RuleType(spec.Type),
		Priority:    spec.Priority,
	}

	for _, event := range spec.Events {
		rule.TriggerEvents = append(rule.TriggerEvents, EventType(event))
	}

	for i, c := range spec.Conditions {
		connector := LogicalOperator(c.Connector)
		if connector == "" {
			connector = LogicalAnd
		}
		rule.Conditions = append(rule.Conditions, Condition{
			Field:     c.Field,
			Operator:  Operator(c.Operator),
			Value:     FromAny(c.Value),
			Value2:    FromAny(c.Value2),
			Connector: connector,
			Order:     i,
		})
	}

	for i, a := range spec.Actions {
		rule.Actions = append(rule.Actions, Action{
			Type:       a.Type,
			Parameters: ParamMap(a.Params),
			Order:      i,
		})
	}

	return rule
}
