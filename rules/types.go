package rules

import (
	"time"
)

// RuleType is the functional domain a rule belongs to. It scopes which
// entity shapes the rule may evaluate against.
type RuleType string

const (
	RuleTypeAllocation   RuleType = "ALLOCATION"
	RuleTypePicking      RuleType = "PICKING"
	RuleTypeShipping     RuleType = "SHIPPING"
	RuleTypeInventory    RuleType = "INVENTORY"
	RuleTypeValidation   RuleType = "VALIDATION"
	RuleTypeNotification RuleType = "NOTIFICATION"
)

// RuleTypes lists all known rule types.
var RuleTypes = []RuleType{
	RuleTypeAllocation,
	RuleTypePicking,
	RuleTypeShipping,
	RuleTypeInventory,
	RuleTypeValidation,
	RuleTypeNotification,
}

// EntityType names the shape of the snapshot a lifecycle event carries.
type EntityType string

const (
	EntityOrder     EntityType = "order"
	EntityPick      EntityType = "pick"
	EntityInventory EntityType = "inventory"
	EntityShipment  EntityType = "shipment"
)

// AppliesTo reports whether rules of this type may evaluate entities of the
// given shape. Validation and notification rules attach to any entity; the
// rest are scoped to their domain.
func (t RuleType) AppliesTo(et EntityType) bool {
	switch t {
	case RuleTypeValidation, RuleTypeNotification:
		return true
	case RuleTypeAllocation:
		return et == EntityOrder
	case RuleTypePicking:
		return et == EntityPick || et == EntityOrder
	case RuleTypeShipping:
		return et == EntityShipment || et == EntityOrder
	case RuleTypeInventory:
		return et == EntityInventory
	}
	return false
}

// RuleTypesFor returns the rule types eligible for an entity shape. Used by
// stores to push the compatibility filter into a query.
func RuleTypesFor(et EntityType) []RuleType {
	var out []RuleType
	for _, t := range RuleTypes {
		if t.AppliesTo(et) {
			out = append(out, t)
		}
	}
	return out
}

// Status is the lifecycle state of a rule. Only ACTIVE rules are eligible
// for live evaluation; ARCHIVED is terminal.
type Status string

const (
	StatusDraft    Status = "DRAFT"
	StatusActive   Status = "ACTIVE"
	StatusInactive Status = "INACTIVE"
	StatusArchived Status = "ARCHIVED"
)

// CanTransitionTo reports whether a status change is a legal lifecycle move.
func (s Status) CanTransitionTo(next Status) bool {
	if s == StatusArchived {
		return false
	}
	if next == StatusArchived {
		return true
	}
	switch s {
	case StatusDraft:
		return next == StatusActive
	case StatusActive:
		return next == StatusInactive
	case StatusInactive:
		return next == StatusActive
	}
	return false
}

// EventType identifies a warehouse lifecycle event that can trigger rules.
type EventType string

const (
	EventOrderCreated       EventType = "ORDER_CREATED"
	EventOrderClaimed       EventType = "ORDER_CLAIMED"
	EventOrderAllocated     EventType = "ORDER_ALLOCATED"
	EventOrderCancelled     EventType = "ORDER_CANCELLED"
	EventPickConfirmed      EventType = "PICK_CONFIRMED"
	EventPickShorted        EventType = "PICK_SHORTED"
	EventInventoryAdjusted  EventType = "INVENTORY_ADJUSTED"
	EventInventoryReceived  EventType = "INVENTORY_RECEIVED"
	EventShipmentDispatched EventType = "SHIPMENT_DISPATCHED"
)

// LogicalOperator joins a condition to the one after it in the list.
type LogicalOperator string

const (
	LogicalAnd LogicalOperator = "AND"
	LogicalOr  LogicalOperator = "OR"
)

// Operator is a condition comparison operator.
type Operator string

const (
	OpEquals         Operator = "EQUALS"
	OpNotEquals      Operator = "NOT_EQUALS"
	OpGreaterThan    Operator = "GREATER_THAN"
	OpLessThan       Operator = "LESS_THAN"
	OpGreaterOrEqual Operator = "GREATER_OR_EQUAL"
	OpLessOrEqual    Operator = "LESS_OR_EQUAL"
	OpContains       Operator = "CONTAINS"
	OpIn             Operator = "IN"
	OpBetween        Operator = "BETWEEN"
)

// KnownOperator reports whether op is one of the supported operators.
func KnownOperator(op Operator) bool {
	switch op {
	case OpEquals, OpNotEquals, OpGreaterThan, OpLessThan,
		OpGreaterOrEqual, OpLessOrEqual, OpContains, OpIn, OpBetween:
		return true
	}
	return false
}

// Condition is one evaluable predicate in a rule. Connector describes how
// this condition combines with the next one in order; it is ignored on the
// last condition.
type Condition struct {
	ID        string          `json:"id"`
	RuleID    string          `json:"ruleId"`
	Field     string          `json:"field"`
	Operator  Operator        `json:"operator"`
	Value     Value           `json:"value"`
	Value2    Value           `json:"value2,omitempty"`
	Connector LogicalOperator `json:"connector"`
	Order     int             `json:"order"`
}

// Action is one operation a matched rule performs. Parameters pass through
// to the registered capability handler opaquely.
type Action struct {
	ID         string           `json:"id"`
	RuleID     string           `json:"ruleId"`
	Type       string           `json:"type"`
	Parameters map[string]Value `json:"parameters,omitempty"`
	Order      int              `json:"order"`
}

// Rule is a named, versioned automation unit: fire the actions when the
// conditions hold for an entity carried by one of the trigger events.
type Rule struct {
	ID             string      `json:"id"`
	Name           string      `json:"name"`
	Description    string      `json:"description,omitempty"`
	Type           RuleType    `json:"type"`
	Status         Status      `json:"status"`
	Priority       int         `json:"priority"`
	TriggerEvents  []EventType `json:"triggerEvents"`
	Conditions     []Condition `json:"conditions"`
	Actions        []Action    `json:"actions"`
	ExecutionCount int64       `json:"executionCount"`
	Version        int64       `json:"version"`
	CreatedAt      time.Time   `json:"createdAt"`
	UpdatedAt      time.Time   `json:"updatedAt"`
}

// TriggeredBy reports whether event is in the rule's trigger set.
func (r *Rule) TriggeredBy(event EventType) bool {
	for _, e := range r.TriggerEvents {
		if e == event {
			return true
		}
	}
	return false
}

// Clone returns a deep copy. Stores hand out clones so one Fire call's
// snapshot stays immutable while a concurrent edit lands.
func (r *Rule) Clone() *Rule {
	if r == nil {
		return nil
	}
	out := *r
	out.TriggerEvents = append([]EventType(nil), r.TriggerEvents...)
	out.Conditions = append([]Condition(nil), r.Conditions...)
	out.Actions = make([]Action, len(r.Actions))
	for i, a := range r.Actions {
		out.Actions[i] = a
		if a.Parameters != nil {
			params := make(map[string]Value, len(a.Parameters))
			for k, v := range a.Parameters {
				params[k] = v
			}
			out.Actions[i].Parameters = params
		}
	}
	return &out
}

// ActionOutcome records one action's execution result inside a trace.
type ActionOutcome struct {
	ActionID  string `json:"actionId,omitempty"`
	Type      string `json:"type"`
	Succeeded bool   `json:"succeeded"`
	Error     string `json:"error,omitempty"`
}

// RuleOutcome records one rule's evaluation inside a trace. Error is set
// when the rule as a whole failed rather than cleanly not matching.
type RuleOutcome struct {
	RuleID   string          `json:"ruleId"`
	RuleName string          `json:"ruleName"`
	Priority int             `json:"priority"`
	Matched  bool            `json:"matched"`
	Actions  []ActionOutcome `json:"actions,omitempty"`
	Error    string          `json:"error,omitempty"`
}

// Trace is the full account of one Fire call: every eligible rule in
// evaluation order, matched or not, with per-action outcomes.
type Trace struct {
	Event      EventType     `json:"event"`
	EntityType EntityType    `json:"entityType"`
	EntityID   string        `json:"entityId,omitempty"`
	Rules      []RuleOutcome `json:"rules"`
	StartedAt  time.Time     `json:"startedAt"`
	Duration   time.Duration `json:"duration"`
}

// ExecutionRecord is the audit event emitted for each rule considered
// during a Fire call.
type ExecutionRecord struct {
	RuleID    string          `json:"ruleId"`
	Event     EventType       `json:"event"`
	EntityID  string          `json:"entityId,omitempty"`
	Matched   bool            `json:"matched"`
	Actions   []ActionOutcome `json:"actions,omitempty"`
	Error     string          `json:"error,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// ConditionTrace is the per-condition detail surfaced by the tester so an
// operator can see why a rule did or did not match.
type ConditionTrace struct {
	Field      string          `json:"field"`
	Operator   Operator        `json:"operator"`
	Resolved   Value           `json:"resolved"`
	Expected   Value           `json:"expected"`
	Result     bool            `json:"result"`
	Connector  LogicalOperator `json:"connector,omitempty"`
	Diagnostic string          `json:"diagnostic,omitempty"`
}

// ResolvedAction is an action as it would be dispatched, returned by the
// tester without invoking any capability.
type ResolvedAction struct {
	Type       string           `json:"type"`
	Parameters map[string]Value `json:"parameters,omitempty"`
	Order      int              `json:"order"`
}

// TestResult is the tester's dry-run outcome for one rule.
type TestResult struct {
	Matched    bool             `json:"matched"`
	Conditions []ConditionTrace `json:"conditions"`
	WouldFire  []ResolvedAction `json:"wouldFire,omitempty"`
}
