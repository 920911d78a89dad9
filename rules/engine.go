package rules

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"
)

// Engine selects, orders, evaluates and executes rules for warehouse
// lifecycle events. It holds no mutable evaluation state, so concurrent
// Fire calls for different events are safe; the only shared resource is
// the rule store, which hands out per-rule snapshots.
type Engine struct {
	store            RuleStore
	executor         *Executor
	audit            AuditSink
	cache            RulesCache
	log              *slog.Logger
	stopOnFirstMatch bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithAuditSink routes execution records to the given sink instead of
// discarding them.
func WithAuditSink(sink AuditSink) Option {
	return func(en *Engine) { en.audit = sink }
}

// WithLogger sets the engine's structured logger.
func WithLogger(log *slog.Logger) Option {
	return func(en *Engine) { en.log = log }
}

// WithCache fronts the store's eligible-rule reads with a cache. The
// caller owns invalidation on rule mutations.
func WithCache(cache RulesCache) Option {
	return func(en *Engine) { en.cache = cache }
}

// WithStopOnFirstMatch switches Fire from evaluating every eligible rule
// (independent automations, the default) to stopping after the first match
// (priority as a decision chain).
func WithStopOnFirstMatch(stop bool) Option {
	return func(en *Engine) { en.stopOnFirstMatch = stop }
}

// NewEngine creates an engine over a rule store and a capability provider.
func NewEngine(store RuleStore, capabilities CapabilityProvider, opts ...Option) *Engine {
	en := &Engine{
		store:    store,
		executor: NewExecutor(capabilities),
		audit:    NopAuditSink{},
		log:      slog.Default(),
	}
	for _, opt := range opts {
		opt(en)
	}
	return en
}

// Fire evaluates all eligible rules for one lifecycle event against one
// entity snapshot and executes the actions of those that match.
//
// Eligible rules run in priority order, highest first, ties broken by ID
// so the order is deterministic. Every eligible rule is evaluated whether
// or not an earlier one matched (unless WithStopOnFirstMatch); rules are
// independent automations, not a ranked decision chain. A failure inside
// one rule is contained at that rule's boundary and never aborts the rest.
//
// The only fatal error is failing to load eligible rules, since then
// nothing could be considered at all.
func (en *Engine) Fire(ctx context.Context, event EventType, entityType EntityType, entity Entity) (*Trace, error) {
	eligible, err := en.loadEligible(ctx, event, entityType)
	if err != nil {
		return nil, fmt.Errorf("load eligible rules for %s/%s: %w", event, entityType, err)
	}

	sort.Slice(eligible, func(i, j int) bool {
		if eligible[i].Priority != eligible[j].Priority {
			return eligible[i].Priority > eligible[j].Priority
		}
		return eligible[i].ID < eligible[j].ID
	})

	trace := &Trace{
		Event:      event,
		EntityType: entityType,
		EntityID:   entity.ID(),
		StartedAt:  time.Now(),
		Rules:      make([]RuleOutcome, 0, len(eligible)),
	}

	for _, rule := range eligible {
		outcome := en.fireRule(ctx, rule, entity)
		trace.Rules = append(trace.Rules, outcome)

		if outcome.Matched {
			if err := en.store.IncrementExecutionCount(ctx, rule.ID); err != nil {
				en.log.WarnContext(ctx, "execution count increment failed",
					"rule_id", rule.ID, "error", err)
			}
		}

		en.audit.Record(ctx, ExecutionRecord{
			RuleID:    rule.ID,
			Event:     event,
			EntityID:  trace.EntityID,
			Matched:   outcome.Matched,
			Actions:   outcome.Actions,
			Error:     outcome.Error,
			Timestamp: time.Now(),
		})

		if en.stopOnFirstMatch && outcome.Matched {
			break
		}
	}

	trace.Duration = time.Since(trace.StartedAt)
	en.log.DebugContext(ctx, "fire complete",
		"event", event, "entity_type", entityType,
		"rules_considered", len(trace.Rules), "duration", trace.Duration)
	return trace, nil
}

// fireRule evaluates one rule and, on a match, executes its actions in
// order. A panic anywhere inside the rule is contained here and reported
// as a rule-level failure.
func (en *Engine) fireRule(ctx context.Context, rule *Rule, entity Entity) (outcome RuleOutcome) {
	outcome = RuleOutcome{
		RuleID:   rule.ID,
		RuleName: rule.Name,
		Priority: rule.Priority,
	}

	defer func() {
		if r := recover(); r != nil {
			outcome.Error = fmt.Sprintf("rule evaluation panicked: %v", r)
			en.log.ErrorContext(ctx, "rule evaluation panicked",
				"rule_id", rule.ID, "panic", r)
		}
	}()

	if !EvaluateGroup(rule.Conditions, entity) {
		return outcome
	}
	outcome.Matched = true

	actions := append([]Action(nil), rule.Actions...)
	sort.SliceStable(actions, func(i, j int) bool {
		return actions[i].Order < actions[j].Order
	})

	outcome.Actions = make([]ActionOutcome, 0, len(actions))
	for _, action := range actions {
		result := en.executor.Execute(ctx, action, entity)
		if !result.Succeeded {
			en.log.WarnContext(ctx, "action failed",
				"rule_id", rule.ID, "action_type", action.Type, "error", result.Error)
		}
		outcome.Actions = append(outcome.Actions, result)
	}
	return outcome
}

// Test dry-runs a stored rule against a caller-supplied sample entity. Any
// status is testable, no capability is invoked and the execution count is
// untouched.
func (en *Engine) Test(ctx context.Context, ruleID string, sample Entity) (*TestResult, error) {
	rule, err := en.store.Get(ctx, ruleID)
	if err != nil {
		return nil, fmt.Errorf("load rule %s: %w", ruleID, err)
	}
	result := TestRule(rule, sample)
	return &result, nil
}

// InvalidateCache drops any cached eligible-rule snapshots. Callers that
// mutate rules while the engine runs should invoke this afterwards.
func (en *Engine) InvalidateCache() {
	if en.cache != nil {
		en.cache.Invalidate()
	}
}

func (en *Engine) loadEligible(ctx context.Context, event EventType, entityType EntityType) ([]*Rule, error) {
	if en.cache != nil {
		if cached := en.cache.Get(event, entityType); cached != nil {
			return cached, nil
		}
	}

	eligible, err := en.store.ListEligible(ctx, event, entityType)
	if err != nil {
		return nil, err
	}
	if en.cache != nil {
		en.cache.Set(event, entityType, eligible)
	}
	return eligible, nil
}
