package rules

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrRuleNotFound is returned when a rule ID does not exist.
	ErrRuleNotFound = errors.New("rule not found")
	// ErrRuleExists is returned when adding a rule whose ID is taken.
	ErrRuleExists = errors.New("rule already exists")
	// ErrRuleArchived is returned when editing an archived rule.
	ErrRuleArchived = errors.New("rule is archived")
	// ErrInvalidTransition is returned for an illegal lifecycle move.
	ErrInvalidTransition = errors.New("invalid status transition")
)

// RuleStore manages rule persistence and retrieval. Implementations must
// return each rule as an atomically consistent snapshot: a concurrent edit
// may make a loaded rule stale, but never half-updated (new conditions with
// old actions).
type RuleStore interface {
	// Add creates a new rule. Rules start in DRAFT regardless of the
	// status on the argument; an empty ID is assigned.
	Add(ctx context.Context, rule *Rule) error

	// Get returns a rule by ID, in any status.
	Get(ctx context.Context, id string) (*Rule, error)

	// Update replaces a rule's definition and bumps its version. Archived
	// rules reject edits; status and execution count are not touched.
	Update(ctx context.Context, rule *Rule) error

	// SetStatus performs a lifecycle transition.
	SetStatus(ctx context.Context, id string, status Status) error

	// List returns all rules.
	List(ctx context.Context) ([]*Rule, error)

	// ListEligible returns the ACTIVE rules whose type applies to the
	// entity shape and whose trigger set contains the event.
	ListEligible(ctx context.Context, event EventType, entityType EntityType) ([]*Rule, error)

	// IncrementExecutionCount bumps a rule's counter by one. Best-effort
	// observability: lost updates across concurrent fires are tolerable,
	// a decreasing or negative count is not.
	IncrementExecutionCount(ctx context.Context, id string) error
}

// InMemoryRuleStore implements RuleStore with a mutex-guarded map. Useful
// for tests and for deployments that bootstrap their rule set from a file.
type InMemoryRuleStore struct {
	rules map[string]*Rule
	mu    sync.RWMutex
}

// NewInMemoryRuleStore creates an empty in-memory rule store.
func NewInMemoryRuleStore() *InMemoryRuleStore {
	return &InMemoryRuleStore{rules: make(map[string]*Rule)}
}

// Add creates a new rule in DRAFT.
func (s *InMemoryRuleStore) Add(_ context.Context, rule *Rule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rule.ID == "" {
		rule.ID = uuid.NewString()
	}
	if _, exists := s.rules[rule.ID]; exists {
		return fmt.Errorf("add rule %s: %w", rule.ID, ErrRuleExists)
	}

	now := time.Now()
	stored := rule.Clone()
	stored.Status = StatusDraft
	stored.ExecutionCount = 0
	stored.Version = 1
	stored.CreatedAt = now
	stored.UpdatedAt = now
	s.rules[rule.ID] = stored

	*rule = *stored.Clone()
	return nil
}

// Get returns a snapshot of a rule by ID.
func (s *InMemoryRuleStore) Get(_ context.Context, id string) (*Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rule, exists := s.rules[id]
	if !exists {
		return nil, fmt.Errorf("get rule %s: %w", id, ErrRuleNotFound)
	}
	return rule.Clone(), nil
}

// Update replaces the rule definition, preserving status, execution count
// and creation time, and bumps the version.
func (s *InMemoryRuleStore) Update(_ context.Context, rule *Rule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.rules[rule.ID]
	if !exists {
		return fmt.Errorf("update rule %s: %w", rule.ID, ErrRuleNotFound)
	}
	if existing.Status == StatusArchived {
		return fmt.Errorf("update rule %s: %w", rule.ID, ErrRuleArchived)
	}

	stored := rule.Clone()
	stored.Status = existing.Status
	stored.ExecutionCount = existing.ExecutionCount
	stored.CreatedAt = existing.CreatedAt
	stored.Version = existing.Version + 1
	stored.UpdatedAt = time.Now()
	s.rules[rule.ID] = stored

	*rule = *stored.Clone()
	return nil
}

// SetStatus performs a lifecycle transition, rejecting illegal moves.
func (s *InMemoryRuleStore) SetStatus(_ context.Context, id string, status Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.rules[id]
	if !exists {
		return fmt.Errorf("set status of rule %s: %w", id, ErrRuleNotFound)
	}
	if !existing.Status.CanTransitionTo(status) {
		return fmt.Errorf("set status of rule %s: %s -> %s: %w",
			id, existing.Status, status, ErrInvalidTransition)
	}

	existing.Status = status
	existing.UpdatedAt = time.Now()
	return nil
}

// List returns all rules sorted by creation time.
func (s *InMemoryRuleStore) List(_ context.Context) ([]*Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Rule, 0, len(s.rules))
	for _, rule := range s.rules {
		out = append(out, rule.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// ListEligible returns ACTIVE rules matching the event and entity shape.
func (s *InMemoryRuleStore) ListEligible(_ context.Context, event EventType, entityType EntityType) ([]*Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*Rule
	for _, rule := range s.rules {
		if rule.Status != StatusActive {
			continue
		}
		if !rule.Type.AppliesTo(entityType) {
			continue
		}
		if !rule.TriggeredBy(event) {
			continue
		}
		out = append(out, rule.Clone())
	}
	return out, nil
}

// IncrementExecutionCount bumps the counter under the write lock.
func (s *InMemoryRuleStore) IncrementExecutionCount(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rule, exists := s.rules[id]
	if !exists {
		return fmt.Errorf("increment execution count of rule %s: %w", id, ErrRuleNotFound)
	}
	rule.ExecutionCount++
	return nil
}
