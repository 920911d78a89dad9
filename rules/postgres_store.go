package rules

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// PostgresRuleStore implements RuleStore backed by PostgreSQL. Conditions,
// actions and trigger events live in JSONB columns on the rule row, so one
// row read is one atomically consistent rule snapshot.
type PostgresRuleStore struct {
	db *sql.DB
}

// NewPostgresRuleStore creates a PostgreSQL-backed rule store.
func NewPostgresRuleStore(db *sql.DB) *PostgresRuleStore {
	return &PostgresRuleStore{db: db}
}

const ruleColumns = `id, name, description, rule_type, status, priority,
	trigger_events, conditions, actions, execution_count, version,
	created_at, updated_at`

// Add inserts a new rule in DRAFT.
func (s *PostgresRuleStore) Add(ctx context.Context, rule *Rule) error {
	if rule.ID == "" {
		rule.ID = uuid.NewString()
	}

	events, conditions, actions, err := marshalRuleColumns(rule)
	if err != nil {
		return fmt.Errorf("add rule %s: %w", rule.ID, err)
	}

	now := time.Now()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO rules (id, name, description, rule_type, status, priority,
			trigger_events, conditions, actions, execution_count, version,
			created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, 0, 1, $10, $10)
	`, rule.ID, rule.Name, rule.Description, rule.Type, StatusDraft, rule.Priority,
		events, conditions, actions, now)

	if isUniqueViolation(err) {
		return fmt.Errorf("add rule %s: %w", rule.ID, ErrRuleExists)
	}
	if err != nil {
		return fmt.Errorf("add rule %s: %w", rule.ID, err)
	}

	rule.Status = StatusDraft
	rule.ExecutionCount = 0
	rule.Version = 1
	rule.CreatedAt = now
	rule.UpdatedAt = now
	return nil
}

// Get retrieves a rule by ID, in any status.
func (s *PostgresRuleStore) Get(ctx context.Context, id string) (*Rule, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+ruleColumns+`
		FROM rules
		WHERE id = $1
	`, id)

	rule, err := scanRule(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get rule %s: %w", id, ErrRuleNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get rule %s: %w", id, err)
	}
	return rule, nil
}

// Update replaces a rule's definition, preserving status and execution
// count, and bumps the version in the same statement.
func (s *PostgresRuleStore) Update(ctx context.Context, rule *Rule) error {
	events, conditions, actions, err := marshalRuleColumns(rule)
	if err != nil {
		return fmt.Errorf("update rule %s: %w", rule.ID, err)
	}

	now := time.Now()
	result, err := s.db.ExecContext(ctx, `
		UPDATE rules
		SET name = $1, description = $2, rule_type = $3, priority = $4,
			trigger_events = $5, conditions = $6, actions = $7,
			version = version + 1, updated_at = $8
		WHERE id = $9 AND status <> $10
	`, rule.Name, rule.Description, rule.Type, rule.Priority,
		events, conditions, actions, now, rule.ID, StatusArchived)
	if err != nil {
		return fmt.Errorf("update rule %s: %w", rule.ID, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update rule %s: rows affected: %w", rule.ID, err)
	}
	if affected == 0 {
		// Either the rule is gone or it is archived; look to tell apart.
		existing, getErr := s.Get(ctx, rule.ID)
		if getErr != nil {
			return fmt.Errorf("update rule %s: %w", rule.ID, ErrRuleNotFound)
		}
		if existing.Status == StatusArchived {
			return fmt.Errorf("update rule %s: %w", rule.ID, ErrRuleArchived)
		}
		return fmt.Errorf("update rule %s: no row updated", rule.ID)
	}

	rule.UpdatedAt = now
	return nil
}

// SetStatus performs a lifecycle transition, rejecting illegal moves.
func (s *PostgresRuleStore) SetStatus(ctx context.Context, id string, status Status) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("set status of rule %s: %w", id, err)
	}
	defer tx.Rollback()

	var current Status
	err = tx.QueryRowContext(ctx,
		`SELECT status FROM rules WHERE id = $1 FOR UPDATE`, id).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("set status of rule %s: %w", id, ErrRuleNotFound)
	}
	if err != nil {
		return fmt.Errorf("set status of rule %s: %w", id, err)
	}

	if !current.CanTransitionTo(status) {
		return fmt.Errorf("set status of rule %s: %s -> %s: %w",
			id, current, status, ErrInvalidTransition)
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE rules SET status = $1, updated_at = $2 WHERE id = $3
	`, status, time.Now(), id); err != nil {
		return fmt.Errorf("set status of rule %s: %w", id, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("set status of rule %s: %w", id, err)
	}
	return nil
}

// List returns all rules ordered by creation time.
func (s *PostgresRuleStore) List(ctx context.Context) ([]*Rule, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+ruleColumns+`
		FROM rules
		ORDER BY created_at ASC, id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list rules: %w", err)
	}
	defer rows.Close()

	return collectRules(rows)
}

// ListEligible returns ACTIVE rules matching the event and entity shape.
// The rule-type compatibility filter is computed in Go and pushed into the
// query; trigger membership uses JSONB containment.
func (s *PostgresRuleStore) ListEligible(ctx context.Context, event EventType, entityType EntityType) ([]*Rule, error) {
	types := RuleTypesFor(entityType)
	typeNames := make([]string, len(types))
	for i, t := range types {
		typeNames[i] = string(t)
	}

	eventJSON, err := json.Marshal([]EventType{event})
	if err != nil {
		return nil, fmt.Errorf("list eligible rules: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+ruleColumns+`
		FROM rules
		WHERE status = $1
		  AND rule_type = ANY($2)
		  AND trigger_events @> $3
		ORDER BY priority DESC, id ASC
	`, StatusActive, pq.Array(typeNames), eventJSON)
	if err != nil {
		return nil, fmt.Errorf("list eligible rules: %w", err)
	}
	defer rows.Close()

	return collectRules(rows)
}

// IncrementExecutionCount bumps the counter atomically in the database, so
// concurrent fires on the same rule cannot corrupt the stored value.
func (s *PostgresRuleStore) IncrementExecutionCount(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE rules SET execution_count = execution_count + 1 WHERE id = $1
	`, id)
	if err != nil {
		return fmt.Errorf("increment execution count of rule %s: %w", id, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("increment execution count of rule %s: %w", id, err)
	}
	if affected == 0 {
		return fmt.Errorf("increment execution count of rule %s: %w", id, ErrRuleNotFound)
	}
	return nil
}

// PostgresAuditSink persists execution records to the rule_executions
// table. Pair it with a BufferedAuditSink so the insert happens off the
// Fire path.
type PostgresAuditSink struct {
	db *sql.DB
}

// NewPostgresAuditSink creates an audit sink over the given database.
func NewPostgresAuditSink(db *sql.DB) *PostgresAuditSink {
	return &PostgresAuditSink{db: db}
}

// Record inserts one execution record. Errors are swallowed: the audit
// trail is observability, never a reason to fail evaluation.
func (s *PostgresAuditSink) Record(ctx context.Context, rec ExecutionRecord) {
	outcomes, err := json.Marshal(rec.Actions)
	if err != nil {
		return
	}
	_, _ = s.db.ExecContext(ctx, `
		INSERT INTO rule_executions (id, rule_id, event, entity_id, matched, outcomes, error, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, uuid.NewString(), rec.RuleID, rec.Event, rec.EntityID, rec.Matched,
		outcomes, rec.Error, rec.Timestamp)
}

func marshalRuleColumns(rule *Rule) (events, conditions, actions []byte, err error) {
	if events, err = json.Marshal(rule.TriggerEvents); err != nil {
		return nil, nil, nil, fmt.Errorf("marshal trigger events: %w", err)
	}
	conds := rule.Conditions
	if conds == nil {
		conds = []Condition{}
	}
	if conditions, err = json.Marshal(conds); err != nil {
		return nil, nil, nil, fmt.Errorf("marshal conditions: %w", err)
	}
	acts := rule.Actions
	if acts == nil {
		acts = []Action{}
	}
	if actions, err = json.Marshal(acts); err != nil {
		return nil, nil, nil, fmt.Errorf("marshal actions: %w", err)
	}
	return events, conditions, actions, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRule(row rowScanner) (*Rule, error) {
	var rule Rule
	var events, conditions, actions []byte

	err := row.Scan(
		&rule.ID,
		&rule.Name,
		&rule.Description,
		&rule.Type,
		&rule.Status,
		&rule.Priority,
		&events,
		&conditions,
		&actions,
		&rule.ExecutionCount,
		&rule.Version,
		&rule.CreatedAt,
		&rule.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(events, &rule.TriggerEvents); err != nil {
		return nil, fmt.Errorf("unmarshal trigger events: %w", err)
	}
	if err := json.Unmarshal(conditions, &rule.Conditions); err != nil {
		return nil, fmt.Errorf("unmarshal conditions: %w", err)
	}
	if err := json.Unmarshal(actions, &rule.Actions); err != nil {
		return nil, fmt.Errorf("unmarshal actions: %w", err)
	}
	return &rule, nil
}

func collectRules(rows *sql.Rows) ([]*Rule, error) {
	var out []*Rule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, fmt.Errorf("scan rule: %w", err)
		}
		out = append(out, rule)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rules: %w", err)
	}
	return out, nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
