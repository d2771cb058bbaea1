package automation

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Repository defines the interface for rule persistence.
// This abstraction allows different implementations (SQLite, mock, etc.)
// and enables unit testing without database dependencies.
type Repository interface {
	GetByID(ctx context.Context, id string) (*Rule, error)
	ListByUser(ctx context.Context, userID int64) ([]Rule, error)
	// ListEnabledByTrigger returns the enabled rules a user owns for one
	// trigger type. This is the evaluation hot path.
	ListEnabledByTrigger(ctx context.Context, userID int64, trigger TriggerType) ([]Rule, error)
	Create(ctx context.Context, rule *Rule) error
	Update(ctx context.Context, rule *Rule) error
	Delete(ctx context.Context, id string) error
	// UpdateLastExecuted records when a rule last fired. Best effort;
	// callers must not fail an execution over it.
	UpdateLastExecuted(ctx context.Context, id string, at time.Time) error
}

// ruleColumns is the SELECT column list for rule queries.
const ruleColumns = `id, user_id, name, enabled, trigger_type, trigger_conditions,
			actions, last_executed, created_at, updated_at`

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// GetByID retrieves a rule by its unique identifier.
func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*Rule, error) {
	query := `SELECT ` + ruleColumns + ` FROM automations WHERE id = ?`

	row := r.db.QueryRowContext(ctx, query, id)
	rule, err := scanRule(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRuleNotFound
		}
		return nil, fmt.Errorf("querying rule by id: %w", err)
	}
	return rule, nil
}

// ListByUser retrieves all rules a user owns, newest first.
func (r *SQLiteRepository) ListByUser(ctx context.Context, userID int64) ([]Rule, error) {
	query := `SELECT ` + ruleColumns + ` FROM automations WHERE user_id = ? ORDER BY created_at DESC, id`
	return r.queryRules(ctx, query, userID)
}

// ListEnabledByTrigger retrieves the enabled rules a user owns for one
// trigger type.
func (r *SQLiteRepository) ListEnabledByTrigger(ctx context.Context, userID int64, trigger TriggerType) ([]Rule, error) {
	query := `SELECT ` + ruleColumns + ` FROM automations
		WHERE user_id = ? AND trigger_type = ? AND enabled = 1
		ORDER BY created_at, id`
	return r.queryRules(ctx, query, userID, string(trigger))
}

// Create inserts a new rule after validation. A rule arriving without an
// id is assigned one.
func (r *SQLiteRepository) Create(ctx context.Context, rule *Rule) error {
	if err := rule.Validate(); err != nil {
		return err
	}
	if rule.ID == "" {
		rule.ID = uuid.New().String()
	}

	conditionsJSON, actionsJSON, err := encodeRule(rule)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	if rule.CreatedAt.IsZero() {
		rule.CreatedAt = now
	}
	rule.UpdatedAt = now

	query := `
		INSERT INTO automations (
			id, user_id, name, enabled, trigger_type, trigger_conditions,
			actions, last_executed, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = r.db.ExecContext(ctx, query,
		rule.ID,
		rule.UserID,
		rule.Name,
		boolToInt(rule.Enabled),
		string(rule.Trigger.Type),
		conditionsJSON,
		actionsJSON,
		nullableTime(rule.LastExecuted),
		rule.CreatedAt.Format(time.RFC3339),
		rule.UpdatedAt.Format(time.RFC3339),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return ErrRuleExists
		}
		return fmt.Errorf("inserting rule: %w", err)
	}
	return nil
}

// Update replaces an existing rule's definition.
func (r *SQLiteRepository) Update(ctx context.Context, rule *Rule) error {
	if err := rule.Validate(); err != nil {
		return err
	}

	conditionsJSON, actionsJSON, err := encodeRule(rule)
	if err != nil {
		return err
	}

	rule.UpdatedAt = time.Now().UTC()

	query := `
		UPDATE automations SET
			name = ?, enabled = ?, trigger_type = ?, trigger_conditions = ?,
			actions = ?, updated_at = ?
		WHERE id = ? AND user_id = ?`

	result, err := r.db.ExecContext(ctx, query,
		rule.Name,
		boolToInt(rule.Enabled),
		string(rule.Trigger.Type),
		conditionsJSON,
		actionsJSON,
		rule.UpdatedAt.Format(time.RFC3339),
		rule.ID,
		rule.UserID,
	)
	if err != nil {
		return fmt.Errorf("updating rule: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking update result: %w", err)
	}
	if rows == 0 {
		return ErrRuleNotFound
	}
	return nil
}

// Delete removes a rule.
func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM automations WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting rule: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking delete result: %w", err)
	}
	if rows == 0 {
		return ErrRuleNotFound
	}
	return nil
}

// UpdateLastExecuted records when a rule last fired.
func (r *SQLiteRepository) UpdateLastExecuted(ctx context.Context, id string, at time.Time) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE automations SET last_executed = ? WHERE id = ?`,
		at.UTC().Format(time.RFC3339), id,
	)
	if err != nil {
		return fmt.Errorf("recording execution time: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking execution time result: %w", err)
	}
	if rows == 0 {
		return ErrRuleNotFound
	}
	return nil
}

func (r *SQLiteRepository) queryRules(ctx context.Context, query string, args ...any) ([]Rule, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying rules: %w", err)
	}
	defer rows.Close()

	var rules []Rule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning rule: %w", err)
		}
		rules = append(rules, *rule)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating rules: %w", err)
	}
	return rules, nil
}

// scanner abstracts over sql.Row and sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanRule(s scanner) (*Rule, error) {
	var (
		rule           Rule
		enabled        int
		triggerType    string
		conditionsJSON string
		actionsJSON    string
		lastExecuted   sql.NullString
		createdAt      string
		updatedAt      string
	)

	err := s.Scan(
		&rule.ID,
		&rule.UserID,
		&rule.Name,
		&enabled,
		&triggerType,
		&conditionsJSON,
		&actionsJSON,
		&lastExecuted,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	rule.Enabled = enabled != 0
	rule.Trigger.Type = TriggerType(triggerType)

	if err := json.Unmarshal([]byte(conditionsJSON), &rule.Trigger.Conditions); err != nil {
		return nil, fmt.Errorf("decoding trigger conditions: %w", err)
	}
	if err := json.Unmarshal([]byte(actionsJSON), &rule.Actions); err != nil {
		return nil, fmt.Errorf("decoding actions: %w", err)
	}

	if lastExecuted.Valid {
		t, err := time.Parse(time.RFC3339, lastExecuted.String)
		if err != nil {
			return nil, fmt.Errorf("parsing last_executed: %w", err)
		}
		rule.LastExecuted = &t
	}
	if rule.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	if rule.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt); err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}

	return &rule, nil
}

func encodeRule(rule *Rule) (conditionsJSON, actionsJSON string, err error) {
	conditions := rule.Trigger.Conditions
	if conditions == nil {
		conditions = map[string]any{}
	}
	cb, err := json.Marshal(conditions)
	if err != nil {
		return "", "", fmt.Errorf("marshalling trigger conditions: %w", err)
	}
	ab, err := json.Marshal(rule.Actions)
	if err != nil {
		return "", "", fmt.Errorf("marshalling actions: %w", err)
	}
	return string(cb), string(ab), nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}
