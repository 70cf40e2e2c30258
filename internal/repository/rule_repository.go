package repository

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/courtbook/court-booking/internal/booking"
	"github.com/courtbook/court-booking/internal/model"
	"github.com/courtbook/court-booking/internal/pricing"
)

// RuleRepo persists pricing rules and the monotonically increasing rule
// set version.  The match predicate and the modifier are stored as JSON
// columns; the version lives in the single-row rule_set_version table
// and is bumped inside the same transaction as every rule mutation, so
// two snapshots with equal versions always contain equal rules.
type RuleRepo struct{ db *sql.DB }

// NewRuleRepo returns a RuleRepo bound to the given database.
func NewRuleRepo(db *sql.DB) *RuleRepo { return &RuleRepo{db: db} }

const ruleCols = "id, name, enabled, priority, match_json, modifier_json, stack_behavior, created_at"

// Upsert inserts or updates a rule and bumps the rule set version.  A
// zero ID inserts; the generated ID is populated on the passed rule.
func (r *RuleRepo) Upsert(ctx context.Context, rule *model.PricingRule) error {
	matchJSON, err := json.Marshal(rule.Match)
	if err != nil {
		return err
	}
	modifierJSON, err := json.Marshal(rule.Modifier)
	if err != nil {
		return err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	if rule.ID == 0 {
		res, err := tx.ExecContext(ctx,
			"INSERT INTO pricing_rules (name, enabled, priority, match_json, modifier_json, stack_behavior) VALUES (?,?,?,?,?,?)",
			rule.Name, rule.Enabled, rule.Priority, matchJSON, modifierJSON, string(rule.Stack))
		if err != nil {
			return err
		}
		id, err := res.LastInsertId()
		if err != nil {
			return err
		}
		rule.ID = uint64(id)
	} else {
		res, err := tx.ExecContext(ctx,
			"UPDATE pricing_rules SET name=?, enabled=?, priority=?, match_json=?, modifier_json=?, stack_behavior=? WHERE id=?",
			rule.Name, rule.Enabled, rule.Priority, matchJSON, modifierJSON, string(rule.Stack), rule.ID)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			var exists bool
			if err := tx.QueryRowContext(ctx,
				"SELECT EXISTS(SELECT 1 FROM pricing_rules WHERE id=?)", rule.ID).Scan(&exists); err != nil {
				return err
			}
			if !exists {
				return sql.ErrNoRows
			}
		}
	}

	if err := bumpVersionTx(ctx, tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}

// Delete removes a rule and bumps the rule set version.
func (r *RuleRepo) Delete(ctx context.Context, id uint64) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	res, err := tx.ExecContext(ctx, "DELETE FROM pricing_rules WHERE id=?", id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	if err := bumpVersionTx(ctx, tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}

// List returns all rules ordered by id.
func (r *RuleRepo) List(ctx context.Context) ([]model.PricingRule, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+ruleCols+" FROM pricing_rules ORDER BY id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRules(rows)
}

// Snapshot implements booking.RuleSource.  Version and rules are read in
// one repeatable-read transaction so the pair is consistent.
func (r *RuleRepo) Snapshot(ctx context.Context) (pricing.RuleSet, error) {
	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return pricing.RuleSet{}, err
	}
	defer func() { _ = tx.Rollback() }()

	var version uint64
	err = tx.QueryRowContext(ctx,
		"SELECT version FROM rule_set_version WHERE id=1").Scan(&version)
	if err != nil && err != sql.ErrNoRows {
		return pricing.RuleSet{}, err
	}

	rows, err := tx.QueryContext(ctx,
		"SELECT "+ruleCols+" FROM pricing_rules ORDER BY id")
	if err != nil {
		return pricing.RuleSet{}, err
	}
	defer rows.Close()
	rules, err := scanRules(rows)
	if err != nil {
		return pricing.RuleSet{}, err
	}
	return pricing.RuleSet{Version: version, Rules: rules}, nil
}

var _ booking.RuleSource = (*RuleRepo)(nil)

func bumpVersionTx(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.ExecContext(ctx,
		"INSERT INTO rule_set_version (id, version) VALUES (1, 1) ON DUPLICATE KEY UPDATE version = version + 1")
	return err
}

func scanRules(rows *sql.Rows) ([]model.PricingRule, error) {
	out := make([]model.PricingRule, 0)
	for rows.Next() {
		var (
			rule         model.PricingRule
			stack        string
			matchJSON    []byte
			modifierJSON []byte
		)
		if err := rows.Scan(&rule.ID, &rule.Name, &rule.Enabled, &rule.Priority,
			&matchJSON, &modifierJSON, &stack, &rule.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(matchJSON, &rule.Match); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(modifierJSON, &rule.Modifier); err != nil {
			return nil, err
		}
		rule.Stack = model.StackBehavior(stack)
		out = append(out, rule)
	}
	return out, rows.Err()
}
