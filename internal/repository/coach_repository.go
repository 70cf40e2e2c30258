package repository

import (
	"context"
	"database/sql"

	"github.com/courtbook/court-booking/internal/model"
)

// CoachRepo provides CRUD operations on the coaches table.
type CoachRepo struct{ db *sql.DB }

// NewCoachRepo returns a CoachRepo bound to the given database.
func NewCoachRepo(db *sql.DB) *CoachRepo { return &CoachRepo{db: db} }

const coachCols = "id, name, bio, hourly_cents, active"

// Create inserts a coach and populates its generated ID.
func (r *CoachRepo) Create(ctx context.Context, c *model.Coach) error {
	res, err := r.db.ExecContext(ctx,
		"INSERT INTO coaches (name, bio, hourly_cents, active) VALUES (?,?,?,?)",
		c.Name, c.Bio, c.HourlyCents, c.Active)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	c.ID = uint64(id)
	return nil
}

// Update overwrites the mutable columns of a coach.
func (r *CoachRepo) Update(ctx context.Context, c model.Coach) error {
	res, err := r.db.ExecContext(ctx,
		"UPDATE coaches SET name=?, bio=?, hourly_cents=?, active=? WHERE id=?",
		c.Name, c.Bio, c.HourlyCents, c.Active, c.ID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		var exists bool
		if err := r.db.QueryRowContext(ctx,
			"SELECT EXISTS(SELECT 1 FROM coaches WHERE id=?)", c.ID).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return sql.ErrNoRows
		}
	}
	return nil
}

// Delete deactivates a coach; historical bookings keep referencing the row.
func (r *CoachRepo) Delete(ctx context.Context, id uint64) error {
	res, err := r.db.ExecContext(ctx,
		"UPDATE coaches SET active=0 WHERE id=?", id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		var exists bool
		if err := r.db.QueryRowContext(ctx,
			"SELECT EXISTS(SELECT 1 FROM coaches WHERE id=?)", id).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return sql.ErrNoRows
		}
	}
	return nil
}

// GetByID returns a coach by primary key; sql.ErrNoRows when absent.
func (r *CoachRepo) GetByID(ctx context.Context, id uint64) (model.Coach, error) {
	var c model.Coach
	err := r.db.QueryRowContext(ctx,
		"SELECT "+coachCols+" FROM coaches WHERE id=? LIMIT 1", id).
		Scan(&c.ID, &c.Name, &c.Bio, &c.HourlyCents, &c.Active)
	return c, err
}

// List returns all coaches ordered by id.
func (r *CoachRepo) List(ctx context.Context) ([]model.Coach, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+coachCols+" FROM coaches ORDER BY id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]model.Coach, 0)
	for rows.Next() {
		var c model.Coach
		if err := rows.Scan(&c.ID, &c.Name, &c.Bio, &c.HourlyCents, &c.Active); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
