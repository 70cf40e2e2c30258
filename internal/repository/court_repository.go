package repository

import (
	"context"
	"database/sql"

	"github.com/courtbook/court-booking/internal/model"
)

// CourtRepo provides CRUD operations on the courts table.  Courts are
// never hard-deleted once referenced by bookings; Delete disables them
// instead when dependent allocations exist.
type CourtRepo struct{ db *sql.DB }

// NewCourtRepo returns a CourtRepo bound to the given database.
func NewCourtRepo(db *sql.DB) *CourtRepo { return &CourtRepo{db: db} }

const courtCols = "id, name, type, enabled, hourly_cents, created_at"

// Create inserts a court and populates its generated ID.
func (r *CourtRepo) Create(ctx context.Context, c *model.Court) error {
	res, err := r.db.ExecContext(ctx,
		"INSERT INTO courts (name, type, enabled, hourly_cents) VALUES (?,?,?,?)",
		c.Name, string(c.Type), c.Enabled, c.HourlyCents)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	c.ID = uint64(id)
	return r.db.QueryRowContext(ctx,
		"SELECT "+courtCols+" FROM courts WHERE id=?", c.ID).
		Scan(&c.ID, &c.Name, &c.Type, &c.Enabled, &c.HourlyCents, &c.CreatedAt)
}

// Update overwrites the mutable columns of a court.
func (r *CourtRepo) Update(ctx context.Context, c model.Court) error {
	res, err := r.db.ExecContext(ctx,
		"UPDATE courts SET name=?, type=?, enabled=?, hourly_cents=? WHERE id=?",
		c.Name, string(c.Type), c.Enabled, c.HourlyCents, c.ID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		// RowsAffected is also 0 on a no-op update; confirm existence.
		var exists bool
		if err := r.db.QueryRowContext(ctx,
			"SELECT EXISTS(SELECT 1 FROM courts WHERE id=?)", c.ID).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return sql.ErrNoRows
		}
	}
	return nil
}

// Delete removes a court.  When confirmed bookings reference it, the
// court is disabled instead and ErrConflict is returned so handlers can
// report the downgrade.
func (r *CourtRepo) Delete(ctx context.Context, id uint64) error {
	var referenced bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS(
            SELECT 1 FROM booking_allocations ba
            JOIN bookings b ON b.id = ba.booking_id
            WHERE ba.resource_type='court' AND ba.resource_id=CAST(? AS CHAR)
              AND b.status='confirmed')`, id).Scan(&referenced)
	if err != nil {
		return err
	}
	if referenced {
		if _, err := r.db.ExecContext(ctx,
			"UPDATE courts SET enabled=0 WHERE id=?", id); err != nil {
			return err
		}
		return ErrConflict
	}
	res, err := r.db.ExecContext(ctx, "DELETE FROM courts WHERE id=?", id)
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
	return nil
}

// GetByID returns a court by primary key; sql.ErrNoRows when absent.
func (r *CourtRepo) GetByID(ctx context.Context, id uint64) (model.Court, error) {
	var c model.Court
	err := r.db.QueryRowContext(ctx,
		"SELECT "+courtCols+" FROM courts WHERE id=? LIMIT 1", id).
		Scan(&c.ID, &c.Name, &c.Type, &c.Enabled, &c.HourlyCents, &c.CreatedAt)
	return c, err
}

// List returns all courts ordered by id.
func (r *CourtRepo) List(ctx context.Context) ([]model.Court, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+courtCols+" FROM courts ORDER BY id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]model.Court, 0)
	for rows.Next() {
		var c model.Court
		if err := rows.Scan(&c.ID, &c.Name, &c.Type, &c.Enabled, &c.HourlyCents, &c.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
