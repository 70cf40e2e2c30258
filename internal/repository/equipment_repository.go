package repository

import (
	"context"
	"database/sql"
	"strings"

	"github.com/courtbook/court-booking/internal/model"
)

// EquipmentRepo provides CRUD operations on the equipment_items table.
// SKUs are unique; duplicate inserts surface ErrSKUExists.
type EquipmentRepo struct{ db *sql.DB }

// NewEquipmentRepo returns an EquipmentRepo bound to the given database.
func NewEquipmentRepo(db *sql.DB) *EquipmentRepo { return &EquipmentRepo{db: db} }

const equipmentCols = "id, sku, name, total_quantity, rental_cents, active"

// Create inserts an equipment SKU and populates its generated ID.
func (r *EquipmentRepo) Create(ctx context.Context, e *model.EquipmentItem) error {
	res, err := r.db.ExecContext(ctx,
		"INSERT INTO equipment_items (sku, name, total_quantity, rental_cents, active) VALUES (?,?,?,?,?)",
		e.SKU, e.Name, e.TotalQty, e.RentalCents, e.Active)
	if err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "1062") {
			return ErrConflict
		}
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	e.ID = uint64(id)
	return nil
}

// Update overwrites the mutable columns of a SKU, addressed by id.
func (r *EquipmentRepo) Update(ctx context.Context, e model.EquipmentItem) error {
	res, err := r.db.ExecContext(ctx,
		"UPDATE equipment_items SET sku=?, name=?, total_quantity=?, rental_cents=?, active=? WHERE id=?",
		e.SKU, e.Name, e.TotalQty, e.RentalCents, e.Active, e.ID)
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
			"SELECT EXISTS(SELECT 1 FROM equipment_items WHERE id=?)", e.ID).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return sql.ErrNoRows
		}
	}
	return nil
}

// Delete deactivates a SKU.  Inventory referenced by historical bookings
// must stay resolvable, so rows are never removed.
func (r *EquipmentRepo) Delete(ctx context.Context, id uint64) error {
	res, err := r.db.ExecContext(ctx,
		"UPDATE equipment_items SET active=0 WHERE id=?", id)
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
			"SELECT EXISTS(SELECT 1 FROM equipment_items WHERE id=?)", id).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return sql.ErrNoRows
		}
	}
	return nil
}

// GetBySKU returns an equipment item by SKU; sql.ErrNoRows when absent.
func (r *EquipmentRepo) GetBySKU(ctx context.Context, sku string) (model.EquipmentItem, error) {
	var e model.EquipmentItem
	err := r.db.QueryRowContext(ctx,
		"SELECT "+equipmentCols+" FROM equipment_items WHERE sku=? LIMIT 1", sku).
		Scan(&e.ID, &e.SKU, &e.Name, &e.TotalQty, &e.RentalCents, &e.Active)
	return e, err
}

// List returns all equipment items ordered by id.
func (r *EquipmentRepo) List(ctx context.Context) ([]model.EquipmentItem, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+equipmentCols+" FROM equipment_items ORDER BY id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]model.EquipmentItem, 0)
	for rows.Next() {
		var e model.EquipmentItem
		if err := rows.Scan(&e.ID, &e.SKU, &e.Name, &e.TotalQty, &e.RentalCents, &e.Active); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
