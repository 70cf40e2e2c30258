package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/courtbook/court-booking/internal/booking"
	"github.com/courtbook/court-booking/internal/model"
)

// Catalog adapts the court, equipment and coach repositories to the
// booking engine's catalog contract, translating sql.ErrNoRows into the
// engine's not-found sentinel.
type Catalog struct {
	Courts    *CourtRepo
	Equipment *EquipmentRepo
	Coaches   *CoachRepo
}

// NewCatalog bundles the three catalog repositories.
func NewCatalog(db *sql.DB) *Catalog {
	return &Catalog{
		Courts:    NewCourtRepo(db),
		Equipment: NewEquipmentRepo(db),
		Coaches:   NewCoachRepo(db),
	}
}

func (c *Catalog) CourtByID(ctx context.Context, id uint64) (*model.Court, error) {
	court, err := c.Courts.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, booking.ErrNotFound
		}
		return nil, err
	}
	return &court, nil
}

func (c *Catalog) EquipmentBySKU(ctx context.Context, sku string) (*model.EquipmentItem, error) {
	item, err := c.Equipment.GetBySKU(ctx, sku)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, booking.ErrNotFound
		}
		return nil, err
	}
	return &item, nil
}

func (c *Catalog) CoachByID(ctx context.Context, id uint64) (*model.Coach, error) {
	coach, err := c.Coaches.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, booking.ErrNotFound
		}
		return nil, err
	}
	return &coach, nil
}
