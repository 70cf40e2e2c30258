package memstore

import (
	"context"
	"database/sql"
	"sort"

	"github.com/courtbook/court-booking/internal/model"
)

// Admin adapters expose the catalog and rule mutation surface with the
// same method shapes as the MySQL repositories, so the admin handlers
// take either backend.  Missing rows surface as sql.ErrNoRows to match.

// CourtAdmin adapts court CRUD onto the store.
type CourtAdmin struct{ s *Store }

// Courts returns the court admin adapter.
func (s *Store) Courts() *CourtAdmin { return &CourtAdmin{s: s} }

func (a *CourtAdmin) List(ctx context.Context) ([]model.Court, error) {
	return a.s.ListCourts(ctx)
}

func (a *CourtAdmin) Create(ctx context.Context, c *model.Court) error {
	c.ID = 0
	*c = a.s.AddCourt(*c)
	return nil
}

func (a *CourtAdmin) Update(ctx context.Context, c model.Court) error {
	a.s.mu.Lock()
	defer a.s.mu.Unlock()
	existing, ok := a.s.courts[c.ID]
	if !ok {
		return sql.ErrNoRows
	}
	c.CreatedAt = existing.CreatedAt
	a.s.courts[c.ID] = c
	return nil
}

func (a *CourtAdmin) Delete(ctx context.Context, id uint64) error {
	a.s.mu.Lock()
	defer a.s.mu.Unlock()
	if _, ok := a.s.courts[id]; !ok {
		return sql.ErrNoRows
	}
	delete(a.s.courts, id)
	return nil
}

// EquipmentAdmin adapts equipment CRUD onto the store.
type EquipmentAdmin struct{ s *Store }

// EquipmentItems returns the equipment admin adapter.
func (s *Store) EquipmentItems() *EquipmentAdmin { return &EquipmentAdmin{s: s} }

func (a *EquipmentAdmin) List(ctx context.Context) ([]model.EquipmentItem, error) {
	return a.s.ListEquipment(ctx)
}

func (a *EquipmentAdmin) Create(ctx context.Context, e *model.EquipmentItem) error {
	e.ID = 0
	*e = a.s.AddEquipment(*e)
	return nil
}

func (a *EquipmentAdmin) Update(ctx context.Context, e model.EquipmentItem) error {
	a.s.mu.Lock()
	defer a.s.mu.Unlock()
	for sku, existing := range a.s.equipment {
		if existing.ID == e.ID {
			delete(a.s.equipment, sku)
			a.s.equipment[e.SKU] = e
			return nil
		}
	}
	return sql.ErrNoRows
}

func (a *EquipmentAdmin) Delete(ctx context.Context, id uint64) error {
	a.s.mu.Lock()
	defer a.s.mu.Unlock()
	for sku, existing := range a.s.equipment {
		if existing.ID == id {
			existing.Active = false
			a.s.equipment[sku] = existing
			return nil
		}
	}
	return sql.ErrNoRows
}

// CoachAdmin adapts coach CRUD onto the store.
type CoachAdmin struct{ s *Store }

// CoachRoster returns the coach admin adapter.
func (s *Store) CoachRoster() *CoachAdmin { return &CoachAdmin{s: s} }

func (a *CoachAdmin) List(ctx context.Context) ([]model.Coach, error) {
	return a.s.ListCoaches(ctx)
}

func (a *CoachAdmin) Create(ctx context.Context, c *model.Coach) error {
	c.ID = 0
	*c = a.s.AddCoach(*c)
	return nil
}

func (a *CoachAdmin) Update(ctx context.Context, c model.Coach) error {
	a.s.mu.Lock()
	defer a.s.mu.Unlock()
	if _, ok := a.s.coaches[c.ID]; !ok {
		return sql.ErrNoRows
	}
	a.s.coaches[c.ID] = c
	return nil
}

func (a *CoachAdmin) Delete(ctx context.Context, id uint64) error {
	a.s.mu.Lock()
	defer a.s.mu.Unlock()
	c, ok := a.s.coaches[id]
	if !ok {
		return sql.ErrNoRows
	}
	c.Active = false
	a.s.coaches[id] = c
	return nil
}

// RuleAdmin adapts rule CRUD onto the store.
type RuleAdmin struct{ s *Store }

// Rules returns the rule admin adapter.
func (s *Store) Rules() *RuleAdmin { return &RuleAdmin{s: s} }

func (a *RuleAdmin) List(ctx context.Context) ([]model.PricingRule, error) {
	return a.s.ListRules(ctx)
}

func (a *RuleAdmin) Upsert(ctx context.Context, r *model.PricingRule) error {
	stored, err := a.s.UpsertRule(ctx, *r)
	if err != nil {
		return err
	}
	*r = stored
	return nil
}

func (a *RuleAdmin) Delete(ctx context.Context, id uint64) error {
	if err := a.s.DeleteRule(ctx, id); err != nil {
		return sql.ErrNoRows
	}
	return nil
}

// ListOverlapping returns confirmed bookings intersecting the window.
func (s *Store) ListOverlapping(ctx context.Context, w model.TimeWindow) ([]model.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Booking, 0)
	for _, b := range s.overlappingLocked(w) {
		out = append(out, cloneBooking(b))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
