// Package memstore is an in-memory implementation of the booking ledger,
// waitlist, rule source and catalog.  It backs the engine's unit tests
// and the STORE_DRIVER=memory development mode, where running without a
// MySQL server is preferable to failing at startup.  All state lives
// behind one mutex; callers get copies, never internal pointers.
package memstore

import (
	"context"
	"encoding/json"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/courtbook/court-booking/internal/booking"
	"github.com/courtbook/court-booking/internal/model"
	"github.com/courtbook/court-booking/internal/pricing"
)

// Store holds all in-memory state.  The zero value is not usable; call New.
type Store struct {
	mu  sync.Mutex
	now func() time.Time

	nextBookingID uint64
	nextEntryID   uint64
	nextRuleID    uint64
	nextCourtID   uint64
	nextSKUID     uint64
	nextCoachID   uint64
	nextAuditID   uint64

	courts    map[uint64]model.Court
	equipment map[string]model.EquipmentItem
	coaches   map[uint64]model.Coach
	rules     map[uint64]model.PricingRule
	ruleVer   uint64

	bookings  map[uint64]*model.Booking
	idemIndex map[string]uint64

	waitlists map[string][]*model.WaitlistEntry
	seqs      map[string]uint64

	audits []model.AuditEvent
}

// New returns an empty store using the wall clock.
func New() *Store {
	return &Store{
		now:       time.Now,
		courts:    make(map[uint64]model.Court),
		equipment: make(map[string]model.EquipmentItem),
		coaches:   make(map[uint64]model.Coach),
		rules:     make(map[uint64]model.PricingRule),
		bookings:  make(map[uint64]*model.Booking),
		idemIndex: make(map[string]uint64),
		waitlists: make(map[string][]*model.WaitlistEntry),
		seqs:      make(map[string]uint64),
	}
}

// SetClock overrides the time source used for hold-expiry checks.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// ----- Catalog -----

// AddCourt inserts or updates a court; a zero ID assigns the next one.
func (s *Store) AddCourt(c model.Court) model.Court {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c.ID == 0 {
		s.nextCourtID++
		c.ID = s.nextCourtID
	} else if c.ID > s.nextCourtID {
		s.nextCourtID = c.ID
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = s.now().UTC()
	}
	s.courts[c.ID] = c
	return c
}

// AddEquipment inserts or updates an equipment SKU.
func (s *Store) AddEquipment(e model.EquipmentItem) model.EquipmentItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e.ID == 0 {
		s.nextSKUID++
		e.ID = s.nextSKUID
	}
	s.equipment[e.SKU] = e
	return e
}

// AddCoach inserts or updates a coach.
func (s *Store) AddCoach(c model.Coach) model.Coach {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c.ID == 0 {
		s.nextCoachID++
		c.ID = s.nextCoachID
	} else if c.ID > s.nextCoachID {
		s.nextCoachID = c.ID
	}
	s.coaches[c.ID] = c
	return c
}

func (s *Store) CourtByID(ctx context.Context, id uint64) (*model.Court, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.courts[id]
	if !ok {
		return nil, booking.ErrNotFound
	}
	out := c
	return &out, nil
}

func (s *Store) EquipmentBySKU(ctx context.Context, sku string) (*model.EquipmentItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.equipment[sku]
	if !ok {
		return nil, booking.ErrNotFound
	}
	out := e
	return &out, nil
}

func (s *Store) CoachByID(ctx context.Context, id uint64) (*model.Coach, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.coaches[id]
	if !ok {
		return nil, booking.ErrNotFound
	}
	out := c
	return &out, nil
}

// ListCourts returns all courts ordered by id.
func (s *Store) ListCourts(ctx context.Context) ([]model.Court, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Court, 0, len(s.courts))
	for _, c := range s.courts {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// ListEquipment returns all SKUs ordered by id.
func (s *Store) ListEquipment(ctx context.Context) ([]model.EquipmentItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.EquipmentItem, 0, len(s.equipment))
	for _, e := range s.equipment {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// ListCoaches returns all coaches ordered by id.
func (s *Store) ListCoaches(ctx context.Context) ([]model.Coach, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Coach, 0, len(s.coaches))
	for _, c := range s.coaches {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// ----- Rule store -----

// UpsertRule stores a rule and bumps the snapshot version.  A zero ID
// assigns the next one.
func (s *Store) UpsertRule(ctx context.Context, r model.PricingRule) (model.PricingRule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r.ID == 0 {
		s.nextRuleID++
		r.ID = s.nextRuleID
	} else if r.ID > s.nextRuleID {
		s.nextRuleID = r.ID
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = s.now().UTC()
	}
	s.rules[r.ID] = r
	s.ruleVer++
	return r, nil
}

// DeleteRule removes a rule; future snapshots no longer include it.
func (s *Store) DeleteRule(ctx context.Context, id uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rules[id]; !ok {
		return booking.ErrNotFound
	}
	delete(s.rules, id)
	s.ruleVer++
	return nil
}

// ListRules returns all rules ordered by id.
func (s *Store) ListRules(ctx context.Context) ([]model.PricingRule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ruleSliceLocked(), nil
}

// Snapshot implements booking.RuleSource.
func (s *Store) Snapshot(ctx context.Context) (pricing.RuleSet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return pricing.RuleSet{Version: s.ruleVer, Rules: s.ruleSliceLocked()}, nil
}

func (s *Store) ruleSliceLocked() []model.PricingRule {
	out := make([]model.PricingRule, 0, len(s.rules))
	for _, r := range s.rules {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ----- Ledger -----

// CheckAndReserve implements booking.Ledger.  The caller must hold the
// slot lock for the request's (court, window) key.
func (s *Store) CheckAndReserve(ctx context.Context, req booking.ReserveRequest) (*model.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	overlapping := s.overlappingLocked(req.Window)

	courtID := strconv.FormatUint(req.CourtID, 10)
	for _, b := range overlapping {
		for _, a := range b.Allocations {
			if a.ResourceType == model.ResourceCourt && a.ResourceID == courtID {
				return nil, &booking.ConflictError{ResourceType: model.ResourceCourt, ResourceID: courtID}
			}
		}
	}

	if req.CoachID != nil {
		coachID := strconv.FormatUint(*req.CoachID, 10)
		for _, b := range overlapping {
			for _, a := range b.Allocations {
				if a.ResourceType == model.ResourceCoach && a.ResourceID == coachID {
					return nil, &booking.ConflictError{ResourceType: model.ResourceCoach, ResourceID: coachID}
				}
			}
		}
	}

	for _, line := range req.Equipment {
		item, ok := s.equipment[line.SKU]
		if !ok {
			return nil, &booking.ValidationError{Field: "equipment", Reason: "unknown sku " + line.SKU}
		}
		booked := 0
		for _, b := range overlapping {
			for _, a := range b.Allocations {
				if a.ResourceType == model.ResourceEquipment && a.ResourceID == line.SKU {
					booked += a.Quantity
				}
			}
		}
		if remaining := item.TotalQty - booked; line.Quantity > remaining {
			return nil, &booking.InsufficientInventoryError{SKU: line.SKU, Requested: line.Quantity, Available: remaining}
		}
	}

	s.nextBookingID++
	now := s.now().UTC()
	b := &model.Booking{
		ID:              s.nextBookingID,
		Requester:       req.Requester,
		Window:          req.Window,
		Status:          model.BookingConfirmed,
		TotalCents:      req.TotalCents,
		PricingSnapshot: append([]byte(nil), req.Snapshot...),
		IdempotencyKey:  req.IdempotencyKey,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	b.Allocations = append(b.Allocations, model.Allocation{
		BookingID: b.ID, ResourceType: model.ResourceCourt, ResourceID: courtID, Quantity: 1,
	})
	for _, line := range req.Equipment {
		b.Allocations = append(b.Allocations, model.Allocation{
			BookingID: b.ID, ResourceType: model.ResourceEquipment, ResourceID: line.SKU, Quantity: line.Quantity,
		})
	}
	if req.CoachID != nil {
		b.Allocations = append(b.Allocations, model.Allocation{
			BookingID: b.ID, ResourceType: model.ResourceCoach, ResourceID: strconv.FormatUint(*req.CoachID, 10), Quantity: 1,
		})
	}

	s.bookings[b.ID] = b
	if req.IdempotencyKey != "" {
		s.idemIndex[req.IdempotencyKey] = b.ID
	}
	s.auditLocked(b.ID, "confirmed", map[string]any{"requester": req.Requester})

	out := cloneBooking(b)
	return &out, nil
}

// Cancel implements booking.Ledger.  It must run under the booking's
// slot lock.
func (s *Store) Cancel(ctx context.Context, bookingID uint64) (*model.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bookings[bookingID]
	if !ok {
		return nil, booking.ErrNotFound
	}
	if b.Status != model.BookingConfirmed {
		return nil, booking.ErrAlreadyCancelled
	}
	b.Status = model.BookingCancelled
	b.UpdatedAt = s.now().UTC()
	s.auditLocked(b.ID, "cancelled", nil)
	out := cloneBooking(b)
	return &out, nil
}

func (s *Store) Get(ctx context.Context, bookingID uint64) (*model.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bookings[bookingID]
	if !ok {
		return nil, booking.ErrNotFound
	}
	out := cloneBooking(b)
	return &out, nil
}

func (s *Store) FindByIdempotencyKey(ctx context.Context, key string) (*model.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.idemIndex[key]
	if !ok {
		return nil, booking.ErrNotFound
	}
	out := cloneBooking(s.bookings[id])
	return &out, nil
}

func (s *Store) ListByRequester(ctx context.Context, requester string) ([]model.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Booking
	for _, b := range s.bookings {
		if b.Requester == requester {
			out = append(out, cloneBooking(b))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

// overlappingLocked returns confirmed bookings intersecting the window.
func (s *Store) overlappingLocked(w model.TimeWindow) []*model.Booking {
	var out []*model.Booking
	for _, b := range s.bookings {
		if b.Status == model.BookingConfirmed && b.Window.Overlaps(w) {
			out = append(out, b)
		}
	}
	return out
}

// ----- Waitlist -----

// Enqueue implements booking.Waitlist.  Sequence numbers are monotonic
// per slot key, starting at 1.
func (s *Store) Enqueue(ctx context.Context, slotKey, requester string) (*model.WaitlistEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seqs[slotKey]++
	s.nextEntryID++
	e := &model.WaitlistEntry{
		ID:        s.nextEntryID,
		SlotKey:   slotKey,
		Requester: requester,
		Seq:       s.seqs[slotKey],
		CreatedAt: s.now().UTC(),
	}
	s.waitlists[slotKey] = append(s.waitlists[slotKey], e)
	out := *e
	return &out, nil
}

// Promote implements booking.Waitlist: expired holds are dropped, then
// the lowest-sequence entry is marked notified until holdUntil.
func (s *Store) Promote(ctx context.Context, slotKey string, holdUntil time.Time) (*model.WaitlistEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gcLocked(slotKey)
	entries := s.waitlists[slotKey]
	if len(entries) == 0 {
		return nil, nil
	}
	head := entries[0]
	if head.NotifiedUntil == nil || head.HoldExpired(s.now().UTC()) {
		until := holdUntil.UTC()
		head.NotifiedUntil = &until
	}
	out := *head
	return &out, nil
}

func (s *Store) HeadOf(ctx context.Context, slotKey string) (*model.WaitlistEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gcLocked(slotKey)
	entries := s.waitlists[slotKey]
	if len(entries) == 0 {
		return nil, nil
	}
	out := *entries[0]
	return &out, nil
}

func (s *Store) Dequeue(ctx context.Context, entryID uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, entries := range s.waitlists {
		for i, e := range entries {
			if e.ID == entryID {
				s.waitlists[key] = append(entries[:i], entries[i+1:]...)
				return nil
			}
		}
	}
	return booking.ErrNotFound
}

func (s *Store) RemoveForRequester(ctx context.Context, slotKey, requester string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries := s.waitlists[slotKey]
	for i, e := range entries {
		if e.Requester == requester {
			s.waitlists[slotKey] = append(entries[:i], entries[i+1:]...)
			return nil
		}
	}
	return booking.ErrNotFound
}

// gcLocked removes entries whose hold window lapsed without confirmation.
func (s *Store) gcLocked(slotKey string) {
	now := s.now().UTC()
	entries := s.waitlists[slotKey]
	kept := entries[:0]
	for _, e := range entries {
		if !e.HoldExpired(now) {
			kept = append(kept, e)
		}
	}
	s.waitlists[slotKey] = kept
}

// ----- Audit -----

func (s *Store) auditLocked(bookingID uint64, eventType string, payload map[string]any) {
	s.nextAuditID++
	var raw json.RawMessage
	if payload != nil {
		raw, _ = json.Marshal(payload)
	}
	s.audits = append(s.audits, model.AuditEvent{
		ID:        s.nextAuditID,
		BookingID: bookingID,
		EventType: eventType,
		Payload:   raw,
		CreatedAt: s.now().UTC(),
	})
}

// AuditEvents returns a copy of the audit trail, oldest first.
func (s *Store) AuditEvents() []model.AuditEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.AuditEvent(nil), s.audits...)
}

// AuditTrail returns one booking's audit events, oldest first.
func (s *Store) AuditTrail(ctx context.Context, bookingID uint64) ([]model.AuditEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.AuditEvent, 0)
	for _, ev := range s.audits {
		if ev.BookingID == bookingID {
			out = append(out, ev)
		}
	}
	return out, nil
}

func cloneBooking(b *model.Booking) model.Booking {
	out := *b
	out.Allocations = append([]model.Allocation(nil), b.Allocations...)
	out.PricingSnapshot = append([]byte(nil), b.PricingSnapshot...)
	return out
}
