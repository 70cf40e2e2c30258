// Package booking contains the booking orchestrator, the only component
// exposed to callers.  A booking attempt prices the request, acquires the
// slot lock, re-checks conflicts inside the critical section, and either
// commits the allocation or enrolls the requester on the waitlist.
// Cancellation releases the allocation and promotes the waitlist head
// under the same lock.
package booking

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/courtbook/court-booking/internal/model"
	"github.com/courtbook/court-booking/internal/pricing"
	"github.com/courtbook/court-booking/internal/slotlock"
)

// EquipmentRequest is one requested SKU line.
type EquipmentRequest struct {
	SKU      string `json:"sku"`
	Quantity int    `json:"quantity"`
}

// Request is a caller's booking or quote request.  Requester is the
// opaque identity supplied by the auth layer; the engine never validates
// it.
type Request struct {
	Requester      string             `json:"requester"`
	CourtID        uint64             `json:"court_id"`
	Window         model.TimeWindow   `json:"window"`
	Equipment      []EquipmentRequest `json:"equipment,omitempty"`
	CoachID        *uint64            `json:"coach_id,omitempty"`
	IdempotencyKey string             `json:"idempotency_key,omitempty"`
}

// Book outcome statuses.
const (
	StatusConfirmed  = "confirmed"
	StatusWaitlisted = "waitlisted"
)

// Outcome is the discriminated result of Book: exactly one of Booking
// (status confirmed) or Entry (status waitlisted) is set.
type Outcome struct {
	Status  string               `json:"status"`
	Booking *model.Booking       `json:"booking,omitempty"`
	Entry   *model.WaitlistEntry `json:"entry,omitempty"`
	Pricing *pricing.Result      `json:"pricing,omitempty"`
}

// CancelResult carries the cancelled booking and the promoted waitlist
// entry, if any.
type CancelResult struct {
	Booking  *model.Booking       `json:"booking"`
	Promoted *model.WaitlistEntry `json:"promoted,omitempty"`
}

// ReserveRequest is what the ledger persists on success.  The pricing
// snapshot is the commit-time one, already serialized.
type ReserveRequest struct {
	Requester      string
	CourtID        uint64
	Window         model.TimeWindow
	Equipment      []EquipmentRequest
	CoachID        *uint64
	IdempotencyKey string
	TotalCents     int64
	Snapshot       []byte
}

// Ledger holds confirmed allocations.  CheckAndReserve must only be
// called inside the slot lock critical section: it re-reads overlapping
// confirmed bookings (defending against phantom reads between any
// pre-check and lock acquisition) and either writes the booking with its
// allocations or returns a typed conflict error.
type Ledger interface {
	CheckAndReserve(ctx context.Context, req ReserveRequest) (*model.Booking, error)
	Cancel(ctx context.Context, bookingID uint64) (*model.Booking, error)
	Get(ctx context.Context, bookingID uint64) (*model.Booking, error)
	FindByIdempotencyKey(ctx context.Context, key string) (*model.Booking, error)
	ListByRequester(ctx context.Context, requester string) ([]model.Booking, error)
}

// Waitlist is the per-slot FIFO queue.
type Waitlist interface {
	Enqueue(ctx context.Context, slotKey, requester string) (*model.WaitlistEntry, error)
	// Promote garbage-collects entries whose hold expired, then marks the
	// lowest-sequence remaining entry as notified until holdUntil and
	// returns it.  It returns (nil, nil) when the queue is empty.
	Promote(ctx context.Context, slotKey string, holdUntil time.Time) (*model.WaitlistEntry, error)
	HeadOf(ctx context.Context, slotKey string) (*model.WaitlistEntry, error)
	Dequeue(ctx context.Context, entryID uint64) error
	// RemoveForRequester consumes the requester's entry for the slot, if
	// any.  Called when a (possibly promoted) requester confirms.
	RemoveForRequester(ctx context.Context, slotKey, requester string) error
}

// RuleSource supplies versioned pricing-rule snapshots.
type RuleSource interface {
	Snapshot(ctx context.Context) (pricing.RuleSet, error)
}

// Catalog resolves resource records for validation and pricing.
// Implementations return ErrNotFound for unknown ids.
type Catalog interface {
	CourtByID(ctx context.Context, id uint64) (*model.Court, error)
	EquipmentBySKU(ctx context.Context, sku string) (*model.EquipmentItem, error)
	CoachByID(ctx context.Context, id uint64) (*model.Coach, error)
}

// Notifier receives post-commit events.  Calls must never block or fail
// the booking flow; implementations log and move on.
type Notifier interface {
	BookingConfirmed(b *model.Booking)
	WaitlistPromoted(e *model.WaitlistEntry)
}

// Orchestrator wires the core components together.  It is safe for
// concurrent use.
type Orchestrator struct {
	ledger   Ledger
	waitlist Waitlist
	rules    RuleSource
	catalog  Catalog
	locks    slotlock.Locker
	notifier Notifier

	lockTimeout time.Duration
	holdWindow  time.Duration
	now         func() time.Time
}

// Option tweaks orchestrator defaults.
type Option func(*Orchestrator)

// WithLockTimeout bounds slot lock acquisition; exceeding it surfaces
// slotlock.ErrLockTimeout to the caller.
func WithLockTimeout(d time.Duration) Option {
	return func(o *Orchestrator) { o.lockTimeout = d }
}

// WithHoldWindow sets how long a promoted waitlist entry keeps priority.
func WithHoldWindow(d time.Duration) Option {
	return func(o *Orchestrator) { o.holdWindow = d }
}

// WithNotifier attaches a post-commit event sink.
func WithNotifier(n Notifier) Option {
	return func(o *Orchestrator) { o.notifier = n }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// New constructs an orchestrator.  Defaults: 5s lock timeout, 10 minute
// hold window.
func New(ledger Ledger, waitlist Waitlist, rules RuleSource, catalog Catalog, locks slotlock.Locker, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		ledger:      ledger,
		waitlist:    waitlist,
		rules:       rules,
		catalog:     catalog,
		locks:       locks,
		lockTimeout: 5 * time.Second,
		holdWindow:  10 * time.Minute,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Quote prices a request without side effects.  It is deterministic for
// an unchanged rule set.
func (o *Orchestrator) Quote(ctx context.Context, req Request) (*pricing.Result, error) {
	priced, _, err := o.validateAndPrice(ctx, req)
	if err != nil {
		return nil, err
	}
	return priced, nil
}

// Book is the atomic entry point.  The returned outcome is confirmed or
// waitlisted; validation problems, coach conflicts, inventory shortfalls
// and lock timeouts surface as errors for the transport layer to map.
func (o *Orchestrator) Book(ctx context.Context, req Request) (*Outcome, error) {
	if req.IdempotencyKey != "" {
		existing, err := o.ledger.FindByIdempotencyKey(ctx, req.IdempotencyKey)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return nil, err
		}
		if existing != nil && existing.Status == model.BookingConfirmed {
			return &Outcome{Status: StatusConfirmed, Booking: existing}, nil
		}
	}

	priced, req2, err := o.validateAndPrice(ctx, req)
	if err != nil {
		return nil, err
	}
	req = *req2

	snapshot, err := priced.Snapshot()
	if err != nil {
		return nil, err
	}

	key := model.SlotKey(req.CourtID, req.Window)
	lockCtx, cancel := context.WithTimeout(ctx, o.lockTimeout)
	defer cancel()

	var out *Outcome
	err = o.locks.WithLock(lockCtx, key, func(ctx context.Context) error {
		booked, err := o.ledger.CheckAndReserve(ctx, ReserveRequest{
			Requester:      req.Requester,
			CourtID:        req.CourtID,
			Window:         req.Window,
			Equipment:      req.Equipment,
			CoachID:        req.CoachID,
			IdempotencyKey: req.IdempotencyKey,
			TotalCents:     priced.TotalCents,
			Snapshot:       snapshot,
		})
		if err != nil {
			var conflict *ConflictError
			if errors.As(err, &conflict) && conflict.ResourceType == model.ResourceCourt {
				entry, qErr := o.waitlist.Enqueue(ctx, key, req.Requester)
				if qErr != nil {
					return qErr
				}
				out = &Outcome{Status: StatusWaitlisted, Entry: entry}
				return nil
			}
			return err
		}
		// A promoted requester confirming consumes their waitlist entry.
		if rmErr := o.waitlist.RemoveForRequester(ctx, key, req.Requester); rmErr != nil && !errors.Is(rmErr, ErrNotFound) {
			return rmErr
		}
		out = &Outcome{Status: StatusConfirmed, Booking: booked, Pricing: priced}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if out.Status == StatusConfirmed && o.notifier != nil {
		go o.notifier.BookingConfirmed(out.Booking)
	}
	return out, nil
}

// Cancel transitions a booking to cancelled and promotes the waitlist
// head for its slot, both under the slot lock so a promotion can never
// race a concurrent booking attempt for the same slot.
func (o *Orchestrator) Cancel(ctx context.Context, bookingID uint64) (*CancelResult, error) {
	existing, err := o.ledger.Get(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	courtID, ok := courtAllocation(existing)
	if !ok {
		return nil, ErrNotFound
	}
	key := model.SlotKey(courtID, existing.Window)

	lockCtx, cancel := context.WithTimeout(ctx, o.lockTimeout)
	defer cancel()

	var result *CancelResult
	err = o.locks.WithLock(lockCtx, key, func(ctx context.Context) error {
		cancelled, err := o.ledger.Cancel(ctx, bookingID)
		if err != nil {
			return err
		}
		promoted, err := o.waitlist.Promote(ctx, key, o.now().Add(o.holdWindow))
		if err != nil {
			return err
		}
		result = &CancelResult{Booking: cancelled, Promoted: promoted}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if result.Promoted != nil && o.notifier != nil {
		// Fire and forget: delivery failure must not block cancellation.
		go o.notifier.WaitlistPromoted(result.Promoted)
	}
	return result, nil
}

// validateAndPrice rejects malformed requests before any lock, resolves
// catalog records, and prices against a fresh rule snapshot.  The
// returned request has its window normalized.
func (o *Orchestrator) validateAndPrice(ctx context.Context, req Request) (*pricing.Result, *Request, error) {
	if req.Requester == "" {
		return nil, nil, &ValidationError{Field: "requester", Reason: "required"}
	}
	req.Window = model.NewTimeWindow(req.Window.Start, req.Window.End)
	if err := req.Window.Validate(); err != nil {
		return nil, nil, &ValidationError{Field: "window", Reason: err.Error()}
	}

	court, err := o.catalog.CourtByID(ctx, req.CourtID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil, &ValidationError{Field: "court_id", Reason: "unknown court"}
		}
		return nil, nil, err
	}
	if !court.Enabled {
		return nil, nil, &ValidationError{Field: "court_id", Reason: "court disabled"}
	}

	priceReq := pricing.Request{Court: *court, Window: req.Window}
	for _, line := range req.Equipment {
		if line.Quantity <= 0 {
			return nil, nil, &ValidationError{Field: "equipment", Reason: "quantity must be positive"}
		}
		item, err := o.catalog.EquipmentBySKU(ctx, line.SKU)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return nil, nil, &ValidationError{Field: "equipment", Reason: "unknown sku " + line.SKU}
			}
			return nil, nil, err
		}
		if !item.Active {
			return nil, nil, &ValidationError{Field: "equipment", Reason: "inactive sku " + line.SKU}
		}
		priceReq.Equipment = append(priceReq.Equipment, pricing.EquipmentLine{Item: *item, Quantity: line.Quantity})
	}
	if req.CoachID != nil {
		coach, err := o.catalog.CoachByID(ctx, *req.CoachID)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return nil, nil, &ValidationError{Field: "coach_id", Reason: "unknown coach"}
			}
			return nil, nil, err
		}
		if !coach.Active {
			return nil, nil, &ValidationError{Field: "coach_id", Reason: "coach inactive"}
		}
		priceReq.Coach = coach
	}

	snapshot, err := o.rules.Snapshot(ctx)
	if err != nil {
		return nil, nil, err
	}
	priced, err := pricing.Price(priceReq, snapshot)
	if err != nil {
		return nil, nil, err
	}
	return &priced, &req, nil
}

func courtAllocation(b *model.Booking) (uint64, bool) {
	for _, a := range b.Allocations {
		if a.ResourceType == model.ResourceCourt {
			id, err := strconv.ParseUint(a.ResourceID, 10, 64)
			if err != nil {
				return 0, false
			}
			return id, true
		}
	}
	return 0, false
}
