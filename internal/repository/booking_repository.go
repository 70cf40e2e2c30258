package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/courtbook/court-booking/internal/booking"
	"github.com/courtbook/court-booking/internal/model"
)

// BookingRepo implements the booking ledger on MySQL.  The conflict
// re-check and the insert run in one transaction with the overlapping
// rows locked, so even if the process-level slot lock is bypassed the
// database never records a double allocation.
type BookingRepo struct{ db *sql.DB }

// NewBookingRepo returns a BookingRepo bound to the given database.
func NewBookingRepo(db *sql.DB) *BookingRepo { return &BookingRepo{db: db} }

var _ booking.Ledger = (*BookingRepo)(nil)

const dbTimeLayout = "2006-01-02 15:04:05"

// CheckAndReserve implements booking.Ledger.  It locks all confirmed
// bookings overlapping the window, re-checks court, coach and equipment
// availability, and inserts the booking with its allocations and an
// audit event, all in one transaction.
func (r *BookingRepo) CheckAndReserve(ctx context.Context, req booking.ReserveRequest) (*model.Booking, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	overlapping, err := lockOverlappingTx(ctx, tx, req.Window)
	if err != nil {
		return nil, err
	}

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
		var total int
		err := tx.QueryRowContext(ctx,
			"SELECT total_quantity FROM equipment_items WHERE sku=?", line.SKU).Scan(&total)
		if err != nil {
			if err == sql.ErrNoRows {
				return nil, &booking.ValidationError{Field: "equipment", Reason: "unknown sku " + line.SKU}
			}
			return nil, err
		}
		booked := 0
		for _, b := range overlapping {
			for _, a := range b.Allocations {
				if a.ResourceType == model.ResourceEquipment && a.ResourceID == line.SKU {
					booked += a.Quantity
				}
			}
		}
		if remaining := total - booked; line.Quantity > remaining {
			return nil, &booking.InsufficientInventoryError{SKU: line.SKU, Requested: line.Quantity, Available: remaining}
		}
	}

	var idem interface{}
	if req.IdempotencyKey != "" {
		idem = req.IdempotencyKey
	}
	res, err := tx.ExecContext(ctx,
		`INSERT INTO bookings (requester, start_at, end_at, status, total_cents, pricing_snapshot, idempotency_key)
         VALUES (?,?,?,?,?,?,?)`,
		req.Requester,
		req.Window.Start.UTC().Format(dbTimeLayout),
		req.Window.End.UTC().Format(dbTimeLayout),
		model.BookingConfirmed, req.TotalCents, req.Snapshot, idem)
	if err != nil {
		return nil, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	bookingID := uint64(id)

	allocs := []model.Allocation{{
		BookingID: bookingID, ResourceType: model.ResourceCourt, ResourceID: courtID, Quantity: 1,
	}}
	for _, line := range req.Equipment {
		allocs = append(allocs, model.Allocation{
			BookingID: bookingID, ResourceType: model.ResourceEquipment, ResourceID: line.SKU, Quantity: line.Quantity,
		})
	}
	if req.CoachID != nil {
		allocs = append(allocs, model.Allocation{
			BookingID: bookingID, ResourceType: model.ResourceCoach, ResourceID: strconv.FormatUint(*req.CoachID, 10), Quantity: 1,
		})
	}
	if err := insertAllocationsTx(ctx, tx, allocs); err != nil {
		return nil, err
	}
	if err := appendAuditTx(ctx, tx, bookingID, "confirmed",
		map[string]any{"requester": req.Requester}); err != nil {
		return nil, err
	}

	out, err := getBookingTx(ctx, tx, bookingID)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	committed = true
	return out, nil
}

// Cancel implements booking.Ledger.  The row is locked so a concurrent
// cancel of the same booking observes the status transition.
func (r *BookingRepo) Cancel(ctx context.Context, bookingID uint64) (*model.Booking, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	var status string
	err = tx.QueryRowContext(ctx,
		"SELECT status FROM bookings WHERE id=? FOR UPDATE", bookingID).Scan(&status)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, booking.ErrNotFound
		}
		return nil, err
	}
	if status != model.BookingConfirmed {
		return nil, booking.ErrAlreadyCancelled
	}
	if _, err := tx.ExecContext(ctx,
		"UPDATE bookings SET status=?, updated_at=UTC_TIMESTAMP() WHERE id=?",
		model.BookingCancelled, bookingID); err != nil {
		return nil, err
	}
	if err := appendAuditTx(ctx, tx, bookingID, "cancelled", nil); err != nil {
		return nil, err
	}
	out, err := getBookingTx(ctx, tx, bookingID)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	committed = true
	return out, nil
}

// Get returns a booking with its allocations; booking.ErrNotFound when
// absent.
func (r *BookingRepo) Get(ctx context.Context, bookingID uint64) (*model.Booking, error) {
	return r.getWhere(ctx, "b.id = ?", bookingID)
}

// FindByIdempotencyKey returns the booking recorded under the given
// client key, or booking.ErrNotFound.
func (r *BookingRepo) FindByIdempotencyKey(ctx context.Context, key string) (*model.Booking, error) {
	return r.getWhere(ctx, "b.idempotency_key = ?", key)
}

// ListByRequester returns all of a requester's bookings, newest first.
func (r *BookingRepo) ListByRequester(ctx context.Context, requester string) ([]model.Booking, error) {
	rows, err := r.db.QueryContext(ctx,
		bookingSelect+" WHERE b.requester = ? ORDER BY b.id DESC", requester)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	bookings, index, err := scanBookings(rows)
	if err != nil {
		return nil, err
	}
	if len(bookings) == 0 {
		return bookings, nil
	}
	if err := r.loadAllocations(ctx, bookings, index); err != nil {
		return nil, err
	}
	return bookings, nil
}

// ListOverlapping returns confirmed bookings intersecting the window,
// with allocations, for availability reporting.
func (r *BookingRepo) ListOverlapping(ctx context.Context, w model.TimeWindow) ([]model.Booking, error) {
	rows, err := r.db.QueryContext(ctx,
		bookingSelect+" WHERE b.status = ? AND b.start_at < ? AND ? < b.end_at",
		model.BookingConfirmed,
		w.End.UTC().Format(dbTimeLayout),
		w.Start.UTC().Format(dbTimeLayout))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	bookings, index, err := scanBookings(rows)
	if err != nil {
		return nil, err
	}
	if len(bookings) == 0 {
		return bookings, nil
	}
	if err := r.loadAllocations(ctx, bookings, index); err != nil {
		return nil, err
	}
	return bookings, nil
}

// AuditTrail returns a booking's audit events, oldest first.
func (r *BookingRepo) AuditTrail(ctx context.Context, bookingID uint64) ([]model.AuditEvent, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT id, booking_id, event_type, payload, created_at FROM audit_events WHERE booking_id=? ORDER BY id",
		bookingID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]model.AuditEvent, 0)
	for rows.Next() {
		var (
			ev      model.AuditEvent
			payload sql.NullString
		)
		if err := rows.Scan(&ev.ID, &ev.BookingID, &ev.EventType, &payload, &ev.CreatedAt); err != nil {
			return nil, err
		}
		if payload.Valid {
			ev.Payload = json.RawMessage(payload.String)
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

const bookingSelect = `SELECT b.id, b.requester, b.start_at, b.end_at, b.status,
       b.total_cents, b.pricing_snapshot, b.idempotency_key, b.created_at, b.updated_at
  FROM bookings b`

func (r *BookingRepo) getWhere(ctx context.Context, where string, arg interface{}) (*model.Booking, error) {
	row := r.db.QueryRowContext(ctx, bookingSelect+" WHERE "+where+" LIMIT 1", arg)
	b, err := scanBooking(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, booking.ErrNotFound
		}
		return nil, err
	}
	one := []model.Booking{*b}
	if err := r.loadAllocations(ctx, one, map[uint64]int{b.ID: 0}); err != nil {
		return nil, err
	}
	return &one[0], nil
}

func (r *BookingRepo) loadAllocations(ctx context.Context, bookings []model.Booking, index map[uint64]int) error {
	ids := make([]interface{}, 0, len(bookings))
	placeholders := make([]string, 0, len(bookings))
	for _, b := range bookings {
		ids = append(ids, b.ID)
		placeholders = append(placeholders, "?")
	}
	q := `SELECT id, booking_id, resource_type, resource_id, quantity
          FROM booking_allocations
          WHERE booking_id IN (` + strings.Join(placeholders, ",") + `)
          ORDER BY booking_id, id`
	rows, err := r.db.QueryContext(ctx, q, ids...)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var a model.Allocation
		if err := rows.Scan(&a.ID, &a.BookingID, &a.ResourceType, &a.ResourceID, &a.Quantity); err != nil {
			return err
		}
		if idx, ok := index[a.BookingID]; ok {
			bookings[idx].Allocations = append(bookings[idx].Allocations, a)
		}
	}
	return rows.Err()
}

// lockOverlappingTx selects all confirmed bookings intersecting the
// window with FOR UPDATE, then loads their allocations inside the same
// transaction.
func lockOverlappingTx(ctx context.Context, tx *sql.Tx, w model.TimeWindow) ([]model.Booking, error) {
	rows, err := tx.QueryContext(ctx,
		bookingSelect+" WHERE b.status = ? AND b.start_at < ? AND ? < b.end_at FOR UPDATE",
		model.BookingConfirmed,
		w.End.UTC().Format(dbTimeLayout),
		w.Start.UTC().Format(dbTimeLayout))
	if err != nil {
		return nil, err
	}
	bookings, index, err := scanBookings(rows)
	rows.Close()
	if err != nil {
		return nil, err
	}
	if len(bookings) == 0 {
		return bookings, nil
	}
	ids := make([]interface{}, 0, len(bookings))
	placeholders := make([]string, 0, len(bookings))
	for _, b := range bookings {
		ids = append(ids, b.ID)
		placeholders = append(placeholders, "?")
	}
	arows, err := tx.QueryContext(ctx,
		`SELECT id, booking_id, resource_type, resource_id, quantity
           FROM booking_allocations
           WHERE booking_id IN (`+strings.Join(placeholders, ",")+`)`, ids...)
	if err != nil {
		return nil, err
	}
	defer arows.Close()
	for arows.Next() {
		var a model.Allocation
		if err := arows.Scan(&a.ID, &a.BookingID, &a.ResourceType, &a.ResourceID, &a.Quantity); err != nil {
			return nil, err
		}
		if idx, ok := index[a.BookingID]; ok {
			bookings[idx].Allocations = append(bookings[idx].Allocations, a)
		}
	}
	return bookings, arows.Err()
}

func insertAllocationsTx(ctx context.Context, tx *sql.Tx, allocs []model.Allocation) error {
	if len(allocs) == 0 {
		return nil
	}
	query := `INSERT INTO booking_allocations (booking_id, resource_type, resource_id, quantity) VALUES `
	args := make([]interface{}, 0, len(allocs)*4)
	for i, a := range allocs {
		if i > 0 {
			query += ","
		}
		query += "(?, ?, ?, ?)"
		args = append(args, a.BookingID, a.ResourceType, a.ResourceID, a.Quantity)
	}
	_, err := tx.ExecContext(ctx, query, args...)
	return err
}

func appendAuditTx(ctx context.Context, tx *sql.Tx, bookingID uint64, eventType string, payload map[string]any) error {
	var raw interface{}
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		raw = b
	}
	_, err := tx.ExecContext(ctx,
		"INSERT INTO audit_events (booking_id, event_type, payload) VALUES (?,?,?)",
		bookingID, eventType, raw)
	return err
}

func getBookingTx(ctx context.Context, tx *sql.Tx, id uint64) (*model.Booking, error) {
	row := tx.QueryRowContext(ctx, bookingSelect+" WHERE b.id = ?", id)
	b, err := scanBooking(row)
	if err != nil {
		return nil, err
	}
	rows, err := tx.QueryContext(ctx,
		"SELECT id, booking_id, resource_type, resource_id, quantity FROM booking_allocations WHERE booking_id=? ORDER BY id",
		id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var a model.Allocation
		if err := rows.Scan(&a.ID, &a.BookingID, &a.ResourceType, &a.ResourceID, &a.Quantity); err != nil {
			return nil, err
		}
		b.Allocations = append(b.Allocations, a)
	}
	return b, rows.Err()
}

type rowScanner interface{ Scan(dest ...interface{}) error }

func scanBooking(row rowScanner) (*model.Booking, error) {
	var (
		b        model.Booking
		start    time.Time
		end      time.Time
		snapshot sql.NullString
		idemKey  sql.NullString
	)
	if err := row.Scan(&b.ID, &b.Requester, &start, &end, &b.Status,
		&b.TotalCents, &snapshot, &idemKey, &b.CreatedAt, &b.UpdatedAt); err != nil {
		return nil, err
	}
	b.Window = model.TimeWindow{Start: start.UTC(), End: end.UTC()}
	if snapshot.Valid {
		b.PricingSnapshot = json.RawMessage(snapshot.String)
	}
	if idemKey.Valid {
		b.IdempotencyKey = idemKey.String
	}
	return &b, nil
}

func scanBookings(rows *sql.Rows) ([]model.Booking, map[uint64]int, error) {
	out := make([]model.Booking, 0)
	index := make(map[uint64]int)
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, nil, err
		}
		index[b.ID] = len(out)
		out = append(out, *b)
	}
	return out, index, rows.Err()
}
