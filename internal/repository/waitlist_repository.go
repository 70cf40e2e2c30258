package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/courtbook/court-booking/internal/booking"
	"github.com/courtbook/court-booking/internal/model"
)

// WaitlistRepo implements the per-slot FIFO waitlist on MySQL.  Sequence
// numbers are assigned per slot key under a locked MAX(seq) read, so
// they are gapless-monotonic within a slot even across concurrent
// enqueues.
type WaitlistRepo struct{ db *sql.DB }

// NewWaitlistRepo returns a WaitlistRepo bound to the given database.
func NewWaitlistRepo(db *sql.DB) *WaitlistRepo { return &WaitlistRepo{db: db} }

var _ booking.Waitlist = (*WaitlistRepo)(nil)

const waitlistCols = "id, slot_key, requester, seq, notified_until, created_at"

// Enqueue implements booking.Waitlist.
func (r *WaitlistRepo) Enqueue(ctx context.Context, slotKey, requester string) (*model.WaitlistEntry, error) {
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

	var maxSeq uint64
	err = tx.QueryRowContext(ctx,
		"SELECT COALESCE(MAX(seq), 0) FROM waitlist_entries WHERE slot_key=? FOR UPDATE",
		slotKey).Scan(&maxSeq)
	if err != nil {
		return nil, err
	}
	res, err := tx.ExecContext(ctx,
		"INSERT INTO waitlist_entries (slot_key, requester, seq) VALUES (?,?,?)",
		slotKey, requester, maxSeq+1)
	if err != nil {
		return nil, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	entry, err := getEntryTx(ctx, tx, uint64(id))
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	committed = true
	return entry, nil
}

// Promote implements booking.Waitlist: entries whose hold lapsed are
// deleted, then the surviving head is marked notified until holdUntil.
// A head already inside an unexpired hold keeps its original deadline.
func (r *WaitlistRepo) Promote(ctx context.Context, slotKey string, holdUntil time.Time) (*model.WaitlistEntry, error) {
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

	if err := gcExpiredTx(ctx, tx, slotKey); err != nil {
		return nil, err
	}
	entry, err := headTx(ctx, tx, slotKey, true)
	if err != nil {
		return nil, err
	}
	if entry == nil {
		if err := tx.Commit(); err != nil {
			return nil, err
		}
		committed = true
		return nil, nil
	}
	if entry.NotifiedUntil == nil {
		until := holdUntil.UTC()
		if _, err := tx.ExecContext(ctx,
			"UPDATE waitlist_entries SET notified_until=? WHERE id=?",
			until.Format(dbTimeLayout), entry.ID); err != nil {
			return nil, err
		}
		entry.NotifiedUntil = &until
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	committed = true
	return entry, nil
}

// HeadOf returns the lowest-sequence live entry for the slot, or nil.
func (r *WaitlistRepo) HeadOf(ctx context.Context, slotKey string) (*model.WaitlistEntry, error) {
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

	if err := gcExpiredTx(ctx, tx, slotKey); err != nil {
		return nil, err
	}
	entry, err := headTx(ctx, tx, slotKey, false)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	committed = true
	return entry, nil
}

// Dequeue removes an entry by id.
func (r *WaitlistRepo) Dequeue(ctx context.Context, entryID uint64) error {
	res, err := r.db.ExecContext(ctx,
		"DELETE FROM waitlist_entries WHERE id=?", entryID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return booking.ErrNotFound
	}
	return nil
}

// RemoveForRequester consumes the requester's entry for a slot.
func (r *WaitlistRepo) RemoveForRequester(ctx context.Context, slotKey, requester string) error {
	res, err := r.db.ExecContext(ctx,
		"DELETE FROM waitlist_entries WHERE slot_key=? AND requester=?",
		slotKey, requester)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return booking.ErrNotFound
	}
	return nil
}

// ListBySlot returns all live entries for a slot key in queue order.
func (r *WaitlistRepo) ListBySlot(ctx context.Context, slotKey string) ([]model.WaitlistEntry, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+waitlistCols+" FROM waitlist_entries WHERE slot_key=? ORDER BY seq", slotKey)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]model.WaitlistEntry, 0)
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

func gcExpiredTx(ctx context.Context, tx *sql.Tx, slotKey string) error {
	_, err := tx.ExecContext(ctx,
		"DELETE FROM waitlist_entries WHERE slot_key=? AND notified_until IS NOT NULL AND notified_until < UTC_TIMESTAMP()",
		slotKey)
	return err
}

func headTx(ctx context.Context, tx *sql.Tx, slotKey string, forUpdate bool) (*model.WaitlistEntry, error) {
	q := "SELECT " + waitlistCols + " FROM waitlist_entries WHERE slot_key=? ORDER BY seq LIMIT 1"
	if forUpdate {
		q += " FOR UPDATE"
	}
	entry, err := scanEntry(tx.QueryRowContext(ctx, q, slotKey))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return entry, nil
}

func getEntryTx(ctx context.Context, tx *sql.Tx, id uint64) (*model.WaitlistEntry, error) {
	return scanEntry(tx.QueryRowContext(ctx,
		"SELECT "+waitlistCols+" FROM waitlist_entries WHERE id=?", id))
}

func scanEntry(row rowScanner) (*model.WaitlistEntry, error) {
	var (
		e        model.WaitlistEntry
		notified sql.NullTime
	)
	if err := row.Scan(&e.ID, &e.SlotKey, &e.Requester, &e.Seq, &notified, &e.CreatedAt); err != nil {
		return nil, err
	}
	if notified.Valid {
		t := notified.Time.UTC()
		e.NotifiedUntil = &t
	}
	return &e, nil
}
