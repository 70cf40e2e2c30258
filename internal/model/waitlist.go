package model

import "time"

// WaitlistEntry is a pending requester queued behind a taken slot.
// Sequence numbers are monotonic per slot key, assigned at enqueue time
// starting from 1; FIFO order is defined by them, never by timestamps.
//
// Fields:
//  ID            – primary key identifier.
//  SlotKey       – the (court, window) key this entry waits on.
//  Requester     – opaque requester identity.
//  Seq           – per-slot FIFO sequence number.
//  NotifiedUntil – hold-expiry timestamp, set when the entry is promoted.
//                  Nil while the entry is merely queued.  The hold grants
//                  priority only; it does not reserve the slot.
//  CreatedAt     – timestamp of enqueue.
type WaitlistEntry struct {
	ID            uint64     `json:"id"`
	SlotKey       string     `json:"slot_key"`
	Requester     string     `json:"requester"`
	Seq           uint64     `json:"seq"`
	NotifiedUntil *time.Time `json:"notified_until,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

// HoldExpired reports whether the entry was promoted and its hold window
// has lapsed without confirmation.
func (e WaitlistEntry) HoldExpired(now time.Time) bool {
	return e.NotifiedUntil != nil && !now.Before(*e.NotifiedUntil)
}
