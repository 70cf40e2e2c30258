// Package queue defines message payloads exchanged over the message
// broker and the background consumer that drains them.
package queue

// Queue names used on the broker.
const (
	BookingConfirmedQueue = "booking.confirmed"
	WaitlistPromotedQueue = "waitlist.promoted"
)

// BookingConfirmedEvent is published when a booking commits.  It carries
// enough information for downstream consumers to log, notify or feed
// analytics without querying the primary database.
type BookingConfirmedEvent struct {
	EventID     string   `json:"event_id"`
	BookingID   uint64   `json:"booking_id"`
	Requester   string   `json:"requester"`
	Start       string   `json:"start"`
	End         string   `json:"end"`
	Resources   []string `json:"resources"`
	TotalCents  int64    `json:"total_cents"`
	ConfirmedAt string   `json:"confirmed_at"`
}

// WaitlistPromotedEvent is published when a cancellation promotes the
// head of a slot's waitlist.  Delivery drives the "your slot is free"
// notification; the hold deadline tells the recipient how long their
// priority lasts.
type WaitlistPromotedEvent struct {
	EventID    string `json:"event_id"`
	EntryID    uint64 `json:"entry_id"`
	SlotKey    string `json:"slot_key"`
	Requester  string `json:"requester"`
	Seq        uint64 `json:"seq"`
	HoldUntil  string `json:"hold_until"`
	PromotedAt string `json:"promoted_at"`
}
