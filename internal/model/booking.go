package model

import (
	"encoding/json"
	"time"
)

// Booking statuses.  A booking is created confirmed and only ever
// transitions to cancelled; rows are never deleted so they double as an
// audit trail.
const (
	BookingConfirmed = "confirmed"
	BookingCancelled = "cancelled"
)

// Resource types used in allocations.
const (
	ResourceCourt     = "court"
	ResourceEquipment = "equipment"
	ResourceCoach     = "coach"
)

// Booking records a successful allocation of a court (plus optional
// equipment and coach) for a time window.
//
// Fields:
//  ID              – primary key identifier.
//  Requester       – opaque requester identity supplied by the auth layer.
//  Window          – the reserved [start, end) interval.
//  Status          – confirmed or cancelled.
//  TotalCents      – total price at commit time.
//  PricingSnapshot – serialized rule-evaluation trace captured at commit;
//                    it is never recomputed, even if rules change later.
//  IdempotencyKey  – optional client key; replays return the same booking.
//  Allocations     – one line per reserved resource.
//  CreatedAt       – timestamp of creation.
//  UpdatedAt       – timestamp of last status change.
type Booking struct {
	ID              uint64          `json:"id"`
	Requester       string          `json:"requester"`
	Window          TimeWindow      `json:"window"`
	Status          string          `json:"status"`
	TotalCents      int64           `json:"total_cents"`
	PricingSnapshot json.RawMessage `json:"pricing_snapshot,omitempty"`
	IdempotencyKey  string          `json:"idempotency_key,omitempty"`
	Allocations     []Allocation    `json:"allocations"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// Allocation is a single resource reservation line belonging to a booking.
// ResourceID holds the court or coach id rendered as a string, or the
// equipment SKU; Quantity is 1 for singleton resources.
type Allocation struct {
	ID           uint64 `json:"id"`
	BookingID    uint64 `json:"booking_id"`
	ResourceType string `json:"resource_type"`
	ResourceID   string `json:"resource_id"`
	Quantity     int    `json:"quantity"`
}

// AuditEvent is an append-only record of booking lifecycle transitions,
// stored in the `audit_events` table.
type AuditEvent struct {
	ID        uint64          `json:"id"`
	BookingID uint64          `json:"booking_id"`
	EventType string          `json:"event_type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}
