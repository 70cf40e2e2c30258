package model

import "time"

// CourtType distinguishes indoor and outdoor courts.  Pricing rules may
// restrict themselves to one type.
type CourtType string

const (
	CourtIndoor  CourtType = "indoor"
	CourtOutdoor CourtType = "outdoor"
)

// Court represents a bookable court as stored in the `courts` table.
// A court has singleton capacity: at most one confirmed booking may
// cover any instant of time.
//
// Fields:
//  ID          – primary key identifier.
//  Name        – display name (e.g. "court_1").
//  Type        – indoor or outdoor.
//  Enabled     – disabled courts are rejected before any lock is taken.
//  HourlyCents – base hourly rate in cents.
//  CreatedAt   – timestamp of creation.
type Court struct {
	ID          uint64    `json:"id"`
	Name        string    `json:"name"`
	Type        CourtType `json:"type"`
	Enabled     bool      `json:"enabled"`
	HourlyCents int64     `json:"hourly_cents"`
	CreatedAt   time.Time `json:"created_at"`
}

// EquipmentItem represents a rentable equipment SKU with a shared
// inventory pool.  Unlike courts, equipment has fractional concurrent
// availability: remaining capacity for a window is TotalQuantity minus
// the sum of quantities across overlapping confirmed allocations.
//
// Fields:
//  ID          – primary key identifier.
//  SKU         – unique stock keeping unit (e.g. "racket").
//  Name        – display name.
//  TotalQty    – total inventory count.
//  RentalCents – flat rental fee per unit per booking.
//  Active      – inactive SKUs are rejected during validation.
type EquipmentItem struct {
	ID          uint64 `json:"id"`
	SKU         string `json:"sku"`
	Name        string `json:"name"`
	TotalQty    int    `json:"total_quantity"`
	RentalCents int64  `json:"rental_cents"`
	Active      bool   `json:"active"`
}

// Coach represents a bookable coach.  Coaches are singleton capacity
// like courts, but they do not contribute to the slot lock key; their
// exclusivity is enforced inside the court-slot critical section.
type Coach struct {
	ID          uint64 `json:"id"`
	Name        string `json:"name"`
	Bio         string `json:"bio,omitempty"`
	HourlyCents int64  `json:"hourly_cents"`
	Active      bool   `json:"active"`
}
