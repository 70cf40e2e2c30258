// Package handler contains the Echo HTTP handlers.  Handlers depend on
// small store interfaces satisfied by both the MySQL repositories and
// the in-memory store, so the same surface runs against either driver.
package handler

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/courtbook/court-booking/internal/booking"
	"github.com/courtbook/court-booking/internal/model"
	"github.com/courtbook/court-booking/internal/slotlock"
)

// UserStore is the auth handlers' user persistence dependency.
type UserStore interface {
	Create(ctx context.Context, name, email, password, role string, cost int) (uint64, error)
	GetByEmail(ctx context.Context, email string) (model.User, error)
	GetByID(ctx context.Context, id uint64) (model.User, error)
}

// TokenStore persists and validates refresh token hashes.
type TokenStore interface {
	StoreRefresh(ctx context.Context, userID uint64, tokenHash string, exp time.Time) error
	ValidateRefresh(ctx context.Context, tokenHash string) (uint64, error)
	RevokeByHash(ctx context.Context, tokenHash string) error
	RevokeAllForUser(ctx context.Context, userID uint64) error
}

// CourtStore is the admin CRUD surface for courts.
type CourtStore interface {
	List(ctx context.Context) ([]model.Court, error)
	Create(ctx context.Context, c *model.Court) error
	Update(ctx context.Context, c model.Court) error
	Delete(ctx context.Context, id uint64) error
}

// EquipmentStore is the admin CRUD surface for equipment SKUs.
type EquipmentStore interface {
	List(ctx context.Context) ([]model.EquipmentItem, error)
	Create(ctx context.Context, e *model.EquipmentItem) error
	Update(ctx context.Context, e model.EquipmentItem) error
	Delete(ctx context.Context, id uint64) error
}

// CoachStore is the admin CRUD surface for coaches.
type CoachStore interface {
	List(ctx context.Context) ([]model.Coach, error)
	Create(ctx context.Context, c *model.Coach) error
	Update(ctx context.Context, c model.Coach) error
	Delete(ctx context.Context, id uint64) error
}

// RuleStore is the admin surface for pricing rules.
type RuleStore interface {
	List(ctx context.Context) ([]model.PricingRule, error)
	Upsert(ctx context.Context, r *model.PricingRule) error
	Delete(ctx context.Context, id uint64) error
}

// OverlapStore reports confirmed bookings intersecting a window, for
// availability queries.
type OverlapStore interface {
	ListOverlapping(ctx context.Context, w model.TimeWindow) ([]model.Booking, error)
}

// getUserID extracts the user_id from echo.Context and converts it to
// uint64.  JWT numeric claims decode as float64, so several shapes are
// accepted.
func getUserID(c echo.Context) (uint64, error) {
	v := c.Get("user_id")
	switch t := v.(type) {
	case uint64:
		return t, nil
	case int:
		return uint64(t), nil
	case int64:
		return uint64(t), nil
	case float64:
		return uint64(t), nil
	case string:
		if n, err := strconv.ParseUint(t, 10, 64); err == nil {
			return n, nil
		}
	}
	return 0, errors.New("invalid user_id in context")
}

// requesterFrom builds the opaque requester identity passed to the
// booking engine from the authenticated user id.
func requesterFrom(userID uint64) string {
	return "user:" + strconv.FormatUint(userID, 10)
}

// isNotFound covers the two not-found sentinels used across backends.
func isNotFound(err error) bool {
	return errors.Is(err, sql.ErrNoRows) || errors.Is(err, booking.ErrNotFound)
}

// writeEngineError maps booking engine errors onto HTTP responses.
// Validation problems are 400, resource conflicts and inventory
// shortfalls 409, lock starvation 503, everything unexpected 500.
func writeEngineError(c echo.Context, err error) error {
	var verr *booking.ValidationError
	if errors.As(err, &verr) {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": verr.Error(), "field": verr.Field})
	}
	var conflict *booking.ConflictError
	if errors.As(err, &conflict) {
		return c.JSON(http.StatusConflict, echo.Map{
			"error":         conflict.Error(),
			"resource_type": conflict.ResourceType,
			"resource_id":   conflict.ResourceID,
		})
	}
	var short *booking.InsufficientInventoryError
	if errors.As(err, &short) {
		return c.JSON(http.StatusConflict, echo.Map{
			"error":     short.Error(),
			"sku":       short.SKU,
			"requested": short.Requested,
			"available": short.Available,
		})
	}
	if errors.Is(err, slotlock.ErrLockTimeout) {
		return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "slot busy, retry shortly"})
	}
	if errors.Is(err, booking.ErrNotFound) {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "not found"})
	}
	if errors.Is(err, booking.ErrAlreadyCancelled) {
		return c.JSON(http.StatusConflict, echo.Map{"error": "booking already cancelled"})
	}
	return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
}
