package handler

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/courtbook/court-booking/internal/booking"
	"github.com/courtbook/court-booking/internal/model"
)

// BookingHandler exposes quoting, booking, cancellation and listing.
// All routes require an authenticated user; the engine receives the
// user as an opaque requester string and never touches the users table.
type BookingHandler struct {
	Engine *booking.Orchestrator
	Ledger booking.Ledger
}

// NewBookingHandler constructs a BookingHandler.
func NewBookingHandler(engine *booking.Orchestrator, ledger booking.Ledger) *BookingHandler {
	if engine == nil || ledger == nil {
		panic("nil dependency passed to NewBookingHandler")
	}
	return &BookingHandler{Engine: engine, Ledger: ledger}
}

type equipmentLineReq struct {
	SKU      string `json:"sku"`
	Quantity int    `json:"quantity"`
}

type bookReq struct {
	CourtID        uint64             `json:"court_id"`
	Start          time.Time          `json:"start"`
	End            time.Time          `json:"end"`
	Equipment      []equipmentLineReq `json:"equipment"`
	CoachID        *uint64            `json:"coach_id"`
	IdempotencyKey string             `json:"idempotency_key"`
}

func (r bookReq) toEngine(requester string) booking.Request {
	req := booking.Request{
		Requester:      requester,
		CourtID:        r.CourtID,
		Window:         model.TimeWindow{Start: r.Start, End: r.End},
		CoachID:        r.CoachID,
		IdempotencyKey: strings.TrimSpace(r.IdempotencyKey),
	}
	for _, line := range r.Equipment {
		req.Equipment = append(req.Equipment, booking.EquipmentRequest{SKU: line.SKU, Quantity: line.Quantity})
	}
	return req
}

// Quote handles POST /v1/quote.  It prices a request without reserving
// anything; the response carries the rule set version the price was
// computed against.
func (h *BookingHandler) Quote(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	var body bookReq
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	result, err := h.Engine.Quote(c.Request().Context(), body.toEngine(requesterFrom(userID)))
	if err != nil {
		return writeEngineError(c, err)
	}
	return c.JSON(http.StatusOK, result)
}

// PublicQuote handles GET /v1/quote.  Guests can price a court, window
// and optional coach before registering; nothing is persisted.  The
// equipment breakdown is only available through the authenticated POST
// body, query strings stay flat.
func (h *BookingHandler) PublicQuote(c echo.Context) error {
	courtID, err := strconv.ParseUint(c.QueryParam("court_id"), 10, 64)
	if err != nil || courtID == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid court_id"})
	}
	start, err := time.Parse(time.RFC3339, c.QueryParam("start"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid start, want RFC3339"})
	}
	end, err := time.Parse(time.RFC3339, c.QueryParam("end"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid end, want RFC3339"})
	}
	req := booking.Request{
		Requester: "guest",
		CourtID:   courtID,
		Window:    model.TimeWindow{Start: start, End: end},
	}
	if v := c.QueryParam("coach_id"); v != "" {
		id, err := strconv.ParseUint(v, 10, 64)
		if err != nil || id == 0 {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid coach_id"})
		}
		req.CoachID = &id
	}
	result, err := h.Engine.Quote(c.Request().Context(), req)
	if err != nil {
		return writeEngineError(c, err)
	}
	return c.JSON(http.StatusOK, result)
}

// Book handles POST /v1/bookings.  The idempotency key may come from the
// body or the Idempotency-Key header; the header wins.  A court conflict
// yields 202 with a waitlist entry rather than an error.
func (h *BookingHandler) Book(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	var body bookReq
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	if key := strings.TrimSpace(c.Request().Header.Get("Idempotency-Key")); key != "" {
		body.IdempotencyKey = key
	}
	outcome, err := h.Engine.Book(c.Request().Context(), body.toEngine(requesterFrom(userID)))
	if err != nil {
		return writeEngineError(c, err)
	}
	if outcome.Status == booking.StatusWaitlisted {
		return c.JSON(http.StatusAccepted, outcome)
	}
	return c.JSON(http.StatusCreated, outcome)
}

// Get handles GET /v1/bookings/:id.  Customers only see their own
// bookings; admins see everything.
func (h *BookingHandler) Get(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid booking id"})
	}
	b, err := h.Ledger.Get(c.Request().Context(), id)
	if err != nil {
		return writeEngineError(c, err)
	}
	if !canAccess(c, b, userID) {
		// Hide existence from other requesters.
		return c.JSON(http.StatusNotFound, echo.Map{"error": "not found"})
	}
	return c.JSON(http.StatusOK, b)
}

// Cancel handles DELETE /v1/bookings/:id.  Cancellation promotes the
// slot's waitlist head; the promoted entry is included in the response
// so clients can show who got the slot offer.
func (h *BookingHandler) Cancel(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid booking id"})
	}
	existing, err := h.Ledger.Get(c.Request().Context(), id)
	if err != nil {
		return writeEngineError(c, err)
	}
	if !canAccess(c, existing, userID) {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "not found"})
	}
	result, err := h.Engine.Cancel(c.Request().Context(), id)
	if err != nil {
		return writeEngineError(c, err)
	}
	return c.JSON(http.StatusOK, result)
}

// Release handles POST /v1/admin/bookings/:id/release: an admin-forced
// cancellation that frees the slot and promotes the waitlist head.  The
// route group enforces the admin role, so no ownership check happens
// here.
func (h *BookingHandler) Release(c echo.Context) error {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid booking id"})
	}
	result, err := h.Engine.Cancel(c.Request().Context(), id)
	if err != nil {
		return writeEngineError(c, err)
	}
	return c.JSON(http.StatusOK, result)
}

// MyBookings handles GET /v1/my-bookings, newest first.
func (h *BookingHandler) MyBookings(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	list, err := h.Ledger.ListByRequester(c.Request().Context(), requesterFrom(userID))
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}
	return c.JSON(http.StatusOK, echo.Map{"bookings": list})
}

func canAccess(c echo.Context, b *model.Booking, userID uint64) bool {
	if role, ok := c.Get("role").(string); ok && role == model.RoleAdmin {
		return true
	}
	return b.Requester == requesterFrom(userID)
}
