package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/courtbook/court-booking/internal/model"
	"github.com/courtbook/court-booking/internal/repository"
)

// AdminCatalogHandler manages courts, equipment and coaches.  All routes
// require the admin role; the role guard runs in middleware.
type AdminCatalogHandler struct {
	Courts    CourtStore
	Equipment EquipmentStore
	Coaches   CoachStore
	Audit     AuditStore
}

// AuditStore exposes a booking's audit trail.
type AuditStore interface {
	AuditTrail(ctx context.Context, bookingID uint64) ([]model.AuditEvent, error)
}

// NewAdminCatalogHandler constructs an AdminCatalogHandler.
func NewAdminCatalogHandler(courts CourtStore, equipment EquipmentStore, coaches CoachStore, audit AuditStore) *AdminCatalogHandler {
	if courts == nil || equipment == nil || coaches == nil || audit == nil {
		panic("nil dependency passed to NewAdminCatalogHandler")
	}
	return &AdminCatalogHandler{Courts: courts, Equipment: equipment, Coaches: coaches, Audit: audit}
}

// ----- courts -----

type courtReq struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Enabled     *bool  `json:"enabled"`
	HourlyCents int64  `json:"hourly_cents"`
}

func (r courtReq) validate() (model.Court, error) {
	t := model.CourtType(strings.ToLower(strings.TrimSpace(r.Type)))
	if t != model.CourtIndoor && t != model.CourtOutdoor {
		return model.Court{}, errors.New("type must be indoor or outdoor")
	}
	if strings.TrimSpace(r.Name) == "" {
		return model.Court{}, errors.New("name is required")
	}
	if r.HourlyCents <= 0 {
		return model.Court{}, errors.New("hourly_cents must be positive")
	}
	enabled := true
	if r.Enabled != nil {
		enabled = *r.Enabled
	}
	return model.Court{Name: strings.TrimSpace(r.Name), Type: t, Enabled: enabled, HourlyCents: r.HourlyCents}, nil
}

// ListCourts handles GET /v1/admin/courts, disabled courts included.
func (h *AdminCatalogHandler) ListCourts(c echo.Context) error {
	courts, err := h.Courts.List(c.Request().Context())
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}
	return c.JSON(http.StatusOK, echo.Map{"courts": courts})
}

// CreateCourt handles POST /v1/admin/courts.
func (h *AdminCatalogHandler) CreateCourt(c echo.Context) error {
	var req courtReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	court, err := req.validate()
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	}
	if err := h.Courts.Create(c.Request().Context(), &court); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "create court failed"})
	}
	return c.JSON(http.StatusCreated, court)
}

// UpdateCourt handles PUT /v1/admin/courts/:id.
func (h *AdminCatalogHandler) UpdateCourt(c echo.Context) error {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid court id"})
	}
	var req courtReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	court, err := req.validate()
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	}
	court.ID = id
	if err := h.Courts.Update(c.Request().Context(), court); err != nil {
		if isNotFound(err) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "court not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "update court failed"})
	}
	return c.JSON(http.StatusOK, court)
}

// DeleteCourt handles DELETE /v1/admin/courts/:id.  Courts with
// confirmed bookings are disabled rather than removed.
func (h *AdminCatalogHandler) DeleteCourt(c echo.Context) error {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid court id"})
	}
	if err := h.Courts.Delete(c.Request().Context(), id); err != nil {
		if isNotFound(err) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "court not found"})
		}
		if errors.Is(err, repository.ErrConflict) {
			return c.JSON(http.StatusConflict, echo.Map{"error": "court has bookings; disabled instead"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "delete court failed"})
	}
	return c.NoContent(http.StatusNoContent)
}

// ----- equipment -----

type equipmentReq struct {
	SKU         string `json:"sku"`
	Name        string `json:"name"`
	TotalQty    int    `json:"total_quantity"`
	RentalCents int64  `json:"rental_cents"`
	Active      *bool  `json:"active"`
}

func (r equipmentReq) validate() (model.EquipmentItem, error) {
	if strings.TrimSpace(r.SKU) == "" {
		return model.EquipmentItem{}, errors.New("sku is required")
	}
	if r.TotalQty < 0 {
		return model.EquipmentItem{}, errors.New("total_quantity must not be negative")
	}
	if r.RentalCents < 0 {
		return model.EquipmentItem{}, errors.New("rental_cents must not be negative")
	}
	active := true
	if r.Active != nil {
		active = *r.Active
	}
	return model.EquipmentItem{
		SKU: strings.TrimSpace(r.SKU), Name: strings.TrimSpace(r.Name),
		TotalQty: r.TotalQty, RentalCents: r.RentalCents, Active: active,
	}, nil
}

// ListEquipment handles GET /v1/admin/equipment.
func (h *AdminCatalogHandler) ListEquipment(c echo.Context) error {
	items, err := h.Equipment.List(c.Request().Context())
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}
	return c.JSON(http.StatusOK, echo.Map{"equipment": items})
}

// CreateEquipment handles POST /v1/admin/equipment.
func (h *AdminCatalogHandler) CreateEquipment(c echo.Context) error {
	var req equipmentReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	item, err := req.validate()
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	}
	if err := h.Equipment.Create(c.Request().Context(), &item); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return c.JSON(http.StatusConflict, echo.Map{"error": "sku already exists"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "create equipment failed"})
	}
	return c.JSON(http.StatusCreated, item)
}

// UpdateEquipment handles PUT /v1/admin/equipment/:id.
func (h *AdminCatalogHandler) UpdateEquipment(c echo.Context) error {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid equipment id"})
	}
	var req equipmentReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	item, err := req.validate()
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	}
	item.ID = id
	if err := h.Equipment.Update(c.Request().Context(), item); err != nil {
		if isNotFound(err) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "equipment not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "update equipment failed"})
	}
	return c.JSON(http.StatusOK, item)
}

// DeleteEquipment handles DELETE /v1/admin/equipment/:id (deactivates).
func (h *AdminCatalogHandler) DeleteEquipment(c echo.Context) error {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid equipment id"})
	}
	if err := h.Equipment.Delete(c.Request().Context(), id); err != nil {
		if isNotFound(err) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "equipment not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "delete equipment failed"})
	}
	return c.NoContent(http.StatusNoContent)
}

// ----- coaches -----

type coachReq struct {
	Name        string `json:"name"`
	Bio         string `json:"bio"`
	HourlyCents int64  `json:"hourly_cents"`
	Active      *bool  `json:"active"`
}

func (r coachReq) validate() (model.Coach, error) {
	if strings.TrimSpace(r.Name) == "" {
		return model.Coach{}, errors.New("name is required")
	}
	if r.HourlyCents < 0 {
		return model.Coach{}, errors.New("hourly_cents must not be negative")
	}
	active := true
	if r.Active != nil {
		active = *r.Active
	}
	return model.Coach{Name: strings.TrimSpace(r.Name), Bio: r.Bio, HourlyCents: r.HourlyCents, Active: active}, nil
}

// ListCoaches handles GET /v1/admin/coaches.
func (h *AdminCatalogHandler) ListCoaches(c echo.Context) error {
	coaches, err := h.Coaches.List(c.Request().Context())
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}
	return c.JSON(http.StatusOK, echo.Map{"coaches": coaches})
}

// CreateCoach handles POST /v1/admin/coaches.
func (h *AdminCatalogHandler) CreateCoach(c echo.Context) error {
	var req coachReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	coach, err := req.validate()
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	}
	if err := h.Coaches.Create(c.Request().Context(), &coach); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "create coach failed"})
	}
	return c.JSON(http.StatusCreated, coach)
}

// UpdateCoach handles PUT /v1/admin/coaches/:id.
func (h *AdminCatalogHandler) UpdateCoach(c echo.Context) error {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid coach id"})
	}
	var req coachReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	coach, err := req.validate()
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	}
	coach.ID = id
	if err := h.Coaches.Update(c.Request().Context(), coach); err != nil {
		if isNotFound(err) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "coach not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "update coach failed"})
	}
	return c.JSON(http.StatusOK, coach)
}

// DeleteCoach handles DELETE /v1/admin/coaches/:id (deactivates).
func (h *AdminCatalogHandler) DeleteCoach(c echo.Context) error {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid coach id"})
	}
	if err := h.Coaches.Delete(c.Request().Context(), id); err != nil {
		if isNotFound(err) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "coach not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "delete coach failed"})
	}
	return c.NoContent(http.StatusNoContent)
}

// ----- audit -----

// BookingAudit handles GET /v1/admin/bookings/:id/audit.
func (h *AdminCatalogHandler) BookingAudit(c echo.Context) error {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid booking id"})
	}
	events, err := h.Audit.AuditTrail(c.Request().Context(), id)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}
	return c.JSON(http.StatusOK, echo.Map{"events": events})
}
