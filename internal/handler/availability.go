package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/courtbook/court-booking/internal/model"
)

// AvailabilityHandler answers "what is free in this window" queries.
// Results are advisory: availability can change between the query and a
// booking attempt, and only the booking path holds the slot lock.
type AvailabilityHandler struct {
	Courts    CourtStore
	Equipment EquipmentStore
	Coaches   CoachStore
	Overlaps  OverlapStore
}

// NewAvailabilityHandler constructs an AvailabilityHandler.
func NewAvailabilityHandler(courts CourtStore, equipment EquipmentStore, coaches CoachStore, overlaps OverlapStore) *AvailabilityHandler {
	if courts == nil || equipment == nil || coaches == nil || overlaps == nil {
		panic("nil dependency passed to NewAvailabilityHandler")
	}
	return &AvailabilityHandler{Courts: courts, Equipment: equipment, Coaches: coaches, Overlaps: overlaps}
}

type availableCourt struct {
	ID          uint64          `json:"id"`
	Name        string          `json:"name"`
	Type        model.CourtType `json:"type"`
	HourlyCents int64           `json:"hourly_cents"`
}

type availableEquipment struct {
	SKU         string `json:"sku"`
	Name        string `json:"name"`
	Remaining   int    `json:"remaining"`
	RentalCents int64  `json:"rental_cents"`
}

type availableCoach struct {
	ID          uint64 `json:"id"`
	Name        string `json:"name"`
	HourlyCents int64  `json:"hourly_cents"`
}

type availabilityResp struct {
	Window    model.TimeWindow     `json:"window"`
	Courts    []availableCourt     `json:"courts"`
	Equipment []availableEquipment `json:"equipment"`
	Coaches   []availableCoach     `json:"coaches"`
}

// Window handles GET /v1/availability?start=...&end=...  Times are
// RFC 3339; the window is normalized the same way booking normalizes it.
// An optional court_type parameter narrows the court list.
func (h *AvailabilityHandler) Window(c echo.Context) error {
	start, err := time.Parse(time.RFC3339, c.QueryParam("start"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid start, want RFC3339"})
	}
	end, err := time.Parse(time.RFC3339, c.QueryParam("end"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid end, want RFC3339"})
	}
	w := model.NewTimeWindow(start, end)
	if err := w.Validate(); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	}

	ctx := c.Request().Context()
	overlapping, err := h.Overlaps.ListOverlapping(ctx, w)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}

	busyCourts := make(map[string]bool)
	busyCoaches := make(map[string]bool)
	equipmentUsed := make(map[string]int)
	for _, b := range overlapping {
		for _, a := range b.Allocations {
			switch a.ResourceType {
			case model.ResourceCourt:
				busyCourts[a.ResourceID] = true
			case model.ResourceCoach:
				busyCoaches[a.ResourceID] = true
			case model.ResourceEquipment:
				equipmentUsed[a.ResourceID] += a.Quantity
			}
		}
	}

	resp := availabilityResp{
		Window:    w,
		Courts:    make([]availableCourt, 0),
		Equipment: make([]availableEquipment, 0),
		Coaches:   make([]availableCoach, 0),
	}

	courts, err := h.Courts.List(ctx)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}
	typeFilter := c.QueryParam("court_type")
	for _, court := range courts {
		if !court.Enabled || busyCourts[strconv.FormatUint(court.ID, 10)] {
			continue
		}
		if typeFilter != "" && string(court.Type) != typeFilter {
			continue
		}
		resp.Courts = append(resp.Courts, availableCourt{
			ID: court.ID, Name: court.Name, Type: court.Type, HourlyCents: court.HourlyCents,
		})
	}

	items, err := h.Equipment.List(ctx)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}
	for _, item := range items {
		if !item.Active {
			continue
		}
		remaining := item.TotalQty - equipmentUsed[item.SKU]
		if remaining < 0 {
			remaining = 0
		}
		resp.Equipment = append(resp.Equipment, availableEquipment{
			SKU: item.SKU, Name: item.Name, Remaining: remaining, RentalCents: item.RentalCents,
		})
	}

	coaches, err := h.Coaches.List(ctx)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}
	for _, coach := range coaches {
		if !coach.Active || busyCoaches[strconv.FormatUint(coach.ID, 10)] {
			continue
		}
		resp.Coaches = append(resp.Coaches, availableCoach{
			ID: coach.ID, Name: coach.Name, HourlyCents: coach.HourlyCents,
		})
	}

	return c.JSON(http.StatusOK, resp)
}

type slotGridEntry struct {
	Start    time.Time `json:"start"`
	End      time.Time `json:"end"`
	CourtIDs []uint64  `json:"court_ids"`
	CoachIDs []uint64  `json:"coach_ids"`
}

// SlotGrid handles GET /v1/slots/:date: the half-hour booking grid for
// one day, 08:00 to 21:00 UTC.  Each slot lists the courts and coaches
// still free in it.  One overlap query covers the whole day.
func (h *AvailabilityHandler) SlotGrid(c echo.Context) error {
	day, err := time.Parse("2006-01-02", c.Param("date"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid date, want YYYY-MM-DD"})
	}
	open := time.Date(day.Year(), day.Month(), day.Day(), 8, 0, 0, 0, time.UTC)
	closing := time.Date(day.Year(), day.Month(), day.Day(), 21, 0, 0, 0, time.UTC)

	ctx := c.Request().Context()
	overlapping, err := h.Overlaps.ListOverlapping(ctx, model.NewTimeWindow(open, closing))
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}
	courts, err := h.Courts.List(ctx)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}
	coaches, err := h.Coaches.List(ctx)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}

	slots := make([]slotGridEntry, 0, 26)
	for t := open; t.Before(closing); t = t.Add(30 * time.Minute) {
		slotEnd := t.Add(30 * time.Minute)
		busyCourts := make(map[string]bool)
		busyCoaches := make(map[string]bool)
		for _, b := range overlapping {
			if !b.Window.Start.Before(slotEnd) || !t.Before(b.Window.End) {
				continue
			}
			for _, a := range b.Allocations {
				switch a.ResourceType {
				case model.ResourceCourt:
					busyCourts[a.ResourceID] = true
				case model.ResourceCoach:
					busyCoaches[a.ResourceID] = true
				}
			}
		}
		entry := slotGridEntry{Start: t, End: slotEnd, CourtIDs: make([]uint64, 0), CoachIDs: make([]uint64, 0)}
		for _, court := range courts {
			if court.Enabled && !busyCourts[strconv.FormatUint(court.ID, 10)] {
				entry.CourtIDs = append(entry.CourtIDs, court.ID)
			}
		}
		for _, coach := range coaches {
			if coach.Active && !busyCoaches[strconv.FormatUint(coach.ID, 10)] {
				entry.CoachIDs = append(entry.CoachIDs, coach.ID)
			}
		}
		slots = append(slots, entry)
	}

	return c.JSON(http.StatusOK, echo.Map{"date": day.Format("2006-01-02"), "slots": slots})
}

// Courts handles GET /v1/courts: the public catalog listing.
func (h *AvailabilityHandler) ListCourts(c echo.Context) error {
	courts, err := h.Courts.List(c.Request().Context())
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}
	out := make([]availableCourt, 0, len(courts))
	for _, court := range courts {
		if !court.Enabled {
			continue
		}
		out = append(out, availableCourt{
			ID: court.ID, Name: court.Name, Type: court.Type, HourlyCents: court.HourlyCents,
		})
	}
	return c.JSON(http.StatusOK, echo.Map{"courts": out})
}

// ListEquipment handles GET /v1/equipment: active SKUs with total pool size.
func (h *AvailabilityHandler) ListEquipment(c echo.Context) error {
	items, err := h.Equipment.List(c.Request().Context())
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}
	out := make([]availableEquipment, 0, len(items))
	for _, item := range items {
		if !item.Active {
			continue
		}
		out = append(out, availableEquipment{
			SKU: item.SKU, Name: item.Name, Remaining: item.TotalQty, RentalCents: item.RentalCents,
		})
	}
	return c.JSON(http.StatusOK, echo.Map{"equipment": out})
}

// ListCoaches handles GET /v1/coaches: active coaches.
func (h *AvailabilityHandler) ListCoaches(c echo.Context) error {
	coaches, err := h.Coaches.List(c.Request().Context())
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}
	out := make([]availableCoach, 0, len(coaches))
	for _, coach := range coaches {
		if !coach.Active {
			continue
		}
		out = append(out, availableCoach{ID: coach.ID, Name: coach.Name, HourlyCents: coach.HourlyCents})
	}
	return c.JSON(http.StatusOK, echo.Map{"coaches": out})
}
