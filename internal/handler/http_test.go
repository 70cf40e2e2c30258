package handler_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/courtbook/court-booking/internal/booking"
	"github.com/courtbook/court-booking/internal/config"
	"github.com/courtbook/court-booking/internal/handler"
	"github.com/courtbook/court-booking/internal/model"
	"github.com/courtbook/court-booking/internal/router"
	"github.com/courtbook/court-booking/internal/slotlock"
	"github.com/courtbook/court-booking/internal/store/memstore"
	"github.com/courtbook/court-booking/internal/utils"
)

const testSecret = "test-secret"

// newTestServer wires the full HTTP surface against the in-memory store,
// seeded with one court, one SKU and one coach.
func newTestServer(t *testing.T) (*echo.Echo, *memstore.Store) {
	t.Helper()

	mem := memstore.New()
	mem.AddCourt(model.Court{Name: "Center Court", Type: model.CourtIndoor, Enabled: true, HourlyCents: 60000})
	mem.AddEquipment(model.EquipmentItem{SKU: "RACKET-PRO", Name: "Pro Racket", TotalQty: 4, RentalCents: 2500, Active: true})
	mem.AddCoach(model.Coach{Name: "Dana", HourlyCents: 40000, Active: true})

	users := memstore.NewUserStore()

	engine := booking.New(mem, mem, mem, mem, slotlock.NewMutexMap(),
		booking.WithHoldWindow(10*time.Minute))

	cfg := config.Config{
		Env: "test", JWTSecret: testSecret,
		AccessTTLMin: 15, RefreshTTLDays: 7, BcryptCost: 4,
	}

	authH := handler.NewAuthHandler(cfg, users, users)
	bookH := handler.NewBookingHandler(engine, mem)
	availH := handler.NewAvailabilityHandler(mem.Courts(), mem.EquipmentItems(), mem.CoachRoster(), mem)
	catalogH := handler.NewAdminCatalogHandler(mem.Courts(), mem.EquipmentItems(), mem.CoachRoster(), mem)
	ruleH := handler.NewAdminRuleHandler(mem.Rules())

	e := echo.New()
	router.RegisterRoutes(e)
	router.RegisterAuth(e, authH, cfg.JWTSecret)
	router.RegisterPublic(e, availH, bookH)
	router.RegisterBooking(e, bookH, cfg.JWTSecret)
	router.RegisterAdmin(e, catalogH, ruleH, bookH, cfg.JWTSecret)
	return e, mem
}

func doJSON(t *testing.T, e *echo.Echo, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if token != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func registerAndLogin(t *testing.T, e *echo.Echo, email string) string {
	t.Helper()
	rec := doJSON(t, e, http.MethodPost, "/v1/auth/register", "",
		`{"name":"Test User","email":"`+email+`","password":"hunter22"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("register: status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Access struct {
			Token string `json:"token"`
		} `json:"access"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("register: decode: %v", err)
	}
	return resp.Access.Token
}

func adminToken(t *testing.T) string {
	t.Helper()
	tok, err := utils.NewAccessToken(testSecret, 999, model.RoleAdmin, 15)
	if err != nil {
		t.Fatalf("mint admin token: %v", err)
	}
	return tok.Token
}

func TestHealthz(t *testing.T) {
	e, _ := newTestServer(t)
	rec := doJSON(t, e, http.MethodGet, "/healthz", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestBookThenWaitlistOverHTTP(t *testing.T) {
	e, _ := newTestServer(t)
	alice := registerAndLogin(t, e, "alice@example.com")
	bob := registerAndLogin(t, e, "bob@example.com")

	body := `{"court_id":1,"start":"2026-09-01T10:00:00Z","end":"2026-09-01T11:00:00Z"}`

	rec := doJSON(t, e, http.MethodPost, "/v1/bookings", alice, body)
	if rec.Code != http.StatusCreated {
		t.Fatalf("first booking: status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var out struct {
		Status  string `json:"status"`
		Booking struct {
			ID         uint64 `json:"id"`
			TotalCents int64  `json:"total_cents"`
		} `json:"booking"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Status != "confirmed" || out.Booking.TotalCents != 60000 {
		t.Fatalf("outcome = %+v", out)
	}

	// Same slot from another user lands on the waitlist.
	rec = doJSON(t, e, http.MethodPost, "/v1/bookings", bob, body)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("second booking: status = %d, body = %s", rec.Code, rec.Body.String())
	}

	// Owner can read it back; the other user cannot see it.
	id := "/v1/bookings/" + jsonUint(out.Booking.ID)
	if rec := doJSON(t, e, http.MethodGet, id, alice, ""); rec.Code != http.StatusOK {
		t.Fatalf("owner get: status = %d", rec.Code)
	}
	if rec := doJSON(t, e, http.MethodGet, id, bob, ""); rec.Code != http.StatusNotFound {
		t.Fatalf("non-owner get: status = %d", rec.Code)
	}
}

func TestCancelPromotesOverHTTP(t *testing.T) {
	e, _ := newTestServer(t)
	alice := registerAndLogin(t, e, "alice@example.com")
	bob := registerAndLogin(t, e, "bob@example.com")

	body := `{"court_id":1,"start":"2026-09-01T10:00:00Z","end":"2026-09-01T11:00:00Z"}`
	rec := doJSON(t, e, http.MethodPost, "/v1/bookings", alice, body)
	if rec.Code != http.StatusCreated {
		t.Fatalf("booking: status = %d", rec.Code)
	}
	var out struct {
		Booking struct {
			ID uint64 `json:"id"`
		} `json:"booking"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if rec := doJSON(t, e, http.MethodPost, "/v1/bookings", bob, body); rec.Code != http.StatusAccepted {
		t.Fatalf("waitlist: status = %d", rec.Code)
	}

	rec = doJSON(t, e, http.MethodPost, "/v1/bookings/"+jsonUint(out.Booking.ID)+"/cancel", alice, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("cancel: status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var cres struct {
		Promoted *struct {
			Requester string `json:"requester"`
		} `json:"promoted"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &cres); err != nil {
		t.Fatalf("decode cancel: %v", err)
	}
	if cres.Promoted == nil || cres.Promoted.Requester != "user:2" {
		t.Fatalf("promoted = %+v, want bob", cres.Promoted)
	}
}

func TestPublicQuoteNeedsNoAuth(t *testing.T) {
	e, _ := newTestServer(t)
	rec := doJSON(t, e, http.MethodGet,
		"/v1/quote?court_id=1&start=2026-09-01T10:00:00Z&end=2026-09-01T11:00:00Z", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var res struct {
		TotalCents int64 `json:"total_cents"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if res.TotalCents != 60000 {
		t.Fatalf("total = %d, want 60000", res.TotalCents)
	}
}

func TestAvailabilityReflectsBooking(t *testing.T) {
	e, _ := newTestServer(t)
	alice := registerAndLogin(t, e, "alice@example.com")

	body := `{"court_id":1,"start":"2026-09-01T10:00:00Z","end":"2026-09-01T11:00:00Z","equipment":[{"sku":"RACKET-PRO","quantity":3}]}`
	if rec := doJSON(t, e, http.MethodPost, "/v1/bookings", alice, body); rec.Code != http.StatusCreated {
		t.Fatalf("booking: status = %d, body = %s", rec.Code, rec.Body.String())
	}

	rec := doJSON(t, e, http.MethodGet,
		"/v1/availability?start=2026-09-01T10:00:00Z&end=2026-09-01T11:00:00Z", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("availability: status = %d", rec.Code)
	}
	var res struct {
		Courts    []struct{ ID uint64 }     `json:"courts"`
		Equipment []struct{ Remaining int } `json:"equipment"`
		Coaches   []struct{ Name string }   `json:"coaches"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(res.Courts) != 0 {
		t.Fatalf("court 1 should be busy, got %+v", res.Courts)
	}
	if len(res.Equipment) != 1 || res.Equipment[0].Remaining != 1 {
		t.Fatalf("equipment = %+v, want remaining 1", res.Equipment)
	}
	if len(res.Coaches) != 1 {
		t.Fatalf("coach should be free, got %+v", res.Coaches)
	}
}

func TestAdminRoutesRejectCustomers(t *testing.T) {
	e, _ := newTestServer(t)
	alice := registerAndLogin(t, e, "alice@example.com")

	rec := doJSON(t, e, http.MethodGet, "/v1/admin/courts", alice, "")
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}
	if rec := doJSON(t, e, http.MethodGet, "/v1/admin/courts", "", ""); rec.Code != http.StatusUnauthorized {
		t.Fatalf("no token: status = %d, want 401", rec.Code)
	}
}

func TestAdminCatalogAndRuleCRUD(t *testing.T) {
	e, _ := newTestServer(t)
	admin := adminToken(t)

	rec := doJSON(t, e, http.MethodPost, "/v1/admin/courts", admin,
		`{"name":"Court 2","type":"outdoor","hourly_cents":45000}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create court: status = %d, body = %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, e, http.MethodPost, "/v1/admin/pricing-rules", admin,
		`{"name":"peak","priority":10,"match":{"start":"18:00","end":"22:00"},"modifier":{"kind":"percentage","value":20},"stack_behavior":"additive"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create rule: status = %d, body = %s", rec.Code, rec.Body.String())
	}

	// A rule mutation takes effect on the next quote.
	rec = doJSON(t, e, http.MethodGet,
		"/v1/quote?court_id=1&start=2026-09-01T18:00:00Z&end=2026-09-01T19:00:00Z", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("quote: status = %d", rec.Code)
	}
	var res struct {
		TotalCents int64 `json:"total_cents"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if res.TotalCents != 72000 {
		t.Fatalf("total = %d, want 72000 (base 60000 + 20%%)", res.TotalCents)
	}

	rec = doJSON(t, e, http.MethodPost, "/v1/admin/coaches", admin,
		`{"name":"Sam","hourly_cents":35000}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create coach: status = %d", rec.Code)
	}
	rec = doJSON(t, e, http.MethodDelete, "/v1/admin/pricing-rules/1", admin, "")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete rule: status = %d", rec.Code)
	}
}

func jsonUint(v uint64) string {
	return strconv.FormatUint(v, 10)
}
