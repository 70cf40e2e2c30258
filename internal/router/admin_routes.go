package router // router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4"

	"github.com/courtbook/court-booking/internal/handler"
	"github.com/courtbook/court-booking/internal/middleware"
	"github.com/courtbook/court-booking/internal/model"
)

// RegisterAdmin registers admin-scoped endpoints under /v1/admin.
// All routes require a valid JWT and the admin role.
func RegisterAdmin(e *echo.Echo, cat *handler.AdminCatalogHandler, rules *handler.AdminRuleHandler, book *handler.BookingHandler, jwtSecret string) {
	g := e.Group(
		"/v1/admin",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(model.RoleAdmin),
	)

	// ---- Courts ----
	g.GET("/courts", cat.ListCourts)
	g.POST("/courts", cat.CreateCourt)
	g.PUT("/courts/:id", cat.UpdateCourt)
	g.PATCH("/courts/:id", cat.UpdateCourt)
	g.DELETE("/courts/:id", cat.DeleteCourt)

	// ---- Equipment ----
	g.GET("/equipment", cat.ListEquipment)
	g.POST("/equipment", cat.CreateEquipment)
	g.PUT("/equipment/:id", cat.UpdateEquipment)
	g.PATCH("/equipment/:id", cat.UpdateEquipment)
	g.DELETE("/equipment/:id", cat.DeleteEquipment)

	// ---- Coaches ----
	g.GET("/coaches", cat.ListCoaches)
	g.POST("/coaches", cat.CreateCoach)
	g.PUT("/coaches/:id", cat.UpdateCoach)
	g.PATCH("/coaches/:id", cat.UpdateCoach)
	g.DELETE("/coaches/:id", cat.DeleteCoach)

	// ---- Pricing rules ----
	g.GET("/pricing-rules", rules.List)
	g.POST("/pricing-rules", rules.Create)
	g.PUT("/pricing-rules/:id", rules.Update)
	g.PATCH("/pricing-rules/:id", rules.Update)
	g.DELETE("/pricing-rules/:id", rules.Delete)

	// ---- Bookings ----
	// Forced release: cancels any booking and promotes the waitlist head.
	g.POST("/bookings/:id/release", book.Release)
	g.GET("/bookings/:id/audit", cat.BookingAudit)
}
