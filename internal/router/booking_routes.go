package router

import (
	"github.com/labstack/echo/v4"

	"github.com/courtbook/court-booking/internal/handler"
	"github.com/courtbook/court-booking/internal/middleware"
	"github.com/courtbook/court-booking/internal/model"
)

// RegisterBooking registers the booking endpoints under /v1. All routes
// require a valid JWT; admins may also book on their own behalf, so both
// roles are accepted. Customers can price a request without committing,
// create bookings, view or cancel their own bookings and list their
// history.
func RegisterBooking(e *echo.Echo, h *handler.BookingHandler, jwtSecret string) {
	g := e.Group(
		"/v1",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(model.RoleCustomer, model.RoleAdmin),
	)
	// Quote prices a request against the current rule set without reserving
	// anything.
	g.POST("/quote", h.Quote)
	g.POST("/bookings", h.Book)
	g.GET("/bookings/:id", h.Get)
	g.POST("/bookings/:id/cancel", h.Cancel)
	g.DELETE("/bookings/:id", h.Cancel) // alias for REST-style clients
	g.GET("/my-bookings", h.MyBookings)
}
