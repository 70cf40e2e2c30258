package router // package router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4"

	"github.com/courtbook/court-booking/internal/handler"
	"github.com/courtbook/court-booking/internal/middleware"
)

// RegisterRoutes registers routes that do not require authentication on the
// provided Echo instance. Currently it exposes only a health check.
func RegisterRoutes(e *echo.Echo) {
	// Load balancers and monitoring probes hit this endpoint.
	e.GET("/healthz", handler.Health)
}

// RegisterAuth registers all authentication-related routes and applies the
// necessary middleware. Unauthenticated operations live under /v1/auth,
// while protected endpoints live under /v1.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, jwtSecret string) {
	g := e.Group("/v1/auth")
	g.POST("/register", a.Register)
	g.POST("/login", a.Login)
	// Refresh rotates the refresh token: the presented token is revoked and a
	// new pair is issued.
	g.POST("/refresh", a.Refresh)
	// Logout accepts a refresh token in the body and revokes it. No JWT is
	// required so that clients with an expired access token can still end a
	// session.
	g.POST("/logout", a.Logout)

	auth := e.Group("/v1", middleware.JWTAuth(jwtSecret))
	auth.GET("/me", a.Me)
	// Revokes every refresh token for the authenticated user.
	auth.POST("/logout-all", a.LogoutAll)
}

// RegisterPublic registers unauthenticated browse endpoints: the bookable
// catalog (courts, equipment, coaches) and the availability window scan.
// These routes apply no JWT or role middleware so that guests can explore
// what can be booked before creating an account.
func RegisterPublic(e *echo.Echo, av *handler.AvailabilityHandler, b *handler.BookingHandler) {
	e.GET("/v1/courts", av.ListCourts)
	e.GET("/v1/equipment", av.ListEquipment)
	e.GET("/v1/coaches", av.ListCoaches)
	// Availability for an explicit time window passed as ?start=...&end=...
	// (RFC 3339). Returns free courts, remaining equipment quantities and
	// free coaches for that window.
	e.GET("/v1/availability", av.Window)
	// Half-hour slot grid for one day.
	e.GET("/v1/slots/:date", av.SlotGrid)
	// Guests can price a court and window without an account.
	e.GET("/v1/quote", b.PublicQuote)
}
