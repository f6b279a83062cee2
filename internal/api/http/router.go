package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/civickit/municipal-ticketing/internal/api/http/handlers"
	"github.com/civickit/municipal-ticketing/internal/auth"
	"github.com/civickit/municipal-ticketing/internal/domain"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Tickets        *handlers.TicketsHandler
	Ops            *handlers.OpsHandler
	AuthMiddleware *auth.AuthMiddleware
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)

	api := app.Group("/api/v1", cfg.AuthMiddleware.Handle, auth.RequireAuthenticated())

	api.Post("/tickets", cfg.Tickets.Create)
	api.Get("/tickets/track/:key", cfg.Tickets.Track)

	operator := api.Group("", auth.RequireOperatorRole())
	operator.Get("/tickets", cfg.Tickets.List)
	operator.Get("/tickets/sensitive", cfg.Tickets.ListSensitive)
	operator.Get("/tickets/:id", cfg.Tickets.Get)
	operator.Get("/tickets/:id/assignments", cfg.Tickets.History)
	operator.Post("/tickets/:id/reassign", cfg.Tickets.Reassign)
	operator.Post("/tickets/:id/escalate", cfg.Tickets.Escalate)
	operator.Post("/tickets/:id/close", cfg.Tickets.Close)

	admin := api.Group("/ops", auth.RequireOperatorRole(domain.RoleAdmin))
	admin.Get("/sla-breaches", cfg.Ops.Breaches)
	admin.Post("/sla-scan", cfg.Ops.TriggerScan)
}
