package handlers

import (
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/civickit/municipal-ticketing/internal/api/dto"
	"github.com/civickit/municipal-ticketing/internal/auth"
	"github.com/civickit/municipal-ticketing/internal/domain"
	"github.com/civickit/municipal-ticketing/internal/repository"
	"github.com/civickit/municipal-ticketing/internal/service"
	apperrors "github.com/civickit/municipal-ticketing/pkg/util"
)

// TicketsHandler exposes the ticket lifecycle engine over HTTP.
type TicketsHandler struct {
	tickets     *service.TicketService
	assignments *service.AssignmentService
	escalations *service.EscalationService
}

// NewTicketsHandler returns a new handler instance.
func NewTicketsHandler(tickets *service.TicketService, assignments *service.AssignmentService, escalations *service.EscalationService) *TicketsHandler {
	return &TicketsHandler{tickets: tickets, assignments: assignments, escalations: escalations}
}

// Create files a new service request and auto-routes it.
func (h *TicketsHandler) Create(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}

	var req dto.CreateTicketRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid request body", nil)
	}
	category, ok := domain.ParseCategory(req.Category)
	if !ok {
		return apperrors.NewValidationError("unknown category", map[string]any{"category": req.Category})
	}

	input := service.TicketCreateInput{
		TenantID:    principal.TenantID,
		CreatedBy:   principal.SubjectID,
		Category:    category,
		Description: req.Description,
		Severity:    domain.TicketSeverity(req.Severity),
		Locale:      req.Locale,
	}
	if req.Lat != nil && req.Lng != nil {
		input.Location = &domain.Point{Lat: *req.Lat, Lng: *req.Lng}
	}

	ticket, err := h.tickets.CreateTicket(c.UserContext(), input)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(dto.CreateTicketResponse{
		TicketID:    ticket.ID,
		TrackingKey: ticket.TrackingKey,
		Status:      string(ticket.Status),
	})
}

// Track returns the citizen status view for a tracking key.
func (h *TicketsHandler) Track(c *fiber.Ctx) error {
	principal, _ := auth.PrincipalFromContext(c)
	ticket, err := h.tickets.TrackTicket(c.UserContext(), principal.TenantID, c.Params("key"))
	if err != nil {
		return err
	}
	return c.JSON(dto.TrackResponse{
		TrackingKey: ticket.TrackingKey,
		Status:      string(ticket.Status),
		Category:    string(ticket.Category),
		CreatedAt:   ticket.CreatedAt,
	})
}

// Get returns one ticket for operators.
func (h *TicketsHandler) Get(c *fiber.Ctx) error {
	principal, _ := auth.PrincipalFromContext(c)
	ticket, err := h.tickets.GetTicket(c.UserContext(), principal.TenantID, c.Params("id"), principal.Role)
	if err != nil {
		return err
	}
	return c.JSON(dto.FromTicket(ticket))
}

// List returns the operational (never sensitive) ticket listing.
func (h *TicketsHandler) List(c *fiber.Ctx) error {
	principal, _ := auth.PrincipalFromContext(c)

	filter := repository.TicketFilter{
		TenantID: principal.TenantID,
		Limit:    queryInt(c, "limit", 20),
		Offset:   queryInt(c, "offset", 0),
	}
	if raw := c.Query("category"); raw != "" {
		category, ok := domain.ParseCategory(raw)
		if !ok {
			return apperrors.NewValidationError("unknown category", map[string]any{"category": raw})
		}
		filter.Category = &category
	}
	if raw := c.Query("status"); raw != "" {
		filter.Statuses = []domain.TicketStatus{domain.TicketStatus(raw)}
	}
	if raw := c.Query("team_id"); raw != "" {
		filter.TeamID = &raw
	}

	tickets, err := h.tickets.ListTickets(c.UserContext(), filter)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"tickets": dto.FromTickets(tickets)})
}

// ListSensitive returns GBV tickets; SAPS liaison role only.
func (h *TicketsHandler) ListSensitive(c *fiber.Ctx) error {
	principal, _ := auth.PrincipalFromContext(c)
	tickets, err := h.tickets.ListSensitiveTickets(c.UserContext(), principal.TenantID, principal.Role,
		queryInt(c, "limit", 20), queryInt(c, "offset", 0))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"tickets": dto.FromTickets(tickets)})
}

// History returns the assignment ledger for a ticket, newest first.
func (h *TicketsHandler) History(c *fiber.Ctx) error {
	principal, _ := auth.PrincipalFromContext(c)
	history, err := h.assignments.History(c.UserContext(), principal.TenantID, c.Params("id"), principal.Role)
	if err != nil {
		return err
	}
	result := make([]dto.AssignmentResponse, 0, len(history))
	for i := range history {
		result = append(result, dto.FromAssignment(&history[i]))
	}
	return c.JSON(fiber.Map{"assignments": result})
}

// Reassign moves the ticket to another team. GBV boundary violations
// come back as POLICY_VIOLATION with the constraint named.
func (h *TicketsHandler) Reassign(c *fiber.Ctx) error {
	principal, _ := auth.PrincipalFromContext(c)

	var req dto.ReassignRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid request body", nil)
	}
	if req.TeamID == "" {
		return apperrors.NewValidationError("team_id required", nil)
	}

	assignment, err := h.assignments.Reassign(c.UserContext(), principal.TenantID, c.Params("id"),
		req.TeamID, principal.SubjectID, domain.ReasonManual)
	if err != nil {
		return err
	}
	return c.JSON(dto.FromAssignment(assignment))
}

// Escalate escalates a ticket manually.
func (h *TicketsHandler) Escalate(c *fiber.Ctx) error {
	principal, _ := auth.PrincipalFromContext(c)

	var req dto.EscalateRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid request body", nil)
	}
	if req.Reason == "" {
		return apperrors.NewValidationError("reason required", nil)
	}

	escalated, err := h.escalations.Escalate(c.UserContext(), principal.TenantID, c.Params("id"), req.Reason)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"escalated": escalated})
}

// Close applies a terminal status transition.
func (h *TicketsHandler) Close(c *fiber.Ctx) error {
	principal, _ := auth.PrincipalFromContext(c)

	var req dto.CloseRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid request body", nil)
	}

	ticket, err := h.tickets.CloseTicket(c.UserContext(), principal.TenantID, c.Params("id"),
		domain.TicketStatus(req.Status), principal.SubjectID, principal.Role)
	if err != nil {
		return err
	}
	return c.JSON(dto.FromTicket(ticket))
}

func queryInt(c *fiber.Ctx, key string, fallback int) int {
	raw := c.Query(key)
	if raw == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return parsed
}
