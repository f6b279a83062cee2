package dto

import (
	"time"

	"github.com/civickit/municipal-ticketing/internal/domain"
	"github.com/civickit/municipal-ticketing/internal/service"
)

// CreateTicketRequest is the intake payload.
type CreateTicketRequest struct {
	Category    string   `json:"category"`
	Description string   `json:"description"`
	Severity    string   `json:"severity,omitempty"`
	Lat         *float64 `json:"lat,omitempty"`
	Lng         *float64 `json:"lng,omitempty"`
	Locale      string   `json:"locale,omitempty"`
}

// CreateTicketResponse confirms creation. Citizens always get a
// tracking key, routed or not.
type CreateTicketResponse struct {
	TicketID    string `json:"ticket_id"`
	TrackingKey string `json:"tracking_key"`
	Status      string `json:"status"`
}

// ReassignRequest moves a ticket to another team.
type ReassignRequest struct {
	TeamID string `json:"team_id"`
	Reason string `json:"reason,omitempty"`
}

// EscalateRequest escalates a ticket manually.
type EscalateRequest struct {
	Reason string `json:"reason"`
}

// CloseRequest applies a terminal status.
type CloseRequest struct {
	Status string `json:"status"`
}

// TicketResponse is the operator view of a ticket.
type TicketResponse struct {
	ID                    string     `json:"id"`
	TrackingKey           string     `json:"tracking_key"`
	Category              string     `json:"category"`
	Description           string     `json:"description"`
	Severity              string     `json:"severity"`
	Status                string     `json:"status"`
	IsSensitive           bool       `json:"is_sensitive"`
	TeamID                *string    `json:"team_id,omitempty"`
	AssignedTo            *string    `json:"assigned_to,omitempty"`
	Lat                   *float64   `json:"lat,omitempty"`
	Lng                   *float64   `json:"lng,omitempty"`
	CreatedAt             time.Time  `json:"created_at"`
	FirstRespondedAt      *time.Time `json:"first_responded_at,omitempty"`
	ResolvedAt            *time.Time `json:"resolved_at,omitempty"`
	EscalatedAt           *time.Time `json:"escalated_at,omitempty"`
	EscalationReason      *string    `json:"escalation_reason,omitempty"`
	SLAResponseDeadline   *time.Time `json:"sla_response_deadline,omitempty"`
	SLAResolutionDeadline *time.Time `json:"sla_resolution_deadline,omitempty"`
}

// TrackResponse is the citizen status view: coarse state only.
type TrackResponse struct {
	TrackingKey string    `json:"tracking_key"`
	Status      string    `json:"status"`
	Category    string    `json:"category"`
	CreatedAt   time.Time `json:"created_at"`
}

// AssignmentResponse is one ledger row.
type AssignmentResponse struct {
	ID         string    `json:"id"`
	TeamID     *string   `json:"team_id,omitempty"`
	AssignedTo *string   `json:"assigned_to,omitempty"`
	AssignedBy string    `json:"assigned_by"`
	Reason     string    `json:"reason"`
	IsCurrent  bool      `json:"is_current"`
	CreatedAt  time.Time `json:"created_at"`
}

// BreachResponse is one scan finding.
type BreachResponse struct {
	TicketID     string  `json:"ticket_id"`
	TrackingKey  string  `json:"tracking_key"`
	BreachType   string  `json:"breach_type"`
	OverdueHours float64 `json:"overdue_hours"`
}

// FromTicket maps a domain ticket.
func FromTicket(ticket *domain.Ticket) TicketResponse {
	resp := TicketResponse{
		ID:                    ticket.ID,
		TrackingKey:           ticket.TrackingKey,
		Category:              string(ticket.Category),
		Description:           ticket.Description,
		Severity:              string(ticket.Severity),
		Status:                string(ticket.Status),
		IsSensitive:           ticket.IsSensitive,
		TeamID:                ticket.TeamID,
		AssignedTo:            ticket.AssignedTo,
		CreatedAt:             ticket.CreatedAt,
		FirstRespondedAt:      ticket.FirstRespondedAt,
		ResolvedAt:            ticket.ResolvedAt,
		EscalatedAt:           ticket.EscalatedAt,
		EscalationReason:      ticket.EscalationReason,
		SLAResponseDeadline:   ticket.SLAResponseDeadline,
		SLAResolutionDeadline: ticket.SLAResolutionDeadline,
	}
	if ticket.Location != nil {
		lat, lng := ticket.Location.Lat, ticket.Location.Lng
		resp.Lat, resp.Lng = &lat, &lng
	}
	return resp
}

// FromTickets maps a slice of domain tickets.
func FromTickets(tickets []domain.Ticket) []TicketResponse {
	result := make([]TicketResponse, 0, len(tickets))
	for i := range tickets {
		result = append(result, FromTicket(&tickets[i]))
	}
	return result
}

// FromAssignment maps a ledger row.
func FromAssignment(assignment *domain.Assignment) AssignmentResponse {
	return AssignmentResponse{
		ID:         assignment.ID,
		TeamID:     assignment.TeamID,
		AssignedTo: assignment.AssignedTo,
		AssignedBy: assignment.AssignedBy,
		Reason:     string(assignment.Reason),
		IsCurrent:  assignment.IsCurrent,
		CreatedAt:  assignment.CreatedAt,
	}
}

// FromBreaches maps scan findings.
func FromBreaches(breaches []service.Breach) []BreachResponse {
	result := make([]BreachResponse, 0, len(breaches))
	for _, breach := range breaches {
		result = append(result, BreachResponse{
			TicketID:     breach.Ticket.ID,
			TrackingKey:  breach.Ticket.TrackingKey,
			BreachType:   string(breach.Type),
			OverdueHours: breach.OverdueHours,
		})
	}
	return result
}
