package events

import (
	"time"

	"github.com/civickit/municipal-ticketing/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventTicketCreated       EventType = "ticket_created"
	EventTicketAssigned      EventType = "ticket_assigned"
	EventTicketStatusChanged EventType = "ticket_status_changed"
	EventTicketEscalated     EventType = "ticket_escalated"
)

// Event represents a domain event emitted by services. The tracking
// key rides along so notification collaborators never need a second
// lookup.
type Event struct {
	ID          string      `json:"id"`
	Type        EventType   `json:"type"`
	TenantID    string      `json:"tenant_id"`
	TicketID    string      `json:"ticket_id"`
	TrackingKey string      `json:"tracking_key"`
	Timestamp   time.Time   `json:"timestamp"`
	Payload     interface{} `json:"payload"`
}

// TicketCreatedPayload payload.
type TicketCreatedPayload struct {
	Category  domain.TicketCategory `json:"category"`
	Severity  domain.TicketSeverity `json:"severity"`
	Sensitive bool                  `json:"sensitive"`
	Locale    string                `json:"locale,omitempty"`
}

// TicketAssignedPayload payload.
type TicketAssignedPayload struct {
	TeamID     *string                 `json:"team_id,omitempty"`
	AssignedTo *string                 `json:"assigned_to,omitempty"`
	AssignedBy string                  `json:"assigned_by"`
	Reason     domain.AssignmentReason `json:"reason"`
}

// TicketStatusChangedPayload payload.
type TicketStatusChangedPayload struct {
	OldStatus domain.TicketStatus `json:"old_status"`
	NewStatus domain.TicketStatus `json:"new_status"`
	Locale    string              `json:"locale,omitempty"`
}

// TicketEscalatedPayload payload.
type TicketEscalatedPayload struct {
	OldStatus    domain.TicketStatus `json:"old_status"`
	NewStatus    domain.TicketStatus `json:"new_status"`
	Reason       string              `json:"reason"`
	ReassignedTo *string             `json:"reassigned_to,omitempty"`
	Locale       string              `json:"locale,omitempty"`
}
