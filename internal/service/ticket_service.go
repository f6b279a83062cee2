package service

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/civickit/municipal-ticketing/internal/domain"
	"github.com/civickit/municipal-ticketing/internal/events"
	"github.com/civickit/municipal-ticketing/internal/repository"
	apperrors "github.com/civickit/municipal-ticketing/pkg/util"
)

// TicketService is the intake-facing surface: create a ticket, route
// it, stamp its SLA deadlines, and expose the read paths. Routing or
// escalation failures are never visible to the citizen; creation
// always returns a tracking key.
type TicketService struct {
	store       repository.Store
	assignments *AssignmentService
	sla         *SLAService
	dispatcher  events.Dispatcher
	logger      *zap.Logger
}

// TicketDependencies bundles collaborators.
type TicketDependencies struct {
	Store       repository.Store
	Assignments *AssignmentService
	SLA         *SLAService
	Dispatcher  events.Dispatcher
	Logger      *zap.Logger
}

// NewTicketService constructs the service.
func NewTicketService(deps TicketDependencies) *TicketService {
	return &TicketService{
		store:       deps.Store,
		assignments: deps.Assignments,
		sla:         deps.SLA,
		dispatcher:  deps.Dispatcher,
		logger:      deps.Logger,
	}
}

// TicketCreateInput describes ticket creation payload from the intake
// collaborator.
type TicketCreateInput struct {
	TenantID    string
	CreatedBy   string
	Category    domain.TicketCategory
	Description string
	Severity    domain.TicketSeverity
	Location    *domain.Point
	Locale      string
}

// CreateTicket persists a new ticket, sets SLA deadlines (municipal
// only), and auto-routes it. An unrouted ticket still creates
// successfully; the caller gets a tracking key either way.
func (s *TicketService) CreateTicket(ctx context.Context, input TicketCreateInput) (*domain.Ticket, error) {
	if strings.TrimSpace(input.TenantID) == "" {
		return nil, apperrors.NewValidationError("tenant required", nil)
	}
	ticket := domain.NewTicket(input.TenantID, input.CreatedBy, input.Category, input.Description)
	ticket.TrackingKey = generateTrackingKey()
	ticket.Location = input.Location
	ticket.Locale = input.Locale
	if input.Severity != "" {
		ticket.Severity = input.Severity
	}

	if err := s.store.Tickets().Create(ctx, ticket); err != nil {
		return nil, err
	}

	if err := s.sla.SetDeadlines(ctx, ticket); err != nil {
		return nil, err
	}

	s.publishCreated(ctx, ticket)

	if _, err := s.assignments.AutoRouteAndAssign(ctx, ticket); err != nil {
		// The ticket is stored and trackable; routing problems are
		// operational, not citizen-facing.
		s.logger.Error("auto-route failed",
			zap.String("tenant_id", ticket.TenantID),
			zap.String("ticket_id", ticket.ID),
			zap.Error(err))
	}
	return ticket, nil
}

// GetTicket loads a ticket, gating sensitive tickets behind the SAPS
// liaison role.
func (s *TicketService) GetTicket(ctx context.Context, tenantID, ticketID string, role domain.OperatorRole) (*domain.Ticket, error) {
	ticket, err := loadTicket(ctx, s.store, tenantID, ticketID)
	if err != nil {
		return nil, err
	}
	if ticket.IsSensitive && !role.CanViewSensitive() {
		// Indistinguishable from a missing ticket.
		return nil, apperrors.NewNotFound("ticket", map[string]any{"ticket_id": ticketID})
	}
	return ticket, nil
}

// TrackTicket is the citizen status view: tracking key in, coarse
// status out. Sensitive tickets resolve for their own reporter only
// through this keyed lookup, never through listings.
func (s *TicketService) TrackTicket(ctx context.Context, tenantID, trackingKey string) (*domain.Ticket, error) {
	ticket, err := s.store.Tickets().GetByTrackingKey(ctx, tenantID, trackingKey)
	if err != nil {
		if apperrors.IsNotFound(err) {
			return nil, apperrors.NewNotFound("ticket", map[string]any{"tracking_key": trackingKey})
		}
		return nil, err
	}
	return ticket, nil
}

// ListTickets returns the operational view. Sensitive tickets are
// excluded at the storage layer regardless of filter.
func (s *TicketService) ListTickets(ctx context.Context, filter repository.TicketFilter) ([]domain.Ticket, error) {
	return s.store.Tickets().ListOperational(ctx, filter)
}

// ListSensitiveTickets returns GBV tickets for SAPS liaison users.
func (s *TicketService) ListSensitiveTickets(ctx context.Context, tenantID string, role domain.OperatorRole, limit, offset int) ([]domain.Ticket, error) {
	if !role.CanViewSensitive() {
		return nil, apperrors.NewForbidden("SAPS liaison role required")
	}
	return s.store.Tickets().ListSensitive(ctx, tenantID, limit, offset)
}

// CloseTicket applies a terminal transition performed by an operator.
// Non-liaison operators cannot close sensitive tickets; the attempt
// reads as a missing ticket.
func (s *TicketService) CloseTicket(ctx context.Context, tenantID, ticketID string, target domain.TicketStatus, performedBy string, role domain.OperatorRole) (*domain.Ticket, error) {
	if !target.Terminal() {
		return nil, apperrors.NewValidationError("target status must be RESOLVED or CLOSED", nil)
	}
	var ticket *domain.Ticket
	var oldStatus domain.TicketStatus
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx repository.Store) error {
		if err := tx.TicketLock(ctx, ticketID); err != nil {
			return err
		}
		loaded, err := loadTicket(ctx, tx, tenantID, ticketID)
		if err != nil {
			return err
		}
		if loaded.IsSensitive && !role.CanViewSensitive() {
			return apperrors.NewNotFound("ticket", map[string]any{"ticket_id": ticketID})
		}
		if loaded.Status == target {
			ticket = loaded
			oldStatus = loaded.Status
			return nil
		}
		oldStatus = loaded.Status
		now := time.Now()
		loaded.Status = target
		if target == domain.TicketStatusResolved && loaded.ResolvedAt == nil {
			loaded.ResolvedAt = &now
		}
		if err := tx.Tickets().Update(ctx, loaded); err != nil {
			return err
		}
		ticket = loaded
		return nil
	})
	if err != nil {
		return nil, err
	}
	if oldStatus != ticket.Status {
		s.publishStatusChanged(ctx, ticket, oldStatus)
	}
	return ticket, nil
}

func generateTrackingKey() string {
	return "SR-" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:10])
}

func (s *TicketService) publishCreated(ctx context.Context, ticket *domain.Ticket) {
	if s.dispatcher == nil {
		return
	}
	event := events.Event{
		ID:          uuid.NewString(),
		Type:        events.EventTicketCreated,
		TenantID:    ticket.TenantID,
		TicketID:    ticket.ID,
		TrackingKey: ticket.TrackingKey,
		Timestamp:   time.Now(),
		Payload: events.TicketCreatedPayload{
			Category:  ticket.Category,
			Severity:  ticket.Severity,
			Sensitive: ticket.IsSensitive,
			Locale:    ticket.Locale,
		},
	}
	if err := s.dispatcher.Publish(ctx, event); err != nil {
		s.logger.Warn("event publish failed", zap.String("event_id", event.ID), zap.Error(err))
	}
}

func (s *TicketService) publishStatusChanged(ctx context.Context, ticket *domain.Ticket, oldStatus domain.TicketStatus) {
	if s.dispatcher == nil {
		return
	}
	event := events.Event{
		ID:          uuid.NewString(),
		Type:        events.EventTicketStatusChanged,
		TenantID:    ticket.TenantID,
		TicketID:    ticket.ID,
		TrackingKey: ticket.TrackingKey,
		Timestamp:   time.Now(),
		Payload: events.TicketStatusChangedPayload{
			OldStatus: oldStatus,
			NewStatus: ticket.Status,
			Locale:    ticket.Locale,
		},
	}
	if err := s.dispatcher.Publish(ctx, event); err != nil {
		s.logger.Warn("event publish failed", zap.String("event_id", event.ID), zap.Error(err))
	}
}
