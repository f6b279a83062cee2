package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/civickit/municipal-ticketing/internal/domain"
	"github.com/civickit/municipal-ticketing/internal/events"
	"github.com/civickit/municipal-ticketing/internal/observability"
	"github.com/civickit/municipal-ticketing/internal/repository"
)

// EscalationService promotes overdue tickets to the escalated state
// under a per-ticket advisory lock, so concurrent scan workers never
// double-escalate.
type EscalationService struct {
	store      repository.Store
	dispatcher events.Dispatcher
	logger     *zap.Logger
	metrics    *observability.Metrics
}

// EscalationDependencies bundles collaborators.
type EscalationDependencies struct {
	Store      repository.Store
	Dispatcher events.Dispatcher
	Logger     *zap.Logger
	Metrics    *observability.Metrics
}

// NewEscalationService constructs the service.
func NewEscalationService(deps EscalationDependencies) *EscalationService {
	return &EscalationService{
		store:      deps.Store,
		dispatcher: deps.Dispatcher,
		logger:     deps.Logger,
		metrics:    deps.Metrics,
	}
}

// Escalate marks the ticket escalated and reassigns it to the team
// manager when one exists. Returns false without error when the lock
// is contended or the ticket is already past escalation; both are
// steady-state outcomes, not failures. The lock releases when the
// transaction ends.
func (s *EscalationService) Escalate(ctx context.Context, tenantID, ticketID, reason string) (bool, error) {
	var result *ledgerResult
	var escalatedTicket *domain.Ticket
	var oldStatus domain.TicketStatus
	escalated := false

	err := s.store.WithinTx(ctx, func(ctx context.Context, tx repository.Store) error {
		acquired, err := tx.TryTicketLock(ctx, ticketID)
		if err != nil {
			return err
		}
		if !acquired {
			s.recordContention()
			s.logger.Debug("escalation lock contended",
				zap.String("tenant_id", tenantID),
				zap.String("ticket_id", ticketID))
			return nil
		}

		ticket, err := loadTicket(ctx, tx, tenantID, ticketID)
		if err != nil {
			return err
		}
		if ticket.Status != domain.TicketStatusOpen && ticket.Status != domain.TicketStatusInProgress {
			// Already escalated or terminal. Idempotent no-op.
			return nil
		}

		oldStatus = ticket.Status
		now := time.Now()
		ticket.Status = domain.TicketStatusEscalated
		ticket.EscalatedAt = &now
		ticket.EscalationReason = &reason

		manager := s.teamManager(ctx, tx, ticket)
		if manager != nil {
			result, err = applyAssignment(ctx, tx, ticket, manager.team, manager.managerID, domain.AssignedBySystem, domain.ReasonEscalation)
			if err != nil {
				return err
			}
		} else if err := tx.Tickets().Update(ctx, ticket); err != nil {
			return err
		}

		escalatedTicket = ticket
		escalated = true
		return nil
	})
	if err != nil {
		return false, err
	}
	if !escalated {
		return false, nil
	}

	if s.metrics != nil {
		s.metrics.RecordEscalation()
	}
	s.publishEscalated(ctx, escalatedTicket, oldStatus, reason, result)
	return true, nil
}

// BulkEscalate escalates every breached ticket from a scan, isolating
// per-item failures. Returns the count actually escalated; contended
// and already-escalated tickets are excluded.
func (s *EscalationService) BulkEscalate(ctx context.Context, breaches []Breach) int {
	count := 0
	for _, breach := range breaches {
		reason := breachReason(breach)
		ok, err := s.Escalate(ctx, breach.Ticket.TenantID, breach.Ticket.ID, reason)
		if err != nil {
			s.logger.Error("escalation failed",
				zap.String("tenant_id", breach.Ticket.TenantID),
				zap.String("ticket_id", breach.Ticket.ID),
				zap.Error(err))
			continue
		}
		if ok {
			count++
		}
	}
	return count
}

func breachReason(breach Breach) string {
	milestone := "response"
	if breach.Type == BreachResolution {
		milestone = "resolution"
	}
	return fmt.Sprintf("SLA %s deadline missed by %.1f hours", milestone, breach.OverdueHours)
}

type managerTarget struct {
	team      *domain.Team
	managerID *string
}

// teamManager resolves the manager of the ticket's assigned team. A
// missing team or manager logs a warning and never blocks escalation.
func (s *EscalationService) teamManager(ctx context.Context, tx repository.Store, ticket *domain.Ticket) *managerTarget {
	if ticket.TeamID == nil {
		s.logger.Warn("escalating unassigned ticket, no manager to notify",
			zap.String("tenant_id", ticket.TenantID),
			zap.String("ticket_id", ticket.ID))
		return nil
	}
	team, err := tx.Teams().GetByID(ctx, ticket.TenantID, *ticket.TeamID)
	if err != nil {
		s.logger.Warn("assigned team lookup failed during escalation",
			zap.String("tenant_id", ticket.TenantID),
			zap.String("ticket_id", ticket.ID),
			zap.Error(err))
		return nil
	}
	if team.ManagerID == nil {
		s.logger.Warn("assigned team has no manager",
			zap.String("tenant_id", ticket.TenantID),
			zap.String("ticket_id", ticket.ID),
			zap.String("team_id", team.ID))
		return nil
	}
	return &managerTarget{team: team, managerID: team.ManagerID}
}

func (s *EscalationService) recordContention() {
	if s.metrics != nil {
		s.metrics.RecordLockContention()
	}
}

func (s *EscalationService) publishEscalated(ctx context.Context, ticket *domain.Ticket, oldStatus domain.TicketStatus, reason string, result *ledgerResult) {
	if s.dispatcher == nil {
		return
	}
	payload := events.TicketEscalatedPayload{
		OldStatus: oldStatus,
		NewStatus: ticket.Status,
		Reason:    reason,
		Locale:    ticket.Locale,
	}
	if result != nil {
		payload.ReassignedTo = result.assignment.AssignedTo
	}
	event := events.Event{
		ID:          uuid.NewString(),
		Type:        events.EventTicketEscalated,
		TenantID:    ticket.TenantID,
		TicketID:    ticket.ID,
		TrackingKey: ticket.TrackingKey,
		Timestamp:   time.Now(),
		Payload:     payload,
	}
	if err := s.dispatcher.Publish(ctx, event); err != nil {
		s.logger.Warn("event publish failed", zap.String("event_id", event.ID), zap.Error(err))
	}
}
