package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/civickit/municipal-ticketing/internal/domain"
	"github.com/civickit/municipal-ticketing/internal/events"
	"github.com/civickit/municipal-ticketing/internal/repository"
	apperrors "github.com/civickit/municipal-ticketing/pkg/util"
)

// AssignmentService is the assignment ledger: every assignment and
// reassignment becomes an immutable history row with exactly one
// current row per ticket, flipped and inserted in one transaction.
type AssignmentService struct {
	store      repository.Store
	routing    *RoutingService
	dispatcher events.Dispatcher
	logger     *zap.Logger
}

// AssignmentDependencies bundles collaborators.
type AssignmentDependencies struct {
	Store      repository.Store
	Routing    *RoutingService
	Dispatcher events.Dispatcher
	Logger     *zap.Logger
}

// NewAssignmentService creates the service.
func NewAssignmentService(deps AssignmentDependencies) *AssignmentService {
	return &AssignmentService{
		store:      deps.Store,
		routing:    deps.Routing,
		dispatcher: deps.Dispatcher,
		logger:     deps.Logger,
	}
}

// AssignInput describes one ledger mutation.
type AssignInput struct {
	TenantID    string
	TicketID    string
	TeamID      *string
	AssignedTo  *string
	PerformedBy string
	Reason      domain.AssignmentReason
}

// ledgerResult carries what a committed ledger mutation changed, for
// event publication after the transaction ends.
type ledgerResult struct {
	assignment *domain.Assignment
	ticket     *domain.Ticket
	oldStatus  domain.TicketStatus
}

// Assign writes a new current ledger row for the ticket and updates the
// ticket's team/individual fields. First human pickup of an open ticket
// transitions it to in-progress and stamps first_responded_at once.
func (s *AssignmentService) Assign(ctx context.Context, input AssignInput) (*domain.Assignment, error) {
	var result *ledgerResult
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx repository.Store) error {
		if err := tx.TicketLock(ctx, input.TicketID); err != nil {
			return err
		}
		ticket, err := loadTicket(ctx, tx, input.TenantID, input.TicketID)
		if err != nil {
			return err
		}
		var team *domain.Team
		if input.TeamID != nil {
			team, err = loadTeam(ctx, tx, input.TenantID, *input.TeamID)
			if err != nil {
				return err
			}
		}
		result, err = applyAssignment(ctx, tx, ticket, team, input.AssignedTo, input.PerformedBy, input.Reason)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.publishLedgerEvents(ctx, result)
	return result.assignment, nil
}

// Reassign moves the ticket to another team. The GBV boundary is
// checked before any mutation: a sensitive ticket can only move to a
// SAPS liaison team, and the call fails hard rather than rerouting.
func (s *AssignmentService) Reassign(ctx context.Context, tenantID, ticketID, newTeamID, performedBy string, reason domain.AssignmentReason) (*domain.Assignment, error) {
	var result *ledgerResult
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx repository.Store) error {
		if err := tx.TicketLock(ctx, ticketID); err != nil {
			return err
		}
		ticket, err := loadTicket(ctx, tx, tenantID, ticketID)
		if err != nil {
			return err
		}
		team, err := loadTeam(ctx, tx, tenantID, newTeamID)
		if err != nil {
			return err
		}
		if !domain.TeamEligibleFor(ticket, team) {
			return eligibilityViolation(ticket, team)
		}
		if !team.IsActive {
			return apperrors.NewConflict("team inactive", map[string]any{"team_id": team.ID})
		}
		// Reassignment to a team clears any individual assignee.
		result, err = applyAssignment(ctx, tx, ticket, team, nil, performedBy, reason)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.publishLedgerEvents(ctx, result)
	return result.assignment, nil
}

// AutoRouteAndAssign composes routing and assignment for a new ticket.
// Returns (nil, nil) when routing found no team; the ticket remains
// unassigned and open.
func (s *AssignmentService) AutoRouteAndAssign(ctx context.Context, ticket *domain.Ticket) (*domain.Assignment, error) {
	team, err := s.routing.Route(ctx, ticket)
	if err != nil {
		return nil, err
	}
	if team == nil {
		return nil, nil
	}
	return s.Assign(ctx, AssignInput{
		TenantID:    ticket.TenantID,
		TicketID:    ticket.ID,
		TeamID:      &team.ID,
		PerformedBy: domain.AssignedBySystem,
		Reason:      domain.ReasonAutoRoute,
	})
}

// History returns the ticket's assignment rows, newest first. The
// ledger of a sensitive ticket is subject to the same read gate as the
// ticket itself.
func (s *AssignmentService) History(ctx context.Context, tenantID, ticketID string, role domain.OperatorRole) ([]domain.Assignment, error) {
	ticket, err := loadTicket(ctx, s.store, tenantID, ticketID)
	if err != nil {
		return nil, err
	}
	if ticket.IsSensitive && !role.CanViewSensitive() {
		// Indistinguishable from a missing ticket.
		return nil, apperrors.NewNotFound("ticket", map[string]any{"ticket_id": ticketID})
	}
	return s.store.Assignments().ListByTicket(ctx, tenantID, ticketID)
}

// applyAssignment performs the ledger mutation inside an open
// transaction: eligibility check, flip prior current rows, insert the
// new current row, update the ticket. Shared by assignment and
// escalation paths.
func applyAssignment(ctx context.Context, tx repository.Store, ticket *domain.Ticket, team *domain.Team, assignedTo *string, performedBy string, reason domain.AssignmentReason) (*ledgerResult, error) {
	if team != nil && !domain.TeamEligibleFor(ticket, team) {
		return nil, eligibilityViolation(ticket, team)
	}

	if err := tx.Assignments().ClearCurrent(ctx, ticket.TenantID, ticket.ID); err != nil {
		return nil, err
	}

	assignment := &domain.Assignment{
		TenantID:   ticket.TenantID,
		TicketID:   ticket.ID,
		AssignedTo: assignedTo,
		AssignedBy: performedBy,
		Reason:     reason,
		IsCurrent:  true,
	}
	if team != nil {
		assignment.TeamID = &team.ID
	}
	if err := tx.Assignments().Insert(ctx, assignment); err != nil {
		return nil, err
	}

	oldStatus := ticket.Status
	if team != nil {
		ticket.TeamID = &team.ID
	}
	ticket.AssignedTo = assignedTo
	if assignedTo != nil && ticket.Status == domain.TicketStatusOpen {
		ticket.Status = domain.TicketStatusInProgress
		if ticket.FirstRespondedAt == nil {
			now := time.Now()
			ticket.FirstRespondedAt = &now
		}
	}
	if err := tx.Tickets().Update(ctx, ticket); err != nil {
		return nil, err
	}

	return &ledgerResult{assignment: assignment, ticket: ticket, oldStatus: oldStatus}, nil
}

func eligibilityViolation(ticket *domain.Ticket, team *domain.Team) error {
	if ticket.IsSensitive {
		return apperrors.NewPolicyViolation(
			"sensitive tickets may only be assigned to SAPS liaison teams",
			map[string]any{"ticket_id": ticket.ID, "team_id": team.ID})
	}
	return apperrors.NewPolicyViolation(
		"SAPS liaison teams may only receive sensitive tickets",
		map[string]any{"ticket_id": ticket.ID, "team_id": team.ID})
}

func loadTicket(ctx context.Context, store repository.Store, tenantID, ticketID string) (*domain.Ticket, error) {
	ticket, err := store.Tickets().GetByID(ctx, tenantID, ticketID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("ticket", map[string]any{"ticket_id": ticketID})
		}
		return nil, err
	}
	return ticket, nil
}

func loadTeam(ctx context.Context, store repository.Store, tenantID, teamID string) (*domain.Team, error) {
	team, err := store.Teams().GetByID(ctx, tenantID, teamID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("team", map[string]any{"team_id": teamID})
		}
		return nil, err
	}
	return team, nil
}

func (s *AssignmentService) publishLedgerEvents(ctx context.Context, result *ledgerResult) {
	if s.dispatcher == nil || result == nil {
		return
	}
	ticket := result.ticket
	s.publish(ctx, events.Event{
		ID:          uuid.NewString(),
		Type:        events.EventTicketAssigned,
		TenantID:    ticket.TenantID,
		TicketID:    ticket.ID,
		TrackingKey: ticket.TrackingKey,
		Timestamp:   time.Now(),
		Payload: events.TicketAssignedPayload{
			TeamID:     result.assignment.TeamID,
			AssignedTo: result.assignment.AssignedTo,
			AssignedBy: result.assignment.AssignedBy,
			Reason:     result.assignment.Reason,
		},
	})
	if result.oldStatus != ticket.Status {
		s.publish(ctx, events.Event{
			ID:          uuid.NewString(),
			Type:        events.EventTicketStatusChanged,
			TenantID:    ticket.TenantID,
			TicketID:    ticket.ID,
			TrackingKey: ticket.TrackingKey,
			Timestamp:   time.Now(),
			Payload: events.TicketStatusChangedPayload{
				OldStatus: result.oldStatus,
				NewStatus: ticket.Status,
				Locale:    ticket.Locale,
			},
		})
	}
}

func (s *AssignmentService) publish(ctx context.Context, event events.Event) {
	// Notification delivery never blocks or rolls back a mutation.
	if err := s.dispatcher.Publish(ctx, event); err != nil {
		s.logger.Warn("event publish failed", zap.String("event_id", event.ID), zap.Error(err))
	}
}
