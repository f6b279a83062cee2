package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/civickit/municipal-ticketing/internal/domain"
	"github.com/civickit/municipal-ticketing/internal/observability"
	"github.com/civickit/municipal-ticketing/internal/repository"
)

// RoutingRadiusKM bounds the spatial match between a ticket location
// and a team's coverage centroid.
const RoutingRadiusKM = 10.0

// RoutingService finds the responsible team for a new ticket.
// Sensitive tickets route to SAPS liaison teams only; everything else
// routes within its municipal category and never to a SAPS team.
type RoutingService struct {
	store   repository.Store
	logger  *zap.Logger
	metrics *observability.Metrics
}

// NewRoutingService constructs the service.
func NewRoutingService(store repository.Store, logger *zap.Logger, metrics *observability.Metrics) *RoutingService {
	return &RoutingService{store: store, logger: logger, metrics: metrics}
}

// Route returns the best-fit team for the ticket, or (nil, nil) when no
// eligible team exists. An unrouted ticket is a routing outcome, not an
// error; the ticket stays durably stored for manual handling.
func (s *RoutingService) Route(ctx context.Context, ticket *domain.Ticket) (*domain.Team, error) {
	if ticket.IsSensitive {
		return s.routeSensitive(ctx, ticket)
	}
	return s.routeMunicipal(ctx, ticket)
}

func (s *RoutingService) routeMunicipal(ctx context.Context, ticket *domain.Ticket) (*domain.Team, error) {
	teams := s.store.Teams()

	if ticket.Location != nil {
		team, err := teams.NearestInCategory(ctx, ticket.TenantID, ticket.Category, *ticket.Location, RoutingRadiusKM)
		if err != nil {
			return nil, err
		}
		if team != nil {
			s.recordOutcome("spatial")
			return s.checked(ticket, team), nil
		}
	}

	team, err := teams.FirstActiveInCategory(ctx, ticket.TenantID, ticket.Category)
	if err != nil {
		return nil, err
	}
	if team == nil {
		s.recordOutcome("none")
		s.logger.Warn("no eligible team for ticket",
			zap.String("tenant_id", ticket.TenantID),
			zap.String("ticket_id", ticket.ID),
			zap.String("category", string(ticket.Category)))
		return nil, nil
	}
	s.recordOutcome("category")
	return s.checked(ticket, team), nil
}

func (s *RoutingService) routeSensitive(ctx context.Context, ticket *domain.Ticket) (*domain.Team, error) {
	teams := s.store.Teams()

	if ticket.Location != nil {
		team, err := teams.NearestSAPS(ctx, ticket.TenantID, *ticket.Location, RoutingRadiusKM)
		if err != nil {
			return nil, err
		}
		if team != nil {
			s.recordOutcome("saps_spatial")
			return s.checked(ticket, team), nil
		}
	}

	team, err := teams.FirstActiveSAPS(ctx, ticket.TenantID)
	if err != nil {
		return nil, err
	}
	if team == nil {
		// A tenant without any SAPS liaison team cannot triage GBV
		// reports at all. Operational gap, not a request failure.
		s.recordOutcome("saps_gap")
		s.logger.Error("no SAPS liaison team configured for tenant",
			zap.String("tenant_id", ticket.TenantID),
			zap.String("ticket_id", ticket.ID))
		return nil, nil
	}
	s.recordOutcome("saps_category")
	return s.checked(ticket, team), nil
}

// checked re-validates the firewall predicate on the selected team.
// The queries already filter on is_saps; this call is the routing-time
// arm of the defense in depth.
func (s *RoutingService) checked(ticket *domain.Ticket, team *domain.Team) *domain.Team {
	if !domain.TeamEligibleFor(ticket, team) {
		s.logger.Error("routing produced ineligible team, discarding",
			zap.String("tenant_id", ticket.TenantID),
			zap.String("ticket_id", ticket.ID),
			zap.String("team_id", team.ID))
		return nil
	}
	return team
}

func (s *RoutingService) recordOutcome(outcome string) {
	if s.metrics != nil {
		s.metrics.RecordRouting(outcome)
	}
}
