package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/civickit/municipal-ticketing/internal/domain"
	"github.com/civickit/municipal-ticketing/internal/repository"
)

// BreachType distinguishes which SLA milestone was missed.
type BreachType string

const (
	BreachResponse   BreachType = "RESPONSE_BREACH"
	BreachResolution BreachType = "RESOLUTION_BREACH"
)

// Breach describes one overdue ticket found by a scan. Descriptor
// only; the SLA calculator never mutates tickets.
type Breach struct {
	Ticket       domain.Ticket
	Type         BreachType
	OverdueHours float64
}

// WarningType distinguishes which deadline window is nearly elapsed.
type WarningType string

const (
	WarningResponse   WarningType = "RESPONSE_WARNING"
	WarningResolution WarningType = "RESOLUTION_WARNING"
)

// Warning describes a ticket approaching an SLA deadline.
type Warning struct {
	Ticket     domain.Ticket
	Type       WarningType
	ElapsedPct float64
}

// ConfigCache memoizes effective SLA configs for the duration of one
// scan. Each scan builds its own cache; concurrent scans never share
// one.
type ConfigCache struct {
	entries map[string]*domain.SLAConfig
}

// NewConfigCache creates an empty per-scan cache.
func NewConfigCache() *ConfigCache {
	return &ConfigCache{entries: make(map[string]*domain.SLAConfig)}
}

func cacheKey(tenantID string, category domain.TicketCategory) string {
	return tenantID + "|" + string(category)
}

// SLAService computes deadlines and scans for breached or
// near-breached tickets.
type SLAService struct {
	store  repository.Store
	logger *zap.Logger
	now    func() time.Time
}

// NewSLAService constructs the service.
func NewSLAService(store repository.Store, logger *zap.Logger) *SLAService {
	return &SLAService{store: store, logger: logger, now: time.Now}
}

// EffectiveConfig resolves the SLA config for a tenant and category:
// exact tenant+category match, then tenant default, then the
// hard-coded system default. Resolution is memoized in cache.
func (s *SLAService) EffectiveConfig(ctx context.Context, cache *ConfigCache, tenantID string, category domain.TicketCategory) (*domain.SLAConfig, error) {
	key := cacheKey(tenantID, category)
	if cfg, ok := cache.entries[key]; ok {
		return cfg, nil
	}

	configs := s.store.SLAConfigs()
	cfg, err := configs.GetActive(ctx, tenantID, &category)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		cfg, err = configs.GetActive(ctx, tenantID, nil)
		if err != nil {
			return nil, err
		}
	}
	if cfg == nil {
		cfg = domain.SystemDefaultSLA(tenantID)
	}
	cache.entries[key] = cfg
	return cfg, nil
}

// Deadlines computes the response and resolution deadlines for the
// ticket. Purely arithmetic; the sensitivity exclusion lives in
// SetDeadlines.
func (s *SLAService) Deadlines(ctx context.Context, cache *ConfigCache, ticket *domain.Ticket) (time.Time, time.Time, error) {
	cfg, err := s.EffectiveConfig(ctx, cache, ticket.TenantID, ticket.Category)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	return cfg.ResponseDeadline(ticket.CreatedAt), cfg.ResolutionDeadline(ticket.CreatedAt), nil
}

// SetDeadlines computes and persists both deadlines. Sensitive tickets
// are a strict no-op: their deadline fields stay null for life.
func (s *SLAService) SetDeadlines(ctx context.Context, ticket *domain.Ticket) error {
	if ticket.IsSensitive {
		return nil
	}
	response, resolution, err := s.Deadlines(ctx, NewConfigCache(), ticket)
	if err != nil {
		return err
	}
	ticket.SLAResponseDeadline = &response
	ticket.SLAResolutionDeadline = &resolution
	return s.store.Tickets().Update(ctx, ticket)
}

// FindBreached scans the tenant's open and in-progress non-sensitive
// tickets for missed deadlines. Response breach takes precedence over
// resolution breach; a ticket reports at most one breach per scan.
func (s *SLAService) FindBreached(ctx context.Context, tenantID string) ([]Breach, error) {
	tickets, err := s.store.Tickets().ListSLACandidates(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	var breaches []Breach
	for _, ticket := range tickets {
		if breach, ok := classifyBreach(ticket, now); ok {
			breaches = append(breaches, breach)
		}
	}
	return breaches, nil
}

func classifyBreach(ticket domain.Ticket, now time.Time) (Breach, bool) {
	if ticket.Status == domain.TicketStatusOpen &&
		ticket.SLAResponseDeadline != nil && now.After(*ticket.SLAResponseDeadline) {
		return Breach{
			Ticket:       ticket,
			Type:         BreachResponse,
			OverdueHours: now.Sub(*ticket.SLAResponseDeadline).Hours(),
		}, true
	}
	if (ticket.Status == domain.TicketStatusOpen || ticket.Status == domain.TicketStatusInProgress) &&
		ticket.SLAResolutionDeadline != nil && now.After(*ticket.SLAResolutionDeadline) {
		return Breach{
			Ticket:       ticket,
			Type:         BreachResolution,
			OverdueHours: now.Sub(*ticket.SLAResolutionDeadline).Hours(),
		}, true
	}
	return Breach{}, false
}

// FindWarnings reports tickets that have consumed at least the
// configured share of a deadline window without breaching it yet.
func (s *SLAService) FindWarnings(ctx context.Context, tenantID string) ([]Warning, error) {
	tickets, err := s.store.Tickets().ListSLACandidates(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	cache := NewConfigCache()
	var warnings []Warning
	for _, ticket := range tickets {
		if _, breached := classifyBreach(ticket, now); breached {
			continue
		}
		cfg, err := s.EffectiveConfig(ctx, cache, ticket.TenantID, ticket.Category)
		if err != nil {
			return nil, err
		}
		threshold := float64(cfg.WarningThresholdPct)

		if ticket.Status == domain.TicketStatusOpen && ticket.SLAResponseDeadline != nil {
			if pct := elapsedPct(ticket.CreatedAt, *ticket.SLAResponseDeadline, now); pct >= threshold {
				warnings = append(warnings, Warning{Ticket: ticket, Type: WarningResponse, ElapsedPct: pct})
				continue
			}
		}
		if ticket.SLAResolutionDeadline != nil {
			if pct := elapsedPct(ticket.CreatedAt, *ticket.SLAResolutionDeadline, now); pct >= threshold {
				warnings = append(warnings, Warning{Ticket: ticket, Type: WarningResolution, ElapsedPct: pct})
			}
		}
	}
	return warnings, nil
}

func elapsedPct(createdAt, deadline, now time.Time) float64 {
	window := deadline.Sub(createdAt)
	if window <= 0 {
		return 100
	}
	return now.Sub(createdAt).Seconds() / window.Seconds() * 100
}
