// Package repotest provides an in-memory repository.Store for service
// and worker tests. It mirrors the SQL layer's visible semantics:
// tenant scoping, the sensitive-ticket exclusions, absorbed no-row
// lookups, and transaction-scoped ticket locks.
package repotest

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/civickit/municipal-ticketing/internal/domain"
	"github.com/civickit/municipal-ticketing/internal/repository"
)

// Store is the in-memory fake. Zero value is not usable; call New.
type Store struct {
	mu          sync.Mutex
	tickets     map[string]*domain.Ticket
	teams       map[string]*domain.Team
	assignments []*domain.Assignment
	configs     map[string]*domain.SLAConfig
	heldLocks   map[string]bool
	seq         int

	// Now supplies timestamps; defaults to time.Now.
	Now func() time.Time

	// TicketUpdateErr, when set, fails every ticket update. Used to
	// exercise failure isolation paths.
	TicketUpdateErr error

	// ListSLACandidatesErr fails candidate listing for the given
	// tenant only.
	ListSLACandidatesErr map[string]error
}

// New creates an empty fake store.
func New() *Store {
	return &Store{
		tickets:   make(map[string]*domain.Ticket),
		teams:     make(map[string]*domain.Team),
		configs:   make(map[string]*domain.SLAConfig),
		heldLocks: make(map[string]bool),
		Now:       time.Now,
	}
}

func (s *Store) nextID(prefix string) string {
	s.seq++
	return fmt.Sprintf("%s-%06d", prefix, s.seq)
}

// txStore is the transactional view. Locks it acquires release when
// the enclosing WithinTx returns.
type txStore struct {
	root  *Store
	locks []string
}

func (s *Store) Tickets() repository.TicketRepository         { return &ticketRepo{s} }
func (s *Store) Teams() repository.TeamRepository             { return &teamRepo{s} }
func (s *Store) Assignments() repository.AssignmentRepository { return &assignmentRepo{s} }
func (s *Store) SLAConfigs() repository.SLAConfigRepository   { return &slaConfigRepo{s} }

func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx repository.Store) error) error {
	tx := &txStore{root: s}
	err := fn(ctx, tx)
	tx.releaseLocks()
	return err
}

func (s *Store) TryTicketLock(ctx context.Context, ticketID string) (bool, error) {
	return false, fmt.Errorf("ticket lock requires an open transaction")
}

func (s *Store) TicketLock(ctx context.Context, ticketID string) error {
	return fmt.Errorf("ticket lock requires an open transaction")
}

func (t *txStore) Tickets() repository.TicketRepository         { return t.root.Tickets() }
func (t *txStore) Teams() repository.TeamRepository             { return t.root.Teams() }
func (t *txStore) Assignments() repository.AssignmentRepository { return t.root.Assignments() }
func (t *txStore) SLAConfigs() repository.SLAConfigRepository   { return t.root.SLAConfigs() }

func (t *txStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx repository.Store) error) error {
	// Nested calls join the open transaction.
	return fn(ctx, t)
}

func (t *txStore) TryTicketLock(ctx context.Context, ticketID string) (bool, error) {
	t.root.mu.Lock()
	defer t.root.mu.Unlock()
	if t.root.heldLocks[ticketID] {
		return false, nil
	}
	t.root.heldLocks[ticketID] = true
	t.locks = append(t.locks, ticketID)
	return true, nil
}

func (t *txStore) TicketLock(ctx context.Context, ticketID string) error {
	for {
		acquired, err := t.TryTicketLock(ctx, ticketID)
		if err != nil {
			return err
		}
		if acquired {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Millisecond):
		}
	}
}

func (t *txStore) releaseLocks() {
	t.root.mu.Lock()
	defer t.root.mu.Unlock()
	for _, id := range t.locks {
		delete(t.root.heldLocks, id)
	}
	t.locks = nil
}

// SeedTicket stores a ticket directly, assigning an id if empty.
func (s *Store) SeedTicket(ticket *domain.Ticket) *domain.Ticket {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ticket.ID == "" {
		ticket.ID = s.nextID("ticket")
	}
	if ticket.CreatedAt.IsZero() {
		ticket.CreatedAt = s.Now()
	}
	ticket.UpdatedAt = ticket.CreatedAt
	s.tickets[ticket.ID] = copyTicket(ticket)
	return ticket
}

// SeedTeam stores a team directly, assigning an id if empty.
func (s *Store) SeedTeam(team *domain.Team) *domain.Team {
	s.mu.Lock()
	defer s.mu.Unlock()
	if team.ID == "" {
		team.ID = s.nextID("team")
	}
	s.teams[team.ID] = copyTeam(team)
	return team
}

// SeedConfig stores an SLA config directly.
func (s *Store) SeedConfig(cfg *domain.SLAConfig) *domain.SLAConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cfg.ID == "" {
		cfg.ID = s.nextID("sla")
	}
	s.configs[cfg.ID] = copySLAConfig(cfg)
	return cfg
}

// TicketByID returns a stored ticket copy for assertions, or nil.
func (s *Store) TicketByID(id string) *domain.Ticket {
	s.mu.Lock()
	defer s.mu.Unlock()
	ticket, ok := s.tickets[id]
	if !ok {
		return nil
	}
	return copyTicket(ticket)
}

// AssignmentRows returns every ledger row for a ticket, oldest first.
func (s *Store) AssignmentRows(ticketID string) []domain.Assignment {
	s.mu.Lock()
	defer s.mu.Unlock()
	var rows []domain.Assignment
	for _, a := range s.assignments {
		if a.TicketID == ticketID {
			rows = append(rows, *copyAssignment(a))
		}
	}
	return rows
}

type ticketRepo struct{ s *Store }

func (r *ticketRepo) Create(ctx context.Context, ticket *domain.Ticket) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	ticket.ID = r.s.nextID("ticket")
	if ticket.CreatedAt.IsZero() {
		ticket.CreatedAt = r.s.Now()
	}
	ticket.UpdatedAt = ticket.CreatedAt
	r.s.tickets[ticket.ID] = copyTicket(ticket)
	return nil
}

func (r *ticketRepo) Update(ctx context.Context, ticket *domain.Ticket) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.TicketUpdateErr != nil {
		return r.s.TicketUpdateErr
	}
	stored, ok := r.s.tickets[ticket.ID]
	if !ok || stored.TenantID != ticket.TenantID {
		return pgx.ErrNoRows
	}
	ticket.UpdatedAt = r.s.Now()
	r.s.tickets[ticket.ID] = copyTicket(ticket)
	return nil
}

func (r *ticketRepo) GetByID(ctx context.Context, tenantID, id string) (*domain.Ticket, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	ticket, ok := r.s.tickets[id]
	if !ok || ticket.TenantID != tenantID {
		return nil, pgx.ErrNoRows
	}
	out := copyTicket(ticket)
	out.NormalizeSensitivity()
	return out, nil
}

func (r *ticketRepo) GetByTrackingKey(ctx context.Context, tenantID, key string) (*domain.Ticket, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, ticket := range r.s.tickets {
		if ticket.TenantID == tenantID && ticket.TrackingKey == key {
			out := copyTicket(ticket)
			out.NormalizeSensitivity()
			return out, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (r *ticketRepo) ListOperational(ctx context.Context, filter repository.TicketFilter) ([]domain.Ticket, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var result []domain.Ticket
	for _, ticket := range r.s.tickets {
		if ticket.TenantID != filter.TenantID || ticket.IsSensitive {
			continue
		}
		if filter.Category != nil && ticket.Category != *filter.Category {
			continue
		}
		if filter.TeamID != nil && (ticket.TeamID == nil || *ticket.TeamID != *filter.TeamID) {
			continue
		}
		if filter.AssignedTo != nil && (ticket.AssignedTo == nil || *ticket.AssignedTo != *filter.AssignedTo) {
			continue
		}
		if len(filter.Statuses) > 0 && !containsStatus(filter.Statuses, ticket.Status) {
			continue
		}
		if filter.CreatedFrom != nil && ticket.CreatedAt.Before(*filter.CreatedFrom) {
			continue
		}
		if filter.CreatedTo != nil && ticket.CreatedAt.After(*filter.CreatedTo) {
			continue
		}
		result = append(result, *copyTicket(ticket))
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.After(result[j].CreatedAt) })
	return paginate(result, filter.Limit, filter.Offset), nil
}

// paginate applies the SQL listing defaults: limit 20 when unset,
// offset clamped at zero.
func paginate(tickets []domain.Ticket, limit, offset int) []domain.Ticket {
	if limit <= 0 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	if offset >= len(tickets) {
		return nil
	}
	tickets = tickets[offset:]
	if len(tickets) > limit {
		tickets = tickets[:limit]
	}
	return tickets
}

func (r *ticketRepo) ListSensitive(ctx context.Context, tenantID string, limit, offset int) ([]domain.Ticket, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var result []domain.Ticket
	for _, ticket := range r.s.tickets {
		if ticket.TenantID == tenantID && ticket.IsSensitive {
			result = append(result, *copyTicket(ticket))
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.After(result[j].CreatedAt) })
	return paginate(result, limit, offset), nil
}

func (r *ticketRepo) ListSLACandidates(ctx context.Context, tenantID string) ([]domain.Ticket, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.ListSLACandidatesErr[tenantID]; err != nil {
		return nil, err
	}
	var result []domain.Ticket
	for _, ticket := range r.s.tickets {
		if ticket.TenantID != tenantID || ticket.IsSensitive {
			continue
		}
		if ticket.Status != domain.TicketStatusOpen && ticket.Status != domain.TicketStatusInProgress {
			continue
		}
		if ticket.SLAResponseDeadline == nil {
			continue
		}
		result = append(result, *copyTicket(ticket))
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.Before(result[j].CreatedAt) })
	return result, nil
}

func (r *ticketRepo) ActiveTenantIDs(ctx context.Context) ([]string, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	seen := make(map[string]bool)
	for _, ticket := range r.s.tickets {
		if ticket.Status == domain.TicketStatusOpen || ticket.Status == domain.TicketStatusInProgress {
			seen[ticket.TenantID] = true
		}
	}
	var result []string
	for id := range seen {
		result = append(result, id)
	}
	sort.Strings(result)
	return result, nil
}

func containsStatus(statuses []domain.TicketStatus, status domain.TicketStatus) bool {
	for _, s := range statuses {
		if s == status {
			return true
		}
	}
	return false
}

type teamRepo struct{ s *Store }

func (r *teamRepo) Create(ctx context.Context, team *domain.Team) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	team.ID = r.s.nextID("team")
	team.CreatedAt = r.s.Now()
	team.UpdatedAt = team.CreatedAt
	r.s.teams[team.ID] = copyTeam(team)
	return nil
}

func (r *teamRepo) Update(ctx context.Context, team *domain.Team) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	stored, ok := r.s.teams[team.ID]
	if !ok || stored.TenantID != team.TenantID {
		return pgx.ErrNoRows
	}
	r.s.teams[team.ID] = copyTeam(team)
	return nil
}

func (r *teamRepo) GetByID(ctx context.Context, tenantID, id string) (*domain.Team, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	team, ok := r.s.teams[id]
	if !ok || team.TenantID != tenantID {
		return nil, pgx.ErrNoRows
	}
	return copyTeam(team), nil
}

func (r *teamRepo) NearestInCategory(ctx context.Context, tenantID string, category domain.TicketCategory, near domain.Point, radiusKM float64) (*domain.Team, error) {
	return r.nearest(tenantID, near, radiusKM, func(t *domain.Team) bool {
		return !t.IsSAPS && t.Category == category
	}), nil
}

func (r *teamRepo) FirstActiveInCategory(ctx context.Context, tenantID string, category domain.TicketCategory) (*domain.Team, error) {
	return r.firstActive(tenantID, func(t *domain.Team) bool {
		return !t.IsSAPS && t.Category == category
	}), nil
}

func (r *teamRepo) NearestSAPS(ctx context.Context, tenantID string, near domain.Point, radiusKM float64) (*domain.Team, error) {
	return r.nearest(tenantID, near, radiusKM, func(t *domain.Team) bool { return t.IsSAPS }), nil
}

func (r *teamRepo) FirstActiveSAPS(ctx context.Context, tenantID string) (*domain.Team, error) {
	return r.firstActive(tenantID, func(t *domain.Team) bool { return t.IsSAPS }), nil
}

func (r *teamRepo) nearest(tenantID string, near domain.Point, radiusKM float64, match func(*domain.Team) bool) *domain.Team {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var best *domain.Team
	bestDist := radiusKM
	for _, team := range r.s.teams {
		if team.TenantID != tenantID || !team.IsActive || team.Location == nil || !match(team) {
			continue
		}
		dist := team.Location.DistanceKM(near)
		if dist <= bestDist {
			best = team
			bestDist = dist
		}
	}
	if best == nil {
		return nil
	}
	return copyTeam(best)
}

func (r *teamRepo) firstActive(tenantID string, match func(*domain.Team) bool) *domain.Team {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var ids []string
	for id, team := range r.s.teams {
		if team.TenantID == tenantID && team.IsActive && match(team) {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return nil
	}
	sort.Strings(ids)
	return copyTeam(r.s.teams[ids[0]])
}

type assignmentRepo struct{ s *Store }

func (r *assignmentRepo) Insert(ctx context.Context, assignment *domain.Assignment) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	assignment.ID = r.s.nextID("assignment")
	assignment.CreatedAt = r.s.Now()
	r.s.assignments = append(r.s.assignments, copyAssignment(assignment))
	return nil
}

func (r *assignmentRepo) ClearCurrent(ctx context.Context, tenantID, ticketID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, a := range r.s.assignments {
		if a.TenantID == tenantID && a.TicketID == ticketID {
			a.IsCurrent = false
		}
	}
	return nil
}

func (r *assignmentRepo) GetCurrent(ctx context.Context, tenantID, ticketID string) (*domain.Assignment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, a := range r.s.assignments {
		if a.TenantID == tenantID && a.TicketID == ticketID && a.IsCurrent {
			return copyAssignment(a), nil
		}
	}
	return nil, nil
}

func (r *assignmentRepo) ListByTicket(ctx context.Context, tenantID, ticketID string) ([]domain.Assignment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var result []domain.Assignment
	for i := len(r.s.assignments) - 1; i >= 0; i-- {
		a := r.s.assignments[i]
		if a.TenantID == tenantID && a.TicketID == ticketID {
			result = append(result, *copyAssignment(a))
		}
	}
	return result, nil
}

type slaConfigRepo struct{ s *Store }

func (r *slaConfigRepo) Create(ctx context.Context, cfg *domain.SLAConfig) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cfg.ID = r.s.nextID("sla")
	cfg.CreatedAt = r.s.Now()
	cfg.UpdatedAt = cfg.CreatedAt
	r.s.configs[cfg.ID] = copySLAConfig(cfg)
	return nil
}

func (r *slaConfigRepo) Update(ctx context.Context, cfg *domain.SLAConfig) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	stored, ok := r.s.configs[cfg.ID]
	if !ok || stored.TenantID != cfg.TenantID {
		return pgx.ErrNoRows
	}
	r.s.configs[cfg.ID] = copySLAConfig(cfg)
	return nil
}

func (r *slaConfigRepo) GetActive(ctx context.Context, tenantID string, category *domain.TicketCategory) (*domain.SLAConfig, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, cfg := range r.s.configs {
		if cfg.TenantID != tenantID || !cfg.IsActive {
			continue
		}
		if category == nil {
			if cfg.Category == nil {
				return copySLAConfig(cfg), nil
			}
			continue
		}
		if cfg.Category != nil && *cfg.Category == *category {
			return copySLAConfig(cfg), nil
		}
	}
	return nil, nil
}

func copyTicket(t *domain.Ticket) *domain.Ticket {
	out := *t
	out.Location = copyPoint(t.Location)
	out.TeamID = copyString(t.TeamID)
	out.AssignedTo = copyString(t.AssignedTo)
	out.FirstRespondedAt = copyTime(t.FirstRespondedAt)
	out.ResolvedAt = copyTime(t.ResolvedAt)
	out.EscalatedAt = copyTime(t.EscalatedAt)
	out.EscalationReason = copyString(t.EscalationReason)
	out.SLAResponseDeadline = copyTime(t.SLAResponseDeadline)
	out.SLAResolutionDeadline = copyTime(t.SLAResolutionDeadline)
	return &out
}

func copyTeam(t *domain.Team) *domain.Team {
	out := *t
	out.Location = copyPoint(t.Location)
	out.ManagerID = copyString(t.ManagerID)
	return &out
}

func copyAssignment(a *domain.Assignment) *domain.Assignment {
	out := *a
	out.TeamID = copyString(a.TeamID)
	out.AssignedTo = copyString(a.AssignedTo)
	return &out
}

func copySLAConfig(c *domain.SLAConfig) *domain.SLAConfig {
	out := *c
	if c.Category != nil {
		category := *c.Category
		out.Category = &category
	}
	return &out
}

func copyPoint(p *domain.Point) *domain.Point {
	if p == nil {
		return nil
	}
	point := *p
	return &point
}

func copyString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
