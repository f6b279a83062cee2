package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/civickit/municipal-ticketing/internal/domain"
)

// TicketFilter captures operational search parameters. Sensitive
// tickets are always excluded from filtered listings regardless of the
// filter contents.
type TicketFilter struct {
	TenantID    string
	Category    *domain.TicketCategory
	TeamID      *string
	AssignedTo  *string
	Statuses    []domain.TicketStatus
	CreatedFrom *time.Time
	CreatedTo   *time.Time
	Limit       int
	Offset      int
}

// TicketRepository encapsulates ticket persistence. Every query is
// tenant-scoped.
type TicketRepository interface {
	Create(ctx context.Context, ticket *domain.Ticket) error
	Update(ctx context.Context, ticket *domain.Ticket) error
	GetByID(ctx context.Context, tenantID, id string) (*domain.Ticket, error)
	GetByTrackingKey(ctx context.Context, tenantID, key string) (*domain.Ticket, error)
	ListOperational(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error)
	ListSensitive(ctx context.Context, tenantID string, limit, offset int) ([]domain.Ticket, error)
	ListSLACandidates(ctx context.Context, tenantID string) ([]domain.Ticket, error)
	ActiveTenantIDs(ctx context.Context) ([]string, error)
}

type ticketRepository struct {
	q Querier
}

const ticketColumns = `id, tenant_id, tracking_key, category, description, lat, lng, severity, status,
               is_sensitive, created_by, locale, team_id, assigned_to,
               created_at, updated_at, first_responded_at, resolved_at, escalated_at, escalation_reason,
               sla_response_deadline, sla_resolution_deadline`

func (r *ticketRepository) Create(ctx context.Context, ticket *domain.Ticket) error {
	const query = `
        INSERT INTO tickets (tenant_id, tracking_key, category, description, lat, lng, severity, status,
                             is_sensitive, created_by, locale, team_id, assigned_to,
                             sla_response_deadline, sla_resolution_deadline)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
        RETURNING id, created_at, updated_at`
	lat, lng := splitPoint(ticket.Location)
	return r.q.QueryRow(ctx, query,
		ticket.TenantID,
		ticket.TrackingKey,
		ticket.Category,
		ticket.Description,
		lat,
		lng,
		ticket.Severity,
		ticket.Status,
		ticket.IsSensitive,
		ticket.CreatedBy,
		ticket.Locale,
		ticket.TeamID,
		ticket.AssignedTo,
		ticket.SLAResponseDeadline,
		ticket.SLAResolutionDeadline,
	).Scan(&ticket.ID, &ticket.CreatedAt, &ticket.UpdatedAt)
}

func (r *ticketRepository) Update(ctx context.Context, ticket *domain.Ticket) error {
	const query = `
        UPDATE tickets SET severity=$1, status=$2, team_id=$3, assigned_to=$4,
            first_responded_at=$5, resolved_at=$6, escalated_at=$7, escalation_reason=$8,
            sla_response_deadline=$9, sla_resolution_deadline=$10, updated_at=NOW()
        WHERE tenant_id=$11 AND id=$12`
	cmd, err := r.q.Exec(ctx, query,
		ticket.Severity,
		ticket.Status,
		ticket.TeamID,
		ticket.AssignedTo,
		ticket.FirstRespondedAt,
		ticket.ResolvedAt,
		ticket.EscalatedAt,
		ticket.EscalationReason,
		ticket.SLAResponseDeadline,
		ticket.SLAResolutionDeadline,
		ticket.TenantID,
		ticket.ID,
	)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *ticketRepository) GetByID(ctx context.Context, tenantID, id string) (*domain.Ticket, error) {
	query := fmt.Sprintf(`SELECT %s FROM tickets WHERE tenant_id=$1 AND id=$2`, ticketColumns)
	return r.fetchSingle(ctx, query, tenantID, id)
}

func (r *ticketRepository) GetByTrackingKey(ctx context.Context, tenantID, key string) (*domain.Ticket, error) {
	query := fmt.Sprintf(`SELECT %s FROM tickets WHERE tenant_id=$1 AND tracking_key=$2`, ticketColumns)
	return r.fetchSingle(ctx, query, tenantID, key)
}

func (r *ticketRepository) fetchSingle(ctx context.Context, query string, args ...any) (*domain.Ticket, error) {
	ticket, err := scanTicket(r.q.QueryRow(ctx, query, args...))
	if err != nil {
		return nil, err
	}
	return ticket, nil
}

func (r *ticketRepository) ListOperational(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error) {
	base := fmt.Sprintf(`SELECT %s FROM tickets`, ticketColumns)
	args := []any{filter.TenantID}
	clauses := []string{"tenant_id=$1", "is_sensitive=FALSE"}

	if filter.Category != nil {
		args = append(args, *filter.Category)
		clauses = append(clauses, fmt.Sprintf("category=$%d", len(args)))
	}
	if filter.TeamID != nil {
		args = append(args, *filter.TeamID)
		clauses = append(clauses, fmt.Sprintf("team_id=$%d", len(args)))
	}
	if filter.AssignedTo != nil {
		args = append(args, *filter.AssignedTo)
		clauses = append(clauses, fmt.Sprintf("assigned_to=$%d", len(args)))
	}
	if len(filter.Statuses) > 0 {
		placeholders := make([]string, len(filter.Statuses))
		for i, status := range filter.Statuses {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")))
	}
	if filter.CreatedFrom != nil {
		args = append(args, *filter.CreatedFrom)
		clauses = append(clauses, fmt.Sprintf("created_at >= $%d", len(args)))
	}
	if filter.CreatedTo != nil {
		args = append(args, *filter.CreatedTo)
		clauses = append(clauses, fmt.Sprintf("created_at <= $%d", len(args)))
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	query := fmt.Sprintf(`%s WHERE %s ORDER BY created_at DESC LIMIT %d OFFSET %d`,
		base, strings.Join(clauses, " AND "), limit, offset)

	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTickets(rows)
}

func (r *ticketRepository) ListSensitive(ctx context.Context, tenantID string, limit, offset int) ([]domain.Ticket, error) {
	if limit <= 0 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	query := fmt.Sprintf(`SELECT %s FROM tickets
        WHERE tenant_id=$1 AND is_sensitive=TRUE
        ORDER BY created_at DESC LIMIT %d OFFSET %d`, ticketColumns, limit, offset)
	rows, err := r.q.Query(ctx, query, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTickets(rows)
}

func (r *ticketRepository) ListSLACandidates(ctx context.Context, tenantID string) ([]domain.Ticket, error) {
	query := fmt.Sprintf(`SELECT %s FROM tickets
        WHERE tenant_id=$1 AND is_sensitive=FALSE
          AND status IN ('OPEN','IN_PROGRESS')
          AND sla_response_deadline IS NOT NULL
        ORDER BY created_at ASC`, ticketColumns)
	rows, err := r.q.Query(ctx, query, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTickets(rows)
}

// ActiveTenantIDs enumerates tenants that currently have tickets in a
// scannable state. Feeds the per-tenant SLA scan; returns ids only.
func (r *ticketRepository) ActiveTenantIDs(ctx context.Context) ([]string, error) {
	const query = `SELECT DISTINCT tenant_id FROM tickets
        WHERE status IN ('OPEN','IN_PROGRESS') ORDER BY tenant_id`
	rows, err := r.q.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		result = append(result, id)
	}
	return result, rows.Err()
}

func scanTicket(row pgx.Row) (*domain.Ticket, error) {
	var ticket domain.Ticket
	var lat, lng *float64
	if err := row.Scan(
		&ticket.ID,
		&ticket.TenantID,
		&ticket.TrackingKey,
		&ticket.Category,
		&ticket.Description,
		&lat,
		&lng,
		&ticket.Severity,
		&ticket.Status,
		&ticket.IsSensitive,
		&ticket.CreatedBy,
		&ticket.Locale,
		&ticket.TeamID,
		&ticket.AssignedTo,
		&ticket.CreatedAt,
		&ticket.UpdatedAt,
		&ticket.FirstRespondedAt,
		&ticket.ResolvedAt,
		&ticket.EscalatedAt,
		&ticket.EscalationReason,
		&ticket.SLAResponseDeadline,
		&ticket.SLAResolutionDeadline,
	); err != nil {
		return nil, err
	}
	ticket.Location = joinPoint(lat, lng)
	ticket.NormalizeSensitivity()
	return &ticket, nil
}

func scanTickets(rows pgx.Rows) ([]domain.Ticket, error) {
	var result []domain.Ticket
	for rows.Next() {
		ticket, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *ticket)
	}
	return result, rows.Err()
}

func splitPoint(p *domain.Point) (*float64, *float64) {
	if p == nil {
		return nil, nil
	}
	lat, lng := p.Lat, p.Lng
	return &lat, &lng
}

func joinPoint(lat, lng *float64) *domain.Point {
	if lat == nil || lng == nil {
		return nil
	}
	return &domain.Point{Lat: *lat, Lng: *lng}
}
