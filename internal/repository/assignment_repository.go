package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/civickit/municipal-ticketing/internal/domain"
)

// AssignmentRepository stores the immutable assignment ledger. Rows are
// never updated after insert except flipping is_current to false.
type AssignmentRepository interface {
	Insert(ctx context.Context, assignment *domain.Assignment) error
	ClearCurrent(ctx context.Context, tenantID, ticketID string) error
	GetCurrent(ctx context.Context, tenantID, ticketID string) (*domain.Assignment, error)
	ListByTicket(ctx context.Context, tenantID, ticketID string) ([]domain.Assignment, error)
}

type assignmentRepository struct {
	q Querier
}

func (r *assignmentRepository) Insert(ctx context.Context, assignment *domain.Assignment) error {
	const query = `
        INSERT INTO ticket_assignments (tenant_id, ticket_id, team_id, assigned_to, assigned_by, reason, is_current)
        VALUES ($1,$2,$3,$4,$5,$6,$7)
        RETURNING id, created_at`
	return r.q.QueryRow(ctx, query,
		assignment.TenantID,
		assignment.TicketID,
		assignment.TeamID,
		assignment.AssignedTo,
		assignment.AssignedBy,
		assignment.Reason,
		assignment.IsCurrent,
	).Scan(&assignment.ID, &assignment.CreatedAt)
}

func (r *assignmentRepository) ClearCurrent(ctx context.Context, tenantID, ticketID string) error {
	const query = `
        UPDATE ticket_assignments SET is_current=FALSE
        WHERE tenant_id=$1 AND ticket_id=$2 AND is_current=TRUE`
	_, err := r.q.Exec(ctx, query, tenantID, ticketID)
	return err
}

func (r *assignmentRepository) GetCurrent(ctx context.Context, tenantID, ticketID string) (*domain.Assignment, error) {
	const query = `
        SELECT id, tenant_id, ticket_id, team_id, assigned_to, assigned_by, reason, is_current, created_at
        FROM ticket_assignments
        WHERE tenant_id=$1 AND ticket_id=$2 AND is_current=TRUE`
	assignment, err := scanAssignment(r.q.QueryRow(ctx, query, tenantID, ticketID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return assignment, nil
}

func (r *assignmentRepository) ListByTicket(ctx context.Context, tenantID, ticketID string) ([]domain.Assignment, error) {
	const query = `
        SELECT id, tenant_id, ticket_id, team_id, assigned_to, assigned_by, reason, is_current, created_at
        FROM ticket_assignments
        WHERE tenant_id=$1 AND ticket_id=$2
        ORDER BY created_at DESC, id DESC`
	rows, err := r.q.Query(ctx, query, tenantID, ticketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Assignment
	for rows.Next() {
		assignment, err := scanAssignment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *assignment)
	}
	return result, rows.Err()
}

func scanAssignment(row pgx.Row) (*domain.Assignment, error) {
	var assignment domain.Assignment
	if err := row.Scan(
		&assignment.ID,
		&assignment.TenantID,
		&assignment.TicketID,
		&assignment.TeamID,
		&assignment.AssignedTo,
		&assignment.AssignedBy,
		&assignment.Reason,
		&assignment.IsCurrent,
		&assignment.CreatedAt,
	); err != nil {
		return nil, err
	}
	return &assignment, nil
}
