package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/civickit/municipal-ticketing/internal/domain"
)

// TeamRepository manages persistence for responder teams. The nearest
// and first-active lookups return (nil, nil) when no candidate exists;
// an empty result is a routing outcome, not an error.
type TeamRepository interface {
	Create(ctx context.Context, team *domain.Team) error
	Update(ctx context.Context, team *domain.Team) error
	GetByID(ctx context.Context, tenantID, id string) (*domain.Team, error)
	NearestInCategory(ctx context.Context, tenantID string, category domain.TicketCategory, near domain.Point, radiusKM float64) (*domain.Team, error)
	FirstActiveInCategory(ctx context.Context, tenantID string, category domain.TicketCategory) (*domain.Team, error)
	NearestSAPS(ctx context.Context, tenantID string, near domain.Point, radiusKM float64) (*domain.Team, error)
	FirstActiveSAPS(ctx context.Context, tenantID string) (*domain.Team, error)
}

type teamRepository struct {
	q Querier
}

const teamColumns = `id, tenant_id, name, category, lat, lng, manager_id, is_saps, is_active, created_at, updated_at`

func (r *teamRepository) Create(ctx context.Context, team *domain.Team) error {
	const query = `
        INSERT INTO teams (tenant_id, name, category, lat, lng, manager_id, is_saps, is_active)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
        RETURNING id, created_at, updated_at`
	lat, lng := splitPoint(team.Location)
	return r.q.QueryRow(ctx, query,
		team.TenantID,
		team.Name,
		team.Category,
		lat,
		lng,
		team.ManagerID,
		team.IsSAPS,
		team.IsActive,
	).Scan(&team.ID, &team.CreatedAt, &team.UpdatedAt)
}

func (r *teamRepository) Update(ctx context.Context, team *domain.Team) error {
	const query = `
        UPDATE teams SET name=$1, category=$2, lat=$3, lng=$4, manager_id=$5, is_saps=$6, is_active=$7, updated_at=NOW()
        WHERE tenant_id=$8 AND id=$9`
	lat, lng := splitPoint(team.Location)
	cmd, err := r.q.Exec(ctx, query,
		team.Name,
		team.Category,
		lat,
		lng,
		team.ManagerID,
		team.IsSAPS,
		team.IsActive,
		team.TenantID,
		team.ID,
	)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *teamRepository) GetByID(ctx context.Context, tenantID, id string) (*domain.Team, error) {
	const query = `
        SELECT id, tenant_id, name, category, lat, lng, manager_id, is_saps, is_active, created_at, updated_at
        FROM teams WHERE tenant_id=$1 AND id=$2`
	return scanTeamRow(r.q.QueryRow(ctx, query, tenantID, id), false)
}

func (r *teamRepository) NearestInCategory(ctx context.Context, tenantID string, category domain.TicketCategory, near domain.Point, radiusKM float64) (*domain.Team, error) {
	const query = `
        SELECT id, tenant_id, name, category, lat, lng, manager_id, is_saps, is_active, created_at, updated_at
        FROM teams
        WHERE tenant_id=$1 AND is_active=TRUE AND is_saps=FALSE AND category=$2
          AND lat IS NOT NULL AND lng IS NOT NULL
          AND ST_DWithin(
                ST_SetSRID(ST_MakePoint(lng, lat), 4326)::geography,
                ST_SetSRID(ST_MakePoint($3, $4), 4326)::geography,
                $5)
        ORDER BY ST_Distance(
                ST_SetSRID(ST_MakePoint(lng, lat), 4326)::geography,
                ST_SetSRID(ST_MakePoint($3, $4), 4326)::geography) ASC
        LIMIT 1`
	return scanTeamRow(r.q.QueryRow(ctx, query, tenantID, category, near.Lng, near.Lat, radiusKM*1000), true)
}

func (r *teamRepository) FirstActiveInCategory(ctx context.Context, tenantID string, category domain.TicketCategory) (*domain.Team, error) {
	const query = `
        SELECT id, tenant_id, name, category, lat, lng, manager_id, is_saps, is_active, created_at, updated_at
        FROM teams
        WHERE tenant_id=$1 AND is_active=TRUE AND is_saps=FALSE AND category=$2
        ORDER BY id ASC
        LIMIT 1`
	return scanTeamRow(r.q.QueryRow(ctx, query, tenantID, category), true)
}

func (r *teamRepository) NearestSAPS(ctx context.Context, tenantID string, near domain.Point, radiusKM float64) (*domain.Team, error) {
	const query = `
        SELECT id, tenant_id, name, category, lat, lng, manager_id, is_saps, is_active, created_at, updated_at
        FROM teams
        WHERE tenant_id=$1 AND is_active=TRUE AND is_saps=TRUE
          AND lat IS NOT NULL AND lng IS NOT NULL
          AND ST_DWithin(
                ST_SetSRID(ST_MakePoint(lng, lat), 4326)::geography,
                ST_SetSRID(ST_MakePoint($2, $3), 4326)::geography,
                $4)
        ORDER BY ST_Distance(
                ST_SetSRID(ST_MakePoint(lng, lat), 4326)::geography,
                ST_SetSRID(ST_MakePoint($2, $3), 4326)::geography) ASC
        LIMIT 1`
	return scanTeamRow(r.q.QueryRow(ctx, query, tenantID, near.Lng, near.Lat, radiusKM*1000), true)
}

func (r *teamRepository) FirstActiveSAPS(ctx context.Context, tenantID string) (*domain.Team, error) {
	const query = `
        SELECT id, tenant_id, name, category, lat, lng, manager_id, is_saps, is_active, created_at, updated_at
        FROM teams
        WHERE tenant_id=$1 AND is_active=TRUE AND is_saps=TRUE
        ORDER BY id ASC
        LIMIT 1`
	return scanTeamRow(r.q.QueryRow(ctx, query, tenantID), true)
}

func scanTeamRow(row pgx.Row, absorbNoRows bool) (*domain.Team, error) {
	var team domain.Team
	var lat, lng *float64
	if err := row.Scan(
		&team.ID,
		&team.TenantID,
		&team.Name,
		&team.Category,
		&lat,
		&lng,
		&team.ManagerID,
		&team.IsSAPS,
		&team.IsActive,
		&team.CreatedAt,
		&team.UpdatedAt,
	); err != nil {
		if absorbNoRows && errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	team.Location = joinPoint(lat, lng)
	return &team, nil
}
