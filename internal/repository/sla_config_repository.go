package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/civickit/municipal-ticketing/internal/domain"
)

// SLAConfigRepository manages per-tenant SLA configuration. GetActive
// returns (nil, nil) when no matching config exists; callers fall back
// through the tenant default to the system default.
type SLAConfigRepository interface {
	Create(ctx context.Context, cfg *domain.SLAConfig) error
	Update(ctx context.Context, cfg *domain.SLAConfig) error
	GetActive(ctx context.Context, tenantID string, category *domain.TicketCategory) (*domain.SLAConfig, error)
}

type slaConfigRepository struct {
	q Querier
}

func (r *slaConfigRepository) Create(ctx context.Context, cfg *domain.SLAConfig) error {
	const query = `
        INSERT INTO sla_configs (tenant_id, category, response_hours, resolution_hours, warning_threshold_pct, is_active)
        VALUES ($1,$2,$3,$4,$5,$6)
        RETURNING id, created_at, updated_at`
	return r.q.QueryRow(ctx, query,
		cfg.TenantID,
		cfg.Category,
		cfg.ResponseHours,
		cfg.ResolutionHours,
		cfg.WarningThresholdPct,
		cfg.IsActive,
	).Scan(&cfg.ID, &cfg.CreatedAt, &cfg.UpdatedAt)
}

func (r *slaConfigRepository) Update(ctx context.Context, cfg *domain.SLAConfig) error {
	const query = `
        UPDATE sla_configs SET response_hours=$1, resolution_hours=$2, warning_threshold_pct=$3, is_active=$4, updated_at=NOW()
        WHERE tenant_id=$5 AND id=$6`
	cmd, err := r.q.Exec(ctx, query,
		cfg.ResponseHours,
		cfg.ResolutionHours,
		cfg.WarningThresholdPct,
		cfg.IsActive,
		cfg.TenantID,
		cfg.ID,
	)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *slaConfigRepository) GetActive(ctx context.Context, tenantID string, category *domain.TicketCategory) (*domain.SLAConfig, error) {
	const withCategory = `
        SELECT id, tenant_id, category, response_hours, resolution_hours, warning_threshold_pct, is_active, created_at, updated_at
        FROM sla_configs
        WHERE tenant_id=$1 AND category=$2 AND is_active=TRUE`
	const tenantDefault = `
        SELECT id, tenant_id, category, response_hours, resolution_hours, warning_threshold_pct, is_active, created_at, updated_at
        FROM sla_configs
        WHERE tenant_id=$1 AND category IS NULL AND is_active=TRUE`

	var row pgx.Row
	if category != nil {
		row = r.q.QueryRow(ctx, withCategory, tenantID, *category)
	} else {
		row = r.q.QueryRow(ctx, tenantDefault, tenantID)
	}

	var cfg domain.SLAConfig
	if err := row.Scan(
		&cfg.ID,
		&cfg.TenantID,
		&cfg.Category,
		&cfg.ResponseHours,
		&cfg.ResolutionHours,
		&cfg.WarningThresholdPct,
		&cfg.IsActive,
		&cfg.CreatedAt,
		&cfg.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &cfg, nil
}
