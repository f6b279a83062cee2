package worker

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/civickit/municipal-ticketing/internal/repository"
	"github.com/civickit/municipal-ticketing/internal/service"
)

// SLAScanWorker runs the periodic breach scan: per tenant, find
// breached tickets and escalate them, and log near-deadline warnings.
// Multiple instances may run; the cycle lock keeps cycles exclusive
// and the per-ticket advisory lock protects individual escalations
// when an instance dies mid-cycle and its lock TTL lapses.
type SLAScanWorker struct {
	store       repository.Store
	sla         *service.SLAService
	escalations *service.EscalationService
	lock        CycleLock
	logger      *zap.Logger
	interval    time.Duration
}

// ScanDependencies bundles collaborators.
type ScanDependencies struct {
	Store       repository.Store
	SLA         *service.SLAService
	Escalations *service.EscalationService
	Lock        CycleLock
	Logger      *zap.Logger
	Interval    time.Duration
}

// NewSLAScanWorker constructs the worker.
func NewSLAScanWorker(deps ScanDependencies) *SLAScanWorker {
	interval := deps.Interval
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &SLAScanWorker{
		store:       deps.Store,
		sla:         deps.SLA,
		escalations: deps.Escalations,
		lock:        deps.Lock,
		logger:      deps.Logger,
		interval:    interval,
	}
}

// Run starts the scan loop until the context is canceled.
func (w *SLAScanWorker) Run(ctx context.Context) error {
	w.runLocked(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("sla scan worker stopping")
			return ctx.Err()
		case <-ticker.C:
			w.runLocked(ctx)
		}
	}
}

func (w *SLAScanWorker) runLocked(ctx context.Context) {
	acquired, err := w.lock.Acquire(ctx)
	if err != nil {
		w.logger.Error("scan lock acquire failed", zap.Error(err))
		return
	}
	if !acquired {
		w.logger.Info("another scan instance holds the cycle lock; skipping")
		return
	}
	defer func() {
		if err := w.lock.Release(ctx); err != nil {
			w.logger.Error("scan lock release failed", zap.Error(err))
		}
	}()

	if err := w.RunCycle(ctx); err != nil {
		w.logger.Error("scan cycle failed", zap.Error(err))
	}
}

// RunCycle performs one full scan across all active tenants. Exposed
// for the manual trigger endpoint; callers own cycle exclusivity.
func (w *SLAScanWorker) RunCycle(ctx context.Context) error {
	start := time.Now()
	tenants, err := w.store.Tickets().ActiveTenantIDs(ctx)
	if err != nil {
		return err
	}

	totalBreached, totalEscalated := 0, 0
	for _, tenantID := range tenants {
		breached, escalated, err := w.scanTenant(ctx, tenantID)
		if err != nil {
			// One tenant's failure never aborts the rest of the cycle.
			w.logger.Error("tenant scan failed",
				zap.String("tenant_id", tenantID),
				zap.Error(err))
			continue
		}
		totalBreached += breached
		totalEscalated += escalated
	}

	w.logger.Info("sla scan complete",
		zap.Int("tenants", len(tenants)),
		zap.Int("breached", totalBreached),
		zap.Int("escalated", totalEscalated),
		zap.Duration("duration", time.Since(start)))
	return nil
}

func (w *SLAScanWorker) scanTenant(ctx context.Context, tenantID string) (int, int, error) {
	warnings, err := w.sla.FindWarnings(ctx, tenantID)
	if err != nil {
		return 0, 0, err
	}
	for _, warning := range warnings {
		w.logger.Warn("sla deadline approaching",
			zap.String("tenant_id", tenantID),
			zap.String("ticket_id", warning.Ticket.ID),
			zap.String("warning_type", string(warning.Type)),
			zap.Float64("elapsed_pct", warning.ElapsedPct))
	}

	breaches, err := w.sla.FindBreached(ctx, tenantID)
	if err != nil {
		return 0, 0, err
	}
	if len(breaches) == 0 {
		return 0, 0, nil
	}

	escalated := w.escalations.BulkEscalate(ctx, breaches)
	return len(breaches), escalated, nil
}
