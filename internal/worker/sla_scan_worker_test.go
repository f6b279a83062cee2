package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/civickit/municipal-ticketing/internal/domain"
	"github.com/civickit/municipal-ticketing/internal/events"
	"github.com/civickit/municipal-ticketing/internal/observability"
	"github.com/civickit/municipal-ticketing/internal/repository/repotest"
	"github.com/civickit/municipal-ticketing/internal/service"
)

type fakeCycleLock struct {
	available bool
	acquires  int
	releases  int
}

func (l *fakeCycleLock) Acquire(ctx context.Context) (bool, error) {
	l.acquires++
	return l.available, nil
}

func (l *fakeCycleLock) Release(ctx context.Context) error {
	l.releases++
	return nil
}

func newScanFixture(lock CycleLock) (*repotest.Store, *SLAScanWorker) {
	store := repotest.New()
	logger := zap.NewNop()
	sla := service.NewSLAService(store, logger)
	escalations := service.NewEscalationService(service.EscalationDependencies{
		Store:      store,
		Dispatcher: events.NewInMemoryDispatcher(),
		Logger:     logger,
		Metrics:    observability.NewMetrics(),
	})
	worker := NewSLAScanWorker(ScanDependencies{
		Store:       store,
		SLA:         sla,
		Escalations: escalations,
		Lock:        lock,
		Logger:      logger,
		Interval:    time.Minute,
	})
	return store, worker
}

func seedBreachedTicket(store *repotest.Store, tenantID string) *domain.Ticket {
	manager := "manager-1"
	team := store.SeedTeam(&domain.Team{
		TenantID: tenantID, Name: "Water " + tenantID, Category: domain.CategoryWater,
		ManagerID: &manager, IsActive: true,
	})
	created := time.Now().Add(-10 * time.Hour)
	response := created.Add(4 * time.Hour)
	resolution := created.Add(48 * time.Hour)
	ticket := &domain.Ticket{
		TenantID:              tenantID,
		Category:              domain.CategoryWater,
		Status:                domain.TicketStatusOpen,
		CreatedBy:             "citizen-1",
		CreatedAt:             created,
		TeamID:                &team.ID,
		SLAResponseDeadline:   &response,
		SLAResolutionDeadline: &resolution,
	}
	return store.SeedTicket(ticket)
}

func seedHealthyTicket(store *repotest.Store, tenantID string) *domain.Ticket {
	created := time.Now().Add(-time.Hour)
	response := created.Add(24 * time.Hour)
	resolution := created.Add(168 * time.Hour)
	return store.SeedTicket(&domain.Ticket{
		TenantID:              tenantID,
		Category:              domain.CategoryWater,
		Status:                domain.TicketStatusOpen,
		CreatedBy:             "citizen-2",
		CreatedAt:             created,
		SLAResponseDeadline:   &response,
		SLAResolutionDeadline: &resolution,
	})
}

func TestRunCycleEscalatesBreachedTickets(t *testing.T) {
	store, worker := newScanFixture(&fakeCycleLock{available: true})
	breached := seedBreachedTicket(store, "cpt")
	healthy := seedHealthyTicket(store, "jhb")

	if err := worker.RunCycle(context.Background()); err != nil {
		t.Fatalf("RunCycle: %v", err)
	}

	if got := store.TicketByID(breached.ID); got.Status != domain.TicketStatusEscalated {
		t.Fatalf("breached ticket status = %s, want ESCALATED", got.Status)
	}
	if got := store.TicketByID(healthy.ID); got.Status != domain.TicketStatusOpen {
		t.Fatalf("healthy ticket status = %s, want OPEN", got.Status)
	}
}

func TestRunCycleIsolatesTenantFailure(t *testing.T) {
	store, worker := newScanFixture(&fakeCycleLock{available: true})
	breached := seedBreachedTicket(store, "cpt")
	broken := seedBreachedTicket(store, "jhb")
	store.ListSLACandidatesErr = map[string]error{"jhb": errors.New("connection reset")}

	if err := worker.RunCycle(context.Background()); err != nil {
		t.Fatalf("RunCycle: %v", err)
	}

	if got := store.TicketByID(breached.ID); got.Status != domain.TicketStatusEscalated {
		t.Fatalf("cpt ticket status = %s, want ESCALATED despite jhb failure", got.Status)
	}
	if got := store.TicketByID(broken.ID); got.Status != domain.TicketStatusOpen {
		t.Fatalf("jhb ticket status = %s, want untouched", got.Status)
	}
}

func TestRunLockedSkipsWhenLockUnavailable(t *testing.T) {
	lock := &fakeCycleLock{available: false}
	store, worker := newScanFixture(lock)
	breached := seedBreachedTicket(store, "cpt")

	worker.runLocked(context.Background())

	if lock.acquires != 1 {
		t.Fatalf("acquires = %d, want 1", lock.acquires)
	}
	if lock.releases != 0 {
		t.Fatalf("releases = %d, want 0 when never acquired", lock.releases)
	}
	if got := store.TicketByID(breached.ID); got.Status != domain.TicketStatusOpen {
		t.Fatalf("ticket status = %s, want untouched while lock unavailable", got.Status)
	}
}

func TestRunLockedReleasesAfterCycle(t *testing.T) {
	lock := &fakeCycleLock{available: true}
	_, worker := newScanFixture(lock)

	worker.runLocked(context.Background())

	if lock.acquires != 1 || lock.releases != 1 {
		t.Fatalf("acquires/releases = %d/%d, want 1/1", lock.acquires, lock.releases)
	}
}

func TestNewRedisCycleLockValidation(t *testing.T) {
	if _, err := NewRedisCycleLock(nil, "key", time.Minute); err == nil {
		t.Fatal("nil client must be rejected")
	}
}
