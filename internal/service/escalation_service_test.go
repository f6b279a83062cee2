package service

import (
	"context"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/civickit/municipal-ticketing/internal/domain"
	"github.com/civickit/municipal-ticketing/internal/events"
	"github.com/civickit/municipal-ticketing/internal/observability"
	"github.com/civickit/municipal-ticketing/internal/repository"
	"github.com/civickit/municipal-ticketing/internal/repository/repotest"
)

func newEscalationFixture() (*repotest.Store, *EscalationService, *recordingDispatcher, *observability.Metrics) {
	store := repotest.New()
	dispatcher := &recordingDispatcher{}
	metrics := observability.NewMetrics()
	svc := NewEscalationService(EscalationDependencies{
		Store:      store,
		Dispatcher: dispatcher,
		Logger:     zap.NewNop(),
		Metrics:    metrics,
	})
	return store, svc, dispatcher, metrics
}

func seedAssignedTicket(store *repotest.Store, managerID *string) (*domain.Ticket, *domain.Team) {
	team := store.SeedTeam(&domain.Team{
		TenantID: "cpt", Name: "Water", Category: domain.CategoryWater,
		ManagerID: managerID, IsActive: true,
	})
	ticket := domain.NewTicket("cpt", "citizen-1", domain.CategoryWater, "burst pipe")
	ticket.TeamID = &team.ID
	return store.SeedTicket(ticket), team
}

func TestEscalateReassignsToManager(t *testing.T) {
	manager := "manager-1"
	store, svc, dispatcher, metrics := newEscalationFixture()
	ticket, team := seedAssignedTicket(store, &manager)

	ok, err := svc.Escalate(context.Background(), "cpt", ticket.ID, "SLA response deadline missed by 6.0 hours")
	if err != nil {
		t.Fatalf("Escalate: %v", err)
	}
	if !ok {
		t.Fatal("expected escalation to apply")
	}

	stored := store.TicketByID(ticket.ID)
	if stored.Status != domain.TicketStatusEscalated {
		t.Fatalf("status = %s, want ESCALATED", stored.Status)
	}
	if stored.EscalatedAt == nil || stored.EscalationReason == nil {
		t.Fatal("escalation timestamp and reason must be recorded")
	}
	if stored.AssignedTo == nil || *stored.AssignedTo != manager {
		t.Fatalf("assigned_to = %v, want manager %s", stored.AssignedTo, manager)
	}

	rows := store.AssignmentRows(ticket.ID)
	if len(rows) != 1 {
		t.Fatalf("ledger rows = %d, want 1", len(rows))
	}
	row := rows[0]
	if row.Reason != domain.ReasonEscalation || row.AssignedBy != domain.AssignedBySystem {
		t.Fatalf("ledger row = %+v, want system escalation", row)
	}
	if row.TeamID == nil || *row.TeamID != team.ID {
		t.Fatalf("ledger row team = %v, want %s", row.TeamID, team.ID)
	}

	if got := dispatcher.ofType(events.EventTicketEscalated); len(got) != 1 {
		t.Fatalf("escalated events = %d, want 1", len(got))
	}
	if metrics.Escalations() != 1 {
		t.Fatalf("escalation count = %d, want 1", metrics.Escalations())
	}
}

func TestEscalateIsIdempotent(t *testing.T) {
	manager := "manager-1"
	store, svc, dispatcher, _ := newEscalationFixture()
	ticket, _ := seedAssignedTicket(store, &manager)

	if ok, err := svc.Escalate(context.Background(), "cpt", ticket.ID, "overdue"); err != nil || !ok {
		t.Fatalf("first Escalate = (%v, %v), want (true, nil)", ok, err)
	}
	before := store.TicketByID(ticket.ID)

	ok, err := svc.Escalate(context.Background(), "cpt", ticket.ID, "overdue again")
	if err != nil {
		t.Fatalf("second Escalate: %v", err)
	}
	if ok {
		t.Fatal("second escalation must be a no-op")
	}

	after := store.TicketByID(ticket.ID)
	if !after.EscalatedAt.Equal(*before.EscalatedAt) || *after.EscalationReason != *before.EscalationReason {
		t.Fatal("repeat escalation must not rewrite escalation fields")
	}
	if got := dispatcher.ofType(events.EventTicketEscalated); len(got) != 1 {
		t.Fatalf("escalated events = %d, want 1", len(got))
	}
}

func TestEscalateWithoutManagerStillEscalates(t *testing.T) {
	store, svc, _, _ := newEscalationFixture()
	ticket, _ := seedAssignedTicket(store, nil)

	ok, err := svc.Escalate(context.Background(), "cpt", ticket.ID, "overdue")
	if err != nil || !ok {
		t.Fatalf("Escalate = (%v, %v), want (true, nil)", ok, err)
	}

	stored := store.TicketByID(ticket.ID)
	if stored.Status != domain.TicketStatusEscalated {
		t.Fatalf("status = %s, want ESCALATED", stored.Status)
	}
	// No manager means no ledger mutation; the team stays as-is.
	if rows := store.AssignmentRows(ticket.ID); len(rows) != 0 {
		t.Fatalf("ledger rows = %d, want 0", len(rows))
	}
}

func TestEscalateUnassignedTicket(t *testing.T) {
	store, svc, _, _ := newEscalationFixture()
	ticket := store.SeedTicket(domain.NewTicket("cpt", "citizen-1", domain.CategoryWater, "burst pipe"))

	ok, err := svc.Escalate(context.Background(), "cpt", ticket.ID, "overdue")
	if err != nil || !ok {
		t.Fatalf("Escalate = (%v, %v), want (true, nil)", ok, err)
	}
	if store.TicketByID(ticket.ID).Status != domain.TicketStatusEscalated {
		t.Fatal("unassigned tickets still escalate")
	}
}

func TestEscalateSkipsTerminalTickets(t *testing.T) {
	store, svc, _, _ := newEscalationFixture()
	ticket := domain.NewTicket("cpt", "citizen-1", domain.CategoryWater, "burst pipe")
	ticket.Status = domain.TicketStatusClosed
	store.SeedTicket(ticket)

	ok, err := svc.Escalate(context.Background(), "cpt", ticket.ID, "overdue")
	if err != nil {
		t.Fatalf("Escalate: %v", err)
	}
	if ok {
		t.Fatal("terminal tickets must not escalate")
	}
}

func TestEscalateBacksOffWhenLockHeld(t *testing.T) {
	manager := "manager-1"
	store, svc, dispatcher, metrics := newEscalationFixture()
	ticket, _ := seedAssignedTicket(store, &manager)

	err := store.WithinTx(context.Background(), func(ctx context.Context, tx repository.Store) error {
		acquired, err := tx.TryTicketLock(ctx, ticket.ID)
		if err != nil || !acquired {
			t.Fatalf("setup lock = (%v, %v), want held", acquired, err)
		}

		ok, err := svc.Escalate(ctx, "cpt", ticket.ID, "overdue")
		if err != nil {
			t.Fatalf("Escalate: %v", err)
		}
		if ok {
			t.Fatal("escalation must back off while another worker holds the lock")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("WithinTx: %v", err)
	}

	if store.TicketByID(ticket.ID).Status != domain.TicketStatusOpen {
		t.Fatal("contended escalation must not mutate the ticket")
	}
	if metrics.LockContention() != 1 {
		t.Fatalf("lock contention count = %d, want 1", metrics.LockContention())
	}
	if got := dispatcher.ofType(events.EventTicketEscalated); len(got) != 0 {
		t.Fatalf("escalated events = %d, want 0", len(got))
	}
}

func TestBulkEscalateCountsOnlyApplied(t *testing.T) {
	manager := "manager-1"
	store, svc, _, _ := newEscalationFixture()
	open, _ := seedAssignedTicket(store, &manager)
	closed := domain.NewTicket("cpt", "citizen-2", domain.CategoryWater, "done already")
	closed.Status = domain.TicketStatusClosed
	store.SeedTicket(closed)

	breaches := []Breach{
		{Ticket: *store.TicketByID(open.ID), Type: BreachResponse, OverdueHours: 6},
		{Ticket: *store.TicketByID(closed.ID), Type: BreachResponse, OverdueHours: 2},
	}
	if count := svc.BulkEscalate(context.Background(), breaches); count != 1 {
		t.Fatalf("BulkEscalate = %d, want 1", count)
	}
}

func TestBreachReason(t *testing.T) {
	reason := breachReason(Breach{Type: BreachResponse, OverdueHours: 6.04})
	if !strings.Contains(reason, "response") || !strings.Contains(reason, "6.0") {
		t.Fatalf("reason = %q, want response milestone with overdue hours", reason)
	}
	reason = breachReason(Breach{Type: BreachResolution, OverdueHours: 1.5})
	if !strings.Contains(reason, "resolution") {
		t.Fatalf("reason = %q, want resolution milestone", reason)
	}
}
