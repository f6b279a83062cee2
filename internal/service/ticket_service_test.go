package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/civickit/municipal-ticketing/internal/domain"
	"github.com/civickit/municipal-ticketing/internal/events"
	"github.com/civickit/municipal-ticketing/internal/observability"
	"github.com/civickit/municipal-ticketing/internal/repository"
	"github.com/civickit/municipal-ticketing/internal/repository/repotest"
	apperrors "github.com/civickit/municipal-ticketing/pkg/util"
)

func newTicketFixture() (*repotest.Store, *TicketService, *recordingDispatcher) {
	store := repotest.New()
	dispatcher := &recordingDispatcher{}
	logger := zap.NewNop()
	routing := NewRoutingService(store, logger, observability.NewMetrics())
	assignments := NewAssignmentService(AssignmentDependencies{
		Store:      store,
		Routing:    routing,
		Dispatcher: dispatcher,
		Logger:     logger,
	})
	sla := NewSLAService(store, logger)
	tickets := NewTicketService(TicketDependencies{
		Store:       store,
		Assignments: assignments,
		SLA:         sla,
		Dispatcher:  dispatcher,
		Logger:      logger,
	})
	return store, tickets, dispatcher
}

func TestCreateTicketRoutesAndSetsDeadlines(t *testing.T) {
	store, svc, dispatcher := newTicketFixture()
	team := store.SeedTeam(&domain.Team{TenantID: "cpt", Name: "Water", Category: domain.CategoryWater, IsActive: true})

	ticket, err := svc.CreateTicket(context.Background(), TicketCreateInput{
		TenantID:    "cpt",
		CreatedBy:   "citizen-1",
		Category:    domain.CategoryWater,
		Description: "burst pipe on Main Rd",
		Locale:      "en",
	})
	if err != nil {
		t.Fatalf("CreateTicket: %v", err)
	}
	if !strings.HasPrefix(ticket.TrackingKey, "SR-") {
		t.Fatalf("tracking key = %q, want SR- prefix", ticket.TrackingKey)
	}
	if ticket.SLAResponseDeadline == nil || ticket.SLAResolutionDeadline == nil {
		t.Fatal("municipal tickets must receive SLA deadlines")
	}

	stored := store.TicketByID(ticket.ID)
	if stored.TeamID == nil || *stored.TeamID != team.ID {
		t.Fatalf("ticket team = %v, want auto-routed to %s", stored.TeamID, team.ID)
	}
	if got := dispatcher.ofType(events.EventTicketCreated); len(got) != 1 {
		t.Fatalf("created events = %d, want 1", len(got))
	}
	if got := dispatcher.ofType(events.EventTicketAssigned); len(got) != 1 {
		t.Fatalf("assigned events = %d, want 1", len(got))
	}
}

func TestCreateSensitiveTicket(t *testing.T) {
	store, svc, _ := newTicketFixture()
	saps := store.SeedTeam(&domain.Team{TenantID: "cpt", Name: "SAPS", Category: domain.CategoryGBV, IsSAPS: true, IsActive: true})
	store.SeedTeam(&domain.Team{TenantID: "cpt", Name: "Water", Category: domain.CategoryWater, IsActive: true})

	ticket, err := svc.CreateTicket(context.Background(), TicketCreateInput{
		TenantID:    "cpt",
		CreatedBy:   "citizen-1",
		Category:    domain.CategoryGBV,
		Description: "report",
	})
	if err != nil {
		t.Fatalf("CreateTicket: %v", err)
	}
	if !ticket.IsSensitive {
		t.Fatal("GBV ticket must be sensitive")
	}
	if ticket.SLAResponseDeadline != nil || ticket.SLAResolutionDeadline != nil {
		t.Fatal("sensitive tickets must not carry SLA deadlines")
	}
	stored := store.TicketByID(ticket.ID)
	if stored.TeamID == nil || *stored.TeamID != saps.ID {
		t.Fatalf("ticket team = %v, want SAPS team %s", stored.TeamID, saps.ID)
	}
}

func TestCreateTicketWithoutEligibleTeam(t *testing.T) {
	store, svc, _ := newTicketFixture()

	ticket, err := svc.CreateTicket(context.Background(), TicketCreateInput{
		TenantID:    "cpt",
		CreatedBy:   "citizen-1",
		Category:    domain.CategoryWater,
		Description: "burst pipe",
	})
	if err != nil {
		t.Fatalf("CreateTicket: %v", err)
	}
	if ticket.TrackingKey == "" {
		t.Fatal("unrouted creation must still produce a tracking key")
	}
	stored := store.TicketByID(ticket.ID)
	if stored.Status != domain.TicketStatusOpen || stored.TeamID != nil {
		t.Fatalf("ticket = %+v, want open and unassigned", stored)
	}
}

func TestCreateTicketRequiresTenant(t *testing.T) {
	_, svc, _ := newTicketFixture()

	_, err := svc.CreateTicket(context.Background(), TicketCreateInput{
		CreatedBy:   "citizen-1",
		Category:    domain.CategoryWater,
		Description: "burst pipe",
	})
	domainErr := apperrors.ToDomainError(err)
	if domainErr == nil || domainErr.Code != "VALIDATION_FAILED" {
		t.Fatalf("err = %v, want validation failure", err)
	}
}

func TestGetTicketHidesSensitiveFromNonLiaison(t *testing.T) {
	store, svc, _ := newTicketFixture()
	ticket := store.SeedTicket(domain.NewTicket("cpt", "citizen-1", domain.CategoryGBV, "report"))

	if _, err := svc.GetTicket(context.Background(), "cpt", ticket.ID, domain.RoleOperator); !apperrors.IsNotFound(err) {
		t.Fatalf("operator read = %v, want not found", err)
	}
	if _, err := svc.GetTicket(context.Background(), "cpt", ticket.ID, domain.RoleAdmin); !apperrors.IsNotFound(err) {
		t.Fatalf("admin read = %v, want not found", err)
	}

	got, err := svc.GetTicket(context.Background(), "cpt", ticket.ID, domain.RoleSAPSLiaison)
	if err != nil {
		t.Fatalf("liaison read: %v", err)
	}
	if got.ID != ticket.ID {
		t.Fatalf("ticket = %s, want %s", got.ID, ticket.ID)
	}
}

func TestTrackTicket(t *testing.T) {
	store, svc, _ := newTicketFixture()
	ticket := domain.NewTicket("cpt", "citizen-1", domain.CategoryGBV, "report")
	ticket.TrackingKey = "SR-TEST000001"
	store.SeedTicket(ticket)

	got, err := svc.TrackTicket(context.Background(), "cpt", "SR-TEST000001")
	if err != nil {
		t.Fatalf("TrackTicket: %v", err)
	}
	if got.ID != ticket.ID {
		t.Fatalf("tracked %s, want %s", got.ID, ticket.ID)
	}

	if _, err := svc.TrackTicket(context.Background(), "cpt", "SR-MISSING"); !apperrors.IsNotFound(err) {
		t.Fatalf("missing key = %v, want not found", err)
	}
	// Tracking keys never resolve across tenants.
	if _, err := svc.TrackTicket(context.Background(), "jhb", "SR-TEST000001"); !apperrors.IsNotFound(err) {
		t.Fatalf("cross-tenant key = %v, want not found", err)
	}
}

func TestListTicketsExcludesSensitive(t *testing.T) {
	store, svc, _ := newTicketFixture()
	store.SeedTicket(domain.NewTicket("cpt", "citizen-1", domain.CategoryWater, "burst pipe"))
	store.SeedTicket(domain.NewTicket("cpt", "citizen-2", domain.CategoryGBV, "report"))

	tickets, err := svc.ListTickets(context.Background(), repository.TicketFilter{TenantID: "cpt"})
	if err != nil {
		t.Fatalf("ListTickets: %v", err)
	}
	if len(tickets) != 1 || tickets[0].IsSensitive {
		t.Fatalf("tickets = %+v, want one non-sensitive", tickets)
	}
}

func TestListTicketsHonorsFiltersAndPagination(t *testing.T) {
	store, svc, _ := newTicketFixture()
	base := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	worker := "operator-7"
	for i := 0; i < 3; i++ {
		ticket := domain.NewTicket("cpt", "citizen-1", domain.CategoryWater, "burst pipe")
		ticket.CreatedAt = base.Add(time.Duration(i) * time.Hour)
		if i == 0 {
			ticket.AssignedTo = &worker
		}
		store.SeedTicket(ticket)
	}

	tickets, err := svc.ListTickets(context.Background(), repository.TicketFilter{
		TenantID: "cpt", AssignedTo: &worker,
	})
	if err != nil {
		t.Fatalf("ListTickets: %v", err)
	}
	if len(tickets) != 1 || tickets[0].AssignedTo == nil || *tickets[0].AssignedTo != worker {
		t.Fatalf("tickets = %+v, want the one assigned to %s", tickets, worker)
	}

	from := base.Add(30 * time.Minute)
	to := base.Add(90 * time.Minute)
	tickets, err = svc.ListTickets(context.Background(), repository.TicketFilter{
		TenantID: "cpt", CreatedFrom: &from, CreatedTo: &to,
	})
	if err != nil {
		t.Fatalf("ListTickets: %v", err)
	}
	if len(tickets) != 1 || !tickets[0].CreatedAt.Equal(base.Add(time.Hour)) {
		t.Fatalf("tickets = %+v, want only the middle one", tickets)
	}

	// Newest first, one page at a time.
	tickets, err = svc.ListTickets(context.Background(), repository.TicketFilter{
		TenantID: "cpt", Limit: 1, Offset: 1,
	})
	if err != nil {
		t.Fatalf("ListTickets: %v", err)
	}
	if len(tickets) != 1 || !tickets[0].CreatedAt.Equal(base.Add(time.Hour)) {
		t.Fatalf("tickets = %+v, want second-newest only", tickets)
	}
}

func TestListSensitiveTicketsRequiresLiaison(t *testing.T) {
	store, svc, _ := newTicketFixture()
	store.SeedTicket(domain.NewTicket("cpt", "citizen-1", domain.CategoryGBV, "report"))

	if _, err := svc.ListSensitiveTickets(context.Background(), "cpt", domain.RoleOperator, 20, 0); err == nil {
		t.Fatal("operator listing must be forbidden")
	}
	tickets, err := svc.ListSensitiveTickets(context.Background(), "cpt", domain.RoleSAPSLiaison, 20, 0)
	if err != nil {
		t.Fatalf("liaison listing: %v", err)
	}
	if len(tickets) != 1 {
		t.Fatalf("tickets = %d, want 1", len(tickets))
	}
}

func TestCloseTicket(t *testing.T) {
	store, svc, dispatcher := newTicketFixture()
	ticket := store.SeedTicket(domain.NewTicket("cpt", "citizen-1", domain.CategoryWater, "burst pipe"))

	closed, err := svc.CloseTicket(context.Background(), "cpt", ticket.ID, domain.TicketStatusResolved, "operator-1", domain.RoleOperator)
	if err != nil {
		t.Fatalf("CloseTicket: %v", err)
	}
	if closed.Status != domain.TicketStatusResolved || closed.ResolvedAt == nil {
		t.Fatalf("ticket = %+v, want resolved with timestamp", closed)
	}
	if got := dispatcher.ofType(events.EventTicketStatusChanged); len(got) != 1 {
		t.Fatalf("status-changed events = %d, want 1", len(got))
	}

	// Idempotent: same target is a quiet no-op.
	again, err := svc.CloseTicket(context.Background(), "cpt", ticket.ID, domain.TicketStatusResolved, "operator-1", domain.RoleOperator)
	if err != nil {
		t.Fatalf("repeat CloseTicket: %v", err)
	}
	if !again.ResolvedAt.Equal(*closed.ResolvedAt) {
		t.Fatal("repeat close must not rewrite resolved_at")
	}
	if got := dispatcher.ofType(events.EventTicketStatusChanged); len(got) != 1 {
		t.Fatalf("status-changed events after repeat = %d, want 1", len(got))
	}
}

func TestCloseTicketHidesSensitiveFromNonLiaison(t *testing.T) {
	store, svc, dispatcher := newTicketFixture()
	ticket := store.SeedTicket(domain.NewTicket("cpt", "citizen-1", domain.CategoryGBV, "report"))

	if _, err := svc.CloseTicket(context.Background(), "cpt", ticket.ID, domain.TicketStatusResolved, "operator-1", domain.RoleOperator); !apperrors.IsNotFound(err) {
		t.Fatalf("operator close = %v, want not found", err)
	}
	if _, err := svc.CloseTicket(context.Background(), "cpt", ticket.ID, domain.TicketStatusResolved, "admin-1", domain.RoleAdmin); !apperrors.IsNotFound(err) {
		t.Fatalf("admin close = %v, want not found", err)
	}
	stored := store.TicketByID(ticket.ID)
	if stored.Status != domain.TicketStatusOpen || stored.ResolvedAt != nil {
		t.Fatalf("ticket = %+v, want untouched", stored)
	}
	if got := dispatcher.ofType(events.EventTicketStatusChanged); len(got) != 0 {
		t.Fatalf("status-changed events = %d, want 0", len(got))
	}

	closed, err := svc.CloseTicket(context.Background(), "cpt", ticket.ID, domain.TicketStatusResolved, "liaison-1", domain.RoleSAPSLiaison)
	if err != nil {
		t.Fatalf("liaison close: %v", err)
	}
	if closed.Status != domain.TicketStatusResolved {
		t.Fatalf("status = %s, want RESOLVED", closed.Status)
	}
}

func TestCloseTicketRejectsNonTerminalTarget(t *testing.T) {
	store, svc, _ := newTicketFixture()
	ticket := store.SeedTicket(domain.NewTicket("cpt", "citizen-1", domain.CategoryWater, "burst pipe"))

	_, err := svc.CloseTicket(context.Background(), "cpt", ticket.ID, domain.TicketStatusInProgress, "operator-1", domain.RoleOperator)
	domainErr := apperrors.ToDomainError(err)
	if domainErr == nil || domainErr.Code != "VALIDATION_FAILED" {
		t.Fatalf("err = %v, want validation failure", err)
	}
}

func TestGenerateTrackingKeyShape(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		key := generateTrackingKey()
		if !strings.HasPrefix(key, "SR-") || len(key) != 13 {
			t.Fatalf("key = %q, want SR- prefix and 13 chars", key)
		}
		if seen[key] {
			t.Fatalf("duplicate key %q", key)
		}
		seen[key] = true
	}
}
