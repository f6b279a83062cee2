package service

import (
	"context"
	"testing"

	"go.uber.org/zap"

	"github.com/civickit/municipal-ticketing/internal/domain"
	"github.com/civickit/municipal-ticketing/internal/observability"
	"github.com/civickit/municipal-ticketing/internal/repository/repotest"
)

var (
	cityHall    = domain.Point{Lat: -33.9249, Lng: 18.4241}
	nearCity    = domain.Point{Lat: -33.9300, Lng: 18.4300} // under 1km away
	observatory = domain.Point{Lat: -33.9372, Lng: 18.4729} // ~4.5km away
	stellen     = domain.Point{Lat: -33.9321, Lng: 18.8602} // ~40km away
)

func newRoutingFixture() (*repotest.Store, *RoutingService, *observability.Metrics) {
	store := repotest.New()
	metrics := observability.NewMetrics()
	return store, NewRoutingService(store, zap.NewNop(), metrics), metrics
}

func TestRouteMunicipalPrefersNearestTeam(t *testing.T) {
	store, svc, metrics := newRoutingFixture()
	store.SeedTeam(&domain.Team{TenantID: "cpt", Name: "Water Obs", Category: domain.CategoryWater, Location: &observatory, IsActive: true})
	near := store.SeedTeam(&domain.Team{TenantID: "cpt", Name: "Water Central", Category: domain.CategoryWater, Location: &nearCity, IsActive: true})

	ticket := domain.NewTicket("cpt", "citizen-1", domain.CategoryWater, "burst pipe")
	ticket.Location = &cityHall

	team, err := svc.Route(context.Background(), ticket)
	if err != nil {
		t.Fatalf("Route: %v", err)
	}
	if team == nil || team.ID != near.ID {
		t.Fatalf("routed to %+v, want nearest team %s", team, near.ID)
	}
	if metrics.RoutingCount("spatial") != 1 {
		t.Fatal("expected a spatial routing outcome")
	}
}

func TestRouteMunicipalNeverSelectsSAPSTeam(t *testing.T) {
	store, svc, _ := newRoutingFixture()
	store.SeedTeam(&domain.Team{TenantID: "cpt", Name: "SAPS Central", Category: domain.CategoryGBV, Location: &nearCity, IsSAPS: true, IsActive: true})
	water := store.SeedTeam(&domain.Team{TenantID: "cpt", Name: "Water Obs", Category: domain.CategoryWater, Location: &observatory, IsActive: true})

	ticket := domain.NewTicket("cpt", "citizen-1", domain.CategoryWater, "burst pipe")
	ticket.Location = &cityHall

	team, err := svc.Route(context.Background(), ticket)
	if err != nil {
		t.Fatalf("Route: %v", err)
	}
	if team == nil || team.ID != water.ID {
		t.Fatalf("routed to %+v, want municipal team %s", team, water.ID)
	}
}

func TestRouteFallsBackToCategoryMatch(t *testing.T) {
	store, svc, metrics := newRoutingFixture()
	// Only team in category is outside the radius.
	team := store.SeedTeam(&domain.Team{TenantID: "cpt", Name: "Water Stellenbosch", Category: domain.CategoryWater, Location: &stellen, IsActive: true})

	ticket := domain.NewTicket("cpt", "citizen-1", domain.CategoryWater, "burst pipe")
	ticket.Location = &cityHall

	routed, err := svc.Route(context.Background(), ticket)
	if err != nil {
		t.Fatalf("Route: %v", err)
	}
	if routed == nil || routed.ID != team.ID {
		t.Fatalf("routed to %+v, want category fallback %s", routed, team.ID)
	}
	if metrics.RoutingCount("category") != 1 {
		t.Fatal("expected a category routing outcome")
	}
}

func TestRouteWithoutLocationUsesCategoryMatch(t *testing.T) {
	store, svc, _ := newRoutingFixture()
	team := store.SeedTeam(&domain.Team{TenantID: "cpt", Name: "Roads", Category: domain.CategoryRoads, IsActive: true})

	ticket := domain.NewTicket("cpt", "citizen-1", domain.CategoryRoads, "pothole")

	routed, err := svc.Route(context.Background(), ticket)
	if err != nil {
		t.Fatalf("Route: %v", err)
	}
	if routed == nil || routed.ID != team.ID {
		t.Fatalf("routed to %+v, want %s", routed, team.ID)
	}
}

func TestRouteNoEligibleTeam(t *testing.T) {
	store, svc, metrics := newRoutingFixture()
	store.SeedTeam(&domain.Team{TenantID: "cpt", Name: "Inactive Water", Category: domain.CategoryWater, IsActive: false})
	store.SeedTeam(&domain.Team{TenantID: "jhb", Name: "Other Tenant Water", Category: domain.CategoryWater, IsActive: true})

	ticket := domain.NewTicket("cpt", "citizen-1", domain.CategoryWater, "burst pipe")

	team, err := svc.Route(context.Background(), ticket)
	if err != nil {
		t.Fatalf("Route: %v", err)
	}
	if team != nil {
		t.Fatalf("routed to %+v, want no team", team)
	}
	if metrics.RoutingCount("none") != 1 {
		t.Fatal("expected a none routing outcome")
	}
}

func TestRouteSensitiveSelectsSAPSOnly(t *testing.T) {
	store, svc, _ := newRoutingFixture()
	store.SeedTeam(&domain.Team{TenantID: "cpt", Name: "Water Central", Category: domain.CategoryWater, Location: &nearCity, IsActive: true})
	saps := store.SeedTeam(&domain.Team{TenantID: "cpt", Name: "SAPS Obs", Category: domain.CategoryGBV, Location: &observatory, IsSAPS: true, IsActive: true})

	ticket := domain.NewTicket("cpt", "citizen-1", domain.CategoryGBV, "report")
	ticket.Location = &cityHall

	team, err := svc.Route(context.Background(), ticket)
	if err != nil {
		t.Fatalf("Route: %v", err)
	}
	if team == nil || team.ID != saps.ID {
		t.Fatalf("routed to %+v, want SAPS team %s", team, saps.ID)
	}
	if !team.IsSAPS {
		t.Fatal("sensitive ticket routed to a non-SAPS team")
	}
}

func TestRouteSensitiveWithoutSAPSTeam(t *testing.T) {
	store, svc, metrics := newRoutingFixture()
	store.SeedTeam(&domain.Team{TenantID: "cpt", Name: "Water Central", Category: domain.CategoryWater, Location: &nearCity, IsActive: true})

	ticket := domain.NewTicket("cpt", "citizen-1", domain.CategoryGBV, "report")
	ticket.Location = &cityHall

	team, err := svc.Route(context.Background(), ticket)
	if err != nil {
		t.Fatalf("Route: %v", err)
	}
	if team != nil {
		t.Fatalf("routed to %+v, want no team", team)
	}
	if metrics.RoutingCount("saps_gap") != 1 {
		t.Fatal("expected a saps_gap routing outcome")
	}
}
