package domain

import "time"

// Team represents a responder unit within a municipality. SAPS teams
// are law-enforcement liaison units and the only valid destination for
// sensitive tickets.
type Team struct {
	ID        string
	TenantID  string
	Name      string
	Category  TicketCategory
	Location  *Point
	ManagerID *string
	IsSAPS    bool
	IsActive  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}
