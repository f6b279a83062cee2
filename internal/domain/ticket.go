package domain

import (
	"strings"
	"time"
)

// TicketStatus enumerates lifecycle states for service requests.
type TicketStatus string

const (
	TicketStatusOpen       TicketStatus = "OPEN"
	TicketStatusInProgress TicketStatus = "IN_PROGRESS"
	TicketStatusEscalated  TicketStatus = "ESCALATED"
	TicketStatusResolved   TicketStatus = "RESOLVED"
	TicketStatusClosed     TicketStatus = "CLOSED"
)

// Terminal reports whether no further engine transition applies.
func (s TicketStatus) Terminal() bool {
	return s == TicketStatusResolved || s == TicketStatusClosed
}

// TicketCategory enumerates municipal service categories.
type TicketCategory string

const (
	CategoryWater       TicketCategory = "WATER"
	CategoryRoads       TicketCategory = "ROADS"
	CategoryElectricity TicketCategory = "ELECTRICITY"
	CategoryWaste       TicketCategory = "WASTE"
	CategorySanitation  TicketCategory = "SANITATION"
	CategoryGBV         TicketCategory = "GBV"
	CategoryOther       TicketCategory = "OTHER"
)

// ParseCategory normalizes a free-form category string.
func ParseCategory(raw string) (TicketCategory, bool) {
	switch TicketCategory(strings.ToUpper(strings.TrimSpace(raw))) {
	case CategoryWater:
		return CategoryWater, true
	case CategoryRoads:
		return CategoryRoads, true
	case CategoryElectricity:
		return CategoryElectricity, true
	case CategoryWaste:
		return CategoryWaste, true
	case CategorySanitation:
		return CategorySanitation, true
	case CategoryGBV:
		return CategoryGBV, true
	case CategoryOther:
		return CategoryOther, true
	}
	return "", false
}

// TicketSeverity enumerates reported urgency.
type TicketSeverity string

const (
	SeverityLow      TicketSeverity = "LOW"
	SeverityMedium   TicketSeverity = "MEDIUM"
	SeverityHigh     TicketSeverity = "HIGH"
	SeverityCritical TicketSeverity = "CRITICAL"
)

// Ticket is the aggregate for citizen service requests. Sensitive
// (GBV) tickets never carry SLA deadlines and may only be assigned to
// SAPS liaison teams.
type Ticket struct {
	ID          string
	TenantID    string
	TrackingKey string
	Category    TicketCategory
	Description string
	Location    *Point
	Severity    TicketSeverity
	Status      TicketStatus
	IsSensitive bool
	CreatedBy   string
	Locale      string
	TeamID      *string
	AssignedTo  *string

	CreatedAt        time.Time
	UpdatedAt        time.Time
	FirstRespondedAt *time.Time
	ResolvedAt       *time.Time
	EscalatedAt      *time.Time
	EscalationReason *string

	SLAResponseDeadline   *time.Time
	SLAResolutionDeadline *time.Time
}

// NewTicket builds an open ticket for the tenant, deriving the
// sensitivity flag from the category. is_sensitive has no independent
// existence: GBV and only GBV is sensitive.
func NewTicket(tenantID, createdBy string, category TicketCategory, description string) *Ticket {
	return &Ticket{
		TenantID:    tenantID,
		CreatedBy:   createdBy,
		Category:    category,
		Description: strings.TrimSpace(description),
		Severity:    SeverityMedium,
		Status:      TicketStatusOpen,
		IsSensitive: category == CategoryGBV,
	}
}

// NormalizeSensitivity re-derives the sensitivity flag from the
// category. Called on every load path so a corrupted row can never
// smuggle a GBV ticket into the municipal paths.
func (t *Ticket) NormalizeSensitivity() {
	t.IsSensitive = t.Category == CategoryGBV
}
