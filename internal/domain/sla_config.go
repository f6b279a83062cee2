package domain

import "time"

// System-wide fallback applied when a tenant has no SLA configuration
// at all.
const (
	DefaultResponseHours       = 24
	DefaultResolutionHours     = 168
	DefaultWarningThresholdPct = 80
)

// SLAConfig holds response/resolution targets for one tenant and
// category. A nil category is the tenant-wide default.
type SLAConfig struct {
	ID                  string
	TenantID            string
	Category            *TicketCategory
	ResponseHours       int
	ResolutionHours     int
	WarningThresholdPct int
	IsActive            bool
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// SystemDefaultSLA returns the hard-coded fallback config for a tenant.
func SystemDefaultSLA(tenantID string) *SLAConfig {
	return &SLAConfig{
		TenantID:            tenantID,
		ResponseHours:       DefaultResponseHours,
		ResolutionHours:     DefaultResolutionHours,
		WarningThresholdPct: DefaultWarningThresholdPct,
		IsActive:            true,
	}
}

// ResponseDeadline computes the response deadline from a creation time.
func (c *SLAConfig) ResponseDeadline(createdAt time.Time) time.Time {
	return createdAt.Add(time.Duration(c.ResponseHours) * time.Hour)
}

// ResolutionDeadline computes the resolution deadline from a creation time.
func (c *SLAConfig) ResolutionDeadline(createdAt time.Time) time.Time {
	return createdAt.Add(time.Duration(c.ResolutionHours) * time.Hour)
}
