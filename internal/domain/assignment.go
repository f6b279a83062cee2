package domain

import "time"

// AssignedBySystem marks ledger rows written by automatic routing and
// escalation rather than an operator.
const AssignedBySystem = "system"

// AssignmentReason enumerates why an assignment row was written.
type AssignmentReason string

const (
	ReasonAutoRoute  AssignmentReason = "AUTO_ROUTE"
	ReasonManual     AssignmentReason = "MANUAL"
	ReasonEscalation AssignmentReason = "ESCALATION"
)

// Assignment is one immutable row in a ticket's assignment ledger.
// Only the IsCurrent flag is ever updated after insert; at most one
// row per ticket is current at any time.
type Assignment struct {
	ID         string
	TenantID   string
	TicketID   string
	TeamID     *string
	AssignedTo *string
	AssignedBy string
	Reason     AssignmentReason
	IsCurrent  bool
	CreatedAt  time.Time
}
