package domain

// TeamEligibleFor is the single statement of the GBV firewall:
// sensitive tickets go to SAPS liaison teams only, and SAPS teams
// handle nothing else. Every mutation site that touches a ticket's
// team (routing, assignment, reassignment, escalation) must call this
// before committing.
func TeamEligibleFor(ticket *Ticket, team *Team) bool {
	if ticket == nil || team == nil {
		return false
	}
	if ticket.TenantID != team.TenantID {
		return false
	}
	return ticket.IsSensitive == team.IsSAPS
}
