package domain

// SubjectType differentiates citizen vs operator tokens.
type SubjectType string

const (
	SubjectTypeCitizen  SubjectType = "CITIZEN"
	SubjectTypeOperator SubjectType = "OPERATOR"
)

// OperatorRole enumerates municipal operator roles. SAPS liaison is
// the only role permitted to read sensitive tickets.
type OperatorRole string

const (
	RoleOperator    OperatorRole = "OPERATOR"
	RoleSAPSLiaison OperatorRole = "SAPS_LIAISON"
	RoleAdmin       OperatorRole = "ADMIN"
)

// CanViewSensitive reports whether the role clears the GBV read gate.
// Only the law-enforcement liaison role sees sensitive tickets.
func (r OperatorRole) CanViewSensitive() bool {
	return r == RoleSAPSLiaison
}
