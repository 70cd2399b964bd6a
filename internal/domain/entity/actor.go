package entity

// Role is an authorization role attached to a caller by the identity provider.
type Role string

const (
	RolePayrollSpecialist Role = "PAYROLL_SPECIALIST"
	RolePayrollManager    Role = "PAYROLL_MANAGER"
	RoleFinanceStaff      Role = "FINANCE_STAFF"
)

// Actor is the authenticated caller of an engine operation. Authentication
// itself happens upstream; the engine only checks role membership.
type Actor struct {
	ID    string
	Roles []Role
}

// HasAnyRole returns true if the actor holds at least one of the given roles.
func (a Actor) HasAnyRole(roles ...Role) bool {
	for _, have := range a.Roles {
		for _, want := range roles {
			if have == want {
				return true
			}
		}
	}
	return false
}
