package authroles

import (
	"slices"

	domainauth "github.com/target/engagement-ledger/internal/domain/auth"
)

// GroupRoleMapper grants a role for each configured group the identity belongs to.
type GroupRoleMapper struct {
	AdminGroup    string
	EmployerGroup string
	WorkerGroup   string
}

// Map returns granted roles in precedence order: admin, employer, worker.
func (m GroupRoleMapper) Map(groups []string) []domainauth.Role {
	var roles []domainauth.Role
	grant := func(group string, role domainauth.Role) {
		if group != "" && slices.Contains(groups, group) {
			roles = append(roles, role)
		}
	}
	grant(m.AdminGroup, domainauth.RoleAdmin)
	grant(m.EmployerGroup, domainauth.RoleEmployer)
	grant(m.WorkerGroup, domainauth.RoleWorker)
	return roles
}
