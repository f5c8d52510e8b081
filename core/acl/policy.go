package acl

import (
	"fmt"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
)

const (
	RoleOwner        = "Owner"
	RoleSuperAdmin   = "SuperAdmin"
	RoleOrgAdmin     = "OrgAdmin"
	RoleServiceAdmin = "ServiceAdmin"
)

const (
	scopeOrganization = "organization"
	scopeService      = "service"
)

const roleModel = `
[request_definition]
r = sub, obj

[policy_definition]
p = sub, obj

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = r.sub == p.sub && r.obj == p.obj
`

// RolePolicy decides which organization and service roles bypass ACL rows.
type RolePolicy struct {
	enforcer *casbin.Enforcer
}

func DefaultRolePolicy() (*RolePolicy, error) {
	m, err := model.NewModelFromString(roleModel)
	if err != nil {
		return nil, fmt.Errorf("role model: %w", err)
	}
	e, err := casbin.NewEnforcer(m)
	if err != nil {
		return nil, fmt.Errorf("role enforcer: %w", err)
	}
	rules := [][]string{
		{RoleOwner, scopeOrganization},
		{RoleSuperAdmin, scopeOrganization},
		{RoleOrgAdmin, scopeOrganization},
		{RoleServiceAdmin, scopeService},
	}
	for _, r := range rules {
		if _, err := e.AddPolicy(r[0], r[1]); err != nil {
			return nil, fmt.Errorf("role policy %s: %w", r[0], err)
		}
	}
	return &RolePolicy{enforcer: e}, nil
}

// IsRootRole reports whether an organization role grants full access to every
// service in the organization.
func (p *RolePolicy) IsRootRole(role string) bool {
	return p.allowed(role, scopeOrganization)
}

// IsServiceAdmin reports whether a per-service role grants full access to that service.
func (p *RolePolicy) IsServiceAdmin(role string) bool {
	return p.allowed(role, scopeService)
}

func (p *RolePolicy) allowed(role, scope string) bool {
	if p == nil || role == "" {
		return false
	}
	ok, err := p.enforcer.Enforce(role, scope)
	return err == nil && ok
}
