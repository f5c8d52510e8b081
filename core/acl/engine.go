package acl

import (
	"context"
	"fmt"

	"driveshare/core/errs"
	"driveshare/core/store"
	"driveshare/core/utils"
)

// Resource is the part of a document or folder the engine needs to decide access.
type Resource struct {
	CreatedBy    string
	Organization string
	Service      *store.ServiceRef
}

func DocumentResource(doc *store.Document) Resource {
	return Resource{CreatedBy: doc.CreatedBy, Organization: doc.Organization, Service: doc.Service}
}

// Result of an access decision. ViaPublic is set when the grant came from a
// public ACL row rather than the caller's own grant or role.
type Result struct {
	Granted   bool              `json:"access"`
	ViaPublic bool              `json:"is_public"`
	Level     store.AccessLevel `json:"level,omitempty"`
	Role      string            `json:"role,omitempty"`
}

var denied = Result{}

type Engine struct {
	store  store.ACLStore
	policy *RolePolicy
	logger *utils.Logger
}

func NewEngine(acls store.ACLStore, policy *RolePolicy, logger *utils.Logger) (*Engine, error) {
	if policy == nil {
		var err error
		if policy, err = DefaultRolePolicy(); err != nil {
			return nil, err
		}
	}
	return &Engine{store: acls, policy: policy, logger: logger}, nil
}

// ResolveAccess decides whether user may act on res at the required level
// inside organization org. Missing context denies, it never errors.
func (e *Engine) ResolveAccess(ctx context.Context, res Resource, user *store.User, org string, required store.AccessLevel, publicHint bool) (Result, error) {
	if user == nil {
		return denied, nil
	}
	if res.Service == nil || res.Service.ID == "" {
		if res.Organization == "" {
			if res.CreatedBy != "" && res.CreatedBy == user.ID {
				return Result{Granted: true, Level: store.LevelFull}, nil
			}
			return denied, nil
		}
		if org != "" && res.Organization == org {
			return Result{Granted: true, Level: store.LevelFull}, nil
		}
		return denied, nil
	}
	return e.resolveService(ctx, user, res.Service.ID, res.Service.Key, org, required, publicHint)
}

// CheckServiceFolderAccess resolves access to a folder generated by a service.
// The folder's service key names the service; there is no sub key.
func (e *Engine) CheckServiceFolderAccess(ctx context.Context, folder *store.Folder, user *store.User, org string, required store.AccessLevel, publicHint bool) (Result, error) {
	if folder == nil || user == nil || folder.ServiceKey == "" {
		return denied, nil
	}
	return e.resolveService(ctx, user, folder.ServiceKey, "", org, required, publicHint)
}

// CheckSystemFolderAccess consults roles only: root organization roles and a
// ServiceAdmin role on the folder's service.
func (e *Engine) CheckSystemFolderAccess(folder *store.Folder, roles []store.Role, org string, publicHint bool) Result {
	if folder == nil || publicHint || org == "" {
		return denied
	}
	if r, ok := e.roleBypass(roles, org, folder.ServiceKey); ok {
		return r
	}
	return denied
}

func (e *Engine) resolveService(ctx context.Context, user *store.User, serviceID, key, org string, required store.AccessLevel, publicHint bool) (Result, error) {
	if !publicHint && org != "" {
		if user.RoleIn(org) == nil {
			return denied, nil
		}
		if r, ok := e.roleBypass(user.Roles, org, serviceID); ok {
			return r, nil
		}
	}
	row, err := e.store.FindOne(ctx, store.ACLQuery{
		User:         user.ID,
		ServiceID:    serviceID,
		ServiceKey:   key,
		Organization: org,
		Public:       publicHint,
	})
	if err != nil {
		return denied, fmt.Errorf("acl lookup %s/%s: %w", serviceID, key, err)
	}
	if row == nil {
		return denied, nil
	}
	if Satisfies(row.Level, required) {
		return Result{Granted: true, Level: row.Level}, nil
	}
	if !row.Public {
		return denied, nil
	}
	if user.Sysadmin {
		return Result{Granted: true, ViaPublic: true, Level: store.LevelFull}, nil
	}
	if required == store.LevelRead || required == store.LevelWrite {
		return Result{Granted: true, ViaPublic: true, Level: required}, nil
	}
	return denied, nil
}

func (e *Engine) roleBypass(roles []store.Role, org, serviceID string) (Result, bool) {
	for _, role := range roles {
		if role.Organization != org {
			continue
		}
		if e.policy.IsRootRole(role.Role) {
			return Result{Granted: true, Level: store.LevelFull, Role: role.Role}, true
		}
		for _, sr := range role.Services {
			if sr.Service == serviceID && e.policy.IsServiceAdmin(sr.Role) {
				return Result{Granted: true, Level: store.LevelFull, Role: sr.Role}, true
			}
		}
		return denied, false
	}
	return denied, false
}

// CanManage reports whether user may edit the grants of org: sysadmins and
// root organization roles only.
func (e *Engine) CanManage(user *store.User, org string) bool {
	if user == nil {
		return false
	}
	if user.Sysadmin {
		return true
	}
	if org == "" {
		return false
	}
	r, ok := e.roleBypass(user.Roles, org, "")
	return ok && r.Role != "" && e.policy.IsRootRole(r.Role)
}

// Require converts a denied decision into errs.ErrAccessDenied.
func Require(r Result, err error) (Result, error) {
	if err != nil {
		return r, err
	}
	if !r.Granted {
		return r, errs.ErrAccessDenied
	}
	return r, nil
}
