package acl_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"driveshare/core/acl"
	"driveshare/core/errs"
	"driveshare/core/store"
	"driveshare/core/store/storetest"
	"driveshare/core/utils"
)

func setupEngine(t *testing.T) (*acl.Engine, store.ACLStore) {
	t.Helper()
	db := storetest.Open(t, storetest.Config(t))
	acls := store.NewACLStore(db)
	engine, err := acl.NewEngine(acls, nil, utils.NewNopLogger())
	require.NoError(t, err)
	return engine, acls
}

func member(id, org, role string, services ...store.ServiceRole) *store.User {
	return &store.User{ID: id, Roles: []store.Role{{Organization: org, Role: role, Services: services}}}
}

func TestLevelOrdering(t *testing.T) {
	levels := []store.AccessLevel{store.LevelRead, store.LevelWrite, store.LevelFull}
	for i, have := range levels {
		for j, required := range levels {
			require.Equal(t, i >= j, acl.Satisfies(have, required), "have %s required %s", have, required)
		}
	}
	require.False(t, acl.Satisfies("", store.LevelRead))
}

func TestPersonalDocumentOwnerOnly(t *testing.T) {
	engine, _ := setupEngine(t)
	ctx := context.Background()
	doc := acl.Resource{CreatedBy: "owner"}

	res, err := engine.ResolveAccess(ctx, doc, &store.User{ID: "owner"}, "", store.LevelFull, false)
	require.NoError(t, err)
	require.True(t, res.Granted)

	res, err = engine.ResolveAccess(ctx, doc, &store.User{ID: "stranger"}, "", store.LevelRead, false)
	require.NoError(t, err)
	require.False(t, res.Granted)

	res, err = engine.ResolveAccess(ctx, doc, nil, "", store.LevelRead, false)
	require.NoError(t, err)
	require.False(t, res.Granted)
}

func TestOrganizationDocumentMatchesActiveOrganization(t *testing.T) {
	engine, _ := setupEngine(t)
	ctx := context.Background()
	doc := acl.Resource{CreatedBy: "someone", Organization: "o1"}

	res, _ := engine.ResolveAccess(ctx, doc, &store.User{ID: "u"}, "o1", store.LevelFull, false)
	require.True(t, res.Granted)
	res, _ = engine.ResolveAccess(ctx, doc, &store.User{ID: "u"}, "o2", store.LevelRead, false)
	require.False(t, res.Granted)
	res, _ = engine.ResolveAccess(ctx, doc, &store.User{ID: "u"}, "", store.LevelRead, false)
	require.False(t, res.Granted)
}

func TestRootRolesBypassWithoutRows(t *testing.T) {
	engine, _ := setupEngine(t)
	ctx := context.Background()
	doc := acl.Resource{Organization: "o1", Service: &store.ServiceRef{ID: "CHAT", Key: "room"}}
	for _, role := range []string{acl.RoleOwner, acl.RoleSuperAdmin, acl.RoleOrgAdmin} {
		res, err := engine.ResolveAccess(ctx, doc, member("u", "o1", role), "o1", store.LevelFull, false)
		require.NoError(t, err)
		require.True(t, res.Granted, role)
		require.Equal(t, store.LevelFull, res.Level)
	}
	res, err := engine.ResolveAccess(ctx, doc, member("u", "o1", "Member", store.ServiceRole{Service: "CHAT", Role: acl.RoleServiceAdmin}), "o1", store.LevelFull, false)
	require.NoError(t, err)
	require.True(t, res.Granted)

	res, err = engine.ResolveAccess(ctx, doc, member("u", "o1", "Member", store.ServiceRole{Service: "TASKS", Role: acl.RoleServiceAdmin}), "o1", store.LevelRead, false)
	require.NoError(t, err)
	require.False(t, res.Granted)

	res, err = engine.ResolveAccess(ctx, doc, member("u", "o2", acl.RoleOwner), "o1", store.LevelRead, false)
	require.NoError(t, err)
	require.False(t, res.Granted, "no role in the active organization denies")
}

func TestACLRowLevelComparison(t *testing.T) {
	engine, acls := setupEngine(t)
	ctx := context.Background()
	_, err := acls.Upsert(ctx, &store.ACL{User: "u", Organization: "o1", Service: store.ACLService{ID: "CHAT", Key: "room"}, Level: store.LevelWrite})
	require.NoError(t, err)
	doc := acl.Resource{Organization: "o1", Service: &store.ServiceRef{ID: "CHAT", Key: "room"}}
	user := member("u", "o1", "Member")

	cases := map[store.AccessLevel]bool{store.LevelRead: true, store.LevelWrite: true, store.LevelFull: false}
	for level, want := range cases {
		res, err := engine.ResolveAccess(ctx, doc, user, "o1", level, false)
		require.NoError(t, err)
		require.Equal(t, want, res.Granted, level)
		require.False(t, res.ViaPublic)
	}
}

func TestPublicRowCapsOrdinaryUsers(t *testing.T) {
	engine, acls := setupEngine(t)
	ctx := context.Background()
	_, err := acls.Upsert(ctx, &store.ACL{Service: store.ACLService{ID: "CHAT", Key: "general"}, Level: store.LevelRead, Public: true})
	require.NoError(t, err)
	doc := acl.Resource{Organization: "o1", Service: &store.ServiceRef{ID: "CHAT", Key: "general"}}

	res, err := engine.ResolveAccess(ctx, doc, &store.User{ID: "u"}, "o1", store.LevelWrite, true)
	require.NoError(t, err)
	require.True(t, res.Granted)
	require.True(t, res.ViaPublic)

	res, err = engine.ResolveAccess(ctx, doc, &store.User{ID: "u"}, "o1", store.LevelFull, true)
	require.NoError(t, err)
	require.False(t, res.Granted)

	res, err = engine.ResolveAccess(ctx, doc, &store.User{ID: "admin", Sysadmin: true}, "o1", store.LevelFull, true)
	require.NoError(t, err)
	require.True(t, res.Granted)
	require.Equal(t, store.LevelFull, res.Level)
}

func TestServiceFolderAccess(t *testing.T) {
	engine, acls := setupEngine(t)
	ctx := context.Background()
	folder := &store.Folder{ID: "f", DynamicName: "p1", DynamicNameRef: "Project", Organization: "o1", ServiceKey: "PROJECTS"}
	_, err := acls.Upsert(ctx, &store.ACL{User: "u", Organization: "o1", Service: store.ACLService{ID: "PROJECTS"}, Level: store.LevelRead})
	require.NoError(t, err)

	res, err := engine.CheckServiceFolderAccess(ctx, folder, member("u", "o1", "Member"), "o1", store.LevelRead, false)
	require.NoError(t, err)
	require.True(t, res.Granted)
	require.Equal(t, store.LevelRead, res.Level)

	res, err = engine.CheckServiceFolderAccess(ctx, nil, member("u", "o1", "Member"), "o1", store.LevelRead, false)
	require.NoError(t, err)
	require.False(t, res.Granted)

	sys := engine.CheckSystemFolderAccess(folder, []store.Role{{Organization: "o1", Role: "Member", Services: []store.ServiceRole{{Service: "PROJECTS", Role: acl.RoleServiceAdmin}}}}, "o1", false)
	require.True(t, sys.Granted)
	sys = engine.CheckSystemFolderAccess(folder, []store.Role{{Organization: "o1", Role: "Member"}}, "o1", false)
	require.False(t, sys.Granted)
}

func TestRequireMapsDenied(t *testing.T) {
	_, err := acl.Require(acl.Result{}, nil)
	require.True(t, errors.Is(err, errs.ErrAccessDenied))
	_, err = acl.Require(acl.Result{Granted: true}, nil)
	require.NoError(t, err)
}

func TestManageGrants(t *testing.T) {
	engine, _ := setupEngine(t)
	ctx := context.Background()
	_, err := engine.Create(ctx, &store.ACL{Service: store.ACLService{ID: "CHAT"}})
	require.ErrorIs(t, err, errs.ErrValidation)

	created, err := engine.Create(ctx, &store.ACL{User: "u", Service: store.ACLService{ID: "CHAT", Key: "room"}, Level: store.LevelRead})
	require.NoError(t, err)
	require.NotNil(t, created)

	created.Level = store.LevelFull
	updated, err := engine.Update(ctx, created)
	require.NoError(t, err)
	require.Equal(t, store.LevelFull, updated.Level)

	list, err := engine.FindByUser(ctx, "u", "")
	require.NoError(t, err)
	require.Len(t, list, 1)

	require.NoError(t, engine.Remove(ctx, created.ID))
	require.ErrorIs(t, engine.Remove(ctx, created.ID), errs.ErrNotFound)
}

func TestCanManage(t *testing.T) {
	engine, _ := setupEngine(t)
	require.False(t, engine.CanManage(nil, "org-1"))
	require.True(t, engine.CanManage(&store.User{ID: "root", Sysadmin: true}, ""))
	require.True(t, engine.CanManage(member("u1", "org-1", acl.RoleOrgAdmin), "org-1"))
	require.False(t, engine.CanManage(member("u1", "org-1", acl.RoleOrgAdmin), "org-2"))
	require.False(t, engine.CanManage(member("u2", "org-1", "Member", store.ServiceRole{Service: "DRIVE", Role: acl.RoleServiceAdmin}), "org-1"))
}
