package store_test

import (
	"context"
	"testing"

	"driveshare/core/store"
	"driveshare/core/store/storetest"
)

func TestRebindPostgresPlaceholders(t *testing.T) {
	got := store.RebindForTest(true, "SELECT a FROM t WHERE x=? AND y IN (?,?)")
	want := "SELECT a FROM t WHERE x=$1 AND y IN ($2,$3)"
	if got != want {
		t.Fatalf("rebind: got %q want %q", got, want)
	}
	if store.RebindForTest(false, "x=?") != "x=?" {
		t.Fatalf("sqlite query must not be rewritten")
	}
}

func TestUsersRolesRoundtrip(t *testing.T) {
	ctx := context.Background()
	db := storetest.Open(t, storetest.Config(t))
	us := store.NewUsersStore(db)
	u := storetest.User(t, db, "Alice@Example.com", store.Role{
		Organization: "org-1",
		Role:         "Member",
		Services:     []store.ServiceRole{{Service: "CHAT", Role: "ServiceAdmin"}},
		Teams:        []string{"team-a"},
	})
	got, err := us.Get(ctx, u.ID)
	if err != nil || got == nil {
		t.Fatalf("get: %v %v", got, err)
	}
	if got.Email != "alice@example.com" {
		t.Fatalf("email must be normalized, got %q", got.Email)
	}
	if r := got.RoleIn("org-1"); r == nil || r.Services[0].Role != "ServiceAdmin" || got.TeamsIn("org-1")[0] != "team-a" {
		t.Fatalf("roles not loaded: %+v", got.Roles)
	}
	found, err := us.FindByEmails(ctx, []string{"ALICE@example.com", "missing@example.com"})
	if err != nil || len(found) != 1 || len(found[0].Roles) != 1 {
		t.Fatalf("find by emails: %+v %v", found, err)
	}
	missing, err := us.Get(ctx, "nope")
	if err != nil || missing != nil {
		t.Fatalf("missing user should be nil, nil: %v %v", missing, err)
	}
}

func TestACLUpsertKeepsSingleRow(t *testing.T) {
	ctx := context.Background()
	db := storetest.Open(t, storetest.Config(t))
	as := store.NewACLStore(db)
	first := &store.ACL{User: "u1", Organization: "o1", Service: store.ACLService{ID: "CHAT", Key: "room-1"}, Level: store.LevelRead}
	id1, err := as.Upsert(ctx, first)
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	second := &store.ACL{User: "u1", Organization: "o1", Service: store.ACLService{ID: "CHAT", Key: "room-1"}, Level: store.LevelFull}
	id2, err := as.Upsert(ctx, second)
	if err != nil {
		t.Fatalf("upsert again: %v", err)
	}
	if id1 != id2 {
		t.Fatalf("expected same row, got %s and %s", id1, id2)
	}
	got, err := as.FindOne(ctx, store.ACLQuery{User: "u1", ServiceID: "CHAT", ServiceKey: "room-1", Organization: "o1"})
	if err != nil || got == nil || got.Level != store.LevelFull {
		t.Fatalf("find one: %+v %v", got, err)
	}
	if _, err := as.Upsert(ctx, &store.ACL{Service: store.ACLService{ID: "CHAT", Key: "room-1", KeyName: "Room"}, Level: store.LevelRead, Public: true}); err != nil {
		t.Fatalf("public upsert: %v", err)
	}
	public, err := as.FindOne(ctx, store.ACLQuery{ServiceID: "CHAT", ServiceKey: "room-1", Public: true})
	if err != nil || public == nil {
		t.Fatalf("public lookup: %+v %v", public, err)
	}
	keys, err := as.ServiceKeys(ctx, "u1", "CHAT", "")
	if err != nil || len(keys) != 1 || !keys[0].Public {
		t.Fatalf("service keys: %+v %v", keys, err)
	}
}

func TestServiceKeysStayInOrganization(t *testing.T) {
	ctx := context.Background()
	db := storetest.Open(t, storetest.Config(t))
	as := store.NewACLStore(db)
	grants := []*store.ACL{
		{User: "u1", Organization: "o1", Service: store.ACLService{ID: "MESSAGES", Key: "general", KeyName: "General"}, Level: store.LevelRead},
		{Organization: "o2", Service: store.ACLService{ID: "MESSAGES", Key: "secret-channel", KeyName: "Other org secret"}, Level: store.LevelRead, Public: true},
	}
	for _, g := range grants {
		if _, err := as.Upsert(ctx, g); err != nil {
			t.Fatalf("upsert: %v", err)
		}
	}
	keys, err := as.ServiceKeys(ctx, "u1", "MESSAGES", "o1")
	if err != nil {
		t.Fatalf("service keys: %v", err)
	}
	if len(keys) != 1 || keys[0].Key != "general" {
		t.Fatalf("expected only the o1 key, got %+v", keys)
	}
	other, err := as.ServiceKeys(ctx, "u1", "MESSAGES", "o2")
	if err != nil || len(other) != 1 || other[0].Key != "secret-channel" {
		t.Fatalf("o2 keys: %+v %v", other, err)
	}
}

func TestDocumentListNamespaces(t *testing.T) {
	ctx := context.Background()
	db := storetest.Open(t, storetest.Config(t))
	ds := store.NewDocsStore(db)
	mk := func(d store.Document) {
		t.Helper()
		if _, err := ds.Create(ctx, &d); err != nil {
			t.Fatalf("create: %v", err)
		}
	}
	mk(store.Document{Name: "personal.pdf", StoreKey: "k1", CreatedBy: "u1"})
	mk(store.Document{Name: "other.pdf", StoreKey: "k2", CreatedBy: "u2"})
	mk(store.Document{Name: "org.pdf", StoreKey: "k3", CreatedBy: "u2", Organization: "o1"})
	mk(store.Document{Name: "svc.pdf", StoreKey: "k4", CreatedBy: "u2", Organization: "o1", Service: &store.ServiceRef{ID: "CHAT", Key: "room"}})

	personal, err := ds.List(ctx, store.DocumentFilter{CreatedBy: "u1"})
	if err != nil || len(personal) != 1 || personal[0].Name != "personal.pdf" {
		t.Fatalf("personal: %+v %v", personal, err)
	}
	org, err := ds.List(ctx, store.DocumentFilter{Organization: "o1", CreatedBy: "u1"})
	if err != nil || len(org) != 1 || org[0].Name != "org.pdf" {
		t.Fatalf("org: %+v %v", org, err)
	}
	svc, err := ds.List(ctx, store.DocumentFilter{Organization: "o1", ServiceID: "CHAT", ServiceKey: "room"})
	if err != nil || len(svc) != 1 || !svc[0].HasService() || svc[0].Service.Key != "room" {
		t.Fatalf("service: %+v %v", svc, err)
	}
	bySvc, err := ds.ListByServices(ctx, "o1")
	if err != nil || len(bySvc) != 1 {
		t.Fatalf("by services: %+v %v", bySvc, err)
	}
}

func TestShareUpsertMatchingIsIdempotent(t *testing.T) {
	ctx := context.Background()
	db := storetest.Open(t, storetest.Config(t))
	ss := store.NewSharesStore(db)
	target := store.DocumentTarget("doc-1")
	to := store.Recipient{User: "u2", Level: store.LevelRead}
	for i := 0; i < 2; i++ {
		if err := ss.UpsertMatching(ctx, target, "u1", to); err != nil {
			t.Fatalf("upsert %d: %v", i, err)
		}
	}
	rows, err := ss.ListByTarget(ctx, target)
	if err != nil || len(rows) != 1 {
		t.Fatalf("expected one row, got %+v %v", rows, err)
	}
	found, err := ss.FindForTarget(ctx, target, store.ShareLookup{User: "u2"})
	if err != nil || len(found) != 1 {
		t.Fatalf("find for recipient: %+v %v", found, err)
	}
	if err := ss.DeleteMatching(ctx, target, "u1", to); err != nil {
		t.Fatalf("delete matching: %v", err)
	}
	rows, _ = ss.ListByTarget(ctx, target)
	if len(rows) != 0 {
		t.Fatalf("expected no rows after delete, got %d", len(rows))
	}
}

func TestShareTeamAndLinkLookup(t *testing.T) {
	ctx := context.Background()
	db := storetest.Open(t, storetest.Config(t))
	ss := store.NewSharesStore(db)
	target := store.FolderTarget("folder-1")
	err := ss.Insert(ctx, []store.Share{
		{Target: target, SharedBy: "owner", SharedTo: store.Recipient{Team: "team-a", Organization: "o1", Level: store.LevelRead}},
		{Target: target, SharedBy: "owner", SharedTo: store.Recipient{ShareableLink: true, Organization: "o1", Level: store.LevelRead}},
	})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	team, err := ss.FindForTarget(ctx, target, store.ShareLookup{User: "u9", Teams: []string{"team-a"}, Organization: "o1"})
	if err != nil || len(team) != 1 || team[0].SharedTo.Team != "team-a" {
		t.Fatalf("team lookup: %+v %v", team, err)
	}
	link, err := ss.FindForTarget(ctx, target, store.ShareLookup{Organization: "o1"})
	if err != nil || len(link) != 1 || !link[0].SharedTo.ShareableLink {
		t.Fatalf("link lookup: %+v %v", link, err)
	}
	none, err := ss.FindForTarget(ctx, target, store.ShareLookup{User: "u9", Organization: "o2"})
	if err != nil || len(none) != 0 {
		t.Fatalf("foreign org must not match: %+v %v", none, err)
	}
}

func TestSettingsAddUsageCreatesDefaults(t *testing.T) {
	ctx := context.Background()
	db := storetest.Open(t, storetest.Config(t))
	st := store.NewSettingsStore(db)
	if err := st.AddUsage(ctx, "u1", "", 100, 1000); err != nil {
		t.Fatalf("add usage: %v", err)
	}
	if err := st.AddUsage(ctx, "u1", "", 50, 1000); err != nil {
		t.Fatalf("add usage again: %v", err)
	}
	got, err := st.Find(ctx, "u1", "")
	if err != nil || got == nil || got.Space.Used != 150 || got.Space.Total != 1000 {
		t.Fatalf("settings: %+v %v", got, err)
	}
	orgSettings, err := st.Find(ctx, "u1", "o1")
	if err != nil || orgSettings != nil {
		t.Fatalf("org settings must be separate: %+v %v", orgSettings, err)
	}
}
