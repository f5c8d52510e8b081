// Package storetest opens migrated sqlite databases for tests.
package storetest

import (
	"context"
	"path/filepath"
	"testing"

	"driveshare/config"
	"driveshare/core/store"
	"driveshare/core/utils"
)

func Config(t testing.TB) *config.AppConfig {
	t.Helper()
	dir := t.TempDir()
	return &config.AppConfig{
		DBDriver: "sqlite",
		DBPath:   filepath.Join(dir, "test.db"),
		Domain:   "drive.test",
		Auth:     config.AuthConfig{JWTSecret: "test-secret", OrgHeader: "organization-id"},
		Storage:  config.StorageConfig{Driver: "local", LocalDir: filepath.Join(dir, "blobs")},
		Docs: config.DocsConfig{
			ServiceID:         "DRIVE",
			DefaultSpaceTotal: 1073741824,
			ThumbnailMinBytes: 8192,
			ThumbnailSize:     140,
			ThumbnailQuality:  50,
			FetchMaxBytes:     1 << 20,
			UploadMaxBytes:    1 << 20,
		},
		Signing: config.SigningConfig{
			PlaceholderBytes: 8192,
			BuildDir:         filepath.Join(dir, "pdf-builds"),
			Reason:           "Signed Certificate.",
			FontSize:         12,
			ImageWidth:       110,
			ImageHeight:      55,
		},
		Signatures: config.SignaturesConfig{Passphrase: "signature-passphrase"},
	}
}

// Open returns a migrated database for cfg, closed when the test ends.
func Open(t testing.TB, cfg *config.AppConfig) *store.DB {
	t.Helper()
	logger := utils.NewNopLogger()
	db, err := store.NewDB(cfg, logger)
	if err != nil {
		t.Fatalf("db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if err := store.ApplyMigrations(context.Background(), db, logger); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

// User saves a user with the given organization roles.
func User(t testing.TB, db *store.DB, email string, roles ...store.Role) *store.User {
	t.Helper()
	u := &store.User{Email: email, FirstName: "First", LastName: "Last", Roles: roles}
	if _, err := store.NewUsersStore(db).Save(context.Background(), u); err != nil {
		t.Fatalf("save user %s: %v", email, err)
	}
	return u
}
