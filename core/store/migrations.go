package store

import (
	"context"
	"embed"
	"fmt"

	"driveshare/core/utils"

	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

// ApplyMigrations brings the schema up to date on either postgres or sqlite.
func ApplyMigrations(ctx context.Context, db *DB, logger *utils.Logger) error {
	goose.SetBaseFS(embedMigrations)
	goose.SetLogger(gooseLogger{logger: logger})
	dialect := "sqlite3"
	if db.IsPostgres() {
		dialect = "postgres"
	}
	if err := goose.SetDialect(dialect); err != nil {
		return fmt.Errorf("goose dialect %s: %w", dialect, err)
	}
	if err := goose.UpContext(ctx, db.DB, "migrations"); err != nil {
		return fmt.Errorf("goose up: %w", err)
	}
	if logger != nil {
		logger.Printf("migrations applied dialect=%s", dialect)
	}
	return nil
}

type gooseLogger struct {
	logger *utils.Logger
}

func (g gooseLogger) Printf(format string, v ...any) {
	if g.logger != nil {
		g.logger.Debugf(format, v...)
	}
}

func (g gooseLogger) Fatalf(format string, v ...any) {
	if g.logger != nil {
		g.logger.Errorf(format, v...)
	}
}
