package repositories

import (
	"context"
	"database/sql"

	"github.com/pressly/goose/v3"

	"kahaf/internal/migrations"
)

// gooseUp is a seam for tests.
var gooseUp = func(ctx context.Context, db *sql.DB, dir string) error {
	return goose.UpContext(ctx, db, dir)
}

// RunMigrations applies the embedded schema migrations.
func RunMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}
	return gooseUp(ctx, db, ".")
}
