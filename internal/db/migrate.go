package db

import (
	"context"
	"database/sql"
	"embed"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var Migrations embed.FS

const migrationsDir = "migrations"

var openSQL = func(dsn string) (*sql.DB, error) { return sql.Open("pgx", dsn) }

// Migrator runs goose against the embedded migrations.
type Migrator struct {
	db *sql.DB
}

// OpenMigrator opens a database/sql handle on the pgx stdlib driver.
func OpenMigrator(dsn string) (*Migrator, error) {
	db, err := openSQL(dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	goose.SetBaseFS(Migrations)
	if err := goose.SetDialect("postgres"); err != nil {
		db.Close()
		return nil, fmt.Errorf("goose dialect: %w", err)
	}
	return &Migrator{db: db}, nil
}

func (m *Migrator) Close() error { return m.db.Close() }

func (m *Migrator) Up(ctx context.Context) error {
	return goose.UpContext(ctx, m.db, migrationsDir)
}

// Down rolls back steps migrations, newest first.
func (m *Migrator) Down(ctx context.Context, steps int) error {
	if steps <= 0 {
		return fmt.Errorf("steps must be > 0")
	}
	for i := 0; i < steps; i++ {
		if err := goose.DownContext(ctx, m.db, migrationsDir); err != nil {
			return err
		}
	}
	return nil
}

func (m *Migrator) Version(ctx context.Context) (int64, error) {
	return goose.GetDBVersionContext(ctx, m.db)
}
