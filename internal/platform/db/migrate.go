package db

import (
	"database/sql"
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/jackc/pgx/v5/stdlib"
)

// Migrator applies the embedded schema migrations with golang-migrate.
type Migrator struct {
	m *migrate.Migrate
}

// MigrationStatus is the schema version recorded in schema_migrations.
// Dirty means a migration failed half way and needs Force.
type MigrationStatus struct {
	Version uint
	Dirty   bool
	Applied bool
}

// NewMigrator opens its own database/sql connection; golang-migrate does not
// work on a pgx pool.
func NewMigrator(databaseURL string, source fs.FS) (*Migrator, error) {
	conn, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	driver, err := postgres.WithInstance(conn, &postgres.Config{})
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("migration driver: %w", err)
	}
	src, err := iofs.New(source, ".")
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("migration source: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("create migrator: %w", err)
	}
	return &Migrator{m: m}, nil
}

// Up applies every pending migration and reports whether anything ran.
func (m *Migrator) Up() (bool, error) {
	err := m.m.Up()
	if errors.Is(err, migrate.ErrNoChange) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("migrate up: %w", err)
	}
	return true, nil
}

func (m *Migrator) Status() (MigrationStatus, error) {
	v, dirty, err := m.m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return MigrationStatus{}, nil
	}
	if err != nil {
		return MigrationStatus{}, fmt.Errorf("read schema version: %w", err)
	}
	return MigrationStatus{Version: v, Dirty: dirty, Applied: true}, nil
}

// Force records version as applied and clears the dirty flag without
// running anything.
func (m *Migrator) Force(version int) error {
	if err := m.m.Force(version); err != nil {
		return fmt.Errorf("force version %d: %w", version, err)
	}
	return nil
}

// Close also closes the connection opened by NewMigrator.
func (m *Migrator) Close() error {
	srcErr, dbErr := m.m.Close()
	return errors.Join(srcErr, dbErr)
}
