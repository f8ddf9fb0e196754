package storage

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
)

// SchemaVersion is the applied state of the Postgres migration set
type SchemaVersion struct {
	Version uint
	Dirty   bool
}

// Applied reports whether at least one migration has run
func (v SchemaVersion) Applied() bool {
	return v.Version > 0
}

// PostgresMigrationsPath returns the Postgres migration set under root
func PostgresMigrationsPath(root string) string {
	return filepath.Join(root, "postgres")
}

// ClickHouseMigrationsPath returns the ClickHouse migration set under root
func ClickHouseMigrationsPath(root string) string {
	return filepath.Join(root, "clickhouse")
}

func withMigrator(databaseURL, dir string, fn func(*migrate.Migrate) error) error {
	m, err := migrate.New("file://"+dir, databaseURL)
	if err != nil {
		return fmt.Errorf("failed to open migrations in %s: %w", dir, err)
	}
	defer func() {
		_, _ = m.Close()
	}()
	return fn(m)
}

// RunMigrations applies every pending Postgres migration
func RunMigrations(databaseURL, dir string) error {
	return withMigrator(databaseURL, dir, func(m *migrate.Migrate) error {
		if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return fmt.Errorf("failed to apply migrations: %w", err)
		}
		return nil
	})
}

// RollbackMigrations reverts the most recent Postgres migration
func RollbackMigrations(databaseURL, dir string) error {
	return withMigrator(databaseURL, dir, func(m *migrate.Migrate) error {
		if err := m.Steps(-1); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return fmt.Errorf("failed to roll back migration: %w", err)
		}
		return nil
	})
}

// CurrentSchema returns the applied Postgres migration state. A database
// that was never migrated reports version 0.
func CurrentSchema(databaseURL, dir string) (SchemaVersion, error) {
	var out SchemaVersion
	err := withMigrator(databaseURL, dir, func(m *migrate.Migrate) error {
		version, dirty, err := m.Version()
		if errors.Is(err, migrate.ErrNilVersion) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read schema version: %w", err)
		}
		out = SchemaVersion{Version: version, Dirty: dirty}
		return nil
	})
	return out, err
}
