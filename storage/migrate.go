package storage

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	migratepgx "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/sqlite/*.sql migrations/postgres/*.sql
var migrationFS embed.FS

// ErrNoChange is returned by golang-migrate when the schema is already current.
var ErrNoChange = migrate.ErrNoChange

// runMigrations applies every pending up migration for dialect to db.
//
// The SQLite driver works on the store's own *sql.DB so in-memory databases
// see the schema; only the source is closed afterwards because closing the
// migrate instance would close db. PostgreSQL migrations run on a dedicated
// connection pool that is closed when done.
func runMigrations(db *sql.DB, dialect Dialect, dsn string) error {
	sourceDriver, err := iofs.New(migrationFS, dialect.MigrationsDir())
	if err != nil {
		return fmt.Errorf("migrate source: %w", err)
	}

	var (
		dbDriver database.Driver
		ownDB    *sql.DB
	)
	switch dialect.Name() {
	case "postgres":
		ownDB, err = sql.Open("pgx", dsn)
		if err != nil {
			sourceDriver.Close()
			return fmt.Errorf("migrate open: %w", err)
		}
		dbDriver, err = migratepgx.WithInstance(ownDB, &migratepgx.Config{})
	default:
		dbDriver, err = migratesqlite.WithInstance(db, &migratesqlite.Config{})
	}
	if err != nil {
		sourceDriver.Close()
		if ownDB != nil {
			ownDB.Close()
		}
		return fmt.Errorf("migrate driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, dialect.Name(), dbDriver)
	if err != nil {
		sourceDriver.Close()
		if ownDB != nil {
			ownDB.Close()
		}
		return fmt.Errorf("migrate: %w", err)
	}
	if ownDB != nil {
		defer func() { _, _ = m.Close() }()
	} else {
		defer sourceDriver.Close()
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate up: %w", err)
	}

	version, dirty, err := m.Version()
	if err == nil {
		logs.Debug("schema migrated", "dialect", dialect.Name(), "version", version, "dirty", dirty)
	}
	return nil
}
