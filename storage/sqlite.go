package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO required)
)

// DefaultBusyTimeout bounds how long a SQLite writer waits for the write lock.
const DefaultBusyTimeout = 5 * time.Second

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	BaseStore
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore opens (creating if needed) the SQLite database at dbPath
// and applies pending migrations. busyTimeout <= 0 uses DefaultBusyTimeout.
func NewSQLiteStore(dbPath string, busyTimeout time.Duration) (*SQLiteStore, error) {
	if dbPath == "" {
		dbPath = GetDefaultDBPath()
	}
	memory := isMemoryPath(dbPath)
	if !memory {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return nil, fmt.Errorf("failed to create db directory: %w", err)
		}
	}
	if busyTimeout <= 0 {
		busyTimeout = DefaultBusyTimeout
	}

	connStr := fmt.Sprintf("%s?_pragma=busy_timeout(%d)", dbPath, busyTimeout.Milliseconds())
	if !memory {
		connStr += "&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
	}

	db, err := sql.Open("sqlite", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if memory {
		// Every connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}

	store := &SQLiteStore{BaseStore: *NewBaseStore(db, &SQLiteDialect{}, dbPath)}
	if err := runMigrations(db, store.dialect, dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to init schema: %w", err)
	}

	logs.Info("Opened SQLite database", "path", dbPath)
	return store, nil
}
