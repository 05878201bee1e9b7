package storage

import (
	"database/sql"
	"fmt"
	"strings"
)

// Dialect abstracts the SQL differences between SQLite and PostgreSQL that
// the Record Store runs into.
type Dialect interface {
	// Name returns the dialect name ("sqlite" or "postgres").
	Name() string

	// ReturningClause returns "RETURNING col, ..." (SQLite 3.35+ and PostgreSQL).
	ReturningClause(columns ...string) string

	// LimitOffset returns the LIMIT/OFFSET clause.
	LimitOffset(limit, offset int) string

	// SnapshotTxOptions returns the options for a consistent read-only transaction.
	SnapshotTxOptions() *sql.TxOptions

	// MigrationsDir is the embedded directory holding this dialect's migrations.
	MigrationsDir() string
}

// SQLiteDialect implements Dialect for SQLite.
type SQLiteDialect struct{}

var _ Dialect = (*SQLiteDialect)(nil)

func (d *SQLiteDialect) Name() string { return "sqlite" }

func (d *SQLiteDialect) ReturningClause(columns ...string) string {
	return returning(columns)
}

func (d *SQLiteDialect) LimitOffset(limit, offset int) string {
	return limitOffset(limit, offset)
}

// SnapshotTxOptions returns nil: a deferred SQLite transaction under WAL
// already pins one read snapshot at its first SELECT.
func (d *SQLiteDialect) SnapshotTxOptions() *sql.TxOptions { return nil }

func (d *SQLiteDialect) MigrationsDir() string { return "migrations/sqlite" }

// PostgresDialect implements Dialect for PostgreSQL.
type PostgresDialect struct{}

var _ Dialect = (*PostgresDialect)(nil)

func (d *PostgresDialect) Name() string { return "postgres" }

func (d *PostgresDialect) ReturningClause(columns ...string) string {
	return returning(columns)
}

func (d *PostgresDialect) LimitOffset(limit, offset int) string {
	return limitOffset(limit, offset)
}

func (d *PostgresDialect) SnapshotTxOptions() *sql.TxOptions {
	return &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true}
}

func (d *PostgresDialect) MigrationsDir() string { return "migrations/postgres" }

func returning(columns []string) string {
	if len(columns) == 0 {
		return ""
	}
	return "RETURNING " + strings.Join(columns, ", ")
}

func limitOffset(limit, offset int) string {
	if limit <= 0 && offset <= 0 {
		return ""
	}
	if offset <= 0 {
		return fmt.Sprintf("LIMIT %d", limit)
	}
	return fmt.Sprintf("LIMIT %d OFFSET %d", limit, offset)
}

// ConvertPlaceholders converts SQLite-style ? placeholders to PostgreSQL-style $n placeholders.
// Question marks inside single-quoted literals are left alone.
func ConvertPlaceholders(query string) string {
	var result strings.Builder
	result.Grow(len(query) + 10)
	n := 1
	inQuote := false
	for i := 0; i < len(query); i++ {
		c := query[i]
		switch {
		case c == '\'':
			inQuote = !inQuote
			result.WriteByte(c)
		case c == '?' && !inQuote:
			fmt.Fprintf(&result, "$%d", n)
			n++
		default:
			result.WriteByte(c)
		}
	}
	return result.String()
}
