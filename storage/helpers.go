package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"
)

// TimestampLayout is the stored form of every timestamp column. Fixed width
// UTC text sorts chronologically in both dialects.
const TimestampLayout = "2006-01-02T15:04:05.000Z"

// FormatTimestamp renders t in TimestampLayout.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// ParseTimestamp parses a stored timestamp. RFC 3339 is accepted for rows
// written by other tools.
func ParseTimestamp(s string) (time.Time, error) {
	if t, err := time.Parse(TimestampLayout, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid stored timestamp %q: %w", s, err)
	}
	return t.UTC(), nil
}

// hourLabel turns a "YYYY-MM-DDTHH" prefix into "YYYY-MM-DD HH:00".
func hourLabel(prefix string) string {
	if len(prefix) < 13 {
		return prefix
	}
	return prefix[:10] + " " + prefix[11:13] + ":00"
}

// nullString returns a sql.NullString for optional string values.
// Empty strings are treated as NULL.
func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// nullFloat converts a nullable aggregate into a pointer; NULL stays nil.
func nullFloat(f sql.NullFloat64) *float64 {
	if !f.Valid {
		return nil
	}
	v := f.Float64
	return &v
}

// nullTimestamp parses a nullable stored timestamp.
func nullTimestamp(s sql.NullString) (*time.Time, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	t, err := ParseTimestamp(s.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// GetDefaultDBPath returns the platform default SQLite path for an interactive run.
func GetDefaultDBPath() string {
	var base string
	switch runtime.GOOS {
	case "windows":
		base = filepath.Join(os.Getenv("LOCALAPPDATA"), "SpeedMonitor")
	case "darwin":
		home, _ := os.UserHomeDir()
		base = filepath.Join(home, "Library", "Application Support", "SpeedMonitor")
	default:
		home, _ := os.UserHomeDir()
		base = filepath.Join(home, ".local", "share", "speedmonitor")
	}
	return filepath.Join(base, "speed_monitor.db")
}

// isMemoryPath reports whether path names an in-memory SQLite database.
func isMemoryPath(path string) bool {
	return path == ":memory:" || strings.Contains(path, "mode=memory")
}
