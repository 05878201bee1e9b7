package storage

import (
	"testing"
	"time"
)

func TestTimestampRoundTrip(t *testing.T) {
	t.Parallel()

	in := time.Date(2026, 1, 2, 3, 4, 5, 678_900_000, time.FixedZone("IST", 5*3600+1800))
	s := FormatTimestamp(in)
	if s != "2026-01-01T21:34:05.678Z" {
		t.Fatalf("FormatTimestamp = %q", s)
	}
	out, err := ParseTimestamp(s)
	if err != nil {
		t.Fatalf("ParseTimestamp: %v", err)
	}
	if !out.Equal(in.Truncate(time.Millisecond)) {
		t.Errorf("round trip mismatch: %v vs %v", out, in)
	}

	if _, err := ParseTimestamp("2026-01-02T03:04:05+02:00"); err != nil {
		t.Errorf("RFC 3339 should be accepted: %v", err)
	}
	if _, err := ParseTimestamp("yesterday"); err == nil {
		t.Error("expected error for garbage timestamp")
	}
}

func TestHourLabel(t *testing.T) {
	t.Parallel()

	if got := hourLabel("2026-03-01T09"); got != "2026-03-01 09:00" {
		t.Errorf("hourLabel = %q", got)
	}
	if got := hourLabel("bad"); got != "bad" {
		t.Errorf("short input should pass through, got %q", got)
	}
}

func TestNullHelpers(t *testing.T) {
	t.Parallel()

	if nullString("").Valid {
		t.Error("empty string should be NULL")
	}
	if ns := nullString("x"); !ns.Valid || ns.String != "x" {
		t.Errorf("unexpected %+v", ns)
	}
}

func TestClamp(t *testing.T) {
	t.Parallel()

	tests := []struct{ n, def, max, want int }{
		{0, 100, 1000, 100},
		{-3, 100, 1000, 100},
		{50, 100, 1000, 50},
		{5000, 100, 1000, 1000},
	}
	for _, tt := range tests {
		if got := clamp(tt.n, tt.def, tt.max); got != tt.want {
			t.Errorf("clamp(%d,%d,%d) = %d, want %d", tt.n, tt.def, tt.max, got, tt.want)
		}
	}
}
