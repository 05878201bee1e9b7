package logger

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want LogLevel
	}{
		{"error", ERROR},
		{"WARN", WARN},
		{"warning", WARN},
		{"info", INFO},
		{" debug ", DEBUG},
		{"TRACE", TRACE},
		{"", INFO},
		{"verbose", INFO},
	}

	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestLevelFiltering(t *testing.T) {
	t.Parallel()

	l := New(WARN, "", 10)
	l.SetConsoleWriter(nil)

	l.Info("dropped")
	l.Debug("dropped")
	l.Warn("kept", "code", "missing_device_id")
	l.Error("kept too")

	buf := l.GetBuffer()
	if len(buf) != 2 {
		t.Fatalf("expected 2 buffered entries, got %d", len(buf))
	}
	if buf[0].LevelName != "WARN" || buf[0].Context["code"] != "missing_device_id" {
		t.Errorf("unexpected first entry: %+v", buf[0])
	}
}

func TestBufferIsBounded(t *testing.T) {
	t.Parallel()

	l := New(INFO, "", 3)
	l.SetConsoleWriter(nil)
	for _, msg := range []string{"a", "b", "c", "d", "e"} {
		l.Info(msg)
	}

	buf := l.GetBuffer()
	if len(buf) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(buf))
	}
	if buf[0].Message != "c" || buf[2].Message != "e" {
		t.Errorf("expected newest three entries c..e, got %q..%q", buf[0].Message, buf[2].Message)
	}
}

func TestConsoleLineHasSortedContext(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	l := New(INFO, "", 10)
	l.SetConsoleWriter(&out)
	l.Info("record stored", "id", 7, "device_id", "A")

	line := strings.TrimSpace(out.String())
	if !strings.Contains(line, "[INFO] record stored | device_id=A id=7") {
		t.Errorf("unexpected console line: %q", line)
	}
}

func TestFileOutput(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	l := New(INFO, dir, 10)
	l.SetConsoleWriter(nil)
	l.Info("hello", "k", "v")
	if err := l.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, LogFileName))
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(data), "hello | k=v") {
		t.Errorf("log file missing entry: %q", data)
	}
}
