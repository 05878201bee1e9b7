package logger

import (
	"bytes"
	"strings"
	"testing"
)

func TestComponentFallback(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	c := NewComponent("storage")
	c.fallback = &out

	c.Debug("not shown")
	c.Warn("migration slow", "version", 3)

	line := strings.TrimSpace(out.String())
	if strings.Contains(line, "not shown") {
		t.Errorf("debug entries should be dropped before a logger is attached: %q", line)
	}
	if !strings.Contains(line, "[WARN] [storage] migration slow | version=3") {
		t.Errorf("unexpected fallback line: %q", line)
	}
}

func TestComponentAttach(t *testing.T) {
	t.Parallel()

	var fallback bytes.Buffer
	c := NewComponent("monitor")
	c.fallback = &fallback

	l := New(DEBUG, "", 10)
	l.SetConsoleWriter(nil)
	c.Attach(l)
	if c.Logger() != l {
		t.Fatal("Logger() should return the attached logger")
	}

	c.Debug("record rejected", "code", "invalid_payload")
	c.Error("store failed")

	if fallback.Len() != 0 {
		t.Errorf("attached component should not write to the fallback: %q", fallback.String())
	}
	buf := l.GetBuffer()
	if len(buf) != 2 || buf[0].Context["code"] != "invalid_payload" || buf[1].LevelName != "ERROR" {
		t.Errorf("unexpected entries %+v", buf)
	}

	c.Attach(nil)
	c.Info("detached")
	if !strings.Contains(fallback.String(), "[monitor] detached") {
		t.Errorf("detached component should fall back, got %q", fallback.String())
	}
}
