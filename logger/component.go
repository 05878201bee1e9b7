package logger

import (
	"fmt"
	"io"
	"os"
	"sync/atomic"
	"time"
)

// Component is a named log handle for packages that receive their Logger
// from the main application. Before a Logger is attached, entries at INFO
// and above go to stderr tagged with the component name.
type Component struct {
	name     string
	logger   atomic.Pointer[Logger]
	fallback io.Writer
}

// NewComponent returns a detached handle for the named package.
func NewComponent(name string) *Component {
	return &Component{name: name, fallback: os.Stderr}
}

// Attach routes all further entries to l. A nil l detaches.
func (c *Component) Attach(l *Logger) {
	c.logger.Store(l)
}

// Logger returns the attached Logger, or nil.
func (c *Component) Logger() *Logger {
	return c.logger.Load()
}

func (c *Component) Error(msg string, kv ...interface{}) { c.Log(ERROR, msg, kv...) }
func (c *Component) Warn(msg string, kv ...interface{})  { c.Log(WARN, msg, kv...) }
func (c *Component) Info(msg string, kv ...interface{})  { c.Log(INFO, msg, kv...) }
func (c *Component) Debug(msg string, kv ...interface{}) { c.Log(DEBUG, msg, kv...) }

// Log writes one entry at level.
func (c *Component) Log(level LogLevel, msg string, kv ...interface{}) {
	if l := c.logger.Load(); l != nil {
		l.log(level, msg, kv...)
		return
	}
	if level > INFO || c.fallback == nil {
		return
	}
	entry := LogEntry{
		Timestamp: time.Now(),
		Level:     level,
		LevelName: levelNames[level],
		Message:   "[" + c.name + "] " + msg,
		Context:   contextMap(kv),
	}
	fmt.Fprintln(c.fallback, formatEntry(entry))
}
