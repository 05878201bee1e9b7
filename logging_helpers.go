package main

import (
	"os"
	"strings"

	"github.com/hyperkishore/home-internet/logger"
)

// serverLog carries the root package's entries. It writes to stderr until
// runServer attaches the shared logger.
var serverLog = logger.NewComponent("server")

func logInfo(msg string, kv ...interface{}) {
	serverLog.Info(msg, kv...)
}

func logWarn(msg string, kv ...interface{}) {
	serverLog.Warn(msg, kv...)
}

func logError(msg string, kv ...interface{}) {
	serverLog.Error(msg, kv...)
}

func logDebug(msg string, kv ...interface{}) {
	serverLog.Debug(msg, kv...)
}

func logFatal(msg string, kv ...interface{}) {
	logError(msg, kv...)
	if l := serverLog.Logger(); l != nil {
		l.Close()
	}
	os.Exit(1)
}

// logBridgeWriter lets stdlib loggers (http.Server ErrorLog) write through
// the structured logger.
type logBridgeWriter struct {
	level logger.LogLevel
}

func (w logBridgeWriter) Write(p []byte) (int, error) {
	msg := strings.TrimSpace(string(p))
	if msg != "" {
		serverLog.Log(w.level, msg)
	}
	return len(p), nil
}
