package monitor

import "github.com/hyperkishore/home-internet/logger"

var logs = logger.NewComponent("monitor")

// SetLogger injects the structured logger from the main application.
func SetLogger(l *logger.Logger) {
	logs.Attach(l)
}
