package storage

import "github.com/hyperkishore/home-internet/logger"

var logs = logger.NewComponent("storage")

// SetLogger injects the structured logger from the main application.
func SetLogger(l *logger.Logger) {
	logs.Attach(l)
}
