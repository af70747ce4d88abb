package main

import (
	"log/slog"

	"github.com/robfig/cron/v3"
)

// cronLogger forwards scheduler messages to slog. Scheduler info messages
// fire on every tick, so they are logged at debug level.
type cronLogger struct {
	logger *slog.Logger
}

var _ cron.Logger = cronLogger{}

func newCronLogger(logger *slog.Logger) cronLogger {
	return cronLogger{logger: logger.With(slog.String("component", "scheduler"))}
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error(msg, append([]interface{}{slog.Any("error", err)}, keysAndValues...)...)
}
