package log

import "github.com/robfig/cron/v3"

// cronLogger routes robfig/cron's internal logging through this package.
// Cron's Info output (schedule/wake/run) is noisy, so it goes to DEBUG.
type cronLogger struct {
	component string
}

// CronLogger returns a cron.Logger tagged with the given component name.
func CronLogger(component string) cron.Logger {
	return cronLogger{component: component}
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	Debug("cron: "+msg, append([]any{"component", c.component}, keysAndValues...)...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	Error("cron: "+msg, err, append([]any{"component", c.component}, keysAndValues...)...)
}
