// internal/infra/logger/logger.go
package logger

import (
	"io"
	"os"

	"attendance_tracker_bot/internal/infra/config"

	"github.com/sirupsen/logrus"
)

const service = "attendance-tracker"

// Log is the process-wide logger. Components take entries from it through Component.
var Log = logrus.New()

// Init applies level and output format from the configuration.
func Init(cfg *config.AppConfig) {
	Log.SetOutput(os.Stdout)
	Log.SetFormatter(formatterFor(cfg.Environment))

	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		Log.WithError(err).Warnf("Unknown log level %q, using info", cfg.LogLevel)
		level = logrus.InfoLevel
	}
	Log.SetLevel(level)

	Log.WithFields(logrus.Fields{
		"level":       level.String(),
		"environment": cfg.Environment,
	}).Debug("Logger initialized")
}

// formatterFor emits JSON in deployed environments and readable text locally.
func formatterFor(environment string) logrus.Formatter {
	switch environment {
	case "production", "staging":
		return &logrus.JSONFormatter{
			TimestampFormat: "2006-01-02T15:04:05.000Z07:00",
			FieldMap:        logrus.FieldMap{logrus.FieldKeyMsg: "message"},
		}
	default:
		return &logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "2006-01-02 15:04:05",
			ForceColors:     true,
		}
	}
}

// Component returns an entry tagged with the service and component name.
func Component(name string) *logrus.Entry {
	return Log.WithFields(logrus.Fields{"service": service, "component": name})
}

// Discard returns an entry that writes nowhere; used by tests.
func Discard() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}
