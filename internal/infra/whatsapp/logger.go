package whatsapp

import (
	"github.com/sirupsen/logrus"
	waLog "go.mau.fi/whatsmeow/util/log"
)

// logrusLogger routes the protocol library's logs through logrus.
type logrusLogger struct {
	entry *logrus.Entry
}

// NewLogger returns a waLog.Logger backed by entry.
func NewLogger(entry *logrus.Entry) waLog.Logger {
	return logrusLogger{entry: entry}
}

func (l logrusLogger) Warnf(msg string, args ...interface{})  { l.entry.Warnf(msg, args...) }
func (l logrusLogger) Errorf(msg string, args ...interface{}) { l.entry.Errorf(msg, args...) }
func (l logrusLogger) Infof(msg string, args ...interface{})  { l.entry.Infof(msg, args...) }
func (l logrusLogger) Debugf(msg string, args ...interface{}) { l.entry.Debugf(msg, args...) }

func (l logrusLogger) Sub(module string) waLog.Logger {
	return logrusLogger{entry: l.entry.WithField("module", module)}
}
