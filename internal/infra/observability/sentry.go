package observability

import (
	"fmt"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/sirupsen/logrus"
)

// InitSentry configures error reporting. An empty DSN disables it.
func InitSentry(dsn, env, release string) (func(), error) {
	if dsn == "" {
		return func() {}, nil
	}
	if err := sentry.Init(sentry.ClientOptions{
		Dsn:         dsn,
		Environment: env,
		Release:     release,
	}); err != nil {
		return func() {}, err
	}
	return func() { sentry.Flush(2 * time.Second) }, nil
}

func CaptureErr(err error) {
	if err != nil {
		sentry.CaptureException(err)
	}
}

// Recover must be deferred; it turns a panic into a logged and reported error.
func Recover(log *logrus.Entry, where string) {
	if r := recover(); r != nil {
		err := fmt.Errorf("panic in %s: %v", where, r)
		log.WithError(err).Error("Recovered from panic")
		CaptureErr(err)
	}
}

// Go runs fn in a goroutine that cannot take the process down.
func Go(log *logrus.Entry, where string, fn func()) {
	go func() {
		defer Recover(log, where)
		fn()
	}()
}
