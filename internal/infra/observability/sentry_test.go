package observability

import (
	"testing"

	"attendance_tracker_bot/internal/infra/logger"
)

func TestGo_RecoversPanics(t *testing.T) {
	done := make(chan struct{})
	Go(logger.Discard(), "test", func() {
		defer close(done)
		panic("boom")
	})
	<-done
}

func TestInitSentry_EmptyDSN(t *testing.T) {
	flush, err := InitSentry("", "test", "dev")
	if err != nil {
		t.Fatalf("InitSentry() error = %v", err)
	}
	flush()
}
