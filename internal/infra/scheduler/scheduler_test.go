package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"attendance_tracker_bot/internal/domain/report"
	"attendance_tracker_bot/internal/infra/logger"
)

func TestDigestScheduler_ArmReplacesExistingJob(t *testing.T) {
	s, err := NewDigestScheduler("0 22 * * *", func(context.Context, string) error { return nil }, logger.Discard())
	if err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 3; i++ {
		if err := s.Arm("911"); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.Arm("922"); err != nil {
		t.Fatal(err)
	}

	if n := len(s.cronEngine.Entries()); n != 2 {
		t.Errorf("cron entries = %d, want 2", n)
	}
	if armed := s.Armed(); len(armed) != 2 {
		t.Errorf("armed = %v", armed)
	}

	s.Cancel("911")
	s.Cancel("911")
	if n := len(s.cronEngine.Entries()); n != 1 {
		t.Errorf("cron entries after cancel = %d, want 1", n)
	}
	if _, ok := s.Next("911"); ok {
		t.Error("cancelled coordinator still has a next run")
	}
}

func TestDigestScheduler_NextRunIsRegionalTenPM(t *testing.T) {
	s, err := NewDigestScheduler("0 22 * * *", func(context.Context, string) error { return nil }, logger.Discard())
	if err != nil {
		t.Fatal(err)
	}
	s.Start()
	defer s.Stop()
	if err := s.Arm("911"); err != nil {
		t.Fatal(err)
	}

	next, ok := s.Next("911")
	if !ok {
		t.Fatal("no next run")
	}
	if h := report.CivilHour(next); h != 22 || next.Minute() != 0 {
		t.Errorf("next run %v is not 22:00 regional time", next)
	}
}

func TestDigestScheduler_FireLogsFailures(t *testing.T) {
	calls := make(chan string, 1)
	s, err := NewDigestScheduler("0 22 * * *", func(_ context.Context, id string) error {
		calls <- id
		return errors.New("not connected")
	}, logger.Discard())
	if err != nil {
		t.Fatal(err)
	}

	s.fire("911")
	select {
	case id := <-calls:
		if id != "911" {
			t.Errorf("fired for %q", id)
		}
	case <-time.After(time.Second):
		t.Fatal("send not called")
	}
}

func TestNewDigestScheduler_RejectsBadSpec(t *testing.T) {
	if _, err := NewDigestScheduler("every night", nil, logger.Discard()); err == nil {
		t.Error("expected parse error")
	}
}
