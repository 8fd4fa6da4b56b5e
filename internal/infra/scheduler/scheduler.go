package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"attendance_tracker_bot/internal/domain/report"
	"attendance_tracker_bot/internal/infra/observability"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// SendFunc delivers one coordinator's digest.
type SendFunc func(ctx context.Context, coordinatorID string) error

// DigestScheduler keeps at most one daily digest job per coordinator.
type DigestScheduler struct {
	cronEngine *cron.Cron
	schedule   cron.Schedule
	send       SendFunc
	timeout    time.Duration
	logger     *logrus.Entry

	mu   sync.Mutex
	jobs map[string]cron.EntryID
}

// NewDigestScheduler parses spec as a five-field cron expression evaluated in the regional civil zone.
func NewDigestScheduler(spec string, send SendFunc, logger *logrus.Entry) (*DigestScheduler, error) {
	schedule, err := cron.ParseStandard(spec)
	if err != nil {
		return nil, fmt.Errorf("parse digest schedule %q: %w", spec, err)
	}
	return &DigestScheduler{
		cronEngine: cron.New(cron.WithLocation(report.RegionalZone())),
		schedule:   schedule,
		send:       send,
		timeout:    2 * time.Minute,
		logger:     logger,
		jobs:       make(map[string]cron.EntryID),
	}, nil
}

func (s *DigestScheduler) Start() {
	s.logger.Info("Starting digest scheduler...")
	s.cronEngine.Start()
}

// Arm replaces any existing job for the coordinator with a fresh one.
func (s *DigestScheduler) Arm(coordinatorID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.jobs[coordinatorID]; ok {
		s.cronEngine.Remove(id)
		delete(s.jobs, coordinatorID)
	}
	id := s.cronEngine.Schedule(s.schedule, cron.FuncJob(func() { s.fire(coordinatorID) }))
	s.jobs[coordinatorID] = id
	s.logger.WithField("coordinator_id", coordinatorID).Info("Digest job armed")
	return nil
}

// Cancel removes the coordinator's job; cancelling an unknown coordinator is a no-op.
func (s *DigestScheduler) Cancel(coordinatorID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.jobs[coordinatorID]; ok {
		s.cronEngine.Remove(id)
		delete(s.jobs, coordinatorID)
		s.logger.WithField("coordinator_id", coordinatorID).Info("Digest job cancelled")
	}
}

// Armed lists the coordinators with a live job.
func (s *DigestScheduler) Armed() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.jobs))
	for id := range s.jobs {
		ids = append(ids, id)
	}
	return ids
}

// Next returns the next fire time of the coordinator's job.
func (s *DigestScheduler) Next(coordinatorID string) (time.Time, bool) {
	s.mu.Lock()
	id, ok := s.jobs[coordinatorID]
	s.mu.Unlock()
	if !ok {
		return time.Time{}, false
	}
	return s.cronEngine.Entry(id).Next, true
}

// fire runs one digest send. Failures are logged, never retried in the same firing.
func (s *DigestScheduler) fire(coordinatorID string) {
	log := s.logger.WithField("coordinator_id", coordinatorID)
	defer observability.Recover(log, "digest job")

	log.Info("Digest job triggered")
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	if err := s.send(ctx, coordinatorID); err != nil {
		log.WithError(err).Error("Digest send failed")
	}
}

func (s *DigestScheduler) Stop() {
	s.logger.Info("Stopping digest scheduler...")
	ctx := s.cronEngine.Stop() // waits for running jobs
	<-ctx.Done()
	s.logger.Info("Digest scheduler gracefully stopped.")
}
