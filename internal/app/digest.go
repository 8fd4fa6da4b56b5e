package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"attendance_tracker_bot/internal/domain/batch"
	"attendance_tracker_bot/internal/domain/report"
	"attendance_tracker_bot/internal/domain/transport"
	"attendance_tracker_bot/internal/infra/metrics"

	"github.com/sirupsen/logrus"
)

const (
	unknownName     = "Unknown"
	topicNotSet     = "Not mentioned"
	digestDateStyle = "02 Jan 2006"
)

// Compose renders the end-of-day digest. r may be nil when the day was never set up.
func Compose(b *batch.Batch, r *report.DailyReport, date string) string {
	label := "Daily Report"
	topic := topicNotSet
	if r != nil {
		if r.TaskType != "" {
			label = string(r.TaskType) + " Report"
		}
		if strings.TrimSpace(r.TaskTopic) != "" {
			topic = r.TaskTopic
		}
	}

	shownDate := date
	if d, err := report.ParseCivilDate(date); err == nil {
		shownDate = d.Format(digestDateStyle)
	}

	trainer := unknownName
	if p, ok := b.Trainer(); ok {
		trainer = p.Name
	}
	coordinator := unknownName
	if p, ok := b.Coordinator(); ok {
		coordinator = p.Name
	}

	var submitted, pending []string
	for _, p := range b.Students() {
		if r.Completed(p.PhoneNumber) {
			submitted = append(submitted, displayName(p))
		} else {
			pending = append(pending, displayName(p))
		}
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "📋 *%s*\n", label)
	fmt.Fprintf(&sb, "Batch: %s\n", b.BatchName)
	fmt.Fprintf(&sb, "Date: %s\n", shownDate)
	fmt.Fprintf(&sb, "Trainer: %s\n", trainer)
	fmt.Fprintf(&sb, "Coordinator: %s\n", coordinator)
	fmt.Fprintf(&sb, "Topic: %s\n", topic)
	writeSection(&sb, "✅ Submitted", submitted)
	writeSection(&sb, "❌ Not submitted", pending)
	return strings.TrimRight(sb.String(), "\n")
}

func writeSection(sb *strings.Builder, title string, names []string) {
	fmt.Fprintf(sb, "\n%s (%d):\n", title, len(names))
	if len(names) == 0 {
		sb.WriteString("None\n")
		return
	}
	for i, n := range names {
		fmt.Fprintf(sb, "%d. %s\n", i+1, n)
	}
}

func displayName(p batch.Participant) string {
	if p.Name != "" {
		return p.Name
	}
	return p.PhoneNumber
}

// Digest triggers, used as log fields and metric labels.
const (
	TriggerScheduled = "scheduled"
	TriggerManual    = "manual"
	TriggerPreview   = "preview"
)

// DigestService composes the day's digest and sends it over the coordinator's live session.
type DigestService struct {
	sessions      Sessions
	batches       batch.Repository
	reports       report.Repository
	ignoreSharing bool
	now           func() time.Time
	log           *logrus.Entry
}

// Sessions resolves the live client of a coordinator.
type Sessions interface {
	Get(coordinatorID string) (transport.Client, bool)
}

func NewDigestService(sessions Sessions, batches batch.Repository, reports report.Repository, ignoreSharing bool, log *logrus.Entry) *DigestService {
	return &DigestService{
		sessions:      sessions,
		batches:       batches,
		reports:       reports,
		ignoreSharing: ignoreSharing,
		now:           time.Now,
		log:           log,
	}
}

// SendScheduled is the clock-driven send. Sharing must be enabled unless configured to bypass it.
func (s *DigestService) SendScheduled(ctx context.Context, coordinatorID string) (err error) {
	defer func() { metrics.DigestRuns.WithLabelValues(TriggerScheduled, metrics.Outcome(err)).Inc() }()
	log := s.log.WithFields(logrus.Fields{"coordinator_id": coordinatorID, "trigger": TriggerScheduled})

	c, b, err := s.target(ctx, coordinatorID)
	if err != nil {
		return err
	}
	if !b.IsSharingEnabled && !s.ignoreSharing {
		log.Info("Sharing disabled; scheduled digest skipped")
		return nil
	}
	return s.send(ctx, c, b, b.GroupID, log)
}

// SendManual is the on-demand send; it posts to the tracked group regardless of the sharing flag.
func (s *DigestService) SendManual(ctx context.Context, coordinatorID string) (err error) {
	defer func() { metrics.DigestRuns.WithLabelValues(TriggerManual, metrics.Outcome(err)).Inc() }()
	log := s.log.WithFields(logrus.Fields{"coordinator_id": coordinatorID, "trigger": TriggerManual})

	c, b, err := s.target(ctx, coordinatorID)
	if err != nil {
		return err
	}
	return s.send(ctx, c, b, b.GroupID, log)
}

// Preview sends the digest to the coordinator's own chat.
func (s *DigestService) Preview(ctx context.Context, c transport.Client, b *batch.Batch, quoted *transport.MessageKey) (err error) {
	defer func() { metrics.DigestRuns.WithLabelValues(TriggerPreview, metrics.Outcome(err)).Inc() }()
	log := s.log.WithFields(logrus.Fields{"coordinator_id": b.CoordinatorID, "trigger": TriggerPreview})

	text, err := s.Render(ctx, b)
	if err != nil {
		return err
	}
	if _, err := c.SendText(ctx, transport.UserJID(b.CoordinatorID), text, quoted); err != nil {
		return fmt.Errorf("send digest preview: %w", err)
	}
	log.Info("Digest preview sent")
	return nil
}

// Render composes today's digest for b.
func (s *DigestService) Render(ctx context.Context, b *batch.Batch) (string, error) {
	date := report.CivilDate(s.now())
	r, err := s.reports.Get(ctx, b.ID, date)
	if errors.Is(err, report.ErrNotFound) {
		r = nil
	} else if err != nil {
		return "", fmt.Errorf("load daily report: %w", err)
	}
	return Compose(b, r, date), nil
}

func (s *DigestService) target(ctx context.Context, coordinatorID string) (transport.Client, *batch.Batch, error) {
	c, ok := s.sessions.Get(coordinatorID)
	if !ok {
		return nil, nil, ErrNotConnected
	}
	b, err := s.batches.GetByCoordinator(ctx, coordinatorID)
	if errors.Is(err, batch.ErrNotFound) {
		return nil, nil, ErrNoGroupSelected
	}
	if err != nil {
		return nil, nil, fmt.Errorf("load batch: %w", err)
	}
	if !b.HasGroup() {
		return nil, nil, ErrNoGroupSelected
	}
	return c, b, nil
}

func (s *DigestService) send(ctx context.Context, c transport.Client, b *batch.Batch, to string, log *logrus.Entry) error {
	text, err := s.Render(ctx, b)
	if err != nil {
		return err
	}
	if _, err := c.SendText(ctx, to, text, nil); err != nil {
		return fmt.Errorf("send digest: %w", err)
	}
	log.WithField("group_id", to).Info("Digest sent")
	return nil
}
