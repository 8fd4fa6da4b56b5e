package app

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"attendance_tracker_bot/internal/domain/batch"
	"attendance_tracker_bot/internal/domain/report"
	"attendance_tracker_bot/internal/domain/transport"
	"attendance_tracker_bot/internal/infra/metrics"

	"github.com/sirupsen/logrus"
)

const (
	ReactionAudio     = "🎙️"
	ReactionWriting   = "✍️"
	ReactionListening = "🎧"
	ReactionSuccess   = "✅"
	ReactionFailure   = "❌"
	ReactionExpired   = "⏰"
)

var startPattern = regexp.MustCompile(`(?i)\bstart\b`)

// IsStartSignal reports whether a message body asks to open the submission window.
func IsStartSignal(text string) bool { return startPattern.MatchString(text) }

func reactionFor(t report.TaskType) string {
	switch t {
	case report.TaskAudio:
		return ReactionAudio
	case report.TaskWriting:
		return ReactionWriting
	case report.TaskListening:
		return ReactionListening
	default:
		return ReactionSuccess
	}
}

// AttendancePolicy holds the time rules of attendance tracking.
type AttendancePolicy struct {
	WindowStartHour  int
	WindowEndHour    int
	SubmissionWindow time.Duration
}

// InWindow reports whether the civil hour of t falls inside the tracking window, both ends inclusive.
func (p AttendancePolicy) InWindow(t time.Time) bool {
	h := report.CivilHour(t)
	return h >= p.WindowStartHour && h <= p.WindowEndHour
}

// AttendanceService applies the per-participant daily state machine:
// not started, started (window open), completed; a retracted submission goes back to started.
type AttendanceService struct {
	reports report.Repository
	policy  AttendancePolicy
	log     *logrus.Entry
}

func NewAttendanceService(reports report.Repository, policy AttendancePolicy, log *logrus.Entry) *AttendanceService {
	return &AttendanceService{reports: reports, policy: policy, log: log}
}

// HandleGroupMessage evaluates one qualifying group message from a known participant.
func (s *AttendanceService) HandleGroupMessage(ctx context.Context, c transport.Client, b *batch.Batch, p batch.Participant, msg transport.Message, now time.Time) error {
	date := report.CivilDate(now)
	log := s.log.WithFields(logrus.Fields{
		"coordinator_id": b.CoordinatorID,
		"group_id":       b.GroupID,
		"message_id":     msg.Key.ID,
		"participant":    p.PhoneNumber,
		"date":           date,
	})

	// 1. The coordinator has to set up the day first; nothing is created implicitly.
	r, err := s.reports.Get(ctx, b.ID, date)
	if errors.Is(err, report.ErrNotFound) {
		log.Info("Group message before the day was set up")
		react(ctx, c, log, msg.Key, ReactionFailure)
		sendText(ctx, c, log, transport.UserJID(b.CoordinatorID),
			fmt.Sprintf("%s wrote in %s, but today's task is not set yet. Send #audio, #writing or #listening to yourself first.", p.Name, batchLabel(b)), nil)
		return nil
	}
	if err != nil {
		return fmt.Errorf("load daily report: %w", err)
	}

	// 2. Start signal.
	if IsStartSignal(msg.Text) {
		return s.start(ctx, c, log, b, r, p, msg, now)
	}

	// 3. Submission evidence for the day's task type.
	if (msg.HasAudio && r.TaskType.AcceptsAudio()) || (msg.HasImage && r.TaskType.AcceptsImage()) {
		return s.submit(ctx, c, log, r, p, msg, now)
	}

	log.Debug("Group message is neither a start signal nor a submission")
	return nil
}

func (s *AttendanceService) start(ctx context.Context, c transport.Client, log *logrus.Entry, b *batch.Batch, r *report.DailyReport, p batch.Participant, msg transport.Message, now time.Time) error {
	if r.TaskType == "" {
		log.Info("Start signal while the day has no task type")
		sendText(ctx, c, log, transport.UserJID(b.CoordinatorID),
			fmt.Sprintf("%s sent start in %s, but today's task type is not set. Send #audio, #writing or #listening to yourself.", p.Name, batchLabel(b)), nil)
		return nil
	}

	entry, created, err := s.reports.AppendEntry(ctx, r.ID, report.NewEntry{
		ParticipantID: p.ID,
		Name:          p.Name,
		PhoneNumber:   p.PhoneNumber,
		StartedAt:     now,
	})
	if err != nil {
		react(ctx, c, log, msg.Key, ReactionFailure)
		return fmt.Errorf("append entry: %w", err)
	}

	switch {
	case created:
		metrics.AttendanceTransitions.WithLabelValues("start").Inc()
		log.Info("Participant started")
	case entry.IsCompleted:
		log.Info("Participant already marked present")
		return nil
	default:
		log.Debug("Participant already started")
	}
	react(ctx, c, log, msg.Key, reactionFor(r.TaskType))
	return nil
}

func (s *AttendanceService) submit(ctx context.Context, c transport.Client, log *logrus.Entry, r *report.DailyReport, p batch.Participant, msg transport.Message, now time.Time) error {
	entry, ok := r.EntryByPhone(p.PhoneNumber)
	if !ok || entry.IsCompleted {
		log.Debug("Submission without a started entry")
		return nil
	}

	elapsed := now.Sub(entry.StartedAt)
	if elapsed <= s.policy.SubmissionWindow {
		if _, err := s.reports.CompleteEntry(ctx, r.ID, p.PhoneNumber, msg.Key.ID); err != nil {
			react(ctx, c, log, msg.Key, ReactionFailure)
			return fmt.Errorf("complete entry: %w", err)
		}
		metrics.AttendanceTransitions.WithLabelValues("complete").Inc()
		log.WithField("elapsed", elapsed).Info("Submission accepted")
		react(ctx, c, log, msg.Key, ReactionSuccess)
		return nil
	}

	if _, err := s.reports.RestartEntry(ctx, r.ID, p.PhoneNumber, now); err != nil {
		react(ctx, c, log, msg.Key, ReactionFailure)
		return fmt.Errorf("restart entry: %w", err)
	}
	metrics.AttendanceTransitions.WithLabelValues("expire").Inc()
	log.WithField("elapsed", elapsed).Info("Late submission rejected; window restarted")
	react(ctx, c, log, msg.Key, ReactionExpired)
	sendText(ctx, c, log, participantJID(p.ID, p.PhoneNumber),
		fmt.Sprintf("Your submission came %s after you started, which is past the %s limit. It was not counted. Please send it again within the next %s.",
			elapsed.Round(time.Second), s.policy.SubmissionWindow, s.policy.SubmissionWindow), nil)
	return nil
}

// HandleRevocation resets the entry whose accepted submission was deleted.
func (s *AttendanceService) HandleRevocation(ctx context.Context, c transport.Client, b *batch.Batch, key transport.MessageKey, now time.Time) error {
	log := s.log.WithFields(logrus.Fields{"coordinator_id": b.CoordinatorID, "message_id": key.ID})

	entry, err := s.reports.ReopenByMessage(ctx, b.ID, key.ID, now)
	if errors.Is(err, report.ErrEntryNotFound) {
		log.Debug("Deleted message was not an accepted submission")
		return nil
	}
	if err != nil {
		return fmt.Errorf("reopen entry: %w", err)
	}

	metrics.AttendanceTransitions.WithLabelValues("reopen").Inc()
	log.WithField("participant", entry.PhoneNumber).Info("Submission deleted; attendance revoked")
	sendText(ctx, c, log, participantJID(entry.ParticipantID, entry.PhoneNumber),
		fmt.Sprintf("You deleted your submission in %s, so your attendance was revoked. Please send it again within %s.",
			batchLabel(b), s.policy.SubmissionWindow), nil)
	return nil
}

func participantJID(id, phone string) string {
	if id != "" {
		return id
	}
	return transport.UserJID(phone)
}

func batchLabel(b *batch.Batch) string {
	if b.BatchName != "" {
		return b.BatchName
	}
	return "your batch"
}
