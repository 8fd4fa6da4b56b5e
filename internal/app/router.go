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

	"github.com/sirupsen/logrus"
)

// CommandKind is the kind of a coordinator control command.
type CommandKind int

const (
	CommandNone CommandKind = iota
	CommandTaskType
	CommandTopic
	CommandReport
)

// Command is a parsed self-chat control message.
type Command struct {
	Kind     CommandKind
	TaskType report.TaskType
	Topic    string
}

const topicPrefix = "topic:"

// ParseCommand recognises #audio, #writing, #listening, #report and "topic: ...".
func ParseCommand(text string) (Command, bool) {
	t := strings.TrimSpace(text)
	lower := strings.ToLower(t)
	switch lower {
	case "#audio":
		return Command{Kind: CommandTaskType, TaskType: report.TaskAudio}, true
	case "#writing":
		return Command{Kind: CommandTaskType, TaskType: report.TaskWriting}, true
	case "#listening":
		return Command{Kind: CommandTaskType, TaskType: report.TaskListening}, true
	case "#report":
		return Command{Kind: CommandReport}, true
	}
	if strings.HasPrefix(lower, topicPrefix) {
		return Command{Kind: CommandTopic, Topic: strings.TrimSpace(t[len(topicPrefix):])}, true
	}
	return Command{}, false
}

// Route is what the classifier decided for one message.
type Route int

const (
	RouteDrop Route = iota
	RouteControl
	RouteAttendance
)

func (r Route) String() string {
	switch r {
	case RouteControl:
		return "control"
	case RouteAttendance:
		return "attendance"
	default:
		return "drop"
	}
}

// Classify sorts a message into coordinator control traffic, tracked-group attendance
// traffic or noise. The participant is set for RouteAttendance.
func Classify(b *batch.Batch, msg transport.Message, policy AttendancePolicy, now time.Time) (Route, batch.Participant) {
	if isSelfChat(b.CoordinatorID, msg) {
		return RouteControl, batch.Participant{}
	}
	if !msg.IsGroup || msg.Key.FromMe {
		return RouteDrop, batch.Participant{}
	}
	if !b.IsTrackingEnabled || !b.HasGroup() || msg.Key.Chat != b.GroupID {
		return RouteDrop, batch.Participant{}
	}
	p, ok := resolveSender(b, msg.Key.Sender)
	if !ok {
		return RouteDrop, batch.Participant{}
	}
	if !policy.InWindow(now) {
		return RouteDrop, batch.Participant{}
	}
	return RouteAttendance, p
}

func isSelfChat(coordinatorID string, msg transport.Message) bool {
	return msg.Key.FromMe && !msg.IsGroup && coordinatorID != "" && transport.UserOf(msg.Key.Chat) == coordinatorID
}

// resolveSender matches a sender address against the roster, ignoring the device suffix.
func resolveSender(b *batch.Batch, sender string) (batch.Participant, bool) {
	if sender == "" {
		return batch.Participant{}, false
	}
	if p, ok := b.FindParticipant(sender); ok {
		return p, true
	}
	user := transport.UserOf(sender)
	for _, p := range b.Participants {
		if p.PhoneNumber == user || transport.UserOf(p.ID) == user {
			return p, true
		}
	}
	return batch.Participant{}, false
}

// MessageRouter receives a session's traffic and dispatches it.
type MessageRouter struct {
	batches    batch.Repository
	reports    report.Repository
	attendance *AttendanceService
	digests    *DigestService
	policy     AttendancePolicy
	log        *logrus.Entry

	// Now is the clock; tests replace it.
	Now func() time.Time
}

func NewMessageRouter(batches batch.Repository, reports report.Repository, attendance *AttendanceService, digests *DigestService, policy AttendancePolicy, log *logrus.Entry) *MessageRouter {
	return &MessageRouter{
		batches:    batches,
		reports:    reports,
		attendance: attendance,
		digests:    digests,
		policy:     policy,
		log:        log,
		Now:        time.Now,
	}
}

// HandleMessages processes one inbound batch. A failing message is logged and
// the rest of the batch is still processed.
func (r *MessageRouter) HandleMessages(ctx context.Context, coordinatorID string, c transport.Client, ev transport.MessagesReceived) error {
	if len(ev.Messages) == 0 || (ev.Type != "" && ev.Type != "notify") {
		return nil
	}
	b, err := r.batches.GetByCoordinator(ctx, coordinatorID)
	if errors.Is(err, batch.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load batch: %w", err)
	}

	now := r.Now()
	var errs []error
	for _, msg := range ev.Messages {
		route, p := Classify(b, msg, r.policy, now)
		switch route {
		case RouteControl:
			err = r.handleCommand(ctx, c, b, msg, now)
		case RouteAttendance:
			err = r.attendance.HandleGroupMessage(ctx, c, b, p, msg, now)
		default:
			continue
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("message %s: %w", msg.Key.ID, err))
		}
	}
	return errors.Join(errs...)
}

// HandleUpdates turns deletions of tracked-group messages into revocations.
func (r *MessageRouter) HandleUpdates(ctx context.Context, coordinatorID string, c transport.Client, ev transport.MessagesUpdated) error {
	if len(ev.Updates) == 0 {
		return nil
	}
	b, err := r.batches.GetByCoordinator(ctx, coordinatorID)
	if errors.Is(err, batch.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load batch: %w", err)
	}
	if !b.IsTrackingEnabled || !b.HasGroup() {
		return nil
	}

	now := r.Now()
	var errs []error
	for _, u := range ev.Updates {
		if u.Stub != transport.StubRevoked || u.Key.Chat != b.GroupID {
			continue
		}
		if err := r.attendance.HandleRevocation(ctx, c, b, u.Key, now); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (r *MessageRouter) handleCommand(ctx context.Context, c transport.Client, b *batch.Batch, msg transport.Message, now time.Time) error {
	cmd, ok := ParseCommand(msg.Text)
	if !ok {
		return nil
	}
	date := report.CivilDate(now)
	log := r.log.WithFields(logrus.Fields{"coordinator_id": b.CoordinatorID, "message_id": msg.Key.ID, "date": date})
	key := msg.Key

	switch cmd.Kind {
	case CommandTaskType:
		_, err := r.reports.SetTaskType(ctx, b.ID, date, cmd.TaskType)
		if err != nil {
			sendText(ctx, c, log, msg.Key.Chat, fmt.Sprintf("%s Could not set today's task type. Please try again.", ReactionFailure), &key)
			return fmt.Errorf("set task type: %w", err)
		}
		log.WithField("task_type", cmd.TaskType).Info("Task type set")
		sendText(ctx, c, log, msg.Key.Chat, fmt.Sprintf("%s Task type for %s set to %s.", ReactionSuccess, date, cmd.TaskType), &key)

	case CommandTopic:
		if cmd.Topic == "" {
			sendText(ctx, c, log, msg.Key.Chat, fmt.Sprintf("%s The topic is empty. Send it as \"topic: <text>\".", ReactionFailure), &key)
			return nil
		}
		_, err := r.reports.SetTaskTopic(ctx, b.ID, date, cmd.Topic)
		if err != nil {
			sendText(ctx, c, log, msg.Key.Chat, fmt.Sprintf("%s Could not set today's topic. Please try again.", ReactionFailure), &key)
			return fmt.Errorf("set task topic: %w", err)
		}
		log.WithField("topic", cmd.Topic).Info("Task topic set")
		sendText(ctx, c, log, msg.Key.Chat, fmt.Sprintf("%s Topic for %s set to %q.", ReactionSuccess, date, cmd.Topic), &key)

	case CommandReport:
		if !b.HasGroup() {
			sendText(ctx, c, log, msg.Key.Chat, fmt.Sprintf("%s No group is selected yet.", ReactionFailure), &key)
			return nil
		}
		if err := r.digests.Preview(ctx, c, b, &key); err != nil {
			sendText(ctx, c, log, msg.Key.Chat, fmt.Sprintf("%s Could not build today's report.", ReactionFailure), &key)
			return err
		}
	}
	return nil
}
