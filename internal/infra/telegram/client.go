package telegram

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"attendance_tracker_bot/internal/domain/notify"
	"attendance_tracker_bot/internal/infra/observability"

	"github.com/sirupsen/logrus"
	"gopkg.in/telebot.v3"
)

// Sender is the narrow send capability the operator channel needs.
type Sender interface {
	SendMessage(recipientChatID int64, text string, options *telebot.SendOptions) error
}

// TelebotAdapter implements Sender using the gopkg.in/telebot.v3 library.
type TelebotAdapter struct {
	bot *telebot.Bot
}

func NewTelebotAdapter(b *telebot.Bot) *TelebotAdapter {
	return &TelebotAdapter{bot: b}
}

// SendMessage sends a text message to the specified recipient.
func (tba *TelebotAdapter) SendMessage(recipientChatID int64, text string, options *telebot.SendOptions) error {
	if options == nil {
		options = &telebot.SendOptions{}
	}

	recipient := &telebot.User{ID: recipientChatID} // operator is a direct user chat
	_, err := tba.bot.Send(recipient, text, options)
	return err
}

const operatorQueue = 32

type operatorMessage struct {
	coordinatorID string
	event         string
	text          string
}

// OperatorSink forwards session status changes to the operator's chat.
// Linking codes are not forwarded; they belong on the coordinator's dashboard.
// Messages are sent in order by one worker; Publish never waits on the Bot API.
type OperatorSink struct {
	sender Sender
	chatID int64
	logger *logrus.Entry

	queue     chan operatorMessage
	done      chan struct{}
	closeOnce sync.Once
}

func NewOperatorSink(sender Sender, chatID int64, logger *logrus.Entry) *OperatorSink {
	s := &OperatorSink{
		sender: sender,
		chatID: chatID,
		logger: logger,
		queue:  make(chan operatorMessage, operatorQueue),
		done:   make(chan struct{}),
	}
	observability.Go(logger, "operator sink", s.run)
	return s
}

func (s *OperatorSink) Publish(_ context.Context, coordinatorID string, ev notify.Event) {
	text, ok := operatorText(coordinatorID, ev)
	if !ok {
		return
	}
	msg := operatorMessage{coordinatorID: coordinatorID, event: ev.Name(), text: text}
	select {
	case <-s.done:
	case s.queue <- msg:
	default:
		s.logger.WithField("coordinator_id", coordinatorID).Warn("Operator queue full, dropping event")
	}
}

// Close stops the worker. Queued messages are dropped.
func (s *OperatorSink) Close() {
	s.closeOnce.Do(func() { close(s.done) })
}

func (s *OperatorSink) run() {
	for {
		select {
		case <-s.done:
			return
		case msg := <-s.queue:
			if err := s.sender.SendMessage(s.chatID, msg.text, nil); err != nil {
				s.logger.WithError(err).WithFields(logrus.Fields{
					"coordinator_id": msg.coordinatorID,
					"event":          msg.event,
				}).Warn("Failed to forward event to operator")
			}
		}
	}
}

func operatorText(coordinatorID string, ev notify.Event) (string, bool) {
	switch e := ev.(type) {
	case notify.StatusChanged:
		text := fmt.Sprintf("[%s] %s", coordinatorID, e.Kind)
		if e.Message != "" {
			text += ": " + e.Message
		}
		if e.GroupID != "" {
			text += " (group " + e.GroupID + ")"
		}
		return text, true
	case notify.GroupCandidates:
		if len(e.Groups) == 0 {
			return fmt.Sprintf("[%s] connected, no matching groups found", coordinatorID), true
		}
		names := make([]string, 0, len(e.Groups))
		for _, g := range e.Groups {
			names = append(names, fmt.Sprintf("%s (%d)", g.Name, g.Size))
		}
		return fmt.Sprintf("[%s] groups available: %s", coordinatorID, strings.Join(names, ", ")), true
	default:
		return "", false
	}
}
