package telegram

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"attendance_tracker_bot/internal/app"
	"attendance_tracker_bot/internal/app/session"

	"github.com/sirupsen/logrus"
	"gopkg.in/telebot.v3"
)

// Operations is what the operator can do to coordinator sessions.
type Operations interface {
	Connected() []string
	Start(ctx context.Context, coordinatorID string) (session.State, error)
	Logout(ctx context.Context, coordinatorID string) error
	SendDigest(ctx context.Context, coordinatorID string) error
}

const msgUnauthorized = "Error: you are not allowed to run this command."

// OperatorCommands renders replies for operator commands.
type OperatorCommands struct {
	ops    Operations
	logger *logrus.Entry
}

func NewOperatorCommands(ops Operations, logger *logrus.Entry) *OperatorCommands {
	return &OperatorCommands{ops: ops, logger: logger}
}

func (oc *OperatorCommands) Sessions() string {
	ids := oc.ops.Connected()
	if len(ids) == 0 {
		return "No live sessions."
	}
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("--- Live sessions (%d) ---\n", len(ids)))
	for i, id := range ids {
		sb.WriteString(fmt.Sprintf("%d. %s\n", i+1, id))
	}
	return strings.TrimRight(sb.String(), "\n")
}

func (oc *OperatorCommands) Connect(ctx context.Context, args []string) string {
	id, usage := singleArg(args, "/connect <coordinator>")
	if usage != "" {
		return usage
	}
	state, err := oc.ops.Start(ctx, id)
	if err != nil {
		oc.logger.WithError(err).WithField("coordinator_id", id).Error("Failed to start session")
		return fmt.Sprintf("Could not start session for %s: %s", id, err.Error())
	}
	return fmt.Sprintf("Session for %s is %s.", id, state)
}

func (oc *OperatorCommands) Logout(ctx context.Context, args []string) string {
	id, usage := singleArg(args, "/logout <coordinator>")
	if usage != "" {
		return usage
	}
	switch err := oc.ops.Logout(ctx, id); {
	case err == nil:
		return fmt.Sprintf("Logging %s out.", id)
	case errors.Is(err, app.ErrNotConnected):
		return fmt.Sprintf("%s has no live session.", id)
	default:
		oc.logger.WithError(err).WithField("coordinator_id", id).Error("Failed to log out")
		return fmt.Sprintf("Logout of %s failed: %s", id, err.Error())
	}
}

func (oc *OperatorCommands) Digest(ctx context.Context, args []string) string {
	id, usage := singleArg(args, "/digest <coordinator>")
	if usage != "" {
		return usage
	}
	switch err := oc.ops.SendDigest(ctx, id); {
	case err == nil:
		return fmt.Sprintf("Digest sent for %s.", id)
	case errors.Is(err, app.ErrNotConnected):
		return fmt.Sprintf("%s has no live session.", id)
	case errors.Is(err, app.ErrNoGroupSelected):
		return fmt.Sprintf("%s has not selected a group yet.", id)
	default:
		oc.logger.WithError(err).WithField("coordinator_id", id).Error("Manual digest failed")
		return fmt.Sprintf("Digest for %s failed: %s", id, err.Error())
	}
}

func singleArg(args []string, usage string) (string, string) {
	if len(args) != 1 || strings.TrimSpace(args[0]) == "" {
		return "", "Invalid command format. Use: " + usage
	}
	return strings.TrimSpace(args[0]), ""
}

// RegisterAdminHandlers registers the operator-only commands.
func RegisterAdminHandlers(ctx context.Context, b *telebot.Bot, commands *OperatorCommands, operatorTelegramID int64, baseLogger *logrus.Entry) {
	guarded := func(name string, reply func(c telebot.Context) string) {
		b.Handle(name, func(c telebot.Context) error {
			handlerLogger := baseLogger.WithFields(logrus.Fields{
				"handler":   name,
				"sender_id": c.Sender().ID,
			})
			handlerLogger.Info("Command received")

			if c.Sender().ID != operatorTelegramID {
				handlerLogger.Warn("Unauthorized access attempt")
				return c.Send(msgUnauthorized)
			}
			return c.Send(reply(c))
		})
	}

	guarded("/sessions", func(telebot.Context) string { return commands.Sessions() })
	guarded("/connect", func(c telebot.Context) string { return commands.Connect(ctx, c.Args()) })
	guarded("/logout", func(c telebot.Context) string { return commands.Logout(ctx, c.Args()) })
	guarded("/digest", func(c telebot.Context) string { return commands.Digest(ctx, c.Args()) })
}
