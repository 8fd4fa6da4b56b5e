package telegram

import (
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	"gopkg.in/telebot.v3"
)

func operatorHelp() string {
	var helpText strings.Builder
	helpText.WriteString("Operator commands:\n\n")
	helpText.WriteString("`/sessions`\n - List coordinators with a live session.\n\n")
	helpText.WriteString("`/connect <coordinator>`\n - Start or resume a coordinator's session.\n\n")
	helpText.WriteString("`/logout <coordinator>`\n - Log a coordinator out and drop their credentials.\n\n")
	helpText.WriteString("`/digest <coordinator>`\n - Post today's report to the coordinator's group now.\n\n")
	helpText.WriteString("`/help`\n - Show this message.")
	return helpText.String()
}

func RegisterBotCommands(b *telebot.Bot, operatorTelegramID int64, baseLogger *logrus.Entry) {
	startHelpLogger := baseLogger.WithField("handler_group", "start_help")

	b.Handle("/start", func(c telebot.Context) error {
		senderID := c.Sender().ID
		logCtx := startHelpLogger.WithField("command", "/start").WithField("sender_id", senderID)
		logCtx.Info("Processing /start command")

		if senderID == operatorTelegramID {
			return c.Send(fmt.Sprintf("Hello, %s! Session events will show up here. Use /help for the command list.", c.Sender().FirstName))
		}
		logCtx.Info("User is unknown")
		return c.Send("This bot only talks to the attendance tracker operator.")
	})

	b.Handle("/help", func(c telebot.Context) error {
		senderID := c.Sender().ID
		logCtx := startHelpLogger.WithField("command", "/help").WithField("sender_id", senderID)
		logCtx.Info("Processing /help command")

		if senderID == operatorTelegramID {
			return c.Send(operatorHelp(), &telebot.SendOptions{ParseMode: telebot.ModeMarkdown})
		}
		return c.Send("No commands are available to you.")
	})
}
