package app

import (
	"context"

	"attendance_tracker_bot/internal/domain/transport"
	"attendance_tracker_bot/internal/infra/metrics"

	"github.com/sirupsen/logrus"
)

// Delivery is the outcome of a best-effort send. It is logged and counted,
// never returned as an error to the caller that changed state.
type Delivery struct {
	Kind   string
	Target string
	Err    error
}

func (d Delivery) OK() bool { return d.Err == nil }

func deliver(log *logrus.Entry, kind, target string, err error) Delivery {
	metrics.Deliveries.WithLabelValues(kind, metrics.Outcome(err)).Inc()
	if err != nil {
		log.WithError(err).WithFields(logrus.Fields{"kind": kind, "target": target}).Warn("Best-effort delivery failed")
	}
	return Delivery{Kind: kind, Target: target, Err: err}
}

func react(ctx context.Context, c transport.Client, log *logrus.Entry, key transport.MessageKey, emoji string) Delivery {
	return deliver(log, "reaction", key.ID, c.SendReaction(ctx, key, emoji))
}

func sendText(ctx context.Context, c transport.Client, log *logrus.Entry, to, text string, quoted *transport.MessageKey) Delivery {
	_, err := c.SendText(ctx, to, text, quoted)
	return deliver(log, "text", to, err)
}
