package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/spec-kit/ticket-bot/internal/events"
)

// ActivityLogger subscribes to ticket events and writes an audit trail
// through the structured logger. It is the default event consumer; other
// consumers register against the same dispatcher.
type ActivityLogger struct {
	logger *zap.Logger
}

// NewActivityLogger registers the logger for every ticket event type.
func NewActivityLogger(dispatcher events.Dispatcher, logger *zap.Logger) *ActivityLogger {
	a := &ActivityLogger{logger: logger.Named("activity")}
	for _, eventType := range []events.EventType{
		events.EventTicketCreated,
		events.EventTicketStatusChanged,
		events.EventTicketClaimed,
		events.EventTicketTransferred,
		events.EventTicketClosed,
		events.EventTicketReopened,
		events.EventTicketMessageAdded,
		events.EventReminderSent,
	} {
		dispatcher.Subscribe(eventType, a.handle)
	}
	return a
}

func (a *ActivityLogger) handle(_ context.Context, event events.Event) error {
	a.logger.Info("ticket activity",
		zap.String("event", string(event.Type)),
		zap.Int("ticket_number", event.TicketNumber),
		zap.String("actor", event.ActorID),
		zap.Any("payload", event.Payload))
	return nil
}
