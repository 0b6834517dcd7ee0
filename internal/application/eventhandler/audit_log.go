package eventhandler

import (
	"github.com/neuroboost/progress-engine/internal/domain/shared"
	"github.com/neuroboost/progress-engine/pkg/logger"
)

// AuditLogHandler writes every domain event to the log.
type AuditLogHandler struct {
	logger *logger.Logger
}

// NewAuditLogHandler creates a new handler.
func NewAuditLogHandler(log *logger.Logger) *AuditLogHandler {
	if log == nil {
		log = logger.Default()
	}
	return &AuditLogHandler{logger: log.With(logger.Component("audit"))}
}

// Handle logs the event with its payload.
func (h *AuditLogHandler) Handle(event shared.Event) error {
	fields := []logger.Field{
		logger.String("event_type", string(event.EventType())),
		logger.UserID(event.AggregateID()),
		logger.Time("occurred_at", event.OccurredAt()),
	}
	for k, v := range event.Payload() {
		if k == "user_id" {
			continue
		}
		fields = append(fields, logger.Any(k, v))
	}
	h.logger.Debug("domain event", fields...)

	if su, ok := event.(shared.StreakUpdatedEvent); ok && su.Broken() {
		h.logger.Info("streak reset",
			logger.UserID(su.UserID),
			logger.Int("previous_streak", su.PreviousStreak),
			logger.String("date", su.Date))
	}
	return nil
}

// Register subscribes the handler to all events on bus.
func (h *AuditLogHandler) Register(bus shared.EventSubscriber) error {
	return bus.SubscribeAll(h.Handle)
}
