// Package eventhandler contains subscribers for domain events.
package eventhandler

import (
	"context"
	"time"

	"github.com/neuroboost/progress-engine/internal/domain/shared"
	"github.com/neuroboost/progress-engine/pkg/logger"
)

// ═══════════════════════════════════════════════════════════════════════════
// ON PROGRESS CHANGED HANDLER
// Drops the cached summary of a user whenever the engine commits a change
// to that user's progress.
// ═══════════════════════════════════════════════════════════════════════════

// SummaryInvalidator removes a cached summary.
type SummaryInvalidator interface {
	InvalidateSummary(ctx context.Context, userID string) error
}

// OnProgressChangedHandler invalidates cached summaries.
type OnProgressChangedHandler struct {
	cache   SummaryInvalidator
	logger  *logger.Logger
	timeout time.Duration
}

// NewOnProgressChangedHandler creates a new handler.
func NewOnProgressChangedHandler(cache SummaryInvalidator, log *logger.Logger) *OnProgressChangedHandler {
	if log == nil {
		log = logger.Default()
	}
	return &OnProgressChangedHandler{
		cache:   cache,
		logger:  log.With(logger.Component("summary_invalidator")),
		timeout: 2 * time.Second,
	}
}

// EventTypes lists the events after which a summary is stale.
func (h *OnProgressChangedHandler) EventTypes() []shared.EventType {
	return []shared.EventType{
		shared.EventXPGained,
		shared.EventStreakUpdated,
		shared.EventFocusSessionLogged,
		shared.EventTaskCompleted,
	}
}

// Handle invalidates the summary of the event's user.
func (h *OnProgressChangedHandler) Handle(event shared.Event) error {
	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()

	userID := event.AggregateID()
	if err := h.cache.InvalidateSummary(ctx, userID); err != nil {
		h.logger.Warn("failed to invalidate summary",
			logger.UserID(userID),
			logger.String("event_type", string(event.EventType())),
			logger.Err(err),
		)
		return err
	}
	return nil
}

// Register subscribes the handler on bus.
func (h *OnProgressChangedHandler) Register(bus shared.EventSubscriber) error {
	for _, t := range h.EventTypes() {
		if err := bus.Subscribe(t, h.Handle); err != nil {
			return err
		}
	}
	return nil
}
