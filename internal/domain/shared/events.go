package shared

import (
	"time"
)

// EventType represents the type of domain event.
type EventType string

// Domain event types. Events are published after the owning unit of work commits.
const (
	// Progress events
	EventXPGained        EventType = "progress.xp_gained"
	EventLevelUp         EventType = "progress.level_up"
	EventStreakUpdated   EventType = "progress.streak_updated"
	EventStreakMilestone EventType = "progress.streak_milestone"

	// Task events
	EventTaskCompleted EventType = "task.completed"
	EventTaskReopened  EventType = "task.reopened"

	// Focus events
	EventFocusSessionLogged EventType = "focus.session_logged"
)

// Event is the base interface for all domain events.
type Event interface {
	// EventType returns the type of the event.
	EventType() EventType

	// OccurredAt returns when the event occurred.
	OccurredAt() time.Time

	// AggregateID returns the ID of the aggregate that produced this event.
	AggregateID() string

	// Payload returns the event data as a map for serialization.
	Payload() map[string]interface{}
}

// BaseEvent provides common event functionality.
type BaseEvent struct {
	Type        EventType `json:"type"`
	Timestamp   time.Time `json:"timestamp"`
	AggregateId string    `json:"aggregate_id"`
	Version     int       `json:"version"`
}

// EventType implements Event interface.
func (e BaseEvent) EventType() EventType {
	return e.Type
}

// OccurredAt implements Event interface.
func (e BaseEvent) OccurredAt() time.Time {
	return e.Timestamp
}

// AggregateID implements Event interface.
func (e BaseEvent) AggregateID() string {
	return e.AggregateId
}

// NewBaseEvent creates a new base event. The aggregate of every progress event is the user.
func NewBaseEvent(eventType EventType, aggregateID string, at time.Time) BaseEvent {
	return BaseEvent{
		Type:        eventType,
		Timestamp:   at,
		AggregateId: aggregateID,
		Version:     1,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Progress Events
// ═══════════════════════════════════════════════════════════════════════════

// XPGainedEvent is emitted for every ledger entry the engine appends.
type XPGainedEvent struct {
	BaseEvent
	UserID      string `json:"user_id"`
	Amount      int    `json:"amount"`
	NewTotal    int    `json:"new_total"`
	Source      string `json:"source"`
	Description string `json:"description,omitempty"`
}

// Payload implements Event interface.
func (e XPGainedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"user_id":     e.UserID,
		"amount":      e.Amount,
		"new_total":   e.NewTotal,
		"source":      e.Source,
		"description": e.Description,
	}
}

// NewXPGainedEvent creates a new XPGainedEvent.
func NewXPGainedEvent(userID string, amount, newTotal int, source, description string, at time.Time) XPGainedEvent {
	return XPGainedEvent{
		BaseEvent:   NewBaseEvent(EventXPGained, userID, at),
		UserID:      userID,
		Amount:      amount,
		NewTotal:    newTotal,
		Source:      source,
		Description: description,
	}
}

// LevelUpEvent is emitted when an XP award crosses a level boundary.
type LevelUpEvent struct {
	BaseEvent
	UserID   string `json:"user_id"`
	OldLevel int    `json:"old_level"`
	NewLevel int    `json:"new_level"`
	TotalXP  int    `json:"total_xp"`
}

// Payload implements Event interface.
func (e LevelUpEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"user_id":   e.UserID,
		"old_level": e.OldLevel,
		"new_level": e.NewLevel,
		"total_xp":  e.TotalXP,
	}
}

// NewLevelUpEvent creates a new LevelUpEvent.
func NewLevelUpEvent(userID string, oldLevel, newLevel, totalXP int, at time.Time) LevelUpEvent {
	return LevelUpEvent{
		BaseEvent: NewBaseEvent(EventLevelUp, userID, at),
		UserID:    userID,
		OldLevel:  oldLevel,
		NewLevel:  newLevel,
		TotalXP:   totalXP,
	}
}

// StreakUpdatedEvent is emitted when a completion changes the streak value.
type StreakUpdatedEvent struct {
	BaseEvent
	UserID         string `json:"user_id"`
	PreviousStreak int    `json:"previous_streak"`
	NewStreak      int    `json:"new_streak"`
	Date           string `json:"date"`
}

// Payload implements Event interface.
func (e StreakUpdatedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"user_id":         e.UserID,
		"previous_streak": e.PreviousStreak,
		"new_streak":      e.NewStreak,
		"date":            e.Date,
	}
}

// Broken reports whether the update reset a running streak.
func (e StreakUpdatedEvent) Broken() bool {
	return e.PreviousStreak > 0 && e.NewStreak == 1
}

// NewStreakUpdatedEvent creates a new StreakUpdatedEvent.
func NewStreakUpdatedEvent(userID string, previous, current int, date string, at time.Time) StreakUpdatedEvent {
	return StreakUpdatedEvent{
		BaseEvent:      NewBaseEvent(EventStreakUpdated, userID, at),
		UserID:         userID,
		PreviousStreak: previous,
		NewStreak:      current,
		Date:           date,
	}
}

// StreakMilestoneEvent is emitted when a streak reaches a milestone and the bonus is granted.
type StreakMilestoneEvent struct {
	BaseEvent
	UserID  string `json:"user_id"`
	Streak  int    `json:"streak"`
	BonusXP int    `json:"bonus_xp"`
}

// Payload implements Event interface.
func (e StreakMilestoneEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"user_id":  e.UserID,
		"streak":   e.Streak,
		"bonus_xp": e.BonusXP,
	}
}

// NewStreakMilestoneEvent creates a new StreakMilestoneEvent.
func NewStreakMilestoneEvent(userID string, streak, bonusXP int, at time.Time) StreakMilestoneEvent {
	return StreakMilestoneEvent{
		BaseEvent: NewBaseEvent(EventStreakMilestone, userID, at),
		UserID:    userID,
		Streak:    streak,
		BonusXP:   bonusXP,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Task & Focus Events
// ═══════════════════════════════════════════════════════════════════════════

// TaskToggledEvent is emitted when a task's completion flag flips.
// Type is EventTaskCompleted or EventTaskReopened.
type TaskToggledEvent struct {
	BaseEvent
	UserID   string `json:"user_id"`
	TaskID   string `json:"task_id"`
	XPEarned int    `json:"xp_earned"`
}

// Payload implements Event interface.
func (e TaskToggledEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"user_id":   e.UserID,
		"task_id":   e.TaskID,
		"xp_earned": e.XPEarned,
	}
}

// NewTaskToggledEvent creates a new TaskToggledEvent.
func NewTaskToggledEvent(userID, taskID string, completed bool, xpEarned int, at time.Time) TaskToggledEvent {
	eventType := EventTaskReopened
	if completed {
		eventType = EventTaskCompleted
	}
	return TaskToggledEvent{
		BaseEvent: NewBaseEvent(eventType, userID, at),
		UserID:    userID,
		TaskID:    taskID,
		XPEarned:  xpEarned,
	}
}

// FocusSessionLoggedEvent is emitted when a focus session is credited to progress.
type FocusSessionLoggedEvent struct {
	BaseEvent
	UserID          string `json:"user_id"`
	SessionID       string `json:"session_id"`
	DurationMinutes int    `json:"duration_minutes"`
	XPAwarded       int    `json:"xp_awarded"`
}

// Payload implements Event interface.
func (e FocusSessionLoggedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"user_id":          e.UserID,
		"session_id":       e.SessionID,
		"duration_minutes": e.DurationMinutes,
		"xp_awarded":       e.XPAwarded,
	}
}

// NewFocusSessionLoggedEvent creates a new FocusSessionLoggedEvent.
func NewFocusSessionLoggedEvent(userID, sessionID string, duration, xpAwarded int, at time.Time) FocusSessionLoggedEvent {
	return FocusSessionLoggedEvent{
		BaseEvent:       NewBaseEvent(EventFocusSessionLogged, userID, at),
		UserID:          userID,
		SessionID:       sessionID,
		DurationMinutes: duration,
		XPAwarded:       xpAwarded,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Bus contracts
// ═══════════════════════════════════════════════════════════════════════════

// EventHandler is a function that handles an event.
type EventHandler func(event Event) error

// EventPublisher defines the interface for publishing events.
type EventPublisher interface {
	// Publish sends an event to subscribers.
	Publish(event Event) error
}

// EventSubscriber defines the interface for subscribing to events.
type EventSubscriber interface {
	// Subscribe registers a handler for an event type.
	Subscribe(eventType EventType, handler EventHandler) error

	// SubscribeAll registers a handler for all events.
	SubscribeAll(handler EventHandler) error
}

// EventBus combines publishing and subscribing.
type EventBus interface {
	EventPublisher
	EventSubscriber
}

// NopPublisher discards events.
type NopPublisher struct{}

// Publish implements EventPublisher.
func (NopPublisher) Publish(Event) error { return nil }
