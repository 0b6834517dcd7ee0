package focus

import (
	"context"
	"time"
)

// Repository stores focus sessions.
type Repository interface {
	// Create inserts a new session.
	Create(ctx context.Context, s *Session) error

	// GetByID returns a session.
	// Returns ErrSessionNotFound if the session does not exist.
	GetByID(ctx context.Context, id string) (*Session, error)

	// MarkCredited persists CreditedAt. XPAwarded is never rewritten.
	MarkCredited(ctx context.Context, s *Session) error

	// ListBetween returns the user's sessions with from <= CreatedAt < to, oldest first.
	ListBetween(ctx context.Context, userID string, from, to time.Time) ([]*Session, error)
}
