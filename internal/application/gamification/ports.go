// Package gamification implements the progress engine: the only place where
// XP, levels, streaks and focus totals are mutated.
package gamification

import (
	"context"

	"github.com/neuroboost/progress-engine/internal/domain/focus"
	"github.com/neuroboost/progress-engine/internal/domain/progress"
	"github.com/neuroboost/progress-engine/internal/domain/task"
)

// Scope exposes the repositories bound to one open unit of work.
type Scope interface {
	Progress() progress.Repository
	Ledger() progress.LedgerRepository
	Tasks() task.Repository
	Sessions() focus.Repository
}

// UnitOfWork runs fn with exclusive access to one user's progress record.
// All writes made through the Scope commit together, or none do when fn
// returns an error. Concurrent calls for the same user are serialized;
// calls for different users do not block each other.
type UnitOfWork interface {
	WithinUser(ctx context.Context, userID string, fn func(ctx context.Context, s Scope) error) error
}

// Locker serializes work on a key across processes.
// Optional: stores whose UnitOfWork already serializes per user do not need one.
type Locker interface {
	// Lock blocks until the key is held or ctx is done.
	Lock(ctx context.Context, key string) (unlock func(context.Context) error, err error)
}

// Invalidator drops cached views of a user's progress. The engine calls it
// after every committed change, before the operation returns.
type Invalidator interface {
	InvalidateSummary(ctx context.Context, userID string) error
}
