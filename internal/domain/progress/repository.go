package progress

import (
	"context"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// REPOSITORY INTERFACES
// Implementations live in infrastructure/persistence. Inside a unit of work
// GetOrCreate returns a record that stays exclusively held until commit.
// ══════════════════════════════════════════════════════════════════════════════

// Repository stores one Progress record per user.
type Repository interface {
	// GetOrCreate returns the user's record, inserting the starting record first
	// when the user has never been seen.
	GetOrCreate(ctx context.Context, userID string) (*Progress, error)

	// Get returns the user's record.
	// Returns ErrProgressNotFound if the user has no record.
	Get(ctx context.Context, userID string) (*Progress, error)

	// Save overwrites the user's record.
	// Returns ErrProgressNotFound if the record does not exist.
	Save(ctx context.Context, p *Progress) error
}

// LedgerRepository stores the append-only XP history.
type LedgerRepository interface {
	// Append inserts one entry. Entries are never updated or deleted.
	Append(ctx context.Context, entry LedgerEntry) error

	// ListBetween returns entries with from <= CreatedAt < to, oldest first.
	ListBetween(ctx context.Context, userID string, from, to time.Time) ([]LedgerEntry, error)

	// ListRecent returns up to limit entries, newest first.
	ListRecent(ctx context.Context, userID string, limit int) ([]LedgerEntry, error)
}
