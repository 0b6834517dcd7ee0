package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/neuroboost/progress-engine/internal/application/gamification"
	"github.com/neuroboost/progress-engine/internal/domain/focus"
	"github.com/neuroboost/progress-engine/internal/domain/progress"
	"github.com/neuroboost/progress-engine/internal/domain/task"
)

// Store implements gamification.UnitOfWork on PostgreSQL.
type Store struct {
	conn *Connection
}

// NewStore creates a new Store.
func NewStore(conn *Connection) *Store {
	return &Store{conn: conn}
}

// WithinUser runs fn in one transaction holding the user's advisory lock.
// The lock is released by commit or rollback.
func (s *Store) WithinUser(ctx context.Context, userID string, fn func(ctx context.Context, sc gamification.Scope) error) error {
	return s.conn.WithTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, userID); err != nil {
			return fmt.Errorf("lock user %s: %w", userID, err)
		}
		return fn(ctx, scope{q: tx})
	})
}

// Repositories returns repositories running each statement on its own.
func (s *Store) Repositories() gamification.Scope {
	return scope{q: s.conn}
}

type scope struct {
	q Querier
}

func (s scope) Progress() progress.Repository    { return &ProgressRepository{q: s.q} }
func (s scope) Ledger() progress.LedgerRepository { return &LedgerRepository{q: s.q} }
func (s scope) Tasks() task.Repository           { return &TaskRepository{q: s.q} }
func (s scope) Sessions() focus.Repository       { return &SessionRepository{q: s.q} }
