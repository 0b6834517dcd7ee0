// Package memory implements the storage ports in process memory.
// It is used by tests and by single-process development runs.
// Writes made inside WithinUser are staged and applied on commit.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/neuroboost/progress-engine/internal/application/gamification"
	"github.com/neuroboost/progress-engine/internal/domain/focus"
	"github.com/neuroboost/progress-engine/internal/domain/progress"
	"github.com/neuroboost/progress-engine/internal/domain/shared"
	"github.com/neuroboost/progress-engine/internal/domain/task"
)

// Store holds all records in maps.
type Store struct {
	mu       sync.RWMutex
	progress map[string]*progress.Progress
	ledger   map[string][]progress.LedgerEntry
	tasks    map[string]*task.Task
	sessions map[string]*focus.Session

	locks *userLocks
	clock func() time.Time

	// FailNext, when set, makes the next repository call return it. Tests only.
	failMu   sync.Mutex
	failNext error
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		progress: make(map[string]*progress.Progress),
		ledger:   make(map[string][]progress.LedgerEntry),
		tasks:    make(map[string]*task.Task),
		sessions: make(map[string]*focus.Session),
		locks:    newUserLocks(),
		clock:    time.Now,
	}
}

// FailNext makes the next repository call fail with err.
func (s *Store) FailNext(err error) {
	s.failMu.Lock()
	s.failNext = err
	s.failMu.Unlock()
}

func (s *Store) injectedFailure() error {
	s.failMu.Lock()
	defer s.failMu.Unlock()
	err := s.failNext
	s.failNext = nil
	return err
}

// WithinUser implements gamification.UnitOfWork.
func (s *Store) WithinUser(ctx context.Context, userID string, fn func(ctx context.Context, sc gamification.Scope) error) error {
	unlock, err := s.locks.lock(ctx, userID)
	if err != nil {
		return err
	}
	defer unlock()

	tx := newTxScope(s)
	if err := fn(ctx, tx); err != nil {
		return err
	}
	s.commit(tx)
	return nil
}

// Repositories returns non-transactional repositories for reads.
func (s *Store) Repositories() gamification.Scope {
	return newTxScope(s).autoCommit()
}

func (s *Store) commit(tx *txScope) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, p := range tx.progress {
		s.progress[id] = p.Clone()
	}
	for _, e := range tx.ledger {
		s.ledger[e.UserID] = append(s.ledger[e.UserID], e)
	}
	for id, t := range tx.tasks {
		s.tasks[id] = cloneTask(t)
	}
	for id := range tx.deleted {
		delete(s.tasks, id)
	}
	for id, fs := range tx.sessions {
		s.sessions[id] = cloneSession(fs)
	}
	tx.reset()
}

// ══════════════════════════════════════════════════════════════════════════════
// STAGED SCOPE
// ══════════════════════════════════════════════════════════════════════════════

type txScope struct {
	store    *Store
	auto     bool
	progress map[string]*progress.Progress
	ledger   []progress.LedgerEntry
	tasks    map[string]*task.Task
	deleted  map[string]struct{}
	sessions map[string]*focus.Session
}

func newTxScope(s *Store) *txScope {
	tx := &txScope{store: s}
	tx.reset()
	return tx
}

func (tx *txScope) autoCommit() *txScope {
	tx.auto = true
	return tx
}

func (tx *txScope) reset() {
	tx.progress = make(map[string]*progress.Progress)
	tx.ledger = nil
	tx.tasks = make(map[string]*task.Task)
	tx.deleted = make(map[string]struct{})
	tx.sessions = make(map[string]*focus.Session)
}

func (tx *txScope) flush() {
	if tx.auto {
		tx.store.commit(tx)
	}
}

func (tx *txScope) Progress() progress.Repository    { return progressRepo{tx} }
func (tx *txScope) Ledger() progress.LedgerRepository { return ledgerRepo{tx} }
func (tx *txScope) Tasks() task.Repository           { return taskRepo{tx} }
func (tx *txScope) Sessions() focus.Repository       { return sessionRepo{tx} }

// ─────────────────────────────────────────────────────────────────────────────
// Progress
// ─────────────────────────────────────────────────────────────────────────────

type progressRepo struct{ tx *txScope }

func (r progressRepo) GetOrCreate(ctx context.Context, userID string) (*progress.Progress, error) {
	p, err := r.Get(ctx, userID)
	if err == nil {
		return p, nil
	}
	if !shared.IsNotFound(err) {
		return nil, err
	}
	p = progress.NewProgress(userID, r.tx.store.clock().UTC())
	r.tx.progress[userID] = p.Clone()
	r.tx.flush()
	return p, nil
}

func (r progressRepo) Get(ctx context.Context, userID string) (*progress.Progress, error) {
	if err := r.tx.store.injectedFailure(); err != nil {
		return nil, err
	}
	if p, ok := r.tx.progress[userID]; ok {
		return p.Clone(), nil
	}
	r.tx.store.mu.RLock()
	defer r.tx.store.mu.RUnlock()
	p, ok := r.tx.store.progress[userID]
	if !ok {
		return nil, shared.ErrProgressNotFound
	}
	return p.Clone(), nil
}

func (r progressRepo) Save(ctx context.Context, p *progress.Progress) error {
	if err := r.tx.store.injectedFailure(); err != nil {
		return err
	}
	if _, ok := r.tx.progress[p.UserID]; !ok {
		r.tx.store.mu.RLock()
		_, exists := r.tx.store.progress[p.UserID]
		r.tx.store.mu.RUnlock()
		if !exists {
			return shared.ErrProgressNotFound
		}
	}
	r.tx.progress[p.UserID] = p.Clone()
	r.tx.flush()
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Ledger
// ─────────────────────────────────────────────────────────────────────────────

type ledgerRepo struct{ tx *txScope }

func (r ledgerRepo) Append(ctx context.Context, entry progress.LedgerEntry) error {
	if err := r.tx.store.injectedFailure(); err != nil {
		return err
	}
	r.tx.ledger = append(r.tx.ledger, entry)
	r.tx.flush()
	return nil
}

func (r ledgerRepo) all(userID string) []progress.LedgerEntry {
	r.tx.store.mu.RLock()
	entries := append([]progress.LedgerEntry(nil), r.tx.store.ledger[userID]...)
	r.tx.store.mu.RUnlock()
	for _, e := range r.tx.ledger {
		if e.UserID == userID {
			entries = append(entries, e)
		}
	}
	return entries
}

func (r ledgerRepo) ListBetween(ctx context.Context, userID string, from, to time.Time) ([]progress.LedgerEntry, error) {
	if err := r.tx.store.injectedFailure(); err != nil {
		return nil, err
	}
	var out []progress.LedgerEntry
	for _, e := range r.all(userID) {
		if !e.CreatedAt.Before(from) && e.CreatedAt.Before(to) {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r ledgerRepo) ListRecent(ctx context.Context, userID string, limit int) ([]progress.LedgerEntry, error) {
	if err := r.tx.store.injectedFailure(); err != nil {
		return nil, err
	}
	entries := r.all(userID)
	out := make([]progress.LedgerEntry, 0, len(entries))
	for i := len(entries) - 1; i >= 0; i-- {
		out = append(out, entries[i])
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Tasks
// ─────────────────────────────────────────────────────────────────────────────

type taskRepo struct{ tx *txScope }

func (r taskRepo) Create(ctx context.Context, t *task.Task) error {
	if err := r.tx.store.injectedFailure(); err != nil {
		return err
	}
	if _, err := r.GetByID(ctx, t.ID); err == nil {
		return shared.NewDomainError("task", "Create", shared.ErrAlreadyExists, "task already exists")
	}
	delete(r.tx.deleted, t.ID)
	r.tx.tasks[t.ID] = cloneTask(t)
	r.tx.flush()
	return nil
}

func (r taskRepo) GetByID(ctx context.Context, id string) (*task.Task, error) {
	if _, gone := r.tx.deleted[id]; gone {
		return nil, shared.ErrTaskNotFound
	}
	if t, ok := r.tx.tasks[id]; ok {
		return cloneTask(t), nil
	}
	r.tx.store.mu.RLock()
	defer r.tx.store.mu.RUnlock()
	t, ok := r.tx.store.tasks[id]
	if !ok {
		return nil, shared.ErrTaskNotFound
	}
	return cloneTask(t), nil
}

func (r taskRepo) Update(ctx context.Context, t *task.Task) error {
	if err := r.tx.store.injectedFailure(); err != nil {
		return err
	}
	if _, err := r.GetByID(ctx, t.ID); err != nil {
		return err
	}
	r.tx.tasks[t.ID] = cloneTask(t)
	r.tx.flush()
	return nil
}

func (r taskRepo) Delete(ctx context.Context, id string) error {
	if err := r.tx.store.injectedFailure(); err != nil {
		return err
	}
	if _, err := r.GetByID(ctx, id); err != nil {
		return err
	}
	delete(r.tx.tasks, id)
	r.tx.deleted[id] = struct{}{}
	r.tx.flush()
	return nil
}

func (r taskRepo) ListByUser(ctx context.Context, userID string) ([]*task.Task, error) {
	merged := make(map[string]*task.Task)
	r.tx.store.mu.RLock()
	for id, t := range r.tx.store.tasks {
		if t.UserID == userID {
			merged[id] = t
		}
	}
	r.tx.store.mu.RUnlock()
	for id, t := range r.tx.tasks {
		if t.UserID == userID {
			merged[id] = t
		}
	}
	for id := range r.tx.deleted {
		delete(merged, id)
	}

	out := make([]*task.Task, 0, len(merged))
	for _, t := range merged {
		out = append(out, cloneTask(t))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r taskRepo) CountCompletedByCategory(ctx context.Context, userID string, from, to time.Time) (map[task.Category]int, error) {
	tasks, err := r.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	counts := make(map[task.Category]int)
	for _, t := range tasks {
		if !t.Completed || t.CompletedAt == nil {
			continue
		}
		if !t.CompletedAt.Before(from) && t.CompletedAt.Before(to) {
			counts[t.Category]++
		}
	}
	return counts, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Focus sessions
// ─────────────────────────────────────────────────────────────────────────────

type sessionRepo struct{ tx *txScope }

func (r sessionRepo) Create(ctx context.Context, fs *focus.Session) error {
	if err := r.tx.store.injectedFailure(); err != nil {
		return err
	}
	r.tx.sessions[fs.ID] = cloneSession(fs)
	r.tx.flush()
	return nil
}

func (r sessionRepo) GetByID(ctx context.Context, id string) (*focus.Session, error) {
	if fs, ok := r.tx.sessions[id]; ok {
		return cloneSession(fs), nil
	}
	r.tx.store.mu.RLock()
	defer r.tx.store.mu.RUnlock()
	fs, ok := r.tx.store.sessions[id]
	if !ok {
		return nil, shared.ErrSessionNotFound
	}
	return cloneSession(fs), nil
}

func (r sessionRepo) MarkCredited(ctx context.Context, fs *focus.Session) error {
	if err := r.tx.store.injectedFailure(); err != nil {
		return err
	}
	stored, err := r.GetByID(ctx, fs.ID)
	if err != nil {
		return err
	}
	stored.CreditedAt = fs.CreditedAt
	r.tx.sessions[fs.ID] = stored
	r.tx.flush()
	return nil
}

func (r sessionRepo) ListBetween(ctx context.Context, userID string, from, to time.Time) ([]*focus.Session, error) {
	merged := make(map[string]*focus.Session)
	r.tx.store.mu.RLock()
	for id, fs := range r.tx.store.sessions {
		merged[id] = fs
	}
	r.tx.store.mu.RUnlock()
	for id, fs := range r.tx.sessions {
		merged[id] = fs
	}

	var out []*focus.Session
	for _, fs := range merged {
		if fs.UserID == userID && !fs.CreatedAt.Before(from) && fs.CreatedAt.Before(to) {
			out = append(out, cloneSession(fs))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func cloneTask(t *task.Task) *task.Task {
	c := *t
	return &c
}

func cloneSession(fs *focus.Session) *focus.Session {
	c := *fs
	return &c
}
