package gamification

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/neuroboost/progress-engine/internal/domain/focus"
	"github.com/neuroboost/progress-engine/internal/domain/progress"
	"github.com/neuroboost/progress-engine/internal/domain/shared"
	"github.com/neuroboost/progress-engine/pkg/logger"
	"github.com/neuroboost/progress-engine/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// LockKeyPrefix namespaces per-user locks.
const LockKeyPrefix = "progress:"

const invalidateTimeout = 2 * time.Second

// Config tunes engine behaviour.
type Config struct {
	// RewardOncePerTask pays a task's XP only on its first completion.
	// When false, a task reopened and completed again pays out again.
	RewardOncePerTask bool
}

// DefaultConfig returns default configuration.
func DefaultConfig() Config {
	return Config{}
}

// Dependencies contains everything the engine talks to.
type Dependencies struct {
	UnitOfWork UnitOfWork
	Clock      timeutil.Clock

	// Optional
	Locker      Locker
	Publisher   shared.EventPublisher
	Invalidator Invalidator
	Logger    *logger.Logger
	NewID     func() string
}

// Engine applies XP, level, streak and focus rules to a user's progress.
type Engine struct {
	uow       UnitOfWork
	clock     timeutil.Clock
	locker      Locker
	publisher   shared.EventPublisher
	invalidator Invalidator
	logger      *logger.Logger
	newID       func() string
	config      Config
}

// NewEngine creates a new Engine.
func NewEngine(deps Dependencies, config Config) (*Engine, error) {
	if deps.UnitOfWork == nil {
		return nil, errors.New("gamification: unit of work is required")
	}
	if deps.Clock == nil {
		return nil, errors.New("gamification: clock is required")
	}

	e := &Engine{
		uow:       deps.UnitOfWork,
		clock:     deps.Clock,
		locker:      deps.Locker,
		publisher:   deps.Publisher,
		invalidator: deps.Invalidator,
		logger:      deps.Logger,
		newID:       deps.NewID,
		config:      config,
	}
	if e.publisher == nil {
		e.publisher = shared.NopPublisher{}
	}
	if e.logger == nil {
		e.logger = logger.Default()
	}
	e.logger = e.logger.With(logger.Component("progress_engine"))
	if e.newID == nil {
		e.newID = shared.NewID
	}
	return e, nil
}

// Config returns the engine configuration.
func (e *Engine) Config() Config {
	return e.config
}

// Today returns the current calendar date in the configured location.
func (e *Engine) Today() progress.Date {
	return progress.DateOf(e.clock.Now(), e.clock.Location())
}

// Location returns the location calendar days are taken in.
func (e *Engine) Location() *time.Location {
	return e.clock.Location()
}

// NewID returns a fresh entity identifier.
func (e *Engine) NewID() string {
	return e.newID()
}

// ══════════════════════════════════════════════════════════════════════════════
// RESULTS
// ══════════════════════════════════════════════════════════════════════════════

// AwardResult describes a single XP award.
type AwardResult struct {
	Amount    progress.XP
	NewXP     progress.XP
	OldLevel  progress.Level
	NewLevel  progress.Level
	LeveledUp bool
}

// StreakResult describes a streak registration and its possible bonus.
type StreakResult struct {
	PreviousStreak   int
	Streak           int
	Changed          bool
	Outcome          progress.StreakOutcome
	MilestoneReached bool
	BonusXP          progress.XP
	BonusLeveledUp   bool
	TotalXP          progress.XP
	Level            progress.Level
}

// FocusResult describes crediting a focus session.
type FocusResult struct {
	SessionID       string
	DurationMinutes int

	// XPAwarded is the session's fixed award; XPGained is what this call added.
	XPAwarded progress.XP
	XPGained  progress.XP

	LeveledUp         bool
	AlreadyCredited   bool
	TotalFocusMinutes int
	TotalXP           progress.XP
	Level             progress.Level
}

// ══════════════════════════════════════════════════════════════════════════════
// UNIT OF WORK
// ══════════════════════════════════════════════════════════════════════════════

// Execute runs fn against the user's progress inside one serialized unit of work.
// The progress record is loaded (or created) before fn and saved after it when
// changed. Events emitted through the Tx are published only after commit.
func (e *Engine) Execute(ctx context.Context, userID, op string, fn func(tx *Tx) error) error {
	uid, err := shared.NewUserID(userID)
	if err != nil {
		return err
	}

	if e.locker != nil {
		unlock, err := e.locker.Lock(ctx, LockKeyPrefix+uid.String())
		switch {
		case err == nil:
		case shared.IsStorageUnavailable(err):
			e.logger.Error("user lock unavailable",
				logger.Operation(op), logger.UserID(uid.String()), logger.Err(err))
			return err
		case ctx.Err() != nil:
			return fmt.Errorf("progress.%s: waiting for user lock: %w", op, ctx.Err())
		default:
			return shared.WrapError("progress", op, shared.ErrLockNotAcquired, "user is busy", err)
		}
		defer func() {
			if err := unlock(context.WithoutCancel(ctx)); err != nil {
				e.logger.Warn("failed to release user lock", logger.UserID(uid.String()), logger.Err(err))
			}
		}()
	}

	var events []shared.Event
	var changed bool
	err = e.uow.WithinUser(ctx, uid.String(), func(ctx context.Context, s Scope) error {
		p, err := s.Progress().GetOrCreate(ctx, uid.String())
		if err != nil {
			return shared.StorageError("progress", op, err)
		}

		tx := &Tx{ctx: ctx, engine: e, scope: s, progress: p, now: e.clock.Now(), op: op}
		if err := fn(tx); err != nil {
			return err
		}
		if tx.dirty {
			if err := s.Progress().Save(ctx, p); err != nil {
				return shared.StorageError("progress", op, err)
			}
		}
		events = tx.events
		changed = tx.dirty
		return nil
	})
	if err != nil {
		if !shared.IsInvalidInput(err) && !shared.IsNotFound(err) {
			e.logger.Error("progress operation failed",
				logger.Operation(op), logger.UserID(uid.String()), logger.Err(err))
		}
		return shared.StorageError("progress", op, err)
	}

	if changed {
		e.invalidate(ctx, uid.String(), op)
	}
	e.publish(events)
	return nil
}

// invalidate drops derived views of the user's progress before the call
// returns. The change is committed, so a failure is only logged.
func (e *Engine) invalidate(ctx context.Context, userID, op string) {
	if e.invalidator == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), invalidateTimeout)
	defer cancel()
	if err := e.invalidator.InvalidateSummary(ctx, userID); err != nil {
		e.logger.Warn("failed to invalidate progress summary",
			logger.Operation(op), logger.UserID(userID), logger.Err(err))
	}
}

func (e *Engine) publish(events []shared.Event) {
	for _, ev := range events {
		switch v := ev.(type) {
		case shared.LevelUpEvent:
			e.logger.Info("level up",
				logger.UserID(v.UserID), logger.UserLevel(v.NewLevel), logger.XP(v.TotalXP))
		case shared.StreakMilestoneEvent:
			e.logger.Info("streak milestone reached",
				logger.UserID(v.UserID), logger.Streak(v.Streak), logger.XP(v.BonusXP))
		}
		if err := e.publisher.Publish(ev); err != nil {
			e.logger.Warn("failed to publish event",
				logger.String("event_type", string(ev.EventType())), logger.Err(err))
		}
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// PUBLIC OPERATIONS
// ══════════════════════════════════════════════════════════════════════════════

// EnsureProfile returns the user's progress, creating the starting record if needed.
func (e *Engine) EnsureProfile(ctx context.Context, userID string) (progress.Progress, error) {
	var snapshot progress.Progress
	err := e.Execute(ctx, userID, "EnsureProfile", func(tx *Tx) error {
		snapshot = tx.Progress()
		return nil
	})
	return snapshot, err
}

// AwardXP adds a positive amount of XP from source and appends one ledger entry.
func (e *Engine) AwardXP(ctx context.Context, userID string, amount progress.XP, source progress.Source, description string) (AwardResult, error) {
	if !amount.IsPositive() {
		return AwardResult{}, shared.ErrNonPositiveXP
	}
	if !source.IsValid() {
		return AwardResult{}, shared.ErrUnknownSource
	}

	var result AwardResult
	err := e.Execute(ctx, userID, "AwardXP", func(tx *Tx) error {
		var err error
		result, err = tx.AwardXP(amount, source, description)
		return err
	})
	return result, err
}

// RegisterCompletionForStreak applies the streak policy for a completion on today,
// granting the milestone bonus when the new streak reaches one.
func (e *Engine) RegisterCompletionForStreak(ctx context.Context, userID string, today progress.Date) (StreakResult, error) {
	if today.IsZero() {
		return StreakResult{}, shared.NewDomainError("progress", "RegisterCompletionForStreak", shared.ErrInvalidInput, "date is required")
	}

	var result StreakResult
	err := e.Execute(ctx, userID, "RegisterCompletionForStreak", func(tx *Tx) error {
		var err error
		result, err = tx.RegisterCompletionForStreak(today)
		return err
	})
	return result, err
}

// LogFocusSessionInput holds the input of LogFocusSession.
type LogFocusSessionInput struct {
	UserID          string
	DurationMinutes int
	Notes           string
	StartedAt       *time.Time
	EndedAt         *time.Time
}

// LogFocusSession stores a new session and credits it to the user's progress.
func (e *Engine) LogFocusSession(ctx context.Context, in LogFocusSessionInput) (FocusResult, error) {
	session, err := focus.NewSession(focus.NewSessionParams{
		ID:              e.newID(),
		UserID:          in.UserID,
		DurationMinutes: in.DurationMinutes,
		Notes:           in.Notes,
		StartedAt:       in.StartedAt,
		EndedAt:         in.EndedAt,
		Now:             e.clock.Now(),
	})
	if err != nil {
		return FocusResult{}, err
	}

	var result FocusResult
	err = e.Execute(ctx, in.UserID, "LogFocusSession", func(tx *Tx) error {
		session.UserID = tx.UserID()
		if err := tx.scope.Sessions().Create(tx.ctx, session); err != nil {
			return shared.StorageError("focus", "Create", err)
		}
		var creditErr error
		result, creditErr = tx.CreditFocusSession(session)
		return creditErr
	})
	return result, err
}

// CreditFocusSession applies a stored session to progress.
// A session that was already credited is left untouched.
func (e *Engine) CreditFocusSession(ctx context.Context, userID, sessionID string) (FocusResult, error) {
	id, err := shared.ParseID(sessionID, shared.ErrInvalidSessionID)
	if err != nil {
		return FocusResult{}, err
	}

	var result FocusResult
	err = e.Execute(ctx, userID, "CreditFocusSession", func(tx *Tx) error {
		session, err := tx.scope.Sessions().GetByID(tx.ctx, id)
		if err != nil {
			return shared.StorageError("focus", "GetByID", err)
		}
		result, err = tx.CreditFocusSession(session)
		return err
	})
	return result, err
}

// ══════════════════════════════════════════════════════════════════════════════
// TX
// ══════════════════════════════════════════════════════════════════════════════

// Tx is the engine bound to one open unit of work. Workflows compose several
// rule applications inside a single Tx so that they commit together.
type Tx struct {
	ctx      context.Context
	engine   *Engine
	scope    Scope
	progress *progress.Progress
	now      time.Time
	op       string
	dirty    bool
	events   []shared.Event
}

// Context returns the context of the unit of work.
func (tx *Tx) Context() context.Context { return tx.ctx }

// Scope returns the repositories of the unit of work.
func (tx *Tx) Scope() Scope { return tx.scope }

// Now returns the instant the unit of work started.
func (tx *Tx) Now() time.Time { return tx.now }

// Today returns the calendar date of Now in the engine's location.
func (tx *Tx) Today() progress.Date {
	return progress.DateOf(tx.now, tx.engine.clock.Location())
}

// UserID returns the normalized owner of the unit of work.
func (tx *Tx) UserID() string { return tx.progress.UserID }

// Progress returns a snapshot of the current progress.
func (tx *Tx) Progress() progress.Progress { return *tx.progress }

// Emit queues an event for publication after commit.
func (tx *Tx) Emit(ev shared.Event) {
	tx.events = append(tx.events, ev)
}

// AwardXP adds amount to XP and appends the paired ledger entry.
func (tx *Tx) AwardXP(amount progress.XP, source progress.Source, description string) (AwardResult, error) {
	p := tx.progress
	entry, err := progress.NewLedgerEntry(tx.engine.newID(), p.UserID, amount, source, description, tx.now)
	if err != nil {
		return AwardResult{}, err
	}
	change, err := p.GainXP(amount, tx.now)
	if err != nil {
		return AwardResult{}, err
	}
	tx.dirty = true

	if err := tx.scope.Ledger().Append(tx.ctx, entry); err != nil {
		return AwardResult{}, shared.StorageError("progress", "AppendLedger", err)
	}

	tx.Emit(shared.NewXPGainedEvent(p.UserID, amount.Int(), change.NewXP.Int(), source.String(), description, tx.now))
	if change.LeveledUp() {
		tx.Emit(shared.NewLevelUpEvent(p.UserID, change.OldLevel.Int(), change.NewLevel.Int(), change.NewXP.Int(), tx.now))
	}

	return AwardResult{
		Amount:    amount,
		NewXP:     change.NewXP,
		OldLevel:  change.OldLevel,
		NewLevel:  change.NewLevel,
		LeveledUp: change.LeveledUp(),
	}, nil
}

// RegisterCompletionForStreak updates the streak for today and grants the milestone bonus.
func (tx *Tx) RegisterCompletionForStreak(today progress.Date) (StreakResult, error) {
	p := tx.progress
	update := p.RecordCompletion(today, tx.now)
	tx.dirty = true

	result := StreakResult{
		PreviousStreak: update.Previous,
		Streak:         update.Streak,
		Changed:        update.Changed,
		Outcome:        update.Outcome,
	}
	if update.Changed {
		tx.Emit(shared.NewStreakUpdatedEvent(p.UserID, update.Previous, update.Streak, today.String(), tx.now))
	}

	if update.MilestoneReached() {
		bonus, err := tx.AwardXP(progress.StreakBonusXP, progress.SourceStreakBonus,
			fmt.Sprintf("%d-day streak bonus", update.Streak))
		if err != nil {
			return StreakResult{}, err
		}
		result.MilestoneReached = true
		result.BonusXP = progress.StreakBonusXP
		result.BonusLeveledUp = bonus.LeveledUp
		tx.Emit(shared.NewStreakMilestoneEvent(p.UserID, update.Streak, progress.StreakBonusXP.Int(), tx.now))
	}

	result.TotalXP = p.XP
	result.Level = p.Level()
	return result, nil
}

// CreditFocusSession adds the session's minutes and XP exactly once.
func (tx *Tx) CreditFocusSession(session *focus.Session) (FocusResult, error) {
	p := tx.progress
	if session.UserID != p.UserID {
		return FocusResult{}, shared.ErrSessionNotFound
	}

	result := FocusResult{
		SessionID:       session.ID,
		DurationMinutes: session.DurationMinutes,
		XPAwarded:       session.XPAwarded,
	}
	if session.IsCredited() {
		result.AlreadyCredited = true
		result.TotalFocusMinutes = p.TotalFocusMinutes
		result.TotalXP = p.XP
		result.Level = p.Level()
		return result, nil
	}

	if err := p.AddFocusMinutes(session.DurationMinutes, tx.now); err != nil {
		return FocusResult{}, err
	}
	tx.dirty = true

	if session.XPAwarded.IsPositive() {
		award, err := tx.AwardXP(session.XPAwarded, progress.SourceFocusSession,
			fmt.Sprintf("Focus session: %d minutes", session.DurationMinutes))
		if err != nil {
			return FocusResult{}, err
		}
		result.XPGained = award.Amount
		result.LeveledUp = award.LeveledUp
	}

	session.MarkCredited(tx.now)
	if err := tx.scope.Sessions().MarkCredited(tx.ctx, session); err != nil {
		return FocusResult{}, shared.StorageError("focus", "MarkCredited", err)
	}
	tx.Emit(shared.NewFocusSessionLoggedEvent(p.UserID, session.ID, session.DurationMinutes, session.XPAwarded.Int(), tx.now))

	result.TotalFocusMinutes = p.TotalFocusMinutes
	result.TotalXP = p.XP
	result.Level = p.Level()
	return result, nil
}
