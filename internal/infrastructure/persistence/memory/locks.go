package memory

import (
	"context"
	"sync"
)

// userLocks hands out one exclusive slot per user. Entries are dropped
// when nobody holds or waits for them.
type userLocks struct {
	mu    sync.Mutex
	slots map[string]*slot
}

type slot struct {
	ch   chan struct{}
	refs int
}

func newUserLocks() *userLocks {
	return &userLocks{slots: make(map[string]*slot)}
}

func (l *userLocks) lock(ctx context.Context, userID string) (func(), error) {
	l.mu.Lock()
	s, ok := l.slots[userID]
	if !ok {
		s = &slot{ch: make(chan struct{}, 1)}
		l.slots[userID] = s
	}
	s.refs++
	l.mu.Unlock()

	select {
	case s.ch <- struct{}{}:
	case <-ctx.Done():
		l.release(userID, s)
		return nil, ctx.Err()
	}

	return func() {
		<-s.ch
		l.release(userID, s)
	}, nil
}

func (l *userLocks) release(userID string, s *slot) {
	l.mu.Lock()
	s.refs--
	if s.refs == 0 {
		delete(l.slots, userID)
	}
	l.mu.Unlock()
}
