package ledger

import (
	"context"
	"sync"
)

// userLocks serializes writers per user. Waiting for a lock honours
// context cancellation; entries are dropped once nobody holds or waits.
type userLocks struct {
	mu    sync.Mutex
	locks map[string]*userLock
}

type userLock struct {
	ch   chan struct{}
	refs int
}

func newUserLocks() *userLocks {
	return &userLocks{locks: make(map[string]*userLock)}
}

func (l *userLocks) acquire(ctx context.Context, userID string) (func(), error) {
	l.mu.Lock()
	ul, ok := l.locks[userID]
	if !ok {
		ul = &userLock{ch: make(chan struct{}, 1)}
		l.locks[userID] = ul
	}
	ul.refs++
	l.mu.Unlock()

	select {
	case ul.ch <- struct{}{}:
		var once sync.Once
		return func() {
			once.Do(func() {
				<-ul.ch
				l.unref(userID, ul)
			})
		}, nil
	case <-ctx.Done():
		l.unref(userID, ul)
		return nil, ctx.Err()
	}
}

func (l *userLocks) unref(userID string, ul *userLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	ul.refs--
	if ul.refs == 0 {
		delete(l.locks, userID)
	}
}

func (l *userLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
