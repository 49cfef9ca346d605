// Package lock provides PositionLocker backends.
package lock

import (
	"context"
	"sync"

	"github.com/dmehra2102/Ordinal/internal/domain"
)

// MutexLocker serializes parents inside a single process. Entries are
// reference counted and dropped once no goroutine holds or waits for them.
type MutexLocker struct {
	mu      sync.Mutex
	entries map[domain.ParentID]*entry
}

type entry struct {
	// sem has capacity one; a send acquires, a receive releases.
	sem  chan struct{}
	refs int
}

func NewMutexLocker() *MutexLocker {
	return &MutexLocker{entries: make(map[domain.ParentID]*entry)}
}

// Acquire blocks until parent's lock is free. The wait is abandoned, with no
// lock held, when ctx is done.
func (l *MutexLocker) Acquire(ctx context.Context, parent domain.ParentID) (domain.LockToken, error) {
	l.mu.Lock()
	e, ok := l.entries[parent]
	if !ok {
		e = &entry{sem: make(chan struct{}, 1)}
		l.entries[parent] = e
	}
	e.refs++
	l.mu.Unlock()

	select {
	case e.sem <- struct{}{}:
		return &mutexToken{locker: l, parent: parent, entry: e}, nil
	case <-ctx.Done():
		l.unref(parent, e)
		return nil, ctx.Err()
	}
}

// Held reports how many parents currently have a holder or a waiter.
func (l *MutexLocker) Held() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

func (l *MutexLocker) unref(parent domain.ParentID, e *entry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(l.entries, parent)
	}
}

type mutexToken struct {
	locker *MutexLocker
	parent domain.ParentID
	entry  *entry
	once   sync.Once
}

func (t *mutexToken) Parent() domain.ParentID { return t.parent }

func (t *mutexToken) Release(context.Context) error {
	t.once.Do(func() {
		<-t.entry.sem
		t.locker.unref(t.parent, t.entry)
	})
	return nil
}
