package app

import (
	"context"
	"sync"
)

// ConversationLocks serialises work on the same conversation id.
// Entries are dropped once nobody holds or waits for them.
type ConversationLocks struct {
	mu    sync.Mutex
	locks map[string]*convLock
}

type convLock struct {
	ch   chan struct{}
	refs int
}

func NewConversationLocks() *ConversationLocks {
	return &ConversationLocks{locks: make(map[string]*convLock)}
}

// Lock blocks until id is free or ctx is done. The returned func releases it.
func (l *ConversationLocks) Lock(ctx context.Context, id string) (func(), error) {
	l.mu.Lock()
	entry, ok := l.locks[id]
	if !ok {
		entry = &convLock{ch: make(chan struct{}, 1)}
		l.locks[id] = entry
	}
	entry.refs++
	l.mu.Unlock()

	select {
	case entry.ch <- struct{}{}:
	case <-ctx.Done():
		l.release(id, entry, false)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() { l.release(id, entry, true) })
	}, nil
}

func (l *ConversationLocks) release(id string, entry *convLock, held bool) {
	if held {
		<-entry.ch
	}
	l.mu.Lock()
	entry.refs--
	if entry.refs == 0 {
		delete(l.locks, id)
	}
	l.mu.Unlock()
}

func (l *ConversationLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
