// Package lock serializes work per key, typically one account identifier.
package lock

import (
	"context"
	"sync"
)

// Locker runs fn while holding the lock for key.
type Locker interface {
	WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error
}

// Noop runs fn without any exclusion. Concurrent read-modify-write on the same
// key can lose updates.
type Noop struct{}

// WithLock runs fn without any locking.
func (Noop) WithLock(ctx context.Context, _ string, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type keyedEntry struct {
	sem  chan struct{}
	refs int
}

// KeyedMutex gives mutual exclusion per key inside one process. Entries are
// dropped once nobody holds or waits for them.
type KeyedMutex struct {
	mu      sync.Mutex
	entries map[string]*keyedEntry
}

// NewKeyedMutex returns an empty in-process lock table.
func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{entries: make(map[string]*keyedEntry)}
}

// WithLock runs fn while holding key. Waiting ends early with ctx.Err() when ctx is done.
func (k *KeyedMutex) WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	e := k.acquireRef(key)
	defer k.releaseRef(key, e)

	select {
	case e.sem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-e.sem }()

	return fn(ctx)
}

func (k *KeyedMutex) acquireRef(key string) *keyedEntry {
	k.mu.Lock()
	defer k.mu.Unlock()
	e, ok := k.entries[key]
	if !ok {
		e = &keyedEntry{sem: make(chan struct{}, 1)}
		k.entries[key] = e
	}
	e.refs++
	return e
}

func (k *KeyedMutex) releaseRef(key string, e *keyedEntry) {
	k.mu.Lock()
	defer k.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(k.entries, key)
	}
}

// size is the number of live entries.
func (k *KeyedMutex) size() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.entries)
}
