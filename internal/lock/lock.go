// Package lock provides per-entity advisory locks. A mutating operation takes
// the locks of every entity it touches so only one such operation per entity
// is in flight at a time.
package lock

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"
)

// Release frees a held lock. Calling it more than once is a no-op.
type Release func()

// Locker hands out exclusive locks keyed by entity.
type Locker interface {
	Acquire(ctx context.Context, key string) (Release, error)
}

// Key builds the lock key of one entity, e.g. Key("vehicle", 42) = "vehicle:42".
func Key(kind string, id uint) string {
	return fmt.Sprintf("%s:%d", kind, id)
}

// AcquireAll takes every key in sorted order and returns one Release for all
// of them. Duplicate keys are taken once. On failure nothing stays held.
func AcquireAll(ctx context.Context, l Locker, keys ...string) (Release, error) {
	sorted := slices.Clone(keys)
	slices.Sort(sorted)
	sorted = slices.Compact(sorted)

	held := make([]Release, 0, len(sorted))
	releaseAll := func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i]()
		}
	}
	for _, k := range sorted {
		rel, err := l.Acquire(ctx, k)
		if err != nil {
			releaseAll()
			return nil, fmt.Errorf("acquire %s: %w", k, err)
		}
		held = append(held, rel)
	}
	var once sync.Once
	return func() { once.Do(releaseAll) }, nil
}

type entry struct {
	ch   chan struct{}
	refs int
}

// KeyedMutex is an in-process Locker. Entries are dropped once nobody holds
// or waits for them.
type KeyedMutex struct {
	mu      sync.Mutex
	entries map[string]*entry
}

func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{entries: make(map[string]*entry)}
}

func (m *KeyedMutex) ref(key string) *entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	if !ok {
		e = &entry{ch: make(chan struct{}, 1)}
		m.entries[key] = e
	}
	e.refs++
	return e
}

func (m *KeyedMutex) unref(key string, e *entry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(m.entries, key)
	}
}

// Acquire blocks until key is free or ctx is done.
func (m *KeyedMutex) Acquire(ctx context.Context, key string) (Release, error) {
	e := m.ref(key)
	select {
	case e.ch <- struct{}{}:
	case <-ctx.Done():
		m.unref(key, e)
		return nil, ctx.Err()
	}
	var once sync.Once
	return func() {
		once.Do(func() {
			<-e.ch
			m.unref(key, e)
		})
	}, nil
}

// Instrumented reports how long every acquisition waited.
func Instrumented(l Locker, observe func(key string, waited time.Duration)) Locker {
	return instrumented{next: l, observe: observe}
}

type instrumented struct {
	next    Locker
	observe func(string, time.Duration)
}

func (i instrumented) Acquire(ctx context.Context, key string) (Release, error) {
	start := time.Now()
	rel, err := i.next.Acquire(ctx, key)
	i.observe(key, time.Since(start))
	return rel, err
}
