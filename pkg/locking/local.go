package locking

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

type localEntry struct {
	held chan struct{}
	refs int
}

// Local is an in-process keyed mutex. It serializes callers within a single
// instance only.
type Local struct {
	mu      sync.Mutex
	entries map[string]*localEntry
	wait    time.Duration
}

// NewLocal returns a Local locker. A zero wait blocks until ctx is done.
func NewLocal(wait time.Duration) *Local {
	return &Local{
		entries: make(map[string]*localEntry),
		wait:    wait,
	}
}

func (l *Local) Acquire(ctx context.Context, keys []string) (Release, error) {
	keys = NormalizeKeys(keys)
	if l.wait > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.wait)
		defer cancel()
	}

	held := make([]string, 0, len(keys))
	for _, key := range keys {
		if err := l.lock(ctx, key); err != nil {
			l.unlock(held)
			if errors.Is(err, context.DeadlineExceeded) {
				return nil, fmt.Errorf("%w: %s", ErrLockNotAcquired, key)
			}
			return nil, err
		}
		held = append(held, key)
	}

	var once sync.Once
	return func(context.Context) {
		once.Do(func() { l.unlock(held) })
	}, nil
}

func (l *Local) lock(ctx context.Context, key string) error {
	l.mu.Lock()
	e, ok := l.entries[key]
	if !ok {
		e = &localEntry{held: make(chan struct{}, 1)}
		l.entries[key] = e
	}
	e.refs++
	l.mu.Unlock()

	select {
	case e.held <- struct{}{}:
		return nil
	case <-ctx.Done():
		l.mu.Lock()
		l.deref(key, e)
		l.mu.Unlock()
		return ctx.Err()
	}
}

func (l *Local) unlock(keys []string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, key := range keys {
		e := l.entries[key]
		<-e.held
		l.deref(key, e)
	}
}

// deref must be called with mu held.
func (l *Local) deref(key string, e *localEntry) {
	e.refs--
	if e.refs == 0 {
		delete(l.entries, key)
	}
}

// Len reports how many keys are held or waited on.
func (l *Local) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
