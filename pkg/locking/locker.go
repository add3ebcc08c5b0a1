package locking

import (
	"context"
	"errors"
	"slices"
)

// ErrLockNotAcquired is returned when a key stays held past the configured wait.
var ErrLockNotAcquired = errors.New("lock not acquired")

// Release gives back every key taken by one Acquire call. It is safe to call
// more than once.
type Release func(ctx context.Context)

// Locker takes a set of keys together. Implementations acquire keys in sorted
// order so two callers with overlapping sets cannot deadlock.
type Locker interface {
	Acquire(ctx context.Context, keys []string) (Release, error)
}

// NormalizeKeys sorts keys and drops duplicates and empty strings.
func NormalizeKeys(keys []string) []string {
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		if k != "" {
			out = append(out, k)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}
