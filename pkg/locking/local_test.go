package locking

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestNormalizeKeys(t *testing.T) {
	got := NormalizeKeys([]string{"phone:1", "", "email:a", "phone:1", "contact:3"})
	assert.Equal(t, []string{"contact:3", "email:a", "phone:1"}, got)
}

func TestLocal_SerializesOverlappingKeys(t *testing.T) {
	defer goleak.VerifyNone(t)

	l := NewLocal(0)
	ctx := context.Background()

	var mu sync.Mutex
	inside, maxInside := 0, 0

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			keys := []string{"email:a"}
			if i%2 == 0 {
				keys = append(keys, "phone:1")
			}
			release, err := l.Acquire(ctx, keys)
			if !assert.NoError(t, err) {
				return
			}
			defer release(ctx)

			mu.Lock()
			inside++
			if inside > maxInside {
				maxInside = inside
			}
			mu.Unlock()

			time.Sleep(time.Millisecond)

			mu.Lock()
			inside--
			mu.Unlock()
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, maxInside)
	assert.Equal(t, 0, l.Len())
}

func TestLocal_DisjointKeysDoNotBlock(t *testing.T) {
	l := NewLocal(50 * time.Millisecond)
	ctx := context.Background()

	first, err := l.Acquire(ctx, []string{"email:a"})
	require.NoError(t, err)
	defer first(ctx)

	second, err := l.Acquire(ctx, []string{"email:b"})
	require.NoError(t, err)
	second(ctx)
}

func TestLocal_WaitExpires(t *testing.T) {
	defer goleak.VerifyNone(t)

	l := NewLocal(20 * time.Millisecond)
	ctx := context.Background()

	release, err := l.Acquire(ctx, []string{"email:a"})
	require.NoError(t, err)

	_, err = l.Acquire(ctx, []string{"contact:1", "email:a"})
	require.ErrorIs(t, err, ErrLockNotAcquired)

	// the partially taken contact:1 must have been given back
	other, err := l.Acquire(ctx, []string{"contact:1"})
	require.NoError(t, err)
	other(ctx)

	release(ctx)
	release(ctx)
	assert.Equal(t, 0, l.Len())
}

func TestLocal_ContextCancelled(t *testing.T) {
	l := NewLocal(0)
	release, err := l.Acquire(context.Background(), []string{"k"})
	require.NoError(t, err)
	defer release(context.Background())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = l.Acquire(ctx, []string{"k"})
	assert.ErrorIs(t, err, context.Canceled)
}
