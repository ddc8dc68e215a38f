/*
Copyright © 2025 Dialcoach, Inc.

Released under MIT license.
*/

package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.now = c.now.Add(d)
}

func newTestQuotaStore() (*QuotaStore, *fakeClock) {
	clock := &fakeClock{now: time.UnixMilli(1700000000000)}
	store := NewQuotaStore()
	store.nowFn = clock.Now
	return store, clock
}

func TestQuotaStoreCheckSequence(t *testing.T) {
	store, _ := newTestQuotaStore()
	const limit = 3
	const window = time.Second

	wantAllowed := []bool{true, true, true, false}
	wantRemaining := []int{2, 1, 0, 0}
	for i := range wantAllowed {
		res := store.Check("user-1", limit, window)
		require.Equal(t, wantAllowed[i], res.Allowed, "call %d", i+1)
		require.Equal(t, wantRemaining[i], res.Remaining, "call %d", i+1)
	}

	res := store.Check("user-1", limit, window)
	require.False(t, res.Allowed)
	require.Greater(t, res.RetryAfter, time.Duration(0))
}

func TestQuotaStoreWindowExpiry(t *testing.T) {
	store, clock := newTestQuotaStore()
	const limit = 3
	const window = time.Second

	for i := 0; i < limit+1; i++ {
		store.Check("user-1", limit, window)
	}

	clock.Advance(window + time.Millisecond)

	res := store.Check("user-1", limit, window)
	require.True(t, res.Allowed)
	require.Equal(t, limit-1, res.Remaining)
	require.Equal(t, clock.Now().Add(window), res.ResetAt)
}

func TestQuotaStoreRetryAfterRoundedUp(t *testing.T) {
	store, clock := newTestQuotaStore()

	store.Check("user-1", 1, 10*time.Second)
	clock.Advance(9500 * time.Millisecond) // 500ms of the window left

	res := store.Check("user-1", 1, 10*time.Second)
	require.False(t, res.Allowed)
	require.Equal(t, time.Second, res.RetryAfter)
}

func TestQuotaStoreStatusDoesNotMutate(t *testing.T) {
	store, _ := newTestQuotaStore()
	const limit = 2
	const window = time.Minute

	st := store.Status("user-1", limit)
	require.True(t, st.Allowed)
	require.Equal(t, limit, st.Remaining)
	require.Equal(t, 0, store.Len())

	store.Check("user-1", limit, window)
	for i := 0; i < 10; i++ {
		st = store.Status("user-1", limit)
		require.True(t, st.Allowed)
		require.Equal(t, limit-1, st.Remaining)
	}

	res := store.Check("user-1", limit, window)
	require.True(t, res.Allowed)
	require.Equal(t, 0, res.Remaining)

	st = store.Status("user-1", limit)
	require.False(t, st.Allowed)
	require.Greater(t, st.RetryAfter, time.Duration(0))
}

func TestQuotaStoreReset(t *testing.T) {
	store, _ := newTestQuotaStore()
	const limit = 2
	const window = time.Minute

	for i := 0; i < limit+1; i++ {
		store.Check("user-1", limit, window)
	}

	store.Reset("user-1")

	res := store.Check("user-1", limit, window)
	require.True(t, res.Allowed)
	require.Equal(t, limit-1, res.Remaining)
}

func TestQuotaStoreKeysAreIndependent(t *testing.T) {
	store, _ := newTestQuotaStore()

	res := store.Check("user-1", 1, time.Minute)
	require.True(t, res.Allowed)
	res = store.Check("user-1", 1, time.Minute)
	require.False(t, res.Allowed)

	res = store.Check("user-2", 1, time.Minute)
	require.True(t, res.Allowed)
}

func TestQuotaStoreRemoveExpired(t *testing.T) {
	store, clock := newTestQuotaStore()

	store.Check("user-1", 5, time.Second)
	store.Check("user-2", 5, time.Minute)
	require.Equal(t, 2, store.Len())

	clock.Advance(2 * time.Second)

	require.Equal(t, 1, store.RemoveExpired())
	require.Equal(t, 1, store.Len())

	// The surviving window still counts previous calls.
	res := store.Check("user-2", 5, time.Minute)
	require.True(t, res.Allowed)
	require.Equal(t, 3, res.Remaining)
}
