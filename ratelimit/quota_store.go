/*
Copyright © 2025 Dialcoach, Inc.

Released under MIT license.
*/

package ratelimit

import (
	"sync"
	"time"
)

// DefaultSweepInterval is how often expired quota entries are reclaimed.
// The sweep is advisory, correctness does not depend on its period.
const DefaultSweepInterval = 5 * time.Minute

// Result is the outcome of a quota check for a single subject.
type Result struct {
	Allowed    bool
	Remaining  int
	ResetAt    time.Time
	RetryAfter time.Duration
}

type quotaEntry struct {
	count     int
	resetAtMS int64
}

// QuotaStore tracks fixed-window request counters per subject key.
//
// Unlike Limiter implementations, the limit and window are passed on every
// call, so a single store can serve routes with different quotas. An entry
// is renewed lazily: the first Check after its window has passed starts a
// fresh window with count 1.
type QuotaStore struct {
	mu      sync.Mutex
	entries map[string]*quotaEntry
	nowFn   func() time.Time
}

// NewQuotaStore creates an empty QuotaStore.
func NewQuotaStore() *QuotaStore {
	return &QuotaStore{
		entries: make(map[string]*quotaEntry),
		nowFn:   time.Now,
	}
}

// Check consumes one quota slot for the subject if the limit permits.
//
// A missing entry, or an entry whose window has passed, starts a fresh
// window. An exhausted entry is not incremented; the result carries a
// RetryAfter hint rounded up to whole seconds so callers never retry early.
func (s *QuotaStore) Check(subjectKey string, limit int, window time.Duration) Result {
	nowMS := s.nowFn().UnixMilli()

	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[subjectKey]
	if !ok || nowMS > e.resetAtMS {
		e = &quotaEntry{count: 1, resetAtMS: nowMS + window.Milliseconds()}
		s.entries[subjectKey] = e
		return Result{Allowed: true, Remaining: limit - 1, ResetAt: time.UnixMilli(e.resetAtMS)}
	}

	if e.count < limit {
		e.count++
		return Result{Allowed: true, Remaining: limit - e.count, ResetAt: time.UnixMilli(e.resetAtMS)}
	}

	return Result{
		Allowed:    false,
		Remaining:  0,
		ResetAt:    time.UnixMilli(e.resetAtMS),
		RetryAfter: ceilSeconds(e.resetAtMS - nowMS),
	}
}

// Status reports the subject's remaining quota without consuming a slot or
// creating an entry. Repeated Status calls never change Check outcomes.
func (s *QuotaStore) Status(subjectKey string, limit int) Result {
	nowMS := s.nowFn().UnixMilli()

	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[subjectKey]
	if !ok || nowMS > e.resetAtMS {
		return Result{Allowed: true, Remaining: limit}
	}

	remaining := limit - e.count
	if remaining <= 0 {
		return Result{
			Allowed:    false,
			Remaining:  0,
			ResetAt:    time.UnixMilli(e.resetAtMS),
			RetryAfter: ceilSeconds(e.resetAtMS - nowMS),
		}
	}
	return Result{Allowed: true, Remaining: remaining, ResetAt: time.UnixMilli(e.resetAtMS)}
}

// Reset unconditionally deletes the subject's entry, as if it was never seen.
func (s *QuotaStore) Reset(subjectKey string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, subjectKey)
}

// RemoveExpired deletes all entries whose window has already passed and
// returns the number of removed entries. It bounds memory use under
// sustained traffic from many distinct subjects.
func (s *QuotaStore) RemoveExpired() int {
	nowMS := s.nowFn().UnixMilli()

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for key, e := range s.entries {
		if nowMS > e.resetAtMS {
			delete(s.entries, key)
			removed++
		}
	}
	return removed
}

// Len returns the number of tracked subjects, expired entries included.
func (s *QuotaStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func ceilSeconds(ms int64) time.Duration {
	return time.Duration((ms+999)/1000) * time.Second
}
