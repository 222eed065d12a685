// Package ratelimit throttles sensitive actions with a sliding window over
// persisted attempt entries. It protects only the local client instance and
// must be paired with equivalent enforcement at the trust boundary; it is
// never a substitute for server-side throttling.
package ratelimit

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/involy/involy/internal/localstore"
	"github.com/involy/involy/internal/pkg/logger"
	"github.com/involy/involy/internal/pkg/metrics"
)

// DefaultWindow applies when a caller passes a non-positive window
const DefaultWindow = time.Hour

const keyPrefix = "ratelimit:"

// Store is the durable storage the limiter persists its windows to
type Store interface {
	Get(key string) ([]byte, error)
	Put(key string, value []byte) error
	Delete(key string) error
	List(prefix string) ([]string, error)
}

// entry is one recorded attempt batch inside a window
type entry struct {
	Timestamp int64 `json:"ts"` // unix millis
	Count     int   `json:"count"`
}

// Limiter tracks per-action attempt counts in sliding time windows
type Limiter struct {
	store    Store
	failOpen bool
	logger   *logger.Logger
	now      func() time.Time
}

// New creates a limiter. failOpen controls the storage-error policy: when
// true any storage failure lets the action through, trading strict
// throttling for availability. Stricter deployments pass false.
func New(store Store, failOpen bool, log *logger.Logger) *Limiter {
	return &Limiter{
		store:    store,
		failOpen: failOpen,
		logger:   log,
		now:      time.Now,
	}
}

// Key composes an action key with an optional identifier such as an email
func Key(action, identifier string) string {
	if identifier == "" {
		return action
	}
	return action + ":" + identifier
}

// Allow reports whether the action may proceed, recording the attempt when
// it does. Entries older than the window are discarded first; if the live
// counts already reach the limit the attempt is rejected without recording.
func (l *Limiter) Allow(action string, limit int, window time.Duration) bool {
	if window <= 0 {
		window = DefaultWindow
	}

	entries, err := l.load(action)
	if err != nil {
		return l.storageFailure(action, err)
	}

	now := l.now()
	entries = prune(entries, now, window)

	if sum(entries) >= limit {
		metrics.RecordRateLimitDecision(action, "reject")
		return false
	}

	entries = append(entries, entry{Timestamp: now.UnixMilli(), Count: 1})
	if err := l.save(action, entries); err != nil {
		return l.storageFailure(action, err)
	}

	metrics.RecordRateLimitDecision(action, "accept")
	return true
}

// Remaining returns how many attempts are left in the live window. It prunes
// expired entries as a side effect but never records an attempt itself.
func (l *Limiter) Remaining(action string, limit int, window time.Duration) int {
	if window <= 0 {
		window = DefaultWindow
	}

	entries, err := l.load(action)
	if err != nil {
		l.logger.WithError(err).Warn("Rate limit storage read failed")
		if l.failOpen {
			return limit
		}
		return 0
	}

	pruned := prune(entries, l.now(), window)
	if len(pruned) != len(entries) {
		if err := l.save(action, pruned); err != nil {
			l.logger.WithError(err).Warn("Rate limit prune write failed")
		}
	}

	remaining := limit - sum(pruned)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Compact drops entries older than maxAge across every tracked action.
// Intended for the background compaction schedule; maxAge should be at
// least as long as the longest configured window.
func (l *Limiter) Compact(maxAge time.Duration) error {
	keys, err := l.store.List(keyPrefix)
	if err != nil {
		return err
	}

	now := l.now()
	for _, key := range keys {
		action := key[len(keyPrefix):]
		entries, err := l.load(action)
		if err != nil {
			return err
		}
		pruned := prune(entries, now, maxAge)
		if len(pruned) == len(entries) {
			continue
		}
		if len(pruned) == 0 {
			if err := l.store.Delete(key); err != nil {
				return err
			}
			continue
		}
		if err := l.save(action, pruned); err != nil {
			return err
		}
	}
	return nil
}

func (l *Limiter) storageFailure(action string, err error) bool {
	l.logger.WithError(err).With("action", action).Warn("Rate limit storage failed")
	if l.failOpen {
		metrics.RecordRateLimitDecision(action, "fail_open")
		return true
	}
	metrics.RecordRateLimitDecision(action, "fail_closed")
	return false
}

func (l *Limiter) load(action string) ([]entry, error) {
	raw, err := l.store.Get(keyPrefix + action)
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	var entries []entry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

func (l *Limiter) save(action string, entries []entry) error {
	raw, err := json.Marshal(entries)
	if err != nil {
		return err
	}
	return l.store.Put(keyPrefix+action, raw)
}

func isNotFound(err error) bool {
	return errors.Is(err, localstore.ErrNotFound)
}

func prune(entries []entry, now time.Time, window time.Duration) []entry {
	cutoff := now.Add(-window).UnixMilli()
	live := entries[:0:0]
	for _, e := range entries {
		if e.Timestamp > cutoff {
			live = append(live, e)
		}
	}
	return live
}

func sum(entries []entry) int {
	total := 0
	for _, e := range entries {
		total += e.Count
	}
	return total
}
