// Package lease implements the single-leader mutex the scheduler loop uses
// to guarantee only one instance ticks at a time (spec.md §4.3). It is a
// [DOMAIN] addition grounded on github.com/redis/go-redis/v9 — a direct,
// previously-unused teacher dependency — because an atomic TTL-bounded
// acquire/renew/release is exactly the textbook Redis use case (SET NX PX,
// then compare-and-refresh / compare-and-delete via Lua so a process never
// renews or releases a lease it no longer holds).
package lease

import (
	"context"
	"errors"
	"time"
)

// AcquireResult is the outcome of an Acquire call.
type AcquireResult int

const (
	Acquired AcquireResult = iota
	AlreadyHeld
)

// ErrNotHeld is returned by Renew/Release when the caller's token does not
// match the current holder (someone else's lease expired and was
// re-acquired, or it was never held).
var ErrNotHeld = errors.New("lease: not held by caller")

// Store is the keyed-lease contract (spec.md §4.3). Every method is atomic
// with respect to other callers.
type Store interface {
	// Acquire attempts to claim key for ttl. token should be a random
	// value unique to this process instance; it is checked by Renew and
	// Release so a stale holder never clobbers a newer one.
	Acquire(ctx context.Context, key, token string, ttl time.Duration) (AcquireResult, error)

	// Renew extends key's TTL iff token is still the current holder.
	Renew(ctx context.Context, key, token string, ttl time.Duration) error

	// Release drops key iff token is still the current holder. Safe to
	// call on an already-expired or already-released lease.
	Release(ctx context.Context, key, token string) error
}

// SchedulerKey is the single lease key the scheduler loop contends on
// (spec.md §6: "Single key scheduler_manager").
const SchedulerKey = "scheduler_manager"
