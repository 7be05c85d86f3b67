package lock

import (
	"context"
	"errors"
	"time"
)

var ErrAlreadyHeld = errors.New("lock already held by this process")
var ErrNotAcquired = errors.New("lock not acquired")

// Locker guards the at-most-one-active-run invariant across processes:
// whichever process holds the run lock for a campaign is the only one
// allowed to dispatch it. In-process duplicate submits are rejected by the
// orchestrator before the lock is even consulted.
type Locker interface {
	// Acquire attempts to lock a key for the given TTL.
	Acquire(ctx context.Context, key string, ttl time.Duration) error
	// Refresh extends the TTL of a held lock. Long runs refresh at chunk
	// boundaries so the lock outlives slow campaigns.
	Refresh(ctx context.Context, key string, ttl time.Duration) error
	// Release frees the lock for the given key.
	Release(ctx context.Context, key string) error
}

// RunKey names the dispatch lock for one campaign.
func RunKey(campaignID string) string {
	return "campaigns:run:" + campaignID
}
