package quota

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// State is the advisory view of the provider's daily send ceiling.
type State struct {
	DailyLimit    int       `json:"daily_limit"`
	EstimatedUsed int       `json:"estimated_used"`
	Remaining     int       `json:"remaining"`
	ResetAt       time.Time `json:"reset_at"`
}

// Tracker estimates daily quota usage against a Redis counter keyed by the
// calendar day in the provider's timezone. The counter exists so callers
// can warn proactively; it never blocks a send — the provider's own
// throttling is the authoritative limit and surfaces as delivery errors.
//
// Redis INCR is the single mutual-exclusion point, so concurrent runs (and
// concurrent processes) never lose increments.
type Tracker struct {
	client     *redis.Client
	dailyLimit int
	loc        *time.Location

	// now is swapped in tests to pin the day boundary.
	now func() time.Time
}

// New builds a tracker. loc is the provider's timezone; the counter resets
// at the next midnight in that locale simply by rolling to a new day key.
func New(client *redis.Client, dailyLimit int, loc *time.Location) *Tracker {
	if loc == nil {
		loc = time.UTC
	}
	return &Tracker{
		client:     client,
		dailyLimit: dailyLimit,
		loc:        loc,
		now:        time.Now,
	}
}

// RecordSend counts one attempted send (retries included) against today.
func (t *Tracker) RecordSend(ctx context.Context) error {
	now := t.now()
	key := t.dayKey(now)
	if err := t.client.Incr(ctx, key).Err(); err != nil {
		return fmt.Errorf("quota incr: %w", err)
	}
	// Stale day keys expire on their own; a day of slack covers clock
	// skew between writers.
	if err := t.client.ExpireAt(ctx, key, t.resetAt(now).Add(24*time.Hour)).Err(); err != nil {
		return fmt.Errorf("quota expire: %w", err)
	}
	return nil
}

// Remaining returns dailyLimit minus today's estimate, floored at 0.
func (t *Tracker) Remaining(ctx context.Context) (int, error) {
	used, err := t.used(ctx)
	if err != nil {
		return 0, err
	}
	rem := t.dailyLimit - used
	if rem < 0 {
		rem = 0
	}
	return rem, nil
}

// Reset zeroes today's counter immediately (operator override).
func (t *Tracker) Reset(ctx context.Context) error {
	if err := t.client.Del(ctx, t.dayKey(t.now())).Err(); err != nil {
		return fmt.Errorf("quota reset: %w", err)
	}
	return nil
}

// State returns the full advisory view.
func (t *Tracker) State(ctx context.Context) (State, error) {
	used, err := t.used(ctx)
	if err != nil {
		return State{}, err
	}
	rem := t.dailyLimit - used
	if rem < 0 {
		rem = 0
	}
	return State{
		DailyLimit:    t.dailyLimit,
		EstimatedUsed: used,
		Remaining:     rem,
		ResetAt:       t.resetAt(t.now()),
	}, nil
}

func (t *Tracker) used(ctx context.Context) (int, error) {
	used, err := t.client.Get(ctx, t.dayKey(t.now())).Int()
	if err != nil && !errors.Is(err, redis.Nil) {
		return 0, fmt.Errorf("quota get: %w", err)
	}
	return used, nil
}

func (t *Tracker) dayKey(now time.Time) string {
	return "campaigns:quota:" + now.In(t.loc).Format("2006-01-02")
}

// resetAt is the next midnight in the provider's locale.
func (t *Tracker) resetAt(now time.Time) time.Time {
	local := now.In(t.loc)
	y, m, d := local.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.loc).Add(24 * time.Hour)
}
