package resume

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vibast-solutions/ms-go-campaigns/app/entity"
)

var (
	// ErrNotFound means no snapshot exists for the campaign.
	ErrNotFound = errors.New("no snapshot for campaign")
	// ErrBadFormat means a snapshot exists but its format tag is not one
	// we can read. Treated as unrecoverable by callers.
	ErrBadFormat = errors.New("unreadable snapshot format")
)

// Store persists ResumeSnapshots in Redis, one record per campaign.
// Snapshots are written at chunk boundaries and on pause/stop transitions
// (not after every single send, to bound write volume) and are discarded on
// completion.
type Store struct {
	client *redis.Client
	ttl    time.Duration
}

// NewStore builds a snapshot store. ttl bounds how long an abandoned
// snapshot lingers; zero means no expiry.
func NewStore(client *redis.Client, ttl time.Duration) *Store {
	return &Store{client: client, ttl: ttl}
}

func key(campaignID string) string {
	return "campaigns:resume:" + campaignID
}

// Save persists the snapshot, replacing any previous one for the campaign.
func (s *Store) Save(ctx context.Context, snap *entity.ResumeSnapshot) error {
	if snap.Format == "" {
		snap.Format = entity.SnapshotFormat
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	if err := s.client.Set(ctx, key(snap.CampaignID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	return nil
}

// Load fetches the snapshot for a campaign.
func (s *Store) Load(ctx context.Context, campaignID string) (*entity.ResumeSnapshot, error) {
	data, err := s.client.Get(ctx, key(campaignID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}
	var snap entity.ResumeSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadFormat, err)
	}
	if snap.Format != entity.SnapshotFormat {
		return nil, fmt.Errorf("%w: %q", ErrBadFormat, snap.Format)
	}
	return &snap, nil
}

// HasSaved reports whether a snapshot exists for the campaign.
func (s *Store) HasSaved(ctx context.Context, campaignID string) (bool, error) {
	n, err := s.client.Exists(ctx, key(campaignID)).Result()
	if err != nil {
		return false, fmt.Errorf("check snapshot: %w", err)
	}
	return n > 0, nil
}

// Discard removes the snapshot for a campaign.
func (s *Store) Discard(ctx context.Context, campaignID string) error {
	if err := s.client.Del(ctx, key(campaignID)).Err(); err != nil {
		return fmt.Errorf("discard snapshot: %w", err)
	}
	return nil
}
