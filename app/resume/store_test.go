package resume

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/vibast-solutions/ms-go-campaigns/app/entity"
)

func newStore(t *testing.T, ttl time.Duration) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewStore(client, ttl), mr
}

func sampleSnapshot(campaignID string) *entity.ResumeSnapshot {
	return &entity.ResumeSnapshot{
		Format:     entity.SnapshotFormat,
		CampaignID: campaignID,
		RemainingTasks: []entity.SendTask{
			{Recipient: "b@x.com", Subject: "s", Body: "b", SequenceIndex: 1},
			{Recipient: "c@x.com", Subject: "s", Body: "b", SequenceIndex: 2},
		},
		Outcomes: map[string]*entity.SendOutcome{
			"a@x.com": {Recipient: "a@x.com", Status: entity.OutcomeSuccess},
			"b@x.com": {Recipient: "b@x.com", Status: entity.OutcomeSkipped},
			"c@x.com": {Recipient: "c@x.com", Status: entity.OutcomePending},
		},
		Options: entity.RunOptions{DelayBetweenSends: time.Second, ChunkSize: 50, MaxRetries: 3},
		SavedAt: time.Now(),
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	t.Parallel()

	store, _ := newStore(t, 0)
	ctx := context.Background()

	if err := store.Save(ctx, sampleSnapshot("camp-1")); err != nil {
		t.Fatalf("save: %v", err)
	}

	snap, err := store.Load(ctx, "camp-1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if snap.CampaignID != "camp-1" {
		t.Fatalf("campaign id mismatch: %s", snap.CampaignID)
	}
	if len(snap.RemainingTasks) != 2 || snap.RemainingTasks[0].SequenceIndex != 1 {
		t.Fatalf("remaining tasks not preserved: %+v", snap.RemainingTasks)
	}
	if snap.Outcomes["a@x.com"].Status != entity.OutcomeSuccess {
		t.Fatalf("prior success not preserved: %+v", snap.Outcomes["a@x.com"])
	}
	if snap.Options.ChunkSize != 50 {
		t.Fatalf("options not preserved: %+v", snap.Options)
	}
}

func TestLoadMissingSnapshot(t *testing.T) {
	t.Parallel()

	store, _ := newStore(t, 0)
	if _, err := store.Load(context.Background(), "camp-none"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestLoadRejectsUnknownFormat(t *testing.T) {
	t.Parallel()

	store, mr := newStore(t, 0)
	mr.Set("campaigns:resume:camp-bad", `{"format":"v99","campaign_id":"camp-bad"}`)

	if _, err := store.Load(context.Background(), "camp-bad"); !errors.Is(err, ErrBadFormat) {
		t.Fatalf("expected ErrBadFormat, got %v", err)
	}
}

func TestLoadRejectsCorruptPayload(t *testing.T) {
	t.Parallel()

	store, mr := newStore(t, 0)
	mr.Set("campaigns:resume:camp-corrupt", "{not json")

	if _, err := store.Load(context.Background(), "camp-corrupt"); !errors.Is(err, ErrBadFormat) {
		t.Fatalf("expected ErrBadFormat, got %v", err)
	}
}

func TestHasSavedAndDiscard(t *testing.T) {
	t.Parallel()

	store, _ := newStore(t, 0)
	ctx := context.Background()

	has, err := store.HasSaved(ctx, "camp-1")
	if err != nil {
		t.Fatalf("has saved: %v", err)
	}
	if has {
		t.Fatal("expected no snapshot before save")
	}

	if err := store.Save(ctx, sampleSnapshot("camp-1")); err != nil {
		t.Fatalf("save: %v", err)
	}
	if has, _ = store.HasSaved(ctx, "camp-1"); !has {
		t.Fatal("expected snapshot after save")
	}

	if err := store.Discard(ctx, "camp-1"); err != nil {
		t.Fatalf("discard: %v", err)
	}
	if has, _ = store.HasSaved(ctx, "camp-1"); has {
		t.Fatal("expected snapshot gone after discard")
	}
}

func TestSnapshotExpiresWithTTL(t *testing.T) {
	t.Parallel()

	store, mr := newStore(t, time.Hour)
	ctx := context.Background()

	if err := store.Save(ctx, sampleSnapshot("camp-ttl")); err != nil {
		t.Fatalf("save: %v", err)
	}
	mr.FastForward(2 * time.Hour)

	if _, err := store.Load(ctx, "camp-ttl"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected snapshot expired, got %v", err)
	}
}
