package entity

import (
	"testing"
	"time"
)

func stoppedRun() *CampaignRun {
	run := NewCampaignRun("c1", []SendTask{
		{Recipient: "a@x.com", SequenceIndex: 0},
		{Recipient: "b@x.com", SequenceIndex: 1},
		{Recipient: "c@x.com", SequenceIndex: 2},
		{Recipient: "d@x.com", SequenceIndex: 3},
	}, RunOptions{DelayBetweenSends: time.Second, ChunkSize: 2, MaxRetries: 3})
	run.Outcomes["a@x.com"].Status = OutcomeSuccess
	run.Outcomes["b@x.com"] = &SendOutcome{Recipient: "b@x.com", Status: OutcomeError, Transient: true, RetryCount: 3, Error: "down"}
	run.Outcomes["c@x.com"].Status = OutcomeSkipped
	run.State = RunStopped
	return run
}

func TestSnapshotExcludesSuccessesFromRemaining(t *testing.T) {
	t.Parallel()

	snap := SnapshotRun(stoppedRun(), time.Now())

	if snap.Format != SnapshotFormat {
		t.Fatalf("expected format %q, got %q", SnapshotFormat, snap.Format)
	}
	if len(snap.RemainingTasks) != 3 {
		t.Fatalf("expected 3 remaining tasks, got %d", len(snap.RemainingTasks))
	}
	for _, task := range snap.RemainingTasks {
		if task.Recipient == "a@x.com" {
			t.Fatal("delivered task must not be in remaining tasks")
		}
	}
	// All outcomes are recorded, successes included.
	if len(snap.Outcomes) != 4 {
		t.Fatalf("expected 4 outcomes, got %d", len(snap.Outcomes))
	}
}

func TestSnapshotCopiesOutcomes(t *testing.T) {
	t.Parallel()

	run := stoppedRun()
	snap := SnapshotRun(run, time.Now())

	run.Outcomes["a@x.com"].Status = OutcomeError
	if snap.Outcomes["a@x.com"].Status != OutcomeSuccess {
		t.Fatal("snapshot must hold copies, not shared pointers")
	}
}

func TestRehydrateResetsUnattemptedOutcomes(t *testing.T) {
	t.Parallel()

	snap := SnapshotRun(stoppedRun(), time.Now())
	run := snap.Rehydrate()

	// Successes and hard failures survive; skipped and pending reset.
	if run.Outcomes["a@x.com"].Status != OutcomeSuccess {
		t.Fatalf("prior success lost: %+v", run.Outcomes["a@x.com"])
	}
	if run.Outcomes["b@x.com"].Status != OutcomeError {
		t.Fatalf("recorded failure lost: %+v", run.Outcomes["b@x.com"])
	}
	if o := run.Outcomes["c@x.com"]; o.Status != OutcomePending || o.RetryCount != 0 {
		t.Fatalf("skipped outcome must reset to pending: %+v", o)
	}
	if run.Outcomes["d@x.com"].Status != OutcomePending {
		t.Fatalf("pending outcome must stay pending: %+v", run.Outcomes["d@x.com"])
	}

	if len(run.Tasks) != 3 {
		t.Fatalf("expected 3 tasks to work on, got %d", len(run.Tasks))
	}
	if run.Tasks[0].SequenceIndex != 1 {
		t.Fatalf("original sequence order lost: %+v", run.Tasks[0])
	}
	if run.Options.ChunkSize != 2 {
		t.Fatalf("options not carried: %+v", run.Options)
	}
}
