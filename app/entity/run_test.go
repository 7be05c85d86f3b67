package entity

import (
	"testing"
	"time"
)

func TestNormalizeFillsDefaults(t *testing.T) {
	t.Parallel()

	var opts RunOptions
	opts.Normalize(false)

	if opts.DelayBetweenSends != time.Second {
		t.Fatalf("expected 1s delay, got %s", opts.DelayBetweenSends)
	}
	if opts.ChunkSize != 50 {
		t.Fatalf("expected chunk size 50, got %d", opts.ChunkSize)
	}
	if opts.MaxRetries != 3 {
		t.Fatalf("expected max retries 3, got %d", opts.MaxRetries)
	}
}

func TestNormalizeSmallerChunksWithAttachments(t *testing.T) {
	t.Parallel()

	var opts RunOptions
	opts.Normalize(true)
	if opts.ChunkSize != 20 {
		t.Fatalf("expected chunk size 20 with attachments, got %d", opts.ChunkSize)
	}
}

func TestNormalizeKeepsExplicitValues(t *testing.T) {
	t.Parallel()

	opts := RunOptions{DelayBetweenSends: 200 * time.Millisecond, ChunkSize: 7, MaxRetries: 1}
	opts.Normalize(true)
	if opts.DelayBetweenSends != 200*time.Millisecond || opts.ChunkSize != 7 || opts.MaxRetries != 1 {
		t.Fatalf("explicit options overwritten: %+v", opts)
	}
}

func TestNewCampaignRunHasPendingOutcomePerTask(t *testing.T) {
	t.Parallel()

	run := NewCampaignRun("c1", []SendTask{
		{Recipient: "a@x.com"},
		{Recipient: "b@x.com"},
	}, RunOptions{})

	if len(run.Outcomes) != 2 {
		t.Fatalf("expected 2 outcomes, got %d", len(run.Outcomes))
	}
	for _, o := range run.Outcomes {
		if o.Status != OutcomePending {
			t.Fatalf("expected pending, got %s", o.Status)
		}
	}
	if run.Done() {
		t.Fatal("fresh run must not be done")
	}
}

func TestDoneCountsTerminalOutcomes(t *testing.T) {
	t.Parallel()

	run := NewCampaignRun("c1", []SendTask{{Recipient: "a@x.com"}, {Recipient: "b@x.com"}}, RunOptions{})
	run.Outcomes["a@x.com"].Status = OutcomeSuccess
	if run.Done() {
		t.Fatal("one pending outcome left, run must not be done")
	}
	run.Outcomes["b@x.com"].Status = OutcomeSkipped
	if !run.Done() {
		t.Fatal("all outcomes terminal, run must be done")
	}
}

func TestRemainingTasksPreservesOrder(t *testing.T) {
	t.Parallel()

	run := NewCampaignRun("c1", []SendTask{
		{Recipient: "a@x.com", SequenceIndex: 0},
		{Recipient: "b@x.com", SequenceIndex: 1},
		{Recipient: "c@x.com", SequenceIndex: 2},
	}, RunOptions{})
	run.Outcomes["b@x.com"].Status = OutcomeSuccess

	rem := run.RemainingTasks()
	if len(rem) != 2 || rem[0].Recipient != "a@x.com" || rem[1].Recipient != "c@x.com" {
		t.Fatalf("unexpected remaining tasks: %v", rem)
	}
}
