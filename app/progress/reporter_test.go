package progress

import (
	"strings"
	"testing"

	"github.com/vibast-solutions/ms-go-campaigns/app/entity"
)

func outcomes(statuses map[string]entity.OutcomeStatus) map[string]entity.SendOutcome {
	view := make(map[string]entity.SendOutcome, len(statuses))
	for r, s := range statuses {
		view[r] = entity.SendOutcome{Recipient: r, Status: s}
	}
	return view
}

func TestPercentageCountsTerminalOutcomes(t *testing.T) {
	t.Parallel()

	p := FromOutcomes("c1", entity.RunSending, outcomes(map[string]entity.OutcomeStatus{
		"a@x.com": entity.OutcomeSuccess,
		"b@x.com": entity.OutcomeError,
		"c@x.com": entity.OutcomeSending,
		"d@x.com": entity.OutcomePending,
	}), 1, 2)

	if p.Percentage != 50 {
		t.Fatalf("expected 50%%, got %v", p.Percentage)
	}
	if p.Succeeded != 1 || p.Failed != 1 {
		t.Fatalf("unexpected counts: %+v", p)
	}
	if p.Total != 4 {
		t.Fatalf("expected total 4, got %d", p.Total)
	}
}

func TestRetryingDoesNotCountAsTerminal(t *testing.T) {
	t.Parallel()

	p := FromOutcomes("c1", entity.RunSending, outcomes(map[string]entity.OutcomeStatus{
		"a@x.com": entity.OutcomeRetrying,
		"b@x.com": entity.OutcomeSuccess,
	}), 0, 0)

	if p.Percentage != 50 {
		t.Fatalf("expected 50%%, got %v", p.Percentage)
	}
	if p.Retrying != 1 {
		t.Fatalf("expected 1 retrying, got %d", p.Retrying)
	}
	if p.Status != "retrying" {
		t.Fatalf("expected retrying status line, got %q", p.Status)
	}
}

func TestEmptyRunHasZeroPercentage(t *testing.T) {
	t.Parallel()

	p := FromOutcomes("c1", entity.RunIdle, nil, 0, 0)
	if p.Percentage != 0 {
		t.Fatalf("expected 0%% on empty outcomes, got %v", p.Percentage)
	}
}

func TestStatusLinePerState(t *testing.T) {
	t.Parallel()

	view := outcomes(map[string]entity.OutcomeStatus{
		"a@x.com": entity.OutcomeSuccess,
		"b@x.com": entity.OutcomeError,
		"c@x.com": entity.OutcomeSkipped,
	})

	cases := []struct {
		state entity.RunState
		want  string
	}{
		{entity.RunPaused, "paused"},
		{entity.RunStopping, "stopping"},
		{entity.RunStopped, "stopped with 1 sent, 1 failed, 1 skipped"},
		{entity.RunCompleted, "completed with 1 sent, 1 failed"},
	}
	for _, c := range cases {
		p := FromOutcomes("c1", c.state, view, 0, 0)
		if p.Status != c.want {
			t.Fatalf("state %s: expected %q, got %q", c.state, c.want, p.Status)
		}
	}
}

func TestSendingStatusNamesBatch(t *testing.T) {
	t.Parallel()

	p := FromOutcomes("c1", entity.RunSending, outcomes(map[string]entity.OutcomeStatus{
		"a@x.com": entity.OutcomeSuccess,
	}), 2, 5)
	if !strings.Contains(p.Status, "batch 2 of 5") {
		t.Fatalf("expected batch position in status, got %q", p.Status)
	}
}

func TestComputeMatchesFromOutcomes(t *testing.T) {
	t.Parallel()

	run := entity.NewCampaignRun("c1", []entity.SendTask{
		{Recipient: "a@x.com"},
		{Recipient: "b@x.com"},
	}, entity.RunOptions{})
	run.State = entity.RunSending
	run.Outcomes["a@x.com"].Status = entity.OutcomeSuccess

	p := Compute(run, 1, 1)
	if p.Succeeded != 1 || p.Total != 2 || p.Percentage != 50 {
		t.Fatalf("unexpected aggregate: %+v", p)
	}
}
