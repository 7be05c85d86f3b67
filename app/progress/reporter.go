package progress

import (
	"fmt"

	"github.com/vibast-solutions/ms-go-campaigns/app/entity"
)

// Progress is a pure aggregation over a run's outcomes. It carries no state
// of its own, so it cannot drift from the run it describes.
type Progress struct {
	CampaignID string          `json:"campaign_id"`
	State      entity.RunState `json:"state"`
	Percentage float64         `json:"percentage"`
	Status     string          `json:"status"`

	Total     int `json:"total"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
	Cancelled int `json:"cancelled"`
	Retrying  int `json:"retrying"`

	// Batch/Batches locate the chunk currently being processed.
	Batch   int `json:"batch,omitempty"`
	Batches int `json:"batches,omitempty"`
}

// Compute aggregates the run's outcomes. batch and batches describe the
// chunk in flight; pass 0, 0 outside of sending.
func Compute(run *entity.CampaignRun, batch, batches int) Progress {
	view := make(map[string]entity.SendOutcome, len(run.Outcomes))
	for k, o := range run.Outcomes {
		view[k] = *o
	}
	return FromOutcomes(run.CampaignID, run.State, view, batch, batches)
}

// FromOutcomes aggregates a value-copy view of the outcomes. The
// dispatcher uses this form so aggregation never reads structs another
// goroutine may be mutating.
func FromOutcomes(campaignID string, state entity.RunState, outcomes map[string]entity.SendOutcome, batch, batches int) Progress {
	p := Progress{
		CampaignID: campaignID,
		State:      state,
		Total:      len(outcomes),
		Batch:      batch,
		Batches:    batches,
	}
	terminal := 0
	for _, o := range outcomes {
		switch o.Status {
		case entity.OutcomeSuccess:
			p.Succeeded++
		case entity.OutcomeError:
			p.Failed++
		case entity.OutcomeSkipped:
			p.Skipped++
		case entity.OutcomeCancelled:
			p.Cancelled++
		case entity.OutcomeRetrying:
			p.Retrying++
		}
		if o.Status.Terminal() {
			terminal++
		}
	}
	if p.Total > 0 {
		p.Percentage = float64(terminal) / float64(p.Total) * 100
	}
	p.Status = statusLine(p)
	return p
}

// statusLine picks a short human summary from the dominant condition.
func statusLine(p Progress) string {
	switch p.State {
	case entity.RunPreparing:
		return "preparing"
	case entity.RunPaused:
		return "paused"
	case entity.RunStopping:
		return "stopping"
	case entity.RunStopped:
		return fmt.Sprintf("stopped with %d sent, %d failed, %d skipped", p.Succeeded, p.Failed, p.Skipped)
	case entity.RunCompleted:
		return fmt.Sprintf("completed with %d sent, %d failed", p.Succeeded, p.Failed)
	case entity.RunSending:
		if p.Retrying > 0 {
			return "retrying"
		}
		if p.Batches > 0 {
			return fmt.Sprintf("sending batch %d of %d", p.Batch, p.Batches)
		}
		return "sending"
	}
	return string(p.State)
}
