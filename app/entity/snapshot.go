package entity

import "time"

// SnapshotFormat tags the serialized snapshot layout. Snapshots are
// short-lived (discarded on completion), so a single tag stands in for real
// schema versioning.
const SnapshotFormat = "v1"

// ResumeSnapshot is the durable projection of a CampaignRun: enough to
// rebuild the run and continue from the first non-terminal outcome.
type ResumeSnapshot struct {
	Format     string                  `json:"format"`
	CampaignID string                  `json:"campaign_id"`
	// RemainingTasks holds every task whose outcome is not yet a
	// confirmed success, so a post-restart manual retry still has the
	// failed tasks at hand.
	RemainingTasks []SendTask              `json:"remaining_tasks"`
	Outcomes       map[string]*SendOutcome `json:"outcomes"`
	Options        RunOptions              `json:"options"`
	SavedAt        time.Time               `json:"saved_at"`
}

// SnapshotRun projects a run into a snapshot.
func SnapshotRun(r *CampaignRun, now time.Time) *ResumeSnapshot {
	var rem []SendTask
	for _, t := range r.Tasks {
		if o, ok := r.Outcomes[t.Recipient]; !ok || o.Status != OutcomeSuccess {
			rem = append(rem, t)
		}
	}
	outcomes := make(map[string]*SendOutcome, len(r.Outcomes))
	for k, v := range r.Outcomes {
		cp := *v
		outcomes[k] = &cp
	}
	return &ResumeSnapshot{
		Format:         SnapshotFormat,
		CampaignID:     r.CampaignID,
		RemainingTasks: rem,
		Outcomes:       outcomes,
		Options:        r.Options,
		SavedAt:        now,
	}
}

// Rehydrate rebuilds a CampaignRun from the snapshot. Every recorded
// outcome is carried over, successes included, so progress keeps counting
// them. Skipped and cancelled outcomes mean the task was never attempted;
// they reset to pending along with the non-terminal ones. Confirmed
// successes and hard failures stay as recorded.
// Tasks holds only the work still to do, in original sequence order.
func (s *ResumeSnapshot) Rehydrate() *CampaignRun {
	run := &CampaignRun{
		CampaignID: s.CampaignID,
		Tasks:      s.RemainingTasks,
		Outcomes:   make(map[string]*SendOutcome, len(s.Outcomes)),
		Options:    s.Options,
		State:      RunIdle,
	}
	for k, o := range s.Outcomes {
		cp := *o
		switch cp.Status {
		case OutcomeSuccess, OutcomeError:
		default:
			cp.Status = OutcomePending
			cp.RetryCount = 0
			cp.Error = ""
		}
		run.Outcomes[k] = &cp
	}
	for _, t := range s.RemainingTasks {
		if _, ok := run.Outcomes[t.Recipient]; !ok {
			run.Outcomes[t.Recipient] = &SendOutcome{Recipient: t.Recipient, Status: OutcomePending}
		}
	}
	return run
}
