package entity

import "time"

// RunState is the dispatcher-owned state of one campaign run.
type RunState string

const (
	RunIdle      RunState = "idle"
	RunPreparing RunState = "preparing"
	RunSending   RunState = "sending"
	RunPaused    RunState = "paused"
	RunStopping  RunState = "stopping"
	RunStopped   RunState = "stopped"
	RunCompleted RunState = "completed"
)

// Terminal reports whether the run has finished, one way or the other.
func (s RunState) Terminal() bool {
	return s == RunStopped || s == RunCompleted
}

// RunOptions tunes one dispatch invocation. Zero values are replaced with
// defaults by Normalize.
type RunOptions struct {
	DelayBetweenSends time.Duration `json:"delay_between_sends"`
	ChunkSize         int           `json:"chunk_size"`
	MaxRetries        int           `json:"max_retries"`
	Transactional     bool          `json:"transactional"`
}

const (
	DefaultDelayBetweenSends = time.Second
	DefaultChunkSize         = 50
	// Attachments inflate the per-request payload, so chunks shrink to
	// bound the blast radius of a single failing request.
	DefaultChunkSizeAttachments = 20
	DefaultMaxRetries           = 3
)

// Normalize fills defaults in place. hasAttachments selects the smaller
// default chunk size.
func (o *RunOptions) Normalize(hasAttachments bool) {
	if o.DelayBetweenSends <= 0 {
		o.DelayBetweenSends = DefaultDelayBetweenSends
	}
	if o.ChunkSize <= 0 {
		if hasAttachments {
			o.ChunkSize = DefaultChunkSizeAttachments
		} else {
			o.ChunkSize = DefaultChunkSize
		}
	}
	if o.MaxRetries <= 0 {
		o.MaxRetries = DefaultMaxRetries
	}
}

// CampaignRun is the unit of work for one dispatch invocation. Tasks are
// ordered and immutable after submission; Outcomes holds exactly one entry
// per task, keyed by recipient.
type CampaignRun struct {
	CampaignID  string                  `json:"campaign_id"`
	Tasks       []SendTask              `json:"tasks"`
	Outcomes    map[string]*SendOutcome `json:"outcomes"`
	Options     RunOptions              `json:"options"`
	State       RunState                `json:"state"`
	StartedAt   time.Time               `json:"started_at,omitzero"`
	CompletedAt time.Time               `json:"completed_at,omitzero"`

	// QuotaWarning is set when the estimated remaining quota did not
	// cover the run size at submit time. Advisory only.
	QuotaWarning string `json:"quota_warning,omitempty"`
}

// NewCampaignRun builds a run with a pending outcome per task.
func NewCampaignRun(campaignID string, tasks []SendTask, opts RunOptions) *CampaignRun {
	outcomes := make(map[string]*SendOutcome, len(tasks))
	for _, t := range tasks {
		outcomes[t.Recipient] = &SendOutcome{Recipient: t.Recipient, Status: OutcomePending}
	}
	return &CampaignRun{
		CampaignID: campaignID,
		Tasks:      tasks,
		Outcomes:   outcomes,
		Options:    opts,
		State:      RunIdle,
	}
}

// Outcome returns the outcome for a task, creating a pending one if the run
// was rehydrated from a snapshot that predates the task.
func (r *CampaignRun) Outcome(recipient string) *SendOutcome {
	o, ok := r.Outcomes[recipient]
	if !ok {
		o = &SendOutcome{Recipient: recipient, Status: OutcomePending}
		r.Outcomes[recipient] = o
	}
	return o
}

// TerminalCount counts outcomes that will no longer change.
func (r *CampaignRun) TerminalCount() int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Status.Terminal() {
			n++
		}
	}
	return n
}

// Done reports whether every outcome is terminal. A rehydrated run carries
// outcomes for previously succeeded tasks too, so the total is the outcome
// count, not the task count.
func (r *CampaignRun) Done() bool {
	return r.TerminalCount() == len(r.Outcomes)
}

// RemainingTasks returns the tasks whose outcome is not terminal, in
// original sequence order. Used for snapshots and resume.
func (r *CampaignRun) RemainingTasks() []SendTask {
	var rem []SendTask
	for _, t := range r.Tasks {
		if o, ok := r.Outcomes[t.Recipient]; !ok || !o.Status.Terminal() {
			rem = append(rem, t)
		}
	}
	return rem
}
