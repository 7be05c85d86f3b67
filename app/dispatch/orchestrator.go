package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/vibast-solutions/ms-go-campaigns/app/entity"
	"github.com/vibast-solutions/ms-go-campaigns/app/lock"
	"github.com/vibast-solutions/ms-go-campaigns/app/progress"
	"github.com/vibast-solutions/ms-go-campaigns/app/quota"
	"github.com/vibast-solutions/ms-go-campaigns/app/resume"
	"github.com/vibast-solutions/ms-go-campaigns/app/retry"
)

// QuotaTracker is the advisory daily-quota view the orchestrator consults.
type QuotaTracker interface {
	retry.QuotaRecorder
	Remaining(ctx context.Context) (int, error)
	Reset(ctx context.Context) error
	State(ctx context.Context) (quota.State, error)
}

// SnapshotStore persists and restores in-flight run snapshots.
type SnapshotStore interface {
	Save(ctx context.Context, snap *entity.ResumeSnapshot) error
	Load(ctx context.Context, campaignID string) (*entity.ResumeSnapshot, error)
	HasSaved(ctx context.Context, campaignID string) (bool, error)
	Discard(ctx context.Context, campaignID string) error
}

// HistoryRecorder is the durable reporting trail. Best-effort: failures are
// logged and never abort a run.
type HistoryRecorder interface {
	RecordOutcome(ctx context.Context, campaignID string, o *entity.SendOutcome) error
	RecordRun(ctx context.Context, run *entity.CampaignRun) error
}

// Config tunes the orchestrator.
type Config struct {
	// LockTTL bounds how long a run lock is held without a refresh.
	LockTTL time.Duration
	// FinishedTTL bounds how long a settled run stays readable in memory
	// through Progress and RetryFailed. Older runs are evicted; manual
	// retry then falls back to the resume snapshot.
	FinishedTTL time.Duration
}

const (
	DefaultLockTTL     = 10 * time.Minute
	DefaultFinishedTTL = time.Hour
)

// Orchestrator is the caller-facing dispatch service: a registry of at most
// one active run per campaign, plus quota, resume, and manual retry
// entry points. One runner goroutine serves each active run; distinct
// campaigns run concurrently and share only the quota counter.
type Orchestrator struct {
	retrier *retry.Manager
	quota   QuotaTracker
	store   SnapshotStore
	history HistoryRecorder
	locker  lock.Locker
	cfg     Config
	log     *logrus.Entry

	// baseCtx scopes run goroutines so an HTTP request ending does not
	// kill the run it started.
	baseCtx context.Context

	mu       sync.Mutex
	runs     map[string]*runner
	finished map[string]finishedRun
}

// finishedRun keeps a settled run readable for a bounded window. Nothing
// mutates the run after settlement, so readers need no lock on it.
type finishedRun struct {
	run       *entity.CampaignRun
	settledAt time.Time
}

// New builds an orchestrator. quota, store, history, and locker may each be
// nil; the matching concern is then disabled.
func New(ctx context.Context, retrier *retry.Manager, q QuotaTracker, store SnapshotStore, history HistoryRecorder, locker lock.Locker, cfg Config, log *logrus.Entry) *Orchestrator {
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = DefaultLockTTL
	}
	if cfg.FinishedTTL <= 0 {
		cfg.FinishedTTL = DefaultFinishedTTL
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Orchestrator{
		retrier:  retrier,
		quota:    q,
		store:    store,
		history:  history,
		locker:   locker,
		cfg:      cfg,
		log:      log,
		baseCtx:  ctx,
		runs:     make(map[string]*runner),
		finished: make(map[string]finishedRun),
	}
}

// Handle is the caller's view of an asynchronous run.
type Handle struct {
	CampaignID string
	// QuotaWarning is set when the advisory quota estimate did not cover
	// the run size. The run proceeds regardless.
	QuotaWarning string

	r *runner
}

// Done is closed when the run reaches a terminal state.
func (h *Handle) Done() <-chan struct{} { return h.r.done }

// Outcomes returns the complete per-recipient results; after Done it is
// the final settlement, terminal for every task.
func (h *Handle) Outcomes() []entity.SendOutcome { return h.r.Outcomes() }

// Progress returns the latest aggregate.
func (h *Handle) Progress() progress.Progress { return h.r.Progress() }

// Err reports an unrecoverable internal fault, if the run aborted.
func (h *Handle) Err() error { return h.r.Err() }

// Subscribe registers a progress listener for this run.
func (h *Handle) Subscribe() (<-chan Event, func()) { return h.r.Subscribe() }

// Submit starts a run for the campaign. It rejects an empty task list and
// a campaign with an active run. The quota check is advisory: a shortfall
// annotates the handle, it never blocks the run.
func (o *Orchestrator) Submit(ctx context.Context, campaignID string, tasks []entity.SendTask, opts entity.RunOptions) (*Handle, error) {
	if campaignID == "" {
		return nil, fmt.Errorf("campaign id is required")
	}
	if len(tasks) == 0 {
		return nil, ErrNoTasks
	}

	hasAttachments := false
	for i := range tasks {
		tasks[i].SequenceIndex = i
		if tasks[i].HasAttachments() {
			hasAttachments = true
		}
	}
	opts.Normalize(hasAttachments)

	run := entity.NewCampaignRun(campaignID, tasks, opts)
	return o.launch(ctx, run)
}

// launch registers and starts a runner for a prepared run.
func (o *Orchestrator) launch(ctx context.Context, run *entity.CampaignRun) (*Handle, error) {
	o.mu.Lock()
	if _, active := o.runs[run.CampaignID]; active {
		o.mu.Unlock()
		return nil, ErrDuplicateRun
	}
	// Reserve the slot before the lock round-trip so a concurrent submit
	// cannot slip in.
	o.runs[run.CampaignID] = nil
	o.mu.Unlock()

	release := func() {
		o.mu.Lock()
		delete(o.runs, run.CampaignID)
		o.mu.Unlock()
	}

	if o.locker != nil {
		if err := o.locker.Acquire(ctx, lock.RunKey(run.CampaignID), o.cfg.LockTTL); err != nil {
			release()
			if errors.Is(err, lock.ErrNotAcquired) || errors.Is(err, lock.ErrAlreadyHeld) {
				return nil, fmt.Errorf("%w: run lock held elsewhere", ErrDuplicateRun)
			}
			return nil, fmt.Errorf("acquire run lock: %w", err)
		}
	}

	if o.quota != nil && !run.Options.Transactional {
		if remaining, err := o.quota.Remaining(ctx); err != nil {
			o.log.WithError(err).Warn("quota check failed")
		} else if remaining < len(run.Tasks) {
			run.QuotaWarning = fmt.Sprintf("estimated quota remaining %d is below run size %d; provider throttling may fail sends", remaining, len(run.Tasks))
			o.log.WithFields(logrus.Fields{"campaign_id": run.CampaignID, "remaining": remaining, "tasks": len(run.Tasks)}).Warn("quota headroom low")
		}
	}

	r := newRunner(o, run, o.log.WithField("campaign_id", run.CampaignID))
	o.mu.Lock()
	o.runs[run.CampaignID] = r
	o.mu.Unlock()

	go r.loop(o.baseCtx)

	return &Handle{CampaignID: run.CampaignID, QuotaWarning: run.QuotaWarning, r: r}, nil
}

// Stop requests a cooperative stop of the campaign's active run.
func (o *Orchestrator) Stop(campaignID string) error {
	r := o.activeRunner(campaignID)
	if r == nil {
		return ErrNoActiveRun
	}
	r.Stop()
	return nil
}

// RetryFailed resubmits every transient terminal failure of the campaign's
// last run as a new, smaller run under the same campaign id, with fresh
// pending outcomes. The settled run itself is left untouched. After a
// process restart, or once the settled run aged out of memory, the last
// run is recovered from its snapshot.
func (o *Orchestrator) RetryFailed(ctx context.Context, campaignID string) (*Handle, error) {
	if r := o.activeRunner(campaignID); r != nil {
		return nil, ErrDuplicateRun
	}

	last := o.lastRun(campaignID)

	var tasks []entity.SendTask
	var opts entity.RunOptions
	if last != nil {
		tasks = retry.RetryableTasks(last.Tasks, last.Outcomes)
		opts = last.Options
	} else if o.store != nil {
		snap, err := o.store.Load(ctx, campaignID)
		if err != nil {
			if errors.Is(err, resume.ErrNotFound) {
				return nil, ErrNothingToRetry
			}
			return nil, err
		}
		tasks = retry.RetryableTasks(snap.RemainingTasks, snap.Outcomes)
		opts = snap.Options
	}
	if len(tasks) == 0 {
		return nil, ErrNothingToRetry
	}

	run := entity.NewCampaignRun(campaignID, tasks, opts)
	return o.launch(ctx, run)
}

// Resume rehydrates the campaign's saved snapshot and continues from the
// first non-terminal outcome in original sequence order. Tasks already
// succeeded are never re-attempted.
func (o *Orchestrator) Resume(ctx context.Context, campaignID string) (*Handle, error) {
	if o.store == nil {
		return nil, fmt.Errorf("resume store not configured")
	}
	if r := o.activeRunner(campaignID); r != nil {
		return nil, ErrDuplicateRun
	}

	snap, err := o.store.Load(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	run := snap.Rehydrate()
	run.Options.Normalize(false)
	return o.launch(ctx, run)
}

// HasSaved reports whether a resume snapshot exists for the campaign, so a
// caller can offer a resume-or-discard choice after a restart.
func (o *Orchestrator) HasSaved(ctx context.Context, campaignID string) (bool, error) {
	if o.store == nil {
		return false, nil
	}
	return o.store.HasSaved(ctx, campaignID)
}

// DiscardSaved drops the campaign's resume snapshot.
func (o *Orchestrator) DiscardSaved(ctx context.Context, campaignID string) error {
	if o.store == nil {
		return nil
	}
	return o.store.Discard(ctx, campaignID)
}

// Quota returns the advisory quota state.
func (o *Orchestrator) Quota(ctx context.Context) (quota.State, error) {
	if o.quota == nil {
		return quota.State{}, fmt.Errorf("quota tracker not configured")
	}
	return o.quota.State(ctx)
}

// ResetQuota zeroes the advisory counter immediately.
func (o *Orchestrator) ResetQuota(ctx context.Context) error {
	if o.quota == nil {
		return fmt.Errorf("quota tracker not configured")
	}
	return o.quota.Reset(ctx)
}

// Progress returns the latest aggregate for the campaign's active run.
func (o *Orchestrator) Progress(campaignID string) (progress.Progress, error) {
	r := o.activeRunner(campaignID)
	if r == nil {
		if last := o.lastRun(campaignID); last != nil {
			return progress.Compute(last, 0, 0), nil
		}
		return progress.Progress{}, ErrNoActiveRun
	}
	return r.Progress(), nil
}

// Subscribe registers a progress listener on the campaign's active run.
func (o *Orchestrator) Subscribe(campaignID string) (<-chan Event, func(), error) {
	r := o.activeRunner(campaignID)
	if r == nil {
		return nil, nil, ErrNoActiveRun
	}
	ch, cancel := r.Subscribe()
	return ch, cancel, nil
}

// PauseAll suspends every active run after its in-flight attempt: the
// network monitor calls this on loss of connectivity, so offline devices
// pause instead of burning retry budget.
func (o *Orchestrator) PauseAll() {
	for _, r := range o.activeRunners() {
		r.Pause()
	}
}

// ResumeAll lifts the connectivity pause.
func (o *Orchestrator) ResumeAll() {
	for _, r := range o.activeRunners() {
		r.Resume()
	}
}

// Shutdown cooperatively stops every active run and waits for settlement
// or context expiry.
func (o *Orchestrator) Shutdown(ctx context.Context) {
	runners := o.activeRunners()
	for _, r := range runners {
		r.Stop()
	}
	for _, r := range runners {
		select {
		case <-r.done:
		case <-ctx.Done():
			return
		}
	}
}

func (o *Orchestrator) activeRunner(campaignID string) *runner {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.runs[campaignID]
}

// lastRun returns the campaign's settled run, or nil once it aged out of
// the retention window.
func (o *Orchestrator) lastRun(campaignID string) *entity.CampaignRun {
	o.mu.Lock()
	defer o.mu.Unlock()
	f, ok := o.finished[campaignID]
	if !ok || time.Since(f.settledAt) > o.cfg.FinishedTTL {
		return nil
	}
	return f.run
}

func (o *Orchestrator) activeRunners() []*runner {
	o.mu.Lock()
	defer o.mu.Unlock()
	runners := make([]*runner, 0, len(o.runs))
	for _, r := range o.runs {
		if r != nil {
			runners = append(runners, r)
		}
	}
	return runners
}

// finishRun deregisters a settled run, releases its lock, and records the
// run summary.
func (o *Orchestrator) finishRun(r *runner) {
	now := time.Now()
	o.mu.Lock()
	delete(o.runs, r.run.CampaignID)
	o.finished[r.run.CampaignID] = finishedRun{run: r.run, settledAt: now}
	// Sweep aged-out runs on the way, so the map stays bounded on a
	// long-lived server.
	for id, f := range o.finished {
		if now.Sub(f.settledAt) > o.cfg.FinishedTTL {
			delete(o.finished, id)
		}
	}
	o.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if o.history != nil {
		if err := o.history.RecordRun(ctx, r.run); err != nil {
			o.log.WithError(err).WithField("campaign_id", r.run.CampaignID).Warn("run summary record failed")
		}
	}
	if o.locker != nil {
		if err := o.locker.Release(ctx, lock.RunKey(r.run.CampaignID)); err != nil {
			o.log.WithError(err).WithField("campaign_id", r.run.CampaignID).Warn("run lock release failed")
		}
	}
}

func (o *Orchestrator) saveSnapshot(ctx context.Context, snap *entity.ResumeSnapshot) {
	if o.store == nil {
		return
	}
	if err := o.store.Save(ctx, snap); err != nil {
		o.log.WithError(err).WithField("campaign_id", snap.CampaignID).Warn("snapshot save failed")
	}
}

func (o *Orchestrator) discardSnapshot(ctx context.Context, campaignID string) {
	if o.store == nil {
		return
	}
	if err := o.store.Discard(ctx, campaignID); err != nil {
		o.log.WithError(err).WithField("campaign_id", campaignID).Warn("snapshot discard failed")
	}
}

func (o *Orchestrator) recordOutcome(ctx context.Context, campaignID string, out *entity.SendOutcome) {
	if o.history == nil {
		return
	}
	if err := o.history.RecordOutcome(ctx, campaignID, out); err != nil {
		o.log.WithError(err).WithFields(logrus.Fields{"campaign_id": campaignID, "recipient": out.Recipient}).Warn("outcome record failed")
	}
}

func (o *Orchestrator) refreshLock(ctx context.Context, campaignID string) {
	if o.locker == nil {
		return
	}
	if err := o.locker.Refresh(ctx, lock.RunKey(campaignID), o.cfg.LockTTL); err != nil {
		o.log.WithError(err).WithField("campaign_id", campaignID).Warn("run lock refresh failed")
	}
}
