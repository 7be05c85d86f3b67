package dispatch

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/vibast-solutions/ms-go-campaigns/app/entity"
	"github.com/vibast-solutions/ms-go-campaigns/app/progress"
	"github.com/vibast-solutions/ms-go-campaigns/app/retry"
)

// runner drives one campaign run on a single goroutine. Sends are strictly
// sequential: the provider's rate limit is the binding constraint, so
// parallel sends would only raise throttling risk without adding
// throughput. All outcome mutation happens on the run goroutine; readers
// get copy-on-transition views guarded by mu.
type runner struct {
	orch *Orchestrator
	run  *entity.CampaignRun
	log  *logrus.Entry

	// limiter paces sends at one per DelayBetweenSends.
	limiter *rate.Limiter

	mu           sync.RWMutex
	outcomesView map[string]entity.SendOutcome
	lastProgress progress.Progress
	subs         []chan Event
	batch        int
	batches      int
	// pauseCh is non-nil while paused and closed on resume.
	pauseCh chan struct{}
	err     error

	stopOnce sync.Once
	stopCh   chan struct{}
	done     chan struct{}
}

func newRunner(orch *Orchestrator, run *entity.CampaignRun, log *logrus.Entry) *runner {
	view := make(map[string]entity.SendOutcome, len(run.Outcomes))
	for k, o := range run.Outcomes {
		view[k] = *o
	}
	return &runner{
		orch:         orch,
		run:          run,
		log:          log,
		limiter:      rate.NewLimiter(rate.Every(run.Options.DelayBetweenSends), 1),
		outcomesView: view,
		stopCh:       make(chan struct{}),
		done:         make(chan struct{}),
	}
}

// loop is the run state machine. It exits with every outcome terminal
// unless the process context is cancelled outright.
func (r *runner) loop(ctx context.Context) {
	defer close(r.done)
	defer r.orch.finishRun(r)

	r.setState(entity.RunPreparing)
	r.run.StartedAt = time.Now()

	chunks := chunkTasks(r.run.Tasks, r.run.Options.ChunkSize)
	r.mu.Lock()
	r.batches = len(chunks)
	r.mu.Unlock()

	r.setState(entity.RunSending)
	r.log.WithFields(logrus.Fields{"tasks": len(r.run.Tasks), "chunks": len(chunks)}).Info("run started")

	for ci, chunk := range chunks {
		r.mu.Lock()
		r.batch = ci + 1
		r.mu.Unlock()

		for i := range chunk {
			task := &chunk[i]
			out := r.run.Outcome(task.Recipient)
			if out.Status.Terminal() {
				// Resume path: never re-attempt a task that already
				// reached a terminal outcome.
				continue
			}
			if r.stopping() {
				break
			}

			// Inter-send pacing; the limiter's initial token makes the
			// first wait free. Pause blocks here too, and stop cancels
			// the pending delay.
			if err := r.Wait(ctx, r.delay()); err != nil {
				if err == retry.ErrStopRequested {
					break
				}
				r.abort(err)
				return
			}

			if err := r.orch.retrier.Attempt(ctx, task, out, r.run.Options.MaxRetries, r, func() {
				r.publish(*out)
			}); err != nil {
				r.abort(err)
				return
			}
			r.recordTerminal(ctx, out)
		}

		r.snapshot(ctx)
		r.orch.refreshLock(ctx, r.run.CampaignID)
		if r.stopping() {
			break
		}
	}

	r.finish(ctx)
}

// finish marks leftovers skipped after a stop and settles the final state.
func (r *runner) finish(ctx context.Context) {
	stopped := r.stopping()
	for _, t := range r.run.Tasks {
		out := r.run.Outcome(t.Recipient)
		if out.Status.Terminal() {
			continue
		}
		out.Status = entity.OutcomeSkipped
		r.publish(*out)
		r.recordTerminal(ctx, out)
	}

	r.run.CompletedAt = time.Now()
	if stopped {
		r.setState(entity.RunStopped)
		r.snapshot(ctx)
	} else {
		r.setState(entity.RunCompleted)
		r.orch.discardSnapshot(ctx, r.run.CampaignID)
	}

	p := r.Progress()
	r.log.WithFields(logrus.Fields{
		"state":     r.run.State,
		"succeeded": p.Succeeded,
		"failed":    p.Failed,
		"skipped":   p.Skipped,
	}).Info("run finished")
}

// abort handles an unrecoverable internal fault (process shutdown,
// snapshot store corruption): in-flight work is marked cancelled and the
// error surfaces on the handle.
func (r *runner) abort(err error) {
	r.mu.Lock()
	r.err = err
	r.mu.Unlock()
	for _, t := range r.run.Tasks {
		out := r.run.Outcome(t.Recipient)
		if !out.Status.Terminal() {
			out.Status = entity.OutcomeCancelled
			r.publish(*out)
		}
	}
	r.run.CompletedAt = time.Now()
	r.setState(entity.RunStopped)
	r.log.WithError(err).Error("run aborted")
}

// Wait implements retry.Gate: a cancellable delay that respects stop and
// blocks while paused. Stop wins over a pending delay so a stopped run
// never starts another send.
func (r *runner) Wait(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-r.stopCh:
		return retry.ErrStopRequested
	case <-timer.C:
	}
	return r.waitWhilePaused(ctx)
}

// waitWhilePaused blocks until the run is resumed, stopped, or cancelled.
func (r *runner) waitWhilePaused(ctx context.Context) error {
	for {
		r.mu.RLock()
		ch := r.pauseCh
		r.mu.RUnlock()
		if ch == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-r.stopCh:
			return retry.ErrStopRequested
		case <-ch:
		}
	}
}

// Stop requests a cooperative stop: the in-flight attempt finishes, every
// not-yet-attempted task is skipped.
func (r *runner) Stop() {
	r.stopOnce.Do(func() {
		r.setState(entity.RunStopping)
		close(r.stopCh)
	})
}

// Pause suspends the run after the current in-flight attempt. A snapshot
// is written so an interrupted pause can still resume after a restart.
func (r *runner) Pause() {
	r.mu.Lock()
	if r.pauseCh != nil || r.run.State.Terminal() {
		r.mu.Unlock()
		return
	}
	r.pauseCh = make(chan struct{})
	r.mu.Unlock()
	r.setState(entity.RunPaused)
	r.snapshotFromView(context.Background())
}

// Resume lifts a pause.
func (r *runner) Resume() {
	r.mu.Lock()
	ch := r.pauseCh
	r.pauseCh = nil
	r.mu.Unlock()
	if ch == nil {
		return
	}
	r.setState(entity.RunSending)
	close(ch)
}

func (r *runner) stopping() bool {
	select {
	case <-r.stopCh:
		return true
	default:
		return false
	}
}

func (r *runner) delay() time.Duration {
	return r.limiter.Reserve().Delay()
}

// setState transitions the run state and emits a progress event. The
// dispatcher exclusively owns these transitions.
func (r *runner) setState(s entity.RunState) {
	r.mu.Lock()
	r.run.State = s
	r.mu.Unlock()
	r.emitProgress()
}

// publish refreshes the copy-on-transition view for one outcome and emits
// a progress event. Called after every single outcome transition, never
// batched, so observers see monotonically increasing completion counts.
func (r *runner) publish(out entity.SendOutcome) {
	r.mu.Lock()
	r.outcomesView[out.Recipient] = out
	r.mu.Unlock()
	r.emitProgress()
}

func (r *runner) emitProgress() {
	r.mu.Lock()
	p := progress.FromOutcomes(r.run.CampaignID, r.run.State, r.outcomesView, r.batch, r.batches)
	r.lastProgress = p
	var ev Event
	if len(r.subs) > 0 {
		ev = Event{Progress: p, Outcomes: r.orderedOutcomes()}
	}
	subs := make([]chan Event, len(r.subs))
	copy(subs, r.subs)
	r.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- ev:
		default:
			r.log.Warn("progress subscriber lagging; event dropped")
		}
	}
}

// Progress returns the last computed aggregate.
func (r *runner) Progress() progress.Progress {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lastProgress
}

// Subscribe registers a progress listener. The returned cancel function
// must be called to release the channel.
func (r *runner) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, 4*len(r.run.Outcomes)+16)
	r.mu.Lock()
	r.subs = append(r.subs, ch)
	r.mu.Unlock()

	cancel := func() {
		r.mu.Lock()
		for i, c := range r.subs {
			if c == ch {
				r.subs = append(r.subs[:i], r.subs[i+1:]...)
				break
			}
		}
		r.mu.Unlock()
	}
	return ch, cancel
}

// Outcomes returns value copies ordered by sequence index, with any
// rehydrated extras (prior successes) appended by recipient order.
func (r *runner) Outcomes() []entity.SendOutcome {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.orderedOutcomes()
}

// orderedOutcomes requires r.mu held.
func (r *runner) orderedOutcomes() []entity.SendOutcome {
	seen := make(map[string]bool, len(r.run.Tasks))
	out := make([]entity.SendOutcome, 0, len(r.outcomesView))
	for _, t := range r.run.Tasks {
		if o, ok := r.outcomesView[t.Recipient]; ok {
			out = append(out, o)
			seen[t.Recipient] = true
		}
	}
	var extras []entity.SendOutcome
	for k, o := range r.outcomesView {
		if !seen[k] {
			extras = append(extras, o)
		}
	}
	sort.Slice(extras, func(i, j int) bool { return extras[i].Recipient < extras[j].Recipient })
	return append(out, extras...)
}

// Err reports the top-level fault, if the run aborted.
func (r *runner) Err() error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.err
}

// snapshot persists run state at a chunk boundary (run goroutine only).
func (r *runner) snapshot(ctx context.Context) {
	if r.run.Options.Transactional {
		return
	}
	r.orch.saveSnapshot(ctx, entity.SnapshotRun(r.run, time.Now()))
}

// snapshotFromView builds a snapshot from the copy-on-transition view, for
// callers off the run goroutine (pause/stop paths).
func (r *runner) snapshotFromView(ctx context.Context) {
	if r.run.Options.Transactional {
		return
	}
	r.mu.RLock()
	outcomes := make(map[string]*entity.SendOutcome, len(r.outcomesView))
	for k := range r.outcomesView {
		o := r.outcomesView[k]
		outcomes[k] = &o
	}
	var rem []entity.SendTask
	for _, t := range r.run.Tasks {
		if o, ok := outcomes[t.Recipient]; !ok || o.Status != entity.OutcomeSuccess {
			rem = append(rem, t)
		}
	}
	snap := &entity.ResumeSnapshot{
		Format:         entity.SnapshotFormat,
		CampaignID:     r.run.CampaignID,
		RemainingTasks: rem,
		Outcomes:       outcomes,
		Options:        r.run.Options,
		SavedAt:        time.Now(),
	}
	r.mu.RUnlock()
	r.orch.saveSnapshot(ctx, snap)
}

// recordTerminal writes the reporting trail row for a terminal outcome.
func (r *runner) recordTerminal(ctx context.Context, out *entity.SendOutcome) {
	if !out.Status.Terminal() {
		return
	}
	r.orch.recordOutcome(ctx, r.run.CampaignID, out)
}

// chunkTasks partitions tasks into contiguous chunks of size n.
func chunkTasks(tasks []entity.SendTask, n int) [][]entity.SendTask {
	if n <= 0 || len(tasks) == 0 {
		if len(tasks) == 0 {
			return nil
		}
		return [][]entity.SendTask{tasks}
	}
	var chunks [][]entity.SendTask
	for start := 0; start < len(tasks); start += n {
		end := start + n
		if end > len(tasks) {
			end = len(tasks)
		}
		chunks = append(chunks, tasks[start:end])
	}
	return chunks
}
