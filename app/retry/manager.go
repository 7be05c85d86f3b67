package retry

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/vibast-solutions/ms-go-campaigns/app/delivery"
	"github.com/vibast-solutions/ms-go-campaigns/app/entity"
)

// QuotaRecorder counts attempted sends. Retries count too: each attempt
// consumes provider quota whether or not it lands.
type QuotaRecorder interface {
	RecordSend(ctx context.Context) error
}

// Gate is supplied by the dispatcher so that backoff delays respect
// pause/stop. Wait returns ErrStopRequested when a cooperative stop cancels
// the pending delay, and blocks while the run is paused.
type Gate interface {
	Wait(ctx context.Context, d time.Duration) error
}

var ErrStopRequested = errors.New("stop requested")

type Config struct {
	// BaseDelay grows linearly with the retry count and is capped at
	// MaxDelay.
	BaseDelay time.Duration
	MaxDelay  time.Duration
	// AttemptTimeout bounds one delivery attempt so a hung network call
	// cannot stall the dispatcher.
	AttemptTimeout time.Duration
}

const (
	DefaultBaseDelay      = 2 * time.Second
	DefaultMaxDelay       = 30 * time.Second
	DefaultAttemptTimeout = 30 * time.Second
)

func (c *Config) normalize() {
	if c.BaseDelay <= 0 {
		c.BaseDelay = DefaultBaseDelay
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = DefaultMaxDelay
	}
	if c.AttemptTimeout <= 0 {
		c.AttemptTimeout = DefaultAttemptTimeout
	}
}

// Manager owns the attempt loop for a single task: classification of
// delivery failures, backoff between attempts, and the retryCount budget.
// It mutates only the outcome handed to it.
type Manager struct {
	client delivery.Client
	quota  QuotaRecorder
	cfg    Config
	log    *logrus.Entry
}

// NewManager builds a retry manager. quota may be nil (attempts are then
// not counted).
func NewManager(client delivery.Client, quota QuotaRecorder, cfg Config, log *logrus.Entry) *Manager {
	cfg.normalize()
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Manager{client: client, quota: quota, cfg: cfg, log: log}
}

// Attempt drives one task to a terminal outcome. onTransition fires after
// every outcome mutation so observers see each state individually.
//
// A permanent failure lands in OutcomeError immediately. Transient failures
// retry up to maxRetries with a linear capped backoff; exhausting the
// budget is a terminal OutcomeError with Transient=true so manual retry can
// pick it up. A stop arriving during backoff leaves the task OutcomeCancelled;
// an in-flight attempt is never aborted.
func (m *Manager) Attempt(ctx context.Context, task *entity.SendTask, out *entity.SendOutcome, maxRetries int, gate Gate, onTransition func()) error {
	log := m.log.WithFields(logrus.Fields{"recipient": task.Recipient, "sequence": task.SequenceIndex})

	for {
		out.Status = entity.OutcomeSending
		out.LastAttemptAt = time.Now()
		onTransition()

		if m.quota != nil {
			if err := m.quota.RecordSend(ctx); err != nil {
				log.WithError(err).Warn("quota record failed")
			}
		}

		err := m.send(ctx, task)
		if err == nil {
			out.Status = entity.OutcomeSuccess
			out.Error = ""
			onTransition()
			return nil
		}

		classified := delivery.Classify(err)
		out.Error = classified.Error()

		if !delivery.Transient(classified) {
			out.Status = entity.OutcomeError
			out.Transient = false
			onTransition()
			log.WithError(classified).Warn("permanent delivery failure")
			return nil
		}

		// RetryCount counts retries performed, 0..maxRetries: a task is
		// attempted at most maxRetries+1 times.
		out.RetryCount++
		if out.RetryCount > maxRetries {
			out.RetryCount = maxRetries
			out.Status = entity.OutcomeError
			out.Transient = true
			onTransition()
			log.WithError(classified).WithField("retries", out.RetryCount).Warn("retry budget exhausted")
			return nil
		}

		out.Status = entity.OutcomeRetrying
		onTransition()

		delay := m.backoff(out.RetryCount)
		log.WithError(classified).WithFields(logrus.Fields{"attempt": out.RetryCount + 1, "delay": delay}).Info("retry scheduled")
		if err := gate.Wait(ctx, delay); err != nil {
			if errors.Is(err, ErrStopRequested) {
				out.Status = entity.OutcomeCancelled
				onTransition()
				return nil
			}
			out.Status = entity.OutcomeCancelled
			onTransition()
			return err
		}
	}
}

// send runs one bounded delivery attempt.
func (m *Manager) send(ctx context.Context, task *entity.SendTask) error {
	attemptCtx, cancel := context.WithTimeout(ctx, m.cfg.AttemptTimeout)
	defer cancel()
	return m.client.Send(attemptCtx, task)
}

// backoff is base × retryCount, capped.
func (m *Manager) backoff(retryCount int) time.Duration {
	d := m.cfg.BaseDelay * time.Duration(retryCount)
	if d > m.cfg.MaxDelay {
		d = m.cfg.MaxDelay
	}
	return d
}

// RetryableTasks selects the tasks whose outcome is a transient terminal
// failure, preserving original sequence order. It never mutates the
// outcomes: a settled run stays readable through the progress API while a
// manual retry resubmits the selected tasks as a new run with fresh
// pending outcomes.
func RetryableTasks(tasks []entity.SendTask, outcomes map[string]*entity.SendOutcome) []entity.SendTask {
	var retryable []entity.SendTask
	for _, t := range tasks {
		o, ok := outcomes[t.Recipient]
		if !ok {
			continue
		}
		if o.Status == entity.OutcomeError && o.Transient {
			retryable = append(retryable, t)
		}
	}
	return retryable
}
