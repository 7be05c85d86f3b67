package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/vibast-solutions/ms-go-campaigns/app/entity"
)

// OutcomeHistoryRepository records the durable reporting trail: one row per
// terminal task outcome plus one summary row per run. Writes are
// best-effort from the dispatcher's point of view — a reporting failure
// never aborts a run.
type OutcomeHistoryRepository struct {
	db *sql.DB
}

// NewOutcomeHistoryRepository constructs a repository backed by MySQL.
func NewOutcomeHistoryRepository(db *sql.DB) *OutcomeHistoryRepository {
	return &OutcomeHistoryRepository{db: db}
}

// RecordOutcome upserts the terminal outcome of one task.
func (r *OutcomeHistoryRepository) RecordOutcome(ctx context.Context, campaignID string, o *entity.SendOutcome) error {
	const query = `
		INSERT INTO campaign_outcomes (campaign_id, recipient, status, error, retries, last_attempt_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE status = VALUES(status), error = VALUES(error),
			retries = VALUES(retries), last_attempt_at = VALUES(last_attempt_at)
	`
	var lastAttempt any
	if !o.LastAttemptAt.IsZero() {
		lastAttempt = o.LastAttemptAt
	}
	_, err := r.db.ExecContext(ctx, query, campaignID, o.Recipient, string(o.Status), nullStr(o.Error), o.RetryCount, lastAttempt)
	return err
}

// RecordRun upserts the run summary row.
func (r *OutcomeHistoryRepository) RecordRun(ctx context.Context, run *entity.CampaignRun) error {
	const query = `
		INSERT INTO campaign_runs (campaign_id, state, total, succeeded, failed, skipped, cancelled, started_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE state = VALUES(state), total = VALUES(total),
			succeeded = VALUES(succeeded), failed = VALUES(failed),
			skipped = VALUES(skipped), cancelled = VALUES(cancelled),
			started_at = VALUES(started_at), completed_at = VALUES(completed_at)
	`
	var succeeded, failed, skipped, cancelled int
	for _, o := range run.Outcomes {
		switch o.Status {
		case entity.OutcomeSuccess:
			succeeded++
		case entity.OutcomeError:
			failed++
		case entity.OutcomeSkipped:
			skipped++
		case entity.OutcomeCancelled:
			cancelled++
		}
	}
	_, err := r.db.ExecContext(ctx, query,
		run.CampaignID, string(run.State), len(run.Outcomes),
		succeeded, failed, skipped, cancelled,
		nullTime(run.StartedAt), nullTime(run.CompletedAt),
	)
	return err
}

// DeleteRun removes a run summary and its outcomes (operator cleanup).
func (r *OutcomeHistoryRepository) DeleteRun(ctx context.Context, campaignID string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM campaign_outcomes WHERE campaign_id = ?`, campaignID); err != nil {
		return err
	}
	_, err := r.db.ExecContext(ctx, `DELETE FROM campaign_runs WHERE campaign_id = ?`, campaignID)
	return err
}

func nullStr(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
