package dispatch

import "errors"

var (
	// ErrDuplicateRun rejects a submit for a campaign that already has an
	// active run, in this process or (via the run lock) another one.
	ErrDuplicateRun = errors.New("campaign already has an active run")
	// ErrNoActiveRun means stop/pause was asked of a campaign with no
	// running dispatch.
	ErrNoActiveRun = errors.New("no active run for campaign")
	// ErrNothingToRetry means no terminal transient failures were found.
	ErrNothingToRetry = errors.New("no retryable failures for campaign")
	// ErrNoTasks rejects an empty submission.
	ErrNoTasks = errors.New("no tasks to dispatch")
)
