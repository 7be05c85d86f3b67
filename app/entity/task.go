package entity

import "time"

// SendTask is one recipient's fully personalized message within a campaign.
// Subject and body arrive already personalized; PersonalizationData is kept
// opaque so downstream reporting can echo it back.
type SendTask struct {
	Recipient           string            `json:"recipient"`
	Subject             string            `json:"subject"`
	Body                string            `json:"body"`
	Attachments         []Attachment      `json:"attachments,omitempty"`
	PersonalizationData map[string]string `json:"personalization_data,omitempty"`

	// SequenceIndex is the task's position in the original submission.
	// It is unique within a run and never reassigned, so resumed runs
	// continue in the original order.
	SequenceIndex int `json:"sequence_index"`
}

// HasAttachments reports whether the task carries at least one attachment.
func (t *SendTask) HasAttachments() bool {
	return len(t.Attachments) > 0
}

type Attachment struct {
	Filename string `json:"filename"`
	MIMEType string `json:"mime_type"`
	Content  []byte `json:"content"`
}

// OutcomeStatus is the delivery status of one task.
type OutcomeStatus string

const (
	OutcomePending   OutcomeStatus = "pending"
	OutcomeSending   OutcomeStatus = "sending"
	OutcomeSuccess   OutcomeStatus = "success"
	OutcomeError     OutcomeStatus = "error"
	OutcomeRetrying  OutcomeStatus = "retrying"
	OutcomeSkipped   OutcomeStatus = "skipped"
	OutcomeCancelled OutcomeStatus = "cancelled"
)

// Terminal reports whether the status will no longer change for this run.
func (s OutcomeStatus) Terminal() bool {
	switch s {
	case OutcomeSuccess, OutcomeError, OutcomeSkipped, OutcomeCancelled:
		return true
	}
	return false
}

// SendOutcome is the per-recipient result, mutated across retries.
type SendOutcome struct {
	Recipient     string        `json:"recipient"`
	Status        OutcomeStatus `json:"status"`
	Error         string        `json:"error,omitempty"`
	RetryCount    int           `json:"retry_count"`
	LastAttemptAt time.Time     `json:"last_attempt_at,omitzero"`

	// Transient distinguishes a retryable failure from a hard rejection
	// once Status == OutcomeError; manual retry only picks up transient
	// failures.
	Transient bool `json:"transient,omitempty"`
}
