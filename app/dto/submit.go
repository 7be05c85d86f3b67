package dto

import (
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/vibast-solutions/ms-go-campaigns/app/entity"
)

var (
	ErrNoMessages       = errors.New("at least one message is required")
	ErrInvalidRecipient = errors.New("recipient must be a valid email address")
	ErrMissingSubject   = errors.New("subject is required")
	ErrMissingBody      = errors.New("body is required")
	ErrDuplicateAddress = errors.New("duplicate recipient in submission")
)

type SubmitMessage struct {
	Recipient           string             `json:"recipient"`
	Subject             string             `json:"subject"`
	Body                string             `json:"body"`
	Attachments         []SubmitAttachment `json:"attachments,omitempty"`
	PersonalizationData map[string]string  `json:"personalization_data,omitempty"`
}

type SubmitAttachment struct {
	Filename string `json:"filename"`
	MIMEType string `json:"mime_type"`
	Content  []byte `json:"content"`
}

type SubmitRequest struct {
	Messages []SubmitMessage `json:"messages"`

	DelayBetweenSendsMs int  `json:"delay_between_sends_ms"`
	ChunkSize           int  `json:"chunk_size"`
	MaxRetries          int  `json:"max_retries"`
	Transactional       bool `json:"transactional"`

	// Async routes the submission through the Redis stream instead of
	// starting the run in-process.
	Async bool `json:"async"`
}

// FromEchoContext binds and normalizes a request from Echo.
func FromEchoContext(ctx echo.Context) (SubmitRequest, error) {
	var req SubmitRequest
	if err := ctx.Bind(&req); err != nil {
		return SubmitRequest{}, err
	}
	req.normalize()
	return req, nil
}

// Validate checks required fields and recipient uniqueness.
func (r *SubmitRequest) Validate() error {
	if len(r.Messages) == 0 {
		return ErrNoMessages
	}
	seen := make(map[string]bool, len(r.Messages))
	for i := range r.Messages {
		m := &r.Messages[i]
		if _, err := mail.ParseAddress(m.Recipient); err != nil {
			return fmt.Errorf("%w: %q", ErrInvalidRecipient, m.Recipient)
		}
		if m.Subject == "" {
			return ErrMissingSubject
		}
		if m.Body == "" {
			return ErrMissingBody
		}
		if seen[m.Recipient] {
			return fmt.Errorf("%w: %q", ErrDuplicateAddress, m.Recipient)
		}
		seen[m.Recipient] = true
	}
	return nil
}

// Tasks converts the request body into dispatch tasks in submission order.
func (r *SubmitRequest) Tasks() []entity.SendTask {
	tasks := make([]entity.SendTask, 0, len(r.Messages))
	for i, m := range r.Messages {
		t := entity.SendTask{
			Recipient:           m.Recipient,
			Subject:             m.Subject,
			Body:                m.Body,
			PersonalizationData: m.PersonalizationData,
			SequenceIndex:       i,
		}
		for _, a := range m.Attachments {
			t.Attachments = append(t.Attachments, entity.Attachment{
				Filename: a.Filename,
				MIMEType: a.MIMEType,
				Content:  a.Content,
			})
		}
		tasks = append(tasks, t)
	}
	return tasks
}

// Options converts the request tuning fields.
func (r *SubmitRequest) Options() entity.RunOptions {
	return entity.RunOptions{
		DelayBetweenSends: time.Duration(r.DelayBetweenSendsMs) * time.Millisecond,
		ChunkSize:         r.ChunkSize,
		MaxRetries:        r.MaxRetries,
		Transactional:     r.Transactional,
	}
}

// normalize trims whitespace on addressing fields.
func (r *SubmitRequest) normalize() {
	for i := range r.Messages {
		r.Messages[i].Recipient = strings.TrimSpace(r.Messages[i].Recipient)
		r.Messages[i].Subject = strings.TrimSpace(r.Messages[i].Subject)
	}
}
