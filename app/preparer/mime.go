package preparer

import (
	"context"
	"encoding/base64"
	"fmt"
	"mime"
	"strings"
)

type MIMEPreparer struct {
	source string
}

// NewMIMEPreparer creates a step that assembles the raw MIME message for
// one task: a plain HTML body, or multipart/mixed with base64 attachments.
func NewMIMEPreparer(source string) *MIMEPreparer {
	return &MIMEPreparer{source: source}
}

const attachmentBoundary = "campaign-attachment-boundary"

// Prepare builds the raw message. Subjects with CR/LF are rejected to block
// header injection; subject and body arrive already personalized.
func (p *MIMEPreparer) Prepare(_ context.Context, msg *Message) error {
	task := msg.Task
	if strings.TrimSpace(p.source) == "" {
		return fmt.Errorf("source email is required")
	}
	if strings.TrimSpace(task.Recipient) == "" {
		return fmt.Errorf("recipient is required")
	}
	if strings.TrimSpace(task.Subject) == "" {
		return fmt.Errorf("subject is required")
	}
	if strings.ContainsAny(task.Subject, "\r\n") {
		return fmt.Errorf("subject contains invalid characters")
	}

	var b strings.Builder
	b.WriteString("From: ")
	b.WriteString(p.source)
	b.WriteString("\r\n")
	b.WriteString("To: ")
	b.WriteString(task.Recipient)
	b.WriteString("\r\n")
	b.WriteString("Subject: ")
	b.WriteString(mime.QEncoding.Encode("UTF-8", task.Subject))
	b.WriteString("\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")

	if !task.HasAttachments() {
		b.WriteString("Content-Type: text/html; charset=UTF-8\r\n")
		b.WriteString("Content-Transfer-Encoding: 7bit\r\n")
		b.WriteString("\r\n")
		b.WriteString(task.Body)
		msg.Raw = []byte(b.String())
		return nil
	}

	b.WriteString("Content-Type: multipart/mixed; boundary=\"" + attachmentBoundary + "\"\r\n")
	b.WriteString("\r\n")

	b.WriteString("--" + attachmentBoundary + "\r\n")
	b.WriteString("Content-Type: text/html; charset=UTF-8\r\n")
	b.WriteString("Content-Transfer-Encoding: 7bit\r\n")
	b.WriteString("\r\n")
	b.WriteString(task.Body)
	b.WriteString("\r\n")

	for _, att := range task.Attachments {
		if strings.TrimSpace(att.Filename) == "" {
			return fmt.Errorf("attachment filename is required")
		}
		ct := att.MIMEType
		if ct == "" {
			ct = "application/octet-stream"
		}
		b.WriteString("--" + attachmentBoundary + "\r\n")
		b.WriteString("Content-Type: " + ct + "\r\n")
		b.WriteString("Content-Transfer-Encoding: base64\r\n")
		b.WriteString("Content-Disposition: attachment; filename=\"" + att.Filename + "\"\r\n")
		b.WriteString("\r\n")
		b.WriteString(wrapBase64(base64.StdEncoding.EncodeToString(att.Content)))
		b.WriteString("\r\n")
	}
	b.WriteString("--" + attachmentBoundary + "--\r\n")

	msg.Raw = []byte(b.String())
	return nil
}

// wrapBase64 folds encoded content at 76 columns per RFC 2045.
func wrapBase64(s string) string {
	const width = 76
	if len(s) <= width {
		return s
	}
	var b strings.Builder
	for len(s) > width {
		b.WriteString(s[:width])
		b.WriteString("\r\n")
		s = s[width:]
	}
	b.WriteString(s)
	return b.String()
}
