package delivery

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"

	"github.com/vibast-solutions/ms-go-campaigns/app/entity"
	"github.com/vibast-solutions/ms-go-campaigns/app/preparer"
)

type SESClient struct {
	client   *sesv2.Client
	preparer preparer.MessagePreparer
	source   string
}

// NewSESClient builds a client that sends campaign messages via AWS SES.
func NewSESClient(cfg aws.Config, prep preparer.MessagePreparer, source string) *SESClient {
	return &SESClient{
		client:   sesv2.NewFromConfig(cfg),
		preparer: prep,
		source:   source,
	}
}

// Send builds the raw MIME message for one task and submits it to SES.
// Errors are classified into the transient/permanent taxonomy; a task whose
// content cannot even be assembled is a permanent failure.
func (c *SESClient) Send(ctx context.Context, task *entity.SendTask) error {
	if task.Recipient == "" {
		return &PermanentError{Code: "empty-recipient", Err: fmt.Errorf("recipient is required")}
	}

	raw, err := c.preparer.Prepare(ctx, task)
	if err != nil {
		return &PermanentError{Code: "prepare", Err: err}
	}

	_, err = c.client.SendEmail(ctx, &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(c.source),
		Destination: &types.Destination{
			ToAddresses: []string{task.Recipient},
		},
		Content: &types.EmailContent{
			Raw: &types.RawMessage{Data: raw},
		},
	})
	if err != nil {
		return Classify(fmt.Errorf("ses send email: %w", err))
	}

	return nil
}
