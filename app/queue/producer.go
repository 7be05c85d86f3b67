package queue

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

type SubmissionProducer struct {
	client *redis.Client
}

// NewSubmissionProducer constructs a Redis stream producer.
func NewSubmissionProducer(client *redis.Client) *SubmissionProducer {
	return &SubmissionProducer{client: client}
}

// Publish pushes a campaign submission onto the stream.
func (p *SubmissionProducer) Publish(ctx context.Context, msg SubmissionMessage) error {
	payload, err := msg.encode()
	if err != nil {
		return fmt.Errorf("encode submission: %w", err)
	}
	_, err = p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: StreamName,
		Values: map[string]interface{}{
			"campaign_id": msg.CampaignID,
			"payload":     payload,
		},
	}).Result()
	if err != nil {
		return fmt.Errorf("xadd to %s: %w", StreamName, err)
	}
	return nil
}
