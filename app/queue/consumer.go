package queue

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/vibast-solutions/ms-go-campaigns/app/dispatch"
	"github.com/vibast-solutions/ms-go-campaigns/app/entity"
)

// Dispatcher is the slice of the orchestrator the consumer drives.
type Dispatcher interface {
	Submit(ctx context.Context, campaignID string, tasks []entity.SendTask, opts entity.RunOptions) (*dispatch.Handle, error)
}

type SubmissionConsumer struct {
	client       *redis.Client
	dispatcher   Dispatcher
	consumerName string
	log          *logrus.Entry
}

// NewSubmissionConsumer constructs a Redis stream consumer that runs
// queued campaign submissions through the orchestrator.
func NewSubmissionConsumer(client *redis.Client, dispatcher Dispatcher, consumerName string, log *logrus.Entry) *SubmissionConsumer {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &SubmissionConsumer{
		client:       client,
		dispatcher:   dispatcher,
		consumerName: consumerName,
		log:          log,
	}
}

// Run starts the consumer loop and blocks until context cancellation.
func (c *SubmissionConsumer) Run(ctx context.Context) error {
	if err := c.ensureGroup(ctx); err != nil {
		return err
	}

	c.log.WithFields(logrus.Fields{"consumer": c.consumerName, "stream": StreamName}).Info("consumer started")

	// First drain pending messages, then switch to reading new ones.
	startID := "0"
	for {
		select {
		case <-ctx.Done():
			c.log.Info("consumer shutting down")
			return nil
		default:
		}

		streams, err := c.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    ConsumerGroup,
			Consumer: c.consumerName,
			Streams:  []string{StreamName, startID},
			Count:    1,
			Block:    5 * time.Second,
		}).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				if startID == "0" {
					// Finished draining pending messages, switch to new.
					startID = ">"
				}
				continue
			}
			if ctx.Err() != nil {
				c.log.Info("consumer shutting down")
				return nil
			}
			c.log.WithError(err).Warn("xreadgroup failed")
			time.Sleep(time.Second)
			continue
		}

		for _, stream := range streams {
			if len(stream.Messages) == 0 && startID == "0" {
				startID = ">"
				continue
			}
			for _, msg := range stream.Messages {
				c.processMessage(ctx, msg)
			}
		}
	}
}

// processMessage runs one submission to settlement and acks. A failed
// submission stays pending for another consumer; a duplicate is acked
// since the campaign is already being dispatched.
func (c *SubmissionConsumer) processMessage(ctx context.Context, msg redis.XMessage) {
	payload, _ := msg.Values["payload"].(string)
	sub, err := decodeSubmission(payload)
	if err != nil {
		c.log.WithError(err).WithField("message", msg.ID).Warn("undecodable submission; acking")
		c.ack(ctx, msg.ID)
		return
	}

	log := c.log.WithFields(logrus.Fields{"message": msg.ID, "campaign_id": sub.CampaignID, "tasks": len(sub.Tasks)})
	log.Info("processing submission")

	handle, err := c.dispatcher.Submit(ctx, sub.CampaignID, sub.Tasks, sub.Options)
	if err != nil {
		if errors.Is(err, dispatch.ErrDuplicateRun) {
			log.Warn("campaign already active; acking duplicate submission")
			c.ack(ctx, msg.ID)
			return
		}
		log.WithError(err).Warn("submit failed; message stays pending")
		return
	}

	select {
	case <-handle.Done():
	case <-ctx.Done():
		// The run keeps draining under the orchestrator's own shutdown;
		// leave the message pending so a restart can check on it.
		return
	}

	if err := handle.Err(); err != nil {
		log.WithError(err).Warn("run aborted; message stays pending")
		return
	}
	c.ack(ctx, msg.ID)
}

func (c *SubmissionConsumer) ack(ctx context.Context, id string) {
	if err := c.client.XAck(ctx, StreamName, ConsumerGroup, id).Err(); err != nil {
		c.log.WithError(err).WithField("message", id).Warn("xack failed")
	}
}

// ensureGroup creates the stream and consumer group if missing.
func (c *SubmissionConsumer) ensureGroup(ctx context.Context) error {
	err := c.client.XGroupCreateMkStream(ctx, StreamName, ConsumerGroup, "0").Err()
	if err != nil && err.Error() != "BUSYGROUP Consumer Group name already exists" {
		return err
	}
	return nil
}
