package preparer

import (
	"context"
	"fmt"

	"github.com/vibast-solutions/ms-go-campaigns/app/entity"
)

type MessagePreparer interface {
	Prepare(ctx context.Context, task *entity.SendTask) ([]byte, error)
}

// Message carries one task through the preparation steps; the final step
// must leave the assembled wire bytes in Raw.
type Message struct {
	Task *entity.SendTask
	Raw  []byte
}

type Step interface {
	Prepare(ctx context.Context, msg *Message) error
}

type Chain struct {
	steps []Step
}

// NewChain builds a message preparer chain from steps.
func NewChain(steps ...Step) *Chain {
	return &Chain{steps: steps}
}

// Prepare runs all steps and returns the final raw message.
func (c *Chain) Prepare(ctx context.Context, task *entity.SendTask) ([]byte, error) {
	msg := &Message{Task: task}

	for _, step := range c.steps {
		if err := step.Prepare(ctx, msg); err != nil {
			return nil, err
		}
	}

	if len(msg.Raw) == 0 {
		return nil, fmt.Errorf("prepared raw message is empty")
	}

	return msg.Raw, nil
}
