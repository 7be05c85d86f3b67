package delivery

import (
	"context"

	"github.com/vibast-solutions/ms-go-campaigns/app/entity"
)

// Client performs one message send. Implementations must return a typed
// error distinguishing transport failures (we never reached the provider)
// from provider rejections (the provider refused this message), since retry
// classification depends on the difference.
type Client interface {
	Send(ctx context.Context, task *entity.SendTask) error
}
