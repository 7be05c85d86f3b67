package delivery

import (
	"context"

	"github.com/vibast-solutions/ms-go-campaigns/app/entity"
)

// NoopClient pretends every send succeeded. Used for local development and
// as the provider for dry runs.
type NoopClient struct{}

// NewNoopClient constructs a no-op delivery client.
func NewNoopClient() *NoopClient {
	return &NoopClient{}
}

// Send returns nil without contacting any provider.
func (c *NoopClient) Send(_ context.Context, _ *entity.SendTask) error {
	return nil
}
