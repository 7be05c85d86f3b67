package dispatch

import (
	"github.com/vibast-solutions/ms-go-campaigns/app/entity"
	"github.com/vibast-solutions/ms-go-campaigns/app/progress"
)

// Event is one progress emission: the aggregate plus the full per-recipient
// outcome list, ordered by sequence index. Emitted after every single
// outcome or run-state transition.
type Event struct {
	progress.Progress
	Outcomes []entity.SendOutcome `json:"outcomes"`
}
