package controller

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/vibast-solutions/ms-go-campaigns/app/dispatch"
	"github.com/vibast-solutions/ms-go-campaigns/app/dto"
	"github.com/vibast-solutions/ms-go-campaigns/app/queue"
	"github.com/vibast-solutions/ms-go-campaigns/app/resume"
)

// SubmissionPublisher queues a campaign for a dispatch worker.
type SubmissionPublisher interface {
	Publish(ctx context.Context, msg queue.SubmissionMessage) error
}

type CampaignController struct {
	orchestrator *dispatch.Orchestrator
	producer     SubmissionPublisher
}

// NewCampaignController constructs the HTTP campaign controller. producer
// may be nil; async submissions are then rejected.
func NewCampaignController(orchestrator *dispatch.Orchestrator, producer SubmissionPublisher) *CampaignController {
	return &CampaignController{orchestrator: orchestrator, producer: producer}
}

// Submit validates a campaign submission and either starts the run
// in-process or queues it for a dispatch worker.
func (c *CampaignController) Submit(ctx echo.Context) error {
	campaignID := ctx.Param("id")
	req, err := dto.FromEchoContext(ctx)
	if err != nil {
		return ctx.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	if err := req.Validate(); err != nil {
		return ctx.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}

	if req.Async {
		if c.producer == nil {
			return ctx.JSON(http.StatusBadRequest, map[string]string{"error": "async submissions not enabled"})
		}
		if err := c.producer.Publish(ctx.Request().Context(), queue.SubmissionMessage{
			CampaignID: campaignID,
			Tasks:      req.Tasks(),
			Options:    req.Options(),
		}); err != nil {
			return ctx.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to queue campaign"})
		}
		return ctx.JSON(http.StatusAccepted, map[string]string{"message": "campaign queued"})
	}

	handle, err := c.orchestrator.Submit(ctx.Request().Context(), campaignID, req.Tasks(), req.Options())
	if err != nil {
		if errors.Is(err, dispatch.ErrDuplicateRun) {
			return ctx.JSON(http.StatusConflict, map[string]string{"error": "campaign already has an active run"})
		}
		return ctx.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	resp := map[string]any{"message": "campaign started"}
	if handle.QuotaWarning != "" {
		resp["quota_warning"] = handle.QuotaWarning
	}
	return ctx.JSON(http.StatusAccepted, resp)
}

// Stop requests a cooperative stop of the active run.
func (c *CampaignController) Stop(ctx echo.Context) error {
	if err := c.orchestrator.Stop(ctx.Param("id")); err != nil {
		if errors.Is(err, dispatch.ErrNoActiveRun) {
			return ctx.JSON(http.StatusNotFound, map[string]string{"error": "no active run"})
		}
		return ctx.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return ctx.JSON(http.StatusOK, map[string]string{"message": "stop requested"})
}

// RetryFailed resubmits all transient-failed tasks as a new run.
func (c *CampaignController) RetryFailed(ctx echo.Context) error {
	handle, err := c.orchestrator.RetryFailed(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		switch {
		case errors.Is(err, dispatch.ErrNothingToRetry):
			return ctx.JSON(http.StatusNotFound, map[string]string{"error": "no retryable failures"})
		case errors.Is(err, dispatch.ErrDuplicateRun):
			return ctx.JSON(http.StatusConflict, map[string]string{"error": "campaign already has an active run"})
		}
		return ctx.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return ctx.JSON(http.StatusAccepted, map[string]any{"message": "retry started", "tasks": len(handle.Outcomes())})
}

// Resume rehydrates a saved snapshot and continues the run.
func (c *CampaignController) Resume(ctx echo.Context) error {
	_, err := c.orchestrator.Resume(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		switch {
		case errors.Is(err, resume.ErrNotFound):
			return ctx.JSON(http.StatusNotFound, map[string]string{"error": "no snapshot for campaign"})
		case errors.Is(err, dispatch.ErrDuplicateRun):
			return ctx.JSON(http.StatusConflict, map[string]string{"error": "campaign already has an active run"})
		}
		return ctx.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return ctx.JSON(http.StatusAccepted, map[string]string{"message": "campaign resumed"})
}

// Snapshot reports whether a resume snapshot exists, for the
// resume-or-discard choice after a restart.
func (c *CampaignController) Snapshot(ctx echo.Context) error {
	has, err := c.orchestrator.HasSaved(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return ctx.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return ctx.JSON(http.StatusOK, map[string]bool{"has_snapshot": has})
}

// DiscardSnapshot drops the saved snapshot.
func (c *CampaignController) DiscardSnapshot(ctx echo.Context) error {
	if err := c.orchestrator.DiscardSaved(ctx.Request().Context(), ctx.Param("id")); err != nil {
		return ctx.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return ctx.JSON(http.StatusOK, map[string]string{"message": "snapshot discarded"})
}

// Progress returns the latest aggregate for the campaign.
func (c *CampaignController) Progress(ctx echo.Context) error {
	p, err := c.orchestrator.Progress(ctx.Param("id"))
	if err != nil {
		if errors.Is(err, dispatch.ErrNoActiveRun) {
			return ctx.JSON(http.StatusNotFound, map[string]string{"error": "no run for campaign"})
		}
		return ctx.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return ctx.JSON(http.StatusOK, p)
}

// Quota returns the advisory quota state.
func (c *CampaignController) Quota(ctx echo.Context) error {
	state, err := c.orchestrator.Quota(ctx.Request().Context())
	if err != nil {
		return ctx.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return ctx.JSON(http.StatusOK, state)
}

// ResetQuota zeroes the advisory counter (operator override).
func (c *CampaignController) ResetQuota(ctx echo.Context) error {
	if err := c.orchestrator.ResetQuota(ctx.Request().Context()); err != nil {
		return ctx.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return ctx.JSON(http.StatusOK, map[string]string{"message": "quota reset"})
}
