package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/leadbridge/backend/internal/core/services"
	"github.com/leadbridge/backend/internal/infrastructure/logger"
	"github.com/leadbridge/backend/internal/transport/http/dto"
)

type UploadHandler struct {
	bridge *services.Bridge
	logger *logger.Logger
}

func NewUploadHandler(bridge *services.Bridge, logger *logger.Logger) *UploadHandler {
	return &UploadHandler{bridge: bridge, logger: logger}
}

// StartUpload registers a lead-upload task and forwards the start command to
// the job runner. The task id in the response is the correlation id for every
// later event about this job.
func (h *UploadHandler) StartUpload(c *fiber.Ctx) error {
	var req dto.UploadRequest
	if err := c.BodyParser(&req); err != nil {
		h.logger.Warnw("upload_body_parse_failed", "error", err)
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
			Error: "invalid request body",
		})
	}

	if errs := req.Validate(); len(errs) > 0 {
		h.logger.Warnw("upload_validation_failed", "details", errs)
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
			Error:   "validation failed",
			Details: errs,
		})
	}

	h.logger.Infow("upload_start_request", "leads", len(req.Leads), "list_id", req.ListID, "campaign_id", req.CampaignID)
	task, err := h.bridge.StartUpload(services.StartUploadInput{
		ProcessID:    req.ProcessID,
		Title:        req.Title,
		Description:  req.Description,
		Leads:        req.Leads,
		ListID:       req.ListID,
		ListName:     req.ListName,
		CampaignID:   req.CampaignID,
		CampaignName: req.CampaignName,
	})
	if err != nil {
		if errors.Is(err, services.ErrTaskExists) {
			h.logger.Warnw("upload_start_conflict", "process_id", req.ProcessID)
			return c.Status(fiber.StatusConflict).JSON(dto.ErrorResponse{
				Error: "a task with this id is already registered",
			})
		}
		h.logger.Errorw("upload_start_failed", "error", err)
		return c.Status(fiber.StatusBadGateway).JSON(dto.ErrorResponse{
			Error: err.Error(),
		})
	}

	h.logger.Infow("upload_start_success", "task_id", task.ID)
	return c.Status(fiber.StatusCreated).JSON(task)
}
