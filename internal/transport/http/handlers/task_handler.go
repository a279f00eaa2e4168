package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/leadbridge/backend/internal/core/services"
	"github.com/leadbridge/backend/internal/domain"
	"github.com/leadbridge/backend/internal/infrastructure/logger"
	"github.com/leadbridge/backend/internal/transport/http/dto"
)

// TaskHandler is the intent-producing boundary of the task panel. It reads
// store snapshots and publishes control intents; it never mutates task status
// directly and never talks to the transport.
type TaskHandler struct {
	store   *services.TaskStore
	intents *services.IntentBus
	logger  *logger.Logger
}

func NewTaskHandler(store *services.TaskStore, intents *services.IntentBus, logger *logger.Logger) *TaskHandler {
	return &TaskHandler{store: store, intents: intents, logger: logger}
}

func (h *TaskHandler) ListTasks(c *fiber.Ctx) error {
	return c.JSON(dto.PanelResponse{
		Tasks:       h.store.List(),
		ActiveCount: h.store.ActiveCount(),
		Minimized:   h.store.Minimized(),
	})
}

func (h *TaskHandler) GetTask(c *fiber.Ctx) error {
	id := c.Params("id")
	task, found := h.store.Get(id)
	if !found {
		return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{
			Error: "task not found",
		})
	}
	return c.JSON(task)
}

// PauseTask is legal only for a running task.
func (h *TaskHandler) PauseTask(c *fiber.Ctx) error {
	return h.publishIntent(c, services.IntentPause, func(status domain.TaskStatus) bool {
		return status == domain.TaskStatusRunning
	})
}

// ResumeTask is legal only for a paused task.
func (h *TaskHandler) ResumeTask(c *fiber.Ctx) error {
	return h.publishIntent(c, services.IntentResume, func(status domain.TaskStatus) bool {
		return status == domain.TaskStatusPaused
	})
}

// CancelTask is legal while the task is running, pending or paused.
func (h *TaskHandler) CancelTask(c *fiber.Ctx) error {
	return h.publishIntent(c, services.IntentCancel, func(status domain.TaskStatus) bool {
		return status.Subscribable()
	})
}

func (h *TaskHandler) publishIntent(c *fiber.Ctx, kind services.IntentKind, allowed func(domain.TaskStatus) bool) error {
	id := c.Params("id")
	task, found := h.store.Get(id)
	if !found {
		h.logger.Warnw("task_intent_not_found", "kind", kind, "task_id", id)
		return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{
			Error: "task not found",
		})
	}

	if !allowed(task.Status) {
		h.logger.Warnw("task_intent_illegal", "kind", kind, "task_id", id, "status", task.Status)
		return c.Status(fiber.StatusConflict).JSON(dto.ErrorResponse{
			Error:   services.ErrIllegalTransition.Error(),
			Details: fiber.Map{"status": task.Status},
		})
	}

	h.intents.Publish(services.Intent{Kind: kind, TaskID: id})
	h.logger.Infow("task_intent_published", "kind", kind, "task_id", id)

	// The intent was forwarded; the task changes status only once the backend
	// confirms with an event.
	return c.Status(fiber.StatusAccepted).JSON(dto.IntentResponse{
		Status: "requested",
		TaskID: id,
	})
}

// CancelAll publishes one cancel intent per task the backend may still act on.
func (h *TaskHandler) CancelAll(c *fiber.Ctx) error {
	ids := h.store.SubscribableIDs()
	for _, id := range ids {
		h.intents.Publish(services.Intent{Kind: services.IntentCancel, TaskID: id})
	}
	h.logger.Infow("task_cancel_all", "count", len(ids))
	return c.Status(fiber.StatusAccepted).JSON(dto.CancelAllResponse{Requested: len(ids)})
}

// RemoveTask dismisses a task immediately; removal is purely local.
func (h *TaskHandler) RemoveTask(c *fiber.Ctx) error {
	id := c.Params("id")
	if _, found := h.store.Get(id); !found {
		return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{
			Error: "task not found",
		})
	}
	h.store.Remove(id)
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *TaskHandler) ClearCompleted(c *fiber.Ctx) error {
	removed := h.store.ClearCompleted()
	return c.JSON(dto.ClearResponse{Removed: removed})
}

func (h *TaskHandler) ToggleMinimized(c *fiber.Ctx) error {
	return c.JSON(dto.MinimizeResponse{Minimized: h.store.ToggleMinimized()})
}
