package http

import (
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/leadbridge/backend/internal/config"
	"github.com/leadbridge/backend/internal/core/services"
	"github.com/leadbridge/backend/internal/infrastructure/logger"
	"github.com/leadbridge/backend/internal/transport/http/handlers"
	httpmw "github.com/leadbridge/backend/internal/transport/http/middleware"
)

type RouterConfig struct {
	Store   *services.TaskStore
	Bridge  *services.Bridge
	Intents *services.IntentBus
	Toasts  *services.ToastCenter
	Logger  *logger.Logger
	Config  *config.Config
}

func SetupRoutes(app *fiber.App, cfg RouterConfig) {
	taskHandler := handlers.NewTaskHandler(cfg.Store, cfg.Intents, cfg.Logger)
	uploadHandler := handlers.NewUploadHandler(cfg.Bridge, cfg.Logger)
	streamHandler := handlers.NewStreamHandler(cfg.Store, cfg.Toasts, cfg.Logger)

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	// Live panel stream
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			c.Locals("allowed", true)
			return c.Next()
		}
		return c.SendStatus(fiber.StatusUpgradeRequired)
	})
	app.Get("/ws/tasks", websocket.New(streamHandler.Handle))

	// API v1 routes
	api := app.Group("/api/v1", httpmw.AdminAuth(cfg.Config))

	tasks := api.Group("/tasks")
	tasks.Get("/", taskHandler.ListTasks)
	tasks.Post("/clear-completed", taskHandler.ClearCompleted)
	tasks.Post("/cancel-all", taskHandler.CancelAll)
	tasks.Get("/:id", taskHandler.GetTask)
	tasks.Delete("/:id", taskHandler.RemoveTask)
	tasks.Post("/:id/pause", taskHandler.PauseTask)
	tasks.Post("/:id/resume", taskHandler.ResumeTask)
	tasks.Post("/:id/cancel", taskHandler.CancelTask)

	api.Post("/panel/minimize", taskHandler.ToggleMinimized)
	api.Post("/uploads", uploadHandler.StartUpload)
}
