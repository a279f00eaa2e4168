package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/leadbridge/backend/internal/config"
	"github.com/leadbridge/backend/internal/core/ports"
	"github.com/leadbridge/backend/internal/core/services"
	"github.com/leadbridge/backend/internal/infrastructure/db"
	"github.com/leadbridge/backend/internal/infrastructure/logger"
	"github.com/leadbridge/backend/internal/infrastructure/remote"
	"github.com/leadbridge/backend/internal/infrastructure/storage"
	transporthttp "github.com/leadbridge/backend/internal/transport/http"
)

func main() {
	configPath := "config/config.yaml"
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		configPath = "../config/config.yaml"
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log, err := logger.New(cfg.Logger)
	if err != nil {
		panic("failed to initialize logger: " + err.Error())
	}
	defer log.Sync()

	snapshots, err := buildSnapshotStore(cfg, log)
	if err != nil {
		log.Fatalf("failed to initialize storage: %v", err)
	}

	store := services.NewTaskStore(services.TaskStoreConfig{
		Snapshots:     snapshots,
		Logger:        log,
		CleanupGrace:  cfg.Tasks.CleanupGrace,
		StaleAfter:    cfg.Tasks.StaleAfter,
		SweepInterval: cfg.Tasks.SweepInterval,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := store.Rehydrate(ctx); err != nil {
		log.Warnf("task rehydration failed, starting empty: %v", err)
	}
	store.StartStaleSweep(ctx)

	toasts := services.NewToastCenter(log)
	intents := services.NewIntentBus(log)

	transport := remote.NewWSClient(remote.WSConfig{
		URL:          cfg.Backend.URL,
		DialTimeout:  cfg.Backend.DialTimeout,
		ReconnectMin: cfg.Backend.ReconnectMin,
		ReconnectMax: cfg.Backend.ReconnectMax,
		Logger:       log,
	})

	bridge := services.NewBridge(services.BridgeConfig{
		Store:     store,
		Transport: transport,
		Notifier:  toasts,
		Intents:   intents,
		Logger:    log,
	})

	if err := bridge.Start(ctx); err != nil {
		log.Fatalf("failed to start bridge: %v", err)
	}

	app := fiber.New(fiber.Config{
		ReadTimeout:           cfg.Server.ReadTimeout,
		WriteTimeout:          cfg.Server.WriteTimeout,
		IdleTimeout:           cfg.Server.IdleTimeout,
		ErrorHandler:          globalErrorHandler(log),
		DisableStartupMessage: true,
	})

	app.Use(recover.New(recover.Config{
		EnableStackTrace: true,
	}))

	allowedOrigins := "http://localhost:3000"
	if len(cfg.Auth.AllowedOrigins) > 0 {
		allowedOrigins = strings.Join(cfg.Auth.AllowedOrigins, ",")
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins: allowedOrigins,
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-Admin-Token",
		AllowMethods: "GET, POST, HEAD, PUT, DELETE, PATCH",
	}))

	if cfg.Server.RequestLogging {
		app.Use(func(c *fiber.Ctx) error {
			start := time.Now()
			err := c.Next()
			log.Infow("http_access",
				"method", c.Method(),
				"path", c.Path(),
				"status", c.Response().StatusCode(),
				"latency_ms", time.Since(start).Milliseconds(),
				"client_ip", c.IP(),
			)
			return err
		})
	}

	transporthttp.SetupRoutes(app, transporthttp.RouterConfig{
		Store:   store,
		Bridge:  bridge,
		Intents: intents,
		Toasts:  toasts,
		Logger:  log,
		Config:  cfg,
	})

	go func() {
		log.Infow("server_listening", "addr", cfg.Server.Address(), "backend", cfg.Backend.URL)
		if err := app.Listen(cfg.Server.Address()); err != nil {
			log.Fatalf("server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	log.Infow("shutdown_signal", "signal", sig.String())

	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		log.Warnf("http shutdown warning: %v", err)
	}
	if err := bridge.Close(); err != nil {
		log.Warnf("bridge close warning: %v", err)
	}
	cancel()
	store.Flush()
	log.Infow("server_stopped")
}

func globalErrorHandler(log *logger.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		code := fiber.StatusInternalServerError
		if e, ok := err.(*fiber.Error); ok {
			code = e.Code
		}

		if code == fiber.StatusNotFound || code == fiber.StatusRequestTimeout {
			log.Warnw("request failed", "method", c.Method(), "path", c.Path(), "status", code, "error", err.Error())
		} else {
			log.Errorw("request error", "method", c.Method(), "path", c.Path(), "status", code, "error", err.Error())
		}

		return c.Status(code).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
}

func buildSnapshotStore(cfg *config.Config, log *logger.Logger) (ports.SnapshotStore, error) {
	switch cfg.Storage.Driver {
	case "postgres":
		database, err := db.NewPostgresConnection(cfg.Storage.Database)
		if err != nil {
			return nil, err
		}
		if err := db.RunMigrations(database); err != nil {
			return nil, err
		}
		log.Infow("storage_ready", "driver", "postgres")
		return db.NewSnapshotRepository(database, log), nil
	default:
		log.Infow("storage_ready", "driver", "file", "path", cfg.Storage.Path)
		return storage.NewFileStore(cfg.Storage.Path, log), nil
	}
}
