package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	httpapi "github.com/i474232898/weerlive/internal/api/http"
	"github.com/i474232898/weerlive/internal/config"
	"github.com/i474232898/weerlive/internal/publisher"
	"github.com/i474232898/weerlive/internal/scheduler"
	"github.com/i474232898/weerlive/internal/sensor"
	"github.com/i474232898/weerlive/internal/store"
	"github.com/i474232898/weerlive/internal/weerlive"
)

func main() {
	level := new(slog.LevelVar)
	log := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(log)

	// Load configuration. A bad location or key aborts setup entirely.
	cfg, err := config.Load()
	if err != nil {
		log.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	level.Set(cfg.LogLevel)

	httpClient := &http.Client{
		Timeout: cfg.HTTPTimeout,
	}

	memStore := store.NewMemoryStore()

	client := weerlive.NewClient(cfg.Connection(), memStore,
		weerlive.WithHTTPClient(httpClient),
		weerlive.WithTimeout(cfg.HTTPTimeout),
		weerlive.WithLogger(log),
	)

	projection, err := sensor.New(client, cfg.Name, cfg.MonitoredConditions, log)
	if err != nil {
		log.Error("failed to set up sensors", "error", err)
		os.Exit(1)
	}

	sched := scheduler.New(client, cfg.UpdateInterval, cfg.HTTPTimeout, log)
	sched.OnRefresh(func(context.Context) {
		for _, r := range projection.Readings() {
			log.Debug("sensor state", "sensor", r.Name, "state", r.State)
		}
	})

	if cfg.MQTT.Broker != "" {
		mqttClient, err := publisher.Connect(cfg.MQTT, log)
		if err != nil {
			log.Error("failed to connect to mqtt broker", "error", err)
			os.Exit(1)
		}
		defer mqttClient.Disconnect(250)

		pub := publisher.New(mqttClient, projection, cfg.MQTT.TopicPrefix, log)
		sched.OnRefresh(func(ctx context.Context) {
			if err := pub.Publish(ctx); err != nil {
				log.Warn("mqtt publish failed", "error", err)
			}
		})
		log.Info("publishing sensors over mqtt", "broker", cfg.MQTT.Broker, "prefix", cfg.MQTT.TopicPrefix)
	}

	if err := sched.Start(); err != nil {
		log.Error("failed to start scheduler", "error", err)
		os.Exit(1)
	}
	defer sched.Stop()

	app := fiber.New(fiber.Config{
		AppName:               "weerlive",
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
		// manual refresh may wait for the full upstream timeout
		WriteTimeout: cfg.HTTPTimeout + 10*time.Second,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			// Centralized error response
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{
				"error":   true,
				"message": err.Error(),
			})
		},
	})

	app.Use(logger.New())
	app.Use(recover.New())

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "ok",
			"service": "weerlive",
			"hasData": client.HasData(),
		})
	})

	httpapi.RegisterRoutes(app, projection, client)

	go func() {
		if err := app.Listen(":" + cfg.Port); err != nil {
			log.Error("fiber server stopped", "error", err)
		}
	}()
	log.Info("weerlive started", "port", cfg.Port, "location", cfg.Connection().Location(), "sensors", cfg.MonitoredConditions)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Error("error during shutdown", "error", err)
	}
}
