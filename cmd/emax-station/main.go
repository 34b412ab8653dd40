package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/sirupsen/logrus"

	httpapi "github.com/hweber/emax-station/internal/api/http"
	"github.com/hweber/emax-station/internal/config"
	"github.com/hweber/emax-station/internal/coordinator"
	"github.com/hweber/emax-station/internal/emax"
	"github.com/hweber/emax-station/internal/scheduler"
	"github.com/hweber/emax-station/internal/store"
)

func main() {
	if level, err := logrus.ParseLevel(os.Getenv("LOG_LEVEL")); err == nil {
		logrus.SetLevel(level)
	}

	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("failed to load config")
	}

	// Vendor session client, shared by the coordinator and the API layer.
	client := emax.NewClient(cfg.Email, cfg.Password, cfg.BaseURL, cfg.Timeout)
	defer client.Close()

	// Local observation history with configured retention.
	memStore := store.NewMemoryStore(cfg.StoreMaxHistory, cfg.StoreMaxAge)

	coord := coordinator.New(client, memStore)

	// First refresh is synchronous; starting with stale or default data is
	// not tolerated, and the failure mode tells the user whether their
	// password or their network is the problem.
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout)
	_, err = coord.Refresh(ctx)
	cancel()
	if err != nil {
		var re *coordinator.RefreshError
		if errors.As(err, &re) && re.Kind == coordinator.FailureAuth {
			logrus.WithError(err).Fatal("initial refresh failed: invalid credentials")
		}
		if errors.As(err, &re) && re.Kind == coordinator.FailureTimeout {
			logrus.WithError(err).Fatal("initial refresh failed: cannot reach vendor API")
		}
		logrus.WithError(err).Fatal("initial refresh failed")
	}

	sched := scheduler.New(coord, cfg.RefreshInterval(), cfg.Timeout)
	if err := sched.Start(); err != nil {
		logrus.WithError(err).Fatal("failed to start scheduler")
	}
	defer sched.Stop()

	app := fiber.New(fiber.Config{
		AppName:               "emax-station",
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
		WriteTimeout:          10 * time.Second,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
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
		state := "no_data"
		if coord.State() == coordinator.HasData {
			state = "has_data"
		}
		resp := fiber.Map{
			"status":  "ok",
			"service": "emax-station",
			"state":   state,
		}
		if re := coord.LastError(); re != nil {
			resp["lastRefreshError"] = re.Kind.String()
		}
		return c.JSON(resp)
	})

	httpapi.RegisterRoutes(app, httpapi.Options{
		Coordinator:     coord,
		Vendor:          client,
		Store:           memStore,
		TemperatureUnit: cfg.TemperatureDisplayUnit,
		RequestTimeout:  cfg.Timeout,
	})

	go func() {
		if err := app.Listen(":" + cfg.Port); err != nil {
			logrus.WithError(err).Error("fiber server stopped")
		}
	}()

	sigCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-sigCtx.Done()

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		logrus.WithError(err).Error("error during shutdown")
	}
}
