package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/alexmeckes/SUMO-chatbot/api"
	"github.com/alexmeckes/SUMO-chatbot/internal/app"
	"github.com/alexmeckes/SUMO-chatbot/internal/config"
	"github.com/alexmeckes/SUMO-chatbot/internal/log"
)

// runServe initializes the application and starts the HTTP API server.
func runServe(logger log.Logger) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("validating config: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger.Info("starting server", "version", AppVersion)

	a, err := app.Setup(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initializing application: %w", err)
	}
	defer func() {
		if closeErr := a.Close(); closeErr != nil {
			logger.Warn("shutdown error", "error", closeErr)
		}
	}()

	server := api.NewServer(api.Config{
		Bot:         a.Bot,
		Sessions:    a.Sessions,
		Articles:    app.NewArticles(a.Retriever, a.KB),
		Status:      app.NewStatus(cfg.FullModelName(), a.Index, a.Sessions),
		Pinger:      a.DBPool,
		CORSOrigins: cfg.CORSOrigins,
		TrustProxy:  cfg.TrustProxy,
		Logger:      logger,
	})

	return server.Run(ctx, cfg.ListenAddr)
}
