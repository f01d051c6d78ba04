package main

import (
	"context"
	"log"
	"os"

	"github.com/ignite/domainwatch/internal/app"
	"github.com/ignite/domainwatch/internal/config"
	"github.com/ignite/domainwatch/internal/pkg/logger"
)

func main() {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config/config.yaml"
	}

	// Load configuration
	cfg, err := config.LoadFromEnv(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	app.ConfigureLogging(cfg.Log)

	ctx := context.Background()
	a, err := app.New(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to initialize: %v", err)
	}

	logger.Info("domainwatch starting",
		"provider", cfg.Availability.Provider,
		"mail_backend", cfg.Mail.Backend,
		"poll_interval", cfg.Polling.Interval().String(),
		"lookup_cache", a.Redis != nil,
	)

	if err := a.Run(ctx); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}
