// Package main runs a single digest pass outside the scheduler. Useful
// for backfills and for portals operated without the embedded River
// workers.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/wechange-eg/cosinnus-notifications/internal/app"
	"github.com/wechange-eg/cosinnus-notifications/internal/config"
	"github.com/wechange-eg/cosinnus-notifications/internal/domain"
	"github.com/wechange-eg/cosinnus-notifications/internal/pkg/logger"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		portalID  = flag.String("portal", "", "portal id to run the digest for")
		frequency = flag.String("frequency", "daily", "digest frequency: daily or weekly")
	)
	flag.Parse()

	if *portalID == "" {
		return fmt.Errorf("-portal is required")
	}
	freq, err := domain.ParseFrequency(*frequency)
	if err != nil {
		return err
	}
	if !freq.IsDigest() {
		return fmt.Errorf("frequency %s is not a digest frequency", freq)
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := logger.Init(cfg.Log.Level, cfg.Log.Format); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Sync()

	ctx := context.Background()
	application, err := app.Bootstrap(ctx, cfg)
	if err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}
	defer application.Shutdown()

	stats, err := application.Generator.Run(ctx, *portalID, freq)
	if err != nil {
		return fmt.Errorf("digest run: %w", err)
	}

	logger.Info("digest pass finished",
		zap.String("portal_id", *portalID),
		zap.String("frequency", freq.String()),
		zap.Int("events_seen", stats.EventsSeen),
		zap.Int("users_considered", stats.UsersConsidered),
		zap.Int("emails_sent", stats.EmailsSent),
		zap.Int("emails_failed", stats.EmailsFailed),
		zap.Int64("events_deleted", stats.EventsDeleted),
	)
	return nil
}
