package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/wechange-eg/cosinnus-notifications/internal/pkg/logger"
)

// Start starts the background services (River workers consuming digest
// and cleanup jobs).
func (a *Application) Start(ctx context.Context) error {
	if a.DB != nil && a.DB.RiverClient != nil {
		if err := a.DB.RiverClient.Start(ctx); err != nil {
			return fmt.Errorf("start river client: %w", err)
		}
		logger.Info("River client started, digest jobs will now be consumed")
	}
	return nil
}

// Shutdown gracefully shuts down all application components. Sessions
// still in flight on the worker pools get drained before the pool stops.
func (a *Application) Shutdown() {
	shutdownCtx := context.Background()

	if a.DB != nil && a.DB.RiverClient != nil {
		if err := a.DB.RiverClient.Stop(shutdownCtx); err != nil {
			logger.Error("failed to stop river client", zap.Error(err))
		} else {
			logger.Info("River client stopped")
		}
	}

	if a.Pools != nil {
		a.Pools.Shutdown()
	}
	if a.DB != nil {
		a.DB.Close()
	}
}
