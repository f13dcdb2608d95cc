package testutil

import "github.com/wechange-eg/cosinnus-notifications/internal/pkg/logger"

// InitLogger initializes the global logger for tests. Safe to call from
// several test packages; Init is idempotent.
func InitLogger() {
	_ = logger.Init("debug", "console")
}
