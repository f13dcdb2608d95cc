package mail

import (
	"context"

	"go.uber.org/zap"

	"github.com/wechange-eg/cosinnus-notifications/internal/pkg/logger"
)

// LogSender logs mails instead of delivering them. Used when no SMTP host
// is configured, e.g. in development.
type LogSender struct{}

var _ Sender = LogSender{}

func (LogSender) Send(ctx context.Context, msg Message) error {
	logger.Info("outbound mail (log-only)",
		zap.String("to", msg.To),
		zap.String("subject", msg.Subject),
		zap.Int("body_bytes", len(msg.Body)),
		zap.Bool("html", msg.HTML),
	)
	return nil
}
