package notify

import (
	"context"

	"github.com/ariefcatur/order-inventory/internal/events"
	"go.uber.org/zap"
)

// LogSender stands in for a mail provider.
type LogSender struct{ log *zap.Logger }

func NewLogSender(log *zap.Logger) *LogSender { return &LogSender{log: log} }

func (s *LogSender) Send(ctx context.Context, n events.EmailNotification) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.log.Info("EMAIL SENT",
		zap.String("to", n.RecipientEmail),
		zap.String("subject", n.Subject),
		zap.String("type", n.EventType),
	)
	return nil
}
