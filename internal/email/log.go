package email

import (
	"context"
	"log/slog"
)

// LogSender writes messages to the log instead of delivering them. It stands in
// for Client when no Postmark token is configured.
type LogSender struct {
	logger *slog.Logger
}

func NewLogSender(logger *slog.Logger) *LogSender {
	return &LogSender{logger: logger}
}

func (s *LogSender) Send(ctx context.Context, to, subject, body string) error {
	s.logger.InfoContext(ctx, "email not sent (no transport configured)",
		"to", to,
		"subject", subject,
		"body", body,
	)
	return nil
}
