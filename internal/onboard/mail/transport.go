package mail

import (
	"context"
	"log/slog"
)

// Transport is the outbound email primitive. Real SMTP/API delivery lives
// behind this interface and is out of this subsystem's scope; a hung send
// must be bounded by the transport itself.
type Transport interface {
	Send(ctx context.Context, to, subject, htmlBody, textBody string) error
}

// LogTransport writes messages to the log instead of sending them. Used in
// development and as a safe default when no transport is configured.
type LogTransport struct {
	Logger *slog.Logger
}

func (t *LogTransport) Send(ctx context.Context, to, subject, htmlBody, textBody string) error {
	t.Logger.Info("email delivery (log transport)",
		slog.String("to", to),
		slog.String("subject", subject),
		slog.Int("html_bytes", len(htmlBody)),
		slog.Int("text_bytes", len(textBody)),
	)
	return nil
}
