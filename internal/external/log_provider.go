package external

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"upkeep/internal/types"
)

// LogEmailProvider writes mail to the log instead of sending it. It backs
// EMAIL_PROVIDER=log for local runs.
type LogEmailProvider struct {
	logger *slog.Logger
}

// NewLogEmailProvider creates a LogEmailProvider.
func NewLogEmailProvider(logger *slog.Logger) *LogEmailProvider {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogEmailProvider{logger: logger}
}

// Send logs the message and returns a synthetic message ID.
func (p *LogEmailProvider) Send(ctx context.Context, input types.SendInput) (string, error) {
	id := "log_" + uuid.NewString()
	p.logger.InfoContext(ctx, "email (not sent)",
		"message_id", id,
		"to", input.To,
		"from", input.From.Address,
		"subject", input.Subject,
		"reference_id", input.ReferenceID,
		"body", input.BodyText,
	)
	return id, nil
}

var _ EmailProvider = (*LogEmailProvider)(nil)
