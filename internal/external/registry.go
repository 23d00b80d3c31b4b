package external

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"upkeep/internal/config"
)

// NewEmailProvider returns the provider selected by EMAIL_PROVIDER. The
// SendGrid client gets a 10 second HTTP timeout.
func NewEmailProvider(cfg config.EmailConfig, logger *slog.Logger) (EmailProvider, error) {
	if logger == nil {
		logger = slog.Default()
	}

	switch cfg.Provider {
	case "", "log":
		logger.Info("email provider: log only")
		return NewLogEmailProvider(logger.With("client", "log-email")), nil
	case "sendgrid":
		if !cfg.SendGridAPIKey.IsSet() {
			return nil, fmt.Errorf("sendgrid provider requires SENDGRID_API_KEY")
		}
		base := NewBaseClient(&http.Client{Timeout: 10 * time.Second}, "sendgrid", DefaultRetryPolicy(), "upkeep/1.0")
		return NewSendGridClient(base, SendGridClientConfig{
			APIKey:  cfg.SendGridAPIKey.Unmask(),
			BaseURL: cfg.SendGridURL,
			Logger:  logger.With("client", "sendgrid"),
		}), nil
	default:
		return nil, fmt.Errorf("unknown email provider %q", cfg.Provider)
	}
}
