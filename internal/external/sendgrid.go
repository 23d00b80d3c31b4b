package external

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"upkeep/internal/types"
)

const sendGridDefaultURL = "https://api.sendgrid.com"

// SendGridClientConfig configures a SendGridClient.
type SendGridClientConfig struct {
	APIKey  string
	BaseURL string
	Logger  *slog.Logger
}

// SendGridClient delivers plain-text mail through the SendGrid v3 Mail Send
// API.
type SendGridClient struct {
	base    *BaseClient
	apiKey  string
	baseURL string
	logger  *slog.Logger
}

// NewSendGridClient creates a SendGridClient over base. A nil base gets a
// BaseClient with DefaultRetryPolicy and a 10 second timeout.
func NewSendGridClient(base *BaseClient, cfg SendGridClientConfig) *SendGridClient {
	if base == nil {
		base = NewBaseClient(nil, "sendgrid", DefaultRetryPolicy(), "upkeep/1.0")
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = sendGridDefaultURL
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &SendGridClient{
		base:    base,
		apiKey:  cfg.APIKey,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		logger:  logger,
	}
}

type sendGridMail struct {
	Personalizations []sendGridPersonalization `json:"personalizations"`
	From             sendGridAddress           `json:"from"`
	Subject          string                    `json:"subject"`
	Content          []sendGridContent         `json:"content"`
	CustomArgs       map[string]string         `json:"custom_args,omitempty"`
}

type sendGridPersonalization struct {
	To []sendGridAddress `json:"to"`
}

type sendGridAddress struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

type sendGridContent struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

type sendGridErrors struct {
	Errors []struct {
		Message string `json:"message"`
		Field   string `json:"field"`
	} `json:"errors"`
}

func buildSendGridMail(in types.SendInput) sendGridMail {
	mail := sendGridMail{
		Personalizations: []sendGridPersonalization{{To: []sendGridAddress{{Email: in.To}}}},
		From:             sendGridAddress{Email: in.From.Address, Name: in.From.Name},
		Subject:          in.Subject,
		Content:          []sendGridContent{{Type: "text/plain", Value: in.BodyText}},
	}
	if in.ReferenceID != "" {
		mail.CustomArgs = map[string]string{"reference_id": in.ReferenceID}
	}
	return mail
}

// Send posts the message and returns the X-Message-Id header of the 202
// response.
//
// A 403 means the recipient is suppressed and maps to upstream_email_blocked.
// 429 and 5xx are retried by BaseClient. Any other status maps to
// upstream_email_provider_unavailable.
func (s *SendGridClient) Send(ctx context.Context, input types.SendInput) (string, error) {
	payload, err := json.Marshal(buildSendGridMail(input))
	if err != nil {
		return "", types.NewAppError(types.ErrCodeInternalUnexpected, "failed to encode mail", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/v3/mail/send", bytes.NewReader(payload))
	if err != nil {
		return "", types.NewAppError(types.ErrCodeInternalUnexpected, "failed to build SendGrid request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.apiKey)

	resp, err := s.base.Do(req)
	if err != nil {
		var appErr *types.AppError
		if errors.As(err, &appErr) {
			return "", err
		}
		return "", types.NewAppError(types.ErrCodeUpstreamEmailProvider, "SendGrid request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusAccepted || resp.StatusCode == http.StatusOK {
		return resp.Header.Get("X-Message-Id"), nil
	}

	msg := readSendGridError(resp.Body)
	s.logger.WarnContext(ctx, "SendGrid rejected mail",
		"status", resp.StatusCode,
		"reference_id", input.ReferenceID,
		"error", msg,
	)
	if resp.StatusCode == http.StatusForbidden {
		return "", types.NewAppError(types.ErrCodeEmailBlocked, "SendGrid blocked delivery: "+msg, nil)
	}
	return "", types.NewAppError(types.ErrCodeUpstreamEmailProvider,
		fmt.Sprintf("SendGrid error (%d): %s", resp.StatusCode, msg), nil)
}

func readSendGridError(r io.Reader) string {
	body, err := io.ReadAll(io.LimitReader(r, 64<<10))
	if err != nil {
		return "unreadable response body"
	}
	var parsed sendGridErrors
	if json.Unmarshal(body, &parsed) == nil && len(parsed.Errors) > 0 {
		return parsed.Errors[0].Message
	}
	return strings.TrimSpace(string(body))
}

var _ EmailProvider = (*SendGridClient)(nil)
