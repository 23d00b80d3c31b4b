package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
)

// ValidationResult is the outcome of checking one operator-supplied value.
type ValidationResult struct {
	Valid   bool
	Message string
}

// HTTPClient is satisfied by *http.Client.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// DatabaseConnector opens and closes one connection to prove a DSN works.
type DatabaseConnector interface {
	Connect(ctx context.Context, dsn string) error
}

// PgxConnector connects with pgx.
type PgxConnector struct{}

func (PgxConnector) Connect(ctx context.Context, dsn string) error {
	conn, err := pgx.Connect(ctx, dsn)
	if err != nil {
		return err
	}
	return conn.Close(ctx)
}

const (
	validateTimeout        = 15 * time.Second
	defaultSendGridBaseURL = "https://api.sendgrid.com"
	// requiredSendGridScope is what the notification worker needs.
	requiredSendGridScope = "mail.send"
)

// Validator probes values before they are stored.
type Validator struct {
	httpClient      HTTPClient
	dbConn          DatabaseConnector
	sendGridBaseURL string
}

// NewValidator uses a real HTTP client and pgx.
func NewValidator() *Validator {
	return NewValidatorWithDeps(&http.Client{Timeout: 10 * time.Second}, PgxConnector{}, defaultSendGridBaseURL)
}

// NewValidatorWithDeps is used by tests.
func NewValidatorWithDeps(httpClient HTTPClient, dbConn DatabaseConnector, sendGridBaseURL string) *Validator {
	return &Validator{
		httpClient:      httpClient,
		dbConn:          dbConn,
		sendGridBaseURL: strings.TrimRight(sendGridBaseURL, "/"),
	}
}

// ValidateDatabaseURL checks the URL shape, then opens a connection.
func (v *Validator) ValidateDatabaseURL(ctx context.Context, rawURL string) ValidationResult {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return ValidationResult{Message: "database URL must not be empty"}
	}
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return ValidationResult{Message: fmt.Sprintf("invalid URL format: %v", err)}
	}
	if parsed.Scheme != "postgres" && parsed.Scheme != "postgresql" {
		return ValidationResult{Message: fmt.Sprintf("expected postgres:// or postgresql:// scheme, got %q", parsed.Scheme)}
	}
	if parsed.Hostname() == "" {
		return ValidationResult{Message: "database URL has no host"}
	}
	if _, err := pgx.ParseConfig(rawURL); err != nil {
		return ValidationResult{Message: fmt.Sprintf("invalid connection string: %v", err)}
	}

	connCtx, cancel := context.WithTimeout(ctx, validateTimeout)
	defer cancel()
	if err := v.dbConn.Connect(connCtx, rawURL); err != nil {
		return ValidationResult{Message: fmt.Sprintf("connection failed: %v", err)}
	}
	return ValidationResult{
		Valid:   true,
		Message: fmt.Sprintf("database connection verified (host=%s)", parsed.Hostname()),
	}
}

// ValidateSendGridKey lists the key's scopes and requires mail.send.
func (v *Validator) ValidateSendGridKey(ctx context.Context, key string) ValidationResult {
	key = strings.TrimSpace(key)
	if key == "" {
		return ValidationResult{Message: "SendGrid API key must not be empty"}
	}
	if !strings.HasPrefix(key, "SG.") {
		return ValidationResult{Message: "SendGrid API key should start with 'SG.'"}
	}

	probeCtx, cancel := context.WithTimeout(ctx, validateTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(probeCtx, http.MethodGet, v.sendGridBaseURL+"/v3/scopes", nil)
	if err != nil {
		return ValidationResult{Message: fmt.Sprintf("failed to create request: %v", err)}
	}
	req.Header.Set("Authorization", "Bearer "+key)
	req.Header.Set("User-Agent", "upkeep-bootstrap/1.0")

	resp, err := v.httpClient.Do(req)
	if err != nil {
		return ValidationResult{Message: fmt.Sprintf("SendGrid API probe failed: %v", err)}
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return ValidationResult{Message: fmt.Sprintf("SendGrid API returned HTTP %d: key is invalid or revoked", resp.StatusCode)}
	case resp.StatusCode != http.StatusOK:
		return ValidationResult{Message: fmt.Sprintf("SendGrid API returned HTTP %d: %s", resp.StatusCode, truncate(body, 200))}
	}

	var scopes struct {
		Scopes []string `json:"scopes"`
	}
	if err := json.Unmarshal(body, &scopes); err != nil {
		return ValidationResult{Message: "SendGrid API returned an unreadable scopes response"}
	}
	if !slices.Contains(scopes.Scopes, requiredSendGridScope) {
		return ValidationResult{Message: fmt.Sprintf("SendGrid API key lacks the %s scope", requiredSendGridScope)}
	}
	return ValidationResult{Valid: true, Message: "SendGrid API key verified (mail.send granted)"}
}

func truncate(body []byte, n int) string {
	s := strings.TrimSpace(string(body))
	if len(s) > n {
		return s[:n] + "..."
	}
	return s
}
