// Package graph implements the "outlook" mailer: delivery through the
// Microsoft Graph sendMail API with client-credentials authentication.
package graph

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/shineum/easysmtp/internal/provider"
	"github.com/shineum/easysmtp/internal/transport"
)

// Name is the mailer name of the Graph provider.
const Name = "outlook"

// Config holds the Azure application and mailbox used to send.
type Config struct {
	TenantID     string
	ClientID     string
	ClientSecret string
	// Mailbox is the user whose sendMail endpoint is called.
	Mailbox    string
	SaveToSent bool
}

// Provider sends via Microsoft Graph.
type Provider struct {
	cfg        Config
	graphURL   string
	httpClient *http.Client
	token      *tokenCache
	logger     *slog.Logger
}

// New creates a Provider against the public Microsoft endpoints.
func New(cfg Config, logger *slog.Logger) *Provider {
	tokenURL := fmt.Sprintf("https://login.microsoftonline.com/%s/oauth2/v2.0/token", url.PathEscape(cfg.TenantID))
	graphURL := fmt.Sprintf("https://graph.microsoft.com/v1.0/users/%s/sendMail", url.PathEscape(cfg.Mailbox))
	return newWithEndpoints(cfg, graphURL, tokenURL, &http.Client{}, logger)
}

func newWithEndpoints(cfg Config, graphURL, tokenURL string, client *http.Client, logger *slog.Logger) *Provider {
	if logger == nil {
		logger = slog.Default()
	}
	return &Provider{
		cfg:        cfg,
		graphURL:   graphURL,
		httpClient: client,
		token:      newTokenCache(tokenURL, cfg.ClientID, cfg.ClientSecret, client),
		logger:     logger,
	}
}

// Send makes one sendMail call. A 401 drops the cached token so the next
// send authenticates again.
func (p *Provider) Send(ctx context.Context, t *transport.Transport) error {
	if len(t.Recipients()) == 0 {
		return provider.ErrNoRecipients
	}

	if t.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.Timeout)
		defer cancel()
	}

	body, err := json.Marshal(buildSendMailRequest(t.Email(), p.cfg.SaveToSent))
	if err != nil {
		return fmt.Errorf("failed to marshal request body: %w", err)
	}

	token, err := p.token.Token(ctx)
	if err != nil {
		return fmt.Errorf("failed to get access token: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.graphURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("Graph API request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusAccepted || resp.StatusCode == http.StatusOK {
		p.logger.DebugContext(ctx, "sent via Graph", "mailbox", p.cfg.Mailbox)
		return nil
	}
	if resp.StatusCode == http.StatusUnauthorized {
		p.token.Invalidate()
	}
	return responseError(resp)
}

func (p *Provider) Name() string {
	return Name
}

// StatusError is a non-success response from the Graph API.
type StatusError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *StatusError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("Graph API error (HTTP %d, %s): %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("Graph API error (HTTP %d): %s", e.StatusCode, e.Message)
}

func responseError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	var er errorResponse
	if err := json.Unmarshal(raw, &er); err == nil && er.Error.Message != "" {
		return &StatusError{StatusCode: resp.StatusCode, Code: er.Error.Code, Message: er.Error.Message}
	}
	return &StatusError{StatusCode: resp.StatusCode, Message: string(raw)}
}
