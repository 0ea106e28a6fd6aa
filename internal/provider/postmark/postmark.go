// Package postmark implements a Provider backed by Postmark's transactional
// email API.
package postmark

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mrz1836/postmark"

	"github.com/shineum/easysmtp/internal/provider"
	"github.com/shineum/easysmtp/internal/render"
	"github.com/shineum/easysmtp/internal/transport"
)

// Name is the mailer name of the Postmark provider.
const Name = "postmark"

// ErrInvalidConfig is returned by New when a required setting is missing.
var ErrInvalidConfig = errors.New("invalid postmark configuration")

// Config holds Postmark credentials.
type Config struct {
	ServerToken   string
	AccountToken  string
	MessageStream string
}

// EmailSender is the part of the Postmark client the provider uses.
type EmailSender interface {
	SendEmail(ctx context.Context, email postmark.Email) (postmark.EmailResponse, error)
}

// Provider sends through Postmark.
type Provider struct {
	client EmailSender
	stream string
	logger *slog.Logger
}

// New creates a Provider. A server token is required.
func New(cfg Config, logger *slog.Logger) (*Provider, error) {
	if cfg.ServerToken == "" {
		return nil, fmt.Errorf("%w: server token is required", ErrInvalidConfig)
	}
	return NewWithClient(postmark.NewClient(cfg.ServerToken, cfg.AccountToken), cfg.MessageStream, logger), nil
}

// NewWithClient creates a Provider around an existing client.
func NewWithClient(client EmailSender, stream string, logger *slog.Logger) *Provider {
	if logger == nil {
		logger = slog.Default()
	}
	return &Provider{client: client, stream: stream, logger: logger}
}

// Send makes one API call. A response carrying a Postmark error code is a
// failure even though the HTTP call succeeded.
func (p *Provider) Send(ctx context.Context, t *transport.Transport) error {
	if len(t.Recipients()) == 0 {
		return provider.ErrNoRecipients
	}

	if t.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.Timeout)
		defer cancel()
	}

	resp, err := p.client.SendEmail(ctx, p.buildEmail(t))
	if err != nil {
		return fmt.Errorf("postmark request failed: %w", err)
	}
	if resp.ErrorCode > 0 {
		return fmt.Errorf("postmark error: %d - %s", resp.ErrorCode, resp.Message)
	}
	p.logger.DebugContext(ctx, "sent via Postmark", "message_id", resp.MessageID)
	return nil
}

func (p *Provider) Name() string {
	return Name
}

func (p *Provider) buildEmail(t *transport.Transport) postmark.Email {
	msg := t.Email()
	out := postmark.Email{
		From:          render.Format(msg.From),
		To:            strings.Join(msg.To, ","),
		Cc:            strings.Join(msg.Cc, ","),
		Bcc:           strings.Join(msg.Bcc, ","),
		ReplyTo:       render.FormatList(msg.ReplyTo),
		Subject:       msg.Subject,
		TextBody:      msg.TextBody,
		HTMLBody:      msg.HtmlBody,
		MessageStream: p.stream,
	}
	for _, att := range msg.Attachments {
		out.Attachments = append(out.Attachments, postmark.Attachment{
			Name:        att.Filename,
			Content:     base64.StdEncoding.EncodeToString(att.Content),
			ContentType: att.ContentType,
		})
	}
	return out
}
