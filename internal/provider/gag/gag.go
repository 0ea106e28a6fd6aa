// Package gag implements a Provider that accepts and discards every message.
// It replaces the configured mailer when the site is not allowed to send.
package gag

import (
	"context"
	"log/slog"

	"github.com/shineum/easysmtp/internal/transport"
)

// Name is the mailer name of the gag provider.
const Name = "gag"

// Provider drops messages.
type Provider struct {
	logger *slog.Logger
}

// New creates a gag provider.
func New(logger *slog.Logger) *Provider {
	if logger == nil {
		logger = slog.Default()
	}
	return &Provider{logger: logger}
}

func (p *Provider) Send(ctx context.Context, t *transport.Transport) error {
	p.logger.InfoContext(ctx, "message suppressed",
		"from", t.From,
		"recipients", len(t.Recipients()),
		"subject", t.Message.Subject,
	)
	return nil
}

func (p *Provider) Name() string {
	return Name
}
