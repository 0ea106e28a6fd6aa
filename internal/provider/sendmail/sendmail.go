// Package sendmail implements the default "mail" mailer by piping messages
// to the local sendmail binary.
package sendmail

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	gomail "github.com/wneessen/go-mail"

	"github.com/shineum/easysmtp/internal/provider"
	"github.com/shineum/easysmtp/internal/render"
	"github.com/shineum/easysmtp/internal/transport"
)

// Name is the mailer name of the sendmail provider.
const Name = "mail"

// DefaultPath is used when no binary is configured.
const DefaultPath = "/usr/sbin/sendmail"

// Provider hands messages to sendmail.
type Provider struct {
	path   string
	logger *slog.Logger
}

// New creates a sendmail provider for the binary at path.
func New(path string, logger *slog.Logger) *Provider {
	if path == "" {
		path = DefaultPath
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Provider{path: path, logger: logger}
}

// Send runs sendmail once for the message.
func (p *Provider) Send(ctx context.Context, t *transport.Transport) error {
	if len(t.Recipients()) == 0 {
		return provider.ErrNoRecipients
	}

	m, err := render.Msg(t.Email())
	if err != nil {
		return fmt.Errorf("failed to build message: %w", err)
	}
	// sendmail -t takes recipients from the headers and strips Bcc itself.
	if bcc := t.BCC(); len(bcc) > 0 {
		m.SetGenHeader(gomail.Header("Bcc"), strings.Join(bcc, ", "))
	}

	var args []string
	if sender := t.Envelope(); sender != "" {
		args = append(args, "-f", sender)
	}

	if t.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.Timeout)
		defer cancel()
	}

	p.logger.DebugContext(ctx, "sending via sendmail", "path", p.path, "recipients", len(t.Recipients()))
	if err := m.WriteToSendmailWithContext(ctx, p.path, args...); err != nil {
		return fmt.Errorf("sendmail failed: %w", err)
	}
	return nil
}

func (p *Provider) Name() string {
	return Name
}
