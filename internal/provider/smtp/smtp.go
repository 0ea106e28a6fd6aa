// Package smtp implements a Provider that relays through an upstream SMTP
// server using the connection fields resolved onto the transport.
package smtp

import (
	"context"
	"fmt"
	"log/slog"

	gomail "github.com/wneessen/go-mail"

	"github.com/shineum/easysmtp/internal/provider"
	"github.com/shineum/easysmtp/internal/render"
	tlsutil "github.com/shineum/easysmtp/internal/tls"
	"github.com/shineum/easysmtp/internal/transport"
)

// Name is the mailer name of the SMTP provider.
const Name = "smtp"

// Provider sends through the host named on each transport.
type Provider struct {
	logger *slog.Logger
	helo   string
}

// New creates an SMTP provider. helo is sent in EHLO; empty uses the
// library default.
func New(helo string, logger *slog.Logger) *Provider {
	if logger == nil {
		logger = slog.Default()
	}
	return &Provider{logger: logger, helo: helo}
}

// Send makes one delivery attempt.
func (p *Provider) Send(ctx context.Context, t *transport.Transport) error {
	if len(t.Recipients()) == 0 {
		return provider.ErrNoRecipients
	}

	m, err := render.Msg(t.Email())
	if err != nil {
		return fmt.Errorf("failed to build message: %w", err)
	}
	if t.Sender != "" {
		if err := m.EnvelopeFrom(t.Sender); err != nil {
			return fmt.Errorf("invalid envelope sender: %w", err)
		}
	}

	client, err := gomail.NewClient(t.Host, p.clientOptions(t)...)
	if err != nil {
		return fmt.Errorf("failed to create SMTP client: %w", err)
	}

	if t.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.Timeout)
		defer cancel()
	}

	p.logger.DebugContext(ctx, "sending via SMTP",
		"host", t.Host,
		"port", t.Port,
		"secure", t.SMTPSecure,
		"auth", t.SMTPAuth,
	)
	if err := client.DialAndSendWithContext(ctx, m); err != nil {
		return fmt.Errorf("SMTP delivery to %s:%d failed: %w", t.Host, t.Port, err)
	}
	return nil
}

func (p *Provider) Name() string {
	return Name
}

// clientOptions translates transport fields into client options. Implicit
// TLS for "ssl", mandatory STARTTLS for "tls", otherwise STARTTLS only when
// auto-TLS is on and the server offers it.
func (p *Provider) clientOptions(t *transport.Transport) []gomail.Option {
	opts := []gomail.Option{
		gomail.WithTLSConfig(tlsutil.ClientConfig(t.Host, t.SkipVerify)),
	}
	if t.Timeout > 0 {
		opts = append(opts, gomail.WithTimeout(t.Timeout))
	}
	if p.helo != "" {
		opts = append(opts, gomail.WithHELO(p.helo))
	}

	switch t.SMTPSecure {
	case transport.SecureSSL:
		opts = append(opts, gomail.WithSSL())
	case transport.SecureTLS:
		opts = append(opts, gomail.WithTLSPolicy(gomail.TLSMandatory))
	default:
		if t.SMTPAutoTLS {
			opts = append(opts, gomail.WithTLSPolicy(gomail.TLSOpportunistic))
		} else {
			opts = append(opts, gomail.WithTLSPolicy(gomail.NoTLS))
		}
	}

	if t.SMTPAuth {
		opts = append(opts,
			gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
			gomail.WithUsername(t.Username),
			gomail.WithPassword(t.Password),
		)
	}

	// The port goes last so no TLS option can replace it.
	if t.Port > 0 {
		opts = append(opts, gomail.WithPort(t.Port))
	}
	return opts
}
