package smtp

import (
	"context"
	"errors"
	"io"
	"log/slog"

	"github.com/emersion/go-sasl"
	gosmtp "github.com/emersion/go-smtp"

	"github.com/shineum/easysmtp/internal/email"
	"github.com/shineum/easysmtp/internal/mailer"
	"github.com/shineum/easysmtp/internal/parser"
)

// Sender delivers a parsed submission.
type Sender interface {
	Send(ctx context.Context, msg *email.Email) mailer.Result
}

// backend creates one Session per connection.
type backend struct {
	ctx    context.Context
	auth   *Authenticator
	sender Sender
	logger *slog.Logger
}

func (b *backend) NewSession(c *gosmtp.Conn) (gosmtp.Session, error) {
	remote := ""
	if conn := c.Conn(); conn != nil {
		remote = conn.RemoteAddr().String()
	}
	return &Session{
		ctx:    b.ctx,
		auth:   b.auth,
		sender: b.sender,
		logger: b.logger.With("remote_addr", remote),
	}, nil
}

// Session is a single client connection. Each transaction collects the
// envelope and sends the message when DATA completes.
type Session struct {
	ctx    context.Context
	auth   *Authenticator
	sender Sender
	logger *slog.Logger

	user     string
	mailFrom string
	rcptTo   []string
}

func (s *Session) AuthMechanisms() []string {
	return s.auth.Mechanisms()
}

func (s *Session) Auth(mech string) (sasl.Server, error) {
	return s.auth.Server(mech, func(username string) {
		s.user = username
		s.logger.Debug("client authenticated", "user", username)
	})
}

func (s *Session) Mail(from string, _ *gosmtp.MailOptions) error {
	if s.auth.Enabled() && s.user == "" {
		return gosmtp.ErrAuthRequired
	}
	s.mailFrom = from
	s.rcptTo = nil
	return nil
}

func (s *Session) Rcpt(to string, _ *gosmtp.RcptOptions) error {
	s.rcptTo = append(s.rcptTo, to)
	return nil
}

func (s *Session) Data(r io.Reader) error {
	raw, err := io.ReadAll(r)
	if err != nil {
		if errors.Is(err, gosmtp.ErrDataTooLarge) {
			return gosmtp.ErrDataTooLarge
		}
		s.logger.Error("error reading DATA", "error", err)
		return err
	}

	msg, err := parser.Parse(raw)
	if err != nil {
		s.logger.Error("failed to parse message", "error", err)
		return &gosmtp.SMTPError{
			Code:         550,
			EnhancedCode: gosmtp.EnhancedCode{5, 6, 0},
			Message:      "Failed to process message",
		}
	}

	// The envelope fills in what the headers leave out.
	if msg.From.Email == "" {
		msg.From.Email = s.mailFrom
	}
	if len(msg.To) == 0 && len(msg.Cc) == 0 && len(msg.Bcc) == 0 {
		msg.To = s.rcptTo
	}

	res := s.sender.Send(s.ctx, msg)
	if res.Err != nil {
		s.logger.Error("delivery failed",
			"mailer", res.Mailer,
			"error", res.Err,
		)
		return &gosmtp.SMTPError{
			Code:         451,
			EnhancedCode: gosmtp.EnhancedCode{4, 3, 0},
			Message:      "Temporary failure, please try again later",
		}
	}

	s.logger.Info("message accepted",
		"mailer", res.Mailer,
		"outcome", res.Outcome.String(),
		"recipients", len(s.rcptTo),
	)
	return nil
}

func (s *Session) Reset() {
	s.mailFrom = ""
	s.rcptTo = nil
}

func (s *Session) Logout() error {
	return nil
}
