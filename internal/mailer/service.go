package mailer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/shineum/easysmtp/internal/debuglog"
	"github.com/shineum/easysmtp/internal/email"
	"github.com/shineum/easysmtp/internal/options"
	"github.com/shineum/easysmtp/internal/provider"
	"github.com/shineum/easysmtp/internal/provider/gag"
	"github.com/shineum/easysmtp/internal/transport"
)

var (
	// ErrInvalidConfig is returned when settings cannot be loaded.
	ErrInvalidConfig = errors.New("invalid mail configuration")
	// ErrSendFailed wraps every provider failure.
	ErrSendFailed = errors.New("failed to send email")
	// ErrUnknownMailer is returned when no provider is registered for the
	// selected mailer.
	ErrUnknownMailer = errors.New("unknown mailer")
)

// SettingsSource loads the effective options.
type SettingsSource interface {
	Settings(ctx context.Context) (*options.Settings, error)
}

// Recorder counts delivery outcomes.
type Recorder interface {
	Record(ctx context.Context, sent bool) error
}

// DebugLog receives failed sends when the debug log option is on.
type DebugLog interface {
	Write(e debuglog.Entry) bool
}

// Result describes one send.
type Result struct {
	Mailer  string
	Outcome Outcome
	Err     error
}

// OK reports whether the message was handed off.
func (r Result) OK() bool {
	return r.Err == nil
}

// Config configures a Service.
type Config struct {
	Settings  SettingsSource
	Resolver  *Resolver
	Providers provider.Registry
	Stats     Recorder
	DebugLog  DebugLog
	Logger    *slog.Logger
}

// Service resolves and delivers messages.
type Service struct {
	settings  SettingsSource
	resolver  *Resolver
	providers provider.Registry
	stats     Recorder
	debug     DebugLog
	logger    *slog.Logger
}

// NewService creates a Service from cfg.
func NewService(cfg Config) *Service {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	resolver := cfg.Resolver
	if resolver == nil {
		resolver = &Resolver{}
	}
	providers := cfg.Providers
	if providers == nil {
		providers = provider.Registry{}
	}
	if _, ok := providers[gag.Name]; !ok {
		providers[gag.Name] = gag.New(logger)
	}
	return &Service{
		settings:  cfg.Settings,
		resolver:  resolver,
		providers: providers,
		stats:     cfg.Stats,
		debug:     cfg.DebugLog,
		logger:    logger,
	}
}

// Send resolves and delivers msg. Failures are returned in the Result and
// never panic or propagate past it.
func (s *Service) Send(ctx context.Context, msg *email.Email) Result {
	settings, err := s.settings.Settings(ctx)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to load mail settings", "error", err)
		return Result{Err: errors.Join(ErrInvalidConfig, err)}
	}

	t := transport.New(options.MailerMail, msg)
	outcome := s.resolver.Configure(settings, t)
	res := Result{Mailer: t.Mailer, Outcome: outcome}

	if outcome == OutcomeIncomplete || outcome == OutcomeDomainSkipped {
		s.logger.DebugContext(ctx, "mail settings not applied", "outcome", outcome.String())
	}

	p, ok := s.providers.Lookup(t.Mailer)
	if !ok {
		res.Err = fmt.Errorf("%w: %q", ErrUnknownMailer, t.Mailer)
		s.fail(ctx, settings, t, res.Err)
		return res
	}

	if err := p.Send(ctx, t); err != nil {
		res.Err = errors.Join(ErrSendFailed, err)
		s.fail(ctx, settings, t, err)
		return res
	}

	if outcome != OutcomeBlocked {
		s.record(ctx, true)
	}
	s.logger.InfoContext(ctx, "email sent",
		"mailer", t.Mailer,
		"from", t.From,
		"recipients", len(t.Recipients()),
		"outcome", outcome.String(),
	)
	return res
}

func (s *Service) fail(ctx context.Context, settings *options.Settings, t *transport.Transport, err error) {
	s.logger.ErrorContext(ctx, "email delivery failed",
		"mailer", t.Mailer,
		"from", t.From,
		"recipients", len(t.Recipients()),
		"error", err,
	)
	s.record(ctx, false)

	if s.debug == nil || !settings.Deprecated.DebugLogEnabled {
		return
	}
	ok := s.debug.Write(debuglog.Entry{
		Mailer:  t.Mailer,
		From:    t.From,
		To:      t.Recipients(),
		Subject: t.Message.Subject,
		Error:   err.Error(),
	})
	if !ok {
		s.logger.WarnContext(ctx, "debug log is not writable")
	}
}

func (s *Service) record(ctx context.Context, sent bool) {
	if s.stats == nil {
		return
	}
	if err := s.stats.Record(ctx, sent); err != nil {
		s.logger.WarnContext(ctx, "failed to record send stats", "error", err)
	}
}
