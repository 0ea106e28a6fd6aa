package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/shineum/easysmtp/internal/config"
	"github.com/shineum/easysmtp/internal/debuglog"
	"github.com/shineum/easysmtp/internal/mailer"
	"github.com/shineum/easysmtp/internal/migration"
	"github.com/shineum/easysmtp/internal/options"
	"github.com/shineum/easysmtp/internal/provider"
	"github.com/shineum/easysmtp/internal/provider/gag"
	"github.com/shineum/easysmtp/internal/provider/graph"
	"github.com/shineum/easysmtp/internal/provider/postmark"
	"github.com/shineum/easysmtp/internal/provider/sendmail"
	"github.com/shineum/easysmtp/internal/provider/ses"
	smtpprovider "github.com/shineum/easysmtp/internal/provider/smtp"
	"github.com/shineum/easysmtp/internal/secret"
	"github.com/shineum/easysmtp/internal/stats"
	"github.com/shineum/easysmtp/internal/store"
	"github.com/shineum/easysmtp/internal/store/redisstore"
	"github.com/shineum/easysmtp/internal/store/sqlstore"
	"github.com/shineum/easysmtp/internal/summary"
)

// app holds the wired components shared by every command.
type app struct {
	cfg       *config.Config
	logger    *slog.Logger
	store     store.Store
	closers   []func() error
	options   *options.Options
	providers provider.Registry
	counter   *stats.Counter
	debugLog  *debuglog.Log
	service   *mailer.Service
	summary   *summary.Task
}

func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logger}

	s, closer, err := openStore(ctx, cfg.Store)
	if err != nil {
		return nil, err
	}
	a.store = s
	if closer != nil {
		a.closers = append(a.closers, closer)
	}

	box, err := optionsBox(ctx, cfg.Secrets, s)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.options = options.New(s, box)

	a.providers, err = buildProviders(ctx, cfg, logger)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.counter = stats.NewCounter(s)
	a.debugLog = debuglog.New(cfg.DebugLog.Path)
	a.service = mailer.NewService(mailer.Config{
		Settings:  a.options,
		Resolver:  &mailer.Resolver{SiteDomain: cfg.Site.Domain},
		Providers: a.providers,
		Stats:     a.counter,
		DebugLog:  a.debugLog,
		Logger:    logger,
	})
	a.summary = summary.New(summary.Config{
		Store:      s,
		Flags:      a.options,
		Counter:    a.counter,
		Sender:     a.service,
		AdminEmail: cfg.Site.AdminEmail,
		SiteDomain: cfg.Site.Domain,
		Interval:   cfg.Summary.Interval,
		Logger:     logger,
	})
	return a, nil
}

func (a *app) migrator() *migration.Runner {
	return migration.NewRunner(migration.Config{
		Store:    a.store,
		Options:  a.options,
		Notifier: migration.LogNotifier{Logger: a.logger},
		Logger:   a.logger,
	})
}

// Close releases store connections.
func (a *app) Close() error {
	var errs []error
	for _, c := range a.closers {
		errs = append(errs, c())
	}
	return errors.Join(errs...)
}

// openStore selects the option store backend.
func openStore(ctx context.Context, cfg config.StoreConfig) (store.Store, func() error, error) {
	switch cfg.Backend {
	case config.StoreMemory:
		return store.NewMemory(), nil, nil
	case config.StoreFile:
		return store.NewFile(cfg.Path), nil, nil
	case config.StoreRedis:
		s, err := redisstore.Connect(ctx, cfg.RedisURL, cfg.RedisPrefix)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	case config.StoreMySQL:
		s, err := sqlstore.Open(cfg.MySQLDSN, cfg.Table)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	}
	return nil, nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
}

// optionsBox returns the box that seals secrets in the options document.
// A configured key wins over the one kept in the store.
func optionsBox(ctx context.Context, cfg config.SecretsConfig, s store.Store) (*secret.Box, error) {
	if cfg.Key != "" {
		key, err := secret.ParseKey(cfg.Key)
		if err != nil {
			return nil, fmt.Errorf("invalid secrets.key: %w", err)
		}
		return secret.NewBox(key), nil
	}
	key, err := secret.LoadOrCreateKey(ctx, s)
	if err != nil {
		return nil, err
	}
	return secret.NewBox(key), nil
}

// buildProviders registers every mailer that has the credentials it needs.
// The mail and smtp mailers are always available.
func buildProviders(ctx context.Context, cfg *config.Config, logger *slog.Logger) (provider.Registry, error) {
	providers := []provider.Provider{
		sendmail.New(cfg.Sendmail.Path, logger),
		smtpprovider.New(cfg.SMTP.Hostname, logger),
		gag.New(logger),
	}

	if cfg.SESConfigured() {
		p, err := ses.New(ctx, ses.Config{
			Region:           cfg.Providers.SES.Region,
			AccessKeyID:      cfg.Providers.SES.AccessKeyID,
			SecretAccessKey:  cfg.Providers.SES.SecretAccessKey,
			ConfigurationSet: cfg.Providers.SES.ConfigurationSet,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create SES provider: %w", err)
		}
		providers = append(providers, p)
	}

	if cfg.PostmarkConfigured() {
		p, err := postmark.New(postmark.Config{
			ServerToken:   cfg.Providers.Postmark.ServerToken,
			AccountToken:  cfg.Providers.Postmark.AccountToken,
			MessageStream: cfg.Providers.Postmark.MessageStream,
		}, logger)
		if err != nil {
			return nil, err
		}
		providers = append(providers, p)
	}

	if cfg.GraphConfigured() {
		providers = append(providers, graph.New(graph.Config{
			TenantID:     cfg.Providers.Graph.TenantID,
			ClientID:     cfg.Providers.Graph.ClientID,
			ClientSecret: cfg.Providers.Graph.ClientSecret,
			Mailbox:      cfg.Providers.Graph.Mailbox,
			SaveToSent:   cfg.Providers.Graph.SaveToSent,
		}, logger))
	}

	return provider.NewRegistry(providers...), nil
}
