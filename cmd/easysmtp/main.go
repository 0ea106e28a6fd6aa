// Package main is the entry point for the easysmtp relay.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/shineum/easysmtp/internal/config"
	"github.com/shineum/easysmtp/internal/email"
	"github.com/shineum/easysmtp/internal/migration"
	"github.com/shineum/easysmtp/internal/smtp"
	smtptls "github.com/shineum/easysmtp/internal/tls"
)

const usage = `usage: easysmtp [-config file] [-env file] <command> [flags]

commands:
  serve        accept submissions and deliver them (default)
  migrate      carry legacy options over to the current layout
  test-email   send the stored test email
  clear-log    empty the debug log file
`

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		slog.Error("easysmtp failed", "error", err)
		os.Exit(1)
	}
}

func run(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("easysmtp", flag.ContinueOnError)
	fs.Usage = func() { fmt.Fprint(fs.Output(), usage) }
	configPath := fs.String("config", "", "path to YAML configuration file (optional)")
	envFile := fs.String("env", ".env", "path to a .env file (optional)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if err := config.LoadDotEnv(*envFile); err != nil {
		return err
	}
	cfg, err := loadConfig(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	setupLogger(cfg.Logging.Level)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	cmd, rest := "serve", []string(nil)
	if fs.NArg() > 0 {
		cmd, rest = fs.Arg(0), fs.Args()[1:]
	}

	a, err := newApp(ctx, cfg, slog.Default())
	if err != nil {
		return err
	}
	defer a.Close()

	switch cmd {
	case "serve":
		return serve(ctx, a)
	case "migrate":
		return migrate(ctx, a, rest, stdout)
	case "test-email":
		return testEmail(ctx, a, stdout)
	case "clear-log":
		if !a.debugLog.Clear() {
			return fmt.Errorf("failed to clear %s", a.debugLog.Path())
		}
		return nil
	default:
		fs.Usage()
		return fmt.Errorf("unknown command %q", cmd)
	}
}

// loadConfig loads configuration from the specified path (YAML + env override)
// or from environment variables only if no path is given.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFromFile(path)
	}
	return config.Load()
}

// setupLogger configures the global slog logger with JSON output and the
// specified log level.
func setupLogger(level string) {
	var logLevel slog.Level

	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})
	slog.SetDefault(slog.New(handler))
}

func serve(ctx context.Context, a *app) error {
	cfg := a.cfg

	if _, err := a.migrator().Run(ctx, false); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	var tlsMode string
	srvCfg := smtp.ServerConfig{
		ListenAddr:      cfg.SMTP.Listen,
		Hostname:        cfg.SMTP.Hostname,
		Sender:          a.service,
		AuthUsername:    cfg.SMTP.Username,
		AuthPassword:    cfg.SMTP.Password,
		MaxMessageBytes: cfg.SMTP.MaxMessageSize,
		MaxRecipients:   cfg.SMTP.MaxRecipients,
		Logger:          a.logger,
	}
	switch {
	case cfg.TLS.Disabled:
		tlsMode = "disabled"
	default:
		tlsConfig, err := smtptls.ServerConfig(cfg.TLS.CertFile, cfg.TLS.KeyFile, cfg.SMTP.Hostname, "127.0.0.1")
		if err != nil {
			return fmt.Errorf("failed to setup TLS: %w", err)
		}
		srvCfg.TLSConfig = tlsConfig
		tlsMode = "self-signed"
		if cfg.TLS.CertFile != "" {
			tlsMode = "file"
		}
	}

	if cfg.Site.AdminEmail != "" {
		a.summary.Start(ctx)
	}

	a.logger.Info("starting easysmtp",
		"listen", cfg.SMTP.Listen,
		"store", cfg.Store.Backend,
		"mailers", a.providers.Names(),
		"auth_enabled", cfg.AuthEnabled(),
		"tls_mode", tlsMode,
	)

	if err := smtp.New(srvCfg).ListenAndServe(ctx); err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	a.logger.Info("easysmtp stopped")
	return nil
}

func migrate(ctx context.Context, a *app, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	force := fs.Bool("force", false, "overwrite existing options")
	if err := fs.Parse(args); err != nil {
		return err
	}

	version, err := a.migrator().Run(ctx, *force)
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	fmt.Fprintf(stdout, "migration version %d (latest %d)\n", version, migration.LatestVersion)
	return nil
}

var errNoTestEmail = errors.New("no test email is configured")

func testEmail(ctx context.Context, a *app, stdout io.Writer) error {
	te, ok, err := a.options.TestEmail(ctx)
	if err != nil {
		return err
	}
	if !ok || strings.TrimSpace(te.To) == "" {
		return errNoTestEmail
	}

	msg := &email.Email{
		To:       splitRecipients(te.To),
		Subject:  te.Subject,
		TextBody: te.Message,
	}
	res := a.service.Send(ctx, msg)
	if res.Err != nil {
		return res.Err
	}
	fmt.Fprintf(stdout, "test email sent to %s via %s (%s)\n", te.To, res.Mailer, res.Outcome)
	return nil
}

func splitRecipients(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
