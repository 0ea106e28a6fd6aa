package smtp

import (
	"context"
	"crypto/tls"
	"log/slog"
	"net"
	"sync"
	"time"

	gosmtp "github.com/emersion/go-smtp"
)

// shutdownTimeout is the maximum time to wait for in-flight connections
// during graceful shutdown.
const shutdownTimeout = 30 * time.Second

const (
	idleTimeout           = 60 * time.Second
	defaultMaxMessageSize = 10 * 1024 * 1024
	defaultMaxRecipients  = 100
)

// ServerConfig holds the configuration for an SMTP server.
type ServerConfig struct {
	// ListenAddr is the address to listen on (e.g., ":2525").
	ListenAddr string

	// Hostname is the server hostname used in the greeting.
	Hostname string

	// Sender receives every accepted message.
	Sender Sender

	// TLSConfig enables STARTTLS when set.
	TLSConfig *tls.Config

	// AuthUsername and AuthPassword configure SMTP AUTH.
	// If both are empty, authentication is not required.
	AuthUsername string
	AuthPassword string

	MaxMessageBytes int64
	MaxRecipients   int

	Logger *slog.Logger
}

// Server accepts submissions over SMTP.
type Server struct {
	config ServerConfig
	auth   *Authenticator
	logger *slog.Logger

	mu       sync.Mutex
	listener net.Listener
}

// New creates a new SMTP Server with the given configuration.
func New(cfg ServerConfig) *Server {
	if cfg.Hostname == "" {
		cfg.Hostname = "localhost"
	}
	if cfg.MaxMessageBytes <= 0 {
		cfg.MaxMessageBytes = defaultMaxMessageSize
	}
	if cfg.MaxRecipients <= 0 {
		cfg.MaxRecipients = defaultMaxRecipients
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Server{
		config: cfg,
		auth:   NewAuthenticator(cfg.AuthUsername, cfg.AuthPassword),
		logger: logger,
	}
}

// ListenAndServe starts the SMTP server and blocks until the context is
// cancelled. On cancellation it stops accepting connections and waits up to
// shutdownTimeout for in-flight sessions.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.ListenAddr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	srv := gosmtp.NewServer(&backend{
		ctx:    ctx,
		auth:   s.auth,
		sender: s.config.Sender,
		logger: s.logger,
	})
	srv.Domain = s.config.Hostname
	srv.ReadTimeout = idleTimeout
	srv.WriteTimeout = idleTimeout
	srv.MaxMessageBytes = s.config.MaxMessageBytes
	srv.MaxRecipients = s.config.MaxRecipients
	srv.TLSConfig = s.config.TLSConfig
	srv.AllowInsecureAuth = s.config.TLSConfig == nil

	s.logger.Info("SMTP server listening",
		"addr", ln.Addr().String(),
		"auth_enabled", s.auth.Enabled(),
		"tls_enabled", s.config.TLSConfig != nil,
	)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Info("shutting down SMTP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		s.logger.Warn("shutdown timeout reached, forcing close", "error", err)
		_ = srv.Close()
	} else {
		s.logger.Info("all sessions completed")
	}
	<-errCh
	return nil
}

// Addr returns the listener address, or empty string if not listening.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return ""
}
