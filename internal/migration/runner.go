// Package migration carries 1.x installations over to the grouped options
// layout. Steps are numbered; the last applied number is persisted and a step
// only runs while the stored version is below it.
package migration

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/shineum/easysmtp/internal/legacy"
	"github.com/shineum/easysmtp/internal/options"
	"github.com/shineum/easysmtp/internal/store"
)

// VersionName is the store name of the applied migration version.
const VersionName = "easy_wp_smtp_migration_version"

// LatestVersion is the highest step shipped with this build.
const LatestVersion = 1

// Step is one numbered migration.
type Step struct {
	Version int
	Name    string
	Fn      func(ctx context.Context, force bool) error
}

// Notifier surfaces non-fatal problems to an administrator.
type Notifier interface {
	Notice(ctx context.Context, msg string)
}

// LogNotifier writes notices to a logger.
type LogNotifier struct {
	Logger *slog.Logger
}

func (n LogNotifier) Notice(ctx context.Context, msg string) {
	logger := n.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.WarnContext(ctx, "migration notice", "notice", msg)
}

// Config configures a Runner.
type Config struct {
	Store    store.Store
	Options  *options.Options
	Notifier Notifier
	Logger   *slog.Logger

	// Steps replaces the built-in steps when set.
	Steps []Step
	// Latest defaults to LatestVersion.
	Latest int
}

// Runner applies pending migration steps.
type Runner struct {
	store    store.Store
	opts     *options.Options
	legacy   *legacy.Reader
	notifier Notifier
	logger   *slog.Logger
	steps    map[int]Step
	latest   int
}

// NewRunner creates a Runner from cfg.
func NewRunner(cfg Config) *Runner {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	r := &Runner{
		store:    cfg.Store,
		opts:     cfg.Options,
		legacy:   legacy.NewReader(cfg.Store),
		notifier: cfg.Notifier,
		logger:   logger,
		latest:   cfg.Latest,
	}
	if r.notifier == nil {
		r.notifier = LogNotifier{Logger: logger}
	}
	if r.latest == 0 {
		r.latest = LatestVersion
	}

	steps := cfg.Steps
	if steps == nil {
		steps = []Step{{Version: 1, Name: "legacy options", Fn: r.migrateLegacyOptions}}
	}
	r.steps = make(map[int]Step, len(steps))
	for _, s := range steps {
		r.steps[s.Version] = s
	}
	return r
}

// Version returns the applied migration version, 0 when none.
func (r *Runner) Version(ctx context.Context) (int, error) {
	var v int
	if err := store.GetJSON(ctx, r.store, VersionName, &v); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to read migration version: %w", err)
	}
	return v, nil
}

// Run applies every step above the stored version and returns the version
// reached. A missing step stops the run without advancing past it; the next
// run tries again.
func (r *Runner) Run(ctx context.Context, force bool) (int, error) {
	current, err := r.Version(ctx)
	if err != nil {
		return 0, err
	}

	for v := current + 1; v <= r.latest; v++ {
		step, ok := r.steps[v]
		if !ok {
			r.notifier.Notice(ctx, fmt.Sprintf("migration step %d is missing, options were not fully upgraded", v))
			return current, nil
		}

		r.logger.InfoContext(ctx, "running migration step", "version", v, "step", step.Name, "force", force)
		if err := step.Fn(ctx, force); err != nil {
			return current, fmt.Errorf("migration step %d (%s): %w", v, step.Name, err)
		}
		if err := store.SetJSON(ctx, r.store, VersionName, v); err != nil {
			return current, fmt.Errorf("failed to record migration version %d: %w", v, err)
		}
		current = v
	}
	return current, nil
}

// migrateLegacyOptions converts the 1.x flat options and the saved test
// email. Existing grouped options are kept unless force is set.
func (r *Runner) migrateLegacyOptions(ctx context.Context, force bool) error {
	exists, err := r.opts.Exists(ctx)
	if err != nil {
		return err
	}
	if exists && !force {
		r.logger.InfoContext(ctx, "options already present, skipping legacy conversion")
		return nil
	}

	old, ok, err := r.legacy.Options(ctx)
	if err != nil {
		return err
	}
	if !ok {
		r.logger.InfoContext(ctx, "no legacy options found")
		return nil
	}

	password, err := r.legacyPassword(ctx, old)
	if err != nil {
		return err
	}
	if err := r.opts.Set(ctx, Convert(old, password)); err != nil {
		return err
	}
	return r.migrateTestEmail(ctx)
}

func (r *Runner) legacyPassword(ctx context.Context, old *legacy.Options) (string, error) {
	encrypted, err := r.legacy.PasswordEncrypted(ctx)
	if err != nil {
		return "", err
	}
	var dec Decrypter
	if encrypted {
		key, err := r.legacy.EncryptionKey(ctx)
		if err != nil {
			return "", err
		}
		dec = legacy.NewCryptor(key)
	}

	pass := DecodePassword(string(old.SMTP.Password.Value), encrypted, dec)
	if pass == "" && old.SMTP.Password.Present && old.SMTP.Password.Value != "" {
		r.logger.WarnContext(ctx, "legacy smtp password could not be recovered, stored empty")
	}
	return pass, nil
}

func (r *Runner) migrateTestEmail(ctx context.Context) error {
	tm, ok, err := r.legacy.TestMail(ctx)
	if err != nil || !ok {
		return err
	}
	return r.opts.SetTestEmail(ctx, options.TestEmail{
		To:      string(tm.To.Value),
		Subject: string(tm.Subject.Value),
		Message: string(tm.Message.Value),
	})
}
