// Package summary sends the periodic delivery report to the site admin.
package summary

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/shineum/easysmtp/internal/email"
	"github.com/shineum/easysmtp/internal/mailer"
	"github.com/shineum/easysmtp/internal/options"
	"github.com/shineum/easysmtp/internal/stats"
	"github.com/shineum/easysmtp/internal/store"
)

// ScheduleName is the store name of the schedule record.
const ScheduleName = "easy_wp_smtp_summary_report_task"

// DefaultInterval is one week.
const DefaultInterval = 7 * 24 * time.Hour

const disabledKey = "summary_report_email_disabled"

// ErrNoRecipient is returned when no admin address is configured.
var ErrNoRecipient = errors.New("no summary report recipient")

// Schedule is the persisted registration of the task.
type Schedule struct {
	ID       string        `json:"id"`
	Interval time.Duration `json:"interval"`
	NextRun  time.Time     `json:"next_run"`
	LastRun  *time.Time    `json:"last_run,omitempty"`
}

// Flags reads boolean options.
type Flags interface {
	Bool(ctx context.Context, group, key string) (bool, error)
}

// Counter is the source of the reported totals.
type Counter interface {
	Snapshot(ctx context.Context) (stats.Counts, error)
	Reset(ctx context.Context) (stats.Counts, error)
}

// Sender delivers the report.
type Sender interface {
	Send(ctx context.Context, msg *email.Email) mailer.Result
}

// Config configures a Task.
type Config struct {
	Store      store.Store
	Flags      Flags
	Counter    Counter
	Sender     Sender
	AdminEmail string
	SiteDomain string
	Interval   time.Duration
	Logger     *slog.Logger
}

// Task is the summary report job.
type Task struct {
	store    store.Store
	flags    Flags
	counter  Counter
	sender   Sender
	admin    string
	site     string
	interval time.Duration
	logger   *slog.Logger
	now      func() time.Time
}

// New creates a Task.
func New(cfg Config) *Task {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	interval := cfg.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Task{
		store:    cfg.Store,
		flags:    cfg.Flags,
		counter:  cfg.Counter,
		sender:   cfg.Sender,
		admin:    strings.TrimSpace(cfg.AdminEmail),
		site:     cfg.SiteDomain,
		interval: interval,
		logger:   logger,
		now:      time.Now,
	}
}

// Disabled reports whether the report is switched off.
func (t *Task) Disabled(ctx context.Context) (bool, error) {
	return t.flags.Bool(ctx, options.GroupGeneral, disabledKey)
}

// Schedule returns the stored registration.
func (t *Task) Schedule(ctx context.Context) (*Schedule, bool, error) {
	var s Schedule
	err := store.GetJSON(ctx, t.store, ScheduleName, &s)
	if errors.Is(err, store.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to load summary schedule: %w", err)
	}
	return &s, true, nil
}

// Register schedules the task unless it is disabled or already scheduled.
// It reports whether a new schedule was stored.
func (t *Task) Register(ctx context.Context) (bool, error) {
	disabled, err := t.Disabled(ctx)
	if err != nil {
		return false, err
	}
	if disabled {
		t.logger.DebugContext(ctx, "summary report disabled, not scheduling")
		return false, nil
	}

	if _, ok, err := t.Schedule(ctx); err != nil || ok {
		return false, err
	}

	s := Schedule{
		ID:       uuid.NewString(),
		Interval: t.interval,
		NextRun:  t.now().Add(t.interval),
	}
	if err := store.SetJSON(ctx, t.store, ScheduleName, s); err != nil {
		return false, fmt.Errorf("failed to store summary schedule: %w", err)
	}
	t.logger.InfoContext(ctx, "summary report scheduled", "id", s.ID, "next_run", s.NextRun)
	return true, nil
}

// Unregister removes the schedule.
func (t *Task) Unregister(ctx context.Context) error {
	return t.store.Delete(ctx, ScheduleName)
}

// Run sends the report when it is due. The disabled flag is checked again
// here since it may have changed after registration. It reports whether a
// report was sent.
func (t *Task) Run(ctx context.Context) (bool, error) {
	s, ok, err := t.Schedule(ctx)
	if err != nil || !ok {
		return false, err
	}
	if t.now().Before(s.NextRun) {
		return false, nil
	}

	disabled, err := t.Disabled(ctx)
	if err != nil {
		return false, err
	}
	if disabled {
		t.logger.InfoContext(ctx, "summary report disabled, skipping", "id", s.ID)
		return false, t.advance(ctx, s)
	}

	if err := t.Send(ctx); err != nil {
		return false, err
	}
	return true, t.advance(ctx, s)
}

// Send builds the report from the current counters, delivers it and starts
// a new counting period.
func (t *Task) Send(ctx context.Context) error {
	if t.admin == "" {
		return ErrNoRecipient
	}

	counts, err := t.counter.Snapshot(ctx)
	if err != nil {
		return err
	}

	res := t.sender.Send(ctx, t.report(counts))
	if res.Err != nil {
		return fmt.Errorf("failed to send summary report: %w", res.Err)
	}

	if _, err := t.counter.Reset(ctx); err != nil {
		return err
	}
	t.logger.InfoContext(ctx, "summary report sent",
		"to", t.admin,
		"sent", counts.Sent,
		"failed", counts.Failed,
	)
	return nil
}

func (t *Task) advance(ctx context.Context, s *Schedule) error {
	now := t.now()
	s.LastRun = &now
	s.NextRun = now.Add(s.Interval)
	if err := store.SetJSON(ctx, t.store, ScheduleName, s); err != nil {
		return fmt.Errorf("failed to store summary schedule: %w", err)
	}
	return nil
}

func (t *Task) report(c stats.Counts) *email.Email {
	site := t.site
	if site == "" {
		site = "your site"
	}
	total := c.Sent + c.Failed

	var b strings.Builder
	fmt.Fprintf(&b, "Email summary for %s\n", site)
	fmt.Fprintf(&b, "Period: %s to %s\n\n", c.Since.Format("2006-01-02"), t.now().Format("2006-01-02"))
	fmt.Fprintf(&b, "Total:  %d\n", total)
	fmt.Fprintf(&b, "Sent:   %d\n", c.Sent)
	fmt.Fprintf(&b, "Failed: %d\n", c.Failed)

	return &email.Email{
		To:       []string{t.admin},
		Subject:  fmt.Sprintf("Email summary for %s", site),
		TextBody: b.String(),
	}
}
