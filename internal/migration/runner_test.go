package migration

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shineum/easysmtp/internal/legacy"
	"github.com/shineum/easysmtp/internal/options"
	"github.com/shineum/easysmtp/internal/store"
)

type recordingNotifier struct {
	mu      sync.Mutex
	notices []string
}

func (n *recordingNotifier) Notice(_ context.Context, msg string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notices = append(n.notices, msg)
}

func noEnv(string) (string, bool) { return "", false }

type fixture struct {
	store    *store.Memory
	opts     *options.Options
	notifier *recordingNotifier
}

func newFixture(t *testing.T, legacyDoc map[string]any) *fixture {
	t.Helper()
	mem := store.NewMemory()
	if legacyDoc != nil {
		require.NoError(t, store.SetJSON(context.Background(), mem, legacy.OptionsName, legacyDoc))
	}
	return &fixture{
		store:    mem,
		opts:     options.New(mem, nil).WithEnv(noEnv),
		notifier: &recordingNotifier{},
	}
}

func (f *fixture) runner(steps []Step, latest int) *Runner {
	return NewRunner(Config{
		Store:    f.store,
		Options:  f.opts,
		Notifier: f.notifier,
		Steps:    steps,
		Latest:   latest,
	})
}

func (f *fixture) raw(t *testing.T) string {
	t.Helper()
	raw, _, err := f.store.Get(context.Background(), options.OptionName)
	require.NoError(t, err)
	return string(raw)
}

var sampleLegacy = map[string]any{
	"from_email_field": "wordpress@example.com",
	"from_name_field":  "Example",
	"smtp_settings": map[string]any{
		"host":          "smtp.example.com",
		"port":          "465",
		"autentication": "yes",
		"username":      "mailer",
		"password":      b64("hunter2"),
	},
}

func TestRunner_MigratesLegacyOptions(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t, sampleLegacy)

	v, err := f.runner(nil, 0).Run(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, LatestVersion, v)

	s, err := f.opts.Settings(ctx)
	require.NoError(t, err)
	assert.Equal(t, options.MailerSMTP, s.Mail.Mailer)
	assert.Equal(t, "wordpress@example.com", s.Mail.FromEmail)
	assert.True(t, s.Mail.FromEmailForce)
	assert.Equal(t, "smtp.example.com", s.SMTP.Host)
	assert.Equal(t, 465, s.SMTP.Port)
	assert.True(t, s.SMTP.Auth)
	assert.False(t, s.SMTP.AutoTLS)
	assert.Equal(t, "hunter2", s.SMTP.Pass)

	stored, err := f.runner(nil, 0).Version(ctx)
	require.NoError(t, err)
	assert.Equal(t, LatestVersion, stored)
}

func TestRunner_Idempotent(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t, sampleLegacy)
	r := f.runner(nil, 0)

	_, err := r.Run(ctx, false)
	require.NoError(t, err)
	first := f.raw(t)

	// Changing the legacy source must not leak into a second run.
	require.NoError(t, store.SetJSON(ctx, f.store, legacy.OptionsName, map[string]any{"from_email_field": "changed@example.com"}))
	_, err = r.Run(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, first, f.raw(t))

	// Nor into a forced run once the version is recorded.
	_, err = r.Run(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, first, f.raw(t))
}

func TestRunner_ExistingOptionsSkipUnlessForced(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("not forced", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, sampleLegacy)
		require.NoError(t, f.opts.Set(ctx, options.Doc{options.GroupSMTP: {"host": "current.example.com"}}))

		v, err := f.runner(nil, 0).Run(ctx, false)
		require.NoError(t, err)
		assert.Equal(t, 1, v)

		host, err := f.opts.String(ctx, options.GroupSMTP, "host")
		require.NoError(t, err)
		assert.Equal(t, "current.example.com", host)
	})

	t.Run("forced", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, sampleLegacy)
		require.NoError(t, f.opts.Set(ctx, options.Doc{options.GroupSMTP: {"host": "current.example.com"}}))

		_, err := f.runner(nil, 0).Run(ctx, true)
		require.NoError(t, err)

		host, err := f.opts.String(ctx, options.GroupSMTP, "host")
		require.NoError(t, err)
		assert.Equal(t, "smtp.example.com", host)
	})
}

func TestRunner_NoLegacyOptions(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t, nil)

	v, err := f.runner(nil, 0).Run(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, 1, v)

	exists, err := f.opts.Exists(ctx)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestRunner_EmptySMTPSettingsArray(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t, map[string]any{
		"from_email_field": "a@example.com",
		"from_name_field":  "Site",
		"smtp_settings":    []any{},
	})

	v, err := f.runner(nil, 0).Run(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, LatestVersion, v)

	s, err := f.opts.Settings(ctx)
	require.NoError(t, err)
	assert.Equal(t, "a@example.com", s.Mail.FromEmail)
	assert.Empty(t, s.SMTP.Host)
	assert.Empty(t, s.SMTP.Pass)
}

func TestRunner_MissingStep(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t, nil)

	var ran []int
	step := func(v int) Step {
		return Step{Version: v, Name: "test", Fn: func(context.Context, bool) error {
			ran = append(ran, v)
			return nil
		}}
	}

	v, err := f.runner([]Step{step(1), step(3)}, 3).Run(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, 1, v)
	assert.Equal(t, []int{1}, ran)
	require.Len(t, f.notifier.notices, 1)
	assert.Contains(t, f.notifier.notices[0], "step 2")

	// A later build that ships step 2 picks up where the last run stopped.
	v, err = f.runner([]Step{step(1), step(2), step(3)}, 3).Run(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, 3, v)
	assert.Equal(t, []int{1, 2, 3}, ran)
}

func TestRunner_EncryptedPassword(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	stored, err := legacy.NewCryptor("site-key").Encrypt("from-cipher")
	require.NoError(t, err)

	f := newFixture(t, map[string]any{
		"from_email_field": "a@example.com",
		"from_name_field":  "A",
		"smtp_settings":    map[string]any{"password": stored},
	})
	require.NoError(t, store.SetJSON(ctx, f.store, legacy.PassEncryptedName, "1"))
	require.NoError(t, store.SetJSON(ctx, f.store, legacy.EncryptionKeyName, "site-key"))

	_, err = f.runner(nil, 0).Run(ctx, false)
	require.NoError(t, err)

	pass, err := f.opts.String(ctx, options.GroupSMTP, "pass")
	require.NoError(t, err)
	assert.Equal(t, "from-cipher", pass)
}

func TestRunner_MigratesTestEmail(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t, sampleLegacy)
	require.NoError(t, store.SetJSON(ctx, f.store, legacy.TestMailName, map[string]any{
		"swpsmtp_to":      "admin@example.com",
		"swpsmtp_subject": "Testing",
	}))

	_, err := f.runner(nil, 0).Run(ctx, false)
	require.NoError(t, err)

	te, ok, err := f.opts.TestEmail(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, options.TestEmail{To: "admin@example.com", Subject: "Testing", Message: ""}, *te)
}
