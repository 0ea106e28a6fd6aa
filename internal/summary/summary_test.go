package summary

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shineum/easysmtp/internal/email"
	"github.com/shineum/easysmtp/internal/mailer"
	"github.com/shineum/easysmtp/internal/options"
	"github.com/shineum/easysmtp/internal/stats"
	"github.com/shineum/easysmtp/internal/store"
)

type flags struct {
	disabled bool
}

func (f *flags) Bool(_ context.Context, group, key string) (bool, error) {
	if group == options.GroupGeneral && key == disabledKey {
		return f.disabled, nil
	}
	return false, nil
}

type captureSender struct {
	msgs []*email.Email
	err  error
}

func (c *captureSender) Send(_ context.Context, msg *email.Email) mailer.Result {
	c.msgs = append(c.msgs, msg)
	return mailer.Result{Err: c.err}
}

type fixture struct {
	task    *Task
	flags   *flags
	sender  *captureSender
	counter *stats.Counter
	store   store.Store
	now     time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		flags:  &flags{},
		sender: &captureSender{},
		store:  store.NewMemory(),
		now:    time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC),
	}
	f.counter = stats.NewCounter(f.store)
	f.task = New(Config{
		Store:      f.store,
		Flags:      f.flags,
		Counter:    f.counter,
		Sender:     f.sender,
		AdminEmail: "admin@example.com",
		SiteDomain: "example.com",
		Logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	f.task.now = func() time.Time { return f.now }
	return f
}

func TestRegister(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	ok, err := f.task.Register(ctx)
	require.NoError(t, err)
	assert.True(t, ok)

	s, found, err := f.task.Schedule(ctx)
	require.NoError(t, err)
	require.True(t, found)
	assert.NotEmpty(t, s.ID)
	assert.True(t, f.now.Add(DefaultInterval).Equal(s.NextRun), s.NextRun)

	ok, err = f.task.Register(ctx)
	require.NoError(t, err)
	assert.False(t, ok, "already scheduled")

	again, _, err := f.task.Schedule(ctx)
	require.NoError(t, err)
	assert.Equal(t, s.ID, again.ID)
}

func TestRegister_Disabled(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.flags.disabled = true

	ok, err := f.task.Register(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)

	_, found, err := f.task.Schedule(context.Background())
	require.NoError(t, err)
	assert.False(t, found)
}

func TestRun(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.counter.Record(ctx, true))
	require.NoError(t, f.counter.Record(ctx, true))
	require.NoError(t, f.counter.Record(ctx, false))

	_, err := f.task.Register(ctx)
	require.NoError(t, err)

	sent, err := f.task.Run(ctx)
	require.NoError(t, err)
	assert.False(t, sent, "not due yet")
	assert.Empty(t, f.sender.msgs)

	f.now = f.now.Add(DefaultInterval)
	sent, err = f.task.Run(ctx)
	require.NoError(t, err)
	assert.True(t, sent)

	require.Len(t, f.sender.msgs, 1)
	msg := f.sender.msgs[0]
	assert.Equal(t, []string{"admin@example.com"}, msg.To)
	assert.Contains(t, msg.Subject, "example.com")
	assert.True(t, strings.Contains(msg.TextBody, "Sent:   2"), msg.TextBody)
	assert.True(t, strings.Contains(msg.TextBody, "Failed: 1"), msg.TextBody)

	counts, err := f.counter.Snapshot(ctx)
	require.NoError(t, err)
	assert.Zero(t, counts.Sent)
	assert.Zero(t, counts.Failed)

	s, _, err := f.task.Schedule(ctx)
	require.NoError(t, err)
	assert.True(t, f.now.Add(DefaultInterval).Equal(s.NextRun), s.NextRun)
	require.NotNil(t, s.LastRun)
}

func TestRun_DisabledAfterRegistration(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	_, err := f.task.Register(ctx)
	require.NoError(t, err)

	f.flags.disabled = true
	f.now = f.now.Add(DefaultInterval)

	sent, err := f.task.Run(ctx)
	require.NoError(t, err)
	assert.False(t, sent)
	assert.Empty(t, f.sender.msgs)
}

func TestRun_SendFailureKeepsCounts(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	f.sender.err = errors.New("smtp down")

	require.NoError(t, f.counter.Record(ctx, true))
	_, err := f.task.Register(ctx)
	require.NoError(t, err)
	f.now = f.now.Add(DefaultInterval)

	sent, err := f.task.Run(ctx)
	require.Error(t, err)
	assert.False(t, sent)

	counts, err := f.counter.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, counts.Sent)
}

func TestSend_NoRecipient(t *testing.T) {
	t.Parallel()

	task := New(Config{Store: store.NewMemory(), Flags: &flags{}})
	assert.ErrorIs(t, task.Send(context.Background()), ErrNoRecipient)
}

func TestUnregister(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	_, err := f.task.Register(ctx)
	require.NoError(t, err)
	require.NoError(t, f.task.Unregister(ctx))

	_, found, err := f.task.Schedule(ctx)
	require.NoError(t, err)
	assert.False(t, found)
}
