package sendmail

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shineum/easysmtp/internal/email"
	"github.com/shineum/easysmtp/internal/provider"
	"github.com/shineum/easysmtp/internal/transport"
)

// fakeSendmail writes a script that records its stdin and arguments.
func fakeSendmail(t *testing.T, exitCode int) (bin, out string) {
	t.Helper()
	dir := t.TempDir()
	out = filepath.Join(dir, "message.eml")
	bin = filepath.Join(dir, "sendmail")
	script := fmt.Sprintf("#!/bin/sh\ncat > %q\necho \"$@\" > %q\nexit %d\n", out, out+".args", exitCode)
	require.NoError(t, os.WriteFile(bin, []byte(script), 0o755))
	return bin, out
}

func newTransport() *transport.Transport {
	tr := transport.New(Name, &email.Email{
		From:     email.Address{Email: "site@example.com", Name: "Site"},
		To:       []string{"to@example.com"},
		Subject:  "Local delivery",
		TextBody: "via sendmail",
	})
	tr.AddBCC("audit@example.com")
	return tr
}

func TestProvider_Send(t *testing.T) {
	t.Parallel()

	bin, out := fakeSendmail(t, 0)
	require.NoError(t, New(bin, nil).Send(context.Background(), newTransport()))

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Contains(t, string(data), "Subject: Local delivery")
	assert.Contains(t, string(data), "Bcc: audit@example.com")
	assert.Contains(t, string(data), "via sendmail")

	args, err := os.ReadFile(out + ".args")
	require.NoError(t, err)
	assert.Contains(t, string(args), "-t")
	assert.Contains(t, string(args), "-f site@example.com")
}

func TestProvider_SendFailure(t *testing.T) {
	t.Parallel()

	bin, _ := fakeSendmail(t, 75)
	require.Error(t, New(bin, nil).Send(context.Background(), newTransport()))
}

func TestProvider_NoRecipients(t *testing.T) {
	t.Parallel()

	tr := transport.New(Name, &email.Email{From: email.Address{Email: "site@example.com"}})
	assert.ErrorIs(t, New("", nil).Send(context.Background(), tr), provider.ErrNoRecipients)
}

func TestNew_DefaultPath(t *testing.T) {
	t.Parallel()

	p := New("", nil)
	assert.Equal(t, DefaultPath, p.path)
	assert.Equal(t, "mail", p.Name())
}
