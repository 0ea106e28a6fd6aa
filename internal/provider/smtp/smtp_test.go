package smtp

import (
	"context"
	"errors"
	"io"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/emersion/go-sasl"
	gosmtp "github.com/emersion/go-smtp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gomail "github.com/wneessen/go-mail"

	"github.com/shineum/easysmtp/internal/email"
	"github.com/shineum/easysmtp/internal/provider"
	"github.com/shineum/easysmtp/internal/transport"
)

type received struct {
	from string
	rcpt []string
	data string
	user string
}

type captureBackend struct {
	mu       sync.Mutex
	messages []received
	password string
}

func (b *captureBackend) NewSession(*gosmtp.Conn) (gosmtp.Session, error) {
	return &captureSession{backend: b}, nil
}

type captureSession struct {
	backend *captureBackend
	cur     received
}

func (s *captureSession) AuthMechanisms() []string { return []string{sasl.Plain} }

func (s *captureSession) Auth(string) (sasl.Server, error) {
	return sasl.NewPlainServer(func(_, username, password string) error {
		if password != s.backend.password {
			return errors.New("invalid credentials")
		}
		s.cur.user = username
		return nil
	}), nil
}

func (s *captureSession) Mail(from string, _ *gosmtp.MailOptions) error {
	s.cur.from = from
	return nil
}

func (s *captureSession) Rcpt(to string, _ *gosmtp.RcptOptions) error {
	s.cur.rcpt = append(s.cur.rcpt, to)
	return nil
}

func (s *captureSession) Data(r io.Reader) error {
	b, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	s.cur.data = string(b)
	s.backend.mu.Lock()
	s.backend.messages = append(s.backend.messages, s.cur)
	s.backend.mu.Unlock()
	return nil
}

func (s *captureSession) Reset()        { s.cur = received{user: s.cur.user} }
func (s *captureSession) Logout() error { return nil }

func startUpstream(t *testing.T, password string) (*captureBackend, int) {
	t.Helper()

	be := &captureBackend{password: password}
	srv := gosmtp.NewServer(be)
	srv.Domain = "127.0.0.1"
	srv.AllowInsecureAuth = true

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() { _ = srv.Serve(l) }()
	t.Cleanup(func() { _ = srv.Close() })

	return be, l.Addr().(*net.TCPAddr).Port
}

func newTransport(port int) *transport.Transport {
	tr := transport.New(Name, &email.Email{
		From:     email.Address{Email: "app@example.com"},
		To:       []string{"to@example.com"},
		Subject:  "Relayed",
		TextBody: "hello upstream",
	})
	tr.Host = "127.0.0.1"
	tr.Port = port
	tr.SMTPAutoTLS = false
	tr.Timeout = 5 * time.Second
	return tr
}

func TestProvider_Send(t *testing.T) {
	t.Parallel()

	be, port := startUpstream(t, "")
	tr := newTransport(port)
	tr.SetFrom("site@example.com", "Site")
	tr.AddBCC("audit@example.com")

	require.NoError(t, New("relay.test", nil).Send(context.Background(), tr))

	be.mu.Lock()
	defer be.mu.Unlock()
	require.Len(t, be.messages, 1)
	got := be.messages[0]
	assert.Equal(t, "site@example.com", got.from)
	assert.ElementsMatch(t, []string{"to@example.com", "audit@example.com"}, got.rcpt)
	assert.Contains(t, got.data, "Subject: Relayed")
	assert.Contains(t, got.data, "hello upstream")
	assert.NotContains(t, got.data, "audit@example.com")
}

func TestProvider_SendWithAuth(t *testing.T) {
	t.Parallel()

	be, port := startUpstream(t, "s3cret")
	tr := newTransport(port)
	tr.SMTPAuth = true
	tr.Username = "mailer"
	tr.Password = "s3cret"

	require.NoError(t, New("", nil).Send(context.Background(), tr))

	be.mu.Lock()
	defer be.mu.Unlock()
	require.Len(t, be.messages, 1)
	assert.Equal(t, "mailer", be.messages[0].user)
}

func TestProvider_SendWrongPassword(t *testing.T) {
	t.Parallel()

	_, port := startUpstream(t, "s3cret")
	tr := newTransport(port)
	tr.SMTPAuth = true
	tr.Username = "mailer"
	tr.Password = "wrong"

	require.Error(t, New("", nil).Send(context.Background(), tr))
}

func TestProvider_Errors(t *testing.T) {
	t.Parallel()

	tr := newTransport(1)
	tr.Message.To = nil
	assert.ErrorIs(t, New("", nil).Send(context.Background(), tr), provider.ErrNoRecipients)

	// Nothing listens on the port.
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := l.Addr().(*net.TCPAddr).Port
	require.NoError(t, l.Close())

	err = New("", nil).Send(context.Background(), newTransport(port))
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "127.0.0.1"))
}

func TestClientOptions(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		secure  string
		autoTLS bool
		policy  string
	}{
		{name: "tls", secure: transport.SecureTLS, policy: gomail.TLSMandatory.String()},
		{name: "auto tls", secure: transport.SecureNone, autoTLS: true, policy: gomail.TLSOpportunistic.String()},
		{name: "plain", secure: transport.SecureNone, policy: gomail.NoTLS.String()},
	}

	p := New("", nil)
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			tr := newTransport(2525)
			tr.SMTPSecure = tt.secure
			tr.SMTPAutoTLS = tt.autoTLS

			c, err := gomail.NewClient(tr.Host, p.clientOptions(tr)...)
			require.NoError(t, err)
			assert.Equal(t, tt.policy, c.TLSPolicy())
			assert.Equal(t, "127.0.0.1:2525", c.ServerAddr())
		})
	}
}

func TestProvider_Name(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "smtp", New("", nil).Name())
}
