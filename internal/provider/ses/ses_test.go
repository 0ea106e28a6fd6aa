package ses

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	sesv2 "github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shineum/easysmtp/internal/email"
	"github.com/shineum/easysmtp/internal/provider"
	"github.com/shineum/easysmtp/internal/transport"
)

// mockSESClient implements SendEmailAPI for testing.
type mockSESClient struct {
	sendFn    func(ctx context.Context, params *sesv2.SendEmailInput) (*sesv2.SendEmailOutput, error)
	callCount int
	lastInput *sesv2.SendEmailInput
}

func (m *mockSESClient) SendEmail(ctx context.Context, params *sesv2.SendEmailInput, _ ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error) {
	m.callCount++
	m.lastInput = params
	if m.sendFn != nil {
		return m.sendFn(ctx, params)
	}
	return &sesv2.SendEmailOutput{MessageId: aws.String("test-message-id")}, nil
}

func newTransport(msg *email.Email) *transport.Transport {
	tr := transport.New(Name, msg)
	tr.Timeout = time.Second
	return tr
}

func TestProvider_Name(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "ses", NewWithClient(&mockSESClient{}, "", nil).Name())
}

var _ provider.Provider = (*Provider)(nil)

func TestSend_SimpleTextEmail(t *testing.T) {
	t.Parallel()

	mock := &mockSESClient{}
	tr := newTransport(&email.Email{
		From:     email.Address{Email: "app@example.com"},
		To:       []string{"to@example.com"},
		Subject:  "Test Subject",
		TextBody: "Hello, World!",
	})
	tr.SetFrom("site@example.com", "Site")
	tr.AddReplyTo("reply@example.com", "")

	require.NoError(t, NewWithClient(mock, "", nil).Send(context.Background(), tr))
	require.Equal(t, 1, mock.callCount)

	input := mock.lastInput
	require.NotNil(t, input.Content.Simple)
	assert.Equal(t, `"Site" <site@example.com>`, aws.ToString(input.FromEmailAddress))
	assert.Equal(t, "Test Subject", aws.ToString(input.Content.Simple.Subject.Data))
	assert.Equal(t, "Hello, World!", aws.ToString(input.Content.Simple.Body.Text.Data))
	assert.Nil(t, input.Content.Simple.Body.Html)
	assert.Equal(t, []string{"reply@example.com"}, input.ReplyToAddresses)
	assert.Nil(t, input.ConfigurationSetName)
}

func TestSend_HtmlEmail(t *testing.T) {
	t.Parallel()

	mock := &mockSESClient{}
	tr := newTransport(&email.Email{
		From:     email.Address{Email: "site@example.com"},
		To:       []string{"to@example.com"},
		HtmlBody: "<h1>Hello</h1>",
	})

	require.NoError(t, NewWithClient(mock, "transactional", nil).Send(context.Background(), tr))

	body := mock.lastInput.Content.Simple.Body
	assert.Equal(t, "<h1>Hello</h1>", aws.ToString(body.Html.Data))
	assert.Nil(t, body.Text)
	assert.Equal(t, "transactional", aws.ToString(mock.lastInput.ConfigurationSetName))
}

func TestSend_Destination(t *testing.T) {
	t.Parallel()

	mock := &mockSESClient{}
	tr := newTransport(&email.Email{
		From:     email.Address{Email: "site@example.com"},
		To:       []string{"a@example.com", "b@example.com"},
		Cc:       []string{"c@example.com"},
		TextBody: "x",
	})
	tr.AddBCC("audit@example.com")

	require.NoError(t, NewWithClient(mock, "", nil).Send(context.Background(), tr))

	dest := mock.lastInput.Destination
	assert.Equal(t, []string{"a@example.com", "b@example.com"}, dest.ToAddresses)
	assert.Equal(t, []string{"c@example.com"}, dest.CcAddresses)
	assert.Equal(t, []string{"audit@example.com"}, dest.BccAddresses)
}

func TestSend_WithAttachments(t *testing.T) {
	t.Parallel()

	mock := &mockSESClient{}
	tr := newTransport(&email.Email{
		From:     email.Address{Email: "site@example.com"},
		To:       []string{"to@example.com"},
		Subject:  "Report",
		TextBody: "attached",
		Attachments: []email.Attachment{
			{Filename: "report.pdf", ContentType: "application/pdf", Content: []byte("%PDF")},
		},
	})
	tr.AddBCC("audit@example.com")

	require.NoError(t, NewWithClient(mock, "", nil).Send(context.Background(), tr))

	input := mock.lastInput
	require.NotNil(t, input.Content.Raw)
	assert.Nil(t, input.Content.Simple)
	raw := string(input.Content.Raw.Data)
	assert.Contains(t, raw, "Subject: Report")
	assert.Contains(t, raw, "report.pdf")
	assert.NotContains(t, raw, "audit@example.com")
	assert.Equal(t, []string{"audit@example.com"}, input.Destination.BccAddresses)
}

func TestSend_NoRetry(t *testing.T) {
	t.Parallel()

	mock := &mockSESClient{
		sendFn: func(context.Context, *sesv2.SendEmailInput) (*sesv2.SendEmailOutput, error) {
			return nil, errors.New("throttled")
		},
	}
	tr := newTransport(&email.Email{From: email.Address{Email: "site@example.com"}, To: []string{"to@example.com"}})

	err := NewWithClient(mock, "", nil).Send(context.Background(), tr)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "throttled")
	assert.Equal(t, 1, mock.callCount)
}

func TestSend_AppliesTimeout(t *testing.T) {
	t.Parallel()

	var deadline time.Time
	mock := &mockSESClient{
		sendFn: func(ctx context.Context, _ *sesv2.SendEmailInput) (*sesv2.SendEmailOutput, error) {
			deadline, _ = ctx.Deadline()
			return &sesv2.SendEmailOutput{}, nil
		},
	}
	tr := newTransport(&email.Email{From: email.Address{Email: "site@example.com"}, To: []string{"to@example.com"}})

	require.NoError(t, NewWithClient(mock, "", nil).Send(context.Background(), tr))
	assert.False(t, deadline.IsZero())
	assert.WithinDuration(t, time.Now().Add(time.Second), deadline, time.Second)
}

func TestSend_NoRecipients(t *testing.T) {
	t.Parallel()

	mock := &mockSESClient{}
	tr := newTransport(&email.Email{From: email.Address{Email: "site@example.com"}})
	assert.ErrorIs(t, NewWithClient(mock, "", nil).Send(context.Background(), tr), provider.ErrNoRecipients)
	assert.Zero(t, mock.callCount)
}
