package parser

import (
	"encoding/base64"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shineum/easysmtp/internal/email"
)

func lines(l ...string) []byte {
	return []byte(strings.Join(l, "\r\n"))
}

func TestParse_PlainText(t *testing.T) {
	t.Parallel()

	msg, err := Parse(lines(
		"From: WordPress <wordpress@example.com>",
		"To: recipient@example.com",
		"Subject: Password reset",
		"Message-Id: <reset-1@example.com>",
		"Content-Type: text/plain",
		"",
		"Someone requested a password reset.",
	))
	require.NoError(t, err)

	assert.Equal(t, email.Address{Email: "wordpress@example.com", Name: "WordPress"}, msg.From)
	assert.Equal(t, []string{"recipient@example.com"}, msg.To)
	assert.Equal(t, "Password reset", msg.Subject)
	assert.Equal(t, "<reset-1@example.com>", msg.MessageID)
	assert.Equal(t, "Someone requested a password reset.", msg.TextBody)
	assert.Empty(t, msg.HtmlBody)
	assert.Empty(t, msg.Attachments)
}

func TestParse_ReplyToAndBcc(t *testing.T) {
	t.Parallel()

	msg, err := Parse(lines(
		"From: site@example.com",
		"To: a@example.com",
		"Bcc: audit@example.com",
		"Reply-To: Support <support@example.com>, sales@example.com",
		"Subject: Hello",
		"",
		"body",
	))
	require.NoError(t, err)

	assert.Equal(t, []string{"audit@example.com"}, msg.Bcc)
	require.Len(t, msg.ReplyTo, 2)
	assert.Equal(t, email.Address{Email: "support@example.com", Name: "Support"}, msg.ReplyTo[0])
	assert.Equal(t, "sales@example.com", msg.ReplyTo[1].Email)
	assert.Equal(t, []string{"a@example.com", "audit@example.com"}, msg.Recipients())
}

func TestParse_EncodedSubject(t *testing.T) {
	t.Parallel()

	msg, err := Parse(lines(
		"From: site@example.com",
		"To: a@example.com",
		"Subject: =?UTF-8?B?0J/RgNC40LLQtdGC?=",
		"",
		"body",
	))
	require.NoError(t, err)
	assert.Equal(t, "Привет", msg.Subject)
}

func TestParse_MultipartAlternative(t *testing.T) {
	t.Parallel()

	msg, err := Parse(lines(
		"From: sender@example.com",
		"To: alice@example.com, bob@example.com",
		"Cc: carol@example.com",
		"Subject: Multipart",
		"Content-Type: multipart/alternative; boundary=b1",
		"",
		"--b1",
		"Content-Type: text/plain",
		"",
		"Plain text body",
		"--b1",
		"Content-Type: text/html",
		"",
		"<p>HTML body</p>",
		"--b1--",
	))
	require.NoError(t, err)

	assert.Equal(t, []string{"alice@example.com", "bob@example.com"}, msg.To)
	assert.Equal(t, []string{"carol@example.com"}, msg.Cc)
	assert.Equal(t, "Plain text body", msg.TextBody)
	assert.Equal(t, "<p>HTML body</p>", msg.HtmlBody)
}

func TestParse_Attachments(t *testing.T) {
	t.Parallel()

	payload := base64.StdEncoding.EncodeToString([]byte("%PDF-1.4 invoice"))
	msg, err := Parse(lines(
		"From: sender@example.com",
		"To: recipient@example.com",
		"Subject: Invoice",
		"Content-Type: multipart/mixed; boundary=mixed",
		"",
		"--mixed",
		"Content-Type: text/plain",
		"",
		"See attached.",
		"--mixed",
		"Content-Type: application/pdf",
		"Content-Transfer-Encoding: base64",
		`Content-Disposition: attachment; filename="invoice.pdf"`,
		"",
		payload[:8],
		payload[8:],
		"--mixed",
		"Content-Type: image/png",
		"Content-Disposition: attachment",
		"",
		"png-bytes",
		"--mixed--",
	))
	require.NoError(t, err)

	assert.Equal(t, "See attached.", msg.TextBody)
	require.Len(t, msg.Attachments, 2)
	assert.Equal(t, "invoice.pdf", msg.Attachments[0].Filename)
	assert.Equal(t, "application/pdf", msg.Attachments[0].ContentType)
	assert.Equal(t, []byte("%PDF-1.4 invoice"), msg.Attachments[0].Content)
	assert.Equal(t, "attachment.png", msg.Attachments[1].Filename)
}

func TestParse_NestedMultipart(t *testing.T) {
	t.Parallel()

	msg, err := Parse(lines(
		"From: sender@example.com",
		"To: recipient@example.com",
		"Subject: Nested",
		"Content-Type: multipart/mixed; boundary=outer",
		"",
		"--outer",
		"Content-Type: multipart/alternative; boundary=inner",
		"",
		"--inner",
		"Content-Type: text/plain",
		"",
		"inner text",
		"--inner",
		"Content-Type: text/html",
		"",
		"<b>inner html</b>",
		"--inner--",
		"--outer",
		"Content-Type: text/csv; name=report.csv",
		"",
		"a,b",
		"--outer--",
	))
	require.NoError(t, err)

	assert.Equal(t, "inner text", msg.TextBody)
	assert.Equal(t, "<b>inner html</b>", msg.HtmlBody)
	require.Len(t, msg.Attachments, 1)
	assert.Equal(t, "report.csv", msg.Attachments[0].Filename)
}

func TestParse_Errors(t *testing.T) {
	t.Parallel()

	_, err := Parse([]byte("not a message"))
	require.Error(t, err)

	_, err = Parse(lines(
		"From: a@example.com",
		"Content-Type: multipart/mixed",
		"",
		"body",
	))
	require.Error(t, err)
}

func TestParse_LooseAddressFallback(t *testing.T) {
	t.Parallel()

	msg, err := Parse(lines(
		"From: site@example.com",
		"To: broken <a@example.com, b@example.com",
		"",
		"body",
	))
	require.NoError(t, err)
	assert.NotEmpty(t, msg.To)
	assert.Contains(t, msg.To, "b@example.com")
}
