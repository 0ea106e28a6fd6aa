// Package transport holds the per-send delivery object: the message plus the
// connection fields a mailer reads. The resolver mutates it, a provider
// consumes it, and it is discarded after the send.
package transport

import (
	"strings"
	"time"

	"github.com/shineum/easysmtp/internal/email"
)

// SMTPSecure values.
const (
	SecureNone = ""
	SecureSSL  = "ssl"
	SecureTLS  = "tls"
)

// DefaultTimeout applies until the resolver sets the configured timeout.
const DefaultTimeout = 5 * time.Minute

// Transport is one message in flight together with its delivery settings.
type Transport struct {
	Mailer string

	From     string
	FromName string
	Sender   string

	Host        string
	Port        int
	SMTPAuth    bool
	Username    string
	Password    string
	SMTPSecure  string
	SMTPAutoTLS bool
	SkipVerify  bool
	Timeout     time.Duration

	Message *email.Email

	replyTo []email.Address
	bcc     []string
}

// New wraps msg. Its From, Reply-To and Bcc seed the transport.
func New(mailer string, msg *email.Email) *Transport {
	if msg == nil {
		msg = &email.Email{}
	}
	t := &Transport{
		Mailer:      mailer,
		From:        msg.From.Email,
		FromName:    msg.From.Name,
		Port:        25,
		SMTPAutoTLS: true,
		Timeout:     DefaultTimeout,
		Message:     msg,
	}
	for _, a := range msg.ReplyTo {
		t.AddReplyTo(a.Email, a.Name)
	}
	for _, b := range msg.Bcc {
		t.AddBCC(b)
	}
	return t
}

// AddReplyTo adds a Reply-To address unless one with the same address
// (compared case-insensitively) is already present.
func (t *Transport) AddReplyTo(addr, name string) bool {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return false
	}
	for _, a := range t.replyTo {
		if strings.EqualFold(a.Email, addr) {
			return false
		}
	}
	t.replyTo = append(t.replyTo, email.Address{Email: addr, Name: name})
	return true
}

// ReplyTo returns the Reply-To addresses in insertion order.
func (t *Transport) ReplyTo() []email.Address {
	out := make([]email.Address, len(t.replyTo))
	copy(out, t.replyTo)
	return out
}

// ClearReplyTos removes every Reply-To address.
func (t *Transport) ClearReplyTos() {
	t.replyTo = nil
}

// AddBCC adds a blind copy recipient, ignoring duplicates.
func (t *Transport) AddBCC(addr string) bool {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return false
	}
	for _, b := range t.bcc {
		if strings.EqualFold(b, addr) {
			return false
		}
	}
	t.bcc = append(t.bcc, addr)
	return true
}

// BCC returns the blind copy recipients.
func (t *Transport) BCC() []string {
	out := make([]string, len(t.bcc))
	copy(out, t.bcc)
	return out
}

// SetFrom sets the sender address and display name.
func (t *Transport) SetFrom(addr, name string) {
	t.From = addr
	t.FromName = name
}

// Recipients returns every envelope recipient.
func (t *Transport) Recipients() []string {
	out := make([]string, 0, len(t.Message.To)+len(t.Message.Cc)+len(t.bcc))
	out = append(out, t.Message.To...)
	out = append(out, t.Message.Cc...)
	return append(out, t.bcc...)
}

// Envelope returns the envelope sender, falling back to From.
func (t *Transport) Envelope() string {
	if t.Sender != "" {
		return t.Sender
	}
	return t.From
}

// Email returns the message as it should be delivered: the transport's From,
// Reply-To and Bcc replace the submitted ones.
func (t *Transport) Email() *email.Email {
	out := *t.Message
	out.From = email.Address{Email: t.From, Name: t.FromName}
	out.ReplyTo = t.ReplyTo()
	out.Bcc = t.BCC()
	return &out
}
