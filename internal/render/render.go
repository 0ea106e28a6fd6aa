// Package render builds outgoing MIME messages from the relay's email model.
package render

import (
	"bytes"
	"fmt"
	"net/mail"
	"strings"

	gomail "github.com/wneessen/go-mail"

	"github.com/shineum/easysmtp/internal/email"
)

// Msg converts e into a go-mail message. Bcc recipients are set on the
// envelope only and never written as a header.
func Msg(e *email.Email) (*gomail.Msg, error) {
	m := gomail.NewMsg()

	if e.From.Name != "" {
		if err := m.FromFormat(e.From.Name, e.From.Email); err != nil {
			return nil, fmt.Errorf("invalid from address: %w", err)
		}
	} else if err := m.From(e.From.Email); err != nil {
		return nil, fmt.Errorf("invalid from address: %w", err)
	}

	if len(e.To) > 0 {
		if err := m.To(e.To...); err != nil {
			return nil, fmt.Errorf("invalid to address: %w", err)
		}
	}
	if len(e.Cc) > 0 {
		if err := m.Cc(e.Cc...); err != nil {
			return nil, fmt.Errorf("invalid cc address: %w", err)
		}
	}
	if len(e.Bcc) > 0 {
		if err := m.Bcc(e.Bcc...); err != nil {
			return nil, fmt.Errorf("invalid bcc address: %w", err)
		}
	}
	if len(e.ReplyTo) > 0 {
		m.SetGenHeader(gomail.HeaderReplyTo, FormatList(e.ReplyTo))
	}

	m.Subject(e.Subject)
	if id := strings.Trim(e.MessageID, "<> "); id != "" {
		m.SetMessageIDWithValue(id)
	}

	switch {
	case e.TextBody != "" && e.HtmlBody != "":
		m.SetBodyString(gomail.TypeTextPlain, e.TextBody)
		m.AddAlternativeString(gomail.TypeTextHTML, e.HtmlBody)
	case e.HtmlBody != "":
		m.SetBodyString(gomail.TypeTextHTML, e.HtmlBody)
	default:
		m.SetBodyString(gomail.TypeTextPlain, e.TextBody)
	}

	for _, att := range e.Attachments {
		opts := []gomail.FileOption{}
		if att.ContentType != "" {
			opts = append(opts, gomail.WithFileContentType(gomail.ContentType(att.ContentType)))
		}
		if err := m.AttachReader(att.Filename, bytes.NewReader(att.Content), opts...); err != nil {
			return nil, fmt.Errorf("failed to attach %q: %w", att.Filename, err)
		}
	}
	return m, nil
}

// Raw renders e as RFC 5322 bytes.
func Raw(e *email.Email) ([]byte, error) {
	m, err := Msg(e)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if _, err := m.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("failed to render message: %w", err)
	}
	return buf.Bytes(), nil
}

// FormatList formats mailboxes as a single address-list header value.
func FormatList(addrs []email.Address) string {
	parts := make([]string, 0, len(addrs))
	for _, a := range addrs {
		parts = append(parts, Format(a))
	}
	return strings.Join(parts, ", ")
}

// Format formats one mailbox, quoting the display name when needed.
func Format(a email.Address) string {
	if a.Name == "" {
		return a.Email
	}
	return (&mail.Address{Name: a.Name, Address: a.Email}).String()
}
