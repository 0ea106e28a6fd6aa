// Package email defines the message model shared by the relay, the resolver and the mailers.
package email

// Address is a mailbox with an optional display name.
type Address struct {
	Email string
	Name  string
}

// Email represents a parsed email message with all its components.
type Email struct {
	From        Address
	To          []string
	Cc          []string
	Bcc         []string
	ReplyTo     []Address
	Subject     string
	TextBody    string
	HtmlBody    string
	Attachments []Attachment
	RawHeaders  map[string][]string
	MessageID   string
}

// Attachment represents a file attached to an email message.
type Attachment struct {
	Filename    string
	ContentType string
	Content     []byte
}

// Recipients returns every envelope recipient (To, Cc and Bcc) in order.
func (e *Email) Recipients() []string {
	out := make([]string, 0, len(e.To)+len(e.Cc)+len(e.Bcc))
	out = append(out, e.To...)
	out = append(out, e.Cc...)
	return append(out, e.Bcc...)
}
