// Package mailer applies the site mail settings to each outgoing message and
// dispatches it to the selected provider.
package mailer

import (
	"strings"
	"time"

	"github.com/shineum/easysmtp/internal/options"
	"github.com/shineum/easysmtp/internal/provider/gag"
	"github.com/shineum/easysmtp/internal/transport"
)

// SendTimeout bounds every outbound delivery.
const SendTimeout = 10 * time.Second

// Outcome is what the resolver did to a transport.
type Outcome int

const (
	// OutcomeConfigured means the settings were applied.
	OutcomeConfigured Outcome = iota
	// OutcomeIncomplete means no From address or name is configured and the
	// transport was left untouched.
	OutcomeIncomplete
	// OutcomeBlocked means the site domain is not allowed and the message is
	// routed to the gag mailer.
	OutcomeBlocked
	// OutcomeDomainSkipped means the site domain is not allowed and the
	// transport was left untouched.
	OutcomeDomainSkipped
)

func (o Outcome) String() string {
	switch o {
	case OutcomeConfigured:
		return "configured"
	case OutcomeIncomplete:
		return "incomplete"
	case OutcomeBlocked:
		return "blocked"
	case OutcomeDomainSkipped:
		return "domain_skipped"
	}
	return "unknown"
}

// Resolver maps settings onto a transport.
type Resolver struct {
	// SiteDomain is compared against the domain allow-list.
	SiteDomain string
}

// Configure applies s to t. The order of the steps matters: Reply-To is
// resolved before From is assigned, and the ignore list is consulted after
// From is resolved but before it is assigned.
func (r *Resolver) Configure(s *options.Settings, t *transport.Transport) Outcome {
	mail := s.Mail
	if strings.TrimSpace(mail.FromEmail) == "" || strings.TrimSpace(mail.FromName) == "" {
		return OutcomeIncomplete
	}

	if s.General.DomainCheck && !domainAllowed(r.SiteDomain, s.General.AllowedDomains) {
		if s.General.DoNotSend {
			t.Mailer = gag.Name
			return OutcomeBlocked
		}
		return OutcomeDomainSkipped
	}

	fromName := mail.FromName
	if !mail.FromNameForce && t.FromName != "" {
		fromName = t.FromName
	}
	fromEmail := mail.FromEmail
	if !mail.FromEmailForce && t.From != "" {
		fromEmail = t.From
	}

	applyReplyTo(t, mail)

	for _, addr := range splitList(mail.BCCEmails) {
		t.AddBCC(addr)
	}

	if !listContains(mail.ExcludeEmails, t.From) {
		t.SetFrom(fromEmail, fromName)
	}

	t.Mailer = mail.Mailer
	if mail.Mailer == options.MailerSMTP {
		applySMTP(t, s)
	}
	t.Timeout = SendTimeout
	return OutcomeConfigured
}

// applyReplyTo adds the configured Reply-To. In substitute mode an existing
// entry for the configured From address is replaced in place and the other
// entries are kept.
func applyReplyTo(t *transport.Transport, mail options.MailSettings) {
	replyTo := strings.TrimSpace(mail.ReplyToEmail)
	if replyTo == "" {
		return
	}

	existing := t.ReplyTo()
	if !mail.ReplyToReplaceFrom || len(existing) == 0 {
		t.AddReplyTo(replyTo, "")
		return
	}

	from := strings.TrimSpace(mail.FromEmail)
	t.ClearReplyTos()
	replaced := false
	for _, a := range existing {
		if !replaced && strings.EqualFold(strings.TrimSpace(a.Email), from) {
			t.AddReplyTo(replyTo, "")
			replaced = true
			continue
		}
		t.AddReplyTo(a.Email, a.Name)
	}
	if !replaced {
		t.AddReplyTo(replyTo, "")
	}
}

func applySMTP(t *transport.Transport, s *options.Settings) {
	smtp := s.SMTP
	if enc := strings.ToLower(strings.TrimSpace(smtp.Encryption)); enc != "" && enc != "none" {
		t.SMTPSecure = enc
	}
	t.Host = smtp.Host
	if smtp.Port > 0 {
		t.Port = smtp.Port
	}
	t.SMTPAuth = smtp.Auth
	if smtp.Auth {
		t.Username = smtp.User
		t.Password = smtp.Pass
	}
	if s.General.AllowInsecureSSL {
		t.SkipVerify = true
	}
	t.SMTPAutoTLS = smtp.AutoTLS
}

func domainAllowed(site, allowed string) bool {
	site = strings.ToLower(strings.TrimSpace(site))
	for _, d := range splitList(allowed) {
		if strings.ToLower(d) == site {
			return true
		}
	}
	return false
}

func listContains(list, addr string) bool {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return false
	}
	for _, entry := range splitList(list) {
		if strings.EqualFold(entry, addr) {
			return true
		}
	}
	return false
}

// splitList splits a comma separated setting, dropping blanks.
func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
