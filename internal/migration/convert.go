package migration

import (
	"strconv"
	"strings"

	"github.com/shineum/easysmtp/internal/legacy"
	"github.com/shineum/easysmtp/internal/options"
)

// Convert maps legacy options onto the grouped layout. Keys missing from the
// legacy document are left out so the defaults apply, with the exception of
// smtp.pass, the mailer and the two compatibility overrides which are always
// written. A nil input converts to an empty document.
func Convert(old *legacy.Options, password string) options.Doc {
	doc := options.Doc{}
	if old == nil {
		return doc
	}

	mail := map[string]any{}
	smtp := map[string]any{}
	general := map[string]any{}
	deprecated := map[string]any{}

	text := func(dst map[string]any, key string, f legacy.Field[legacy.Text]) {
		if f.Present {
			dst[key] = string(f.Value)
		}
	}
	flag := func(dst map[string]any, key string, f legacy.Field[legacy.Flag]) {
		if f.Present {
			dst[key] = bool(f.Value)
		}
	}

	text(mail, "from_email", old.FromEmail)
	text(mail, "from_name", old.FromName)
	text(mail, "reply_to_email", old.ReplyToEmail)
	text(mail, "bcc_emails", old.BCCEmail)
	text(mail, "from_email_force_exclude_emails", old.EmailIgnoreList)
	flag(mail, "from_name_force", old.ForceFromName)
	flag(mail, "reply_to_replace_from", old.SubMode)

	flag(general, "domain_check", old.EnableDomainCheck)
	flag(general, "domain_check_do_not_send", old.BlockAllEmails)
	flag(general, "allow_smtp_insecure_ssl", old.SMTP.InsecureSSL)
	if old.AllowedDomains.Present {
		general["domain_check_allowed_domains"] = decodeAllowedDomains(string(old.AllowedDomains.Value))
	}

	flag(deprecated, "debug_log_enabled", old.SMTP.EnableDebug)

	text(smtp, "host", old.SMTP.Host)
	text(smtp, "encryption", old.SMTP.Encryption)
	text(smtp, "user", old.SMTP.Username)
	if old.SMTP.Port.Present {
		if port, err := strconv.Atoi(old.SMTP.Port.Trimmed()); err == nil {
			smtp["port"] = port
		}
	}
	if old.SMTP.Authentication.Present {
		smtp["auth"] = string(old.SMTP.Authentication.Value) == "yes"
	}
	smtp["pass"] = password

	if old.FromEmail.Trimmed() == "" || old.FromName.Trimmed() == "" {
		mail["mailer"] = options.MailerMail
	} else {
		mail["mailer"] = options.MailerSMTP
	}
	mail["from_email_force"] = true
	smtp["autotls"] = false

	doc[options.GroupMail] = mail
	doc[options.GroupSMTP] = smtp
	if len(general) > 0 {
		doc[options.GroupGeneral] = general
	}
	if len(deprecated) > 0 {
		doc[options.GroupDeprecated] = deprecated
	}
	return doc
}

// decodeAllowedDomains undoes the base64 wrapping some releases applied to
// the allow-list. Values that are not canonical base64 of text are kept.
func decodeAllowedDomains(v string) string {
	trimmed := strings.TrimSpace(v)
	if decoded, ok := decodeBase64Text(trimmed); ok {
		return decoded
	}
	return v
}
