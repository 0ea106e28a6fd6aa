package options

import (
	"context"
	"fmt"
)

// Settings is a typed, effective view of the options at one point in time.
type Settings struct {
	Mail       MailSettings
	SMTP       SMTPSettings
	General    GeneralSettings
	Deprecated DeprecatedSettings
}

type MailSettings struct {
	Mailer             string
	FromEmail          string
	FromName           string
	FromEmailForce     bool
	FromNameForce      bool
	ReplyToEmail       string
	ReplyToReplaceFrom bool
	BCCEmails          string
	ExcludeEmails      string
}

type SMTPSettings struct {
	Host       string
	Port       int
	Encryption string
	AutoTLS    bool
	Auth       bool
	User       string
	Pass       string
}

type GeneralSettings struct {
	DomainCheck           bool
	AllowedDomains        string
	DoNotSend             bool
	AllowInsecureSSL      bool
	SummaryReportDisabled bool
}

type DeprecatedSettings struct {
	DebugLogEnabled bool
}

// Settings loads the document once and resolves every known key.
func (o *Options) Settings(ctx context.Context) (*Settings, error) {
	doc, err := o.load(ctx)
	if err != nil {
		return nil, err
	}

	get := func(group, key string) any {
		if v, ok := o.constValue(group, key); ok {
			return v
		}
		if v, ok := doc[group][key]; ok {
			return v
		}
		return defaults[group][key]
	}
	str := func(g, k string) string { return asString(get(g, k)) }
	flag := func(g, k string) bool { return asBool(get(g, k)) }

	pass := get(GroupSMTP, "pass")
	if !o.IsConst(GroupSMTP, "pass") {
		if pass, err = o.reveal(GroupSMTP, "pass", pass); err != nil {
			return nil, err
		}
	}

	return &Settings{
		Mail: MailSettings{
			Mailer:             str(GroupMail, "mailer"),
			FromEmail:          str(GroupMail, "from_email"),
			FromName:           str(GroupMail, "from_name"),
			FromEmailForce:     flag(GroupMail, "from_email_force"),
			FromNameForce:      flag(GroupMail, "from_name_force"),
			ReplyToEmail:       str(GroupMail, "reply_to_email"),
			ReplyToReplaceFrom: flag(GroupMail, "reply_to_replace_from"),
			BCCEmails:          str(GroupMail, "bcc_emails"),
			ExcludeEmails:      str(GroupMail, "from_email_force_exclude_emails"),
		},
		SMTP: SMTPSettings{
			Host:       str(GroupSMTP, "host"),
			Port:       asInt(get(GroupSMTP, "port")),
			Encryption: str(GroupSMTP, "encryption"),
			AutoTLS:    flag(GroupSMTP, "autotls"),
			Auth:       flag(GroupSMTP, "auth"),
			User:       str(GroupSMTP, "user"),
			Pass:       asString(pass),
		},
		General: GeneralSettings{
			DomainCheck:           flag(GroupGeneral, "domain_check"),
			AllowedDomains:        str(GroupGeneral, "domain_check_allowed_domains"),
			DoNotSend:             flag(GroupGeneral, "domain_check_do_not_send"),
			AllowInsecureSSL:      flag(GroupGeneral, "allow_smtp_insecure_ssl"),
			SummaryReportDisabled: flag(GroupGeneral, "summary_report_email_disabled"),
		},
		Deprecated: DeprecatedSettings{
			DebugLogEnabled: flag(GroupDeprecated, "debug_log_enabled"),
		},
	}, nil
}

// String returns the effective value of group/key as a string.
func (o *Options) String(ctx context.Context, group, key string) (string, error) {
	v, err := o.Get(ctx, group, key)
	if err != nil {
		return "", err
	}
	return asString(v), nil
}

// Bool returns the effective value of group/key as a bool.
func (o *Options) Bool(ctx context.Context, group, key string) (bool, error) {
	v, err := o.Get(ctx, group, key)
	if err != nil {
		return false, fmt.Errorf("%s.%s: %w", group, key, err)
	}
	return asBool(v), nil
}
