// Package options owns the grouped configuration document (mail, smtp,
// general, deprecated). Reads layer environment constants over stored
// values over defaults; writes deep-merge into the stored document.
package options

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/shineum/easysmtp/internal/secret"
	"github.com/shineum/easysmtp/internal/store"
)

// OptionName is the store name of the grouped document.
const OptionName = "easy_wp_smtp"

// Groups.
const (
	GroupMail       = "mail"
	GroupSMTP       = "smtp"
	GroupGeneral    = "general"
	GroupDeprecated = "deprecated"
)

// Mailer names.
const (
	MailerMail     = "mail"
	MailerSMTP     = "smtp"
	MailerSES      = "ses"
	MailerPostmark = "postmark"
	MailerOutlook  = "outlook"
)

// constGate enables environment constants, mirroring a site-wide switch.
const constGate = "EASY_WP_SMTP_ON"

// ErrSecret reports a stored secret that cannot be decrypted.
var ErrSecret = errors.New("options: secret unreadable")

// Doc is a grouped options document: group -> key -> value.
type Doc map[string]map[string]any

// Clone returns a copy whose group maps are not shared with d.
func (d Doc) Clone() Doc {
	out := make(Doc, len(d))
	for g, kv := range d {
		m := make(map[string]any, len(kv))
		for k, v := range kv {
			m[k] = v
		}
		out[g] = m
	}
	return out
}

var defaults = Doc{
	GroupMail: {
		"mailer":                          MailerMail,
		"from_email":                      "",
		"from_name":                       "",
		"from_email_force":                false,
		"from_name_force":                 false,
		"reply_to_email":                  "",
		"reply_to_replace_from":           false,
		"bcc_emails":                      "",
		"from_email_force_exclude_emails": "",
	},
	GroupSMTP: {
		"host":       "",
		"port":       25,
		"encryption": "none",
		"autotls":    true,
		"auth":       false,
		"user":       "",
		"pass":       "",
	},
	GroupGeneral: {
		"domain_check":                  false,
		"domain_check_allowed_domains":  "",
		"domain_check_do_not_send":      false,
		"allow_smtp_insecure_ssl":       false,
		"summary_report_email_disabled": false,
	},
	GroupDeprecated: {
		"debug_log_enabled": false,
	},
}

// Options reads and writes the grouped document in a store.
type Options struct {
	store store.Store
	box   *secret.Box
	env   func(string) (string, bool)

	// mu serializes read-modify-write cycles within this process.
	mu sync.Mutex
}

// New returns Options over s. When box is non-nil smtp.pass is kept encrypted.
func New(s store.Store, box *secret.Box) *Options {
	return &Options{store: s, box: box, env: os.LookupEnv}
}

// WithEnv replaces the environment lookup used for constants.
func (o *Options) WithEnv(lookup func(string) (string, bool)) *Options {
	o.env = lookup
	return o
}

// Exists reports whether a grouped document has been saved.
func (o *Options) Exists(ctx context.Context) (bool, error) {
	_, ok, err := o.store.Get(ctx, OptionName)
	if err != nil {
		return false, fmt.Errorf("failed to read options: %w", err)
	}
	return ok, nil
}

// Get returns the effective value for group/key.
func (o *Options) Get(ctx context.Context, group, key string) (any, error) {
	if v, ok := o.constValue(group, key); ok {
		return v, nil
	}

	doc, err := o.load(ctx)
	if err != nil {
		return nil, err
	}
	if v, ok := doc[group][key]; ok {
		return o.reveal(group, key, v)
	}
	return defaults[group][key], nil
}

// IsConst reports whether group/key is pinned by an environment constant.
func (o *Options) IsConst(group, key string) bool {
	_, ok := o.constValue(group, key)
	return ok
}

// Set deep-merges doc into the stored document.
func (o *Options) Set(ctx context.Context, doc Doc) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	current, err := o.load(ctx)
	if err != nil {
		return err
	}
	for group, kv := range doc {
		if current[group] == nil {
			current[group] = make(map[string]any, len(kv))
		}
		for key, v := range kv {
			sealed, err := o.seal(group, key, v)
			if err != nil {
				return err
			}
			current[group][key] = sealed
		}
	}
	if err := store.SetJSON(ctx, o.store, OptionName, current); err != nil {
		return fmt.Errorf("failed to save options: %w", err)
	}
	return nil
}

func (o *Options) load(ctx context.Context) (Doc, error) {
	doc := make(Doc)
	err := store.GetJSON(ctx, o.store, OptionName, &doc)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("failed to load options: %w", err)
	}
	return doc, nil
}

func isSecret(group, key string) bool {
	return group == GroupSMTP && key == "pass"
}

func (o *Options) seal(group, key string, v any) (any, error) {
	s, ok := v.(string)
	if !isSecret(group, key) || o.box == nil || !ok || s == "" {
		return v, nil
	}
	enc, err := o.box.Encrypt(s)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt %s.%s: %w", group, key, err)
	}
	return enc, nil
}

// reveal decrypts secrets. Values that are not sealed output were saved
// before encryption was configured and are returned as stored; sealed values
// that fail authentication mean the key changed and are an error.
func (o *Options) reveal(group, key string, v any) (any, error) {
	s, ok := v.(string)
	if !isSecret(group, key) || o.box == nil || !ok || s == "" {
		return v, nil
	}
	plain, err := o.box.Decrypt(s)
	switch {
	case errors.Is(err, secret.ErrCiphertext):
		return s, nil
	case err != nil:
		return nil, fmt.Errorf("%w: %s.%s does not decrypt with the configured key: %w", ErrSecret, group, key, err)
	}
	return plain, nil
}

// ConstName returns the environment variable that pins group/key.
func ConstName(group, key string) string {
	return "EASY_WP_SMTP_" + strings.ToUpper(group) + "_" + strings.ToUpper(key)
}

func (o *Options) constValue(group, key string) (any, bool) {
	if _, known := defaults[group][key]; !known {
		return nil, false
	}
	gate, ok := o.env(constGate)
	if !ok || !truthy(gate) {
		return nil, false
	}
	raw, ok := o.env(ConstName(group, key))
	if !ok {
		return nil, false
	}
	switch defaults[group][key].(type) {
	case bool:
		return truthy(raw), true
	case int:
		n, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil {
			return nil, false
		}
		return n, true
	}
	return raw, true
}

func truthy(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "0", "false", "no", "off":
		return false
	}
	return true
}

// asString coerces a stored value to a string.
func asString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case nil:
		return ""
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case json.Number:
		return t.String()
	}
	return fmt.Sprint(v)
}

// asBool coerces a stored value to a bool.
func asBool(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case string:
		return truthy(t)
	case float64:
		return t != 0
	case int:
		return t != 0
	}
	return false
}

// asInt coerces a stored value to an int, 0 when it is not numeric.
func asInt(v any) int {
	switch t := v.(type) {
	case int:
		return t
	case float64:
		return int(t)
	case string:
		n, _ := strconv.Atoi(strings.TrimSpace(t))
		return n
	}
	return 0
}
