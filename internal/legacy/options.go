// Package legacy reads configuration written by the 1.x releases: one flat
// options document, an "encrypted password" marker, the legacy encryption
// key and the saved test email. Nothing here writes to the store.
package legacy

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/shineum/easysmtp/internal/store"
)

// Store option names used by the 1.x releases.
const (
	OptionsName       = "swpsmtp_options"
	PassEncryptedName = "swpsmtp_pass_encrypted"
	EncryptionKeyName = "swpsmtp_enc_key"
	TestMailName      = "smtp_test_mail"
)

// Options is the flat 1.x options document.
type Options struct {
	FromEmail         Field[Text]  `json:"from_email_field"`
	FromName          Field[Text]  `json:"from_name_field"`
	ForceFromName     Field[Flag]  `json:"force_from_name_replace"`
	SubMode           Field[Flag]  `json:"sub_mode"`
	ReplyToEmail      Field[Text]  `json:"reply_to_email"`
	BCCEmail          Field[Text]  `json:"bcc_email"`
	EmailIgnoreList   Field[Text]  `json:"email_ignore_list"`
	EnableDomainCheck Field[Flag]  `json:"enable_domain_check"`
	AllowedDomains    Field[Text]  `json:"allowed_domains"`
	BlockAllEmails    Field[Flag]  `json:"block_all_emails"`
	SMTP              SMTPSettings `json:"smtp_settings"`
}

// SMTPSettings is the nested smtp_settings block. "autentication" is the
// key's historical spelling.
type SMTPSettings struct {
	Host           Field[Text] `json:"host"`
	Encryption     Field[Text] `json:"type_encryption"`
	Port           Field[Text] `json:"port"`
	Authentication Field[Text] `json:"autentication"`
	Username       Field[Text] `json:"username"`
	Password       Field[Text] `json:"password"`
	InsecureSSL    Field[Flag] `json:"insecure_ssl"`
	EnableDebug    Field[Flag] `json:"enable_debug"`
}

// UnmarshalJSON treats anything other than an object, such as the "[]" PHP
// writes for an empty array, as no settings.
func (s *SMTPSettings) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || b[0] != '{' {
		*s = SMTPSettings{}
		return nil
	}
	type plain SMTPSettings
	var p plain
	if err := json.Unmarshal(b, &p); err != nil {
		return err
	}
	*s = SMTPSettings(p)
	return nil
}

// TestMail is the last test email composed in the 1.x settings screen.
type TestMail struct {
	To      Field[Text] `json:"swpsmtp_to"`
	Subject Field[Text] `json:"swpsmtp_subject"`
	Message Field[Text] `json:"swpsmtp_message"`
}

// Reader loads legacy documents from a store.
type Reader struct {
	store store.Store
}

// NewReader returns a Reader over s.
func NewReader(s store.Store) *Reader {
	return &Reader{store: s}
}

// Options returns the legacy options and whether they exist.
func (r *Reader) Options(ctx context.Context) (*Options, bool, error) {
	var opts Options
	if err := r.get(ctx, OptionsName, &opts); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return &opts, true, nil
}

// PasswordEncrypted reports whether the legacy password was stored encrypted.
func (r *Reader) PasswordEncrypted(ctx context.Context) (bool, error) {
	var f Flag
	if err := r.get(ctx, PassEncryptedName, &f); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return bool(f), nil
}

// EncryptionKey returns the legacy encryption key, empty when absent.
func (r *Reader) EncryptionKey(ctx context.Context) (string, error) {
	var key Text
	if err := r.get(ctx, EncryptionKeyName, &key); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", nil
		}
		return "", err
	}
	return string(key), nil
}

// TestMail returns the saved test email and whether it exists.
func (r *Reader) TestMail(ctx context.Context) (*TestMail, bool, error) {
	var tm TestMail
	if err := r.get(ctx, TestMailName, &tm); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return &tm, true, nil
}

func (r *Reader) get(ctx context.Context, name string, v any) error {
	if err := store.GetJSON(ctx, r.store, name, v); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return err
		}
		return fmt.Errorf("legacy: %w", err)
	}
	return nil
}
