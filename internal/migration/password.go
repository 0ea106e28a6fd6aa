package migration

import (
	"encoding/base64"
	"strings"
	"unicode/utf8"
)

// Decrypter reverses the legacy password encryption.
type Decrypter interface {
	Decrypt(stored string) (string, error)
}

// DecodePassword recovers the plaintext SMTP password from its legacy stored
// form. It never fails: anything that cannot be recovered decodes to "".
//
// Encrypted values go through dec. Otherwise the value is treated as base64
// only when it round-trips exactly and decodes to text; older releases saved
// plaintext and base64 in the same field.
func DecodePassword(value string, encrypted bool, dec Decrypter) string {
	if value == "" {
		return ""
	}

	var pass string
	switch {
	case encrypted:
		if dec == nil {
			return ""
		}
		plain, err := dec.Decrypt(value)
		if err != nil {
			return ""
		}
		pass = plain
	default:
		pass = value
		if decoded, ok := decodeBase64Text(value); ok {
			pass = decoded
		}
	}
	return stripSlashes(pass)
}

// decodeBase64Text returns the decoded value when s is canonical base64 of
// valid UTF-8.
func decodeBase64Text(s string) (string, bool) {
	decoded, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return "", false
	}
	if base64.StdEncoding.EncodeToString(decoded) != s {
		return "", false
	}
	if !utf8.Valid(decoded) {
		return "", false
	}
	return string(decoded), true
}

// stripSlashes removes one level of backslash escaping: `\x` becomes `x`,
// `\\` becomes `\` and `\0` becomes a NUL byte.
func stripSlashes(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if s[i] != '\\' {
			b.WriteByte(s[i])
			continue
		}
		i++
		if i == len(s) {
			break
		}
		if s[i] == '0' {
			b.WriteByte(0)
			continue
		}
		b.WriteByte(s[i])
	}
	return b.String()
}
