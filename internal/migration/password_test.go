package migration

import (
	"encoding/base64"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/shineum/easysmtp/internal/legacy"
)

type fakeDecrypter struct {
	plain string
	err   error
}

func (f fakeDecrypter) Decrypt(string) (string, error) { return f.plain, f.err }

func b64(s string) string { return base64.StdEncoding.EncodeToString([]byte(s)) }

func TestDecodePassword(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		value     string
		encrypted bool
		dec       Decrypter
		want      string
	}{
		{name: "empty", value: "", want: ""},
		{name: "empty encrypted", value: "", encrypted: true, dec: fakeDecrypter{plain: "x"}, want: ""},
		{name: "plaintext", value: "not base64!", want: "not base64!"},
		{name: "base64 text", value: b64("s3cret"), want: "s3cret"},
		{name: "base64 utf8", value: b64("pässwörd"), want: "pässwörd"},
		{name: "base64 binary keeps original", value: b64("\xff\xfe\xfd"), want: b64("\xff\xfe\xfd")},
		{name: "not canonical", value: "abc", want: "abc"},
		{name: "slashes stripped", value: `it\'s`, want: "it's"},
		{name: "slashes after base64", value: b64(`a\\b`), want: `a\b`},
		{name: "encrypted ok", value: "blob", encrypted: true, dec: fakeDecrypter{plain: `p\"w`}, want: `p"w`},
		{name: "encrypted failure", value: "blob", encrypted: true, dec: fakeDecrypter{err: errors.New("bad")}, want: ""},
		{name: "encrypted without key", value: "blob", encrypted: true, want: ""},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, DecodePassword(tt.value, tt.encrypted, tt.dec))
		})
	}
}

func TestDecodePassword_Base64RoundTrip(t *testing.T) {
	t.Parallel()

	for _, plain := range []string{"a", "hunter2", "correct horse battery staple", "üñî©ødé", "p@$$w0rd#2024"} {
		assert.Equal(t, plain, DecodePassword(b64(plain), false, nil), plain)
	}
}

func TestDecodePassword_LegacyCryptor(t *testing.T) {
	t.Parallel()

	c := legacy.NewCryptor("legacy-site-key")
	stored, err := c.Encrypt("smtp-pass")
	assert.NoError(t, err)

	assert.Equal(t, "smtp-pass", DecodePassword(stored, true, c))
	assert.Equal(t, "", DecodePassword("garbage", true, c))
}

func TestStripSlashes(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		`plain`:     "plain",
		`a\'b`:      "a'b",
		`a\\b`:      `a\b`,
		`a\0b`:      "a\x00b",
		`trailing\`: "trailing",
		`\\\\`:      `\\`,
	}
	for in, want := range tests {
		assert.Equal(t, want, stripSlashes(in), in)
	}
}
