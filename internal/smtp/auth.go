// Package smtp accepts message submissions from local applications and hands
// each one to the send service.
package smtp

import (
	"crypto/subtle"
	"errors"

	"github.com/emersion/go-sasl"
	gosmtp "github.com/emersion/go-smtp"
)

var errAuthFailed = errors.New("authentication failed")

// Authenticator checks SMTP AUTH credentials against a single configured
// account.
type Authenticator struct {
	username string
	password string
}

// NewAuthenticator creates an Authenticator with the given credentials.
// If both username and password are empty, authentication is disabled.
func NewAuthenticator(username, password string) *Authenticator {
	return &Authenticator{
		username: username,
		password: password,
	}
}

// Enabled returns true if authentication credentials are configured.
func (a *Authenticator) Enabled() bool {
	return a.username != "" && a.password != ""
}

// Check compares the credentials in constant time.
func (a *Authenticator) Check(username, password string) error {
	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(a.username)) == 1
	passOK := subtle.ConstantTimeCompare([]byte(password), []byte(a.password)) == 1
	if !userOK || !passOK {
		return errAuthFailed
	}
	return nil
}

// Mechanisms lists the SASL mechanisms offered in EHLO.
func (a *Authenticator) Mechanisms() []string {
	if !a.Enabled() {
		return nil
	}
	return []string{sasl.Plain, sasl.Login}
}

// Server returns a SASL server for mech that calls done after a successful
// exchange.
func (a *Authenticator) Server(mech string, done func(username string)) (sasl.Server, error) {
	if !a.Enabled() {
		return nil, gosmtp.ErrAuthUnsupported
	}
	verify := func(username, password string) error {
		if err := a.Check(username, password); err != nil {
			return err
		}
		done(username)
		return nil
	}

	switch mech {
	case sasl.Plain:
		return sasl.NewPlainServer(func(_, username, password string) error {
			return verify(username, password)
		}), nil
	case sasl.Login:
		return &loginServer{verify: verify}, nil
	}
	return nil, gosmtp.ErrAuthUnsupported
}

// loginServer implements the server side of AUTH LOGIN: a "Username:"
// challenge followed by a "Password:" challenge.
type loginServer struct {
	verify   func(username, password string) error
	username string
	step     int
}

func (s *loginServer) Next(response []byte) ([]byte, bool, error) {
	switch s.step {
	case 0:
		s.step++
		if len(response) > 0 {
			s.username = string(response)
			s.step++
			return []byte("Password:"), false, nil
		}
		return []byte("Username:"), false, nil
	case 1:
		s.step++
		s.username = string(response)
		return []byte("Password:"), false, nil
	case 2:
		s.step++
		return nil, true, s.verify(s.username, string(response))
	}
	return nil, true, sasl.ErrUnexpectedClientResponse
}
