// Package provider defines the interface for mail delivery backends.
package provider

import (
	"context"
	"errors"
	"sort"

	"github.com/shineum/easysmtp/internal/transport"
)

// ErrNoRecipients is returned when a transport has nobody to deliver to.
var ErrNoRecipients = errors.New("message has no recipients")

// Provider delivers a configured transport. Implementations make a single
// attempt and bound it by the context and the transport's Timeout.
type Provider interface {
	Send(ctx context.Context, t *transport.Transport) error

	// Name returns the mailer name the provider is registered under.
	Name() string
}

// Registry maps mailer names to providers.
type Registry map[string]Provider

// NewRegistry indexes providers by Name.
func NewRegistry(providers ...Provider) Registry {
	r := make(Registry, len(providers))
	for _, p := range providers {
		r[p.Name()] = p
	}
	return r
}

// Lookup returns the provider registered as name.
func (r Registry) Lookup(name string) (Provider, bool) {
	p, ok := r[name]
	return p, ok
}

// Names returns the registered mailer names in sorted order.
func (r Registry) Names() []string {
	out := make([]string, 0, len(r))
	for name := range r {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
