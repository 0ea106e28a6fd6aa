package options

import (
	"context"
	"errors"
	"fmt"

	"github.com/shineum/easysmtp/internal/store"
)

// TestEmailName is the store name of the saved test email.
const TestEmailName = "easy_wp_smtp_test_email"

// TestEmail is the last test email composed by an administrator.
type TestEmail struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Message string `json:"message"`
}

// TestEmail returns the saved test email and whether one exists.
func (o *Options) TestEmail(ctx context.Context) (*TestEmail, bool, error) {
	var te TestEmail
	if err := store.GetJSON(ctx, o.store, TestEmailName, &te); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to load test email: %w", err)
	}
	return &te, true, nil
}

// SetTestEmail replaces the saved test email.
func (o *Options) SetTestEmail(ctx context.Context, te TestEmail) error {
	if err := store.SetJSON(ctx, o.store, TestEmailName, te); err != nil {
		return fmt.Errorf("failed to save test email: %w", err)
	}
	return nil
}
