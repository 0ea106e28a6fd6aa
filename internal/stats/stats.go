// Package stats counts delivery outcomes for the weekly summary.
package stats

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shineum/easysmtp/internal/store"
)

// OptionName is the store name of the counters.
const OptionName = "easy_wp_smtp_stats"

// Counts are the totals since Since.
type Counts struct {
	Sent   int       `json:"sent"`
	Failed int       `json:"failed"`
	Since  time.Time `json:"since"`
}

// Counter persists Counts in a store.
type Counter struct {
	mu    sync.Mutex
	store store.Store
	now   func() time.Time
}

// NewCounter returns a Counter over s.
func NewCounter(s store.Store) *Counter {
	return &Counter{store: s, now: time.Now}
}

// Record adds one outcome.
func (c *Counter) Record(ctx context.Context, sent bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	counts, err := c.load(ctx)
	if err != nil {
		return err
	}
	if sent {
		counts.Sent++
	} else {
		counts.Failed++
	}
	return c.save(ctx, counts)
}

// Snapshot returns the current totals.
func (c *Counter) Snapshot(ctx context.Context) (Counts, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.load(ctx)
}

// Reset returns the totals and starts a new period.
func (c *Counter) Reset(ctx context.Context) (Counts, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	counts, err := c.load(ctx)
	if err != nil {
		return Counts{}, err
	}
	if err := c.save(ctx, Counts{Since: c.now()}); err != nil {
		return Counts{}, err
	}
	return counts, nil
}

func (c *Counter) load(ctx context.Context) (Counts, error) {
	var counts Counts
	err := store.GetJSON(ctx, c.store, OptionName, &counts)
	if errors.Is(err, store.ErrNotFound) {
		return Counts{Since: c.now()}, nil
	}
	if err != nil {
		return Counts{}, fmt.Errorf("failed to load stats: %w", err)
	}
	return counts, nil
}

func (c *Counter) save(ctx context.Context, counts Counts) error {
	if err := store.SetJSON(ctx, c.store, OptionName, counts); err != nil {
		return fmt.Errorf("failed to save stats: %w", err)
	}
	return nil
}
