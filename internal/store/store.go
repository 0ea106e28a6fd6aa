// Package store persists named option blobs. It is the storage seam for legacy
// options, current options, migration state and scheduled task metadata.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
)

// ErrNotFound is returned by GetJSON when the named option does not exist.
var ErrNotFound = errors.New("option not found")

// Store is a flat key-value store addressed by option name. Writes are
// last-write-wins; implementations must be safe for concurrent use.
type Store interface {
	// Get returns the raw value and whether the option exists.
	Get(ctx context.Context, name string) ([]byte, bool, error)
	// Set creates or replaces the option.
	Set(ctx context.Context, name string, value []byte) error
	// Delete removes the option. Deleting a missing option is not an error.
	Delete(ctx context.Context, name string) error
}

// GetJSON decodes the named option into v.
func GetJSON(ctx context.Context, s Store, name string, v any) error {
	raw, ok, err := s.Get(ctx, name)
	if err != nil {
		return fmt.Errorf("failed to read option %q: %w", name, err)
	}
	if !ok {
		return ErrNotFound
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("failed to decode option %q: %w", name, err)
	}
	return nil
}

// SetJSON encodes v and stores it under name.
func SetJSON(ctx context.Context, s Store, name string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode option %q: %w", name, err)
	}
	if err := s.Set(ctx, name, raw); err != nil {
		return fmt.Errorf("failed to write option %q: %w", name, err)
	}
	return nil
}

// Memory is an in-process Store.
type Memory struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{data: make(map[string][]byte)}
}

func (m *Memory) Get(_ context.Context, name string) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[name]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), v...), true, nil
}

func (m *Memory) Set(_ context.Context, name string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[name] = append([]byte(nil), value...)
	return nil
}

func (m *Memory) Delete(_ context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, name)
	return nil
}
