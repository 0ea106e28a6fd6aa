package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"
)

// File is a Store backed by a single YAML document mapping option names to
// their JSON values. The whole document is rewritten on every change.
type File struct {
	mu   sync.Mutex
	path string
}

// NewFile returns a File store at path. The file is created on first write.
func NewFile(path string) *File {
	return &File{path: path}
}

func (f *File) Get(_ context.Context, name string) ([]byte, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	doc, err := f.load()
	if err != nil {
		return nil, false, err
	}
	v, ok := doc[name]
	if !ok {
		return nil, false, nil
	}
	return []byte(v), true, nil
}

func (f *File) Set(_ context.Context, name string, value []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	doc, err := f.load()
	if err != nil {
		return err
	}
	doc[name] = string(value)
	return f.save(doc)
}

func (f *File) Delete(_ context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	doc, err := f.load()
	if err != nil {
		return err
	}
	if _, ok := doc[name]; !ok {
		return nil
	}
	delete(doc, name)
	return f.save(doc)
}

func (f *File) load() (map[string]string, error) {
	doc := make(map[string]string)
	data, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return doc, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read options file: %w", err)
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse options file: %w", err)
	}
	return doc, nil
}

func (f *File) save(doc map[string]string) error {
	data, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to encode options file: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
		return fmt.Errorf("failed to create options directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(f.path), ".options-*")
	if err != nil {
		return fmt.Errorf("failed to write options file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write options file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write options file: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0o600); err != nil {
		return fmt.Errorf("failed to write options file: %w", err)
	}
	if err := os.Rename(tmp.Name(), f.path); err != nil {
		return fmt.Errorf("failed to replace options file: %w", err)
	}
	return nil
}
