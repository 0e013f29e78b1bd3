// Package state persists the last timestamp a polling client has seen.
//
// The value is kept as a decimal string under a single key. A missing key, or
// a value that does not parse as an integer, means no baseline has been taken.
package state

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
)

// DefaultKey names the stored timestamp.
const DefaultKey = "farTimestamp"

type Store interface {
	// Load returns the last seen timestamp and whether one is stored.
	Load(ctx context.Context) (int64, bool, error)
	Save(ctx context.Context, ts int64) error
	// Reset forgets the baseline.
	Reset(ctx context.Context) error
}

func parse(s string) (int64, bool) {
	ts, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, false
	}
	return ts, true
}

func format(ts int64) string {
	return strconv.FormatInt(ts, 10)
}

// MemoryStore lives as long as the process.
type MemoryStore struct {
	mu    sync.Mutex
	value string
	set   bool
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) Load(context.Context) (int64, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.set {
		return 0, false, nil
	}
	ts, ok := parse(m.value)
	return ts, ok, nil
}

func (m *MemoryStore) Save(_ context.Context, ts int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.value, m.set = format(ts), true
	return nil
}

func (m *MemoryStore) Reset(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.value, m.set = "", false
	return nil
}

// FileStore keeps the timestamp in a small text file, so the baseline survives
// restarts of the client.
type FileStore struct {
	path string
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (f *FileStore) Load(context.Context) (int64, bool, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("failed to read state file: %w", err)
	}
	ts, ok := parse(string(data))
	return ts, ok, nil
}

func (f *FileStore) Save(_ context.Context, ts int64) error {
	if err := os.MkdirAll(filepath.Dir(f.path), 0755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}

	// Write then rename so a reader never sees a half-written value.
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, []byte(format(ts)), 0644); err != nil {
		return fmt.Errorf("failed to write state file: %w", err)
	}
	if err := os.Rename(tmp, f.path); err != nil {
		return fmt.Errorf("failed to replace state file: %w", err)
	}
	return nil
}

func (f *FileStore) Reset(context.Context) error {
	if err := os.Remove(f.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove state file: %w", err)
	}
	return nil
}
