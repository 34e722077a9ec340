// Package sessionstore persists the identity and support-mode keys of one deployment
// and owns the logged-out tombstone.
package sessionstore

import (
	"context"
	"sort"
	"sync"
)

// Backend is a flat string key-value store. Get reports ok=false for a missing key.
type Backend interface {
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// BatchSetter is implemented by backends that can write several keys as one
// change, so a reader never sees half of the batch.
type BatchSetter interface {
	SetMany(ctx context.Context, values map[string]string) error
}

// SetMany writes values in one change when b is a BatchSetter, otherwise one key
// at a time in key order.
func SetMany(ctx context.Context, b Backend, values map[string]string) error {
	if bs, ok := b.(BatchSetter); ok {
		return bs.SetMany(ctx, values)
	}
	for _, k := range sortedKeys(values) {
		if err := b.Set(ctx, k, values[k]); err != nil {
			return err
		}
	}
	return nil
}

func sortedKeys(values map[string]string) []string {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// MemoryBackend keeps values for the life of the process only.
type MemoryBackend struct {
	mu     sync.Mutex
	values map[string]string
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{values: make(map[string]string)}
}

func (m *MemoryBackend) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.values[key]
	return v, ok, nil
}

func (m *MemoryBackend) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	return nil
}

func (m *MemoryBackend) SetMany(_ context.Context, values map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, v := range values {
		m.values[k] = v
	}
	return nil
}

func (m *MemoryBackend) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values, key)
	return nil
}

func (m *MemoryBackend) Close() error { return nil }

// Snapshot copies the current contents.
func (m *MemoryBackend) Snapshot() map[string]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]string, len(m.values))
	for k, v := range m.values {
		out[k] = v
	}
	return out
}
