// Package widthstore persists user-adjusted column widths.
//
// Widths are stored per key, where a key identifies one table (and
// optionally one page size of that table). Three backends are provided:
// an in-process map, a Redis hash per key and a Postgres table.
package widthstore

import (
	"context"
	"errors"
	"maps"
	"sync"
)

// ErrInvalidKey is returned for an empty storage key.
var ErrInvalidKey = errors.New("width store key is empty")

// Store loads and saves the widths of one table.
type Store interface {
	// Load returns the stored widths. A missing key yields an empty map.
	Load(ctx context.Context, key string) (map[string]int, error)
	// Save replaces every width stored under key.
	Save(ctx context.Context, key string, widths map[string]int) error
	// Delete removes key.
	Delete(ctx context.Context, key string) error
}

// Memory is a process-local Store.
type Memory struct {
	mu   sync.RWMutex
	data map[string]map[string]int
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{data: make(map[string]map[string]int)}
}

func (m *Memory) Load(_ context.Context, key string) (map[string]int, error) {
	if key == "" {
		return nil, ErrInvalidKey
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := maps.Clone(m.data[key])
	if out == nil {
		out = map[string]int{}
	}
	return out, nil
}

func (m *Memory) Save(_ context.Context, key string, widths map[string]int) error {
	if key == "" {
		return ErrInvalidKey
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(widths) == 0 {
		delete(m.data, key)
		return nil
	}
	m.data[key] = maps.Clone(widths)
	return nil
}

func (m *Memory) Delete(_ context.Context, key string) error {
	if key == "" {
		return ErrInvalidKey
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}
