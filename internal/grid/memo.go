package grid

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sync"

	"github.com/cespare/xxhash/v2"
)

// StructuralKey hashes the canonical JSON form of parts. Map keys are
// sorted by encoding/json, so equal structures produce equal keys
// regardless of insertion order. Functions hash by code pointer.
func StructuralKey(parts ...any) (uint64, error) {
	h := xxhash.New()
	for i, p := range parts {
		if i > 0 {
			_, _ = h.Write([]byte{0})
		}
		if p != nil && reflect.TypeOf(p).Kind() == reflect.Func {
			_, _ = fmt.Fprintf(h, "func:%x", reflect.ValueOf(p).Pointer())
			continue
		}
		b, err := json.Marshal(p)
		if err != nil {
			return 0, fmt.Errorf("structural key part %d: %w", i, err)
		}
		_, _ = h.Write(b)
	}
	return h.Sum64(), nil
}

// Memo caches the last computed value for a structural key.
type Memo[T any] struct {
	mu    sync.Mutex
	key   uint64
	valid bool
	value T

	hits   int
	misses int
}

// Get returns the cached value when key matches the last key, otherwise
// computes, stores and returns a fresh value.
func (m *Memo[T]) Get(key uint64, compute func() (T, error)) (T, error) {
	m.mu.Lock()
	if m.valid && m.key == key {
		m.hits++
		v := m.value
		m.mu.Unlock()
		return v, nil
	}
	m.mu.Unlock()

	v, err := compute()
	if err != nil {
		return v, err
	}

	m.mu.Lock()
	m.key, m.value, m.valid = key, v, true
	m.misses++
	m.mu.Unlock()
	return v, nil
}

// Reset drops the cached value.
func (m *Memo[T]) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	var zero T
	m.value, m.valid, m.key = zero, false, 0
}

// Stats returns hit and miss counts.
func (m *Memo[T]) Stats() (hits, misses int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.hits, m.misses
}
