package store

import (
	"context"
	"strings"

	"github.com/Asmamaw-kas/MYBOT/internal/util/syncx"
)

// Mem is an in-memory Store implementation. Its contents are lost on
// restart; it exists for local development and tests.
type Mem struct {
	m *syncx.Protected[map[string][]byte]
}

// NewMem returns a new empty in-memory store.
func NewMem() *Mem {
	return &Mem{m: syncx.Protect(make(map[string][]byte))}
}

// Get implements the Store interface.
func (s *Mem) Get(_ context.Context, key string) ([]byte, error) {
	var (
		val []byte
		ok  bool
	)
	s.m.RAccess(func(m map[string][]byte) {
		val, ok = m[key]
	})
	if !ok {
		return nil, ErrNotExist
	}
	// Copy so the caller can't mutate stored data.
	cp := make([]byte, len(val))
	copy(cp, val)
	return cp, nil
}

// Set implements the Store interface.
func (s *Mem) Set(_ context.Context, key string, value []byte) error {
	cp := make([]byte, len(value))
	copy(cp, value)
	s.m.Access(func(m map[string][]byte) {
		m[key] = cp
	})
	return nil
}

// List implements the Store interface.
func (s *Mem) List(_ context.Context, prefix string) (map[string][]byte, error) {
	res := make(map[string][]byte)
	s.m.RAccess(func(m map[string][]byte) {
		for k, v := range m {
			if strings.HasPrefix(k, prefix) {
				cp := make([]byte, len(v))
				copy(cp, v)
				res[k] = cp
			}
		}
	})
	return res, nil
}

// Close implements the Store interface.
func (s *Mem) Close() error { return nil }
