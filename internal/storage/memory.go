package storage

import (
	"context"
	"sync"
)

type memoryStore struct {
	mu     sync.Mutex
	blobs  map[string][]byte
	closed bool
}

func NewMemory() Store {
	return &memoryStore{blobs: map[string][]byte{}}
}

func (m *memoryStore) Load(_ context.Context, name string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, false, ErrClosed
	}
	b, ok := m.blobs[name]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), b...), true, nil
}

func (m *memoryStore) Save(_ context.Context, name string, data []byte) error {
	if !validName(name) {
		return ErrInvalidName
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.blobs[name] = append([]byte(nil), data...)
	return nil
}

func (m *memoryStore) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}
