package contentstore

import (
	"context"
	"sync"

	"github.com/gogotex/gogotex/backend/notary-service/internal/apperr"
	"github.com/gogotex/gogotex/backend/notary-service/internal/fingerprint"
)

// MemoryMirror keeps blobs in process. Used when no mirror is configured and in tests.
type MemoryMirror struct {
	name  string
	mu    sync.RWMutex
	blobs map[string][]byte
}

func NewMemoryMirror(name string) *MemoryMirror {
	if name == "" {
		name = "memory"
	}
	return &MemoryMirror{name: name, blobs: make(map[string][]byte)}
}

func (m *MemoryMirror) Name() string { return m.name }

func (m *MemoryMirror) Put(_ context.Context, b []byte) (string, error) {
	addr, err := fingerprint.ContentAddress(b)
	if err != nil {
		return "", err
	}
	m.Overwrite(addr, b)
	return addr, nil
}

// Overwrite replaces the bytes stored under addr without recomputing it.
func (m *MemoryMirror) Overwrite(addr string, b []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blobs[addr] = append([]byte{}, b...)
}

func (m *MemoryMirror) Delete(addr string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.blobs, addr)
}

func (m *MemoryMirror) Get(_ context.Context, addr string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.blobs[addr]
	if !ok {
		return nil, apperr.Wrap(apperr.ErrContentNotFound, "%s", addr)
	}
	return append([]byte{}, b...), nil
}

func (m *MemoryMirror) Has(_ context.Context, addr string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.blobs[addr]
	return ok, nil
}
