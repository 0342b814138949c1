package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/gogotex/gogotex/backend/notary-service/internal/apperr"
	"github.com/gogotex/gogotex/backend/notary-service/internal/notary"
)

type MemoryRepo struct {
	mu       sync.RWMutex
	notaries map[string]*notary.Notary
	events   map[string][]*notary.SlashEvent
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{notaries: make(map[string]*notary.Notary), events: make(map[string][]*notary.SlashEvent)}
}

func (m *MemoryRepo) Get(_ context.Context, address string) (*notary.Notary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if n, ok := m.notaries[address]; ok {
		return n.Clone(), nil
	}
	return nil, apperr.Wrap(apperr.ErrNotaryNotFound, "%s", address)
}

func (m *MemoryRepo) Save(_ context.Context, n *notary.Notary) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := n.Clone()
	c.UpdatedAt = time.Now().UTC()
	m.notaries[n.Address] = c
	return nil
}

func (m *MemoryRepo) IncrementSuccess(_ context.Context, address string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.notaries[address]
	if !ok {
		return apperr.Wrap(apperr.ErrNotaryNotFound, "%s", address)
	}
	n.SuccessfulNotarizations++
	n.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *MemoryRepo) list(keep func(*notary.Notary) bool) []*notary.Notary {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*notary.Notary, 0, len(m.notaries))
	for _, n := range m.notaries {
		if keep(n) {
			out = append(out, n.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Address < out[j].Address })
	return out
}

func (m *MemoryRepo) List(context.Context) ([]*notary.Notary, error) {
	return m.list(func(*notary.Notary) bool { return true }), nil
}

func (m *MemoryRepo) ListActive(context.Context) ([]*notary.Notary, error) {
	return m.list(func(n *notary.Notary) bool { return n.Active }), nil
}

func (m *MemoryRepo) AppendSlashEvent(_ context.Context, ev *notary.SlashEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := *ev
	m.events[ev.Notary] = append(m.events[ev.Notary], &c)
	return nil
}

func (m *MemoryRepo) ListSlashEvents(_ context.Context, address string) ([]*notary.SlashEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*notary.SlashEvent, 0, len(m.events[address]))
	for _, ev := range m.events[address] {
		c := *ev
		out = append(out, &c)
	}
	return out, nil
}
