package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/gogotex/gogotex/backend/notary-service/internal/apperr"
	"github.com/gogotex/gogotex/backend/notary-service/internal/document"
)

// MemoryRepo is the in-process cache used when no MongoDB is configured and
// in unit tests.
type MemoryRepo struct {
	mu     sync.RWMutex
	store  map[string]*document.Document
	byAddr map[string]string
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{store: make(map[string]*document.Document), byAddr: make(map[string]string)}
}

func (m *MemoryRepo) Create(_ context.Context, d *document.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.store[d.Fingerprint]; ok {
		return apperr.Wrap(apperr.ErrDuplicateFingerprint, "%s", d.Fingerprint)
	}
	if _, ok := m.byAddr[d.ContentAddress]; ok {
		return apperr.Wrap(apperr.ErrDuplicateFingerprint, "content address %s", d.ContentAddress)
	}
	m.put(d.Clone())
	return nil
}

func (m *MemoryRepo) Merge(_ context.Context, d *document.Document, quorum int) (*document.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.store[d.Fingerprint]
	if !ok {
		if _, taken := m.byAddr[d.ContentAddress]; taken {
			return nil, apperr.Wrap(apperr.ErrDuplicateFingerprint, "content address %s", d.ContentAddress)
		}
		cur = d.Clone()
		cur.NotaryIdentities = []string{}
		m.put(cur)
	}
	for _, n := range d.NotaryIdentities {
		if !cur.HasNotary(n) {
			cur.NotaryIdentities = append(cur.NotaryIdentities, n)
		}
	}
	if d.Notarized || len(cur.NotaryIdentities) >= quorum {
		cur.Notarized = true
	}
	if cur.TxHash == "" {
		cur.TxHash = d.TxHash
	}
	return cur.Clone(), nil
}

func (m *MemoryRepo) put(d *document.Document) {
	m.store[d.Fingerprint] = d
	m.byAddr[d.ContentAddress] = d.Fingerprint
}

func (m *MemoryRepo) Get(_ context.Context, fingerprint string) (*document.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if d, ok := m.store[fingerprint]; ok {
		return d.Clone(), nil
	}
	return nil, apperr.Wrap(apperr.ErrDocumentNotFound, "%s", fingerprint)
}

func (m *MemoryRepo) GetByContentAddress(_ context.Context, contentAddress string) (*document.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if fp, ok := m.byAddr[contentAddress]; ok {
		return m.store[fp].Clone(), nil
	}
	return nil, apperr.Wrap(apperr.ErrDocumentNotFound, "content address %s", contentAddress)
}

func (m *MemoryRepo) AddNotary(_ context.Context, fingerprint, notary string, quorum int) (*document.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.store[fingerprint]
	if !ok {
		return nil, apperr.Wrap(apperr.ErrDocumentNotFound, "%s", fingerprint)
	}
	if !d.HasNotary(notary) {
		d.NotaryIdentities = append(d.NotaryIdentities, notary)
	}
	if len(d.NotaryIdentities) >= quorum {
		d.Notarized = true
	}
	return d.Clone(), nil
}

func (m *MemoryRepo) SetLastVerified(_ context.Context, fingerprint string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.store[fingerprint]
	if !ok {
		return apperr.Wrap(apperr.ErrDocumentNotFound, "%s", fingerprint)
	}
	at = at.UTC()
	d.LastVerifiedAt = &at
	return nil
}

func (m *MemoryRepo) UpdateName(_ context.Context, fingerprint, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.store[fingerprint]
	if !ok {
		return apperr.Wrap(apperr.ErrDocumentNotFound, "%s", fingerprint)
	}
	d.Name = name
	return nil
}

func (m *MemoryRepo) Delete(_ context.Context, fingerprint string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.store[fingerprint]
	if !ok {
		return apperr.Wrap(apperr.ErrDocumentNotFound, "%s", fingerprint)
	}
	delete(m.byAddr, d.ContentAddress)
	delete(m.store, fingerprint)
	return nil
}

func (m *MemoryRepo) filter(keep func(*document.Document) bool) []*document.Document {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*document.Document, 0)
	for _, d := range m.store {
		if keep(d) {
			out = append(out, d.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RegisteredAt.Before(out[j].RegisteredAt) })
	return out
}

func (m *MemoryRepo) List(context.Context) ([]*document.Document, error) {
	return m.filter(func(*document.Document) bool { return true }), nil
}

func (m *MemoryRepo) ListByOwner(_ context.Context, owner string) ([]*document.Document, error) {
	return m.filter(func(d *document.Document) bool { return d.Owner == owner }), nil
}

func (m *MemoryRepo) ListByNotarized(_ context.Context, notarized bool) ([]*document.Document, error) {
	return m.filter(func(d *document.Document) bool { return d.Notarized == notarized }), nil
}

func (m *MemoryRepo) ListByNotary(_ context.Context, notary string) ([]*document.Document, error) {
	return m.filter(func(d *document.Document) bool { return d.HasNotary(notary) }), nil
}

func (m *MemoryRepo) ListStale(_ context.Context, cutoff time.Time) ([]*document.Document, error) {
	return m.filter(func(d *document.Document) bool {
		return d.LastVerifiedAt == nil || d.LastVerifiedAt.Before(cutoff)
	}), nil
}
