// Package attempts remembers recent (content address, notary) notarization
// attempts so a repeat inside the detection window can be caught.
package attempts

import (
	"container/list"
	"context"
	"sync"
	"time"
)

const DefaultWindow = 24 * time.Hour

// Tracker is owned by one coordination engine instance.
type Tracker interface {
	// Record notes an attempt and reports whether one was already recorded
	// inside the window.
	Record(ctx context.Context, contentAddress, notary string) (bool, error)
	// Forget drops an attempt, used when the ledger never accepted it.
	Forget(ctx context.Context, contentAddress, notary string) error
}

func key(contentAddress, notary string) string {
	return contentAddress + "|" + notary
}

// MemoryTracker keeps attempts in insertion (= time) order and purges from the
// front on every access.
type MemoryTracker struct {
	window time.Duration
	now    func() time.Time

	mu    sync.Mutex
	order *list.List
	index map[string]*list.Element
}

type entry struct {
	key string
	at  time.Time
}

func NewMemoryTracker(window time.Duration) *MemoryTracker {
	if window <= 0 {
		window = DefaultWindow
	}
	return &MemoryTracker{
		window: window,
		now:    time.Now,
		order:  list.New(),
		index:  make(map[string]*list.Element),
	}
}

// SetClock replaces the time source.
func (t *MemoryTracker) SetClock(now func() time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.now = now
}

func (t *MemoryTracker) purge(now time.Time) {
	cutoff := now.Add(-t.window)
	for e := t.order.Front(); e != nil; e = t.order.Front() {
		en := e.Value.(*entry)
		if en.at.After(cutoff) {
			return
		}
		t.order.Remove(e)
		delete(t.index, en.key)
	}
}

func (t *MemoryTracker) Record(_ context.Context, contentAddress, notary string) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	t.purge(now)
	k := key(contentAddress, notary)
	if _, ok := t.index[k]; ok {
		return true, nil
	}
	t.index[k] = t.order.PushBack(&entry{key: k, at: now})
	return false, nil
}

func (t *MemoryTracker) Forget(_ context.Context, contentAddress, notary string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	k := key(contentAddress, notary)
	if e, ok := t.index[k]; ok {
		t.order.Remove(e)
		delete(t.index, k)
	}
	return nil
}

// Len reports the attempts currently inside the window.
func (t *MemoryTracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.purge(t.now())
	return t.order.Len()
}
