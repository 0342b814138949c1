// Package reconcile keeps the local cache eventually consistent with the ledger.
// The ledger is authoritative: a write is committed once the ledger accepts it,
// and a failing cache write is retried in the background instead of failing
// the caller.
package reconcile

import (
	"context"
	"time"

	"github.com/gogotex/gogotex/backend/notary-service/pkg/logger"
)

// Reconciler pairs the per-key lock with the retry queue.
type Reconciler struct {
	locks *KeyLocker
	queue *Queue
}

func New(base, max time.Duration) *Reconciler {
	return &Reconciler{locks: NewKeyLocker(), queue: NewQueue(base, max)}
}

// Lock serializes mutations on one entity.
func (r *Reconciler) Lock(ctx context.Context, entity, id string) (func(), error) {
	return r.locks.Acquire(ctx, Key(entity, id))
}

// WriteThrough runs the ledger step and then the cache step. A ledger error
// is returned untouched and the cache step is skipped. A cache error is not
// returned; the cache step is queued for retry.
func (r *Reconciler) WriteThrough(ctx context.Context, key, desc string, ledger, cache func(ctx context.Context) error) error {
	if err := ledger(ctx); err != nil {
		return err
	}
	r.Heal(ctx, key, desc, cache)
	return nil
}

// Heal applies a cache write now and falls back to the retry queue when it fails.
func (r *Reconciler) Heal(ctx context.Context, key, desc string, cache func(ctx context.Context) error) {
	if cache == nil {
		return
	}
	if err := cache(ctx); err != nil {
		logger.Warnf("reconcile: cache write %s for %s failed, deferring: %v", desc, key, err)
		r.queue.Enqueue(key, desc, cache)
	}
}

// Pending reports cache writes still waiting to land.
func (r *Reconciler) Pending() int { return r.queue.Pending() }

// Close stops background retries.
func (r *Reconciler) Close() []Job { return r.queue.Close() }
