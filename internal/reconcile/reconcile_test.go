package reconcile

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestBackoffDoublesUpToCap(t *testing.T) {
	base, max := time.Second, 30*time.Second
	require.Equal(t, time.Second, Backoff(1, base, max))
	require.Equal(t, 2*time.Second, Backoff(2, base, max))
	require.Equal(t, 16*time.Second, Backoff(5, base, max))
	require.Equal(t, 30*time.Second, Backoff(6, base, max))
	require.Equal(t, 30*time.Second, Backoff(60, base, max))
	require.Equal(t, time.Second, Backoff(0, base, max))
}

func TestKeyLockerSerializesSameKey(t *testing.T) {
	l := NewKeyLocker()
	ctx := context.Background()

	var inside, peak int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := l.Acquire(ctx, Key("notary", "0xabc"))
			require.NoError(t, err)
			n := atomic.AddInt32(&inside, 1)
			for {
				p := atomic.LoadInt32(&peak)
				if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
					break
				}
			}
			time.Sleep(2 * time.Millisecond)
			atomic.AddInt32(&inside, -1)
			release()
		}()
	}
	wg.Wait()
	require.Equal(t, int32(1), peak)
	require.Equal(t, 0, l.Len())
}

func TestKeyLockerDistinctKeysDoNotBlock(t *testing.T) {
	l := NewKeyLocker()
	ctx := context.Background()
	r1, err := l.Acquire(ctx, Key("document", "a"))
	require.NoError(t, err)
	defer r1()

	ctx2, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	r2, err := l.Acquire(ctx2, Key("document", "b"))
	require.NoError(t, err)
	r2()
}

func TestKeyLockerHonorsContext(t *testing.T) {
	l := NewKeyLocker()
	release, err := l.Acquire(context.Background(), "k")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = l.Acquire(ctx, "k")
	require.ErrorIs(t, err, context.DeadlineExceeded)

	release()
	release() // second call is a no-op
	require.Equal(t, 0, l.Len())
}

func TestWriteThroughSkipsCacheOnLedgerError(t *testing.T) {
	r := New(time.Millisecond, 5*time.Millisecond)
	defer r.Close()

	boom := errors.New("ledger down")
	cacheCalled := false
	err := r.WriteThrough(context.Background(), "notary:a", "register",
		func(context.Context) error { return boom },
		func(context.Context) error { cacheCalled = true; return nil })
	require.ErrorIs(t, err, boom)
	require.False(t, cacheCalled)
	require.Equal(t, 0, r.Pending())
}

func TestWriteThroughQueuesFailedCacheWrite(t *testing.T) {
	r := New(time.Millisecond, 4*time.Millisecond)
	defer r.Close()

	var calls int32
	err := r.WriteThrough(context.Background(), "document:f", "register",
		func(context.Context) error { return nil },
		func(context.Context) error {
			if atomic.AddInt32(&calls, 1) < 3 {
				return errors.New("cache unavailable")
			}
			return nil
		})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&calls) >= 3 && r.Pending() == 0
	}, time.Second, 2*time.Millisecond)
}

func TestQueueCloseReportsPending(t *testing.T) {
	q := NewQueue(time.Hour, 2*time.Hour)
	q.Enqueue("notary:x", "slash", func(context.Context) error { return nil })
	require.Equal(t, 1, q.Pending())
	left := q.Close()
	require.Len(t, left, 1)
	require.Equal(t, "notary:x", left[0].Key)
}
