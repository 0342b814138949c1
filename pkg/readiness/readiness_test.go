package readiness

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestGateResolvesOnce(t *testing.T) {
	g := NewGate("ledger")
	s, _ := g.State()
	require.Equal(t, StatePending, s)

	require.True(t, g.MarkFailed("no rpc"))
	require.False(t, g.MarkReady())
	s, reason := g.State()
	require.Equal(t, StateFailed, s)
	require.Equal(t, "no rpc", reason)

	select {
	case <-g.Done():
	default:
		t.Fatal("done channel should be closed")
	}
}

func TestWaitTimesOutAsPending(t *testing.T) {
	g := NewGate("ledger")
	start := time.Now()
	require.Equal(t, StatePending, g.Wait(context.Background(), 20*time.Millisecond))
	require.Less(t, time.Since(start), time.Second)
}

func TestWaitReturnsWhenResolved(t *testing.T) {
	g := NewGate("ledger")
	go func() {
		time.Sleep(10 * time.Millisecond)
		g.MarkReady()
	}()
	require.Equal(t, StateReady, g.Wait(context.Background(), time.Second))
}
