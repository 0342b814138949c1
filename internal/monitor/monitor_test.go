package monitor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/gogotex/gogotex/backend/notary-service/internal/apperr"
	"github.com/gogotex/gogotex/backend/notary-service/internal/document"
	"github.com/gogotex/gogotex/backend/notary-service/internal/notary"
	"github.com/gogotex/gogotex/backend/notary-service/pkg/readiness"
)

type fakeDocs struct {
	mu      sync.Mutex
	due     []*document.Document
	results map[string]*document.VerificationResult
	slashed map[string][]string
	audits  int
}

func (f *fakeDocs) DocumentsNeedingVerification(context.Context) ([]*document.Document, error) {
	return f.due, nil
}

func (f *fakeDocs) AuditIntegrity(_ context.Context, fp string) (*document.VerificationResult, []string, error) {
	f.mu.Lock()
	f.audits++
	f.mu.Unlock()
	res, ok := f.results[fp]
	if !ok {
		return nil, nil, apperr.ErrDocumentNotFound
	}
	return res, f.slashed[fp], nil
}

func (f *fakeDocs) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.audits
}

type fakeNotaries struct {
	cached  []*notary.Notary
	onChain map[string]*notary.Notary
}

func (f *fakeNotaries) List(context.Context) ([]*notary.Notary, error) { return f.cached, nil }

func (f *fakeNotaries) Reconcile(_ context.Context, addr string) (*notary.Notary, error) {
	n, ok := f.onChain[addr]
	if !ok {
		return nil, errors.New("ledger timeout")
	}
	return n, nil
}

func TestIntegritySweepCountsOutcomes(t *testing.T) {
	docs := &fakeDocs{
		due: []*document.Document{{Fingerprint: "good"}, {Fingerprint: "bad"}, {Fingerprint: "partial"}, {Fingerprint: "gone"}},
		results: map[string]*document.VerificationResult{
			"good":    {Verified: true, Status: &document.VerificationStatus{HashMatches: true, NotarizedOnChain: true}},
			"bad":     {Status: &document.VerificationStatus{NotarizedOnChain: true}},
			"partial": {Status: &document.VerificationStatus{HashMatches: true, ChainError: "timeout"}},
		},
		slashed: map[string][]string{"bad": {"0xa", "0xb"}},
	}
	m := New(docs, &fakeNotaries{}, Options{})

	rep, err := m.IntegritySweep(context.Background())
	require.NoError(t, err)
	require.Equal(t, 4, rep.Checked)
	require.Equal(t, 1, rep.Verified)
	require.Equal(t, 1, rep.Partial)
	require.Equal(t, 1, rep.Violations)
	require.Equal(t, 1, rep.Failed)
	require.Equal(t, []string{"0xa", "0xb"}, rep.Slashed)

	last, _ := m.Last()
	require.Equal(t, rep.Checked, last.Checked)
}

func TestNotarySweepFlagsLowReputation(t *testing.T) {
	ns := &fakeNotaries{
		cached: []*notary.Notary{{Address: "0xa"}, {Address: "0xb"}, {Address: "0xc"}, {Address: "0xd"}},
		onChain: map[string]*notary.Notary{
			"0xa": {Address: "0xa", SuccessfulNotarizations: 20, SlashedCount: 1},
			"0xb": {Address: "0xb", SuccessfulNotarizations: 1, SlashedCount: 1},
			"0xc": {Address: "0xc"},
		},
	}
	m := New(&fakeDocs{}, ns, Options{})

	rep, err := m.NotarySweep(context.Background())
	require.NoError(t, err)
	require.Equal(t, 4, rep.Checked)
	require.Equal(t, 1, rep.Failed)
	require.Equal(t, []string{"0xb"}, rep.LowReputation)
}

func TestRunSweepsUntilCancelled(t *testing.T) {
	docs := &fakeDocs{
		due:     []*document.Document{{Fingerprint: "good"}},
		results: map[string]*document.VerificationResult{"good": {Verified: true}},
	}
	m := New(docs, &fakeNotaries{}, Options{IntegrityInterval: 5 * time.Millisecond, NotaryInterval: 5 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.Run(ctx)
		close(done)
	}()
	require.Eventually(t, func() bool { return docs.count() >= 2 }, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("monitor did not stop")
	}
}

func TestRunWaitsForLedgerGate(t *testing.T) {
	docs := &fakeDocs{
		due:     []*document.Document{{Fingerprint: "good"}},
		results: map[string]*document.VerificationResult{"good": {Verified: true}},
	}
	gate := readiness.NewGate("ledger")
	m := New(docs, &fakeNotaries{}, Options{IntegrityInterval: 5 * time.Millisecond, NotaryInterval: 5 * time.Millisecond, Ledger: gate})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Run(ctx)

	time.Sleep(30 * time.Millisecond)
	require.Zero(t, docs.count(), "no sweep before the ledger is bound")

	gate.MarkReady()
	require.Eventually(t, func() bool { return docs.count() >= 1 }, time.Second, 5*time.Millisecond)
	var integ IntegrityReport
	require.Eventually(t, func() bool {
		integ, _ = m.Last()
		return !integ.FinishedAt.IsZero()
	}, time.Second, 5*time.Millisecond)
	require.Equal(t, 1, integ.Verified)
}

func TestRunReturnsWhenLedgerUnusable(t *testing.T) {
	docs := &fakeDocs{}
	gate := readiness.NewGate("ledger")
	gate.MarkDegraded("cache only")
	m := New(docs, &fakeNotaries{}, Options{IntegrityInterval: time.Millisecond, NotaryInterval: time.Millisecond, Ledger: gate})

	done := make(chan struct{})
	go func() {
		m.Run(context.Background())
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("monitor kept running on a degraded ledger")
	}
	require.Zero(t, docs.count())
}
