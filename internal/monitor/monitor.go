// Package monitor runs the periodic integrity and notary sweeps.
package monitor

import (
	"context"
	"sync"
	"time"

	"github.com/gogotex/gogotex/backend/notary-service/internal/document"
	"github.com/gogotex/gogotex/backend/notary-service/internal/notary"
	notarysvc "github.com/gogotex/gogotex/backend/notary-service/internal/notary/service"
	"github.com/gogotex/gogotex/backend/notary-service/pkg/logger"
	"github.com/gogotex/gogotex/backend/notary-service/pkg/readiness"
)

const (
	DefaultIntegrityInterval = 5 * time.Minute
	DefaultNotaryInterval    = 10 * time.Minute
	DefaultReputationFloor   = 90.0
)

// Documents is the coordination engine surface the integrity sweep drives.
type Documents interface {
	DocumentsNeedingVerification(ctx context.Context) ([]*document.Document, error)
	AuditIntegrity(ctx context.Context, fp string) (*document.VerificationResult, []string, error)
}

// Notaries is the stake engine surface the notary sweep drives.
type Notaries interface {
	List(ctx context.Context) ([]*notary.Notary, error)
	Reconcile(ctx context.Context, addr string) (*notary.Notary, error)
}

type Options struct {
	IntegrityInterval time.Duration
	NotaryInterval    time.Duration
	ReputationFloor   float64
	// Ledger, when set, holds the sweeps back until the ledger is bound.
	Ledger *readiness.Gate
}

type Monitor struct {
	docs     Documents
	notaries Notaries
	opts     Options

	mu         sync.Mutex
	lastIntegr IntegrityReport
	lastNotary NotaryReport
}

// IntegrityReport summarizes one integrity sweep.
type IntegrityReport struct {
	Checked    int       `json:"checked"`
	Verified   int       `json:"verified"`
	Partial    int       `json:"partial"`
	Violations int       `json:"violations"`
	Slashed    []string  `json:"slashed"`
	Failed     int       `json:"failed"`
	FinishedAt time.Time `json:"finishedAt"`
}

// NotaryReport summarizes one notary sweep.
type NotaryReport struct {
	Checked       int       `json:"checked"`
	LowReputation []string  `json:"lowReputation"`
	Failed        int       `json:"failed"`
	FinishedAt    time.Time `json:"finishedAt"`
}

func New(docs Documents, notaries Notaries, opts Options) *Monitor {
	if opts.IntegrityInterval <= 0 {
		opts.IntegrityInterval = DefaultIntegrityInterval
	}
	if opts.NotaryInterval <= 0 {
		opts.NotaryInterval = DefaultNotaryInterval
	}
	if opts.ReputationFloor <= 0 {
		opts.ReputationFloor = DefaultReputationFloor
	}
	return &Monitor{docs: docs, notaries: notaries, opts: opts}
}

// IntegritySweep audits every document due for verification. A failure on one
// document is logged and the sweep moves on.
func (m *Monitor) IntegritySweep(ctx context.Context) (IntegrityReport, error) {
	var rep IntegrityReport
	due, err := m.docs.DocumentsNeedingVerification(ctx)
	if err != nil {
		return rep, err
	}
	for _, d := range due {
		if ctx.Err() != nil {
			break
		}
		rep.Checked++
		res, slashed, err := m.docs.AuditIntegrity(ctx, d.Fingerprint)
		if err != nil {
			rep.Failed++
			logger.Warnf("monitor: integrity check of %s failed: %v", d.Fingerprint, err)
			continue
		}
		switch {
		case res.Verified:
			rep.Verified++
		case res.Status != nil && res.Status.Partial():
			rep.Partial++
		}
		if len(slashed) > 0 || (res.Status != nil && res.Status.HashError == "" && !res.Status.HashMatches) {
			rep.Violations++
			rep.Slashed = append(rep.Slashed, slashed...)
		}
	}
	rep.FinishedAt = time.Now().UTC()
	m.mu.Lock()
	m.lastIntegr = rep
	m.mu.Unlock()
	logger.Infof("monitor: integrity sweep checked %d documents (%d verified, %d partial, %d violations, %d failed)",
		rep.Checked, rep.Verified, rep.Partial, rep.Violations, rep.Failed)
	return rep, nil
}

// NotarySweep reconciles every cached notary against the ledger and flags low
// reputations.
func (m *Monitor) NotarySweep(ctx context.Context) (NotaryReport, error) {
	var rep NotaryReport
	all, err := m.notaries.List(ctx)
	if err != nil {
		return rep, err
	}
	for _, cached := range all {
		if ctx.Err() != nil {
			break
		}
		rep.Checked++
		n, err := m.notaries.Reconcile(ctx, cached.Address)
		if err != nil {
			rep.Failed++
			logger.Warnf("monitor: reconcile notary %s failed: %v", cached.Address, err)
			continue
		}
		if score := notarysvc.Score(n.SuccessfulNotarizations, n.SlashedCount); score < m.opts.ReputationFloor {
			rep.LowReputation = append(rep.LowReputation, n.Address)
			logger.Warnf("monitor: notary %s reputation %.1f below %.1f (active=%t, slashed %d times)",
				n.Address, score, m.opts.ReputationFloor, n.Active, n.SlashedCount)
		}
	}
	rep.FinishedAt = time.Now().UTC()
	m.mu.Lock()
	m.lastNotary = rep
	m.mu.Unlock()
	return rep, nil
}

// Last returns the most recent sweep reports.
func (m *Monitor) Last() (IntegrityReport, NotaryReport) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastIntegr, m.lastNotary
}

// Run drives both sweeps on their own tickers until ctx is done. With a
// ledger gate it first waits for the gate and returns without sweeping unless
// the ledger came up ready.
func (m *Monitor) Run(ctx context.Context) {
	if m.opts.Ledger != nil {
		if st := m.opts.Ledger.Wait(ctx, 0); st != readiness.StateReady {
			if ctx.Err() == nil {
				_, reason := m.opts.Ledger.State()
				logger.Warnf("monitor: ledger %s (%s), sweeps disabled", st, reason)
			}
			return
		}
	}
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		m.loop(ctx, "integrity", m.opts.IntegrityInterval, func(ctx context.Context) error {
			_, err := m.IntegritySweep(ctx)
			return err
		})
	}()
	go func() {
		defer wg.Done()
		m.loop(ctx, "notary", m.opts.NotaryInterval, func(ctx context.Context) error {
			_, err := m.NotarySweep(ctx)
			return err
		})
	}()
	wg.Wait()
}

func (m *Monitor) loop(ctx context.Context, name string, every time.Duration, sweep func(context.Context) error) {
	t := time.NewTicker(every)
	defer t.Stop()
	logger.Infof("monitor: %s sweep every %s", name, every)
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if err := sweep(ctx); err != nil && ctx.Err() == nil {
				logger.Errorf("monitor: %s sweep: %v", name, err)
			}
		}
	}
}
