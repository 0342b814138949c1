// Package service is the stake and slash engine: it owns the notary lifecycle
// and keeps the cached notary records converged with the ledger.
package service

import (
	"context"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/gogotex/gogotex/backend/notary-service/internal/apperr"
	"github.com/gogotex/gogotex/backend/notary-service/internal/fingerprint"
	"github.com/gogotex/gogotex/backend/notary-service/internal/ledger"
	"github.com/gogotex/gogotex/backend/notary-service/internal/models"
	"github.com/gogotex/gogotex/backend/notary-service/internal/notary"
	"github.com/gogotex/gogotex/backend/notary-service/internal/notary/repository"
	"github.com/gogotex/gogotex/backend/notary-service/internal/reconcile"
	"github.com/gogotex/gogotex/backend/notary-service/pkg/logger"
	"github.com/gogotex/gogotex/backend/notary-service/pkg/metrics"
)

const entity = "notary"

// Ledger is the part of the ledger client this engine calls.
type Ledger interface {
	RequiredStake(ctx context.Context) (models.Amount, error)
	SlashPercentage(ctx context.Context) (int64, error)
	Notary(ctx context.Context, addr string) (*ledger.NotaryRecord, error)
	RegisterNotary(ctx context.Context, addr, name string, stake models.Amount) (*ledger.Receipt, error)
	SlashNotary(ctx context.Context, notary, cid string) (*ledger.Receipt, error)
	WithdrawStake(ctx context.Context, notary string) (*ledger.Receipt, error)
	AddStake(ctx context.Context, notary string, amount models.Amount) (*ledger.Receipt, error)
	DeactivateNotary(ctx context.Context, notary string) (*ledger.Receipt, error)
}

// DocumentResolver maps a document fingerprint to its content address.
type DocumentResolver interface {
	ContentAddressOf(ctx context.Context, fingerprint string) (string, error)
}

type Service struct {
	ledger Ledger
	repo   repository.Repository
	rec    *reconcile.Reconciler
	docs   DocumentResolver
	now    func() time.Time
}

func New(l Ledger, repo repository.Repository, rec *reconcile.Reconciler) *Service {
	return &Service{ledger: l, repo: repo, rec: rec, now: func() time.Time { return time.Now().UTC() }}
}

// SetDocumentResolver enables SlashByFingerprint.
func (s *Service) SetDocumentResolver(d DocumentResolver) { s.docs = d }

func validAddress(addr string) error {
	if strings.TrimSpace(addr) == "" || strings.TrimSpace(addr) != addr {
		return apperr.Wrap(apperr.ErrInvalidInput, "notary address %q", addr)
	}
	return nil
}

// Register stakes and registers addr. The stake must equal the ledger's
// required stake exactly; that is checked before anything is submitted.
func (s *Service) Register(ctx context.Context, addr, name string, stake models.Amount) (*notary.Notary, error) {
	if err := validAddress(addr); err != nil {
		return nil, err
	}
	if strings.TrimSpace(name) == "" {
		return nil, apperr.Wrap(apperr.ErrInvalidInput, "notary name required")
	}
	release, err := s.rec.Lock(ctx, entity, addr)
	if err != nil {
		return nil, apperr.Upstream("register notary", err)
	}
	defer release()

	required, err := s.ledger.RequiredStake(ctx)
	if err != nil {
		return nil, err
	}
	if !stake.Equal(required) {
		return nil, apperr.Wrap(apperr.ErrStakeMismatch, "offered %s, required %s", stake, required)
	}
	if cached, err := s.repo.Get(ctx, addr); err == nil && cached.Active {
		return nil, apperr.Wrap(apperr.ErrAlreadyRegistered, "%s", addr)
	}
	onChain, err := s.ledger.Notary(ctx, addr)
	switch {
	case err == nil && onChain.Active:
		s.heal(ctx, onChain)
		return nil, apperr.Wrap(apperr.ErrAlreadyRegistered, "%s", addr)
	case err != nil && apperr.KindOf(err) != apperr.KindNotFound:
		return nil, err
	}

	n := &notary.Notary{Address: addr, Name: name, Active: true, StakeAmount: stake, RegisteredAt: s.now()}
	err = s.rec.WriteThrough(ctx, reconcile.Key(entity, addr), "register notary",
		func(ctx context.Context) error {
			_, err := s.ledger.RegisterNotary(ctx, addr, name, stake)
			return err
		},
		s.saveFunc(n))
	if err != nil {
		return nil, err
	}
	logger.Infof("notary: registered %s (%s) with stake %s", addr, name, stake)
	return n.Clone(), nil
}

// Slash penalizes an active notary for misbehaviour on contentAddress. The
// reduced stake, the slash counter and the active flag land in one cache write.
func (s *Service) Slash(ctx context.Context, addr, contentAddress string, reason notary.Reason) (*notary.SlashEvent, error) {
	if err := validAddress(addr); err != nil {
		return nil, err
	}
	if err := fingerprint.Validate(contentAddress); err != nil {
		return nil, err
	}
	if _, err := notary.ParseReason(string(reason)); err != nil {
		return nil, err
	}
	release, err := s.rec.Lock(ctx, entity, addr)
	if err != nil {
		return nil, apperr.Upstream("slash notary", err)
	}
	defer release()

	before, err := s.requireActive(ctx, addr)
	if err != nil {
		return nil, err
	}
	pct, err := s.ledger.SlashPercentage(ctx)
	if err != nil {
		return nil, err
	}
	required, err := s.ledger.RequiredStake(ctx)
	if err != nil {
		return nil, err
	}

	rc, err := s.ledger.SlashNotary(ctx, addr, contentAddress)
	if err != nil {
		return nil, err
	}

	n := s.project(ctx, before)
	n.StakeAmount = before.Stake.ReduceByPercent(pct)
	n.SlashedCount = before.SlashedCount + 1
	n.Active = !n.StakeAmount.Less(required.Half())

	ev := &notary.SlashEvent{
		ID:             uuid.NewString(),
		Notary:         addr,
		ContentAddress: contentAddress,
		Reason:         reason,
		StakeBefore:    before.Stake,
		StakeAfter:     n.StakeAmount,
		Deactivated:    !n.Active,
		TxHash:         rc.TxHash,
		At:             s.now(),
	}
	key := reconcile.Key(entity, addr)
	s.rec.Heal(ctx, key, "slash notary", s.saveFunc(n))
	s.rec.Heal(ctx, key, "slash event", func(ctx context.Context) error { return s.repo.AppendSlashEvent(ctx, ev) })

	metrics.Slashes.WithLabelValues(string(reason)).Inc()
	logger.Audit("slash", map[string]string{
		"notary":         addr,
		"contentAddress": contentAddress,
		"reason":         string(reason),
		"stakeBefore":    ev.StakeBefore.String(),
		"stakeAfter":     ev.StakeAfter.String(),
		"deactivated":    boolString(ev.Deactivated),
		"tx":             ev.TxHash,
	})
	return ev, nil
}

// SlashByFingerprint resolves the document's content address, then slashes.
func (s *Service) SlashByFingerprint(ctx context.Context, addr, fp string, reason notary.Reason) (*notary.SlashEvent, error) {
	if s.docs == nil {
		return nil, apperr.Wrap(apperr.ErrInvalidInput, "document lookup not configured")
	}
	cid, err := s.docs.ContentAddressOf(ctx, fp)
	if err != nil {
		return nil, err
	}
	return s.Slash(ctx, addr, cid, reason)
}

// Withdraw returns the remaining stake of an inactive notary.
func (s *Service) Withdraw(ctx context.Context, addr string) (*notary.Notary, error) {
	if err := validAddress(addr); err != nil {
		return nil, err
	}
	release, err := s.rec.Lock(ctx, entity, addr)
	if err != nil {
		return nil, apperr.Upstream("withdraw stake", err)
	}
	defer release()

	onChain, err := s.ledger.Notary(ctx, addr)
	if err != nil {
		return nil, err
	}
	if onChain.Active {
		s.heal(ctx, onChain)
		return nil, apperr.Wrap(apperr.ErrNotaryActive, "%s must be deactivated first", addr)
	}
	if onChain.Stake.IsZero() {
		return nil, apperr.Wrap(apperr.ErrNoStakeToWithdraw, "%s", addr)
	}

	n := s.project(ctx, onChain)
	n.StakeAmount = models.Amount{}
	n.Active = false
	err = s.rec.WriteThrough(ctx, reconcile.Key(entity, addr), "withdraw stake",
		func(ctx context.Context) error {
			_, err := s.ledger.WithdrawStake(ctx, addr)
			return err
		},
		s.saveFunc(n))
	if err != nil {
		return nil, err
	}
	logger.Infof("notary: %s withdrew stake %s", addr, onChain.Stake)
	return n.Clone(), nil
}

// Deactivate is the operator action that takes an active notary out of rotation.
func (s *Service) Deactivate(ctx context.Context, addr string) (*notary.Notary, error) {
	if err := validAddress(addr); err != nil {
		return nil, err
	}
	release, err := s.rec.Lock(ctx, entity, addr)
	if err != nil {
		return nil, apperr.Upstream("deactivate notary", err)
	}
	defer release()

	onChain, err := s.requireActive(ctx, addr)
	if err != nil {
		return nil, err
	}
	n := s.project(ctx, onChain)
	n.Active = false
	err = s.rec.WriteThrough(ctx, reconcile.Key(entity, addr), "deactivate notary",
		func(ctx context.Context) error {
			_, err := s.ledger.DeactivateNotary(ctx, addr)
			return err
		},
		s.saveFunc(n))
	if err != nil {
		return nil, err
	}
	logger.Infof("notary: %s deactivated", addr)
	return n.Clone(), nil
}

// TopUp adds stake; the notary becomes active again once stake reaches the requirement.
func (s *Service) TopUp(ctx context.Context, addr string, amount models.Amount) (*notary.Notary, error) {
	if err := validAddress(addr); err != nil {
		return nil, err
	}
	if amount.IsZero() {
		return nil, apperr.Wrap(apperr.ErrInvalidInput, "top-up amount must be positive")
	}
	release, err := s.rec.Lock(ctx, entity, addr)
	if err != nil {
		return nil, apperr.Upstream("top up stake", err)
	}
	defer release()

	onChain, err := s.ledger.Notary(ctx, addr)
	if err != nil {
		return nil, err
	}
	required, err := s.ledger.RequiredStake(ctx)
	if err != nil {
		return nil, err
	}
	n := s.project(ctx, onChain)
	n.StakeAmount = onChain.Stake.Add(amount)
	n.Active = onChain.Active || !n.StakeAmount.Less(required)
	err = s.rec.WriteThrough(ctx, reconcile.Key(entity, addr), "top up stake",
		func(ctx context.Context) error {
			_, err := s.ledger.AddStake(ctx, addr, amount)
			return err
		},
		s.saveFunc(n))
	if err != nil {
		return nil, err
	}
	logger.Infof("notary: %s topped up by %s to %s (active=%t)", addr, amount, n.StakeAmount, n.Active)
	return n.Clone(), nil
}

// RequireActive confirms against the ledger that addr may notarize.
func (s *Service) RequireActive(ctx context.Context, addr string) error {
	if err := validAddress(addr); err != nil {
		return err
	}
	_, err := s.requireActive(ctx, addr)
	return err
}

// IsActive is RequireActive as a boolean; only upstream failures are errors.
func (s *Service) IsActive(ctx context.Context, addr string) (bool, error) {
	err := s.RequireActive(ctx, addr)
	switch apperr.KindOf(err) {
	case apperr.KindUnknown:
		if err != nil {
			return false, err
		}
		return true, nil
	case apperr.KindNotFound, apperr.KindState:
		return false, nil
	}
	return false, err
}

func (s *Service) requireActive(ctx context.Context, addr string) (*ledger.NotaryRecord, error) {
	onChain, err := s.ledger.Notary(ctx, addr)
	if err != nil {
		return nil, err
	}
	s.heal(ctx, onChain)
	if !onChain.Active {
		return nil, apperr.Wrap(apperr.ErrNotaryInactive, "%s", addr)
	}
	return onChain, nil
}

// RecordSuccess bumps the cached success counter after a ledger-accepted
// notarization. A notary missing from the cache is pulled from the ledger.
func (s *Service) RecordSuccess(ctx context.Context, addr string) {
	s.rec.Heal(ctx, reconcile.Key(entity, addr), "record notarization", func(ctx context.Context) error {
		err := s.repo.IncrementSuccess(ctx, addr)
		if apperr.KindOf(err) == apperr.KindNotFound {
			_, err = s.Reconcile(ctx, addr)
		}
		return err
	})
}

// Score is 100 without history, otherwise the success share in percent.
func Score(successes, slashes int64) float64 {
	total := successes + slashes
	if total <= 0 {
		return 100
	}
	return math.Max(0, math.Min(100, 100*float64(successes)/float64(total)))
}

// ReputationScore is a display read served from the cache, falling back to the ledger.
func (s *Service) ReputationScore(ctx context.Context, addr string) (float64, error) {
	n, err := s.Get(ctx, addr)
	if err != nil {
		return 0, err
	}
	return Score(n.SuccessfulNotarizations, n.SlashedCount), nil
}

// Get returns the cached record, healing it from the ledger on a miss.
func (s *Service) Get(ctx context.Context, addr string) (*notary.Notary, error) {
	n, err := s.repo.Get(ctx, addr)
	if err == nil {
		return n, nil
	}
	if apperr.KindOf(err) != apperr.KindNotFound {
		logger.Warnf("notary: cache read %s failed, asking ledger: %v", addr, err)
	}
	return s.Reconcile(ctx, addr)
}

func (s *Service) Statistics(ctx context.Context, addr string) (*notary.Statistics, error) {
	n, err := s.Get(ctx, addr)
	if err != nil {
		return nil, err
	}
	return &notary.Statistics{
		Notary:          *n,
		State:           notary.StateOf(n),
		ReputationScore: Score(n.SuccessfulNotarizations, n.SlashedCount),
	}, nil
}

func (s *Service) ActiveNotaries(ctx context.Context) ([]*notary.Notary, error) {
	return s.repo.ListActive(ctx)
}

func (s *Service) List(ctx context.Context) ([]*notary.Notary, error) {
	return s.repo.List(ctx)
}

func (s *Service) SlashEvents(ctx context.Context, addr string) ([]*notary.SlashEvent, error) {
	return s.repo.ListSlashEvents(ctx, addr)
}

// Reconcile reads addr from the ledger and overwrites the cache when they differ.
func (s *Service) Reconcile(ctx context.Context, addr string) (*notary.Notary, error) {
	onChain, err := s.ledger.Notary(ctx, addr)
	if err != nil {
		return nil, err
	}
	return s.heal(ctx, onChain), nil
}

// heal writes the ledger view over a diverging cache record and returns it.
func (s *Service) heal(ctx context.Context, onChain *ledger.NotaryRecord) *notary.Notary {
	cached, err := s.repo.Get(ctx, onChain.Address)
	want := s.projectFrom(onChain, cached)
	if err == nil && same(cached, want) {
		return cached
	}
	if err == nil {
		logger.Warnf("notary: cache for %s diverged from ledger (active %t->%t, stake %s->%s), overwriting",
			onChain.Address, cached.Active, want.Active, cached.StakeAmount, want.StakeAmount)
	}
	s.rec.Heal(ctx, reconcile.Key(entity, onChain.Address), "heal notary", s.saveFunc(want))
	return want.Clone()
}

// saveFunc writes n now. Queued retries re-project from the ledger instead of
// replaying n.
func (s *Service) saveFunc(n *notary.Notary) func(context.Context) error {
	first := true
	return func(ctx context.Context) error {
		if first {
			first = false
			return s.repo.Save(ctx, n)
		}
		onChain, err := s.ledger.Notary(ctx, n.Address)
		if err != nil {
			return err
		}
		return s.repo.Save(ctx, s.project(ctx, onChain))
	}
}

// project builds the cache record for onChain, keeping cache-only fields.
func (s *Service) project(ctx context.Context, onChain *ledger.NotaryRecord) *notary.Notary {
	cached, err := s.repo.Get(ctx, onChain.Address)
	if err != nil {
		cached = nil
	}
	return s.projectFrom(onChain, cached)
}

func (s *Service) projectFrom(onChain *ledger.NotaryRecord, cached *notary.Notary) *notary.Notary {
	n := &notary.Notary{
		Address:                 onChain.Address,
		Name:                    onChain.Name,
		Active:                  onChain.Active,
		StakeAmount:             onChain.Stake,
		SuccessfulNotarizations: onChain.SuccessfulNotarizations,
		SlashedCount:            onChain.SlashedCount,
		RegisteredAt:            onChain.RegisteredAt,
	}
	if cached != nil {
		if n.RegisteredAt.IsZero() {
			n.RegisteredAt = cached.RegisteredAt
		}
		if n.Name == "" {
			n.Name = cached.Name
		}
	}
	if n.RegisteredAt.IsZero() {
		n.RegisteredAt = s.now()
	}
	return n
}

func same(a, b *notary.Notary) bool {
	return a.Active == b.Active &&
		a.Name == b.Name &&
		a.StakeAmount.Equal(b.StakeAmount) &&
		a.SuccessfulNotarizations == b.SuccessfulNotarizations &&
		a.SlashedCount == b.SlashedCount
}

func boolString(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
