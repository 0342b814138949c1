package service

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/gogotex/gogotex/backend/notary-service/internal/apperr"
	"github.com/gogotex/gogotex/backend/notary-service/internal/fingerprint"
	"github.com/gogotex/gogotex/backend/notary-service/internal/ledger"
	"github.com/gogotex/gogotex/backend/notary-service/internal/models"
	"github.com/gogotex/gogotex/backend/notary-service/internal/notary"
	"github.com/gogotex/gogotex/backend/notary-service/internal/notary/repository"
	"github.com/gogotex/gogotex/backend/notary-service/internal/reconcile"
)

// flakyRepo fails the first n Saves.
type flakyRepo struct {
	*repository.MemoryRepo
	failures int32
}

func (f *flakyRepo) Save(ctx context.Context, n *notary.Notary) error {
	if atomic.AddInt32(&f.failures, -1) >= 0 {
		return errors.New("cache unavailable")
	}
	return f.MemoryRepo.Save(ctx, n)
}

type fixture struct {
	sim    *ledger.Simulator
	client *ledger.Client
	repo   repository.Repository
	svc    *Service
	stake  models.Amount
	cid    string
}

func newFixture(t *testing.T, repo repository.Repository) *fixture {
	t.Helper()
	sim := ledger.NewSimulator()
	client := ledger.NewReadyClient(sim, ledger.Options{ReadBackoff: time.Millisecond})
	rec := reconcile.New(time.Millisecond, 5*time.Millisecond)
	t.Cleanup(func() { rec.Close() })
	if repo == nil {
		repo = repository.NewMemoryRepo()
	}
	cid, err := fingerprint.ContentAddress([]byte("slashed document"))
	require.NoError(t, err)
	return &fixture{
		sim:    sim,
		client: client,
		repo:   repo,
		svc:    New(client, repo, rec),
		stake:  ledger.DefaultRequiredStake,
		cid:    cid,
	}
}

func TestRegisterRequiresExactStake(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	n, err := f.svc.Register(ctx, "0xa", "alice", f.stake)
	require.NoError(t, err)
	require.True(t, n.Active)
	require.Equal(t, "1000000000000000000", n.StakeAmount.String())
	require.Zero(t, n.SuccessfulNotarizations)
	require.Zero(t, n.SlashedCount)

	_, err = f.svc.Register(ctx, "0xa", "alice", f.stake)
	require.ErrorIs(t, err, apperr.ErrAlreadyRegistered)
	require.Equal(t, apperr.KindConflict, apperr.KindOf(err))

	calls := f.sim.Calls(ledger.MethodRegisterNotary)
	less, err := models.ParseAmount("999999999999999999")
	require.NoError(t, err)
	_, err = f.svc.Register(ctx, "0xb", "bob", less)
	require.ErrorIs(t, err, apperr.ErrStakeMismatch)
	require.Equal(t, apperr.KindConflict, apperr.KindOf(err))
	require.Equal(t, calls, f.sim.Calls(ledger.MethodRegisterNotary), "no ledger submission on mismatch")
}

func TestRegisterDetectsLedgerOnlyRegistration(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	_, err := f.client.RegisterNotary(ctx, "0xa", "alice", f.stake)
	require.NoError(t, err)

	_, err = f.svc.Register(ctx, "0xa", "alice", f.stake)
	require.ErrorIs(t, err, apperr.ErrAlreadyRegistered)

	// the stale cache was healed from the ledger
	cached, err := f.repo.Get(ctx, "0xa")
	require.NoError(t, err)
	require.True(t, cached.Active)
}

func TestSlashReducesStakeAndDeactivatesBelowHalf(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	_, err := f.svc.Register(ctx, "0xa", "alice", f.stake)
	require.NoError(t, err)
	half := f.stake.Half()

	for i := 0; i < 7; i++ {
		before, err := f.repo.Get(ctx, "0xa")
		require.NoError(t, err)
		ev, err := f.svc.Slash(ctx, "0xa", f.cid, notary.ReasonOperatorAction)
		require.NoError(t, err)

		after, err := f.repo.Get(ctx, "0xa")
		require.NoError(t, err)
		require.Equal(t, before.StakeAmount.ReduceByPercent(10).String(), after.StakeAmount.String())
		require.Equal(t, before.SlashedCount+1, after.SlashedCount)
		require.Equal(t, after.StakeAmount.Less(half), !after.Active)
		require.Equal(t, ev.Deactivated, !after.Active)
		require.Equal(t, after.StakeAmount.String(), ev.StakeAfter.String())
	}
	n, _ := f.repo.Get(ctx, "0xa")
	require.False(t, n.Active, "seventh slash crosses below half the required stake")

	_, err = f.svc.Slash(ctx, "0xa", f.cid, notary.ReasonOperatorAction)
	require.ErrorIs(t, err, apperr.ErrNotaryInactive)

	evs, err := f.svc.SlashEvents(ctx, "0xa")
	require.NoError(t, err)
	require.Len(t, evs, 7)
	require.True(t, evs[6].Deactivated)
}

func TestSlashValidatesBeforeNetwork(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	_, err := f.svc.Slash(ctx, "0xa", "not-a-cid", notary.ReasonOperatorAction)
	require.ErrorIs(t, err, apperr.ErrInvalidAddressFormat)
	_, err = f.svc.Slash(ctx, "0xa", f.cid, notary.Reason("BORED"))
	require.ErrorIs(t, err, apperr.ErrUnknownSlashReason)
	require.Zero(t, f.sim.Calls(ledger.MethodNotary))

	_, err = f.svc.Slash(ctx, "0xghost", f.cid, notary.ReasonOperatorAction)
	require.ErrorIs(t, err, apperr.ErrNotaryNotFound)
}

func TestLedgerFailureLeavesCacheUntouched(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	_, err := f.svc.Register(ctx, "0xa", "alice", f.stake)
	require.NoError(t, err)

	f.sim.FailNext(ledger.MethodSlashNotary, apperr.Upstream("slash-notary", errors.New("timeout")))
	_, err = f.svc.Slash(ctx, "0xa", f.cid, notary.ReasonOperatorAction)
	require.Equal(t, apperr.KindUpstream, apperr.KindOf(err))
	require.Equal(t, 1, f.sim.Calls(ledger.MethodSlashNotary), "mutations are not retried")

	n, err := f.repo.Get(ctx, "0xa")
	require.NoError(t, err)
	require.True(t, n.StakeAmount.Equal(f.stake))
	require.Zero(t, n.SlashedCount)
}

func TestCacheFailureAfterLedgerSuccessIsReconciled(t *testing.T) {
	repo := &flakyRepo{MemoryRepo: repository.NewMemoryRepo(), failures: 2}
	f := newFixture(t, repo)
	ctx := context.Background()

	n, err := f.svc.Register(ctx, "0xa", "alice", f.stake)
	require.NoError(t, err, "ledger success is reported even when the cache write fails")
	require.True(t, n.Active)

	require.Eventually(t, func() bool {
		got, err := repo.MemoryRepo.Get(ctx, "0xa")
		return err == nil && got.Active && got.StakeAmount.Equal(f.stake)
	}, time.Second, 2*time.Millisecond)
}

func TestWithdrawAndTopUp(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	_, err := f.svc.Register(ctx, "0xa", "alice", f.stake)
	require.NoError(t, err)

	_, err = f.svc.Withdraw(ctx, "0xa")
	require.ErrorIs(t, err, apperr.ErrNotaryActive)
	require.Equal(t, apperr.KindState, apperr.KindOf(err))

	n, err := f.svc.Deactivate(ctx, "0xa")
	require.NoError(t, err)
	require.False(t, n.Active)
	ok, err := f.svc.IsActive(ctx, "0xa")
	require.NoError(t, err)
	require.False(t, ok)

	n, err = f.svc.TopUp(ctx, "0xa", models.NewAmount(5))
	require.NoError(t, err)
	require.True(t, n.Active, "stake at or above the requirement reactivates")
	_, err = f.svc.Deactivate(ctx, "0xa")
	require.NoError(t, err)

	n, err = f.svc.Withdraw(ctx, "0xa")
	require.NoError(t, err)
	require.True(t, n.StakeAmount.IsZero())
	stats, err := f.svc.Statistics(ctx, "0xa")
	require.NoError(t, err)
	require.Equal(t, notary.StateWithdrawn, stats.State)

	_, err = f.svc.Withdraw(ctx, "0xa")
	require.ErrorIs(t, err, apperr.ErrNoStakeToWithdraw)

	_, err = f.svc.TopUp(ctx, "0xa", models.Amount{})
	require.ErrorIs(t, err, apperr.ErrInvalidInput)
}

func TestReputationScore(t *testing.T) {
	require.Equal(t, float64(100), Score(0, 0))
	require.Equal(t, float64(50), Score(1, 1))
	require.Equal(t, float64(0), Score(0, 3))

	f := newFixture(t, nil)
	ctx := context.Background()
	_, err := f.svc.Register(ctx, "0xa", "alice", f.stake)
	require.NoError(t, err)
	score, err := f.svc.ReputationScore(ctx, "0xa")
	require.NoError(t, err)
	require.Equal(t, float64(100), score)

	_, err = f.client.RegisterDocument(ctx, "owner", f.cid, "doc")
	require.NoError(t, err)
	_, err = f.client.NotarizeDocument(ctx, "0xa", f.cid)
	require.NoError(t, err)
	f.svc.RecordSuccess(ctx, "0xa")
	_, err = f.svc.Slash(ctx, "0xa", f.cid, notary.ReasonDoubleNotarization)
	require.NoError(t, err)

	score, err = f.svc.ReputationScore(ctx, "0xa")
	require.NoError(t, err)
	require.Equal(t, float64(50), score)
}

func TestReconcileOverwritesDivergedCache(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	_, err := f.svc.Register(ctx, "0xa", "alice", f.stake)
	require.NoError(t, err)

	require.NoError(t, f.repo.Save(ctx, &notary.Notary{Address: "0xa", Name: "alice", Active: false, StakeAmount: models.NewAmount(1)}))
	n, err := f.svc.Reconcile(ctx, "0xa")
	require.NoError(t, err)
	require.True(t, n.Active)

	cached, err := f.repo.Get(ctx, "0xa")
	require.NoError(t, err)
	require.True(t, cached.Active)
	require.True(t, cached.StakeAmount.Equal(f.stake))

	// a cache miss is filled from the ledger
	_, err = f.client.RegisterNotary(ctx, "0xb", "bob", f.stake)
	require.NoError(t, err)
	stats, err := f.svc.Statistics(ctx, "0xb")
	require.NoError(t, err)
	require.Equal(t, notary.StateActive, stats.State)
	require.Equal(t, float64(100), stats.ReputationScore)
}

type resolver map[string]string

func (r resolver) ContentAddressOf(_ context.Context, fp string) (string, error) {
	if cid, ok := r[fp]; ok {
		return cid, nil
	}
	return "", apperr.ErrDocumentNotFound
}

func TestSlashByFingerprint(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	_, err := f.svc.Register(ctx, "0xa", "alice", f.stake)
	require.NoError(t, err)
	f.svc.SetDocumentResolver(resolver{"fp-1": f.cid})

	ev, err := f.svc.SlashByFingerprint(ctx, "0xa", "fp-1", notary.ReasonIntegrityViolation)
	require.NoError(t, err)
	require.Equal(t, f.cid, ev.ContentAddress)

	_, err = f.svc.SlashByFingerprint(ctx, "0xa", "fp-unknown", notary.ReasonIntegrityViolation)
	require.ErrorIs(t, err, apperr.ErrDocumentNotFound)
}
