package ledger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gogotex/gogotex/backend/notary-service/internal/apperr"
	"github.com/gogotex/gogotex/backend/notary-service/internal/models"
)

func TestSimulatorNotaryLifecycle(t *testing.T) {
	ctx := context.Background()
	c := NewReadyClient(NewSimulator(), Options{})

	stake, err := c.RequiredStake(ctx)
	require.NoError(t, err)
	require.Equal(t, "1000000000000000000", stake.String())

	_, err = c.RegisterNotary(ctx, "0xa", "alice", stake.Add(models.NewAmount(1)))
	require.ErrorIs(t, err, apperr.ErrStakeMismatch)

	rc, err := c.RegisterNotary(ctx, "0xa", "alice", stake)
	require.NoError(t, err)
	require.True(t, rc.Success)
	require.NotEmpty(t, rc.TxHash)

	_, err = c.RegisterNotary(ctx, "0xa", "alice", stake)
	require.ErrorIs(t, err, apperr.ErrAlreadyRegistered)

	_, err = c.WithdrawStake(ctx, "0xa")
	require.ErrorIs(t, err, apperr.ErrNotaryActive)

	// 1e18 -> 9e17 -> 8.1e17 -> ... drops below 5e17 on the 7th slash
	for i := 0; i < 6; i++ {
		_, err = c.SlashNotary(ctx, "0xa", "bafkreiabc")
		require.NoError(t, err)
	}
	n, err := c.Notary(ctx, "0xa")
	require.NoError(t, err)
	require.True(t, n.Active)
	require.Equal(t, "531441000000000000", n.Stake.String())

	_, err = c.SlashNotary(ctx, "0xa", "bafkreiabc")
	require.NoError(t, err)
	n, err = c.Notary(ctx, "0xa")
	require.NoError(t, err)
	require.False(t, n.Active)
	require.Equal(t, int64(7), n.SlashedCount)

	_, err = c.SlashNotary(ctx, "0xa", "bafkreiabc")
	require.ErrorIs(t, err, apperr.ErrNotaryInactive)

	_, err = c.WithdrawStake(ctx, "0xa")
	require.NoError(t, err)
	_, err = c.WithdrawStake(ctx, "0xa")
	require.ErrorIs(t, err, apperr.ErrNoStakeToWithdraw)
}

func TestSimulatorTopUpReactivates(t *testing.T) {
	ctx := context.Background()
	c := NewReadyClient(NewSimulator(), Options{})
	stake := DefaultRequiredStake

	_, err := c.RegisterNotary(ctx, "0xb", "bob", stake)
	require.NoError(t, err)
	_, err = c.DeactivateNotary(ctx, "0xb")
	require.NoError(t, err)
	n, err := c.Notary(ctx, "0xb")
	require.NoError(t, err)
	require.False(t, n.Active)

	_, err = c.AddStake(ctx, "0xb", models.NewAmount(1))
	require.NoError(t, err)
	n, err = c.Notary(ctx, "0xb")
	require.NoError(t, err)
	require.True(t, n.Active)
}

func TestSimulatorDocuments(t *testing.T) {
	ctx := context.Background()
	c := NewReadyClient(NewSimulator(), Options{})

	_, err := c.Document(ctx, "bafkreimissing")
	require.ErrorIs(t, err, apperr.ErrDocumentNotFound)

	_, err = c.RegisterDocument(ctx, "owner-1", "bafkreidoc", "contract.pdf")
	require.NoError(t, err)
	_, err = c.RegisterDocument(ctx, "owner-1", "bafkreidoc", "contract.pdf")
	require.ErrorIs(t, err, apperr.ErrDuplicateFingerprint)

	_, err = c.NotarizeDocument(ctx, "0xn", "bafkreidoc")
	require.ErrorIs(t, err, apperr.ErrNotaryInactive)

	_, err = c.RegisterNotary(ctx, "0xn", "notary", DefaultRequiredStake)
	require.NoError(t, err)
	for i := 0; i < 2; i++ {
		_, err = c.NotarizeDocument(ctx, "0xn", "bafkreidoc")
		require.NoError(t, err)
	}
	d, err := c.Document(ctx, "bafkreidoc")
	require.NoError(t, err)
	require.True(t, d.Notarized)
	require.Equal(t, []string{"0xn"}, d.Notaries)
	require.Equal(t, "owner-1", d.Owner)

	ids, err := c.UserDocuments(ctx, "owner-1")
	require.NoError(t, err)
	require.Equal(t, []string{"bafkreidoc"}, ids)

	pct, err := c.SlashPercentage(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(10), pct)
}
