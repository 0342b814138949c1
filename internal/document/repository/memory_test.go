package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/gogotex/gogotex/backend/notary-service/internal/apperr"
	"github.com/gogotex/gogotex/backend/notary-service/internal/document"
)

func newDoc(fp, addr, owner string, at time.Time) *document.Document {
	return &document.Document{Fingerprint: fp, ContentAddress: addr, Owner: owner, Name: fp + ".pdf", RegisteredAt: at}
}

func TestMemoryRepoCRUD(t *testing.T) {
	r := NewMemoryRepo()
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, r.Create(ctx, newDoc("f1", "bafkreia", "alice", now)))
	err := r.Create(ctx, newDoc("f1", "bafkreiz", "alice", now))
	require.ErrorIs(t, err, apperr.ErrDuplicateFingerprint)

	got, err := r.Get(ctx, "f1")
	require.NoError(t, err)
	require.Equal(t, "bafkreia", got.ContentAddress)
	got.Name = "mutated"

	byAddr, err := r.GetByContentAddress(ctx, "bafkreia")
	require.NoError(t, err)
	require.Equal(t, "f1.pdf", byAddr.Name, "callers get copies")

	require.NoError(t, r.UpdateName(ctx, "f1", "renamed.pdf"))
	got, _ = r.Get(ctx, "f1")
	require.Equal(t, "renamed.pdf", got.Name)

	require.NoError(t, r.Delete(ctx, "f1"))
	_, err = r.Get(ctx, "f1")
	require.ErrorIs(t, err, apperr.ErrDocumentNotFound)
	_, err = r.GetByContentAddress(ctx, "bafkreia")
	require.ErrorIs(t, err, apperr.ErrDocumentNotFound)
	require.ErrorIs(t, r.Delete(ctx, "f1"), apperr.ErrDocumentNotFound)
}

func TestMemoryRepoAddNotaryIsIdempotent(t *testing.T) {
	r := NewMemoryRepo()
	ctx := context.Background()
	require.NoError(t, r.Create(ctx, newDoc("f1", "bafkreia", "alice", time.Now())))

	d, err := r.AddNotary(ctx, "f1", "0xa", 2)
	require.NoError(t, err)
	require.False(t, d.Notarized)
	d, _ = r.AddNotary(ctx, "f1", "0xa", 2)
	require.Equal(t, []string{"0xa"}, d.NotaryIdentities)
	require.False(t, d.Notarized)

	d, _ = r.AddNotary(ctx, "f1", "0xb", 2)
	require.Equal(t, []string{"0xa", "0xb"}, d.NotaryIdentities)
	require.True(t, d.Notarized)

	_, err = r.AddNotary(ctx, "missing", "0xa", 1)
	require.ErrorIs(t, err, apperr.ErrDocumentNotFound)
}

func TestMemoryRepoQueries(t *testing.T) {
	r := NewMemoryRepo()
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, r.Create(ctx, newDoc("f1", "bafkreia", "alice", base)))
	require.NoError(t, r.Create(ctx, newDoc("f2", "bafkreib", "bob", base.Add(time.Minute))))
	require.NoError(t, r.Create(ctx, newDoc("f3", "bafkreic", "alice", base.Add(2*time.Minute))))
	_, err := r.AddNotary(ctx, "f3", "0xn", 1)
	require.NoError(t, err)
	require.NoError(t, r.SetLastVerified(ctx, "f2", base.Add(-48*time.Hour)))
	require.NoError(t, r.SetLastVerified(ctx, "f3", base))

	owned, _ := r.ListByOwner(ctx, "alice")
	require.Len(t, owned, 2)
	require.Equal(t, "f1", owned[0].Fingerprint)

	notarized, _ := r.ListByNotarized(ctx, true)
	require.Len(t, notarized, 1)
	pending, _ := r.ListByNotarized(ctx, false)
	require.Len(t, pending, 2)

	byNotary, _ := r.ListByNotary(ctx, "0xn")
	require.Len(t, byNotary, 1)
	require.Equal(t, "f3", byNotary[0].Fingerprint)

	stale, _ := r.ListStale(ctx, base.Add(-24*time.Hour))
	require.Len(t, stale, 2)
	require.Equal(t, "f1", stale[0].Fingerprint)
	require.Equal(t, "f2", stale[1].Fingerprint)

	all, _ := r.List(ctx)
	require.Len(t, all, 3)
}

func TestMemoryRepoMergeUnionsIdentities(t *testing.T) {
	r := NewMemoryRepo()
	ctx := context.Background()

	first := newDoc("f1", "bafkreia", "alice", time.Now())
	first.NotaryIdentities = []string{"0xa"}
	got, err := r.Merge(ctx, first, 2)
	require.NoError(t, err)
	require.Equal(t, []string{"0xa"}, got.NotaryIdentities)
	require.False(t, got.Notarized)

	_, err = r.AddNotary(ctx, "f1", "0xb", 2)
	require.NoError(t, err)

	stale := newDoc("f1", "bafkreia", "mallory", time.Now())
	stale.Name = "renamed elsewhere"
	stale.NotaryIdentities = []string{"0xa"}
	got, err = r.Merge(ctx, stale, 2)
	require.NoError(t, err)
	require.Equal(t, []string{"0xa", "0xb"}, got.NotaryIdentities)
	require.True(t, got.Notarized)
	require.Equal(t, "alice", got.Owner)

	got, err = r.Merge(ctx, newDoc("f1", "bafkreia", "alice", time.Now()), 5)
	require.NoError(t, err)
	require.True(t, got.Notarized, "notarized never flips back")
	require.Len(t, got.NotaryIdentities, 2)
}

func TestMemoryRepoMergeRejectsForeignAddress(t *testing.T) {
	r := NewMemoryRepo()
	ctx := context.Background()
	require.NoError(t, r.Create(ctx, newDoc("f1", "bafkreia", "alice", time.Now())))
	_, err := r.Merge(ctx, newDoc("f2", "bafkreia", "bob", time.Now()), 1)
	require.ErrorIs(t, err, apperr.ErrDuplicateFingerprint)
}
