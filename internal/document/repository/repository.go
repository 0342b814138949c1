package repository

import (
	"context"
	"time"

	"github.com/gogotex/gogotex/backend/notary-service/internal/document"
)

// Repository is the local cache of documents. It is a projection of the
// ledger, never the source of truth.
type Repository interface {
	// Create fails with apperr.ErrDuplicateFingerprint when the fingerprint exists.
	Create(ctx context.Context, d *document.Document) error
	// Merge folds d into the cached record in one step, inserting it when
	// absent. Identities are unioned with existing ones first, notarized never
	// goes back to false and is set once the identity count reaches quorum.
	// Other fields of an existing record are kept.
	Merge(ctx context.Context, d *document.Document, quorum int) (*document.Document, error)
	Get(ctx context.Context, fingerprint string) (*document.Document, error)
	GetByContentAddress(ctx context.Context, contentAddress string) (*document.Document, error)
	// AddNotary appends notary once and sets notarized when the identity count
	// reaches quorum. notarized never goes back to false.
	AddNotary(ctx context.Context, fingerprint, notary string, quorum int) (*document.Document, error)
	SetLastVerified(ctx context.Context, fingerprint string, at time.Time) error
	UpdateName(ctx context.Context, fingerprint, name string) error
	Delete(ctx context.Context, fingerprint string) error

	List(ctx context.Context) ([]*document.Document, error)
	ListByOwner(ctx context.Context, owner string) ([]*document.Document, error)
	ListByNotarized(ctx context.Context, notarized bool) ([]*document.Document, error)
	ListByNotary(ctx context.Context, notary string) ([]*document.Document, error)
	// ListStale returns documents never verified or last verified before cutoff.
	ListStale(ctx context.Context, cutoff time.Time) ([]*document.Document, error)
}
