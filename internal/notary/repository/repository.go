package repository

import (
	"context"

	"github.com/gogotex/gogotex/backend/notary-service/internal/notary"
)

// Repository caches notary records and the slash audit trail.
type Repository interface {
	Get(ctx context.Context, address string) (*notary.Notary, error)
	// Save replaces the whole record in one write. Stake, counters and the
	// active flag therefore always change together.
	Save(ctx context.Context, n *notary.Notary) error
	IncrementSuccess(ctx context.Context, address string) error
	List(ctx context.Context) ([]*notary.Notary, error)
	ListActive(ctx context.Context) ([]*notary.Notary, error)

	AppendSlashEvent(ctx context.Context, ev *notary.SlashEvent) error
	ListSlashEvents(ctx context.Context, address string) ([]*notary.SlashEvent, error)
}
