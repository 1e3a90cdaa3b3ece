package driven

import (
	"context"

	"github.com/ericfisherdev/creditpanel/internal/domain/model"
)

// CreditStore defines the driven port for the persisted snapshot of the last
// applied credit view. Records are stored without a derived status; callers
// re-derive it for the current viewer.
type CreditStore interface {
	// UpsertAll inserts or updates the given records. The stored retired flag
	// never reverts from true to false.
	UpsertAll(ctx context.Context, records []model.CreditRecord) error
	// ListAll returns all stored records ordered by token ID.
	ListAll(ctx context.Context) ([]model.CreditRecord, error)
	// GetByID returns nil, nil if the token is unknown.
	GetByID(ctx context.Context, id model.TokenID) (*model.CreditRecord, error)
	// RetiredIDs returns the set of tokens known to be retired.
	RetiredIDs(ctx context.Context) (map[model.TokenID]bool, error)
}
