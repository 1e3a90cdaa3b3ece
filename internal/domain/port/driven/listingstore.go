package driven

import (
	"context"
	"errors"

	"github.com/ericfisherdev/creditpanel/internal/domain/model"
)

// ErrListingNotFound indicates no listing exists for the token.
var ErrListingNotFound = errors.New("listing not found")

// ListingStore defines the driven port for marketplace asking prices.
// Remove returns ErrListingNotFound if the token is not listed.
type ListingStore interface {
	Set(ctx context.Context, listing model.Listing) error
	Remove(ctx context.Context, id model.TokenID) error
	// Get returns nil, nil if the token is not listed.
	Get(ctx context.Context, id model.TokenID) (*model.Listing, error)
	ListAll(ctx context.Context) ([]model.Listing, error)
}
