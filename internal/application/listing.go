package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/ericfisherdev/creditpanel/internal/domain/model"
	"github.com/ericfisherdev/creditpanel/internal/domain/port/driven"
)

// ErrInvalidPrice indicates a listing price that is not strictly positive.
var ErrInvalidPrice = errors.New("price must be greater than zero")

// MarketItem is an available credit together with its asking price, if the
// current owner listed one.
type MarketItem struct {
	Record  model.CreditRecord
	Listing *model.Listing
}

// ListingService manages owner-set asking prices.
type ListingService struct {
	store    driven.ListingStore
	views    viewSource
	identity driven.IdentityProvider
	now      func() time.Time
}

// NewListingService creates a new ListingService.
func NewListingService(store driven.ListingStore, views viewSource, identity driven.IdentityProvider) *ListingService {
	return &ListingService{
		store:    store,
		views:    views,
		identity: identity,
		now:      time.Now,
	}
}

// SetPrice lists a credit the viewer owns at priceCents.
func (s *ListingService) SetPrice(ctx context.Context, id model.TokenID, priceCents int64) (model.Listing, error) {
	if priceCents <= 0 {
		return model.Listing{}, ErrInvalidPrice
	}
	viewer, err := s.requireOwned(id)
	if err != nil {
		return model.Listing{}, err
	}

	listing := model.Listing{
		TokenID:    id,
		Seller:     viewer,
		PriceCents: priceCents,
		ListedAt:   s.now().UTC(),
	}
	if err := s.store.Set(ctx, listing); err != nil {
		return model.Listing{}, fmt.Errorf("listing token %d: %w", id, err)
	}

	slog.Info("credit listed", "token_id", id, "seller", viewer.Short(), "price_cents", priceCents)
	return listing, nil
}

// ClearPrice removes the viewer's listing for a credit they own.
func (s *ListingService) ClearPrice(ctx context.Context, id model.TokenID) error {
	if _, err := s.requireOwned(id); err != nil {
		return err
	}
	if err := s.store.Remove(ctx, id); err != nil {
		return fmt.Errorf("unlisting token %d: %w", id, err)
	}
	slog.Info("credit unlisted", "token_id", id)
	return nil
}

func (s *ListingService) requireOwned(id model.TokenID) (model.Address, error) {
	viewer := s.identity.Current()
	if viewer.IsZero() {
		return "", model.ErrNoViewer
	}
	rec, ok := s.views.Current().Find(id)
	if !ok {
		return "", fmt.Errorf("token %d: %w", id, model.ErrCreditNotFound)
	}
	if rec.Status != model.CreditStatusOwned {
		return "", fmt.Errorf("price token %d with status %s: %w", id, rec.Status, model.ErrActionNotAllowed)
	}
	return viewer, nil
}

// Marketplace returns the viewer's buyable credits with their prices. A
// listing only counts while its seller is still the owner on record; credits
// without a valid listing carry no price.
func (s *ListingService) Marketplace(ctx context.Context) ([]MarketItem, error) {
	available := s.views.Current().Filter(model.CreditStatusAvailable)

	listings, err := s.store.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading listings: %w", err)
	}
	byID := make(map[model.TokenID]model.Listing, len(listings))
	for _, l := range listings {
		byID[l.TokenID] = l
	}

	items := make([]MarketItem, 0, len(available))
	for _, rec := range available {
		item := MarketItem{Record: rec}
		if l, ok := byID[rec.ID]; ok && l.Seller.Equal(rec.Owner) {
			item.Listing = &l
		}
		items = append(items, item)
	}
	return items, nil
}

// Owned returns the viewer's listings on credits they still own, in token
// order. It returns nothing when no viewer is connected.
func (s *ListingService) Owned(ctx context.Context) ([]model.Listing, error) {
	viewer := s.identity.Current()
	if viewer.IsZero() {
		return nil, nil
	}

	listings, err := s.store.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading listings: %w", err)
	}

	view := s.views.Current()
	var owned []model.Listing
	for _, l := range listings {
		rec, ok := view.Find(l.TokenID)
		if ok && rec.Status == model.CreditStatusOwned && l.Seller.Equal(viewer) {
			owned = append(owned, l)
		}
	}
	sort.Slice(owned, func(i, j int) bool { return owned[i].TokenID < owned[j].TokenID })
	return owned, nil
}
