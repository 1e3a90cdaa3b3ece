package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ericfisherdev/creditpanel/internal/domain/model"
	"github.com/ericfisherdev/creditpanel/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.ListingStore = (*ListingRepo)(nil)

// ListingRepo is the SQLite implementation of the ListingStore port interface.
type ListingRepo struct {
	db *DB
}

// NewListingRepo creates a new ListingRepo backed by the given DB.
func NewListingRepo(db *DB) *ListingRepo {
	return &ListingRepo{db: db}
}

// Set creates or replaces the listing for listing.TokenID.
func (r *ListingRepo) Set(ctx context.Context, listing model.Listing) error {
	const query = `
		INSERT INTO listings (token_id, seller, price_cents, listed_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(token_id) DO UPDATE SET
			seller      = excluded.seller,
			price_cents = excluded.price_cents,
			listed_at   = excluded.listed_at`

	listedAt := listing.ListedAt
	if listedAt.IsZero() {
		listedAt = time.Now()
	}

	_, err := r.db.Writer.ExecContext(ctx, query,
		int64(listing.TokenID), string(listing.Seller), listing.PriceCents, formatTime(listedAt))
	if err != nil {
		return fmt.Errorf("set listing for token %d: %w", listing.TokenID, err)
	}
	return nil
}

// Remove deletes the listing. Returns driven.ErrListingNotFound if the token
// is not listed.
func (r *ListingRepo) Remove(ctx context.Context, id model.TokenID) error {
	const query = `DELETE FROM listings WHERE token_id = ?`

	result, err := r.db.Writer.ExecContext(ctx, query, int64(id))
	if err != nil {
		return fmt.Errorf("remove listing for token %d: %w", id, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("remove listing for token %d: %w", id, driven.ErrListingNotFound)
	}
	return nil
}

// Get returns the listing for the token, or nil, nil if it is not listed.
func (r *ListingRepo) Get(ctx context.Context, id model.TokenID) (*model.Listing, error) {
	const query = `SELECT token_id, seller, price_cents, listed_at FROM listings WHERE token_id = ?`

	listing, err := scanListing(r.db.Reader.QueryRowContext(ctx, query, int64(id)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get listing for token %d: %w", id, err)
	}
	return listing, nil
}

// ListAll returns every listing ordered by token ID.
func (r *ListingRepo) ListAll(ctx context.Context) ([]model.Listing, error) {
	const query = `SELECT token_id, seller, price_cents, listed_at FROM listings ORDER BY token_id`

	rows, err := r.db.Reader.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list listings: %w", err)
	}
	defer rows.Close()

	var listings []model.Listing
	for rows.Next() {
		listing, err := scanListing(rows)
		if err != nil {
			return nil, fmt.Errorf("scan listing: %w", err)
		}
		listings = append(listings, *listing)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate listings: %w", err)
	}
	return listings, nil
}

func scanListing(s scanner) (*model.Listing, error) {
	var (
		listing  model.Listing
		id       int64
		seller   string
		listedAt string
	)

	if err := s.Scan(&id, &seller, &listing.PriceCents, &listedAt); err != nil {
		return nil, err
	}

	listing.TokenID = model.TokenID(id)
	listing.Seller = model.Address(seller)

	var err error
	listing.ListedAt, err = parseTime(listedAt)
	if err != nil {
		return nil, fmt.Errorf("parse listed_at: %w", err)
	}
	return &listing, nil
}
