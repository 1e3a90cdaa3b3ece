package model

import "time"

// Listing is an owner-set asking price for a credit. Credits without a
// listing have no price; no default is ever assumed.
type Listing struct {
	TokenID    TokenID
	Seller     Address
	PriceCents int64
	ListedAt   time.Time
}
