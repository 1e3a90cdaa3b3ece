// Package driven defines secondary port interfaces for external adapters.
package driven

import (
	"context"
	"time"

	"github.com/ericfisherdev/creditpanel/internal/domain/model"
)

// LedgerReader defines the driven port for reading credit state from the
// external ledger. Implementations are eventually consistent: a read issued
// right after a confirmed write may still return the previous state.
type LedgerReader interface {
	// ListIssuanceEvents returns every CreditIssued event. Order is not
	// guaranteed and the same token may appear more than once.
	ListIssuanceEvents(ctx context.Context) ([]model.IssuanceEvent, error)
	// OwnerOf returns the current owner of the token.
	OwnerOf(ctx context.Context, id model.TokenID) (model.Address, error)
	// DetailsOf returns the current detail snapshot of the token.
	DetailsOf(ctx context.Context, id model.TokenID) (model.CreditDetails, error)
	// ListLedgerEvents returns the Mint, Transfer and Retire history.
	ListLedgerEvents(ctx context.Context) ([]model.AuditEntry, error)
}

// FreshReader is implemented by ledger readers that can bypass any response
// cache. Action gating uses it to re-validate a credit at submission time.
type FreshReader interface {
	Fresh() LedgerReader
}

// TransactionHandle is a submitted ledger transaction that resolves to
// confirmed or failed asynchronously.
type TransactionHandle interface {
	Hash() string
	// Wait blocks until the transaction is confirmed (nil) or failed (error).
	Wait(ctx context.Context) error
}

// IssueRequest is the input to LedgerWriter.Issue. One request mints one credit.
type IssueRequest struct {
	Producer       model.Address
	EnergySource   model.EnergySource
	ProductionTime time.Time
}

// LedgerWriter defines the driven port for ledger write operations. It is
// separate from LedgerReader so read-only tooling never holds a signer.
type LedgerWriter interface {
	// Transfer moves the credit from its current owner to the given account.
	Transfer(ctx context.Context, id model.TokenID, from, to model.Address) (TransactionHandle, error)
	// Retire permanently retires the credit on behalf of its owner.
	Retire(ctx context.Context, id model.TokenID, owner model.Address) (TransactionHandle, error)
	// Issue certifies production and mints a new credit to the producer.
	Issue(ctx context.Context, req IssueRequest) (TransactionHandle, error)
}
