package model

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for reconciliation and action gating.
var (
	// ErrAggregateFetchFailure indicates every per-token fetch failed, as
	// opposed to the ledger being empty.
	ErrAggregateFetchFailure = errors.New("all credit fetches failed")

	// ErrNoViewer indicates an action was attempted without a connected account.
	ErrNoViewer = errors.New("no wallet account connected")

	// ErrCreditNotFound indicates the credit is not part of the current view.
	ErrCreditNotFound = errors.New("credit not found")

	// ErrActionNotAllowed indicates the credit's status does not permit the action.
	ErrActionNotAllowed = errors.New("action not allowed for credit status")

	// ErrActionInFlight indicates an action on the credit is pending or its
	// success has not been acknowledged yet.
	ErrActionInFlight = errors.New("action already in flight")

	// ErrStaleView indicates a refresh finished after a newer one was applied;
	// its result was discarded.
	ErrStaleView = errors.New("view superseded by a newer refresh")

	// ErrAnalysisUnavailable indicates no trading analyzer is configured.
	ErrAnalysisUnavailable = errors.New("trading analysis not configured")
)

// DuplicateIssuanceError reports that the ledger emitted the same token ID
// twice with conflicting immutable fields.
type DuplicateIssuanceError struct {
	TokenID TokenID
	Field   string
	First   string
	Second  string
}

func (e *DuplicateIssuanceError) Error() string {
	return fmt.Sprintf("duplicate issuance of token %d: %s %q conflicts with %q", e.TokenID, e.Field, e.First, e.Second)
}

// FetchFailure records a failed owner or detail fetch for one token. It is
// recoverable: the token is left out of the view and the view is flagged partial.
type FetchFailure struct {
	TokenID TokenID
	Op      string // "ownerOf" or "detailsOf".
	Err     error
}

func (f FetchFailure) Error() string {
	return fmt.Sprintf("%s(%d): %v", f.Op, f.TokenID, f.Err)
}

func (f FetchFailure) Unwrap() error {
	return f.Err
}

// AggregateFetchFailureError is returned when every token fetch failed.
type AggregateFetchFailureError struct {
	Failures []FetchFailure
}

func (e *AggregateFetchFailureError) Error() string {
	parts := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		parts = append(parts, f.Error())
	}
	return fmt.Sprintf("%v (%d tokens): %s", ErrAggregateFetchFailure, len(e.Failures), strings.Join(parts, "; "))
}

func (e *AggregateFetchFailureError) Is(target error) bool {
	return target == ErrAggregateFetchFailure
}

// ActionRejectedError reports that a buy or retire was declined, failed on
// the ledger, or no longer matched the ledger at submission time.
type ActionRejectedError struct {
	TokenID TokenID
	Kind    ActionKind
	Reason  string
	Err     error
}

func (e *ActionRejectedError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s of token %d rejected: %s: %v", e.Kind, e.TokenID, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s of token %d rejected: %s", e.Kind, e.TokenID, e.Reason)
}

func (e *ActionRejectedError) Unwrap() error {
	return e.Err
}
