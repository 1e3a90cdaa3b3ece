package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ericfisherdev/creditpanel/internal/domain/model"
	"github.com/ericfisherdev/creditpanel/internal/domain/port/driven"
)

// MaxIssueMWh caps a single issuance request. The ledger mints one credit per
// MWh in sequential transactions.
const MaxIssueMWh = 1000

// ErrInvalidIssueRequest wraps every validation failure of an IssueRequest.
var ErrInvalidIssueRequest = errors.New("invalid issue request")

// earliestProduction is the oldest production date the ledger accepts.
var earliestProduction = time.Date(1990, time.January, 1, 0, 0, 0, 0, time.UTC)

// IssueRequest is a producer's attestation of MWh produced on one day. An
// empty Producer defaults to the connected viewer.
type IssueRequest struct {
	Producer       string
	EnergySource   string
	ProductionDate time.Time
	MWh            int
}

// IssueResult lists the transaction hashes of credits minted so far. On
// failure it holds the credits that were minted before the error.
type IssueResult struct {
	Producer model.Address
	TxHashes []string
}

// IssueService certifies production and mints credits, one per MWh.
type IssueService struct {
	writer   driven.LedgerWriter
	views    viewSource
	identity driven.IdentityProvider
	now      func() time.Time
}

// NewIssueService creates a new IssueService with the required dependencies.
func NewIssueService(writer driven.LedgerWriter, views viewSource, identity driven.IdentityProvider) *IssueService {
	return &IssueService{
		writer:   writer,
		views:    views,
		identity: identity,
		now:      time.Now,
	}
}

// Issue validates the request and mints req.MWh credits sequentially, waiting
// for each transaction to confirm before submitting the next. The view is
// refreshed once at the end, including after a partial failure.
func (s *IssueService) Issue(ctx context.Context, req IssueRequest) (IssueResult, error) {
	issue, count, err := s.validate(req)
	if err != nil {
		return IssueResult{}, err
	}

	result := IssueResult{Producer: issue.Producer}
	defer func() {
		if len(result.TxHashes) == 0 {
			return
		}
		if _, rerr := s.views.RefreshFresh(ctx); rerr != nil && !errors.Is(rerr, model.ErrStaleView) {
			slog.Warn("refresh after issuance failed", "error", rerr)
		}
	}()

	for i := range count {
		handle, err := s.writer.Issue(ctx, issue)
		if err != nil {
			return result, fmt.Errorf("issuing credit %d of %d: %w", i+1, count, err)
		}
		if err := handle.Wait(ctx); err != nil {
			return result, fmt.Errorf("confirming credit %d of %d (tx %s): %w", i+1, count, handle.Hash(), err)
		}
		result.TxHashes = append(result.TxHashes, handle.Hash())

		slog.Info("credit issued",
			"producer", issue.Producer.Short(),
			"energy_source", issue.EnergySource,
			"n", i+1,
			"of", count,
			"tx_hash", handle.Hash(),
		)
	}

	return result, nil
}

func (s *IssueService) validate(req IssueRequest) (driven.IssueRequest, int, error) {
	invalid := func(format string, args ...any) error {
		return fmt.Errorf("%w: %s", ErrInvalidIssueRequest, fmt.Sprintf(format, args...))
	}

	producer := s.identity.Current()
	if req.Producer != "" {
		addr, err := model.ParseAddress(req.Producer)
		if err != nil {
			return driven.IssueRequest{}, 0, invalid("%v", err)
		}
		producer = addr
	}
	if producer.IsZero() {
		return driven.IssueRequest{}, 0, model.ErrNoViewer
	}

	source, err := model.ParseEnergySource(req.EnergySource)
	if err != nil {
		return driven.IssueRequest{}, 0, invalid("%v", err)
	}

	if req.ProductionDate.IsZero() {
		return driven.IssueRequest{}, 0, invalid("production date is required")
	}
	if req.ProductionDate.After(s.now()) {
		return driven.IssueRequest{}, 0, invalid("production date %s is in the future", req.ProductionDate.Format(time.DateOnly))
	}
	if req.ProductionDate.Before(earliestProduction) {
		return driven.IssueRequest{}, 0, invalid("production date %s is before %s",
			req.ProductionDate.Format(time.DateOnly), earliestProduction.Format(time.DateOnly))
	}

	if req.MWh < 1 {
		return driven.IssueRequest{}, 0, invalid("must produce at least 1 MWh")
	}
	if req.MWh > MaxIssueMWh {
		return driven.IssueRequest{}, 0, invalid("at most %d MWh per request", MaxIssueMWh)
	}

	return driven.IssueRequest{
		Producer:       producer,
		EnergySource:   source,
		ProductionTime: req.ProductionDate,
	}, req.MWh, nil
}
