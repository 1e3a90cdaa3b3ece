// Package application contains use-case orchestration services.
package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ericfisherdev/creditpanel/internal/domain/model"
	"github.com/ericfisherdev/creditpanel/internal/domain/port/driven"
	"github.com/ericfisherdev/creditpanel/internal/observability"
)

// DefaultFetchConcurrency bounds in-flight owner/detail fetches when the
// caller does not configure a limit.
const DefaultFetchConcurrency = 8

// View is a reconciled, viewer-relative snapshot of every credit on the ledger.
// Records are sorted by token ID. Failures lists tokens that could not be
// fetched and are therefore absent from Records.
type View struct {
	Records  []model.CreditRecord
	Failures []model.FetchFailure
	Viewer   model.Address
	BuiltAt  time.Time
	Restored bool // Loaded from the local snapshot rather than the ledger.
}

// Partial reports whether some tokens were left out because their fetch failed.
func (v View) Partial() bool {
	return len(v.Failures) > 0
}

// Filter returns the records whose status is one of statuses, in token order.
// With no statuses it returns every record.
func (v View) Filter(statuses ...model.CreditStatus) []model.CreditRecord {
	out := make([]model.CreditRecord, 0, len(v.Records))
	if len(statuses) == 0 {
		return append(out, v.Records...)
	}
	for _, r := range v.Records {
		if slices.Contains(statuses, r.Status) {
			out = append(out, r)
		}
	}
	return out
}

// Find returns the record for id, if present.
func (v View) Find(id model.TokenID) (model.CreditRecord, bool) {
	i := sort.Search(len(v.Records), func(i int) bool { return v.Records[i].ID >= id })
	if i < len(v.Records) && v.Records[i].ID == id {
		return v.Records[i], true
	}
	return model.CreditRecord{}, false
}

// CountByStatus tallies records per derived status.
func (v View) CountByStatus() map[model.CreditStatus]int {
	counts := map[model.CreditStatus]int{
		model.CreditStatusAvailable: 0,
		model.CreditStatusOwned:     0,
		model.CreditStatusRetired:   0,
	}
	for _, r := range v.Records {
		counts[r.Status]++
	}
	return counts
}

// clone returns a deep copy so callers can never alias the applied view.
func (v View) clone() View {
	v.Records = slices.Clone(v.Records)
	v.Failures = slices.Clone(v.Failures)
	return v
}

// Reconciler turns issuance events plus per-token ledger reads into a View.
// It only reads from the ledger and holds no state between builds.
type Reconciler struct {
	ledger      driven.LedgerReader
	concurrency int
	now         func() time.Time
}

// NewReconciler creates a Reconciler. A concurrency below 1 falls back to
// DefaultFetchConcurrency.
func NewReconciler(ledger driven.LedgerReader, concurrency int) *Reconciler {
	if concurrency < 1 {
		concurrency = DefaultFetchConcurrency
	}
	return &Reconciler{
		ledger:      ledger,
		concurrency: concurrency,
		now:         time.Now,
	}
}

// withLedger returns a copy of r that reads from ledger.
func (r *Reconciler) withLedger(ledger driven.LedgerReader) *Reconciler {
	cp := *r
	cp.ledger = ledger
	return &cp
}

// fetchResult is the slot each fetch goroutine owns exclusively.
type fetchResult struct {
	record  model.CreditRecord
	failure *model.FetchFailure
}

// BuildView deduplicates events, fetches owner and details for each unique
// token concurrently, and assembles records with status derived for viewer.
//
// A conflicting duplicate issuance fails the whole build. A failed fetch drops
// only that token and is reported in View.Failures. If every token fails the
// returned view is empty and the error matches model.ErrAggregateFetchFailure.
func (r *Reconciler) BuildView(ctx context.Context, events []model.IssuanceEvent, viewer model.Address) (View, error) {
	start := time.Now()
	defer func() {
		observability.ReconcileDuration.Observe(time.Since(start).Seconds())
	}()

	view := View{Viewer: viewer, BuiltAt: r.now()}

	unique, err := dedupeIssuance(events)
	if err != nil {
		observability.ReconcileOutcomes.WithLabelValues("duplicate_issuance").Inc()
		slog.Error("conflicting issuance events", "error", err)
		return view, err
	}

	if len(unique) == 0 {
		observability.ReconcileOutcomes.WithLabelValues("empty").Inc()
		return view, nil
	}

	results := make([]fetchResult, len(unique))

	var g errgroup.Group
	g.SetLimit(r.concurrency)
	for i, ev := range unique {
		g.Go(func() error {
			results[i] = r.fetchRecord(ctx, ev)
			return nil
		})
	}
	// Goroutines never return an error; Wait is the fan-in barrier.
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return view, fmt.Errorf("building credit view: %w", err)
	}

	records := make([]model.CreditRecord, 0, len(results))
	var failures []model.FetchFailure
	for _, res := range results {
		if res.failure != nil {
			failures = append(failures, *res.failure)
			continue
		}
		records = append(records, res.record.WithStatus(viewer))
	}

	if len(records) == 0 {
		observability.ReconcileOutcomes.WithLabelValues("aggregate_failure").Inc()
		view.Failures = failures
		return view, &model.AggregateFetchFailureError{Failures: failures}
	}

	view.Records = records
	view.Failures = failures

	if view.Partial() {
		observability.ReconcileOutcomes.WithLabelValues("partial").Inc()
		slog.Warn("credit view is partial",
			"records", len(records),
			"failed", len(failures),
		)
	} else {
		observability.ReconcileOutcomes.WithLabelValues("complete").Inc()
	}

	return view, nil
}

// fetchRecord reads owner and details for one token and merges them with the
// immutable issuance fields.
func (r *Reconciler) fetchRecord(ctx context.Context, ev model.IssuanceEvent) fetchResult {
	owner, err := r.ledger.OwnerOf(ctx, ev.TokenID)
	if err != nil {
		return fetchFailed(ev.TokenID, "ownerOf", err)
	}

	details, err := r.ledger.DetailsOf(ctx, ev.TokenID)
	if err != nil {
		return fetchFailed(ev.TokenID, "detailsOf", err)
	}

	rec := model.CreditRecord{
		ID:             ev.TokenID,
		Producer:       ev.Producer,
		EnergySource:   ev.EnergySource,
		ProductionTime: ev.ProductionTime,
		Owner:          owner,
		Retired:        details.Retired,
	}
	if rec.Producer.IsZero() {
		rec.Producer = details.Producer
	}
	if rec.EnergySource == "" {
		rec.EnergySource = details.EnergySource
	}
	if rec.ProductionTime.IsZero() {
		rec.ProductionTime = details.ProductionTime
	}

	return fetchResult{record: rec}
}

func fetchFailed(id model.TokenID, op string, err error) fetchResult {
	observability.FetchFailures.WithLabelValues(op).Inc()
	if !errors.Is(err, context.Canceled) {
		slog.Warn("credit fetch failed", "token_id", id, "op", op, "error", err)
	}
	return fetchResult{failure: &model.FetchFailure{TokenID: id, Op: op, Err: err}}
}

// dedupeIssuance keeps the first event per token ID and returns the survivors
// sorted by token ID. A repeated token whose immutable fields disagree with
// the first occurrence yields a DuplicateIssuanceError. Optional fields only
// conflict when both occurrences carry a value.
func dedupeIssuance(events []model.IssuanceEvent) ([]model.IssuanceEvent, error) {
	first := make(map[model.TokenID]model.IssuanceEvent, len(events))
	unique := make([]model.IssuanceEvent, 0, len(events))

	for _, ev := range events {
		prev, seen := first[ev.TokenID]
		if !seen {
			first[ev.TokenID] = ev
			unique = append(unique, ev)
			continue
		}
		if err := compareIssuance(prev, ev); err != nil {
			return nil, err
		}
	}

	sort.Slice(unique, func(i, j int) bool { return unique[i].TokenID < unique[j].TokenID })
	return unique, nil
}

func compareIssuance(a, b model.IssuanceEvent) error {
	conflict := func(field, first, second string) error {
		return &model.DuplicateIssuanceError{TokenID: a.TokenID, Field: field, First: first, Second: second}
	}

	if !a.Producer.IsZero() && !b.Producer.IsZero() && !a.Producer.Equal(b.Producer) {
		return conflict("producer", string(a.Producer), string(b.Producer))
	}
	if a.EnergySource != "" && b.EnergySource != "" && a.EnergySource != b.EnergySource {
		return conflict("energy_source", string(a.EnergySource), string(b.EnergySource))
	}
	if !a.ProductionTime.IsZero() && !b.ProductionTime.IsZero() && !a.ProductionTime.Equal(b.ProductionTime) {
		return conflict("production_time",
			a.ProductionTime.UTC().Format(time.RFC3339),
			b.ProductionTime.UTC().Format(time.RFC3339))
	}
	return nil
}
