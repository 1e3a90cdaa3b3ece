package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ericfisherdev/creditpanel/internal/domain/model"
	"github.com/ericfisherdev/creditpanel/internal/domain/port/driven"
	"github.com/ericfisherdev/creditpanel/internal/observability"
)

// DefaultSettleTimeout bounds how long a submitted transaction is awaited.
const DefaultSettleTimeout = 5 * time.Minute

// viewSource is the part of ViewService the gate depends on.
type viewSource interface {
	Current() View
	Refresh(ctx context.Context) (View, error)
	RefreshFresh(ctx context.Context) (View, error)
}

// ActionGate serializes buy and retire actions per credit. Each credit has an
// idle/pending/success state machine; a credit only reaches success after the
// ledger confirmed the transaction and the view was rebuilt from fresh data.
type ActionGate struct {
	views         viewSource
	ledger        driven.LedgerReader
	writer        driven.LedgerWriter
	identity      driven.IdentityProvider
	settleTimeout time.Duration

	mu     sync.Mutex
	states map[model.TokenID]model.ActionStatus

	wg sync.WaitGroup
}

// NewActionGate creates an ActionGate. When ledger implements
// driven.FreshReader, submission-time re-validation bypasses response caches.
func NewActionGate(
	views viewSource,
	ledger driven.LedgerReader,
	writer driven.LedgerWriter,
	identity driven.IdentityProvider,
	settleTimeout time.Duration,
) *ActionGate {
	if settleTimeout <= 0 {
		settleTimeout = DefaultSettleTimeout
	}
	return &ActionGate{
		views:         views,
		ledger:        ledger,
		writer:        writer,
		identity:      identity,
		settleTimeout: settleTimeout,
		states:        make(map[model.TokenID]model.ActionStatus),
	}
}

// Submit starts a buy or retire of credit id for the connected viewer. It
// returns once the transaction has been handed to the ledger; settlement
// continues in the background and is observable through Status.
func (g *ActionGate) Submit(ctx context.Context, kind model.ActionKind, id model.TokenID) (model.ActionStatus, error) {
	viewer := g.identity.Current()
	if viewer.IsZero() {
		return g.Status(id), model.ErrNoViewer
	}

	rec, ok := g.views.Current().Find(id)
	if !ok {
		return g.Status(id), fmt.Errorf("token %d: %w", id, model.ErrCreditNotFound)
	}
	if rec.Status != kind.RequiredStatus() {
		return g.Status(id), fmt.Errorf("%s token %d with status %s: %w", kind, id, rec.Status, model.ErrActionNotAllowed)
	}

	status, err := g.begin(id, kind)
	if err != nil {
		return status, err
	}

	handle, err := g.submit(ctx, kind, id, viewer)
	if err != nil {
		return g.reject(id, kind, err)
	}

	status = g.update(id, func(st *model.ActionStatus) { st.TxHash = handle.Hash() })

	slog.Info("action submitted",
		"kind", kind,
		"token_id", id,
		"attempt_id", status.AttemptID,
		"tx_hash", handle.Hash(),
	)

	g.wg.Add(1)
	go g.settle(kind, id, handle)

	return status, nil
}

// begin moves an idle credit to pending, or reports ErrActionInFlight.
func (g *ActionGate) begin(id model.TokenID, kind model.ActionKind) (model.ActionStatus, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	cur := g.statusLocked(id)
	if cur.State != model.ActionIdle {
		return cur, fmt.Errorf("%s token %d while %s: %w", kind, id, cur.State, model.ErrActionInFlight)
	}

	next := model.ActionStatus{
		TokenID:   id,
		Kind:      kind,
		State:     model.ActionPending,
		AttemptID: uuid.NewString(),
		UpdatedAt: time.Now(),
	}
	g.states[id] = next
	observability.ActionTransitions.WithLabelValues(string(kind), string(model.ActionPending)).Inc()
	return next, nil
}

// submit re-validates the credit against the ledger and sends the transaction.
func (g *ActionGate) submit(ctx context.Context, kind model.ActionKind, id model.TokenID, viewer model.Address) (driven.TransactionHandle, error) {
	reader := g.ledger
	if fr, ok := g.ledger.(driven.FreshReader); ok {
		reader = fr.Fresh()
	}

	owner, err := reader.OwnerOf(ctx, id)
	if err != nil {
		return nil, &model.ActionRejectedError{TokenID: id, Kind: kind, Reason: "re-validating owner", Err: err}
	}
	details, err := reader.DetailsOf(ctx, id)
	if err != nil {
		return nil, &model.ActionRejectedError{TokenID: id, Kind: kind, Reason: "re-validating details", Err: err}
	}

	fresh := model.DeriveStatus(model.CreditRecord{ID: id, Owner: owner, Retired: details.Retired}, viewer)
	if fresh != kind.RequiredStatus() {
		return nil, &model.ActionRejectedError{
			TokenID: id,
			Kind:    kind,
			Reason:  fmt.Sprintf("credit is now %s on the ledger", fresh),
		}
	}

	var handle driven.TransactionHandle
	switch kind {
	case model.ActionBuy:
		handle, err = g.writer.Transfer(ctx, id, owner, viewer)
	case model.ActionRetire:
		handle, err = g.writer.Retire(ctx, id, viewer)
	default:
		return nil, &model.ActionRejectedError{TokenID: id, Kind: kind, Reason: "unknown action"}
	}
	if err != nil {
		return nil, &model.ActionRejectedError{TokenID: id, Kind: kind, Reason: "submitting transaction", Err: err}
	}
	return handle, nil
}

// settle waits for the transaction outcome on a detached context.
func (g *ActionGate) settle(kind model.ActionKind, id model.TokenID, handle driven.TransactionHandle) {
	defer g.wg.Done()

	ctx, cancel := context.WithTimeout(context.Background(), g.settleTimeout)
	defer cancel()

	if err := handle.Wait(ctx); err != nil {
		_, rejected := g.reject(id, kind, &model.ActionRejectedError{
			TokenID: id,
			Kind:    kind,
			Reason:  "transaction failed",
			Err:     err,
		})
		slog.Warn("action settled with failure", "kind", kind, "token_id", id, "tx_hash", handle.Hash(), "error", rejected)
		return
	}

	if _, err := g.views.RefreshFresh(ctx); err != nil && !errors.Is(err, model.ErrStaleView) {
		slog.Warn("refresh after confirmed action failed", "kind", kind, "token_id", id, "error", err)
	}

	if err := g.transition(id, model.ActionSuccess, nil); err != nil {
		slog.Error("action state transition failed", "token_id", id, "error", err)
		return
	}
	slog.Info("action confirmed", "kind", kind, "token_id", id, "tx_hash", handle.Hash())
}

// reject returns a pending credit to idle and records the rejection.
func (g *ActionGate) reject(id model.TokenID, kind model.ActionKind, err error) (model.ActionStatus, error) {
	var rejected *model.ActionRejectedError
	if !errors.As(err, &rejected) {
		rejected = &model.ActionRejectedError{TokenID: id, Kind: kind, Reason: "unexpected error", Err: err}
	}

	msg := rejected.Error()
	if terr := g.transition(id, model.ActionIdle, func(st *model.ActionStatus) { st.LastError = msg }); terr != nil {
		slog.Error("action state transition failed", "token_id", id, "error", terr)
	}
	return g.Status(id), rejected
}

// Acknowledge returns a succeeded credit to idle so it can be acted on again.
func (g *ActionGate) Acknowledge(id model.TokenID) (model.ActionStatus, error) {
	if err := g.transition(id, model.ActionIdle, func(st *model.ActionStatus) { st.LastError = "" }); err != nil {
		return g.Status(id), err
	}
	return g.Status(id), nil
}

// transition applies a state change if the state machine allows it.
func (g *ActionGate) transition(id model.TokenID, to model.ActionState, mutate func(*model.ActionStatus)) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	cur := g.statusLocked(id)
	if !cur.State.CanTransition(to) {
		return fmt.Errorf("token %d cannot move from %s to %s: %w", id, cur.State, to, model.ErrActionNotAllowed)
	}
	cur.State = to
	cur.UpdatedAt = time.Now()
	if mutate != nil {
		mutate(&cur)
	}
	g.states[id] = cur
	observability.ActionTransitions.WithLabelValues(string(cur.Kind), string(to)).Inc()
	return nil
}

func (g *ActionGate) update(id model.TokenID, mutate func(*model.ActionStatus)) model.ActionStatus {
	g.mu.Lock()
	defer g.mu.Unlock()

	cur := g.statusLocked(id)
	mutate(&cur)
	g.states[id] = cur
	return cur
}

// Status returns the action state of credit id; unknown credits are idle.
func (g *ActionGate) Status(id model.TokenID) model.ActionStatus {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.statusLocked(id)
}

func (g *ActionGate) statusLocked(id model.TokenID) model.ActionStatus {
	if st, ok := g.states[id]; ok {
		return st
	}
	return model.ActionStatus{TokenID: id, State: model.ActionIdle}
}

// Wait blocks until every in-flight settlement has finished.
func (g *ActionGate) Wait() {
	g.wg.Wait()
}
