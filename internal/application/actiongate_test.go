package application_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/creditpanel/internal/application"
	"github.com/ericfisherdev/creditpanel/internal/domain/model"
)

type gateFixture struct {
	ledger   *fakeLedger
	views    *application.ViewService
	identity *application.ViewerProvider
	gate     *application.ActionGate
}

func newGateFixture(t *testing.T, viewer model.Address) *gateFixture {
	t.Helper()

	ledger := newFakeLedger()
	ledger.mint(1, producerA, producerA, model.EnergySourceSolar)
	ledger.mint(2, producerA, viewerV, model.EnergySourceWind)

	views, identity := newViewService(ledger, viewer, nil)
	_, err := views.Refresh(context.Background())
	require.NoError(t, err)

	gate := application.NewActionGate(views, ledger, ledger, identity, time.Second)
	t.Cleanup(gate.Wait)

	return &gateFixture{ledger: ledger, views: views, identity: identity, gate: gate}
}

func TestActionGate_BuyConfirmsAfterFreshRefresh(t *testing.T) {
	fx := newGateFixture(t, viewerV)

	status, err := fx.gate.Submit(context.Background(), model.ActionBuy, 1)
	require.NoError(t, err)
	assert.Equal(t, model.ActionPending, status.State)
	assert.NotEmpty(t, status.AttemptID)
	assert.NotEmpty(t, status.TxHash)

	fx.gate.Wait()

	final := fx.gate.Status(1)
	assert.Equal(t, model.ActionSuccess, final.State)
	assert.Empty(t, final.LastError)

	require.Len(t, fx.ledger.transfers, 1)
	assert.Equal(t, transferCall{ID: 1, From: producerA, To: viewerV}, fx.ledger.transfers[0])
	assert.Positive(t, fx.ledger.freshCalls.Load())

	// The view was rebuilt before success became visible.
	rec, ok := fx.views.Current().Find(1)
	require.True(t, ok)
	assert.Equal(t, model.CreditStatusOwned, rec.Status)
}

func TestActionGate_RetireOwnedCredit(t *testing.T) {
	fx := newGateFixture(t, viewerV)

	_, err := fx.gate.Submit(context.Background(), model.ActionRetire, 2)
	require.NoError(t, err)
	fx.gate.Wait()

	assert.Equal(t, model.ActionSuccess, fx.gate.Status(2).State)
	assert.Equal(t, []retireCall{{ID: 2, Owner: viewerV}}, fx.ledger.retires)

	rec, ok := fx.views.Current().Find(2)
	require.True(t, ok)
	assert.Equal(t, model.CreditStatusRetired, rec.Status)
}

func TestActionGate_Guards(t *testing.T) {
	tests := []struct {
		name    string
		viewer  model.Address
		kind    model.ActionKind
		id      model.TokenID
		wantErr error
	}{
		{name: "no viewer", viewer: "", kind: model.ActionBuy, id: 1, wantErr: model.ErrNoViewer},
		{name: "unknown credit", viewer: viewerV, kind: model.ActionBuy, id: 99, wantErr: model.ErrCreditNotFound},
		{name: "buy own credit", viewer: viewerV, kind: model.ActionBuy, id: 2, wantErr: model.ErrActionNotAllowed},
		{name: "retire someone else's credit", viewer: viewerV, kind: model.ActionRetire, id: 1, wantErr: model.ErrActionNotAllowed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fx := newGateFixture(t, tt.viewer)

			status, err := fx.gate.Submit(context.Background(), tt.kind, tt.id)

			require.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, model.ActionIdle, status.State)
			assert.Empty(t, fx.ledger.transfers)
			assert.Empty(t, fx.ledger.retires)
		})
	}
}

func TestActionGate_SecondSubmitWhilePendingIsRejected(t *testing.T) {
	fx := newGateFixture(t, viewerV)
	fx.ledger.waitGate = make(chan struct{})

	_, err := fx.gate.Submit(context.Background(), model.ActionBuy, 1)
	require.NoError(t, err)

	status, err := fx.gate.Submit(context.Background(), model.ActionBuy, 1)
	require.ErrorIs(t, err, model.ErrActionInFlight)
	assert.Equal(t, model.ActionPending, status.State)

	close(fx.ledger.waitGate)
	fx.gate.Wait()
	assert.Len(t, fx.ledger.transfers, 1)
}

func TestActionGate_SuccessMustBeAcknowledged(t *testing.T) {
	fx := newGateFixture(t, viewerV)

	_, err := fx.gate.Submit(context.Background(), model.ActionBuy, 1)
	require.NoError(t, err)
	fx.gate.Wait()
	require.Equal(t, model.ActionSuccess, fx.gate.Status(1).State)

	_, err = fx.gate.Submit(context.Background(), model.ActionRetire, 1)
	require.ErrorIs(t, err, model.ErrActionInFlight)

	status, err := fx.gate.Acknowledge(1)
	require.NoError(t, err)
	assert.Equal(t, model.ActionIdle, status.State)

	_, err = fx.gate.Submit(context.Background(), model.ActionRetire, 1)
	require.NoError(t, err)
	fx.gate.Wait()
	assert.Equal(t, model.ActionSuccess, fx.gate.Status(1).State)
}

func TestActionGate_AcknowledgeIdleFails(t *testing.T) {
	fx := newGateFixture(t, viewerV)

	_, err := fx.gate.Acknowledge(1)
	require.ErrorIs(t, err, model.ErrActionNotAllowed)
}

func TestActionGate_RevalidationRejectsChangedCredit(t *testing.T) {
	fx := newGateFixture(t, viewerV)
	// Someone else retired the credit after the view was built.
	fx.ledger.setRetired(1, true)

	status, err := fx.gate.Submit(context.Background(), model.ActionBuy, 1)

	var rejected *model.ActionRejectedError
	require.ErrorAs(t, err, &rejected)
	assert.Equal(t, model.TokenID(1), rejected.TokenID)
	assert.Contains(t, rejected.Reason, "Retired")
	assert.Equal(t, model.ActionIdle, status.State)
	assert.NotEmpty(t, status.LastError)
	assert.Empty(t, fx.ledger.transfers)
}

func TestActionGate_SubmitFailureReturnsToIdle(t *testing.T) {
	fx := newGateFixture(t, viewerV)
	fx.ledger.submitErr = errors.New("user rejected the request")

	status, err := fx.gate.Submit(context.Background(), model.ActionBuy, 1)

	var rejected *model.ActionRejectedError
	require.ErrorAs(t, err, &rejected)
	assert.Contains(t, err.Error(), "user rejected the request")
	assert.Equal(t, model.ActionIdle, status.State)

	// A rejected attempt leaves the credit free for another try.
	fx.ledger.submitErr = nil
	_, err = fx.gate.Submit(context.Background(), model.ActionBuy, 1)
	require.NoError(t, err)
}

func TestActionGate_FailedSettlementReturnsToIdle(t *testing.T) {
	fx := newGateFixture(t, viewerV)
	fx.ledger.waitErr = errors.New("execution reverted")

	_, err := fx.gate.Submit(context.Background(), model.ActionBuy, 1)
	require.NoError(t, err)
	fx.gate.Wait()

	status := fx.gate.Status(1)
	assert.Equal(t, model.ActionIdle, status.State)
	assert.Contains(t, status.LastError, "transaction failed")
	assert.Contains(t, status.LastError, "execution reverted")

	rec, ok := fx.views.Current().Find(1)
	require.True(t, ok)
	assert.Equal(t, model.CreditStatusAvailable, rec.Status, "status is never advanced optimistically")
}

func TestActionGate_UnknownCreditStatusIsIdle(t *testing.T) {
	fx := newGateFixture(t, viewerV)

	status := fx.gate.Status(42)
	assert.Equal(t, model.TokenID(42), status.TokenID)
	assert.Equal(t, model.ActionIdle, status.State)
}
