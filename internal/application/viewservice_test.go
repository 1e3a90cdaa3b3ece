package application_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/ericfisherdev/creditpanel/internal/application"
	"github.com/ericfisherdev/creditpanel/internal/domain/model"
	"github.com/ericfisherdev/creditpanel/internal/observability"
)

func newViewService(ledger *fakeLedger, viewer model.Address, store *mockCreditStore) (*application.ViewService, *application.ViewerProvider) {
	identity := application.NewViewerProvider(viewer)
	var svc *application.ViewService
	if store == nil {
		svc = application.NewViewService(ledger, application.NewReconciler(ledger, 4), identity, nil)
	} else {
		svc = application.NewViewService(ledger, application.NewReconciler(ledger, 4), identity, store)
	}
	return svc, identity
}

func TestViewService_RefreshAppliesViewAndFilters(t *testing.T) {
	ledger := newFakeLedger()
	ledger.mint(1, producerA, producerA, model.EnergySourceSolar)
	ledger.mint(2, producerA, viewerV, model.EnergySourceWind)
	ledger.mint(3, producerA, viewerV, model.EnergySourceHydro)
	ledger.setRetired(3, true)

	svc, _ := newViewService(ledger, viewerV, nil)

	_, err := svc.Refresh(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []model.TokenID{1}, recordIDs(svc.Marketplace()))
	assert.Equal(t, []model.TokenID{2, 3}, recordIDs(svc.Portfolio()))

	state := svc.State()
	assert.NoError(t, state.Err)
	assert.Equal(t, uint64(1), state.Token)
}

func TestViewService_StaleRefreshIsDiscarded(t *testing.T) {
	ledger := newFakeLedger()
	ledger.mint(1, producerA, producerA, model.EnergySourceSolar)

	entered := make(chan struct{})
	release := make(chan struct{})
	ledger.listHook = func(call int) {
		if call == 1 {
			close(entered)
			<-release
		}
	}

	svc, _ := newViewService(ledger, viewerV, nil)
	discardedBefore := testutil.ToFloat64(observability.StaleViewsDiscarded)

	type result struct {
		view application.View
		err  error
	}
	older := make(chan result, 1)
	go func() {
		v, err := svc.Refresh(context.Background())
		older <- result{v, err}
	}()

	<-entered
	ledger.mint(2, producerA, producerA, model.EnergySourceWind)

	newer, err := svc.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []model.TokenID{1, 2}, recordIDs(newer.Records))

	close(release)
	res := <-older

	require.ErrorIs(t, res.err, model.ErrStaleView)
	assert.Equal(t, []model.TokenID{1}, recordIDs(res.view.Records))
	assert.Equal(t, []model.TokenID{1, 2}, recordIDs(svc.Current().Records), "older result must not overwrite newer view")
	assert.Equal(t, discardedBefore+1, testutil.ToFloat64(observability.StaleViewsDiscarded))
}

func TestViewService_RetiredIsMonotonic(t *testing.T) {
	ledger := newFakeLedger()
	ledger.mint(1, producerA, viewerV, model.EnergySourceSolar)
	ledger.setRetired(1, true)

	svc, _ := newViewService(ledger, viewerV, nil)
	_, err := svc.Refresh(context.Background())
	require.NoError(t, err)

	// A lagging replica reports the credit as active again.
	ledger.setRetired(1, false)

	view, err := svc.Refresh(context.Background())
	require.NoError(t, err)
	require.Len(t, view.Records, 1)
	assert.True(t, view.Records[0].Retired)
	assert.Equal(t, model.CreditStatusRetired, view.Records[0].Status)
	assert.Empty(t, svc.Marketplace())
}

func TestViewService_RetiredIsMonotonicAcrossRestarts(t *testing.T) {
	ledger := newFakeLedger()
	ledger.mint(1, producerA, otherW, model.EnergySourceSolar)

	store := newMockCreditStore(model.CreditRecord{ID: 1, Producer: producerA, Owner: otherW, Retired: true})
	svc, _ := newViewService(ledger, viewerV, store)

	view, err := svc.Refresh(context.Background())
	require.NoError(t, err)
	require.Len(t, view.Records, 1)
	assert.Equal(t, model.CreditStatusRetired, view.Records[0].Status)
}

func TestViewService_RefreshPersistsSnapshot(t *testing.T) {
	ledger := newFakeLedger()
	ledger.mint(1, producerA, producerA, model.EnergySourceSolar)
	ledger.mint(2, producerA, viewerV, model.EnergySourceWind)

	store := newMockCreditStore()
	svc, _ := newViewService(ledger, viewerV, store)

	_, err := svc.Refresh(context.Background())
	require.NoError(t, err)

	stored, err := store.ListAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []model.TokenID{1, 2}, recordIDs(stored))
	assert.Equal(t, 1, store.upserts)
}

func TestViewService_RestoreRederivesStatusForCurrentViewer(t *testing.T) {
	store := newMockCreditStore(
		model.CreditRecord{ID: 1, Producer: producerA, Owner: viewerV},
		model.CreditRecord{ID: 2, Producer: producerA, Owner: otherW},
	)
	svc, _ := newViewService(newFakeLedger(), viewerV, store)

	require.NoError(t, svc.Restore(context.Background()))

	view := svc.Current()
	assert.True(t, view.Restored)
	assert.Equal(t, []model.TokenID{1}, recordIDs(svc.Portfolio()))
	assert.Equal(t, []model.TokenID{2}, recordIDs(svc.Marketplace()))
}

func TestViewService_RestoreNeverOverridesRefresh(t *testing.T) {
	ledger := newFakeLedger()
	ledger.mint(5, producerA, producerA, model.EnergySourceHydro)

	store := newMockCreditStore(model.CreditRecord{ID: 1, Owner: viewerV})
	svc, _ := newViewService(ledger, viewerV, store)

	_, err := svc.Refresh(context.Background())
	require.NoError(t, err)
	require.NoError(t, svc.Restore(context.Background()))

	view := svc.Current()
	assert.False(t, view.Restored)
	assert.Equal(t, []model.TokenID{5}, recordIDs(view.Records))
}

func TestViewService_AggregateFailureIsVisible(t *testing.T) {
	ledger := newFakeLedger()
	ledger.mint(1, producerA, producerA, model.EnergySourceSolar)
	svc, _ := newViewService(ledger, viewerV, nil)

	_, err := svc.Refresh(context.Background())
	require.NoError(t, err)

	ledger.ownerErr[1] = errors.New("gateway down")
	_, err = svc.Refresh(context.Background())
	require.ErrorIs(t, err, model.ErrAggregateFetchFailure)

	state := svc.State()
	assert.ErrorIs(t, state.Err, model.ErrAggregateFetchFailure)
	assert.Empty(t, state.View.Records)
}

func TestViewService_ListFailureIsWrapped(t *testing.T) {
	ledger := newFakeLedger()
	ledger.listErr = errors.New("connection refused")
	svc, _ := newViewService(ledger, viewerV, nil)

	_, err := svc.Refresh(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "listing issuance events")
	assert.Error(t, svc.State().Err)
}

func TestViewService_ReadsFollowViewerWithoutRefresh(t *testing.T) {
	ledger := newFakeLedger()
	ledger.mint(1, producerA, viewerV, model.EnergySourceSolar)
	svc, identity := newViewService(ledger, viewerV, nil)

	_, err := svc.Refresh(context.Background())
	require.NoError(t, err)
	require.Len(t, svc.Portfolio(), 1)

	identity.Disconnect()

	assert.Empty(t, svc.Portfolio())
	assert.Equal(t, []model.TokenID{1}, recordIDs(svc.Marketplace()))
}

// subscribeSignal reports when Watch has registered its subscription.
type subscribeSignal struct {
	*application.ViewerProvider
	subscribed chan struct{}
}

func (s subscribeSignal) Subscribe(fn func(model.Address)) func() {
	unsubscribe := s.ViewerProvider.Subscribe(fn)
	close(s.subscribed)
	return unsubscribe
}

func TestViewService_WatchRefreshesOnViewerChange(t *testing.T) {
	defer goleak.VerifyNone(t)

	ledger := newFakeLedger()
	ledger.mint(1, producerA, viewerV, model.EnergySourceSolar)
	ledger.mint(2, producerA, otherW, model.EnergySourceWind)

	provider := application.NewViewerProvider("")
	identity := subscribeSignal{ViewerProvider: provider, subscribed: make(chan struct{})}
	svc := application.NewViewService(ledger, application.NewReconciler(ledger, 2), identity, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		svc.Watch(ctx)
		close(done)
	}()

	select {
	case <-identity.subscribed:
	case <-time.After(2 * time.Second):
		t.Fatal("Watch did not subscribe")
	}

	_, err := provider.Connect(string(viewerV))
	require.NoError(t, err)

	// The refresh ran synchronously inside Connect.
	state := svc.State()
	assert.Equal(t, uint64(1), state.Token)
	assert.Equal(t, []model.TokenID{1}, recordIDs(svc.Portfolio()))

	_, err = provider.Connect(string(otherW))
	require.NoError(t, err)
	assert.Equal(t, uint64(2), svc.State().Token)
	assert.Equal(t, []model.TokenID{2}, recordIDs(svc.Portfolio()))

	cancel()
	<-done

	// After Watch returns, viewer changes no longer trigger refreshes.
	provider.Disconnect()
	assert.Equal(t, uint64(2), svc.State().Token)
}
