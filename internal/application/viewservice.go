package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ericfisherdev/creditpanel/internal/domain/model"
	"github.com/ericfisherdev/creditpanel/internal/domain/port/driven"
	"github.com/ericfisherdev/creditpanel/internal/observability"
)

// ViewState is the applied view together with the error of the refresh that
// produced it, if any.
type ViewState struct {
	View  View
	Err   error
	Token uint64 // Request token of the applied refresh; 0 before the first one.
}

// ViewService owns the visible credit view. Refreshes are issued on demand;
// each one carries a request token and only the newest completed refresh may
// replace the visible state.
type ViewService struct {
	ledger     driven.LedgerReader
	reconciler *Reconciler
	identity   driven.IdentityProvider
	store      driven.CreditStore

	seq atomic.Uint64

	mu      sync.RWMutex
	applied uint64
	current View
	lastErr error
	retired map[model.TokenID]bool
}

// NewViewService creates a ViewService. store may be nil, in which case views
// are neither persisted nor restored.
func NewViewService(
	ledger driven.LedgerReader,
	reconciler *Reconciler,
	identity driven.IdentityProvider,
	store driven.CreditStore,
) *ViewService {
	return &ViewService{
		ledger:     ledger,
		reconciler: reconciler,
		identity:   identity,
		store:      store,
		retired:    make(map[model.TokenID]bool),
	}
}

// Refresh rebuilds the view from the ledger for the current viewer. If a
// refresh issued later has already been applied, the result is discarded and
// ErrStaleView is returned alongside it.
func (s *ViewService) Refresh(ctx context.Context) (View, error) {
	return s.refresh(ctx, s.ledger, s.reconciler)
}

// RefreshFresh is Refresh with every ledger read bypassing response caches.
// It is used right after a confirmed transaction, when cached owner and
// detail reads are known to be outdated. Ledgers that do not implement
// driven.FreshReader are read as usual.
func (s *ViewService) RefreshFresh(ctx context.Context) (View, error) {
	fr, ok := s.ledger.(driven.FreshReader)
	if !ok {
		return s.Refresh(ctx)
	}
	reader := fr.Fresh()
	return s.refresh(ctx, reader, s.reconciler.withLedger(reader))
}

func (s *ViewService) refresh(ctx context.Context, ledger driven.LedgerReader, reconciler *Reconciler) (View, error) {
	token := s.seq.Add(1)
	viewer := s.identity.Current()

	events, err := ledger.ListIssuanceEvents(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return View{}, fmt.Errorf("listing issuance events: %w", err)
		}
		err = fmt.Errorf("listing issuance events: %w", err)
		view := View{Viewer: viewer, BuiltAt: time.Now()}
		if !s.apply(token, view, err) {
			return view, model.ErrStaleView
		}
		return view, err
	}

	view, buildErr := reconciler.BuildView(ctx, events, viewer)
	if buildErr != nil && ctx.Err() != nil {
		return view, buildErr
	}
	if buildErr == nil {
		view = s.clampRetired(ctx, view)
	}

	if !s.apply(token, view, buildErr) {
		return view, model.ErrStaleView
	}

	if buildErr != nil {
		return view, buildErr
	}

	s.persist(ctx, view)

	slog.Info("credit view refreshed",
		"token", token,
		"viewer", viewer.Short(),
		"records", len(view.Records),
		"partial", view.Partial(),
	)

	return view, nil
}

// apply installs view as the visible state if token is newer than the last
// applied one. It reports whether the view was applied.
func (s *ViewService) apply(token uint64, view View, err error) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if token <= s.applied {
		observability.StaleViewsDiscarded.Inc()
		slog.Debug("discarding stale credit view", "token", token, "applied", s.applied)
		return false
	}

	s.applied = token
	s.current = view.clone()
	s.lastErr = err
	for _, r := range view.Records {
		if r.Retired {
			s.retired[r.ID] = true
		}
	}

	for status, n := range view.CountByStatus() {
		observability.CreditsByStatus.WithLabelValues(string(status)).Set(float64(n))
	}
	return true
}

// clampRetired keeps retirement monotonic across refreshes. A lagging ledger
// replica that still reports a retired credit as active does not un-retire it.
func (s *ViewService) clampRetired(ctx context.Context, view View) View {
	known := s.knownRetired(ctx)
	if len(known) == 0 {
		return view
	}

	records := make([]model.CreditRecord, len(view.Records))
	for i, r := range view.Records {
		if !r.Retired && known[r.ID] {
			slog.Debug("holding retired flag over stale ledger read", "token_id", r.ID)
			r.Retired = true
			r = r.WithStatus(view.Viewer)
		}
		records[i] = r
	}
	view.Records = records
	return view
}

func (s *ViewService) knownRetired(ctx context.Context) map[model.TokenID]bool {
	s.mu.RLock()
	known := make(map[model.TokenID]bool, len(s.retired))
	for id := range s.retired {
		known[id] = true
	}
	s.mu.RUnlock()

	if s.store == nil {
		return known
	}

	stored, err := s.store.RetiredIDs(ctx)
	if err != nil {
		slog.Warn("failed to load retired credits from snapshot", "error", err)
		return known
	}
	for id := range stored {
		known[id] = true
	}
	return known
}

func (s *ViewService) persist(ctx context.Context, view View) {
	if s.store == nil || len(view.Records) == 0 {
		return
	}
	if err := s.store.UpsertAll(ctx, view.Records); err != nil {
		slog.Error("failed to persist credit snapshot", "records", len(view.Records), "error", err)
	}
}

// Restore loads the last persisted snapshot so the panel has something to show
// before the first refresh completes. It never overrides a refreshed view.
func (s *ViewService) Restore(ctx context.Context) error {
	if s.store == nil {
		return nil
	}

	records, err := s.store.ListAll(ctx)
	if err != nil {
		return fmt.Errorf("restoring credit snapshot: %w", err)
	}

	viewer := s.identity.Current()
	for i := range records {
		records[i] = records[i].WithStatus(viewer)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range records {
		if r.Retired {
			s.retired[r.ID] = true
		}
	}
	if s.applied > 0 {
		return nil
	}
	s.current = View{Records: records, Viewer: viewer, BuiltAt: time.Now(), Restored: true}

	slog.Info("credit snapshot restored", "records", len(records))
	return nil
}

// State returns a copy of the applied view and the error of the refresh that
// produced it. Statuses are re-derived if the viewer changed since the view
// was built.
func (s *ViewService) State() ViewState {
	s.mu.RLock()
	view := s.current.clone()
	state := ViewState{Err: s.lastErr, Token: s.applied}
	s.mu.RUnlock()

	viewer := s.identity.Current()
	if view.Viewer != viewer {
		for i := range view.Records {
			view.Records[i] = view.Records[i].WithStatus(viewer)
		}
		view.Viewer = viewer
	}
	state.View = view
	return state
}

// Current returns a copy of the applied view.
func (s *ViewService) Current() View {
	return s.State().View
}

// Marketplace returns the credits the viewer can buy.
func (s *ViewService) Marketplace() []model.CreditRecord {
	return s.Current().Filter(model.CreditStatusAvailable)
}

// Portfolio returns the viewer's owned and retired credits.
func (s *ViewService) Portfolio() []model.CreditRecord {
	return s.Current().Filter(model.CreditStatusOwned, model.CreditStatusRetired)
}

// Watch refreshes the view every time the connected account changes. Each
// refresh runs synchronously inside the notification. Watch blocks until ctx
// is canceled.
func (s *ViewService) Watch(ctx context.Context) {
	unsubscribe := s.identity.Subscribe(func(addr model.Address) {
		if ctx.Err() != nil {
			return
		}
		slog.Info("viewer changed, refreshing credit view", "viewer", addr.Short())
		if _, err := s.Refresh(ctx); err != nil && !errors.Is(err, model.ErrStaleView) {
			slog.Error("refresh after viewer change failed", "error", err)
		}
	})
	defer unsubscribe()

	<-ctx.Done()
	slog.Info("view watcher stopped")
}
