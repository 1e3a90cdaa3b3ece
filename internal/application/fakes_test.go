package application_test

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ericfisherdev/creditpanel/internal/domain/model"
	"github.com/ericfisherdev/creditpanel/internal/domain/port/driven"
)

const (
	producerA = model.Address("0x1111111111111111111111111111111111111111")
	viewerV   = model.Address("0x2222222222222222222222222222222222222222")
	otherW    = model.Address("0x3333333333333333333333333333333333333333")
)

var productionDay = time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC)

// --- fakeLedger: in-memory LedgerReader + LedgerWriter ---

type transferCall struct {
	ID       model.TokenID
	From, To model.Address
}

type retireCall struct {
	ID    model.TokenID
	Owner model.Address
}

type fakeLedger struct {
	mu         sync.Mutex
	events     []model.IssuanceEvent
	owners     map[model.TokenID]model.Address
	details    map[model.TokenID]model.CreditDetails
	ownerErr   map[model.TokenID]error
	detailsErr map[model.TokenID]error
	delay      map[model.TokenID]time.Duration
	listErr    error
	audit      []model.AuditEntry
	auditErr   error

	// listHook runs after the event snapshot is taken, outside the lock.
	listHook func(call int)
	listCall int

	transfers  []transferCall
	retires    []retireCall
	issues     []driven.IssueRequest
	submitErr  error
	issueErrAt int // 1-based Issue call that fails; 0 never fails.
	waitErr    error
	waitGate   chan struct{}

	freshCalls atomic.Int64
	txSeq      int
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{
		owners:     make(map[model.TokenID]model.Address),
		details:    make(map[model.TokenID]model.CreditDetails),
		ownerErr:   make(map[model.TokenID]error),
		detailsErr: make(map[model.TokenID]error),
		delay:      make(map[model.TokenID]time.Duration),
	}
}

// mint adds an issuance event and the matching on-ledger state.
func (f *fakeLedger) mint(id model.TokenID, producer, owner model.Address, source model.EnergySource) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, model.IssuanceEvent{
		TokenID:        id,
		Producer:       producer,
		EnergySource:   source,
		ProductionTime: productionDay,
		TxHash:         fmt.Sprintf("0xmint%d", id),
	})
	f.owners[id] = owner
	f.details[id] = model.CreditDetails{Producer: producer, EnergySource: source, ProductionTime: productionDay}
}

func (f *fakeLedger) setRetired(id model.TokenID, retired bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d := f.details[id]
	d.Retired = retired
	f.details[id] = d
}

func (f *fakeLedger) setOwner(id model.TokenID, owner model.Address) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.owners[id] = owner
}

func (f *fakeLedger) ListIssuanceEvents(_ context.Context) ([]model.IssuanceEvent, error) {
	f.mu.Lock()
	f.listCall++
	call := f.listCall
	hook := f.listHook
	err := f.listErr
	events := append([]model.IssuanceEvent(nil), f.events...)
	f.mu.Unlock()

	if hook != nil {
		hook(call)
	}
	if err != nil {
		return nil, err
	}
	return events, nil
}

func (f *fakeLedger) OwnerOf(ctx context.Context, id model.TokenID) (model.Address, error) {
	f.mu.Lock()
	d := f.delay[id]
	f.mu.Unlock()
	if d > 0 {
		select {
		case <-time.After(d):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.ownerErr[id]; err != nil {
		return "", err
	}
	owner, ok := f.owners[id]
	if !ok {
		return "", errors.New("token does not exist")
	}
	return owner, nil
}

func (f *fakeLedger) DetailsOf(ctx context.Context, id model.TokenID) (model.CreditDetails, error) {
	if err := ctx.Err(); err != nil {
		return model.CreditDetails{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.detailsErr[id]; err != nil {
		return model.CreditDetails{}, err
	}
	d, ok := f.details[id]
	if !ok {
		return model.CreditDetails{}, errors.New("token does not exist")
	}
	return d, nil
}

func (f *fakeLedger) ListLedgerEvents(_ context.Context) ([]model.AuditEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.auditErr != nil {
		return nil, f.auditErr
	}
	return append([]model.AuditEntry(nil), f.audit...), nil
}

func (f *fakeLedger) Fresh() driven.LedgerReader {
	f.freshCalls.Add(1)
	return f
}

func (f *fakeLedger) newTx(apply func()) *fakeTx {
	f.txSeq++
	return &fakeTx{hash: fmt.Sprintf("0xtx%04d", f.txSeq), ledger: f, apply: apply}
}

func (f *fakeLedger) Transfer(_ context.Context, id model.TokenID, from, to model.Address) (driven.TransactionHandle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.transfers = append(f.transfers, transferCall{ID: id, From: from, To: to})
	if f.submitErr != nil {
		return nil, f.submitErr
	}
	return f.newTx(func() { f.owners[id] = to }), nil
}

func (f *fakeLedger) Retire(_ context.Context, id model.TokenID, owner model.Address) (driven.TransactionHandle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.retires = append(f.retires, retireCall{ID: id, Owner: owner})
	if f.submitErr != nil {
		return nil, f.submitErr
	}
	return f.newTx(func() {
		d := f.details[id]
		d.Retired = true
		f.details[id] = d
	}), nil
}

func (f *fakeLedger) Issue(_ context.Context, req driven.IssueRequest) (driven.TransactionHandle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.issues = append(f.issues, req)
	if f.issueErrAt > 0 && len(f.issues) == f.issueErrAt {
		return nil, errors.New("execution reverted")
	}
	return f.newTx(func() {
		id := model.TokenID(len(f.events) + 1)
		f.events = append(f.events, model.IssuanceEvent{
			TokenID:        id,
			Producer:       req.Producer,
			EnergySource:   req.EnergySource,
			ProductionTime: req.ProductionTime,
		})
		f.owners[id] = req.Producer
		f.details[id] = model.CreditDetails{
			Producer:       req.Producer,
			EnergySource:   req.EnergySource,
			ProductionTime: req.ProductionTime,
		}
	}), nil
}

type fakeTx struct {
	hash   string
	ledger *fakeLedger
	apply  func()
}

func (t *fakeTx) Hash() string { return t.hash }

func (t *fakeTx) Wait(ctx context.Context) error {
	t.ledger.mu.Lock()
	gate := t.ledger.waitGate
	t.ledger.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	t.ledger.mu.Lock()
	defer t.ledger.mu.Unlock()
	if t.ledger.waitErr != nil {
		return t.ledger.waitErr
	}
	t.apply()
	return nil
}

// --- mockCreditStore ---

type mockCreditStore struct {
	mu      sync.Mutex
	records map[model.TokenID]model.CreditRecord
	upserts int
}

func newMockCreditStore(records ...model.CreditRecord) *mockCreditStore {
	m := &mockCreditStore{records: make(map[model.TokenID]model.CreditRecord)}
	for _, r := range records {
		m.records[r.ID] = r
	}
	return m
}

func (m *mockCreditStore) UpsertAll(_ context.Context, records []model.CreditRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.upserts++
	for _, r := range records {
		if prev, ok := m.records[r.ID]; ok && prev.Retired {
			r.Retired = true
		}
		r.Status = ""
		m.records[r.ID] = r
	}
	return nil
}

func (m *mockCreditStore) ListAll(_ context.Context) ([]model.CreditRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.CreditRecord, 0, len(m.records))
	for _, r := range m.records {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *mockCreditStore) GetByID(_ context.Context, id model.TokenID) (*model.CreditRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.records[id]
	if !ok {
		return nil, nil
	}
	return &r, nil
}

func (m *mockCreditStore) RetiredIDs(_ context.Context) (map[model.TokenID]bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[model.TokenID]bool)
	for id, r := range m.records {
		if r.Retired {
			out[id] = true
		}
	}
	return out, nil
}

// --- mockListingStore ---

type mockListingStore struct {
	mu       sync.Mutex
	listings map[model.TokenID]model.Listing
}

func newMockListingStore() *mockListingStore {
	return &mockListingStore{listings: make(map[model.TokenID]model.Listing)}
}

func (m *mockListingStore) Set(_ context.Context, l model.Listing) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listings[l.TokenID] = l
	return nil
}

func (m *mockListingStore) Remove(_ context.Context, id model.TokenID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.listings[id]; !ok {
		return driven.ErrListingNotFound
	}
	delete(m.listings, id)
	return nil
}

func (m *mockListingStore) Get(_ context.Context, id model.TokenID) (*model.Listing, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.listings[id]
	if !ok {
		return nil, nil
	}
	return &l, nil
}

func (m *mockListingStore) ListAll(_ context.Context) ([]model.Listing, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.Listing, 0, len(m.listings))
	for _, l := range m.listings {
		out = append(out, l)
	}
	return out, nil
}

// --- mockAnalyzer ---

type mockAnalyzer struct {
	mu     sync.Mutex
	inputs []string
	result *model.MarketAnalysis
	err    error
}

func (m *mockAnalyzer) Analyze(_ context.Context, tradingData string) (*model.MarketAnalysis, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inputs = append(m.inputs, tradingData)
	if m.err != nil {
		return nil, m.err
	}
	return m.result, nil
}
