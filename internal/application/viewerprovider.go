package application

import (
	"log/slog"
	"sync"

	"github.com/ericfisherdev/creditpanel/internal/domain/model"
)

// ViewerProvider holds the connected wallet account and implements
// driven.IdentityProvider. Subscribers are notified synchronously, in
// subscription order, after every change.
type ViewerProvider struct {
	mu      sync.RWMutex
	current model.Address

	subMu  sync.Mutex
	nextID int
	subs   map[int]func(model.Address)
	order  []int
}

// NewViewerProvider creates a provider with the given initial account, which
// may be empty.
func NewViewerProvider(initial model.Address) *ViewerProvider {
	return &ViewerProvider{
		current: initial,
		subs:    make(map[int]func(model.Address)),
	}
}

// Current returns the connected account, or the empty address.
func (p *ViewerProvider) Current() model.Address {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.current
}

// Connect validates raw and makes it the connected account. Reconnecting the
// same account does not notify subscribers.
func (p *ViewerProvider) Connect(raw string) (model.Address, error) {
	addr, err := model.ParseAddress(raw)
	if err != nil {
		return "", err
	}
	p.set(addr)
	return addr, nil
}

// Disconnect clears the connected account.
func (p *ViewerProvider) Disconnect() {
	p.set("")
}

func (p *ViewerProvider) set(addr model.Address) {
	p.mu.Lock()
	changed := p.current != addr
	p.current = addr
	p.mu.Unlock()

	if !changed {
		return
	}
	slog.Info("viewer changed", "viewer", addr.Short())
	p.notify(addr)
}

func (p *ViewerProvider) notify(addr model.Address) {
	p.subMu.Lock()
	fns := make([]func(model.Address), 0, len(p.order))
	for _, id := range p.order {
		fns = append(fns, p.subs[id])
	}
	p.subMu.Unlock()

	for _, fn := range fns {
		fn(addr)
	}
}

// Subscribe registers fn for change notifications. The returned function
// removes the subscription and is safe to call more than once.
func (p *ViewerProvider) Subscribe(fn func(model.Address)) func() {
	p.subMu.Lock()
	defer p.subMu.Unlock()

	id := p.nextID
	p.nextID++
	p.subs[id] = fn
	p.order = append(p.order, id)

	return func() {
		p.subMu.Lock()
		defer p.subMu.Unlock()
		if _, ok := p.subs[id]; !ok {
			return
		}
		delete(p.subs, id)
		for i, v := range p.order {
			if v == id {
				p.order = append(p.order[:i], p.order[i+1:]...)
				break
			}
		}
	}
}
