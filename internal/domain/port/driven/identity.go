package driven

import "github.com/ericfisherdev/creditpanel/internal/domain/model"

// IdentityProvider supplies the currently connected viewer account. The
// account may change at any time (wallet account switch or disconnect).
type IdentityProvider interface {
	// Current returns the connected address, or the empty address when no
	// wallet is connected.
	Current() model.Address
	// Subscribe registers fn to be called after every change of the connected
	// account. The returned function removes the subscription.
	Subscribe(fn func(model.Address)) (unsubscribe func())
}
