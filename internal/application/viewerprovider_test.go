package application_test

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/creditpanel/internal/application"
	"github.com/ericfisherdev/creditpanel/internal/domain/model"
)

func TestViewerProvider_ConnectValidatesAddress(t *testing.T) {
	provider := application.NewViewerProvider("")

	_, err := provider.Connect("0xnot-an-address")
	require.Error(t, err)
	assert.True(t, provider.Current().IsZero())

	addr, err := provider.Connect(" " + string(viewerV) + " ")
	require.NoError(t, err)
	assert.Equal(t, viewerV, addr)
	assert.Equal(t, viewerV, provider.Current())
}

func TestViewerProvider_NotifiesSubscribersInOrder(t *testing.T) {
	provider := application.NewViewerProvider("")

	var got []string
	provider.Subscribe(func(a model.Address) { got = append(got, "first:"+string(a)) })
	provider.Subscribe(func(a model.Address) { got = append(got, "second:"+string(a)) })

	_, err := provider.Connect(string(viewerV))
	require.NoError(t, err)
	provider.Disconnect()

	assert.Equal(t, []string{
		"first:" + string(viewerV),
		"second:" + string(viewerV),
		"first:",
		"second:",
	}, got)
}

func TestViewerProvider_NoNotificationWithoutChange(t *testing.T) {
	provider := application.NewViewerProvider(viewerV)

	calls := 0
	provider.Subscribe(func(model.Address) { calls++ })

	_, err := provider.Connect(string(viewerV))
	require.NoError(t, err)

	assert.Zero(t, calls)
}

func TestViewerProvider_Unsubscribe(t *testing.T) {
	provider := application.NewViewerProvider("")

	calls := 0
	unsubscribe := provider.Subscribe(func(model.Address) { calls++ })

	_, err := provider.Connect(string(viewerV))
	require.NoError(t, err)
	unsubscribe()
	unsubscribe()
	provider.Disconnect()

	assert.Equal(t, 1, calls)
}

func TestViewerProvider_SubscriberMayReadCurrent(t *testing.T) {
	provider := application.NewViewerProvider("")

	var seen model.Address
	provider.Subscribe(func(model.Address) { seen = provider.Current() })

	_, err := provider.Connect(string(otherW))
	require.NoError(t, err)
	assert.Equal(t, otherW, seen)
}

func TestViewerProvider_ConcurrentConnect(t *testing.T) {
	provider := application.NewViewerProvider("")

	var mu sync.Mutex
	notified := 0
	provider.Subscribe(func(model.Address) {
		mu.Lock()
		notified++
		mu.Unlock()
	})

	var wg sync.WaitGroup
	for _, addr := range []model.Address{viewerV, otherW, producerA} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = provider.Connect(string(addr))
		}()
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	assert.GreaterOrEqual(t, notified, 1)
	assert.Contains(t, []model.Address{viewerV, otherW, producerA}, provider.Current())
}
