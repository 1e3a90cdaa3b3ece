package application_test

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/creditpanel/internal/application"
)

func TestAnalyzerProvider_GetReturnsInitialAnalyzer(t *testing.T) {
	analyzer := &mockAnalyzer{}
	provider := application.NewAnalyzerProvider(analyzer)

	assert.Same(t, analyzer, provider.Get())
}

func TestAnalyzerProvider_ReplaceSwapsAnalyzer(t *testing.T) {
	original := &mockAnalyzer{}
	replacement := &mockAnalyzer{}

	provider := application.NewAnalyzerProvider(original)
	assert.Same(t, original, provider.Get())

	provider.Replace(replacement)
	assert.Same(t, replacement, provider.Get())
}

func TestAnalyzerProvider_HasAnalyzerReturnsFalseForNil(t *testing.T) {
	provider := application.NewAnalyzerProvider(nil)

	require.False(t, provider.HasAnalyzer())

	provider.Replace(&mockAnalyzer{})

	require.True(t, provider.HasAnalyzer())
}

func TestAnalyzerProvider_ConcurrentGetReplaceSafety(t *testing.T) {
	a1 := &mockAnalyzer{}
	a2 := &mockAnalyzer{}
	provider := application.NewAnalyzerProvider(a1)

	const goroutines = 100
	var wg sync.WaitGroup
	wg.Add(goroutines * 2)

	for range goroutines {
		go func() {
			defer wg.Done()
			assert.NotNil(t, provider.Get())
		}()
		go func() {
			defer wg.Done()
			provider.Replace(a2)
		}()
	}

	wg.Wait()

	assert.Same(t, a2, provider.Get())
}
