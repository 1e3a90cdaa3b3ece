package application

import (
	"sync"

	"github.com/ericfisherdev/creditpanel/internal/domain/port/driven"
)

// AnalyzerProvider enables runtime hot-swap of the trading analyzer.
// It holds a mutex-protected reference to the current driven.TradingAnalyzer,
// allowing an API key update to take effect without restarting the application.
type AnalyzerProvider struct {
	mu       sync.RWMutex
	analyzer driven.TradingAnalyzer
}

// NewAnalyzerProvider creates a new provider with the given initial analyzer.
// analyzer may be nil if no API key is available at startup.
func NewAnalyzerProvider(analyzer driven.TradingAnalyzer) *AnalyzerProvider {
	return &AnalyzerProvider{analyzer: analyzer}
}

// Get returns the current analyzer. Callers should check for nil.
func (p *AnalyzerProvider) Get() driven.TradingAnalyzer {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.analyzer
}

// Replace swaps the current analyzer. The next caller of Get receives it.
func (p *AnalyzerProvider) Replace(analyzer driven.TradingAnalyzer) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.analyzer = analyzer
}

// HasAnalyzer returns true if a non-nil analyzer is currently held.
func (p *AnalyzerProvider) HasAnalyzer() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.analyzer != nil
}
