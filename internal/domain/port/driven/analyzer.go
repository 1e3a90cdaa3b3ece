package driven

import (
	"context"

	"github.com/ericfisherdev/creditpanel/internal/domain/model"
)

// TradingAnalyzer defines the driven port for the hosted language-model call
// that turns free-text trading data into a market analysis.
type TradingAnalyzer interface {
	Analyze(ctx context.Context, tradingData string) (*model.MarketAnalysis, error)
}
