package model

// MarketAnalysis is the three-part free-text answer returned by the trading
// analysis model. The text is opaque and may contain markdown.
type MarketAnalysis struct {
	DemandPrediction           string `json:"demandPrediction"`
	InefficienciesIdentified   string `json:"inefficienciesIdentified"`
	OptimizedTradingStrategies string `json:"optimizedTradingStrategies"`
}
