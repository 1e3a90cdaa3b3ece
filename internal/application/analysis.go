package application

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/ericfisherdev/creditpanel/internal/domain/model"
)

// MaxTradingDataLen truncates analyzer input to keep prompts bounded.
const MaxTradingDataLen = 16000

const summaryRecentEvents = 20

// AnalysisService runs free-text market analysis over trading data.
type AnalysisService struct {
	analyzers *AnalyzerProvider
	views     viewSource
	audit     *AuditService
}

// NewAnalysisService creates a new AnalysisService. audit may be nil.
func NewAnalysisService(analyzers *AnalyzerProvider, views viewSource, audit *AuditService) *AnalysisService {
	return &AnalysisService{
		analyzers: analyzers,
		views:     views,
		audit:     audit,
	}
}

// Analyze sends tradingData to the configured analyzer. Blank input is
// replaced by a summary of the current view and recent ledger activity.
func (s *AnalysisService) Analyze(ctx context.Context, tradingData string) (*model.MarketAnalysis, error) {
	analyzer := s.analyzers.Get()
	if analyzer == nil {
		return nil, model.ErrAnalysisUnavailable
	}

	input := strings.TrimSpace(tradingData)
	if input == "" {
		var entries []model.AuditEntry
		if s.audit != nil {
			var err error
			entries, err = s.audit.List(ctx, AuditFilter{Limit: summaryRecentEvents})
			if err != nil {
				slog.Warn("audit trail unavailable for analysis summary", "error", err)
			}
		}
		input = SummarizeTradingData(s.views.Current(), entries)
	}
	input = truncateUTF8(input, MaxTradingDataLen)

	start := time.Now()
	analysis, err := analyzer.Analyze(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("analyzing trading data: %w", err)
	}

	slog.Info("trading analysis complete",
		"input_len", len(input),
		"duration", time.Since(start).Round(time.Millisecond),
	)
	return analysis, nil
}

// SummarizeTradingData renders a plain-text digest of the view and the given
// ledger events for use as analyzer input.
func SummarizeTradingData(view View, entries []model.AuditEntry) string {
	var b strings.Builder

	counts := view.CountByStatus()
	fmt.Fprintf(&b, "Total credits: %d (1 credit = 1 MWh)\n", len(view.Records))
	fmt.Fprintf(&b, "Available: %d, Owned by viewer: %d, Retired: %d\n",
		counts[model.CreditStatusAvailable], counts[model.CreditStatusOwned], counts[model.CreditStatusRetired])

	bySource := make(map[model.EnergySource]int)
	retiredBySource := make(map[model.EnergySource]int)
	for _, r := range view.Records {
		bySource[r.EnergySource]++
		if r.Retired {
			retiredBySource[r.EnergySource]++
		}
	}
	sources := make([]string, 0, len(bySource))
	for src := range bySource {
		sources = append(sources, string(src))
	}
	sort.Strings(sources)
	for _, src := range sources {
		es := model.EnergySource(src)
		fmt.Fprintf(&b, "%s: %d issued, %d retired\n", src, bySource[es], retiredBySource[es])
	}

	if len(entries) > 0 {
		b.WriteString("Recent ledger events:\n")
		for _, e := range entries {
			fmt.Fprintf(&b, "- %s %s token %d from %s to %s\n",
				e.Timestamp.UTC().Format(time.RFC3339), e.EventType, e.TokenID, e.From.Short(), e.To.Short())
		}
	}

	return b.String()
}

// truncateUTF8 cuts s to at most n bytes without splitting a rune.
func truncateUTF8(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
