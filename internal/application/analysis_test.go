package application_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/creditpanel/internal/application"
	"github.com/ericfisherdev/creditpanel/internal/domain/model"
)

func newAnalysisFixture(t *testing.T, analyzer *mockAnalyzer) *application.AnalysisService {
	t.Helper()

	ledger := auditFixture()
	ledger.mint(1, producerA, viewerV, model.EnergySourceSolar)
	ledger.mint(2, producerA, producerA, model.EnergySourceHydro)
	ledger.setRetired(2, true)

	views, _ := newViewService(ledger, viewerV, nil)
	_, err := views.Refresh(context.Background())
	require.NoError(t, err)

	var provider *application.AnalyzerProvider
	if analyzer == nil {
		provider = application.NewAnalyzerProvider(nil)
	} else {
		provider = application.NewAnalyzerProvider(analyzer)
	}
	return application.NewAnalysisService(provider, views, application.NewAuditService(ledger))
}

func TestAnalysisService_UnavailableWithoutAnalyzer(t *testing.T) {
	svc := newAnalysisFixture(t, nil)

	_, err := svc.Analyze(context.Background(), "anything")
	require.ErrorIs(t, err, model.ErrAnalysisUnavailable)
}

func TestAnalysisService_PassesInputThrough(t *testing.T) {
	want := &model.MarketAnalysis{
		DemandPrediction:           "rising",
		InefficienciesIdentified:   "thin order book",
		OptimizedTradingStrategies: "list early",
	}
	analyzer := &mockAnalyzer{result: want}
	svc := newAnalysisFixture(t, analyzer)

	got, err := svc.Analyze(context.Background(), "  Q3 volumes up 12%  ")

	require.NoError(t, err)
	assert.Equal(t, want, got)
	assert.Equal(t, []string{"Q3 volumes up 12%"}, analyzer.inputs)
}

func TestAnalysisService_BlankInputUsesSummary(t *testing.T) {
	analyzer := &mockAnalyzer{result: &model.MarketAnalysis{}}
	svc := newAnalysisFixture(t, analyzer)

	_, err := svc.Analyze(context.Background(), "   ")

	require.NoError(t, err)
	require.Len(t, analyzer.inputs, 1)
	input := analyzer.inputs[0]
	assert.Contains(t, input, "Total credits: 2")
	assert.Contains(t, input, "Hydro: 1 issued, 1 retired")
	assert.Contains(t, input, "Recent ledger events:")
	assert.Contains(t, input, "Retire token 1")
}

func TestAnalysisService_TruncatesLongInput(t *testing.T) {
	analyzer := &mockAnalyzer{result: &model.MarketAnalysis{}}
	svc := newAnalysisFixture(t, analyzer)

	_, err := svc.Analyze(context.Background(), strings.Repeat("x", application.MaxTradingDataLen+50))

	require.NoError(t, err)
	assert.Len(t, analyzer.inputs[0], application.MaxTradingDataLen)
}

func TestAnalysisService_TruncatesOnRuneBoundary(t *testing.T) {
	analyzer := &mockAnalyzer{result: &model.MarketAnalysis{}}
	svc := newAnalysisFixture(t, analyzer)

	// The three-byte euro sign starts one byte before the limit.
	input := strings.Repeat("x", application.MaxTradingDataLen-1) + "€" + "tail"

	_, err := svc.Analyze(context.Background(), input)

	require.NoError(t, err)
	got := analyzer.inputs[0]
	assert.True(t, utf8.ValidString(got))
	assert.Len(t, got, application.MaxTradingDataLen-1)
	assert.NotContains(t, got, "tail")
}

func TestAnalysisService_AnalyzerErrorIsWrapped(t *testing.T) {
	analyzer := &mockAnalyzer{err: errors.New("quota exceeded")}
	svc := newAnalysisFixture(t, analyzer)

	_, err := svc.Analyze(context.Background(), "data")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "analyzing trading data: quota exceeded")
}

func TestSummarizeTradingData_EmptyView(t *testing.T) {
	got := application.SummarizeTradingData(application.View{}, nil)

	assert.Contains(t, got, "Total credits: 0")
	assert.NotContains(t, got, "Recent ledger events")
}

func TestSummarizeTradingData_ListsEvents(t *testing.T) {
	at := time.Date(2024, time.June, 2, 8, 0, 0, 0, time.UTC)
	got := application.SummarizeTradingData(application.View{}, []model.AuditEntry{
		{EventType: model.LedgerEventTransfer, TokenID: 4, From: producerA, To: viewerV, Timestamp: at},
	})

	assert.Contains(t, got, "2024-06-02T08:00:00Z Transfer token 4 from 0x1111...1111 to 0x2222...2222")
}
