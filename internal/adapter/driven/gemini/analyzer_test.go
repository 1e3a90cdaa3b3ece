package gemini

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAnalysis(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr error
	}{
		{
			name:  "plain json",
			input: `{"demandPrediction":"up","inefficienciesIdentified":"none","optimizedTradingStrategies":"hold"}`,
			want:  "up",
		},
		{
			name:  "fenced json",
			input: "```json\n{\"demandPrediction\":\"flat\"}\n```",
			want:  "flat",
		},
		{
			name:    "blank",
			input:   "   ",
			wantErr: ErrEmptyResponse,
		},
		{
			name:    "all fields empty",
			input:   `{}`,
			wantErr: ErrEmptyResponse,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseAnalysis(tt.input)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.DemandPrediction)
		})
	}
}

func TestParseAnalysis_InvalidJSON(t *testing.T) {
	_, err := parseAnalysis("demand will rise")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode analysis")
}

func TestNewAnalyzer_RequiresKey(t *testing.T) {
	_, err := NewAnalyzer(context.Background(), Options{})
	require.Error(t, err)
}

func TestAnalyzer_Analyze(t *testing.T) {
	var gotPrompt string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, ":generateContent"), r.URL.Path)

		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		gotPrompt = string(body)

		answer := `{"demandPrediction":"rising","inefficienciesIdentified":"thin hydro supply","optimizedTradingStrategies":"buy early"}`
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"candidates": []map[string]any{{
				"content": map[string]any{
					"role":  "model",
					"parts": []map[string]any{{"text": answer}},
				},
				"finishReason": "STOP",
			}},
		})
	}))
	t.Cleanup(server.Close)

	analyzer, err := NewAnalyzer(context.Background(), Options{
		APIKey:     "test-key",
		BaseURL:    server.URL,
		HTTPClient: server.Client(),
	})
	require.NoError(t, err)
	assert.Equal(t, DefaultModel, analyzer.Model())

	analysis, err := analyzer.Analyze(context.Background(), "Total credits: 3")
	require.NoError(t, err)
	assert.Equal(t, "rising", analysis.DemandPrediction)
	assert.Equal(t, "thin hydro supply", analysis.InefficienciesIdentified)
	assert.Equal(t, "buy early", analysis.OptimizedTradingStrategies)
	assert.Contains(t, gotPrompt, "Total credits: 3")
}
