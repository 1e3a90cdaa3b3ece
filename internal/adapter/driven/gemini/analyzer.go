// Package gemini implements the TradingAnalyzer port with Google's Gemini API.
package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/ericfisherdev/creditpanel/internal/domain/model"
	"github.com/ericfisherdev/creditpanel/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.TradingAnalyzer = (*Analyzer)(nil)

// DefaultModel is used when no model is configured.
const DefaultModel = "gemini-2.5-flash"

// ErrEmptyResponse indicates the model returned no usable text.
var ErrEmptyResponse = errors.New("model returned an empty response")

const systemPrompt = `You are an expert in analyzing green energy credit trading data and market trends.
Each credit represents one MWh of renewable production from a solar, wind or hydro producer.
Answer in English. Markdown is allowed inside each field.`

const promptTemplate = `Analyze the following credit trading data to predict demand, identify inefficiencies, and recommend optimized trading strategies:

%s

Provide the demand prediction, identified inefficiencies, and optimized trading strategies.`

var analysisSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"demandPrediction": {
			Type:        genai.TypeString,
			Description: "The predicted demand for energy credits.",
		},
		"inefficienciesIdentified": {
			Type:        genai.TypeString,
			Description: "The inefficiencies identified in the credit trading market.",
		},
		"optimizedTradingStrategies": {
			Type:        genai.TypeString,
			Description: "The recommended optimized trading strategies.",
		},
	},
	Required: []string{"demandPrediction", "inefficienciesIdentified", "optimizedTradingStrategies"},
}

// Options configures an Analyzer. BaseURL and HTTPClient are only set by tests.
type Options struct {
	APIKey     string
	Model      string
	BaseURL    string
	HTTPClient *http.Client
}

// Analyzer asks a Gemini model for a structured market analysis.
type Analyzer struct {
	client *genai.Client
	model  string
}

// NewAnalyzer creates a Gemini-backed analyzer.
func NewAnalyzer(ctx context.Context, opts Options) (*Analyzer, error) {
	if opts.APIKey == "" {
		return nil, errors.New("gemini API key is required")
	}
	if opts.Model == "" {
		opts.Model = DefaultModel
	}

	cfg := &genai.ClientConfig{
		APIKey:     opts.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: opts.HTTPClient,
	}
	if opts.BaseURL != "" {
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: opts.BaseURL}
	}

	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}

	return &Analyzer{client: client, model: opts.Model}, nil
}

// Model returns the configured model name.
func (a *Analyzer) Model() string {
	return a.model
}

// Analyze sends the trading data to the model and decodes its JSON answer.
func (a *Analyzer) Analyze(ctx context.Context, tradingData string) (*model.MarketAnalysis, error) {
	start := time.Now()

	resp, err := a.client.Models.GenerateContent(ctx, a.model,
		genai.Text(fmt.Sprintf(promptTemplate, tradingData)),
		&genai.GenerateContentConfig{
			SystemInstruction: genai.NewContentFromText(systemPrompt, genai.RoleUser),
			ResponseMIMEType:  "application/json",
			ResponseSchema:    analysisSchema,
		},
	)
	if err != nil {
		return nil, fmt.Errorf("gemini generate content: %w", err)
	}

	analysis, err := parseAnalysis(resp.Text())
	if err != nil {
		return nil, err
	}

	slog.Debug("trading analysis complete", "model", a.model, "duration", time.Since(start))
	return analysis, nil
}

// parseAnalysis decodes the model's JSON answer. Code fences are stripped
// because some models wrap JSON output in them despite the MIME type.
func parseAnalysis(text string) (*model.MarketAnalysis, error) {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyResponse
	}

	var analysis model.MarketAnalysis
	if err := json.Unmarshal([]byte(text), &analysis); err != nil {
		return nil, fmt.Errorf("decode analysis: %w", err)
	}
	if analysis.DemandPrediction == "" && analysis.InefficienciesIdentified == "" && analysis.OptimizedTradingStrategies == "" {
		return nil, ErrEmptyResponse
	}
	return &analysis, nil
}
