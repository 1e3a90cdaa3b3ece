// Package ledger implements the LedgerReader and LedgerWriter ports against
// the ledger gateway's JSON HTTP API.
package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gregjones/httpcache"

	"github.com/gofri/go-github-ratelimit/v2/github_ratelimit"

	"github.com/ericfisherdev/creditpanel/internal/domain/model"
	"github.com/ericfisherdev/creditpanel/internal/domain/port/driven"
)

// Compile-time interface satisfaction checks.
var (
	_ driven.LedgerReader = (*Client)(nil)
	_ driven.LedgerWriter = (*Client)(nil)
	_ driven.FreshReader  = (*Client)(nil)
)

// requestTimeout is a safety net alongside context cancellation.
const requestTimeout = 30 * time.Second

// APIError is a non-2xx response from the gateway.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("ledger gateway returned %d", e.StatusCode)
	}
	return fmt.Sprintf("ledger gateway returned %d: %s", e.StatusCode, e.Message)
}

// Client talks to the ledger gateway. A Client returned by Fresh shares the
// transport but asks every cache on the path to revalidate.
type Client struct {
	http         *http.Client
	baseURL      *url.URL
	apiKey       string
	fresh        bool
	pollInterval time.Duration
}

// NewClient creates a gateway client with the following transport stack:
//  1. httpcache (ETag-based conditional request caching of read endpoints)
//  2. go-github-ratelimit (sleeps on 429 with Retry-After)
func NewClient(baseURL, apiKey string) (*Client, error) {
	cacheTransport := httpcache.NewMemoryCacheTransport()
	httpClient := github_ratelimit.NewClient(cacheTransport)
	httpClient.Timeout = requestTimeout

	return NewClientWithHTTPClient(httpClient, baseURL, apiKey)
}

// NewClientWithHTTPClient creates a Client with a custom http.Client.
// Tests use it to inject an httptest server.
func NewClientWithHTTPClient(httpClient *http.Client, baseURL, apiKey string) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parsing ledger base URL: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("parsing ledger base URL %q: scheme and host are required", baseURL)
	}

	return &Client{
		http:         httpClient,
		baseURL:      u,
		apiKey:       apiKey,
		pollInterval: time.Second,
	}, nil
}

// WithPollInterval returns a copy whose transaction polling starts at d.
func (c *Client) WithPollInterval(d time.Duration) *Client {
	cp := *c
	cp.pollInterval = d
	return &cp
}

// Fresh returns a reader that bypasses cached responses.
func (c *Client) Fresh() driven.LedgerReader {
	cp := *c
	cp.fresh = true
	return &cp
}

// --- wire types ---

type issuanceEventJSON struct {
	TokenID        uint64 `json:"token_id"`
	Producer       string `json:"producer"`
	EnergySource   string `json:"energy_source"`
	ProductionDate int64  `json:"production_date"`
	TxHash         string `json:"tx_hash"`
	BlockNumber    uint64 `json:"block_number"`
}

type ownerJSON struct {
	Owner string `json:"owner"`
}

type detailsJSON struct {
	Producer       string `json:"producer"`
	EnergySource   string `json:"energy_source"`
	ProductionDate int64  `json:"production_date"`
	IsRetired      bool   `json:"is_retired"`
}

type ledgerEventJSON struct {
	TxHash    string `json:"tx_hash"`
	EventType string `json:"event_type"`
	TokenID   uint64 `json:"token_id"`
	From      string `json:"from"`
	To        string `json:"to"`
	Timestamp int64  `json:"timestamp"`
}

type errorJSON struct {
	Error string `json:"error"`
}

// --- LedgerReader ---

// ListIssuanceEvents returns every CreditIssued event known to the gateway.
func (c *Client) ListIssuanceEvents(ctx context.Context) ([]model.IssuanceEvent, error) {
	var raw []issuanceEventJSON
	if err := c.do(ctx, http.MethodGet, "/v1/credits/events", nil, &raw); err != nil {
		return nil, fmt.Errorf("listing issuance events: %w", err)
	}

	events := make([]model.IssuanceEvent, 0, len(raw))
	for _, e := range raw {
		ev := model.IssuanceEvent{
			TokenID:        model.TokenID(e.TokenID),
			Producer:       model.Address(e.Producer),
			ProductionTime: unixTime(e.ProductionDate),
			TxHash:         e.TxHash,
			BlockNumber:    e.BlockNumber,
		}
		if e.EnergySource != "" {
			src, err := model.ParseEnergySource(e.EnergySource)
			if err != nil {
				// Left empty so reconciliation fills it from the detail snapshot.
				slog.Warn("ignoring unknown energy source in issuance event", "token_id", e.TokenID, "error", err)
			}
			ev.EnergySource = src
		}
		events = append(events, ev)
	}
	return events, nil
}

// OwnerOf returns the current owner of the token.
func (c *Client) OwnerOf(ctx context.Context, id model.TokenID) (model.Address, error) {
	var raw ownerJSON
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/v1/credits/%d/owner", id), nil, &raw); err != nil {
		return "", fmt.Errorf("fetching owner of token %d: %w", id, err)
	}
	if raw.Owner == "" {
		return "", fmt.Errorf("fetching owner of token %d: empty owner in response", id)
	}
	return model.Address(raw.Owner), nil
}

// DetailsOf returns the current detail snapshot of the token.
func (c *Client) DetailsOf(ctx context.Context, id model.TokenID) (model.CreditDetails, error) {
	var raw detailsJSON
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/v1/credits/%d", id), nil, &raw); err != nil {
		return model.CreditDetails{}, fmt.Errorf("fetching details of token %d: %w", id, err)
	}

	details := model.CreditDetails{
		Producer:       model.Address(raw.Producer),
		ProductionTime: unixTime(raw.ProductionDate),
		Retired:        raw.IsRetired,
	}
	if raw.EnergySource != "" {
		src, err := model.ParseEnergySource(raw.EnergySource)
		if err != nil {
			return model.CreditDetails{}, fmt.Errorf("fetching details of token %d: %w", id, err)
		}
		details.EnergySource = src
	}
	return details, nil
}

// ListLedgerEvents returns the Mint, Transfer and Retire history.
func (c *Client) ListLedgerEvents(ctx context.Context) ([]model.AuditEntry, error) {
	var raw []ledgerEventJSON
	if err := c.do(ctx, http.MethodGet, "/v1/ledger/events", nil, &raw); err != nil {
		return nil, fmt.Errorf("listing ledger events: %w", err)
	}

	entries := make([]model.AuditEntry, 0, len(raw))
	for _, e := range raw {
		eventType, ok := parseEventType(e.EventType)
		if !ok {
			slog.Warn("skipping ledger event of unknown type", "type", e.EventType, "tx_hash", e.TxHash)
			continue
		}
		entries = append(entries, model.AuditEntry{
			TxHash:    e.TxHash,
			EventType: eventType,
			TokenID:   model.TokenID(e.TokenID),
			From:      model.Address(e.From),
			To:        model.Address(e.To),
			Timestamp: unixTime(e.Timestamp),
		})
	}
	return entries, nil
}

func parseEventType(s string) (model.LedgerEventType, bool) {
	switch strings.ToLower(s) {
	case "mint":
		return model.LedgerEventMint, true
	case "transfer":
		return model.LedgerEventTransfer, true
	case "retire":
		return model.LedgerEventRetire, true
	default:
		return "", false
	}
}

func unixTime(sec int64) time.Time {
	if sec == 0 {
		return time.Time{}
	}
	return time.Unix(sec, 0).UTC()
}

// --- transport ---

// do sends a JSON request and decodes a JSON response into out (if non-nil).
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reqBody io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reqBody = bytes.NewReader(b)
	}

	u := *c.baseURL
	u.Path = c.baseURL.Path + path

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reqBody)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	if c.fresh {
		req.Header.Set("Cache-Control", "no-cache")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	logRateLimit(resp, path)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		var e errorJSON
		if err := json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&e); err == nil {
			apiErr.Message = e.Error
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

func logRateLimit(resp *http.Response, path string) {
	cached := resp.Header.Get(httpcache.XFromCache) != ""
	remaining := resp.Header.Get("X-RateLimit-Remaining")

	slog.Debug("ledger api call",
		"path", path,
		"status", resp.StatusCode,
		"cached", cached,
		"rate_remaining", remaining,
	)

	if n, err := strconv.Atoi(remaining); err == nil && n < 100 {
		slog.Warn("ledger gateway rate limit low", "remaining", n)
	}
}

// isRetryable reports whether err may succeed on a later attempt.
func isRetryable(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == http.StatusNotFound ||
			apiErr.StatusCode == http.StatusTooManyRequests ||
			apiErr.StatusCode >= 500
	}
	return true
}
