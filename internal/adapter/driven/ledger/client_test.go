package ledger_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/creditpanel/internal/adapter/driven/ledger"
	"github.com/ericfisherdev/creditpanel/internal/domain/model"
	"github.com/ericfisherdev/creditpanel/internal/domain/port/driven"
)

// newTestClient creates a Client backed by the given httptest handler.
func newTestClient(t *testing.T, handler http.Handler) *ledger.Client {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := ledger.NewClientWithHTTPClient(server.Client(), server.URL, "test-key")
	require.NoError(t, err)

	return client.WithPollInterval(time.Millisecond)
}

func writeJSON(t *testing.T, w http.ResponseWriter, status int, v any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	require.NoError(t, json.NewEncoder(w).Encode(v))
}

func TestNewClientWithHTTPClient_RejectsRelativeURL(t *testing.T) {
	_, err := ledger.NewClientWithHTTPClient(http.DefaultClient, "localhost:8545", "")
	require.Error(t, err)
}

func TestClient_ListIssuanceEvents(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/credits/events", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		writeJSON(t, w, http.StatusOK, []map[string]any{
			{"token_id": 1, "producer": "0xabc", "energy_source": "Solar", "production_date": 1709251200, "tx_hash": "0x01", "block_number": 10},
			{"token_id": 2, "producer": "0xabc", "energy_source": "", "production_date": 0, "tx_hash": "0x02", "block_number": 11},
			{"token_id": 3, "producer": "0xabc", "energy_source": "Geothermal", "tx_hash": "0x03", "block_number": 12},
		})
	})

	client := newTestClient(t, mux)

	events, err := client.ListIssuanceEvents(context.Background())
	require.NoError(t, err)
	require.Len(t, events, 3)

	assert.Equal(t, model.TokenID(1), events[0].TokenID)
	assert.Equal(t, model.EnergySourceSolar, events[0].EnergySource)
	assert.Equal(t, time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC), events[0].ProductionTime)
	assert.Equal(t, uint64(10), events[0].BlockNumber)

	assert.Empty(t, events[1].EnergySource)
	assert.True(t, events[1].ProductionTime.IsZero())

	assert.Empty(t, events[2].EnergySource, "unknown sources are left for details to fill")
}

func TestClient_OwnerAndDetails(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/credits/7/owner", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(t, w, http.StatusOK, map[string]any{"owner": "0xowner"})
	})
	mux.HandleFunc("GET /v1/credits/7", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(t, w, http.StatusOK, map[string]any{
			"producer": "0xprod", "energy_source": "hydro", "production_date": 1709251200, "is_retired": true,
		})
	})

	client := newTestClient(t, mux)

	owner, err := client.OwnerOf(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, model.Address("0xowner"), owner)

	details, err := client.DetailsOf(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, model.EnergySourceHydro, details.EnergySource)
	assert.True(t, details.Retired)
	assert.Equal(t, model.Address("0xprod"), details.Producer)
}

func TestClient_ErrorResponses(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/credits/9/owner", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(t, w, http.StatusNotFound, map[string]any{"error": "token does not exist"})
	})
	mux.HandleFunc("GET /v1/credits/9", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(t, w, http.StatusOK, map[string]any{"energy_source": "coal"})
	})

	client := newTestClient(t, mux)

	_, err := client.OwnerOf(context.Background(), 9)
	var apiErr *ledger.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
	assert.Equal(t, "token does not exist", apiErr.Message)

	_, err = client.DetailsOf(context.Background(), 9)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown energy source")
}

func TestClient_FreshSendsNoCache(t *testing.T) {
	var sawNoCache atomic.Bool
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/credits/1/owner", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Cache-Control") == "no-cache" {
			sawNoCache.Store(true)
		}
		writeJSON(t, w, http.StatusOK, map[string]any{"owner": "0xowner"})
	})

	client := newTestClient(t, mux)

	_, err := client.OwnerOf(context.Background(), 1)
	require.NoError(t, err)
	assert.False(t, sawNoCache.Load())

	var reader driven.LedgerReader = client.Fresh()
	_, err = reader.OwnerOf(context.Background(), 1)
	require.NoError(t, err)
	assert.True(t, sawNoCache.Load())
}

func TestClient_ListLedgerEventsSkipsUnknownTypes(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/ledger/events", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(t, w, http.StatusOK, []map[string]any{
			{"tx_hash": "0xa", "event_type": "Mint", "token_id": 1, "to": "0xp", "timestamp": 1709251200},
			{"tx_hash": "0xb", "event_type": "approval", "token_id": 1},
			{"tx_hash": "0xc", "event_type": "retire", "token_id": 1, "from": "0xv", "timestamp": 1709337600},
		})
	})

	client := newTestClient(t, mux)

	entries, err := client.ListLedgerEvents(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, model.LedgerEventMint, entries[0].EventType)
	assert.Equal(t, model.LedgerEventRetire, entries[1].EventType)
	assert.Equal(t, model.Address("0xv"), entries[1].From)
}
