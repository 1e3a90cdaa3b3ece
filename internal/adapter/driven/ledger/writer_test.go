package ledger_test

import (
	"context"
	"encoding/json"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/creditpanel/internal/adapter/driven/ledger"
	"github.com/ericfisherdev/creditpanel/internal/domain/model"
	"github.com/ericfisherdev/creditpanel/internal/domain/port/driven"
)

func TestClient_TransferConfirmsAfterPolling(t *testing.T) {
	var polls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/credits/4/transfer", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "0xfrom", body["from"])
		assert.Equal(t, "0xto", body["to"])
		writeJSON(t, w, http.StatusAccepted, map[string]any{"tx_hash": "0xdead"})
	})
	mux.HandleFunc("GET /v1/transactions/0xdead", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "no-cache", r.Header.Get("Cache-Control"))
		n := polls.Add(1)
		switch {
		case n == 1:
			writeJSON(t, w, http.StatusNotFound, map[string]any{"error": "unknown transaction"})
		case n < 3:
			writeJSON(t, w, http.StatusOK, map[string]any{"status": "pending"})
		default:
			writeJSON(t, w, http.StatusOK, map[string]any{"status": "confirmed"})
		}
	})

	client := newTestClient(t, mux)

	handle, err := client.Transfer(context.Background(), 4, "0xfrom", "0xto")
	require.NoError(t, err)
	assert.Equal(t, "0xdead", handle.Hash())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, handle.Wait(ctx))
	assert.Equal(t, int32(3), polls.Load())
}

func TestClient_RetireFailedTransaction(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/credits/4/retire", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "0xowner", body["owner"])
		writeJSON(t, w, http.StatusAccepted, map[string]any{"tx_hash": "0xbeef"})
	})
	mux.HandleFunc("GET /v1/transactions/0xbeef", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(t, w, http.StatusOK, map[string]any{"status": "failed", "reason": "caller is not owner"})
	})

	client := newTestClient(t, mux)

	handle, err := client.Retire(context.Background(), 4, "0xowner")
	require.NoError(t, err)

	err = handle.Wait(context.Background())
	require.ErrorIs(t, err, ledger.ErrTransactionFailed)
	assert.Contains(t, err.Error(), "caller is not owner")
}

func TestClient_WaitStopsOnPermanentLookupError(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/credits", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(t, w, http.StatusAccepted, map[string]any{"tx_hash": "0xcafe"})
	})
	mux.HandleFunc("GET /v1/transactions/0xcafe", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(t, w, http.StatusUnauthorized, map[string]any{"error": "bad api key"})
	})

	client := newTestClient(t, mux)

	handle, err := client.Issue(context.Background(), driven.IssueRequest{
		Producer:       "0xprod",
		EnergySource:   model.EnergySourceWind,
		ProductionTime: time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	err = handle.Wait(context.Background())
	var apiErr *ledger.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
}

func TestClient_WaitHonorsContext(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/credits/1/transfer", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(t, w, http.StatusAccepted, map[string]any{"tx_hash": "0x1"})
	})
	mux.HandleFunc("GET /v1/transactions/0x1", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(t, w, http.StatusOK, map[string]any{"status": "pending"})
	})

	client := newTestClient(t, mux)

	handle, err := client.Transfer(context.Background(), 1, "0xa", "0xb")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err = handle.Wait(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestClient_IssueSendsUnixDate(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/credits", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "0xprod", body["producer"])
		assert.Equal(t, "Solar", body["energy_source"])
		assert.InDelta(t, 1709251200, body["production_date"], 0)
		writeJSON(t, w, http.StatusAccepted, map[string]any{"tx_hash": "0x2"})
	})

	client := newTestClient(t, mux)

	handle, err := client.Issue(context.Background(), driven.IssueRequest{
		Producer:       "0xprod",
		EnergySource:   model.EnergySourceSolar,
		ProductionTime: time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	assert.Equal(t, "0x2", handle.Hash())
}

func TestClient_SubmitWithoutHashFails(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/credits/1/retire", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(t, w, http.StatusAccepted, map[string]any{})
	})

	client := newTestClient(t, mux)

	_, err := client.Retire(context.Background(), 1, "0xa")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no transaction hash")
}
