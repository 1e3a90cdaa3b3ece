package httphandler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/ericfisherdev/creditpanel/internal/application"
	"github.com/ericfisherdev/creditpanel/internal/domain/model"
)

// writeJSON marshals v to JSON and writes it to the response with the given
// status code. If marshaling fails, a 500 error is written instead.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"internal server error"}`))
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

// writeError writes a JSON error response with the given status code and message.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// errorResponse is the standard error response body.
type errorResponse struct {
	Error string `json:"error"`
}

// CreditResponse is the JSON representation of a reconciled credit.
type CreditResponse struct {
	ID             uint64 `json:"id"`
	Producer       string `json:"producer"`
	EnergySource   string `json:"energy_source"`
	ProductionDate string `json:"production_date,omitempty"`
	Owner          string `json:"owner"`
	Retired        bool   `json:"retired"`
	Status         string `json:"status"`
	PriceCents     *int64 `json:"price_cents,omitempty"`
}

// FetchFailureResponse describes a token left out of a partial view.
type FetchFailureResponse struct {
	TokenID uint64 `json:"token_id"`
	Op      string `json:"op"`
	Error   string `json:"error"`
}

// ViewResponse is the JSON representation of the applied credit view.
type ViewResponse struct {
	Viewer   string                 `json:"viewer"`
	BuiltAt  string                 `json:"built_at,omitempty"`
	Partial  bool                   `json:"partial"`
	Restored bool                   `json:"restored"`
	Error    string                 `json:"error,omitempty"`
	Counts   map[string]int         `json:"counts"`
	Credits  []CreditResponse       `json:"credits"`
	Failures []FetchFailureResponse `json:"failures"`
}

// ActionResponse is the JSON representation of a credit's action state.
type ActionResponse struct {
	TokenID   uint64 `json:"token_id"`
	Kind      string `json:"kind,omitempty"`
	State     string `json:"state"`
	AttemptID string `json:"attempt_id,omitempty"`
	TxHash    string `json:"tx_hash,omitempty"`
	LastError string `json:"last_error,omitempty"`
	UpdatedAt string `json:"updated_at,omitempty"`
}

// ViewerResponse is the JSON representation of the connected account.
type ViewerResponse struct {
	Address   string `json:"address"`
	Connected bool   `json:"connected"`
}

// ConnectViewerRequest is the JSON body for the connect endpoint.
type ConnectViewerRequest struct {
	Address string `json:"address"`
}

// IssueRequest is the JSON body for the issuance endpoint.
type IssueRequest struct {
	Producer       string `json:"producer"`
	EnergySource   string `json:"energy_source"`
	ProductionDate string `json:"production_date"` // YYYY-MM-DD
	MWh            int    `json:"mwh"`
}

// IssueResponse reports the minted credits' transactions.
type IssueResponse struct {
	Producer string   `json:"producer"`
	Minted   int      `json:"minted"`
	TxHashes []string `json:"tx_hashes"`
	Error    string   `json:"error,omitempty"`
}

// SetPriceRequest is the JSON body for the listing endpoint.
type SetPriceRequest struct {
	PriceCents int64 `json:"price_cents"`
}

// ListingResponse is the JSON representation of a marketplace listing.
type ListingResponse struct {
	TokenID    uint64 `json:"token_id"`
	Seller     string `json:"seller"`
	PriceCents int64  `json:"price_cents"`
	ListedAt   string `json:"listed_at"`
}

// AuditEntryResponse is one ledger event in the audit trail.
type AuditEntryResponse struct {
	TxHash    string `json:"tx_hash"`
	EventType string `json:"event_type"`
	TokenID   uint64 `json:"token_id"`
	From      string `json:"from,omitempty"`
	To        string `json:"to,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
}

// AnalysisRequest is the JSON body for the analysis endpoint.
type AnalysisRequest struct {
	TradingData string `json:"trading_data"`
}

// SetCredentialRequest is the JSON body for the credentials endpoint.
type SetCredentialRequest struct {
	Value string `json:"value"`
}

// HealthResponse is the JSON representation of the health check endpoint.
type HealthResponse struct {
	Status    string `json:"status"`
	Time      string `json:"time"`
	ViewToken uint64 `json:"view_token"`
	ViewError string `json:"view_error,omitempty"`
	Analysis  bool   `json:"analysis_enabled"`
	Credits   int    `json:"credits"`
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.DateOnly)
}

func formatTimestamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

// toCreditResponse converts a reconciled record to its JSON representation.
func toCreditResponse(rec model.CreditRecord) CreditResponse {
	return CreditResponse{
		ID:             uint64(rec.ID),
		Producer:       string(rec.Producer),
		EnergySource:   string(rec.EnergySource),
		ProductionDate: formatDate(rec.ProductionTime),
		Owner:          string(rec.Owner),
		Retired:        rec.Retired,
		Status:         string(rec.Status),
	}
}

func toCreditResponses(records []model.CreditRecord) []CreditResponse {
	resp := make([]CreditResponse, 0, len(records))
	for _, rec := range records {
		resp = append(resp, toCreditResponse(rec))
	}
	return resp
}

// toMarketItemResponse attaches the listing price, if any.
func toMarketItemResponse(item application.MarketItem) CreditResponse {
	resp := toCreditResponse(item.Record)
	if item.Listing != nil {
		price := item.Listing.PriceCents
		resp.PriceCents = &price
	}
	return resp
}

// toViewResponse converts a view state; records are passed separately so
// callers can filter them.
func toViewResponse(state application.ViewState, records []model.CreditRecord) ViewResponse {
	view := state.View

	counts := map[string]int{}
	for status, n := range view.CountByStatus() {
		counts[string(status)] = n
	}

	failures := make([]FetchFailureResponse, 0, len(view.Failures))
	for _, f := range view.Failures {
		failures = append(failures, FetchFailureResponse{
			TokenID: uint64(f.TokenID),
			Op:      f.Op,
			Error:   f.Err.Error(),
		})
	}

	resp := ViewResponse{
		Viewer:   string(view.Viewer),
		BuiltAt:  formatTimestamp(view.BuiltAt),
		Partial:  view.Partial(),
		Restored: view.Restored,
		Counts:   counts,
		Credits:  toCreditResponses(records),
		Failures: failures,
	}
	if state.Err != nil {
		resp.Error = state.Err.Error()
	}
	return resp
}

func toActionResponse(st model.ActionStatus) ActionResponse {
	return ActionResponse{
		TokenID:   uint64(st.TokenID),
		Kind:      string(st.Kind),
		State:     string(st.State),
		AttemptID: st.AttemptID,
		TxHash:    st.TxHash,
		LastError: st.LastError,
		UpdatedAt: formatTimestamp(st.UpdatedAt),
	}
}

func toListingResponse(l model.Listing) ListingResponse {
	return ListingResponse{
		TokenID:    uint64(l.TokenID),
		Seller:     string(l.Seller),
		PriceCents: l.PriceCents,
		ListedAt:   formatTimestamp(l.ListedAt),
	}
}

func toAuditEntryResponse(e model.AuditEntry) AuditEntryResponse {
	return AuditEntryResponse{
		TxHash:    e.TxHash,
		EventType: string(e.EventType),
		TokenID:   uint64(e.TokenID),
		From:      string(e.From),
		To:        string(e.To),
		Timestamp: formatTimestamp(e.Timestamp),
	}
}

func toViewerResponse(addr model.Address) ViewerResponse {
	return ViewerResponse{Address: string(addr), Connected: !addr.IsZero()}
}
