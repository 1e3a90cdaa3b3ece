package httphandler

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ericfisherdev/creditpanel/internal/application"
	"github.com/ericfisherdev/creditpanel/internal/domain/model"
)

// Buy submits a purchase of the credit for the connected viewer.
func (h *Handler) Buy(w http.ResponseWriter, r *http.Request) {
	h.submitAction(w, r, model.ActionBuy)
}

// Retire submits a retirement of a credit the viewer owns.
func (h *Handler) Retire(w http.ResponseWriter, r *http.Request) {
	h.submitAction(w, r, model.ActionRetire)
}

func (h *Handler) submitAction(w http.ResponseWriter, r *http.Request, kind model.ActionKind) {
	id, ok := parseTokenID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid token id")
		return
	}

	status, err := h.svc.Gate.Submit(r.Context(), kind, id)
	if err != nil {
		writeServiceError(w, h.logger, "action submission failed", err)
		return
	}

	writeJSON(w, http.StatusAccepted, toActionResponse(status))
}

// ActionStatus returns the action state of a credit.
func (h *Handler) ActionStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := parseTokenID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid token id")
		return
	}
	writeJSON(w, http.StatusOK, toActionResponse(h.svc.Gate.Status(id)))
}

// AcknowledgeAction returns a succeeded credit to idle.
func (h *Handler) AcknowledgeAction(w http.ResponseWriter, r *http.Request) {
	id, ok := parseTokenID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid token id")
		return
	}

	status, err := h.svc.Gate.Acknowledge(id)
	if err != nil {
		writeServiceError(w, h.logger, "acknowledge failed", err)
		return
	}
	writeJSON(w, http.StatusOK, toActionResponse(status))
}

// SetPrice lists a credit the viewer owns.
func (h *Handler) SetPrice(w http.ResponseWriter, r *http.Request) {
	id, ok := parseTokenID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid token id")
		return
	}

	var req SetPriceRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	listing, err := h.svc.Listings.SetPrice(r.Context(), id, req.PriceCents)
	if err != nil {
		writeServiceError(w, h.logger, "failed to set price", err)
		return
	}
	writeJSON(w, http.StatusOK, toListingResponse(listing))
}

// ClearPrice removes the viewer's listing.
func (h *Handler) ClearPrice(w http.ResponseWriter, r *http.Request) {
	id, ok := parseTokenID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid token id")
		return
	}

	if err := h.svc.Listings.ClearPrice(r.Context(), id); err != nil {
		writeServiceError(w, h.logger, "failed to clear price", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Issue certifies production and mints one credit per MWh. When minting stops
// part-way the response still lists what was minted.
func (h *Handler) Issue(w http.ResponseWriter, r *http.Request) {
	var body IssueRequest
	if !decodeJSON(w, r, &body) {
		return
	}

	date, err := time.Parse(time.DateOnly, body.ProductionDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid production_date: expected YYYY-MM-DD")
		return
	}

	result, err := h.svc.Issuer.Issue(r.Context(), application.IssueRequest{
		Producer:       body.Producer,
		EnergySource:   body.EnergySource,
		ProductionDate: date,
		MWh:            body.MWh,
	})

	resp := IssueResponse{
		Producer: string(result.Producer),
		Minted:   len(result.TxHashes),
		TxHashes: result.TxHashes,
	}
	if resp.TxHashes == nil {
		resp.TxHashes = []string{}
	}

	if err != nil {
		if len(result.TxHashes) == 0 {
			writeServiceError(w, h.logger, "issuance failed", err)
			return
		}
		h.logger.Warn("issuance stopped part-way", "minted", resp.Minted, "error", err)
		resp.Error = err.Error()
		writeJSON(w, http.StatusBadGateway, resp)
		return
	}

	writeJSON(w, http.StatusCreated, resp)
}

// ListAudit returns ledger events newest first. Supports ?token_id=, ?type=
// and ?limit=.
func (h *Handler) ListAudit(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var filter application.AuditFilter

	if raw := q.Get("token_id"); raw != "" {
		n, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid token_id")
			return
		}
		id := model.TokenID(n)
		filter.TokenID = &id
	}
	if raw := q.Get("type"); raw != "" {
		eventType, ok := parseEventType(raw)
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid type: expected mint, transfer or retire")
			return
		}
		filter.Type = eventType
	}
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		filter.Limit = n
	}

	entries, err := h.svc.Audit.List(r.Context(), filter)
	if err != nil {
		h.logger.Error("failed to list audit trail", "error", err)
		writeError(w, http.StatusBadGateway, "ledger unavailable")
		return
	}

	resp := make([]AuditEntryResponse, 0, len(entries))
	for _, e := range entries {
		resp = append(resp, toAuditEntryResponse(e))
	}
	writeJSON(w, http.StatusOK, resp)
}

func parseEventType(s string) (model.LedgerEventType, bool) {
	for _, t := range []model.LedgerEventType{model.LedgerEventMint, model.LedgerEventTransfer, model.LedgerEventRetire} {
		if strings.EqualFold(s, string(t)) {
			return t, true
		}
	}
	return "", false
}

// Analyze runs the trading analysis. An empty body analyzes a summary of the
// current view.
func (h *Handler) Analyze(w http.ResponseWriter, r *http.Request) {
	var req AnalysisRequest
	if r.ContentLength != 0 && !decodeJSON(w, r, &req) {
		return
	}

	analysis, err := h.svc.Analysis.Analyze(r.Context(), req.TradingData)
	if err != nil {
		if errors.Is(err, model.ErrAnalysisUnavailable) {
			writeError(w, http.StatusServiceUnavailable, err.Error())
			return
		}
		h.logger.Error("trading analysis failed", "error", err)
		writeError(w, http.StatusBadGateway, "analysis failed")
		return
	}
	writeJSON(w, http.StatusOK, analysis)
}

// SetCredential stores an API key. A new analysis key replaces the running
// analyzer immediately; a new ledger key applies on the next start.
func (h *Handler) SetCredential(w http.ResponseWriter, r *http.Request) {
	service := chi.URLParam(r, "service")
	if !model.KnownCredentialService(service) {
		writeError(w, http.StatusBadRequest, "unknown credential service")
		return
	}

	var req SetCredentialRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	value := strings.TrimSpace(req.Value)
	if value == "" {
		writeError(w, http.StatusBadRequest, "value is required")
		return
	}

	if service == model.CredentialGemini && h.svc.NewAnalyzer != nil {
		analyzer, err := h.svc.NewAnalyzer(r.Context(), value)
		if err != nil {
			h.logger.Warn("rejecting analysis key", "error", err)
			writeError(w, http.StatusBadRequest, "invalid analysis key")
			return
		}
		if err := h.svc.Credentials.Set(r.Context(), service, value); err != nil {
			writeServiceError(w, h.logger, "failed to store credential", err)
			return
		}
		h.svc.Analyzers.Replace(analyzer)
		h.logger.Info("analysis key updated")
		w.WriteHeader(http.StatusNoContent)
		return
	}

	if err := h.svc.Credentials.Set(r.Context(), service, value); err != nil {
		writeServiceError(w, h.logger, "failed to store credential", err)
		return
	}
	h.logger.Info("credential stored", "service", service)
	w.WriteHeader(http.StatusNoContent)
}

// DeleteCredential removes an API key. Removing the analysis key disables
// analysis immediately.
func (h *Handler) DeleteCredential(w http.ResponseWriter, r *http.Request) {
	service := chi.URLParam(r, "service")
	if !model.KnownCredentialService(service) {
		writeError(w, http.StatusBadRequest, "unknown credential service")
		return
	}

	if err := h.svc.Credentials.Delete(r.Context(), service); err != nil {
		writeServiceError(w, h.logger, "failed to delete credential", err)
		return
	}
	if service == model.CredentialGemini {
		h.svc.Analyzers.Replace(nil)
	}
	w.WriteHeader(http.StatusNoContent)
}
