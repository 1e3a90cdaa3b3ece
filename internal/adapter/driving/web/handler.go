// Package web implements the HTML GUI driving adapter using templ components.
package web

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/a-h/templ"
	"github.com/go-chi/chi/v5"

	"github.com/ericfisherdev/creditpanel/internal/adapter/driving/web/templates"
	"github.com/ericfisherdev/creditpanel/internal/adapter/driving/web/templates/pages"
	vm "github.com/ericfisherdev/creditpanel/internal/adapter/driving/web/viewmodel"
	"github.com/ericfisherdev/creditpanel/internal/application"
	"github.com/ericfisherdev/creditpanel/internal/domain/model"
)

// Deps groups the application services the GUI depends on.
type Deps struct {
	Views     *application.ViewService
	Listings  *application.ListingService
	Gate      *application.ActionGate
	Issuer    *application.IssueService
	Audit     *application.AuditService
	Analysis  *application.AnalysisService
	Viewer    *application.ViewerProvider
	Analyzers *application.AnalyzerProvider
}

// Handler is the web GUI driving adapter that serves HTML via templ components.
type Handler struct {
	deps   Deps
	logger *slog.Logger
}

// NewHandler creates a Handler with all required dependencies.
func NewHandler(deps Deps, logger *slog.Logger) *Handler {
	return &Handler{deps: deps, logger: logger}
}

// page builds the shared page data. Flash messages arrive as ?notice= and
// ?error= query parameters from the preceding redirect.
func (h *Handler) page(w http.ResponseWriter, r *http.Request, title, active string) vm.PageViewModel {
	state := h.deps.Views.State()
	viewer := h.deps.Viewer.Current()

	p := vm.PageViewModel{
		Title:        title,
		Active:       active,
		Viewer:       string(viewer),
		ViewerShort:  viewer.Short(),
		Connected:    !viewer.IsZero(),
		CSRFToken:    csrfToken(w, r),
		Notice:       r.URL.Query().Get("notice"),
		Error:        r.URL.Query().Get("error"),
		Partial:      state.View.Partial(),
		FailureCount: len(state.View.Failures),
		Restored:     state.View.Restored,
	}
	if state.Err != nil {
		p.ViewError = state.Err.Error()
	}
	if !state.View.BuiltAt.IsZero() {
		p.BuiltAt = state.View.BuiltAt.Local().Format("15:04:05")
	}
	return p
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, page vm.PageViewModel, body templ.Component) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := templates.Layout(page, body).Render(r.Context(), w); err != nil {
		h.logger.Error("failed to render page", "page", page.Active, "error", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
	}
}

// redirect sends a 303 to path with an optional flash message.
func redirect(w http.ResponseWriter, r *http.Request, path, notice, errMsg string) {
	q := url.Values{}
	if notice != "" {
		q.Set("notice", notice)
	}
	if errMsg != "" {
		q.Set("error", errMsg)
	}
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	http.Redirect(w, r, path, http.StatusSeeOther)
}

// returnPath is the page a POST came from, defaulting to the marketplace.
func returnPath(r *http.Request) string {
	if ref, err := url.Parse(r.Referer()); err == nil && strings.HasPrefix(ref.Path, "/app/") {
		return ref.Path
	}
	return "/app/marketplace"
}

func tokenIDParam(r *http.Request) (model.TokenID, bool) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	return model.TokenID(id), err == nil
}

// Marketplace renders the credits the viewer can buy, with prices.
func (h *Handler) Marketplace(w http.ResponseWriter, r *http.Request) {
	page := h.page(w, r, "Marketplace", "marketplace")

	items, err := h.deps.Listings.Marketplace(r.Context())
	if err != nil {
		h.logger.Error("failed to load listings", "error", err)
		page.Error = "Prices are unavailable right now."
		for _, rec := range h.deps.Views.Marketplace() {
			items = append(items, application.MarketItem{Record: rec})
		}
	}

	rows := make([]vm.CreditRowViewModel, 0, len(items))
	for _, item := range items {
		row := toCreditRow(item.Record, h.deps.Gate.Status(item.Record.ID), page.Connected)
		if item.Listing != nil {
			row.Price = formatPrice(item.Listing.PriceCents)
		}
		rows = append(rows, row)
	}

	h.render(w, r, page, pages.Marketplace(vm.MarketplaceViewModel{Page: page, Credits: rows}))
}

// Portfolio renders the viewer's owned and retired credits.
func (h *Handler) Portfolio(w http.ResponseWriter, r *http.Request) {
	page := h.page(w, r, "Portfolio", "portfolio")
	view := h.deps.Views.Current()

	prices := make(map[model.TokenID]int64)
	if items, err := h.deps.Listings.Owned(r.Context()); err == nil {
		for _, l := range items {
			prices[l.TokenID] = l.PriceCents
		}
	} else {
		h.logger.Warn("failed to load own listings", "error", err)
	}

	owned := view.Filter(model.CreditStatusOwned)
	retired := view.Filter(model.CreditStatusRetired)

	m := vm.PortfolioViewModel{
		Page:    page,
		Owned:   make([]vm.CreditRowViewModel, 0, len(owned)),
		Retired: make([]vm.CreditRowViewModel, 0, len(retired)),
		Totals:  sourceTotals(owned),
	}
	for _, rec := range owned {
		row := toCreditRow(rec, h.deps.Gate.Status(rec.ID), page.Connected)
		if cents, ok := prices[rec.ID]; ok {
			row.Price = formatPrice(cents)
		}
		m.Owned = append(m.Owned, row)
	}
	for _, rec := range retired {
		if rec.Owner.Equal(view.Viewer) {
			m.Retired = append(m.Retired, toCreditRow(rec, h.deps.Gate.Status(rec.ID), page.Connected))
		}
	}

	h.render(w, r, page, pages.Portfolio(m))
}

func (h *Handler) producerModel(page vm.PageViewModel) vm.ProducerViewModel {
	return vm.ProducerViewModel{
		Page:          page,
		Sources:       []string{string(model.EnergySourceSolar), string(model.EnergySourceWind), string(model.EnergySourceHydro)},
		DefaultSource: string(model.EnergySourceSolar),
		MaxMWh:        application.MaxIssueMWh,
		Today:         time.Now().Format(time.DateOnly),
	}
}

// Producer renders the issuance form.
func (h *Handler) Producer(w http.ResponseWriter, r *http.Request) {
	page := h.page(w, r, "Producer", "producer")
	h.render(w, r, page, pages.Producer(h.producerModel(page)))
}

// Issue certifies production from the form and renders the minted
// transactions. Partial progress is reported alongside the error.
func (h *Handler) Issue(w http.ResponseWriter, r *http.Request) {
	page := h.page(w, r, "Producer", "producer")
	m := h.producerModel(page)

	date, err := time.Parse(time.DateOnly, r.FormValue("production_date"))
	if err != nil {
		redirect(w, r, "/app/producer", "", "Enter a valid production date.")
		return
	}
	mwh, err := strconv.Atoi(r.FormValue("mwh"))
	if err != nil {
		redirect(w, r, "/app/producer", "", "Enter the MWh produced as a whole number.")
		return
	}

	result, err := h.deps.Issuer.Issue(r.Context(), application.IssueRequest{
		Producer:       r.FormValue("producer"),
		EnergySource:   r.FormValue("energy_source"),
		ProductionDate: date,
		MWh:            mwh,
	})
	if err != nil && len(result.TxHashes) == 0 {
		redirect(w, r, "/app/producer", "", userMessage(err))
		return
	}

	m.LastTxHashes = result.TxHashes
	if err != nil {
		h.logger.Warn("issuance stopped part-way", "minted", len(result.TxHashes), "error", err)
		m.Page.Error = fmt.Sprintf("Issued %d of %d credits before an error: %s", len(result.TxHashes), mwh, userMessage(err))
	} else {
		m.Page.Notice = fmt.Sprintf("Issued %d credits to %s.", len(result.TxHashes), result.Producer.Short())
	}
	h.render(w, r, m.Page, pages.Producer(m))
}

// Audit renders the ledger event history with optional filters.
func (h *Handler) Audit(w http.ResponseWriter, r *http.Request) {
	page := h.page(w, r, "Audit", "audit")
	m := vm.AuditViewModel{
		Page:        page,
		TokenFilter: r.URL.Query().Get("token_id"),
		TypeFilter:  r.URL.Query().Get("type"),
		Types:       []string{string(model.LedgerEventMint), string(model.LedgerEventTransfer), string(model.LedgerEventRetire)},
	}

	var filter application.AuditFilter
	if m.TokenFilter != "" {
		n, err := strconv.ParseUint(strings.TrimPrefix(m.TokenFilter, "#"), 10, 64)
		if err != nil {
			m.Page.Error = "Credit filter must be a number."
			h.render(w, r, m.Page, pages.Audit(m))
			return
		}
		id := model.TokenID(n)
		filter.TokenID = &id
	}
	for _, t := range m.Types {
		if strings.EqualFold(t, m.TypeFilter) {
			filter.Type = model.LedgerEventType(t)
		}
	}

	entries, err := h.deps.Audit.List(r.Context(), filter)
	if err != nil {
		h.logger.Error("failed to load audit trail", "error", err)
		m.LoadError = "The ledger history is unavailable right now."
	}
	for _, e := range entries {
		m.Entries = append(m.Entries, toAuditRow(e))
	}

	h.render(w, r, m.Page, pages.Audit(m))
}

func (h *Handler) analysisModel(page vm.PageViewModel) vm.AnalysisViewModel {
	return vm.AnalysisViewModel{
		Page:           page,
		Available:      h.deps.Analyzers != nil && h.deps.Analyzers.HasAnalyzer(),
		MaxInputLength: application.MaxTradingDataLen,
	}
}

// AnalysisPage renders the analysis form.
func (h *Handler) AnalysisPage(w http.ResponseWriter, r *http.Request) {
	page := h.page(w, r, "Analysis", "analysis")
	h.render(w, r, page, pages.Analysis(h.analysisModel(page)))
}

// Analyze runs the trading analysis and renders its result as markdown.
func (h *Handler) Analyze(w http.ResponseWriter, r *http.Request) {
	page := h.page(w, r, "Analysis", "analysis")
	m := h.analysisModel(page)
	m.Input = r.FormValue("trading_data")

	analysis, err := h.deps.Analysis.Analyze(r.Context(), m.Input)
	if err != nil {
		if !errors.Is(err, model.ErrAnalysisUnavailable) {
			h.logger.Error("trading analysis failed", "error", err)
		}
		m.Page.Error = userMessage(err)
		h.render(w, r, m.Page, pages.Analysis(m))
		return
	}

	m.HasResult = true
	m.DemandHTML = RenderMarkdown(analysis.DemandPrediction)
	m.InefficienciesHTML = RenderMarkdown(analysis.InefficienciesIdentified)
	m.StrategiesHTML = RenderMarkdown(analysis.OptimizedTradingStrategies)
	h.render(w, r, m.Page, pages.Analysis(m))
}

// ConnectViewer connects the wallet address from the form.
func (h *Handler) ConnectViewer(w http.ResponseWriter, r *http.Request) {
	addr, err := h.deps.Viewer.Connect(r.FormValue("address"))
	if err != nil {
		redirect(w, r, returnPath(r), "", err.Error())
		return
	}
	redirect(w, r, returnPath(r), "Connected "+addr.Short()+".", "")
}

// DisconnectViewer clears the connected wallet.
func (h *Handler) DisconnectViewer(w http.ResponseWriter, r *http.Request) {
	h.deps.Viewer.Disconnect()
	redirect(w, r, returnPath(r), "Wallet disconnected.", "")
}

// Refresh rebuilds the view from the ledger.
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	if _, err := h.deps.Views.Refresh(r.Context()); err != nil && !errors.Is(err, model.ErrStaleView) {
		h.logger.Warn("refresh failed", "error", err)
		redirect(w, r, returnPath(r), "", "Refresh failed: "+err.Error())
		return
	}
	redirect(w, r, returnPath(r), "", "")
}

// Buy submits a purchase from the marketplace.
func (h *Handler) Buy(w http.ResponseWriter, r *http.Request) {
	h.submit(w, r, model.ActionBuy)
}

// Retire submits a retirement from the portfolio.
func (h *Handler) Retire(w http.ResponseWriter, r *http.Request) {
	h.submit(w, r, model.ActionRetire)
}

func (h *Handler) submit(w http.ResponseWriter, r *http.Request, kind model.ActionKind) {
	id, ok := tokenIDParam(r)
	if !ok {
		http.Error(w, "invalid credit id", http.StatusBadRequest)
		return
	}

	status, err := h.deps.Gate.Submit(r.Context(), kind, id)
	if err != nil {
		redirect(w, r, returnPath(r), "", userMessage(err))
		return
	}
	redirect(w, r, returnPath(r), fmt.Sprintf("Submitted %s of credit #%d (%s).", kind, id, shortHash(status.TxHash)), "")
}

// Acknowledge clears a confirmed action so the credit can be acted on again.
func (h *Handler) Acknowledge(w http.ResponseWriter, r *http.Request) {
	id, ok := tokenIDParam(r)
	if !ok {
		http.Error(w, "invalid credit id", http.StatusBadRequest)
		return
	}
	if _, err := h.deps.Gate.Acknowledge(id); err != nil {
		redirect(w, r, returnPath(r), "", userMessage(err))
		return
	}
	redirect(w, r, returnPath(r), "", "")
}

// SetPrice lists an owned credit at the price from the form.
func (h *Handler) SetPrice(w http.ResponseWriter, r *http.Request) {
	id, ok := tokenIDParam(r)
	if !ok {
		http.Error(w, "invalid credit id", http.StatusBadRequest)
		return
	}

	cents, err := parsePriceCents(r.FormValue("price"))
	if err != nil {
		redirect(w, r, "/app/portfolio", "", err.Error())
		return
	}
	if _, err := h.deps.Listings.SetPrice(r.Context(), id, cents); err != nil {
		redirect(w, r, "/app/portfolio", "", userMessage(err))
		return
	}
	redirect(w, r, "/app/portfolio", fmt.Sprintf("Credit #%d listed at %s.", id, formatPrice(cents)), "")
}

// Unlist removes the asking price of an owned credit.
func (h *Handler) Unlist(w http.ResponseWriter, r *http.Request) {
	id, ok := tokenIDParam(r)
	if !ok {
		http.Error(w, "invalid credit id", http.StatusBadRequest)
		return
	}
	if err := h.deps.Listings.ClearPrice(r.Context(), id); err != nil {
		redirect(w, r, "/app/portfolio", "", userMessage(err))
		return
	}
	redirect(w, r, "/app/portfolio", fmt.Sprintf("Credit #%d unlisted.", id), "")
}
