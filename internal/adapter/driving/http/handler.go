package httphandler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ericfisherdev/creditpanel/internal/application"
	"github.com/ericfisherdev/creditpanel/internal/domain/model"
	"github.com/ericfisherdev/creditpanel/internal/domain/port/driven"
)

// maxBodyBytes caps JSON request bodies.
const maxBodyBytes = 1 << 20

// AnalyzerFactory builds a trading analyzer from an API key. It is called
// when the analysis key is replaced at runtime.
type AnalyzerFactory func(ctx context.Context, apiKey string) (driven.TradingAnalyzer, error)

// Services groups the application services the API depends on.
type Services struct {
	Views       *application.ViewService
	Listings    *application.ListingService
	Gate        *application.ActionGate
	Issuer      *application.IssueService
	Audit       *application.AuditService
	Analysis    *application.AnalysisService
	Viewer      *application.ViewerProvider
	Analyzers   *application.AnalyzerProvider
	Credentials driven.CredentialStore
	NewAnalyzer AnalyzerFactory
}

// Handler is the HTTP driving adapter that serves the REST API.
type Handler struct {
	svc    Services
	logger *slog.Logger
}

// NewHandler creates a Handler with all required dependencies.
func NewHandler(svc Services, logger *slog.Logger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

// ApplyMiddleware installs request ID, real IP, logging and recovery
// middleware on r. It must be called before any route is registered.
func ApplyMiddleware(r chi.Router, logger *slog.Logger) {
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(loggingMiddleware(logger))
	// Recovery innermost so panics are caught before logging.
	r.Use(recoveryMiddleware(logger))
}

// RegisterAPIRoutes mounts the REST API under /api/v1 and the Prometheus
// endpoint at /metrics.
func RegisterAPIRoutes(r chi.Router, h *Handler) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", h.Health)

		r.Get("/credits", h.ListCredits)
		r.Get("/credits/{id}", h.GetCredit)
		r.Get("/marketplace", h.Marketplace)
		r.Get("/portfolio", h.Portfolio)
		r.Post("/refresh", h.Refresh)

		r.Get("/viewer", h.GetViewer)
		r.Put("/viewer", h.ConnectViewer)
		r.Delete("/viewer", h.DisconnectViewer)

		r.Post("/credits/{id}/buy", h.Buy)
		r.Post("/credits/{id}/retire", h.Retire)
		r.Get("/credits/{id}/action", h.ActionStatus)
		r.Post("/credits/{id}/action/ack", h.AcknowledgeAction)

		r.Put("/credits/{id}/listing", h.SetPrice)
		r.Delete("/credits/{id}/listing", h.ClearPrice)

		r.Post("/issuances", h.Issue)
		r.Get("/audit", h.ListAudit)
		r.Post("/analysis", h.Analyze)

		r.Put("/credentials/{service}", h.SetCredential)
		r.Delete("/credentials/{service}", h.DeleteCredential)
	})

	r.Handle("/metrics", promhttp.Handler())
}

// NewRouter returns a router with middleware and API routes installed.
func NewRouter(h *Handler, logger *slog.Logger) chi.Router {
	r := chi.NewRouter()
	ApplyMiddleware(r, logger)
	RegisterAPIRoutes(r, h)
	return r
}

// parseTokenID reads the {id} path parameter.
func parseTokenID(r *http.Request) (model.TokenID, bool) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		return 0, false
	}
	return model.TokenID(id), true
}

// parseStatuses reads a comma-separated ?status= filter.
func parseStatuses(raw string) ([]model.CreditStatus, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	var statuses []model.CreditStatus
	for _, part := range strings.Split(raw, ",") {
		status, err := model.ParseCreditStatus(part)
		if err != nil {
			return nil, err
		}
		statuses = append(statuses, status)
	}
	return statuses, nil
}

// decodeJSON decodes a size-limited JSON body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := jsonDecoder(r).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

func jsonDecoder(r *http.Request) *json.Decoder {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec
}

// Health reports liveness plus the state of the last applied view.
func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	state := h.svc.Views.State()

	resp := HealthResponse{
		Status:    "ok",
		Time:      time.Now().UTC().Format(time.RFC3339),
		ViewToken: state.Token,
		Credits:   len(state.View.Records),
		Analysis:  h.svc.Analyzers != nil && h.svc.Analyzers.HasAnalyzer(),
	}
	if state.Err != nil {
		resp.Status = "degraded"
		resp.ViewError = state.Err.Error()
	}

	writeJSON(w, http.StatusOK, resp)
}

// ListCredits returns the applied view, optionally filtered by ?status=.
func (h *Handler) ListCredits(w http.ResponseWriter, r *http.Request) {
	statuses, err := parseStatuses(r.URL.Query().Get("status"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	state := h.svc.Views.State()
	writeJSON(w, http.StatusOK, toViewResponse(state, state.View.Filter(statuses...)))
}

// GetCredit returns a single credit from the applied view.
func (h *Handler) GetCredit(w http.ResponseWriter, r *http.Request) {
	id, ok := parseTokenID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid token id")
		return
	}

	rec, found := h.svc.Views.Current().Find(id)
	if !found {
		writeError(w, http.StatusNotFound, "credit not found")
		return
	}

	writeJSON(w, http.StatusOK, toCreditResponse(rec))
}

// Marketplace returns the credits the viewer can buy, with asking prices.
func (h *Handler) Marketplace(w http.ResponseWriter, r *http.Request) {
	items, err := h.svc.Listings.Marketplace(r.Context())
	if err != nil {
		writeServiceError(w, h.logger, "failed to load marketplace", err)
		return
	}

	resp := make([]CreditResponse, 0, len(items))
	for _, item := range items {
		resp = append(resp, toMarketItemResponse(item))
	}
	writeJSON(w, http.StatusOK, resp)
}

// Portfolio returns the viewer's owned and retired credits.
func (h *Handler) Portfolio(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, toCreditResponses(h.svc.Views.Portfolio()))
}

// Refresh rebuilds the view from the ledger. A refresh overtaken by a newer
// one still answers with the newest applied view.
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	_, err := h.svc.Views.Refresh(r.Context())
	switch {
	case err == nil, errors.Is(err, model.ErrStaleView):
		state := h.svc.Views.State()
		writeJSON(w, http.StatusOK, toViewResponse(state, state.View.Records))
	case r.Context().Err() != nil:
		h.logger.Debug("refresh canceled by client", "error", err)
	default:
		h.logger.Warn("refresh failed", "error", err)
		state := h.svc.Views.State()
		writeJSON(w, http.StatusBadGateway, toViewResponse(state, state.View.Records))
	}
}

// GetViewer returns the connected account.
func (h *Handler) GetViewer(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, toViewerResponse(h.svc.Viewer.Current()))
}

// ConnectViewer switches the connected account. Subscribers such as the view
// watcher run before the response is written.
func (h *Handler) ConnectViewer(w http.ResponseWriter, r *http.Request) {
	var req ConnectViewerRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	addr, err := h.svc.Viewer.Connect(req.Address)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, toViewerResponse(addr))
}

// DisconnectViewer clears the connected account.
func (h *Handler) DisconnectViewer(w http.ResponseWriter, _ *http.Request) {
	h.svc.Viewer.Disconnect()
	w.WriteHeader(http.StatusNoContent)
}
