package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/spf13/cobra"

	"github.com/ericfisherdev/creditpanel/internal/adapter/driven/gemini"
	httphandler "github.com/ericfisherdev/creditpanel/internal/adapter/driving/http"
	webhandler "github.com/ericfisherdev/creditpanel/internal/adapter/driving/web"
	"github.com/ericfisherdev/creditpanel/internal/application"
	"github.com/ericfisherdev/creditpanel/internal/config"
	"github.com/ericfisherdev/creditpanel/internal/domain/model"
	"github.com/ericfisherdev/creditpanel/internal/domain/port/driven"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the REST API and the web GUI",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return serve(cmd.Context())
	},
}

func serve(parent context.Context) error {
	// 1. Load configuration (fail fast on invalid env vars).
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	slog.Info("config loaded",
		"listen_addr", cfg.ListenAddr,
		"db_path", cfg.DBPath,
		"ledger_url", cfg.LedgerURL,
		"fetch_concurrency", cfg.FetchConcurrency,
		"settle_timeout", cfg.SettleTimeout,
	)

	// 2. Setup signal-based context (SIGINT, SIGTERM).
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3. Open database, run migrations and build repositories.
	db, repos, err := openDB(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			slog.Error("error closing database", "error", closeErr)
		}
	}()

	// 4. Create the ledger client. Stored credentials take priority over env vars.
	ledgerClient, err := newLedgerClient(ctx, cfg, repos.credentials)
	if err != nil {
		return err
	}

	// 5. Create the analyzer provider for hot-swap.
	analyzers := application.NewAnalyzerProvider(newAnalyzer(ctx, cfg, repos.credentials))

	// 6. Build the view and restore the last snapshot.
	var initialViewer model.Address
	if cfg.Viewer != "" {
		if initialViewer, err = model.ParseAddress(cfg.Viewer); err != nil {
			return err
		}
	}
	viewer := application.NewViewerProvider(initialViewer)
	reconciler := application.NewReconciler(ledgerClient, cfg.FetchConcurrency)
	views := application.NewViewService(ledgerClient, reconciler, viewer, repos.credits)
	if err := views.Restore(ctx); err != nil {
		slog.Warn("restoring saved view failed", "error", err)
	}
	go views.Watch(ctx)
	go func() {
		if _, err := views.Refresh(ctx); err != nil && !errors.Is(err, model.ErrStaleView) {
			slog.Warn("initial refresh failed", "error", err)
		}
	}()

	// 7. Create application services.
	gate := application.NewActionGate(views, ledgerClient, ledgerClient, viewer, cfg.SettleTimeout)
	issuer := application.NewIssueService(ledgerClient, views, viewer)
	audit := application.NewAuditService(ledgerClient)
	listings := application.NewListingService(repos.listings, views, viewer)
	analysis := application.NewAnalysisService(analyzers, views, audit)

	// 8. Create HTTP and web handlers and register routes.
	router := chi.NewRouter()
	httphandler.ApplyMiddleware(router, slog.Default())

	apiHandler := httphandler.NewHandler(httphandler.Services{
		Views:       views,
		Listings:    listings,
		Gate:        gate,
		Issuer:      issuer,
		Audit:       audit,
		Analysis:    analysis,
		Viewer:      viewer,
		Analyzers:   analyzers,
		Credentials: repos.credentials,
		NewAnalyzer: func(ctx context.Context, apiKey string) (driven.TradingAnalyzer, error) {
			a, err := gemini.NewAnalyzer(ctx, gemini.Options{APIKey: apiKey, Model: cfg.GeminiModel})
			if err != nil {
				return nil, err
			}
			return a, nil
		},
	}, slog.Default())
	httphandler.RegisterAPIRoutes(router, apiHandler)

	webHandler := webhandler.NewHandler(webhandler.Deps{
		Views:     views,
		Listings:  listings,
		Gate:      gate,
		Issuer:    issuer,
		Audit:     audit,
		Analysis:  analysis,
		Viewer:    viewer,
		Analyzers: analyzers,
	}, slog.Default())
	webhandler.RegisterRoutes(router, webHandler)

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      2 * time.Minute,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		slog.Info("http server starting", "addr", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("http server error", "error", err)
			stop()
		}
	}()

	slog.Info("creditpanel started", "listen_addr", cfg.ListenAddr, "viewer", initialViewer.Short())

	// 9. Wait for shutdown signal.
	<-ctx.Done()
	slog.Info("shutting down")

	// 10. Graceful shutdown: drain HTTP, then let in-flight settlements finish.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("http server shutdown error", "error", err)
	}
	gate.Wait()

	slog.Info("shutdown complete")
	return nil
}
