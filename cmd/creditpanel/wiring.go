package main

import (
	"context"
	"log/slog"

	"github.com/ericfisherdev/creditpanel/internal/adapter/driven/gemini"
	"github.com/ericfisherdev/creditpanel/internal/adapter/driven/ledger"
	sqliteadapter "github.com/ericfisherdev/creditpanel/internal/adapter/driven/sqlite"
	"github.com/ericfisherdev/creditpanel/internal/config"
	"github.com/ericfisherdev/creditpanel/internal/domain/model"
	"github.com/ericfisherdev/creditpanel/internal/domain/port/driven"
)

// stores groups the SQLite-backed repositories.
type stores struct {
	credits     *sqliteadapter.CreditRepo
	listings    *sqliteadapter.ListingRepo
	credentials *sqliteadapter.CredentialRepo
}

// openDB opens the database, runs migrations and builds the repositories.
// The caller closes the returned DB.
func openDB(ctx context.Context, cfg *config.Config) (*sqliteadapter.DB, stores, error) {
	db, err := sqliteadapter.NewDB(ctx, cfg.DBPath)
	if err != nil {
		return nil, stores{}, err
	}
	slog.Info("database opened", "path", cfg.DBPath)

	if err := sqliteadapter.RunMigrations(db.Writer); err != nil {
		_ = db.Close()
		return nil, stores{}, err
	}
	slog.Info("migrations complete")

	credentials, err := sqliteadapter.NewCredentialRepo(db, cfg.SecretKey)
	if err != nil {
		_ = db.Close()
		return nil, stores{}, err
	}

	return db, stores{
		credits:     sqliteadapter.NewCreditRepo(db),
		listings:    sqliteadapter.NewListingRepo(db),
		credentials: credentials,
	}, nil
}

// resolveCredential prefers a stored credential over the environment value.
func resolveCredential(ctx context.Context, store driven.CredentialStore, service, fromEnv string) string {
	stored, err := store.Get(ctx, service)
	if err == nil && stored != "" {
		return stored
	}
	return fromEnv
}

// newLedgerClient builds the gateway client from the resolved API key.
func newLedgerClient(ctx context.Context, cfg *config.Config, credentials driven.CredentialStore) (*ledger.Client, error) {
	apiKey := resolveCredential(ctx, credentials, model.CredentialLedger, cfg.LedgerAPIKey)
	client, err := ledger.NewClient(cfg.LedgerURL, apiKey)
	if err != nil {
		return nil, err
	}
	slog.Info("ledger client created", "url", cfg.LedgerURL, "authenticated", apiKey != "")
	return client, nil
}

// newAnalyzer returns nil when no analyzer key is configured anywhere.
func newAnalyzer(ctx context.Context, cfg *config.Config, credentials driven.CredentialStore) driven.TradingAnalyzer {
	apiKey := resolveCredential(ctx, credentials, model.CredentialGemini, cfg.GeminiAPIKey)
	if apiKey == "" {
		slog.Info("no analysis key configured, analysis disabled until a key is stored")
		return nil
	}

	analyzer, err := gemini.NewAnalyzer(ctx, gemini.Options{APIKey: apiKey, Model: cfg.GeminiModel})
	if err != nil {
		slog.Warn("analysis disabled", "error", err)
		return nil
	}
	slog.Info("analyzer created", "model", analyzer.Model())
	return analyzer
}
