/*
Package app wires the engine together from a Config.

PURPOSE:
  Shared by the HTTP server and the CLI so both run the exact same store,
  logger and billing service. There is no other construction path for a
  production Service.

STARTUP SEQUENCE:
  1. Build the slog logger from [log]
  2. Open the SQLite store (migrations run on open)
  3. Build the billing service on top of it

SEE ALSO:
  - config/config.go: Config layers
  - cli/serve.go: HTTP server startup
*/
package app

import (
	"fmt"
	"log/slog"

	"github.com/sistemacm/ledger-engine/billing"
	"github.com/sistemacm/ledger-engine/config"
	"github.com/sistemacm/ledger-engine/internal/logging"
	"github.com/sistemacm/ledger-engine/store/sqlite"
)

type App struct {
	Config  *config.Config
	Logger  *slog.Logger
	Store   *sqlite.Store
	Billing *billing.Service
}

// New opens the database and builds the service. Callers must Close the App.
func New(cfg *config.Config) (*App, error) {
	logger := logging.New(cfg.Log.Level, cfg.Log.Format)

	store, err := sqlite.New(cfg.Database.Path, sqlite.WithLogger(logger.With("component", "store")))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	svc := billing.NewService(store, billing.WithLogger(logger.With("component", "billing")))
	logger.Debug("engine ready", "db", cfg.Database.Path)

	return &App{
		Config:  cfg,
		Logger:  logger,
		Store:   store,
		Billing: svc,
	}, nil
}

func (a *App) Close() error {
	return a.Store.Close()
}
