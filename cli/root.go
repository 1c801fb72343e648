/*
Package cli implements the sistemacm operator command line.

COMMANDS:
  serve                          HTTP API (see api/)
  contract create -f sale.json   Register a sale
  contract show ID               Summary with installments and cashback
  contract list [--status S]     Contracts
  pay ID NUMBER VALUE            Apply a payment to an installment
  cancel ID [--lost V] [--cashback V] [--reason R] [--quote]
  reverse TXID                   Reverse a payment or cancellation (estorno)
  history ID                     Transaction history, newest first
  ledger [--from D] [--to D] [--summary]
  scenario load NAME             Load a demo scenario

GLOBAL FLAGS:
  --config  TOML configuration file (see config/)
  --db      SQLite path, overrides configuration

EXIT CODES:
  0 success, 1 any error (the error kind is printed with the message)
*/
package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sistemacm/ledger-engine/app"
	"github.com/sistemacm/ledger-engine/config"
	"github.com/sistemacm/ledger-engine/contract"
)

var (
	configPath string
	dbPath     string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:           "sistemacm",
	Short:         "Contract lifecycle and financial ledger engine",
	SilenceUsage:  true,
	SilenceErrors: true,
	Long: `sistemacm manages installment contracts: payments, cancellations,
reversals (estorno), cashback release and the revenue/expense ledger.`,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "TOML configuration file")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "SQLite database path (overrides config)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (overrides config)")
}

// Execute runs the root command and exits non-zero on error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, errorLine(err))
		os.Exit(1)
	}
}

// errorLine labels engine errors with their kind. Usage and flag errors
// from cobra carry no kind.
func errorLine(err error) string {
	if contract.Classified(err) {
		return fmt.Sprintf("error (%s): %v", contract.KindOf(err), err)
	}
	return fmt.Sprintf("error: %v", err)
}

// loadConfig applies the global flags on top of config.Load.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if dbPath != "" {
		cfg.Database.Path = dbPath
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	return cfg, cfg.Validate()
}

// withApp opens the engine for the duration of fn.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app.App) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	a, err := app.New(cfg)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(cmd.Context(), a)
}
