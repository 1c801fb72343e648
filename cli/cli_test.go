package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sistemacm/ledger-engine/contract"
)

// run executes the command tree against a file database in a temp dir.
func run(t *testing.T, db string, args ...string) (string, error) {
	t.Helper()
	resetFlags(rootCmd)
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(append([]string{"--db", db, "--log-level", "error"}, args...))
	err := rootCmd.Execute()
	return out.String(), err
}

// resetFlags restores defaults; cobra keeps flag values between Execute calls.
func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	cmd.PersistentFlags().VisitAll(reset)
	cmd.Flags().VisitAll(reset)
	for _, sub := range cmd.Commands() {
		resetFlags(sub)
	}
}

func TestCLI_SaleToReversal(t *testing.T) {
	// GIVEN: A sale registered from a JSON file
	// WHEN: Paying, reversing and reading history through the CLI
	// THEN: Every command succeeds against the same database
	dir := t.TempDir()
	db := filepath.Join(dir, "cm.db")
	sale := filepath.Join(dir, "sale.json")
	require.NoError(t, os.WriteFile(sale, []byte(`{"client_id":1,"product_id":1,"sale_date":"05/01/2024","total_value":"300","installments":3,"cashback_value":"15"}`), 0o600))

	out, err := run(t, db, "contract", "create", "-f", sale)
	require.NoError(t, err)
	assert.Contains(t, out, "Contract #1 registered: 300.00 in 3 installments")

	out, err = run(t, db, "pay", "1", "1", "R$ 95,50")
	require.NoError(t, err)
	assert.Contains(t, out, "paid 95.50 (was 100.00)")

	txID := regexp.MustCompile(`Payment (\S+):`).FindStringSubmatch(out)
	require.Len(t, txID, 2)

	out, err = run(t, db, "reverse", txID[1])
	require.NoError(t, err)
	assert.Contains(t, out, "Reversal EST_"+txID[1])

	out, err = run(t, db, "history", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "ReversalApplied")
	assert.Contains(t, out, "PaymentApplied")

	_, err = run(t, db, "reverse", txID[1])
	assert.ErrorIs(t, err, contract.ErrNotReversible)
}

func TestCLI_CancelQuoteAndLedgerSummary(t *testing.T) {
	db := filepath.Join(t.TempDir(), "cm.db")
	sale := filepath.Join(t.TempDir(), "sale.json")
	require.NoError(t, os.WriteFile(sale, []byte(`{"client_id":2,"product_id":1,"sale_date":"2024-01-05","total_value":"1000","installments":4,"cashback_value":"50"}`), 0o600))
	_, err := run(t, db, "contract", "create", "-f", sale)
	require.NoError(t, err)
	_, err = run(t, db, "pay", "1", "1", "250")
	require.NoError(t, err)

	out, err := run(t, db, "cancel", "1", "--quote")
	require.NoError(t, err)
	assert.Contains(t, out, "Lost revenue: 750.00")

	out, err = run(t, db, "cancel", "1", "--reason", "moved away")
	require.NoError(t, err)
	assert.Contains(t, out, "Retained: 250.00")

	out, err = run(t, db, "ledger", "--summary")
	require.NoError(t, err)
	assert.Regexp(t, `net\s+-300.00`, out)
}

func TestCLI_Rejections(t *testing.T) {
	db := filepath.Join(t.TempDir(), "cm.db")

	_, err := run(t, db, "pay", "x", "1", "10")
	assert.ErrorIs(t, err, contract.ErrValidation)

	_, err = run(t, db, "pay", "1", "1", "dez reais")
	assert.ErrorIs(t, err, contract.ErrInvalidAmount)

	_, err = run(t, db, "contract", "show", "99")
	assert.ErrorIs(t, err, contract.ErrNotFound)

	_, err = run(t, db, "ledger", "--from", "2024-04-01", "--to", "2024-03-01")
	assert.ErrorIs(t, err, contract.ErrValidation)
}

func TestErrorLine_KindOnlyForEngineErrors(t *testing.T) {
	db := filepath.Join(t.TempDir(), "cm.db")

	_, err := run(t, db, "pay", "1")
	require.Error(t, err)
	assert.Equal(t, "error: "+err.Error(), errorLine(err))

	_, err = run(t, db, "contract", "show", "99")
	require.Error(t, err)
	assert.Contains(t, errorLine(err), "error (not_found):")
}
