package cli

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/sistemacm/ledger-engine/api"
	"github.com/sistemacm/ledger-engine/app"
	"github.com/sistemacm/ledger-engine/contract"
)

func init() {
	rootCmd.AddCommand(ledgerCmd)
	rootCmd.AddCommand(scenarioCmd)
	scenarioCmd.AddCommand(scenarioLoadCmd)

	ledgerCmd.Flags().String("from", "", "First day (YYYY-MM-DD or DD/MM/YYYY)")
	ledgerCmd.Flags().String("to", "", "Last day (YYYY-MM-DD or DD/MM/YYYY)")
	ledgerCmd.Flags().String("category", "", "Only this category")
	ledgerCmd.Flags().Bool("summary", false, "Totals per category instead of postings")
}

// ─── ledger ─────────────────────────────────────────────────────────────────

var ledgerCmd = &cobra.Command{
	Use:   "ledger",
	Short: "List ledger postings or their totals",
	RunE:  runLedger,
}

func runLedger(cmd *cobra.Command, args []string) error {
	var filter contract.PostingFilter
	for flag, dst := range map[string]*contract.Date{"from": &filter.From, "to": &filter.To} {
		v, _ := cmd.Flags().GetString(flag)
		if v == "" {
			continue
		}
		d, err := contract.ParseDate(v)
		if err != nil {
			return &contract.ValidationError{Field: flag, Message: err.Error()}
		}
		*dst = d
	}
	filter.Category, _ = cmd.Flags().GetString("category")
	summaryOnly, _ := cmd.Flags().GetBool("summary")

	return withApp(cmd, func(ctx context.Context, a *app.App) error {
		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		if summaryOnly {
			s, err := a.Billing.LedgerSummary(ctx, filter)
			if err != nil {
				return err
			}
			fmt.Fprintln(tw, "KIND\tCATEGORY\tCOUNT\tTOTAL")
			for _, c := range s.Categories {
				fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", c.Kind, c.Category, c.Count, c.Total.StringFixed(2))
			}
			fmt.Fprintf(tw, "\t\t\t\nrevenue\t\t\t%s\nexpense\t\t\t%s\nnet\t\t\t%s\n",
				s.Revenue.StringFixed(2), s.Expense.StringFixed(2), s.Net.StringFixed(2))
			return tw.Flush()
		}

		postings, err := a.Billing.Postings(ctx, filter)
		if err != nil {
			return err
		}
		fmt.Fprintln(tw, "DATE\tKIND\tCATEGORY\tAMOUNT\tSTATUS\tDESCRIPTION")
		for _, p := range postings {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
				p.Date.Display(), p.Kind, p.Category, p.Amount.StringFixed(2), p.Status, p.Description)
		}
		return tw.Flush()
	})
}

// ─── scenario ───────────────────────────────────────────────────────────────

var scenarioCmd = &cobra.Command{
	Use:   "scenario",
	Short: "Demo data",
}

var scenarioLoadCmd = &cobra.Command{
	Use:   "load NAME",
	Short: "Load a demo scenario (fresh-sale, partial-payments, finalized, cancelled, reversed-payment)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			ids, err := api.LoadScenario(ctx, a.Billing, args[0], contract.DateOf(time.Now()))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Scenario %s loaded: contracts %v\n", args[0], ids)
			return nil
		})
	},
}
