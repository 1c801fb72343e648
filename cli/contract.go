package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sistemacm/ledger-engine/app"
	"github.com/sistemacm/ledger-engine/contract"
	"github.com/sistemacm/ledger-engine/factory"
)

// ─── contract ───────────────────────────────────────────────────────────────

func init() {
	rootCmd.AddCommand(contractCmd)
	contractCmd.AddCommand(contractCreateCmd)
	contractCmd.AddCommand(contractShowCmd)
	contractCmd.AddCommand(contractListCmd)

	contractCreateCmd.Flags().StringP("file", "f", "", "Sale JSON document (- for stdin)")
	_ = contractCreateCmd.MarkFlagRequired("file")
	contractListCmd.Flags().String("status", "", "Filter by status (Active, Finalized, Cancelled)")
}

var contractCmd = &cobra.Command{
	Use:   "contract",
	Short: "Register and inspect contracts",
}

var contractCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Register a sale from a JSON document",
	Long: `Register a sale: the contract, its monthly installment schedule and its
held cashback record are created together.

Document fields: client_id, product_id, store_id, sale_date, total_value,
installments, cashback_value, first_due_date, notes.`,
	RunE: runContractCreate,
}

func runContractCreate(cmd *cobra.Command, args []string) error {
	path, _ := cmd.Flags().GetString("file")
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(cmd.InOrStdin())
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return fmt.Errorf("read sale document: %w", err)
	}

	in, err := factory.NewSaleFactory().ParseSale(data)
	if err != nil {
		return err
	}
	return withApp(cmd, func(ctx context.Context, a *app.App) error {
		sale, err := a.Billing.CreateSale(ctx, in)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Contract #%d registered: %s in %d installments\n",
			sale.Contract.ID, sale.Contract.TotalValue.StringFixed(2), len(sale.Installments))
		printInstallments(cmd.OutOrStdout(), sale.Installments)
		return nil
	})
}

var contractShowCmd = &cobra.Command{
	Use:   "show CONTRACT_ID",
	Short: "Show a contract with its installments and cashback",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseContractID(args[0])
		if err != nil {
			return err
		}
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			s, err := a.Billing.ContractSummary(ctx, id)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			c := s.Contract
			fmt.Fprintf(out, "Contract #%d  client %d  product %d  sold %s\n", c.ID, c.ClientID, c.ProductID, c.SaleDate.Display())
			fmt.Fprintf(out, "Status: %s  Total: %s  Paid: %s (%d/%d)\n",
				c.Status, c.TotalValue.StringFixed(2), s.Tally.PaidValue.StringFixed(2), s.Tally.Paid, s.Tally.Total)
			if s.Cashback != nil {
				fmt.Fprintf(out, "Cashback: %s %s\n", s.Cashback.Value.StringFixed(2), s.Cashback.Status)
			}
			printInstallments(out, s.Installments)
			return nil
		})
	},
}

var contractListCmd = &cobra.Command{
	Use:   "list",
	Short: "List contracts",
	RunE: func(cmd *cobra.Command, args []string) error {
		var filter contract.ContractFilter
		if v, _ := cmd.Flags().GetString("status"); v != "" {
			status := contract.ContractStatus(v)
			if !status.Valid() {
				return &contract.ValidationError{Field: "status", Message: fmt.Sprintf("unknown status %q", v)}
			}
			filter.Status = &status
		}
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			contracts, err := a.Billing.ListContracts(ctx, filter)
			if err != nil {
				return err
			}
			if len(contracts) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No contracts.")
				return nil
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tCLIENT\tSOLD\tTOTAL\tINSTALLMENTS\tSTATUS")
			for _, c := range contracts {
				fmt.Fprintf(tw, "%d\t%d\t%s\t%s\t%d\t%s\n",
					c.ID, c.ClientID, c.SaleDate.Display(), c.TotalValue.StringFixed(2), c.InstallmentCount, c.Status)
			}
			return tw.Flush()
		})
	},
}

func printInstallments(w io.Writer, insts []contract.Installment) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tDUE\tAMOUNT\tSTATUS\tPAID ON")
	for _, inst := range insts {
		paidOn := "-"
		if inst.PaidOn != nil {
			paidOn = inst.PaidOn.Display()
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", inst.Number, inst.DueDate.Display(), inst.Amount.StringFixed(2), inst.Status, paidOn)
	}
	tw.Flush()
}
