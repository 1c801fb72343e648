package cli

import (
	"context"
	"fmt"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sistemacm/ledger-engine/app"
	"github.com/sistemacm/ledger-engine/billing"
	"github.com/sistemacm/ledger-engine/contract"
)

func init() {
	rootCmd.AddCommand(payCmd)
	rootCmd.AddCommand(cancelCmd)
	rootCmd.AddCommand(reverseCmd)
	rootCmd.AddCommand(historyCmd)

	payCmd.Flags().String("notes", "", "Payment notes")
	cancelCmd.Flags().String("lost", "", "Lost revenue (default: total - paid)")
	cancelCmd.Flags().String("cashback", "", "Cashback to release (default: cashback record value)")
	cancelCmd.Flags().String("reason", "", "Cancellation reason")
	cancelCmd.Flags().Bool("quote", false, "Only show the default values, do not cancel")
}

// ─── pay ────────────────────────────────────────────────────────────────────

var payCmd = &cobra.Command{
	Use:   "pay CONTRACT_ID INSTALLMENT_NUMBER VALUE",
	Short: "Apply a payment to a pending installment",
	Long: `Apply a payment. VALUE replaces the installment's nominal amount and
accepts "240.00", "240,00" or "R$ 1.240,00". When the payment settles the
schedule, the contract is finalized and its cashback released.`,
	Args: cobra.ExactArgs(3),
	RunE: runPay,
}

func runPay(cmd *cobra.Command, args []string) error {
	id, err := parseContractID(args[0])
	if err != nil {
		return err
	}
	number, err := strconv.Atoi(args[1])
	if err != nil {
		return &contract.ValidationError{Field: "installment number", Message: err.Error()}
	}
	value, err := parseMoneyArg("value", args[2])
	if err != nil {
		return err
	}
	notes, _ := cmd.Flags().GetString("notes")

	return withApp(cmd, func(ctx context.Context, a *app.App) error {
		res, err := a.Billing.ApplyPayment(ctx, billing.PaymentRequest{
			ContractID:        id,
			InstallmentNumber: number,
			AppliedValue:      value,
			Notes:             notes,
		})
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Payment %s: installment %d of contract #%d paid %s (was %s)\n",
			res.TransactionID, res.InstallmentNumber, res.ContractID, res.AppliedAmount.StringFixed(2), res.PriorAmount.StringFixed(2))
		if res.ContractFinalized {
			fmt.Fprintf(out, "Contract finalized; cashback released: %s\n", res.CashbackReleased.StringFixed(2))
		} else {
			fmt.Fprintf(out, "%d installment(s) pending\n", res.RemainingPending)
		}
		return nil
	})
}

// ─── cancel ─────────────────────────────────────────────────────────────────

var cancelCmd = &cobra.Command{
	Use:   "cancel CONTRACT_ID",
	Short: "Cancel an active contract",
	Args:  cobra.ExactArgs(1),
	RunE:  runCancel,
}

func runCancel(cmd *cobra.Command, args []string) error {
	id, err := parseContractID(args[0])
	if err != nil {
		return err
	}
	req := billing.CancellationRequest{ContractID: id}
	req.Reason, _ = cmd.Flags().GetString("reason")
	if v, _ := cmd.Flags().GetString("lost"); v != "" {
		m, err := parseMoneyArg("lost revenue", v)
		if err != nil {
			return err
		}
		req.LostRevenue = &m
	}
	if v, _ := cmd.Flags().GetString("cashback"); v != "" {
		m, err := parseMoneyArg("cashback to release", v)
		if err != nil {
			return err
		}
		req.CashbackToRelease = &m
	}
	quoteOnly, _ := cmd.Flags().GetBool("quote")

	return withApp(cmd, func(ctx context.Context, a *app.App) error {
		out := cmd.OutOrStdout()
		if quoteOnly {
			q, err := a.Billing.CancellationQuote(ctx, id)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Contract #%d  total %s  paid %s\n", q.ContractID, q.TotalValue.StringFixed(2), q.PaidValue.StringFixed(2))
			fmt.Fprintf(out, "Lost revenue: %s\nCashback to release: %s\nPending installments: %d\n",
				q.LostRevenue.StringFixed(2), q.CashbackToRelease.StringFixed(2), q.PendingInstallments)
			return nil
		}

		res, err := a.Billing.CancelContract(ctx, req)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Cancellation %s: contract #%d cancelled, %d installment(s) cancelled\n",
			res.TransactionID, res.ContractID, res.CancelledInstallments)
		fmt.Fprintf(out, "Lost revenue: %s  Retained: %s  Cashback released: %s\n",
			res.LostRevenue.StringFixed(2), res.RetainedRevenue.StringFixed(2), res.CashbackReleased.StringFixed(2))
		return nil
	})
}

// ─── reverse ────────────────────────────────────────────────────────────────

var reverseCmd = &cobra.Command{
	Use:     "reverse TRANSACTION_ID",
	Aliases: []string{"estorno"},
	Short:   "Reverse a payment or cancellation",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			res, err := a.Billing.ReverseTransaction(ctx, contract.TransactionID(args[0]))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Reversal %s of %s (%s): contract #%d is %s, %d installment(s) restored\n",
				res.ReversalID, res.ReversedID, res.ReversedType, res.ContractID, res.ContractStatus, res.RestoredInstallments)
			return nil
		})
	},
}

// ─── history ────────────────────────────────────────────────────────────────

var historyCmd = &cobra.Command{
	Use:   "history CONTRACT_ID",
	Short: "Show a contract's transaction history, newest first",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseContractID(args[0])
		if err != nil {
			return err
		}
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			entries, err := a.Billing.History(ctx, id)
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No transactions.")
				return nil
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tTYPE\tDATE\tORIGINAL\tAPPLIED\tSTATUS\tREVERSIBLE")
			for _, e := range entries {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s -> %s\t%t\n",
					e.TransactionID, e.Type, e.Date.Display(), e.OriginalValue.StringFixed(2), e.AppliedValue.StringFixed(2),
					e.PriorStatus, e.NewStatus, e.Reversible)
			}
			return tw.Flush()
		})
	},
}

// ─── helpers ────────────────────────────────────────────────────────────────

func parseContractID(s string) (contract.ContractID, error) {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n <= 0 {
		return 0, &contract.ValidationError{Field: "contract id", Message: fmt.Sprintf("%q is not a contract id", s)}
	}
	return contract.ContractID(n), nil
}

func parseMoneyArg(field, s string) (contract.Money, error) {
	m, err := contract.ParseMoney(s)
	if err != nil {
		return contract.Money{}, &contract.ValidationError{Field: field, Message: err.Error(), Err: contract.ErrInvalidAmount}
	}
	return m, nil
}
