package billing

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/sistemacm/ledger-engine/contract"
)

// =============================================================================
// CANCELLATION PROCESSOR
// =============================================================================

type CancellationRequest struct {
	ContractID contract.ContractID
	// LostRevenue overrides the computed default (total - paid) when set.
	LostRevenue *contract.Money
	// CashbackToRelease overrides the cashback record value when set.
	CashbackToRelease *contract.Money
	Reason            string
}

type CancellationResult struct {
	TransactionID         contract.TransactionID
	ContractID            contract.ContractID
	LostRevenue           contract.Money
	RetainedRevenue       contract.Money
	CashbackReleased      contract.Money
	CancelledInstallments int
}

// CancellationQuote holds the defaults shown to the operator before a
// cancellation is confirmed.
type CancellationQuote struct {
	ContractID          contract.ContractID
	TotalValue          contract.Money
	PaidValue           contract.Money
	LostRevenue         contract.Money
	CashbackToRelease   contract.Money
	PendingInstallments int
}

func (r CancellationRequest) validate() error {
	if r.LostRevenue != nil && r.LostRevenue.IsNegative() {
		return &contract.ValidationError{Field: "lost revenue", Message: "must not be negative", Err: contract.ErrInvalidAmount}
	}
	if r.CashbackToRelease != nil && r.CashbackToRelease.IsNegative() {
		return &contract.ValidationError{Field: "cashback to release", Message: "must not be negative", Err: contract.ErrInvalidAmount}
	}
	return nil
}

// CancellationQuote computes the default cancellation values of an Active
// contract.
func (s *Service) CancellationQuote(ctx context.Context, id contract.ContractID) (CancellationQuote, error) {
	c, err := s.store.GetContract(ctx, id)
	if err != nil {
		return CancellationQuote{}, classify("cancellation_quote", err)
	}
	if err := contract.RequireActive(c, "cancel"); err != nil {
		return CancellationQuote{}, err
	}
	insts, err := s.store.ListInstallments(ctx, id)
	if err != nil {
		return CancellationQuote{}, classify("cancellation_quote", err)
	}
	cb, err := s.store.GetCashback(ctx, id)
	if err != nil && !errors.Is(err, contract.ErrCashbackNotFound) {
		return CancellationQuote{}, classify("cancellation_quote", err)
	}
	return quote(c, contract.TallyOf(insts), cb), nil
}

func quote(c contract.Contract, tally contract.Tally, cb contract.Cashback) CancellationQuote {
	lost := c.TotalValue.Sub(tally.PaidValue)
	if lost.IsNegative() {
		lost = decimal.Zero
	}
	return CancellationQuote{
		ContractID:          c.ID,
		TotalValue:          c.TotalValue,
		PaidValue:           tally.PaidValue,
		LostRevenue:         lost,
		CashbackToRelease:   cb.Value,
		PendingInstallments: tally.Pending,
	}
}

// CancelContract cancels an Active contract: pending installments are
// cancelled, paid ones keep their revenue, cashback is released and the
// lost/retained/cashback postings are booked.
func (s *Service) CancelContract(ctx context.Context, req CancellationRequest) (CancellationResult, error) {
	if err := req.validate(); err != nil {
		observeOp("cancel_contract")(err)
		return CancellationResult{}, err
	}

	var (
		result   CancellationResult
		postings []contract.Posting
	)
	err := s.mutate(ctx, "cancel_contract", req.ContractID, func(tx contract.Store) error {
		result, postings = CancellationResult{}, nil

		c, err := tx.GetContract(ctx, req.ContractID)
		if err != nil {
			return err
		}
		prior := c.Status
		if err := contract.Transition(&c, contract.ContractCancelled, contract.CauseCancellation); err != nil {
			return err
		}

		insts, err := tx.ListInstallments(ctx, c.ID)
		if err != nil {
			return err
		}
		cb, err := tx.GetCashback(ctx, c.ID)
		hasCashback := err == nil
		if err != nil && !errors.Is(err, contract.ErrCashbackNotFound) {
			return err
		}

		q := quote(c, contract.TallyOf(insts), cb)
		lost, cashback := q.LostRevenue, q.CashbackToRelease
		if req.LostRevenue != nil {
			lost = *req.LostRevenue
		}
		if req.CashbackToRelease != nil {
			cashback = *req.CashbackToRelease
		}
		if !hasCashback {
			cashback = decimal.Zero
		}

		if err := tx.SetContractStatus(ctx, c.ID, c.Status); err != nil {
			return err
		}

		var cancelled []string
		for _, inst := range insts {
			if inst.Status != contract.InstallmentPending {
				continue
			}
			if err := inst.Cancel(); err != nil {
				return err
			}
			if err := tx.UpdateInstallment(ctx, inst); err != nil {
				return err
			}
			cancelled = append(cancelled, strconv.FormatInt(int64(inst.ID), 10))
		}

		today := s.today()
		if hasCashback {
			if err := cb.Release(c.Status, today); err != nil {
				return err
			}
			if err := tx.UpdateCashback(ctx, cb); err != nil {
				return err
			}
		}

		txID, err := s.newTransactionID(ctx, tx)
		if err != nil {
			return err
		}

		entry := contract.HistoryEntry{
			TransactionID: txID,
			Type:          contract.TxContractCancelled,
			ContractID:    c.ID,
			OriginalValue: c.TotalValue,
			AppliedValue:  lost,
			PriorStatus:   string(prior),
			NewStatus:     string(c.Status),
			Date:          today,
			CreatedAt:     s.now(),
			Notes:         req.Reason,
			Reversible:    true,
			Metadata: map[string]string{
				contract.MetaCancelledInstallments: strings.Join(cancelled, ","),
				contract.MetaRetainedRevenue:       q.PaidValue.String(),
				contract.MetaCashbackReleased:      cashback.String(),
			},
		}
		if err := tx.AppendHistory(ctx, entry); err != nil {
			return err
		}

		postings = cancellationPostings(c, txID, today, s.now(), req.Reason, lost, q.PaidValue, cashback)
		if err := book(ctx, tx, postings); err != nil {
			return err
		}

		result = CancellationResult{
			TransactionID:         txID,
			ContractID:            c.ID,
			LostRevenue:           lost,
			RetainedRevenue:       q.PaidValue,
			CashbackReleased:      cashback,
			CancelledInstallments: len(cancelled),
		}
		return nil
	})
	if err != nil {
		return CancellationResult{}, err
	}

	countPostings(postings)
	s.logger.Info("contract cancelled",
		"contract_id", result.ContractID,
		"transaction_id", result.TransactionID,
		"lost_revenue", result.LostRevenue.StringFixed(2),
		"retained_revenue", result.RetainedRevenue.StringFixed(2),
		"cashback", result.CashbackReleased.StringFixed(2),
	)
	return result, nil
}

func cancellationPostings(c contract.Contract, txID contract.TransactionID, on contract.Date, at time.Time, reason string, lost, retained, cashback contract.Money) []contract.Posting {
	var out []contract.Posting
	if lost.IsPositive() {
		out = append(out, contract.Posting{
			Kind:          contract.PostingRevenue,
			Date:          on,
			Category:      contract.CategoryLostRevenue,
			Description:   describe(txID, "Cancellation - contract #%d - lost revenue", c.ID),
			Amount:        lost.Neg(),
			Status:        contract.PostingCancelled,
			Notes:         reason,
			TransactionID: txID,
			ContractID:    c.ID,
			CreatedAt:     at,
		})
	}
	if retained.IsPositive() {
		out = append(out, contract.Posting{
			Kind:          contract.PostingRevenue,
			Date:          on,
			Category:      contract.CategoryRetainedRevenue,
			Description:   describe(txID, "Cancellation - contract #%d - amount already received", c.ID),
			Amount:        retained,
			Status:        contract.PostingReceived,
			Notes:         reason,
			TransactionID: txID,
			ContractID:    c.ID,
			CreatedAt:     at,
		})
	}
	if cashback.IsPositive() {
		out = append(out, contract.Posting{
			Kind:          contract.PostingExpense,
			Date:          on,
			Category:      contract.CategoryCashbackRelease,
			Description:   describe(txID, "Cashback release - cancellation of contract #%d", c.ID),
			Amount:        cashback,
			Status:        contract.PostingReleased,
			Notes:         reason,
			TransactionID: txID,
			ContractID:    c.ID,
			CreatedAt:     at,
		})
	}
	return out
}
