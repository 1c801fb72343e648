package billing

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/sistemacm/ledger-engine/contract"
)

// =============================================================================
// REVERSAL (ESTORNO) ENGINE
// =============================================================================

type ReversalResult struct {
	ReversalID           contract.TransactionID
	ReversedID           contract.TransactionID
	ReversedType         contract.TransactionType
	ContractID           contract.ContractID
	ContractStatus       contract.ContractStatus
	RestoredInstallments int
	CashbackHeld         bool
}

// ReverseTransaction undoes a PaymentApplied or ContractCancelled entry.
//
// The original entry is flagged non-reversible inside the same unit of work
// that restores state, so a second reversal of the same id always fails
// with NotReversibleError. The undo itself is documented by a new,
// non-reversible ReversalApplied entry with id "EST_<original>".
//
// Reversing a payment that left the contract Finalized reopens it and
// returns the cashback to Held. Reversing a payment on a Cancelled contract
// is rejected: the cancellation has to be reversed first.
func (s *Service) ReverseTransaction(ctx context.Context, id contract.TransactionID) (ReversalResult, error) {
	entry, err := s.store.GetHistory(ctx, id)
	if errors.Is(err, contract.ErrTransactionNotFound) {
		err = &contract.NotReversibleError{TransactionID: id, Reason: "transaction not found", Missing: true}
		observeOp("reverse_transaction")(err)
		return ReversalResult{}, err
	}
	if err != nil {
		err = classify("reverse_transaction", err)
		observeOp("reverse_transaction")(err)
		return ReversalResult{}, err
	}

	var (
		result   ReversalResult
		postings []contract.Posting
	)
	err = s.mutate(ctx, "reverse_transaction", entry.ContractID, func(tx contract.Store) error {
		result, postings = ReversalResult{}, nil

		// Re-read under the lock; another reversal may have won the race.
		entry, err := tx.GetHistory(ctx, id)
		if err != nil {
			return err
		}
		if err := checkReversible(entry); err != nil {
			return err
		}
		flipped, err := tx.MarkNotReversible(ctx, id)
		if err != nil {
			return err
		}
		if !flipped {
			return &contract.NotReversibleError{TransactionID: id, Reason: "already reversed"}
		}

		c, err := tx.GetContract(ctx, entry.ContractID)
		if err != nil {
			return err
		}

		rev := reversal{
			svc:   s,
			tx:    tx,
			entry: entry,
			c:     c,
			id:    reversalID(id),
			today: s.today(),
		}
		switch entry.Type {
		case contract.TxPaymentApplied:
			err = rev.payment(ctx)
		case contract.TxContractCancelled:
			err = rev.cancellation(ctx)
		default:
			err = &contract.NotReversibleError{TransactionID: id, Reason: fmt.Sprintf("type %s cannot be reversed", entry.Type)}
		}
		if err != nil {
			return err
		}

		undo := contract.HistoryEntry{
			TransactionID: rev.id,
			Type:          contract.TxReversalApplied,
			ContractID:    entry.ContractID,
			InstallmentID: entry.InstallmentID,
			OriginalValue: entry.AppliedValue,
			AppliedValue:  entry.OriginalValue,
			PriorStatus:   entry.NewStatus,
			NewStatus:     entry.PriorStatus,
			Date:          rev.today,
			CreatedAt:     s.now(),
			Notes:         fmt.Sprintf("reversal of %s (%s)", id, entry.Type),
			Reversible:    false,
			Metadata: map[string]string{
				contract.MetaReversedTransaction: string(id),
				contract.MetaReversedType:        string(entry.Type),
			},
		}
		if err := tx.AppendHistory(ctx, undo); err != nil {
			return err
		}
		if err := book(ctx, tx, rev.postings); err != nil {
			return err
		}

		postings = rev.postings
		result = ReversalResult{
			ReversalID:           rev.id,
			ReversedID:           id,
			ReversedType:         entry.Type,
			ContractID:           entry.ContractID,
			ContractStatus:       rev.c.Status,
			RestoredInstallments: rev.restored,
			CashbackHeld:         rev.held,
		}
		return nil
	})
	if err != nil {
		return ReversalResult{}, err
	}

	countPostings(postings)
	s.logger.Info("transaction reversed",
		"contract_id", result.ContractID,
		"transaction_id", result.ReversedID,
		"reversal_id", result.ReversalID,
		"type", result.ReversedType,
		"contract_status", result.ContractStatus,
	)
	return result, nil
}

func checkReversible(e contract.HistoryEntry) error {
	if e.Type == contract.TxReversalApplied {
		return &contract.NotReversibleError{TransactionID: e.TransactionID, Reason: "reversal entries cannot be reversed"}
	}
	if !e.Reversible {
		return &contract.NotReversibleError{TransactionID: e.TransactionID, Reason: "already reversed"}
	}
	return nil
}

// reversal carries the state of one undo through its dispatch.
type reversal struct {
	svc   *Service
	tx    contract.Store
	entry contract.HistoryEntry
	c     contract.Contract
	id    contract.TransactionID
	today contract.Date

	postings []contract.Posting
	restored int
	held     bool
}

// payment restores the installment to Pending with its prior amount and
// books a negative offset of the applied value.
func (r *reversal) payment(ctx context.Context) error {
	if r.c.Status == contract.ContractCancelled {
		return &contract.InvalidStateError{Op: "reverse payment on", Entity: "contract", ID: int64(r.c.ID), Current: string(r.c.Status)}
	}
	if r.entry.InstallmentID == nil {
		return fmt.Errorf("payment entry %s has no installment", r.entry.TransactionID)
	}

	inst, err := r.tx.GetInstallmentByID(ctx, *r.entry.InstallmentID)
	if err != nil {
		return err
	}
	if inst.Status != contract.InstallmentPaid {
		return &contract.InvalidStateError{Op: "reverse payment of", Entity: "installment", ID: int64(inst.ID), Current: string(inst.Status)}
	}
	if err := inst.Restore(r.entry.OriginalValue); err != nil {
		return err
	}
	if err := r.tx.UpdateInstallment(ctx, inst); err != nil {
		return err
	}
	r.restored = 1

	if r.c.Status == contract.ContractFinalized {
		if err := r.reopen(ctx); err != nil {
			return err
		}
	}

	r.post(contract.PostingRevenue, r.entry.AppliedValue.Neg(),
		"Reversal of installment %d payment - contract #%d", inst.Number, r.c.ID)
	return nil
}

// cancellation reactivates the contract, restores the installments this
// cancellation cancelled and offsets every posting it booked.
func (r *reversal) cancellation(ctx context.Context) error {
	if r.c.Status != contract.ContractCancelled {
		return &contract.InvalidStateError{Op: "reverse cancellation of", Entity: "contract", ID: int64(r.c.ID), Current: string(r.c.Status)}
	}
	if err := r.reopen(ctx); err != nil {
		return err
	}

	for _, raw := range splitIDs(r.entry.Metadata[contract.MetaCancelledInstallments]) {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return fmt.Errorf("entry %s: bad installment id %q: %w", r.entry.TransactionID, raw, err)
		}
		inst, err := r.tx.GetInstallmentByID(ctx, contract.InstallmentID(n))
		if err != nil {
			return err
		}
		if inst.Status != contract.InstallmentCancelled {
			continue
		}
		if err := inst.Restore(inst.Amount); err != nil {
			return err
		}
		if err := r.tx.UpdateInstallment(ctx, inst); err != nil {
			return err
		}
		r.restored++
	}

	lost := r.entry.AppliedValue
	if lost.IsPositive() {
		r.post(contract.PostingRevenue, lost, "Reversal of cancellation - contract #%d - lost revenue", r.c.ID)
	}
	if retained := metaMoney(r.entry.Metadata, contract.MetaRetainedRevenue); retained.IsPositive() {
		r.post(contract.PostingRevenue, retained.Neg(), "Reversal of cancellation - contract #%d - retained revenue", r.c.ID)
	}
	if cashback := metaMoney(r.entry.Metadata, contract.MetaCashbackReleased); cashback.IsPositive() {
		r.post(contract.PostingExpense, cashback.Neg(), "Reversal of cancellation - contract #%d - cashback release", r.c.ID)
	}
	return nil
}

// reopen moves a terminal contract back to Active and its cashback to Held.
func (r *reversal) reopen(ctx context.Context) error {
	if err := contract.Transition(&r.c, contract.ContractActive, contract.CauseReversal); err != nil {
		return err
	}
	if err := r.tx.SetContractStatus(ctx, r.c.ID, r.c.Status); err != nil {
		return err
	}

	cb, err := r.tx.GetCashback(ctx, r.c.ID)
	if errors.Is(err, contract.ErrCashbackNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if cb.Status != contract.CashbackReleased {
		return nil
	}
	if err := cb.Hold(r.c.Status); err != nil {
		return err
	}
	if err := r.tx.UpdateCashback(ctx, cb); err != nil {
		return err
	}
	r.held = true
	return nil
}

func (r *reversal) post(kind contract.PostingKind, amount contract.Money, format string, args ...any) {
	r.postings = append(r.postings, contract.Posting{
		Kind:          kind,
		Date:          r.today,
		Category:      contract.CategoryReversal,
		Description:   describe(r.entry.TransactionID, format, args...),
		Amount:        amount,
		Status:        contract.PostingReversed,
		Notes:         "reversal " + string(r.id),
		TransactionID: r.id,
		ContractID:    r.c.ID,
		CreatedAt:     r.svc.now(),
	})
}

func splitIDs(csv string) []string {
	if csv == "" {
		return nil
	}
	return strings.Split(csv, ",")
}

func metaMoney(meta map[string]string, key string) contract.Money {
	v, ok := meta[key]
	if !ok {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		return decimal.Zero
	}
	return d
}
