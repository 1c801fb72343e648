package billing

import (
	"context"
	"errors"
	"strconv"

	"github.com/sistemacm/ledger-engine/contract"
)

// =============================================================================
// PAYMENT PROCESSOR
// =============================================================================

type PaymentRequest struct {
	ContractID        contract.ContractID
	InstallmentNumber int
	// AppliedValue overwrites the installment's nominal amount.
	AppliedValue contract.Money
	Notes        string
}

type PaymentResult struct {
	TransactionID     contract.TransactionID
	ContractID        contract.ContractID
	InstallmentNumber int
	PriorAmount       contract.Money
	AppliedAmount     contract.Money
	ContractStatus    contract.ContractStatus
	RemainingPending  int
	ContractFinalized bool
	CashbackReleased  contract.Money
}

// ApplyPayment settles one Pending installment with the operator-entered
// value, records a reversible history entry and books the revenue. When the
// payment settles the schedule the contract is finalized and its cashback
// released in the same unit of work.
func (s *Service) ApplyPayment(ctx context.Context, req PaymentRequest) (PaymentResult, error) {
	if !req.AppliedValue.IsPositive() {
		err := &contract.ValidationError{Field: "applied value", Message: "must be greater than zero", Err: contract.ErrInvalidAmount}
		observeOp("apply_payment")(err)
		return PaymentResult{}, err
	}

	var (
		result   PaymentResult
		postings []contract.Posting
	)
	err := s.mutate(ctx, "apply_payment", req.ContractID, func(tx contract.Store) error {
		result, postings = PaymentResult{}, nil

		c, err := tx.GetContract(ctx, req.ContractID)
		if err != nil {
			return err
		}
		if err := contract.RequireActive(c, "pay"); err != nil {
			return err
		}

		inst, err := tx.GetInstallment(ctx, c.ID, req.InstallmentNumber)
		if errors.Is(err, contract.ErrInstallmentNotFound) {
			return &contract.InstallmentUnavailableError{ContractID: c.ID, Number: req.InstallmentNumber}
		}
		if err != nil {
			return err
		}

		prior := inst
		today := s.today()
		if err := inst.Pay(req.AppliedValue, today); err != nil {
			return err
		}
		if err := tx.UpdateInstallment(ctx, inst); err != nil {
			return err
		}

		txID, err := s.newTransactionID(ctx, tx)
		if err != nil {
			return err
		}

		all, err := tx.ListInstallments(ctx, c.ID)
		if err != nil {
			return err
		}
		tally := contract.TallyOf(all)

		released := contract.Money{}
		if tally.Settled() {
			if err := contract.Transition(&c, contract.ContractFinalized, contract.CausePayment); err != nil {
				return err
			}
			if err := tx.SetContractStatus(ctx, c.ID, c.Status); err != nil {
				return err
			}
			if released, err = s.releaseCashback(ctx, tx, c, today); err != nil {
				return err
			}
		}

		entry := contract.HistoryEntry{
			TransactionID: txID,
			Type:          contract.TxPaymentApplied,
			ContractID:    c.ID,
			InstallmentID: &inst.ID,
			OriginalValue: prior.Amount,
			AppliedValue:  inst.Amount,
			PriorStatus:   string(prior.Status),
			NewStatus:     string(inst.Status),
			Date:          today,
			CreatedAt:     s.now(),
			Notes:         req.Notes,
			Reversible:    true,
			Metadata: map[string]string{
				contract.MetaFinalizedContract: strconv.FormatBool(tally.Settled()),
				contract.MetaCashbackReleased:  released.String(),
			},
		}
		if err := tx.AppendHistory(ctx, entry); err != nil {
			return err
		}

		postings = []contract.Posting{{
			Kind:          contract.PostingRevenue,
			Date:          today,
			Category:      contract.CategoryInstallmentRevenue,
			Description:   describe(txID, "Installment %d/%d - contract #%d", inst.Number, tally.Total, c.ID),
			Amount:        inst.Amount,
			Status:        contract.PostingReceived,
			Notes:         req.Notes,
			TransactionID: txID,
			ContractID:    c.ID,
			CreatedAt:     s.now(),
		}}
		if err := book(ctx, tx, postings); err != nil {
			return err
		}

		result = PaymentResult{
			TransactionID:     txID,
			ContractID:        c.ID,
			InstallmentNumber: inst.Number,
			PriorAmount:       prior.Amount,
			AppliedAmount:     inst.Amount,
			ContractStatus:    c.Status,
			RemainingPending:  tally.Pending,
			ContractFinalized: tally.Settled(),
			CashbackReleased:  released,
		}
		return nil
	})
	if err != nil {
		return PaymentResult{}, err
	}

	countPostings(postings)
	s.logger.Info("payment applied",
		"contract_id", result.ContractID,
		"installment", result.InstallmentNumber,
		"transaction_id", result.TransactionID,
		"amount", result.AppliedAmount.StringFixed(2),
		"finalized", result.ContractFinalized,
	)
	return result, nil
}

// releaseCashback releases the contract's cashback and returns its value.
// A contract sold without a cashback record releases nothing.
func (s *Service) releaseCashback(ctx context.Context, tx contract.Store, c contract.Contract, on contract.Date) (contract.Money, error) {
	cb, err := tx.GetCashback(ctx, c.ID)
	if errors.Is(err, contract.ErrCashbackNotFound) {
		s.logger.Debug("no cashback record", "contract_id", c.ID)
		return contract.Money{}, nil
	}
	if err != nil {
		return contract.Money{}, err
	}
	if cb.Status == contract.CashbackReleased {
		return contract.Money{}, nil
	}
	if err := cb.Release(c.Status, on); err != nil {
		return contract.Money{}, err
	}
	if err := tx.UpdateCashback(ctx, cb); err != nil {
		return contract.Money{}, err
	}
	return cb.Value, nil
}
