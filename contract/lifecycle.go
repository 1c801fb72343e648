/*
lifecycle.go - State machine for contracts, installments and cashback

PURPOSE:
  All status changes go through this file. Processors never assign a
  Status field directly; they call Transition, Pay, Cancel, Restore,
  Release or Hold, which check the source state and return an
  InvalidStateError when the move is not allowed.

CONTRACT STATES:

      +--------- payment (settled) ---------> Finalized
      |                                          |
   Active <------------- reversal ---------------+
      |                                          |
      +------------- cancellation ----------> Cancelled

  Finalized and Cancelled are terminal for payments and cancellations.
  Only a reversal may bring a contract back to Active.

SETTLEMENT RULE:
  After any installment status change the engine recomputes a Tally:
  paid + cancelled == total AND paid > 0 finalizes the contract.
  A contract whose installments were all cancelled (paid == 0) is not
  finalized by the tally; it is cancelled only through cancelContract.

CASHBACK:
  Held until the contract reaches an outcome. Release requires a terminal
  contract; Hold (reversal only) requires an Active one.

SEE ALSO:
  - billing/payment.go, billing/cancellation.go, billing/reversal.go
*/
package contract

// =============================================================================
// TALLY - aggregate installment counts
// =============================================================================

// Tally is the installment aggregate the settlement rule runs on.
type Tally struct {
	Total     int
	Paid      int
	Cancelled int
	Pending   int
	PaidValue Money
}

// TallyOf counts installments by status and sums the amounts of paid ones.
func TallyOf(installments []Installment) Tally {
	var t Tally
	for _, inst := range installments {
		t.Total++
		switch inst.Status {
		case InstallmentPaid:
			t.Paid++
			t.PaidValue = t.PaidValue.Add(inst.Amount)
		case InstallmentCancelled:
			t.Cancelled++
		default:
			t.Pending++
		}
	}
	return t
}

// Settled reports whether every installment left Pending and at least one
// was paid.
func (t Tally) Settled() bool {
	return t.Total > 0 && t.Paid+t.Cancelled == t.Total && t.Paid > 0
}

// =============================================================================
// CONTRACT TRANSITIONS
// =============================================================================

// Cause identifies which operation requests a contract transition.
type Cause string

const (
	CausePayment      Cause = "payment"
	CauseCancellation Cause = "cancellation"
	CauseReversal     Cause = "reversal"
)

type transitionKey struct {
	from  ContractStatus
	to    ContractStatus
	cause Cause
}

var allowedTransitions = map[transitionKey]bool{
	{ContractActive, ContractFinalized, CausePayment}:      true,
	{ContractActive, ContractCancelled, CauseCancellation}: true,
	{ContractFinalized, ContractActive, CauseReversal}:     true,
	{ContractCancelled, ContractActive, CauseReversal}:     true,
}

// CanTransition reports whether from -> to is allowed for cause.
func CanTransition(from, to ContractStatus, cause Cause) bool {
	return allowedTransitions[transitionKey{from, to, cause}]
}

// Transition moves c to status to. It mutates c only on success.
func Transition(c *Contract, to ContractStatus, cause Cause) error {
	if !CanTransition(c.Status, to, cause) {
		return &InvalidStateError{
			Op:      string(cause),
			Entity:  "contract",
			ID:      int64(c.ID),
			Current: string(c.Status),
		}
	}
	c.Status = to
	return nil
}

// RequireActive fails with InvalidStateError unless c accepts payments and
// cancellations.
func RequireActive(c Contract, op string) error {
	if c.Status != ContractActive {
		return &InvalidStateError{Op: op, Entity: "contract", ID: int64(c.ID), Current: string(c.Status)}
	}
	return nil
}

// =============================================================================
// INSTALLMENT TRANSITIONS
// =============================================================================

// Pay settles a Pending installment with the operator-entered amount.
func (i *Installment) Pay(amount Money, on Date) error {
	if i.Status != InstallmentPending {
		return &InstallmentUnavailableError{ContractID: i.ContractID, Number: i.Number, Status: i.Status}
	}
	if !amount.IsPositive() {
		return &ValidationError{Field: "applied value", Message: "must be greater than zero", Err: ErrInvalidAmount}
	}
	i.Status = InstallmentPaid
	i.Amount = amount
	i.PaidOn = on.Ptr()
	return nil
}

// Cancel moves a Pending installment to Cancelled.
func (i *Installment) Cancel() error {
	if i.Status != InstallmentPending {
		return &InvalidStateError{Op: "cancel", Entity: "installment", ID: int64(i.ID), Current: string(i.Status)}
	}
	i.Status = InstallmentCancelled
	return nil
}

// Restore brings a Paid or Cancelled installment back to Pending with the
// given amount and clears the payment date.
func (i *Installment) Restore(amount Money) error {
	if i.Status == InstallmentPending {
		return &InvalidStateError{Op: "restore", Entity: "installment", ID: int64(i.ID), Current: string(i.Status)}
	}
	i.Status = InstallmentPending
	i.Amount = amount
	i.PaidOn = nil
	return nil
}

// =============================================================================
// CASHBACK TRANSITIONS
// =============================================================================

// Release marks the cashback Released. The owning contract must already be
// terminal. Releasing an already released record is a no-op.
func (cb *Cashback) Release(owner ContractStatus, on Date) error {
	if !owner.IsTerminal() {
		return &InvalidStateError{Op: "release", Entity: "cashback", ID: int64(cb.ContractID), Current: string(owner)}
	}
	if cb.Status == CashbackReleased {
		return nil
	}
	cb.Status = CashbackReleased
	cb.ReleasedOn = on.Ptr()
	return nil
}

// Hold returns the cashback to Held after a reversal reopened the contract.
func (cb *Cashback) Hold(owner ContractStatus) error {
	if owner != ContractActive {
		return &InvalidStateError{Op: "hold", Entity: "cashback", ID: int64(cb.ContractID), Current: string(owner)}
	}
	cb.Status = CashbackHeld
	cb.ReleasedOn = nil
	return nil
}
