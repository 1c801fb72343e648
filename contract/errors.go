/*
errors.go - Error kinds for the contract ledger engine

PURPOSE:
  Callers (HTTP handlers, CLI commands) branch on the KIND of a failure,
  never on its message. Every error returned by the engine matches a kind
  sentinel via errors.Is; KindOf picks the most specific one.

ERROR KINDS:
  ErrValidation    - malformed operator input, rejected before storage
  ErrInvalidState  - contract/installment not in the required state
  ErrNotFound      - referenced contract/installment/transaction missing
  ErrNotReversible - reversal of an entry already reversed (or never reversible)
  ErrStorage       - persistence failure; the unit of work was rolled back

USAGE:
  _, err := svc.ApplyPayment(ctx, req)
  switch contract.KindOf(err) {
  case contract.KindValidation:
      // show message, nothing changed
  case contract.KindStorage:
      // offer manual retry
  }

SEE ALSO:
  - billing/service.go: wraps raw storage errors with StorageError
*/
package contract

import (
	"errors"
	"fmt"
)

// =============================================================================
// KIND SENTINELS - Use with errors.Is()
// =============================================================================

var (
	ErrValidation    = errors.New("validation error")
	ErrInvalidState  = errors.New("invalid state")
	ErrNotFound      = errors.New("not found")
	ErrNotReversible = errors.New("transaction not reversible")
	ErrStorage       = errors.New("storage error")
)

// kindedError is a named sentinel that belongs to a kind.
type kindedError struct {
	msg  string
	kind error
}

func (e *kindedError) Error() string { return e.msg }
func (e *kindedError) Unwrap() error { return e.kind }

// =============================================================================
// NAMED SENTINELS
// =============================================================================

var (
	// ErrInvalidAmount is returned when an applied or edited value is out of range.
	ErrInvalidAmount = &kindedError{"invalid amount", ErrValidation}

	// ErrInstallmentUnavailable matches every InstallmentUnavailableError.
	ErrInstallmentUnavailable = errors.New("installment not found or already settled")

	ErrContractNotFound    = &kindedError{"contract not found", ErrNotFound}
	ErrInstallmentNotFound = &kindedError{"installment not found", ErrNotFound}
	ErrCashbackNotFound    = &kindedError{"cashback record not found", ErrNotFound}
	ErrTransactionNotFound = &kindedError{"transaction not found", ErrNotFound}

	// ErrDuplicateTransactionID is returned by stores when a history entry
	// reuses an existing transaction id.
	ErrDuplicateTransactionID = &kindedError{"duplicate transaction id", ErrStorage}
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ValidationError reports a rejected operator field.
type ValidationError struct {
	Field   string
	Message string
	Err     error // optional named sentinel, e.g. ErrInvalidAmount
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() []error {
	if e.Err != nil {
		return []error{e.Err, ErrValidation}
	}
	return []error{ErrValidation}
}

// InvalidStateError reports an operation attempted in the wrong state.
type InvalidStateError struct {
	Op      string // "pay", "cancel", "reverse", ...
	Entity  string // "contract", "installment", "cashback"
	ID      int64
	Current string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("cannot %s %s %d in status %s", e.Op, e.Entity, e.ID, e.Current)
}

func (e *InvalidStateError) Unwrap() error { return ErrInvalidState }

// InstallmentUnavailableError is InstallmentNotFoundOrAlreadySettled.
// It matches ErrInstallmentUnavailable and, depending on the cause,
// ErrNotFound (no such installment) or ErrInvalidState (not Pending).
type InstallmentUnavailableError struct {
	ContractID ContractID
	Number     int
	Status     InstallmentStatus // empty when the installment does not exist
}

func (e *InstallmentUnavailableError) Error() string {
	if e.Status == "" {
		return fmt.Sprintf("installment %d of contract %d not found", e.Number, e.ContractID)
	}
	return fmt.Sprintf("installment %d of contract %d already settled (%s)", e.Number, e.ContractID, e.Status)
}

func (e *InstallmentUnavailableError) Unwrap() []error {
	if e.Status == "" {
		return []error{ErrInstallmentUnavailable, ErrNotFound}
	}
	return []error{ErrInstallmentUnavailable, ErrInvalidState}
}

// NotReversibleError reports a rejected reversal.
type NotReversibleError struct {
	TransactionID TransactionID
	Reason        string
	Missing       bool // the transaction id does not exist at all
}

func (e *NotReversibleError) Error() string {
	return fmt.Sprintf("transaction %s cannot be reversed: %s", e.TransactionID, e.Reason)
}

func (e *NotReversibleError) Unwrap() []error {
	if e.Missing {
		return []error{ErrNotReversible, ErrNotFound}
	}
	return []error{ErrNotReversible}
}

// StorageError wraps a persistence failure. The message of the underlying
// error is surfaced verbatim so the operator can decide to retry.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage failure during %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() []error { return []error{ErrStorage, e.Err} }

// =============================================================================
// KIND CLASSIFICATION
// =============================================================================

type Kind string

const (
	KindNone          Kind = ""
	KindValidation    Kind = "validation"
	KindInvalidState  Kind = "invalid_state"
	KindNotFound      Kind = "not_found"
	KindNotReversible Kind = "not_reversible"
	KindStorage       Kind = "storage"
)

// KindOf classifies err. Reversal and validation take precedence over
// not-found because they describe the rejected operation more precisely.
// Anything unclassified is reported as storage.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrValidation):
		return KindValidation
	case errors.Is(err, ErrNotReversible):
		return KindNotReversible
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrInvalidState):
		return KindInvalidState
	default:
		return KindStorage
	}
}

// IsClientError returns true if the error is due to operator input or state
// and retrying the same request cannot succeed.
func IsClientError(err error) bool {
	k := KindOf(err)
	return k != KindNone && k != KindStorage
}

// Classified reports whether err already carries one of the engine's kinds.
func Classified(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrInvalidState) ||
		errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrNotReversible) ||
		errors.Is(err, ErrStorage)
}
