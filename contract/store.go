/*
store.go - Persistence interface for contracts, history and ledger postings

PURPOSE:
  Defines the boundary between the engine and the database. Rows are
  returned as typed records (Contract, Installment, HistoryEntry, ...),
  never as positional tuples.

KEY INTERFACES:
  Store:   Reads and writes of the five ledger tables
  TxStore: Store plus WithTx, the unit of work every operation runs in

NO PHYSICAL DELETES:
  Contracts, installments and cashback records are mutated through status
  changes only. History entries and postings are append-only; the single
  permitted update on history is MarkNotReversible.

NOT FOUND:
  Single-record getters return ErrContractNotFound, ErrInstallmentNotFound,
  ErrCashbackNotFound or ErrTransactionNotFound (all match ErrNotFound).

IMPLEMENTATIONS:
  - store/sqlite/sqlite.go:     SQLite (production)
  - contract/store/memory.go:   In-memory (tests, demos)

SEE ALSO:
  - billing/service.go: runs each operation inside WithTx
*/
package contract

import "context"

// =============================================================================
// STORE
// =============================================================================

type Store interface {
	// CreateSale inserts contract, installments and cashback together and
	// assigns their ids in place.
	CreateSale(ctx context.Context, sale *Sale) error

	GetContract(ctx context.Context, id ContractID) (Contract, error)
	ListContracts(ctx context.Context, filter ContractFilter) ([]Contract, error)
	SetContractStatus(ctx context.Context, id ContractID, status ContractStatus) error

	// ListInstallments returns the schedule ordered by Number.
	ListInstallments(ctx context.Context, contractID ContractID) ([]Installment, error)
	GetInstallment(ctx context.Context, contractID ContractID, number int) (Installment, error)
	GetInstallmentByID(ctx context.Context, id InstallmentID) (Installment, error)
	// UpdateInstallment persists Amount, Status and PaidOn. Number and
	// DueDate are immutable and ignored.
	UpdateInstallment(ctx context.Context, inst Installment) error

	GetCashback(ctx context.Context, contractID ContractID) (Cashback, error)
	UpdateCashback(ctx context.Context, cb Cashback) error

	// AppendHistory fails with ErrDuplicateTransactionID on id reuse.
	AppendHistory(ctx context.Context, entry HistoryEntry) error
	GetHistory(ctx context.Context, id TransactionID) (HistoryEntry, error)
	// ListHistory returns a contract's entries, newest first.
	ListHistory(ctx context.Context, contractID ContractID) ([]HistoryEntry, error)
	HistoryExists(ctx context.Context, id TransactionID) (bool, error)
	// MarkNotReversible flips the reversible flag if it is still set and
	// reports whether this call flipped it.
	MarkNotReversible(ctx context.Context, id TransactionID) (bool, error)

	AppendPosting(ctx context.Context, p Posting) error
	// ListPostings returns postings ordered by date then insertion.
	ListPostings(ctx context.Context, filter PostingFilter) ([]Posting, error)
}

// TxStore wraps Store with transaction support.
type TxStore interface {
	Store

	// WithTx executes fn within a transaction.
	// If fn returns error, transaction is rolled back.
	// If fn returns nil, transaction is committed.
	WithTx(ctx context.Context, fn func(Store) error) error
}

// =============================================================================
// FILTERS
// =============================================================================

type ContractFilter struct {
	Status   *ContractStatus
	ClientID *int64
}

func (f ContractFilter) Matches(c Contract) bool {
	if f.Status != nil && c.Status != *f.Status {
		return false
	}
	if f.ClientID != nil && c.ClientID != *f.ClientID {
		return false
	}
	return true
}

// PostingFilter selects postings. Zero From/To means unbounded.
type PostingFilter struct {
	From          Date
	To            Date
	Category      string
	ContractID    *ContractID
	TransactionID TransactionID
}

func (f PostingFilter) Matches(p Posting) bool {
	if !f.From.IsZero() && p.Date.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && p.Date.After(f.To) {
		return false
	}
	if f.Category != "" && p.Category != f.Category {
		return false
	}
	if f.ContractID != nil && p.ContractID != *f.ContractID {
		return false
	}
	if f.TransactionID != "" && p.TransactionID != f.TransactionID {
		return false
	}
	return true
}
