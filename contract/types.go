/*
Package contract provides the domain model of the contract ledger engine.

PURPOSE:
  Contracts are sold, installment-billed agreements. Each one owns a
  schedule of installments and a cashback record that is held until the
  contract reaches an outcome. Every mutation is recorded in a transaction
  history so it can later be reversed (estorno), and every financial effect
  is booked as a ledger posting.

KEY CONCEPTS IN THIS FILE (types.go):
  - Money: decimal amounts (never float64)
  - Contract / Installment / Cashback: mutable state records
  - HistoryEntry: audit record that makes a mutation reversible
  - Posting: revenue or expense line in the accounting ledger

DESIGN PRINCIPLES:
  1. Typed records: rows become named structs at the storage boundary
  2. Precision: decimal.Decimal for every monetary value
  3. Explicit transitions: statuses change only through lifecycle.go
  4. Traceability: postings embed the transaction id that produced them

SEE ALSO:
  - lifecycle.go: State machine for contracts, installments and cashback
  - store.go: Persistence interfaces
  - errors.go: Error kinds exposed to the presentation layer
*/
package contract

import (
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// MONEY
// =============================================================================

// Money is an exact decimal amount in the operation's currency.
type Money = decimal.Decimal

// NewMoney converts a float literal. Only use it for constants and tests.
func NewMoney(value float64) Money {
	return decimal.NewFromFloat(value)
}

// ParseMoney parses a decimal string such as "150.00".
// A Brazilian-formatted "R$ 150,00" is accepted as well.
func ParseMoney(s string) (Money, error) {
	return decimal.NewFromString(normalizeDecimal(s))
}

// MustParseMoney parses s and returns zero when it is malformed.
func MustParseMoney(s string) Money {
	d, err := ParseMoney(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// thousandsOnly matches dot-grouped integers such as "1.234" or "12.345.678".
var thousandsOnly = regexp.MustCompile(`^-?\d{1,3}(\.\d{3})+$`)

// normalizeDecimal accepts operator input such as "R$ 1.234,56".
// With a comma, dots are thousands separators. Without one, a dot is a
// thousands separator only when every group after it has three digits.
func normalizeDecimal(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimSpace(strings.TrimPrefix(s, "R$"))
	switch {
	case strings.Contains(s, ","):
		s = strings.ReplaceAll(s, ".", "")
		s = strings.ReplaceAll(s, ",", ".")
	case thousandsOnly.MatchString(s):
		s = strings.ReplaceAll(s, ".", "")
	}
	return s
}

// =============================================================================
// IDENTIFIERS
// =============================================================================

type ContractID int64
type InstallmentID int64

// TransactionID is the short token that identifies a history entry.
type TransactionID string

// =============================================================================
// STATUSES
// =============================================================================

type ContractStatus string

const (
	ContractActive    ContractStatus = "Active"
	ContractFinalized ContractStatus = "Finalized"
	ContractCancelled ContractStatus = "Cancelled"
)

// IsTerminal reports whether no payment or cancellation may be applied.
func (s ContractStatus) IsTerminal() bool {
	return s == ContractFinalized || s == ContractCancelled
}

func (s ContractStatus) Valid() bool {
	switch s {
	case ContractActive, ContractFinalized, ContractCancelled:
		return true
	}
	return false
}

type InstallmentStatus string

const (
	InstallmentPending   InstallmentStatus = "Pending"
	InstallmentPaid      InstallmentStatus = "Paid"
	InstallmentCancelled InstallmentStatus = "Cancelled"
)

type CashbackStatus string

const (
	CashbackHeld     CashbackStatus = "Held"
	CashbackReleased CashbackStatus = "Released"
)

// =============================================================================
// CONTRACT
// =============================================================================

// Contract is a sold agreement billed in installments.
// Status is changed only through Transition (lifecycle.go).
type Contract struct {
	ID               ContractID
	ClientID         int64
	ProductID        int64
	StoreID          int64 // loja; zero when unknown
	SaleDate         Date
	TotalValue       Money
	InstallmentCount int
	InstallmentValue Money
	CashbackValue    Money
	Status           ContractStatus
	Notes            string
	CreatedAt        time.Time
}

// =============================================================================
// INSTALLMENT
// =============================================================================

// Installment is one scheduled payment obligation of a contract.
// Number is contiguous (1..N) and immutable. PaidOn is set iff Status is Paid.
type Installment struct {
	ID         InstallmentID
	ContractID ContractID
	Number     int
	DueDate    Date
	Amount     Money
	Status     InstallmentStatus
	PaidOn     *Date
}

// =============================================================================
// CASHBACK
// =============================================================================

// Cashback is the value owed back to the client once the contract has an
// outcome. ReleasedOn is set iff Status is Released.
type Cashback struct {
	ContractID ContractID
	Value      Money
	Status     CashbackStatus
	ReleasedOn *Date
}

// =============================================================================
// TRANSACTION HISTORY
// =============================================================================

type TransactionType string

const (
	TxPaymentApplied    TransactionType = "PaymentApplied"
	TxContractCancelled TransactionType = "ContractCancelled"
	TxReversalApplied   TransactionType = "ReversalApplied"
)

// Metadata keys recorded on history entries.
const (
	MetaFinalizedContract     = "finalized_contract"
	MetaCancelledInstallments = "cancelled_installments"
	MetaRetainedRevenue       = "retained_revenue"
	MetaCashbackReleased      = "cashback_released"
	MetaReversedTransaction   = "reversed_transaction"
	MetaReversedType          = "reversed_type"
)

// HistoryEntry is the audit record of one mutation.
// Reversible flips to false exactly once, when a reversal consumes it.
type HistoryEntry struct {
	TransactionID TransactionID
	Type          TransactionType
	ContractID    ContractID
	InstallmentID *InstallmentID
	OriginalValue Money
	AppliedValue  Money
	PriorStatus   string
	NewStatus     string
	Date          Date
	CreatedAt     time.Time
	Notes         string
	Reversible    bool
	Metadata      map[string]string
}

// =============================================================================
// LEDGER POSTINGS
// =============================================================================

type PostingKind string

const (
	PostingRevenue PostingKind = "revenue"
	PostingExpense PostingKind = "expense"
)

// Posting categories booked by the engine.
const (
	CategoryInstallmentRevenue = "installment revenue"
	CategoryLostRevenue        = "cancellation - lost revenue"
	CategoryRetainedRevenue    = "cancellation - retained revenue"
	CategoryCashbackRelease    = "cashback release"
	CategoryReversal           = "reversal"
)

type PostingStatus string

const (
	PostingReceived  PostingStatus = "Received"
	PostingCancelled PostingStatus = "Cancelled"
	PostingReleased  PostingStatus = "Released"
	PostingReversed  PostingStatus = "Reversed"
)

// Posting is a signed revenue or expense line. The description embeds the
// transaction id so a posting can be traced back to its history entry.
type Posting struct {
	ID            int64
	Kind          PostingKind
	Date          Date
	Category      string
	Description   string
	Amount        Money
	Status        PostingStatus
	Notes         string
	TransactionID TransactionID
	ContractID    ContractID
	CreatedAt     time.Time
}

// =============================================================================
// SALE - contract + schedule + cashback created together
// =============================================================================

// Sale groups the records that are created together at sale time.
type Sale struct {
	Contract     Contract
	Installments []Installment
	Cashback     Cashback
}
