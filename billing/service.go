/*
Package billing implements the payment, cancellation and reversal processors
of the contract ledger engine.

PURPOSE:
  The Service is the only writer of contract state. Every operation runs as
  one unit of work: all status changes, the history entry and the ledger
  postings commit together, or nothing does.

OPERATION SHAPE:
  1. Validate operator input (no storage access)
  2. Lock the contract id (per-contract serialization)
  3. store.WithTx: load, transition through contract/lifecycle.go, write
     history, book postings
  4. Classify the error (raw storage errors become StorageError)
  5. Log and count the outcome

REQUIRED POSTINGS:
  Every posting the engine books is required. A failing insert aborts the
  unit of work; there are no best-effort financial writes.

OPERATIONS:
  - ApplyPayment       payment.go
  - CancelContract     cancellation.go (CancellationQuote for defaults)
  - ReverseTransaction reversal.go
  - CreateSale         sale.go
  - ContractSummary, History, Postings, LedgerSummary: report.go

SEE ALSO:
  - contract/lifecycle.go: State machine used by every processor
  - contract/errors.go: Error kinds returned to callers
*/
package billing

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/sistemacm/ledger-engine/contract"
	"github.com/sistemacm/ledger-engine/internal/syncutil"
)

// Service applies payments, cancellations and reversals to contracts.
type Service struct {
	store  contract.TxStore
	clock  contract.Clock
	ids    IDGenerator
	locks  *syncutil.ShardedMutex
	logger *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

func WithClock(c contract.Clock) Option {
	return func(s *Service) { s.clock = c }
}

func WithIDGenerator(g IDGenerator) Option {
	return func(s *Service) { s.ids = g }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

func NewService(store contract.TxStore, opts ...Option) *Service {
	s := &Service{
		store:  store,
		clock:  contract.SystemClock{},
		ids:    UUIDGenerator{},
		locks:  &syncutil.ShardedMutex{},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// =============================================================================
// UNIT OF WORK
// =============================================================================

// mutate runs fn as one transaction while holding the contract's lock.
func (s *Service) mutate(ctx context.Context, op string, id contract.ContractID, fn func(tx contract.Store) error) error {
	done := observeOp(op)

	unlock := s.locks.LockID(int64(id))
	err := s.store.WithTx(ctx, fn)
	unlock()

	err = classify(op, err)
	done(err)
	if err != nil {
		s.logger.Warn("operation rejected", "op", op, "contract_id", id, "kind", contract.KindOf(err), "error", err)
	}
	return err
}

// classify wraps unclassified errors as StorageError.
func classify(op string, err error) error {
	if err == nil || contract.Classified(err) {
		return err
	}
	return &contract.StorageError{Op: op, Err: err}
}

func (s *Service) today() contract.Date {
	return contract.Today(s.clock)
}

func (s *Service) now() time.Time {
	return s.clock.Now()
}

// book appends postings in order. The first failure aborts the caller's
// unit of work.
func book(ctx context.Context, tx contract.Store, postings []contract.Posting) error {
	for _, p := range postings {
		if err := tx.AppendPosting(ctx, p); err != nil {
			return fmt.Errorf("book %s posting: %w", p.Category, err)
		}
	}
	return nil
}

// describe embeds the transaction id into a posting description.
func describe(id contract.TransactionID, format string, args ...any) string {
	return fmt.Sprintf(format, args...) + fmt.Sprintf(" [ID: %s]", id)
}
