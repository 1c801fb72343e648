package billing

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/sistemacm/ledger-engine/contract"
)

// IDGenerator produces short transaction tokens.
type IDGenerator interface {
	NewID() contract.TransactionID
}

// UUIDGenerator returns the first 8 hex characters of a random UUID.
type UUIDGenerator struct{}

func (UUIDGenerator) NewID() contract.TransactionID {
	return contract.TransactionID(uuid.NewString()[:8])
}

// ReversalIDPrefix marks the history entry that documents a reversal.
const ReversalIDPrefix = "EST_"

func reversalID(original contract.TransactionID) contract.TransactionID {
	return ReversalIDPrefix + original
}

const maxIDAttempts = 5

// newTransactionID draws ids until one is unused in the history.
func (s *Service) newTransactionID(ctx context.Context, tx contract.Store) (contract.TransactionID, error) {
	for i := 0; i < maxIDAttempts; i++ {
		id := s.ids.NewID()
		exists, err := tx.HistoryExists(ctx, id)
		if err != nil {
			return "", err
		}
		if !exists {
			return id, nil
		}
	}
	return "", fmt.Errorf("%w: no free id after %d attempts", contract.ErrDuplicateTransactionID, maxIDAttempts)
}
