package billing

import (
	"context"

	"github.com/sistemacm/ledger-engine/contract"
)

// CreateSale registers a sold contract with its installment schedule and a
// Held cashback record.
func (s *Service) CreateSale(ctx context.Context, in contract.SaleInput) (contract.Sale, error) {
	done := observeOp("create_sale")

	sale, err := contract.BuildSale(in, s.now())
	if err != nil {
		done(err)
		return contract.Sale{}, err
	}

	err = s.store.WithTx(ctx, func(tx contract.Store) error {
		return tx.CreateSale(ctx, &sale)
	})
	err = classify("create_sale", err)
	done(err)
	if err != nil {
		return contract.Sale{}, err
	}

	s.logger.Info("sale registered",
		"contract_id", sale.Contract.ID,
		"client_id", sale.Contract.ClientID,
		"total", sale.Contract.TotalValue.StringFixed(2),
		"installments", len(sale.Installments),
	)
	return sale, nil
}
