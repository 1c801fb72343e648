package app

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sistemacm/ledger-engine/config"
	"github.com/sistemacm/ledger-engine/contract"
)

func TestNew_InMemory(t *testing.T) {
	cfg := config.Default()
	cfg.Database.Path = ":memory:"
	cfg.Log.Level = "error"

	a, err := New(cfg)
	require.NoError(t, err)
	defer a.Close()

	sale, err := a.Billing.CreateSale(context.Background(), contract.SaleInput{
		ClientID:         1,
		ProductID:        1,
		SaleDate:         contract.NewDate(2024, 1, 5),
		TotalValue:       contract.MustParseMoney("300"),
		InstallmentCount: 3,
		CashbackValue:    contract.MustParseMoney("30"),
	})
	require.NoError(t, err)
	assert.Len(t, sale.Installments, 3)
	assert.NotZero(t, sale.Contract.ID)
}
