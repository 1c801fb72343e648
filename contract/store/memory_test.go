package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sistemacm/ledger-engine/contract"
)

func newSale(t *testing.T, m *TxMemory) contract.Sale {
	t.Helper()
	sale, err := contract.BuildSale(contract.SaleInput{
		ClientID:         1,
		ProductID:        1,
		SaleDate:         contract.NewDate(2024, 1, 1),
		TotalValue:       contract.MustParseMoney("300"),
		InstallmentCount: 3,
	}, time.Now())
	require.NoError(t, err)
	require.NoError(t, m.CreateSale(context.Background(), &sale))
	return sale
}

func TestTxMemory_RollbackRestoresState(t *testing.T) {
	// GIVEN: A contract with 3 pending installments
	// WHEN: A transaction pays one, books a posting and then fails
	// THEN: Neither write is visible afterwards

	m := NewTxMemory()
	ctx := context.Background()
	sale := newSale(t, m)

	err := m.WithTx(ctx, func(tx contract.Store) error {
		inst, err := tx.GetInstallment(ctx, sale.Contract.ID, 1)
		require.NoError(t, err)
		require.NoError(t, inst.Pay(contract.MustParseMoney("100"), contract.NewDate(2024, 2, 1)))
		require.NoError(t, tx.UpdateInstallment(ctx, inst))
		require.NoError(t, tx.AppendPosting(ctx, contract.Posting{Category: contract.CategoryInstallmentRevenue}))
		return errors.New("boom")
	})
	require.Error(t, err)

	inst, err := m.GetInstallment(ctx, sale.Contract.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, contract.InstallmentPending, inst.Status)

	postings, err := m.ListPostings(ctx, contract.PostingFilter{})
	require.NoError(t, err)
	assert.Empty(t, postings)
}

func TestTxMemory_CommitKeepsWrites(t *testing.T) {
	m := NewTxMemory()
	ctx := context.Background()
	sale := newSale(t, m)

	err := m.WithTx(ctx, func(tx contract.Store) error {
		return tx.AppendHistory(ctx, contract.HistoryEntry{
			TransactionID: "abc",
			ContractID:    sale.Contract.ID,
			Reversible:    true,
		})
	})
	require.NoError(t, err)

	flipped, err := m.MarkNotReversible(ctx, "abc")
	require.NoError(t, err)
	assert.True(t, flipped)

	flipped, err = m.MarkNotReversible(ctx, "abc")
	require.NoError(t, err)
	assert.False(t, flipped)
}

func TestMemory_DuplicateHistoryRejected(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	require.NoError(t, m.AppendHistory(ctx, contract.HistoryEntry{TransactionID: "x1"}))
	assert.ErrorIs(t, m.AppendHistory(ctx, contract.HistoryEntry{TransactionID: "x1"}), contract.ErrDuplicateTransactionID)
}

func TestMemory_InstallmentsOrderedByNumber(t *testing.T) {
	m := NewTxMemory()
	sale := newSale(t, m)

	insts, err := m.ListInstallments(context.Background(), sale.Contract.ID)
	require.NoError(t, err)
	require.Len(t, insts, 3)
	for i, inst := range insts {
		assert.Equal(t, i+1, inst.Number)
		assert.Equal(t, sale.Contract.ID, inst.ContractID)
	}
}

func TestMemory_NotFound(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	_, err := m.GetContract(ctx, 1)
	assert.ErrorIs(t, err, contract.ErrNotFound)
	_, err = m.GetCashback(ctx, 1)
	assert.ErrorIs(t, err, contract.ErrCashbackNotFound)
	_, err = m.MarkNotReversible(ctx, "zz")
	assert.ErrorIs(t, err, contract.ErrTransactionNotFound)
}
