package billing_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sistemacm/ledger-engine/billing"
	"github.com/sistemacm/ledger-engine/contract"
	"github.com/sistemacm/ledger-engine/internal/logging"
	"github.com/sistemacm/ledger-engine/store/sqlite"
)

func newSQLiteStore(t *testing.T) *sqlite.Store {
	t.Helper()
	store, err := sqlite.New(":memory:", sqlite.WithLogger(logging.Discard()))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSQLite_PaymentCancellationReversalCycle(t *testing.T) {
	// GIVEN: A SQLite-backed engine and a 1000/4 contract with 2 payments
	// WHEN: Cancelling, then reversing the cancellation, then paying the rest
	// THEN: The contract ends Finalized with its cashback released

	f := newFixtureWithStore(t, newSQLiteStore(t))
	sale := f.sale(t, "1000", 4, "50")
	id := sale.Contract.ID
	f.pay(t, id, 1, "250")
	f.pay(t, id, 2, "250")

	cancel, err := f.svc.CancelContract(f.ctx, billing.CancellationRequest{ContractID: id, Reason: "desistência"})
	require.NoError(t, err)
	assert.Equal(t, 2, cancel.CancelledInstallments)

	rev, err := f.svc.ReverseTransaction(f.ctx, cancel.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, contract.ContractActive, rev.ContractStatus)

	_, err = f.svc.ReverseTransaction(f.ctx, cancel.TransactionID)
	assert.ErrorIs(t, err, contract.ErrNotReversible)

	f.pay(t, id, 3, "250")
	last := f.pay(t, id, 4, "250")
	assert.True(t, last.ContractFinalized)

	summary, err := f.svc.ContractSummary(f.ctx, id)
	require.NoError(t, err)
	assert.Equal(t, contract.ContractFinalized, summary.Contract.Status)
	require.NotNil(t, summary.Cashback)
	assert.Equal(t, contract.CashbackReleased, summary.Cashback.Status)
	assert.Equal(t, 4, summary.Tally.Paid)

	history, err := f.svc.History(f.ctx, id)
	require.NoError(t, err)
	assert.Len(t, history, 6) // 4 payments, cancellation, reversal
}

func TestSQLite_FailingPostingRollsBack(t *testing.T) {
	base := newSQLiteStore(t)
	setup := newFixtureWithStore(t, base)
	sale := setup.sale(t, "200", 2, "20")
	setup.pay(t, sale.Contract.ID, 1, "100")
	before := setup.snapshot(t, sale.Contract.ID)

	f := newFixtureWithStore(t, &faultyStore{TxStore: base, failOn: "posting"})
	_, err := f.svc.ApplyPayment(f.ctx, billing.PaymentRequest{ContractID: sale.Contract.ID, InstallmentNumber: 2, AppliedValue: m("100")})

	assert.ErrorIs(t, err, contract.ErrStorage)
	assert.Equal(t, before, setup.snapshot(t, sale.Contract.ID))
}
