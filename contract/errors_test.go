package contract_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sistemacm/ledger-engine/contract"
)

func TestKindOf(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want contract.Kind
	}{
		{"nil", nil, contract.KindNone},
		{"invalid amount", &contract.ValidationError{Field: "applied value", Message: "x", Err: contract.ErrInvalidAmount}, contract.KindValidation},
		{"invalid state", &contract.InvalidStateError{Op: "pay", Entity: "contract", Current: "Cancelled"}, contract.KindInvalidState},
		{"contract missing", fmt.Errorf("load: %w", contract.ErrContractNotFound), contract.KindNotFound},
		{"installment missing", &contract.InstallmentUnavailableError{Number: 4}, contract.KindNotFound},
		{"installment settled", &contract.InstallmentUnavailableError{Number: 4, Status: contract.InstallmentPaid}, contract.KindInvalidState},
		{"already reversed", &contract.NotReversibleError{TransactionID: "ab12cd34", Reason: "already reversed"}, contract.KindNotReversible},
		{"unknown transaction", &contract.NotReversibleError{TransactionID: "zz", Missing: true}, contract.KindNotReversible},
		{"storage", &contract.StorageError{Op: "apply payment", Err: errors.New("disk I/O error")}, contract.KindStorage},
		{"raw", errors.New("boom"), contract.KindStorage},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, contract.KindOf(tc.err))
		})
	}
}

func TestNotReversibleError_MissingAlsoNotFound(t *testing.T) {
	err := &contract.NotReversibleError{TransactionID: "zz", Missing: true}
	assert.ErrorIs(t, err, contract.ErrNotReversible)
	assert.ErrorIs(t, err, contract.ErrNotFound)
}

func TestStorageError_KeepsCause(t *testing.T) {
	cause := errors.New("database is locked")
	err := &contract.StorageError{Op: "cancel contract", Err: cause}

	assert.ErrorIs(t, err, contract.ErrStorage)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "database is locked")
}

func TestClassified(t *testing.T) {
	assert.True(t, contract.Classified(contract.ErrContractNotFound))
	assert.True(t, contract.Classified(contract.ErrDuplicateTransactionID))
	assert.False(t, contract.Classified(errors.New("raw")))
	assert.True(t, contract.IsClientError(contract.ErrTransactionNotFound))
	assert.False(t, contract.IsClientError(&contract.StorageError{Op: "x", Err: errors.New("y")}))
}
