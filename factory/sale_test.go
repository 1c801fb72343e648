package factory

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sistemacm/ledger-engine/contract"
)

func TestParseSale_Full(t *testing.T) {
	f := NewSaleFactory()

	in, err := f.ParseSale([]byte(`{
		"client_id": 12,
		"product_id": 3,
		"store_id": 1,
		"sale_date": "05/01/2024",
		"total_value": "1000.00",
		"installments": 4,
		"cashback_value": 50,
		"first_due_date": "2024-02-10",
		"notes": "turma noturna"
	}`))
	require.NoError(t, err)

	assert.Equal(t, int64(12), in.ClientID)
	assert.Equal(t, int64(1), in.StoreID)
	assert.Equal(t, "2024-01-05", in.SaleDate.String())
	assert.True(t, in.TotalValue.Equal(contract.MustParseMoney("1000")))
	assert.Equal(t, 4, in.InstallmentCount)
	assert.True(t, in.CashbackValue.Equal(contract.MustParseMoney("50")))
	assert.Equal(t, "2024-02-10", in.FirstDueDate.String())
}

func TestParseSale_DefaultsCashbackToZero(t *testing.T) {
	in, err := NewSaleFactory().ParseSale([]byte(`{"client_id":1,"product_id":1,"sale_date":"2024-01-01","total_value":100,"installments":1}`))
	require.NoError(t, err)
	assert.True(t, in.CashbackValue.IsZero())
	assert.True(t, in.FirstDueDate.IsZero())
}

func TestParseSale_Rejects(t *testing.T) {
	cases := map[string]string{
		"unknown field": `{"client_id":1,"product_id":1,"sale_date":"2024-01-01","total_value":100,"installments":1,"color":"red"}`,
		"bad date":      `{"client_id":1,"product_id":1,"sale_date":"yesterday","total_value":100,"installments":1}`,
		"zero total":    `{"client_id":1,"product_id":1,"sale_date":"2024-01-01","total_value":0,"installments":1}`,
		"no client":     `{"product_id":1,"sale_date":"2024-01-01","total_value":100,"installments":1}`,
		"not json":      `{`,
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := NewSaleFactory().ParseSale([]byte(doc))
			assert.ErrorIs(t, err, contract.ErrValidation)
		})
	}
}

func TestParseSales_Array(t *testing.T) {
	ins, err := NewSaleFactory().ParseSales([]byte(`[
		{"client_id":1,"product_id":1,"sale_date":"2024-01-01","total_value":100,"installments":1},
		{"client_id":2,"product_id":1,"sale_date":"2024-01-02","total_value":"250.50","installments":3}
	]`))
	require.NoError(t, err)
	require.Len(t, ins, 2)
	assert.Equal(t, int64(2), ins[1].ClientID)

	_, err = NewSaleFactory().ParseSales([]byte(`[{"client_id":1}]`))
	assert.ErrorIs(t, err, contract.ErrValidation)
}

func TestToJSON_RoundTrip(t *testing.T) {
	f := NewSaleFactory()
	in, err := f.ParseSale([]byte(`{"client_id":1,"product_id":2,"sale_date":"2024-01-01","total_value":"99.90","installments":2,"cashback_value":"5"}`))
	require.NoError(t, err)

	back, err := f.ToInput(ToJSON(in))
	require.NoError(t, err)
	assert.Equal(t, in.SaleDate, back.SaleDate)
	assert.True(t, in.TotalValue.Equal(back.TotalValue))
	assert.True(t, in.CashbackValue.Equal(back.CashbackValue))
}
