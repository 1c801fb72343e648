package contract

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// SALE REGISTRATION - contract + installment schedule + cashback
// =============================================================================

// SaleInput is what the operator enters when a contract is sold.
type SaleInput struct {
	ClientID         int64
	ProductID        int64
	StoreID          int64
	SaleDate         Date
	TotalValue       Money
	InstallmentCount int
	CashbackValue    Money
	// FirstDueDate defaults to one month after SaleDate.
	FirstDueDate Date
	Notes        string
}

// Validate checks the input before any schedule is built.
func (in SaleInput) Validate() error {
	switch {
	case in.ClientID <= 0:
		return &ValidationError{Field: "client", Message: "is required"}
	case in.ProductID <= 0:
		return &ValidationError{Field: "product", Message: "is required"}
	case in.SaleDate.IsZero():
		return &ValidationError{Field: "sale date", Message: "is required"}
	case !in.TotalValue.IsPositive():
		return &ValidationError{Field: "total value", Message: "must be greater than zero", Err: ErrInvalidAmount}
	case in.InstallmentCount < 1:
		return &ValidationError{Field: "installment count", Message: "must be at least 1"}
	case in.CashbackValue.IsNegative():
		return &ValidationError{Field: "cashback value", Message: "must not be negative", Err: ErrInvalidAmount}
	}
	return nil
}

// BuildSale builds an Active contract with N monthly installments and a
// Held cashback record. Installments carry total/N rounded down to cents;
// the last one absorbs the remainder so that the schedule sums to total.
// IDs are left zero for the store to assign.
func BuildSale(in SaleInput, now time.Time) (Sale, error) {
	if err := in.Validate(); err != nil {
		return Sale{}, err
	}

	n := int64(in.InstallmentCount)
	per := in.TotalValue.Div(decimal.NewFromInt(n)).RoundDown(2)
	last := in.TotalValue.Sub(per.Mul(decimal.NewFromInt(n - 1)))

	// Every due date is computed from the anchor day so that a clamped
	// month (Feb 29) does not shift the following ones.
	anchor, offset := in.FirstDueDate, 0
	if anchor.IsZero() {
		anchor, offset = in.SaleDate, 1
	}

	sale := Sale{
		Contract: Contract{
			ClientID:         in.ClientID,
			ProductID:        in.ProductID,
			StoreID:          in.StoreID,
			SaleDate:         in.SaleDate,
			TotalValue:       in.TotalValue,
			InstallmentCount: in.InstallmentCount,
			InstallmentValue: per,
			CashbackValue:    in.CashbackValue,
			Status:           ContractActive,
			Notes:            in.Notes,
			CreatedAt:        now,
		},
		Cashback: Cashback{
			Value:  in.CashbackValue,
			Status: CashbackHeld,
		},
	}

	sale.Installments = make([]Installment, 0, in.InstallmentCount)
	for k := 0; k < in.InstallmentCount; k++ {
		amount := per
		if k == in.InstallmentCount-1 {
			amount = last
		}
		sale.Installments = append(sale.Installments, Installment{
			Number:  k + 1,
			DueDate: anchor.AddMonths(k + offset),
			Amount:  amount,
			Status:  InstallmentPending,
		})
	}
	return sale, nil
}

// Sum returns the total of the schedule's amounts.
func (s Sale) Sum() Money {
	total := decimal.Zero
	for _, inst := range s.Installments {
		total = total.Add(inst.Amount)
	}
	return total
}
