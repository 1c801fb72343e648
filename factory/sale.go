/*
Package factory provides JSON to Go sale conversion.

PURPOSE:
  Converts JSON sale documents into contract.SaleInput values, so sales can
  be registered from the HTTP API, the CLI (--file) or a batch import
  without hand-building Go structs.

JSON SCHEMA:
  {
    "client_id": 12,
    "product_id": 3,
    "store_id": 1,
    "sale_date": "05/01/2024",
    "total_value": "1000.00",
    "installments": 4,
    "cashback_value": "50.00",
    "first_due_date": "2024-02-10",
    "notes": "turma noturna"
  }

  Dates accept YYYY-MM-DD or DD/MM/YYYY. Money accepts JSON numbers or
  decimal strings. first_due_date defaults to one month after sale_date.

USAGE:
  f := factory.NewSaleFactory()
  in, err := f.ParseSale(data)
  sale, err := svc.CreateSale(ctx, in)

SEE ALSO:
  - contract/schedule.go: BuildSale (installment schedule)
  - billing/sale.go: CreateSale
*/
package factory

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/sistemacm/ledger-engine/contract"
)

// =============================================================================
// JSON SCHEMA TYPES
// =============================================================================

// SaleJSON is the JSON representation of a sale.
type SaleJSON struct {
	ClientID      int64            `json:"client_id"`
	ProductID     int64            `json:"product_id"`
	StoreID       int64            `json:"store_id,omitempty"`
	SaleDate      string           `json:"sale_date"`
	TotalValue    decimal.Decimal  `json:"total_value"`
	Installments  int              `json:"installments"`
	CashbackValue *decimal.Decimal `json:"cashback_value,omitempty"`
	FirstDueDate  string           `json:"first_due_date,omitempty"`
	Notes         string           `json:"notes,omitempty"`
}

// =============================================================================
// FACTORY
// =============================================================================

type SaleFactory struct{}

func NewSaleFactory() *SaleFactory {
	return &SaleFactory{}
}

// ParseSale decodes one JSON sale document. Unknown fields are rejected.
func (f *SaleFactory) ParseSale(data []byte) (contract.SaleInput, error) {
	var doc SaleJSON
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&doc); err != nil {
		return contract.SaleInput{}, &contract.ValidationError{Field: "sale document", Message: err.Error()}
	}
	return f.ToInput(doc)
}

// ParseSales decodes a JSON array of sale documents.
func (f *SaleFactory) ParseSales(data []byte) ([]contract.SaleInput, error) {
	var docs []json.RawMessage
	if err := json.Unmarshal(data, &docs); err != nil {
		return nil, &contract.ValidationError{Field: "sale documents", Message: err.Error()}
	}
	out := make([]contract.SaleInput, 0, len(docs))
	for i, raw := range docs {
		in, err := f.ParseSale(raw)
		if err != nil {
			return nil, fmt.Errorf("sale %d: %w", i, err)
		}
		out = append(out, in)
	}
	return out, nil
}

// ToInput converts a decoded document and validates it.
func (f *SaleFactory) ToInput(doc SaleJSON) (contract.SaleInput, error) {
	saleDate, err := contract.ParseDate(doc.SaleDate)
	if err != nil {
		return contract.SaleInput{}, &contract.ValidationError{Field: "sale_date", Message: err.Error()}
	}

	in := contract.SaleInput{
		ClientID:         doc.ClientID,
		ProductID:        doc.ProductID,
		StoreID:          doc.StoreID,
		SaleDate:         saleDate,
		TotalValue:       doc.TotalValue,
		InstallmentCount: doc.Installments,
		CashbackValue:    decimal.Zero,
		Notes:            doc.Notes,
	}
	if doc.CashbackValue != nil {
		in.CashbackValue = *doc.CashbackValue
	}
	if doc.FirstDueDate != "" {
		if in.FirstDueDate, err = contract.ParseDate(doc.FirstDueDate); err != nil {
			return contract.SaleInput{}, &contract.ValidationError{Field: "first_due_date", Message: err.Error()}
		}
	}
	if err := in.Validate(); err != nil {
		return contract.SaleInput{}, err
	}
	return in, nil
}

// ToJSON renders a sale input back to its document form.
func ToJSON(in contract.SaleInput) SaleJSON {
	doc := SaleJSON{
		ClientID:     in.ClientID,
		ProductID:    in.ProductID,
		StoreID:      in.StoreID,
		SaleDate:     in.SaleDate.String(),
		TotalValue:   in.TotalValue,
		Installments: in.InstallmentCount,
		Notes:        in.Notes,
	}
	if !in.CashbackValue.IsZero() {
		cb := in.CashbackValue
		doc.CashbackValue = &cb
	}
	if !in.FirstDueDate.IsZero() {
		doc.FirstDueDate = in.FirstDueDate.String()
	}
	return doc
}
