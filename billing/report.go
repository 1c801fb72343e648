package billing

import (
	"context"
	"errors"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/sistemacm/ledger-engine/contract"
)

// =============================================================================
// QUERIES - read-only views for the presentation layer
// =============================================================================

// ContractSummary is everything an operator sees for one contract.
type ContractSummary struct {
	Contract     contract.Contract
	Installments []contract.Installment
	Cashback     *contract.Cashback
	Tally        contract.Tally
}

func (s *Service) ContractSummary(ctx context.Context, id contract.ContractID) (ContractSummary, error) {
	c, err := s.store.GetContract(ctx, id)
	if err != nil {
		return ContractSummary{}, classify("contract_summary", err)
	}
	insts, err := s.store.ListInstallments(ctx, id)
	if err != nil {
		return ContractSummary{}, classify("contract_summary", err)
	}

	summary := ContractSummary{Contract: c, Installments: insts, Tally: contract.TallyOf(insts)}
	cb, err := s.store.GetCashback(ctx, id)
	switch {
	case err == nil:
		summary.Cashback = &cb
	case !errors.Is(err, contract.ErrCashbackNotFound):
		return ContractSummary{}, classify("contract_summary", err)
	}
	return summary, nil
}

func (s *Service) ListContracts(ctx context.Context, filter contract.ContractFilter) ([]contract.Contract, error) {
	out, err := s.store.ListContracts(ctx, filter)
	return out, classify("list_contracts", err)
}

// History returns a contract's transaction history, newest first.
func (s *Service) History(ctx context.Context, id contract.ContractID) ([]contract.HistoryEntry, error) {
	if _, err := s.store.GetContract(ctx, id); err != nil {
		return nil, classify("history", err)
	}
	out, err := s.store.ListHistory(ctx, id)
	return out, classify("history", err)
}

func (s *Service) Transaction(ctx context.Context, id contract.TransactionID) (contract.HistoryEntry, error) {
	e, err := s.store.GetHistory(ctx, id)
	return e, classify("transaction", err)
}

func (s *Service) Postings(ctx context.Context, filter contract.PostingFilter) ([]contract.Posting, error) {
	if err := validateRange(filter); err != nil {
		return nil, err
	}
	out, err := s.store.ListPostings(ctx, filter)
	return out, classify("postings", err)
}

// =============================================================================
// LEDGER SUMMARY
// =============================================================================

type CategoryTotal struct {
	Kind     contract.PostingKind
	Category string
	Count    int
	Total    contract.Money
}

// LedgerSummary totals postings per category. Net is revenue minus expense.
type LedgerSummary struct {
	Categories []CategoryTotal
	Revenue    contract.Money
	Expense    contract.Money
	Net        contract.Money
}

func (s *Service) LedgerSummary(ctx context.Context, filter contract.PostingFilter) (LedgerSummary, error) {
	postings, err := s.Postings(ctx, filter)
	if err != nil {
		return LedgerSummary{}, err
	}
	return Summarize(postings), nil
}

// Summarize totals postings per (kind, category), sorted by kind then category.
func Summarize(postings []contract.Posting) LedgerSummary {
	type key struct {
		kind     contract.PostingKind
		category string
	}
	totals := make(map[key]*CategoryTotal)
	sum := LedgerSummary{Revenue: decimal.Zero, Expense: decimal.Zero}

	for _, p := range postings {
		k := key{p.Kind, p.Category}
		ct, ok := totals[k]
		if !ok {
			ct = &CategoryTotal{Kind: p.Kind, Category: p.Category, Total: decimal.Zero}
			totals[k] = ct
		}
		ct.Count++
		ct.Total = ct.Total.Add(p.Amount)

		if p.Kind == contract.PostingExpense {
			sum.Expense = sum.Expense.Add(p.Amount)
		} else {
			sum.Revenue = sum.Revenue.Add(p.Amount)
		}
	}

	for _, ct := range totals {
		sum.Categories = append(sum.Categories, *ct)
	}
	sort.Slice(sum.Categories, func(i, j int) bool {
		a, b := sum.Categories[i], sum.Categories[j]
		if a.Kind != b.Kind {
			return a.Kind > b.Kind // revenue before expense
		}
		return a.Category < b.Category
	})
	sum.Net = sum.Revenue.Sub(sum.Expense)
	return sum
}

func validateRange(f contract.PostingFilter) error {
	if !f.From.IsZero() && !f.To.IsZero() && f.To.Before(f.From) {
		return &contract.ValidationError{Field: "date range", Message: "end date is before start date"}
	}
	return nil
}
