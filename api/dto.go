/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. Money is always
  rendered as a decimal string with two places; dates as YYYY-MM-DD.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

TYPES:
  Contracts:
    ContractDTO, InstallmentDTO, CashbackDTO, TallyDTO, ContractSummaryDTO
    (creation uses factory.SaleJSON directly)

  Operations:
    PaymentRequest / PaymentResultDTO
    CancellationRequest / CancellationQuoteDTO / CancellationResultDTO
    ReversalResultDTO

  History and ledger:
    HistoryEntryDTO, PostingDTO, LedgerSummaryDTO

  Scenarios:
    ScenarioDTO, LoadScenarioRequest

VALIDATION:
  Validation is done by the billing service, not in DTOs. DTOs are pure
  data carriers.

SEE ALSO:
  - handlers.go: Uses these types
  - factory/sale.go: SaleJSON type
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/sistemacm/ledger-engine/billing"
	"github.com/sistemacm/ledger-engine/contract"
)

// =============================================================================
// CONTRACT TYPES
// =============================================================================

type ContractDTO struct {
	ID               int64  `json:"id"`
	ClientID         int64  `json:"client_id"`
	ProductID        int64  `json:"product_id"`
	StoreID          int64  `json:"store_id,omitempty"`
	SaleDate         string `json:"sale_date"`
	TotalValue       string `json:"total_value"`
	InstallmentCount int    `json:"installment_count"`
	InstallmentValue string `json:"installment_value"`
	CashbackValue    string `json:"cashback_value"`
	Status           string `json:"status"`
	Notes            string `json:"notes,omitempty"`
	CreatedAt        string `json:"created_at,omitempty"`
}

type InstallmentDTO struct {
	ID      int64   `json:"id"`
	Number  int     `json:"number"`
	DueDate string  `json:"due_date"`
	Amount  string  `json:"amount"`
	Status  string  `json:"status"`
	PaidOn  *string `json:"paid_on,omitempty"`
}

type CashbackDTO struct {
	Value      string  `json:"value"`
	Status     string  `json:"status"`
	ReleasedOn *string `json:"released_on,omitempty"`
}

type TallyDTO struct {
	Total     int    `json:"total"`
	Paid      int    `json:"paid"`
	Cancelled int    `json:"cancelled"`
	Pending   int    `json:"pending"`
	PaidValue string `json:"paid_value"`
}

type ContractSummaryDTO struct {
	Contract     ContractDTO      `json:"contract"`
	Installments []InstallmentDTO `json:"installments"`
	Cashback     *CashbackDTO     `json:"cashback,omitempty"`
	Tally        TallyDTO         `json:"tally"`
}

// =============================================================================
// OPERATION TYPES
// =============================================================================

// PaymentRequest is the body of POST .../installments/{number}/payment.
type PaymentRequest struct {
	AppliedValue decimal.Decimal `json:"applied_value"`
	Notes        string          `json:"notes,omitempty"`
}

type PaymentResultDTO struct {
	TransactionID     string `json:"transaction_id"`
	ContractID        int64  `json:"contract_id"`
	InstallmentNumber int    `json:"installment_number"`
	PriorAmount       string `json:"prior_amount"`
	AppliedAmount     string `json:"applied_amount"`
	ContractStatus    string `json:"contract_status"`
	RemainingPending  int    `json:"remaining_pending"`
	ContractFinalized bool   `json:"contract_finalized"`
	CashbackReleased  string `json:"cashback_released"`
}

// CancellationRequest is the body of POST /contracts/{id}/cancellation.
// Omitted values fall back to the quote defaults.
type CancellationRequest struct {
	LostRevenue       *decimal.Decimal `json:"lost_revenue,omitempty"`
	CashbackToRelease *decimal.Decimal `json:"cashback_to_release,omitempty"`
	Reason            string           `json:"reason,omitempty"`
}

type CancellationQuoteDTO struct {
	ContractID          int64  `json:"contract_id"`
	TotalValue          string `json:"total_value"`
	PaidValue           string `json:"paid_value"`
	LostRevenue         string `json:"lost_revenue"`
	CashbackToRelease   string `json:"cashback_to_release"`
	PendingInstallments int    `json:"pending_installments"`
}

type CancellationResultDTO struct {
	TransactionID         string `json:"transaction_id"`
	ContractID            int64  `json:"contract_id"`
	LostRevenue           string `json:"lost_revenue"`
	RetainedRevenue       string `json:"retained_revenue"`
	CashbackReleased      string `json:"cashback_released"`
	CancelledInstallments int    `json:"cancelled_installments"`
}

type ReversalResultDTO struct {
	ReversalID           string `json:"reversal_id"`
	ReversedID           string `json:"reversed_id"`
	ReversedType         string `json:"reversed_type"`
	ContractID           int64  `json:"contract_id"`
	ContractStatus       string `json:"contract_status"`
	RestoredInstallments int    `json:"restored_installments"`
	CashbackHeld         bool   `json:"cashback_held"`
}

// =============================================================================
// HISTORY AND LEDGER TYPES
// =============================================================================

type HistoryEntryDTO struct {
	TransactionID string            `json:"transaction_id"`
	Type          string            `json:"type"`
	ContractID    int64             `json:"contract_id"`
	InstallmentID *int64            `json:"installment_id,omitempty"`
	OriginalValue string            `json:"original_value"`
	AppliedValue  string            `json:"applied_value"`
	PriorStatus   string            `json:"prior_status"`
	NewStatus     string            `json:"new_status"`
	Date          string            `json:"date"`
	CreatedAt     string            `json:"created_at"`
	Notes         string            `json:"notes,omitempty"`
	Reversible    bool              `json:"reversible"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

type PostingDTO struct {
	ID            int64  `json:"id"`
	Kind          string `json:"kind"`
	Date          string `json:"date"`
	Category      string `json:"category"`
	Description   string `json:"description"`
	Amount        string `json:"amount"`
	Status        string `json:"status"`
	Notes         string `json:"notes,omitempty"`
	TransactionID string `json:"transaction_id"`
	ContractID    int64  `json:"contract_id"`
}

type CategoryTotalDTO struct {
	Kind     string `json:"kind"`
	Category string `json:"category"`
	Count    int    `json:"count"`
	Total    string `json:"total"`
}

type LedgerSummaryDTO struct {
	Categories []CategoryTotalDTO `json:"categories"`
	Revenue    string             `json:"revenue"`
	Expense    string             `json:"expense"`
	Net        string             `json:"net"`
}

// =============================================================================
// SCENARIO TYPES
// =============================================================================

type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id"`
}

type LoadScenarioResponse struct {
	ScenarioID  string  `json:"scenario_id"`
	ContractIDs []int64 `json:"contract_ids"`
}

// ErrorResponse is returned for every failed request.
type ErrorResponse struct {
	Error   string `json:"error"`
	Kind    string `json:"kind,omitempty"`
	Details string `json:"details,omitempty"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func money(m contract.Money) string {
	return m.StringFixed(2)
}

func datePtr(d *contract.Date) *string {
	if d == nil {
		return nil
	}
	s := d.String()
	return &s
}

func toContractDTO(c contract.Contract) ContractDTO {
	dto := ContractDTO{
		ID:               int64(c.ID),
		ClientID:         c.ClientID,
		ProductID:        c.ProductID,
		StoreID:          c.StoreID,
		SaleDate:         c.SaleDate.String(),
		TotalValue:       money(c.TotalValue),
		InstallmentCount: c.InstallmentCount,
		InstallmentValue: money(c.InstallmentValue),
		CashbackValue:    money(c.CashbackValue),
		Status:           string(c.Status),
		Notes:            c.Notes,
	}
	if !c.CreatedAt.IsZero() {
		dto.CreatedAt = c.CreatedAt.Format(time.RFC3339)
	}
	return dto
}

func toInstallmentDTOs(insts []contract.Installment) []InstallmentDTO {
	out := make([]InstallmentDTO, len(insts))
	for i, inst := range insts {
		out[i] = InstallmentDTO{
			ID:      int64(inst.ID),
			Number:  inst.Number,
			DueDate: inst.DueDate.String(),
			Amount:  money(inst.Amount),
			Status:  string(inst.Status),
			PaidOn:  datePtr(inst.PaidOn),
		}
	}
	return out
}

func toSummaryDTO(s billing.ContractSummary) ContractSummaryDTO {
	dto := ContractSummaryDTO{
		Contract:     toContractDTO(s.Contract),
		Installments: toInstallmentDTOs(s.Installments),
		Tally: TallyDTO{
			Total:     s.Tally.Total,
			Paid:      s.Tally.Paid,
			Cancelled: s.Tally.Cancelled,
			Pending:   s.Tally.Pending,
			PaidValue: money(s.Tally.PaidValue),
		},
	}
	if s.Cashback != nil {
		dto.Cashback = &CashbackDTO{
			Value:      money(s.Cashback.Value),
			Status:     string(s.Cashback.Status),
			ReleasedOn: datePtr(s.Cashback.ReleasedOn),
		}
	}
	return dto
}

func toHistoryDTOs(entries []contract.HistoryEntry) []HistoryEntryDTO {
	out := make([]HistoryEntryDTO, len(entries))
	for i, e := range entries {
		dto := HistoryEntryDTO{
			TransactionID: string(e.TransactionID),
			Type:          string(e.Type),
			ContractID:    int64(e.ContractID),
			OriginalValue: money(e.OriginalValue),
			AppliedValue:  money(e.AppliedValue),
			PriorStatus:   e.PriorStatus,
			NewStatus:     e.NewStatus,
			Date:          e.Date.String(),
			CreatedAt:     e.CreatedAt.Format(time.RFC3339),
			Notes:         e.Notes,
			Reversible:    e.Reversible,
			Metadata:      e.Metadata,
		}
		if e.InstallmentID != nil {
			id := int64(*e.InstallmentID)
			dto.InstallmentID = &id
		}
		out[i] = dto
	}
	return out
}

func toPostingDTOs(postings []contract.Posting) []PostingDTO {
	out := make([]PostingDTO, len(postings))
	for i, p := range postings {
		out[i] = PostingDTO{
			ID:            p.ID,
			Kind:          string(p.Kind),
			Date:          p.Date.String(),
			Category:      p.Category,
			Description:   p.Description,
			Amount:        money(p.Amount),
			Status:        string(p.Status),
			Notes:         p.Notes,
			TransactionID: string(p.TransactionID),
			ContractID:    int64(p.ContractID),
		}
	}
	return out
}

func toLedgerSummaryDTO(s billing.LedgerSummary) LedgerSummaryDTO {
	dto := LedgerSummaryDTO{
		Categories: make([]CategoryTotalDTO, len(s.Categories)),
		Revenue:    money(s.Revenue),
		Expense:    money(s.Expense),
		Net:        money(s.Net),
	}
	for i, c := range s.Categories {
		dto.Categories[i] = CategoryTotalDTO{
			Kind:     string(c.Kind),
			Category: c.Category,
			Count:    c.Count,
			Total:    money(c.Total),
		}
	}
	return dto
}
