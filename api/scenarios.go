/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate the database with realistic
	contracts for demos and manual testing. Every scenario goes through the
	billing service, so history entries and ledger postings are real.

AVAILABLE SCENARIOS:

	fresh-sale:        12 installments, nothing paid yet
	partial-payments:  4 installments, 2 paid (one with an edited value)
	finalized:         3 installments all paid, cashback released
	cancelled:         4 installments, 1 paid, then cancelled
	reversed-payment:  payment applied and then reversed (estorno)

HOW SCENARIOS WORK:
 1. Register sales via factory.SaleJSON
 2. Apply payments / cancellations / reversals via billing.Service
 3. Return the created contract ids

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "partial-payments"}

ADDING NEW SCENARIOS:
 1. Add to 'scenarios' slice with ID, name, description
 2. Create loader function: loadXxxScenario(ctx, svc)
 3. Register it in 'scenarioLoaders'

NOTE:

	Scenarios add data; they never reset the database.

SEE ALSO:
  - handlers.go: Operation endpoints
  - factory/sale.go: Sale JSON definitions
*/
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/sistemacm/ledger-engine/billing"
	"github.com/sistemacm/ledger-engine/contract"
	"github.com/sistemacm/ledger-engine/factory"
	"github.com/sistemacm/ledger-engine/internal/logging"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "fresh-sale",
		Name:        "Fresh Sale",
		Description: "12 monthly installments, nothing paid, cashback held",
	},
	{
		ID:          "partial-payments",
		Name:        "Partial Payments",
		Description: "4 installments, 2 paid, one of them with an operator-edited value",
	},
	{
		ID:          "finalized",
		Name:        "Finalized",
		Description: "3 installments all paid; contract finalized and cashback released",
	},
	{
		ID:          "cancelled",
		Name:        "Cancelled",
		Description: "4 installments, 1 paid, then cancelled with default lost revenue",
	},
	{
		ID:          "reversed-payment",
		Name:        "Reversed Payment",
		Description: "A payment applied and then reversed; installment back to Pending",
	},
}

type scenarioLoader func(ctx context.Context, svc *billing.Service, today contract.Date) ([]contract.ContractID, error)

var scenarioLoaders = map[string]scenarioLoader{
	"fresh-sale":       loadFreshSaleScenario,
	"partial-payments": loadPartialPaymentsScenario,
	"finalized":        loadFinalizedScenario,
	"cancelled":        loadCancelledScenario,
	"reversed-payment": loadReversedPaymentScenario,
}

// =============================================================================
// HANDLERS
// =============================================================================

func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	ids, err := LoadScenario(r.Context(), h.svc, req.ScenarioID, contract.DateOf(time.Now()))
	if err != nil {
		if _, known := scenarioLoaders[req.ScenarioID]; !known {
			writeError(w, http.StatusNotFound, "Unknown scenario", err)
			return
		}
		h.writeServiceError(w, r, err)
		return
	}

	out := LoadScenarioResponse{ScenarioID: req.ScenarioID, ContractIDs: make([]int64, len(ids))}
	for i, id := range ids {
		out.ContractIDs[i] = int64(id)
	}
	logging.FromContext(r.Context()).Info("scenario loaded", "scenario", req.ScenarioID, "contracts", len(ids))
	writeJSON(w, http.StatusCreated, out)
}

// LoadScenario runs the named scenario against svc, using today as the
// reference date for sale dates.
func LoadScenario(ctx context.Context, svc *billing.Service, id string, today contract.Date) ([]contract.ContractID, error) {
	load, ok := scenarioLoaders[id]
	if !ok {
		return nil, fmt.Errorf("unknown scenario %q", id)
	}
	return load(ctx, svc, today)
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

func createSale(ctx context.Context, svc *billing.Service, doc factory.SaleJSON) (contract.ContractID, error) {
	in, err := factory.NewSaleFactory().ToInput(doc)
	if err != nil {
		return 0, err
	}
	sale, err := svc.CreateSale(ctx, in)
	if err != nil {
		return 0, err
	}
	return sale.Contract.ID, nil
}

func pay(ctx context.Context, svc *billing.Service, id contract.ContractID, number int, value string) (billing.PaymentResult, error) {
	return svc.ApplyPayment(ctx, billing.PaymentRequest{
		ContractID:        id,
		InstallmentNumber: number,
		AppliedValue:      contract.MustParseMoney(value),
	})
}

func saleDoc(clientID int64, saleDate contract.Date, total string, n int, cashback string) factory.SaleJSON {
	cb := contract.MustParseMoney(cashback)
	return factory.SaleJSON{
		ClientID:      clientID,
		ProductID:     1,
		StoreID:       1,
		SaleDate:      saleDate.String(),
		TotalValue:    contract.MustParseMoney(total),
		Installments:  n,
		CashbackValue: &cb,
	}
}

func loadFreshSaleScenario(ctx context.Context, svc *billing.Service, today contract.Date) ([]contract.ContractID, error) {
	id, err := createSale(ctx, svc, saleDoc(101, today, "1200.00", 12, "60.00"))
	if err != nil {
		return nil, err
	}
	return []contract.ContractID{id}, nil
}

func loadPartialPaymentsScenario(ctx context.Context, svc *billing.Service, today contract.Date) ([]contract.ContractID, error) {
	id, err := createSale(ctx, svc, saleDoc(102, today.AddMonths(-3), "1000.00", 4, "50.00"))
	if err != nil {
		return nil, err
	}
	if _, err := pay(ctx, svc, id, 1, "250.00"); err != nil {
		return nil, err
	}
	// Client negotiated a discount on the second installment.
	if _, err := pay(ctx, svc, id, 2, "230.00"); err != nil {
		return nil, err
	}
	return []contract.ContractID{id}, nil
}

func loadFinalizedScenario(ctx context.Context, svc *billing.Service, today contract.Date) ([]contract.ContractID, error) {
	id, err := createSale(ctx, svc, saleDoc(103, today.AddMonths(-4), "600.00", 3, "30.00"))
	if err != nil {
		return nil, err
	}
	for n := 1; n <= 3; n++ {
		if _, err := pay(ctx, svc, id, n, "200.00"); err != nil {
			return nil, err
		}
	}
	return []contract.ContractID{id}, nil
}

func loadCancelledScenario(ctx context.Context, svc *billing.Service, today contract.Date) ([]contract.ContractID, error) {
	id, err := createSale(ctx, svc, saleDoc(104, today.AddMonths(-2), "1000.00", 4, "50.00"))
	if err != nil {
		return nil, err
	}
	if _, err := pay(ctx, svc, id, 1, "250.00"); err != nil {
		return nil, err
	}
	if _, err := svc.CancelContract(ctx, billing.CancellationRequest{ContractID: id, Reason: "client withdrew"}); err != nil {
		return nil, err
	}
	return []contract.ContractID{id}, nil
}

func loadReversedPaymentScenario(ctx context.Context, svc *billing.Service, today contract.Date) ([]contract.ContractID, error) {
	id, err := createSale(ctx, svc, saleDoc(105, today.AddMonths(-1), "450.00", 3, "0"))
	if err != nil {
		return nil, err
	}
	res, err := pay(ctx, svc, id, 1, "150.00")
	if err != nil {
		return nil, err
	}
	if _, err := svc.ReverseTransaction(ctx, res.TransactionID); err != nil {
		return nil, err
	}
	return []contract.ContractID{id}, nil
}
