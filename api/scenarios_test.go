/*
scenarios_test.go - Tests for demo scenario loaders

Each scenario is loaded into a fresh in-memory engine and the resulting
contract state is checked against the scenario description.
*/
package api

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sistemacm/ledger-engine/contract"
)

var scenarioDay = contract.NewDate(2024, 3, 15)

func loadScenario(t *testing.T, id string) (*testServer, contract.ContractID) {
	t.Helper()
	s := newTestServer(t)
	ids, err := LoadScenario(context.Background(), s.svc, id, scenarioDay)
	require.NoError(t, err)
	require.Len(t, ids, 1)
	return s, ids[0]
}

func TestScenario_PartialPayments(t *testing.T) {
	s, id := loadScenario(t, "partial-payments")

	summary, err := s.svc.ContractSummary(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, contract.ContractActive, summary.Contract.Status)
	assert.Equal(t, 2, summary.Tally.Paid)
	assert.True(t, summary.Tally.PaidValue.Equal(contract.MustParseMoney("480")))
}

func TestScenario_Finalized(t *testing.T) {
	s, id := loadScenario(t, "finalized")

	summary, err := s.svc.ContractSummary(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, contract.ContractFinalized, summary.Contract.Status)
	require.NotNil(t, summary.Cashback)
	assert.Equal(t, contract.CashbackReleased, summary.Cashback.Status)
}

func TestScenario_Cancelled(t *testing.T) {
	s, id := loadScenario(t, "cancelled")

	summary, err := s.svc.ContractSummary(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, contract.ContractCancelled, summary.Contract.Status)
	assert.Equal(t, 1, summary.Tally.Paid)
	assert.Equal(t, 3, summary.Tally.Cancelled)
}

func TestScenario_ReversedPayment(t *testing.T) {
	s, id := loadScenario(t, "reversed-payment")

	summary, err := s.svc.ContractSummary(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Tally.Paid)
	assert.Equal(t, 3, summary.Tally.Pending)

	history, err := s.svc.History(context.Background(), id)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, contract.TxReversalApplied, history[0].Type)
}

func TestScenario_AllScenariosLoadWithoutError(t *testing.T) {
	for _, sc := range scenarios {
		t.Run(sc.ID, func(t *testing.T) {
			s := newTestServer(t)
			rec := s.do(http.MethodPost, "/api/scenarios/load", LoadScenarioRequest{ScenarioID: sc.ID})
			require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
			assert.Len(t, decode[LoadScenarioResponse](t, rec).ContractIDs, 1)
		})
	}
}

func TestScenario_Unknown(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(http.MethodPost, "/api/scenarios/load", LoadScenarioRequest{ScenarioID: "black-friday"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	list := decode[[]ScenarioDTO](t, s.do(http.MethodGet, "/api/scenarios", nil))
	assert.Len(t, list, len(scenarioLoaders))
}
