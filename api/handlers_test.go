/*
handlers_test.go - HTTP tests for the API handlers

Tests for:
- Sale registration and contract summary
- Payment, cancellation and reversal endpoints
- Error kind to HTTP status mapping
- Ledger listing and summary
*/
package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sistemacm/ledger-engine/billing"
	"github.com/sistemacm/ledger-engine/contract"
	memstore "github.com/sistemacm/ledger-engine/contract/store"
	"github.com/sistemacm/ledger-engine/internal/logging"
)

type testServer struct {
	t      *testing.T
	router http.Handler
	svc    *billing.Service
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	svc := billing.NewService(memstore.NewTxMemory(),
		billing.WithClock(contract.FixedClock{T: time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)}),
		billing.WithLogger(logging.Discard()),
	)
	h := NewHandler(svc, logging.Discard())
	return &testServer{t: t, router: NewRouter(h, []string{"http://localhost:5173"}), svc: svc}
}

func (s *testServer) do(method, path string, body any) *httptest.ResponseRecorder {
	s.t.Helper()
	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case string:
		buf.WriteString(b)
	default:
		require.NoError(s.t, json.NewEncoder(&buf).Encode(b))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

const saleBody = `{
	"client_id": 7,
	"product_id": 2,
	"sale_date": "05/01/2024",
	"total_value": "1000.00",
	"installments": 4,
	"cashback_value": "50.00"
}`

func (s *testServer) createContract() ContractSummaryDTO {
	s.t.Helper()
	rec := s.do(http.MethodPost, "/api/contracts", saleBody)
	require.Equal(s.t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[ContractSummaryDTO](s.t, rec)
}

func TestCreateContract_ReturnsSchedule(t *testing.T) {
	// GIVEN: A sale document for 1000.00 in 4 installments
	// WHEN: Posting it
	// THEN: The contract is Active with 4 pending installments of 250.00
	s := newTestServer(t)

	got := s.createContract()

	assert.Equal(t, "Active", got.Contract.Status)
	assert.Equal(t, "2024-01-05", got.Contract.SaleDate)
	require.Len(t, got.Installments, 4)
	for i, inst := range got.Installments {
		assert.Equal(t, i+1, inst.Number)
		assert.Equal(t, "250.00", inst.Amount)
		assert.Equal(t, "Pending", inst.Status)
	}
	assert.Equal(t, "2024-02-05", got.Installments[0].DueDate)
	require.NotNil(t, got.Cashback)
	assert.Equal(t, "Held", got.Cashback.Status)
}

func TestCreateContract_InvalidDocument(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(http.MethodPost, "/api/contracts", `{"client_id": 7, "product_id": 2, "sale_date": "2024-01-05", "total_value": "0", "installments": 4}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "validation", decode[ErrorResponse](t, rec).Kind)
}

func TestApplyPayment_Endpoint(t *testing.T) {
	s := newTestServer(t)
	c := s.createContract()
	path := "/api/contracts/" + itoa(c.Contract.ID) + "/installments/1/payment"

	rec := s.do(http.MethodPost, path, map[string]string{"applied_value": "240.00", "notes": "pix"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	res := decode[PaymentResultDTO](t, rec)
	assert.Len(t, res.TransactionID, 8)
	assert.Equal(t, "250.00", res.PriorAmount)
	assert.Equal(t, "240.00", res.AppliedAmount)
	assert.Equal(t, 3, res.RemainingPending)
	assert.False(t, res.ContractFinalized)

	t.Run("already paid is a conflict", func(t *testing.T) {
		rec := s.do(http.MethodPost, path, map[string]string{"applied_value": "250.00"})
		assert.Equal(t, http.StatusConflict, rec.Code)
		assert.Equal(t, "invalid_state", decode[ErrorResponse](t, rec).Kind)
	})

	t.Run("unknown installment is not found", func(t *testing.T) {
		rec := s.do(http.MethodPost, "/api/contracts/"+itoa(c.Contract.ID)+"/installments/9/payment", map[string]string{"applied_value": "10"})
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("zero amount is a validation error", func(t *testing.T) {
		rec := s.do(http.MethodPost, "/api/contracts/"+itoa(c.Contract.ID)+"/installments/2/payment", map[string]string{"applied_value": "0"})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "validation", decode[ErrorResponse](t, rec).Kind)
	})

	t.Run("bad installment number", func(t *testing.T) {
		rec := s.do(http.MethodPost, "/api/contracts/"+itoa(c.Contract.ID)+"/installments/x/payment", map[string]string{"applied_value": "10"})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestCancellation_QuoteThenCancel(t *testing.T) {
	// GIVEN: A 1000.00/4 contract with one installment paid
	// WHEN: Reading the quote and cancelling with defaults
	// THEN: Lost revenue is 750.00, retained 250.00 and cashback 50.00
	s := newTestServer(t)
	c := s.createContract()
	id := itoa(c.Contract.ID)
	require.Equal(t, http.StatusOK, s.do(http.MethodPost, "/api/contracts/"+id+"/installments/1/payment", map[string]string{"applied_value": "250"}).Code)

	rec := s.do(http.MethodGet, "/api/contracts/"+id+"/cancellation", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	q := decode[CancellationQuoteDTO](t, rec)
	assert.Equal(t, "750.00", q.LostRevenue)
	assert.Equal(t, "50.00", q.CashbackToRelease)
	assert.Equal(t, 3, q.PendingInstallments)

	rec = s.do(http.MethodPost, "/api/contracts/"+id+"/cancellation", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	res := decode[CancellationResultDTO](t, rec)
	assert.Equal(t, "750.00", res.LostRevenue)
	assert.Equal(t, "250.00", res.RetainedRevenue)
	assert.Equal(t, "50.00", res.CashbackReleased)
	assert.Equal(t, 3, res.CancelledInstallments)

	summary := decode[ContractSummaryDTO](t, s.do(http.MethodGet, "/api/contracts/"+id, nil))
	assert.Equal(t, "Cancelled", summary.Contract.Status)
	assert.Equal(t, "Released", summary.Cashback.Status)

	rec = s.do(http.MethodPost, "/api/contracts/"+id+"/cancellation", nil)
	assert.Equal(t, http.StatusConflict, rec.Code, "cancelling twice")
}

func TestCancellation_NegativeOverride(t *testing.T) {
	s := newTestServer(t)
	c := s.createContract()

	rec := s.do(http.MethodPost, "/api/contracts/"+itoa(c.Contract.ID)+"/cancellation", `{"lost_revenue": "-1"}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "lost revenue", decode[ErrorResponse](t, rec).Details)
}

func TestReversal_Endpoint(t *testing.T) {
	s := newTestServer(t)
	c := s.createContract()
	id := itoa(c.Contract.ID)
	pay := decode[PaymentResultDTO](t, s.do(http.MethodPost, "/api/contracts/"+id+"/installments/2/payment", map[string]string{"applied_value": "300"}))

	rec := s.do(http.MethodPost, "/api/transactions/"+pay.TransactionID+"/reversal", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	res := decode[ReversalResultDTO](t, rec)
	assert.Equal(t, "EST_"+pay.TransactionID, res.ReversalID)
	assert.Equal(t, "PaymentApplied", res.ReversedType)
	assert.Equal(t, 1, res.RestoredInstallments)

	summary := decode[ContractSummaryDTO](t, s.do(http.MethodGet, "/api/contracts/"+id, nil))
	assert.Equal(t, "Pending", summary.Installments[1].Status)
	assert.Equal(t, "250.00", summary.Installments[1].Amount)

	t.Run("second reversal is rejected", func(t *testing.T) {
		rec := s.do(http.MethodPost, "/api/transactions/"+pay.TransactionID+"/reversal", nil)
		assert.Equal(t, http.StatusConflict, rec.Code)
		body := decode[ErrorResponse](t, rec)
		assert.Equal(t, "not_reversible", body.Kind)
		assert.Equal(t, "already reversed", body.Details)
	})

	t.Run("original entry is no longer reversible", func(t *testing.T) {
		entry := decode[HistoryEntryDTO](t, s.do(http.MethodGet, "/api/transactions/"+pay.TransactionID, nil))
		assert.False(t, entry.Reversible)
	})

	t.Run("history lists reversal first", func(t *testing.T) {
		history := decode[[]HistoryEntryDTO](t, s.do(http.MethodGet, "/api/contracts/"+id+"/history", nil))
		require.Len(t, history, 2)
		assert.Equal(t, "ReversalApplied", history[0].Type)
		assert.Equal(t, pay.TransactionID, history[0].Metadata[contract.MetaReversedTransaction])
	})
}

func TestReversal_UnknownTransaction(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(http.MethodPost, "/api/transactions/nope1234/reversal", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "not_reversible", decode[ErrorResponse](t, rec).Kind)

	rec = s.do(http.MethodGet, "/api/transactions/nope1234", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetContract_NotFoundAndBadID(t *testing.T) {
	s := newTestServer(t)

	assert.Equal(t, http.StatusNotFound, s.do(http.MethodGet, "/api/contracts/42", nil).Code)
	assert.Equal(t, http.StatusBadRequest, s.do(http.MethodGet, "/api/contracts/abc", nil).Code)
	assert.Equal(t, http.StatusNotFound, s.do(http.MethodGet, "/api/contracts/42/history", nil).Code)
}

func TestListContracts_StatusFilter(t *testing.T) {
	s := newTestServer(t)
	a := s.createContract()
	s.createContract()
	require.Equal(t, http.StatusOK, s.do(http.MethodPost, "/api/contracts/"+itoa(a.Contract.ID)+"/cancellation", nil).Code)

	all := decode[[]ContractDTO](t, s.do(http.MethodGet, "/api/contracts", nil))
	assert.Len(t, all, 2)

	cancelled := decode[[]ContractDTO](t, s.do(http.MethodGet, "/api/contracts?status=Cancelled", nil))
	require.Len(t, cancelled, 1)
	assert.Equal(t, a.Contract.ID, cancelled[0].ID)

	assert.Equal(t, http.StatusBadRequest, s.do(http.MethodGet, "/api/contracts?status=Lost", nil).Code)
}

func TestLedger_PostingsAndSummary(t *testing.T) {
	s := newTestServer(t)
	c := s.createContract()
	id := itoa(c.Contract.ID)
	s.do(http.MethodPost, "/api/contracts/"+id+"/installments/1/payment", map[string]string{"applied_value": "250"})
	s.do(http.MethodPost, "/api/contracts/"+id+"/cancellation", map[string]string{"reason": "moved away"})

	postings := decode[[]PostingDTO](t, s.do(http.MethodGet, "/api/ledger?contract_id="+id, nil))
	require.Len(t, postings, 4)
	for _, p := range postings {
		assert.True(t, strings.Contains(p.Description, "[ID: "+p.TransactionID+"]"), p.Description)
	}

	summary := decode[LedgerSummaryDTO](t, s.do(http.MethodGet, "/api/ledger/summary?from=2024-03-01&to=2024-03-31", nil))
	// 250 installment - 750 lost + 250 retained
	assert.Equal(t, "-250.00", summary.Revenue)
	assert.Equal(t, "50.00", summary.Expense)
	assert.Equal(t, "-300.00", summary.Net)

	rec := s.do(http.MethodGet, "/api/ledger?from=2024-04-01&to=2024-03-01", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(http.MethodGet, "/api/ledger?from=yesterday", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealthAndMetrics(t *testing.T) {
	s := newTestServer(t)

	assert.Equal(t, http.StatusOK, s.do(http.MethodGet, "/healthz", nil).Code)

	rec := s.do(http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, statusFor(&contract.ValidationError{Field: "x", Message: "y"}))
	assert.Equal(t, http.StatusNotFound, statusFor(contract.ErrContractNotFound))
	assert.Equal(t, http.StatusConflict, statusFor(&contract.InvalidStateError{Op: "pay", Entity: "contract", ID: 1, Current: "Cancelled"}))
	assert.Equal(t, http.StatusConflict, statusFor(&contract.NotReversibleError{TransactionID: "a", Reason: "already reversed"}))
	assert.Equal(t, http.StatusInternalServerError, statusFor(&contract.StorageError{Op: "x", Err: assert.AnError}))
}

func itoa(n int64) string { return strconv.FormatInt(n, 10) }

func TestRequestLogger_TagsHandlerLogsWithRequestID(t *testing.T) {
	// GIVEN: A router whose handler logs to a buffer
	// WHEN: A request makes a handler log
	// THEN: The log line carries the chi request id
	var logs bytes.Buffer
	svc := billing.NewService(memstore.NewTxMemory(), billing.WithLogger(logging.Discard()))
	router := NewRouter(NewHandler(svc, logging.NewWithWriter(&logs, "info", "json")), nil)

	req := httptest.NewRequest(http.MethodPost, "/api/scenarios/load", strings.NewReader(`{"scenario_id":"fresh-sale"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var line map[string]any
	require.NoError(t, json.Unmarshal(logs.Bytes(), &line), logs.String())
	assert.Equal(t, "scenario loaded", line["msg"])
	assert.NotEmpty(t, line["request_id"])
}
