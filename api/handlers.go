/*
handlers.go - HTTP API handlers for the contract ledger engine

PURPOSE:
  Exposes the billing service via REST API. Handles HTTP request/response,
  JSON serialization, and delegates every decision to the billing package.

ENDPOINTS:
  Contracts:
    GET    /api/contracts                         List (?status=, ?client_id=)
    POST   /api/contracts                         Register a sale (factory.SaleJSON)
    GET    /api/contracts/{id}                    Summary with installments and cashback
    GET    /api/contracts/{id}/history            Transaction history, newest first

  Operations:
    POST   /api/contracts/{id}/installments/{number}/payment   Apply a payment
    GET    /api/contracts/{id}/cancellation                    Cancellation defaults
    POST   /api/contracts/{id}/cancellation                    Cancel the contract
    GET    /api/transactions/{txid}                            One history entry
    POST   /api/transactions/{txid}/reversal                   Reverse (estorno)

  Ledger:
    GET    /api/ledger          Postings (?from=, ?to=, ?category=, ?contract_id=, ?transaction_id=)
    GET    /api/ledger/summary  Totals per category with revenue, expense and net

REQUEST FLOW:
  1. Parse path, query and body
  2. Call the billing service
  3. Serialize response (dto.go)
  4. Map error kinds to HTTP status

ERROR HANDLING:
  Errors are returned as JSON with the status given by contract.KindOf:
  - 400: validation
  - 404: not found (contract, installment, transaction)
  - 409: invalid state, not reversible
  - 500: storage

SECURITY NOTE:
  No authentication. The engine is a single-operator tool bound to
  localhost by default.

SEE ALSO:
  - dto.go: Request/response data structures
  - scenarios.go: Demo scenario loaders
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/sistemacm/ledger-engine/billing"
	"github.com/sistemacm/ledger-engine/contract"
	"github.com/sistemacm/ledger-engine/factory"
	"github.com/sistemacm/ledger-engine/internal/logging"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds the dependencies of every endpoint.
type Handler struct {
	svc    *billing.Service
	sales  *factory.SaleFactory
	logger *slog.Logger
}

func NewHandler(svc *billing.Service, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		svc:    svc,
		sales:  factory.NewSaleFactory(),
		logger: logger,
	}
}

// RequestLogger stores a logger tagged with the chi request id in the
// request context. Must run after middleware.RequestID.
func (h *Handler) RequestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logger := h.logger.With("request_id", middleware.GetReqID(r.Context()))
		next.ServeHTTP(w, r.WithContext(logging.WithLogger(r.Context(), logger)))
	})
}

// =============================================================================
// CONTRACT ENDPOINTS
// =============================================================================

func (h *Handler) ListContracts(w http.ResponseWriter, r *http.Request) {
	var filter contract.ContractFilter
	if v := r.URL.Query().Get("status"); v != "" {
		status := contract.ContractStatus(v)
		if !status.Valid() {
			writeError(w, http.StatusBadRequest, "Invalid status", fmt.Errorf("unknown contract status %q", v))
			return
		}
		filter.Status = &status
	}
	if v := r.URL.Query().Get("client_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid client_id", err)
			return
		}
		filter.ClientID = &id
	}

	contracts, err := h.svc.ListContracts(r.Context(), filter)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	out := make([]ContractDTO, len(contracts))
	for i, c := range contracts {
		out[i] = toContractDTO(c)
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) CreateContract(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	in, err := h.sales.ParseSale(body)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	sale, err := h.svc.CreateSale(r.Context(), in)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	summary := billing.ContractSummary{
		Contract:     sale.Contract,
		Installments: sale.Installments,
		Cashback:     &sale.Cashback,
		Tally:        contract.TallyOf(sale.Installments),
	}
	writeJSON(w, http.StatusCreated, toSummaryDTO(summary))
}

func (h *Handler) GetContract(w http.ResponseWriter, r *http.Request) {
	id, ok := contractIDParam(w, r)
	if !ok {
		return
	}
	summary, err := h.svc.ContractSummary(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toSummaryDTO(summary))
}

func (h *Handler) GetHistory(w http.ResponseWriter, r *http.Request) {
	id, ok := contractIDParam(w, r)
	if !ok {
		return
	}
	entries, err := h.svc.History(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toHistoryDTOs(entries))
}

// =============================================================================
// PAYMENT / CANCELLATION / REVERSAL ENDPOINTS
// =============================================================================

func (h *Handler) ApplyPayment(w http.ResponseWriter, r *http.Request) {
	id, ok := contractIDParam(w, r)
	if !ok {
		return
	}
	number, err := strconv.Atoi(chi.URLParam(r, "number"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid installment number", err)
		return
	}

	var req PaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	res, err := h.svc.ApplyPayment(r.Context(), billing.PaymentRequest{
		ContractID:        id,
		InstallmentNumber: number,
		AppliedValue:      req.AppliedValue,
		Notes:             req.Notes,
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, PaymentResultDTO{
		TransactionID:     string(res.TransactionID),
		ContractID:        int64(res.ContractID),
		InstallmentNumber: res.InstallmentNumber,
		PriorAmount:       money(res.PriorAmount),
		AppliedAmount:     money(res.AppliedAmount),
		ContractStatus:    string(res.ContractStatus),
		RemainingPending:  res.RemainingPending,
		ContractFinalized: res.ContractFinalized,
		CashbackReleased:  money(res.CashbackReleased),
	})
}

func (h *Handler) GetCancellationQuote(w http.ResponseWriter, r *http.Request) {
	id, ok := contractIDParam(w, r)
	if !ok {
		return
	}
	q, err := h.svc.CancellationQuote(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, CancellationQuoteDTO{
		ContractID:          int64(q.ContractID),
		TotalValue:          money(q.TotalValue),
		PaidValue:           money(q.PaidValue),
		LostRevenue:         money(q.LostRevenue),
		CashbackToRelease:   money(q.CashbackToRelease),
		PendingInstallments: q.PendingInstallments,
	})
}

func (h *Handler) CancelContract(w http.ResponseWriter, r *http.Request) {
	id, ok := contractIDParam(w, r)
	if !ok {
		return
	}

	var req CancellationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	res, err := h.svc.CancelContract(r.Context(), billing.CancellationRequest{
		ContractID:        id,
		LostRevenue:       req.LostRevenue,
		CashbackToRelease: req.CashbackToRelease,
		Reason:            req.Reason,
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, CancellationResultDTO{
		TransactionID:         string(res.TransactionID),
		ContractID:            int64(res.ContractID),
		LostRevenue:           money(res.LostRevenue),
		RetainedRevenue:       money(res.RetainedRevenue),
		CashbackReleased:      money(res.CashbackReleased),
		CancelledInstallments: res.CancelledInstallments,
	})
}

func (h *Handler) GetTransaction(w http.ResponseWriter, r *http.Request) {
	id := contract.TransactionID(chi.URLParam(r, "txid"))
	entry, err := h.svc.Transaction(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toHistoryDTOs([]contract.HistoryEntry{entry})[0])
}

func (h *Handler) ReverseTransaction(w http.ResponseWriter, r *http.Request) {
	id := contract.TransactionID(chi.URLParam(r, "txid"))
	res, err := h.svc.ReverseTransaction(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ReversalResultDTO{
		ReversalID:           string(res.ReversalID),
		ReversedID:           string(res.ReversedID),
		ReversedType:         string(res.ReversedType),
		ContractID:           int64(res.ContractID),
		ContractStatus:       string(res.ContractStatus),
		RestoredInstallments: res.RestoredInstallments,
		CashbackHeld:         res.CashbackHeld,
	})
}

// =============================================================================
// LEDGER ENDPOINTS
// =============================================================================

func (h *Handler) ListPostings(w http.ResponseWriter, r *http.Request) {
	filter, err := postingFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid filter", err)
		return
	}
	postings, err := h.svc.Postings(r.Context(), filter)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toPostingDTOs(postings))
}

func (h *Handler) GetLedgerSummary(w http.ResponseWriter, r *http.Request) {
	filter, err := postingFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid filter", err)
		return
	}
	summary, err := h.svc.LedgerSummary(r.Context(), filter)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toLedgerSummaryDTO(summary))
}

func postingFilter(r *http.Request) (contract.PostingFilter, error) {
	q := r.URL.Query()
	filter := contract.PostingFilter{
		Category:      q.Get("category"),
		TransactionID: contract.TransactionID(q.Get("transaction_id")),
	}
	var err error
	if v := q.Get("from"); v != "" {
		if filter.From, err = contract.ParseDate(v); err != nil {
			return filter, err
		}
	}
	if v := q.Get("to"); v != "" {
		if filter.To, err = contract.ParseDate(v); err != nil {
			return filter, err
		}
	}
	if v := q.Get("contract_id"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return filter, fmt.Errorf("contract_id: %w", err)
		}
		id := contract.ContractID(n)
		filter.ContractID = &id
	}
	return filter, nil
}

// =============================================================================
// HELPERS
// =============================================================================

func contractIDParam(w http.ResponseWriter, r *http.Request) (contract.ContractID, bool) {
	n, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || n <= 0 {
		writeError(w, http.StatusBadRequest, "Invalid contract id", err)
		return 0, false
	}
	return contract.ContractID(n), true
}

// statusFor maps an engine error kind to its HTTP status.
func statusFor(err error) int {
	switch contract.KindOf(err) {
	case contract.KindValidation:
		return http.StatusBadRequest
	case contract.KindNotFound:
		return http.StatusNotFound
	case contract.KindInvalidState, contract.KindNotReversible:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		logging.FromContext(r.Context()).Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		writeJSON(w, status, ErrorResponse{Error: "Internal error", Kind: string(contract.KindStorage)})
		return
	}
	writeJSON(w, status, ErrorResponse{
		Error:   err.Error(),
		Kind:    string(contract.KindOf(err)),
		Details: detailsFor(err),
	})
}

// detailsFor adds the structured fields operators act on.
func detailsFor(err error) string {
	var nr *contract.NotReversibleError
	if errors.As(err, &nr) {
		return nr.Reason
	}
	var ve *contract.ValidationError
	if errors.As(err, &ve) {
		return ve.Field
	}
	var is *contract.InvalidStateError
	if errors.As(err, &is) {
		return is.Current
	}
	return ""
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
