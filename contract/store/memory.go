// Package store provides in-memory Store implementations.
package store

import (
	"context"
	"fmt"
	"maps"
	"sort"
	"sync"

	"github.com/sistemacm/ledger-engine/contract"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

var (
	_ contract.Store   = (*Memory)(nil)
	_ contract.TxStore = (*TxMemory)(nil)
	_ contract.Store   = (*txMemoryView)(nil)
)

// Memory keeps every table in maps guarded by one RWMutex.
type Memory struct {
	mu sync.RWMutex
	st *state
}

type state struct {
	nextContract    int64
	nextInstallment int64
	nextPosting     int64

	contracts    map[contract.ContractID]contract.Contract
	installments map[contract.InstallmentID]contract.Installment
	schedules    map[contract.ContractID][]contract.InstallmentID // ordered by Number
	cashback     map[contract.ContractID]contract.Cashback
	history      []contract.HistoryEntry
	historyIdx   map[contract.TransactionID]int
	postings     []contract.Posting
}

func newState() *state {
	return &state{
		contracts:    make(map[contract.ContractID]contract.Contract),
		installments: make(map[contract.InstallmentID]contract.Installment),
		schedules:    make(map[contract.ContractID][]contract.InstallmentID),
		cashback:     make(map[contract.ContractID]contract.Cashback),
		historyIdx:   make(map[contract.TransactionID]int),
	}
}

func NewMemory() *Memory {
	return &Memory{st: newState()}
}

func (m *Memory) CreateSale(ctx context.Context, sale *contract.Sale) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.createSale(ctx, sale)
}

func (m *Memory) GetContract(ctx context.Context, id contract.ContractID) (contract.Contract, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.getContract(ctx, id)
}

func (m *Memory) ListContracts(ctx context.Context, filter contract.ContractFilter) ([]contract.Contract, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.listContracts(ctx, filter)
}

func (m *Memory) SetContractStatus(ctx context.Context, id contract.ContractID, status contract.ContractStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.setContractStatus(ctx, id, status)
}

func (m *Memory) ListInstallments(ctx context.Context, contractID contract.ContractID) ([]contract.Installment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.listInstallments(ctx, contractID)
}

func (m *Memory) GetInstallment(ctx context.Context, contractID contract.ContractID, number int) (contract.Installment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.getInstallment(ctx, contractID, number)
}

func (m *Memory) GetInstallmentByID(ctx context.Context, id contract.InstallmentID) (contract.Installment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.getInstallmentByID(ctx, id)
}

func (m *Memory) UpdateInstallment(ctx context.Context, inst contract.Installment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.updateInstallment(ctx, inst)
}

func (m *Memory) GetCashback(ctx context.Context, contractID contract.ContractID) (contract.Cashback, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.getCashback(ctx, contractID)
}

func (m *Memory) UpdateCashback(ctx context.Context, cb contract.Cashback) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.updateCashback(ctx, cb)
}

func (m *Memory) AppendHistory(ctx context.Context, entry contract.HistoryEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.appendHistory(ctx, entry)
}

func (m *Memory) GetHistory(ctx context.Context, id contract.TransactionID) (contract.HistoryEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.getHistory(ctx, id)
}

func (m *Memory) ListHistory(ctx context.Context, contractID contract.ContractID) ([]contract.HistoryEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.listHistory(ctx, contractID)
}

func (m *Memory) HistoryExists(ctx context.Context, id contract.TransactionID) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.historyExists(ctx, id)
}

func (m *Memory) MarkNotReversible(ctx context.Context, id contract.TransactionID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.markNotReversible(ctx, id)
}

func (m *Memory) AppendPosting(ctx context.Context, p contract.Posting) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.appendPosting(ctx, p)
}

func (m *Memory) ListPostings(ctx context.Context, filter contract.PostingFilter) ([]contract.Posting, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.listPostings(ctx, filter)
}

// =============================================================================
// TRANSACTIONAL MEMORY STORE
// =============================================================================

// TxMemory wraps Memory with transaction support.
type TxMemory struct {
	*Memory
}

func NewTxMemory() *TxMemory {
	return &TxMemory{Memory: NewMemory()}
}

// WithTx executes fn against a copy of the state and swaps the copy in
// only when fn succeeds.
func (tm *TxMemory) WithTx(ctx context.Context, fn func(contract.Store) error) error {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	working := tm.st.clone()
	if err := fn(&txMemoryView{st: working}); err != nil {
		return err
	}
	tm.st = working
	return nil
}

func (s *state) clone() *state {
	c := &state{
		nextContract:    s.nextContract,
		nextInstallment: s.nextInstallment,
		nextPosting:     s.nextPosting,
		contracts:       maps.Clone(s.contracts),
		installments:    maps.Clone(s.installments),
		schedules:       make(map[contract.ContractID][]contract.InstallmentID, len(s.schedules)),
		cashback:        maps.Clone(s.cashback),
		history:         make([]contract.HistoryEntry, len(s.history)),
		historyIdx:      maps.Clone(s.historyIdx),
		postings:        append([]contract.Posting(nil), s.postings...),
	}
	for k, v := range s.schedules {
		c.schedules[k] = append([]contract.InstallmentID(nil), v...)
	}
	for i, h := range s.history {
		h.Metadata = maps.Clone(h.Metadata)
		c.history[i] = h
	}
	return c
}

// txMemoryView is the Store handed to WithTx callbacks. The parent lock is
// already held.
type txMemoryView struct {
	st *state
}

func (v *txMemoryView) CreateSale(ctx context.Context, sale *contract.Sale) error {
	return v.st.createSale(ctx, sale)
}

func (v *txMemoryView) GetContract(ctx context.Context, id contract.ContractID) (contract.Contract, error) {
	return v.st.getContract(ctx, id)
}

func (v *txMemoryView) ListContracts(ctx context.Context, filter contract.ContractFilter) ([]contract.Contract, error) {
	return v.st.listContracts(ctx, filter)
}

func (v *txMemoryView) SetContractStatus(ctx context.Context, id contract.ContractID, status contract.ContractStatus) error {
	return v.st.setContractStatus(ctx, id, status)
}

func (v *txMemoryView) ListInstallments(ctx context.Context, contractID contract.ContractID) ([]contract.Installment, error) {
	return v.st.listInstallments(ctx, contractID)
}

func (v *txMemoryView) GetInstallment(ctx context.Context, contractID contract.ContractID, number int) (contract.Installment, error) {
	return v.st.getInstallment(ctx, contractID, number)
}

func (v *txMemoryView) GetInstallmentByID(ctx context.Context, id contract.InstallmentID) (contract.Installment, error) {
	return v.st.getInstallmentByID(ctx, id)
}

func (v *txMemoryView) UpdateInstallment(ctx context.Context, inst contract.Installment) error {
	return v.st.updateInstallment(ctx, inst)
}

func (v *txMemoryView) GetCashback(ctx context.Context, contractID contract.ContractID) (contract.Cashback, error) {
	return v.st.getCashback(ctx, contractID)
}

func (v *txMemoryView) UpdateCashback(ctx context.Context, cb contract.Cashback) error {
	return v.st.updateCashback(ctx, cb)
}

func (v *txMemoryView) AppendHistory(ctx context.Context, entry contract.HistoryEntry) error {
	return v.st.appendHistory(ctx, entry)
}

func (v *txMemoryView) GetHistory(ctx context.Context, id contract.TransactionID) (contract.HistoryEntry, error) {
	return v.st.getHistory(ctx, id)
}

func (v *txMemoryView) ListHistory(ctx context.Context, contractID contract.ContractID) ([]contract.HistoryEntry, error) {
	return v.st.listHistory(ctx, contractID)
}

func (v *txMemoryView) HistoryExists(ctx context.Context, id contract.TransactionID) (bool, error) {
	return v.st.historyExists(ctx, id)
}

func (v *txMemoryView) MarkNotReversible(ctx context.Context, id contract.TransactionID) (bool, error) {
	return v.st.markNotReversible(ctx, id)
}

func (v *txMemoryView) AppendPosting(ctx context.Context, p contract.Posting) error {
	return v.st.appendPosting(ctx, p)
}

func (v *txMemoryView) ListPostings(ctx context.Context, filter contract.PostingFilter) ([]contract.Posting, error) {
	return v.st.listPostings(ctx, filter)
}

// =============================================================================
// STATE OPERATIONS - callers hold the lock
// =============================================================================

func (s *state) createSale(_ context.Context, sale *contract.Sale) error {
	s.nextContract++
	id := contract.ContractID(s.nextContract)
	sale.Contract.ID = id
	s.contracts[id] = sale.Contract

	ids := make([]contract.InstallmentID, 0, len(sale.Installments))
	for i := range sale.Installments {
		s.nextInstallment++
		inst := &sale.Installments[i]
		inst.ID = contract.InstallmentID(s.nextInstallment)
		inst.ContractID = id
		s.installments[inst.ID] = *inst
		ids = append(ids, inst.ID)
	}
	sort.Slice(ids, func(a, b int) bool {
		return s.installments[ids[a]].Number < s.installments[ids[b]].Number
	})
	s.schedules[id] = ids

	sale.Cashback.ContractID = id
	s.cashback[id] = sale.Cashback
	return nil
}

func (s *state) getContract(_ context.Context, id contract.ContractID) (contract.Contract, error) {
	c, ok := s.contracts[id]
	if !ok {
		return contract.Contract{}, contract.ErrContractNotFound
	}
	return c, nil
}

func (s *state) listContracts(_ context.Context, filter contract.ContractFilter) ([]contract.Contract, error) {
	var out []contract.Contract
	for _, c := range s.contracts {
		if filter.Matches(c) {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *state) setContractStatus(_ context.Context, id contract.ContractID, status contract.ContractStatus) error {
	c, ok := s.contracts[id]
	if !ok {
		return contract.ErrContractNotFound
	}
	c.Status = status
	s.contracts[id] = c
	return nil
}

func (s *state) listInstallments(_ context.Context, contractID contract.ContractID) ([]contract.Installment, error) {
	ids := s.schedules[contractID]
	out := make([]contract.Installment, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.installments[id])
	}
	return out, nil
}

func (s *state) getInstallment(_ context.Context, contractID contract.ContractID, number int) (contract.Installment, error) {
	for _, id := range s.schedules[contractID] {
		if inst := s.installments[id]; inst.Number == number {
			return inst, nil
		}
	}
	return contract.Installment{}, contract.ErrInstallmentNotFound
}

func (s *state) getInstallmentByID(_ context.Context, id contract.InstallmentID) (contract.Installment, error) {
	inst, ok := s.installments[id]
	if !ok {
		return contract.Installment{}, contract.ErrInstallmentNotFound
	}
	return inst, nil
}

func (s *state) updateInstallment(_ context.Context, inst contract.Installment) error {
	cur, ok := s.installments[inst.ID]
	if !ok {
		return contract.ErrInstallmentNotFound
	}
	cur.Amount = inst.Amount
	cur.Status = inst.Status
	cur.PaidOn = nil
	if inst.PaidOn != nil {
		cur.PaidOn = inst.PaidOn.Ptr()
	}
	s.installments[inst.ID] = cur
	return nil
}

func (s *state) getCashback(_ context.Context, contractID contract.ContractID) (contract.Cashback, error) {
	cb, ok := s.cashback[contractID]
	if !ok {
		return contract.Cashback{}, contract.ErrCashbackNotFound
	}
	return cb, nil
}

func (s *state) updateCashback(_ context.Context, cb contract.Cashback) error {
	if _, ok := s.cashback[cb.ContractID]; !ok {
		return contract.ErrCashbackNotFound
	}
	if cb.ReleasedOn != nil {
		cb.ReleasedOn = cb.ReleasedOn.Ptr()
	}
	s.cashback[cb.ContractID] = cb
	return nil
}

func (s *state) appendHistory(_ context.Context, entry contract.HistoryEntry) error {
	if entry.TransactionID == "" {
		return fmt.Errorf("history entry without transaction id")
	}
	if _, dup := s.historyIdx[entry.TransactionID]; dup {
		return contract.ErrDuplicateTransactionID
	}
	entry.Metadata = maps.Clone(entry.Metadata)
	s.historyIdx[entry.TransactionID] = len(s.history)
	s.history = append(s.history, entry)
	return nil
}

func (s *state) getHistory(_ context.Context, id contract.TransactionID) (contract.HistoryEntry, error) {
	i, ok := s.historyIdx[id]
	if !ok {
		return contract.HistoryEntry{}, contract.ErrTransactionNotFound
	}
	h := s.history[i]
	h.Metadata = maps.Clone(h.Metadata)
	return h, nil
}

func (s *state) listHistory(_ context.Context, contractID contract.ContractID) ([]contract.HistoryEntry, error) {
	var out []contract.HistoryEntry
	for i := len(s.history) - 1; i >= 0; i-- {
		if h := s.history[i]; h.ContractID == contractID {
			h.Metadata = maps.Clone(h.Metadata)
			out = append(out, h)
		}
	}
	return out, nil
}

func (s *state) historyExists(_ context.Context, id contract.TransactionID) (bool, error) {
	_, ok := s.historyIdx[id]
	return ok, nil
}

func (s *state) markNotReversible(_ context.Context, id contract.TransactionID) (bool, error) {
	i, ok := s.historyIdx[id]
	if !ok {
		return false, contract.ErrTransactionNotFound
	}
	if !s.history[i].Reversible {
		return false, nil
	}
	s.history[i].Reversible = false
	return true, nil
}

func (s *state) appendPosting(_ context.Context, p contract.Posting) error {
	s.nextPosting++
	p.ID = s.nextPosting
	s.postings = append(s.postings, p)
	return nil
}

func (s *state) listPostings(_ context.Context, filter contract.PostingFilter) ([]contract.Posting, error) {
	var out []contract.Posting
	for _, p := range s.postings {
		if filter.Matches(p) {
			out = append(out, p)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}
