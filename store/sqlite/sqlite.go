/*
Package sqlite provides a SQLite-backed implementation of contract.TxStore.

PURPOSE:
  Durable storage for contracts, installments, cashback records, the
  transaction history and ledger postings. This is the production store;
  contract/store/memory.go is the in-memory twin used by unit tests.

KEY TABLES:
  contrato:             Sold contracts (status Active/Finalized/Cancelled)
  parcela:              Installment schedule, UNIQUE(contrato_id, numero)
  cashback:             One row per contract (Held/Released)
  historico_transacoes: Reversible audit entries, transacao_id UNIQUE
  lancamento:           Revenue/expense postings (append-only)

ENCODING:
  Money is stored as TEXT (decimal.String) and summed in Go, never as REAL.
  Calendar days are ISO-8601 TEXT so they sort lexically; timestamps are
  RFC3339Nano. History metadata is a JSON object column.

SCHEMA:
  Versioned migrations live in migrations/ and are embedded in the binary.
  New() applies pending ones through a goose Provider before returning.

CONCURRENCY:
  The pool is limited to one connection and transactions start with
  BEGIN IMMEDIATE (_txlock=immediate), so there is a single writer at any
  time. WithTx additionally serializes units of work in-process. Every
  method of the Store handed to a WithTx callback runs on the *sql.Tx.

USAGE:
  store, err := sqlite.New("./data/sistemacm.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

SEE ALSO:
  - contract/store.go: Interface definitions
  - billing/service.go: Runs every operation inside WithTx
*/
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"
	"github.com/shopspring/decimal"

	"github.com/sistemacm/ledger-engine/contract"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

var (
	_ contract.TxStore = (*Store)(nil)
	_ contract.Store   = queries{}
)

// Store implements contract.TxStore using SQLite.
type Store struct {
	queries
	db     *sql.DB
	mu     sync.Mutex
	logger *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger used for migration output.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// New opens the database at dbPath and applies pending migrations.
// Use ":memory:" for an in-memory database.
func New(dbPath string, opts ...Option) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000&_txlock=immediate")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	store := &Store{queries: queries{db: db}, db: db, logger: slog.Default()}
	for _, opt := range opts {
		opt(store)
	}

	if err := store.Migrate(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Migrate applies every pending embedded migration.
func (s *Store) Migrate(ctx context.Context) error {
	fsys, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return err
	}
	provider, err := goose.NewProvider(goose.DialectSQLite3, s.db, fsys)
	if err != nil {
		return err
	}
	results, err := provider.Up(ctx)
	if err != nil {
		return err
	}
	for _, r := range results {
		s.logger.Info("migration applied", "version", r.Source.Version, "duration", r.Duration)
	}
	return nil
}

// WithTx executes fn within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(store contract.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(queries{db: sqlTx}); err != nil {
		return err
	}
	return sqlTx.Commit()
}

// =============================================================================
// QUERIES - shared by *sql.DB and *sql.Tx
// =============================================================================

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type queries struct {
	db querier
}

// =============================================================================
// CONTRACTS
// =============================================================================

const contractColumns = `id, cliente_id, produto_id, loja_id, data_venda, valor_total,
	num_parcelas, valor_parcela, cashback_valor, status, observacoes, created_at`

func (q queries) CreateSale(ctx context.Context, sale *contract.Sale) error {
	c := &sale.Contract
	res, err := q.db.ExecContext(ctx, `
		INSERT INTO contrato (cliente_id, produto_id, loja_id, data_venda, valor_total,
			num_parcelas, valor_parcela, cashback_valor, status, observacoes, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ClientID, c.ProductID, c.StoreID, c.SaleDate.String(), c.TotalValue.String(),
		c.InstallmentCount, c.InstallmentValue.String(), c.CashbackValue.String(),
		string(c.Status), c.Notes, formatTime(c.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert contract: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	c.ID = contract.ContractID(id)

	for i := range sale.Installments {
		inst := &sale.Installments[i]
		inst.ContractID = c.ID
		res, err := q.db.ExecContext(ctx, `
			INSERT INTO parcela (contrato_id, numero, vencimento, valor, status, data_pagamento)
			VALUES (?, ?, ?, ?, ?, ?)`,
			inst.ContractID, inst.Number, inst.DueDate.String(), inst.Amount.String(),
			string(inst.Status), formatDatePtr(inst.PaidOn),
		)
		if err != nil {
			return fmt.Errorf("insert installment %d: %w", inst.Number, err)
		}
		iid, err := res.LastInsertId()
		if err != nil {
			return err
		}
		inst.ID = contract.InstallmentID(iid)
	}

	cb := &sale.Cashback
	cb.ContractID = c.ID
	_, err = q.db.ExecContext(ctx, `
		INSERT INTO cashback (contrato_id, valor, status, data_liberacao) VALUES (?, ?, ?, ?)`,
		cb.ContractID, cb.Value.String(), string(cb.Status), formatDatePtr(cb.ReleasedOn),
	)
	if err != nil {
		return fmt.Errorf("insert cashback: %w", err)
	}
	return nil
}

func (q queries) GetContract(ctx context.Context, id contract.ContractID) (contract.Contract, error) {
	row := q.db.QueryRowContext(ctx, `SELECT `+contractColumns+` FROM contrato WHERE id = ?`, id)
	c, err := scanContract(row)
	if errors.Is(err, sql.ErrNoRows) {
		return contract.Contract{}, contract.ErrContractNotFound
	}
	return c, err
}

func (q queries) ListContracts(ctx context.Context, filter contract.ContractFilter) ([]contract.Contract, error) {
	var where []string
	var args []any
	if filter.Status != nil {
		where = append(where, "status = ?")
		args = append(args, string(*filter.Status))
	}
	if filter.ClientID != nil {
		where = append(where, "cliente_id = ?")
		args = append(args, *filter.ClientID)
	}
	query := `SELECT ` + contractColumns + ` FROM contrato`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY id"

	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []contract.Contract
	for rows.Next() {
		c, err := scanContract(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (q queries) SetContractStatus(ctx context.Context, id contract.ContractID, status contract.ContractStatus) error {
	res, err := q.db.ExecContext(ctx, `UPDATE contrato SET status = ? WHERE id = ?`, string(status), id)
	if err != nil {
		return err
	}
	return requireRow(res, contract.ErrContractNotFound)
}

// =============================================================================
// INSTALLMENTS
// =============================================================================

const installmentColumns = `id, contrato_id, numero, vencimento, valor, status, data_pagamento`

func (q queries) ListInstallments(ctx context.Context, contractID contract.ContractID) ([]contract.Installment, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT `+installmentColumns+` FROM parcela WHERE contrato_id = ? ORDER BY numero`, contractID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []contract.Installment
	for rows.Next() {
		inst, err := scanInstallment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, inst)
	}
	return out, rows.Err()
}

func (q queries) GetInstallment(ctx context.Context, contractID contract.ContractID, number int) (contract.Installment, error) {
	row := q.db.QueryRowContext(ctx,
		`SELECT `+installmentColumns+` FROM parcela WHERE contrato_id = ? AND numero = ?`, contractID, number)
	inst, err := scanInstallment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return contract.Installment{}, contract.ErrInstallmentNotFound
	}
	return inst, err
}

func (q queries) GetInstallmentByID(ctx context.Context, id contract.InstallmentID) (contract.Installment, error) {
	row := q.db.QueryRowContext(ctx, `SELECT `+installmentColumns+` FROM parcela WHERE id = ?`, id)
	inst, err := scanInstallment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return contract.Installment{}, contract.ErrInstallmentNotFound
	}
	return inst, err
}

func (q queries) UpdateInstallment(ctx context.Context, inst contract.Installment) error {
	res, err := q.db.ExecContext(ctx,
		`UPDATE parcela SET valor = ?, status = ?, data_pagamento = ? WHERE id = ?`,
		inst.Amount.String(), string(inst.Status), formatDatePtr(inst.PaidOn), inst.ID,
	)
	if err != nil {
		return err
	}
	return requireRow(res, contract.ErrInstallmentNotFound)
}

// =============================================================================
// CASHBACK
// =============================================================================

func (q queries) GetCashback(ctx context.Context, contractID contract.ContractID) (contract.Cashback, error) {
	var (
		cb       contract.Cashback
		value    string
		status   string
		released sql.NullString
	)
	err := q.db.QueryRowContext(ctx,
		`SELECT contrato_id, valor, status, data_liberacao FROM cashback WHERE contrato_id = ?`, contractID,
	).Scan(&cb.ContractID, &value, &status, &released)
	if errors.Is(err, sql.ErrNoRows) {
		return contract.Cashback{}, contract.ErrCashbackNotFound
	}
	if err != nil {
		return contract.Cashback{}, err
	}
	if cb.Value, err = decimal.NewFromString(value); err != nil {
		return contract.Cashback{}, fmt.Errorf("cashback %d value: %w", contractID, err)
	}
	cb.Status = contract.CashbackStatus(status)
	if cb.ReleasedOn, err = parseDatePtr(released); err != nil {
		return contract.Cashback{}, err
	}
	return cb, nil
}

func (q queries) UpdateCashback(ctx context.Context, cb contract.Cashback) error {
	res, err := q.db.ExecContext(ctx,
		`UPDATE cashback SET valor = ?, status = ?, data_liberacao = ? WHERE contrato_id = ?`,
		cb.Value.String(), string(cb.Status), formatDatePtr(cb.ReleasedOn), cb.ContractID,
	)
	if err != nil {
		return err
	}
	return requireRow(res, contract.ErrCashbackNotFound)
}

// =============================================================================
// TRANSACTION HISTORY
// =============================================================================

const historyColumns = `transacao_id, tipo, contrato_id, parcela_id, valor_original, valor_transacao,
	status_anterior, status_novo, data, created_at, observacoes, pode_estornar, metadata_json`

func (q queries) AppendHistory(ctx context.Context, e contract.HistoryEntry) error {
	meta := e.Metadata
	if meta == nil {
		meta = map[string]string{}
	}
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	var installmentID any
	if e.InstallmentID != nil {
		installmentID = int64(*e.InstallmentID)
	}

	_, err = q.db.ExecContext(ctx, `
		INSERT INTO historico_transacoes (`+historyColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		string(e.TransactionID), string(e.Type), e.ContractID, installmentID,
		e.OriginalValue.String(), e.AppliedValue.String(), e.PriorStatus, e.NewStatus,
		e.Date.String(), formatTime(e.CreatedAt), e.Notes, e.Reversible, string(metaJSON),
	)
	if isUniqueConstraintError(err) {
		return fmt.Errorf("%w: %s", contract.ErrDuplicateTransactionID, e.TransactionID)
	}
	return err
}

func (q queries) GetHistory(ctx context.Context, id contract.TransactionID) (contract.HistoryEntry, error) {
	row := q.db.QueryRowContext(ctx,
		`SELECT `+historyColumns+` FROM historico_transacoes WHERE transacao_id = ?`, string(id))
	e, err := scanHistory(row)
	if errors.Is(err, sql.ErrNoRows) {
		return contract.HistoryEntry{}, contract.ErrTransactionNotFound
	}
	return e, err
}

func (q queries) ListHistory(ctx context.Context, contractID contract.ContractID) ([]contract.HistoryEntry, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT `+historyColumns+` FROM historico_transacoes WHERE contrato_id = ? ORDER BY seq DESC`, contractID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []contract.HistoryEntry
	for rows.Next() {
		e, err := scanHistory(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (q queries) HistoryExists(ctx context.Context, id contract.TransactionID) (bool, error) {
	var count int
	err := q.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM historico_transacoes WHERE transacao_id = ?`, string(id)).Scan(&count)
	return count > 0, err
}

// MarkNotReversible is a conditional update: of two callers racing on the
// same id, only one sees a changed row.
func (q queries) MarkNotReversible(ctx context.Context, id contract.TransactionID) (bool, error) {
	res, err := q.db.ExecContext(ctx,
		`UPDATE historico_transacoes SET pode_estornar = 0 WHERE transacao_id = ? AND pode_estornar = 1`, string(id))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 1 {
		return true, nil
	}
	exists, err := q.HistoryExists(ctx, id)
	if err != nil {
		return false, err
	}
	if !exists {
		return false, contract.ErrTransactionNotFound
	}
	return false, nil
}

// =============================================================================
// LEDGER POSTINGS
// =============================================================================

const postingColumns = `id, tipo, data, categoria, descricao, valor, status, observacoes,
	transacao_id, contrato_id, created_at`

func (q queries) AppendPosting(ctx context.Context, p contract.Posting) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO lancamento (tipo, data, categoria, descricao, valor, status, observacoes,
			transacao_id, contrato_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		string(p.Kind), p.Date.String(), p.Category, p.Description, p.Amount.String(),
		string(p.Status), p.Notes, string(p.TransactionID), p.ContractID, formatTime(p.CreatedAt),
	)
	return err
}

func (q queries) ListPostings(ctx context.Context, filter contract.PostingFilter) ([]contract.Posting, error) {
	var where []string
	var args []any
	if !filter.From.IsZero() {
		where = append(where, "data >= ?")
		args = append(args, filter.From.String())
	}
	if !filter.To.IsZero() {
		where = append(where, "data <= ?")
		args = append(args, filter.To.String())
	}
	if filter.Category != "" {
		where = append(where, "categoria = ?")
		args = append(args, filter.Category)
	}
	if filter.ContractID != nil {
		where = append(where, "contrato_id = ?")
		args = append(args, *filter.ContractID)
	}
	if filter.TransactionID != "" {
		where = append(where, "transacao_id = ?")
		args = append(args, string(filter.TransactionID))
	}

	query := `SELECT ` + postingColumns + ` FROM lancamento`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY data, id"

	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []contract.Posting
	for rows.Next() {
		p, err := scanPosting(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// =============================================================================
// SCANNING
// =============================================================================

type scanner interface {
	Scan(dest ...any) error
}

func scanContract(row scanner) (contract.Contract, error) {
	var (
		c                              contract.Contract
		saleDate, total, per, cashback string
		status, createdAt              string
	)
	err := row.Scan(&c.ID, &c.ClientID, &c.ProductID, &c.StoreID, &saleDate, &total,
		&c.InstallmentCount, &per, &cashback, &status, &c.Notes, &createdAt)
	if err != nil {
		return contract.Contract{}, err
	}

	var p parser
	c.SaleDate = p.date(saleDate)
	c.TotalValue = p.money(total)
	c.InstallmentValue = p.money(per)
	c.CashbackValue = p.money(cashback)
	c.CreatedAt = p.time(createdAt)
	c.Status = contract.ContractStatus(status)
	if p.err != nil {
		return contract.Contract{}, fmt.Errorf("contract %d: %w", c.ID, p.err)
	}
	return c, nil
}

func scanInstallment(row scanner) (contract.Installment, error) {
	var (
		inst                contract.Installment
		due, amount, status string
		paid                sql.NullString
	)
	if err := row.Scan(&inst.ID, &inst.ContractID, &inst.Number, &due, &amount, &status, &paid); err != nil {
		return contract.Installment{}, err
	}

	var p parser
	inst.DueDate = p.date(due)
	inst.Amount = p.money(amount)
	inst.Status = contract.InstallmentStatus(status)
	if p.err != nil {
		return contract.Installment{}, fmt.Errorf("installment %d: %w", inst.ID, p.err)
	}
	var err error
	if inst.PaidOn, err = parseDatePtr(paid); err != nil {
		return contract.Installment{}, err
	}
	return inst, nil
}

func scanHistory(row scanner) (contract.HistoryEntry, error) {
	var (
		e                         contract.HistoryEntry
		txID, txType              string
		installmentID             sql.NullInt64
		original, applied         string
		date, createdAt, metaJSON string
	)
	err := row.Scan(&txID, &txType, &e.ContractID, &installmentID, &original, &applied,
		&e.PriorStatus, &e.NewStatus, &date, &createdAt, &e.Notes, &e.Reversible, &metaJSON)
	if err != nil {
		return contract.HistoryEntry{}, err
	}

	e.TransactionID = contract.TransactionID(txID)
	e.Type = contract.TransactionType(txType)
	if installmentID.Valid {
		id := contract.InstallmentID(installmentID.Int64)
		e.InstallmentID = &id
	}

	var p parser
	e.OriginalValue = p.money(original)
	e.AppliedValue = p.money(applied)
	e.Date = p.date(date)
	e.CreatedAt = p.time(createdAt)
	if p.err != nil {
		return contract.HistoryEntry{}, fmt.Errorf("history %s: %w", txID, p.err)
	}
	if err := json.Unmarshal([]byte(metaJSON), &e.Metadata); err != nil {
		return contract.HistoryEntry{}, fmt.Errorf("history %s metadata: %w", txID, err)
	}
	return e, nil
}

func scanPosting(row scanner) (contract.Posting, error) {
	var (
		p                                contract.Posting
		kind, date, amount, status, txID string
		createdAt                        string
	)
	err := row.Scan(&p.ID, &kind, &date, &p.Category, &p.Description, &amount, &status,
		&p.Notes, &txID, &p.ContractID, &createdAt)
	if err != nil {
		return contract.Posting{}, err
	}

	p.Kind = contract.PostingKind(kind)
	p.Status = contract.PostingStatus(status)
	p.TransactionID = contract.TransactionID(txID)

	var ps parser
	p.Date = ps.date(date)
	p.Amount = ps.money(amount)
	p.CreatedAt = ps.time(createdAt)
	if ps.err != nil {
		return contract.Posting{}, fmt.Errorf("posting %d: %w", p.ID, ps.err)
	}
	return p, nil
}

// =============================================================================
// HELPERS
// =============================================================================

// parser keeps the first decoding error so column conversions read linearly.
type parser struct {
	err error
}

func (p *parser) money(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil && p.err == nil {
		p.err = err
	}
	return d
}

func (p *parser) date(s string) contract.Date {
	t, err := time.Parse(contract.ISODate, s)
	if err != nil && p.err == nil {
		p.err = err
	}
	return contract.DateOf(t)
}

func (p *parser) time(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil && p.err == nil {
		p.err = err
	}
	return t
}

func parseDatePtr(ns sql.NullString) (*contract.Date, error) {
	if !ns.Valid {
		return nil, nil
	}
	t, err := time.Parse(contract.ISODate, ns.String)
	if err != nil {
		return nil, err
	}
	return contract.DateOf(t).Ptr(), nil
}

func formatDatePtr(d *contract.Date) any {
	if d == nil {
		return nil
	}
	return d.String()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func requireRow(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound
	}
	return nil
}

func isUniqueConstraintError(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}
