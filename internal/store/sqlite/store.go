// Package sqlite persists the transaction ledger and the derived positions
// table. Every mutation commits the ledger change and the recomputed
// position in one SQL transaction so readers never observe a half-applied
// write.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"portfolio-systemv1/internal/model"
)

// ErrNotFound is returned for lookups of unknown order ids or symbols.
var ErrNotFound = errors.New("not found")

// Config configures the SQLite store.
type Config struct {
	DBPath string // path to SQLite database file, e.g. "data/portfolio.db"
}

// Store is a single-writer SQLite store for transactions and positions.
type Store struct {
	db *sql.DB
}

// DB returns the underlying sql.DB for health checks.
func (s *Store) DB() *sql.DB { return s.db }

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

// New opens the store, initializes WAL mode and the schema.
func New(cfg Config) (*Store, error) {
	db, err := sql.Open("sqlite3", cfg.DBPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}

	// Set connection pool for single-writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}

	log.Printf("[sqlite] opened database at %s", cfg.DBPath)
	return &Store{db: db}, nil
}

func createSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS transactions (
			order_id    TEXT    PRIMARY KEY,
			symbol      TEXT    NOT NULL,
			stock_name  TEXT    NOT NULL,
			isin        TEXT    NOT NULL,
			type        TEXT    NOT NULL,
			quantity    TEXT    NOT NULL,
			value       TEXT    NOT NULL,
			exchange    TEXT    NOT NULL,
			geography   TEXT    NOT NULL,
			category    TEXT    NOT NULL,
			executed_at INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_transactions_symbol
			ON transactions(symbol, executed_at);

		CREATE TABLE IF NOT EXISTS positions (
			symbol         TEXT PRIMARY KEY,
			stock_name     TEXT NOT NULL,
			isin           TEXT NOT NULL,
			quantity       TEXT NOT NULL,
			avg_cost       TEXT NOT NULL,
			total_invested TEXT NOT NULL,
			geography      TEXT NOT NULL,
			category       TEXT NOT NULL,
			last_activity  INTEGER NOT NULL
		);
	`)
	return err
}

const txColumns = `order_id, symbol, stock_name, isin, type, quantity, value,
	exchange, geography, category, executed_at`

func scanTransaction(row interface{ Scan(...any) error }) (model.Transaction, error) {
	var t model.Transaction
	var kind, qty, value string
	var executedAt int64
	err := row.Scan(&t.OrderID, &t.Symbol, &t.StockName, &t.ISIN, &kind,
		&qty, &value, &t.Exchange, &t.Geography, &t.Category, &executedAt)
	if err != nil {
		return model.Transaction{}, err
	}
	t.Kind = model.Kind(kind)
	if t.Quantity, err = decimal.NewFromString(qty); err != nil {
		return model.Transaction{}, fmt.Errorf("transaction %s quantity: %w", t.OrderID, err)
	}
	if t.Value, err = decimal.NewFromString(value); err != nil {
		return model.Transaction{}, fmt.Errorf("transaction %s value: %w", t.OrderID, err)
	}
	t.ExecutedAt = time.UnixMilli(executedAt).UTC()
	return t, nil
}

// TransactionsBySymbol returns a symbol's ledger entries ordered by
// execution time ascending.
func (s *Store) TransactionsBySymbol(ctx context.Context, symbol string) ([]model.Transaction, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+txColumns+` FROM transactions WHERE symbol = ? ORDER BY executed_at ASC`, symbol)
	if err != nil {
		return nil, fmt.Errorf("query transactions for %s: %w", symbol, err)
	}
	defer rows.Close()
	return collectTransactions(rows)
}

// AllTransactions returns the full ledger ordered by execution time ascending.
func (s *Store) AllTransactions(ctx context.Context) ([]model.Transaction, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+txColumns+` FROM transactions ORDER BY executed_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("query transactions: %w", err)
	}
	defer rows.Close()
	return collectTransactions(rows)
}

func collectTransactions(rows *sql.Rows) ([]model.Transaction, error) {
	var out []model.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// TransactionByID looks up one ledger entry. Returns ErrNotFound for an
// unknown order id.
func (s *Store) TransactionByID(ctx context.Context, orderID string) (model.Transaction, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+txColumns+` FROM transactions WHERE order_id = ?`, orderID)
	t, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Transaction{}, fmt.Errorf("transaction %s: %w", orderID, ErrNotFound)
	}
	return t, err
}

func scanPosition(row interface{ Scan(...any) error }) (model.Position, error) {
	var p model.Position
	var qty, avg, invested string
	var lastActivity int64
	err := row.Scan(&p.Symbol, &p.StockName, &p.ISIN, &qty, &avg, &invested,
		&p.Geography, &p.Category, &lastActivity)
	if err != nil {
		return model.Position{}, err
	}
	if p.Quantity, err = decimal.NewFromString(qty); err != nil {
		return model.Position{}, fmt.Errorf("position %s quantity: %w", p.Symbol, err)
	}
	if p.AvgCost, err = decimal.NewFromString(avg); err != nil {
		return model.Position{}, fmt.Errorf("position %s avg_cost: %w", p.Symbol, err)
	}
	if p.TotalInvested, err = decimal.NewFromString(invested); err != nil {
		return model.Position{}, fmt.Errorf("position %s total_invested: %w", p.Symbol, err)
	}
	p.LastActivity = time.UnixMilli(lastActivity).UTC()
	return p, nil
}

// PositionBySymbol looks up one derived position. Returns ErrNotFound when
// the symbol has no open position.
func (s *Store) PositionBySymbol(ctx context.Context, symbol string) (model.Position, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT symbol, stock_name, isin, quantity, avg_cost, total_invested,
		       geography, category, last_activity
		FROM positions WHERE symbol = ?`, symbol)
	p, err := scanPosition(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Position{}, fmt.Errorf("position %s: %w", symbol, ErrNotFound)
	}
	return p, err
}

// Positions returns every open position ordered by symbol.
func (s *Store) Positions(ctx context.Context) ([]model.Position, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT symbol, stock_name, isin, quantity, avg_cost, total_invested,
		       geography, category, last_activity
		FROM positions ORDER BY symbol ASC`)
	if err != nil {
		return nil, fmt.Errorf("query positions: %w", err)
	}
	defer rows.Close()

	var out []model.Position
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// CommitAppend inserts a transaction and replaces the symbol's position in
// one SQL transaction. A nil pos deletes the position row.
func (s *Store) CommitAppend(ctx context.Context, t model.Transaction, pos *model.Position) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO transactions (`+txColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			t.OrderID, t.Symbol, t.StockName, t.ISIN, string(t.Kind),
			t.Quantity.String(), t.Value.String(), t.Exchange,
			t.Geography, t.Category, t.ExecutedAt.UnixMilli())
		if err != nil {
			return fmt.Errorf("insert transaction %s: %w", t.OrderID, err)
		}
		return replacePosition(ctx, tx, t.Symbol, pos)
	})
}

// CommitRemove deletes one transaction and replaces the symbol's position
// in one SQL transaction.
func (s *Store) CommitRemove(ctx context.Context, orderID, symbol string, pos *model.Position) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM transactions WHERE order_id = ?`, orderID)
		if err != nil {
			return fmt.Errorf("delete transaction %s: %w", orderID, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("transaction %s: %w", orderID, ErrNotFound)
		}
		return replacePosition(ctx, tx, symbol, pos)
	})
}

// CommitRemoveSymbol deletes all of a symbol's transactions and its
// position row, returning the number of transactions removed.
func (s *Store) CommitRemoveSymbol(ctx context.Context, symbol string) (int, error) {
	var deleted int
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM transactions WHERE symbol = ?`, symbol)
		if err != nil {
			return fmt.Errorf("delete transactions for %s: %w", symbol, err)
		}
		n, _ := res.RowsAffected()
		deleted = int(n)
		if _, err := tx.ExecContext(ctx, `DELETE FROM positions WHERE symbol = ?`, symbol); err != nil {
			return fmt.Errorf("delete position %s: %w", symbol, err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return deleted, nil
}

func replacePosition(ctx context.Context, tx *sql.Tx, symbol string, pos *model.Position) error {
	if pos == nil {
		if _, err := tx.ExecContext(ctx, `DELETE FROM positions WHERE symbol = ?`, symbol); err != nil {
			return fmt.Errorf("delete position %s: %w", symbol, err)
		}
		return nil
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO positions (symbol, stock_name, isin, quantity, avg_cost,
			total_invested, geography, category, last_activity)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(symbol) DO UPDATE SET
			stock_name = excluded.stock_name,
			isin = excluded.isin,
			quantity = excluded.quantity,
			avg_cost = excluded.avg_cost,
			total_invested = excluded.total_invested,
			geography = excluded.geography,
			category = excluded.category,
			last_activity = excluded.last_activity`,
		pos.Symbol, pos.StockName, pos.ISIN, pos.Quantity.String(),
		pos.AvgCost.String(), pos.TotalInvested.String(),
		pos.Geography, pos.Category, pos.LastActivity.UnixMilli())
	if err != nil {
		return fmt.Errorf("upsert position %s: %w", pos.Symbol, err)
	}
	return nil
}

func (s *Store) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}
