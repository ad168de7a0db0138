package holdings

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"portfolio-systemv1/internal/logger"
	"portfolio-systemv1/internal/model"
)

// Store is the persistence surface the reconciler drives. Commit methods are
// atomic: the ledger mutation and the resulting position upsert/delete land
// in one storage transaction or not at all.
type Store interface {
	TransactionsBySymbol(ctx context.Context, symbol string) ([]model.Transaction, error)
	TransactionByID(ctx context.Context, orderID string) (model.Transaction, error)
	PositionBySymbol(ctx context.Context, symbol string) (model.Position, error)

	// CommitAppend stores tx and replaces the symbol's position with pos.
	// A nil pos deletes the position row.
	CommitAppend(ctx context.Context, tx model.Transaction, pos *model.Position) error
	// CommitRemove deletes one transaction and replaces the symbol's
	// position with pos (nil deletes the row).
	CommitRemove(ctx context.Context, orderID, symbol string, pos *model.Position) error
	// CommitRemoveSymbol deletes all transactions for a symbol along with
	// its position row, returning the number of transactions removed.
	CommitRemoveSymbol(ctx context.Context, symbol string) (int, error)
}

// Reconciler keeps the positions table exactly consistent with the ledger.
// Every mutation recomputes the affected symbol's position as a full fold of
// that symbol's transactions, serialized per symbol so two concurrent
// read-then-write recomputes can never interleave.
type Reconciler struct {
	store Store
	log   *slog.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewReconciler creates a Reconciler over the given store.
func NewReconciler(store Store, log *slog.Logger) *Reconciler {
	return &Reconciler{
		store: store,
		log:   log,
		locks: make(map[string]*sync.Mutex),
	}
}

// symbolLock returns the mutex guarding a symbol, creating it on first use.
// Cross-symbol mutations proceed fully in parallel.
func (r *Reconciler) symbolLock(symbol string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.locks[symbol]
	if !ok {
		l = &sync.Mutex{}
		r.locks[symbol] = l
	}
	return l
}

// Append validates and records a transaction, then recomputes the symbol's
// position. Missing metadata is backfilled from the existing position, the
// way manual dashboard entries inherit instrument details.
func (r *Reconciler) Append(ctx context.Context, tx model.Transaction) (model.Transaction, error) {
	tx.Normalize()
	if err := tx.Validate(); err != nil {
		return model.Transaction{}, err
	}
	if tx.OrderID == "" {
		tx.OrderID = uuid.NewString()
	}

	l := r.symbolLock(tx.Symbol)
	l.Lock()
	defer l.Unlock()

	if existing, err := r.store.PositionBySymbol(ctx, tx.Symbol); err == nil {
		if tx.StockName == tx.Symbol && existing.StockName != "" {
			tx.StockName = existing.StockName
		}
		if tx.ISIN == "MANUAL" && existing.ISIN != "" {
			tx.ISIN = existing.ISIN
		}
	}

	prior, err := r.store.TransactionsBySymbol(ctx, tx.Symbol)
	if err != nil {
		return model.Transaction{}, fmt.Errorf("load ledger for %s: %w", tx.Symbol, err)
	}
	pos := derivePtr(tx.Symbol, append(prior, tx))

	if err := r.store.CommitAppend(ctx, tx, pos); err != nil {
		return model.Transaction{}, fmt.Errorf("commit %s %s: %w", tx.Kind, tx.Symbol, err)
	}
	r.log.With(logger.LogWithTrace(ctx)...).Info("transaction recorded",
		"order_id", tx.OrderID, "symbol", tx.Symbol, "kind", string(tx.Kind),
		"qty", tx.Quantity.String(), "value", tx.Value.String(),
		"unit_price", tx.UnitPrice().String())
	return tx, nil
}

// Remove deletes one transaction by order id and recomputes the symbol's
// position from the remaining ledger entries.
func (r *Reconciler) Remove(ctx context.Context, orderID string) error {
	tx, err := r.store.TransactionByID(ctx, orderID)
	if err != nil {
		return err
	}

	l := r.symbolLock(tx.Symbol)
	l.Lock()
	defer l.Unlock()

	all, err := r.store.TransactionsBySymbol(ctx, tx.Symbol)
	if err != nil {
		return fmt.Errorf("load ledger for %s: %w", tx.Symbol, err)
	}
	remaining := all[:0:0]
	for _, t := range all {
		if t.OrderID != orderID {
			remaining = append(remaining, t)
		}
	}
	pos := derivePtr(tx.Symbol, remaining)

	if err := r.store.CommitRemove(ctx, orderID, tx.Symbol, pos); err != nil {
		return fmt.Errorf("remove %s: %w", orderID, err)
	}
	r.log.With(logger.LogWithTrace(ctx)...).Info("transaction removed",
		"order_id", orderID, "symbol", tx.Symbol)
	return nil
}

// RemoveSymbol drops every transaction for a symbol along with its position.
func (r *Reconciler) RemoveSymbol(ctx context.Context, symbol string) (int, error) {
	l := r.symbolLock(symbol)
	l.Lock()
	defer l.Unlock()

	n, err := r.store.CommitRemoveSymbol(ctx, symbol)
	if err != nil {
		return 0, fmt.Errorf("remove symbol %s: %w", symbol, err)
	}
	r.log.With(logger.LogWithTrace(ctx)...).Info("symbol cleared",
		"symbol", symbol, "transactions_deleted", n)
	return n, nil
}

func derivePtr(symbol string, txs []model.Transaction) *model.Position {
	pos, ok := Derive(symbol, txs)
	if !ok {
		return nil
	}
	return &pos
}
