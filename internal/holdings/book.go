// Package holdings derives weighted-average-cost positions from the
// transaction ledger. The Book is the single implementation of the
// buy/sell fold; the reconciler, the valuation historian, and the replay
// CLI all go through it rather than re-deriving cost basis inline.
package holdings

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"portfolio-systemv1/internal/model"
)

type symbolState struct {
	qty  decimal.Decimal // net units held, never negative
	cost decimal.Decimal // cost pool of currently held units

	stockName string
	isin      string
	geography string
	category  string
	last      time.Time
}

// Book holds per-symbol running weighted-average state. Apply transactions
// in chronological order; the result is identical to a full recompute from
// scratch over the same sequence.
//
// Book is not safe for concurrent use; callers serialize per symbol.
type Book struct {
	states map[string]*symbolState
}

// NewBook returns an empty Book.
func NewBook() *Book {
	return &Book{states: make(map[string]*symbolState)}
}

// Apply folds one transaction into the book. Input is assumed validated at
// the ledger boundary (positive quantity and value, known kind).
//
// BUY adds the full consideration to the cost pool. SELL reduces the pool
// proportionally to the fraction of held units sold (average-cost
// accounting): selling never changes the average cost of the remainder.
// An oversell is clamped to a zero position rather than going negative.
func (b *Book) Apply(tx model.Transaction) {
	st := b.states[tx.Symbol]
	if st == nil {
		st = &symbolState{}
		b.states[tx.Symbol] = st
	}

	if tx.StockName != "" {
		st.stockName = tx.StockName
	}
	if tx.ISIN != "" {
		st.isin = tx.ISIN
	}
	if tx.Geography != "" {
		st.geography = tx.Geography
	}
	if tx.Category != "" {
		st.category = tx.Category
	}
	if tx.ExecutedAt.After(st.last) {
		st.last = tx.ExecutedAt
	}

	switch tx.Kind {
	case model.KindBuy:
		st.qty = st.qty.Add(tx.Quantity)
		st.cost = st.cost.Add(tx.Value)

	case model.KindSell:
		if st.qty.IsPositive() {
			sold := tx.Quantity
			if sold.GreaterThan(st.qty) {
				sold = st.qty
			}
			ratio := sold.Div(st.qty)
			st.cost = st.cost.Mul(decimal.NewFromInt(1).Sub(ratio))
		}
		st.qty = st.qty.Sub(tx.Quantity)
		if st.qty.IsNegative() {
			st.qty = decimal.Zero
		}
		if st.qty.IsZero() {
			st.cost = decimal.Zero
		}
	}
}

// Position returns the derived position for a symbol. ok is false when the
// symbol is unknown or fully sold out; such symbols have no position row.
func (b *Book) Position(symbol string) (model.Position, bool) {
	st := b.states[symbol]
	if st == nil || !st.qty.IsPositive() {
		return model.Position{}, false
	}
	avg := st.cost.Div(st.qty)
	return model.Position{
		Symbol:        symbol,
		StockName:     st.stockName,
		ISIN:          st.isin,
		Quantity:      st.qty,
		AvgCost:       avg,
		TotalInvested: st.qty.Mul(avg),
		Geography:     st.geography,
		Category:      st.category,
		LastActivity:  st.last,
	}, true
}

// Positions returns all open positions sorted by symbol.
func (b *Book) Positions() []model.Position {
	out := make([]model.Position, 0, len(b.states))
	for sym := range b.states {
		if pos, ok := b.Position(sym); ok {
			out = append(out, pos)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// Quantity returns the net units currently held for a symbol.
func (b *Book) Quantity(symbol string) decimal.Decimal {
	if st := b.states[symbol]; st != nil {
		return st.qty
	}
	return decimal.Zero
}

// TotalInvested sums the cost basis of every open position.
func (b *Book) TotalInvested() decimal.Decimal {
	total := decimal.Zero
	for sym := range b.states {
		if pos, ok := b.Position(sym); ok {
			total = total.Add(pos.TotalInvested)
		}
	}
	return total
}

// Derive folds a full transaction slice (sorted chronologically by the
// caller or not; Derive sorts a copy) and returns the resulting position
// for the symbol, or ok=false when the fold ends at zero quantity.
func Derive(symbol string, txs []model.Transaction) (model.Position, bool) {
	sorted := make([]model.Transaction, len(txs))
	copy(sorted, txs)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].ExecutedAt.Before(sorted[j].ExecutedAt)
	})

	book := NewBook()
	for _, tx := range sorted {
		book.Apply(tx)
	}
	return book.Position(symbol)
}
