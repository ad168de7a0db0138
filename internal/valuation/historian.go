package valuation

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"portfolio-systemv1/internal/holdings"
	"portfolio-systemv1/internal/marketdays"
	"portfolio-systemv1/internal/model"
	"portfolio-systemv1/internal/pricing"
)

// Ledger is the read surface the historian replays from.
type Ledger interface {
	AllTransactions(ctx context.Context) ([]model.Transaction, error)
}

// Historian rebuilds the daily invested-vs-market series from scratch on
// every call. Prices are fetched once per symbol up front; the day loop
// itself is pure in-memory folding.
type Historian struct {
	ledger Ledger
	oracle pricing.Oracle
	log    *slog.Logger

	// now is swappable in tests.
	now func() time.Time
}

// NewHistorian creates a Historian over the given ledger and price oracle.
func NewHistorian(ledger Ledger, oracle pricing.Oracle, log *slog.Logger) *Historian {
	return &Historian{ledger: ledger, oracle: oracle, log: log, now: time.Now}
}

// Build replays the full ledger day by day from the earliest transaction
// through today. Invested value is the running cost basis; market value is
// quantity times the forward-filled close, with unpriced symbols counting
// zero. An empty ledger yields an empty series. If no symbol could be
// priced at all, Build returns an empty series so callers can tell
// "unavailable" apart from "worth zero".
func (h *Historian) Build(ctx context.Context) ([]model.ValuationPoint, error) {
	txs, err := h.ledger.AllTransactions(ctx)
	if err != nil {
		return nil, fmt.Errorf("load ledger: %w", err)
	}
	if len(txs) == 0 {
		return []model.ValuationPoint{}, nil
	}

	sort.SliceStable(txs, func(i, j int) bool {
		return txs[i].ExecutedAt.Before(txs[j].ExecutedAt)
	})
	start := marketdays.Day(txs[0].ExecutedAt)
	end := marketdays.Day(h.now())

	series, priced := h.fetchSeries(ctx, txs, start, end)
	if priced == 0 {
		h.log.Warn("no symbol could be priced, valuation history unavailable")
		return []model.ValuationPoint{}, nil
	}

	book := holdings.NewBook()
	idx := 0
	points := make([]model.ValuationPoint, 0, int(end.Sub(start).Hours()/24)+1)

	for day := start; !day.After(end); day = marketdays.NextDay(day) {
		dayEnd := marketdays.NextDay(day)
		for idx < len(txs) && txs[idx].ExecutedAt.Before(dayEnd) {
			book.Apply(txs[idx])
			idx++
		}

		market := decimal.Zero
		for _, pos := range book.Positions() {
			if price, ok := series[pos.Symbol].asOf(day); ok {
				market = market.Add(pos.Quantity.Mul(price))
			}
		}
		points = append(points, model.ValuationPoint{
			Date:          day,
			InvestedValue: book.TotalInvested(),
			MarketValue:   market,
		})
	}
	return points, nil
}

// fetchSeries pulls historical closes for every distinct ledger symbol and
// returns the per-symbol series plus the count of symbols that yielded at
// least one close. Per-symbol failures are logged and skipped.
func (h *Historian) fetchSeries(ctx context.Context, txs []model.Transaction, start, end time.Time) (map[string]*priceSeries, int) {
	symbols := make(map[string]bool)
	for _, t := range txs {
		symbols[t.Symbol] = true
	}

	series := make(map[string]*priceSeries, len(symbols))
	priced := 0
	for sym := range symbols {
		closes, err := h.oracle.Historical(ctx, sym, start, end)
		if err != nil {
			h.log.Warn("historical closes unavailable", "symbol", sym, "err", err)
			series[sym] = &priceSeries{}
			continue
		}
		s := newPriceSeries(closes)
		series[sym] = s
		if s.Len() > 0 {
			priced++
		}
	}
	return series, priced
}
