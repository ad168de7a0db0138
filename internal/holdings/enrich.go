package holdings

import (
	"context"
	"log/slog"
	"time"

	"portfolio-systemv1/internal/model"
	"portfolio-systemv1/internal/pricing"
)

// Enricher overlays live market prices onto derived positions.
// One batch call to the oracle per request; symbols the oracle cannot
// price fall back to their cost basis and are flagged stale.
type Enricher struct {
	oracle pricing.Oracle
	log    *slog.Logger
}

func NewEnricher(oracle pricing.Oracle, log *slog.Logger) *Enricher {
	return &Enricher{oracle: oracle, log: log}
}

// Enrich fills the live overlay of every position in place. A total
// oracle failure marks everything stale rather than returning an error;
// the caller still gets a complete, cost-valued view.
func (e *Enricher) Enrich(ctx context.Context, positions []model.Position) {
	if len(positions) == 0 {
		return
	}

	symbols := make([]string, 0, len(positions))
	for i := range positions {
		symbols = append(symbols, positions[i].Symbol)
	}

	quotes, err := e.oracle.Current(ctx, symbols)
	if err != nil {
		e.log.Warn("live quotes unavailable, falling back to cost basis",
			"symbols", len(symbols), "err", err)
		quotes = nil
	}

	now := time.Now()
	stale := 0
	for i := range positions {
		p := &positions[i]
		if q, ok := quotes[p.Symbol]; ok && q.Price.IsPositive() {
			p.CurrentPrice = q.Price
			p.CurrentValuation = p.Quantity.Mul(q.Price)
			p.PricedAt = q.AsOf
			p.PriceStatus = model.PriceLive
			continue
		}
		p.CurrentPrice = p.AvgCost
		p.CurrentValuation = p.TotalInvested
		p.PricedAt = now
		p.PriceStatus = model.PriceStale
		stale++
	}
	if stale > 0 {
		e.log.Info("enriched positions with partial quotes",
			"total", len(positions), "stale", stale)
	}
}
