// Package pricing provides the price-oracle contract and its providers.
// Every provider may return partial results: a symbol with no quote is
// simply absent from the map, and callers degrade to cost-basis fallback
// instead of failing the read.
package pricing

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// ErrNoQuote is returned when a provider has no price at all for a symbol.
var ErrNoQuote = errors.New("pricing: no quote available")

// Quote is a current market price for one symbol.
type Quote struct {
	Symbol string          `json:"symbol"`
	Price  decimal.Decimal `json:"price"`
	AsOf   time.Time       `json:"as_of"`
}

// Close is one historical daily closing price.
type Close struct {
	Date  time.Time       `json:"date"`
	Price decimal.Decimal `json:"price"`
}

// Oracle is the external price capability. Both calls are blocking I/O and
// must be given a deadline-bounded context; both may partially fail.
type Oracle interface {
	// Current fetches latest prices for a set of symbols in one upstream
	// round trip. Missing symbols are absent from the result, not errors.
	Current(ctx context.Context, symbols []string) (map[string]Quote, error)

	// Historical fetches daily closes for one symbol over [from, to].
	// The sequence is ordered by date ascending and may have gaps on
	// non-trading days.
	Historical(ctx context.Context, symbol string, from, to time.Time) ([]Close, error)
}
