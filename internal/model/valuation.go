package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// ValuationPoint is one day of the reconstructed portfolio trend line.
// InvestedValue is the cost basis of everything held on that day;
// MarketValue is the same holdings priced at the forward-filled close.
type ValuationPoint struct {
	Date          time.Time       `json:"date"`
	InvestedValue decimal.Decimal `json:"invested_value"`
	MarketValue   decimal.Decimal `json:"market_value"`
}
