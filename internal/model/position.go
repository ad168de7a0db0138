package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// PriceStatus marks whether the live overlay on a position comes from a
// fresh quote or is the cost-basis fallback.
type PriceStatus string

const (
	PriceLive  PriceStatus = "live"
	PriceStale PriceStatus = "stale"
)

// Position is the derived weighted-average state of a single symbol.
// It is a pure fold over that symbol's transactions; a zero-quantity
// position is deleted, never persisted.
type Position struct {
	Symbol        string          `json:"symbol"`
	StockName     string          `json:"stock_name"`
	ISIN          string          `json:"isin"`
	Quantity      decimal.Decimal `json:"quantity"`
	AvgCost       decimal.Decimal `json:"avg_price"`
	TotalInvested decimal.Decimal `json:"total_invested"`
	Geography     string          `json:"geography"`
	Category      string          `json:"category"`
	LastActivity  time.Time       `json:"last_transaction_date"`

	// Live overlay, recomputed on read, never persisted.
	CurrentPrice     decimal.Decimal `json:"current_price,omitempty"`
	CurrentValuation decimal.Decimal `json:"current_valuation,omitempty"`
	PricedAt         time.Time       `json:"last_priced_at,omitempty"`
	PriceStatus      PriceStatus     `json:"price_status,omitempty"`
}
