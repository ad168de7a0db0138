package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Kind is the transaction side.
type Kind string

const (
	KindBuy  Kind = "BUY"
	KindSell Kind = "SELL"
)

// ParseKind normalizes a user-supplied side string.
func ParseKind(s string) (Kind, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "BUY":
		return KindBuy, nil
	case "SELL":
		return KindSell, nil
	default:
		return "", fmt.Errorf("unknown transaction type %q", s)
	}
}

// Defaults for instrument metadata when the source (broker report or
// manual entry) does not provide it.
const (
	DefaultGeography = "India"
	DefaultCategory  = "Equity(Stocks)"
	DefaultExchange  = "NSE"
)

// Transaction is one immutable ledger entry. Value is the TOTAL
// consideration of the trade, not the per-unit price; unit price is
// always derived as Value/Quantity.
type Transaction struct {
	OrderID    string          `json:"order_id"`
	Symbol     string          `json:"symbol"`
	StockName  string          `json:"stock_name"`
	ISIN       string          `json:"isin"`
	Kind       Kind            `json:"type"`
	Quantity   decimal.Decimal `json:"quantity"`
	Value      decimal.Decimal `json:"price"`
	Exchange   string          `json:"exchange"`
	Geography  string          `json:"geography"`
	Category   string          `json:"category"`
	ExecutedAt time.Time       `json:"execution_time"`
}

// UnitPrice returns Value/Quantity, or zero for a zero quantity.
func (t Transaction) UnitPrice() decimal.Decimal {
	if t.Quantity.IsZero() {
		return decimal.Zero
	}
	return t.Value.Div(t.Quantity)
}

// Normalize uppercases the symbol and fills metadata defaults for
// manual entries. Safe to call more than once.
func (t *Transaction) Normalize() {
	t.Symbol = strings.ToUpper(strings.TrimSpace(t.Symbol))
	t.Kind = Kind(strings.ToUpper(strings.TrimSpace(string(t.Kind))))
	if t.StockName == "" {
		t.StockName = t.Symbol
	}
	if t.ISIN == "" {
		t.ISIN = "MANUAL"
	}
	if t.Exchange == "" {
		t.Exchange = DefaultExchange
	}
	if t.Geography == "" {
		t.Geography = DefaultGeography
	}
	if t.Category == "" {
		t.Category = DefaultCategory
	}
}

// Validate rejects entries the ledger cannot fold.
func (t Transaction) Validate() error {
	if t.Symbol == "" {
		return fmt.Errorf("transaction: symbol is required")
	}
	if t.Kind != KindBuy && t.Kind != KindSell {
		return fmt.Errorf("transaction: type must be BUY or SELL, got %q", t.Kind)
	}
	if !t.Quantity.IsPositive() {
		return fmt.Errorf("transaction: quantity must be positive, got %s", t.Quantity)
	}
	if !t.Value.IsPositive() {
		return fmt.Errorf("transaction: value must be positive, got %s", t.Value)
	}
	if t.ExecutedAt.IsZero() {
		return fmt.Errorf("transaction: execution time is required")
	}
	return nil
}
