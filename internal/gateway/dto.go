package gateway

import (
	"time"

	"github.com/shopspring/decimal"

	"portfolio-systemv1/internal/model"
)

// transactionRequest is the POST /api/transactions body. Quantity and
// price accept JSON numbers or strings; price is the TOTAL consideration
// of the trade, not the per-unit price. Missing execution_time defaults
// to now.
type transactionRequest struct {
	Symbol     string          `json:"symbol"`
	StockName  string          `json:"stock_name"`
	ISIN       string          `json:"isin"`
	Type       string          `json:"type"`
	Quantity   decimal.Decimal `json:"quantity"`
	Price      decimal.Decimal `json:"price"`
	Exchange   string          `json:"exchange"`
	Geography  string          `json:"geography"`
	Category   string          `json:"category"`
	ExecutedAt *time.Time      `json:"execution_time"`
	OrderID    string          `json:"order_id"`
}

func (r transactionRequest) toModel() model.Transaction {
	executedAt := time.Now()
	if r.ExecutedAt != nil {
		executedAt = *r.ExecutedAt
	}
	return model.Transaction{
		OrderID:    r.OrderID,
		Symbol:     r.Symbol,
		StockName:  r.StockName,
		ISIN:       r.ISIN,
		Kind:       model.Kind(r.Type),
		Quantity:   r.Quantity,
		Value:      r.Price,
		Exchange:   r.Exchange,
		Geography:  r.Geography,
		Category:   r.Category,
		ExecutedAt: executedAt,
	}
}
