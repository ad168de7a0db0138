package holdings

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"portfolio-systemv1/internal/model"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func tx(symbol string, kind model.Kind, qty, value string, at time.Time) model.Transaction {
	return model.Transaction{
		OrderID:    symbol + "-" + at.Format("20060102150405"),
		Symbol:     symbol,
		StockName:  symbol,
		Kind:       kind,
		Quantity:   dec(qty),
		Value:      dec(value),
		ExecutedAt: at,
	}
}

var t0 = time.Date(2026, time.March, 2, 10, 0, 0, 0, time.UTC)

func TestBookBuyThenPartialSell(t *testing.T) {
	b := NewBook()
	// 10 units for a total of 1000: avg cost 100.
	b.Apply(tx("INFY", model.KindBuy, "10", "1000", t0))

	pos, ok := b.Position("INFY")
	if !ok {
		t.Fatal("expected open position after buy")
	}
	if !pos.Quantity.Equal(dec("10")) || !pos.AvgCost.Equal(dec("100")) || !pos.TotalInvested.Equal(dec("1000")) {
		t.Fatalf("after buy: qty=%s avg=%s invested=%s", pos.Quantity, pos.AvgCost, pos.TotalInvested)
	}

	// Sell 4 of 10: invested shrinks by the sold fraction, avg unchanged.
	b.Apply(tx("INFY", model.KindSell, "4", "520", t0.Add(time.Hour)))

	pos, ok = b.Position("INFY")
	if !ok {
		t.Fatal("expected open position after partial sell")
	}
	if !pos.Quantity.Equal(dec("6")) {
		t.Errorf("qty = %s, want 6", pos.Quantity)
	}
	if !pos.AvgCost.Equal(dec("100")) {
		t.Errorf("avg cost = %s, want 100 (selling must not move it)", pos.AvgCost)
	}
	if !pos.TotalInvested.Equal(dec("600")) {
		t.Errorf("invested = %s, want 600", pos.TotalInvested)
	}
}

func TestBookFullSellClosesPosition(t *testing.T) {
	b := NewBook()
	b.Apply(tx("INFY", model.KindBuy, "10", "1000", t0))
	b.Apply(tx("INFY", model.KindSell, "10", "1200", t0.Add(time.Hour)))

	if _, ok := b.Position("INFY"); ok {
		t.Fatal("fully sold symbol must have no position")
	}
	if !b.Quantity("INFY").IsZero() {
		t.Errorf("qty = %s, want 0", b.Quantity("INFY"))
	}
}

func TestBookOversellClampsToZero(t *testing.T) {
	b := NewBook()
	b.Apply(tx("TCS", model.KindBuy, "5", "500", t0))
	b.Apply(tx("TCS", model.KindSell, "8", "900", t0.Add(time.Hour)))

	if _, ok := b.Position("TCS"); ok {
		t.Fatal("oversold symbol must have no position")
	}
	if !b.Quantity("TCS").IsZero() {
		t.Errorf("qty = %s, want 0 after oversell clamp", b.Quantity("TCS"))
	}

	// Buying again after an oversell starts from a clean pool.
	b.Apply(tx("TCS", model.KindBuy, "2", "300", t0.Add(2*time.Hour)))
	pos, ok := b.Position("TCS")
	if !ok {
		t.Fatal("expected position after re-buy")
	}
	if !pos.AvgCost.Equal(dec("150")) {
		t.Errorf("avg after re-buy = %s, want 150", pos.AvgCost)
	}
}

func TestBookSellAgainstEmptyIsNoop(t *testing.T) {
	b := NewBook()
	b.Apply(tx("WIPRO", model.KindSell, "3", "100", t0))

	if _, ok := b.Position("WIPRO"); ok {
		t.Fatal("sell with nothing held must not open a position")
	}

	b.Apply(tx("WIPRO", model.KindBuy, "3", "120", t0.Add(time.Hour)))
	pos, ok := b.Position("WIPRO")
	if !ok {
		t.Fatal("expected position after buy")
	}
	if !pos.TotalInvested.Equal(dec("120")) {
		t.Errorf("invested = %s, want 120 (prior no-op sell must not leak)", pos.TotalInvested)
	}
}

func TestBookMultipleBuysBlendAverage(t *testing.T) {
	b := NewBook()
	b.Apply(tx("HDFC", model.KindBuy, "10", "1000", t0))
	b.Apply(tx("HDFC", model.KindBuy, "10", "2000", t0.Add(time.Hour)))

	pos, _ := b.Position("HDFC")
	if !pos.AvgCost.Equal(dec("150")) {
		t.Errorf("avg = %s, want 150", pos.AvgCost)
	}
	if !pos.TotalInvested.Equal(dec("3000")) {
		t.Errorf("invested = %s, want 3000", pos.TotalInvested)
	}
}

func TestDeriveOrdersByExecutionTime(t *testing.T) {
	// Handed over out of order: the sell happened after the second buy.
	txs := []model.Transaction{
		tx("INFY", model.KindSell, "5", "750", t0.Add(2*time.Hour)),
		tx("INFY", model.KindBuy, "10", "1000", t0),
		tx("INFY", model.KindBuy, "10", "2000", t0.Add(time.Hour)),
	}
	pos, ok := Derive("INFY", txs)
	if !ok {
		t.Fatal("expected open position")
	}
	if !pos.Quantity.Equal(dec("15")) {
		t.Errorf("qty = %s, want 15", pos.Quantity)
	}
	// 20 held at avg 150, sell 5: avg stays 150.
	if !pos.AvgCost.Equal(dec("150")) {
		t.Errorf("avg = %s, want 150", pos.AvgCost)
	}
}

func TestBookPositionsSorted(t *testing.T) {
	b := NewBook()
	b.Apply(tx("TCS", model.KindBuy, "1", "10", t0))
	b.Apply(tx("INFY", model.KindBuy, "1", "10", t0))
	b.Apply(tx("HDFC", model.KindBuy, "1", "10", t0))

	got := b.Positions()
	if len(got) != 3 {
		t.Fatalf("got %d positions, want 3", len(got))
	}
	for i, want := range []string{"HDFC", "INFY", "TCS"} {
		if got[i].Symbol != want {
			t.Errorf("positions[%d] = %s, want %s", i, got[i].Symbol, want)
		}
	}
}

func TestBookFractionalQuantities(t *testing.T) {
	b := NewBook()
	b.Apply(tx("GOLDBEES", model.KindBuy, "2.5", "125.50", t0))
	b.Apply(tx("GOLDBEES", model.KindSell, "0.5", "30", t0.Add(time.Hour)))

	pos, ok := b.Position("GOLDBEES")
	if !ok {
		t.Fatal("expected open position")
	}
	if !pos.Quantity.Equal(dec("2")) {
		t.Errorf("qty = %s, want 2", pos.Quantity)
	}
	// 4/5 of the 125.50 pool remains.
	if !pos.TotalInvested.Equal(dec("100.4")) {
		t.Errorf("invested = %s, want 100.4", pos.TotalInvested)
	}
}
