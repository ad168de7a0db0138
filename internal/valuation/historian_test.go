package valuation

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"portfolio-systemv1/internal/holdings"
	"portfolio-systemv1/internal/marketdays"
	"portfolio-systemv1/internal/model"
	"portfolio-systemv1/internal/pricing"
)

type fakeLedger struct{ txs []model.Transaction }

func (f *fakeLedger) AllTransactions(context.Context) ([]model.Transaction, error) {
	return f.txs, nil
}

type fakeOracle struct {
	closes map[string][]pricing.Close
	err    error
}

func (f *fakeOracle) Current(context.Context, []string) (map[string]pricing.Quote, error) {
	return nil, errors.New("not used")
}

func (f *fakeOracle) Historical(_ context.Context, symbol string, _, _ time.Time) ([]pricing.Close, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.closes[symbol], nil
}

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, marketdays.IST)
}

func buy(symbol, qty, value string, at time.Time) model.Transaction {
	return model.Transaction{
		OrderID: symbol + at.Format("20060102"), Symbol: symbol,
		Kind: model.KindBuy, Quantity: dec(qty), Value: dec(value), ExecutedAt: at,
	}
}

func sell(symbol, qty, value string, at time.Time) model.Transaction {
	tx := buy(symbol, qty, value, at)
	tx.Kind = model.KindSell
	return tx
}

func newTestHistorian(txs []model.Transaction, oracle pricing.Oracle, today time.Time) *Historian {
	h := NewHistorian(&fakeLedger{txs: txs}, oracle, slog.New(slog.NewTextHandler(io.Discard, nil)))
	h.now = func() time.Time { return today }
	return h
}

func TestHistorianEmptyLedger(t *testing.T) {
	h := newTestHistorian(nil, &fakeOracle{}, day(2026, time.March, 10))
	points, err := h.Build(context.Background())
	require.NoError(t, err)
	require.Empty(t, points)
}

func TestHistorianForwardFillsAndFolds(t *testing.T) {
	d1 := day(2026, time.March, 2)
	txs := []model.Transaction{
		buy("INFY", "10", "1000", d1.Add(10*time.Hour)),
		sell("INFY", "4", "520", d1.AddDate(0, 0, 2).Add(10*time.Hour)),
	}
	oracle := &fakeOracle{closes: map[string][]pricing.Close{
		"INFY": {
			{Date: d1, Price: dec("110")},
			// No close on the 3rd or 4th: forward-filled from the 2nd.
			{Date: d1.AddDate(0, 0, 3), Price: dec("120")},
		},
	}}
	h := newTestHistorian(txs, oracle, d1.AddDate(0, 0, 3))

	points, err := h.Build(context.Background())
	require.NoError(t, err)
	require.Len(t, points, 4)

	// Day 1: 10 held at close 110.
	require.True(t, points[0].InvestedValue.Equal(dec("1000")), "invested d1 = %s", points[0].InvestedValue)
	require.True(t, points[0].MarketValue.Equal(dec("1100")), "market d1 = %s", points[0].MarketValue)

	// Day 2: no trade, no close; price carried forward.
	require.True(t, points[1].InvestedValue.Equal(dec("1000")))
	require.True(t, points[1].MarketValue.Equal(dec("1100")))

	// Day 3: sell 4 of 10, invested drops proportionally, still priced at 110.
	require.True(t, points[2].InvestedValue.Equal(dec("600")), "invested d3 = %s", points[2].InvestedValue)
	require.True(t, points[2].MarketValue.Equal(dec("660")), "market d3 = %s", points[2].MarketValue)

	// Day 4: fresh close at 120.
	require.True(t, points[3].MarketValue.Equal(dec("720")), "market d4 = %s", points[3].MarketValue)
}

func TestHistorianUnpricedSymbolContributesZeroMarket(t *testing.T) {
	d1 := day(2026, time.March, 2)
	txs := []model.Transaction{
		buy("INFY", "10", "1000", d1.Add(time.Hour)),
		buy("NEWIPO", "5", "500", d1.Add(2*time.Hour)),
	}
	oracle := &fakeOracle{closes: map[string][]pricing.Close{
		"INFY": {{Date: d1, Price: dec("100")}},
		// NEWIPO has no closes at all.
	}}
	h := newTestHistorian(txs, oracle, d1.AddDate(0, 0, 1))

	points, err := h.Build(context.Background())
	require.NoError(t, err)
	require.Len(t, points, 2)

	for _, p := range points {
		require.True(t, p.InvestedValue.Equal(dec("1500")), "invested = %s", p.InvestedValue)
		require.True(t, p.MarketValue.Equal(dec("1000")), "market = %s (NEWIPO must count zero)", p.MarketValue)
	}
}

func TestHistorianOracleFullyUnreachable(t *testing.T) {
	d1 := day(2026, time.March, 2)
	txs := []model.Transaction{buy("INFY", "10", "1000", d1.Add(time.Hour))}
	h := newTestHistorian(txs, &fakeOracle{err: errors.New("connection refused")}, d1.AddDate(0, 0, 5))

	points, err := h.Build(context.Background())
	require.NoError(t, err)
	require.Empty(t, points, "unreachable oracle must yield an empty series, not zeros")
}

func TestHistorianFinalDayMatchesCurrentPositions(t *testing.T) {
	d1 := day(2026, time.February, 2)
	txs := []model.Transaction{
		buy("INFY", "10", "1000", d1.Add(time.Hour)),
		buy("TCS", "4", "800", d1.AddDate(0, 0, 1).Add(time.Hour)),
		sell("INFY", "3", "400", d1.AddDate(0, 0, 5).Add(time.Hour)),
		buy("INFY", "2", "260", d1.AddDate(0, 0, 9).Add(time.Hour)),
		sell("TCS", "4", "900", d1.AddDate(0, 0, 12).Add(time.Hour)),
	}
	oracle := &fakeOracle{closes: map[string][]pricing.Close{
		"INFY": {{Date: d1, Price: dec("102")}},
		"TCS":  {{Date: d1, Price: dec("205")}},
	}}
	h := newTestHistorian(txs, oracle, d1.AddDate(0, 0, 20))

	points, err := h.Build(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, points)

	book := holdings.NewBook()
	for _, tx := range txs {
		book.Apply(tx)
	}
	final := points[len(points)-1]
	require.True(t, final.InvestedValue.Equal(book.TotalInvested()),
		"final invested %s must equal current cost basis %s", final.InvestedValue, book.TotalInvested())
}

func TestHistorianCapacityCoversFullRange(t *testing.T) {
	d1 := day(2026, time.March, 2)
	txs := []model.Transaction{buy("INFY", "1", "100", d1.Add(time.Hour))}
	oracle := &fakeOracle{closes: map[string][]pricing.Close{
		"INFY": {{Date: d1, Price: dec("100")}},
	}}
	h := newTestHistorian(txs, oracle, d1.AddDate(0, 0, 30))

	points, err := h.Build(context.Background())
	require.NoError(t, err)
	require.Len(t, points, 31, "range is inclusive of both ends")
	require.True(t, points[0].Date.Equal(d1))
	require.True(t, points[30].Date.Equal(d1.AddDate(0, 0, 30)))
}
