package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"portfolio-systemv1/internal/holdings"
	"portfolio-systemv1/internal/model"
	"portfolio-systemv1/internal/pricing"
	"portfolio-systemv1/internal/valuation"
)

// fakeStore backs the whole stack in memory: the reconciler's commit
// surface, the service's reader and the historian's ledger.
type fakeStore struct {
	mu        sync.Mutex
	txs       map[string]model.Transaction
	positions map[string]model.Position
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		txs:       make(map[string]model.Transaction),
		positions: make(map[string]model.Position),
	}
}

func (s *fakeStore) TransactionsBySymbol(_ context.Context, symbol string) ([]model.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Transaction
	for _, t := range s.txs {
		if t.Symbol == symbol {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s *fakeStore) AllTransactions(context.Context) ([]model.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Transaction
	for _, t := range s.txs {
		out = append(out, t)
	}
	return out, nil
}

func (s *fakeStore) TransactionByID(_ context.Context, orderID string) (model.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.txs[orderID]
	if !ok {
		return model.Transaction{}, fmt.Errorf("transaction %s not found", orderID)
	}
	return t, nil
}

func (s *fakeStore) PositionBySymbol(_ context.Context, symbol string) (model.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.positions[symbol]
	if !ok {
		return model.Position{}, fmt.Errorf("position %s not found", symbol)
	}
	return p, nil
}

func (s *fakeStore) Positions(context.Context) ([]model.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Position
	for _, p := range s.positions {
		out = append(out, p)
	}
	return out, nil
}

func (s *fakeStore) setPosition(symbol string, pos *model.Position) {
	if pos == nil {
		delete(s.positions, symbol)
	} else {
		s.positions[symbol] = *pos
	}
}

func (s *fakeStore) CommitAppend(_ context.Context, tx model.Transaction, pos *model.Position) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.txs[tx.OrderID] = tx
	s.setPosition(tx.Symbol, pos)
	return nil
}

func (s *fakeStore) CommitRemove(_ context.Context, orderID, symbol string, pos *model.Position) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.txs, orderID)
	s.setPosition(symbol, pos)
	return nil
}

func (s *fakeStore) CommitRemoveSymbol(_ context.Context, symbol string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, t := range s.txs {
		if t.Symbol == symbol {
			delete(s.txs, id)
			n++
		}
	}
	delete(s.positions, symbol)
	return n, nil
}

// fakeOracle prices a fixed symbol set and fails the rest.
type fakeOracle struct {
	prices map[string]decimal.Decimal
}

func (f *fakeOracle) Current(_ context.Context, symbols []string) (map[string]pricing.Quote, error) {
	out := make(map[string]pricing.Quote)
	for _, sym := range symbols {
		if p, ok := f.prices[sym]; ok {
			out[sym] = pricing.Quote{Symbol: sym, Price: p, AsOf: time.Now()}
		}
	}
	return out, nil
}

func (f *fakeOracle) Historical(_ context.Context, symbol string, from, _ time.Time) ([]pricing.Close, error) {
	p, ok := f.prices[symbol]
	if !ok {
		return nil, errors.New("no data")
	}
	return []pricing.Close{{Date: from, Price: p}}, nil
}

type recordingHub struct {
	mu       sync.Mutex
	channels []string
}

func (h *recordingHub) Broadcast(channel string, _ []byte) {
	h.mu.Lock()
	h.channels = append(h.channels, channel)
	h.mu.Unlock()
}

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func newTestService(prices map[string]decimal.Decimal) (*PortfolioService, *fakeStore, *recordingHub) {
	st := newFakeStore()
	hub := &recordingHub{}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	oracle := &fakeOracle{prices: prices}
	svc := New(
		holdings.NewReconciler(st, log),
		holdings.NewEnricher(oracle, log),
		valuation.NewHistorian(st, oracle, log),
		st,
		hub,
		nil,
		log,
	)
	return svc, st, hub
}

func buyTx(symbol, qty, value string) model.Transaction {
	return model.Transaction{
		Symbol: symbol, Kind: model.KindBuy,
		Quantity: dec(qty), Value: dec(value),
		ExecutedAt: time.Now().Add(-24 * time.Hour),
	}
}

func TestRecordTransactionReconcilesAndBroadcasts(t *testing.T) {
	svc, st, hub := newTestService(nil)
	ctx := context.Background()

	out, err := svc.RecordTransaction(ctx, buyTx("infy", "10", "1000"))
	require.NoError(t, err)
	require.NotEmpty(t, out.OrderID)
	require.Equal(t, "INFY", out.Symbol)

	pos, ok := st.positions["INFY"]
	require.True(t, ok, "position must exist before RecordTransaction returns")
	require.True(t, pos.AvgCost.Equal(dec("100")))

	require.Contains(t, hub.channels, "holdings")
}

func TestRecordTransactionRejectsInvalid(t *testing.T) {
	svc, _, hub := newTestService(nil)

	_, err := svc.RecordTransaction(context.Background(), model.Transaction{
		Symbol: "INFY", Kind: "HOLD", Quantity: dec("1"), Value: dec("10"),
		ExecutedAt: time.Now(),
	})
	require.Error(t, err)
	require.Contains(t, err.Error(), "BUY or SELL")
	require.Empty(t, hub.channels, "rejected mutation must not broadcast")
}

func TestDeleteTransactionRestoresPriorState(t *testing.T) {
	svc, st, _ := newTestService(nil)
	ctx := context.Background()

	_, err := svc.RecordTransaction(ctx, buyTx("INFY", "10", "1000"))
	require.NoError(t, err)
	sell := buyTx("INFY", "10", "1100")
	sell.Kind = model.KindSell
	sell.ExecutedAt = time.Now()
	sellOut, err := svc.RecordTransaction(ctx, sell)
	require.NoError(t, err)
	_, ok := st.positions["INFY"]
	require.False(t, ok, "fully sold position must be gone")

	require.NoError(t, svc.DeleteTransaction(ctx, sellOut.OrderID))
	pos, ok := st.positions["INFY"]
	require.True(t, ok)
	require.True(t, pos.TotalInvested.Equal(dec("1000")))
}

func TestDeleteSymbol(t *testing.T) {
	svc, st, _ := newTestService(nil)
	ctx := context.Background()

	svc.RecordTransaction(ctx, buyTx("INFY", "10", "1000"))
	svc.RecordTransaction(ctx, buyTx("INFY", "5", "600"))
	svc.RecordTransaction(ctx, buyTx("TCS", "2", "400"))

	n, err := svc.DeleteSymbol(ctx, "INFY")
	require.NoError(t, err)
	require.Equal(t, 2, n)
	_, ok := st.positions["TCS"]
	require.True(t, ok)
}

func TestPositionsLiveEnrichmentPartialFailure(t *testing.T) {
	svc, _, _ := newTestService(map[string]decimal.Decimal{"INFY": dec("120")})
	ctx := context.Background()

	svc.RecordTransaction(ctx, buyTx("INFY", "10", "1000"))
	svc.RecordTransaction(ctx, buyTx("TCS", "2", "400"))

	positions, err := svc.Positions(ctx, true)
	require.NoError(t, err)
	require.Len(t, positions, 2)

	bySymbol := make(map[string]model.Position)
	for _, p := range positions {
		bySymbol[p.Symbol] = p
	}

	infy := bySymbol["INFY"]
	require.Equal(t, model.PriceLive, infy.PriceStatus)
	require.True(t, infy.CurrentValuation.Equal(dec("1200")))

	tcs := bySymbol["TCS"]
	require.Equal(t, model.PriceStale, tcs.PriceStatus)
	require.True(t, tcs.CurrentValuation.Equal(tcs.TotalInvested),
		"unpriced symbol must fall back to cost basis")
}

func TestValuationHistoryFinalDayMatchesPositions(t *testing.T) {
	svc, st, _ := newTestService(map[string]decimal.Decimal{"INFY": dec("120")})
	ctx := context.Background()

	svc.RecordTransaction(ctx, buyTx("INFY", "10", "1000"))

	points, err := svc.ValuationHistory(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, points)

	total := decimal.Zero
	for _, p := range st.positions {
		total = total.Add(p.TotalInvested)
	}
	final := points[len(points)-1]
	require.True(t, final.InvestedValue.Equal(total),
		"final invested %s != positions total %s", final.InvestedValue, total)
}
