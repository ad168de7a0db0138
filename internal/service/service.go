// Package service exposes the portfolio engine's operation surface: record
// and delete ledger entries, read derived positions, and rebuild the daily
// valuation history.
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"portfolio-systemv1/internal/holdings"
	"portfolio-systemv1/internal/metrics"
	"portfolio-systemv1/internal/model"
	"portfolio-systemv1/internal/valuation"
)

// Reader is the query side of the store.
type Reader interface {
	Positions(ctx context.Context) ([]model.Position, error)
	AllTransactions(ctx context.Context) ([]model.Transaction, error)
}

// Broadcaster pushes refreshed state to connected dashboard clients.
type Broadcaster interface {
	Broadcast(channel string, data []byte)
}

// PortfolioService wires the reconciler, the live enricher and the
// historian behind one API. Mutations reconcile synchronously; by the time
// a call returns, the positions table already reflects the change.
type PortfolioService struct {
	reconciler *holdings.Reconciler
	enricher   *holdings.Enricher
	historian  *valuation.Historian
	reader     Reader
	hub        Broadcaster
	m          *metrics.Metrics
	log        *slog.Logger
}

// New creates the service. hub and m may be nil (replay CLI, tests).
func New(
	reconciler *holdings.Reconciler,
	enricher *holdings.Enricher,
	historian *valuation.Historian,
	reader Reader,
	hub Broadcaster,
	m *metrics.Metrics,
	log *slog.Logger,
) *PortfolioService {
	return &PortfolioService{
		reconciler: reconciler,
		enricher:   enricher,
		historian:  historian,
		reader:     reader,
		hub:        hub,
		m:          m,
		log:        log,
	}
}

// RecordTransaction validates and appends a ledger entry, reconciles the
// symbol's position and pushes the refreshed holdings to the hub.
func (s *PortfolioService) RecordTransaction(ctx context.Context, tx model.Transaction) (model.Transaction, error) {
	start := time.Now()
	out, err := s.reconciler.Append(ctx, tx)
	s.observeReconcile(start, err)
	if err != nil {
		return model.Transaction{}, err
	}
	if s.m != nil {
		s.m.TransactionsTotal.WithLabelValues(string(out.Kind)).Inc()
	}
	s.pushHoldings(ctx)
	return out, nil
}

// DeleteTransaction removes one ledger entry by order id and reconciles.
func (s *PortfolioService) DeleteTransaction(ctx context.Context, orderID string) error {
	start := time.Now()
	err := s.reconciler.Remove(ctx, orderID)
	s.observeReconcile(start, err)
	if err != nil {
		return err
	}
	s.pushHoldings(ctx)
	return nil
}

// DeleteSymbol removes every ledger entry for a symbol, returning the count.
func (s *PortfolioService) DeleteSymbol(ctx context.Context, symbol string) (int, error) {
	start := time.Now()
	n, err := s.reconciler.RemoveSymbol(ctx, symbol)
	s.observeReconcile(start, err)
	if err != nil {
		return 0, err
	}
	s.pushHoldings(ctx)
	return n, nil
}

// Positions returns all open positions sorted by symbol. With live=true the
// result carries the current-price overlay; symbols the oracle could not
// price fall back to cost basis and are flagged stale.
func (s *PortfolioService) Positions(ctx context.Context, live bool) ([]model.Position, error) {
	positions, err := s.reader.Positions(ctx)
	if err != nil {
		return nil, fmt.Errorf("read positions: %w", err)
	}
	if s.m != nil {
		s.m.OpenPositions.Set(float64(len(positions)))
	}
	if live && s.enricher != nil {
		s.enricher.Enrich(ctx, positions)
		if s.m != nil {
			stale := 0
			for i := range positions {
				if positions[i].PriceStatus == model.PriceStale {
					stale++
				}
			}
			s.m.StalePositions.Set(float64(stale))
		}
	}
	return positions, nil
}

// Transactions returns the full ledger ordered by execution time.
func (s *PortfolioService) Transactions(ctx context.Context) ([]model.Transaction, error) {
	return s.reader.AllTransactions(ctx)
}

// ValuationHistory rebuilds the daily invested-vs-market series. An empty
// slice means no data or prices unavailable, never an error.
func (s *PortfolioService) ValuationHistory(ctx context.Context) ([]model.ValuationPoint, error) {
	start := time.Now()
	points, err := s.historian.Build(ctx)
	if err != nil {
		return nil, err
	}
	if s.m != nil {
		s.m.HistorianBuildDur.Observe(time.Since(start).Seconds())
		s.m.HistorianDays.Set(float64(len(points)))
	}
	return points, nil
}

func (s *PortfolioService) observeReconcile(start time.Time, err error) {
	if s.m == nil {
		return
	}
	s.m.ReconcileDur.Observe(time.Since(start).Seconds())
	if err != nil {
		s.m.ReconcileErrors.Inc()
	}
}

// pushHoldings broadcasts the post-mutation positions on the holdings
// channel. Failures only cost the push, never the mutation.
func (s *PortfolioService) pushHoldings(ctx context.Context) {
	if s.hub == nil {
		return
	}
	positions, err := s.reader.Positions(ctx)
	if err != nil {
		s.log.Warn("holdings push skipped", "err", err)
		return
	}
	data, err := json.Marshal(positions)
	if err != nil {
		s.log.Warn("holdings push skipped", "err", err)
		return
	}
	s.hub.Broadcast("holdings", data)
}
