// Package valuation reconstructs the daily invested-vs-market time series
// by replaying the ledger against forward-filled historical closes.
package valuation

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"portfolio-systemv1/internal/marketdays"
	"portfolio-systemv1/internal/pricing"
)

// priceSeries is a chronological per-symbol close series with as-of lookup.
// Days are civil-date keys (midnight IST); the slice is sorted and unique.
type priceSeries struct {
	days   []time.Time
	prices []decimal.Decimal
}

func newPriceSeries(closes []pricing.Close) *priceSeries {
	s := &priceSeries{}
	for _, c := range closes {
		if !c.Price.IsPositive() {
			continue
		}
		s.append(marketdays.Day(c.Date), c.Price)
	}
	return s
}

func (s *priceSeries) append(day time.Time, price decimal.Decimal) {
	// Closes arrive mostly in order; same-day duplicates keep the last value.
	if n := len(s.days); n > 0 && s.days[n-1].Equal(day) {
		s.prices[n-1] = price
		return
	}
	s.days = append(s.days, day)
	s.prices = append(s.prices, price)
	if n := len(s.days); n > 1 && s.days[n-2].After(day) {
		sort.Sort(s)
	}
}

func (s *priceSeries) Len() int           { return len(s.days) }
func (s *priceSeries) Less(i, j int) bool { return s.days[i].Before(s.days[j]) }
func (s *priceSeries) Swap(i, j int) {
	s.days[i], s.days[j] = s.days[j], s.days[i]
	s.prices[i], s.prices[j] = s.prices[j], s.prices[i]
}

// asOf returns the close on day, or the most recent close before it.
// ok is false when no close exists on or before day; the symbol has not
// been validly priced yet and contributes zero market value.
func (s *priceSeries) asOf(day time.Time) (decimal.Decimal, bool) {
	i := sort.Search(len(s.days), func(i int) bool { return s.days[i].After(day) })
	if i == 0 {
		return decimal.Zero, false
	}
	return s.prices[i-1], true
}
