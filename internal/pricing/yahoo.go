package pricing

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	yahooQuoteURL = "https://query1.finance.yahoo.com/v7/finance/quote"
	yahooChartURL = "https://query2.finance.yahoo.com/v8/finance/chart"

	yahooUserAgent = "portfolio-systemv1/1.0"
)

// YahooOracle resolves prices from the Yahoo Finance v7/v8 endpoints.
// NSE scheme symbols are mapped to their Yahoo ticker (RELIANCE → RELIANCE.NS)
// unless they already carry an exchange suffix.
type YahooOracle struct {
	cli    *http.Client
	suffix string
}

// NewYahooOracle creates a Yahoo provider. suffix is appended to bare
// symbols, ".NS" for NSE listings; pass "" for symbols that are already
// fully qualified.
func NewYahooOracle(timeout time.Duration, suffix string) *YahooOracle {
	if timeout <= 0 {
		timeout = 8 * time.Second
	}
	return &YahooOracle{
		cli:    &http.Client{Timeout: timeout},
		suffix: suffix,
	}
}

// tickerFor maps a ledger symbol to a Yahoo ticker.
func (y *YahooOracle) tickerFor(symbol string) string {
	if strings.Contains(symbol, ".") || y.suffix == "" {
		return symbol
	}
	return symbol + y.suffix
}

// Current fetches quotes for all symbols in a single batched request.
// Symbols Yahoo cannot price are absent from the result.
func (y *YahooOracle) Current(ctx context.Context, symbols []string) (map[string]Quote, error) {
	if len(symbols) == 0 {
		return map[string]Quote{}, nil
	}

	// One call per distinct symbol set, not one per symbol.
	uniq := make([]string, 0, len(symbols))
	back := make(map[string]string, len(symbols)) // yahoo ticker -> ledger symbol
	for _, s := range symbols {
		s = strings.ToUpper(strings.TrimSpace(s))
		if s == "" {
			continue
		}
		t := y.tickerFor(s)
		if _, dup := back[t]; dup {
			continue
		}
		back[t] = s
		uniq = append(uniq, t)
	}
	sort.Strings(uniq)

	q := url.Values{}
	q.Set("symbols", strings.Join(uniq, ","))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, yahooQuoteURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", yahooUserAgent)

	resp, err := y.cli.Do(req)
	if err != nil {
		return nil, fmt.Errorf("yahoo quote request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("yahoo quote http %d", resp.StatusCode)
	}

	var raw struct {
		QuoteResponse struct {
			Result []struct {
				Symbol             string  `json:"symbol"`
				RegularMarketPrice float64 `json:"regularMarketPrice"`
				RegularMarketTime  int64   `json:"regularMarketTime"`
			} `json:"result"`
			Error any `json:"error"`
		} `json:"quoteResponse"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("yahoo quote decode: %w", err)
	}

	out := make(map[string]Quote, len(raw.QuoteResponse.Result))
	for _, r := range raw.QuoteResponse.Result {
		sym, ok := back[strings.ToUpper(r.Symbol)]
		if !ok || r.RegularMarketPrice <= 0 {
			continue
		}
		asOf := time.Unix(r.RegularMarketTime, 0).UTC()
		if r.RegularMarketTime == 0 {
			asOf = time.Now().UTC()
		}
		out[sym] = Quote{
			Symbol: sym,
			Price:  decimal.NewFromFloat(r.RegularMarketPrice),
			AsOf:   asOf,
		}
	}
	return out, nil
}

// Historical fetches daily closes via the chart endpoint. Non-trading days
// carry no entry; zero/null closes are skipped.
func (y *YahooOracle) Historical(ctx context.Context, symbol string, from, to time.Time) ([]Close, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return nil, ErrNoQuote
	}

	q := url.Values{}
	q.Set("interval", "1d")
	q.Set("period1", fmt.Sprintf("%d", from.Unix()))
	// period2 is exclusive upstream; push it past the end of "to".
	q.Set("period2", fmt.Sprintf("%d", to.Add(24*time.Hour).Unix()))

	u := fmt.Sprintf("%s/%s?%s", yahooChartURL, url.PathEscape(y.tickerFor(symbol)), q.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", yahooUserAgent)

	resp, err := y.cli.Do(req)
	if err != nil {
		return nil, fmt.Errorf("yahoo chart request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrNoQuote
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("yahoo chart http %d", resp.StatusCode)
	}

	var raw struct {
		Chart struct {
			Result []struct {
				Timestamp  []int64 `json:"timestamp"`
				Indicators struct {
					Quote []struct {
						Close []*float64 `json:"close"`
					} `json:"quote"`
				} `json:"indicators"`
			} `json:"result"`
			Error any `json:"error"`
		} `json:"chart"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("yahoo chart decode: %w", err)
	}
	if len(raw.Chart.Result) == 0 {
		return nil, ErrNoQuote
	}

	r := raw.Chart.Result[0]
	if len(r.Indicators.Quote) == 0 {
		return nil, ErrNoQuote
	}
	closes := r.Indicators.Quote[0].Close

	out := make([]Close, 0, len(r.Timestamp))
	for i, ts := range r.Timestamp {
		if i >= len(closes) || closes[i] == nil || *closes[i] <= 0 {
			continue
		}
		out = append(out, Close{
			Date:  time.Unix(ts, 0).UTC(),
			Price: decimal.NewFromFloat(*closes[i]),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}
