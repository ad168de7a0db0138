package pricing

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/pquerna/otp/totp"
	"github.com/shopspring/decimal"
)

// Angel One SmartAPI routes used by the broker oracle.
const (
	angelRootURL   = "https://apiconnect.angelone.in"
	angelLoginPath = "/rest/auth/angelbroking/user/v1/loginByPassword"
	angelQuotePath = "/rest/secure/angelbroking/market/v1/quote"
	angelCandles   = "/rest/secure/angelbroking/historical/v1/getCandleData"
)

// AngelConfig holds broker credentials and the symbol->token mapping the
// SmartAPI quote endpoints require.
type AngelConfig struct {
	APIKey     string
	ClientCode string
	Password   string
	TOTPSecret string
	Exchange   string            // e.g. "NSE"
	Tokens     map[string]string // ledger symbol -> numeric scrip token
	Timeout    time.Duration
}

// AngelOracle resolves prices from the Angel One SmartAPI. Sessions are
// generated lazily with a time-based OTP and re-established on auth expiry.
// Symbols without a configured scrip token are simply absent from results.
type AngelOracle struct {
	cfg AngelConfig
	cli *http.Client
	log *slog.Logger

	mu          sync.Mutex
	accessToken string
}

// NewAngelOracle creates a broker-backed price oracle.
func NewAngelOracle(cfg AngelConfig, log *slog.Logger) *AngelOracle {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 7 * time.Second
	}
	if cfg.Exchange == "" {
		cfg.Exchange = "NSE"
	}
	return &AngelOracle{
		cfg: cfg,
		cli: &http.Client{Timeout: cfg.Timeout},
		log: log,
	}
}

// ParseTokenMap parses "SYMBOL:TOKEN,SYMBOL:TOKEN" pairs from config.
func ParseTokenMap(s string) map[string]string {
	out := make(map[string]string)
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		kv := strings.SplitN(part, ":", 2)
		if len(kv) != 2 || kv[0] == "" || kv[1] == "" {
			continue
		}
		out[strings.ToUpper(kv[0])] = kv[1]
	}
	return out
}

// login generates a fresh TOTP and opens a SmartAPI session.
// Caller holds a.mu.
func (a *AngelOracle) login(ctx context.Context) error {
	code, err := totp.GenerateCode(a.cfg.TOTPSecret, time.Now())
	if err != nil {
		return fmt.Errorf("angel totp: %w", err)
	}

	body, _ := json.Marshal(map[string]string{
		"clientcode": a.cfg.ClientCode,
		"password":   a.cfg.Password,
		"totp":       code,
	})
	res, err := a.do(ctx, angelLoginPath, body, "")
	if err != nil {
		return fmt.Errorf("angel login: %w", err)
	}

	var parsed struct {
		Status bool `json:"status"`
		Data   struct {
			JWTToken string `json:"jwtToken"`
		} `json:"data"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(res, &parsed); err != nil {
		return fmt.Errorf("angel login decode: %w", err)
	}
	if !parsed.Status || parsed.Data.JWTToken == "" {
		return fmt.Errorf("angel login rejected: %s", parsed.Message)
	}
	a.accessToken = parsed.Data.JWTToken
	a.log.Info("angel session established", "client", a.cfg.ClientCode)
	return nil
}

func (a *AngelOracle) do(ctx context.Context, path string, body []byte, token string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, angelRootURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-PrivateKey", a.cfg.APIKey)
	req.Header.Set("X-UserType", "USER")
	req.Header.Set("X-SourceID", "WEB")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := a.cli.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusUnauthorized {
		return nil, errSessionExpired
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("angel http %d", resp.StatusCode)
	}

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(resp.Body); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

var errSessionExpired = fmt.Errorf("angel session expired")

// authed runs one SmartAPI call, logging in first when no session exists
// and retrying exactly once after an auth expiry.
func (a *AngelOracle) authed(ctx context.Context, path string, body []byte) ([]byte, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.accessToken == "" {
		if err := a.login(ctx); err != nil {
			return nil, err
		}
	}
	res, err := a.do(ctx, path, body, a.accessToken)
	if err == errSessionExpired {
		a.accessToken = ""
		if err := a.login(ctx); err != nil {
			return nil, err
		}
		res, err = a.do(ctx, path, body, a.accessToken)
	}
	return res, err
}

// Current fetches LTP quotes for every symbol with a known scrip token in
// one batched request.
func (a *AngelOracle) Current(ctx context.Context, symbols []string) (map[string]Quote, error) {
	tokens := make([]string, 0, len(symbols))
	back := make(map[string]string, len(symbols)) // token -> ledger symbol
	for _, s := range symbols {
		s = strings.ToUpper(strings.TrimSpace(s))
		if tok, ok := a.cfg.Tokens[s]; ok {
			tokens = append(tokens, tok)
			back[tok] = s
		}
	}
	if len(tokens) == 0 {
		return map[string]Quote{}, nil
	}

	body, _ := json.Marshal(map[string]any{
		"mode":           "LTP",
		"exchangeTokens": map[string][]string{a.cfg.Exchange: tokens},
	})
	res, err := a.authed(ctx, angelQuotePath, body)
	if err != nil {
		return nil, fmt.Errorf("angel quote: %w", err)
	}

	var parsed struct {
		Status bool `json:"status"`
		Data   struct {
			Fetched []struct {
				SymbolToken  string  `json:"symbolToken"`
				LTP          float64 `json:"ltp"`
				ExchFeedTime string  `json:"exchFeedTime"`
			} `json:"fetched"`
		} `json:"data"`
	}
	if err := json.Unmarshal(res, &parsed); err != nil {
		return nil, fmt.Errorf("angel quote decode: %w", err)
	}

	now := time.Now().UTC()
	out := make(map[string]Quote, len(parsed.Data.Fetched))
	for _, f := range parsed.Data.Fetched {
		sym, ok := back[f.SymbolToken]
		if !ok || f.LTP <= 0 {
			continue
		}
		asOf := now
		if t, err := time.Parse("02-Jan-2006 15:04:05", f.ExchFeedTime); err == nil {
			asOf = t
		}
		out[sym] = Quote{Symbol: sym, Price: decimal.NewFromFloat(f.LTP), AsOf: asOf}
	}
	return out, nil
}

// Historical fetches ONE_DAY candles and keeps the closes.
func (a *AngelOracle) Historical(ctx context.Context, symbol string, from, to time.Time) ([]Close, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	tok, ok := a.cfg.Tokens[symbol]
	if !ok {
		return nil, ErrNoQuote
	}

	body, _ := json.Marshal(map[string]string{
		"exchange":    a.cfg.Exchange,
		"symboltoken": tok,
		"interval":    "ONE_DAY",
		"fromdate":    from.Format("2006-01-02 09:15"),
		"todate":      to.Format("2006-01-02 15:30"),
	})
	res, err := a.authed(ctx, angelCandles, body)
	if err != nil {
		return nil, fmt.Errorf("angel candles: %w", err)
	}

	// Rows are [timestamp, open, high, low, close, volume] with a string
	// timestamp and numeric prices.
	var parsed struct {
		Status bool    `json:"status"`
		Data   [][]any `json:"data"`
	}
	if err := json.Unmarshal(res, &parsed); err != nil {
		return nil, fmt.Errorf("angel candles decode: %w", err)
	}
	return parseAngelRows(parsed.Data)
}

func parseAngelRows(rows [][]any) ([]Close, error) {
	out := make([]Close, 0, len(rows))
	for _, row := range rows {
		if len(row) < 5 {
			continue
		}
		ts, ok := row[0].(string)
		if !ok {
			continue
		}
		day, err := time.Parse("2006-01-02T15:04:05-07:00", ts)
		if err != nil {
			continue
		}
		var price decimal.Decimal
		switch v := row[4].(type) {
		case float64:
			price = decimal.NewFromFloat(v)
		case json.Number:
			price, err = decimal.NewFromString(v.String())
			if err != nil {
				continue
			}
		default:
			continue
		}
		if price.IsPositive() {
			out = append(out, Close{Date: day.UTC(), Price: price})
		}
	}
	if len(out) == 0 {
		return nil, ErrNoQuote
	}
	return out, nil
}
