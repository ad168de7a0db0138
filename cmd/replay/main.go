// cmd/replay rebuilds the daily valuation history from the ledger offline
// and prints it, without starting the API server.
//
// Usage:
//
//	go run ./cmd/replay --db=data/portfolio.db --format=table
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"time"

	"portfolio-systemv1/internal/logger"
	"portfolio-systemv1/internal/pricing"
	sqlitestore "portfolio-systemv1/internal/store/sqlite"
	"portfolio-systemv1/internal/valuation"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)

	dbPath := flag.String("db", "data/portfolio.db", "Path to SQLite database")
	format := flag.String("format", "table", "Output format: table or json")
	suffix := flag.String("suffix", ".NS", "Yahoo ticker suffix for bare symbols")
	timeout := flag.Duration("timeout", 15*time.Second, "Per-request price fetch timeout")
	flag.Parse()

	slg := logger.Init("portfolio-replay", slog.LevelWarn)

	store, err := sqlitestore.New(sqlitestore.Config{DBPath: *dbPath})
	if err != nil {
		log.Fatalf("[replay] sqlite open failed: %v", err)
	}
	defer store.Close()

	oracle := pricing.NewYahooOracle(*timeout, *suffix)
	historian := valuation.NewHistorian(store, oracle, slg)

	points, err := historian.Build(context.Background())
	if err != nil {
		log.Fatalf("[replay] build failed: %v", err)
	}
	if len(points) == 0 {
		log.Println("[replay] no history: empty ledger or prices unavailable")
		return
	}

	switch *format {
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(points); err != nil {
			log.Fatalf("[replay] encode: %v", err)
		}
	default:
		fmt.Printf("%-12s  %16s  %16s\n", "DATE", "INVESTED", "MARKET")
		for _, p := range points {
			fmt.Printf("%-12s  %16s  %16s\n",
				p.Date.Format("2006-01-02"),
				p.InvestedValue.StringFixed(2),
				p.MarketValue.StringFixed(2))
		}
		last := points[len(points)-1]
		fmt.Printf("\n%d days, final invested %s, final market %s\n",
			len(points), last.InvestedValue.StringFixed(2), last.MarketValue.StringFixed(2))
	}
}
