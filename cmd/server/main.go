package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"portfolio-systemv1/config"
	"portfolio-systemv1/internal/gateway"
	"portfolio-systemv1/internal/holdings"
	"portfolio-systemv1/internal/logger"
	"portfolio-systemv1/internal/metrics"
	"portfolio-systemv1/internal/pricing"
	"portfolio-systemv1/internal/service"
	sqlitestore "portfolio-systemv1/internal/store/sqlite"
	"portfolio-systemv1/internal/valuation"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)
	log.Println("[server] starting...")

	cfg := config.Load()
	slg := logger.Init("portfolio-server", slog.LevelInfo)

	// ---- Store ----
	os.MkdirAll(filepath.Dir(cfg.SQLitePath), 0o755)
	store, err := sqlitestore.New(sqlitestore.Config{DBPath: cfg.SQLitePath})
	if err != nil {
		log.Fatalf("[server] sqlite init failed: %v", err)
	}
	defer store.Close()

	// ---- Price oracle ----
	var oracle pricing.Oracle
	switch strings.ToLower(cfg.QuoteProvider) {
	case "angel":
		cfg.MustAngel()
		oracle = pricing.NewAngelOracle(pricing.AngelConfig{
			APIKey:     cfg.AngelAPIKey,
			ClientCode: cfg.AngelClientCode,
			Password:   cfg.AngelPassword,
			TOTPSecret: cfg.AngelTOTPSecret,
			Exchange:   cfg.AngelExchange,
			Tokens:     pricing.ParseTokenMap(cfg.AngelTokens),
			Timeout:    cfg.QuoteTimeout,
		}, slg)
	default:
		oracle = pricing.NewYahooOracle(cfg.QuoteTimeout, cfg.YahooSuffix)
	}

	// Quote cache is an optimization; run without it if Redis is down.
	cache, err := pricing.NewCache(pricing.CacheConfig{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	}, oracle)
	if err != nil {
		log.Printf("[server] redis unavailable, quotes uncached: %v", err)
	} else {
		oracle = cache
	}

	// ---- Metrics & health ----
	prom := metrics.NewMetrics()
	health := metrics.NewHealthStatus()
	metricsSrv := metrics.NewServer(cfg.MetricsAddr, health)
	metricsSrv.Start()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cache != nil {
		health.StartLivenessChecker(ctx, cache.Client(), store.DB(), 15*time.Second)
	} else {
		health.StartLivenessChecker(ctx, nil, store.DB(), 15*time.Second)
	}

	oracle = pricing.NewInstrumented(oracle, prom, health)

	// ---- Engine ----
	hub := gateway.NewHub(prom)
	svc := service.New(
		holdings.NewReconciler(store, slg),
		holdings.NewEnricher(oracle, slg),
		valuation.NewHistorian(store, oracle, slg),
		store,
		hub,
		prom,
		slg,
	)

	mux := http.NewServeMux()
	gateway.RegisterRoutes(mux, svc, hub)
	httpSrv := &http.Server{Addr: cfg.HTTPAddr, Handler: mux}

	go func() {
		log.Printf("[server] http listening on %s", cfg.HTTPAddr)
		if err := httpSrv.ListenAndServe(); err != http.ErrServerClosed {
			log.Fatalf("[server] http server error: %v", err)
		}
	}()

	// ---- Wait for shutdown signal ----
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Println("[server] shutdown signal received, cleaning up...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	httpSrv.Shutdown(shutdownCtx)
	metricsSrv.Stop(shutdownCtx)
	cancel()

	log.Println("[server] bye")
}
