// Package metrics exposes Prometheus metrics and a /healthz endpoint for
// the portfolio engine.
package metrics

import (
	"context"
	"database/sql"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the portfolio engine.
type Metrics struct {
	TransactionsTotal *prometheus.CounterVec // labels: kind
	ReconcileDur      prometheus.Histogram
	ReconcileErrors   prometheus.Counter
	OpenPositions     prometheus.Gauge

	OracleRequestDur *prometheus.HistogramVec // labels: op (current|historical)
	OracleFailures   *prometheus.CounterVec   // labels: op
	StalePositions   prometheus.Gauge

	HistorianBuildDur prometheus.Histogram
	HistorianDays     prometheus.Gauge

	WSClients    prometheus.Gauge
	WSBroadcasts prometheus.Counter
}

// NewMetrics registers and returns all Prometheus metrics.
func NewMetrics() *Metrics {
	m := &Metrics{
		TransactionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "portfolio_transactions_total",
			Help: "Total transactions recorded (by kind)",
		}, []string{"kind"}),
		ReconcileDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "portfolio_reconcile_duration_seconds",
			Help:    "Ledger mutation + position recompute latency",
			Buckets: prometheus.DefBuckets,
		}),
		ReconcileErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "portfolio_reconcile_errors_total",
			Help: "Mutations rejected or failed during reconciliation",
		}),
		OpenPositions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "portfolio_open_positions",
			Help: "Current number of open positions",
		}),

		OracleRequestDur: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "portfolio_oracle_request_duration_seconds",
			Help:    "Price oracle request latency (by operation)",
			Buckets: prometheus.DefBuckets,
		}, []string{"op"}),
		OracleFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "portfolio_oracle_failures_total",
			Help: "Price oracle errors (by operation)",
		}, []string{"op"}),
		StalePositions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "portfolio_stale_positions",
			Help: "Positions served on cost-basis fallback in the last enrichment",
		}),

		HistorianBuildDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "portfolio_historian_build_duration_seconds",
			Help:    "Full valuation-history replay latency",
			Buckets: prometheus.DefBuckets,
		}),
		HistorianDays: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "portfolio_historian_days",
			Help: "Days covered by the last valuation-history build",
		}),

		WSClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "portfolio_ws_clients",
			Help: "Connected WebSocket clients",
		}),
		WSBroadcasts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "portfolio_ws_broadcasts_total",
			Help: "Messages broadcast over the WebSocket hub",
		}),
	}

	prometheus.MustRegister(
		m.TransactionsTotal,
		m.ReconcileDur,
		m.ReconcileErrors,
		m.OpenPositions,
		m.OracleRequestDur,
		m.OracleFailures,
		m.StalePositions,
		m.HistorianBuildDur,
		m.HistorianDays,
		m.WSClients,
		m.WSBroadcasts,
	)

	return m
}

// HealthStatus represents the system health.
type HealthStatus struct {
	mu sync.RWMutex

	RedisConnected bool `json:"redis_connected"`
	SQLiteOK       bool `json:"sqlite_ok"`
	OracleOK       bool `json:"oracle_ok"`

	// Liveness probe results
	RedisLatencyMs  float64   `json:"redis_latency_ms"`
	SQLiteLatencyMs float64   `json:"sqlite_latency_ms"`
	LastCheckAt     time.Time `json:"last_check_at"`
	StartedAt       time.Time `json:"started_at"`
}

// NewHealthStatus returns a default health status.
func NewHealthStatus() *HealthStatus {
	return &HealthStatus{
		StartedAt: time.Now(),
		OracleOK:  true,
	}
}

func (h *HealthStatus) SetOracleOK(v bool) {
	h.mu.Lock()
	h.OracleOK = v
	h.mu.Unlock()
}

// CheckRedis pings Redis and records latency + connectivity.
func (h *HealthStatus) CheckRedis(ctx context.Context, rdb *goredis.Client) {
	start := time.Now()
	err := rdb.Ping(ctx).Err()
	latency := time.Since(start)

	h.mu.Lock()
	h.RedisConnected = err == nil
	h.RedisLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// CheckSQLite runs a trivial query and records latency + health.
func (h *HealthStatus) CheckSQLite(ctx context.Context, db *sql.DB) {
	start := time.Now()
	err := db.PingContext(ctx)
	latency := time.Since(start)

	h.mu.Lock()
	h.SQLiteOK = err == nil
	h.SQLiteLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// StartLivenessChecker runs periodic dependency checks.
func (h *HealthStatus) StartLivenessChecker(ctx context.Context, rdb *goredis.Client, sqlDB *sql.DB, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
				if rdb != nil {
					h.CheckRedis(probeCtx, rdb)
				}
				if sqlDB != nil {
					h.CheckSQLite(probeCtx, sqlDB)
				}
				cancel()
			}
		}
	}()
}

// ServeHTTP handles the /healthz endpoint.
func (h *HealthStatus) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	overallStatus := "healthy"
	httpCode := http.StatusOK

	if !h.SQLiteOK {
		// The ledger is the system of record; without it nothing works.
		overallStatus = "unhealthy"
		httpCode = http.StatusServiceUnavailable
	} else if !h.RedisConnected || !h.OracleOK {
		// Degraded reads (cost-basis fallback) still work.
		overallStatus = "degraded"
	}

	status := struct {
		Status          string  `json:"status"`
		Uptime          string  `json:"uptime"`
		SQLiteOK        bool    `json:"sqlite_ok"`
		SQLiteLatencyMs float64 `json:"sqlite_latency_ms"`
		RedisConnected  bool    `json:"redis_connected"`
		RedisLatencyMs  float64 `json:"redis_latency_ms"`
		OracleOK        bool    `json:"oracle_ok"`
		LastCheckAt     string  `json:"last_check_at"`
	}{
		Status:          overallStatus,
		Uptime:          time.Since(h.StartedAt).Round(time.Second).String(),
		SQLiteOK:        h.SQLiteOK,
		SQLiteLatencyMs: h.SQLiteLatencyMs,
		RedisConnected:  h.RedisConnected,
		RedisLatencyMs:  h.RedisLatencyMs,
		OracleOK:        h.OracleOK,
		LastCheckAt:     h.LastCheckAt.Format(time.RFC3339),
	}

	w.Header().Set("Content-Type", "application/json")
	if httpCode != http.StatusOK {
		w.WriteHeader(httpCode)
	}
	json.NewEncoder(w).Encode(status)
}

// Server runs an HTTP server exposing /metrics and /healthz.
type Server struct {
	health *HealthStatus
	addr   string
	srv    *http.Server
}

// NewServer creates a metrics and health server.
func NewServer(addr string, health *HealthStatus) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", health.ServeHTTP)

	return &Server{
		health: health,
		addr:   addr,
		srv: &http.Server{
			Addr:    addr,
			Handler: mux,
		},
	}
}

// Start launches the HTTP server in a goroutine.
func (s *Server) Start() {
	go func() {
		log.Printf("[metrics] server listening on %s", s.addr)
		if err := s.srv.ListenAndServe(); err != http.ErrServerClosed {
			log.Printf("[metrics] server error: %v", err)
		}
	}()
}

// Stop gracefully shuts down the metrics server.
func (s *Server) Stop(ctx context.Context) {
	s.srv.Shutdown(ctx)
}
