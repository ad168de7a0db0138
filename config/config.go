package config

import (
	"log"
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	// Infrastructure
	SQLitePath    string
	RedisAddr     string
	RedisPassword string
	HTTPAddr      string
	MetricsAddr   string

	// Price oracle
	QuoteProvider string // "yahoo" or "angel"
	QuoteTimeout  time.Duration
	YahooSuffix   string // appended to bare symbols, e.g. ".NS"

	// Angel One credentials (required only when QuoteProvider == "angel")
	AngelAPIKey     string
	AngelClientCode string
	AngelPassword   string
	AngelTOTPSecret string
	AngelExchange   string
	AngelTokens     string // "SYMBOL:TOKEN,SYMBOL:TOKEN"
}

// Load reads configuration from environment variables with sensible defaults.
func Load() *Config {
	return &Config{
		SQLitePath:    getEnv("SQLITE_PATH", "data/portfolio.db"),
		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		HTTPAddr:      getEnv("HTTP_ADDR", ":8080"),
		MetricsAddr:   getEnv("METRICS_ADDR", ":9090"),

		QuoteProvider: getEnv("QUOTE_PROVIDER", "yahoo"),
		QuoteTimeout:  getEnvDuration("QUOTE_TIMEOUT", 7*time.Second),
		YahooSuffix:   getEnv("YAHOO_SUFFIX", ".NS"),

		AngelAPIKey:     getEnv("ANGEL_API_KEY", ""),
		AngelClientCode: getEnv("ANGEL_CLIENT_CODE", ""),
		AngelPassword:   getEnv("ANGEL_PASSWORD", ""),
		AngelTOTPSecret: getEnv("ANGEL_TOTP_SECRET", ""),
		AngelExchange:   getEnv("ANGEL_EXCHANGE", "NSE"),
		AngelTokens:     getEnv("ANGEL_TOKENS", ""),
	}
}

// MustAngel validates that the Angel One credential set is complete.
// Call only when QuoteProvider is "angel".
func (c *Config) MustAngel() {
	for _, kv := range []struct{ key, val string }{
		{"ANGEL_API_KEY", c.AngelAPIKey},
		{"ANGEL_CLIENT_CODE", c.AngelClientCode},
		{"ANGEL_PASSWORD", c.AngelPassword},
		{"ANGEL_TOTP_SECRET", c.AngelTOTPSecret},
	} {
		if kv.val == "" {
			log.Fatalf("[config] required env var %s not set for QUOTE_PROVIDER=angel", kv.key)
		}
	}
}

func getEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	if d, err := time.ParseDuration(v); err == nil && d > 0 {
		return d
	}
	if n, err := strconv.Atoi(v); err == nil && n > 0 {
		return time.Duration(n) * time.Second
	}
	log.Printf("[config] invalid duration for %s: %q, using default", key, v)
	return fallback
}
