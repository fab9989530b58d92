package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration loaded from environment variables.
type Config struct {
	HTTPPort     string
	AppMode      string
	LogLevel     string
	FiberPrefork bool

	ClickHouseAddr     string
	ClickHouseDatabase string
	ClickHouseUser     string
	ClickHousePassword string

	// Facebook Conversions API settings. PixelID/AccessToken/TestCode are the
	// global defaults used when no per-domain config matches.
	FacebookAPIURL string
	PixelID        string
	AccessToken    string
	TestCode       string

	GeoIPDBPath  string
	GeoCacheTTL  time.Duration
	GeoCacheSize int

	DeliveryMaxAttempts    int
	DeliveryRetryBaseDelay time.Duration
	DeliveryTimeout        time.Duration

	// DefaultCountryCode is prepended to phone numbers that look local.
	DefaultCountryCode string
	DefaultCurrency    string

	WorkerBufferSize int
	WorkerBatchSize  int
	WorkerFlushEvery time.Duration
}

// Load reads configuration from environment variables with sane defaults.
func Load() (*Config, error) {
	cfg := &Config{
		HTTPPort:     getEnv("HTTP_PORT", ":8080"),
		AppMode:      strings.ToLower(getEnv("APP_MODE", "dev")),
		LogLevel:     getEnv("LOG_LEVEL", "info"),
		FiberPrefork: parseBoolEnv("FIBER_PREFORK", false),

		ClickHouseAddr:     getEnv("CLICKHOUSE_ADDR", "localhost:9000"),
		ClickHouseDatabase: getEnv("CLICKHOUSE_DATABASE", "default"),
		ClickHouseUser:     getEnv("CLICKHOUSE_USER", "default"),
		ClickHousePassword: os.Getenv("CLICKHOUSE_PASSWORD"),

		FacebookAPIURL: getEnv("FB_API_URL", "https://graph.facebook.com/v18.0"),
		PixelID:        os.Getenv("FB_PIXEL_ID"),
		AccessToken:    os.Getenv("FB_ACCESS_TOKEN"),
		TestCode:       os.Getenv("FB_TEST_CODE"),

		GeoIPDBPath:  os.Getenv("GEOIP_DB_PATH"),
		GeoCacheTTL:  parseDurationEnv("GEOIP_CACHE_TTL", 24*time.Hour),
		GeoCacheSize: parseIntEnv("GEOIP_CACHE_SIZE", 10000),

		DeliveryMaxAttempts:    parseIntEnv("DELIVERY_MAX_ATTEMPTS", 3),
		DeliveryRetryBaseDelay: parseDurationEnv("DELIVERY_RETRY_BASE_DELAY", time.Second),
		DeliveryTimeout:        parseDurationEnv("DELIVERY_TIMEOUT", 10*time.Second),

		DefaultCountryCode: getEnv("DEFAULT_COUNTRY_CODE", "55"),
		DefaultCurrency:    getEnv("DEFAULT_CURRENCY", "BRL"),

		WorkerBufferSize: parseIntEnv("WORKER_BUFFER_SIZE", 1024),
		WorkerBatchSize:  parseIntEnv("WORKER_BATCH_SIZE", 100),
		WorkerFlushEvery: parseDurationEnv("WORKER_FLUSH_EVERY", 2*time.Second),
	}

	if cfg.DeliveryMaxAttempts < 1 {
		return nil, fmt.Errorf("DELIVERY_MAX_ATTEMPTS must be at least 1")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func parseBoolEnv(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func parseIntEnv(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func parseDurationEnv(key string, fallback time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(val)
	if err != nil {
		return fallback
	}
	return parsed
}
