package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"go.uber.org/fx"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	HTTPAddr    string

	// PublicBaseURL is the externally reachable origin used to build claim links.
	PublicBaseURL string

	OTLPEndpoint string

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	Promo    PromoConfig
	Rates    RatesConfig
	Fees     FeesConfig
	Webhooks WebhookConfig
}

// PromoConfig controls promo code issuance.
type PromoConfig struct {
	TTL        time.Duration
	CodeLength int
}

// RatesConfig controls exchange rate lookup and refresh.
type RatesConfig struct {
	MaxAge          time.Duration
	CacheTTL        time.Duration
	FetchTimeout    time.Duration
	RetentionDays   int
	BinanceURL      string
	CoinGeckoURL    string
	CoinGeckoAPIKey string
}

// FeesConfig holds commission fallbacks applied when no config row matches.
type FeesConfig struct {
	DefaultRate decimal.Decimal
	MaxRate     decimal.Decimal
}

// WebhookConfig controls outbound delivery retry behavior.
type WebhookConfig struct {
	Timeout     time.Duration
	MaxAttempts int
	BackoffBase time.Duration
	BackoffCap  time.Duration
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		AppName:       getenv("APP_SERVICE", "payway"),
		AppVersion:    getenv("APP_VERSION", "0.1.0"),
		Environment:   getenv("ENVIRONMENT", "development"),
		HTTPAddr:      getenv("HTTP_ADDR", ":8080"),
		PublicBaseURL: strings.TrimRight(getenv("PUBLIC_BASE_URL", "http://localhost:8080"), "/"),
		OTLPEndpoint:  getenv("OTLP_ENDPOINT", "localhost:4317"),

		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "payway"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", "postgres"),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 5),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 25),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 3600),
		DBConnMaxIdleTime: getenvInt("DATABASE_CONN_MAX_IDLE_TIME", 600),

		RedisAddr:     strings.TrimSpace(getenv("REDIS_ADDR", "")),
		RedisPassword: strings.TrimSpace(getenv("REDIS_PASSWORD", "")),
		RedisDB:       getenvInt("REDIS_DB", 0),

		Promo: PromoConfig{
			TTL:        getenvDuration("PROMO_LINK_TTL", 24*time.Hour),
			CodeLength: getenvInt("PROMO_CODE_LENGTH", 20),
		},
		Rates: RatesConfig{
			MaxAge:          getenvDuration("EXCHANGE_RATE_MAX_AGE", 10*time.Minute),
			CacheTTL:        getenvDuration("EXCHANGE_RATE_CACHE_TTL", 5*time.Minute),
			FetchTimeout:    getenvDuration("EXCHANGE_RATE_FETCH_TIMEOUT", 10*time.Second),
			RetentionDays:   getenvInt("EXCHANGE_RATE_RETENTION_DAYS", 30),
			BinanceURL:      getenv("BINANCE_API_URL", "https://api.binance.com/api/v3"),
			CoinGeckoURL:    getenv("COINGECKO_API_URL", "https://api.coingecko.com/api/v3"),
			CoinGeckoAPIKey: strings.TrimSpace(getenv("COINGECKO_API_KEY", "")),
		},
		Fees: FeesConfig{
			DefaultRate: getenvDecimal("DEFAULT_COMMISSION_RATE", "0.05"),
			MaxRate:     getenvDecimal("MAX_COMMISSION_RATE", "0.25"),
		},
		Webhooks: WebhookConfig{
			Timeout:     getenvDuration("WEBHOOK_TIMEOUT", 30*time.Second),
			MaxAttempts: getenvInt("WEBHOOK_MAX_ATTEMPTS", 6),
			BackoffBase: getenvDuration("WEBHOOK_BACKOFF_BASE", 30*time.Second),
			BackoffCap:  getenvDuration("WEBHOOK_BACKOFF_CAP", time.Hour),
		},
	}
}

// Module wires the application configuration.
var Module = fx.Module("config",
	fx.Provide(Load),
)

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}

func getenvDuration(key string, def time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return def
	}
	return parsed
}

func getenvDecimal(key, def string) decimal.Decimal {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		value = def
	}
	parsed, err := decimal.NewFromString(value)
	if err != nil {
		parsed, _ = decimal.NewFromString(def)
	}
	return parsed
}
