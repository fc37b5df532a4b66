package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	AppEnv             string
	Port               string
	DatabaseURL        string
	RedisURL           string
	JWTSecret          string
	CORSAllowedOrigins []string

	AccessTokenTTL time.Duration
	OTPTTL         time.Duration
	OTPResendAfter time.Duration
	OTPMaxAttempts int
	OTPRatePerHour int

	IdempotencyTTL time.Duration

	ShopName    string
	ShopAddress string
	ShopPhone   string
	ShopGSTIN   string
	UPIPayeeVPA string

	CurrencyCode string

	PrinterType  string
	PrinterAddr  string
	PrinterPath  string
	PrinterWidth int

	SuggestCacheTTL   time.Duration
	SuggestRateLimit  string
	AnalyticsCacheTTL time.Duration
	AnalyticsRange    int

	CatalogDefaultLimit int
	CatalogMaxLimit     int

	PrintQueueName  string
	NotifyQueueName string
}

// Load reads configuration from environment variables and optional .env files.
func Load() (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", func(s string) string { return s }), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	cfg := &Config{
		AppEnv:             valueOrDefault(k.String("APP_ENV"), "development"),
		Port:               valueOrDefault(k.String("PORT"), "8080"),
		DatabaseURL:        k.String("DATABASE_URL"),
		RedisURL:           k.String("REDIS_URL"),
		JWTSecret:          k.String("JWT_SECRET"),
		CORSAllowedOrigins: splitAndTrim(k.String("CORS_ALLOWED_ORIGINS")),

		AccessTokenTTL: parseDuration(k.String("ACCESS_TOKEN_TTL"), "12h"),
		OTPTTL:         parseDuration(k.String("OTP_TTL"), "5m"),
		OTPResendAfter: parseDuration(k.String("OTP_RESEND_AFTER"), "30s"),
		OTPMaxAttempts: intOrDefault(k.Int("OTP_MAX_ATTEMPTS"), 5),
		OTPRatePerHour: intOrDefault(k.Int("OTP_RATE_PER_HOUR"), 10),

		IdempotencyTTL: parseDuration(k.String("IDEMPOTENCY_TTL"), "24h"),

		ShopName:    valueOrDefault(k.String("SHOP_NAME"), "Kirana Hub"),
		ShopAddress: k.String("SHOP_ADDRESS"),
		ShopPhone:   k.String("SHOP_PHONE"),
		ShopGSTIN:   k.String("SHOP_GSTIN"),
		UPIPayeeVPA: k.String("UPI_PAYEE_VPA"),

		CurrencyCode: valueOrDefault(k.String("CURRENCY_CODE"), "INR"),

		PrinterType:  valueOrDefault(k.String("PRINTER_TYPE"), "none"),
		PrinterAddr:  k.String("PRINTER_ADDR"),
		PrinterPath:  k.String("PRINTER_PATH"),
		PrinterWidth: intOrDefault(k.Int("PRINTER_WIDTH"), 48),

		SuggestCacheTTL:   parseDuration(k.String("SUGGEST_CACHE_TTL"), "30s"),
		SuggestRateLimit:  valueOrDefault(k.String("SUGGEST_RATE_LIMIT"), "30-M"),
		AnalyticsCacheTTL: parseDuration(k.String("ANALYTICS_CACHE_TTL"), "5m"),
		AnalyticsRange:    intOrDefault(k.Int("ANALYTICS_DEFAULT_RANGE_DAYS"), 30),

		CatalogDefaultLimit: intOrDefault(k.Int("CATALOG_DEFAULT_LIMIT"), 20),
		CatalogMaxLimit:     intOrDefault(k.Int("CATALOG_MAX_LIMIT"), 100),

		PrintQueueName:  valueOrDefault(k.String("QUEUE_PRINT"), "print"),
		NotifyQueueName: valueOrDefault(k.String("QUEUE_NOTIFY"), "notify"),
	}

	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is required")
	}
	if cfg.RedisURL == "" {
		return nil, errors.New("REDIS_URL is required")
	}
	if cfg.JWTSecret == "" {
		return nil, errors.New("JWT_SECRET is required")
	}
	if cfg.PrinterWidth <= 0 {
		cfg.PrinterWidth = 48
	}

	return cfg, nil
}

// HTTPAddr returns the address the HTTP server should bind to.
func (c *Config) HTTPAddr() string {
	port := strings.TrimSpace(c.Port)
	if port == "" {
		port = "8080"
	}
	if strings.HasPrefix(port, ":") {
		return port
	}
	return ":" + port
}

func splitAndTrim(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func valueOrDefault(value, fallback string) string {
	if strings.TrimSpace(value) != "" {
		return value
	}
	return fallback
}

func intOrDefault(value, fallback int) int {
	if value > 0 {
		return value
	}
	return fallback
}

func parseDuration(value, fallback string) time.Duration {
	base := strings.TrimSpace(value)
	if base == "" {
		base = fallback
	}
	d, err := time.ParseDuration(base)
	if err != nil {
		d, _ = time.ParseDuration(fallback)
	}
	return d
}

// MustLoad behaves like Load but panics on error. Useful for tests and command entrypoints.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// LoadForTests allows tests to override environment variables without touching the real environment.
func LoadForTests(env map[string]string) (*Config, error) {
	original := make(map[string]string, len(env))
	for key := range env {
		original[key] = os.Getenv(key)
		if err := setEnvVar(key, env[key]); err != nil {
			return nil, err
		}
	}
	cfg, err := Load()
	restoreErr := restoreEnv(original)
	if err != nil {
		return nil, err
	}
	return cfg, restoreErr
}

func setEnvVar(key, value string) error {
	if value == "" {
		return os.Unsetenv(key)
	}
	return os.Setenv(key, value)
}

func restoreEnv(values map[string]string) error {
	var errs []string
	for key, value := range values {
		if err := setEnvVar(key, value); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", key, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("restore env: %s", strings.Join(errs, "; "))
	}
	return nil
}
