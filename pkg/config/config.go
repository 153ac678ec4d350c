package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// Config holds all configuration for the application.
// All environment variables are read here and nowhere else.
type Config struct {
	Env string // development, staging, production

	// Database
	Database DatabaseConfig

	// Trading212
	T212 T212Config

	// Telegram
	Telegram TelegramConfig

	// Investment parameters
	Invest InvestConfig

	// Status API
	API APIConfig

	// Logging
	LogLevel  string
	LogFormat string
}

// DatabaseConfig holds PostgreSQL configuration.
type DatabaseConfig struct {
	URL string

	// Connection Pool
	MaxConns        int
	MinConns        int
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// T212Config holds Trading212 connection configuration.
type T212Config struct {
	// Mode selects the live or demo environment and determines the
	// base URL and session cookie name.
	Mode string // live, demo

	// APIToken authorizes the public metadata API (pies, instruments,
	// exchanges).
	APIToken string

	// CookieFile is the path to the session headers maintained by the
	// out-of-process login helper. The engine never logs in itself.
	CookieFile string
}

// BaseURL returns the web trading endpoint for the configured mode.
func (c T212Config) BaseURL() string {
	return fmt.Sprintf("https://%s.trading212.com", c.Mode)
}

// TelegramConfig holds Telegram bot configuration.
type TelegramConfig struct {
	Token       string
	AdminChatID int64

	// MaxMessagesPerHour caps outgoing notifications; the window is
	// tracked in the messages table.
	MaxMessagesPerHour int
}

// InvestConfig holds the scheduling and execution parameters.
type InvestConfig struct {
	// PieName is the name of the tracked pie; its composition supplies
	// the allocation weights.
	PieName string

	// WeeklyAmount is the total budget per 7-day horizon, in the master
	// currency.
	WeeklyAmount decimal.Decimal

	// Period is the nominal spacing between order slots.
	Period time.Duration

	// MasterCurrency is the currency all scheduled amounts are kept in.
	MasterCurrency string

	// CurrencyPriority lists fallback currencies tried, in order, when
	// an account wallet lacks funds in the instrument's own currency.
	CurrencyPriority []string

	// ExpiredGrace is how long a due order may wait before it counts as
	// missed downtime and is dropped instead of executed late.
	ExpiredGrace time.Duration

	// Timezone is used for human-facing timestamps in notifications.
	Timezone *time.Location
}

// APIConfig holds the status HTTP server configuration.
type APIConfig struct {
	Enabled bool
	Port    string
}

// Load reads configuration from environment variables.
// This is the only function that calls os.Getenv().
func Load() (*Config, error) {
	loadEnvFile()

	weekly, err := decimal.NewFromString(getEnv("INVEST_WEEKLY_AMOUNT", "1250"))
	if err != nil {
		return nil, fmt.Errorf("invalid INVEST_WEEKLY_AMOUNT: %w", err)
	}

	tz, err := time.LoadLocation(getEnv("INVEST_TIMEZONE", "Europe/Amsterdam"))
	if err != nil {
		return nil, fmt.Errorf("invalid INVEST_TIMEZONE: %w", err)
	}

	cfg := &Config{
		Env: getEnv("ENV", "development"),

		Database: DatabaseConfig{
			URL:             getEnv("DATABASE_URL", ""),
			MaxConns:        getEnvAsInt("DB_MAX_CONNS", 8),
			MinConns:        getEnvAsInt("DB_MIN_CONNS", 1),
			MaxConnLifetime: getEnvAsDuration("DB_MAX_CONN_LIFETIME", "1h"),
			MaxConnIdleTime: getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", "30m"),
		},

		T212: T212Config{
			Mode:       getEnv("T212_MODE", "live"),
			APIToken:   getEnv("T212_API_TOKEN", ""),
			CookieFile: getEnv("T212_COOKIE_FILE", ".secrets/t212_cookies"),
		},

		Telegram: TelegramConfig{
			Token:              getEnv("TELEGRAM_TOKEN", ""),
			AdminChatID:        getEnvAsInt64("TELEGRAM_ADMIN_CHAT_ID", 0),
			MaxMessagesPerHour: getEnvAsInt("TELEGRAM_MAX_MESSAGES_PER_HOUR", 5),
		},

		Invest: InvestConfig{
			PieName:          getEnv("INVEST_PIE_NAME", "autoinvest"),
			WeeklyAmount:     weekly,
			Period:           getEnvAsDuration("INVEST_PERIOD", "1h"),
			MasterCurrency:   getEnv("INVEST_MASTER_CURRENCY", "EUR"),
			CurrencyPriority: getEnvAsList("INVEST_CURRENCY_PRIORITY", "EUR,USD"),
			ExpiredGrace:     getEnvAsDuration("INVEST_EXPIRED_GRACE", "1h"),
			Timezone:         tz,
		},

		API: APIConfig{
			Enabled: getEnvAsBool("API_ENABLED", true),
			Port:    getEnv("API_PORT", "8089"),
		},

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// validate checks if required configuration values are set.
func (c *Config) validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.Env != "development" && c.Env != "staging" && c.Env != "production" {
		return fmt.Errorf("ENV must be one of: development, staging, production")
	}

	if c.T212.Mode != "live" && c.T212.Mode != "demo" {
		return fmt.Errorf("T212_MODE must be one of: live, demo")
	}

	if c.Invest.Period <= 0 {
		return fmt.Errorf("INVEST_PERIOD must be positive")
	}

	if !c.Invest.WeeklyAmount.IsPositive() {
		return fmt.Errorf("INVEST_WEEKLY_AMOUNT must be positive")
	}

	if c.Invest.MasterCurrency == "" {
		return fmt.Errorf("INVEST_MASTER_CURRENCY is required")
	}

	return nil
}

// Helper functions (private, only used within this file)

// loadEnvFile tries to load .env from multiple locations
func loadEnvFile() {
	paths := []string{
		".env",
	}

	// Also try relative to executable
	if exe, err := os.Executable(); err == nil {
		exeDir := filepath.Dir(exe)
		paths = append(paths,
			filepath.Join(exeDir, ".env"),
			filepath.Join(exeDir, "..", ".env"),
		)
	}

	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			_ = godotenv.Load(path)
			return
		}
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseInt(valueStr, 10, 64)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsDuration(key string, defaultValue string) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		valueStr = defaultValue
	}

	duration, err := time.ParseDuration(valueStr)
	if err != nil {
		duration, _ = time.ParseDuration(defaultValue)
	}

	return duration
}

func getEnvAsList(key string, defaultValue string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		valueStr = defaultValue
	}

	parts := strings.Split(valueStr, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
