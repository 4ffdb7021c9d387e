package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/shopspring/decimal"
)

// Config holds application configuration
type Config struct {
	Port      string
	DBPath    string
	LogLevel  string
	JWTSecret string

	SMTPHost     string
	SMTPPort     string
	SMTPUsername string
	SMTPPassword string
	SenderEmail  string

	// BenchmarkRateURL is the SOAP key-rate endpoint; empty disables the
	// benchmark spread rule in the compliance guard.
	BenchmarkRateURL string

	MaxPrincipal         decimal.Decimal
	MaxAnnualRatePercent decimal.Decimal
	MaxBenchmarkSpread   decimal.Decimal

	// ReminderDays is how many days ahead the payment reminder sweep looks.
	ReminderDays int
}

// NewConfig loads configuration from environment variables
func NewConfig() (*Config, error) {
	cfg := &Config{
		Port:             getEnv("PORT", "8080"),
		DBPath:           getEnv("DB_PATH", "peerlend.db"),
		LogLevel:         getEnv("LOG_LEVEL", "INFO"),
		JWTSecret:        getEnv("JWT_SECRET", "secret"),
		SMTPHost:         getEnv("SMTP_HOST", ""),
		SMTPPort:         getEnv("SMTP_PORT", "587"),
		SMTPUsername:     getEnv("SMTP_USERNAME", ""),
		SMTPPassword:     getEnv("SMTP_PASSWORD", ""),
		SenderEmail:      getEnv("SENDER_EMAIL", "noreply@peerlend.example.com"),
		BenchmarkRateURL: getEnv("BENCHMARK_RATE_URL", ""),
	}

	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	var err error
	if cfg.MaxPrincipal, err = getEnvDecimal("MAX_PRINCIPAL", "1000000"); err != nil {
		return nil, err
	}
	if cfg.MaxAnnualRatePercent, err = getEnvDecimal("MAX_ANNUAL_RATE_PERCENT", "36"); err != nil {
		return nil, err
	}
	if cfg.MaxBenchmarkSpread, err = getEnvDecimal("MAX_BENCHMARK_SPREAD", "12"); err != nil {
		return nil, err
	}

	days := getEnv("REMINDER_DAYS", "3")
	cfg.ReminderDays, err = strconv.Atoi(days)
	if err != nil || cfg.ReminderDays < 1 {
		return nil, fmt.Errorf("REMINDER_DAYS must be a positive integer, got %q", days)
	}

	return cfg, nil
}

func getEnv(key, defaultVal string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultVal
}

func getEnvDecimal(key, defaultVal string) (decimal.Decimal, error) {
	raw := getEnv(key, defaultVal)
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%s must be a decimal, got %q", key, raw)
	}
	return d, nil
}
