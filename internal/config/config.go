package config

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

type Config struct {
	DBDSN          string
	Environment    string
	HTTPAddr       string
	MigrationsPath string

	PaymentProvider      string // "paystack" или "flutterwave"
	PaystackSecretKey    string
	FlutterwaveSecretKey string
	WebhookSecret        string
	Currency             string

	ReservationTTL time.Duration
	SweepInterval  time.Duration
	WarningWindow  time.Duration

	// Заявки на вывод свыше этой суммы требуют ручного одобрения
	WithdrawalApproveOver decimal.Decimal
}

func Load() (*Config, error) {
	// Пытаемся загрузить .env файл (игнорируем ошибку, если файла нет)
	if err := godotenv.Load(".env"); err != nil {
		log.Println("⚠️  No .env file found, using environment variables")
	} else {
		log.Println("✅ Loaded configuration from .env file")
	}

	cfg := &Config{
		DBDSN:                os.Getenv("DB_DSN"),
		Environment:          os.Getenv("ENV"),
		HTTPAddr:             os.Getenv("HTTP_ADDR"),
		MigrationsPath:       os.Getenv("MIGRATIONS_PATH"),
		PaymentProvider:      os.Getenv("PAYMENT_PROVIDER"),
		PaystackSecretKey:    os.Getenv("PAYSTACK_SECRET_KEY"),
		FlutterwaveSecretKey: os.Getenv("FLUTTERWAVE_SECRET_KEY"),
		WebhookSecret:        os.Getenv("WEBHOOK_SECRET"),
		Currency:             os.Getenv("CURRENCY"),
	}

	// Устанавливаем дефолтные значения
	if cfg.Environment == "" {
		cfg.Environment = "development"
	}
	if cfg.HTTPAddr == "" {
		cfg.HTTPAddr = ":8080"
	}
	if cfg.MigrationsPath == "" {
		cfg.MigrationsPath = "migrations"
	}
	if cfg.PaymentProvider == "" {
		cfg.PaymentProvider = "paystack"
	}
	if cfg.Currency == "" {
		cfg.Currency = "NGN"
	}

	var err error
	if cfg.ReservationTTL, err = durationEnv("RESERVATION_TTL", 5*time.Minute); err != nil {
		return nil, err
	}
	if cfg.SweepInterval, err = durationEnv("SWEEP_INTERVAL", 2*time.Minute); err != nil {
		return nil, err
	}
	if cfg.WarningWindow, err = durationEnv("WARNING_WINDOW", 2*time.Minute); err != nil {
		return nil, err
	}
	if cfg.WithdrawalApproveOver, err = decimalEnv("WITHDRAWAL_APPROVE_OVER", decimal.NewFromInt(50000)); err != nil {
		return nil, err
	}

	// Проверяем обязательные поля
	if cfg.DBDSN == "" {
		return nil, fmt.Errorf("DB_DSN is required but not set")
	}
	if cfg.WebhookSecret == "" {
		return nil, fmt.Errorf("WEBHOOK_SECRET is required but not set")
	}
	switch cfg.PaymentProvider {
	case "paystack":
		if cfg.PaystackSecretKey == "" {
			return nil, fmt.Errorf("PAYSTACK_SECRET_KEY is required for paystack provider")
		}
	case "flutterwave":
		if cfg.FlutterwaveSecretKey == "" {
			return nil, fmt.Errorf("FLUTTERWAVE_SECRET_KEY is required for flutterwave provider")
		}
	default:
		return nil, fmt.Errorf("unknown PAYMENT_PROVIDER %q", cfg.PaymentProvider)
	}

	log.Printf("Config loaded\n")

	return cfg, nil
}

func decimalEnv(key string, def decimal.Decimal) (decimal.Decimal, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return def, nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse %s: %w", key, err)
	}
	if d.IsNegative() {
		return decimal.Zero, fmt.Errorf("%s must not be negative", key)
	}
	return d, nil
}

func durationEnv(key string, def time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return def, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be positive", key)
	}
	return d, nil
}
