package config

import (
	"fmt"
	"log"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	DBDSN          string `env:"DB_DSN,required,notEmpty"`
	Environment    string `env:"ENV" envDefault:"development"`
	MigrationsPath string `env:"MIGRATIONS_PATH" envDefault:"migrations"`

	HTTPAddr      string        `env:"HTTP_ADDR" envDefault:":8080"`
	HTTPRateLimit float64       `env:"HTTP_RATE_LIMIT" envDefault:"10"` // запросов в секунду с IP
	HTTPRateBurst int           `env:"HTTP_RATE_BURST" envDefault:"20"`
	HTTPTimeout   time.Duration `env:"HTTP_TIMEOUT" envDefault:"15s"`

	// Планировщик напоминаний и неявок
	SweepSchedule  string        `env:"SWEEP_SCHEDULE" envDefault:"@every 1m"`
	ReminderWindow time.Duration `env:"REMINDER_WINDOW" envDefault:"1h"`
	GracePeriod    time.Duration `env:"GRACE_PERIOD" envDefault:"15m"`
	StartWindow    time.Duration `env:"START_WINDOW" envDefault:"15m"`
	CancelCutoff   time.Duration `env:"CANCEL_CUTOFF" envDefault:"2h"`
	PaymentHoldTTL time.Duration `env:"PAYMENT_HOLD_TTL" envDefault:"30m"`
	SweepLockTTL   time.Duration `env:"SWEEP_LOCK_TTL" envDefault:"5m"`

	// Внешние интеграции, пустое значение отключает
	TelegramToken string `env:"TELEGRAM_TOKEN"`
	RedisAddr     string `env:"REDIS_ADDR"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	VideoBaseURL  string `env:"VIDEO_BASE_URL" envDefault:"https://meet.example.com"`
	OTELEndpoint  string `env:"OTEL_ENDPOINT"`
	ServiceName   string `env:"SERVICE_NAME" envDefault:"expert-sessions"`
}

func Load() (*Config, error) {
	// Пытаемся загрузить .env файл (игнорируем ошибку, если файла нет)
	if err := godotenv.Load(".env"); err != nil {
		log.Println("⚠️  No .env file found, using environment variables")
	} else {
		log.Println("✅ Loaded configuration from .env file")
	}

	return Parse()
}

// Parse читает конфигурацию из переменных окружения
func Parse() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	for name, d := range map[string]time.Duration{
		"REMINDER_WINDOW":  c.ReminderWindow,
		"GRACE_PERIOD":     c.GracePeriod,
		"PAYMENT_HOLD_TTL": c.PaymentHoldTTL,
		"SWEEP_LOCK_TTL":   c.SweepLockTTL,
	} {
		if d <= 0 {
			return fmt.Errorf("%s must be positive", name)
		}
	}
	if c.StartWindow < 0 || c.CancelCutoff < 0 {
		return fmt.Errorf("START_WINDOW and CANCEL_CUTOFF must not be negative")
	}
	return nil
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}
