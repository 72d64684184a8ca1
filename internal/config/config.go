// Package config loads process configuration from the environment and
// holds the gameplay constants shared by the engines.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config is the process configuration. Every field can be set through the
// environment or a .env file in the working directory.
type Config struct {
	HTTPAddr string `env:"HTTP_ADDR" envDefault:":8080"`

	DBDriver string `env:"DB_DRIVER" envDefault:"postgres"`
	DBDSN    string `env:"DB_DSN" envDefault:"host=localhost user=user password=password dbname=rpworld port=5432 sslmode=disable"`

	RedisAddr     string `env:"REDIS_ADDR"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	RuntimeSecret   string        `env:"RUNTIME_SECRET" envDefault:"change-me"`
	RuntimeTokenTTL time.Duration `env:"RUNTIME_TOKEN_TTL" envDefault:"720h"`

	TelegramToken       string `env:"TELEGRAM_BOT_TOKEN"`
	TelegramStaffChatID int64  `env:"TELEGRAM_STAFF_CHAT_ID"`

	CatalogPath     string        `env:"CATALOG_PATH"`
	LocalesDir      string        `env:"LOCALES_DIR"`
	PayrollInterval time.Duration `env:"PAYROLL_INTERVAL" envDefault:"1h"`

	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"console"`
	LogFile   string `env:"LOG_FILE"`
}

// Load reads an optional .env file and parses the environment into a Config.
// A missing .env file is not an error.
func Load(files ...string) (*Config, error) {
	_ = godotenv.Load(files...)

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if cfg.PayrollInterval <= 0 {
		cfg.PayrollInterval = DefaultPayrollInterval
	}
	return cfg, nil
}
