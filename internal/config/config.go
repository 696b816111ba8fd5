package config

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	ServerURL      string        `env:"SERVER_URL" envDefault:"http://localhost:8080"`
	Nickname       string        `env:"NICKNAME"`
	DBPath         string        `env:"DB_PATH" envDefault:"data/client.db"`
	ConnectTimeout time.Duration `env:"CONNECT_TIMEOUT" envDefault:"3s"`
	LogLevel       slog.Level    `env:"LOG_LEVEL" envDefault:"INFO"`

	// Dev relay only.
	HTTPAddr string `env:"HTTP_ADDR" envDefault:":8080"`
}

func Load() (*Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("parsing environment: %w", err)
	}
	return &cfg, nil
}
