// internal/config/config.go
//
// Typed environment configuration. A .env file is loaded first when present
// (development convenience), then the struct is filled from the process
// environment with defaults from the tags.

package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	Port         string        `env:"PORT" envDefault:"5180"`
	DBPath       string        `env:"DB_PATH" envDefault:"./data/wordroom.db"`
	LogLevel     string        `env:"LOG_LEVEL" envDefault:"info"`
	ClientOrigin string        `env:"CLIENT_ORIGIN" envDefault:"http://localhost:5173"`
	JWTSecret    string        `env:"JWT_SECRET" envDefault:"dev_secret_change_me"`
	TokenTTL     time.Duration `env:"TOKEN_TTL" envDefault:"336h"`
	WordsDir     string        `env:"WORDS_DIR"`
	PollInterval time.Duration `env:"POLL_INTERVAL" envDefault:"500ms"`
}

// Load reads .env (if any) and parses the environment.
func Load() (Config, error) {
	_ = godotenv.Load()
	var c Config
	if err := env.Parse(&c); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return c, nil
}
