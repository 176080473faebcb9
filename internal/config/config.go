package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
	"golang.org/x/crypto/bcrypt"
)

// Config keeps runtime settings for the service.
type Config struct {
	HTTPAddr       string        `env:"HTTP_ADDR" env-default:":8080"`
	DatabaseURL    string        `env:"DATABASE_URL" env-default:"task_tracker.db"`
	JWTSecret      string        `env:"JWT_SECRET"`
	TokenTTL       time.Duration `env:"TOKEN_TTL" env-default:"24h"`
	ScanInterval   time.Duration `env:"SCAN_INTERVAL" env-default:"60s"`
	DeadlineWindow time.Duration `env:"DEADLINE_WINDOW" env-default:"30m"`
	Timezone       string        `env:"TIMEZONE" env-default:"Local"`
	BcryptCost     int           `env:"BCRYPT_COST" env-default:"10"`
	AdminUsername  string        `env:"ADMIN_USERNAME" env-default:"admin"`
	AdminPassword  string        `env:"ADMIN_PASSWORD" env-default:"admin123"`
	AdminEmail     string        `env:"ADMIN_EMAIL" env-default:"admin@example.com"`
	RedisURL       string        `env:"REDIS_URL"`
	TelegramToken  string        `env:"TELEGRAM_TOKEN"`
	CORSOrigins    []string      `env:"CORS_ORIGINS" env-separator:"," env-default:"http://localhost:3000"`
	Debug          bool          `env:"DEBUG"`

	location *time.Location
}

// Load reads configuration from an optional .env file and the environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("read env: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.TokenTTL <= 0 {
		return fmt.Errorf("TOKEN_TTL must be positive")
	}
	if c.ScanInterval < time.Second {
		return fmt.Errorf("SCAN_INTERVAL must be at least 1s")
	}
	if c.DeadlineWindow <= 0 {
		return fmt.Errorf("DEADLINE_WINDOW must be positive")
	}
	if c.BcryptCost < bcrypt.MinCost || c.BcryptCost > bcrypt.MaxCost {
		return fmt.Errorf("BCRYPT_COST must be between %d and %d", bcrypt.MinCost, bcrypt.MaxCost)
	}
	if c.AdminUsername == "" || c.AdminPassword == "" {
		return fmt.Errorf("ADMIN_USERNAME and ADMIN_PASSWORD are required")
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return fmt.Errorf("TIMEZONE: %w", err)
	}
	c.location = loc
	return nil
}

// Location is the zone task due dates and times are interpreted in.
func (c *Config) Location() *time.Location {
	if c.location == nil {
		return time.Local
	}
	return c.location
}
