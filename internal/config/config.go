package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config настройки приложения
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Auth      AuthConfig
	RateLimit RateLimitConfig
	Log       LogConfig
	Forms     FormsConfig
}

type ServerConfig struct {
	Address         string
	ShutdownTimeout time.Duration
}

type DatabaseConfig struct {
	Driver string
	URL    string
}

type AuthConfig struct {
	JWTSecret string
	Issuer    string
}

// RateLimitConfig лимиты создания RFQ в час
type RateLimitConfig struct {
	GuestPerHour int
	AuthPerHour  int
}

type LogConfig struct {
	Level  string
	Format string
}

type FormsConfig struct {
	// TemplatesPath пустой путь означает встроенный каталог
	TemplatesPath string
}

// Load читает конфигурацию из окружения (и .env, если он есть)
func Load() (*Config, error) {
	_ = godotenv.Load()

	guest, err := getEnvInt("RFQ_RATE_LIMIT_GUEST", 10)
	if err != nil {
		return nil, err
	}
	authed, err := getEnvInt("RFQ_RATE_LIMIT_AUTH", 20)
	if err != nil {
		return nil, err
	}
	shutdown, err := time.ParseDuration(getEnv("SHUTDOWN_TIMEOUT", "10s"))
	if err != nil {
		return nil, fmt.Errorf("SHUTDOWN_TIMEOUT: %w", err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Address:         getEnv("SERVER_ADDRESS", "0.0.0.0:8080"),
			ShutdownTimeout: shutdown,
		},
		Database: DatabaseConfig{
			Driver: getEnv("DATABASE_DRIVER", "postgres"),
			URL:    getEnv("DATABASE_URL", os.Getenv("POSTGRES_CONN")),
		},
		Auth: AuthConfig{
			JWTSecret: getEnv("JWT_SECRET", ""),
			Issuer:    getEnv("JWT_ISSUER", "rfqmarket"),
		},
		RateLimit: RateLimitConfig{
			GuestPerHour: guest,
			AuthPerHour:  authed,
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		Forms: FormsConfig{
			TemplatesPath: getEnv("FORM_TEMPLATES_PATH", ""),
		},
	}

	if cfg.Database.URL == "" {
		return nil, fmt.Errorf("DATABASE_URL or POSTGRES_CONN is required")
	}
	switch cfg.Database.Driver {
	case "postgres", "sqlite":
	default:
		return nil, fmt.Errorf("unsupported DATABASE_DRIVER %q", cfg.Database.Driver)
	}
	if cfg.Auth.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}
	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%s must be a positive integer", key)
	}
	return n, nil
}
