package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config is the process configuration shared by every command.
type Config struct {
	HTTPAddr       string
	Deadline       time.Time
	StorageDriver  string
	StorageTimeout time.Duration
	ShutdownTime   time.Duration
	AllowedOrigins []string

	Postgres   PostgresConfig
	SQLitePath string
	BoltPath   string

	LogLevel  slog.Level
	LogFormat string
}

type PostgresConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DB       string
	SSLMode  string
}

// DSN builds a lib/pq connection URL.
func (c PostgresConfig) DSN() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     c.Host + ":" + c.Port,
		Path:     "/" + c.DB,
		RawQuery: "sslmode=" + url.QueryEscape(c.SSLMode),
	}
	return u.String()
}

// Load reads the given .env files (".env" when none are named) into the
// environment without overriding variables already set, then parses the
// environment. A missing default .env is not an error.
func Load(files ...string) (Config, error) {
	if err := loadEnvFiles(files); err != nil {
		return Config{}, err
	}
	return FromEnv()
}

// LoadPostgres is Load for tools that only talk to postgres and have no
// use for the voting deadline.
func LoadPostgres(files ...string) (PostgresConfig, error) {
	if err := loadEnvFiles(files); err != nil {
		return PostgresConfig{}, err
	}
	return postgresFromEnv(), nil
}

func loadEnvFiles(files []string) error {
	if err := godotenv.Load(files...); err != nil {
		if len(files) > 0 || !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to load env file: %w", err)
		}
	}
	return nil
}

func FromEnv() (Config, error) {
	cfg := Config{
		HTTPAddr:       envString("HTTP_ADDR", "0.0.0.0:8080"),
		StorageDriver:  strings.ToLower(envString("STORAGE_DRIVER", "sqlite")),
		Postgres:       postgresFromEnv(),
		SQLitePath:     envString("SQLITE_PATH", "ideas.db"),
		BoltPath:       envString("BOLT_PATH", "ideas.bolt"),
		AllowedOrigins: envList("CORS_ALLOWED_ORIGINS", []string{"*"}),
		LogFormat:      strings.ToLower(envString("LOG_FORMAT", "json")),
	}

	rawDeadline := strings.TrimSpace(os.Getenv("VOTING_DEADLINE"))
	if rawDeadline == "" {
		return Config{}, errors.New("VOTING_DEADLINE is required")
	}
	deadline, err := time.Parse(time.RFC3339, rawDeadline)
	if err != nil {
		return Config{}, fmt.Errorf("invalid VOTING_DEADLINE %q: %w", rawDeadline, err)
	}
	cfg.Deadline = deadline

	switch cfg.StorageDriver {
	case "postgres", "sqlite", "bolt", "memory":
	default:
		return Config{}, fmt.Errorf("unknown STORAGE_DRIVER %q", cfg.StorageDriver)
	}

	if cfg.StorageTimeout, err = envDuration("STORAGE_TIMEOUT", 5*time.Second); err != nil {
		return Config{}, err
	}
	if cfg.ShutdownTime, err = envDuration("SHUTDOWN_TIMEOUT", 30*time.Second); err != nil {
		return Config{}, err
	}

	if err := cfg.LogLevel.UnmarshalText([]byte(envString("LOG_LEVEL", "info"))); err != nil {
		return Config{}, fmt.Errorf("invalid LOG_LEVEL: %w", err)
	}
	switch cfg.LogFormat {
	case "json", "text":
	default:
		return Config{}, fmt.Errorf("unknown LOG_FORMAT %q", cfg.LogFormat)
	}

	return cfg, nil
}

func postgresFromEnv() PostgresConfig {
	return PostgresConfig{
		Host:     envString("POSTGRES_HOST", "localhost"),
		Port:     envString("POSTGRES_PORT", "5432"),
		User:     os.Getenv("POSTGRES_USER"),
		Password: os.Getenv("POSTGRES_PASSWORD"),
		DB:       os.Getenv("POSTGRES_DB"),
		SSLMode:  envString("POSTGRES_SSLMODE", "disable"),
	}
}

// NewLogger builds the process logger described by the config.
func (c Config) NewLogger() *slog.Logger {
	opts := &slog.HandlerOptions{Level: c.LogLevel}
	if c.LogFormat == "text" {
		return slog.New(slog.NewTextHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, opts))
}

func envString(name, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(name)); v != "" {
		return v
	}
	return fallback
}

func envList(name string, fallback []string) []string {
	var values []string
	for _, value := range strings.Split(os.Getenv(name), ",") {
		value = strings.TrimSpace(value)
		if value != "" {
			values = append(values, value)
		}
	}
	if len(values) == 0 {
		return fallback
	}
	return values
}

func envDuration(name string, fallback time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", name, raw, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("invalid %s %q: must be positive", name, raw)
	}
	return d, nil
}
