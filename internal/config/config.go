// Package config loads the server configuration from defaults, an optional
// TOML file, a .env file and the environment, in increasing priority.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/chepyr/go-todo-tree/internal/db"
	"github.com/joho/godotenv"
)

const MinSecretLength = 32

// Config holds every server setting. TOML keys mirror the environment
// variable names in lower case.
type Config struct {
	DBDriver         string `toml:"db_driver"`
	PostgresUser     string `toml:"postgres_user"`
	PostgresPassword string `toml:"postgres_password"`
	PostgresDB       string `toml:"postgres_db"`
	PostgresHost     string `toml:"postgres_host"`
	PostgresPort     string `toml:"postgres_port"`
	DatabaseURL      string `toml:"database_url"`
	SQLitePath       string `toml:"sqlite_path"`

	ServerPort     string   `toml:"server_port"`
	AppURL         string   `toml:"app_url"`
	AllowedOrigins []string `toml:"allowed_origins"`
	SecureCookies  bool     `toml:"secure_cookies"`

	JWTSecret string   `toml:"jwt_secret"`
	TokenTTL  Duration `toml:"token_ttl"`

	RateLimit  int      `toml:"rate_limit"`
	RateWindow Duration `toml:"rate_window"`

	LogLevel  string `toml:"log_level"`
	LogFormat string `toml:"log_format"`
}

// Duration decodes from TOML strings such as "15m".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Default returns the configuration used when nothing overrides it.
func Default() *Config {
	return &Config{
		DBDriver:     db.DriverPostgres,
		PostgresHost: "localhost",
		PostgresPort: "5432",
		SQLitePath:   "tasks.db",
		ServerPort:   "8080",
		AppURL:       "http://localhost:8080",
		TokenTTL:     Duration{24 * time.Hour},
		// max 5 login attempts per 15 minutes from the same IP
		RateLimit:  5,
		RateWindow: Duration{15 * time.Minute},
		LogLevel:   "info",
		LogFormat:  "text",
	}
}

// Load builds the configuration. path names an optional TOML file; when it is
// empty TASKS_CONFIG is consulted. A missing .env file is not an error.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	cfg := Default()

	if path == "" {
		path = os.Getenv("TASKS_CONFIG")
	}
	if path != "" {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("loading config file %s: %w", path, err)
		}
	}

	if err := cfg.loadFromEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFromEnv(lookup func(string) (string, bool)) error {
	strs := map[string]*string{
		"DB_DRIVER":         &c.DBDriver,
		"POSTGRES_USER":     &c.PostgresUser,
		"POSTGRES_PASSWORD": &c.PostgresPassword,
		"POSTGRES_DB":       &c.PostgresDB,
		"POSTGRES_HOST":     &c.PostgresHost,
		"POSTGRES_PORT":     &c.PostgresPort,
		"DATABASE_URL":      &c.DatabaseURL,
		"SQLITE_PATH":       &c.SQLitePath,
		"SERVER_PORT":       &c.ServerPort,
		"APP_URL":           &c.AppURL,
		"JWT_SECRET":        &c.JWTSecret,
		"LOG_LEVEL":         &c.LogLevel,
		"LOG_FORMAT":        &c.LogFormat,
	}
	for key, dst := range strs {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}

	if v, ok := lookup("ALLOWED_ORIGINS"); ok && v != "" {
		c.AllowedOrigins = splitList(v)
	}
	if v, ok := lookup("SECURE_COOKIES"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("SECURE_COOKIES: %w", err)
		}
		c.SecureCookies = b
	}
	if v, ok := lookup("RATE_LIMIT"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("RATE_LIMIT: %w", err)
		}
		c.RateLimit = n
	}

	durations := map[string]*Duration{
		"TOKEN_TTL":   &c.TokenTTL,
		"RATE_WINDOW": &c.RateWindow,
	}
	for key, dst := range durations {
		if v, ok := lookup(key); ok && v != "" {
			if err := dst.UnmarshalText([]byte(v)); err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
		}
	}
	return nil
}

// Validate reports the first invalid setting, naming its key.
func (c *Config) Validate() error {
	switch c.DBDriver {
	case db.DriverPostgres:
		if c.DatabaseURL == "" {
			required := []struct{ key, value string }{
				{"POSTGRES_USER", c.PostgresUser},
				{"POSTGRES_DB", c.PostgresDB},
				{"POSTGRES_HOST", c.PostgresHost},
				{"POSTGRES_PORT", c.PostgresPort},
			}
			for _, r := range required {
				if r.value == "" {
					return fmt.Errorf("%s must be set", r.key)
				}
			}
		}
	case db.DriverSQLite:
		if c.SQLitePath == "" {
			return errors.New("SQLITE_PATH must be set")
		}
	default:
		return fmt.Errorf("DB_DRIVER must be %q or %q, got %q", db.DriverPostgres, db.DriverSQLite, c.DBDriver)
	}

	if c.ServerPort == "" {
		return errors.New("SERVER_PORT must be set")
	}
	if len(c.JWTSecret) < MinSecretLength {
		return fmt.Errorf("JWT_SECRET must be at least %d characters", MinSecretLength)
	}
	if c.TokenTTL.Duration <= 0 {
		return errors.New("TOKEN_TTL must be positive")
	}
	if u, err := url.Parse(c.AppURL); err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("APP_URL must be an absolute URL, got %q", c.AppURL)
	}
	if c.RateLimit <= 0 {
		return errors.New("RATE_LIMIT must be positive")
	}
	if c.RateWindow.Duration <= 0 {
		return errors.New("RATE_WINDOW must be positive")
	}
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("LOG_LEVEL must be debug, info, warn or error, got %q", c.LogLevel)
	}
	switch strings.ToLower(c.LogFormat) {
	case "text", "json", "logfmt":
	default:
		return fmt.Errorf("LOG_FORMAT must be text, json or logfmt, got %q", c.LogFormat)
	}
	return nil
}

// DSN returns the data source name for the configured driver.
func (c *Config) DSN() string {
	if c.DBDriver == db.DriverSQLite {
		return c.SQLitePath
	}
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	return fmt.Sprintf(
		"host=%s user=%s password=%s dbname=%s port=%s sslmode=disable",
		c.PostgresHost, c.PostgresUser, c.PostgresPassword, c.PostgresDB, c.PostgresPort)
}

// Addr is the listen address for the HTTP server.
func (c *Config) Addr() string {
	return ":" + c.ServerPort
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
