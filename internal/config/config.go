// Package config loads server settings from environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	DriverSQLite = "sqlite"
	DriverMongo  = "mongo"

	minSecretLength = 16
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Auth      AuthConfig
	Upload    UploadConfig
	RateLimit RateLimitConfig
	Log       LogConfig
}

type ServerConfig struct {
	Port      int
	APIPrefix string
	// TrustProxy takes the client address from X-Forwarded-For / X-Real-IP.
	// Enable it only behind a proxy that overwrites those headers.
	TrustProxy bool
}

type DatabaseConfig struct {
	Driver        string
	Path          string
	MongoURL      string
	MongoDatabase string
}

type AuthConfig struct {
	AccessSecret  string
	RefreshSecret string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	CookieSecure  bool
	BcryptCost    int
}

type UploadConfig struct {
	Dir       string
	URLPrefix string
	MaxBytes  int64
}

type RateLimitConfig struct {
	// LoginPer15Minutes is the per-IP login budget; 0 disables throttling.
	LoginPer15Minutes int
}

type LogConfig struct {
	Level  string
	Format string
}

// Load reads the environment and validates the result. Every problem found
// is reported, not just the first.
func Load() (Config, error) {
	var errs []error
	p := parser{errs: &errs}

	cfg := Config{
		Server: ServerConfig{
			Port:       p.int("PORT", 8000),
			APIPrefix:  getEnv("API_PREFIX", "/api/v1"),
			TrustProxy: p.bool("TRUST_PROXY", false),
		},
		Database: DatabaseConfig{
			Driver:        strings.ToLower(getEnv("DB_DRIVER", DriverSQLite)),
			Path:          getEnv("DB_PATH", "data/eventhub.db"),
			MongoURL:      getEnv("MONGODB_URL", ""),
			MongoDatabase: getEnv("MONGODB_DATABASE", "code_connect"),
		},
		Auth: AuthConfig{
			AccessSecret:  getEnv("ACCESS_TOKEN_SECRET", ""),
			RefreshSecret: getEnv("REFRESH_TOKEN_SECRET", ""),
			AccessTTL:     p.duration("ACCESS_TOKEN_EXPIRY", 15*time.Minute),
			RefreshTTL:    p.duration("REFRESH_TOKEN_EXPIRY", 240*time.Hour),
			CookieSecure:  p.bool("COOKIE_SECURE", true),
			BcryptCost:    p.int("BCRYPT_COST", 12),
		},
		Upload: UploadConfig{
			Dir:       getEnv("UPLOAD_DIR", "data/uploads"),
			URLPrefix: getEnv("UPLOAD_URL_PREFIX", "/uploads"),
			MaxBytes:  int64(p.int("MAX_UPLOAD_BYTES", 5<<20)),
		},
		RateLimit: RateLimitConfig{
			LoginPer15Minutes: p.int("LOGIN_ATTEMPTS_PER_15M", 5),
		},
		Log: LogConfig{
			Level:  strings.ToLower(getEnv("LOG_LEVEL", "info")),
			Format: strings.ToLower(getEnv("LOG_FORMAT", "text")),
		},
	}

	errs = append(errs, cfg.validate()...)
	if len(errs) > 0 {
		return Config{}, fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return cfg, nil
}

func (c Config) validate() []error {
	var errs []error

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("PORT must be between 1 and 65535, got %d", c.Server.Port))
	}
	if !strings.HasPrefix(c.Server.APIPrefix, "/") {
		errs = append(errs, fmt.Errorf("API_PREFIX must start with /, got %q", c.Server.APIPrefix))
	}

	switch c.Database.Driver {
	case DriverSQLite:
	case DriverMongo:
		if c.Database.MongoURL == "" {
			errs = append(errs, errors.New("MONGODB_URL is required when DB_DRIVER=mongo"))
		}
	default:
		errs = append(errs, fmt.Errorf("DB_DRIVER must be %q or %q, got %q", DriverSQLite, DriverMongo, c.Database.Driver))
	}

	if len(c.Auth.AccessSecret) < minSecretLength {
		errs = append(errs, fmt.Errorf("ACCESS_TOKEN_SECRET is required and must be at least %d characters", minSecretLength))
	}
	if len(c.Auth.RefreshSecret) < minSecretLength {
		errs = append(errs, fmt.Errorf("REFRESH_TOKEN_SECRET is required and must be at least %d characters", minSecretLength))
	}
	if c.Auth.AccessSecret != "" && c.Auth.AccessSecret == c.Auth.RefreshSecret {
		errs = append(errs, errors.New("ACCESS_TOKEN_SECRET and REFRESH_TOKEN_SECRET must differ"))
	}
	if c.Auth.AccessTTL <= 0 || c.Auth.RefreshTTL <= 0 {
		errs = append(errs, errors.New("token expiries must be positive"))
	}

	if c.Upload.MaxBytes <= 0 {
		errs = append(errs, errors.New("MAX_UPLOAD_BYTES must be positive"))
	}
	if !strings.HasPrefix(c.Upload.URLPrefix, "/") {
		errs = append(errs, fmt.Errorf("UPLOAD_URL_PREFIX must start with /, got %q", c.Upload.URLPrefix))
	}
	if c.RateLimit.LoginPer15Minutes < 0 {
		errs = append(errs, errors.New("LOGIN_ATTEMPTS_PER_15M cannot be negative"))
	}

	switch c.Log.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("LOG_FORMAT must be text or json, got %q", c.Log.Format))
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("LOG_LEVEL must be debug, info, warn or error, got %q", c.Log.Level))
	}

	return errs
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

// parser collects malformed values instead of silently using the default.
type parser struct {
	errs *[]error
}

func (p parser) int(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		*p.errs = append(*p.errs, fmt.Errorf("%s: %q is not an integer", key, value))
		return fallback
	}
	return n
}

func (p parser) duration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		*p.errs = append(*p.errs, fmt.Errorf("%s: %q is not a duration", key, value))
		return fallback
	}
	return d
}

func (p parser) bool(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		*p.errs = append(*p.errs, fmt.Errorf("%s: %q is not a boolean", key, value))
		return fallback
	}
	return b
}
