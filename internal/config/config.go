// Package config loads the server configuration from environment variables
// and an optional .env file.
//
// PRECEDENCE:
// real environment > .env file > defaults below. godotenv never overrides a
// variable that is already set, so a deployed environment always wins over a
// stray .env checked into a working copy.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"

	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"

	StoreMemory = "memory"
	StoreRedis  = "redis"

	minSecretLen = 16
)

// Config holds everything cmd/server needs to assemble the application.
type Config struct {
	Env      string
	Port     int
	LogLevel slog.Level

	Database DatabaseConfig
	Google   GoogleConfig
	Session  SessionConfig
	Redis    RedisConfig
	Client   ClientConfig

	// AMQPURL enables event publishing when non-empty.
	AMQPURL string
}

type DatabaseConfig struct {
	Driver      string
	Host        string
	Port        int
	User        string
	Password    string
	Name        string
	SSLMode     string
	Path        string // sqlite only
	AutoMigrate bool
}

// GoogleConfig is the OAuth client. An empty ClientID disables Google login.
type GoogleConfig struct {
	ClientID     string
	ClientSecret string
	CallbackURL  string
}

func (g GoogleConfig) Enabled() bool { return g.ClientID != "" }

type SessionConfig struct {
	Secret     string
	CookieName string
	TTL        time.Duration
	Store      string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// ClientConfig describes the browser app: where CORS allows requests from
// and where the OAuth flow sends the browser afterwards.
type ClientConfig struct {
	Origins         []string
	SuccessRedirect string
	FailureRedirect string
}

// PrimaryOrigin is the first configured origin, used for logout redirects.
func (c ClientConfig) PrimaryOrigin() string {
	if len(c.Origins) == 0 {
		return ""
	}
	return c.Origins[0]
}

func (c *Config) IsProduction() bool { return c.Env == EnvProduction }

// Load reads .env (if present) and the environment, applies defaults and
// validates the result.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("config: reading .env: %w", err)
	}
	return fromViper(newViper())
}

func newViper() *viper.Viper {
	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("APP_ENV", EnvDevelopment)
	v.SetDefault("PORT", 4000)

	v.SetDefault("DB_DRIVER", DriverPostgres)
	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_NAME", "postgres")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_PATH", "data/users.db")

	v.SetDefault("GOOGLE_CALLBACK_URL", "http://localhost:4000/api/auth/google/callback")

	v.SetDefault("SESSION_COOKIE_NAME", "connect.sid")
	v.SetDefault("SESSION_TTL", "24h")
	v.SetDefault("SESSION_STORE", StoreMemory)

	v.SetDefault("REDIS_ADDR", "localhost:6379")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("CLIENT_ORIGIN", "http://localhost:3000")
	return v
}

func fromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		Env:  strings.ToLower(v.GetString("APP_ENV")),
		Port: v.GetInt("PORT"),
		Database: DatabaseConfig{
			Driver:   strings.ToLower(v.GetString("DB_DRIVER")),
			Host:     v.GetString("DB_HOST"),
			Port:     v.GetInt("DB_PORT"),
			User:     v.GetString("DB_USER"),
			Password: v.GetString("DB_PASSWORD"),
			Name:     v.GetString("DB_NAME"),
			SSLMode:  v.GetString("DB_SSL_MODE"),
			Path:     v.GetString("DB_PATH"),
		},
		Google: GoogleConfig{
			ClientID:     v.GetString("GOOGLE_CLIENT_ID"),
			ClientSecret: v.GetString("GOOGLE_CLIENT_SECRET"),
			CallbackURL:  v.GetString("GOOGLE_CALLBACK_URL"),
		},
		Session: SessionConfig{
			Secret:     v.GetString("SESSION_SECRET"),
			CookieName: v.GetString("SESSION_COOKIE_NAME"),
			Store:      strings.ToLower(v.GetString("SESSION_STORE")),
		},
		Redis: RedisConfig{
			Addr:     v.GetString("REDIS_ADDR"),
			Password: v.GetString("REDIS_PASSWORD"),
			DB:       v.GetInt("REDIS_DB"),
		},
		AMQPURL: v.GetString("AMQP_URL"),
	}

	ttl, err := time.ParseDuration(v.GetString("SESSION_TTL"))
	if err != nil {
		return nil, fmt.Errorf("config: SESSION_TTL: %w", err)
	}
	cfg.Session.TTL = ttl

	// Auto-migrate defaults on outside production; DB_AUTO_MIGRATE forces it.
	cfg.Database.AutoMigrate = !cfg.IsProduction()
	if raw := v.GetString("DB_AUTO_MIGRATE"); raw != "" {
		cfg.Database.AutoMigrate = v.GetBool("DB_AUTO_MIGRATE")
	}

	cfg.LogLevel = slog.LevelDebug
	if cfg.IsProduction() {
		cfg.LogLevel = slog.LevelInfo
	}
	if raw := v.GetString("LOG_LEVEL"); raw != "" {
		if err := cfg.LogLevel.UnmarshalText([]byte(raw)); err != nil {
			return nil, fmt.Errorf("config: LOG_LEVEL: %w", err)
		}
	}

	for _, o := range strings.Split(v.GetString("CLIENT_ORIGIN"), ",") {
		if o = strings.TrimRight(strings.TrimSpace(o), "/"); o != "" {
			cfg.Client.Origins = append(cfg.Client.Origins, o)
		}
	}
	cfg.Client.SuccessRedirect = v.GetString("AUTH_SUCCESS_REDIRECT")
	if cfg.Client.SuccessRedirect == "" {
		cfg.Client.SuccessRedirect = cfg.Client.PrimaryOrigin() + "/dashboard"
	}
	cfg.Client.FailureRedirect = v.GetString("AUTH_FAILURE_REDIRECT")
	if cfg.Client.FailureRedirect == "" {
		cfg.Client.FailureRedirect = cfg.Client.PrimaryOrigin() + "/login"
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports every problem at once so a misconfigured deploy fails
// with the full list.
func (c *Config) Validate() error {
	var errs []error

	if c.Env != EnvDevelopment && c.Env != EnvProduction {
		errs = append(errs, fmt.Errorf("APP_ENV must be %q or %q, got %q", EnvDevelopment, EnvProduction, c.Env))
	}
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("PORT out of range: %d", c.Port))
	}

	switch c.Database.Driver {
	case DriverPostgres:
		if c.Database.Host == "" || c.Database.Name == "" {
			errs = append(errs, errors.New("DB_HOST and DB_NAME are required for postgres"))
		}
	case DriverSQLite:
		if c.Database.Path == "" {
			errs = append(errs, errors.New("DB_PATH is required for sqlite"))
		}
	default:
		errs = append(errs, fmt.Errorf("DB_DRIVER must be %q or %q, got %q", DriverPostgres, DriverSQLite, c.Database.Driver))
	}

	if len(c.Session.Secret) < minSecretLen {
		errs = append(errs, fmt.Errorf("SESSION_SECRET must be at least %d characters", minSecretLen))
	}
	if c.Session.TTL <= 0 {
		errs = append(errs, errors.New("SESSION_TTL must be positive"))
	}
	if c.Session.CookieName == "" {
		errs = append(errs, errors.New("SESSION_COOKIE_NAME must not be empty"))
	}
	switch c.Session.Store {
	case StoreMemory:
	case StoreRedis:
		if c.Redis.Addr == "" {
			errs = append(errs, errors.New("REDIS_ADDR is required when SESSION_STORE=redis"))
		}
	default:
		errs = append(errs, fmt.Errorf("SESSION_STORE must be %q or %q, got %q", StoreMemory, StoreRedis, c.Session.Store))
	}

	if c.Google.Enabled() && (c.Google.ClientSecret == "" || c.Google.CallbackURL == "") {
		errs = append(errs, errors.New("GOOGLE_CLIENT_SECRET and GOOGLE_CALLBACK_URL are required when GOOGLE_CLIENT_ID is set"))
	}
	if len(c.Client.Origins) == 0 {
		errs = append(errs, errors.New("CLIENT_ORIGIN must not be empty"))
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}
