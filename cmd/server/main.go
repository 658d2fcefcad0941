// Package main is the entry point for the user portal API server.
//
// main stays minimal: it reads configuration, opens the backends the config
// selects, and hands them to internal/server. All actual logic lives in the
// internal packages.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sakif/user-portal/internal/auth"
	"github.com/sakif/user-portal/internal/config"
	"github.com/sakif/user-portal/internal/events"
	"github.com/sakif/user-portal/internal/handler"
	"github.com/sakif/user-portal/internal/repository"
	"github.com/sakif/user-portal/internal/repository/postgres"
	sqliteRepo "github.com/sakif/user-portal/internal/repository/sqlite"
	"github.com/sakif/user-portal/internal/server"
	"github.com/sakif/user-portal/internal/session"
)

func main() {
	// === 1. CONFIGURATION ===
	cfg, err := config.Load()
	if err != nil {
		// No logger yet: the level comes from config.
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	// === 2. LOGGING ===
	// Text for humans in development, JSON for log shippers in production.
	opts := &slog.HandlerOptions{Level: cfg.LogLevel}
	var logHandler slog.Handler = slog.NewTextHandler(os.Stdout, opts)
	if cfg.IsProduction() {
		logHandler = slog.NewJSONHandler(os.Stdout, opts)
	}
	logger := slog.New(logHandler)
	slog.SetDefault(logger)

	// Everything opened below is closed by the server on shutdown, in the
	// order appended. On a startup failure main closes them itself.
	var closers []io.Closer
	fatal := func(msg string, err error) {
		logger.Error(msg, slog.String("error", err.Error()))
		for _, c := range closers {
			c.Close()
		}
		os.Exit(1)
	}

	// === 3. DATABASE ===
	// A database that can't be reached at startup is fatal; there is no retry.
	db, err := openUserStore(cfg)
	if err != nil {
		fatal("failed to open database", err)
	}
	closers = append(closers, db)
	logger.Info("database ready", slog.String("driver", cfg.Database.Driver))

	// === 4. SESSION STORE ===
	store, err := openSessionStore(cfg, &closers)
	if err != nil {
		fatal("failed to open session store", err)
	}
	logger.Info("session store ready", slog.String("store", cfg.Session.Store))

	sessions, err := session.NewManager(store, session.Config{
		Secret:     cfg.Session.Secret,
		CookieName: cfg.Session.CookieName,
		TTL:        cfg.Session.TTL,
		Secure:     cfg.IsProduction(),
	})
	if err != nil {
		fatal("failed to create session manager", err)
	}

	// === 5. EVENTS ===
	// Optional. Without AMQP_URL events are dropped.
	var publisher events.Publisher = events.Noop{}
	if cfg.AMQPURL != "" {
		amqpPublisher, err := events.DialAMQP(cfg.AMQPURL, events.DefaultQueue)
		if err != nil {
			fatal("failed to connect to message broker", err)
		}
		closers = append(closers, amqpPublisher)
		publisher = amqpPublisher
		logger.Info("publishing user events", slog.String("queue", events.DefaultQueue))
	}

	// === 6. GOOGLE OAUTH ===
	// Optional. Without a client id the server still runs; local login and
	// the user API keep working.
	deps := server.Dependencies{
		Users:     db,
		Sessions:  sessions,
		Passwords: auth.NewPasswordService(),
		Events:    publisher,
		DB:        db,
		Closers:   closers,
	}
	if cfg.Google.Enabled() {
		deps.Google = auth.NewGoogleProvider(cfg.Google.ClientID, cfg.Google.ClientSecret, cfg.Google.CallbackURL)
	} else {
		logger.Warn("GOOGLE_CLIENT_ID not set, Google login is disabled")
	}

	// === 7. CREATE AND START THE SERVER ===
	srv, err := server.New(server.Config{
		Port:          cfg.Port,
		ClientOrigins: cfg.Client.Origins,
		Redirects: handler.AuthRedirects{
			Success:       cfg.Client.SuccessRedirect,
			Failure:       cfg.Client.FailureRedirect,
			Logout:        cfg.Client.PrimaryOrigin(),
			SecureCookies: cfg.IsProduction(),
		},
	}, deps, logger)
	if err != nil {
		fatal("failed to create server", err)
	}

	// Start() blocks until the server is shut down (via Ctrl+C or SIGTERM)
	if err := srv.Start(); err != nil {
		logger.Error("server error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

// userStore is a User Store that can also be pinged and closed.
type userStore interface {
	repository.UserRepository
	handler.Pinger
	io.Closer
}

func openUserStore(cfg *config.Config) (userStore, error) {
	switch cfg.Database.Driver {
	case config.DriverSQLite:
		// os.MkdirAll is `mkdir -p`: the data directory may not exist yet.
		if dir := filepath.Dir(cfg.Database.Path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("creating database directory %s: %w", dir, err)
			}
		}
		db, err := sqliteRepo.New(cfg.Database.Path)
		if err != nil {
			return nil, err
		}
		return db, nil

	default:
		db, err := postgres.Open(postgres.Config{
			Host:        cfg.Database.Host,
			Port:        cfg.Database.Port,
			User:        cfg.Database.User,
			Password:    cfg.Database.Password,
			Name:        cfg.Database.Name,
			SSLMode:     cfg.Database.SSLMode,
			AutoMigrate: cfg.Database.AutoMigrate,
			Verbose:     !cfg.IsProduction(),
		})
		if err != nil {
			return nil, err
		}
		return db, nil
	}
}

func openSessionStore(cfg *config.Config, closers *[]io.Closer) (session.Store, error) {
	if cfg.Session.Store != config.StoreRedis {
		store := session.NewMemoryStore()
		store.StartSweeper(session.DefaultSweepInterval)
		*closers = append(*closers, store)
		return store, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	*closers = append(*closers, client)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("pinging redis at %s: %w", cfg.Redis.Addr, err)
	}

	return session.NewRedisStore(client), nil
}
