// Package postgres implements repository.UserRepository with GORM on
// PostgreSQL. It is the production User Store; tests drive the same code
// through an in-memory SQLite dialector.
package postgres

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/sakif/user-portal/internal/model"
)

// Config holds the connection settings.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string
	SSLMode  string

	// AutoMigrate syncs the users table on startup.
	AutoMigrate bool
	// Verbose logs every SQL statement.
	Verbose bool
}

// DSN builds a libpq keyword/value connection string.
func (c Config) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s TimeZone=UTC",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode)
}

// DB implements repository.UserRepository.
type DB struct {
	gorm *gorm.DB
}

// Open connects to PostgreSQL, pings, and migrates when asked to.
func Open(cfg Config) (*DB, error) {
	return NewWithDialector(postgres.Open(cfg.DSN()), cfg)
}

// NewWithDialector is Open with the dialector supplied by the caller.
// Tests pass the pure-Go github.com/glebarez/sqlite dialector here.
func NewWithDialector(dialector gorm.Dialector, cfg Config) (*DB, error) {
	level := logger.Warn
	if cfg.Verbose {
		level = logger.Info
	}

	gdb, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.New(log.New(os.Stdout, "\r\n", log.LstdFlags), logger.Config{
			SlowThreshold:             200 * time.Millisecond,
			LogLevel:                  level,
			IgnoreRecordNotFoundError: true,
		}),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
		// Driver-specific unique violations come back as gorm.ErrDuplicatedKey.
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("postgres: opening database: %w", err)
	}

	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, fmt.Errorf("postgres: getting sql.DB: %w", err)
	}

	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	if err := sqlDB.Ping(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("postgres: pinging database: %w", err)
	}

	if cfg.AutoMigrate {
		if err := gdb.AutoMigrate(&model.User{}); err != nil {
			sqlDB.Close()
			return nil, fmt.Errorf("postgres: migrating users table: %w", err)
		}
	}

	return &DB{gorm: gdb}, nil
}

// Ping checks the database is reachable. Used by the health check.
func (db *DB) Ping(ctx context.Context) error {
	sqlDB, err := db.gorm.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close releases the underlying connection pool.
func (db *DB) Close() error {
	sqlDB, err := db.gorm.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
