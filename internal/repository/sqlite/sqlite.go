// Package sqlite implements repository.UserRepository on top of SQLite.
//
// WHY modernc.org/sqlite?
// It is a pure Go translation of SQLite — no CGo, no C compiler. The server
// binary cross-compiles like any other Go program, and tests run against
// ":memory:" databases with zero setup.
//
// This backend is the development/test User Store. Production deployments
// point DB_DRIVER at postgres (see ../postgres), which satisfies the same
// interface.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"

	// Registers the "sqlite" driver with database/sql.
	_ "modernc.org/sqlite"
)

// DB wraps a sql.DB connection pool and implements repository.UserRepository.
type DB struct {
	conn *sql.DB
}

// New opens (or creates) the database at dbPath and runs migrations.
//
// dbPath examples:
//   - "data/users.db" → file-based database (persistent)
//   - ":memory:"      → in-memory database (tests)
//
// IN-MEMORY AND CONNECTION POOLS:
// Every connection to ":memory:" gets its OWN empty database. sql.DB is a
// pool, so a second connection would see no tables at all. Pinning the pool
// to a single connection keeps every query on the same database.
//
// PRAGMAS ARE PER CONNECTION:
// busy_timeout set with Exec reaches one pooled connection only. File
// databases carry their pragmas in the DSN so the driver applies them to
// every connection it opens.
func New(dbPath string) (*DB, error) {
	conn, err := sql.Open("sqlite", dsn(dbPath))
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}

	if dbPath == ":memory:" {
		conn.SetMaxOpenConns(1)
	}

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}

	db := &DB{conn: conn}

	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: running migrations: %w", err)
	}

	return db, nil
}

// busyTimeout is how long a writer waits for the lock before SQLITE_BUSY.
const busyTimeout = 5000 // ms

// dsn appends the connection pragmas to dbPath. WAL lets readers proceed
// while a write is in flight; busy_timeout makes concurrent writers queue.
func dsn(dbPath string) string {
	if dbPath == ":memory:" {
		return dbPath
	}
	q := url.Values{}
	q.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", busyTimeout))
	q.Add("_pragma", "journal_mode(WAL)")
	return dbPath + "?" + q.Encode()
}

// Ping checks the database is reachable. Used by the health check.
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

// Close closes the database connection pool.
func (db *DB) Close() error {
	return db.conn.Close()
}

// migrate creates the users table.
//
// UNIQUE CONSTRAINTS:
// email and google_id are UNIQUE at the storage layer. The identity
// resolver relies on this: two concurrent first logins for the same email
// cannot both insert, and the loser gets a constraint error it can recover
// from. SQLite (like Postgres) allows any number of NULLs in a UNIQUE
// column, so OAuth-less rows don't collide on google_id.
func (db *DB) migrate() error {
	_, err := db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS users (
			id              INTEGER PRIMARY KEY AUTOINCREMENT,
			first_name      TEXT NOT NULL,
			last_name       TEXT NOT NULL,
			email           TEXT NOT NULL UNIQUE,
			password        TEXT,
			age             INTEGER,
			profile_picture TEXT,
			provider        TEXT NOT NULL DEFAULT 'local',
			google_id       TEXT UNIQUE,
			is_active       BOOLEAN NOT NULL DEFAULT 1,
			created_at      DATETIME NOT NULL,
			updated_at      DATETIME NOT NULL
		);
	`)
	if err != nil {
		return fmt.Errorf("creating users table: %w", err)
	}

	return nil
}
