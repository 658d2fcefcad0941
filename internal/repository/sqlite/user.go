package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	sqlitedriver "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/sakif/user-portal/internal/apperror"
	"github.com/sakif/user-portal/internal/model"
	"github.com/sakif/user-portal/internal/repository"
)

// compile-time check that *DB implements repository.UserRepository
var _ repository.UserRepository = (*DB)(nil)

// userColumns is shared by every SELECT so scanUser can rely on the order.
const userColumns = `id, first_name, last_name, email, password, age, profile_picture,
	provider, google_id, is_active, created_at, updated_at`

// Create inserts a new user.
//
// ID comes from SQLite's AUTOINCREMENT (read back with LastInsertId);
// timestamps are set here so the caller's struct matches the stored row.
func (db *DB) Create(ctx context.Context, u *model.User) error {
	now := time.Now().UTC()
	u.CreatedAt = now
	u.UpdatedAt = now

	res, err := db.conn.ExecContext(ctx,
		`INSERT INTO users (first_name, last_name, email, password, age, profile_picture,
			provider, google_id, is_active, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		u.FirstName,
		u.LastName,
		u.Email,
		nullString(u.PasswordHash),
		nullInt(u.Age),
		nullString(u.ProfilePicture),
		string(u.Provider),
		nullString(u.GoogleID),
		u.IsActive,
		u.CreatedAt,
		u.UpdatedAt,
	)
	if err != nil {
		if field, ok := uniqueViolation(err); ok {
			return apperror.Conflict("user", field)
		}
		return fmt.Errorf("sqlite: inserting user (email=%s): %w", u.Email, err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("sqlite: reading inserted user id: %w", err)
	}
	u.ID = id

	return nil
}

// GetByID retrieves a user by primary key.
func (db *DB) GetByID(ctx context.Context, id int64) (*model.User, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = ?`, id)

	u, err := scanUser(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("user", strconv.FormatInt(id, 10))
		}
		return nil, fmt.Errorf("sqlite: getting user %d: %w", id, err)
	}
	return u, nil
}

// GetByEmail is an exact, case-sensitive match — emails are stored as
// supplied.
func (db *DB) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = ?`, email)

	u, err := scanUser(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("user", email)
		}
		return nil, fmt.Errorf("sqlite: getting user by email: %w", err)
	}
	return u, nil
}

// GetByGoogleID looks a user up by the Google subject id.
func (db *DB) GetByGoogleID(ctx context.Context, googleID string) (*model.User, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE google_id = ?`, googleID)

	u, err := scanUser(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("user", googleID)
		}
		return nil, fmt.Errorf("sqlite: getting user by google id: %w", err)
	}
	return u, nil
}

// List returns users ordered by id.
//
// SQLite needs a LIMIT clause before it accepts OFFSET; LIMIT -1 means
// "no limit".
func (db *DB) List(ctx context.Context, opts repository.ListOptions) ([]model.User, error) {
	query := `SELECT ` + userColumns + ` FROM users ORDER BY id`
	var args []any

	switch {
	case opts.Limit > 0:
		query += ` LIMIT ? OFFSET ?`
		args = append(args, opts.Limit, max(opts.Offset, 0))
	case opts.Offset > 0:
		query += ` LIMIT -1 OFFSET ?`
		args = append(args, opts.Offset)
	}

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing users: %w", err)
	}
	// rows MUST be closed, or the connection is never returned to the pool.
	defer rows.Close()

	users := []model.User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning user row: %w", err)
		}
		users = append(users, *u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating user rows: %w", err)
	}

	return users, nil
}

// Update writes every mutable column. Zero rows affected means the id does
// not exist (or was deleted between the caller's read and this write).
func (db *DB) Update(ctx context.Context, u *model.User) error {
	u.UpdatedAt = time.Now().UTC()

	res, err := db.conn.ExecContext(ctx,
		`UPDATE users SET first_name = ?, last_name = ?, email = ?, password = ?, age = ?,
			profile_picture = ?, provider = ?, google_id = ?, is_active = ?, updated_at = ?
		 WHERE id = ?`,
		u.FirstName,
		u.LastName,
		u.Email,
		nullString(u.PasswordHash),
		nullInt(u.Age),
		nullString(u.ProfilePicture),
		string(u.Provider),
		nullString(u.GoogleID),
		u.IsActive,
		u.UpdatedAt,
		u.ID,
	)
	if err != nil {
		if field, ok := uniqueViolation(err); ok {
			return apperror.Conflict("user", field)
		}
		return fmt.Errorf("sqlite: updating user %d: %w", u.ID, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: reading rows affected: %w", err)
	}
	if n == 0 {
		return apperror.NotFound("user", strconv.FormatInt(u.ID, 10))
	}
	return nil
}

// Delete hard-deletes a user.
func (db *DB) Delete(ctx context.Context, id int64) error {
	res, err := db.conn.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite: deleting user %d: %w", id, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: reading rows affected: %w", err)
	}
	if n == 0 {
		return apperror.NotFound("user", strconv.FormatInt(id, 10))
	}
	return nil
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanUser reads one row in userColumns order. Nullable columns go through
// sql.Null* types and are converted back to pointers.
func scanUser(row rowScanner) (*model.User, error) {
	var (
		u                           model.User
		provider                    string
		password, picture, googleID sql.NullString
		age                         sql.NullInt64
	)

	err := row.Scan(
		&u.ID,
		&u.FirstName,
		&u.LastName,
		&u.Email,
		&password,
		&age,
		&picture,
		&provider,
		&googleID,
		&u.IsActive,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	u.Provider = model.Provider(provider)
	u.PasswordHash = stringPtr(password)
	u.ProfilePicture = stringPtr(picture)
	u.GoogleID = stringPtr(googleID)
	if age.Valid {
		a := int(age.Int64)
		u.Age = &a
	}

	return &u, nil
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

// nullString and nullInt turn nil pointers into SQL NULL explicitly rather
// than relying on the driver to dereference pointers.
func nullString(p *string) any {
	if p == nil {
		return nil
	}
	return *p
}

func nullInt(p *int) any {
	if p == nil {
		return nil
	}
	return int64(*p)
}

// uniqueViolation reports whether err is a UNIQUE constraint failure and,
// if so, which column (JSON spelling) caused it. SQLite's message has the
// form "UNIQUE constraint failed: users.email".
func uniqueViolation(err error) (string, bool) {
	var se *sqlitedriver.Error
	if !errors.As(err, &se) {
		return "", false
	}
	code := se.Code()
	if code != sqlite3.SQLITE_CONSTRAINT_UNIQUE &&
		!(code&0xff == sqlite3.SQLITE_CONSTRAINT && strings.Contains(se.Error(), "UNIQUE")) {
		return "", false
	}

	switch msg := se.Error(); {
	case strings.Contains(msg, "users.google_id"):
		return "googleId", true
	case strings.Contains(msg, "users.email"):
		return "email", true
	default:
		return "", true
	}
}
