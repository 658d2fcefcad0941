package postgres

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"gorm.io/gorm"

	"github.com/sakif/user-portal/internal/apperror"
	"github.com/sakif/user-portal/internal/model"
	"github.com/sakif/user-portal/internal/repository"
)

var _ repository.UserRepository = (*DB)(nil)

// Create inserts u; gorm fills ID and both timestamps.
func (db *DB) Create(ctx context.Context, u *model.User) error {
	if err := db.gorm.WithContext(ctx).Create(u).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return apperror.Conflict("user", "")
		}
		return fmt.Errorf("postgres: inserting user (email=%s): %w", u.Email, err)
	}
	return nil
}

func (db *DB) GetByID(ctx context.Context, id int64) (*model.User, error) {
	return db.first(ctx, strconv.FormatInt(id, 10), "id = ?", id)
}

func (db *DB) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	return db.first(ctx, email, "email = ?", email)
}

func (db *DB) GetByGoogleID(ctx context.Context, googleID string) (*model.User, error) {
	return db.first(ctx, googleID, "google_id = ?", googleID)
}

func (db *DB) first(ctx context.Context, key string, query string, arg any) (*model.User, error) {
	var u model.User
	err := db.gorm.WithContext(ctx).Where(query, arg).First(&u).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperror.NotFound("user", key)
		}
		return nil, fmt.Errorf("postgres: getting user (%s): %w", key, err)
	}
	return &u, nil
}

// List returns users ordered by id.
func (db *DB) List(ctx context.Context, opts repository.ListOptions) ([]model.User, error) {
	q := db.gorm.WithContext(ctx).Order("id")
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}

	users := []model.User{}
	if err := q.Find(&users).Error; err != nil {
		return nil, fmt.Errorf("postgres: listing users: %w", err)
	}
	return users, nil
}

// Update writes every mutable column. Select("*") makes gorm write zero
// values and nil pointers too; Save is avoided because it upserts on a
// missing primary key.
func (db *DB) Update(ctx context.Context, u *model.User) error {
	res := db.gorm.WithContext(ctx).
		Model(u).
		Select("*").
		Omit("id", "created_at").
		Updates(u)
	if res.Error != nil {
		if errors.Is(res.Error, gorm.ErrDuplicatedKey) {
			return apperror.Conflict("user", "")
		}
		return fmt.Errorf("postgres: updating user %d: %w", u.ID, res.Error)
	}
	if res.RowsAffected == 0 {
		return apperror.NotFound("user", strconv.FormatInt(u.ID, 10))
	}
	return nil
}

// Delete hard-deletes a user.
func (db *DB) Delete(ctx context.Context, id int64) error {
	res := db.gorm.WithContext(ctx).Delete(&model.User{}, id)
	if res.Error != nil {
		return fmt.Errorf("postgres: deleting user %d: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return apperror.NotFound("user", strconv.FormatInt(id, 10))
	}
	return nil
}
