// Package repository declares the storage contracts. Implementations live
// in the sqlite and postgres subpackages; services only see the interface.
package repository

import (
	"context"

	"github.com/sakif/user-portal/internal/model"
)

// ListOptions pages a List call. A zero Limit means "no limit" and returns
// every row after Offset.
type ListOptions struct {
	Limit  int
	Offset int
}

// UserRepository is the User Store.
//
// Error contract shared by every implementation:
//   - missing rows → apperror.ErrNotFound
//   - unique violation on email or google_id → apperror.ErrConflict
//   - anything else is wrapped and returned as-is
type UserRepository interface {
	// Create inserts u and fills in ID, CreatedAt and UpdatedAt.
	Create(ctx context.Context, u *model.User) error
	GetByID(ctx context.Context, id int64) (*model.User, error)
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	GetByGoogleID(ctx context.Context, googleID string) (*model.User, error)
	// List returns rows ordered by id.
	List(ctx context.Context, opts ListOptions) ([]model.User, error)
	// Update writes every mutable column of u and refreshes UpdatedAt.
	// ID and CreatedAt are never written.
	Update(ctx context.Context, u *model.User) error
	// Delete hard-deletes the row.
	Delete(ctx context.Context, id int64) error
}
