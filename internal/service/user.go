// Package service holds the business rules. Handlers call services;
// services call repositories and never see HTTP.
//
//	UserHandler (HTTP) → UserService → repository.UserRepository
//	AuthHandler (HTTP) → IdentityService ↗
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/sakif/user-portal/internal/apperror"
	"github.com/sakif/user-portal/internal/auth"
	"github.com/sakif/user-portal/internal/events"
	"github.com/sakif/user-portal/internal/model"
	"github.com/sakif/user-portal/internal/repository"
)

// CreateUserInput is the registration payload.
//
// Only format is checked here: no email syntax check and no age range.
// Uniqueness is the store's job.
type CreateUserInput struct {
	FirstName      string  `json:"firstName"      validate:"required,max=100"`
	LastName       string  `json:"lastName"       validate:"required,max=100"`
	Email          string  `json:"email"          validate:"required,max=255"`
	Password       string  `json:"password"       validate:"required"`
	Age            *int    `json:"age"`
	ProfilePicture *string `json:"profilePicture" validate:"omitnil,max=512"`
}

// UserService implements the User Resource operations.
type UserService struct {
	users     repository.UserRepository
	passwords *auth.PasswordService
	events    events.Publisher
	logger    *slog.Logger
}

// NewUserService wires a UserService. A nil publisher drops events.
func NewUserService(
	users repository.UserRepository,
	passwords *auth.PasswordService,
	publisher events.Publisher,
	logger *slog.Logger,
) *UserService {
	if publisher == nil {
		publisher = events.Noop{}
	}
	return &UserService{
		users:     users,
		passwords: passwords,
		events:    publisher,
		logger:    logger,
	}
}

// Create registers a local account.
//
// The password is bcrypt-hashed before it reaches the repository; a local
// account without a password is rejected here, since the column itself is
// nullable for Google-only accounts.
func (s *UserService) Create(ctx context.Context, in CreateUserInput) (*model.User, error) {
	if err := validateStruct(in); err != nil {
		return nil, err
	}

	hash, err := s.passwords.Hash(in.Password)
	if err != nil {
		if errors.Is(err, auth.ErrPasswordTooLong) {
			return nil, apperror.ValidationFailed("password", err.Error())
		}
		return nil, fmt.Errorf("service/user: %w", err)
	}

	user := &model.User{
		FirstName:      in.FirstName,
		LastName:       in.LastName,
		Email:          in.Email,
		PasswordHash:   &hash,
		Age:            in.Age,
		ProfilePicture: in.ProfilePicture,
		Provider:       model.ProviderLocal,
		IsActive:       true,
	}

	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}

	s.logger.Info("user created", slog.Int64("user_id", user.ID))
	events.Emit(ctx, s.events, s.logger, events.UserCreated, user.ID)

	return user, nil
}

// List returns users ordered by id.
func (s *UserService) List(ctx context.Context, opts repository.ListOptions) ([]model.User, error) {
	if opts.Limit < 0 || opts.Offset < 0 {
		return nil, apperror.ValidationFailed("limit", "limit and offset must not be negative")
	}
	return s.users.List(ctx, opts)
}

// Get returns one user.
func (s *UserService) Get(ctx context.Context, id int64) (*model.User, error) {
	return s.users.GetByID(ctx, id)
}

// Update applies a partial profile update and returns the stored row.
//
// Read-modify-write without a lock: two concurrent updates to the same
// row are last-write-wins.
func (s *UserService) Update(ctx context.Context, id int64, patch model.UserPatch) (*model.User, error) {
	if patch.IsEmpty() {
		return nil, apperror.ValidationFailed("", "no fields to update")
	}
	if err := validateStruct(patch); err != nil {
		return nil, err
	}

	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	patch.Apply(user)

	if err := s.users.Update(ctx, user); err != nil {
		return nil, err
	}

	events.Emit(ctx, s.events, s.logger, events.UserUpdated, user.ID)
	return user, nil
}

// Delete hard-deletes a user. Their sessions die on next use: the auth
// middleware cannot load the principal and destroys the session.
func (s *UserService) Delete(ctx context.Context, id int64) error {
	if err := s.users.Delete(ctx, id); err != nil {
		return err
	}

	s.logger.Info("user deleted", slog.Int64("user_id", id))
	events.Emit(ctx, s.events, s.logger, events.UserDeleted, id)
	return nil
}
