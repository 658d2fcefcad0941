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

// invalidCredentials is shared by every login failure so the response does
// not reveal which emails are registered.
const invalidCredentials = "Invalid email or password"

// IdentityResolutionError wraps any failure while turning a Google profile
// into a user row. No session may be issued when this is returned.
type IdentityResolutionError struct {
	GoogleID string
	Err      error
}

func (e *IdentityResolutionError) Error() string {
	return fmt.Sprintf("identity resolution failed for google id %q: %v", e.GoogleID, e.Err)
}

func (e *IdentityResolutionError) Unwrap() error {
	return e.Err
}

// IdentityService maps external and local credentials onto user rows.
type IdentityService struct {
	users     repository.UserRepository
	passwords *auth.PasswordService
	events    events.Publisher
	logger    *slog.Logger
}

// NewIdentityService wires an IdentityService. A nil publisher drops events.
func NewIdentityService(
	users repository.UserRepository,
	passwords *auth.PasswordService,
	publisher events.Publisher,
	logger *slog.Logger,
) *IdentityService {
	if publisher == nil {
		publisher = events.Noop{}
	}
	return &IdentityService{
		users:     users,
		passwords: passwords,
		events:    publisher,
		logger:    logger,
	}
}

// ResolveGoogle returns the one user that owns a Google profile.
//
// ORDER OF LOOKUPS:
//  1. by Google id → returned unchanged
//  2. by email → the account is linked: googleId and provider are set, the
//     picture is replaced if Google sent one. The row keeps its id.
//  3. otherwise a new Google account is created (no password)
//
// Steps 2 and 3 require email_verified. An unverified address is a
// validation error and nothing is written.
//
// CONCURRENT FIRST LOGINS:
// Two callbacks for the same new user can both miss steps 1 and 2. The
// UNIQUE constraints let only one insert win; the loser gets a conflict and
// runs the lookups once more, where it finds the winner's row.
func (s *IdentityService) ResolveGoogle(ctx context.Context, p *auth.GoogleProfile) (*model.User, error) {
	if p == nil || p.ID == "" || p.Email == "" {
		var id string
		if p != nil {
			id = p.ID
		}
		return nil, &IdentityResolutionError{
			GoogleID: id,
			Err:      apperror.ValidationFailed("profile", "google profile needs an id and an email"),
		}
	}

	user, err := s.resolveGoogleOnce(ctx, p)
	if errors.Is(err, apperror.ErrConflict) {
		s.logger.Info("identity insert lost a race, retrying lookup", slog.String("google_id", p.ID))
		user, err = s.resolveGoogleOnce(ctx, p)
	}
	if err != nil {
		return nil, &IdentityResolutionError{GoogleID: p.ID, Err: err}
	}
	return user, nil
}

func (s *IdentityService) resolveGoogleOnce(ctx context.Context, p *auth.GoogleProfile) (*model.User, error) {
	user, err := s.users.GetByGoogleID(ctx, p.ID)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, apperror.ErrNotFound) {
		return nil, err
	}

	if !p.EmailVerified {
		s.logger.Warn("google email not verified, refusing to link or create",
			slog.String("google_id", p.ID),
		)
		return nil, apperror.ValidationFailed("email", "google has not verified this email address")
	}

	user, err = s.users.GetByEmail(ctx, p.Email)
	switch {
	case err == nil:
		return s.link(ctx, user, p)
	case !errors.Is(err, apperror.ErrNotFound):
		return nil, err
	}

	googleID := p.ID
	user = &model.User{
		FirstName: p.GivenName,
		LastName:  p.FamilyName,
		Email:     p.Email,
		Provider:  model.ProviderGoogle,
		GoogleID:  &googleID,
		IsActive:  true,
	}
	if p.Picture != "" {
		picture := p.Picture
		user.ProfilePicture = &picture
	}

	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}

	s.logger.Info("user created from google profile",
		slog.Int64("user_id", user.ID),
		slog.String("google_id", p.ID),
	)
	events.Emit(ctx, s.events, s.logger, events.UserCreated, user.ID)
	return user, nil
}

// link attaches a Google identity to an existing account. A different
// Google id already on the row is overwritten.
func (s *IdentityService) link(ctx context.Context, user *model.User, p *auth.GoogleProfile) (*model.User, error) {
	if user.GoogleID != nil && *user.GoogleID != p.ID {
		s.logger.Warn("replacing google id on existing account",
			slog.Int64("user_id", user.ID),
			slog.String("old_google_id", *user.GoogleID),
			slog.String("new_google_id", p.ID),
		)
	}

	googleID := p.ID
	user.GoogleID = &googleID
	user.Provider = model.ProviderGoogle
	if p.Picture != "" {
		picture := p.Picture
		user.ProfilePicture = &picture
	}

	if err := s.users.Update(ctx, user); err != nil {
		return nil, err
	}

	s.logger.Info("identity linked",
		slog.Int64("user_id", user.ID),
		slog.String("google_id", p.ID),
	)
	events.Emit(ctx, s.events, s.logger, events.UserLinked, user.ID)
	return user, nil
}

// Authenticate checks local credentials.
//
// Unknown email, wrong password and Google-only accounts (no password)
// all yield the same ErrUnauthenticated.
func (s *IdentityService) Authenticate(ctx context.Context, email, password string) (*model.User, error) {
	if email == "" || password == "" {
		return nil, apperror.ValidationFailed("email", "email and password are required")
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, apperror.Unauthenticated(invalidCredentials)
		}
		return nil, fmt.Errorf("service/identity: loading user: %w", err)
	}

	if !user.HasPassword() {
		return nil, apperror.Unauthenticated(invalidCredentials)
	}

	if err := s.passwords.Verify(*user.PasswordHash, password); err != nil {
		if errors.Is(err, auth.ErrPasswordMismatch) {
			return nil, apperror.Unauthenticated(invalidCredentials)
		}
		return nil, fmt.Errorf("service/identity: %w", err)
	}

	return user, nil
}
