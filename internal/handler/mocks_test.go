package handler_test

import (
	"context"
	"io"
	"log/slog"
	"net/http"

	"github.com/stretchr/testify/mock"

	"github.com/sakif/user-portal/internal/auth"
	"github.com/sakif/user-portal/internal/model"
	"github.com/sakif/user-portal/internal/repository"
	"github.com/sakif/user-portal/internal/service"
	"github.com/sakif/user-portal/internal/session"
)

var testLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

// MockUserService mocks handler.UserService.
type MockUserService struct {
	mock.Mock
}

func (m *MockUserService) Create(ctx context.Context, in service.CreateUserInput) (*model.User, error) {
	args := m.Called(ctx, in)
	if u := args.Get(0); u != nil {
		return u.(*model.User), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockUserService) List(ctx context.Context, opts repository.ListOptions) ([]model.User, error) {
	args := m.Called(ctx, opts)
	if u := args.Get(0); u != nil {
		return u.([]model.User), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockUserService) Get(ctx context.Context, id int64) (*model.User, error) {
	args := m.Called(ctx, id)
	if u := args.Get(0); u != nil {
		return u.(*model.User), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockUserService) Update(ctx context.Context, id int64, patch model.UserPatch) (*model.User, error) {
	args := m.Called(ctx, id, patch)
	if u := args.Get(0); u != nil {
		return u.(*model.User), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockUserService) Delete(ctx context.Context, id int64) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

// MockOAuthProvider mocks handler.OAuthProvider.
type MockOAuthProvider struct {
	mock.Mock
}

func (m *MockOAuthProvider) AuthURL(state string) string {
	return m.Called(state).String(0)
}

func (m *MockOAuthProvider) Exchange(ctx context.Context, code string) (*auth.GoogleProfile, error) {
	args := m.Called(ctx, code)
	if p := args.Get(0); p != nil {
		return p.(*auth.GoogleProfile), args.Error(1)
	}
	return nil, args.Error(1)
}

// MockIdentityResolver mocks handler.IdentityResolver.
type MockIdentityResolver struct {
	mock.Mock
}

func (m *MockIdentityResolver) ResolveGoogle(ctx context.Context, p *auth.GoogleProfile) (*model.User, error) {
	args := m.Called(ctx, p)
	if u := args.Get(0); u != nil {
		return u.(*model.User), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockIdentityResolver) Authenticate(ctx context.Context, email, password string) (*model.User, error) {
	args := m.Called(ctx, email, password)
	if u := args.Get(0); u != nil {
		return u.(*model.User), args.Error(1)
	}
	return nil, args.Error(1)
}

// MockSessionManager mocks handler.SessionManager. Cookie building is
// real so tests can inspect Set-Cookie headers.
type MockSessionManager struct {
	mock.Mock
}

func (m *MockSessionManager) CookieName() string { return "connect.sid" }

func (m *MockSessionManager) Issue(ctx context.Context, principalID int64) (*session.Issued, error) {
	args := m.Called(ctx, principalID)
	if i := args.Get(0); i != nil {
		return i.(*session.Issued), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockSessionManager) Destroy(ctx context.Context, value string) error {
	return m.Called(ctx, value).Error(0)
}

func (m *MockSessionManager) Cookie(issued *session.Issued) *http.Cookie {
	return &http.Cookie{Name: "connect.sid", Value: issued.Value, Path: "/", HttpOnly: true}
}

func (m *MockSessionManager) ExpiredCookie() *http.Cookie {
	return &http.Cookie{Name: "connect.sid", Value: "", Path: "/", MaxAge: -1}
}
