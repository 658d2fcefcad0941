package service

import (
	"context"
	"io"
	"log/slog"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/sakif/user-portal/internal/apperror"
	"github.com/sakif/user-portal/internal/model"
	"github.com/sakif/user-portal/internal/repository"
)

// fakeUserRepo is an in-memory repository.UserRepository that enforces the
// same UNIQUE rules as the real tables. Rows are copied in and out so a
// caller mutating a returned *User cannot change stored state.
type fakeUserRepo struct {
	mu     sync.Mutex
	rows   map[int64]model.User
	nextID int64

	// beforeCreate runs before every insert. Tests use it to sneak in a
	// competing row and provoke a conflict.
	beforeCreate func(r *fakeUserRepo)

	// Set to simulate a database failure.
	getErr    error
	createErr error
	updateErr error

	creates int
	updates int
}

var _ repository.UserRepository = (*fakeUserRepo)(nil)

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{rows: make(map[int64]model.User), nextID: 1}
}

func (f *fakeUserRepo) Create(_ context.Context, u *model.User) error {
	if hook := f.beforeCreate; hook != nil {
		f.beforeCreate = nil
		hook(f)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.createErr != nil {
		return f.createErr
	}
	if field := f.conflictLocked(u); field != "" {
		return apperror.Conflict("user", field)
	}

	now := time.Now().UTC()
	u.ID = f.nextID
	u.CreatedAt = now
	u.UpdatedAt = now
	f.nextID++
	f.rows[u.ID] = *u
	f.creates++
	return nil
}

// insert stores a row directly, bypassing hooks and counters.
func (f *fakeUserRepo) insert(u model.User) *model.User {
	f.mu.Lock()
	defer f.mu.Unlock()
	u.ID = f.nextID
	u.CreatedAt = time.Now().UTC()
	u.UpdatedAt = u.CreatedAt
	f.nextID++
	f.rows[u.ID] = u
	return &u
}

func (f *fakeUserRepo) conflictLocked(u *model.User) string {
	for id, row := range f.rows {
		if id == u.ID {
			continue
		}
		if row.Email == u.Email {
			return "email"
		}
		if u.GoogleID != nil && row.GoogleID != nil && *row.GoogleID == *u.GoogleID {
			return "googleId"
		}
	}
	return ""
}

func (f *fakeUserRepo) find(match func(model.User) bool, key string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	for _, row := range f.rows {
		if match(row) {
			out := row
			return &out, nil
		}
	}
	return nil, apperror.NotFound("user", key)
}

func (f *fakeUserRepo) GetByID(_ context.Context, id int64) (*model.User, error) {
	return f.find(func(u model.User) bool { return u.ID == id }, strconv.FormatInt(id, 10))
}

func (f *fakeUserRepo) GetByEmail(_ context.Context, email string) (*model.User, error) {
	return f.find(func(u model.User) bool { return u.Email == email }, email)
}

func (f *fakeUserRepo) GetByGoogleID(_ context.Context, googleID string) (*model.User, error) {
	return f.find(func(u model.User) bool { return u.GoogleID != nil && *u.GoogleID == googleID }, googleID)
}

func (f *fakeUserRepo) List(_ context.Context, opts repository.ListOptions) ([]model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}

	out := make([]model.User, 0, len(f.rows))
	for _, row := range f.rows {
		out = append(out, row)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })

	if opts.Offset >= len(out) {
		return []model.User{}, nil
	}
	out = out[opts.Offset:]
	if opts.Limit > 0 && opts.Limit < len(out) {
		out = out[:opts.Limit]
	}
	return out, nil
}

func (f *fakeUserRepo) Update(_ context.Context, u *model.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updateErr != nil {
		return f.updateErr
	}
	old, ok := f.rows[u.ID]
	if !ok {
		return apperror.NotFound("user", strconv.FormatInt(u.ID, 10))
	}
	if field := f.conflictLocked(u); field != "" {
		return apperror.Conflict("user", field)
	}

	u.CreatedAt = old.CreatedAt
	u.UpdatedAt = time.Now().UTC()
	f.rows[u.ID] = *u
	f.updates++
	return nil
}

func (f *fakeUserRepo) Delete(_ context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.rows[id]; !ok {
		return apperror.NotFound("user", strconv.FormatInt(id, 10))
	}
	delete(f.rows, id)
	return nil
}

func (f *fakeUserRepo) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.rows)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func ptr[T any](v T) *T { return &v }
