package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/user-portal/internal/apperror"
	"github.com/sakif/user-portal/internal/model"
	"github.com/sakif/user-portal/internal/repository"
	"github.com/sakif/user-portal/internal/service"
)

// UserService is what UserHandler needs from service.UserService.
type UserService interface {
	Create(ctx context.Context, in service.CreateUserInput) (*model.User, error)
	List(ctx context.Context, opts repository.ListOptions) ([]model.User, error)
	Get(ctx context.Context, id int64) (*model.User, error)
	Update(ctx context.Context, id int64, patch model.UserPatch) (*model.User, error)
	Delete(ctx context.Context, id int64) error
}

// Response envelopes. The key names are part of the client contract.
type (
	savedUserResponse struct {
		SavedUser *model.User `json:"savedUser"`
	}
	usersResponse struct {
		Users []model.User `json:"users"`
	}
	userResponse struct {
		User *model.User `json:"user"`
	}
	updatedUserResponse struct {
		UpdatedUser *model.User `json:"updatedUser"`
	}
)

// UserHandler serves /api/users.
//
//	POST   /api/users       → HandleCreate (public: registration)
//	GET    /api/users       → HandleList
//	GET    /api/users/{id}  → HandleGet
//	PUT    /api/users/{id}  → HandleUpdate
//	DELETE /api/users/{id}  → HandleDelete
type UserHandler struct {
	users  UserService
	logger *slog.Logger
}

func NewUserHandler(users UserService, logger *slog.Logger) *UserHandler {
	return &UserHandler{users: users, logger: logger}
}

// HandleCreate registers a local account. 201 {"savedUser": User}.
func (h *UserHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var in service.CreateUserInput
	if err := decodeJSON(w, r, &in, false); err != nil {
		writeError(w, h.logger, err)
		return
	}

	user, err := h.users.Create(r.Context(), in)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, savedUserResponse{SavedUser: user})
}

// HandleList returns every user, or one page with ?limit=&offset=.
func (h *UserHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	opts, err := parseListOptions(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	users, err := h.users.List(r.Context(), opts)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, usersResponse{Users: users})
}

func (h *UserHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	user, err := h.users.Get(r.Context(), id)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, userResponse{User: user})
}

// HandleUpdate applies a partial update. Only firstName, lastName, age and
// profilePicture are accepted; any other key is a 400.
func (h *UserHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	var patch model.UserPatch
	if err := decodeJSON(w, r, &patch, true); err != nil {
		writeError(w, h.logger, err)
		return
	}

	user, err := h.users.Update(r.Context(), id, patch)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, updatedUserResponse{UpdatedUser: user})
}

func (h *UserHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	if err := h.users.Delete(r.Context(), id); err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, MessageResponse{Message: "User deleted successfully"})
}

// parseID reads the {id} URL parameter.
func parseID(r *http.Request) (int64, error) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, apperror.ValidationFailed("id", "id must be an integer")
	}
	return id, nil
}

func parseListOptions(r *http.Request) (repository.ListOptions, error) {
	var opts repository.ListOptions
	q := r.URL.Query()

	for _, p := range []struct {
		name string
		dst  *int
	}{
		{"limit", &opts.Limit},
		{"offset", &opts.Offset},
	} {
		raw := q.Get(p.name)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return opts, apperror.ValidationFailed(p.name, p.name+" must be a non-negative integer")
		}
		*p.dst = n
	}

	return opts, nil
}
