package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/acorvin/gamenight/internal/service"
)

// UserHandler exposes the admin-only account endpoints. The admin check
// happens in middleware; these handlers assume it already passed.
type UserHandler struct {
	users *service.UserService
}

func NewUserHandler(users *service.UserService) *UserHandler {
	return &UserHandler{users: users}
}

// List handles GET /api/admin/users.
func (h *UserHandler) List(w http.ResponseWriter, r *http.Request) {
	users, err := h.users.List(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	resp := make([]UserResponse, len(users))
	for i := range users {
		resp[i] = toUserResponse(&users[i])
	}
	writeJSON(w, http.StatusOK, resp)
}

type createUserRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	IsAdmin  bool   `json:"isAdmin"`
}

// Create handles POST /api/admin/users.
func (h *UserHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	user, err := h.users.CreateUser(r.Context(), req.Username, req.Password, req.IsAdmin)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toUserResponse(user))
}

// ToggleRole handles POST /api/admin/users/{id}/role.
func (h *UserHandler) ToggleRole(w http.ResponseWriter, r *http.Request) {
	identity := mustIdentity(w, r)
	if identity == nil {
		return
	}

	user, err := h.users.ToggleRole(r.Context(), *identity, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserResponse(user))
}
