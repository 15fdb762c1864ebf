package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/acorvin/gamenight/internal/auth"
	"github.com/acorvin/gamenight/internal/model"
	"github.com/acorvin/gamenight/internal/service"
)

// PollHandler exposes the poll lifecycle and voting endpoints. Every
// route behind it requires authentication; the identity comes from the
// request context.
type PollHandler struct {
	polls *service.PollService
}

func NewPollHandler(polls *service.PollService) *PollHandler {
	return &PollHandler{polls: polls}
}

type createPollRequest struct {
	Title       string     `json:"title"`
	Description string     `json:"description"`
	ExpiresAt   *time.Time `json:"expiresAt"`
	VotingMode  string     `json:"votingMode"`
	Options     []string   `json:"options"`
}

// Create handles POST /api/polls.
func (h *PollHandler) Create(w http.ResponseWriter, r *http.Request) {
	identity := mustIdentity(w, r)
	if identity == nil {
		return
	}

	var req createPollRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	poll, err := h.polls.Create(r.Context(), *identity, service.CreatePollInput{
		Title:       req.Title,
		Description: req.Description,
		ExpiresAt:   req.ExpiresAt,
		VotingMode:  model.VotingMode(req.VotingMode),
		Options:     req.Options,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, poll)
}

// List handles GET /api/polls. ?active=true narrows to open polls.
func (h *PollHandler) List(w http.ResponseWriter, r *http.Request) {
	activeOnly := r.URL.Query().Get("active") == "true"

	polls, err := h.polls.List(r.Context(), activeOnly)
	if err != nil {
		writeError(w, err)
		return
	}
	if polls == nil {
		polls = []model.Poll{}
	}
	writeJSON(w, http.StatusOK, polls)
}

// Get handles GET /api/polls/{id}.
func (h *PollHandler) Get(w http.ResponseWriter, r *http.Request) {
	identity := mustIdentity(w, r)
	if identity == nil {
		return
	}

	poll, err := h.polls.Get(r.Context(), *identity, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, poll)
}

type updatePollRequest struct {
	Title       *string    `json:"title"`
	Description *string    `json:"description"`
	ExpiresAt   *time.Time `json:"expiresAt"`
	IsActive    *bool      `json:"isActive"`
}

// Update handles PUT /api/polls/{id}. Absent fields stay unchanged.
func (h *PollHandler) Update(w http.ResponseWriter, r *http.Request) {
	identity := mustIdentity(w, r)
	if identity == nil {
		return
	}

	var req updatePollRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	poll, err := h.polls.Update(r.Context(), *identity, chi.URLParam(r, "id"), service.UpdatePollInput{
		Title:       req.Title,
		Description: req.Description,
		ExpiresAt:   req.ExpiresAt,
		IsActive:    req.IsActive,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, poll)
}

// Delete handles DELETE /api/polls/{id}.
func (h *PollHandler) Delete(w http.ResponseWriter, r *http.Request) {
	identity := mustIdentity(w, r)
	if identity == nil {
		return
	}

	if err := h.polls.Delete(r.Context(), *identity, chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

type voteRequest struct {
	OptionID string `json:"optionId"`
}

type voteResponse struct {
	Outcome model.VoteOutcome `json:"outcome"`
}

// Vote handles POST /api/polls/{id}/vote.
func (h *PollHandler) Vote(w http.ResponseWriter, r *http.Request) {
	identity := mustIdentity(w, r)
	if identity == nil {
		return
	}

	var req voteRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	outcome, err := h.polls.CastVote(r.Context(), *identity, chi.URLParam(r, "id"), req.OptionID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, voteResponse{Outcome: outcome})
}

// Results handles GET /api/polls/{id}/results.
func (h *PollHandler) Results(w http.ResponseWriter, r *http.Request) {
	identity := mustIdentity(w, r)
	if identity == nil {
		return
	}

	result, err := h.polls.Results(r.Context(), *identity, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// Voters handles GET /api/polls/{id}/voters.
func (h *PollHandler) Voters(w http.ResponseWriter, r *http.Request) {
	identity := mustIdentity(w, r)
	if identity == nil {
		return
	}

	details, err := h.polls.Voters(r.Context(), *identity, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, details)
}

type addOptionRequest struct {
	Text string `json:"text"`
}

// AddOption handles POST /api/polls/{id}/options.
func (h *PollHandler) AddOption(w http.ResponseWriter, r *http.Request) {
	identity := mustIdentity(w, r)
	if identity == nil {
		return
	}

	var req addOptionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	option, err := h.polls.AddOption(r.Context(), *identity, chi.URLParam(r, "id"), req.Text)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, option)
}

// mustIdentity pulls the authenticated identity from the context, writing
// a 401 when the middleware did not run. Returns nil on failure.
func mustIdentity(w http.ResponseWriter, r *http.Request) *model.Identity {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, ErrorResponse{
			Error:   "unauthorized",
			Message: "authentication required",
		})
		return nil
	}
	return &identity
}
