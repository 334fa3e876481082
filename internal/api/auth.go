package api

import (
	"log/slog"
	"net/http"

	"github.com/theLastOfCats/anishelf/internal/auth"
	"github.com/theLastOfCats/anishelf/internal/model"
	"github.com/theLastOfCats/anishelf/internal/session"
	"github.com/theLastOfCats/anishelf/internal/validation"
)

type AuthHandler struct {
	Session   *session.Session
	Validator *validation.Validator
	Log       *slog.Logger
}

type LocalSignInRequest struct {
	Username  string `json:"username" validate:"required,max=64"`
	AvatarURL string `json:"avatar_url" validate:"omitempty,url"`
}

type SignInResponse struct {
	Token   string        `json:"token"`
	Profile model.Profile `json:"profile"`
}

// LocalSignIn creates or updates the device profile and returns a token.
func (h *AuthHandler) LocalSignIn(w http.ResponseWriter, r *http.Request) {
	var req LocalSignInRequest
	if err := decodeJSON(r, &req); err != nil {
		JSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if err := h.Validator.Validate(req); err != nil {
		writeError(w, h.Log, err)
		return
	}

	profile, err := h.Session.SignIn(r.Context(), req.Username, req.AvatarURL)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}

	token, err := auth.GenerateToken(profile.Username)
	if err != nil {
		h.Log.Error("failed to generate token", "error", err)
		JSONError(w, "Failed to generate token", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, SignInResponse{Token: token, Profile: profile})
}

// SignOut wipes the local profile and every record that belongs to it.
func (h *AuthHandler) SignOut(w http.ResponseWriter, r *http.Request) {
	if err := h.Session.SignOut(r.Context()); err != nil {
		writeError(w, h.Log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type ModeRequest struct {
	Mode string `json:"mode" validate:"required,oneof=local none"`
}

// SetMode switches the auth mode. Leaving local mode pauses the background
// loops; the profile and its token stay valid.
func (h *AuthHandler) SetMode(w http.ResponseWriter, r *http.Request) {
	var req ModeRequest
	if err := decodeJSON(r, &req); err != nil {
		JSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if err := h.Validator.Validate(req); err != nil {
		writeError(w, h.Log, err)
		return
	}

	if err := h.Session.SetMode(r.Context(), session.Mode(req.Mode)); err != nil {
		writeError(w, h.Log, err)
		return
	}
	profile, err := h.Session.Profile(r.Context())
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, UserResponse{Profile: profile, Mode: h.Session.Mode()})
}
