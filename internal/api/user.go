package api

import (
	"log/slog"
	"net/http"

	"github.com/theLastOfCats/anishelf/internal/model"
	"github.com/theLastOfCats/anishelf/internal/session"
)

type UserHandler struct {
	Session *session.Session
	Log     *slog.Logger
}

type UserResponse struct {
	model.Profile
	Mode session.Mode `json:"mode"`
}

func (h *UserHandler) GetMe(w http.ResponseWriter, r *http.Request) {
	profile, err := h.Session.Profile(r.Context())
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, UserResponse{Profile: profile, Mode: h.Session.Mode()})
}

func Health(w http.ResponseWriter, r *http.Request) {
	w.Write([]byte("Alive"))
}
