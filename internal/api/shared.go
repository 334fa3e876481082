package api

import (
	"bytes"
	"encoding/hex"
	"log/slog"
	"net/http"
	"strings"

	"golang.org/x/crypto/blake2b"

	"github.com/theLastOfCats/anishelf/internal/model"
	"github.com/theLastOfCats/anishelf/internal/session"
	"github.com/theLastOfCats/anishelf/internal/sharedsync"
	"github.com/theLastOfCats/anishelf/internal/validation"
)

type SharedHandler struct {
	Session   *session.Session
	Validator *validation.Validator
	Log       *slog.Logger
}

// Export returns the snapshot document. The ETag is a content hash, so an
// unchanged profile answers If-None-Match with 304.
func (h *SharedHandler) Export(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	if err := h.Session.Sync().Export(r.Context(), &buf); err != nil {
		writeError(w, h.Log, err)
		return
	}

	sum := blake2b.Sum256(buf.Bytes())
	etag := `"` + hex.EncodeToString(sum[:16]) + `"`
	w.Header().Set("ETag", etag)
	if matchesETag(r.Header.Get("If-None-Match"), etag) {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", `attachment; filename="anishelf.json"`)
	w.Write(buf.Bytes())
}

func matchesETag(header, etag string) bool {
	for _, candidate := range strings.Split(header, ",") {
		candidate = strings.TrimPrefix(strings.TrimSpace(candidate), "W/")
		if candidate == etag || candidate == "*" {
			return true
		}
	}
	return false
}

type ImportResponse struct {
	Profile model.Profile `json:"profile"`
}

func (h *SharedHandler) Import(w http.ResponseWriter, r *http.Request) {
	snap, err := h.Session.Sync().Import(r.Context(), r.Body)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, ImportResponse{Profile: *snap.Profile})
}

type SharedStatusResponse struct {
	State  sharedsync.State       `json:"state"`
	Config model.SharedDataConfig `json:"config"`
}

func (h *SharedHandler) respond(w http.ResponseWriter, r *http.Request, status int) {
	cfg, err := h.Session.Sync().Config(r.Context())
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, status, SharedStatusResponse{State: h.Session.Sync().Status(), Config: cfg})
}

func (h *SharedHandler) GetShared(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r, http.StatusOK)
}

type ConnectRequest struct {
	URL string `json:"url" validate:"required,url"`
}

type SyncResponse struct {
	Outcome sharedsync.Outcome     `json:"outcome"`
	State   sharedsync.State       `json:"state"`
	Config  model.SharedDataConfig `json:"config"`
}

func (h *SharedHandler) syncResult(w http.ResponseWriter, r *http.Request, outcome sharedsync.Outcome, err error) {
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	cfg, err := h.Session.Sync().Config(r.Context())
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, SyncResponse{Outcome: outcome, State: h.Session.Sync().Status(), Config: cfg})
}

func (h *SharedHandler) Connect(w http.ResponseWriter, r *http.Request) {
	var req ConnectRequest
	if err := decodeJSON(r, &req); err != nil {
		JSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if err := h.Validator.Validate(req); err != nil {
		writeError(w, h.Log, err)
		return
	}
	outcome, err := h.Session.Sync().Connect(r.Context(), req.URL)
	h.syncResult(w, r, outcome, err)
}

// Sync is always a manual sync: it skips the ETag and reports its result.
func (h *SharedHandler) Sync(w http.ResponseWriter, r *http.Request) {
	outcome, err := h.Session.Sync().Sync(r.Context(), true)
	h.syncResult(w, r, outcome, err)
}

func (h *SharedHandler) Disconnect(w http.ResponseWriter, r *http.Request) {
	if err := h.Session.Sync().Disconnect(r.Context()); err != nil {
		writeError(w, h.Log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
