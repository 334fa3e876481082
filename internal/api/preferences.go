package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/theLastOfCats/anishelf/internal/state"
	"github.com/theLastOfCats/anishelf/internal/validation"
)

type PreferencesHandler struct {
	Lists     *state.Service
	Validator *validation.Validator
	Log       *slog.Logger
}

type PreferencesResponse struct {
	HiddenGenres             []string          `json:"hiddenGenres"`
	EffectiveHiddenGenres    []string          `json:"effectiveHiddenGenres"`
	SensitiveContentUnlocked bool              `json:"sensitiveContentUnlocked"`
	StorageQuota             int64             `json:"storageQuota"`
	NotificationsLayout      []string          `json:"notificationsLayout"`
	PinnedNotificationTab    string            `json:"pinnedNotificationTab"`
	LayoutConfig             []json.RawMessage `json:"layoutConfig"`
}

func (h *PreferencesHandler) respond(w http.ResponseWriter) {
	d := h.Lists.Snapshot()
	writeJSON(w, http.StatusOK, PreferencesResponse{
		HiddenGenres:             d.HiddenGenres,
		EffectiveHiddenGenres:    state.EffectiveHiddenGenres(d),
		SensitiveContentUnlocked: d.SensitiveContentUnlocked,
		StorageQuota:             d.StorageQuota,
		NotificationsLayout:      d.NotificationsLayout,
		PinnedNotificationTab:    d.PinnedNotificationTab,
		LayoutConfig:             d.LayoutConfig,
	})
}

func (h *PreferencesHandler) GetPreferences(w http.ResponseWriter, r *http.Request) {
	h.respond(w)
}

// decode reads and validates a request body, writing the error response
// itself when it fails.
func (h *PreferencesHandler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := decodeJSON(r, v); err != nil {
		JSONError(w, "Invalid request body", http.StatusBadRequest)
		return false
	}
	if err := h.Validator.Validate(v); err != nil {
		writeError(w, h.Log, err)
		return false
	}
	return true
}

func (h *PreferencesHandler) finish(w http.ResponseWriter, err error) {
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	h.respond(w)
}

type HiddenGenresRequest struct {
	Genres []string `json:"genres" validate:"max=200"`
}

func (h *PreferencesHandler) SetHiddenGenres(w http.ResponseWriter, r *http.Request) {
	var req HiddenGenresRequest
	if !h.decode(w, r, &req) {
		return
	}
	h.finish(w, h.Lists.SetHiddenGenres(r.Context(), req.Genres))
}

type SensitiveRequest struct {
	Unlocked bool `json:"unlocked"`
}

func (h *PreferencesHandler) SetSensitive(w http.ResponseWriter, r *http.Request) {
	var req SensitiveRequest
	if !h.decode(w, r, &req) {
		return
	}
	h.finish(w, h.Lists.SetSensitiveContentUnlocked(r.Context(), req.Unlocked))
}

type QuotaRequest struct {
	Bytes int64 `json:"bytes" validate:"required,gte=1"`
}

func (h *PreferencesHandler) SetQuota(w http.ResponseWriter, r *http.Request) {
	var req QuotaRequest
	if !h.decode(w, r, &req) {
		return
	}
	h.finish(w, h.Lists.SetStorageQuota(r.Context(), req.Bytes))
}

type NotificationsLayoutRequest struct {
	Tabs []string `json:"tabs"`
}

func (h *PreferencesHandler) SetNotificationsLayout(w http.ResponseWriter, r *http.Request) {
	var req NotificationsLayoutRequest
	if !h.decode(w, r, &req) {
		return
	}
	_, err := h.Lists.SetNotificationsLayout(r.Context(), req.Tabs)
	h.finish(w, err)
}

type PinnedTabRequest struct {
	Tab string `json:"tab"`
}

func (h *PreferencesHandler) SetPinnedTab(w http.ResponseWriter, r *http.Request) {
	var req PinnedTabRequest
	if !h.decode(w, r, &req) {
		return
	}
	h.finish(w, h.Lists.SetPinnedNotificationTab(r.Context(), req.Tab))
}

type LayoutConfigRequest struct {
	Sections []json.RawMessage `json:"sections"`
}

func (h *PreferencesHandler) SetLayoutConfig(w http.ResponseWriter, r *http.Request) {
	var req LayoutConfigRequest
	if !h.decode(w, r, &req) {
		return
	}
	h.finish(w, h.Lists.SetLayoutConfig(r.Context(), req.Sections))
}
