package api

import (
	"log/slog"
	"net/http"

	"github.com/theLastOfCats/anishelf/internal/model"
	"github.com/theLastOfCats/anishelf/internal/state"
	"github.com/theLastOfCats/anishelf/internal/toast"
)

type NotificationHandler struct {
	Lists  *state.Service
	Toasts *toast.Queue
	Log    *slog.Logger
}

type NotificationsResponse struct {
	Notifications []model.Notification `json:"notifications"`
	Unseen        int                  `json:"unseen"`
	Layout        []string             `json:"layout"`
	Pinned        string               `json:"pinned"`
}

// GetNotifications lists notifications, optionally narrowed with ?tab=.
func (h *NotificationHandler) GetNotifications(w http.ResponseWriter, r *http.Request) {
	tab := r.URL.Query().Get("tab")
	d := h.Lists.Snapshot()

	resp := NotificationsResponse{
		Notifications: make([]model.Notification, 0, len(d.Notifications)),
		Layout:        d.NotificationsLayout,
		Pinned:        d.PinnedNotificationTab,
	}
	for _, n := range d.Notifications {
		if tab != "" && tab != model.TabAll && n.Tab() != tab {
			continue
		}
		resp.Notifications = append(resp.Notifications, n)
		if !n.Seen {
			resp.Unseen++
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *NotificationHandler) MarkSeen(w http.ResponseWriter, r *http.Request) {
	if err := h.Lists.MarkNotificationSeen(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, h.Log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type CountResponse struct {
	Count int `json:"count"`
}

func (h *NotificationHandler) MarkAllSeen(w http.ResponseWriter, r *http.Request) {
	n, err := h.Lists.MarkAllNotificationsSeen(r.Context(), r.URL.Query().Get("tab"))
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, CountResponse{Count: n})
}

func (h *NotificationHandler) Dismiss(w http.ResponseWriter, r *http.Request) {
	if err := h.Lists.DismissNotification(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, h.Log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Clear removes every notification, or only those of ?kind=.
func (h *NotificationHandler) Clear(w http.ResponseWriter, r *http.Request) {
	kind := model.NotificationKind(r.URL.Query().Get("kind"))
	switch kind {
	case "", model.KindNews, model.KindReminder, model.KindStorage:
	default:
		JSONError(w, "Unknown notification kind", http.StatusBadRequest)
		return
	}
	n, err := h.Lists.ClearNotifications(r.Context(), kind)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, CountResponse{Count: n})
}

// GetToasts drains the toasts raised since the last call.
func (h *NotificationHandler) GetToasts(w http.ResponseWriter, r *http.Request) {
	toasts := h.Toasts.Drain()
	if toasts == nil {
		toasts = []toast.Toast{}
	}
	writeJSON(w, http.StatusOK, toasts)
}
