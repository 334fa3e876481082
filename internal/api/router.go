package api

import (
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/theLastOfCats/anishelf/internal/session"
	"github.com/theLastOfCats/anishelf/internal/state"
	"github.com/theLastOfCats/anishelf/internal/toast"
	"github.com/theLastOfCats/anishelf/internal/tracker"
	"github.com/theLastOfCats/anishelf/internal/validation"
)

type Deps struct {
	Session   *session.Session
	Lists     *state.Service
	Tracker   *tracker.Reconciler
	Toasts    *toast.Queue
	Relay     *Relay
	Validator *validation.Validator
	Log       *slog.Logger
}

// NewRouter wires every route. Everything except health, sign-in, the relay
// and metrics needs a bearer token.
func NewRouter(d Deps) http.Handler {
	if d.Validator == nil {
		d.Validator = validation.New()
	}

	mw := &Middleware{Session: d.Session, Log: d.Log}
	authHandler := &AuthHandler{Session: d.Session, Validator: d.Validator, Log: d.Log}
	userHandler := &UserHandler{Session: d.Session, Log: d.Log}
	listHandler := &ListHandler{Lists: d.Lists, Tracker: d.Tracker, Validator: d.Validator, Log: d.Log}
	prefHandler := &PreferencesHandler{Lists: d.Lists, Validator: d.Validator, Log: d.Log}
	notifHandler := &NotificationHandler{Lists: d.Lists, Toasts: d.Toasts, Log: d.Log}
	reminderHandler := &ReminderHandler{Lists: d.Lists, Validator: d.Validator, Log: d.Log}
	sharedHandler := &SharedHandler{Session: d.Session, Validator: d.Validator, Log: d.Log}

	mux := http.NewServeMux()
	protected := func(pattern string, h http.HandlerFunc) {
		mux.Handle(pattern, mw.AuthMiddleware(h))
	}

	// Public Routes
	mux.HandleFunc("GET /{$}", Health)
	mux.HandleFunc("POST /auth/local", authHandler.LocalSignIn)
	mux.Handle("GET /metrics", promhttp.Handler())
	if d.Relay != nil {
		mux.Handle("GET /relay", d.Relay)
	}

	// Protected Routes
	protected("GET /me", userHandler.GetMe)
	protected("POST /auth/signout", authHandler.SignOut)
	protected("PUT /auth/mode", authHandler.SetMode)

	protected("GET /lists", listHandler.GetLists)
	protected("POST /lists/{list}/{id}/toggle", listHandler.ToggleList)
	protected("POST /media/{id}/episodes/{episode}/toggle", listHandler.ToggleEpisode)
	protected("POST /media/{id}/chapters/{chapter}/toggle", listHandler.ToggleChapter)
	protected("PUT /media/{id}/link", listHandler.SetEpisodeLink)
	protected("DELETE /media/{id}/link", listHandler.RemoveEpisodeLink)
	protected("PUT /media/{id}/comment", listHandler.SetComment)
	protected("DELETE /media/{id}/comment", listHandler.DeleteComment)
	protected("POST /media/{id}/exclude", listHandler.ToggleExcluded)
	protected("POST /activity/read", listHandler.MarkActivityRead)
	protected("GET /tracked", listHandler.GetTracked)

	protected("GET /preferences", prefHandler.GetPreferences)
	protected("PUT /preferences/hidden-genres", prefHandler.SetHiddenGenres)
	protected("PUT /preferences/sensitive-content", prefHandler.SetSensitive)
	protected("PUT /preferences/storage-quota", prefHandler.SetQuota)
	protected("PUT /preferences/notifications-layout", prefHandler.SetNotificationsLayout)
	protected("PUT /preferences/pinned-tab", prefHandler.SetPinnedTab)
	protected("PUT /preferences/layout", prefHandler.SetLayoutConfig)

	protected("GET /notifications", notifHandler.GetNotifications)
	protected("POST /notifications/seen", notifHandler.MarkAllSeen)
	protected("POST /notifications/{id}/seen", notifHandler.MarkSeen)
	protected("DELETE /notifications/{id}", notifHandler.Dismiss)
	protected("DELETE /notifications", notifHandler.Clear)
	protected("GET /toasts", notifHandler.GetToasts)

	protected("GET /reminders", reminderHandler.List)
	protected("POST /reminders", reminderHandler.Create)
	protected("PUT /reminders/{id}", reminderHandler.Update)
	protected("DELETE /reminders/{id}", reminderHandler.Delete)

	protected("GET /export", sharedHandler.Export)
	protected("POST /import", sharedHandler.Import)
	protected("GET /shared", sharedHandler.GetShared)
	protected("POST /shared/connect", sharedHandler.Connect)
	protected("POST /shared/sync", sharedHandler.Sync)
	protected("DELETE /shared", sharedHandler.Disconnect)

	return LoggingMiddleware(d.Log, mux)
}
