package providers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/samber/do/v2"

	"github.com/theLastOfCats/anishelf/internal/api"
	"github.com/theLastOfCats/anishelf/internal/config"
	"github.com/theLastOfCats/anishelf/internal/session"
	"github.com/theLastOfCats/anishelf/internal/state"
	"github.com/theLastOfCats/anishelf/internal/tracker"
	"github.com/theLastOfCats/anishelf/internal/validation"
)

func startupContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 30*time.Second)
}

// HTTPServerHandle wraps http.Server with shutdown capability.
type HTTPServerHandle struct {
	*http.Server
}

// Shutdown implements do.Shutdownable.
func (h *HTTPServerHandle) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return h.Server.Shutdown(ctx)
}

// ProvideHTTPServer builds the router and starts serving in the background.
func ProvideHTTPServer(i do.Injector) (*HTTPServerHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*slog.Logger](i)
	sess := do.MustInvoke[*session.Session](i)
	lists := do.MustInvoke[*state.Service](i)
	rec := do.MustInvoke[*tracker.Reconciler](i)
	toasts := do.MustInvoke[*Toasts](i)

	handler := api.NewRouter(api.Deps{
		Session:   sess,
		Lists:     lists,
		Tracker:   rec,
		Toasts:    toasts.Queue,
		Relay:     api.NewRelay(cfg.Relay.AllowedHosts, cfg.Relay.RPS, log.With("component", "relay")),
		Validator: validation.New(),
		Log:       log,
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info("Server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("Server error", "error", err)
		}
	}()

	return &HTTPServerHandle{Server: srv}, nil
}
