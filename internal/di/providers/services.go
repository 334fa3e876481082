package providers

import (
	"log/slog"

	"github.com/samber/do/v2"

	"github.com/theLastOfCats/anishelf/internal/catalog"
	"github.com/theLastOfCats/anishelf/internal/config"
	"github.com/theLastOfCats/anishelf/internal/quota"
	"github.com/theLastOfCats/anishelf/internal/reminder"
	"github.com/theLastOfCats/anishelf/internal/session"
	"github.com/theLastOfCats/anishelf/internal/state"
	"github.com/theLastOfCats/anishelf/internal/tracker"
)

// ProvideQuotaGuard provides the guard every list data write passes through.
func ProvideQuotaGuard(i do.Injector) (*quota.Guard, error) {
	store := do.MustInvoke[*StoreHandle](i)
	toasts := do.MustInvoke[*Toasts](i)
	log := do.MustInvoke[*slog.Logger](i)

	return quota.New(store, store.Estimator(), toasts.Notifier, log.With("component", "quota")), nil
}

// ProvideListService provides the list data mutator. do calls its Shutdown,
// which flushes pending writes.
func ProvideListService(i do.Injector) (*state.Service, error) {
	store := do.MustInvoke[*StoreHandle](i)
	guard := do.MustInvoke[*quota.Guard](i)
	log := do.MustInvoke[*slog.Logger](i)

	return state.New(store, guard, log.With("component", "lists")), nil
}

// ProvideCatalog provides the AniList client.
func ProvideCatalog(i do.Injector) (*catalog.AniList, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*slog.Logger](i)

	return catalog.New(cfg.Catalog.URL, cfg.Catalog.RPS, log.With("component", "catalog")), nil
}

// ProvideReconciler provides the tracked-media reconciler. It is started by
// the session, not here.
func ProvideReconciler(i do.Injector) (*tracker.Reconciler, error) {
	cfg := do.MustInvoke[*config.Config](i)
	lists := do.MustInvoke[*state.Service](i)
	cat := do.MustInvoke[*catalog.AniList](i)
	store := do.MustInvoke[*StoreHandle](i)
	log := do.MustInvoke[*slog.Logger](i)

	return tracker.New(lists, cat, store, tracker.Options{
		Debounce: cfg.Tracker.Debounce,
		Interval: cfg.Tracker.Interval,
		Delay:    cfg.Tracker.Delay,
	}, log.With("component", "tracker")), nil
}

// ProvideScheduler provides the reminder scheduler.
func ProvideScheduler(i do.Injector) (*reminder.Scheduler, error) {
	cfg := do.MustInvoke[*config.Config](i)
	lists := do.MustInvoke[*state.Service](i)
	rec := do.MustInvoke[*tracker.Reconciler](i)
	log := do.MustInvoke[*slog.Logger](i)

	return reminder.NewScheduler(lists, rec, cfg.Reminders.Interval, log.With("component", "reminders")), nil
}

// ProvideSession builds the session and runs its start-up sequence.
func ProvideSession(i do.Injector) (*session.Session, error) {
	cfg := do.MustInvoke[*config.Config](i)
	store := do.MustInvoke[*StoreHandle](i)
	lists := do.MustInvoke[*state.Service](i)
	rec := do.MustInvoke[*tracker.Reconciler](i)
	sched := do.MustInvoke[*reminder.Scheduler](i)
	toasts := do.MustInvoke[*Toasts](i)
	log := do.MustInvoke[*slog.Logger](i)

	mode, err := session.ParseMode(cfg.Auth.Mode)
	if err != nil {
		return nil, err
	}

	s := session.New(session.Options{
		Store:     store,
		Lists:     lists,
		Tracker:   rec,
		Scheduler: sched,
		Notifier:  toasts.Notifier,
		Mode:      mode,
		RelayURL:  cfg.Relay.URL,
		Log:       log.With("component", "session"),
	})

	ctx, cancel := startupContext()
	defer cancel()
	if err := s.Init(ctx); err != nil {
		return nil, err
	}
	return s, nil
}
