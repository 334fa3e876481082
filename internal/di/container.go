// Package di wires the application together with samber/do.
package di

import (
	"github.com/samber/do/v2"

	"github.com/theLastOfCats/anishelf/internal/config"
	"github.com/theLastOfCats/anishelf/internal/di/providers"
	"github.com/theLastOfCats/anishelf/internal/quota"
	"github.com/theLastOfCats/anishelf/internal/reminder"
	"github.com/theLastOfCats/anishelf/internal/session"
	"github.com/theLastOfCats/anishelf/internal/state"
	"github.com/theLastOfCats/anishelf/internal/tracker"
)

// NewContainer registers every provider. args are the command-line flags.
func NewContainer(args []string) *do.RootScope {
	injector := do.New()

	// Core infrastructure
	do.Provide(injector, providers.ConfigProvider(args))
	do.Provide(injector, providers.ProvideLogger)
	do.Provide(injector, providers.ProvideStore)
	do.Provide(injector, providers.ProvideToasts)

	// List data
	do.Provide(injector, providers.ProvideQuotaGuard)
	do.Provide(injector, providers.ProvideListService)

	// Background work
	do.Provide(injector, providers.ProvideCatalog)
	do.Provide(injector, providers.ProvideReconciler)
	do.Provide(injector, providers.ProvideScheduler)
	do.Provide(injector, providers.ProvideSession)

	// Server
	do.Provide(injector, providers.ProvideHTTPServer)

	return injector
}

// Bootstrap resolves the graph, which loads state, starts the session and
// begins serving.
func Bootstrap(injector *do.RootScope) error {
	if _, err := do.Invoke[*config.Config](injector); err != nil {
		return err
	}
	_ = do.MustInvoke[*providers.StoreHandle](injector)
	_ = do.MustInvoke[*providers.Toasts](injector)
	_ = do.MustInvoke[*quota.Guard](injector)
	_ = do.MustInvoke[*state.Service](injector)
	_ = do.MustInvoke[*tracker.Reconciler](injector)
	_ = do.MustInvoke[*reminder.Scheduler](injector)
	_ = do.MustInvoke[*session.Session](injector)

	if _, err := do.Invoke[*providers.HTTPServerHandle](injector); err != nil {
		return err
	}
	return nil
}
