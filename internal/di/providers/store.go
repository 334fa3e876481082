package providers

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/samber/do/v2"

	"github.com/theLastOfCats/anishelf/internal/config"
	"github.com/theLastOfCats/anishelf/internal/db"
	"github.com/theLastOfCats/anishelf/internal/templates"
	"github.com/theLastOfCats/anishelf/internal/toast"
)

// StoreHandle wraps the store with shutdown capability.
type StoreHandle struct {
	db.Store
}

// Shutdown implements do.Shutdownable.
func (h *StoreHandle) Shutdown() error {
	return h.Close()
}

// Estimator returns the backend's usage estimator, or nil when it has none.
func (h *StoreHandle) Estimator() db.Estimator {
	est, _ := h.Store.(db.Estimator)
	return est
}

// ProvideStore opens the backend named by the store DSN.
func ProvideStore(i do.Injector) (*StoreHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*slog.Logger](i)

	dsn := cfg.Store.DSN
	if local := localPath(dsn); local != "" {
		if err := os.MkdirAll(filepath.Dir(local), 0o755); err != nil {
			return nil, err
		}
	}

	store, err := db.Open(dsn)
	if err != nil {
		return nil, err
	}
	log.Info("Store opened", "backend", backendName(dsn))
	return &StoreHandle{Store: store}, nil
}

// localPath returns the on-disk path of a sqlite or badger DSN.
func localPath(dsn string) string {
	switch {
	case strings.HasPrefix(dsn, "badger:"):
		dir := strings.TrimPrefix(dsn, "badger:")
		if dir == ":memory:" {
			return ""
		}
		return filepath.Join(dir, "x")
	case strings.Contains(dsn, "@"), strings.HasPrefix(dsn, "file:"), dsn == ":memory:":
		return ""
	default:
		return dsn
	}
}

func backendName(dsn string) string {
	switch {
	case strings.HasPrefix(dsn, "badger:"):
		return "badger"
	case strings.Contains(dsn, "@"):
		return "mysql"
	default:
		return "sqlite"
	}
}

// Toasts holds the queue clients drain and the notifier components raise
// toasts through.
type Toasts struct {
	Queue    *toast.Queue
	Notifier *toast.Notifier
}

// ProvideToasts fans toasts out to the log, the client queue and, with an
// SMTP provider, e-mail.
func ProvideToasts(i do.Injector) (*Toasts, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*slog.Logger](i)

	queue := toast.NewQueue(100)
	surfaces := toast.Multi{queue, &toast.LogSurface{Log: log}}

	if cfg.Mail.Provider == "smtp" {
		sender := toast.NewSmtpMailSender(toast.SmtpConfig{
			Host:     cfg.Mail.SMTPHost,
			Port:     cfg.Mail.SMTPPort,
			User:     cfg.Mail.SMTPUser,
			Password: cfg.Mail.SMTPPass,
			From:     cfg.Mail.SMTPFrom,
		})
		surfaces = append(surfaces, toast.NewMailSurface(sender, templates.Default(), cfg.Mail.ToastTo, log))
		log.Info("Toast e-mail forwarding enabled", "to", cfg.Mail.ToastTo)
	}

	return &Toasts{Queue: queue, Notifier: toast.NewNotifier(surfaces)}, nil
}
